package rpc

import (
	"context"
	"net/http"
	"strings"

	"connectrpc.com/connect"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/confirmation"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

const (
	SwapServiceName         = "wallet.v1.SwapService"
	TransactionServiceName  = "wallet.v1.TransactionService"
	ConfirmationServiceName = "wallet.v1.ConfirmationService"
)

// SwapAPI is implemented by swap.Service
type SwapAPI interface {
	GetLatestQuote(ctx context.Context, req models.SwapRequest) (*models.SwapQuoteResponse, error)
	HandleSwapRequest(ctx context.Context, req models.SwapRequest) (*models.SwapRequestResult, error)
	ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError
	SubmitSwapStep(ctx context.Context, req swap.SubmitStepRequest) (*swap.SubmitStepResult, error)
	FindPath(ctx context.Context, from, to string) (*router.PathResult, error)
}

// TransactionAPI is implemented by transaction.Service
type TransactionAPI interface {
	GetTransaction(id string) (*models.Transaction, error)
	GetProcess(ctx context.Context, id string) (*models.ProcessTransaction, error)
	ListAliveProcesses() []*models.ProcessTransaction
	ReconcileProcess(ctx context.Context, id string) (*models.ProcessTransaction, error)
}

// ConfirmationAPI is implemented by confirmation.Queue
type ConfirmationAPI interface {
	ListPending() []confirmation.Pending
	Resolve(id string, approved bool, payload string) error
}

type FindPathRequest struct {
	From string `json:"from"`
	To   string `json:"to"`
}

type ValidateSwapProcessResponse struct {
	Errors []*models.TransactionError `json:"errors"`
}

// IDRequest selects a transaction or a process
type IDRequest struct {
	ID string `json:"id"`
}

type Empty struct{}

type ListAliveProcessesResponse struct {
	Processes []*models.ProcessTransaction `json:"processes"`
}

type ListPendingResponse struct {
	Requests []confirmation.Pending `json:"requests"`
}

// ResolveRequest answers a pending confirmation. Payload is the signature on approval.
type ResolveRequest struct {
	ID       string `json:"id"`
	Approved bool   `json:"approved"`
	Payload  string `json:"payload,omitempty"`
}

type route struct {
	procedure string
	handler   http.Handler
}

func procedure(service, method string) string {
	return "/" + service + "/" + method
}

// unary adapts a plain service call to a connect handler
func unary[Req, Res any](service, method string, call func(context.Context, *Req) (*Res, error), opts []connect.HandlerOption) route {
	p := procedure(service, method)
	h := connect.NewUnaryHandler(p, func(ctx context.Context, req *connect.Request[Req]) (*connect.Response[Res], error) {
		res, err := call(ctx, req.Msg)
		if err != nil {
			return nil, toConnectError(err)
		}
		return connect.NewResponse(res), nil
	}, opts...)
	return route{procedure: p, handler: h}
}

func requireID(id string) error {
	if strings.TrimSpace(id) == "" {
		return models.NewTransactionError(models.ErrInvalidParams, "id is required")
	}
	return nil
}

func swapRoutes(svc SwapAPI, opts []connect.HandlerOption) []route {
	return []route{
		unary(SwapServiceName, "GetLatestQuote", func(ctx context.Context, req *models.SwapRequest) (*models.SwapQuoteResponse, error) {
			return svc.GetLatestQuote(ctx, *req)
		}, opts),
		unary(SwapServiceName, "HandleSwapRequest", func(ctx context.Context, req *models.SwapRequest) (*models.SwapRequestResult, error) {
			return svc.HandleSwapRequest(ctx, *req)
		}, opts),
		unary(SwapServiceName, "ValidateSwapProcess", func(ctx context.Context, req *handler.ProcessParams) (*ValidateSwapProcessResponse, error) {
			errs := svc.ValidateSwapProcess(ctx, *req)
			if errs == nil {
				errs = []*models.TransactionError{}
			}
			return &ValidateSwapProcessResponse{Errors: errs}, nil
		}, opts),
		unary(SwapServiceName, "SubmitSwapStep", func(ctx context.Context, req *swap.SubmitStepRequest) (*swap.SubmitStepResult, error) {
			return svc.SubmitSwapStep(ctx, *req)
		}, opts),
		unary(SwapServiceName, "FindPath", func(ctx context.Context, req *FindPathRequest) (*router.PathResult, error) {
			if req.From == "" || req.To == "" {
				return nil, models.NewTransactionError(models.ErrInvalidParams, "from and to are required")
			}
			return svc.FindPath(ctx, req.From, req.To)
		}, opts),
	}
}

func transactionRoutes(svc TransactionAPI, opts []connect.HandlerOption) []route {
	return []route{
		unary(TransactionServiceName, "GetTransaction", func(_ context.Context, req *IDRequest) (*models.Transaction, error) {
			if err := requireID(req.ID); err != nil {
				return nil, err
			}
			return svc.GetTransaction(req.ID)
		}, opts),
		unary(TransactionServiceName, "GetProcess", func(ctx context.Context, req *IDRequest) (*models.ProcessTransaction, error) {
			if err := requireID(req.ID); err != nil {
				return nil, err
			}
			return svc.GetProcess(ctx, req.ID)
		}, opts),
		unary(TransactionServiceName, "ListAliveProcesses", func(context.Context, *Empty) (*ListAliveProcessesResponse, error) {
			return &ListAliveProcessesResponse{Processes: svc.ListAliveProcesses()}, nil
		}, opts),
		unary(TransactionServiceName, "ReconcileProcess", func(ctx context.Context, req *IDRequest) (*models.ProcessTransaction, error) {
			if err := requireID(req.ID); err != nil {
				return nil, err
			}
			return svc.ReconcileProcess(ctx, req.ID)
		}, opts),
	}
}

func confirmationRoutes(q ConfirmationAPI, opts []connect.HandlerOption) []route {
	return []route{
		unary(ConfirmationServiceName, "ListPending", func(context.Context, *Empty) (*ListPendingResponse, error) {
			return &ListPendingResponse{Requests: q.ListPending()}, nil
		}, opts),
		unary(ConfirmationServiceName, "Resolve", func(_ context.Context, req *ResolveRequest) (*Empty, error) {
			if err := requireID(req.ID); err != nil {
				return nil, err
			}
			if err := q.Resolve(req.ID, req.Approved, req.Payload); err != nil {
				return nil, err
			}
			return &Empty{}, nil
		}, opts),
	}
}
