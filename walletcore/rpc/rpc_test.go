package rpc_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/confirmation"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/rpc"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/transaction"
)

type fakeSwap struct {
	path       *router.PathResult
	pathErr    error
	validation []*models.TransactionError
	from, to   string
}

func (f *fakeSwap) GetLatestQuote(context.Context, models.SwapRequest) (*models.SwapQuoteResponse, error) {
	return nil, swap.ErrNotStarted
}

func (f *fakeSwap) HandleSwapRequest(context.Context, models.SwapRequest) (*models.SwapRequestResult, error) {
	return nil, models.NewSwapError(models.ErrQuoteTimeout, "")
}

func (f *fakeSwap) ValidateSwapProcess(context.Context, handler.ProcessParams) []*models.TransactionError {
	return f.validation
}

func (f *fakeSwap) SubmitSwapStep(context.Context, swap.SubmitStepRequest) (*swap.SubmitStepResult, error) {
	return nil, models.NewTransactionError(models.ErrDuplicateTransaction, "")
}

func (f *fakeSwap) FindPath(_ context.Context, from, to string) (*router.PathResult, error) {
	f.from, f.to = from, to
	return f.path, f.pathErr
}

type fakeTransactions struct {
	alive []*models.ProcessTransaction
}

func (f *fakeTransactions) GetTransaction(id string) (*models.Transaction, error) {
	if id == "tx-1" {
		return &models.Transaction{ID: "tx-1", Chain: "ethereum", Status: models.TxStatusSuccess, ExtrinsicHash: "0x01"}, nil
	}
	return nil, transaction.ErrTransactionNotFound
}

func (f *fakeTransactions) GetProcess(context.Context, string) (*models.ProcessTransaction, error) {
	return nil, transaction.ErrProcessNotFound
}

func (f *fakeTransactions) ListAliveProcesses() []*models.ProcessTransaction {
	return f.alive
}

func (f *fakeTransactions) ReconcileProcess(context.Context, string) (*models.ProcessTransaction, error) {
	return nil, transaction.ErrProcessNotFound
}

type testServer struct {
	url   string
	swap  *fakeSwap
	txs   *fakeTransactions
	queue *confirmation.Queue
	ready atomic.Bool
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	ts := &testServer{
		swap:  &fakeSwap{},
		txs:   &fakeTransactions{},
		queue: confirmation.NewQueue(),
	}
	ts.ready.Store(true)

	cfg := rpc.DefaultServerConfig()
	cfg.OTelConfig = nil
	srv, err := rpc.NewServer(context.Background(), cfg, rpc.Services{
		Swap:          ts.swap,
		Transactions:  ts.txs,
		Confirmations: ts.queue,
		Ready:         ts.ready.Load,
	})
	assert.NoError(t, err)

	hs := httptest.NewServer(srv.Handler())
	t.Cleanup(hs.Close)
	ts.url = hs.URL
	return ts
}

type connectError struct {
	Code    string `json:"code"`
	Message string `json:"message"`
}

func (ts *testServer) call(t *testing.T, proc, body string, out any) *http.Response {
	t.Helper()
	resp, err := http.Post(ts.url+proc, "application/json", strings.NewReader(body))
	assert.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	if out != nil {
		assert.NoError(t, json.Unmarshal(raw, out))
	}
	return resp
}

func (ts *testServer) callError(t *testing.T, proc, body string) (int, connectError) {
	t.Helper()
	var ce connectError
	resp := ts.call(t, proc, body, &ce)
	return resp.StatusCode, ce
}

func TestHealthAndReady(t *testing.T) {
	ts := newTestServer(t)

	resp, err := http.Get(ts.url + "/server/health")
	assert.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	ts.ready.Store(false)
	resp, err = http.Get(ts.url + "/server/ready")
	assert.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusServiceUnavailable)

	ts.ready.Store(true)
	resp, err = http.Get(ts.url + "/server/ready")
	assert.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, resp.StatusCode, http.StatusOK)
}

func TestMetricsEndpoint(t *testing.T) {
	ts := newTestServer(t)
	ts.call(t, "/wallet.v1.TransactionService/GetTransaction", `{"id":"tx-1"}`, nil)

	resp, err := http.Get(ts.url + "/server/metrics")
	assert.NoError(t, err)
	defer func() { _ = resp.Body.Close() }()
	raw, err := io.ReadAll(resp.Body)
	assert.NoError(t, err)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.That(t, strings.Contains(string(raw), "walletcore_rpc_requests_total"))
}

func TestFindPath(t *testing.T) {
	ts := newTestServer(t)
	ts.swap.path = &router.PathResult{Kind: router.RouteSwap, Provider: "hydradx"}

	var out struct {
		Kind     string `json:"kind"`
		Provider string `json:"provider"`
	}
	resp := ts.call(t, "/wallet.v1.SwapService/FindPath", `{"from":"polkadot-NATIVE-DOT","to":"hydradx_main-NATIVE-HDX"}`, &out)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, out.Kind, "swap")
	assert.Equal(t, out.Provider, "hydradx")
	assert.Equal(t, ts.swap.from, "polkadot-NATIVE-DOT")
	assert.Equal(t, ts.swap.to, "hydradx_main-NATIVE-HDX")
	assert.Equal(t, resp.Header.Get("Cache-Control"), "no-store, no-cache, must-revalidate")
}

func TestErrorCodes(t *testing.T) {
	ts := newTestServer(t)
	ts.swap.pathErr = models.NewSwapError(models.ErrSwapPairNotFound, "")

	tests := []struct {
		name   string
		proc   string
		body   string
		status int
		code   string
	}{
		{"pair not found", "/wallet.v1.SwapService/FindPath", `{"from":"a","to":"b"}`, http.StatusNotFound, "not_found"},
		{"missing asset", "/wallet.v1.SwapService/FindPath", `{"from":"a"}`, http.StatusBadRequest, "invalid_argument"},
		{"not started", "/wallet.v1.SwapService/GetLatestQuote", `{}`, http.StatusServiceUnavailable, "unavailable"},
		{"duplicate step", "/wallet.v1.SwapService/SubmitSwapStep", `{"process_id":"p-1"}`, http.StatusConflict, "already_exists"},
		{"unknown transaction", "/wallet.v1.TransactionService/GetTransaction", `{"id":"nope"}`, http.StatusNotFound, "not_found"},
		{"missing id", "/wallet.v1.TransactionService/GetProcess", `{}`, http.StatusBadRequest, "invalid_argument"},
		{"unknown process", "/wallet.v1.TransactionService/ReconcileProcess", `{"id":"p-9"}`, http.StatusNotFound, "not_found"},
		{"unknown confirmation", "/wallet.v1.ConfirmationService/Resolve", `{"id":"c-9","approved":true}`, http.StatusNotFound, "not_found"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			status, ce := ts.callError(t, tt.proc, tt.body)
			assert.Equal(t, status, tt.status)
			assert.Equal(t, ce.Code, tt.code)
		})
	}
}

func TestGetTransaction(t *testing.T) {
	ts := newTestServer(t)

	var out struct {
		ID            string `json:"id"`
		Status        string `json:"status"`
		ExtrinsicHash string `json:"extrinsic_hash"`
	}
	resp := ts.call(t, "/wallet.v1.TransactionService/GetTransaction", `{"id":"tx-1"}`, &out)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, out.ID, "tx-1")
	assert.Equal(t, out.Status, string(models.TxStatusSuccess))
	assert.Equal(t, out.ExtrinsicHash, "0x01")
}

func TestValidateSwapProcessReturnsEveryError(t *testing.T) {
	ts := newTestServer(t)

	var out struct {
		Errors []models.TransactionError `json:"errors"`
	}
	resp := ts.call(t, "/wallet.v1.SwapService/ValidateSwapProcess", `{}`, &out)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(out.Errors), 0)

	ts.swap.validation = []*models.TransactionError{
		models.NewTransactionError(models.ErrNotEnoughBalance, ""),
		models.NewTransactionError(models.ErrInvalidParams, "slippage"),
	}
	resp = ts.call(t, "/wallet.v1.SwapService/ValidateSwapProcess", `{}`, &out)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(out.Errors), 2)
	assert.Equal(t, out.Errors[0].ErrorType, models.ErrNotEnoughBalance)
	assert.Equal(t, out.Errors[1].Message, "slippage")
}

func TestListAliveProcesses(t *testing.T) {
	ts := newTestServer(t)
	ts.txs.alive = []*models.ProcessTransaction{
		{ID: "p-1", Status: models.ProcessStatusProcessing},
		{ID: "p-2", Status: models.ProcessStatusTimeout},
	}

	var out struct {
		Processes []struct {
			ID     string `json:"id"`
			Status string `json:"status"`
		} `json:"processes"`
	}
	resp := ts.call(t, "/wallet.v1.TransactionService/ListAliveProcesses", `{}`, &out)
	assert.Equal(t, resp.StatusCode, http.StatusOK)
	assert.Equal(t, len(out.Processes), 2)
	assert.Equal(t, out.Processes[1].ID, "p-2")
	assert.Equal(t, out.Processes[1].Status, string(models.ProcessStatusTimeout))
}

func TestConfirmationRoundTrip(t *testing.T) {
	ts := newTestServer(t)

	type result struct {
		res *chain.ConfirmationResult
		err error
	}
	done := make(chan result, 1)
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		res, err := ts.queue.AddConfirmation(ctx, chain.ConfirmationRequest{
			ID:      "c-1",
			Type:    chain.ConfirmEvmSendTransaction,
			Address: "0x000000000000000000000000000000000000dEaD",
			Chain:   "ethereum",
		})
		done <- result{res, err}
	}()

	var pending struct {
		Requests []struct {
			ID    string `json:"id"`
			Chain string `json:"chain"`
		} `json:"requests"`
	}
	deadline := time.Now().Add(5 * time.Second)
	for {
		ts.call(t, "/wallet.v1.ConfirmationService/ListPending", `{}`, &pending)
		if len(pending.Requests) == 1 {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("confirmation never queued")
		}
		time.Sleep(5 * time.Millisecond)
	}
	assert.Equal(t, pending.Requests[0].ID, "c-1")
	assert.Equal(t, pending.Requests[0].Chain, "ethereum")

	resp := ts.call(t, "/wallet.v1.ConfirmationService/Resolve", `{"id":"c-1","approved":true,"payload":"0xsig"}`, nil)
	assert.Equal(t, resp.StatusCode, http.StatusOK)

	got := <-done
	assert.NoError(t, got.err)
	assert.True(t, got.res.IsApproved)
	assert.Equal(t, got.res.Payload, "0xsig")
}

func TestCORSPreflight(t *testing.T) {
	ts := newTestServer(t)

	req, err := http.NewRequest(http.MethodOptions, ts.url+"/wallet.v1.SwapService/FindPath", nil)
	assert.NoError(t, err)
	req.Header.Set("Origin", "http://localhost:3000")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	req.Header.Set("Access-Control-Request-Headers", "content-type")

	resp, err := http.DefaultClient.Do(req)
	assert.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, resp.Header.Get("Access-Control-Allow-Origin"), "http://localhost:3000")
}
