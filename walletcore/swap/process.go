package swap

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

// HandleSwapRequest quotes the request and turns the optimal quote into a process.
// When no provider can quote, the result carries the quote error and no process.
func (s *Service) HandleSwapRequest(ctx context.Context, req models.SwapRequest) (*models.SwapRequestResult, error) {
	ctx, span := tracer.Start(ctx, "swap.HandleSwapRequest", trace.WithAttributes(attribute.String("pair", req.Pair.Slug)))
	defer span.End()

	path, err := s.swapPath(ctx, req)
	if err != nil {
		return nil, err
	}
	quote, err := s.quotePath(ctx, req, path)
	if err != nil {
		return nil, err
	}
	result := &models.SwapRequestResult{Quote: quote}
	if quote.OptimalQuote == nil {
		return result, nil
	}

	h, ok := s.handlers[quote.OptimalQuote.Provider.ID]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnknownProvider, quote.OptimalQuote.Provider.ID)
	}
	process, err := h.GenerateOptimalProcess(ctx, handler.GenerateParams{Request: req, Path: path, Quote: quote.OptimalQuote})
	if err != nil {
		return nil, err
	}
	if err := process.CheckConsistency(); err != nil {
		log.Error().Err(err).
			Str("provider", quote.OptimalQuote.Provider.ID).
			Str("pair", req.Pair.Slug).
			Msg("Generated process does not match its path")
		return nil, fmt.Errorf("inconsistent process from %s: %w", quote.OptimalQuote.Provider.ID, err)
	}
	result.Process = process

	log.Info().
		Str("provider", quote.OptimalQuote.Provider.ID).
		Str("pair", req.Pair.Slug).
		Int("steps", len(process.Steps)).
		Msg("Generated swap process")
	return result, nil
}

// ValidateSwapProcess checks the current step with the provider of the quote.
// Before the first step the provider must not have the swap blocked.
func (s *Service) ValidateSwapProcess(ctx context.Context, params handler.ProcessParams) []*models.TransactionError {
	if params.Quote == nil {
		return []*models.TransactionError{models.NewTransactionError(models.ErrInvalidParams, "missing quote")}
	}
	h, ok := s.handlers[params.Quote.Provider.ID]
	if !ok {
		return []*models.TransactionError{models.NewTransactionError(models.ErrUnsupported, fmt.Sprintf("unknown provider %s", params.Quote.Provider.ID))}
	}
	if params.CurrentStep == models.FirstStepID && s.deps.Blocked.IsBlocked(params.Quote.Provider.ID, params.Quote.Pair.Slug, ActionSwap) {
		return []*models.TransactionError{models.NewTransactionError(models.ErrUnsupported, "")}
	}
	return h.ValidateSwapProcess(ctx, params)
}

// SubmitStepRequest asks for the next step of a process. With a ProcessID the process is
// resumed from its stored state, otherwise Params describe a new process at its first step.
type SubmitStepRequest struct {
	ProcessID string                `json:"process_id,omitempty"`
	Params    handler.ProcessParams `json:"params"`
}

// SubmitStepResult is the transaction of the step or the validation errors that stopped it
type SubmitStepResult struct {
	ProcessID   string                     `json:"process_id,omitempty"`
	Transaction *models.Transaction        `json:"transaction,omitempty"`
	Errors      []*models.TransactionError `json:"errors,omitempty"`
}

// SubmitSwapStep validates the current step, builds its payload and hands it to the executor
func (s *Service) SubmitSwapStep(ctx context.Context, req SubmitStepRequest) (*SubmitStepResult, error) {
	if _, err := s.started(ctx); err != nil {
		return nil, err
	}
	if s.deps.Executor == nil {
		return nil, fmt.Errorf("swap service has no executor")
	}

	params := req.Params
	if req.ProcessID != "" {
		p, err := s.deps.Executor.GetProcess(ctx, req.ProcessID)
		if err != nil {
			return nil, err
		}
		if p.Status.IsTerminal() {
			return nil, models.NewTransactionError(models.ErrInvalidParams, fmt.Sprintf("process %s is %s", p.ID, p.Status))
		}
		params = paramsFromProcess(p)
	}
	if params.Process == nil {
		return nil, models.NewTransactionError(models.ErrInvalidParams, "missing process")
	}
	if params.CurrentStep == 0 {
		params.CurrentStep = models.FirstStepID
	}

	ctx, span := tracer.Start(ctx, "swap.SubmitSwapStep", trace.WithAttributes(
		attribute.String("process", req.ProcessID),
		attribute.Int("step", params.CurrentStep),
	))
	defer span.End()

	result := &SubmitStepResult{ProcessID: req.ProcessID}
	if errs := s.ValidateSwapProcess(ctx, params); len(errs) > 0 {
		result.Errors = errs
		return result, nil
	}

	h := s.handlers[params.Quote.Provider.ID]
	data, err := h.HandleSwapProcess(ctx, params)
	if err != nil {
		return nil, err
	}

	info := models.SwapCombineInfo{
		Process:   *params.Process,
		Quote:     *params.Quote,
		Address:   params.Address,
		Recipient: params.Recipient,
		Slippage:  params.Slippage,
	}
	tx, err := s.deps.Executor.SubmitProcessStep(ctx, req.ProcessID, info, params.CurrentStep, data)
	if err != nil {
		return nil, err
	}
	result.Transaction = tx
	if tx.Step != nil {
		result.ProcessID = tx.Step.ProcessID
	}
	return result, nil
}

// paramsFromProcess rebuilds the step parameters of a stored process at its current step
func paramsFromProcess(p *models.ProcessTransaction) handler.ProcessParams {
	info := p.CombineInfo
	process := info.Process
	quote := info.Quote
	params := handler.ProcessParams{
		Address:     info.Address,
		Recipient:   info.Recipient,
		Slippage:    info.Slippage,
		Process:     &process,
		Quote:       &quote,
		CurrentStep: p.CurrentStepID,
	}
	for _, step := range p.Steps {
		if step.ID >= p.CurrentStepID {
			break
		}
		if step.Type == models.StepPermit && step.Status == models.StepStatusComplete {
			params.PermitSignature = step.ExtrinsicHash
		}
	}
	return params
}
