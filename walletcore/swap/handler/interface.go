// Package handler defines the provider handler contract every liquidity venue implements and the
// base handler with the step logic shared by all venues: bridge steps, balance and fee validation
// and the per shape process validators.
package handler

import (
	"context"

	"github.com/shopspring/decimal"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// SwapProviderHandler is one liquidity venue (AMM, aggregator, intent based DEX).
// Handlers are looked up by provider id, the orchestrator never type switches on them.
type SwapProviderHandler interface {
	// ProviderInfo returns the id and display name of the venue
	ProviderInfo() models.SwapProvider

	// Init prepares the handler for use, e.g. connects the chains it trades on.
	// It is called lazily the first time the handler returns a quote.
	Init(ctx context.Context) error

	// IsReady reports whether Init completed
	IsReady() bool

	// GetSwapQuote prices the direct swap leg. Failures are returned as *models.SwapError.
	GetSwapQuote(ctx context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error)

	// GenerateOptimalProcess turns the path and the selected quote into process steps.
	GenerateOptimalProcess(ctx context.Context, params GenerateParams) (*models.CommonOptimalSwapPath, error)

	// HandleSwapProcess builds the chain payload of the current step
	HandleSwapProcess(ctx context.Context, params ProcessParams) (*SubmitStepData, error)

	// ValidateSwapProcess checks the current step against the quote and on-chain state.
	// Every problem found is returned, an empty slice means the step can be submitted.
	ValidateSwapProcess(ctx context.Context, params ProcessParams) []*models.TransactionError
}

// GenerateParams is the input of process generation
type GenerateParams struct {
	Request models.SwapRequest
	Path    []models.DynamicSwapAction
	Quote   *models.SwapQuote
}

// ProcessParams identifies one step of a generated process
type ProcessParams struct {
	Address     string                        `json:"address"`
	Recipient   string                        `json:"recipient,omitempty"`
	Slippage    decimal.Decimal               `json:"slippage"`
	Process     *models.CommonOptimalSwapPath `json:"process"`
	Quote       *models.SwapQuote             `json:"quote"`
	CurrentStep int                           `json:"current_step"`
	// PermitSignature is the signature collected by an earlier PERMIT step of the process
	PermitSignature string `json:"permit_signature,omitempty"`
}

// SubmitStepData is everything the transaction service needs to send one step
type SubmitStepData struct {
	Chain         string                    `json:"chain"`
	ChainType     models.ChainType          `json:"chain_type"`
	Address       string                    `json:"address"`
	ExtrinsicType models.ExtrinsicType      `json:"extrinsic_type"`
	Payload       models.TransactionPayload `json:"-"`
	EstimateFee   *models.FeeAmount         `json:"estimate_fee,omitempty"`
	// ErrorOnTimeout makes a timeout terminal for this step
	ErrorOnTimeout bool `json:"error_on_timeout,omitempty"`
	// Data is the step metadata kept with the history item
	Data any `json:"data,omitempty"`
}

// GeneratedStep is the output of a step generator
type GeneratedStep struct {
	Step models.StepDetail
	Fee  models.SwapFeeInfo
}

// StepGenerator produces the step for action leg of the path.
// A nil step without error means the step is not needed and is left out.
type StepGenerator func(ctx context.Context, params GenerateParams, leg int) (*GeneratedStep, error)
