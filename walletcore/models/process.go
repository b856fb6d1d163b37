package models

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

// StepType is the type of one step of a process
type StepType string

const (
	StepDefault       StepType = "DEFAULT"
	StepTokenApproval StepType = "TOKEN_APPROVAL"
	StepPermit        StepType = "PERMIT"
	StepSwap          StepType = "SWAP"
	StepXcm           StepType = "XCM"
)

// PairMetadataVersion is the lowest metadata version that carries a swap pair
const PairMetadataVersion = 2

// StepMetadata is the typed payload of a step. The concrete type is fixed by the step type.
type StepMetadata interface {
	stepType() StepType
}

// ApprovalMetadata belongs to TOKEN_APPROVAL steps
type ApprovalMetadata struct {
	Chain     string          `json:"chain"`
	TokenSlug string          `json:"token_slug"`
	Spender   string          `json:"spender"`
	Amount    decimal.Decimal `json:"amount"`
}

func (ApprovalMetadata) stepType() StepType { return StepTokenApproval }

// PermitMetadata belongs to PERMIT steps
type PermitMetadata struct {
	Chain     string          `json:"chain"`
	TokenSlug string          `json:"token_slug"`
	Spender   string          `json:"spender"`
	Amount    decimal.Decimal `json:"amount"`
	Deadline  int64           `json:"deadline"`
}

func (PermitMetadata) stepType() StepType { return StepPermit }

// TransferMetadata is the pair bearing part shared by swap and bridge steps.
type TransferMetadata struct {
	SendingValue         decimal.Decimal `json:"sending_value"`
	ExpectedReceive      decimal.Decimal `json:"expected_receive"`
	OriginTokenInfo      Asset           `json:"origin_token_info"`
	DestinationTokenInfo Asset           `json:"destination_token_info"`
	Sender               string          `json:"sender"`
	Receiver             string          `json:"receiver"`
	Version              int             `json:"version"`
}

// SwapMetadata belongs to SWAP steps
type SwapMetadata struct {
	TransferMetadata
	ProviderID string `json:"provider_id"`
}

func (SwapMetadata) stepType() StepType { return StepSwap }

// BridgeMetadata belongs to XCM steps
type BridgeMetadata struct {
	TransferMetadata
	// IsAggregator marks bridges that handle the destination account themselves
	IsAggregator bool            `json:"is_aggregator,omitempty"`
	DeliveryFee  decimal.Decimal `json:"delivery_fee"`
}

func (BridgeMetadata) stepType() StepType { return StepXcm }

// StepDetail is one step of a generated process.
type StepDetail struct {
	ID       int          `json:"id"`
	Name     string       `json:"name"`
	Type     StepType     `json:"type"`
	Metadata StepMetadata `json:"metadata,omitempty"`
}

// DefaultStep is the synthetic first step of every process
func DefaultStep() StepDetail {
	return StepDetail{ID: 0, Name: "Fill information", Type: StepDefault}
}

// Transfer returns the pair bearing metadata of swap and bridge steps at a supported version
func (s StepDetail) Transfer() (*TransferMetadata, bool) {
	var t *TransferMetadata
	switch m := s.Metadata.(type) {
	case SwapMetadata:
		t = &m.TransferMetadata
	case *SwapMetadata:
		t = &m.TransferMetadata
	case BridgeMetadata:
		t = &m.TransferMetadata
	case *BridgeMetadata:
		t = &m.TransferMetadata
	default:
		return nil, false
	}
	if t.Version < PairMetadataVersion {
		return nil, false
	}
	return t, true
}

type stepDetailJSON struct {
	ID       int             `json:"id"`
	Name     string          `json:"name"`
	Type     StepType        `json:"type"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

func (s StepDetail) MarshalJSON() ([]byte, error) {
	out := stepDetailJSON{ID: s.ID, Name: s.Name, Type: s.Type}
	if s.Metadata != nil {
		if s.Metadata.stepType() != s.Type {
			return nil, fmt.Errorf("step %d: metadata of %s on a %s step", s.ID, s.Metadata.stepType(), s.Type)
		}
		raw, err := json.Marshal(s.Metadata)
		if err != nil {
			return nil, err
		}
		out.Metadata = raw
	}
	return json.Marshal(out)
}

func (s *StepDetail) UnmarshalJSON(data []byte) error {
	var in stepDetailJSON
	if err := json.Unmarshal(data, &in); err != nil {
		return err
	}
	s.ID, s.Name, s.Type, s.Metadata = in.ID, in.Name, in.Type, nil
	if len(in.Metadata) == 0 || string(in.Metadata) == "null" {
		return nil
	}

	var err error
	switch in.Type {
	case StepTokenApproval:
		var m ApprovalMetadata
		err = json.Unmarshal(in.Metadata, &m)
		s.Metadata = m
	case StepPermit:
		var m PermitMetadata
		err = json.Unmarshal(in.Metadata, &m)
		s.Metadata = m
	case StepSwap:
		var m SwapMetadata
		err = json.Unmarshal(in.Metadata, &m)
		s.Metadata = m
	case StepXcm:
		var m BridgeMetadata
		err = json.Unmarshal(in.Metadata, &m)
		s.Metadata = m
	default:
		return fmt.Errorf("step %d: unexpected metadata for %s step", in.ID, in.Type)
	}
	return err
}

// CommonOptimalSwapPath is a generated process: the path, its steps and the fee of every step.
//
// Steps[0] is always the DEFAULT step and TotalFee[0] its zero fee placeholder.
type CommonOptimalSwapPath struct {
	Path     []DynamicSwapAction `json:"path"`
	Steps    []StepDetail        `json:"steps"`
	TotalFee []SwapFeeInfo       `json:"total_fee"`
}

// NewOptimalSwapPath starts a process with the default step and its placeholder fee
func NewOptimalSwapPath(path []DynamicSwapAction) *CommonOptimalSwapPath {
	return &CommonOptimalSwapPath{
		Path:     path,
		Steps:    []StepDetail{DefaultStep()},
		TotalFee: []SwapFeeInfo{{FeeComponent: []FeeComponent{}, FeeOptions: []string{}}},
	}
}

// AddStep appends a step and its fee, keeping both slices in lockstep
func (p *CommonOptimalSwapPath) AddStep(step StepDetail, fee SwapFeeInfo) {
	step.ID = len(p.Steps)
	p.Steps = append(p.Steps, step)
	p.TotalFee = append(p.TotalFee, fee)
}

// StepByID looks up a step and its fee
func (p *CommonOptimalSwapPath) StepByID(id int) (StepDetail, SwapFeeInfo, bool) {
	if id < 0 || id >= len(p.Steps) {
		return StepDetail{}, SwapFeeInfo{}, false
	}
	return p.Steps[id], p.TotalFee[id], true
}

// CheckConsistency verifies that the steps of the process describe exactly its path.
func (p *CommonOptimalSwapPath) CheckConsistency() error {
	if len(p.Steps) == 0 || p.Steps[0].Type != StepDefault {
		return fmt.Errorf("process does not start with a default step")
	}
	if len(p.Steps) != len(p.TotalFee) {
		return fmt.Errorf("process has %d steps but %d fee entries", len(p.Steps), len(p.TotalFee))
	}

	actionIdx := 0
	for _, step := range p.Steps {
		var kind ActionKind
		switch step.Type {
		case StepDefault, StepTokenApproval, StepPermit:
			continue
		case StepSwap:
			kind = ActionSwap
		case StepXcm:
			kind = ActionBridge
		default:
			return fmt.Errorf("step %d has unknown type %s", step.ID, step.Type)
		}

		if actionIdx >= len(p.Path) {
			return fmt.Errorf("step %d has no matching action in path", step.ID)
		}
		action := p.Path[actionIdx]
		if action.Action != kind {
			return fmt.Errorf("step %d is %s but action %d is %s", step.ID, step.Type, actionIdx, action.Action)
		}
		transfer, ok := step.Transfer()
		if !ok {
			return fmt.Errorf("step %d carries no pair metadata", step.ID)
		}
		if transfer.OriginTokenInfo.Slug != action.Pair.From || transfer.DestinationTokenInfo.Slug != action.Pair.To {
			return fmt.Errorf("step %d moves %s -> %s but action %d is %s",
				step.ID, transfer.OriginTokenInfo.Slug, transfer.DestinationTokenInfo.Slug, actionIdx, action.Pair.Slug)
		}
		actionIdx++
	}
	if actionIdx != len(p.Path) {
		return fmt.Errorf("path has %d actions but only %d were turned into steps", len(p.Path), actionIdx)
	}
	return nil
}

// StepStatus is the status of one process step
type StepStatus string

const (
	StepStatusQueued     StepStatus = "QUEUED"
	StepStatusPrepare    StepStatus = "PREPARE"
	StepStatusSubmitting StepStatus = "SUBMITTING"
	StepStatusProcessing StepStatus = "PROCESSING"
	StepStatusComplete   StepStatus = "COMPLETE"
	StepStatusFailed     StepStatus = "FAILED"
	StepStatusTimeout    StepStatus = "TIMEOUT"
	StepStatusCancelled  StepStatus = "CANCELLED"
)

// ProcessStatus is the aggregate status of a process
type ProcessStatus string

const (
	ProcessStatusQueued     ProcessStatus = "QUEUED"
	ProcessStatusProcessing ProcessStatus = "PROCESSING"
	ProcessStatusComplete   ProcessStatus = "COMPLETE"
	ProcessStatusFailed     ProcessStatus = "FAILED"
	ProcessStatusTimeout    ProcessStatus = "TIMEOUT"
)

// IsTerminal reports whether the process is finished for good
func (s ProcessStatus) IsTerminal() bool {
	return s == ProcessStatusComplete || s == ProcessStatusFailed
}

// ProcessType is what kind of multi step operation a process is
type ProcessType string

const ProcessTypeSwap ProcessType = "SWAP"

// ProcessStep is the execution state of one step
type ProcessStep struct {
	ID            int        `json:"id"`
	Type          StepType   `json:"type"`
	Status        StepStatus `json:"status"`
	TransactionID string     `json:"transaction_id,omitempty"`
	ExtrinsicHash string     `json:"extrinsic_hash,omitempty"`
	Chain         string     `json:"chain,omitempty"`
}

// SwapCombineInfo is what a swap process needs to be resumed
type SwapCombineInfo struct {
	Process   CommonOptimalSwapPath `json:"process"`
	Quote     SwapQuote             `json:"quote"`
	Address   string                `json:"address"`
	Recipient string                `json:"recipient,omitempty"`
	Slippage  decimal.Decimal       `json:"slippage"`
}

// ProcessTransaction is a persisted multi step operation.
type ProcessTransaction struct {
	ID                   string          `json:"id"`
	Type                 ProcessType     `json:"type"`
	Address              string          `json:"address"`
	Steps                []ProcessStep   `json:"steps"`
	CurrentStepID        int             `json:"current_step_id"`
	Status               ProcessStatus   `json:"status"`
	CombineInfo          SwapCombineInfo `json:"combine_info"`
	LastTransactionChain string          `json:"last_transaction_chain,omitempty"`
	LastTransactionID    string          `json:"last_transaction_id,omitempty"`
	CreatedAt            time.Time       `json:"created_at"`
	UpdatedAt            time.Time       `json:"updated_at"`
}

// FirstStepID is the id of the first executable step, right after DEFAULT
const FirstStepID = 1

// NewSwapProcess builds the execution record of a generated swap process
func NewSwapProcess(id string, info SwapCombineInfo, now time.Time) *ProcessTransaction {
	steps := make([]ProcessStep, 0, len(info.Process.Steps))
	for _, s := range info.Process.Steps {
		if s.Type == StepDefault {
			continue
		}
		steps = append(steps, ProcessStep{ID: s.ID, Type: s.Type, Status: StepStatusQueued})
	}
	if len(steps) > 0 {
		steps[0].Status = StepStatusPrepare
	}
	return &ProcessTransaction{
		ID:            id,
		Type:          ProcessTypeSwap,
		Address:       info.Address,
		Steps:         steps,
		CurrentStepID: FirstStepID,
		Status:        ProcessStatusQueued,
		CombineInfo:   info,
		CreatedAt:     now,
		UpdatedAt:     now,
	}
}

// Step returns a pointer to the step with id
func (p *ProcessTransaction) Step(id int) *ProcessStep {
	for i := range p.Steps {
		if p.Steps[i].ID == id {
			return &p.Steps[i]
		}
	}
	return nil
}

// Clone deep copies the mutable parts of the process
func (p *ProcessTransaction) Clone() *ProcessTransaction {
	if p == nil {
		return nil
	}
	c := *p
	c.Steps = append([]ProcessStep(nil), p.Steps...)
	return &c
}
