package transaction_test

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/transaction"
)

// threeStepInfo is approve, swap, bridge
func threeStepInfo(address string) models.SwapCombineInfo {
	return models.SwapCombineInfo{
		Process: models.CommonOptimalSwapPath{
			Steps: []models.StepDetail{
				models.DefaultStep(),
				{ID: 1, Name: "Approve", Type: models.StepTokenApproval},
				{ID: 2, Name: "Swap", Type: models.StepSwap},
				{ID: 3, Name: "Bridge", Type: models.StepXcm},
			},
		},
		Address: address,
	}
}

func stepStatuses(p *models.ProcessTransaction) []models.StepStatus {
	out := make([]models.StepStatus, 0, len(p.Steps))
	for _, st := range p.Steps {
		out = append(out, st.Status)
	}
	return out
}

func TestProcessStepsAdvance(t *testing.T) {
	h := newHarness(t, transaction.Config{Timeout: 5 * time.Second})
	key, from := newKey(t)
	h.signWith(key)
	ctx := context.Background()

	tx, err := h.svc.SubmitProcessStep(ctx, "", threeStepInfo(from), models.FirstStepID, evmTransfer(from))
	assert.NoError(t, err)
	assert.NotNil(t, tx.Step)
	processID := tx.Step.ProcessID

	alive := h.svc.ListAliveProcesses()
	assert.Equal(t, len(alive), 1)
	assert.Equal(t, alive[0].Status, models.ProcessStatusProcessing)

	done := wait(t, h, tx.ID)
	assert.Equal(t, done.Status, models.TxStatusSuccess)

	p, err := h.svc.GetProcess(ctx, processID)
	assert.NoError(t, err)
	assert.Equal(t, p.CurrentStepID, 2)
	assert.Equal(t, p.Status, models.ProcessStatusProcessing)
	assert.DeepEqual(t, stepStatuses(p), []models.StepStatus{
		models.StepStatusComplete,
		models.StepStatusPrepare,
		models.StepStatusQueued,
	})
	assert.Equal(t, p.Steps[0].ExtrinsicHash, done.ExtrinsicHash)
	assert.Equal(t, p.LastTransactionID, tx.ID)

	_, err = h.svc.SubmitProcessStep(ctx, processID, p.CombineInfo, 3, evmTransfer(from))
	assert.Equal(t, errorType(err), models.ErrInvalidParams)
}

// A failing middle step cancels the rest and the failed process stays queryable.
func TestProcessMiddleStepFails(t *testing.T) {
	h := newHarness(t, transaction.Config{Timeout: 5 * time.Second})
	key, from := newKey(t)
	h.signWith(key)
	ctx := context.Background()

	first, err := h.svc.SubmitProcessStep(ctx, "", threeStepInfo(from), models.FirstStepID, evmTransfer(from))
	assert.NoError(t, err)
	wait(t, h, first.ID)
	processID := first.Step.ProcessID

	h.evm.ReceiptStatus = 0
	p, err := h.svc.GetProcess(ctx, processID)
	assert.NoError(t, err)
	second, err := h.svc.SubmitProcessStep(ctx, processID, p.CombineInfo, 2, evmTransfer(from))
	assert.NoError(t, err)
	failed := wait(t, h, second.ID)
	assert.Equal(t, failed.Status, models.TxStatusFail)

	p, err = h.svc.GetProcess(ctx, processID)
	assert.NoError(t, err)
	assert.Equal(t, p.Status, models.ProcessStatusFailed)
	assert.DeepEqual(t, stepStatuses(p), []models.StepStatus{
		models.StepStatusComplete,
		models.StepStatusFailed,
		models.StepStatusCancelled,
	})
	assert.Equal(t, len(h.svc.ListAliveProcesses()), 0)

	_, err = h.svc.SubmitProcessStep(ctx, processID, p.CombineInfo, 3, evmTransfer(from))
	assert.Equal(t, errorType(err), models.ErrInvalidParams)
}

func TestProcessFirstStepRejectedIsDeleted(t *testing.T) {
	h := newHarness(t, transaction.Config{Timeout: 5 * time.Second})
	_, from := newKey(t)
	h.confirms.Handler = func(chain.ConfirmationRequest) (*chain.ConfirmationResult, error) {
		return &chain.ConfirmationResult{IsApproved: false}, nil
	}
	ctx := context.Background()

	tx, err := h.svc.SubmitProcessStep(ctx, "", threeStepInfo(from), models.FirstStepID, evmTransfer(from))
	assert.NoError(t, err)
	waitCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	_, err = h.svc.Wait(waitCtx, tx.ID)
	assert.That(t, errors.Is(err, transaction.ErrTransactionNotFound))

	_, err = h.svc.GetProcess(ctx, tx.Step.ProcessID)
	assert.That(t, errors.Is(err, transaction.ErrProcessNotFound))
	assert.Equal(t, len(h.svc.ListAliveProcesses()), 0)
}

func TestNewProcessStartsAtFirstStep(t *testing.T) {
	h := newHarness(t, transaction.Config{})
	_, from := newKey(t)

	_, err := h.svc.SubmitProcessStep(context.Background(), "", threeStepInfo(from), 2, evmTransfer(from))
	assert.Equal(t, errorType(err), models.ErrInvalidParams)

	_, err = h.svc.SubmitProcessStep(context.Background(), "missing", threeStepInfo(from), 2, evmTransfer(from))
	assert.That(t, errors.Is(err, transaction.ErrProcessNotFound))
}

func TestProcessStepInFlightIsDuplicate(t *testing.T) {
	h := newHarness(t, transaction.Config{Timeout: 5 * time.Second})
	_, from := newKey(t)
	ctx := context.Background()

	tx, err := h.svc.SubmitProcessStep(ctx, "", threeStepInfo(from), models.FirstStepID, evmTransfer(from))
	assert.NoError(t, err)

	// the confirmation never answers, so the step stays in flight
	deadline := time.Now().Add(5 * time.Second)
	for {
		p, err := h.svc.GetProcess(ctx, tx.Step.ProcessID)
		assert.NoError(t, err)
		if p.Steps[0].Status == models.StepStatusSubmitting {
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("step never started submitting")
		}
		time.Sleep(5 * time.Millisecond)
	}

	_, err = h.svc.SubmitProcessStep(ctx, tx.Step.ProcessID, threeStepInfo(from), models.FirstStepID, evmTransfer(from))
	assert.Equal(t, errorType(err), models.ErrDuplicateTransaction)
}

func TestReconcileTimedOutStep(t *testing.T) {
	h := newHarness(t, transaction.Config{})
	ctx := context.Background()
	now := time.Now()

	p := models.NewSwapProcess("p-1", threeStepInfo("0x000000000000000000000000000000000000dEaD"), now)
	p.Status = models.ProcessStatusTimeout
	p.Steps[0].Status = models.StepStatusTimeout
	p.Steps[0].TransactionID = "tx-1"
	assert.NoError(t, h.db.UpsertProcessTransaction(ctx, p))
	assert.NoError(t, h.db.InsertHistories(ctx, []*models.HistoryItem{{
		TransactionID: "tx-1",
		Chain:         "ethereum",
		ExtrinsicHash: "0xfeed",
		Status:        models.TxStatusSuccess,
		Time:          now,
	}}))

	got, err := h.svc.ReconcileProcess(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, got.Status, models.ProcessStatusProcessing)
	assert.Equal(t, got.CurrentStepID, 2)
	assert.Equal(t, got.Steps[0].ExtrinsicHash, "0xfeed")
	assert.DeepEqual(t, stepStatuses(got), []models.StepStatus{
		models.StepStatusComplete,
		models.StepStatusPrepare,
		models.StepStatusQueued,
	})

	alive, err := h.svc.GetProcess(ctx, "p-1")
	assert.NoError(t, err)
	assert.Equal(t, alive.Status, models.ProcessStatusProcessing)
}

func TestRecoverMarksInFlightStepsTimedOut(t *testing.T) {
	h := newHarness(t, transaction.Config{})
	ctx := context.Background()
	now := time.Now()

	inFlight := models.NewSwapProcess("p-2", threeStepInfo("0x000000000000000000000000000000000000dEaD"), now)
	inFlight.Status = models.ProcessStatusProcessing
	inFlight.Steps[0].Status = models.StepStatusProcessing
	assert.NoError(t, h.db.UpsertProcessTransaction(ctx, inFlight))

	finished := models.NewSwapProcess("p-3", threeStepInfo("0x000000000000000000000000000000000000dEaD"), now)
	finished.Status = models.ProcessStatusComplete
	assert.NoError(t, h.db.UpsertProcessTransaction(ctx, finished))

	n, err := h.svc.RecoverProcesses(ctx)
	assert.NoError(t, err)
	assert.Equal(t, n, 1)

	alive := h.svc.ListAliveProcesses()
	assert.Equal(t, len(alive), 1)
	assert.Equal(t, alive[0].ID, "p-2")
	assert.Equal(t, alive[0].Status, models.ProcessStatusTimeout)
	assert.Equal(t, alive[0].Steps[0].Status, models.StepStatusTimeout)
}
