package transaction

import (
	"context"
	"errors"
	"fmt"
	"sort"

	"github.com/google/uuid"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/metrics"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/store"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

// SubmitProcessStep sends step stepID of a process. An empty processID starts a new process from
// info, which must begin at the first step. The process is persisted before the transaction runs.
func (s *Service) SubmitProcessStep(ctx context.Context, processID string, info models.SwapCombineInfo, stepID int, data *handler.SubmitStepData) (*models.Transaction, error) {
	s.procMu.Lock()

	var p *models.ProcessTransaction
	if processID == "" {
		if stepID != models.FirstStepID {
			s.procMu.Unlock()
			return nil, invalid("a new process starts at step %d, not %d", models.FirstStepID, stepID)
		}
		p = models.NewSwapProcess(uuid.NewString(), info, s.deps.Now())
	} else {
		var err error
		p, err = s.loadProcess(ctx, processID)
		if err != nil {
			s.procMu.Unlock()
			return nil, err
		}
		if p.Status.IsTerminal() {
			s.procMu.Unlock()
			return nil, invalid("process %s is %s", p.ID, p.Status)
		}
		if p.CurrentStepID != stepID {
			s.procMu.Unlock()
			return nil, invalid("step %d is not the current step %d of process %s", stepID, p.CurrentStepID, p.ID)
		}
	}

	step := p.Step(stepID)
	if step == nil {
		s.procMu.Unlock()
		return nil, invalid("process %s has no step %d", p.ID, stepID)
	}
	if step.Status == models.StepStatusSubmitting || step.Status == models.StepStatusProcessing {
		s.procMu.Unlock()
		return nil, models.NewTransactionError(models.ErrDuplicateTransaction, "")
	}

	r, tx, err := s.enqueue(ctx, data, &models.TransactionStepRef{ProcessID: p.ID, StepID: stepID})
	if err != nil {
		s.procMu.Unlock()
		return nil, err
	}

	step.Status = models.StepStatusPrepare
	step.TransactionID = tx.ID
	step.Chain = tx.Chain
	p.LastTransactionID = tx.ID
	p.LastTransactionChain = tx.Chain
	p.UpdatedAt = s.deps.Now()
	s.setProcessStatus(p, models.ProcessStatusProcessing)
	if err := s.saveProcess(ctx, p); err != nil {
		s.procMu.Unlock()
		s.drop(r)
		return nil, err
	}
	s.procMu.Unlock()

	log.Info().Str("process", p.ID).Int("step", stepID).Str("transaction", tx.ID).Msg("Process step submitted")
	s.launch(r)
	return tx, nil
}

// GetProcess returns an alive process or, failing that, the stored one
func (s *Service) GetProcess(ctx context.Context, id string) (*models.ProcessTransaction, error) {
	if p, ok := s.processes.Value()[id]; ok {
		return p, nil
	}
	return s.storedProcess(ctx, id)
}

// ListAliveProcesses returns the unfinished processes, oldest first
func (s *Service) ListAliveProcesses() []*models.ProcessTransaction {
	alive := s.processes.Value()
	out := make([]*models.ProcessTransaction, 0, len(alive))
	for _, p := range alive {
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}

func (s *Service) storedProcess(ctx context.Context, id string) (*models.ProcessTransaction, error) {
	if s.deps.Processes == nil {
		return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
	}
	p, err := s.deps.Processes.GetProcessTransactionByID(ctx, id)
	if err != nil {
		if errors.Is(err, store.ErrNotFound) {
			return nil, fmt.Errorf("%w: %s", ErrProcessNotFound, id)
		}
		return nil, err
	}
	return p, nil
}

// loadProcess returns a private copy to mutate. Callers hold procMu.
func (s *Service) loadProcess(ctx context.Context, id string) (*models.ProcessTransaction, error) {
	if p, ok := s.processes.Value()[id]; ok {
		return p, nil
	}
	return s.storedProcess(ctx, id)
}

// saveProcess writes the process through to storage and mirrors it in the alive map
func (s *Service) saveProcess(ctx context.Context, p *models.ProcessTransaction) error {
	if s.deps.Processes != nil {
		if err := s.deps.Processes.UpsertProcessTransaction(ctx, p); err != nil {
			return fmt.Errorf("save process %s: %w", p.ID, err)
		}
	}
	snapshot := p.Clone()
	s.processes.Update(func(m map[string]*models.ProcessTransaction) map[string]*models.ProcessTransaction {
		if snapshot.Status.IsTerminal() {
			delete(m, snapshot.ID)
		} else {
			m[snapshot.ID] = snapshot
		}
		return m
	})
	return nil
}

func (s *Service) deleteProcess(ctx context.Context, id string) {
	if s.deps.Processes != nil {
		if err := s.deps.Processes.DeleteProcessTransactionByID(ctx, id); err != nil {
			log.Error().Err(err).Str("process", id).Msg("Failed to delete process")
		}
	}
	s.processes.Update(func(m map[string]*models.ProcessTransaction) map[string]*models.ProcessTransaction {
		delete(m, id)
		return m
	})
}

func (s *Service) setProcessStatus(p *models.ProcessTransaction, status models.ProcessStatus) {
	if p.Status == status {
		return
	}
	log.Info().Str("process", p.ID).Str("from", string(p.Status)).Str("to", string(status)).Msg("Process status changed")
	p.Status = status
	metrics.ProcessTransitions.WithLabelValues(string(status)).Inc()
}

// propagate moves the process step of the transaction to status
func (s *Service) propagate(ctx context.Context, r *runner, status models.StepStatus, hash string) {
	if r.step == nil {
		return
	}
	s.procMu.Lock()
	defer s.procMu.Unlock()

	p, err := s.loadProcess(ctx, r.step.ProcessID)
	if err != nil {
		log.Error().Err(err).Str("process", r.step.ProcessID).Msg("Cannot update process step")
		return
	}
	step := p.Step(r.step.StepID)
	if step == nil || step.TransactionID != r.id {
		log.Warn().Str("process", p.ID).Int("step", r.step.StepID).Str("transaction", r.id).Msg("Transaction does not own the process step")
		return
	}
	if hash != "" {
		step.ExtrinsicHash = hash
	}
	if deleted := s.applyStepStatus(ctx, p, r.step.StepID, status); deleted {
		return
	}
	if err := s.saveProcess(ctx, p); err != nil {
		log.Error().Err(err).Str("process", p.ID).Msg("Failed to persist process")
	}
}

// applyStepStatus sets the status of a step and recomputes the process. A COMPLETE step hands over to
// the next step, a FAILED step cancels the steps after it. A failed first step deletes the process,
// which is reported by the return value.
func (s *Service) applyStepStatus(ctx context.Context, p *models.ProcessTransaction, stepID int, status models.StepStatus) bool {
	step := p.Step(stepID)
	step.Status = status
	p.UpdatedAt = s.deps.Now()

	switch status {
	case models.StepStatusComplete:
		for i := range p.Steps {
			if p.Steps[i].ID > stepID {
				p.Steps[i].Status = models.StepStatusPrepare
				p.CurrentStepID = p.Steps[i].ID
				break
			}
		}
	case models.StepStatusFailed:
		if stepID == models.FirstStepID {
			log.Info().Str("process", p.ID).Msg("First step failed, deleting process")
			s.deleteProcess(ctx, p.ID)
			metrics.ProcessTransitions.WithLabelValues(string(models.ProcessStatusFailed)).Inc()
			return true
		}
		for i := range p.Steps {
			if p.Steps[i].ID > stepID {
				p.Steps[i].Status = models.StepStatusCancelled
			}
		}
	}
	s.setProcessStatus(p, aggregate(p))
	return false
}

// aggregate derives the process status from its steps
func aggregate(p *models.ProcessTransaction) models.ProcessStatus {
	complete, timedOut := true, false
	for _, st := range p.Steps {
		switch st.Status {
		case models.StepStatusFailed:
			return models.ProcessStatusFailed
		case models.StepStatusTimeout:
			timedOut = true
		}
		if st.Status != models.StepStatusComplete {
			complete = false
		}
	}
	switch {
	case complete:
		return models.ProcessStatusComplete
	case timedOut:
		return models.ProcessStatusTimeout
	default:
		return models.ProcessStatusProcessing
	}
}

// ReconcileProcess resolves the timed out steps of a stored process from the transaction history
func (s *Service) ReconcileProcess(ctx context.Context, id string) (*models.ProcessTransaction, error) {
	s.procMu.Lock()
	defer s.procMu.Unlock()

	p, err := s.storedProcess(ctx, id)
	if err != nil {
		return nil, err
	}
	if p.Status != models.ProcessStatusTimeout {
		return p, nil
	}
	if s.deps.History == nil {
		return p, nil
	}

	for _, st := range p.Steps {
		if st.Status != models.StepStatusTimeout || st.TransactionID == "" {
			continue
		}
		item, err := s.deps.History.GetHistoryByTransactionID(ctx, st.TransactionID)
		if err != nil {
			log.Warn().Err(err).Str("process", p.ID).Int("step", st.ID).Msg("No history for timed out step")
			continue
		}
		var status models.StepStatus
		switch item.Status {
		case models.TxStatusSuccess:
			status = models.StepStatusComplete
		case models.TxStatusFail:
			status = models.StepStatusFailed
		default:
			continue
		}
		if item.ExtrinsicHash != "" {
			p.Step(st.ID).ExtrinsicHash = item.ExtrinsicHash
		}
		log.Info().Str("process", p.ID).Int("step", st.ID).Str("status", string(status)).Msg("Reconciled timed out step")
		if deleted := s.applyStepStatus(ctx, p, st.ID, status); deleted {
			return p, nil
		}
	}
	if err := s.saveProcess(ctx, p); err != nil {
		return nil, err
	}
	return p, nil
}

// RecoverProcesses loads the unfinished stored processes into the alive map. Steps that were in
// flight when the service went down cannot be watched anymore and are marked TIMEOUT.
func (s *Service) RecoverProcesses(ctx context.Context) (int, error) {
	if s.deps.Processes == nil {
		return 0, nil
	}
	stored, err := s.deps.Processes.ListProcessTransactions(ctx)
	if err != nil {
		return 0, err
	}

	s.procMu.Lock()
	defer s.procMu.Unlock()
	n := 0
	for _, p := range stored {
		if p.Status.IsTerminal() {
			continue
		}
		changed := false
		for i := range p.Steps {
			st := &p.Steps[i]
			if st.Status == models.StepStatusSubmitting || st.Status == models.StepStatusProcessing {
				st.Status = models.StepStatusTimeout
				changed = true
			}
		}
		if changed {
			s.setProcessStatus(p, aggregate(p))
			p.UpdatedAt = s.deps.Now()
		}
		if err := s.saveProcess(ctx, p); err != nil {
			return n, err
		}
		n++
	}
	return n, nil
}
