package transaction

import (
	"context"
	"fmt"
	"strings"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/metrics"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// emit records ev on the transaction and publishes it. Events out of order are dropped.
func (s *Service) emit(r *runner, ev Event) bool {
	r.mu.Lock()
	defer r.mu.Unlock()

	ev.TransactionID = r.id
	ev.Time = s.deps.Now()
	if !r.life.accept(ev) {
		log.Debug().Str("transaction", r.id).Str("event", string(ev.Type)).Msg("Dropped out of order event")
		return false
	}
	if ev.Type == EventExtrinsicHash || ev.Type == EventSuccess {
		ev.ExtrinsicHash = r.life.hash
	}

	switch ev.Type {
	case EventSend:
		s.armTimeout(r)
	case EventSuccess, EventError:
		r.stopTimer()
	}

	s.apply(r, ev)
	s.publish(ev)
	return true
}

func (s *Service) onTimeout(r *runner) {
	if !s.emit(r, Event{Type: EventTimeout}) {
		return
	}
	if r.data.ErrorOnTimeout {
		s.emit(r, Event{Type: EventError, Errors: []*models.TransactionError{models.NewTransactionError(models.ErrTimeout, "")}})
		r.cancel()
	}
}

// apply turns an accepted event into the transaction, history, process and notification updates
func (s *Service) apply(r *runner, ev Event) {
	ctx := context.WithoutCancel(r.ctx)

	if isRejection(ev) {
		s.txs.Update(func(m map[string]*models.Transaction) map[string]*models.Transaction {
			delete(m, r.id)
			return m
		})
		log.Info().Str("transaction", r.id).Msg("Transaction rejected by user")
		s.propagate(ctx, r, models.StepStatusFailed, "")
		return
	}

	switch ev.Type {
	case EventExtrinsicHash:
		hash := ev.ExtrinsicHash
		tx := s.updateTx(r.id, func(t *models.Transaction) {
			t.ExtrinsicHash = hash
			if models.CanTransition(t.Status, models.TxStatusProcessing) {
				t.Status = models.TxStatusProcessing
			}
		})
		if tx == nil {
			return
		}
		status := tx.Status
		s.patchHistory(ctx, r.id, models.HistoryPatch{ExtrinsicHash: &hash, Status: &status})
		log.Info().Str("transaction", r.id).Str("hash", hash).Msg("Transaction sent")
		if status == models.TxStatusProcessing {
			s.propagate(ctx, r, models.StepStatusProcessing, hash)
		}

	case EventSuccess:
		s.finish(ctx, r, models.TxStatusSuccess, nil)

	case EventError:
		s.finish(ctx, r, models.TxStatusFail, ev.Errors)

	case EventTimeout:
		s.finish(ctx, r, models.TxStatusTimeout, nil)
	}
}

// finish moves the transaction to a SUCCESS, FAIL or TIMEOUT status
func (s *Service) finish(ctx context.Context, r *runner, status models.TransactionStatus, errs []*models.TransactionError) {
	var from models.TransactionStatus
	tx := s.updateTx(r.id, func(t *models.Transaction) {
		from = t.Status
		if !models.CanTransition(t.Status, status) {
			return
		}
		t.Status = status
		t.Errors = append(t.Errors, errs...)
	})
	if tx == nil || tx.Status != status {
		log.Warn().
			Str("transaction", r.id).
			Str("from", string(from)).
			Str("to", string(status)).
			Msg("Illegal transaction status change")
		return
	}

	patch := models.HistoryPatch{Status: &status}
	if len(errs) > 0 {
		msg := errs[0].Message
		patch.ErrorMessage = &msg
	}
	s.patchHistory(ctx, r.id, patch)
	metrics.Transactions.WithLabelValues(string(tx.ChainType), string(status)).Inc()
	s.notify(ctx, tx)

	event := log.Info()
	if status != models.TxStatusSuccess {
		event = log.Warn()
		if len(errs) > 0 {
			event = event.Str("error", errs[0].Error())
		}
	}
	event.Str("transaction", r.id).Str("chain", tx.Chain).Str("hash", tx.ExtrinsicHash).Str("status", string(status)).Msg("Transaction resolved")

	var step models.StepStatus
	switch status {
	case models.TxStatusSuccess:
		step = models.StepStatusComplete
	case models.TxStatusFail:
		step = models.StepStatusFailed
	default:
		step = models.StepStatusTimeout
	}
	s.propagate(ctx, r, step, tx.ExtrinsicHash)
}

// updateStatus moves the transaction to status when the change is legal
func (s *Service) updateStatus(r *runner, status models.TransactionStatus) {
	tx := s.updateTx(r.id, func(t *models.Transaction) {
		if models.CanTransition(t.Status, status) {
			t.Status = status
		}
	})
	if tx != nil && tx.Status == models.TxStatusSubmitting {
		s.propagate(context.WithoutCancel(r.ctx), r, models.StepStatusSubmitting, "")
	}
}

// updateTx applies f to the stored transaction and returns a snapshot, nil when it is gone
func (s *Service) updateTx(id string, f func(*models.Transaction)) *models.Transaction {
	var out *models.Transaction
	s.txs.Update(func(m map[string]*models.Transaction) map[string]*models.Transaction {
		t, ok := m[id]
		if !ok {
			return m
		}
		f(t)
		t.UpdatedAt = s.deps.Now()
		out = t.Clone()
		return m
	})
	return out
}

func (s *Service) insertHistory(ctx context.Context, item *models.HistoryItem) {
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.InsertHistories(ctx, []*models.HistoryItem{item}); err != nil {
		log.Error().Err(err).Str("transaction", item.TransactionID).Msg("Failed to insert history")
	}
}

func (s *Service) patchHistory(ctx context.Context, id string, patch models.HistoryPatch) {
	if s.deps.History == nil {
		return
	}
	if err := s.deps.History.UpdateHistoryByTransactionID(ctx, id, patch); err != nil {
		log.Error().Err(err).Str("transaction", id).Msg("Failed to update history")
	}
}

var notificationTitles = map[models.TransactionStatus]string{
	models.TxStatusSuccess: "Transaction completed",
	models.TxStatusFail:    "Transaction failed",
	models.TxStatusTimeout: "Transaction timed out",
}

func (s *Service) notify(ctx context.Context, tx *models.Transaction) {
	if s.deps.Notifier == nil {
		return
	}
	chainName := tx.Chain
	var link string
	if info, err := s.deps.Registry.GetChainInfoByKey(tx.Chain); err == nil {
		chainName = info.Name
		if tx.ExtrinsicType != models.ExtrinsicTokenPermit {
			link = ExplorerLink(info, tx.ExtrinsicHash)
		}
	}
	msg := fmt.Sprintf("%s on %s", tx.ExtrinsicType, chainName)
	if tx.Status == models.TxStatusFail && len(tx.Errors) > 0 {
		msg = fmt.Sprintf("%s: %s", msg, tx.Errors[len(tx.Errors)-1].Message)
	}
	s.deps.Notifier.Notify(ctx, models.Notification{
		Title:   notificationTitles[tx.Status],
		Message: msg,
		Status:  tx.Status,
		Link:    link,
	})
}

// ExplorerLink is the explorer page of a transaction, empty when the chain has no explorer
func ExplorerLink(info *models.ChainInfo, hash string) string {
	if info.ExplorerURL == "" || hash == "" {
		return ""
	}
	base := strings.TrimRight(info.ExplorerURL, "/")
	switch info.ChainType {
	case models.ChainTypeEvm:
		return base + "/tx/" + hash
	case models.ChainTypeSubstrate:
		return base + "/extrinsic/" + hash
	default:
		return base + "/transaction/" + hash
	}
}
