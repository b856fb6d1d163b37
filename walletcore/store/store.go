// Package store persists processes and transaction history and exposes observable in-memory state.
package store

import (
	"context"
	"errors"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

// ErrNotFound is returned when a record does not exist
var ErrNotFound = errors.New("record not found")

// ProcessStore persists multi step processes
type ProcessStore interface {
	UpsertProcessTransaction(ctx context.Context, process *models.ProcessTransaction) error
	GetProcessTransactionByID(ctx context.Context, id string) (*models.ProcessTransaction, error)
	DeleteProcessTransactionByID(ctx context.Context, id string) error
	ListProcessTransactions(ctx context.Context) ([]*models.ProcessTransaction, error)
}

// HistoryStore persists transaction history
type HistoryStore interface {
	InsertHistories(ctx context.Context, items []*models.HistoryItem) error
	UpdateHistoryByTransactionID(ctx context.Context, transactionID string, patch models.HistoryPatch) error
	UpdateHistoryByExtrinsicHash(ctx context.Context, chain, extrinsicHash string, patch models.HistoryPatch) error
	GetHistoryByExtrinsicHash(ctx context.Context, chain, extrinsicHash string) (*models.HistoryItem, error)
	GetHistoryByTransactionID(ctx context.Context, transactionID string) (*models.HistoryItem, error)
}
