package store_test

import (
	"context"
	"errors"
	"path/filepath"
	"testing"
	"time"

	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/store"
)

func openDB(t *testing.T) *store.BoltDB {
	t.Helper()
	db, err := store.NewBoltDB(filepath.Join(t.TempDir(), "wallet.db"))
	assert.NoError(t, err)
	t.Cleanup(func() { db.Close() })
	return db
}

func TestProcessRoundTrip(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	info := models.SwapCombineInfo{
		Process: *models.NewOptimalSwapPath([]models.DynamicSwapAction{
			{Action: models.ActionSwap, Pair: models.NewSwapPair("a", "b")},
		}),
		Address: "0xabc",
	}
	info.Process.AddStep(models.StepDetail{Name: "Swap", Type: models.StepSwap, Metadata: models.SwapMetadata{
		TransferMetadata: models.TransferMetadata{
			OriginTokenInfo:      models.Asset{Slug: "a"},
			DestinationTokenInfo: models.Asset{Slug: "b"},
			Version:              2,
		},
		ProviderID: "UNISWAP",
	}}, models.SwapFeeInfo{DefaultFeeToken: "eth"})

	process := models.NewSwapProcess("p1", info, time.Unix(100, 0).UTC())
	assert.NoError(t, db.UpsertProcessTransaction(ctx, process))

	got, err := db.GetProcessTransactionByID(ctx, "p1")
	assert.NoError(t, err)
	assert.Equal(t, got.ID, "p1")
	assert.Equal(t, len(got.Steps), 1)
	assert.Equal(t, got.Steps[0].Status, models.StepStatusPrepare)

	step, _, ok := got.CombineInfo.Process.StepByID(1)
	assert.True(t, ok)
	meta, ok := step.Metadata.(models.SwapMetadata)
	assert.True(t, ok)
	assert.Equal(t, meta.ProviderID, "UNISWAP")
	assert.NoError(t, got.CombineInfo.Process.CheckConsistency())

	all, err := db.ListProcessTransactions(ctx)
	assert.NoError(t, err)
	assert.Equal(t, len(all), 1)

	assert.NoError(t, db.DeleteProcessTransactionByID(ctx, "p1"))
	_, err = db.GetProcessTransactionByID(ctx, "p1")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestHistoryKeyedByExtrinsicHash(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	assert.NoError(t, db.InsertHistories(ctx, []*models.HistoryItem{{
		TransactionID: "tx1",
		Chain:         "ethereum",
		Status:        models.TxStatusQueued,
	}}))

	_, err := db.GetHistoryByExtrinsicHash(ctx, "ethereum", "0x01")
	assert.True(t, errors.Is(err, store.ErrNotFound))

	hash := "0x01"
	processing := models.TxStatusProcessing
	assert.NoError(t, db.UpdateHistoryByTransactionID(ctx, "tx1", models.HistoryPatch{ExtrinsicHash: &hash, Status: &processing}))

	success := models.TxStatusSuccess
	assert.NoError(t, db.UpdateHistoryByExtrinsicHash(ctx, "ethereum", "0x01", models.HistoryPatch{Status: &success}))

	item, err := db.GetHistoryByExtrinsicHash(ctx, "ethereum", "0x01")
	assert.NoError(t, err)
	assert.Equal(t, item.TransactionID, "tx1")
	assert.Equal(t, item.Status, models.TxStatusSuccess)

	// a hash on another chain is a different key
	_, err = db.GetHistoryByExtrinsicHash(ctx, "base_mainnet", "0x01")
	assert.True(t, errors.Is(err, store.ErrNotFound))
}

func TestHistoryRehash(t *testing.T) {
	db := openDB(t)
	ctx := context.Background()

	assert.NoError(t, db.InsertHistories(ctx, []*models.HistoryItem{{
		TransactionID: "tx1",
		Chain:         "ton",
		ExtrinsicHash: "msg-hash",
	}}))

	final := "tx-hash"
	assert.NoError(t, db.UpdateHistoryByExtrinsicHash(ctx, "ton", "msg-hash", models.HistoryPatch{ExtrinsicHash: &final}))

	_, err := db.GetHistoryByExtrinsicHash(ctx, "ton", "msg-hash")
	assert.True(t, errors.Is(err, store.ErrNotFound))
	item, err := db.GetHistoryByExtrinsicHash(ctx, "ton", "tx-hash")
	assert.NoError(t, err)
	assert.Equal(t, item.TransactionID, "tx1")
}

func TestBackup(t *testing.T) {
	db := openDB(t)
	assert.NoError(t, db.Backup())
	backup, err := store.NewBoltDB(filepath.Join(filepath.Dir(db.Path()), "backup", "wallet.db"))
	assert.NoError(t, err)
	assert.NoError(t, backup.Close())
}
