package store

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/rs/zerolog"
	"go.etcd.io/bbolt"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
)

var (
	processesBucket   = []byte("processes")
	historiesBucket   = []byte("histories")
	historyHashBucket = []byte("history_hash") // chain|extrinsicHash -> transaction id
	backupDir         = "backup"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "store").Logger()
}

type txFunc func(func(*bbolt.Tx) error) error

type bucketFunc func(*bbolt.Bucket) error

// BoltDB is the bbolt backed process and history store.
type BoltDB struct {
	*bbolt.DB
	now func() time.Time
}

var (
	_ ProcessStore = (*BoltDB)(nil)
	_ HistoryStore = (*BoltDB)(nil)
)

// NewBoltDB opens or creates the database at dbPath
func NewBoltDB(dbPath string) (*BoltDB, error) {
	if err := os.MkdirAll(filepath.Dir(dbPath), 0700); err != nil {
		return nil, fmt.Errorf("failed to create database directory: %w", err)
	}
	db, err := bbolt.Open(dbPath, 0600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, err
	}

	bdb := &BoltDB{DB: db, now: time.Now}
	if err := bdb.makeTopLevelBuckets([][]byte{processesBucket, historiesBucket, historyHashBucket}); err != nil {
		db.Close()
		return nil, err
	}
	return bdb, nil
}

// Run waits for context cancellation, backs up and closes the database.
func (db *BoltDB) Run(ctx context.Context) {
	<-ctx.Done()
	if err := db.Backup(); err != nil {
		log.Error().Err(err).Msg("unable to backup database")
	}
	db.Close()
}

// UpsertProcessTransaction writes the whole process record
func (db *BoltDB) UpsertProcessTransaction(_ context.Context, process *models.ProcessTransaction) error {
	if process.ID == "" {
		return fmt.Errorf("cannot store process with empty id")
	}
	b, err := json.Marshal(process)
	if err != nil {
		return fmt.Errorf("failed to encode process %s: %w", process.ID, err)
	}
	return db.withBucket(processesBucket, db.Update, func(bkt *bbolt.Bucket) error {
		return bkt.Put([]byte(process.ID), b)
	})
}

// GetProcessTransactionByID loads one process
func (db *BoltDB) GetProcessTransactionByID(_ context.Context, id string) (*models.ProcessTransaction, error) {
	var process *models.ProcessTransaction
	err := db.withBucket(processesBucket, db.View, func(bkt *bbolt.Bucket) error {
		v := bkt.Get([]byte(id))
		if v == nil {
			return fmt.Errorf("process %s: %w", id, ErrNotFound)
		}
		process = new(models.ProcessTransaction)
		return json.Unmarshal(v, process)
	})
	return process, err
}

// DeleteProcessTransactionByID removes one process, missing ids are not an error
func (db *BoltDB) DeleteProcessTransactionByID(_ context.Context, id string) error {
	return db.withBucket(processesBucket, db.Update, func(bkt *bbolt.Bucket) error {
		return bkt.Delete([]byte(id))
	})
}

// ListProcessTransactions loads every stored process
func (db *BoltDB) ListProcessTransactions(_ context.Context) ([]*models.ProcessTransaction, error) {
	var processes []*models.ProcessTransaction
	err := db.withBucket(processesBucket, db.View, func(bkt *bbolt.Bucket) error {
		return bkt.ForEach(func(k, v []byte) error {
			p := new(models.ProcessTransaction)
			if err := json.Unmarshal(v, p); err != nil {
				return fmt.Errorf("failed to decode process %s: %w", string(k), err)
			}
			processes = append(processes, p)
			return nil
		})
	})
	return processes, err
}

// InsertHistories appends history items, indexing the ones that already carry a hash
func (db *BoltDB) InsertHistories(_ context.Context, items []*models.HistoryItem) error {
	return db.Update(func(tx *bbolt.Tx) error {
		histories, index := tx.Bucket(historiesBucket), tx.Bucket(historyHashBucket)
		for _, item := range items {
			if item.TransactionID == "" {
				return fmt.Errorf("cannot store history with empty transaction id")
			}
			b, err := json.Marshal(item)
			if err != nil {
				return err
			}
			if err := histories.Put([]byte(item.TransactionID), b); err != nil {
				return err
			}
			if item.ExtrinsicHash == "" {
				continue
			}
			if err := index.Put(hashKey(item.Chain, item.ExtrinsicHash), []byte(item.TransactionID)); err != nil {
				return err
			}
		}
		return nil
	})
}

// UpdateHistoryByTransactionID patches a history item, re-indexing it when the hash changes
func (db *BoltDB) UpdateHistoryByTransactionID(_ context.Context, transactionID string, patch models.HistoryPatch) error {
	return db.Update(func(tx *bbolt.Tx) error {
		return db.patchHistory(tx, []byte(transactionID), patch)
	})
}

// UpdateHistoryByExtrinsicHash patches the history item known under an extrinsic hash
func (db *BoltDB) UpdateHistoryByExtrinsicHash(_ context.Context, chain, extrinsicHash string, patch models.HistoryPatch) error {
	return db.Update(func(tx *bbolt.Tx) error {
		id := tx.Bucket(historyHashBucket).Get(hashKey(chain, extrinsicHash))
		if id == nil {
			return fmt.Errorf("history %s on %s: %w", extrinsicHash, chain, ErrNotFound)
		}
		return db.patchHistory(tx, id, patch)
	})
}

func (db *BoltDB) patchHistory(tx *bbolt.Tx, id []byte, patch models.HistoryPatch) error {
	histories := tx.Bucket(historiesBucket)
	v := histories.Get(id)
	if v == nil {
		return fmt.Errorf("history %s: %w", string(id), ErrNotFound)
	}
	item := new(models.HistoryItem)
	if err := json.Unmarshal(v, item); err != nil {
		return err
	}
	oldHash := item.ExtrinsicHash
	patch.Apply(item, db.now())

	b, err := json.Marshal(item)
	if err != nil {
		return err
	}
	if err := histories.Put(id, b); err != nil {
		return err
	}
	if item.ExtrinsicHash == oldHash || item.ExtrinsicHash == "" {
		return nil
	}

	index := tx.Bucket(historyHashBucket)
	if oldHash != "" {
		if err := index.Delete(hashKey(item.Chain, oldHash)); err != nil {
			return err
		}
	}
	return index.Put(hashKey(item.Chain, item.ExtrinsicHash), id)
}

// GetHistoryByExtrinsicHash loads the history item of a chain transaction
func (db *BoltDB) GetHistoryByExtrinsicHash(_ context.Context, chain, extrinsicHash string) (*models.HistoryItem, error) {
	var item *models.HistoryItem
	err := db.View(func(tx *bbolt.Tx) error {
		id := tx.Bucket(historyHashBucket).Get(hashKey(chain, extrinsicHash))
		if id == nil {
			return fmt.Errorf("history %s on %s: %w", extrinsicHash, chain, ErrNotFound)
		}
		var err error
		item, err = getHistory(tx, id)
		return err
	})
	return item, err
}

// GetHistoryByTransactionID loads the history item of a transaction
func (db *BoltDB) GetHistoryByTransactionID(_ context.Context, transactionID string) (*models.HistoryItem, error) {
	var item *models.HistoryItem
	err := db.View(func(tx *bbolt.Tx) error {
		var err error
		item, err = getHistory(tx, []byte(transactionID))
		return err
	})
	return item, err
}

func getHistory(tx *bbolt.Tx, id []byte) (*models.HistoryItem, error) {
	v := tx.Bucket(historiesBucket).Get(id)
	if v == nil {
		return nil, fmt.Errorf("history %s: %w", string(id), ErrNotFound)
	}
	item := new(models.HistoryItem)
	return item, json.Unmarshal(v, item)
}

func hashKey(chain, hash string) []byte {
	return []byte(chain + "|" + hash)
}

// makeTopLevelBuckets creates the top level buckets that do not exist yet.
func (db *BoltDB) makeTopLevelBuckets(buckets [][]byte) error {
	return db.Update(func(tx *bbolt.Tx) error {
		for _, bucket := range buckets {
			if _, err := tx.CreateBucketIfNotExists(bucket); err != nil {
				return err
			}
		}
		return nil
	})
}

// withBucket opens a view into a top level bucket. The viewer is db.View or db.Update.
func (db *BoltDB) withBucket(bkt []byte, viewer txFunc, f bucketFunc) error {
	return viewer(func(tx *bbolt.Tx) error {
		bucket := tx.Bucket(bkt)
		if bucket == nil {
			return fmt.Errorf("failed to open %s bucket", string(bkt))
		}
		return f(bucket)
	})
}

// Backup copies the database into the backup directory next to it.
func (db *BoltDB) Backup() error {
	dir := filepath.Join(filepath.Dir(db.Path()), backupDir)
	if err := os.MkdirAll(dir, 0700); err != nil {
		return fmt.Errorf("unable to create backup directory: %w", err)
	}
	path := filepath.Join(dir, filepath.Base(db.Path()))
	return db.View(func(tx *bbolt.Tx) error {
		return tx.CopyFile(path, 0600)
	})
}
