// Package confirmation keeps the requests waiting for the user. Callers block in AddConfirmation
// until the UI resolves the request through Resolve.
package confirmation

import (
	"context"
	"errors"
	"os"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
)

var log zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "confirmation").Logger()
}

var (
	ErrNotFound  = errors.New("confirmation not found")
	ErrDuplicate = errors.New("confirmation already pending")
)

// Pending is a request waiting for an answer
type Pending struct {
	chain.ConfirmationRequest
	CreatedAt time.Time `json:"created_at"`
}

type entry struct {
	pending Pending
	result  chan *chain.ConfirmationResult
}

// Queue implements chain.ConfirmationService
type Queue struct {
	mu      sync.Mutex
	entries map[string]*entry
	// OnAdded is called for every new request, e.g. to wake up a UI
	OnAdded func(Pending)
}

var _ chain.ConfirmationService = (*Queue)(nil)

func NewQueue() *Queue {
	return &Queue{entries: make(map[string]*entry)}
}

// AddConfirmation queues req and waits for Resolve or ctx. A missing ID is generated.
func (q *Queue) AddConfirmation(ctx context.Context, req chain.ConfirmationRequest) (*chain.ConfirmationResult, error) {
	if req.ID == "" {
		req.ID = uuid.NewString()
	}

	e := &entry{
		pending: Pending{ConfirmationRequest: req, CreatedAt: time.Now()},
		result:  make(chan *chain.ConfirmationResult, 1),
	}

	q.mu.Lock()
	if _, dup := q.entries[req.ID]; dup {
		q.mu.Unlock()
		return nil, ErrDuplicate
	}
	q.entries[req.ID] = e
	onAdded := q.OnAdded
	q.mu.Unlock()

	log.Debug().Str("id", req.ID).Str("type", string(req.Type)).Str("chain", req.Chain).Msg("Confirmation queued")
	if onAdded != nil {
		onAdded(e.pending)
	}

	select {
	case res := <-e.result:
		return res, nil
	case <-ctx.Done():
		q.mu.Lock()
		delete(q.entries, req.ID)
		q.mu.Unlock()
		return nil, ctx.Err()
	}
}

// Resolve answers the pending request id
func (q *Queue) Resolve(id string, approved bool, payload string) error {
	q.mu.Lock()
	e, ok := q.entries[id]
	if ok {
		delete(q.entries, id)
	}
	q.mu.Unlock()
	if !ok {
		return ErrNotFound
	}

	e.result <- &chain.ConfirmationResult{IsApproved: approved, Payload: payload}
	log.Debug().Str("id", id).Bool("approved", approved).Msg("Confirmation resolved")
	return nil
}

// ListPending returns the waiting requests, oldest first
func (q *Queue) ListPending() []Pending {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]Pending, 0, len(q.entries))
	for _, e := range q.entries {
		out = append(out, e.pending)
	}
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt.Before(out[j].CreatedAt)
	})
	return out
}
