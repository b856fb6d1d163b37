package swap

import (
	"context"
	"errors"
	"sync"
	"time"
)

// BlockedAction disables an action of a provider. An empty Pair blocks every pair.
type BlockedAction struct {
	Provider string `json:"provider"`
	Pair     string `json:"pair,omitempty"`
	Action   string `json:"action"`
}

// ActionSwap is the action checked before the first step of a swap process
const ActionSwap = "swap"

// DefaultBlockedRefresh is how often the blocked list is fetched again
const DefaultBlockedRefresh = 5 * time.Minute

type blockedList struct {
	Blocked []BlockedAction `json:"blocked"`
}

// JSONGetter fetches a JSON document, remote.Client implements it
type JSONGetter interface {
	GetJSON(ctx context.Context, path string, out any) error
}

// BlockedActions is a periodically refreshed list of provider actions the wallet must not run
type BlockedActions struct {
	client   JSONGetter
	path     string
	interval time.Duration

	mu        sync.RWMutex
	entries   []BlockedAction
	fetchedAt time.Time
}

func NewBlockedActions(client JSONGetter, path string, interval time.Duration) *BlockedActions {
	if interval <= 0 {
		interval = DefaultBlockedRefresh
	}
	return &BlockedActions{client: client, path: path, interval: interval}
}

// Refresh replaces the list. On error the previous list is kept.
func (b *BlockedActions) Refresh(ctx context.Context) error {
	if b.client == nil {
		return errors.New("blocked actions have no source")
	}
	var list blockedList
	if err := b.client.GetJSON(ctx, b.path, &list); err != nil {
		return err
	}
	b.mu.Lock()
	b.entries = list.Blocked
	b.fetchedAt = time.Now()
	b.mu.Unlock()
	log.Debug().Int("entries", len(list.Blocked)).Msg("Blocked actions refreshed")
	return nil
}

// Run refreshes the list until ctx is done
func (b *BlockedActions) Run(ctx context.Context) {
	ticker := time.NewTicker(b.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if err := b.Refresh(ctx); err != nil && ctx.Err() == nil {
				log.Warn().Err(err).Msg("Failed to refresh blocked actions")
			}
		}
	}
}

// IsBlocked reports whether action on pairSlug is disabled for provider
func (b *BlockedActions) IsBlocked(provider, pairSlug, action string) bool {
	if b == nil {
		return false
	}
	b.mu.RLock()
	defer b.mu.RUnlock()
	for _, e := range b.entries {
		if e.Provider != provider || e.Action != action {
			continue
		}
		if e.Pair == "" || e.Pair == pairSlug {
			return true
		}
	}
	return false
}

// Set replaces the list without fetching
func (b *BlockedActions) Set(entries []BlockedAction) {
	b.mu.Lock()
	b.entries = append([]BlockedAction(nil), entries...)
	b.fetchedAt = time.Now()
	b.mu.Unlock()
}

// LastRefresh is when the list was last replaced, zero when it never was
func (b *BlockedActions) LastRefresh() time.Time {
	b.mu.RLock()
	defer b.mu.RUnlock()
	return b.fetchedAt
}
