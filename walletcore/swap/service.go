// Package swap is the swap orchestrator. It discovers routes, aggregates provider quotes, turns the
// winning quote into a process and dispatches validation and step building to the provider handlers.
package swap

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/router"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

var log zerolog.Logger

var tracer = otel.Tracer("github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap")

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "swap").Logger()
}

// Status is the lifecycle state of the service
type Status string

const (
	StatusNotInitialized Status = "NOT_INITIALIZED"
	StatusInitializing   Status = "INITIALIZING"
	StatusInitialized    Status = "INITIALIZED"
	StatusStarting       Status = "STARTING"
	StatusStarted        Status = "STARTED"
	StatusStopping       Status = "STOPPING"
	StatusStopped        Status = "STOPPED"
)

var (
	ErrNotStarted      = errors.New("swap service is not started")
	ErrUnknownProvider = errors.New("unknown swap provider")
)

const (
	DefaultQuoteTimeout  = 10 * time.Second
	DefaultErrorQuoteTTL = 30 * time.Second
)

// AssetRegistry is the chain registry plus the asset listing the route index is built from
type AssetRegistry interface {
	chain.Registry
	Assets() []*models.Asset
}

// Executor runs process steps. It is implemented by the transaction service.
type Executor interface {
	// SubmitProcessStep sends the payload of stepID. An empty processID starts a new process from info.
	SubmitProcessStep(ctx context.Context, processID string, info models.SwapCombineInfo, stepID int, data *handler.SubmitStepData) (*models.Transaction, error)
	GetProcess(ctx context.Context, id string) (*models.ProcessTransaction, error)
}

// Config tunes route discovery and quote selection
type Config struct {
	ProviderGroups []models.ProviderGroup
	// HubChain is preferred as the first hop of bridge-swap-bridge routes
	HubChain string
	// PriorityProviders break ties between equal quotes, earlier wins
	PriorityProviders []string
	QuoteTimeout      time.Duration
	ErrorQuoteTTL     time.Duration
}

// Deps are the collaborators of the service
type Deps struct {
	Registry AssetRegistry
	Handlers []handler.SwapProviderHandler
	Blocked  *BlockedActions
	Executor Executor
	Now      func() time.Time
}

// transition is an in flight start or stop that callers can wait on
type transition struct {
	done chan struct{}
	err  error
}

func newTransition() *transition {
	return &transition{done: make(chan struct{})}
}

func (t *transition) finish(err error) {
	t.err = err
	close(t.done)
}

func (t *transition) wait(ctx context.Context) error {
	select {
	case <-t.done:
		return t.err
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Service is the swap orchestrator
type Service struct {
	cfg      Config
	deps     Deps
	handlers map[string]handler.SwapProviderHandler
	order    []string

	mu         sync.Mutex
	status     Status
	initDone   *transition
	starting   *transition
	stopping   *transition
	pathfinder *router.Pathfinder
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.QuoteTimeout <= 0 {
		cfg.QuoteTimeout = DefaultQuoteTimeout
	}
	if cfg.ErrorQuoteTTL <= 0 {
		cfg.ErrorQuoteTTL = DefaultErrorQuoteTTL
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	s := &Service{
		cfg:      cfg,
		deps:     deps,
		handlers: make(map[string]handler.SwapProviderHandler, len(deps.Handlers)),
		status:   StatusNotInitialized,
	}
	for _, h := range deps.Handlers {
		id := h.ProviderInfo().ID
		s.handlers[id] = h
		s.order = append(s.order, id)
	}
	return s
}

// Status returns the lifecycle state
func (s *Service) Status() Status {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.status
}

// Handler looks up a provider handler by id
func (s *Service) Handler(providerID string) (handler.SwapProviderHandler, bool) {
	h, ok := s.handlers[providerID]
	return h, ok
}

// Init builds the route index. Concurrent calls share one initialization.
func (s *Service) Init(ctx context.Context) error {
	s.mu.Lock()
	if s.initDone != nil {
		t := s.initDone
		s.mu.Unlock()
		return t.wait(ctx)
	}
	t := newTransition()
	s.initDone = t
	s.status = StatusInitializing
	s.mu.Unlock()

	index := router.NewRouteIndex()
	err := index.BuildIndex(s.deps.Registry.Assets(), s.deps.Registry.GetAssetRefMap(), s.cfg.ProviderGroups)

	s.mu.Lock()
	if err != nil {
		s.status = StatusNotInitialized
		s.initDone = nil
	} else {
		s.pathfinder = router.NewPathfinder(index, s.cfg.HubChain)
		s.status = StatusInitialized
	}
	s.mu.Unlock()
	t.finish(err)

	if err != nil {
		return fmt.Errorf("build route index: %w", err)
	}
	log.Info().Int("providers", len(s.handlers)).Msg("Swap service initialized")
	return nil
}

// Start initializes the service if needed and starts the background refresh of the blocked actions.
// A start already in flight is joined, a stop in flight is waited for first.
func (s *Service) Start(ctx context.Context) error {
	if err := s.Init(ctx); err != nil {
		return err
	}

	s.mu.Lock()
	switch {
	case s.status == StatusStarted:
		s.mu.Unlock()
		return nil
	case s.starting != nil:
		t := s.starting
		s.mu.Unlock()
		return t.wait(ctx)
	case s.stopping != nil:
		t := s.stopping
		s.mu.Unlock()
		if err := t.wait(ctx); err != nil {
			return err
		}
		return s.Start(ctx)
	}
	t := newTransition()
	s.starting = t
	s.status = StatusStarting
	runCtx, cancel := context.WithCancel(context.Background())
	s.cancel = cancel
	s.mu.Unlock()

	if s.deps.Blocked != nil {
		if err := s.deps.Blocked.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to fetch blocked actions, continuing without them")
		}
		s.wg.Add(1)
		go func() {
			defer s.wg.Done()
			s.deps.Blocked.Run(runCtx)
		}()
	}

	s.mu.Lock()
	s.starting = nil
	s.status = StatusStarted
	s.mu.Unlock()
	t.finish(nil)
	log.Info().Msg("Swap service started")
	return nil
}

// Stop halts the background work. A stop already in flight is joined, a start in flight is waited for first.
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	switch {
	case s.status == StatusStopped || s.status == StatusNotInitialized || s.status == StatusInitialized:
		s.mu.Unlock()
		return nil
	case s.stopping != nil:
		t := s.stopping
		s.mu.Unlock()
		return t.wait(ctx)
	case s.starting != nil:
		t := s.starting
		s.mu.Unlock()
		if err := t.wait(ctx); err != nil {
			return err
		}
		return s.Stop(ctx)
	}
	t := newTransition()
	s.stopping = t
	s.status = StatusStopping
	cancel := s.cancel
	s.mu.Unlock()

	if cancel != nil {
		cancel()
	}
	s.wg.Wait()

	s.mu.Lock()
	s.stopping = nil
	s.cancel = nil
	s.status = StatusStopped
	s.mu.Unlock()
	t.finish(nil)
	log.Info().Msg("Swap service stopped")
	return nil
}

// WaitForStarted blocks until a start in flight completes. It fails right away when no start was requested.
func (s *Service) WaitForStarted(ctx context.Context) error {
	s.mu.Lock()
	status, t := s.status, s.starting
	s.mu.Unlock()
	switch {
	case status == StatusStarted:
		return nil
	case t != nil:
		return t.wait(ctx)
	default:
		return ErrNotStarted
	}
}

// WaitForStopped blocks until a stop in flight completes
func (s *Service) WaitForStopped(ctx context.Context) error {
	s.mu.Lock()
	t := s.stopping
	s.mu.Unlock()
	if t == nil {
		return nil
	}
	return t.wait(ctx)
}

func (s *Service) started(ctx context.Context) (*router.Pathfinder, error) {
	if err := s.WaitForStarted(ctx); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.pathfinder, nil
}
