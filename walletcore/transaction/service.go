// Package transaction is the transaction lifecycle engine. It signs and sends single chain
// transactions, tracks them to finality, keeps their history and drives the processes they belong to.
package transaction

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/store"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

var log zerolog.Logger

var tracer = otel.Tracer("github.com/Cogwheel-Validator/spectra-wallet/walletcore/transaction")

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	log = zerolog.New(out).With().Timestamp().Str("component", "transaction").Logger()
}

const (
	// DefaultTimeout is how long a sent transaction may stay unresolved before it times out
	DefaultTimeout = 3 * time.Minute
	// DefaultLateResolution is how long a timed out transaction is still watched
	DefaultLateResolution = 10 * time.Minute
	DefaultPollInterval   = 3 * time.Second
	DefaultOrderPolls     = 60
)

var (
	ErrNotStarted          = errors.New("transaction service is not started")
	ErrTransactionNotFound = errors.New("transaction not found")
	ErrProcessNotFound     = errors.New("process not found")
)

// Accounts tells how an address signs. Injected accounts sign and broadcast in an external wallet.
type Accounts interface {
	IsInjected(address string) bool
}

type Config struct {
	Timeout        time.Duration
	LateResolution time.Duration
	PollInterval   time.Duration
}

// Deps are the collaborators of the service. Fees, Notifier, Accounts and History are optional.
type Deps struct {
	Registry      chain.Registry
	Confirmations chain.ConfirmationService
	Fees          chain.FeeService
	Notifier      chain.Notifier
	Accounts      Accounts
	Processes     store.ProcessStore
	History       store.HistoryStore
	Now           func() time.Time
}

// runner is one transaction in flight
type runner struct {
	id      string
	address string
	data    *handler.SubmitStepData
	step    *models.TransactionStepRef
	ctx     context.Context
	cancel  context.CancelFunc
	done    chan struct{}

	mu    sync.Mutex
	life  lifecycle
	timer *time.Timer
}

func (r *runner) finished() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.life.terminal
}

func (r *runner) timedOut() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.life.timedOut
}

// armTimeout starts the timeout guard once. The caller holds r.mu.
func (s *Service) armTimeout(r *runner) {
	if r.timer == nil && !r.life.terminal {
		r.timer = time.AfterFunc(s.cfg.Timeout, func() { s.onTimeout(r) })
	}
}

func (r *runner) stopTimer() {
	if r.timer != nil {
		r.timer.Stop()
		r.timer = nil
	}
}

// Service is the transaction lifecycle engine
type Service struct {
	cfg  Config
	deps Deps

	txs       *store.Subject[map[string]*models.Transaction]
	processes *store.Subject[map[string]*models.ProcessTransaction]

	mu        sync.Mutex
	runners   map[string]*runner
	listeners map[uint64]func(Event)
	nextID    uint64
	runCtx    context.Context
	cancel    context.CancelFunc
	wg        sync.WaitGroup

	// procMu serializes process mutations
	procMu sync.Mutex
}

func cloneTransactions(m map[string]*models.Transaction) map[string]*models.Transaction {
	return store.CloneMap(m, (*models.Transaction).Clone)
}

func cloneProcesses(m map[string]*models.ProcessTransaction) map[string]*models.ProcessTransaction {
	return store.CloneMap(m, (*models.ProcessTransaction).Clone)
}

func NewService(cfg Config, deps Deps) *Service {
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.LateResolution <= 0 {
		cfg.LateResolution = DefaultLateResolution
	}
	if cfg.PollInterval <= 0 {
		cfg.PollInterval = DefaultPollInterval
	}
	if deps.Now == nil {
		deps.Now = time.Now
	}
	return &Service{
		cfg:       cfg,
		deps:      deps,
		txs:       store.NewSubject(map[string]*models.Transaction{}, cloneTransactions),
		processes: store.NewSubject(map[string]*models.ProcessTransaction{}, cloneProcesses),
		runners:   make(map[string]*runner),
		listeners: make(map[uint64]func(Event)),
	}
}

// Start loads the unfinished processes and accepts transactions
func (s *Service) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.runCtx != nil {
		s.mu.Unlock()
		return nil
	}
	s.runCtx, s.cancel = context.WithCancel(context.Background())
	s.mu.Unlock()

	n, err := s.RecoverProcesses(ctx)
	if err != nil {
		return fmt.Errorf("recover processes: %w", err)
	}
	log.Info().Int("processes", n).Msg("Transaction service started")
	return nil
}

// Stop cancels the transactions in flight and waits for them to return
func (s *Service) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	s.runCtx, s.cancel = nil, nil
	s.mu.Unlock()
	if cancel == nil {
		return nil
	}
	cancel()

	done := make(chan struct{})
	go func() {
		s.wg.Wait()
		close(done)
	}()
	select {
	case <-done:
		log.Info().Msg("Transaction service stopped")
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Transactions is the observable transaction map
func (s *Service) Transactions() *store.Subject[map[string]*models.Transaction] {
	return s.txs
}

// AliveProcesses is the observable map of the processes that are not finished
func (s *Service) AliveProcesses() *store.Subject[map[string]*models.ProcessTransaction] {
	return s.processes
}

// OnEvent registers cb for every lifecycle event. Callbacks run in event order and must not block.
func (s *Service) OnEvent(cb func(Event)) func() {
	s.mu.Lock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = cb
	s.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			delete(s.listeners, id)
			s.mu.Unlock()
		})
	}
}

func (s *Service) publish(ev Event) {
	s.mu.Lock()
	cbs := make([]func(Event), 0, len(s.listeners))
	for _, cb := range s.listeners {
		cbs = append(cbs, cb)
	}
	s.mu.Unlock()
	for _, cb := range cbs {
		cb(ev)
	}
}

// GetTransaction returns a snapshot of a transaction
func (s *Service) GetTransaction(id string) (*models.Transaction, error) {
	tx, ok := s.txs.Value()[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrTransactionNotFound, id)
	}
	return tx, nil
}

// Wait blocks until the transaction with id stops running and returns its last state.
// A transaction removed after a rejection returns ErrTransactionNotFound.
func (s *Service) Wait(ctx context.Context, id string) (*models.Transaction, error) {
	s.mu.Lock()
	r := s.runners[id]
	s.mu.Unlock()
	if r != nil {
		select {
		case <-r.done:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	return s.GetTransaction(id)
}

// Submit queues a transaction that is not part of a process
func (s *Service) Submit(ctx context.Context, data *handler.SubmitStepData) (*models.Transaction, error) {
	r, tx, err := s.enqueue(ctx, data, nil)
	if err != nil {
		return nil, err
	}
	s.launch(r)
	return tx, nil
}

func invalid(format string, args ...any) *models.TransactionError {
	return models.NewTransactionError(models.ErrInvalidParams, fmt.Sprintf(format, args...))
}

var payloadKinds = map[models.ChainType][]models.PayloadKind{
	models.ChainTypeEvm:       {models.PayloadEvm, models.PayloadPermit, models.PayloadDutchOrder},
	models.ChainTypeSubstrate: {models.PayloadSubstrate},
	models.ChainTypeTon:       {models.PayloadTon},
}

// validate checks the request against the chain and returns the sender in the chain format
func (s *Service) validate(data *handler.SubmitStepData) (string, error) {
	if data == nil || data.Payload == nil {
		return "", invalid("missing transaction payload")
	}
	info, err := s.deps.Registry.GetChainInfoByKey(data.Chain)
	if err != nil {
		return "", invalid("%s", err.Error())
	}
	if data.ChainType != "" && data.ChainType != info.ChainType {
		return "", invalid("%s is a %s chain, not %s", info.Name, info.ChainType, data.ChainType)
	}
	kinds, ok := payloadKinds[info.ChainType]
	if !ok {
		return "", models.NewTransactionError(models.ErrUnsupported, fmt.Sprintf("sending on %s chains is not supported", info.ChainType))
	}
	supported := false
	for _, k := range kinds {
		if k == data.Payload.Kind() {
			supported = true
			break
		}
	}
	if !supported {
		return "", invalid("%s payload cannot be sent on %s", data.Payload.Kind(), info.Name)
	}
	address, err := registry.ReformatAddress(data.Address, info)
	if err != nil {
		return "", invalid("%s", err.Error())
	}
	return address, nil
}

// enqueue registers a QUEUED transaction. Nothing runs until launch.
func (s *Service) enqueue(ctx context.Context, data *handler.SubmitStepData, step *models.TransactionStepRef) (*runner, *models.Transaction, error) {
	s.mu.Lock()
	runCtx := s.runCtx
	s.mu.Unlock()
	if runCtx == nil {
		return nil, nil, ErrNotStarted
	}

	address, err := s.validate(data)
	if err != nil {
		return nil, nil, err
	}
	info, _ := s.deps.Registry.GetChainInfoByKey(data.Chain)

	now := s.deps.Now()
	tx := &models.Transaction{
		ID:             uuid.NewString(),
		Address:        address,
		Chain:          data.Chain,
		ChainType:      info.ChainType,
		ExtrinsicType:  data.ExtrinsicType,
		Status:         models.TxStatusQueued,
		Errors:         []*models.TransactionError{},
		Warnings:       []*models.TransactionWarning{},
		CreatedAt:      now,
		UpdatedAt:      now,
		Step:           step,
		ErrorOnTimeout: data.ErrorOnTimeout,
		Data:           data.Data,
		EstimateFee:    data.EstimateFee,
		Payload:        data.Payload,
	}

	duplicate := false
	s.txs.Update(func(m map[string]*models.Transaction) map[string]*models.Transaction {
		for _, t := range m {
			if t.Address == tx.Address && t.Chain == tx.Chain &&
				(t.Status == models.TxStatusQueued || t.Status == models.TxStatusSubmitting) {
				duplicate = true
				return m
			}
		}
		m[tx.ID] = tx
		return m
	})
	if duplicate {
		log.Warn().Str("address", address).Str("chain", data.Chain).Msg("Rejected duplicate transaction")
		return nil, nil, models.NewTransactionError(models.ErrDuplicateTransaction, "")
	}

	item := &models.HistoryItem{
		TransactionID: tx.ID,
		Chain:         tx.Chain,
		ChainType:     tx.ChainType,
		Address:       tx.Address,
		ExtrinsicType: tx.ExtrinsicType,
		Status:        tx.Status,
		Fee:           tx.EstimateFee,
		Data:          tx.Data,
		Time:          now,
		UpdatedAt:     now,
	}
	if step != nil {
		item.ProcessID = step.ProcessID
	}
	s.insertHistory(ctx, item)

	flowCtx, cancel := context.WithTimeout(runCtx, s.cfg.Timeout+s.cfg.LateResolution)
	r := &runner{
		id:      tx.ID,
		address: address,
		data:    data,
		step:    step,
		ctx:     flowCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	s.mu.Lock()
	s.runners[tx.ID] = r
	s.mu.Unlock()

	log.Info().
		Str("transaction", tx.ID).
		Str("chain", tx.Chain).
		Str("type", string(tx.ExtrinsicType)).
		Str("address", address).
		Msg("Transaction queued")
	return r, tx.Clone(), nil
}

// drop removes a queued transaction that will never run
func (s *Service) drop(r *runner) {
	r.cancel()
	s.mu.Lock()
	delete(s.runners, r.id)
	s.mu.Unlock()
	s.txs.Update(func(m map[string]*models.Transaction) map[string]*models.Transaction {
		delete(m, r.id)
		return m
	})
	close(r.done)
}

func (s *Service) launch(r *runner) {
	s.wg.Add(1)
	go func() {
		defer s.wg.Done()
		s.run(r)
		r.cancel()
		r.mu.Lock()
		r.stopTimer()
		r.mu.Unlock()
		s.mu.Lock()
		delete(s.runners, r.id)
		s.mu.Unlock()
		close(r.done)
	}()
}

func (s *Service) run(r *runner) {
	ctx, span := tracer.Start(r.ctx, "transaction.Send", trace.WithAttributes(
		attribute.String("transaction", r.id),
		attribute.String("chain", r.data.Chain),
		attribute.String("payload", string(r.data.Payload.Kind())),
	))
	defer span.End()

	s.updateStatus(r, models.TxStatusSubmitting)

	var err error
	switch p := r.data.Payload.(type) {
	case *models.EvmTransactionConfig:
		err = s.sendEvm(ctx, r, p)
	case *models.SubstrateExtrinsic:
		err = s.sendSubstrate(ctx, r, p)
	case *models.TonTransferPayload:
		err = s.sendTon(ctx, r, p)
	case *models.PermitPayload:
		err = s.signPermit(ctx, r, p)
	case *models.DutchOrderPayload:
		err = s.sendDutchOrder(ctx, r, p)
	default:
		err = invalid("unsupported payload %s", r.data.Payload.Kind())
	}
	if r.finished() {
		return
	}
	if err == nil {
		// the flow gave up on a final event, e.g. success without a known hash
		err = models.NewTransactionError(models.ErrSendTransactionFailed, "flow ended without a final status")
	}
	if ctx.Err() != nil && r.timedOut() {
		log.Warn().Str("transaction", r.id).Msg("Transaction left in timeout")
		return
	}
	if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
		err = models.NewTransactionError(models.ErrSendTransactionFailed, "transaction was cancelled")
	}
	span.RecordError(err)
	s.emit(r, Event{Type: EventError, Errors: []*models.TransactionError{asTransactionError(err)}})
}

func asTransactionError(err error) *models.TransactionError {
	var txErr *models.TransactionError
	if errors.As(err, &txErr) {
		return txErr
	}
	var swapErr *models.SwapError
	if errors.As(err, &swapErr) {
		return models.NewTransactionError(swapErr.ErrorType, swapErr.Message)
	}
	return models.NewTransactionError(models.ErrSendTransactionFailed, err.Error())
}

func rejected() error {
	return models.NewTransactionError(models.ErrUserRejectRequest, "")
}

func isRejection(ev Event) bool {
	return ev.Type == EventError && len(ev.Errors) == 1 && ev.Errors[0].ErrorType == models.ErrUserRejectRequest
}

func (s *Service) injected(address string) bool {
	return s.deps.Accounts != nil && s.deps.Accounts.IsInjected(address)
}

// confirm asks the user to approve or sign. A declined request is a rejection.
func (s *Service) confirm(ctx context.Context, r *runner, typ chain.ConfirmationType, payload any) (*chain.ConfirmationResult, error) {
	if s.deps.Confirmations == nil {
		return nil, models.NewTransactionError(models.ErrUnableToSign, "no signer available")
	}
	res, err := s.deps.Confirmations.AddConfirmation(ctx, chain.ConfirmationRequest{
		ID:       r.id,
		Type:     typ,
		Address:  r.address,
		Chain:    r.data.Chain,
		Payload:  payload,
		Injected: s.injected(r.address),
	})
	if err != nil {
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, models.NewTransactionError(models.ErrUnableToSign, err.Error())
	}
	if !res.IsApproved {
		return nil, rejected()
	}
	if res.Payload == "" {
		return nil, models.NewTransactionError(models.ErrUnableToSign, "signer returned an empty answer")
	}
	return res, nil
}

// poll calls check every poll interval until it reports done or ctx ends
func (s *Service) poll(ctx context.Context, check func() (bool, error)) error {
	ticker := time.NewTicker(s.cfg.PollInterval)
	defer ticker.Stop()
	for {
		done, err := check()
		if err != nil || done {
			return err
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-ticker.C:
		}
	}
}
