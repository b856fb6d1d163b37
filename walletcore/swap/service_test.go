package swap_test

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/zeebo/assert"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain/chaintest"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/registry"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
)

const (
	alice = "5GrwvaEF5zXb26Fz9rcQpDWS57CtERHpNehXCPcNoHGKutQY"

	dot      = "polkadot-NATIVE-DOT"
	hydraDot = "hydradx_main-LOCAL-DOT"
	hdx      = "hydradx_main-NATIVE-HDX"
)

var now = time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)

type fakeHandler struct {
	*handler.BaseHandler
	toAmount int64
	err      error
	inits    atomic.Int32

	mu       sync.Mutex
	lastStep handler.ProcessParams
}

func newFakeHandler(reg *registry.Registry, id string, toAmount int64, err error) *fakeHandler {
	return &fakeHandler{
		BaseHandler: handler.NewBaseHandler(models.SwapProvider{ID: id, Name: id}, handler.Deps{
			Registry: reg,
			Balances: chaintest.NewBalances(),
			Now:      func() time.Time { return now },
		}),
		toAmount: toAmount,
		err:      err,
	}
}

func (f *fakeHandler) Init(ctx context.Context) error {
	f.inits.Add(1)
	return f.InitChains(ctx)
}

func (f *fakeHandler) GetSwapQuote(_ context.Context, req models.SwapQuoteRequest) (*models.SwapQuote, error) {
	if f.err != nil {
		return nil, f.err
	}
	return &models.SwapQuote{
		Provider:   f.ProviderInfo(),
		Pair:       req.Pair,
		FromAmount: req.FromAmount,
		ToAmount:   decimal.NewFromInt(f.toAmount),
		AliveUntil: now.Add(time.Minute),
	}, nil
}

func (f *fakeHandler) GenerateOptimalProcess(ctx context.Context, params handler.GenerateParams) (*models.CommonOptimalSwapPath, error) {
	return f.BaseHandler.GenerateOptimalProcess(ctx, params, func(_ context.Context, params handler.GenerateParams, leg int) (*handler.GeneratedStep, error) {
		return f.SwapStepFromQuote(params, leg)
	})
}

func (f *fakeHandler) HandleSwapProcess(_ context.Context, params handler.ProcessParams) (*handler.SubmitStepData, error) {
	f.mu.Lock()
	f.lastStep = params
	f.mu.Unlock()
	return &handler.SubmitStepData{
		Chain:         "hydradx_main",
		ChainType:     models.ChainTypeSubstrate,
		Address:       params.Address,
		ExtrinsicType: models.ExtrinsicSwap,
		Payload:       &models.SubstrateExtrinsic{Pallet: "router", Call: "sell"},
	}, nil
}

func (f *fakeHandler) ValidateSwapProcess(context.Context, handler.ProcessParams) []*models.TransactionError {
	return nil
}

type fakeExecutor struct {
	process   *models.ProcessTransaction
	submitted []int
}

func (e *fakeExecutor) SubmitProcessStep(_ context.Context, processID string, _ models.SwapCombineInfo, stepID int, data *handler.SubmitStepData) (*models.Transaction, error) {
	e.submitted = append(e.submitted, stepID)
	if processID == "" {
		processID = "new-process"
	}
	return &models.Transaction{
		ID:            fmt.Sprintf("tx-%d", stepID),
		Chain:         data.Chain,
		ExtrinsicType: data.ExtrinsicType,
		Status:        models.TxStatusQueued,
		Step:          &models.TransactionStepRef{ProcessID: processID, StepID: stepID},
	}, nil
}

func (e *fakeExecutor) GetProcess(_ context.Context, id string) (*models.ProcessTransaction, error) {
	if e.process == nil || e.process.ID != id {
		return nil, errors.New("process not found")
	}
	return e.process.Clone(), nil
}

func newRegistry(t *testing.T) *registry.Registry {
	t.Helper()
	reg, err := registry.New([]models.ChainInfo{
		{Slug: "polkadot", Name: "Polkadot", ChainType: models.ChainTypeSubstrate, SS58Prefix: 0},
		{Slug: "hydradx_main", Name: "Hydration", ChainType: models.ChainTypeSubstrate, SS58Prefix: 42},
	}, []models.Asset{
		{Slug: dot, OriginChain: "polkadot", Symbol: "DOT", Decimals: 10, AssetType: models.AssetTypeNative},
		{Slug: hdx, OriginChain: "hydradx_main", Symbol: "HDX", Decimals: 12, AssetType: models.AssetTypeNative},
		{Slug: hydraDot, OriginChain: "hydradx_main", Symbol: "DOT", Decimals: 10, AssetType: models.AssetTypeLocal, OnChainID: "5"},
	}, []models.AssetRef{
		{SrcAsset: dot, DestAsset: hydraDot},
		{SrcAsset: hydraDot, DestAsset: dot},
	})
	assert.NoError(t, err)
	return reg
}

type setup struct {
	svc      *swap.Service
	a, b     *fakeHandler
	executor *fakeExecutor
}

func newSetup(t *testing.T, a, b *fakeHandler, reg *registry.Registry, cfg swap.Config) *setup {
	t.Helper()
	cfg.ProviderGroups = []models.ProviderGroup{
		{ProviderID: "A", Chains: []string{"hydradx_main"}},
		{ProviderID: "B", Chains: []string{"hydradx_main"}},
	}
	s := &setup{
		a:        a,
		b:        b,
		executor: &fakeExecutor{},
	}
	s.svc = swap.NewService(cfg, swap.Deps{
		Registry: reg,
		Handlers: []handler.SwapProviderHandler{a, b},
		Executor: s.executor,
		Now:      func() time.Time { return now },
	})
	return s
}

func startedSetup(t *testing.T, aAmount, bAmount int64, cfg swap.Config) *setup {
	t.Helper()
	reg := newRegistry(t)
	s := newSetup(t, newFakeHandler(reg, "A", aAmount, nil), newFakeHandler(reg, "B", bAmount, nil), reg, cfg)
	assert.NoError(t, s.svc.Start(context.Background()))
	return s
}

func request() models.SwapRequest {
	return models.SwapRequest{
		Pair:       models.NewSwapPair(hydraDot, hdx),
		FromAmount: decimal.NewFromInt(100_000_000_000),
		Address:    alice,
		Slippage:   decimal.RequireFromString("0.01"),
	}
}

func TestSwapOnlyRequest(t *testing.T) {
	s := startedSetup(t, 5_000_000_000_000_000, 4_000_000_000_000_000, swap.Config{})

	res, err := s.svc.HandleSwapRequest(context.Background(), request())
	assert.NoError(t, err)
	assert.Equal(t, len(res.Quote.Quotes), 2)
	assert.Equal(t, res.Quote.OptimalQuote.Provider.ID, "A")
	assert.Equal(t, res.Quote.AliveUntil, now.Add(time.Minute))

	assert.NotNil(t, res.Process)
	assert.Equal(t, len(res.Process.Steps), 2)
	assert.Equal(t, res.Process.Steps[0].Type, models.StepDefault)
	assert.Equal(t, res.Process.Steps[1].Type, models.StepSwap)
	assert.NoError(t, res.Process.CheckConsistency())

	// providers that quoted got initialized once
	assert.Equal(t, s.a.inits.Load(), int32(1))
	assert.Equal(t, s.b.inits.Load(), int32(1))
	_, err = s.svc.GetLatestQuote(context.Background(), request())
	assert.NoError(t, err)
	assert.Equal(t, s.a.inits.Load(), int32(1))
}

func TestEqualQuotesUsePriority(t *testing.T) {
	s := startedSetup(t, 1_000, 1_000, swap.Config{PriorityProviders: []string{"B", "A"}})

	res, err := s.svc.GetLatestQuote(context.Background(), request())
	assert.NoError(t, err)
	assert.Equal(t, res.OptimalQuote.Provider.ID, "B")
	assert.Equal(t, res.Quotes[1].Provider.ID, "A")
}

func TestPreferredProviderWins(t *testing.T) {
	s := startedSetup(t, 2_000, 1_000, swap.Config{})

	req := request()
	req.PreferredProvider = "B"
	res, err := s.svc.GetLatestQuote(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, res.OptimalQuote.Provider.ID, "B")

	req = request()
	req.CurrentQuote = &models.SwapProvider{ID: "B"}
	res, err = s.svc.GetLatestQuote(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, res.OptimalQuote.Provider.ID, "B")

	// a preferred provider without a quote is ignored
	req = request()
	req.PreferredProvider = "C"
	res, err = s.svc.GetLatestQuote(context.Background(), req)
	assert.NoError(t, err)
	assert.Equal(t, res.OptimalQuote.Provider.ID, "A")
}

func TestSpecificQuoteErrorIsReported(t *testing.T) {
	reg := newRegistry(t)
	s := newSetup(t,
		newFakeHandler(reg, "A", 0, models.NewSwapError(models.ErrAssetNotSupported, "")),
		newFakeHandler(reg, "B", 0, models.NewSwapError(models.ErrNotEnoughLiquidity, "")),
		reg, swap.Config{})
	assert.NoError(t, s.svc.Start(context.Background()))

	res, err := s.svc.HandleSwapRequest(context.Background(), request())
	assert.NoError(t, err)
	assert.Nil(t, res.Process)
	assert.Nil(t, res.Quote.OptimalQuote)
	assert.Equal(t, res.Quote.Error.ErrorType, models.ErrNotEnoughLiquidity)
	assert.Equal(t, res.Quote.AliveUntil, now.Add(swap.DefaultErrorQuoteTTL))

	// nobody quoted, nobody got initialized
	assert.Equal(t, s.a.inits.Load(), int32(0))
}

func TestForeignQuoteErrorIsUnknown(t *testing.T) {
	reg := newRegistry(t)
	s := newSetup(t,
		newFakeHandler(reg, "A", 0, errors.New("connection reset")),
		newFakeHandler(reg, "B", 0, models.NewSwapError(models.ErrAssetNotSupported, "")),
		reg, swap.Config{})
	assert.NoError(t, s.svc.Start(context.Background()))

	res, err := s.svc.GetLatestQuote(context.Background(), request())
	assert.NoError(t, err)
	assert.Equal(t, len(res.Quotes), 0)
	assert.Equal(t, res.Error.ErrorType, models.ErrUnknown)
}

func TestBridgeOnlyPairIsNotASwap(t *testing.T) {
	s := startedSetup(t, 1, 1, swap.Config{})

	req := request()
	req.Pair = models.NewSwapPair(dot, hydraDot)
	_, err := s.svc.GetLatestQuote(context.Background(), req)
	assert.Equal(t, models.ErrorTypeOf(err), models.ErrSwapPairNotFound)

	req.Pair = models.NewSwapPair(dot, "kusama-NATIVE-KSM")
	_, err = s.svc.GetLatestQuote(context.Background(), req)
	assert.Equal(t, models.ErrorTypeOf(err), models.ErrSwapPairNotFound)
}

func TestQuoteRequiresStartedService(t *testing.T) {
	reg := newRegistry(t)
	s := newSetup(t, newFakeHandler(reg, "A", 1, nil), newFakeHandler(reg, "B", 1, nil), reg, swap.Config{})

	_, err := s.svc.GetLatestQuote(context.Background(), request())
	assert.True(t, errors.Is(err, swap.ErrNotStarted))

	assert.NoError(t, s.svc.Init(context.Background()))
	assert.Equal(t, s.svc.Status(), swap.StatusInitialized)
	_, err = s.svc.GetLatestQuote(context.Background(), request())
	assert.True(t, errors.Is(err, swap.ErrNotStarted))
}

func TestConcurrentStartAndStop(t *testing.T) {
	reg := newRegistry(t)
	s := newSetup(t, newFakeHandler(reg, "A", 1, nil), newFakeHandler(reg, "B", 1, nil), reg, swap.Config{})

	var wg sync.WaitGroup
	errs := make(chan error, 10)
	for i := 0; i < 10; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			errs <- s.svc.Start(context.Background())
		}()
	}
	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}
	assert.Equal(t, s.svc.Status(), swap.StatusStarted)
	assert.NoError(t, s.svc.WaitForStarted(context.Background()))

	assert.NoError(t, s.svc.Stop(context.Background()))
	assert.NoError(t, s.svc.Stop(context.Background()))
	assert.Equal(t, s.svc.Status(), swap.StatusStopped)
	assert.NoError(t, s.svc.WaitForStopped(context.Background()))

	assert.NoError(t, s.svc.Start(context.Background()))
	assert.Equal(t, s.svc.Status(), swap.StatusStarted)
	assert.NoError(t, s.svc.Stop(context.Background()))
}

func generated(t *testing.T, s *setup) *models.SwapRequestResult {
	t.Helper()
	res, err := s.svc.HandleSwapRequest(context.Background(), request())
	assert.NoError(t, err)
	assert.NotNil(t, res.Process)
	return res
}

func stepParams(res *models.SwapRequestResult, step int) handler.ProcessParams {
	return handler.ProcessParams{
		Address:     alice,
		Slippage:    decimal.RequireFromString("0.01"),
		Process:     res.Process,
		Quote:       res.Quote.OptimalQuote,
		CurrentStep: step,
	}
}

func TestBlockedProviderOnlyStopsFirstStep(t *testing.T) {
	reg := newRegistry(t)
	a, b := newFakeHandler(reg, "A", 2, nil), newFakeHandler(reg, "B", 1, nil)
	blocked := swap.NewBlockedActions(nil, "", time.Hour)
	svc := swap.NewService(swap.Config{ProviderGroups: []models.ProviderGroup{
		{ProviderID: "A", Chains: []string{"hydradx_main"}},
		{ProviderID: "B", Chains: []string{"hydradx_main"}},
	}}, swap.Deps{
		Registry: reg,
		Handlers: []handler.SwapProviderHandler{a, b},
		Blocked:  blocked,
		Now:      func() time.Time { return now },
	})
	// the nil client fails the initial refresh, start goes on without the list
	assert.NoError(t, svc.Start(context.Background()))
	defer func() { _ = svc.Stop(context.Background()) }()

	res, err := svc.HandleSwapRequest(context.Background(), request())
	assert.NoError(t, err)

	blocked.Set([]swap.BlockedAction{{Provider: "A", Action: swap.ActionSwap}})
	errs := svc.ValidateSwapProcess(context.Background(), stepParams(res, models.FirstStepID))
	assert.Equal(t, len(errs), 1)
	assert.Equal(t, errs[0].ErrorType, models.ErrUnsupported)

	errs = svc.ValidateSwapProcess(context.Background(), stepParams(res, 2))
	assert.Equal(t, len(errs), 0)

	// another pair of the provider stays open
	blocked.Set([]swap.BlockedAction{{Provider: "A", Pair: models.AssetRefKey(hdx, hydraDot), Action: swap.ActionSwap}})
	errs = svc.ValidateSwapProcess(context.Background(), stepParams(res, models.FirstStepID))
	assert.Equal(t, len(errs), 0)
}

func TestBlockedActionsFromRemote(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, r.URL.Path, "/blocked.json")
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"blocked":[{"provider":"A","action":"swap"},{"provider":"B","pair":"x___y","action":"swap"}]}`))
	}))
	defer srv.Close()

	client, err := remote.NewClient("blocked", srv.URL)
	assert.NoError(t, err)
	defer client.Close()

	blocked := swap.NewBlockedActions(client, "/blocked.json", time.Hour)
	assert.True(t, blocked.LastRefresh().IsZero())
	assert.NoError(t, blocked.Refresh(context.Background()))
	assert.False(t, blocked.LastRefresh().IsZero())

	assert.True(t, blocked.IsBlocked("A", "any___pair", swap.ActionSwap))
	assert.True(t, blocked.IsBlocked("B", "x___y", swap.ActionSwap))
	assert.False(t, blocked.IsBlocked("B", "y___x", swap.ActionSwap))
	assert.False(t, blocked.IsBlocked("C", "x___y", swap.ActionSwap))
}

func TestSubmitFirstStep(t *testing.T) {
	s := startedSetup(t, 2, 1, swap.Config{})
	res := generated(t, s)

	out, err := s.svc.SubmitSwapStep(context.Background(), swap.SubmitStepRequest{Params: stepParams(res, 0)})
	assert.NoError(t, err)
	assert.Equal(t, len(out.Errors), 0)
	assert.Equal(t, out.ProcessID, "new-process")
	assert.Equal(t, out.Transaction.ExtrinsicType, models.ExtrinsicSwap)
	assert.DeepEqual(t, s.executor.submitted, []int{models.FirstStepID})
}

func TestSubmitResumesWithPermitSignature(t *testing.T) {
	s := startedSetup(t, 2, 1, swap.Config{})
	res := generated(t, s)

	process := models.NewOptimalSwapPath(res.Process.Path)
	process.AddStep(models.StepDetail{
		Name:     "Sign permit",
		Type:     models.StepPermit,
		Metadata: models.PermitMetadata{Chain: "hydradx_main", TokenSlug: hydraDot},
	}, models.SwapFeeInfo{})
	process.AddStep(res.Process.Steps[1], res.Process.TotalFee[1])

	info := models.SwapCombineInfo{Process: *process, Quote: *res.Quote.OptimalQuote, Address: alice, Slippage: decimal.RequireFromString("0.01")}
	p := models.NewSwapProcess("p-1", info, now)
	p.Status = models.ProcessStatusProcessing
	p.Steps[0].Status = models.StepStatusComplete
	p.Steps[0].ExtrinsicHash = "0xsignature"
	p.Steps[1].Status = models.StepStatusPrepare
	p.CurrentStepID = 2
	s.executor.process = p

	out, err := s.svc.SubmitSwapStep(context.Background(), swap.SubmitStepRequest{ProcessID: "p-1"})
	assert.NoError(t, err)
	assert.Equal(t, out.ProcessID, "p-1")
	assert.DeepEqual(t, s.executor.submitted, []int{2})
	assert.Equal(t, s.a.lastStep.PermitSignature, "0xsignature")
	assert.Equal(t, s.a.lastStep.CurrentStep, 2)

	p.Status = models.ProcessStatusComplete
	_, err = s.svc.SubmitSwapStep(context.Background(), swap.SubmitStepRequest{ProcessID: "p-1"})
	assert.Equal(t, models.ErrorTypeOf(err), models.ErrInvalidParams)
}
