package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"strconv"
	"strings"
	"syscall"
	"time"

	"github.com/ethereum/go-ethereum/ethclient"
	"github.com/spf13/cobra"

	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/balance"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/bridge"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/chain"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/config"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/confirmation"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/fee"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/models"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/remote"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/rpc"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/store"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/handler"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/chainflip"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/hydradx"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/stonfi"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/swap/providers/uniswap"
	"github.com/Cogwheel-Validator/spectra-wallet/walletcore/transaction"
)

var serveConfigPath string

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the wallet core RPC server",
	Long: `Run the wallet core RPC server.

Without --config the server is configured from WALLETCORE_ env vars, a .env file
in the working directory is read as well.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		var path *string
		if serveConfigPath != "" {
			path = &serveConfigPath
		}
		return serve(path)
	},
}

func init() {
	serveCmd.Flags().StringVarP(&serveConfigPath, "config", "c", "", "toml config file of the server")
	rootCmd.AddCommand(serveCmd)
}

func serve(configPath *string) error {
	cfg, err := config.LoadWalletCoreConfig(configPath)
	if err != nil {
		return err
	}
	log.Info().
		Str("chain_config", cfg.ChainConfig).
		Str("db_path", cfg.DBPath).
		Msg("Starting Spectra's wallet core")

	// Create context for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	regCfg, err := config.NewChainConfigLoader().Load(ctx, cfg.ChainConfig)
	if err != nil {
		return fmt.Errorf("failed to load chain config: %w", err)
	}
	quoteTTL, err := regCfg.QuoteTTLs()
	if err != nil {
		return err
	}
	reg, err := regCfg.BuildRegistry()
	if err != nil {
		return err
	}
	reg.SetEvmDialer(dialEvm)
	for _, c := range regCfg.Chains {
		if err := reg.EnableChain(ctx, c.Slug); err != nil {
			// the chain stays active but disconnected, its flows fail with CHAIN_DISCONNECTED
			log.Warn().Err(err).Str("chain", c.Slug).Msg("Failed to connect chain")
		}
	}

	db, err := store.NewBoltDB(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("failed to open database: %w", err)
	}
	dbDone := make(chan struct{})
	go func() {
		defer close(dbDone)
		db.Run(ctx)
	}()

	fees := fee.NewService(reg, cfg.FeeRefreshInterval)
	go fees.Run(ctx)

	queue := confirmation.NewQueue()
	deps := handler.Deps{
		Registry:    reg,
		Balances:    balance.NewService(reg),
		Fees:        fees,
		Bridge:      bridge.New(reg, regCfg.Bridge),
		NativeTopUp: regCfg.NativeTopUp,
		QuoteTTL:    quoteTTL,
	}

	clients := make(map[string]*remote.Client)
	var handlers []handler.SwapProviderHandler
	if c := newRemoteClient(clients, "hydradx", cfg.HydradxAPIURLs); c != nil {
		handlers = append(handlers, hydradx.New(c, deps))
	}
	if c := newRemoteClient(clients, "uniswap", cfg.UniswapAPIURLs); c != nil {
		handlers = append(handlers, uniswap.New(c, regCfg.UniswapChains, deps))
	}
	if c := newRemoteClient(clients, "chainflip", cfg.ChainflipAPIURLs); c != nil {
		handlers = append(handlers, chainflip.New(c, regCfg.ChainflipChains, deps))
	}
	if c := newRemoteClient(clients, "stonfi", cfg.StonfiAPIURLs); c != nil {
		handlers = append(handlers, stonfi.New(c, deps))
	}
	log.Info().Int("count", len(handlers)).Msg("Swap providers initialized")

	var blocked *swap.BlockedActions
	if c := newRemoteClient(clients, "blocked-actions", cfg.BlockedActionsURLs); c != nil {
		blocked = swap.NewBlockedActions(c, cfg.BlockedActionsPath, cfg.BlockedActionsInterval)
		if err := blocked.Refresh(ctx); err != nil {
			log.Warn().Err(err).Msg("Failed to load blocked actions")
		}
		go blocked.Run(ctx)
	}

	txService := transaction.NewService(transaction.Config{
		Timeout:        cfg.TransactionTimeout,
		LateResolution: cfg.LateResolution,
		PollInterval:   cfg.PollInterval,
	}, transaction.Deps{
		Registry:      reg,
		Confirmations: queue,
		Fees:          fees,
		Notifier:      logNotifier{},
		Accounts:      newAccountSet(cfg.InjectedAccounts),
		Processes:     db,
		History:       db,
	})
	if err := txService.Start(ctx); err != nil {
		return err
	}

	swapService := swap.NewService(swap.Config{
		ProviderGroups:    regCfg.ProviderGroups,
		HubChain:          cfg.HubChain,
		PriorityProviders: cfg.PriorityProviders,
		QuoteTimeout:      cfg.QuoteTimeout,
	}, swap.Deps{
		Registry: reg,
		Handlers: handlers,
		Blocked:  blocked,
		Executor: txService,
	})
	// the server comes up right away and reports not ready until the swap service started
	go func() {
		if err := swapService.Start(ctx); err != nil {
			log.Error().Err(err).Msg("Failed to start swap service")
		}
	}()

	server, err := rpc.NewServer(ctx, buildServerConfig(cfg), rpc.Services{
		Swap:          swapService,
		Transactions:  txService,
		Confirmations: queue,
		Ready:         func() bool { return swapService.Status() == swap.StatusStarted },
	})
	if err != nil {
		return fmt.Errorf("failed to create RPC server: %w", err)
	}

	// Setup signal handling for graceful shutdown
	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Server error")
			sigCh <- syscall.SIGTERM
		}
	}()

	sig := <-sigCh
	log.Info().Str("signal", sig.String()).Msg("Received shutdown signal")

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()

	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Shutdown error")
	}
	if err := swapService.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop swap service")
	}
	if err := txService.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Msg("Failed to stop transaction service")
	}
	for name, c := range clients {
		c.Close()
		log.Info().Str("client", name).Msg("Closed remote client")
	}

	// the database is backed up and closed once ctx is done
	cancel()
	<-dbDone
	return nil
}

// dialEvm connects the first RPC url of an EVM chain
func dialEvm(ctx context.Context, info *models.ChainInfo) (chain.EvmApi, error) {
	if len(info.RPCURLs) == 0 {
		return nil, fmt.Errorf("chain %s has no rpc_urls", info.Slug)
	}
	client, err := ethclient.DialContext(ctx, info.RPCURLs[0])
	if err != nil {
		return nil, err
	}
	return client, nil
}

// newRemoteClient creates a failover client over urls, nil when no url is configured
func newRemoteClient(clients map[string]*remote.Client, name string, urls []string) *remote.Client {
	if len(urls) == 0 {
		return nil
	}
	client, err := remote.NewClientWithFailover(name, urls[0], urls[1:], remote.DefaultFailoverConfig())
	if err != nil {
		log.Warn().Err(err).Str("client", name).Msg("Failed to create remote client")
		return nil
	}
	clients[name] = client
	log.Info().
		Str("client", name).
		Str("primary", urls[0]).
		Int("backups", len(urls)-1).
		Msg("Remote client initialized")
	return client
}

// logNotifier writes user notifications to the log
type logNotifier struct{}

var _ chain.Notifier = logNotifier{}

func (logNotifier) Notify(_ context.Context, n models.Notification) {
	log.Info().
		Str("title", n.Title).
		Str("status", string(n.Status)).
		Str("link", n.Link).
		Msg(n.Message)
}

// accountSet holds the addresses signing through an external signer
type accountSet map[string]struct{}

var _ transaction.Accounts = accountSet(nil)

func newAccountSet(addresses []string) accountSet {
	set := make(accountSet, len(addresses))
	for _, a := range addresses {
		set[strings.ToLower(a)] = struct{}{}
	}
	return set
}

func (s accountSet) IsInjected(address string) bool {
	_, ok := s[strings.ToLower(address)]
	return ok
}

// buildServerConfig converts the loaded WalletCoreConfig to rpc.ServerConfig
func buildServerConfig(cfg *config.WalletCoreConfig) *rpc.ServerConfig {
	serverConfig := &rpc.ServerConfig{
		Address:        cfg.Host + ":" + strconv.Itoa(cfg.Port),
		AllowedOrigins: cfg.AllowedOrigins,
		EnableMetrics:  cfg.UsePrometheus,
		RequestTimeout: cfg.RequestTimeout,
	}

	if cfg.RatePerMinute > 0 {
		serverConfig.RatePerMinute = &cfg.RatePerMinute
	}
	if cfg.MaxConcurrentRequests > 0 {
		serverConfig.MaxConcurrentRequests = &cfg.MaxConcurrentRequests
	}

	if cfg.EnableTracing || cfg.EnableMetrics || cfg.EnableLogs || cfg.UsePrometheus {
		serverConfig.OTelConfig = &rpc.OTelConfig{
			ServiceName:    defaultString(cfg.ServiceName, "spectra-wallet"),
			ServiceVersion: defaultString(cfg.ServiceVersion, "1.0.0"),
			Environment:    defaultString(cfg.Environment, "development"),
			EnableTracing:  cfg.EnableTracing,
			UseOTLPTraces:  cfg.UseOTLPTraces,
			OTLPTracesURL:  cfg.OTLPTracesURL,
			EnableMetrics:  cfg.EnableMetrics,
			UsePrometheus:  cfg.UsePrometheus,
			UseOTLPMetrics: cfg.UseOTLPMetrics,
			OTLPMetricsURL: cfg.OTLPMetricsURL,
			EnableLogs:     cfg.EnableLogs,
			UseOTLPLogs:    cfg.UseOTLPLogs,
			OTLPLogsURL:    cfg.OTLPLogsURL,
			InsecureOTLP:   cfg.InsecureOTLP,
		}
	}
	return serverConfig
}

// defaultString returns the default value if s is empty
func defaultString(s, def string) string {
	if s == "" {
		return def
	}
	return s
}
