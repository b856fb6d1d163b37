package rpc

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"time"

	"connectrpc.com/connect"
	"connectrpc.com/otelconnect"
	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/rs/zerolog"
	"golang.org/x/net/http2"
	"golang.org/x/net/http2/h2c"
)

var Logger zerolog.Logger

func init() {
	out := zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}
	Logger = zerolog.New(out).With().Timestamp().Str("component", "rpc").Logger()
}

// SetLogger allows setting a custom logger
func SetLogger(l zerolog.Logger) {
	Logger = l
}

// ServerConfig holds configuration for the RPC server
type ServerConfig struct {
	Address               string
	AllowedOrigins        []string
	EnableMetrics         bool
	RatePerMinute         *int
	MaxConcurrentRequests *int
	RequestTimeout        time.Duration
	OTelConfig            *OTelConfig
}

// DefaultServerConfig returns a default server configuration
func DefaultServerConfig() *ServerConfig {
	rateLimit := 0
	maxConcurrentRequests := 200
	return &ServerConfig{
		Address:               "localhost:8080",
		AllowedOrigins:        []string{"http://localhost:3000", "http://localhost:8080"},
		EnableMetrics:         true,
		RatePerMinute:         &rateLimit,
		MaxConcurrentRequests: &maxConcurrentRequests,
		RequestTimeout:        60 * time.Second,
		OTelConfig:            DefaultOTelConfig(),
	}
}

// Services are the backends exposed over RPC. A nil service is not mounted.
type Services struct {
	Swap          SwapAPI
	Transactions  TransactionAPI
	Confirmations ConfirmationAPI
	// Ready reports whether the backends finished starting, nil means always ready
	Ready func() bool
}

// Server wraps the HTTP server and provides lifecycle management
type Server struct {
	config       *ServerConfig
	httpServer   *http.Server
	mux          *chi.Mux
	otelShutdown func(context.Context) error
	procedures   []string
}

// NewServer creates a new RPC server with the given configuration
func NewServer(ctx context.Context, config *ServerConfig, services Services) (*Server, error) {
	if config == nil {
		config = DefaultServerConfig()
	}
	otelCfg := config.OTelConfig

	var otelShutdown func(context.Context) error
	if otelCfg != nil && (otelCfg.EnableTracing || otelCfg.EnableMetrics || otelCfg.EnableLogs) {
		shutdown, err := NewOTelSDK(ctx, otelCfg)
		if err != nil {
			// the server runs without telemetry
			Logger.Error().Err(err).Msg("Failed to initialize OpenTelemetry")
		} else {
			otelShutdown = shutdown
		}
	}

	mux := chi.NewMux()
	mux.Use(zerologMiddleware)
	mux.Use(zerologRecoverer)
	mux.Use(middleware.RequestID)
	mux.Use(middleware.RealIP)
	mux.Use(middleware.Compress(5))
	timeout := config.RequestTimeout
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	mux.Use(middleware.Timeout(timeout))
	mux.Use(realIPMiddleware)

	if otelCfg != nil && otelCfg.EnableTracing {
		mux.Use(otelHTTPMiddleware)
	}

	if config.RatePerMinute != nil && *config.RatePerMinute > 0 {
		mux.Use(httprate.LimitByIP(*config.RatePerMinute, 1*time.Minute))
	}
	if config.MaxConcurrentRequests != nil && *config.MaxConcurrentRequests > 0 {
		mux.Use(middleware.Throttle(*config.MaxConcurrentRequests))
	}

	metricsEnabled := config.EnableMetrics || (otelCfg != nil && otelCfg.UsePrometheus)
	if metricsEnabled {
		mux.Handle("/server/metrics", promhttp.Handler())
		Logger.Info().Msg("Metrics endpoint enabled: /server/metrics")
	}

	mux.HandleFunc("/server/health", func(w http.ResponseWriter, r *http.Request) {
		writeStatus(w, http.StatusOK, `{"status":"healthy","service":"walletcore-rpc"}`)
	})
	mux.HandleFunc("/server/ready", func(w http.ResponseWriter, r *http.Request) {
		if services.Ready != nil && !services.Ready() {
			writeStatus(w, http.StatusServiceUnavailable, `{"status":"starting"}`)
			return
		}
		writeStatus(w, http.StatusOK, `{"status":"ready"}`)
	})

	connectOpts := []connect.HandlerOption{
		connect.WithCodec(jsonCodec{}),
		connect.WithRecover(recoverHandler),
		connect.WithInterceptors(
			loggingInterceptor(),
			noCacheInterceptor(),
		),
	}
	if otelCfg != nil && otelCfg.EnableTracing {
		otelInterceptor, err := otelconnect.NewInterceptor()
		if err != nil {
			Logger.Warn().Err(err).Msg("Failed to create OTEL interceptor, continuing without it")
		} else {
			connectOpts = append(connectOpts, connect.WithInterceptors(otelInterceptor))
		}
	}

	var procedures []string
	mount := func(routes []route) {
		for _, rt := range routes {
			mux.Handle(rt.procedure, rt.handler)
			procedures = append(procedures, rt.procedure)
		}
	}
	if services.Swap != nil {
		mount(swapRoutes(services.Swap, connectOpts))
	}
	if services.Transactions != nil {
		mount(transactionRoutes(services.Transactions, connectOpts))
	}
	if services.Confirmations != nil {
		mount(confirmationRoutes(services.Confirmations, connectOpts))
	}

	corsHandler := newCORSHandler(config.AllowedOrigins, mux)

	httpServer := &http.Server{
		Addr:              config.Address,
		Handler:           h2c.NewHandler(corsHandler, &http2.Server{}),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       30 * time.Second,
		WriteTimeout:      timeout + 5*time.Second,
		IdleTimeout:       120 * time.Second,
	}

	return &Server{
		config:       config,
		httpServer:   httpServer,
		mux:          mux,
		otelShutdown: otelShutdown,
		procedures:   procedures,
	}, nil
}

func writeStatus(w http.ResponseWriter, code int, body string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	_, _ = w.Write([]byte(body))
}

// Handler is the full HTTP stack of the server
func (s *Server) Handler() http.Handler {
	return s.httpServer.Handler
}

// Start begins serving RPC requests without TLS
func (s *Server) Start() error {
	s.logServerInfo("http")
	return s.httpServer.ListenAndServe()
}

// StartTLS begins serving RPC requests with TLS
func (s *Server) StartTLS(certFile, keyFile string) error {
	s.logServerInfo("https")
	return s.httpServer.ListenAndServeTLS(certFile, keyFile)
}

func (s *Server) logServerInfo(protocol string) {
	Logger.Info().
		Str("address", s.config.Address).
		Str("protocol", protocol).
		Msg("Spectra wallet core RPC server starting")

	Logger.Info().Msg("Available endpoints:")
	for _, p := range s.procedures {
		Logger.Info().Msgf("\tRPC: %s", p)
	}
	Logger.Info().Msg("\tHealth: /server/health")
	Logger.Info().Msg("\tReady: /server/ready")
	if s.config.EnableMetrics || (s.config.OTelConfig != nil && s.config.OTelConfig.UsePrometheus) {
		Logger.Info().Msg("\tMetrics: /server/metrics")
	}
}

// Shutdown gracefully shuts down the server
func (s *Server) Shutdown(ctx context.Context) error {
	Logger.Info().Msg("Shutting down RPC server...")

	if err := s.httpServer.Shutdown(ctx); err != nil {
		Logger.Error().Err(err).Msg("Error shutting down HTTP server")
	}

	// flush pending telemetry after the last request
	if s.otelShutdown != nil {
		if err := s.otelShutdown(ctx); err != nil {
			Logger.Error().Err(err).Msg("Error shutting down OpenTelemetry")
			return err
		}
	}

	Logger.Info().Msg("Server shutdown complete")
	return nil
}

// recoverHandler handles panics in RPC handlers
func recoverHandler(ctx context.Context, spec connect.Spec, header http.Header, p any) error {
	Logger.Error().
		Interface("panic", p).
		Str("procedure", spec.Procedure).
		Msg("Panic in RPC handler")
	return connect.NewError(connect.CodeInternal, fmt.Errorf("internal server error"))
}
