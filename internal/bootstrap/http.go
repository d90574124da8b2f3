package bootstrap

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"

	"github.com/target/mmk-site-audit/config"
	httpx "github.com/target/mmk-site-audit/internal/http"
)

const defaultListenAddr = ":8080"

// HTTPServerConfig contains configuration for HTTP server.
type HTTPServerConfig struct {
	Config   *config.AppConfig
	Services ServiceContainer
	Logger   *slog.Logger
	// ErrCh receives the serve error if the server stops unexpectedly (optional).
	ErrCh chan<- error
}

// StartHTTPServer binds the listen address and serves in the background. Bind failures
// are returned directly so a bad HTTP_ADDR stops startup before other services run.
func StartHTTPServer(cfg *HTTPServerConfig) (*http.Server, error) {
	if cfg == nil {
		return nil, errors.New("http server config is required")
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.Default()
	}

	httpCfg := config.HTTPConfig{}
	if cfg.Config != nil {
		httpCfg = cfg.Config.HTTP
	} else {
		httpCfg.Sanitize()
	}

	server := newHTTPServer(httpCfg, buildHTTPHandler(httpHandlerConfig{
		Logger:   logger,
		Services: cfg.Services,
		HTTP:     httpCfg,
	}))

	ln, err := net.Listen("tcp", server.Addr)
	if err != nil {
		return nil, fmt.Errorf("listen on %s: %w", server.Addr, err)
	}
	logger.Info("HTTP server listening", "addr", ln.Addr().String())

	go serve(server, ln, logger, cfg.ErrCh)
	return server, nil
}

type httpHandlerConfig struct {
	Logger   *slog.Logger
	Services ServiceContainer
	HTTP     config.HTTPConfig
}

func buildHTTPHandler(cfg httpHandlerConfig) http.Handler {
	var audits httpx.AuditService
	if cfg.Services.Audits != nil {
		audits = cfg.Services.Audits
	}
	return httpx.NewRouter(httpx.RouterServices{
		Audits:       audits,
		Health:       cfg.Services.Health,
		MaxBodyBytes: cfg.HTTP.MaxBodyBytes,
		Logger:       cfg.Logger,
	})
}

func newHTTPServer(cfg config.HTTPConfig, handler http.Handler) *http.Server {
	addr := cfg.Addr
	if addr == "" {
		addr = defaultListenAddr
	}
	return &http.Server{
		Addr:              addr,
		Handler:           handler,
		ReadTimeout:       cfg.ReadTimeout,
		ReadHeaderTimeout: cfg.ReadTimeout,
		WriteTimeout:      cfg.WriteTimeout,
		IdleTimeout:       cfg.IdleTimeout,
	}
}

func serve(server *http.Server, ln net.Listener, logger *slog.Logger, errCh chan<- error) {
	err := server.Serve(ln)
	if err == nil || errors.Is(err, http.ErrServerClosed) {
		return
	}
	logger.Error("HTTP server failed", "error", err)
	if errCh == nil {
		return
	}
	select {
	case errCh <- fmt.Errorf("http server: %w", err):
	default:
	}
}

// ShutdownConfig contains dependencies for HTTP server shutdown.
type ShutdownConfig struct {
	Context context.Context
	Server  *http.Server
	Logger  *slog.Logger
}

// ShutdownHTTPServer stops accepting connections and waits for in-flight requests,
// including long polls, until the context expires.
func ShutdownHTTPServer(cfg ShutdownConfig) error {
	if cfg.Server == nil {
		return nil
	}
	logger := cfg.Logger
	if logger == nil {
		logger = slog.New(slog.DiscardHandler)
	}
	ctx := cfg.Context
	if ctx == nil {
		ctx = context.Background()
	}

	logger.Info("shutting down HTTP server")
	if err := cfg.Server.Shutdown(ctx); err != nil {
		return fmt.Errorf("shutdown http server: %w", err)
	}
	logger.Info("HTTP server stopped")
	return nil
}
