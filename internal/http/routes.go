package httpx

import (
	"log/slog"
	"net/http"
)

// RouterServices holds all the services needed by the HTTP router.
type RouterServices struct {
	Audits AuditService
	// Health lists the dependency probes reported by /healthz (optional).
	Health []HealthCheck
	// MaxBodyBytes caps request bodies; zero disables the cap.
	MaxBodyBytes int64
	Logger       *slog.Logger
}

// NewRouter creates and configures the HTTP router with its middleware chain.
func NewRouter(services RouterServices) http.Handler {
	mux := http.NewServeMux()

	registerAuditRoutes(mux, &AuditHandlers{Svc: services.Audits})
	health := newHealthHandler(services.Health)
	mux.Handle("GET /healthz", health)
	mux.Handle("HEAD /healthz", health)

	logger := services.Logger
	if logger == nil {
		logger = slog.Default()
	}

	return Chain(mux,
		RequestID(),
		Recover(logger),
		Logging(logger),
		LimitBody(services.MaxBodyBytes),
	)
}

func registerAuditRoutes(mux *http.ServeMux, h *AuditHandlers) {
	mux.HandleFunc("POST /api/audits", h.Submit)
	mux.HandleFunc("GET /api/audits", h.List)
	mux.HandleFunc("GET /api/audits/stats", h.Stats)
	mux.HandleFunc("GET /api/audits/{id}", h.Get)
	mux.HandleFunc("GET /api/audits/{id}/status", h.Status)
	mux.HandleFunc("GET /api/audits/{id}/result", h.Result)
	mux.HandleFunc("GET /api/audits/{id}/export.csv", h.ExportCSV)
}
