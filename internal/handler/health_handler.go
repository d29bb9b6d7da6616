package handler

import (
	"context"
	"net/http"
	"time"

	"go.uber.org/zap"
)

const healthCheckTimeout = 5 * time.Second

// HealthReporter is implemented by the dependency factory.
type HealthReporter interface {
	// Integrations lists every optional integration and whether it is configured.
	Integrations() map[string]bool
	// HealthCheck pings the configured integrations.
	HealthCheck(ctx context.Context) map[string]error
}

type HealthHandler struct {
	reporter HealthReporter
	logger   *zap.Logger
}

func NewHealthHandler(reporter HealthReporter, logger *zap.Logger) *HealthHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &HealthHandler{reporter: reporter, logger: logger}
}

type healthResponse struct {
	Status       string            `json:"status"`
	Service      string            `json:"service"`
	Integrations map[string]string `json:"integrations"`
}

// Health reports each integration as "ok", "unavailable" or "disabled". The
// endpoint stays 200 while degraded since every integration has a fallback.
func (h *HealthHandler) Health(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), healthCheckTimeout)
	defer cancel()

	resp := healthResponse{
		Status:       "healthy",
		Service:      "marketing-api",
		Integrations: map[string]string{},
	}

	var failures map[string]error
	if h.reporter != nil {
		failures = h.reporter.HealthCheck(ctx)
		for name, configured := range h.reporter.Integrations() {
			switch {
			case !configured:
				resp.Integrations[name] = "disabled"
			case failures[name] != nil:
				resp.Integrations[name] = "unavailable"
			default:
				resp.Integrations[name] = "ok"
			}
		}
	}

	for name, err := range failures {
		resp.Status = "degraded"
		h.logger.Warn("Integration health check failed", zap.String("integration", name), zap.Error(err))
	}

	if err := writeJSON(w, http.StatusOK, resp); err != nil {
		h.logger.Error("Failed to encode health response", zap.Error(err))
	}
}
