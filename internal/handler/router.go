package handler

import (
	"encoding/json"
	"net"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/cors"
	"go.uber.org/zap"

	"marketing-api/internal/config"
	"marketing-api/internal/util"
)

// requireHTTPS rejects requests that arrived over plain HTTP. X-Forwarded-Proto
// counts only when a trusted proxy sent it.
func requireHTTPS(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			forwarded := fromTrustedProxy(r, trusted) && r.Header.Get("X-Forwarded-Proto") == "https"
			if r.TLS == nil && !forwarded {
				writeJSON(w, http.StatusUpgradeRequired, Response{Error: "https required"})
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

// realIP rewrites RemoteAddr to the forwarded client address, but only for
// requests from a trusted proxy. Anyone else keeps their socket address.
func realIP(trusted []netip.Prefix) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if fromTrustedProxy(r, trusted) {
				r.RemoteAddr = util.ClientIP(r, trusted)
			}
			next.ServeHTTP(w, r)
		})
	}
}

func fromTrustedProxy(r *http.Request, trusted []netip.Prefix) bool {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		host = r.RemoteAddr
	}
	return util.IsTrusted(host, trusted)
}

// NewRouter creates and configures the Chi router with all middleware and routes
func NewRouter(forms *FormHandler, health *HealthHandler, cfg config.ServerConfig, logger *zap.Logger) chi.Router {
	if logger == nil {
		logger = zap.NewNop()
	}
	router := chi.NewRouter()

	if cfg.RequireHTTPS {
		router.Use(requireHTTPS(cfg.TrustedProxies))
	}

	// Middleware stack
	router.Use(middleware.RequestID)
	router.Use(realIP(cfg.TrustedProxies))
	router.Use(LoggerMiddleware(logger))
	router.Use(middleware.Recoverer)
	if cfg.RequestTimeout > 0 {
		router.Use(middleware.Timeout(cfg.RequestTimeout))
	}

	router.Use(cors.Handler(cors.Options{
		AllowedOrigins: cfg.AllowedOrigins,
		AllowedMethods: []string{"GET", "POST", "OPTIONS"},
		AllowedHeaders: []string{"Accept", "Content-Type", "X-Requested-With"},
		MaxAge:         300,
	}))

	router.Get("/health", health.Health)

	router.Route("/api", func(r chi.Router) {
		forms.RegisterRoutes(r)
	})

	router.NotFound(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusNotFound, Response{Error: "endpoint not found"})
	})

	router.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusMethodNotAllowed, Response{Error: "method not allowed"})
	})

	return router
}

// LoggerMiddleware creates a middleware that logs HTTP requests
func LoggerMiddleware(logger *zap.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			start := time.Now()
			ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
			defer func() {
				logger.Info("HTTP request",
					util.String("request_id", middleware.GetReqID(r.Context())),
					util.String("method", r.Method),
					util.String("path", r.URL.Path),
					util.String("remote_addr", r.RemoteAddr),
					util.Int("status", ww.Status()),
					util.Duration("duration", time.Since(start)),
					util.String("user_agent", r.UserAgent()),
				)
			}()
			next.ServeHTTP(ww, r)
		})
	}
}

func writeJSON(w http.ResponseWriter, statusCode int, data interface{}) error {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusCode)
	return json.NewEncoder(w).Encode(data)
}
