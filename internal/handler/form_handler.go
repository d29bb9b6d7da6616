package handler

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/netip"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"marketing-api/internal/service"
	"marketing-api/internal/util"
)

const (
	maxBodyBytes   = 64 << 10
	genericFailure = "Something went wrong. Please try again."
)

// FormHandler serves the public form endpoints.
type FormHandler struct {
	services       *service.ServiceFactory
	trustedProxies []netip.Prefix
	logger         *zap.Logger
}

// NewFormHandler builds the form endpoints. Forwarding headers are honoured
// only for requests arriving from trustedProxies.
func NewFormHandler(services *service.ServiceFactory, trustedProxies []netip.Prefix, logger *zap.Logger) *FormHandler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &FormHandler{
		services:       services,
		trustedProxies: trustedProxies,
		logger:         logger,
	}
}

// Response is the body of every form endpoint.
type Response struct {
	Message       string `json:"message,omitempty"`
	Error         string `json:"error,omitempty"`
	Mailto        string `json:"mailto,omitempty"`
	EmailDelivery string `json:"emailDelivery,omitempty"`
	ClientSecret  string `json:"clientSecret,omitempty"`
}

func outcomeResponse(out *service.Outcome) Response {
	return Response{
		Message:       out.Message,
		Mailto:        out.Mailto,
		EmailDelivery: out.EmailDelivery,
		ClientSecret:  out.ClientSecret,
	}
}

// RegisterRoutes registers all form routes
func (h *FormHandler) RegisterRoutes(router chi.Router) {
	router.Post("/contact", h.Contact)
	router.Post("/request-access", h.RequestAccess)
	router.Post("/signup", h.Signup)
	router.Post("/auth/resend-verification", h.ResendVerification)
	router.Post("/stripe/checkout-session", h.CheckoutSession)
}

// formService is the admission and submission surface shared by every form.
type formService[T any] interface {
	Admit(ctx context.Context, meta service.ClientMeta) error
	Submit(ctx context.Context, meta service.ClientMeta, req T) (*service.Outcome, error)
}

// serveForm runs the standard pipeline: body-independent admission, JSON
// decoding, then the service's submission path.
func serveForm[T any](h *FormHandler, w http.ResponseWriter, r *http.Request, form string, svc formService[T]) {
	ctx := r.Context()
	startTime := time.Now()
	meta := h.clientMeta(r)

	if err := svc.Admit(ctx, meta); err != nil {
		h.respondWithError(w, err)
		return
	}

	var req T
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Debug("Rejected malformed form body", util.String("form", form), util.ErrorField(err))
		h.respondWithJSON(w, http.StatusBadRequest, Response{Error: service.InvalidJSONMessage})
		return
	}

	out, err := svc.Submit(ctx, meta, req)
	if err != nil {
		h.respondWithError(w, err)
		return
	}

	h.respondWithJSON(w, http.StatusOK, outcomeResponse(out))
	h.logger.Info("Form submission handled",
		util.String("form", form),
		util.Bool("fallback", out.Mailto != ""),
		util.Duration("duration", time.Since(startTime)),
	)
}

// Contact handles POST /api/contact
func (h *FormHandler) Contact(w http.ResponseWriter, r *http.Request) {
	serveForm[service.ContactRequest](h, w, r, "contact", h.services.ContactService())
}

// RequestAccess handles POST /api/request-access
func (h *FormHandler) RequestAccess(w http.ResponseWriter, r *http.Request) {
	serveForm[service.RequestAccessRequest](h, w, r, "request_access", h.services.RequestAccessService())
}

// Signup handles POST /api/signup
func (h *FormHandler) Signup(w http.ResponseWriter, r *http.Request) {
	serveForm[service.SignupRequest](h, w, r, "signup", h.services.SignupService())
}

// CheckoutSession handles POST /api/stripe/checkout-session
func (h *FormHandler) CheckoutSession(w http.ResponseWriter, r *http.Request) {
	serveForm[service.CheckoutRequest](h, w, r, "checkout", h.services.CheckoutService())
}

// ResendVerification handles POST /api/auth/resend-verification. Apart from
// rate limiting, every outcome gets the same generic 200 body.
func (h *FormHandler) ResendVerification(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	svc := h.services.ResendService()
	meta := h.clientMeta(r)

	if err := svc.Admit(ctx, meta); err != nil {
		h.respondResendError(w, err)
		return
	}

	var req service.ResendRequest
	if err := decodeJSON(w, r, &req); err != nil {
		h.logger.Debug("Rejected malformed resend body", util.ErrorField(err))
		h.respondWithJSON(w, http.StatusOK, outcomeResponse(svc.Generic()))
		return
	}

	out, err := svc.Submit(ctx, meta, req)
	if err != nil {
		h.respondResendError(w, err)
		return
	}
	h.respondWithJSON(w, http.StatusOK, outcomeResponse(out))
}

func (h *FormHandler) respondResendError(w http.ResponseWriter, err error) {
	if errors.Is(err, service.ErrRateLimited) {
		h.respondWithJSON(w, http.StatusTooManyRequests, Response{Message: service.ResendRateLimitedMessage})
		return
	}
	h.respondWithJSON(w, http.StatusOK, Response{Message: service.ResendGenericMessage})
}

func (h *FormHandler) clientMeta(r *http.Request) service.ClientMeta {
	return service.ClientMeta{
		IP:        util.ClientIP(r, h.trustedProxies),
		UserAgent: r.UserAgent(),
	}
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst interface{}) error {
	return json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(dst)
}

// respondWithJSON sends a JSON response
func (h *FormHandler) respondWithJSON(w http.ResponseWriter, statusCode int, data interface{}) {
	if err := writeJSON(w, statusCode, data); err != nil {
		h.logger.Error("Failed to encode JSON response", util.ErrorField(err))
	}
}

// respondWithError sends the user-facing message carried by err
func (h *FormHandler) respondWithError(w http.ResponseWriter, err error) {
	statusCode := getStatusCode(err)
	message := service.UserMessage(err, genericFailure)
	if statusCode >= http.StatusInternalServerError {
		h.logger.Warn("HTTP error response",
			util.ErrorField(err),
			util.Int("status_code", statusCode),
		)
	}
	h.respondWithJSON(w, statusCode, Response{Error: message})
}

// getStatusCode maps service errors to HTTP status codes
func getStatusCode(err error) int {
	switch {
	case errors.Is(err, service.ErrInvalidInput):
		return http.StatusBadRequest
	case errors.Is(err, service.ErrRateLimited):
		return http.StatusTooManyRequests
	case errors.Is(err, service.ErrVerificationFailed):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
