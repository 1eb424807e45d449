// Package server exposes the self-service operations over HTTP. The
// handlers translate transport concerns only; all semantics live in the
// services.
package server

import (
	"errors"
	"net/http"
	"strings"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"go.opentelemetry.io/contrib/instrumentation/github.com/labstack/echo/otelecho"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"

	authservice "member-portal/internal/auth/service"
	"member-portal/internal/authz"
	mutationservice "member-portal/internal/mutation/service"
	"member-portal/internal/security"
)

// Handler wires the auth and mutation services into echo routes.
type Handler struct {
	auth      *authservice.AuthService
	mutations *mutationservice.MutationService
	requests  metric.Int64Counter
}

// NewHandler returns a Handler over the given services.
func NewHandler(auth *authservice.AuthService, mutations *mutationservice.MutationService) *Handler {
	meter := otel.Meter("member-portal/server")
	requests, _ := meter.Int64Counter("portal.requests",
		metric.WithDescription("Self-service operations by outcome"))
	return &Handler{auth: auth, mutations: mutations, requests: requests}
}

// NewEcho returns an echo instance with the standard middleware stack and
// all routes registered.
func NewEcho(h *Handler) *echo.Echo {
	e := echo.New()
	e.HideBanner = true
	e.Use(middleware.Logger())
	e.Use(middleware.Recover())
	e.Use(middleware.CORS())
	e.Use(otelecho.Middleware("member-portal"))
	h.RegisterRoutes(e)
	return e
}

// RegisterRoutes registers the transport surface.
func (h *Handler) RegisterRoutes(e *echo.Echo) {
	e.POST("/api/auth/request-code", h.handleRequestCode)
	e.POST("/api/auth/redeem-code", h.handleRedeemCode)
	e.POST("/api/mutations", h.handleProposeMutation)
	e.GET("/health", h.handleHealth)
}

type requestCodeRequest struct {
	Email string `json:"email"`
}

func (h *Handler) handleRequestCode(c echo.Context) error {
	var req requestCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Email == "" || !strings.Contains(req.Email, "@") {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "valid email required"})
	}
	err := h.auth.RequestCode(c.Request().Context(), req.Email)
	if err != nil {
		h.count(c, "request-code", "error")
		if errors.Is(err, authservice.ErrStoreUnavailable) {
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
		}
		return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to send code"})
	}
	h.count(c, "request-code", "ok")
	// Same answer whether or not the address is on the member list.
	return c.JSON(http.StatusOK, echo.Map{
		"success": true,
		"message": "Wenn diese E-Mail-Adresse registriert ist, wurde ein Code gesendet.",
	})
}

type redeemCodeRequest struct {
	Email string `json:"email"`
	Code  string `json:"code"`
}

func (h *Handler) handleRedeemCode(c echo.Context) error {
	var req redeemCodeRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if req.Email == "" || req.Code == "" {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "email and code required"})
	}

	res, err := h.auth.RedeemCode(c.Request().Context(), req.Email, req.Code)
	if err != nil {
		h.count(c, "redeem-code", "error")
		var invalid *authservice.InvalidCodeError
		switch {
		case errors.As(err, &invalid):
			return c.JSON(http.StatusUnauthorized, echo.Map{
				"error":             "invalid code",
				"remainingAttempts": invalid.Remaining,
			})
		case errors.Is(err, authservice.ErrCodeExpired):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "code expired or not requested"})
		case errors.Is(err, authservice.ErrTooManyAttempts):
			return c.JSON(http.StatusTooManyRequests, echo.Map{"error": "too many failed attempts, request a new code"})
		case errors.Is(err, authservice.ErrStoreUnavailable):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "verification failed"})
		}
	}
	h.count(c, "redeem-code", "ok")
	return c.JSON(http.StatusOK, echo.Map{
		"success":   true,
		"token":     res.Token,
		"role":      res.Role,
		"expiresIn": int(time.Until(res.ExpiresAt).Seconds()),
		"member":    res.Member,
	})
}

type proposeMutationRequest struct {
	TargetEmail string            `json:"targetEmail"`
	Changes     map[string]string `json:"changes"`
}

func (h *Handler) handleProposeMutation(c echo.Context) error {
	token := bearerToken(c)
	if token == "" {
		return c.JSON(http.StatusUnauthorized, echo.Map{"error": "bearer token required"})
	}
	var req proposeMutationRequest
	if err := c.Bind(&req); err != nil {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "invalid request body"})
	}
	if len(req.Changes) == 0 {
		return c.JSON(http.StatusBadRequest, echo.Map{"error": "changes required"})
	}

	id, err := h.mutations.Propose(c.Request().Context(), token, req.TargetEmail, req.Changes)
	if err != nil {
		h.count(c, "propose-mutation", "error")
		switch {
		case errors.Is(err, security.ErrMalformedToken),
			errors.Is(err, security.ErrInvalidSignature),
			errors.Is(err, security.ErrTokenExpired):
			return c.JSON(http.StatusUnauthorized, echo.Map{"error": "invalid or expired token"})
		case errors.Is(err, mutationservice.ErrForbidden):
			return c.JSON(http.StatusForbidden, echo.Map{"error": "not allowed to edit this record"})
		case errors.Is(err, authz.ErrNoPermittedFields):
			return c.JSON(http.StatusUnprocessableEntity, echo.Map{"error": "no permitted fields in request"})
		case errors.Is(err, mutationservice.ErrMemberNotFound):
			return c.JSON(http.StatusNotFound, echo.Map{"error": "member not found"})
		case errors.Is(err, mutationservice.ErrStoreUnavailable):
			return c.JSON(http.StatusServiceUnavailable, echo.Map{"error": "temporarily unavailable"})
		default:
			return c.JSON(http.StatusInternalServerError, echo.Map{"error": "failed to record change"})
		}
	}
	h.count(c, "propose-mutation", "ok")
	return c.JSON(http.StatusOK, echo.Map{"success": true, "proposalId": id})
}

func (h *Handler) handleHealth(c echo.Context) error {
	return c.JSON(http.StatusOK, echo.Map{"status": "ok", "timestamp": time.Now().UTC().Format(time.RFC3339)})
}

func bearerToken(c echo.Context) string {
	header := c.Request().Header.Get(echo.HeaderAuthorization)
	if !strings.HasPrefix(header, "Bearer ") {
		return ""
	}
	return strings.TrimPrefix(header, "Bearer ")
}

func (h *Handler) count(c echo.Context, op, outcome string) {
	h.requests.Add(c.Request().Context(), 1,
		metric.WithAttributes(
			attribute.String("operation", op),
			attribute.String("outcome", outcome),
		))
}
