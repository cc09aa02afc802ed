// Package httpd exposes the engine over a small JSON HTTP surface.
// It is a thin adapter: request decoding, client IP propagation, and
// error-to-status mapping, with every decision delegated to the
// engine.
package httpd

import (
	"errors"
	"log/slog"
	"net/http"

	"github.com/labstack/echo/v4"

	geogate "github.com/MrEthical07/goGeoGate"
	"github.com/MrEthical07/goGeoGate/geo"
)

// Handler defines a public type used by goGeoGate APIs.
//
// Handler instances are intended to be configured during initialization and then treated as immutable unless documented otherwise.
type Handler struct {
	engine *geogate.Engine
	logger *slog.Logger
}

// New describes the new operation and its observable behavior.
//
// New may return an error when input validation, dependency calls, or security checks fail.
// New does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func New(engine *geogate.Engine, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		engine: engine,
		logger: logger,
	}
}

// Register mounts the auth routes on the given echo instance.
func (h *Handler) Register(e *echo.Echo) {
	e.POST("/auth/register", h.HandleRegister)
	e.POST("/auth/login", h.HandleLogin)
	e.POST("/auth/verify-otp", h.HandleVerifyStepUp)
	e.GET("/auth/session/:id", h.HandleGetSession)
	e.POST("/auth/logout", h.HandleLogout)
}

type locationPayload struct {
	Lat            float64 `json:"lat"`
	Lon            float64 `json:"lon"`
	AccuracyMeters float64 `json:"accuracy_meters,omitempty"`
}

type registerRequest struct {
	Email      string           `json:"email"`
	Name       string           `json:"name"`
	Credential string           `json:"credential"`
	Location   *locationPayload `json:"location,omitempty"`
}

type loginRequest struct {
	Email      string           `json:"email"`
	Credential string           `json:"credential"`
	Location   *locationPayload `json:"location,omitempty"`
}

type verifyRequest struct {
	StepUpToken string `json:"step_up_token"`
	Code        string `json:"code"`
}

type logoutRequest struct {
	AccountID string `json:"account_id"`
}

type sessionResponse struct {
	Valid     bool  `json:"valid"`
	ExpiresAt int64 `json:"expires_at,omitempty"`
}

type authResponse struct {
	Status           string  `json:"status"`
	AccountID        string  `json:"account_id,omitempty"`
	SessionToken     string  `json:"session_token,omitempty"`
	SessionExpiresAt int64   `json:"session_expires_at,omitempty"`
	StepUpToken      string  `json:"step_up_token,omitempty"`
	OTPSentTo        string  `json:"otp_sent_to,omitempty"`
	Tier             string  `json:"tier"`
	DistanceMeters   float64 `json:"distance_meters"`
}

// HandleRegister describes the handleregister operation and its observable behavior.
//
// HandleRegister may return an error when input validation, dependency calls, or security checks fail.
// HandleRegister does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) HandleRegister(c echo.Context) error {
	var req registerRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := geogate.WithClientIP(c.Request().Context(), c.RealIP())

	result, err := h.engine.Register(ctx, req.Email, req.Name, req.Credential, coordFromPayload(req.Location))
	if err != nil {
		h.logger.InfoContext(ctx, "register rejected", "error", err)
		return mapError(err)
	}

	return c.JSON(http.StatusCreated, toAuthResponse(result))
}

// HandleLogin describes the handlelogin operation and its observable behavior.
//
// HandleLogin may return an error when input validation, dependency calls, or security checks fail.
// HandleLogin does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) HandleLogin(c echo.Context) error {
	var req loginRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := geogate.WithClientIP(c.Request().Context(), c.RealIP())

	result, err := h.engine.Login(ctx, req.Email, req.Credential, coordFromPayload(req.Location))
	if err != nil {
		h.logger.InfoContext(ctx, "login rejected", "error", err)
		return mapError(err)
	}

	status := http.StatusOK
	if result.StepUpRequired {
		status = http.StatusAccepted
	}
	return c.JSON(status, toAuthResponse(result))
}

// HandleVerifyStepUp describes the handleverifystepup operation and its observable behavior.
//
// HandleVerifyStepUp may return an error when input validation, dependency calls, or security checks fail.
// HandleVerifyStepUp does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) HandleVerifyStepUp(c echo.Context) error {
	var req verifyRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := geogate.WithClientIP(c.Request().Context(), c.RealIP())

	result, err := h.engine.VerifyStepUp(ctx, req.StepUpToken, req.Code)
	if err != nil {
		h.logger.InfoContext(ctx, "step-up rejected", "error", err)
		return mapError(err)
	}

	return c.JSON(http.StatusOK, toAuthResponse(result))
}

// HandleGetSession describes the handlegetsession operation and its observable behavior.
//
// HandleGetSession may return an error when input validation, dependency calls, or security checks fail.
// HandleGetSession does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) HandleGetSession(c echo.Context) error {
	accountID := c.Param("id")

	status, err := h.engine.GetSession(c.Request().Context(), accountID)
	if err != nil {
		h.logger.ErrorContext(c.Request().Context(), "session lookup failed", "error", err)
		return mapError(err)
	}

	return c.JSON(http.StatusOK, sessionResponse{
		Valid:     status.Valid,
		ExpiresAt: status.ExpiresAt,
	})
}

// HandleLogout describes the handlelogout operation and its observable behavior.
//
// HandleLogout may return an error when input validation, dependency calls, or security checks fail.
// HandleLogout does not mutate shared global state and can be used concurrently when the receiver and dependencies are concurrently safe.
func (h *Handler) HandleLogout(c echo.Context) error {
	var req logoutRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}

	ctx := geogate.WithClientIP(c.Request().Context(), c.RealIP())

	if err := h.engine.Logout(ctx, req.AccountID); err != nil {
		h.logger.ErrorContext(ctx, "logout failed", "error", err)
		return mapError(err)
	}

	return c.NoContent(http.StatusNoContent)
}

func coordFromPayload(p *locationPayload) *geo.Coordinate {
	if p == nil {
		return nil
	}
	return &geo.Coordinate{
		Lat:            p.Lat,
		Lon:            p.Lon,
		AccuracyMeters: p.AccuracyMeters,
		Source:         geo.SourceClientGPS,
	}
}

func toAuthResponse(r *geogate.LoginResult) authResponse {
	resp := authResponse{
		Status:           r.Status.String(),
		SessionToken:     r.SessionToken,
		SessionExpiresAt: r.SessionExpiresAt,
		StepUpToken:      r.StepUpToken,
		OTPSentTo:        r.OTPSentTo,
		Tier:             r.Tier.String(),
		DistanceMeters:   r.DistanceMeters,
	}
	if r.Account != nil {
		resp.AccountID = r.Account.AccountID
	}
	return resp
}

func mapError(err error) *echo.HTTPError {
	switch {
	case errors.Is(err, geogate.ErrInvalidCredentials):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, geogate.ErrAccountExists):
		return echo.NewHTTPError(http.StatusConflict, "account already exists")
	case errors.Is(err, geogate.ErrAccountNotFound):
		return echo.NewHTTPError(http.StatusUnauthorized, "invalid credentials")
	case errors.Is(err, geogate.ErrLocationDenied):
		return echo.NewHTTPError(http.StatusForbidden, "login location denied")
	case errors.Is(err, geogate.ErrLocationUnavailable):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "location could not be resolved")
	case errors.Is(err, geogate.ErrLoginRateLimited),
		errors.Is(err, geogate.ErrStepUpRateLimited),
		errors.Is(err, geogate.ErrStepUpAttemptsExceeded):
		return echo.NewHTTPError(http.StatusTooManyRequests, "rate limited")
	case errors.Is(err, geogate.ErrStepUpTokenInvalid),
		errors.Is(err, geogate.ErrStepUpCodeInvalid),
		errors.Is(err, geogate.ErrStepUpExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "step-up verification failed")
	case errors.Is(err, geogate.ErrSessionNotFound),
		errors.Is(err, geogate.ErrSessionExpired):
		return echo.NewHTTPError(http.StatusUnauthorized, "no valid session")
	case errors.Is(err, geogate.ErrStepUpUnavailable),
		errors.Is(err, geogate.ErrDeliveryUnavailable),
		errors.Is(err, geogate.ErrRecordUnavailable),
		errors.Is(err, geogate.ErrEngineNotReady):
		return echo.NewHTTPError(http.StatusServiceUnavailable, "service unavailable")
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, "internal error")
	}
}
