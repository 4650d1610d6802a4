package http

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/rs/zerolog"

	"github.com/vovakirdan/roomcast/internal/auth"
)

const guestCookieMaxAge = 7 * 24 * 3600

// APIHandlers serves account endpoints.
type APIHandlers struct {
	authService *auth.Service
	log         *zerolog.Logger
}

// NewAPIHandlers creates account handlers.
func NewAPIHandlers(authService *auth.Service, logger *zerolog.Logger) *APIHandlers {
	return &APIHandlers{authService: authService, log: logger}
}

// RegisterRequest is the body of POST /api/register.
type RegisterRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// LoginRequest is the body of POST /api/login.
type LoginRequest struct {
	Username string `json:"username" binding:"required"`
	Password string `json:"password" binding:"required"`
}

// AuthResponse carries a freshly issued token.
type AuthResponse struct {
	Token string `json:"token"`
}

// ErrorResponse is the body of every REST error.
type ErrorResponse struct {
	Error string `json:"error"`
}

// authStatus maps account errors to HTTP statuses. Unknown errors are 500.
func authStatus(err error) (int, string) {
	switch {
	case errors.Is(err, auth.ErrInvalidUsername):
		return http.StatusBadRequest, "username must be 3 to 32 characters"
	case errors.Is(err, auth.ErrInvalidPassword):
		return http.StatusBadRequest, "password must be 6 to 72 bytes"
	case errors.Is(err, auth.ErrUserExists):
		return http.StatusConflict, "user already exists"
	case errors.Is(err, auth.ErrInvalidCredentials):
		return http.StatusUnauthorized, "invalid credentials"
	default:
		return http.StatusInternalServerError, "internal server error"
	}
}

func (h *APIHandlers) fail(c *gin.Context, op, username string, err error) {
	status, msg := authStatus(err)
	if status == http.StatusInternalServerError {
		h.log.Error().Err(err).Str("op", op).Str("username", username).Msg("account request failed")
	} else {
		h.log.Debug().Err(err).Str("op", op).Str("username", username).Msg("account request refused")
	}
	c.JSON(status, ErrorResponse{Error: msg})
}

// Register handles POST /api/register.
func (h *APIHandlers) Register(c *gin.Context) {
	var req RegisterRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Register(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, "register", req.Username, err)
		return
	}

	h.log.Info().Str("username", req.Username).Msg("user registered")
	c.JSON(http.StatusCreated, AuthResponse{Token: token})
}

// Login handles POST /api/login.
func (h *APIHandlers) Login(c *gin.Context) {
	var req LoginRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, ErrorResponse{Error: "invalid request body"})
		return
	}

	token, err := h.authService.Login(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		h.fail(c, "login", req.Username, err)
		return
	}

	c.JSON(http.StatusOK, AuthResponse{Token: token})
}

// GuestLogin handles POST /api/guest. The session id is also set as an
// http-only cookie.
func (h *APIHandlers) GuestLogin(c *gin.Context) {
	token, sessionID, err := h.authService.CreateGuestUser(c.Request.Context())
	if err != nil {
		h.fail(c, "guest", "", err)
		return
	}

	c.SetSameSite(http.SameSiteLaxMode)
	c.SetCookie("guest_session", sessionID, guestCookieMaxAge, "/", "", c.Request.TLS != nil, true)
	h.log.Info().Str("session_id", sessionID).Msg("guest created")
	c.JSON(http.StatusOK, AuthResponse{Token: token})
}
