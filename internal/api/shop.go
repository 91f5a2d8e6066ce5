package api

import (
	"errors"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
	goahttp "goa.design/goa/v3/http"

	"shopwatch/internal/auth"
	"shopwatch/internal/middleware"
)

const (
	statusSecured = "CLOSED - Security ON"
	statusOpen    = "OPEN - Security OFF"
)

// ShopStatus is the response of GET /api/shop/status
type ShopStatus struct {
	IsOn      bool       `json:"is_on"`
	Status    string     `json:"status"`
	Updated   *time.Time `json:"updated,omitempty"`
	Timestamp time.Time  `json:"timestamp"`
}

// ToggleRequest is the optional body of POST /api/shop/toggle
type ToggleRequest struct {
	IsOn *bool `json:"is_on"`
}

// ToggleResponse reports the mode after a toggle
type ToggleResponse struct {
	Success bool   `json:"success"`
	IsOn    bool   `json:"is_on"`
	Message string `json:"message"`
}

func statusText(isOn bool) string {
	if isOn {
		return statusSecured
	}
	return statusOpen
}

func (s *Server) handleShopStatus(w http.ResponseWriter, r *http.Request) {
	rec := s.Mode.State()
	res := &ShopStatus{
		IsOn:      rec.IsOn,
		Status:    statusText(rec.IsOn),
		Timestamp: s.now(),
	}
	if !rec.Updated.IsZero() {
		updated := rec.Updated
		res.Updated = &updated
	}
	s.writeJSON(r.Context(), w, http.StatusOK, res)
}

// handleShopToggle sets the mode from the body, or inverts it when the body
// is empty or carries no is_on field
func (s *Server) handleShopToggle(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	var body ToggleRequest
	if err := goahttp.RequestDecoder(r).Decode(&body); err != nil && !errors.Is(err, io.EOF) {
		s.writeError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	var isOn bool
	if body.IsOn != nil {
		isOn = *body.IsOn
		if err := s.Mode.Set(ctx, isOn); err != nil {
			s.writeError(ctx, w, http.StatusInternalServerError, "failed to persist shop mode", err)
			return
		}
	} else {
		rec, err := s.Mode.Toggle(ctx)
		if err != nil {
			s.writeError(ctx, w, http.StatusInternalServerError, "failed to persist shop mode", err)
			return
		}
		isOn = rec.IsOn
	}

	msg := "🔓 Shop OPEN - Security System DISABLED"
	if isOn {
		msg = "🔒 Shop CLOSED - Security System ACTIVATED"
	}
	fields := []zap.Field{zap.Bool("is_on", isOn), zap.String("id", requestID(ctx))}
	if claims := middleware.GetUserFromContext(ctx); claims != nil {
		fields = append(fields, zap.String("user", claims.Username))
	}
	s.Logger.Info(msg, fields...)

	s.writeJSON(ctx, w, http.StatusOK, &ToggleResponse{Success: true, IsOn: isOn, Message: msg})
}

func authMiddleware(a Authenticator) func(http.Handler) http.Handler {
	if a == nil {
		return func(next http.Handler) http.Handler { return next }
	}
	return middleware.AuthMiddleware(a)
}

// LoginRequest is the body of POST /api/auth/login
type LoginRequest struct {
	Username string `json:"username"`
	Password string `json:"password"`
}

// LoginResponse carries a bearer token
type LoginResponse struct {
	Token     string `json:"token"`
	ExpiresAt int64  `json:"expires_at"`
}

func (s *Server) handleLogin(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	if s.Auth == nil || !s.Auth.IsEnabled() {
		s.writeError(ctx, w, http.StatusNotFound, auth.ErrAuthDisabled.Error(), nil)
		return
	}

	var body LoginRequest
	if err := goahttp.RequestDecoder(r).Decode(&body); err != nil {
		s.writeError(ctx, w, http.StatusBadRequest, "invalid request body", err)
		return
	}

	token, expiresAt, err := s.Auth.Authenticate(body.Username, body.Password)
	switch {
	case errors.Is(err, auth.ErrInvalidCredentials):
		s.writeError(ctx, w, http.StatusUnauthorized, err.Error(), nil)
		return
	case err != nil:
		s.writeError(ctx, w, http.StatusInternalServerError, "failed to issue token", err)
		return
	}

	s.writeJSON(ctx, w, http.StatusOK, &LoginResponse{Token: token, ExpiresAt: expiresAt})
}
