package api

import (
	"context"
	"net/http"

	"go.uber.org/zap"
	goahttp "goa.design/goa/v3/http"
	"goa.design/goa/v3/middleware"
)

// ErrorResponse is the body of every failed request
type ErrorResponse struct {
	Error string `json:"error"`
	ID    string `json:"id,omitempty"`
}

func requestID(ctx context.Context) string {
	id, _ := ctx.Value(middleware.RequestIDKey).(string)
	return id
}

func (s *Server) writeJSON(ctx context.Context, w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := goahttp.ResponseEncoder(ctx, w).Encode(v); err != nil {
		s.Logger.Warn("failed to encode response", zap.String("id", requestID(ctx)), zap.Error(err))
	}
}

// writeError writes and logs err together with the request ID so the two
// can be correlated
func (s *Server) writeError(ctx context.Context, w http.ResponseWriter, status int, msg string, err error) {
	id := requestID(ctx)
	fields := []zap.Field{zap.String("id", id), zap.Int("status", status), zap.String("error", msg)}
	if err != nil {
		fields = append(fields, zap.NamedError("cause", err))
	}
	if status >= http.StatusInternalServerError {
		s.Logger.Error("request failed", fields...)
	} else {
		s.Logger.Info("request rejected", fields...)
	}
	s.writeJSON(ctx, w, status, &ErrorResponse{Error: msg, ID: id})
}
