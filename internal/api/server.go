package api

import (
	"context"
	"image"
	"net/http"
	"os"
	"time"

	"go.uber.org/zap"
	goahttp "goa.design/goa/v3/http"
	httpmdlwr "goa.design/goa/v3/http/middleware"
	"goa.design/goa/v3/middleware"

	"shopwatch/internal/auth"
	"shopwatch/internal/config"
	"shopwatch/internal/ledger"
	"shopwatch/internal/logging"
	"shopwatch/internal/mode"
	"shopwatch/internal/pipeline"
)

// ModeService reads and changes the secured flag
type ModeService interface {
	State() mode.Record
	Set(ctx context.Context, v bool) error
	Toggle(ctx context.Context) (mode.Record, error)
}

// History exposes the alert ledger
type History interface {
	Recent(limit int) []ledger.Entry
	Total() int
}

// Processor runs images through detection and alerting
type Processor interface {
	ProcessImage(ctx context.Context, img image.Image, name string) (*pipeline.Outcome, error)
	Stream(ctx context.Context, open pipeline.SourceOpener, yield func(*pipeline.Frame) error) error
}

// ImageStore holds uploaded originals and annotated images
type ImageStore interface {
	WriteFile(data []byte, name string) error
	Read(name string) ([]byte, error)
}

// Authenticator issues and checks operator tokens
type Authenticator interface {
	IsEnabled() bool
	Authenticate(username, password string) (string, int64, error)
	ValidateToken(token string) (*auth.Claims, error)
}

// Check is a named readiness probe
type Check func(ctx context.Context) error

// Deps are the collaborators served over HTTP
type Deps struct {
	Mode      ModeService
	History   History
	Pipeline  Processor
	Camera    pipeline.SourceOpener
	Images    ImageStore
	Auth      Authenticator
	Alerts    http.Handler
	Metrics   http.Handler
	Checks    map[string]Check
	Upload    config.UploadConfig
	Recent    int
	Logger    *zap.Logger
	DebugHTTP bool
}

// MountPoint describes one registered route
type MountPoint struct {
	Method  string
	Verb    string
	Pattern string
}

// Server is the HTTP control surface
type Server struct {
	Deps
	Mounts []*MountPoint

	mux goahttp.Muxer
	now func() time.Time
}

// New builds the server and mounts every route
func New(deps Deps) *Server {
	if deps.Recent <= 0 {
		deps.Recent = defaultHistoryLimit
	}
	s := &Server{
		Deps: deps,
		mux:  goahttp.NewMuxer(),
		now:  time.Now,
	}

	protect := func(h http.HandlerFunc) http.HandlerFunc {
		return authMiddleware(s.Auth)(h).ServeHTTP
	}

	s.mount("ShopStatus", "GET", "/api/shop/status", s.handleShopStatus)
	s.mount("ShopToggle", "POST", "/api/shop/toggle", protect(s.handleShopToggle))
	s.mount("AlertHistory", "GET", "/api/alerts/history", s.handleAlertHistory)
	s.mount("Upload", "POST", "/upload", s.handleUpload)
	s.mount("VideoFeed", "GET", "/video_feed", s.handleVideoFeed)
	s.mount("Uploads", "GET", "/uploads/{filename}", s.handleUploads)
	s.mount("Login", "POST", "/api/auth/login", s.handleLogin)
	s.mount("Healthz", "GET", "/healthz", s.handleHealthz)
	s.mount("Readyz", "GET", "/readyz", s.handleReadyz)
	if s.Alerts != nil {
		s.mount("AlertsSocket", "GET", "/ws/alerts", s.Alerts.ServeHTTP)
	}
	if s.Metrics != nil {
		s.mount("Metrics", "GET", "/metrics", s.Metrics.ServeHTTP)
	}
	return s
}

func (s *Server) mount(method, verb, pattern string, h http.HandlerFunc) {
	s.mux.Handle(verb, pattern, h)
	s.Mounts = append(s.Mounts, &MountPoint{Method: method, Verb: verb, Pattern: pattern})
}

// Handler returns the muxer wrapped with request logging and request IDs.
// Long-lived streams skip the log middleware and log their own lifetime.
func (s *Server) Handler() http.Handler {
	var logged http.Handler = s.mux
	if s.DebugHTTP {
		logged = httpmdlwr.Debug(s.mux, os.Stdout)(logged)
	}
	adapter := middleware.NewLogger(logging.StdLogger(s.Logger, "http"))
	logged = httpmdlwr.Log(adapter)(logged)

	var handler http.Handler = http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if isStreamingPath(r.URL.Path) {
			s.mux.ServeHTTP(w, r)
			return
		}
		logged.ServeHTTP(w, r)
	})
	handler = httpmdlwr.RequestID()(handler)
	return handler
}

func isStreamingPath(path string) bool {
	return path == "/video_feed" || path == "/ws/alerts"
}
