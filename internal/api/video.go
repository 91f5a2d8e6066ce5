package api

import (
	"errors"
	"net/http"

	"go.uber.org/zap"

	"shopwatch/internal/pipeline"
	"shopwatch/internal/stream"
)

// handleVideoFeed streams annotated live frames until the client leaves
func (s *Server) handleVideoFeed(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()

	mw, err := stream.NewMJPEGWriter(w)
	if err != nil {
		s.writeError(ctx, w, http.StatusInternalServerError, err.Error(), nil)
		return
	}

	id := requestID(ctx)
	s.Logger.Info("video client connected", zap.String("id", id), zap.String("remote", r.RemoteAddr))

	err = s.Pipeline.Stream(ctx, s.Camera, func(f *pipeline.Frame) error {
		return mw.WriteImage(f.Image)
	})

	switch {
	case err == nil, errors.Is(err, ctx.Err()):
		s.Logger.Info("video client disconnected", zap.String("id", id), zap.Uint64("frames", mw.Frames()))
	case mw.Frames() == 0:
		s.writeError(ctx, w, http.StatusServiceUnavailable, "live stream unavailable", err)
	default:
		s.Logger.Warn("video stream ended", zap.String("id", id), zap.Uint64("frames", mw.Frames()), zap.Error(err))
	}
}
