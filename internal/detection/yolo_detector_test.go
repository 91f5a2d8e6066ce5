package detection

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newYOLOServer(t *testing.T, healthCalls *atomic.Int32, modelLoaded bool) *httptest.Server {
	t.Helper()
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCalls.Add(1)
		json.NewEncoder(w).Encode(YOLOHealthResponse{Status: "healthy", ModelLoaded: modelLoaded})
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if err := r.ParseMultipartForm(1 << 20); err != nil {
			http.Error(w, err.Error(), http.StatusBadRequest)
			return
		}
		if _, _, err := r.FormFile("file"); err != nil {
			http.Error(w, "missing file", http.StatusBadRequest)
			return
		}
		if r.FormValue("conf_threshold") != "0.200" {
			http.Error(w, "bad threshold", http.StatusBadRequest)
			return
		}
		json.NewEncoder(w).Encode(YOLOResult{
			Count: 2,
			Detections: []YOLODetection{
				{Class: "person", Confidence: 0.8, BBox: []float64{10, 20, 110, 220}},
				{Class: "chair", Confidence: 0.4, BBox: []float64{0, 0, 5, 5}},
			},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)
	return srv
}

func TestHTTPDetectorInfer(t *testing.T) {
	var healthCalls atomic.Int32
	srv := newYOLOServer(t, &healthCalls, true)
	d := NewHTTPDetector(srv.URL, 0.2, 5*time.Second)

	boxes, err := d.Infer(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)
	require.Len(t, boxes, 2)
	assert.Equal(t, Box{Label: "person", Confidence: 0.8, X1: 10, Y1: 20, X2: 110, Y2: 220}, boxes[0])

	_, err = d.Infer(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)
	assert.Equal(t, int32(1), healthCalls.Load(), "health result should be cached")
}

func TestHTTPDetectorModelNotLoaded(t *testing.T) {
	var healthCalls atomic.Int32
	srv := newYOLOServer(t, &healthCalls, false)
	d := NewHTTPDetector(srv.URL, 0.2, 5*time.Second)

	_, err := d.Infer(context.Background(), []byte{1})
	assert.Error(t, err)
	assert.False(t, d.IsHealthy(context.Background()))
}

func TestHTTPDetectorUnreachable(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	d := NewHTTPDetector(url, 0.2, time.Second)
	_, err := d.Infer(context.Background(), []byte{1})
	assert.Error(t, err)
}

func TestHTTPDetectorRecoversAfterTimeout(t *testing.T) {
	var detectCalls atomic.Int32
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		json.NewEncoder(w).Encode(YOLOHealthResponse{Status: "healthy", ModelLoaded: true})
	})
	mux.HandleFunc("/detect", func(w http.ResponseWriter, r *http.Request) {
		if detectCalls.Add(1) == 1 {
			time.Sleep(300 * time.Millisecond)
		}
		json.NewEncoder(w).Encode(YOLOResult{
			Count:      1,
			Detections: []YOLODetection{{Class: "person", Confidence: 0.9, BBox: []float64{0, 0, 10, 10}}},
		})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := NewHTTPDetector(srv.URL, 0.2, 200*time.Millisecond)

	_, err := d.Infer(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.Error(t, err)

	boxes, err := d.Infer(context.Background(), []byte{0xFF, 0xD8, 0xFF, 0xD9})
	require.NoError(t, err)
	require.Len(t, boxes, 1)
	assert.Equal(t, int32(2), detectCalls.Load())
}

func TestHTTPDetectorReprobesAfterUnhealthy(t *testing.T) {
	var healthCalls atomic.Int32
	var loaded atomic.Bool
	mux := http.NewServeMux()
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		healthCalls.Add(1)
		json.NewEncoder(w).Encode(YOLOHealthResponse{Status: "healthy", ModelLoaded: loaded.Load()})
	})
	srv := httptest.NewServer(mux)
	t.Cleanup(srv.Close)

	d := NewHTTPDetector(srv.URL, 0.2, time.Second)
	assert.False(t, d.IsHealthy(context.Background()))

	loaded.Store(true)
	assert.True(t, d.IsHealthy(context.Background()))
	assert.True(t, d.IsHealthy(context.Background()))
	assert.Equal(t, int32(2), healthCalls.Load())
}
