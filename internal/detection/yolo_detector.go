package detection

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"sync"
	"time"
)

// healthTTL is how long a positive health probe is trusted. Failures are
// never cached; the next call probes again.
const healthTTL = 30 * time.Second

// HTTPDetector calls a YOLO inference service over HTTP
type HTTPDetector struct {
	endpoint      string
	client        *http.Client
	confThreshold float64
	healthy       bool
	healthCheck   time.Time
	mu            sync.RWMutex
}

// YOLODetection represents a single YOLO detection result
type YOLODetection struct {
	Class      string    `json:"class"`
	ClassID    int       `json:"class_id"`
	Confidence float64   `json:"confidence"`
	BBox       []float64 `json:"bbox"` // [x1, y1, x2, y2]
}

// YOLOResult represents YOLO detection response
type YOLOResult struct {
	Detections      []YOLODetection `json:"detections"`
	Count           int             `json:"count"`
	InferenceTimeMs float64         `json:"inference_time_ms"`
	Device          string          `json:"device"`
}

// YOLOHealthResponse represents health check response
type YOLOHealthResponse struct {
	Status      string `json:"status"`
	Device      string `json:"device"`
	ModelLoaded bool   `json:"model_loaded"`
}

// NewHTTPDetector creates a detector for the service at endpoint
func NewHTTPDetector(endpoint string, confThreshold float64, timeout time.Duration) *HTTPDetector {
	return &HTTPDetector{
		endpoint:      endpoint,
		client:        &http.Client{Timeout: timeout},
		confThreshold: confThreshold,
	}
}

func (d *HTTPDetector) Name() string {
	return "yolo-http"
}

// IsHealthy checks if the YOLO service is available
func (d *HTTPDetector) IsHealthy(ctx context.Context) bool {
	d.mu.RLock()
	if d.healthy && time.Since(d.healthCheck) < healthTTL {
		d.mu.RUnlock()
		return true
	}
	d.mu.RUnlock()

	healthy := d.probe(ctx)
	d.setHealth(healthy)
	return healthy
}

func (d *HTTPDetector) probe(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, d.endpoint+"/health", nil)
	if err != nil {
		return false
	}
	resp, err := d.client.Do(req)
	if err != nil {
		return false
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return false
	}
	var health YOLOHealthResponse
	if err := json.NewDecoder(resp.Body).Decode(&health); err != nil {
		return false
	}
	return health.ModelLoaded
}

func (d *HTTPDetector) setHealth(healthy bool) {
	d.mu.Lock()
	d.healthy = healthy
	d.healthCheck = time.Now()
	d.mu.Unlock()
}

// Infer performs YOLO object detection on a JPEG image
func (d *HTTPDetector) Infer(ctx context.Context, imageData []byte) ([]Box, error) {
	if !d.IsHealthy(ctx) {
		return nil, fmt.Errorf("YOLO detection service unavailable")
	}

	// Create multipart form data
	var b bytes.Buffer
	w := multipart.NewWriter(&b)

	fw, err := w.CreateFormFile("file", "frame.jpg")
	if err != nil {
		return nil, err
	}
	if _, err := fw.Write(imageData); err != nil {
		return nil, err
	}
	if err := w.WriteField("conf_threshold", fmt.Sprintf("%.3f", d.confThreshold)); err != nil {
		return nil, err
	}
	if err := w.Close(); err != nil {
		return nil, err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, d.endpoint+"/detect", &b)
	if err != nil {
		return nil, err
	}
	req.Header.Set("Content-Type", w.FormDataContentType())

	resp, err := d.client.Do(req)
	if err != nil {
		d.setHealth(false)
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return nil, fmt.Errorf("YOLO detection failed: %d %s", resp.StatusCode, string(body))
	}

	var result YOLOResult
	if err := json.NewDecoder(resp.Body).Decode(&result); err != nil {
		return nil, fmt.Errorf("failed to decode detection response: %w", err)
	}

	boxes := make([]Box, 0, len(result.Detections))
	for _, det := range result.Detections {
		box := Box{Label: det.Class, Confidence: det.Confidence}
		if len(det.BBox) >= 4 {
			box.X1, box.Y1, box.X2, box.Y2 = det.BBox[0], det.BBox[1], det.BBox[2], det.BBox[3]
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}
