package detection

import (
	"context"
	"fmt"
	"sync"
	"time"

	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
	healthpb "google.golang.org/grpc/health/grpc_health_v1"
	"google.golang.org/grpc/keepalive"
	"google.golang.org/protobuf/types/known/structpb"
	"google.golang.org/protobuf/types/known/wrapperspb"
)

const (
	detectionService = "detection.v1.DetectionService"
	detectMethod     = "/" + detectionService + "/Detect"
)

// GRPCDetector calls a detection service over unary gRPC. The request is a
// BytesValue holding the JPEG; the response is a Struct of the form
// {detections: [{label, confidence, box: [x1, y1, x2, y2]}]}.
type GRPCDetector struct {
	endpoint   string
	conn       *grpc.ClientConn
	health     healthpb.HealthClient
	healthy    bool
	lastHealth time.Time
	healthMu   sync.RWMutex
}

// NewGRPCDetector creates a gRPC-based detector. The connection is
// established lazily on first use.
func NewGRPCDetector(endpoint string, opts ...grpc.DialOption) (*GRPCDetector, error) {
	// Configure keepalive to detect dead connections quickly
	kacp := keepalive.ClientParameters{
		Time:                10 * time.Second,
		Timeout:             5 * time.Second,
		PermitWithoutStream: true,
	}

	dialOpts := append([]grpc.DialOption{
		grpc.WithTransportCredentials(insecure.NewCredentials()),
		grpc.WithKeepaliveParams(kacp),
	}, opts...)

	conn, err := grpc.NewClient(endpoint, dialOpts...)
	if err != nil {
		return nil, fmt.Errorf("failed to create client for %s: %w", endpoint, err)
	}

	return &GRPCDetector{
		endpoint: endpoint,
		conn:     conn,
		health:   healthpb.NewHealthClient(conn),
	}, nil
}

func (gd *GRPCDetector) Name() string {
	return "yolo-grpc"
}

// IsHealthy checks if the gRPC detection service is serving
func (gd *GRPCDetector) IsHealthy(ctx context.Context) bool {
	gd.healthMu.RLock()
	if gd.healthy && time.Since(gd.lastHealth) < healthTTL {
		gd.healthMu.RUnlock()
		return true
	}
	gd.healthMu.RUnlock()

	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	resp, err := gd.health.Check(ctx, &healthpb.HealthCheckRequest{Service: detectionService})
	healthy := err == nil && resp.GetStatus() == healthpb.HealthCheckResponse_SERVING

	gd.healthMu.Lock()
	gd.healthy = healthy
	gd.lastHealth = time.Now()
	gd.healthMu.Unlock()

	return healthy
}

// Infer sends one JPEG frame and returns the reported boxes
func (gd *GRPCDetector) Infer(ctx context.Context, imageData []byte) ([]Box, error) {
	if !gd.IsHealthy(ctx) {
		return nil, fmt.Errorf("gRPC detection service unavailable")
	}

	resp := &structpb.Struct{}
	if err := gd.conn.Invoke(ctx, detectMethod, wrapperspb.Bytes(imageData), resp); err != nil {
		gd.healthMu.Lock()
		gd.healthy = false
		gd.lastHealth = time.Now()
		gd.healthMu.Unlock()
		return nil, fmt.Errorf("detect call failed: %w", err)
	}

	return convertResponse(resp)
}

// convertResponse converts the gRPC response to boxes
func convertResponse(resp *structpb.Struct) ([]Box, error) {
	list := resp.GetFields()["detections"].GetListValue()
	boxes := make([]Box, 0, len(list.GetValues()))

	for i, v := range list.GetValues() {
		det := v.GetStructValue()
		if det == nil {
			return nil, fmt.Errorf("detection %d is not an object", i)
		}
		fields := det.GetFields()

		box := Box{
			Label:      fields["label"].GetStringValue(),
			Confidence: fields["confidence"].GetNumberValue(),
		}
		coords := fields["box"].GetListValue().GetValues()
		if len(coords) >= 4 {
			box.X1 = coords[0].GetNumberValue()
			box.Y1 = coords[1].GetNumberValue()
			box.X2 = coords[2].GetNumberValue()
			box.Y2 = coords[3].GetNumberValue()
		}
		boxes = append(boxes, box)
	}
	return boxes, nil
}

// Close shuts down the gRPC connection
func (gd *GRPCDetector) Close() error {
	return gd.conn.Close()
}
