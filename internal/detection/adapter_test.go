package detection

import (
	"context"
	"errors"
	"image"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

type stubDetector struct {
	boxes []Box
	err   error
	calls int
}

func (s *stubDetector) Name() string { return "stub" }

func (s *stubDetector) Infer(ctx context.Context, jpeg []byte) ([]Box, error) {
	s.calls++
	if len(jpeg) == 0 {
		return nil, errors.New("empty frame")
	}
	return s.boxes, s.err
}

func testImage() image.Image {
	return image.NewRGBA(image.Rect(0, 0, 64, 48))
}

func TestDetectKeepsOnlyPersons(t *testing.T) {
	det := &stubDetector{boxes: []Box{
		{Label: "car", Confidence: 0.95, X1: 1, Y1: 1, X2: 20, Y2: 20},
		{Label: "person", Confidence: 0.31, X1: 5, Y1: 5, X2: 30, Y2: 40},
		{Label: "person", Confidence: 0.53, X1: 10, Y1: 2, X2: 40, Y2: 45},
	}}
	a := NewAdapter(det, 0.2, time.Second, zap.NewNop())

	res, err := a.Detect(context.Background(), testImage())
	require.NoError(t, err)

	assert.True(t, res.Present)
	assert.Equal(t, 0.53, res.Confidence)
	require.Len(t, res.Boxes, 2)
	for _, b := range res.Boxes {
		assert.Equal(t, "person", b.Label)
	}
	require.NotNil(t, res.Annotated)
	assert.Equal(t, testImage().Bounds(), res.Annotated.Bounds())
}

func TestDetectThreshold(t *testing.T) {
	cases := []struct {
		name    string
		boxes   []Box
		present bool
		conf    float64
	}{
		{"no boxes", nil, false, 0},
		{"below", []Box{{Label: "person", Confidence: 0.19}}, false, 0.19},
		{"at threshold", []Box{{Label: "person", Confidence: 0.2}}, true, 0.2},
		{"only other classes", []Box{{Label: "dog", Confidence: 0.99}}, false, 0},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdapter(&stubDetector{boxes: tc.boxes}, 0.2, 0, zap.NewNop())
			res, err := a.Detect(context.Background(), testImage())
			require.NoError(t, err)
			assert.Equal(t, tc.present, res.Present)
			assert.Equal(t, tc.conf, res.Confidence)
			assert.NotNil(t, res.Annotated)
		})
	}
}

func TestDetectFailureIsUnavailable(t *testing.T) {
	a := NewAdapter(&stubDetector{err: errors.New("model crashed")}, 0.2, time.Second, zap.NewNop())

	res, err := a.Detect(context.Background(), testImage())
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrUnavailable)
	require.NotNil(t, res)
	assert.False(t, res.Present)
	assert.Zero(t, res.Confidence)
	assert.Nil(t, res.Annotated)
}

func TestDetectWithoutDetector(t *testing.T) {
	a := NewAdapter(nil, 0.2, time.Second, zap.NewNop())
	res, err := a.Detect(context.Background(), testImage())
	assert.ErrorIs(t, err, ErrUnavailable)
	assert.False(t, res.Present)
}

func TestDetectZeroThresholdNeedsAPerson(t *testing.T) {
	cases := []struct {
		name    string
		boxes   []Box
		present bool
	}{
		{"no boxes", nil, false},
		{"only other classes", []Box{{Label: "chair", Confidence: 0.7}}, false},
		{"zero confidence person", []Box{{Label: "person", Confidence: 0}}, false},
		{"weak person", []Box{{Label: "person", Confidence: 0.05}}, true},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			a := NewAdapter(&stubDetector{boxes: tc.boxes}, 0, 0, zap.NewNop())
			res, err := a.Detect(context.Background(), testImage())
			require.NoError(t, err)
			assert.Equal(t, tc.present, res.Present)
		})
	}
}
