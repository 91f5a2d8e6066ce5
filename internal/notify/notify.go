package notify

import (
	"context"
	"errors"
)

// ErrNotConfigured is returned by senders missing credentials
var ErrNotConfigured = errors.New("notify: sender not configured")

// Notification is one alert rendered for delivery
type Notification struct {
	Subject string
	// Text is the short form used by chat channels
	Text string
	// Body is the long form used by email
	Body      string
	Image     []byte
	ImageName string
}

// Sender delivers notifications over one channel
type Sender interface {
	Name() string
	Enabled() bool
	Send(ctx context.Context, n Notification) error
}
