package notify

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// WhatsAppConfig holds Twilio credentials and numbers
type WhatsAppConfig struct {
	AccountSID string
	AuthToken  string
	From       string
	To         string
	BaseURL    string
}

// WhatsAppSender posts alerts through the Twilio Messages API
type WhatsAppSender struct {
	cfg        WhatsAppConfig
	httpClient *http.Client
}

// twilioResponse covers both the success and error bodies
type twilioResponse struct {
	SID     string `json:"sid"`
	Status  string `json:"status"`
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func NewWhatsAppSender(cfg WhatsAppConfig) *WhatsAppSender {
	return &WhatsAppSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (s *WhatsAppSender) Name() string {
	return "whatsapp"
}

func (s *WhatsAppSender) Enabled() bool {
	return s.cfg.AccountSID != "" && s.cfg.AuthToken != "" && s.cfg.From != "" && s.cfg.To != ""
}

// Send delivers the text only; the Messages API needs a public media URL
// for attachments.
func (s *WhatsAppSender) Send(ctx context.Context, n Notification) error {
	if !s.Enabled() {
		return ErrNotConfigured
	}

	endpoint := fmt.Sprintf("%s/2010-04-01/Accounts/%s/Messages.json",
		strings.TrimRight(s.cfg.BaseURL, "/"), url.PathEscape(s.cfg.AccountSID))

	form := url.Values{}
	form.Set("From", "whatsapp:"+s.cfg.From)
	form.Set("To", "whatsapp:"+s.cfg.To)
	form.Set("Body", n.Text)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, strings.NewReader(form.Encode()))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.SetBasicAuth(s.cfg.AccountSID, s.cfg.AuthToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send whatsapp message: %w", err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, 64*1024))
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	if resp.StatusCode < 300 {
		return nil
	}

	var twResp twilioResponse
	if err := json.Unmarshal(body, &twResp); err != nil {
		return fmt.Errorf("twilio API error %d: %s", resp.StatusCode, truncate(body, 512))
	}
	return fmt.Errorf("twilio API error %d (code %d): %s", resp.StatusCode, twResp.Code, twResp.Message)
}

func truncate(body []byte, n int) string {
	if len(body) <= n {
		return string(body)
	}
	return string(body[:n]) + "..."
}
