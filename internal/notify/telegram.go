package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime/multipart"
	"net/http"
	"strings"
	"time"
)

// TelegramConfig holds Telegram bot configuration
type TelegramConfig struct {
	Enabled  bool
	BotToken string
	ChatID   string
	BaseURL  string
}

// TelegramSender posts alerts to a chat through the Bot API
type TelegramSender struct {
	cfg        TelegramConfig
	httpClient *http.Client
}

// TelegramResponse represents the response from Telegram API
type TelegramResponse struct {
	OK          bool   `json:"ok"`
	ErrorCode   int    `json:"error_code,omitempty"`
	Description string `json:"description,omitempty"`
}

func NewTelegramSender(cfg TelegramConfig) *TelegramSender {
	return &TelegramSender{
		cfg:        cfg,
		httpClient: &http.Client{Timeout: 30 * time.Second},
	}
}

func (tb *TelegramSender) Name() string {
	return "telegram"
}

func (tb *TelegramSender) Enabled() bool {
	return tb.cfg.Enabled && tb.cfg.BotToken != "" && tb.cfg.ChatID != ""
}

// Send posts the snapshot with the text as caption, or the text alone
func (tb *TelegramSender) Send(ctx context.Context, n Notification) error {
	if !tb.Enabled() {
		return ErrNotConfigured
	}

	if len(n.Image) > 0 {
		return tb.sendPhoto(ctx, n.Image, n.ImageName, n.Text)
	}
	return tb.sendMessage(ctx, n.Text)
}

func (tb *TelegramSender) methodURL(method string) string {
	return fmt.Sprintf("%s/bot%s/%s", strings.TrimRight(tb.cfg.BaseURL, "/"), tb.cfg.BotToken, method)
}

// sendPhoto sends a photo using multipart form data
func (tb *TelegramSender) sendPhoto(ctx context.Context, photoData []byte, name, caption string) error {
	var body bytes.Buffer
	writer := multipart.NewWriter(&body)

	if err := writer.WriteField("chat_id", tb.cfg.ChatID); err != nil {
		return fmt.Errorf("failed to write chat_id field: %w", err)
	}
	if caption != "" {
		if err := writer.WriteField("caption", caption); err != nil {
			return fmt.Errorf("failed to write caption field: %w", err)
		}
	}

	if name == "" {
		name = "alert.jpg"
	}
	part, err := writer.CreateFormFile("photo", name)
	if err != nil {
		return fmt.Errorf("failed to create form file: %w", err)
	}
	if _, err := part.Write(photoData); err != nil {
		return fmt.Errorf("failed to write photo data: %w", err)
	}
	if err := writer.Close(); err != nil {
		return fmt.Errorf("failed to close multipart writer: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendPhoto"), &body)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", writer.FormDataContentType())

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send photo: %w", err)
	}
	defer resp.Body.Close()

	return tb.handleResponse(resp)
}

func (tb *TelegramSender) sendMessage(ctx context.Context, text string) error {
	payload := map[string]interface{}{
		"chat_id": tb.cfg.ChatID,
		"text":    text,
	}
	jsonData, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("failed to marshal payload: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tb.methodURL("sendMessage"), bytes.NewReader(jsonData))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := tb.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to send request: %w", err)
	}
	defer resp.Body.Close()

	return tb.handleResponse(resp)
}

// handleResponse processes the Telegram API response
func (tb *TelegramSender) handleResponse(resp *http.Response) error {
	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return fmt.Errorf("failed to read response body: %w", err)
	}

	var telegramResp TelegramResponse
	if err := json.Unmarshal(body, &telegramResp); err != nil {
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}
	if !telegramResp.OK {
		return fmt.Errorf("telegram API error %d: %s", telegramResp.ErrorCode, telegramResp.Description)
	}
	return nil
}
