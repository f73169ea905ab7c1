// Package chatapi is the outbound client for the chat platform's bot API.
// The base URL and bot token are injected once at process start; nothing
// in the engine reads them from the environment ad hoc.
package chatapi

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"
)

// Sender is the narrow surface the transports and the webhook replies use.
type Sender interface {
	SendMessage(ctx context.Context, chatID int64, text string) error
}

// Config holds the injected bot API settings.
type Config struct {
	BaseURL string // e.g. https://api.telegram.org
	Token   string
	Timeout time.Duration
}

// Client calls the bot API over HTTP.
type Client struct {
	baseURL    string
	token      string
	httpClient *http.Client
	logger     *zap.Logger
}

// New creates a bot API client.
func New(cfg Config, logger *zap.Logger) (*Client, error) {
	if cfg.BaseURL == "" {
		return nil, fmt.Errorf("chat api base url is required")
	}
	if cfg.Token == "" {
		return nil, fmt.Errorf("chat bot token is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}

	return &Client{
		baseURL: cfg.BaseURL,
		token:   cfg.Token,
		httpClient: &http.Client{
			Timeout: timeout,
		},
		logger: logger,
	}, nil
}

type sendMessageRequest struct {
	ChatID    int64  `json:"chat_id"`
	Text      string `json:"text"`
	ParseMode string `json:"parse_mode,omitempty"`
}

type sendMessageResponse struct {
	OK          bool   `json:"ok"`
	Description string `json:"description,omitempty"`
}

// SendMessage delivers one markdown-formatted message to a chat.
func (c *Client) SendMessage(ctx context.Context, chatID int64, text string) error {
	body, err := json.Marshal(sendMessageRequest{
		ChatID:    chatID,
		Text:      text,
		ParseMode: "Markdown",
	})
	if err != nil {
		return fmt.Errorf("marshal send request: %w", err)
	}

	url := fmt.Sprintf("%s/bot%s/sendMessage", c.baseURL, c.token)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return fmt.Errorf("create send request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("chat api request failed: %w", err)
	}
	defer resp.Body.Close()

	respBytes, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return fmt.Errorf("chat api returned status %d: %s", resp.StatusCode, string(respBytes))
	}

	var parsed sendMessageResponse
	if err := json.Unmarshal(respBytes, &parsed); err == nil && !parsed.OK {
		return fmt.Errorf("chat api rejected message: %s", parsed.Description)
	}

	c.logger.Debug("chat message sent", zap.Int64("chat_id", chatID))

	return nil
}
