// Package aitext はAnthropic Messages APIによる文章生成クライアントを提供する。
package aitext

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"golang.org/x/time/rate"

	"github.com/hitoshi/horo/internal/model"
	"github.com/hitoshi/horo/internal/security"
)

const (
	anthropicVersion = "2023-06-01"
	maxOutputRunes   = 2000
	maxErrorBody     = 4096
)

// Generator は文章生成のインターフェース。
// テキスト以外の応答や失敗はmodel.ErrGenerationFailedを返す。
type Generator interface {
	Generate(ctx context.Context, prompt string, maxTokens int) (string, error)
}

// Config はClientの設定。
type Config struct {
	APIKey            string
	Model             string
	BaseURL           string
	RequestsPerMinute int
	HTTPClient        *http.Client
}

// Client はAnthropic Messages APIのクライアント。
// 送信はrate.Limiterで平準化する。
type Client struct {
	config    Config
	client    *http.Client
	limiter   *rate.Limiter
	sanitizer security.TextSanitizer
}

// NewClient はClientを生成する。
func NewClient(config Config, sanitizer security.TextSanitizer) *Client {
	client := config.HTTPClient
	if client == nil {
		client = &http.Client{Timeout: 60 * time.Second}
	}
	rpm := config.RequestsPerMinute
	if rpm <= 0 {
		rpm = 30
	}
	config.BaseURL = strings.TrimRight(config.BaseURL, "/")

	return &Client{
		config:    config,
		client:    client,
		limiter:   rate.NewLimiter(rate.Limit(float64(rpm)/60.0), 1),
		sanitizer: sanitizer,
	}
}

type messageRequest struct {
	Model     string    `json:"model"`
	MaxTokens int       `json:"max_tokens"`
	Messages  []message `json:"messages"`
}

type message struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type messageResponse struct {
	Content []struct {
		Type string `json:"type"`
		Text string `json:"text"`
	} `json:"content"`
	StopReason string `json:"stop_reason"`
}

// Generate はpromptから文章を生成し、プレーンテキストに整えて返す。
func (c *Client) Generate(ctx context.Context, prompt string, maxTokens int) (string, error) {
	if strings.TrimSpace(prompt) == "" {
		return "", fmt.Errorf("%w: prompt is required", model.ErrInvalidRequest)
	}
	if maxTokens <= 0 {
		return "", fmt.Errorf("%w: max tokens must be positive", model.ErrInvalidRequest)
	}

	if err := c.limiter.Wait(ctx); err != nil {
		return "", generationError("rate limiter wait", err)
	}

	body, err := json.Marshal(messageRequest{
		Model:     c.config.Model,
		MaxTokens: maxTokens,
		Messages:  []message{{Role: "user", Content: prompt}},
	})
	if err != nil {
		return "", fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.config.BaseURL+"/v1/messages", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("failed to build request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("x-api-key", c.config.APIKey)
	req.Header.Set("anthropic-version", anthropicVersion)

	resp, err := c.client.Do(req)
	if err != nil {
		return "", generationError("request", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		errBody, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return "", generationError("response", fmt.Errorf("status %d: %s", resp.StatusCode, strings.TrimSpace(string(errBody))))
	}

	var payload messageResponse
	if err := json.NewDecoder(resp.Body).Decode(&payload); err != nil {
		return "", generationError("decode", err)
	}
	if len(payload.Content) == 0 || payload.Content[0].Type != "text" {
		return "", generationError("response", errors.New("unexpected content type"))
	}

	text := c.sanitizer.Sanitize(payload.Content[0].Text, maxOutputRunes)
	if text == "" {
		return "", generationError("response", errors.New("empty text"))
	}
	return text, nil
}

// generationError は詳細をログに残し、呼び出し元にはErrGenerationFailedを返す。
func generationError(stage string, err error) error {
	slog.Warn("text generation failed",
		slog.String("stage", stage),
		slog.String("error", err.Error()),
	)
	return fmt.Errorf("%s: %w", stage, model.ErrGenerationFailed)
}

// compile-time interface check
var _ Generator = (*Client)(nil)
