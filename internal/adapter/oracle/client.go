package oracle

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"time"

	"github.com/V4T54L/audit-ticketer/internal/adapter/pii"
	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const (
	defaultBaseURL = "https://api.openai.com/v1"
	defaultModel   = "gpt-4"
	maxErrorBody   = 512
)

// Config holds the chat completion settings.
type Config struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
}

// Client implements domain.DecisionOracle with the OpenAI chat completions API.
type Client struct {
	config     Config
	httpClient *http.Client
	redactor   *pii.Redactor
	logger     *slog.Logger
}

type chatMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type chatRequest struct {
	Model       string        `json:"model"`
	Messages    []chatMessage `json:"messages"`
	Temperature float64       `json:"temperature"`
}

type chatResponse struct {
	Choices []struct {
		Message chatMessage `json:"message"`
	} `json:"choices"`
}

// NewClient creates a new oracle client. redactor may be nil.
func NewClient(cfg Config, redactor *pii.Redactor, logger *slog.Logger) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Model == "" {
		cfg.Model = defaultModel
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		redactor:   redactor,
		logger:     logger.With("component", "decision_oracle"),
	}
}

// Decide asks the model which ticket action fits row.
func (c *Client) Decide(ctx context.Context, row domain.EventRow) (domain.Decision, error) {
	if redacted, ok := c.redactor.Redact(row); ok {
		c.logger.Debug("redacted modified properties from prompt", "operation", row.Operation)
		row = redacted
	}
	prompt, err := BuildPrompt(row)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("build prompt: %w", err)
	}

	body, err := json.Marshal(chatRequest{
		Model:       c.config.Model,
		Messages:    []chatMessage{{Role: "user", Content: prompt}},
		Temperature: 0,
	})
	if err != nil {
		return domain.Decision{}, fmt.Errorf("marshal chat request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, strings.TrimRight(c.config.BaseURL, "/")+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return domain.Decision{}, fmt.Errorf("create chat request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Authorization", "Bearer "+c.config.APIKey)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("chat completion: %w: %w", domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return domain.Decision{}, fmt.Errorf("read chat response: %w: %w", domain.ErrTransientIO, err)
	}
	if resp.StatusCode != http.StatusOK {
		return domain.Decision{}, fmt.Errorf("chat completion returned %d: %s: %w", resp.StatusCode, truncate(respBody), domain.ErrTransientIO)
	}

	var parsed chatResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return domain.Decision{}, fmt.Errorf("decode chat response: %w: %w", domain.ErrMalformedResponse, err)
	}
	if len(parsed.Choices) == 0 {
		return domain.Decision{}, fmt.Errorf("chat response has no choices: %w", domain.ErrMalformedResponse)
	}
	return ParseDecision(strings.TrimSpace(parsed.Choices[0].Message.Content)), nil
}

func truncate(b []byte) string {
	if len(b) > maxErrorBody {
		return string(b[:maxErrorBody]) + "..."
	}
	return string(b)
}
