package jira

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// Config holds the Jira Cloud credentials and target project.
type Config struct {
	BaseURL    string
	Email      string
	APIToken   string
	ProjectKey string
	Timeout    time.Duration
}

// Client implements domain.TicketClient with the Jira REST v3 API.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

// adfDoc is an Atlassian Document Format body with a single paragraph of text.
type adfDoc struct {
	Type    string    `json:"type"`
	Version int       `json:"version"`
	Content []adfNode `json:"content"`
}

type adfNode struct {
	Type    string    `json:"type"`
	Text    string    `json:"text,omitempty"`
	Content []adfNode `json:"content,omitempty"`
}

type keyRef struct {
	Key string `json:"key"`
}

type nameRef struct {
	Name string `json:"name"`
}

type createFields struct {
	Project     keyRef  `json:"project"`
	Summary     string  `json:"summary"`
	Description adfDoc  `json:"description"`
	IssueType   nameRef `json:"issuetype"`
}

type updateFields struct {
	Description adfDoc `json:"description"`
}

type issueRequest[F any] struct {
	Fields F `json:"fields"`
}

// NewClient creates a Jira client.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}
	cfg.BaseURL = strings.TrimRight(cfg.BaseURL, "/")
	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout},
		logger:     logger.With("component", "jira_client", "project", cfg.ProjectKey),
	}
}

// Create opens an issue and returns its key.
func (c *Client) Create(ctx context.Context, ticket domain.Ticket) (string, error) {
	issueType := ticket.IssueType
	if issueType == "" {
		issueType = domain.DefaultIssueType
	}
	payload := issueRequest[createFields]{Fields: createFields{
		Project:     keyRef{Key: c.config.ProjectKey},
		Summary:     ticket.Summary,
		Description: document(ticket.Description),
		IssueType:   nameRef{Name: issueType},
	}}

	status, body, err := c.do(ctx, http.MethodPost, "/rest/api/3/issue", payload)
	if err != nil {
		return "", err
	}
	if status != http.StatusCreated {
		return "", statusError("create issue", status, body, false)
	}

	var created keyRef
	if err := json.Unmarshal(body, &created); err != nil {
		return "", fmt.Errorf("decode created issue: %w: %w", domain.ErrMalformedResponse, err)
	}
	if created.Key == "" {
		return "", fmt.Errorf("created issue has no key: %w", domain.ErrMalformedResponse)
	}
	c.logger.Debug("created issue", "ticket_key", created.Key, "issue_type", issueType)
	return created.Key, nil
}

// Update replaces the description of an existing issue.
func (c *Client) Update(ctx context.Context, key, description string) error {
	if key == "" {
		return domain.ErrMissingTicketKey
	}
	payload := issueRequest[updateFields]{Fields: updateFields{Description: document(description)}}

	status, body, err := c.do(ctx, http.MethodPut, "/rest/api/3/issue/"+url.PathEscape(key), payload)
	if err != nil {
		return err
	}
	if status != http.StatusNoContent {
		return statusError("update issue "+key, status, body, true)
	}
	return nil
}

func (c *Client) do(ctx context.Context, method, path string, payload any) (int, []byte, error) {
	reqBody, err := json.Marshal(payload)
	if err != nil {
		return 0, nil, fmt.Errorf("marshal issue: %w", err)
	}
	req, err := http.NewRequestWithContext(ctx, method, c.config.BaseURL+path, bytes.NewReader(reqBody))
	if err != nil {
		return 0, nil, fmt.Errorf("create jira request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Content-Type", "application/json")
	req.SetBasicAuth(c.config.Email, c.config.APIToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return 0, nil, fmt.Errorf("jira %s %s: %w: %w", method, path, domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return resp.StatusCode, nil, fmt.Errorf("read jira response: %w: %w", domain.ErrTransientIO, err)
	}
	return resp.StatusCode, body, nil
}

func document(text string) adfDoc {
	return adfDoc{
		Type:    "doc",
		Version: 1,
		Content: []adfNode{{
			Type:    "paragraph",
			Content: []adfNode{{Type: "text", Text: text}},
		}},
	}
}

// statusError classifies an unexpected status. Only payload rejections are final, plus 404 when
// the issue itself is gone. Auth failures, a missing project and throttling are retried.
func statusError(op string, status int, body []byte, missingIsFinal bool) error {
	if len(body) > 512 {
		body = body[:512]
	}
	kind := domain.ErrTransientIO
	switch status {
	case http.StatusBadRequest, http.StatusConflict, http.StatusRequestEntityTooLarge, http.StatusUnprocessableEntity:
		kind = domain.ErrTicketRejected
	case http.StatusNotFound:
		if missingIsFinal {
			kind = domain.ErrTicketRejected
		}
	}
	return fmt.Errorf("%s returned %d: %s: %w", op, status, body, kind)
}
