package graph

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const (
	defaultAuthority = "https://login.microsoftonline.com"
	defaultBaseURL   = "https://graph.microsoft.com/v1.0"
	defaultCategory  = "UserManagement"
	graphScope       = "https://graph.microsoft.com/.default"
	maxPages         = 100
)

// Config holds the tenant credentials and endpoints.
type Config struct {
	TenantID     string
	ClientID     string
	ClientSecret string
	AuthorityURL string
	BaseURL      string
	Category     string
	Timeout      time.Duration
}

// Client implements domain.AuditSource against the directory audit log.
type Client struct {
	config     Config
	httpClient *http.Client
	logger     *slog.Logger
}

type auditPage struct {
	Value    []domain.AuditEvent `json:"value"`
	NextLink string              `json:"@odata.nextLink"`
}

// NewClient creates a Graph client that authenticates with client credentials.
func NewClient(cfg Config, logger *slog.Logger) *Client {
	if cfg.AuthorityURL == "" {
		cfg.AuthorityURL = defaultAuthority
	}
	if cfg.BaseURL == "" {
		cfg.BaseURL = defaultBaseURL
	}
	if cfg.Category == "" {
		cfg.Category = defaultCategory
	}
	if cfg.Timeout == 0 {
		cfg.Timeout = 30 * time.Second
	}

	creds := clientcredentials.Config{
		ClientID:     cfg.ClientID,
		ClientSecret: cfg.ClientSecret,
		TokenURL:     strings.TrimRight(cfg.AuthorityURL, "/") + "/" + url.PathEscape(cfg.TenantID) + "/oauth2/v2.0/token",
		Scopes:       []string{graphScope},
		AuthStyle:    oauth2.AuthStyleInParams,
	}
	// The token endpoint is called through the same timeout-bound client.
	base := &http.Client{Timeout: cfg.Timeout}
	ctx := context.WithValue(context.Background(), oauth2.HTTPClient, base)

	return &Client{
		config:     cfg,
		httpClient: &http.Client{Timeout: cfg.Timeout, Transport: &oauth2.Transport{Source: creds.TokenSource(ctx), Base: base.Transport}},
		logger:     logger.With("component", "graph_client"),
	}
}

// Fetch returns up to top events, newest first, following pagination links.
func (c *Client) Fetch(ctx context.Context, top int) ([]domain.AuditEvent, error) {
	if top <= 0 {
		return nil, nil
	}
	next := c.firstPageURL(top)

	var events []domain.AuditEvent
	for page := 0; next != "" && len(events) < top; page++ {
		if page == maxPages {
			c.logger.Warn("stopping pagination at page limit", "pages", maxPages, "events", len(events))
			break
		}
		p, err := c.getPage(ctx, next)
		if err != nil {
			return nil, err
		}
		events = append(events, p.Value...)
		next = p.NextLink
	}

	if len(events) > top {
		events = events[:top]
	}
	c.logger.Debug("fetched directory audits", "count", len(events), "category", c.config.Category)
	return events, nil
}

func (c *Client) firstPageURL(top int) string {
	q := url.Values{}
	q.Set("$filter", fmt.Sprintf("category eq '%s'", c.config.Category))
	q.Set("$orderby", "activityDateTime desc")
	q.Set("$top", strconv.Itoa(top))
	return strings.TrimRight(c.config.BaseURL, "/") + "/auditLogs/directoryAudits?" + q.Encode()
}

func (c *Client) getPage(ctx context.Context, pageURL string) (auditPage, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, pageURL, nil)
	if err != nil {
		return auditPage{}, fmt.Errorf("create audit request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return auditPage{}, fmt.Errorf("get directory audits: %w: %w", domain.ErrTransientIO, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return auditPage{}, fmt.Errorf("read directory audits: %w: %w", domain.ErrTransientIO, err)
	}
	if resp.StatusCode != http.StatusOK {
		snippet := body
		if len(snippet) > 512 {
			snippet = snippet[:512]
		}
		return auditPage{}, fmt.Errorf("directory audits returned %d: %s: %w", resp.StatusCode, snippet, domain.ErrTransientIO)
	}

	var p auditPage
	if err := json.Unmarshal(body, &p); err != nil {
		return auditPage{}, fmt.Errorf("decode directory audits: %w: %w", domain.ErrMalformedResponse, err)
	}
	return p, nil
}
