package oracle

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/V4T54L/audit-ticketer/internal/adapter/pii"
	"github.com/V4T54L/audit-ticketer/internal/domain"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestParseDecision(t *testing.T) {
	tests := []struct {
		name string
		text string
		want domain.Decision
	}{
		{
			name: "Well formed",
			text: "action: update\ntype: bug\nreason: Repeated failures",
			want: domain.Decision{Action: domain.ActionUpdate, IssueType: "Bug", Reason: "repeated failures"},
		},
		{
			name: "Prefixes ignore case and indentation",
			text: "  ACTION: create\n  Type: STORY\n  Reason: new admin",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Story", Reason: "new admin"},
		},
		{
			name: "Unknown type becomes Task",
			text: "action: create\ntype: epic\nreason: x",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Task", Reason: "x"},
		},
		{
			name: "Unknown action becomes create",
			text: "action: escalate\ntype: request",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Request"},
		},
		{
			name: "Garbage falls back to defaults",
			text: "I think you should open a ticket.",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Task"},
		},
		{
			name: "Empty reply",
			text: "",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Task"},
		},
		{
			name: "Later lines win",
			text: "type: bug\ntype: feature",
			want: domain.Decision{Action: domain.ActionCreate, IssueType: "Feature"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := ParseDecision(tt.text); got != tt.want {
				t.Errorf("expected %+v, got %+v", tt.want, got)
			}
		})
	}
}

func TestBuildPrompt(t *testing.T) {
	row := domain.EventRow{
		Operation:                    "Add user",
		Result:                       "success",
		UserPrincipalName:            "alice@example.com",
		Message:                      "Add corrId=1",
		RiskLevel:                    domain.RiskHigh,
		TicketExists:                 domain.Flag(" FALSE "),
		TargetResourceIDs:            []string{"a", "b"},
		TargetResourcePrincipalNames: []string{"bob@example.com"},
		ModifiedProperties:           []string{"DisplayName=Bob"},
	}

	prompt, err := BuildPrompt(row)
	if err != nil {
		t.Fatal(err)
	}
	for _, want := range []string{
		"Operation: Add user",
		"User: alice@example.com",
		"Risk Level: High",
		"Ticket Already Exists: false",
		"Target Resource IDs: a|b",
		"Target Principals: bob@example.com",
		"Modified Properties: DisplayName=Bob",
		"action: create or update",
	} {
		if !strings.Contains(prompt, want) {
			t.Errorf("expected prompt to contain %q", want)
		}
	}
}

func TestClient_Decide(t *testing.T) {
	row := domain.EventRow{Operation: "Reset password", ModifiedProperties: []string{"PasswordProfile=hunter2"}}

	t.Run("Parses First Choice And Redacts", func(t *testing.T) {
		var got chatRequest
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if r.URL.Path != "/chat/completions" || r.Header.Get("Authorization") != "Bearer sk-test" {
				t.Errorf("unexpected request %s %s", r.URL.Path, r.Header.Get("Authorization"))
			}
			_ = json.NewDecoder(r.Body).Decode(&got)
			_, _ = w.Write([]byte(`{"choices":[{"message":{"role":"assistant","content":"action: create\ntype: bug\nreason: password reset"}}]}`))
		}))
		defer ts.Close()

		c := NewClient(Config{APIKey: "sk-test", BaseURL: ts.URL}, pii.NewRedactor([]string{"PasswordProfile"}), testLogger())
		d, err := c.Decide(context.Background(), row)

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if d.IssueType != "Bug" || d.Action != domain.ActionCreate || d.Reason != "password reset" {
			t.Errorf("unexpected decision %+v", d)
		}
		if got.Model != defaultModel || got.Temperature != 0 || len(got.Messages) != 1 {
			t.Errorf("unexpected request %+v", got)
		}
		if strings.Contains(got.Messages[0].Content, "hunter2") {
			t.Error("expected the secret value to be redacted from the prompt")
		}
		if row.ModifiedProperties[0] != "PasswordProfile=hunter2" {
			t.Error("expected the caller's row to be unchanged")
		}
	})

	t.Run("Server Error Is Transient", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			http.Error(w, "overloaded", http.StatusServiceUnavailable)
		}))
		defer ts.Close()

		c := NewClient(Config{BaseURL: ts.URL}, nil, testLogger())
		if _, err := c.Decide(context.Background(), row); !errors.Is(err, domain.ErrTransientIO) {
			t.Errorf("expected transient error, got %v", err)
		}
	})

	t.Run("Undecodable Body Is Malformed", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`not json`))
		}))
		defer ts.Close()

		c := NewClient(Config{BaseURL: ts.URL}, nil, testLogger())
		if _, err := c.Decide(context.Background(), row); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("expected malformed response, got %v", err)
		}
	})

	t.Run("No Choices Is Malformed", func(t *testing.T) {
		ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			_, _ = w.Write([]byte(`{"choices":[]}`))
		}))
		defer ts.Close()

		c := NewClient(Config{BaseURL: ts.URL}, nil, testLogger())
		if _, err := c.Decide(context.Background(), row); !errors.Is(err, domain.ErrMalformedResponse) {
			t.Errorf("expected malformed response, got %v", err)
		}
	})
}
