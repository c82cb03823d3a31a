package handler

import (
	"bufio"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

func TestSSEBroker_BroadcastsOutcomes(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	broker := NewSSEBroker(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))

	ts := httptest.NewServer(broker)
	defer ts.Close()

	req, _ := http.NewRequestWithContext(ctx, http.MethodGet, ts.URL, nil)
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatal(err)
	}
	defer resp.Body.Close()
	if ct := resp.Header.Get("Content-Type"); ct != "text/event-stream" {
		t.Fatalf("unexpected content type %q", ct)
	}

	deadline := time.Now().Add(2 * time.Second)
	for broker.Clients() == 0 {
		if time.Now().After(deadline) {
			t.Fatal("client never registered")
		}
		time.Sleep(5 * time.Millisecond)
	}

	broker.Report(domain.Outcome{CycleID: "c1", Position: 3, Status: domain.OutcomeCreated, TicketKey: "SEC-1"})

	lines := make(chan string)
	go func() {
		scanner := bufio.NewScanner(resp.Body)
		for scanner.Scan() {
			select {
			case lines <- scanner.Text():
			case <-ctx.Done():
				return
			}
		}
		close(lines)
	}()

	timeout := time.After(2 * time.Second)
	for {
		select {
		case line, ok := <-lines:
			if !ok {
				t.Fatal("stream closed before an outcome arrived")
			}
			if !strings.HasPrefix(line, "data: ") {
				continue
			}
			var got domain.Outcome
			if err := json.Unmarshal([]byte(strings.TrimPrefix(line, "data: ")), &got); err != nil {
				t.Fatal(err)
			}
			if got.CycleID != "c1" || got.Position != 3 || got.TicketKey != "SEC-1" {
				t.Errorf("unexpected outcome %+v", got)
			}
			return
		case <-timeout:
			t.Fatal("timed out waiting for outcome")
		}
	}
}

func TestSSEBroker_ReportDoesNotBlock(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	broker := NewSSEBroker(ctx, slog.New(slog.NewTextHandler(io.Discard, nil)))

	done := make(chan struct{})
	go func() {
		for i := 0; i < 2000; i++ {
			broker.Report(domain.Outcome{Position: i})
		}
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(2 * time.Second):
		t.Fatal("Report blocked with no consumer")
	}
}
