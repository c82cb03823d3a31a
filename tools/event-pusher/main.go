package main

import (
	"bytes"
	"context"
	"encoding/json"
	"flag"
	"log"
	"net/http"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
	"golang.org/x/time/rate"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

// Pushes synthetic directory audit events to a running ticketer's /ingest endpoint.
func main() {
	targetURL := flag.String("url", "http://localhost:9091/ingest", "Target URL for ingestion")
	apiKey := flag.String("api-key", "supersecretkey", "API Key for authentication")
	concurrency := flag.Int("c", 2, "Number of concurrent workers")
	duration := flag.Duration("d", 30*time.Second, "Duration of the run")
	rps := flag.Float64("rps", 5, "Batches per second limit")
	batch := flag.Int("batch", 10, "Events per NDJSON batch")
	flag.Parse()

	log.Printf("Pushing audit events to %s", *targetURL)
	log.Printf("Concurrency: %d, Duration: %s, RPS: %.1f, Batch: %d", *concurrency, *duration, *rps, *batch)

	var wg sync.WaitGroup
	var accepted, failed, events atomic.Int64
	ctx, cancel := context.WithTimeout(context.Background(), *duration)
	defer cancel()

	limiter := rate.NewLimiter(rate.Limit(*rps), 1)
	var seq atomic.Int64

	for i := 0; i < *concurrency; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			client := &http.Client{Timeout: 5 * time.Second}

			for {
				if err := limiter.Wait(ctx); err != nil {
					return
				}

				var body bytes.Buffer
				enc := json.NewEncoder(&body)
				for j := 0; j < *batch; j++ {
					_ = enc.Encode(syntheticEvent(seq.Add(1)))
				}

				req, err := http.NewRequestWithContext(ctx, http.MethodPost, *targetURL, &body)
				if err != nil {
					return
				}
				req.Header.Set("Content-Type", "application/x-ndjson")
				req.Header.Set("X-API-Key", *apiKey)

				resp, err := client.Do(req)
				if err != nil {
					if ctx.Err() != nil {
						return
					}
					failed.Add(1)
					continue
				}
				if resp.StatusCode == http.StatusAccepted {
					accepted.Add(1)
					events.Add(int64(*batch))
				} else {
					failed.Add(1)
				}
				resp.Body.Close()
			}
		}()
	}

	wg.Wait()

	log.Println("Push finished.")
	log.Printf("Accepted batches (202): %d", accepted.Load())
	log.Printf("Events accepted: %d", events.Load())
	log.Printf("Errors: %d", failed.Load())
}

// syntheticEvent cycles through the three risk tiers.
func syntheticEvent(n int64) domain.AuditEvent {
	evt := domain.AuditEvent{
		ActivityDateTime:    time.Now().UTC().Add(time.Duration(n) * time.Microsecond).Format(time.RFC3339Nano),
		ActivityDisplayName: "Update user",
		OperationType:       "Update",
		Result:              "success",
		CorrelationID:       uuid.NewString(),
		InitiatedBy: domain.Initiator{
			User: &domain.InitiatorUser{UserPrincipalName: "loadtest@example.com"},
		},
		TargetResources: []domain.TargetResource{{
			ID:                uuid.NewString(),
			UserPrincipalName: "target@example.com",
			ModifiedProperties: []domain.ModifiedProperty{
				{DisplayName: "DisplayName", NewValue: `["Load Test"]`},
			},
		}},
	}
	switch n % 3 {
	case 1:
		evt.OperationType = "Add"
		evt.ActivityDisplayName = "Add member to group"
	case 2:
		evt.Result = "failure"
	}
	return evt
}
