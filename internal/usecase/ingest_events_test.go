package usecase

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/V4T54L/audit-ticketer/internal/adapter/metrics"
	"github.com/V4T54L/audit-ticketer/internal/domain"
	"github.com/V4T54L/audit-ticketer/internal/domain/mocks"
)

func testLogger() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

// counterValue sums every series of the named counter.
func counterValue(t *testing.T, reg *prometheus.Registry, name string) float64 {
	t.Helper()
	families, err := reg.Gather()
	if err != nil {
		t.Fatalf("failed to gather metrics: %v", err)
	}
	var total float64
	for _, mf := range families {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			total += m.GetCounter().GetValue()
		}
	}
	return total
}

func auditEvent(ts, user, activity, opType, result string) domain.AuditEvent {
	return domain.AuditEvent{
		ActivityDateTime:    ts,
		ActivityDisplayName: activity,
		OperationType:       opType,
		Result:              result,
		CorrelationID:       "corr-" + ts,
		InitiatedBy:         domain.Initiator{User: &domain.InitiatorUser{UserPrincipalName: user}},
		TargetResources:     []domain.TargetResource{{ID: "t-" + ts, UserPrincipalName: "target@example.com"}},
	}
}

func TestIngestEventsUseCase_RunCycle(t *testing.T) {
	events := []domain.AuditEvent{
		auditEvent("2024-05-01T10:02:00Z", "alice@example.com", "Add user", "Add", "success"),
		auditEvent("2024-05-01T10:01:00Z", "bob@example.com", "Update user", "Update", "failure"),
	}

	t.Run("Successful Cycle", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{}
		reg := prometheus.NewRegistry()
		uc := NewIngestEventsUseCase(source, log, nil, metrics.NewMetrics(reg), testLogger(), 50)

		res, err := uc.RunCycle(context.Background())

		if err != nil {
			t.Fatalf("expected no error, got %v", err)
		}
		if res.Fetched != 2 || res.Appended != 2 || res.Duplicates != 0 || res.CycleID == "" {
			t.Errorf("unexpected result %+v", res)
		}
		if len(source.Tops) != 1 || source.Tops[0] != 50 {
			t.Errorf("expected one fetch with top 50, got %v", source.Tops)
		}
		rows := log.Snapshot()
		if len(rows) != 2 {
			t.Fatalf("expected 2 rows appended, got %d", len(rows))
		}
		if rows[0].UserPrincipalName != "alice@example.com" || rows[0].RiskLevel != domain.RiskHigh {
			t.Errorf("unexpected first row %+v", rows[0])
		}
		if rows[1].RiskLevel != domain.RiskCritical {
			t.Errorf("expected second row Critical, got %s", rows[1].RiskLevel)
		}
		if got := counterValue(t, reg, "audit_ticketer_ingest_events_appended_total"); got != 2 {
			t.Errorf("expected appended counter 2, got %v", got)
		}
	})

	t.Run("Fetch Failure Appends Nothing", func(t *testing.T) {
		source := &mocks.MockAuditSource{FetchErr: domain.ErrTransientIO}
		log := &mocks.MockEventLog{}
		reg := prometheus.NewRegistry()
		uc := NewIngestEventsUseCase(source, log, nil, metrics.NewMetrics(reg), testLogger(), 50)

		_, err := uc.RunCycle(context.Background())

		if !errors.Is(err, domain.ErrTransientIO) {
			t.Fatalf("expected transient error, got %v", err)
		}
		if len(log.Snapshot()) != 0 {
			t.Error("expected no rows appended")
		}
		if got := counterValue(t, reg, "audit_ticketer_cycle_failures_total"); got != 1 {
			t.Errorf("expected one recorded failure, got %v", got)
		}
	})

	t.Run("Append Failure", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{AppendErr: domain.ErrStorageUnavailable}
		uc := NewIngestEventsUseCase(source, log, nil, nil, testLogger(), 50)

		res, err := uc.RunCycle(context.Background())

		if !errors.Is(err, domain.ErrStorageUnavailable) {
			t.Fatalf("expected storage error, got %v", err)
		}
		if res.Appended != 0 {
			t.Errorf("expected nothing reported appended, got %d", res.Appended)
		}
	})

	t.Run("Refetch Without Filter Duplicates Rows", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{}
		uc := NewIngestEventsUseCase(source, log, nil, nil, testLogger(), 50)

		for i := 0; i < 2; i++ {
			if _, err := uc.RunCycle(context.Background()); err != nil {
				t.Fatalf("cycle %d: %v", i, err)
			}
		}
		if got := len(log.Snapshot()); got != 4 {
			t.Errorf("expected 4 rows after refetching the same window, got %d", got)
		}
	})

	t.Run("Refetch With Filter Skips Seen Keys", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{}
		filter := &mocks.MockKeyFilter{}
		uc := NewIngestEventsUseCase(source, log, filter, nil, testLogger(), 50)

		if _, err := uc.RunCycle(context.Background()); err != nil {
			t.Fatal(err)
		}
		res, err := uc.RunCycle(context.Background())
		if err != nil {
			t.Fatal(err)
		}
		if res.Appended != 0 || res.Duplicates != 2 {
			t.Errorf("expected all duplicates on second cycle, got %+v", res)
		}
		if got := len(log.Snapshot()); got != 2 {
			t.Errorf("expected 2 rows, got %d", got)
		}
	})

	t.Run("Filter Failure Aborts", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{}
		filter := &mocks.MockKeyFilter{UnseenErr: errors.New("redis down")}
		uc := NewIngestEventsUseCase(source, log, filter, nil, testLogger(), 50)

		if _, err := uc.RunCycle(context.Background()); err == nil {
			t.Fatal("expected an error, got nil")
		}
		if len(log.Snapshot()) != 0 {
			t.Error("expected no rows appended")
		}
	})

	t.Run("Filter Not Marked On Append Failure", func(t *testing.T) {
		source := &mocks.MockAuditSource{Events: events}
		log := &mocks.MockEventLog{AppendErr: domain.ErrStorageUnavailable}
		filter := &mocks.MockKeyFilter{}
		uc := NewIngestEventsUseCase(source, log, filter, nil, testLogger(), 50)

		_, _ = uc.RunCycle(context.Background())
		if len(filter.Seen) != 0 {
			t.Errorf("expected no keys marked, got %d", len(filter.Seen))
		}
	})
}

func TestIngestEventsUseCase_IngestEvents(t *testing.T) {
	log := &mocks.MockEventLog{}
	source := &mocks.MockAuditSource{}
	uc := NewIngestEventsUseCase(source, log, nil, nil, testLogger(), 50)

	res, err := uc.IngestEvents(context.Background(), []domain.AuditEvent{
		auditEvent("2024-05-01T10:00:00Z", "carol@example.com", "Delete user", "Delete", "success"),
	})

	if err != nil {
		t.Fatalf("expected no error, got %v", err)
	}
	if res.Appended != 1 {
		t.Errorf("expected 1 row appended, got %d", res.Appended)
	}
	if len(source.Tops) != 0 {
		t.Error("expected the source not to be called for pushed events")
	}

	res, err = uc.IngestEvents(context.Background(), nil)
	if err != nil || res.Appended != 0 {
		t.Errorf("expected empty push to be a no-op, got %+v %v", res, err)
	}
}
