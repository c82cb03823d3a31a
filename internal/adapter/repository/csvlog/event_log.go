package csvlog

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"sync"

	"github.com/V4T54L/audit-ticketer/internal/domain"
)

const (
	filePerm = 0644
	dirPerm  = 0755
)

// Header is the exact column order of the event log file.
var Header = []string{
	"timestamp",
	"operation",
	"result",
	"user_principal_name",
	"message",
	"risk_level",
	"ticket_exists",
	"ticket_key",
	"processed",
	"target_resource_ids",
	"target_resource_principal_names",
	"modified_properties",
}

// EventLog implements domain.EventLog on a single CSV file.
// Every operation holds mu for its whole read-modify-write cycle.
type EventLog struct {
	path     string
	logger   *slog.Logger
	syncFile func(*os.File) error

	mu sync.Mutex
}

// NewEventLog creates an EventLog at path. The file itself is created on first append.
func NewEventLog(path string, logger *slog.Logger) (*EventLog, error) {
	if err := os.MkdirAll(filepath.Dir(path), dirPerm); err != nil {
		return nil, fmt.Errorf("failed to create event log directory for %s: %w: %w", path, domain.ErrStorageUnavailable, err)
	}
	return &EventLog{
		path:     path,
		logger:   logger.With("component", "csv_event_log"),
		syncFile: (*os.File).Sync,
	}, nil
}

// Path returns the backing file path.
func (l *EventLog) Path() string {
	return l.path
}

// Append writes rows to the end of the file in a single write. If the write or the sync
// fails the file is truncated back to its previous size.
func (l *EventLog) Append(ctx context.Context, rows []domain.EventRow) error {
	if len(rows) == 0 {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	f, err := os.OpenFile(l.path, os.O_RDWR|os.O_CREATE|os.O_APPEND, filePerm)
	if err != nil {
		return storageErr("open", err)
	}
	defer f.Close()

	stat, err := f.Stat()
	if err != nil {
		return storageErr("stat", err)
	}
	size := stat.Size()

	var buf bytes.Buffer
	if size == 0 {
		writeRecords(&buf, [][]string{Header})
	} else {
		if err := checkHeader(io.NewSectionReader(f, 0, size)); err != nil {
			return err
		}
		last := make([]byte, 1)
		if _, err := f.ReadAt(last, size-1); err != nil {
			return storageErr("read tail", err)
		}
		if last[0] != '\n' {
			buf.WriteByte('\n')
		}
	}

	records := make([][]string, len(rows))
	for i, row := range rows {
		records[i] = toRecord(row)
	}
	if err := writeRecords(&buf, records); err != nil {
		return storageErr("encode rows", err)
	}

	rollback := func() {
		if terr := f.Truncate(size); terr != nil {
			l.logger.Error("Failed to roll back partial append", "error", terr, "size", size)
		}
	}
	if _, err := f.Write(buf.Bytes()); err != nil {
		rollback()
		return storageErr("append", err)
	}
	if err := l.syncFile(f); err != nil {
		rollback()
		return storageErr("sync", err)
	}

	l.logger.Debug("Appended rows", "count", len(rows))
	return nil
}

// ScanUnprocessed returns rows whose processed flag is falsy, in file order.
func (l *EventLog) ScanUnprocessed(ctx context.Context) ([]domain.StoredRow, error) {
	rows, err := l.ScanAll(ctx)
	if err != nil {
		return nil, err
	}
	unprocessed := rows[:0]
	for _, row := range rows {
		if !row.Processed.Bool() {
			unprocessed = append(unprocessed, row)
		}
	}
	return unprocessed, nil
}

// ScanAll returns all rows in file order.
func (l *EventLog) ScanAll(ctx context.Context) ([]domain.StoredRow, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	return l.load()
}

// UpdateState patches rows matching m whose ticket_exists is falsy. Rows that already
// carry a ticket are never touched, so a second create cannot overwrite a ticket key.
func (l *EventLog) UpdateState(ctx context.Context, m domain.StateMatcher, patch domain.StatePatch) (int, error) {
	return l.mutate(ctx, func(rows []domain.StoredRow) int {
		n := 0
		for i := range rows {
			row := &rows[i]
			if row.UserPrincipalName != m.UserPrincipalName || row.Operation != m.Operation {
				continue
			}
			if row.TicketExists.Bool() {
				continue
			}
			patch.Apply(&row.EventRow)
			n++
		}
		return n
	})
}

// MarkProcessed sets processed=true on each referenced row. A ref whose position no
// longer holds its natural key is skipped.
func (l *EventLog) MarkProcessed(ctx context.Context, refs []domain.RowRef) (int, error) {
	if len(refs) == 0 {
		return 0, nil
	}
	return l.mutate(ctx, func(rows []domain.StoredRow) int {
		n := 0
		for _, ref := range refs {
			if ref.Position < 0 || ref.Position >= len(rows) || rows[ref.Position].Key() != ref.Key {
				l.logger.Warn("Row reference no longer matches, skipping", "position", ref.Position, "key", ref.Key.String())
				continue
			}
			row := &rows[ref.Position]
			if row.Processed.Bool() {
				continue
			}
			row.Processed = domain.FlagTrue
			n++
		}
		return n
	})
}

// ResetProcessed clears the processed flag on every row with key.
func (l *EventLog) ResetProcessed(ctx context.Context, key domain.NaturalKey) (int, error) {
	return l.mutate(ctx, func(rows []domain.StoredRow) int {
		n := 0
		for i := range rows {
			if rows[i].Key() != key || !rows[i].Processed.Bool() {
				continue
			}
			rows[i].Processed = domain.FlagFalse
			n++
		}
		return n
	})
}

// mutate loads the file, applies fn and rewrites the file if fn changed anything.
func (l *EventLog) mutate(ctx context.Context, fn func(rows []domain.StoredRow) int) (int, error) {
	if err := ctx.Err(); err != nil {
		return 0, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	rows, err := l.load()
	if err != nil {
		return 0, err
	}
	n := fn(rows)
	if n == 0 {
		return 0, nil
	}
	if err := l.rewrite(rows); err != nil {
		return 0, err
	}
	return n, nil
}

func (l *EventLog) load() ([]domain.StoredRow, error) {
	f, err := os.Open(l.path)
	if errors.Is(err, os.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("open", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = len(Header)
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil
	}
	if err != nil {
		return nil, storageErr("read header", err)
	}
	if !slices.Equal(header, Header) {
		return nil, fmt.Errorf("unexpected event log header %v: %w", header, domain.ErrStorageUnavailable)
	}

	var rows []domain.StoredRow
	for {
		rec, err := r.Read()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, storageErr("read row", err)
		}
		rows = append(rows, domain.StoredRow{Position: len(rows), EventRow: fromRecord(rec)})
	}
	return rows, nil
}

// rewrite replaces the file with rows via a temp file and rename.
func (l *EventLog) rewrite(rows []domain.StoredRow) error {
	records := make([][]string, 0, len(rows)+1)
	records = append(records, Header)
	for _, row := range rows {
		records = append(records, toRecord(row.EventRow))
	}

	tmp, err := os.CreateTemp(filepath.Dir(l.path), ".eventlog-*.tmp")
	if err != nil {
		return storageErr("create temp file", err)
	}
	tmpPath := tmp.Name()
	cleanup := func() {
		tmp.Close()
		os.Remove(tmpPath)
	}

	if err := writeRecords(tmp, records); err != nil {
		cleanup()
		return storageErr("write temp file", err)
	}
	if err := l.syncFile(tmp); err != nil {
		cleanup()
		return storageErr("sync temp file", err)
	}
	if err := tmp.Close(); err != nil {
		os.Remove(tmpPath)
		return storageErr("close temp file", err)
	}
	if err := os.Chmod(tmpPath, filePerm); err != nil {
		os.Remove(tmpPath)
		return storageErr("chmod temp file", err)
	}
	if err := os.Rename(tmpPath, l.path); err != nil {
		os.Remove(tmpPath)
		return storageErr("replace event log", err)
	}
	return nil
}

func checkHeader(r io.Reader) error {
	header, err := csv.NewReader(r).Read()
	if err != nil {
		return storageErr("read header", err)
	}
	if !slices.Equal(header, Header) {
		return fmt.Errorf("unexpected event log header %v: %w", header, domain.ErrStorageUnavailable)
	}
	return nil
}

func writeRecords(w io.Writer, records [][]string) error {
	cw := csv.NewWriter(w)
	if err := cw.WriteAll(records); err != nil {
		return err
	}
	return cw.Error()
}

func toRecord(row domain.EventRow) []string {
	return []string{
		row.Timestamp,
		row.Operation,
		row.Result,
		row.UserPrincipalName,
		row.Message,
		string(row.RiskLevel),
		string(row.TicketExists),
		row.TicketKey,
		string(row.Processed),
		domain.JoinList(row.TargetResourceIDs),
		domain.JoinList(row.TargetResourcePrincipalNames),
		domain.JoinList(row.ModifiedProperties),
	}
}

func fromRecord(rec []string) domain.EventRow {
	return domain.EventRow{
		Timestamp:                    rec[0],
		Operation:                    rec[1],
		Result:                       rec[2],
		UserPrincipalName:            rec[3],
		Message:                      rec[4],
		RiskLevel:                    domain.RiskLevel(rec[5]),
		TicketExists:                 domain.Flag(rec[6]),
		TicketKey:                    rec[7],
		Processed:                    domain.Flag(rec[8]),
		TargetResourceIDs:            domain.SplitList(rec[9]),
		TargetResourcePrincipalNames: domain.SplitList(rec[10]),
		ModifiedProperties:           domain.SplitList(rec[11]),
	}
}

func storageErr(op string, err error) error {
	return fmt.Errorf("event log %s failed: %w: %w", op, domain.ErrStorageUnavailable, err)
}
