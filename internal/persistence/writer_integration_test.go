package persistence_test

import (
	"context"
	"fmt"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"FactorVault/internal/audit"
	"FactorVault/internal/persistence"
	"FactorVault/internal/query"
	"FactorVault/internal/testutil"
)

// chainedRows builds n envelopes with a valid hash chain starting at seq 1
// and flattens them for storage.
func chainedRows(t *testing.T, n int) []persistence.AuditRow {
	t.Helper()

	hasher := audit.NewStateHasher()
	actor := uuid.New()
	rows := make([]persistence.AuditRow, 0, n)
	for i := 0; i < n; i++ {
		seq := int64(i + 1)
		env := audit.Envelope{
			Sequence:  seq,
			EventType: audit.EventTypeDeposit,
			Actor:     actor,
			Timestamp: time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC).Add(time.Duration(i) * time.Second),
			Payload:   map[string]int64{"assets": 1000 * seq},
			PrevHash:  hasher.PrevHash(),
		}
		env.StateHash = hasher.ComputeHash(seq, []byte(fmt.Sprintf("state-%d", seq)))

		row, err := persistence.RowFromEnvelope(env)
		if err != nil {
			t.Fatalf("flatten envelope %d: %v", seq, err)
		}
		rows = append(rows, row)
	}
	return rows
}

func TestAuditLogWriter_BatchInsertAndResume(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewAuditLogWriter(db)
	rows := chainedRows(t, 5)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteBatch(ctx, tx, rows[:3]); err != nil {
		t.Fatalf("write first batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	// The second batch overlaps the first; retried sequences must not
	// duplicate rows.
	tx, err = db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteBatch(ctx, tx, rows[1:]); err != nil {
		t.Fatalf("write overlapping batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	last, err := writer.LastSequence(ctx)
	if err != nil {
		t.Fatalf("last sequence: %v", err)
	}
	if last != 5 {
		t.Errorf("last sequence = %d, want 5", last)
	}

	var count int64
	if err := db.QueryRowContext(ctx, `SELECT COUNT(*) FROM audit_log.events`).Scan(&count); err != nil {
		t.Fatalf("count rows: %v", err)
	}
	if count != 5 {
		t.Errorf("row count = %d, want 5 (overlap must be deduplicated)", count)
	}
}

func TestAuditLogWriter_QueryServiceReadsBack(t *testing.T) {
	testutil.RequireIntegration(t)

	db, cleanup := testutil.SetupTestDB(t)
	defer cleanup()

	ctx := context.Background()
	migrator := persistence.NewMigrator(db, "../../migrations", zerolog.Nop())
	if err := migrator.Up(ctx); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	writer := persistence.NewAuditLogWriter(db)
	rows := chainedRows(t, 4)

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("begin: %v", err)
	}
	if err := writer.WriteBatch(ctx, tx, rows); err != nil {
		t.Fatalf("write batch: %v", err)
	}
	if err := tx.Commit(); err != nil {
		t.Fatalf("commit: %v", err)
	}

	svc := query.NewService(db)

	watermark, err := svc.Watermark(ctx)
	if err != nil {
		t.Fatalf("watermark: %v", err)
	}
	if watermark != 4 {
		t.Errorf("watermark = %d, want 4", watermark)
	}

	events, err := svc.Events(ctx, nil, 10, nil)
	if err != nil {
		t.Fatalf("events: %v", err)
	}
	if len(events) != 4 {
		t.Fatalf("events returned %d rows, want 4", len(events))
	}
	if events[0].Sequence != 4 {
		t.Errorf("events must be newest first, got head sequence %d", events[0].Sequence)
	}
	for _, e := range events {
		if e.AsOfSequence != 4 {
			t.Errorf("sequence %d carries as_of %d, want 4", e.Sequence, e.AsOfSequence)
		}
	}

	report, err := svc.VerifyIntegrity(ctx, 1)
	if err != nil {
		t.Fatalf("verify integrity: %v", err)
	}
	if !report.IsHealthy {
		t.Errorf("chain written in order must verify, got breaks=%v gaps=%v",
			report.HashChainBreaks, report.SequenceGaps)
	}
	if report.EventsChecked != 4 {
		t.Errorf("events checked = %d, want 4", report.EventsChecked)
	}
}
