package persistence

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"FactorVault/internal/audit"
)

// AuditLogWriter writes audit envelopes to Postgres using multi-row batch
// inserts. Writes are idempotent on sequence, so a retried batch never
// duplicates rows.
type AuditLogWriter struct {
	db *sql.DB
}

// AuditRow is a row in audit_log.events.
type AuditRow struct {
	Sequence  int64
	EventType string
	InvoiceID *string
	Actor     string
	Payload   []byte
	StateHash []byte
	PrevHash  []byte
	Timestamp time.Time
}

func NewAuditLogWriter(db *sql.DB) *AuditLogWriter {
	return &AuditLogWriter{db: db}
}

// RowFromEnvelope flattens an envelope for storage. Payloads are stored as
// JSON for debuggability; the hash chain columns keep the log verifiable.
func RowFromEnvelope(env audit.Envelope) (AuditRow, error) {
	payload, err := json.Marshal(env.Payload)
	if err != nil {
		return AuditRow{}, fmt.Errorf("marshal payload for sequence %d: %w", env.Sequence, err)
	}

	var invoiceID *string
	if env.InvoiceID != nil && *env.InvoiceID != uuid.Nil {
		s := env.InvoiceID.String()
		invoiceID = &s
	}

	return AuditRow{
		Sequence:  env.Sequence,
		EventType: env.EventType.String(),
		InvoiceID: invoiceID,
		Actor:     env.Actor.String(),
		Payload:   payload,
		StateHash: env.StateHash[:],
		PrevHash:  env.PrevHash[:],
		Timestamp: env.Timestamp,
	}, nil
}

// WriteBatch inserts a batch of audit rows inside the given transaction.
func (w *AuditLogWriter) WriteBatch(ctx context.Context, tx *sql.Tx, rows []AuditRow) error {
	if len(rows) == 0 {
		return nil
	}

	query := `INSERT INTO audit_log.events
		(sequence, event_type, invoice_id, actor, payload, state_hash, prev_hash, timestamp)
		VALUES `

	values := make([]string, 0, len(rows))
	args := make([]interface{}, 0, len(rows)*8)

	for i, r := range rows {
		base := i * 8
		values = append(values, fmt.Sprintf(
			"($%d, $%d, $%d, $%d, $%d, $%d, $%d, $%d)",
			base+1, base+2, base+3, base+4, base+5, base+6, base+7, base+8,
		))
		args = append(args,
			r.Sequence, r.EventType, r.InvoiceID, r.Actor,
			r.Payload, r.StateHash, r.PrevHash, r.Timestamp,
		)
	}

	query += strings.Join(values, ", ")
	query += " ON CONFLICT (sequence) DO NOTHING"

	_, err := tx.ExecContext(ctx, query, args...)
	return err
}

// LastSequence returns the highest persisted audit sequence, or 0 for an
// empty log. Used at startup to resume numbering.
func (w *AuditLogWriter) LastSequence(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := w.db.QueryRowContext(ctx,
		`SELECT MAX(sequence) FROM audit_log.events`,
	).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
