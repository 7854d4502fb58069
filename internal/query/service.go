// Package query serves read-only access to the durable audit log. The
// in-memory engine answers live fund state; this package answers history:
// what happened, in what order, and whether the recorded chain still
// verifies. All responses carry the log's high-water sequence so callers can
// reason about freshness.
package query

import (
	"bytes"
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"github.com/google/uuid"
)

// Service reads the audit_log.events table written by the persistence
// worker. It never writes.
type Service struct {
	db *sql.DB
}

func NewService(db *sql.DB) *Service {
	return &Service{db: db}
}

// AuditEvent is one persisted envelope as returned on the read API.
type AuditEvent struct {
	Sequence     int64           `json:"sequence"`
	EventType    string          `json:"event_type"`
	InvoiceID    *uuid.UUID      `json:"invoice_id,omitempty"`
	Actor        uuid.UUID       `json:"actor"`
	Payload      json.RawMessage `json:"payload"`
	StateHash    []byte          `json:"state_hash"`
	PrevHash     []byte          `json:"prev_hash"`
	Timestamp    time.Time       `json:"timestamp"`
	AsOfSequence int64           `json:"as_of_sequence"`
}

// Events returns audit events in descending sequence order with cursor
// pagination. A non-nil invoiceID filters to one receivable's history; a
// non-nil beforeSequence returns only older events.
func (s *Service) Events(ctx context.Context, invoiceID *uuid.UUID, limit int, beforeSequence *int64) ([]AuditEvent, error) {
	asOf, err := s.Watermark(ctx)
	if err != nil {
		return nil, fmt.Errorf("watermark: %w", err)
	}

	query := `
		SELECT sequence, event_type, invoice_id, actor, payload, state_hash, prev_hash, timestamp
		FROM audit_log.events
		WHERE 1=1
	`
	args := []interface{}{}
	argIdx := 1

	if invoiceID != nil {
		query += fmt.Sprintf(" AND invoice_id = $%d", argIdx)
		args = append(args, invoiceID.String())
		argIdx++
	}
	if beforeSequence != nil {
		query += fmt.Sprintf(" AND sequence < $%d", argIdx)
		args = append(args, *beforeSequence)
		argIdx++
	}

	query += " ORDER BY sequence DESC"
	query += fmt.Sprintf(" LIMIT $%d", argIdx)
	args = append(args, limit)

	rows, err := s.db.QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var events []AuditEvent
	for rows.Next() {
		var e AuditEvent
		var invID sql.NullString
		e.AsOfSequence = asOf
		if err := rows.Scan(
			&e.Sequence, &e.EventType, &invID, &e.Actor,
			&e.Payload, &e.StateHash, &e.PrevHash, &e.Timestamp,
		); err != nil {
			return nil, err
		}
		if invID.Valid {
			id, perr := uuid.Parse(invID.String)
			if perr == nil {
				e.InvoiceID = &id
			}
		}
		events = append(events, e)
	}
	return events, rows.Err()
}

// IntegrityReport is the result of verifying the persisted hash chain.
type IntegrityReport struct {
	IsHealthy       bool    `json:"is_healthy"`
	EventsChecked   int64   `json:"events_checked"`
	HashChainBreaks []int64 `json:"hash_chain_breaks,omitempty"`
	SequenceGaps    []int64 `json:"sequence_gaps,omitempty"`
	AsOfSequence    int64   `json:"as_of_sequence"`
}

// VerifyIntegrity walks the persisted log from fromSequence and checks two
// invariants: sequences are gapless, and every prev_hash matches the
// predecessor's state_hash. The state digest is not recomputable from the
// log alone, so chain linkage is the verifiable part.
func (s *Service) VerifyIntegrity(ctx context.Context, fromSequence int64) (*IntegrityReport, error) {
	asOf, err := s.Watermark(ctx)
	if err != nil {
		return nil, err
	}
	report := &IntegrityReport{AsOfSequence: asOf}

	rows, err := s.db.QueryContext(ctx, `
		SELECT sequence, state_hash, prev_hash
		FROM audit_log.events
		WHERE sequence >= $1
		ORDER BY sequence ASC
	`, fromSequence)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var prevSeq int64
	var prevHash []byte
	first := true
	for rows.Next() {
		var seq int64
		var stateHash, recordedPrev []byte
		if err := rows.Scan(&seq, &stateHash, &recordedPrev); err != nil {
			return nil, err
		}
		report.EventsChecked++

		if !first {
			if seq != prevSeq+1 {
				report.SequenceGaps = append(report.SequenceGaps, seq)
			}
			if !bytes.Equal(recordedPrev, prevHash) {
				report.HashChainBreaks = append(report.HashChainBreaks, seq)
			}
		}
		prevSeq, prevHash, first = seq, stateHash, false
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	report.IsHealthy = len(report.HashChainBreaks) == 0 && len(report.SequenceGaps) == 0
	return report, nil
}

// Watermark returns the highest persisted sequence, 0 when the log is empty.
func (s *Service) Watermark(ctx context.Context) (int64, error) {
	var seq sql.NullInt64
	err := s.db.QueryRowContext(ctx, `
		SELECT MAX(sequence) FROM audit_log.events
	`).Scan(&seq)
	if err != nil {
		return 0, err
	}
	if !seq.Valid {
		return 0, nil
	}
	return seq.Int64, nil
}
