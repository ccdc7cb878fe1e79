package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/leaknote/internal/domain"
)

const inboxColumns = `id, raw_text, destination, record_id, confidence, status,
	transport_message_id, transport_chat_id, version, created_at, updated_at`

// LogInbox records the routing outcome of a transport message. Routing the
// same (chat, message) again updates the existing entry and bumps its version,
// so a re-routed note never gets a second log row. A record the entry pointed
// at before is deleted in the same transaction.
func (s *Store) LogInbox(ctx context.Context, e *domain.InboxLogEntry) (string, error) {
	now := s.now()

	var confidence sql.NullFloat64
	if e.Confidence != nil {
		confidence = sql.NullFloat64{Float64: *e.Confidence, Valid: true}
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return "", fmt.Errorf("log inbox: %w", err)
	}
	defer tx.Rollback()

	var prevDest, prevRecord sql.NullString
	err = tx.QueryRowContext(ctx, `
		SELECT destination, record_id FROM inbox_log
		WHERE transport_chat_id = ? AND transport_message_id = ?
	`, e.ChatID, e.MessageID).Scan(&prevDest, &prevRecord)
	if err != nil && !errors.Is(err, sql.ErrNoRows) {
		return "", fmt.Errorf("log inbox: %w", err)
	}

	var id string
	err = tx.QueryRowContext(ctx, `
		INSERT INTO inbox_log (id, raw_text, destination, record_id, confidence, status,
			transport_message_id, transport_chat_id, version, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, 1, ?, ?)
		ON CONFLICT (transport_chat_id, transport_message_id) DO UPDATE SET
			raw_text = excluded.raw_text,
			destination = excluded.destination,
			record_id = excluded.record_id,
			confidence = excluded.confidence,
			status = excluded.status,
			version = inbox_log.version + 1,
			updated_at = excluded.updated_at
		RETURNING id
	`,
		newID(), e.RawText, nonEmpty(string(e.Destination)), nonEmpty(e.RecordID), confidence, string(e.Status),
		e.MessageID, e.ChatID, now, now,
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("log inbox: %w", err)
	}

	if prevRecord.Valid && prevRecord.String != e.RecordID {
		if c := domain.Category(prevDest.String); c.Valid() {
			if _, err := tx.ExecContext(ctx, "DELETE FROM "+string(c)+" WHERE id = ?", prevRecord.String); err != nil {
				return "", fmt.Errorf("log inbox: remove superseded %s: %w", c, err)
			}
		}
	}

	if err := tx.Commit(); err != nil {
		return "", fmt.Errorf("log inbox: %w", err)
	}
	return id, nil
}

// GetInboxLog loads an entry by id
func (s *Store) GetInboxLog(ctx context.Context, id string) (*domain.InboxLogEntry, error) {
	row := s.db.QueryRowContext(ctx, "SELECT "+inboxColumns+" FROM inbox_log WHERE id = ?", id)
	return scanInbox(row)
}

// GetInboxLogByMessage loads the entry for a transport message
func (s *Store) GetInboxLogByMessage(ctx context.Context, chatID, messageID string) (*domain.InboxLogEntry, error) {
	row := s.db.QueryRowContext(ctx,
		"SELECT "+inboxColumns+" FROM inbox_log WHERE transport_chat_id = ? AND transport_message_id = ?",
		chatID, messageID)
	return scanInbox(row)
}

// UpdateInboxLog moves an entry to a new destination if it is still at
// version. ErrConflict means another writer got there first.
func (s *Store) UpdateInboxLog(ctx context.Context, id string, version int, dest domain.Category, recordID string, status domain.Status) error {
	res, err := s.db.ExecContext(ctx, `
		UPDATE inbox_log
		SET destination = ?, record_id = ?, status = ?, version = version + 1, updated_at = ?
		WHERE id = ? AND version = ?
	`, nonEmpty(string(dest)), nonEmpty(recordID), string(status), s.now(), id, version)
	if err != nil {
		return fmt.Errorf("update inbox log: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("update inbox log: %w", err)
	}
	if n == 0 {
		return ErrConflict
	}
	return nil
}

// ListInboxLog returns recent entries with pagination
func (s *Store) ListInboxLog(ctx context.Context, limit, offset int) ([]domain.InboxLogEntry, error) {
	rows, err := s.db.QueryContext(ctx,
		"SELECT "+inboxColumns+" FROM inbox_log ORDER BY created_at DESC LIMIT ? OFFSET ?",
		limit, offset)
	if err != nil {
		return nil, fmt.Errorf("list inbox log: %w", err)
	}
	defer rows.Close()

	var entries []domain.InboxLogEntry
	for rows.Next() {
		e, err := scanInbox(rows)
		if err != nil {
			return nil, err
		}
		entries = append(entries, *e)
	}
	return entries, rows.Err()
}

// InboxStats summarizes entries created since a point in time
type InboxStats struct {
	Total       int `json:"total"`
	Filed       int `json:"filed"`
	NeedsReview int `json:"needs_review"`
	Fixed       int `json:"fixed"`
}

// InboxStatsSince counts entries by status created at or after since
func (s *Store) InboxStatsSince(ctx context.Context, since time.Time) (*InboxStats, error) {
	var st InboxStats
	err := s.db.QueryRowContext(ctx, `
		SELECT
			COUNT(*),
			COALESCE(SUM(status = 'filed'), 0),
			COALESCE(SUM(status = 'needs_review'), 0),
			COALESCE(SUM(status = 'fixed'), 0)
		FROM inbox_log
		WHERE created_at >= ?
	`, since.UTC()).Scan(&st.Total, &st.Filed, &st.NeedsReview, &st.Fixed)
	if err != nil {
		return nil, fmt.Errorf("inbox stats: %w", err)
	}
	return &st, nil
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanInbox(row rowScanner) (*domain.InboxLogEntry, error) {
	var (
		e              domain.InboxLogEntry
		dest, recordID sql.NullString
		confidence     sql.NullFloat64
		status         string
	)
	err := row.Scan(&e.ID, &e.RawText, &dest, &recordID, &confidence, &status,
		&e.MessageID, &e.ChatID, &e.Version, &e.CreatedAt, &e.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("scan inbox log: %w", err)
	}

	e.Destination = domain.Category(dest.String)
	e.RecordID = recordID.String
	e.Status = domain.Status(status)
	if confidence.Valid {
		c := confidence.Float64
		e.Confidence = &c
	}
	return &e, nil
}
