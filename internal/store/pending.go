package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/pbaille/leaknote/internal/domain"
)

// InsertPending creates the pending clarification for an inbox entry. An entry
// has at most one: a second prompt for the same entry replaces the first.
func (s *Store) InsertPending(ctx context.Context, p *domain.PendingClarification) (string, error) {
	var id string
	err := s.db.QueryRowContext(ctx, `
		INSERT INTO pending_clarifications (id, inbox_log_id, transport_reply_target_id,
			transport_chat_id, suggested_category, created_at)
		VALUES (?, ?, ?, ?, ?, ?)
		ON CONFLICT (inbox_log_id) DO UPDATE SET
			transport_reply_target_id = excluded.transport_reply_target_id,
			transport_chat_id = excluded.transport_chat_id,
			suggested_category = excluded.suggested_category,
			created_at = excluded.created_at
		RETURNING id
	`,
		newID(), p.InboxLogID, p.ReplyTargetID, p.ChatID, nonEmpty(string(p.SuggestedCategory)), s.now(),
	).Scan(&id)
	if err != nil {
		return "", fmt.Errorf("insert pending clarification: %w", err)
	}
	return id, nil
}

// GetPendingByReplyTarget finds the clarification whose prompt message was
// replyTargetID, joined with the original note text and message id
func (s *Store) GetPendingByReplyTarget(ctx context.Context, chatID, replyTargetID string) (*domain.PendingClarification, error) {
	var (
		p         domain.PendingClarification
		suggested sql.NullString
	)
	err := s.db.QueryRowContext(ctx, `
		SELECT pc.id, pc.inbox_log_id, pc.transport_reply_target_id, pc.transport_chat_id,
			pc.suggested_category, pc.created_at, il.raw_text, il.transport_message_id
		FROM pending_clarifications pc
		JOIN inbox_log il ON pc.inbox_log_id = il.id
		WHERE pc.transport_chat_id = ? AND pc.transport_reply_target_id = ?
	`, chatID, replyTargetID).Scan(&p.ID, &p.InboxLogID, &p.ReplyTargetID, &p.ChatID,
		&suggested, &p.CreatedAt, &p.RawText, &p.MessageID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("get pending clarification: %w", err)
	}
	p.SuggestedCategory = domain.Category(suggested.String)
	return &p, nil
}

// DeletePending removes a clarification, reporting whether it existed
func (s *Store) DeletePending(ctx context.Context, id string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_clarifications WHERE id = ?", id)
	if err != nil {
		return false, fmt.Errorf("delete pending clarification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete pending clarification: %w", err)
	}
	return n == 1, nil
}

// DeletePendingByLog removes the clarification waiting on an inbox entry,
// reporting whether there was one
func (s *Store) DeletePendingByLog(ctx context.Context, inboxLogID string) (bool, error) {
	res, err := s.db.ExecContext(ctx, "DELETE FROM pending_clarifications WHERE inbox_log_id = ?", inboxLogID)
	if err != nil {
		return false, fmt.Errorf("delete pending clarification: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("delete pending clarification: %w", err)
	}
	return n == 1, nil
}

// DeletePendingBefore removes clarifications created before cutoff
func (s *Store) DeletePendingBefore(ctx context.Context, cutoff time.Time) (int, error) {
	res, err := s.db.ExecContext(ctx,
		"DELETE FROM pending_clarifications WHERE created_at < ?", cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("cleanup pending clarifications: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("cleanup pending clarifications: %w", err)
	}
	return int(n), nil
}
