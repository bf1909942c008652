package store

import (
	"context"
	"fmt"

	"zapdesk/internal/models"
)

// InsertMessage writes the message row. A unique violation on
// (conversation_id, source_id) means the same provider message id was already
// persisted for this conversation; callers treat that as already-processed.
func (s *Store) InsertMessage(ctx context.Context, m *models.Message) error {
	m.ID = newID()
	if m.CreatedAt.IsZero() {
		m.CreatedAt = now()
	}
	if m.Status == "" {
		m.Status = models.StatusSent
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO messages (id, conversation_id, body, direction, type, source_id, sender_name, sender_jid,
			sender_picture, media_url, media_name, media_type, status, reply_to_id, quoted_body, quoted_sender, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16, $17)`,
		m.ID, m.ConversationID, m.Body, m.Direction, m.Type, m.SourceID, m.SenderName, m.SenderJID,
		m.SenderPicture, m.MediaURL, m.MediaName, m.MediaType, m.Status, m.ReplyToID, m.QuotedBody,
		m.QuotedSender, m.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert message: %w", err)
	}
	return nil
}

func (s *Store) GetMessageBySource(ctx context.Context, conversationID, sourceID string) (*models.Message, error) {
	var m models.Message
	err := s.db.GetContext(ctx, &m, `
		SELECT * FROM messages WHERE conversation_id = $1 AND source_id = $2 LIMIT 1`, conversationID, sourceID)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CountMessages(ctx context.Context, conversationID string) (int, error) {
	var n int
	err := s.db.GetContext(ctx, &n, `SELECT COUNT(*) FROM messages WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return 0, fmt.Errorf("count messages: %w", err)
	}
	return n, nil
}

// ListRecentMessages returns up to limit messages, newest first.
func (s *Store) ListRecentMessages(ctx context.Context, conversationID string, limit int) ([]models.Message, error) {
	var msgs []models.Message
	err := s.db.SelectContext(ctx, &msgs, `
		SELECT * FROM messages WHERE conversation_id = $1 ORDER BY created_at DESC LIMIT $2`,
		conversationID, limit)
	if err != nil {
		return nil, fmt.Errorf("list recent messages: %w", err)
	}
	return msgs, nil
}

var statusRank = map[string]int{
	models.StatusSent:      1,
	models.StatusDelivered: 2,
	models.StatusRead:      3,
}

// AdvanceMessageStatus applies a delivery-state update by provider message id.
// Status never moves backwards (a Delivered receipt after Read is a no-op).
// Returns whether any row with that source id exists and whether one advanced.
func (s *Store) AdvanceMessageStatus(ctx context.Context, sourceID, status string) (found bool, updated bool, err error) {
	var current []models.Message
	err = s.db.SelectContext(ctx, &current, `SELECT * FROM messages WHERE source_id = $1`, sourceID)
	if err != nil {
		return false, false, fmt.Errorf("lookup message by source id: %w", err)
	}
	if len(current) == 0 {
		return false, false, nil
	}
	newRank := statusRank[status]
	for _, m := range current {
		if statusRank[m.Status] >= newRank {
			continue
		}
		_, err = s.db.ExecContext(ctx, `UPDATE messages SET status = $1 WHERE id = $2`, status, m.ID)
		if err != nil {
			return true, updated, fmt.Errorf("update message status: %w", err)
		}
		updated = true
	}
	return true, updated, nil
}
