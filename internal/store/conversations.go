package store

import (
	"context"
	"fmt"
	"time"

	"zapdesk/internal/models"
)

// FindActiveConversation returns the most recent pending/open conversation for
// the identity within the instance, or sql.ErrNoRows.
func (s *Store) FindActiveConversation(ctx context.Context, instanceID, tenantID string, contactID, groupID *string) (*models.Conversation, error) {
	var conv models.Conversation
	var err error
	if groupID != nil {
		err = s.db.GetContext(ctx, &conv, `
			SELECT * FROM conversations
			WHERE instance_id = $1 AND tenant_id = $2 AND group_id = $3 AND status IN ('pending','open')
			ORDER BY created_at DESC LIMIT 1`, instanceID, tenantID, *groupID)
	} else {
		err = s.db.GetContext(ctx, &conv, `
			SELECT * FROM conversations
			WHERE instance_id = $1 AND tenant_id = $2 AND contact_id = $3 AND status IN ('pending','open')
			ORDER BY created_at DESC LIMIT 1`, instanceID, tenantID, *contactID)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

// FindOrphanConversation looks for an active conversation whose instance
// reference was nulled by an instance-deletion flow.
func (s *Store) FindOrphanConversation(ctx context.Context, tenantID string, contactID, groupID *string) (*models.Conversation, error) {
	var conv models.Conversation
	var err error
	if groupID != nil {
		err = s.db.GetContext(ctx, &conv, `
			SELECT * FROM conversations
			WHERE instance_id IS NULL AND tenant_id = $1 AND group_id = $2 AND status IN ('pending','open')
			ORDER BY created_at DESC LIMIT 1`, tenantID, *groupID)
	} else {
		err = s.db.GetContext(ctx, &conv, `
			SELECT * FROM conversations
			WHERE instance_id IS NULL AND tenant_id = $1 AND contact_id = $2 AND status IN ('pending','open')
			ORDER BY created_at DESC LIMIT 1`, tenantID, *contactID)
	}
	if err != nil {
		return nil, err
	}
	return &conv, nil
}

func (s *Store) CreateConversation(ctx context.Context, conv *models.Conversation) error {
	conv.ID = newID()
	ts := now()
	conv.CreatedAt = ts
	conv.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO conversations (id, contact_id, group_id, instance_id, tenant_id, status, agent_id, queue_id,
			unread, last_message, last_message_at, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13)`,
		conv.ID, conv.ContactID, conv.GroupID, conv.InstanceID, conv.TenantID, conv.Status, conv.AgentID,
		conv.QueueID, conv.Unread, conv.LastMessage, conv.LastMessageAt, conv.CreatedAt, conv.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert conversation: %w", err)
	}
	return nil
}

// ReattachConversation repairs an orphaned conversation by pointing it at the
// current instance.
func (s *Store) ReattachConversation(ctx context.Context, conversationID, instanceID string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET instance_id = $1, updated_at = $2 WHERE id = $3`,
		instanceID, now(), conversationID)
	if err != nil {
		return fmt.Errorf("reattach conversation %s: %w", conversationID, err)
	}
	return nil
}

// TouchConversation increments the unread counter and refreshes the
// denormalized last-message fields.
func (s *Store) TouchConversation(ctx context.Context, conversationID, preview string, at time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET unread = unread + 1, last_message = $1, last_message_at = $2, updated_at = $3
		WHERE id = $4`, preview, at, now(), conversationID)
	if err != nil {
		return fmt.Errorf("touch conversation %s: %w", conversationID, err)
	}
	return nil
}

func (s *Store) UpdateConversationStatus(ctx context.Context, conversationID, status string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE conversations SET status = $1, updated_at = $2 WHERE id = $3`,
		status, now(), conversationID)
	if err != nil {
		return fmt.Errorf("update conversation status %s: %w", conversationID, err)
	}
	return nil
}

func (s *Store) GetConversation(ctx context.Context, id string) (*models.Conversation, error) {
	var conv models.Conversation
	if err := s.db.GetContext(ctx, &conv, `SELECT * FROM conversations WHERE id = $1`, id); err != nil {
		return nil, err
	}
	return &conv, nil
}
