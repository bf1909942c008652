package store

import (
	"context"
	"fmt"
	"time"

	"zapdesk/internal/models"
)

func (s *Store) GetFollowUpByConversation(ctx context.Context, conversationID string) (*models.FollowUpSchedule, error) {
	var f models.FollowUpSchedule
	err := s.db.GetContext(ctx, &f, `SELECT * FROM follow_up_schedules WHERE conversation_id = $1`, conversationID)
	if err != nil {
		return nil, err
	}
	return &f, nil
}

// ResetFollowUp rewinds the schedule to step zero with the given next-fire time.
func (s *Store) ResetFollowUp(ctx context.Context, scheduleID string, nextFireAt time.Time) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE follow_up_schedules SET step_index = 0, next_fire_at = $1, completed = FALSE, updated_at = $2
		WHERE id = $3`, nextFireAt, now(), scheduleID)
	if err != nil {
		return fmt.Errorf("reset follow-up %s: %w", scheduleID, err)
	}
	return nil
}

func (s *Store) AppendNpsEntry(ctx context.Context, e *models.NpsEntry) error {
	e.ID = newID()
	e.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO nps_entries (id, contact_id, score, feedback, created_at) VALUES ($1, $2, $3, $4, $5)`,
		e.ID, e.ContactID, e.Score, e.Feedback, e.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert nps entry: %w", err)
	}
	return nil
}

func (s *Store) ListNotifiableUsers(ctx context.Context, tenantID string) ([]models.User, error) {
	var users []models.User
	err := s.db.SelectContext(ctx, &users, `
		SELECT * FROM users WHERE tenant_id = $1 AND notify_enabled = TRUE AND push_token <> ''`, tenantID)
	if err != nil {
		return nil, fmt.Errorf("list notifiable users: %w", err)
	}
	return users, nil
}

func (s *Store) ListUserQueueIDs(ctx context.Context, userID string) ([]string, error) {
	var ids []string
	err := s.db.SelectContext(ctx, &ids, `SELECT queue_id FROM user_queues WHERE user_id = $1`, userID)
	if err != nil {
		return nil, fmt.Errorf("list user queues: %w", err)
	}
	return ids, nil
}

func (s *Store) GetTenantSettings(ctx context.Context, tenantID string) (*models.TenantSettings, error) {
	var ts models.TenantSettings
	err := s.db.GetContext(ctx, &ts, `SELECT * FROM tenant_settings WHERE tenant_id = $1`, tenantID)
	if err != nil {
		return nil, err
	}
	return &ts, nil
}

// FindQueueByName is a backfill fallback for tenants that predate the explicit
// ai_queue_id setting.
func (s *Store) FindQueueByName(ctx context.Context, tenantID, name string) (*models.Queue, error) {
	var q models.Queue
	err := s.db.GetContext(ctx, &q, `SELECT * FROM queues WHERE tenant_id = $1 AND name = $2`, tenantID, name)
	if err != nil {
		return nil, err
	}
	return &q, nil
}

func (s *Store) GetFunnelFirstStage(ctx context.Context, funnelID string) (*models.FunnelStage, error) {
	var st models.FunnelStage
	err := s.db.GetContext(ctx, &st, `
		SELECT * FROM funnel_stages WHERE funnel_id = $1 ORDER BY position ASC LIMIT 1`, funnelID)
	if err != nil {
		return nil, err
	}
	return &st, nil
}

func (s *Store) CreateDeal(ctx context.Context, d *models.Deal) error {
	d.ID = newID()
	d.CreatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO deals (id, tenant_id, contact_id, funnel_id, stage_id, name, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		d.ID, d.TenantID, d.ContactID, d.FunnelID, d.StageID, d.Name, d.CreatedAt)
	if err != nil {
		return fmt.Errorf("insert deal: %w", err)
	}
	return nil
}
