package store

import (
	"context"
	"fmt"

	"zapdesk/internal/models"
)

func (s *Store) GetInstance(ctx context.Context, id string) (*models.Instance, error) {
	var inst models.Instance
	err := s.db.GetContext(ctx, &inst, `SELECT * FROM instances WHERE id = $1`, id)
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

func (s *Store) GetContactByNumber(ctx context.Context, tenantID, number string) (*models.Contact, error) {
	var c models.Contact
	err := s.db.GetContext(ctx, &c, `SELECT * FROM contacts WHERE tenant_id = $1 AND number = $2`, tenantID, number)
	if err != nil {
		return nil, err
	}
	return &c, nil
}

// CreateContact inserts a new contact. A unique violation means another
// delivery won the race; callers should re-fetch instead of failing.
func (s *Store) CreateContact(ctx context.Context, c *models.Contact) error {
	c.ID = newID()
	ts := now()
	c.CreatedAt = ts
	c.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO contacts (id, tenant_id, number, name, picture_url, edited, ai_enabled, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9)`,
		c.ID, c.TenantID, c.Number, c.Name, c.PictureURL, c.Edited, c.AIEnabled, c.CreatedAt, c.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert contact: %w", err)
	}
	return nil
}

func (s *Store) UpdateContactProfile(ctx context.Context, id, name, pictureURL string, edited bool) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE contacts SET name = $1, picture_url = $2, edited = $3, updated_at = $4 WHERE id = $5`,
		name, pictureURL, edited, now(), id)
	if err != nil {
		return fmt.Errorf("update contact %s: %w", id, err)
	}
	return nil
}

func (s *Store) GetGroupByChatID(ctx context.Context, chatID string) (*models.Group, error) {
	var g models.Group
	err := s.db.GetContext(ctx, &g, `SELECT * FROM chat_groups WHERE chat_id = $1`, chatID)
	if err != nil {
		return nil, err
	}
	return &g, nil
}

func (s *Store) CreateGroup(ctx context.Context, g *models.Group) error {
	g.ID = newID()
	ts := now()
	g.CreatedAt = ts
	g.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO chat_groups (id, chat_id, name, picture_url, instance_id, tenant_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		g.ID, g.ChatID, g.Name, g.PictureURL, g.InstanceID, g.TenantID, g.CreatedAt, g.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert group: %w", err)
	}
	return nil
}

func (s *Store) UpdateGroup(ctx context.Context, g *models.Group) error {
	g.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE chat_groups SET name = $1, picture_url = $2, instance_id = $3, tenant_id = $4, updated_at = $5 WHERE id = $6`,
		g.Name, g.PictureURL, g.InstanceID, g.TenantID, g.UpdatedAt, g.ID)
	if err != nil {
		return fmt.Errorf("update group %s: %w", g.ID, err)
	}
	return nil
}

func (s *Store) GetGroupMember(ctx context.Context, groupID, number string) (*models.GroupMember, error) {
	var m models.GroupMember
	err := s.db.GetContext(ctx, &m, `SELECT * FROM group_members WHERE group_id = $1 AND number = $2`, groupID, number)
	if err != nil {
		return nil, err
	}
	return &m, nil
}

func (s *Store) CreateGroupMember(ctx context.Context, m *models.GroupMember) error {
	m.ID = newID()
	ts := now()
	m.CreatedAt = ts
	m.UpdatedAt = ts
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO group_members (id, group_id, number, name, picture_url, lid, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8)`,
		m.ID, m.GroupID, m.Number, m.Name, m.PictureURL, m.Lid, m.CreatedAt, m.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert group member: %w", err)
	}
	return nil
}

func (s *Store) UpdateGroupMember(ctx context.Context, m *models.GroupMember) error {
	m.UpdatedAt = now()
	_, err := s.db.ExecContext(ctx, `
		UPDATE group_members SET name = $1, picture_url = $2, lid = $3, updated_at = $4 WHERE id = $5`,
		m.Name, m.PictureURL, m.Lid, m.UpdatedAt, m.ID)
	if err != nil {
		return fmt.Errorf("update group member %s: %w", m.ID, err)
	}
	return nil
}
