package services

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/db"
	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

func newTestStore(t *testing.T) *store.Store {
	t.Helper()
	conn, err := db.Init("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	return store.New(conn)
}

func seedInstance(t *testing.T, st *store.Store, tenantID string, mutate func(*models.Instance)) *models.Instance {
	t.Helper()
	inst := &models.Instance{
		ID:       uuid.NewString(),
		Name:     "support-line",
		Channel:  "whatsapp",
		TenantID: tenantID,
		APIToken: "token-" + uuid.NewString(),
	}
	if mutate != nil {
		mutate(inst)
	}
	now := time.Now().UTC()
	_, err := st.DB().Exec(`
		INSERT INTO instances (id, name, channel, tenant_id, api_token, default_queue_id, ai_enabled, webhook_url, funnel_id, created_at, updated_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11)`,
		inst.ID, inst.Name, inst.Channel, inst.TenantID, inst.APIToken, inst.DefaultQueueID,
		inst.AIEnabled, inst.WebhookURL, inst.FunnelID, now, now)
	require.NoError(t, err)
	return inst
}

func seedQueue(t *testing.T, st *store.Store, tenantID, name string) *models.Queue {
	t.Helper()
	q := &models.Queue{ID: uuid.NewString(), TenantID: tenantID, Name: name}
	_, err := st.DB().Exec(`INSERT INTO queues (id, tenant_id, name) VALUES ($1, $2, $3)`, q.ID, q.TenantID, q.Name)
	require.NoError(t, err)
	return q
}

func seedTenantSettings(t *testing.T, st *store.Store, settings models.TenantSettings) {
	t.Helper()
	_, err := st.DB().Exec(`
		INSERT INTO tenant_settings (tenant_id, ai_enabled, ai_queue_id, ai_funnel_id) VALUES ($1, $2, $3, $4)`,
		settings.TenantID, settings.AIEnabled, settings.AIQueueID, settings.AIFunnelID)
	require.NoError(t, err)
}

func seedContact(t *testing.T, st *store.Store, c *models.Contact) *models.Contact {
	t.Helper()
	require.NoError(t, st.CreateContact(context.Background(), c))
	return c
}

func seedUser(t *testing.T, st *store.Store, u models.User, queueIDs ...string) models.User {
	t.Helper()
	if u.ID == "" {
		u.ID = uuid.NewString()
	}
	_, err := st.DB().Exec(`
		INSERT INTO users (id, tenant_id, name, role, notify_enabled, push_token) VALUES ($1, $2, $3, $4, $5, $6)`,
		u.ID, u.TenantID, u.Name, u.Role, u.NotifyEnabled, u.PushToken)
	require.NoError(t, err)
	for _, qid := range queueIDs {
		_, err := st.DB().Exec(`INSERT INTO user_queues (user_id, queue_id) VALUES ($1, $2)`, u.ID, qid)
		require.NoError(t, err)
	}
	return u
}

func boolPtr(b bool) *bool { return &b }
