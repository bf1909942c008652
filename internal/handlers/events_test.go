package handlers

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/justinas/alice"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/db"
	"zapdesk/internal/models"
	"zapdesk/internal/services"
	"zapdesk/internal/store"
)

type webhookFixture struct {
	st      *store.Store
	inst    *models.Instance
	handler http.Handler
	status  http.Handler
}

func newWebhookFixture(t *testing.T) *webhookFixture {
	t.Helper()
	conn, err := db.Init("sqlite", filepath.Join(t.TempDir(), "test.db"))
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })
	st := store.New(conn)

	inst := &models.Instance{ID: uuid.NewString(), TenantID: "tenant-1", Name: "support-line", Channel: "whatsapp"}
	now := time.Now().UTC()
	_, err = st.DB().Exec(`
		INSERT INTO instances (id, name, channel, tenant_id, api_token, webhook_url, created_at, updated_at)
		VALUES ($1, $2, $3, $4, '', '', $5, $6)`,
		inst.ID, inst.Name, inst.Channel, inst.TenantID, now, now)
	require.NoError(t, err)

	identity := services.NewIdentityService(st, nil, nil)
	conversations := services.NewConversationService(st)
	messages := services.NewMessageService(st, nil)
	events := NewEventsHandler(st, identity, conversations, messages, nil, nil)
	status := NewStatusHandler(services.NewStatusService(st))

	mw := NewMiddleware("")
	return &webhookFixture{
		st:      st,
		inst:    inst,
		handler: alice.New(mw.CaptureBody).ThenFunc(events.Handle),
		status:  alice.New(mw.CaptureBody).ThenFunc(status.Handle),
	}
}

func (f *webhookFixture) post(t *testing.T, h http.Handler, body string) (*httptest.ResponseRecorder, map[string]interface{}) {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(body))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)

	var decoded map[string]interface{}
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &decoded))
	return rec, decoded
}

func messageEvent(instanceID, messageID, from, body string) string {
	return fmt.Sprintf(`{
		"event": "message",
		"instanceId": %q,
		"message": {"id": %q, "from": %q, "type": "chat", "body": %q, "pushName": "Ana", "timestamp": 1756400000}
	}`, instanceID, messageID, from, body)
}

func TestWebhookPersistsMessage(t *testing.T) {
	f := newWebhookFixture(t)

	rec, resp := f.post(t, f.handler, messageEvent(f.inst.ID, "WAMID1", "5511999990001", "oi"))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["success"])

	contact, err := f.st.GetContactByNumber(context.Background(), "tenant-1", "5511999990001")
	require.NoError(t, err)
	assert.Equal(t, "Ana", contact.Name)

	conv, err := f.st.FindActiveConversation(context.Background(), f.inst.ID, "tenant-1", &contact.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationPending, conv.Status)
	assert.Equal(t, 1, conv.Unread)
	assert.Equal(t, "oi", conv.LastMessage)

	m, err := f.st.GetMessageBySource(context.Background(), conv.ID, "WAMID1")
	require.NoError(t, err)
	assert.Equal(t, models.DirectionInbound, m.Direction)
}

func TestWebhookDuplicateDelivery(t *testing.T) {
	f := newWebhookFixture(t)
	payload := messageEvent(f.inst.ID, "WAMID1", "5511999990001", "oi")

	rec, _ := f.post(t, f.handler, payload)
	require.Equal(t, http.StatusOK, rec.Code)

	rec, resp := f.post(t, f.handler, payload)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["duplicate"])

	var n int
	require.NoError(t, f.st.DB().Get(&n, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 1, n)

	// The redelivery is acknowledged without touching the denormalized
	// conversation state.
	contact, err := f.st.GetContactByNumber(context.Background(), "tenant-1", "5511999990001")
	require.NoError(t, err)
	conv, err := f.st.FindActiveConversation(context.Background(), f.inst.ID, "tenant-1", &contact.ID, nil)
	require.NoError(t, err)
	assert.Equal(t, 1, conv.Unread)
	assert.Equal(t, "oi", conv.LastMessage)
}

func TestWebhookSecondMessageReusesConversation(t *testing.T) {
	f := newWebhookFixture(t)

	f.post(t, f.handler, messageEvent(f.inst.ID, "WAMID1", "5511999990001", "oi"))
	f.post(t, f.handler, messageEvent(f.inst.ID, "WAMID2", "5511999990001", "tudo bem?"))

	var n int
	require.NoError(t, f.st.DB().Get(&n, `SELECT COUNT(*) FROM conversations`))
	assert.Equal(t, 1, n)
	require.NoError(t, f.st.DB().Get(&n, `SELECT COUNT(*) FROM messages`))
	assert.Equal(t, 2, n)
}

func TestWebhookUnknownInstance(t *testing.T) {
	f := newWebhookFixture(t)
	rec, _ := f.post(t, f.handler, messageEvent(uuid.NewString(), "WAMID1", "5511999990001", "oi"))
	assert.Equal(t, http.StatusNotFound, rec.Code)
}

func TestWebhookRejectsBadPayloads(t *testing.T) {
	f := newWebhookFixture(t)

	rec, _ := f.post(t, f.handler, `{not json`)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec, _ = f.post(t, f.handler, `{"event":"message","message":{"id":"W1","from":"551199"}}`)
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing instanceId")

	rec, _ = f.post(t, f.handler, fmt.Sprintf(`{"event":"message","instanceId":%q,"message":{"id":"W1"}}`, f.inst.ID))
	assert.Equal(t, http.StatusBadRequest, rec.Code, "missing sender")
}

func TestWebhookIgnoresNonMessageEvents(t *testing.T) {
	f := newWebhookFixture(t)
	rec, resp := f.post(t, f.handler, fmt.Sprintf(`{"event":"presence","instanceId":%q}`, f.inst.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["ignored"])
}

func TestWebhookGroupMessage(t *testing.T) {
	f := newWebhookFixture(t)

	payload := fmt.Sprintf(`{
		"event": "message",
		"instanceId": %q,
		"message": {"id": "WAMID1", "chatId": "123@g.us", "from": "5511999990002", "isGroup": true,
			"type": "chat", "body": "oi grupo", "groupName": "Projeto X", "senderName": "Bruno"}
	}`, f.inst.ID)
	rec, _ := f.post(t, f.handler, payload)
	require.Equal(t, http.StatusOK, rec.Code)

	group, err := f.st.GetGroupByChatID(context.Background(), "123@g.us")
	require.NoError(t, err)
	assert.Equal(t, "Projeto X", group.Name)

	conv, err := f.st.FindActiveConversation(context.Background(), f.inst.ID, "tenant-1", nil, &group.ID)
	require.NoError(t, err)

	m, err := f.st.GetMessageBySource(context.Background(), conv.ID, "WAMID1")
	require.NoError(t, err)
	assert.Equal(t, "Bruno", m.SenderName)
	assert.Equal(t, "5511999990002", m.SenderJID)
}

func TestStatusWebhookReceipts(t *testing.T) {
	f := newWebhookFixture(t)
	f.post(t, f.handler, messageEvent(f.inst.ID, "WAMID1", "5511999990001", "oi"))

	rec, resp := f.post(t, f.status, fmt.Sprintf(`{
		"event": "receipt",
		"instanceId": %q,
		"receipt": {"messageIds": ["WAMID1", "UNKNOWN"], "state": "Read"}
	}`, f.inst.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, float64(1), resp["updated"])
	assert.Equal(t, float64(1), resp["notFound"])
}

func TestStatusWebhookAck(t *testing.T) {
	f := newWebhookFixture(t)
	f.post(t, f.handler, messageEvent(f.inst.ID, "WAMID1", "5511999990001", "oi"))

	rec, resp := f.post(t, f.status, fmt.Sprintf(`{
		"event": "ack",
		"instanceId": %q,
		"ack": {"messageId": "WAMID1", "level": 2}
	}`, f.inst.ID))
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["found"])
}

func TestStatusWebhookIgnoresOtherEvents(t *testing.T) {
	f := newWebhookFixture(t)
	rec, resp := f.post(t, f.status, `{"event":"presence","instanceId":"x"}`)
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, true, resp["ignored"])
}
