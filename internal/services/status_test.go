package services

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

func statusFixture(t *testing.T) (*StatusService, *store.Store, *models.Conversation) {
	t.Helper()
	st := newTestStore(t)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := seedContact(t, st, &models.Contact{TenantID: "tenant-1", Number: "5511999990001", Name: "Ana"})

	conv := &models.Conversation{ContactID: &contact.ID, InstanceID: &inst.ID, TenantID: "tenant-1", Status: models.ConversationOpen}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	return NewStatusService(st), st, conv
}

func insertOutbound(t *testing.T, st *store.Store, conversationID, sourceID string) {
	t.Helper()
	require.NoError(t, st.InsertMessage(context.Background(), &models.Message{
		ConversationID: conversationID,
		Body:           "resposta",
		Direction:      models.DirectionOutbound,
		Type:           models.TypeText,
		SourceID:       sourceID,
		CreatedAt:      time.Now().UTC(),
	}))
}

func messageStatus(t *testing.T, st *store.Store, conversationID, sourceID string) string {
	t.Helper()
	m, err := st.GetMessageBySource(context.Background(), conversationID, sourceID)
	require.NoError(t, err)
	return m.Status
}

func TestApplyReceiptsCounts(t *testing.T) {
	svc, st, conv := statusFixture(t)
	insertOutbound(t, st, conv.ID, "WAMID1")
	insertOutbound(t, st, conv.ID, "WAMID2")

	updated, notFound, err := svc.ApplyReceipts(context.Background(), []string{"WAMID1", "WAMID2", "UNKNOWN"}, "Read")
	require.NoError(t, err)
	assert.Equal(t, 2, updated)
	assert.Equal(t, 1, notFound)
	assert.Equal(t, models.StatusRead, messageStatus(t, st, conv.ID, "WAMID1"))
}

func TestApplyReceiptsIdempotent(t *testing.T) {
	svc, st, conv := statusFixture(t)
	insertOutbound(t, st, conv.ID, "WAMID1")

	updated, notFound, err := svc.ApplyReceipts(context.Background(), []string{"WAMID1"}, "Read")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, notFound)

	// Second delivery of the same receipt reports the same counts.
	updated, notFound, err = svc.ApplyReceipts(context.Background(), []string{"WAMID1"}, "Read")
	require.NoError(t, err)
	assert.Equal(t, 1, updated)
	assert.Equal(t, 0, notFound)
	assert.Equal(t, models.StatusRead, messageStatus(t, st, conv.ID, "WAMID1"))
}

func TestApplyReceiptsNeverDowngrades(t *testing.T) {
	svc, st, conv := statusFixture(t)
	insertOutbound(t, st, conv.ID, "WAMID1")

	_, _, err := svc.ApplyReceipts(context.Background(), []string{"WAMID1"}, "Read")
	require.NoError(t, err)

	// A late Delivered receipt after Read must not move the status back.
	_, _, err = svc.ApplyReceipts(context.Background(), []string{"WAMID1"}, "Delivered")
	require.NoError(t, err)
	assert.Equal(t, models.StatusRead, messageStatus(t, st, conv.ID, "WAMID1"))
}

func TestApplyReceiptsUnknownState(t *testing.T) {
	svc, _, _ := statusFixture(t)
	_, _, err := svc.ApplyReceipts(context.Background(), []string{"WAMID1"}, "Played")
	assert.ErrorIs(t, err, ErrInvalidPayload)
}

func TestApplyAckLevels(t *testing.T) {
	svc, st, conv := statusFixture(t)
	insertOutbound(t, st, conv.ID, "WAMID1")

	found, err := svc.ApplyAck(context.Background(), "WAMID1", 2)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.StatusDelivered, messageStatus(t, st, conv.ID, "WAMID1"))

	// Levels beyond read collapse onto read.
	found, err = svc.ApplyAck(context.Background(), "WAMID1", 4)
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, models.StatusRead, messageStatus(t, st, conv.ID, "WAMID1"))

	found, err = svc.ApplyAck(context.Background(), "MISSING", 2)
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.ApplyAck(context.Background(), "WAMID1", 0)
	assert.ErrorIs(t, err, ErrInvalidPayload)
}
