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

func resolveTestContact(t *testing.T, st *store.Store) *models.Contact {
	t.Helper()
	return seedContact(t, st, &models.Contact{TenantID: "tenant-1", Number: "5511999990001", Name: "Ana"})
}

func TestConversationResolveCreatesPending(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	queue := seedQueue(t, st, "tenant-1", "Atendimento")
	inst := seedInstance(t, st, "tenant-1", func(i *models.Instance) {
		i.DefaultQueueID = &queue.ID
	})
	contact := resolveTestContact(t, st)

	conv, created, err := svc.Resolve(context.Background(), inst, &ResolvedIdentity{Contact: contact})
	require.NoError(t, err)

	assert.True(t, created)
	assert.Equal(t, models.ConversationPending, conv.Status)
	assert.Zero(t, conv.Unread)
	require.NotNil(t, conv.QueueID)
	assert.Equal(t, queue.ID, *conv.QueueID)

	require.NoError(t, svc.RecordActivity(context.Background(), conv, "oi", time.Now().UTC()))
	assert.Equal(t, 1, conv.Unread)
	assert.Equal(t, "oi", conv.LastMessage)

	stored, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, 1, stored.Unread)
	assert.Equal(t, "oi", stored.LastMessage)
}

func TestConversationResolveReusesActive(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := resolveTestContact(t, st)
	ident := &ResolvedIdentity{Contact: contact}

	first, created, err := svc.Resolve(context.Background(), inst, ident)
	require.NoError(t, err)
	require.True(t, created)
	require.NoError(t, svc.RecordActivity(context.Background(), first, "oi", time.Now().UTC()))

	second, created, err := svc.Resolve(context.Background(), inst, ident)
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, first.ID, second.ID)
	require.NoError(t, svc.RecordActivity(context.Background(), second, "tudo bem?", time.Now().UTC()))

	stored, err := st.GetConversation(context.Background(), first.ID)
	require.NoError(t, err)
	assert.Equal(t, 2, stored.Unread)
	assert.Equal(t, "tudo bem?", stored.LastMessage)
}

func TestConversationResolveAfterResolvedCreatesNew(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := resolveTestContact(t, st)
	ident := &ResolvedIdentity{Contact: contact}

	first, _, err := svc.Resolve(context.Background(), inst, ident)
	require.NoError(t, err)
	require.NoError(t, st.UpdateConversationStatus(context.Background(), first.ID, models.ConversationResolved))

	second, created, err := svc.Resolve(context.Background(), inst, ident)
	require.NoError(t, err)
	assert.True(t, created)
	assert.NotEqual(t, first.ID, second.ID)
}

func TestConversationResolveReattachesOrphan(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := resolveTestContact(t, st)

	orphan := &models.Conversation{
		ContactID: &contact.ID,
		TenantID:  "tenant-1",
		Status:    models.ConversationOpen,
	}
	require.NoError(t, st.CreateConversation(context.Background(), orphan))

	conv, created, err := svc.Resolve(context.Background(), inst, &ResolvedIdentity{Contact: contact})
	require.NoError(t, err)
	assert.False(t, created)
	assert.Equal(t, orphan.ID, conv.ID)

	stored, err := st.GetConversation(context.Background(), orphan.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.InstanceID)
	assert.Equal(t, inst.ID, *stored.InstanceID)
}

func TestConversationResolveGroupScope(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	inst := seedInstance(t, st, "tenant-1", nil)

	group := &models.Group{ChatID: "123@g.us", Name: "Projeto X", TenantID: "tenant-1"}
	require.NoError(t, st.CreateGroup(context.Background(), group))

	conv, created, err := svc.Resolve(context.Background(), inst, &ResolvedIdentity{Group: group})
	require.NoError(t, err)
	assert.True(t, created)
	require.NotNil(t, conv.GroupID)
	assert.Equal(t, group.ID, *conv.GroupID)
	assert.Nil(t, conv.ContactID)
}

func TestConversationTransitions(t *testing.T) {
	st := newTestStore(t)
	svc := NewConversationService(st)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := resolveTestContact(t, st)

	conv, _, err := svc.Resolve(context.Background(), inst, &ResolvedIdentity{Contact: contact})
	require.NoError(t, err)

	// pending -> resolved skips a state and is rejected.
	err = svc.Transition(context.Background(), conv, models.ConversationResolved)
	assert.ErrorIs(t, err, ErrInvalidPayload)
	assert.Equal(t, models.ConversationPending, conv.Status)

	require.NoError(t, svc.Transition(context.Background(), conv, models.ConversationOpen))
	require.NoError(t, svc.Transition(context.Background(), conv, models.ConversationResolved))
	require.NoError(t, svc.Transition(context.Background(), conv, models.ConversationPending))

	stored, err := st.GetConversation(context.Background(), conv.ID)
	require.NoError(t, err)
	assert.Equal(t, models.ConversationPending, stored.Status)
}
