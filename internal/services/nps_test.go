package services

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"zapdesk/internal/models"
)

func TestDetectSurveyResponse(t *testing.T) {
	score, ok := DetectSurveyResponse("nps_excellent", "")
	assert.True(t, ok)
	assert.Equal(t, "excellent", score)

	score, ok = DetectSurveyResponse("", "  Good ")
	assert.True(t, ok)
	assert.Equal(t, "good", score)

	_, ok = DetectSurveyResponse("", "obrigado pelo atendimento")
	assert.False(t, ok)

	_, ok = DetectSurveyResponse("btn_help", "")
	assert.False(t, ok)
}

type fakeCompleter struct {
	text   string
	tokens int
	err    error
	calls  int
}

func (f *fakeCompleter) Complete(ctx context.Context, system, user string) (string, int, error) {
	f.calls++
	return f.text, f.tokens, f.err
}

func npsFixture(t *testing.T, ai Completer) (*NpsService, *models.Conversation, *models.Contact) {
	t.Helper()
	st := newTestStore(t)
	inst := seedInstance(t, st, "tenant-1", nil)
	contact := seedContact(t, st, &models.Contact{TenantID: "tenant-1", Number: "5511999990001", Name: "Ana"})

	conv := &models.Conversation{ContactID: &contact.ID, InstanceID: &inst.ID, TenantID: "tenant-1", Status: models.ConversationOpen}
	require.NoError(t, st.CreateConversation(context.Background(), conv))
	for i, body := range []string{"oi", "preciso de ajuda", "resolvido, obrigado"} {
		require.NoError(t, st.InsertMessage(context.Background(), &models.Message{
			ConversationID: conv.ID,
			Body:           body,
			Direction:      models.DirectionInbound,
			Type:           models.TypeText,
			CreatedAt:      time.Now().UTC().Add(time.Duration(i) * time.Second),
		}))
	}
	return NewNpsService(st, ai), conv, contact
}

func TestNpsCaptureWithSummary(t *testing.T) {
	ai := &fakeCompleter{text: "Cliente satisfeito com a resolução rápida.", tokens: 42}
	svc, conv, contact := npsFixture(t, ai)

	require.NoError(t, svc.Capture(context.Background(), conv.ID, contact.ID, "excellent"))
	assert.Equal(t, 1, ai.calls)

	var entries []models.NpsEntry
	require.NoError(t, svc.store.DB().Select(&entries, `SELECT * FROM nps_entries WHERE contact_id = $1`, contact.ID))
	require.Len(t, entries, 1)
	assert.Equal(t, "excellent", entries[0].Score)
	assert.Equal(t, "Cliente satisfeito com a resolução rápida.", entries[0].Feedback)
}

func TestNpsCaptureFallbackWhenAIFails(t *testing.T) {
	ai := &fakeCompleter{err: errors.New("model unavailable")}
	svc, conv, contact := npsFixture(t, ai)

	require.NoError(t, svc.Capture(context.Background(), conv.ID, contact.ID, "poor"))

	var entries []models.NpsEntry
	require.NoError(t, svc.store.DB().Select(&entries, `SELECT * FROM nps_entries WHERE contact_id = $1`, contact.ID))
	require.Len(t, entries, 1)
	assert.Equal(t, `Survey response "poor" after 3 recent messages.`, entries[0].Feedback)
}

func TestNpsCaptureWithoutAI(t *testing.T) {
	svc, conv, contact := npsFixture(t, nil)

	require.NoError(t, svc.Capture(context.Background(), conv.ID, contact.ID, "average"))

	var entries []models.NpsEntry
	require.NoError(t, svc.store.DB().Select(&entries, `SELECT * FROM nps_entries WHERE contact_id = $1`, contact.ID))
	require.Len(t, entries, 1)
	assert.Contains(t, entries[0].Feedback, `"average"`)
}
