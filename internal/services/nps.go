package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// Completer produces a completion for a system/user prompt pair.
type Completer interface {
	Complete(ctx context.Context, system, user string) (string, int, error)
}

// NpsService detects survey responses and appends them to the contact's
// history with an AI-condensed feedback summary.
type NpsService struct {
	store *store.Store
	ai    Completer // optional
}

func NewNpsService(st *store.Store, ai Completer) *NpsService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for NpsService")
	}
	return &NpsService{store: st, ai: ai}
}

var surveyVocabulary = map[string]bool{
	"excellent": true,
	"good":      true,
	"average":   true,
	"poor":      true,
	"terrible":  true,
}

// DetectSurveyResponse recognizes a survey answer either by the structured
// button id prefix or by the plain-text rating vocabulary.
func DetectSurveyResponse(buttonID, body string) (string, bool) {
	if strings.HasPrefix(buttonID, "nps_") {
		return strings.TrimPrefix(buttonID, "nps_"), true
	}
	word := strings.ToLower(strings.TrimSpace(body))
	if surveyVocabulary[word] {
		return word, true
	}
	return "", false
}

const npsSummaryPrompt = "You summarize customer support conversations. " +
	"Given the recent message transcript, write one short sentence of feedback context for the customer's survey rating. " +
	"Answer in the language of the transcript."

// Capture appends the survey entry. The AI summary is best-effort; a template
// fallback keeps the entry useful when no model is configured or the call
// fails.
func (s *NpsService) Capture(ctx context.Context, conversationID, contactID, score string) error {
	msgs, err := s.store.ListRecentMessages(ctx, conversationID, 10)
	if err != nil {
		return err
	}

	feedback := s.summarize(ctx, score, msgs)
	entry := &models.NpsEntry{
		ContactID: contactID,
		Score:     score,
		Feedback:  feedback,
	}
	if err := s.store.AppendNpsEntry(ctx, entry); err != nil {
		return err
	}
	log.Info().Str("contactId", contactID).Str("score", score).Msg("Survey response captured")
	return nil
}

func (s *NpsService) summarize(ctx context.Context, score string, msgs []models.Message) string {
	fallback := fmt.Sprintf("Survey response %q after %d recent messages.", score, len(msgs))
	if s.ai == nil {
		return fallback
	}

	var transcript strings.Builder
	// msgs are newest first; render oldest first for the model.
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Direction, m.Body)
	}
	fmt.Fprintf(&transcript, "Rating given: %s\n", score)

	summary, tokens, err := s.ai.Complete(ctx, npsSummaryPrompt, transcript.String())
	if err != nil || strings.TrimSpace(summary) == "" {
		log.Warn().Err(err).Msg("Survey feedback summary failed, using fallback")
		return fallback
	}
	log.Debug().Int("tokens", tokens).Msg("Survey feedback summarized")
	return strings.TrimSpace(summary)
}
