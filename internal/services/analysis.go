package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/store"
)

const analysisPrompt = "You analyze customer support conversations. " +
	"Given the transcript, report in two short sentences: the customer's current intent and sentiment. " +
	"Answer in the language of the transcript."

// ConversationAnalyzer runs a periodic AI pass over a conversation's recent
// messages. Results are logged as structured events for downstream tooling.
type ConversationAnalyzer struct {
	store *store.Store
	ai    Completer
}

func NewConversationAnalyzer(st *store.Store, ai Completer) *ConversationAnalyzer {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for ConversationAnalyzer")
	}
	return &ConversationAnalyzer{store: st, ai: ai}
}

// Analyze summarizes the last messages of the conversation.
func (a *ConversationAnalyzer) Analyze(ctx context.Context, conversationID string) error {
	if a == nil || a.ai == nil {
		return nil
	}

	msgs, err := a.store.ListRecentMessages(ctx, conversationID, 20)
	if err != nil {
		return err
	}
	if len(msgs) == 0 {
		return nil
	}

	var transcript strings.Builder
	for i := len(msgs) - 1; i >= 0; i-- {
		m := msgs[i]
		fmt.Fprintf(&transcript, "[%s] %s\n", m.Direction, m.Body)
	}

	result, tokens, err := a.ai.Complete(ctx, analysisPrompt, transcript.String())
	if err != nil {
		return fmt.Errorf("conversation analysis: %w", err)
	}

	log.Info().
		Str("conversationId", conversationID).
		Int("messages", len(msgs)).
		Int("tokens", tokens).
		Str("analysis", strings.TrimSpace(result)).
		Msg("Conversation analyzed")
	return nil
}
