package services

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// ConversationService locates or creates the single active conversation for an
// identity within an instance, and owns the status state machine.
type ConversationService struct {
	store *store.Store
}

func NewConversationService(st *store.Store) *ConversationService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for ConversationService")
	}
	return &ConversationService{store: st}
}

// Resolve returns the active conversation for the identity, creating a pending
// one when none exists. The returned bool reports whether the conversation was
// created by this call. The denormalized unread counter and preview are left
// alone here; callers apply RecordActivity once the message row is actually
// stored, so a redelivered webhook never touches them.
func (s *ConversationService) Resolve(ctx context.Context, inst *models.Instance, ident *ResolvedIdentity) (*models.Conversation, bool, error) {
	var contactID, groupID *string
	if ident.Group != nil {
		groupID = &ident.Group.ID
	} else {
		contactID = &ident.Contact.ID
	}

	conv, err := s.store.FindActiveConversation(ctx, inst.ID, inst.TenantID, contactID, groupID)
	if err == nil {
		return conv, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("find active conversation: %w", err)
	}

	// An instance may have been deleted and recreated; its conversations keep
	// running with a NULL instance reference until a message re-attaches them.
	conv, err = s.store.FindOrphanConversation(ctx, inst.TenantID, contactID, groupID)
	if err == nil {
		if err := s.store.ReattachConversation(ctx, conv.ID, inst.ID); err != nil {
			return nil, false, err
		}
		instID := inst.ID
		conv.InstanceID = &instID
		log.Info().Str("conversationId", conv.ID).Str("instanceId", inst.ID).Msg("Re-attached orphan conversation")
		return conv, false, nil
	}
	if !store.IsNotFound(err) {
		return nil, false, fmt.Errorf("find orphan conversation: %w", err)
	}

	instID := inst.ID
	conv = &models.Conversation{
		ContactID:  contactID,
		GroupID:    groupID,
		InstanceID: &instID,
		TenantID:   inst.TenantID,
		Status:     models.ConversationPending,
		QueueID:    inst.DefaultQueueID,
	}
	if err := s.store.CreateConversation(ctx, conv); err != nil {
		if !store.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("create conversation: %w", err)
		}
		// Lost the insert race against a concurrent delivery: re-query and
		// fold this message into the winner.
		conv, err = s.store.FindActiveConversation(ctx, inst.ID, inst.TenantID, contactID, groupID)
		if err != nil {
			return nil, false, fmt.Errorf("refetch conversation after race: %w", err)
		}
		return conv, false, nil
	}
	return conv, true, nil
}

// RecordActivity increments the unread counter and refreshes the last-message
// preview. Runs after the message insert, not before: duplicate deliveries are
// answered without ever reaching this.
func (s *ConversationService) RecordActivity(ctx context.Context, conv *models.Conversation, preview string, at time.Time) error {
	if err := s.store.TouchConversation(ctx, conv.ID, preview, at); err != nil {
		return err
	}
	conv.Unread++
	conv.LastMessage = preview
	conv.LastMessageAt = &at
	return nil
}

var allowedTransitions = map[string]string{
	models.ConversationPending:  models.ConversationOpen,
	models.ConversationOpen:     models.ConversationResolved,
	models.ConversationResolved: models.ConversationPending,
}

// Transition moves a conversation along pending -> open -> resolved -> pending.
// Any other move is rejected.
func (s *ConversationService) Transition(ctx context.Context, conv *models.Conversation, to string) error {
	if allowedTransitions[conv.Status] != to {
		return fmt.Errorf("%w: conversation %s cannot move from %s to %s", ErrInvalidPayload, conv.ID, conv.Status, to)
	}
	if err := s.store.UpdateConversationStatus(ctx, conv.ID, to); err != nil {
		return err
	}
	conv.Status = to
	return nil
}
