package services

import (
	"context"
	"fmt"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/adapters/push"
	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// PushSender delivers one notification to the push gateway.
type PushSender interface {
	Send(ctx context.Context, n push.Notification) error
}

// NotifyService fans a new-message notification out to eligible team members.
type NotifyService struct {
	store  *store.Store
	sender PushSender // optional
}

func NewNotifyService(st *store.Store, sender PushSender) *NotifyService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for NotifyService")
	}
	return &NotifyService{store: st, sender: sender}
}

// FanOut notifies every eligible user about a new inbound message. Per-user
// delivery failures are logged and do not stop the fan-out.
func (s *NotifyService) FanOut(ctx context.Context, conv *models.Conversation, senderName, preview string) error {
	if s.sender == nil {
		return nil
	}

	users, err := s.store.ListNotifiableUsers(ctx, conv.TenantID)
	if err != nil {
		return err
	}

	sent := 0
	for _, u := range users {
		ok, err := s.eligible(ctx, u, conv)
		if err != nil {
			log.Warn().Err(err).Str("userId", u.ID).Msg("Eligibility check failed, skipping user")
			continue
		}
		if !ok {
			continue
		}
		n := push.Notification{
			To:    u.PushToken,
			Title: senderName,
			Body:  preview,
			URL:   fmt.Sprintf("/conversations/%s", conv.ID),
		}
		if err := s.sender.Send(ctx, n); err != nil {
			log.Warn().Err(err).Str("userId", u.ID).Msg("Push delivery failed")
			continue
		}
		sent++
	}
	log.Debug().Str("conversationId", conv.ID).Int("sent", sent).Msg("Notification fan-out finished")
	return nil
}

// eligible applies the routing rules: admins and supervisors always receive;
// agents receive when assigned to the conversation, members of its queue, or
// unrestricted while the conversation is unassigned.
func (s *NotifyService) eligible(ctx context.Context, u models.User, conv *models.Conversation) (bool, error) {
	switch u.Role {
	case "admin", "supervisor":
		return true, nil
	}

	if conv.AgentID != nil && *conv.AgentID == u.ID {
		return true, nil
	}

	queueIDs, err := s.store.ListUserQueueIDs(ctx, u.ID)
	if err != nil {
		return false, err
	}
	if conv.QueueID != nil {
		for _, id := range queueIDs {
			if id == *conv.QueueID {
				return true, nil
			}
		}
	}
	// An agent with no queue restrictions sees unassigned conversations.
	if len(queueIDs) == 0 && conv.AgentID == nil {
		return true, nil
	}
	return false, nil
}
