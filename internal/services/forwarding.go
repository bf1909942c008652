package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/go-resty/resty/v2"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// ForwardingService relays qualifying inbound messages to the instance's
// AI automation endpoint. The gate is a strict conjunction; any condition
// failing means no forward, silently.
type ForwardingService struct {
	store      *store.Store
	httpClient *resty.Client
}

func NewForwardingService(st *store.Store) *ForwardingService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for ForwardingService")
	}
	return &ForwardingService{
		store:      st,
		httpClient: resty.New().SetTimeout(10 * time.Second),
	}
}

// MaybeForward evaluates the gate for one persisted inbound message and, when
// every condition holds, posts the original payload augmented with internal
// identifiers to the instance webhook. Returns whether a forward happened.
// Only individual inbound messages qualify; callers filter direction and
// group-ness first.
func (s *ForwardingService) MaybeForward(ctx context.Context, inst *models.Instance, conv *models.Conversation, contact *models.Contact, raw json.RawMessage) (bool, error) {
	if inst.WebhookURL == "" || contact == nil || conv.ContactID == nil {
		return false, nil
	}
	if conv.Status != models.ConversationPending {
		return false, nil
	}
	// Contact opts out only when explicitly disabled.
	if contact.AIEnabled != nil && !*contact.AIEnabled {
		return false, nil
	}
	if inst.AIEnabled != nil && !*inst.AIEnabled {
		return false, nil
	}

	settings, err := s.store.GetTenantSettings(ctx, inst.TenantID)
	if err != nil {
		if store.IsNotFound(err) {
			return false, nil
		}
		return false, fmt.Errorf("load tenant settings: %w", err)
	}
	if !settings.AIEnabled {
		return false, nil
	}

	aiQueueID, err := s.aiQueueID(ctx, inst.TenantID, settings)
	if err != nil {
		return false, err
	}
	if aiQueueID == "" || conv.QueueID == nil || *conv.QueueID != aiQueueID {
		return false, nil
	}

	payload, err := augmentPayload(raw, inst, conv, contact, settings)
	if err != nil {
		return false, err
	}

	resp, err := s.httpClient.R().
		SetContext(ctx).
		SetHeader("Content-Type", "application/json").
		SetBody(payload).
		Post(inst.WebhookURL)
	if err != nil {
		return false, fmt.Errorf("forward to %s: %w", inst.WebhookURL, err)
	}
	if resp.IsError() {
		return false, fmt.Errorf("forward to %s: status %s", inst.WebhookURL, resp.Status())
	}

	log.Info().
		Str("conversationId", conv.ID).
		Str("instanceId", inst.ID).
		Str("webhookUrl", inst.WebhookURL).
		Msg("Message forwarded to automation endpoint")
	return true, nil
}

// aiQueueID resolves the tenant's AI queue, preferring the explicit setting
// and falling back to a lookup by display name for tenants that predate it.
func (s *ForwardingService) aiQueueID(ctx context.Context, tenantID string, settings *models.TenantSettings) (string, error) {
	if settings.AIQueueID != nil && *settings.AIQueueID != "" {
		return *settings.AIQueueID, nil
	}
	q, err := s.store.FindQueueByName(ctx, tenantID, "AI")
	if err != nil {
		if store.IsNotFound(err) {
			return "", nil
		}
		return "", fmt.Errorf("find AI queue: %w", err)
	}
	return q.ID, nil
}

func augmentPayload(raw json.RawMessage, inst *models.Instance, conv *models.Conversation, contact *models.Contact, settings *models.TenantSettings) (map[string]interface{}, error) {
	var payload map[string]interface{}
	if err := json.Unmarshal(raw, &payload); err != nil {
		return nil, fmt.Errorf("decode payload for forwarding: %w", err)
	}

	funnelID := ""
	if settings.AIFunnelID != nil {
		funnelID = *settings.AIFunnelID
	} else if inst.FunnelID != nil {
		funnelID = *inst.FunnelID
	}

	groupID := ""
	if conv.GroupID != nil {
		groupID = *conv.GroupID
	}

	payload["internal"] = map[string]string{
		"tenantId":       inst.TenantID,
		"contactId":      contact.ID,
		"conversationId": conv.ID,
		"groupId":        groupID,
		"instanceId":     inst.ID,
		"funnelId":       funnelID,
	}
	return payload, nil
}
