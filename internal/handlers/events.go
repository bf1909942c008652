package handlers

import (
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/patrickmn/go-cache"
	"github.com/rs/zerolog/log"

	"zapdesk/internal/adapters/channel"
	"zapdesk/internal/models"
	"zapdesk/internal/services"
	"zapdesk/internal/store"
)

// EventsHandler is the message webhook endpoint. It runs the critical path
// synchronously (identity, conversation, persistence) and hands everything
// else to the side-effect dispatcher before responding.
type EventsHandler struct {
	store         *store.Store
	identity      *services.IdentityService
	conversations *services.ConversationService
	messages      *services.MessageService
	sideEffects   *services.SideEffects
	forwarding    *services.ForwardingService

	instances *cache.Cache
}

func NewEventsHandler(st *store.Store, identity *services.IdentityService, conversations *services.ConversationService, messages *services.MessageService, sideEffects *services.SideEffects, forwarding *services.ForwardingService) *EventsHandler {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for EventsHandler")
	}
	return &EventsHandler{
		store:         st,
		identity:      identity,
		conversations: conversations,
		messages:      messages,
		sideEffects:   sideEffects,
		forwarding:    forwarding,
		instances:     cache.New(2*time.Minute, 5*time.Minute),
	}
}

func (h *EventsHandler) Handle(w http.ResponseWriter, r *http.Request) {
	raw := RawBody(r)

	var payload channel.EventPayload
	if err := json.Unmarshal(raw, &payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON payload")
		return
	}
	if payload.InstanceID == "" {
		respondError(w, http.StatusBadRequest, "missing instanceId")
		return
	}
	if payload.Message == nil {
		// The provider multiplexes event families; non-message events on this
		// endpoint are acknowledged and dropped.
		log.Debug().Str("event", payload.Event).Msg("Ignoring non-message event")
		respondSuccess(w, map[string]interface{}{"ignored": true})
		return
	}

	inst, err := h.getInstance(r, payload.InstanceID)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	ctx := r.Context()
	msg := payload.Message

	ident, err := h.identity.Resolve(ctx, inst, msg)
	if err != nil {
		respondServiceError(w, err)
		return
	}

	n := services.Normalize(msg)
	preview := services.Preview(n)

	at := time.Now().UTC()
	if msg.Timestamp > 0 {
		at = time.Unix(msg.Timestamp, 0).UTC()
	}

	conv, created, err := h.conversations.Resolve(ctx, inst, ident)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if created {
		log.Info().Str("conversationId", conv.ID).Str("instanceId", inst.ID).Msg("Conversation created")
	}

	m, duplicate, err := h.messages.Persist(ctx, inst, conv, ident, msg, at)
	if err != nil {
		respondServiceError(w, err)
		return
	}
	if duplicate {
		// Already processed: acknowledge without bumping the unread counter
		// or re-running side effects.
		respondSuccess(w, map[string]interface{}{"duplicate": true})
		return
	}

	if err := h.conversations.RecordActivity(ctx, conv, preview, at); err != nil {
		respondServiceError(w, err)
		return
	}

	if h.sideEffects != nil {
		h.sideEffects.AfterPersist(inst, conv, ident, m, msg.ButtonID, raw)
	}

	// Forwarding runs on the critical path but never fails the webhook.
	if h.forwarding != nil && m.Direction == models.DirectionInbound && !msg.IsGroup {
		if _, err := h.forwarding.MaybeForward(ctx, inst, conv, ident.Contact, raw); err != nil {
			log.Warn().Err(err).Str("conversationId", conv.ID).Msg("Automation forwarding failed")
		}
	}

	respondSuccess(w, nil)
}

// getInstance resolves the instance through a short TTL cache; every webhook
// hits this lookup.
func (h *EventsHandler) getInstance(r *http.Request, instanceID string) (*models.Instance, error) {
	if cached, ok := h.instances.Get(instanceID); ok {
		return cached.(*models.Instance), nil
	}
	inst, err := h.store.GetInstance(r.Context(), instanceID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil, fmt.Errorf("%w: instance %s", services.ErrNotFound, instanceID)
		}
		return nil, fmt.Errorf("lookup instance: %w", err)
	}
	h.instances.Set(instanceID, inst, cache.DefaultExpiration)
	return inst, nil
}
