package handlers

import (
	"encoding/json"
	"net/http"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/adapters/channel"
	"zapdesk/internal/services"
)

// StatusHandler is the delivery-state webhook endpoint for receipt batches and
// numeric acks.
type StatusHandler struct {
	status *services.StatusService
}

func NewStatusHandler(status *services.StatusService) *StatusHandler {
	if status == nil {
		log.Fatal().Msg("status service cannot be nil for StatusHandler")
	}
	return &StatusHandler{status: status}
}

func (h *StatusHandler) Handle(w http.ResponseWriter, r *http.Request) {
	var payload channel.EventPayload
	if err := json.Unmarshal(RawBody(r), &payload); err != nil {
		respondError(w, http.StatusBadRequest, "malformed JSON payload")
		return
	}

	ctx := r.Context()
	switch {
	case payload.Receipt != nil:
		updated, notFound, err := h.status.ApplyReceipts(ctx, payload.Receipt.MessageIDs, payload.Receipt.State)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondSuccess(w, map[string]interface{}{
			"updated":  updated,
			"notFound": notFound,
		})
	case payload.Ack != nil:
		found, err := h.status.ApplyAck(ctx, payload.Ack.MessageID, payload.Ack.Level)
		if err != nil {
			respondServiceError(w, err)
			return
		}
		respondSuccess(w, map[string]interface{}{"found": found})
	default:
		log.Debug().Str("event", payload.Event).Msg("Ignoring status event without receipt or ack")
		respondSuccess(w, map[string]interface{}{"ignored": true})
	}
}
