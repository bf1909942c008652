package services

import (
	"context"
	"fmt"
	"strings"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// StatusService reconciles provider delivery states onto stored messages.
type StatusService struct {
	store *store.Store
}

func NewStatusService(st *store.Store) *StatusService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for StatusService")
	}
	return &StatusService{store: st}
}

// ApplyReceipts applies a receipt batch and reports how many provider ids
// matched stored messages and how many were unknown. Unknown ids are normal:
// receipts can arrive for messages sent before this engine existed.
func (s *StatusService) ApplyReceipts(ctx context.Context, messageIDs []string, state string) (updated, notFound int, err error) {
	status, err := receiptStatus(state)
	if err != nil {
		return 0, 0, err
	}

	for _, id := range messageIDs {
		if id == "" {
			continue
		}
		found, _, err := s.store.AdvanceMessageStatus(ctx, id, status)
		if err != nil {
			return updated, notFound, err
		}
		if found {
			updated++
		} else {
			notFound++
		}
	}
	log.Debug().Str("state", state).Int("updated", updated).Int("notFound", notFound).Msg("Receipt batch applied")
	return updated, notFound, nil
}

// ApplyAck maps a numeric ack level onto the status ladder and applies it to
// the referenced message. Returns whether the message was found.
func (s *StatusService) ApplyAck(ctx context.Context, messageID string, level int) (bool, error) {
	var status string
	switch {
	case level >= 3:
		status = models.StatusRead
	case level == 2:
		status = models.StatusDelivered
	case level == 1:
		status = models.StatusSent
	default:
		return false, fmt.Errorf("%w: ack level %d", ErrInvalidPayload, level)
	}

	found, _, err := s.store.AdvanceMessageStatus(ctx, messageID, status)
	if err != nil {
		return found, err
	}
	if !found {
		log.Debug().Str("messageId", messageID).Int("level", level).Msg("Ack for unknown message ignored")
	}
	return found, nil
}

func receiptStatus(state string) (string, error) {
	switch strings.ToLower(state) {
	case "delivered":
		return models.StatusDelivered, nil
	case "read":
		return models.StatusRead, nil
	default:
		return "", fmt.Errorf("%w: receipt state %q", ErrInvalidPayload, state)
	}
}
