package services

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/adapters/channel"
	"zapdesk/internal/models"
	"zapdesk/internal/store"
)

// NormalizedMessage is the provider-independent form of one message payload.
type NormalizedMessage struct {
	Type         string
	Body         string
	ReplyToID    string
	QuotedBody   string
	QuotedSender string
	FileName     string
	Mimetype     string
}

var typeAliases = map[string]string{
	"text":                "text",
	"chat":                "text",
	"conversation":        "text",
	"extendedTextMessage": "text",
	"buttonsResponse":     "text",
	"listResponse":        "text",
	"image":               "image",
	"imageMessage":        "image",
	"audio":               "audio",
	"audioMessage":        "audio",
	"ptt":                 "audio",
	"video":               "video",
	"videoMessage":        "video",
	"document":            "document",
	"documentMessage":     "document",
	"file":                "document",
	"sticker":             "sticker",
	"stickerMessage":      "sticker",
	"reaction":            "reaction",
	"reactionMessage":     "reaction",
}

// Normalize collapses the provider payload into the closed type enum with a
// single body, extracting reply and quote references.
func Normalize(msg *channel.MessagePayload) NormalizedMessage {
	n := NormalizedMessage{
		Type:     typeAliases[msg.Type],
		FileName: msg.FileName,
		Mimetype: msg.Mimetype,
	}
	if n.Type == "" {
		n.Type = models.TypeText
	}
	if msg.Reaction != nil && msg.Reaction.Emoji != "" {
		n.Type = models.TypeReaction
	}

	switch {
	case n.Type == models.TypeReaction:
		if msg.Reaction != nil {
			n.Body = msg.Reaction.Emoji
			n.ReplyToID = msg.Reaction.MessageID
		}
		return n
	case msg.ButtonText != "":
		// Structured selections beat free text.
		n.Body = msg.ButtonText
	case msg.ListRowID != "":
		n.Body = msg.ListRowID
	case msg.Body != "":
		n.Body = msg.Body
	default:
		n.Body = msg.Caption
	}

	if msg.Context != nil && msg.Context.StanzaID != "" {
		n.ReplyToID = msg.Context.StanzaID
		n.QuotedBody = msg.Context.QuotedBody
		if msg.Context.FromMe {
			n.QuotedSender = "agent"
		} else {
			n.QuotedSender = "contact"
		}
	}
	return n
}

// HasMedia reports whether the normalized type carries a downloadable payload.
func HasMedia(msgType string) bool {
	switch msgType {
	case models.TypeImage, models.TypeAudio, models.TypeVideo, models.TypeDocument, models.TypeSticker:
		return true
	}
	return false
}

// Preview renders the denormalized last-message text for the conversation list.
func Preview(n NormalizedMessage) string {
	if strings.TrimSpace(n.Body) != "" {
		return n.Body
	}
	switch n.Type {
	case models.TypeImage:
		return "[image]"
	case models.TypeAudio:
		return "[audio]"
	case models.TypeVideo:
		return "[video]"
	case models.TypeDocument:
		return "[document]"
	case models.TypeSticker:
		return "[sticker]"
	}
	return n.Body
}

// MessageService persists normalized messages, running the media pipeline for
// media types first.
type MessageService struct {
	store *store.Store
	media *MediaService // optional
}

func NewMessageService(st *store.Store, media *MediaService) *MessageService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for MessageService")
	}
	return &MessageService{store: st, media: media}
}

// Persist writes the message row for the resolved conversation. The returned
// bool reports a duplicate provider id, which callers treat as
// already-processed: acknowledged, side effects skipped.
func (s *MessageService) Persist(ctx context.Context, inst *models.Instance, conv *models.Conversation, ident *ResolvedIdentity, msg *channel.MessagePayload, at time.Time) (*models.Message, bool, error) {
	// Redelivered ids are caught before the media pipeline runs, so nothing
	// gets re-downloaded or re-uploaded for them.
	if msg.ID != "" {
		existing, err := s.store.GetMessageBySource(ctx, conv.ID, msg.ID)
		if err == nil {
			log.Debug().Str("sourceId", msg.ID).Str("conversationId", conv.ID).Msg("Duplicate message delivery, already processed")
			return existing, true, nil
		}
		if !store.IsNotFound(err) {
			return nil, false, fmt.Errorf("check duplicate message: %w", err)
		}
	}

	n := Normalize(msg)

	direction := models.DirectionInbound
	if msg.FromMe {
		direction = models.DirectionOutbound
	}

	m := &models.Message{
		ConversationID: conv.ID,
		Body:           n.Body,
		Direction:      direction,
		Type:           n.Type,
		SourceID:       msg.ID,
		SenderName:     ident.SenderName,
		SenderJID:      ident.SenderJID,
		SenderPicture:  ident.SenderPicture,
		Status:         models.StatusSent,
		ReplyToID:      n.ReplyToID,
		QuotedBody:     n.QuotedBody,
		QuotedSender:   n.QuotedSender,
		CreatedAt:      at,
	}

	// Media failures degrade to a text-only row; they never block persistence.
	if HasMedia(n.Type) && s.media != nil {
		url, fileName, contentType := s.media.Fetch(ctx, inst, conv.ID, msg.ID, n.Type, n.FileName, n.Mimetype)
		m.MediaURL = url
		m.MediaName = fileName
		m.MediaType = contentType
	}

	if err := s.store.InsertMessage(ctx, m); err != nil {
		if !store.IsUniqueViolation(err) {
			return nil, false, fmt.Errorf("persist message: %w", err)
		}
		existing, err := s.store.GetMessageBySource(ctx, conv.ID, msg.ID)
		if err != nil {
			return nil, false, fmt.Errorf("refetch duplicate message: %w", err)
		}
		log.Debug().Str("sourceId", msg.ID).Str("conversationId", conv.ID).Msg("Duplicate message delivery, already processed")
		return existing, true, nil
	}
	return m, false, nil
}
