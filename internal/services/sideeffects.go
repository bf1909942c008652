package services

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/models"
	"zapdesk/internal/queue"
	"zapdesk/internal/store"
)

// Transcriber enqueues stored audio for transcription.
type Transcriber interface {
	Submit(ctx context.Context, messageID, audioURL string) error
}

// Analyzer runs a periodic AI pass over a conversation.
type Analyzer interface {
	Analyze(ctx context.Context, conversationID string) error
}

// SideEffects assembles the best-effort work that follows a persisted message
// and hands it to the dispatcher. Nothing here can fail the webhook; the
// response has already been sent.
type SideEffects struct {
	store       *store.Store
	dispatcher  *Dispatcher
	nps         *NpsService
	notify      *NotifyService
	transcriber Transcriber      // optional
	analyzer    Analyzer         // optional
	mirror      *queue.Publisher // optional, nil-safe
}

func NewSideEffects(st *store.Store, d *Dispatcher, nps *NpsService, notify *NotifyService, transcriber Transcriber, analyzer Analyzer, mirror *queue.Publisher) *SideEffects {
	if st == nil || d == nil {
		log.Fatal().Msg("store and dispatcher cannot be nil for SideEffects")
	}
	return &SideEffects{
		store:       st,
		dispatcher:  d,
		nps:         nps,
		notify:      notify,
		transcriber: transcriber,
		analyzer:    analyzer,
		mirror:      mirror,
	}
}

const analysisEvery = 20

// AfterPersist schedules the side effects for one newly persisted message.
// The raw payload is mirrored for every message; the remaining effects run for
// inbound messages only.
func (s *SideEffects) AfterPersist(inst *models.Instance, conv *models.Conversation, ident *ResolvedIdentity, m *models.Message, buttonID string, raw json.RawMessage) {
	var tasks []Task

	tasks = append(tasks, Task{
		Name: "mirror-event",
		Run: func(ctx context.Context) error {
			return s.mirror.PublishEvent("message", inst.ID, inst.TenantID, raw)
		},
	})

	if m.Direction == models.DirectionInbound {
		if ident.NewContact && ident.Contact != nil {
			contact := ident.Contact
			tasks = append(tasks, Task{
				Name: "first-contact-deal",
				Run: func(ctx context.Context) error {
					return s.createFirstContactDeal(ctx, inst, contact)
				},
			})
		}

		if ident.Contact != nil {
			if score, ok := DetectSurveyResponse(buttonID, m.Body); ok && s.nps != nil {
				contactID := ident.Contact.ID
				tasks = append(tasks, Task{
					Name: "nps-capture",
					Run: func(ctx context.Context) error {
						return s.nps.Capture(ctx, conv.ID, contactID, score)
					},
				})
			}
		}

		if s.notify != nil {
			senderName, preview := m.SenderName, conv.LastMessage
			tasks = append(tasks, Task{
				Name: "push-fanout",
				Run: func(ctx context.Context) error {
					return s.notify.FanOut(ctx, conv, senderName, preview)
				},
			})
		}

		if s.transcriber != nil && m.Type == models.TypeAudio && m.MediaURL != "" {
			msgID, audioURL := m.ID, m.MediaURL
			tasks = append(tasks, Task{
				Name: "transcription",
				Run: func(ctx context.Context) error {
					return s.transcriber.Submit(ctx, msgID, audioURL)
				},
			})
		}

		if s.analyzer != nil {
			tasks = append(tasks, Task{
				Name: "conversation-analysis",
				Run: func(ctx context.Context) error {
					n, err := s.store.CountMessages(ctx, conv.ID)
					if err != nil {
						return err
					}
					if n == 0 || n%analysisEvery != 0 {
						return nil
					}
					return s.analyzer.Analyze(ctx, conv.ID)
				},
			})
		}

		tasks = append(tasks, Task{
			Name: "follow-up-reset",
			Run: func(ctx context.Context) error {
				return s.resetFollowUp(ctx, conv.ID)
			},
		})
	}

	s.dispatcher.Submit(tasks...)
}

// createFirstContactDeal opens a CRM deal in the first stage of the instance
// funnel for a contact created by this message. Contacts with placeholder
// numeric names or no picture are skipped; those profiles are too thin for a
// useful deal.
func (s *SideEffects) createFirstContactDeal(ctx context.Context, inst *models.Instance, contact *models.Contact) error {
	if !containsLetter(contact.Name) || contact.PictureURL == "" {
		return nil
	}
	funnelID := ""
	if inst.FunnelID != nil && *inst.FunnelID != "" {
		funnelID = *inst.FunnelID
	} else {
		settings, err := s.store.GetTenantSettings(ctx, inst.TenantID)
		if err == nil && settings.AIFunnelID != nil {
			funnelID = *settings.AIFunnelID
		}
	}
	if funnelID == "" {
		return nil
	}

	stage, err := s.store.GetFunnelFirstStage(ctx, funnelID)
	if err != nil {
		if store.IsNotFound(err) {
			log.Warn().Str("funnelId", funnelID).Msg("Funnel has no stages, skipping auto-deal")
			return nil
		}
		return err
	}

	deal := &models.Deal{
		TenantID:  inst.TenantID,
		ContactID: contact.ID,
		FunnelID:  funnelID,
		StageID:   stage.ID,
		Name:      contact.Name,
	}
	if err := s.store.CreateDeal(ctx, deal); err != nil {
		return fmt.Errorf("create first-contact deal: %w", err)
	}
	log.Info().Str("contactId", contact.ID).Str("funnelId", funnelID).Msg("First-contact deal created")
	return nil
}

// resetFollowUp rewinds the conversation's follow-up schedule to step zero
// whenever the contact speaks again, provided auto-send is on.
func (s *SideEffects) resetFollowUp(ctx context.Context, conversationID string) error {
	sched, err := s.store.GetFollowUpByConversation(ctx, conversationID)
	if err != nil {
		if store.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !sched.AutoSend {
		return nil
	}
	next := time.Now().UTC().Add(time.Duration(sched.FirstDelayMinutes) * time.Minute)
	return s.store.ResetFollowUp(ctx, sched.ID, next)
}
