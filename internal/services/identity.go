package services

import (
	"context"
	"fmt"
	"unicode"

	"github.com/rs/zerolog/log"

	"zapdesk/internal/adapters/channel"
	"zapdesk/internal/models"
	"zapdesk/internal/storage"
	"zapdesk/internal/store"
)

// PictureFetcher downloads a provider-hosted picture.
type PictureFetcher interface {
	FetchPicture(ctx context.Context, url string) ([]byte, string, error)
}

// IdentityService maps a webhook message to a canonical Contact or
// Group/GroupMember, creating or updating records as needed.
type IdentityService struct {
	store    *store.Store
	pictures PictureFetcher   // optional
	uploader storage.Uploader // optional
}

func NewIdentityService(st *store.Store, pictures PictureFetcher, uploader storage.Uploader) *IdentityService {
	if st == nil {
		log.Fatal().Msg("store cannot be nil for IdentityService")
	}
	return &IdentityService{store: st, pictures: pictures, uploader: uploader}
}

// ResolvedIdentity is the output of identity resolution: exactly one of
// Contact or Group is set, plus sender display metadata for message
// attribution and notification rendering.
type ResolvedIdentity struct {
	Contact *models.Contact
	Group   *models.Group
	Member  *models.GroupMember

	SenderName    string
	SenderJID     string
	SenderPicture string

	// NewContact marks a contact created by this event, the trigger for the
	// first-contact auto-deal side effect.
	NewContact bool
}

// Resolve runs the group or individual identity path for one message.
// Datastore failures are fatal for the event; picture mirroring failures are
// logged and ignored.
func (s *IdentityService) Resolve(ctx context.Context, inst *models.Instance, msg *channel.MessagePayload) (*ResolvedIdentity, error) {
	if msg.IsGroup {
		return s.resolveGroup(ctx, inst, msg)
	}
	return s.resolveIndividual(ctx, inst, msg)
}

func (s *IdentityService) resolveGroup(ctx context.Context, inst *models.Instance, msg *channel.MessagePayload) (*ResolvedIdentity, error) {
	chatID := msg.ChatID
	if chatID == "" {
		return nil, fmt.Errorf("%w: group message without chatId", ErrInvalidPayload)
	}

	name := firstNonEmpty(msg.GroupName, msg.ChatName, msg.PushName, chatID)

	group, err := s.store.GetGroupByChatID(ctx, chatID)
	switch {
	case err == nil:
		changed := false
		if name != group.Name {
			group.Name = name
			changed = true
		}
		// Backfill references lost to instance deletion/recreation.
		if group.InstanceID == nil || *group.InstanceID != inst.ID {
			id := inst.ID
			group.InstanceID = &id
			changed = true
		}
		if group.TenantID == "" {
			group.TenantID = inst.TenantID
			changed = true
		}
		if msg.GroupPic != "" && msg.GroupPic != group.PictureURL {
			group.PictureURL = s.mirrorPicture(ctx, "group", group.ID, msg.GroupPic)
			changed = true
		}
		if changed {
			if err := s.store.UpdateGroup(ctx, group); err != nil {
				return nil, fmt.Errorf("update group: %w", err)
			}
		}
	case store.IsNotFound(err):
		instID := inst.ID
		group = &models.Group{
			ChatID:     chatID,
			Name:       name,
			InstanceID: &instID,
			TenantID:   inst.TenantID,
		}
		if msg.GroupPic != "" {
			group.PictureURL = s.mirrorPicture(ctx, "group", chatID, msg.GroupPic)
		}
		if err := s.store.CreateGroup(ctx, group); err != nil {
			if !store.IsUniqueViolation(err) {
				return nil, fmt.Errorf("create group: %w", err)
			}
			// Another delivery created it first; use the winner.
			group, err = s.store.GetGroupByChatID(ctx, chatID)
			if err != nil {
				return nil, fmt.Errorf("refetch group after race: %w", err)
			}
		}
	default:
		return nil, fmt.Errorf("lookup group: %w", err)
	}

	member, err := s.resolveMember(ctx, group.ID, msg)
	if err != nil {
		return nil, err
	}

	return &ResolvedIdentity{
		Group:         group,
		Member:        member,
		SenderName:    member.Name,
		SenderJID:     msg.From,
		SenderPicture: member.PictureURL,
	}, nil
}

func (s *IdentityService) resolveMember(ctx context.Context, groupID string, msg *channel.MessagePayload) (*models.GroupMember, error) {
	name := firstNonEmpty(msg.SenderName, msg.PushName, msg.From)

	member, err := s.store.GetGroupMember(ctx, groupID, msg.From)
	switch {
	case err == nil:
		changed := false
		if name != "" && name != member.Name {
			member.Name = name
			changed = true
		}
		if msg.Picture != "" && msg.Picture != member.PictureURL {
			member.PictureURL = msg.Picture
			changed = true
		}
		if msg.SenderLid != "" && msg.SenderLid != member.Lid {
			member.Lid = msg.SenderLid
			changed = true
		}
		if changed {
			if err := s.store.UpdateGroupMember(ctx, member); err != nil {
				return nil, fmt.Errorf("update group member: %w", err)
			}
		}
		return member, nil
	case store.IsNotFound(err):
		member = &models.GroupMember{
			GroupID:    groupID,
			Number:     msg.From,
			Name:       name,
			PictureURL: msg.Picture,
			Lid:        msg.SenderLid,
		}
		if err := s.store.CreateGroupMember(ctx, member); err != nil {
			if !store.IsUniqueViolation(err) {
				return nil, fmt.Errorf("create group member: %w", err)
			}
			member, err = s.store.GetGroupMember(ctx, groupID, msg.From)
			if err != nil {
				return nil, fmt.Errorf("refetch group member after race: %w", err)
			}
		}
		return member, nil
	default:
		return nil, fmt.Errorf("lookup group member: %w", err)
	}
}

func (s *IdentityService) resolveIndividual(ctx context.Context, inst *models.Instance, msg *channel.MessagePayload) (*ResolvedIdentity, error) {
	number := msg.From
	if number == "" {
		return nil, fmt.Errorf("%w: message without sender number", ErrInvalidPayload)
	}

	name := firstNonEmpty(msg.SenderName, msg.PushName)

	contact, err := s.store.GetContactByNumber(ctx, inst.TenantID, number)
	created := false
	switch {
	case err == nil:
		changed := false
		if msg.Picture != "" && msg.Picture != contact.PictureURL {
			contact.PictureURL = s.mirrorPicture(ctx, "contact", contact.ID, msg.Picture)
			changed = true
		}
		// Numeric placeholder names never overwrite a stored name, and a
		// manually edited name is frozen entirely.
		if !contact.Edited && name != "" && name != contact.Name && containsLetter(name) {
			contact.Name = name
			contact.Edited = containsLetter(name)
			changed = true
		}
		if changed {
			if err := s.store.UpdateContactProfile(ctx, contact.ID, contact.Name, contact.PictureURL, contact.Edited); err != nil {
				return nil, fmt.Errorf("update contact: %w", err)
			}
		}
	case store.IsNotFound(err):
		contact = &models.Contact{
			TenantID: inst.TenantID,
			Number:   number,
			Name:     firstNonEmpty(name, number),
		}
		if msg.Picture != "" {
			contact.PictureURL = s.mirrorPicture(ctx, "contact", number, msg.Picture)
		}
		if err := s.store.CreateContact(ctx, contact); err != nil {
			if !store.IsUniqueViolation(err) {
				return nil, fmt.Errorf("create contact: %w", err)
			}
			// Concurrent delivery won the insert race; fetch the winner.
			contact, err = s.store.GetContactByNumber(ctx, inst.TenantID, number)
			if err != nil {
				return nil, fmt.Errorf("refetch contact after race: %w", err)
			}
		} else {
			created = true
		}
	default:
		return nil, fmt.Errorf("lookup contact: %w", err)
	}

	return &ResolvedIdentity{
		Contact:       contact,
		SenderName:    contact.Name,
		SenderJID:     number,
		SenderPicture: contact.PictureURL,
		NewContact:    created,
	}, nil
}

// mirrorPicture re-uploads a provider picture to object storage and returns
// the durable URL, falling back to the provider URL on any failure.
func (s *IdentityService) mirrorPicture(ctx context.Context, scope, id, url string) string {
	if s.pictures == nil || s.uploader == nil {
		return url
	}
	data, contentType, err := s.pictures.FetchPicture(ctx, url)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Str("id", id).Msg("Failed to download picture, keeping provider URL")
		return url
	}
	key := fmt.Sprintf("pictures/%s/%s.jpg", scope, id)
	stored, err := s.uploader.Upload(ctx, key, data, contentType)
	if err != nil {
		log.Warn().Err(err).Str("scope", scope).Str("id", id).Msg("Failed to re-upload picture, keeping provider URL")
		return url
	}
	return stored
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}

func containsLetter(s string) bool {
	for _, r := range s {
		if unicode.IsLetter(r) {
			return true
		}
	}
	return false
}
