package models

import "time"

// Conversation lifecycle states.
const (
	ConversationPending  = "pending"
	ConversationOpen     = "open"
	ConversationResolved = "resolved"
)

// Message directions.
const (
	DirectionInbound  = "inbound"
	DirectionOutbound = "outbound"
)

// Normalized message types.
const (
	TypeText     = "text"
	TypeImage    = "image"
	TypeAudio    = "audio"
	TypeVideo    = "video"
	TypeDocument = "document"
	TypeSticker  = "sticker"
	TypeReaction = "reaction"
)

// Message delivery statuses, in escalation order.
const (
	StatusSent      = "sent"
	StatusDelivered = "delivered"
	StatusRead      = "read"
)

// Instance is a tenant's configured connection to one messaging channel.
// Provisioned elsewhere; this engine reads it and only consumes its webhook
// URL and AI flag.
type Instance struct {
	ID             string    `db:"id"`
	Name           string    `db:"name"`
	Channel        string    `db:"channel"`
	TenantID       string    `db:"tenant_id"`
	APIToken       string    `db:"api_token"`
	DefaultQueueID *string   `db:"default_queue_id"`
	AIEnabled      *bool     `db:"ai_enabled"`
	WebhookURL     string    `db:"webhook_url"`
	FunnelID       *string   `db:"funnel_id"`
	CreatedAt      time.Time `db:"created_at"`
	UpdatedAt      time.Time `db:"updated_at"`
}

// Contact is an individual external correspondent, unique per (tenant, number).
type Contact struct {
	ID         string    `db:"id"`
	TenantID   string    `db:"tenant_id"`
	Number     string    `db:"number"`
	Name       string    `db:"name"`
	PictureURL string    `db:"picture_url"`
	Edited     bool      `db:"edited"`
	AIEnabled  *bool     `db:"ai_enabled"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Group is a multi-party chat, unique by provider chat id.
type Group struct {
	ID         string    `db:"id"`
	ChatID     string    `db:"chat_id"`
	Name       string    `db:"name"`
	PictureURL string    `db:"picture_url"`
	InstanceID *string   `db:"instance_id"`
	TenantID   string    `db:"tenant_id"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// GroupMember is one participant of a Group, upserted by (group id, number).
type GroupMember struct {
	ID         string    `db:"id"`
	GroupID    string    `db:"group_id"`
	Number     string    `db:"number"`
	Name       string    `db:"name"`
	PictureURL string    `db:"picture_url"`
	Lid        string    `db:"lid"`
	CreatedAt  time.Time `db:"created_at"`
	UpdatedAt  time.Time `db:"updated_at"`
}

// Conversation binds a contact or group to a channel instance. At most one
// pending/open conversation may exist per (instance, contact-or-group).
type Conversation struct {
	ID            string     `db:"id"`
	ContactID     *string    `db:"contact_id"`
	GroupID       *string    `db:"group_id"`
	InstanceID    *string    `db:"instance_id"`
	TenantID      string     `db:"tenant_id"`
	Status        string     `db:"status"`
	AgentID       *string    `db:"agent_id"`
	QueueID       *string    `db:"queue_id"`
	Unread        int        `db:"unread"`
	LastMessage   string     `db:"last_message"`
	LastMessageAt *time.Time `db:"last_message_at"`
	CreatedAt     time.Time  `db:"created_at"`
	UpdatedAt     time.Time  `db:"updated_at"`
}

// Message is one immutable inbound/outbound event. Only Status is mutated
// later, by the status reconciler.
type Message struct {
	ID             string    `db:"id"`
	ConversationID string    `db:"conversation_id"`
	Body           string    `db:"body"`
	Direction      string    `db:"direction"`
	Type           string    `db:"type"`
	SourceID       string    `db:"source_id"`
	SenderName     string    `db:"sender_name"`
	SenderJID      string    `db:"sender_jid"`
	SenderPicture  string    `db:"sender_picture"`
	MediaURL       string    `db:"media_url"`
	MediaName      string    `db:"media_name"`
	MediaType      string    `db:"media_type"`
	Status         string    `db:"status"`
	ReplyToID      string    `db:"reply_to_id"`
	QuotedBody     string    `db:"quoted_body"`
	QuotedSender   string    `db:"quoted_sender"`
	CreatedAt      time.Time `db:"created_at"`
}

// FollowUpSchedule is the per-conversation follow-up timer. It is reset to
// step zero whenever a new inbound message arrives with auto-send on.
type FollowUpSchedule struct {
	ID                string     `db:"id"`
	ConversationID    string     `db:"conversation_id"`
	Category          string     `db:"category"`
	StepIndex         int        `db:"step_index"`
	FirstDelayMinutes int        `db:"first_delay_minutes"`
	NextFireAt        *time.Time `db:"next_fire_at"`
	AutoSend          bool       `db:"auto_send"`
	Completed         bool       `db:"completed"`
	UpdatedAt         time.Time  `db:"updated_at"`
}

// NpsEntry is one survey response appended to a Contact's history.
type NpsEntry struct {
	ID        string    `db:"id"`
	ContactID string    `db:"contact_id"`
	Score     string    `db:"score"`
	Feedback  string    `db:"feedback"`
	CreatedAt time.Time `db:"created_at"`
}

// User is a team member eligible for push notifications.
type User struct {
	ID            string `db:"id"`
	TenantID      string `db:"tenant_id"`
	Name          string `db:"name"`
	Role          string `db:"role"` // admin, supervisor, agent
	NotifyEnabled bool   `db:"notify_enabled"`
	PushToken     string `db:"push_token"`
}

// Queue is a routing queue for conversations.
type Queue struct {
	ID       string `db:"id"`
	TenantID string `db:"tenant_id"`
	Name     string `db:"name"`
}

// Funnel and FunnelStage model the CRM pipeline used for auto-deal creation.
type Funnel struct {
	ID       string `db:"id"`
	TenantID string `db:"tenant_id"`
	Name     string `db:"name"`
}

type FunnelStage struct {
	ID       string `db:"id"`
	FunnelID string `db:"funnel_id"`
	Name     string `db:"name"`
	Position int    `db:"position"`
}

// Deal is a CRM deal created for a first-contact sender.
type Deal struct {
	ID        string    `db:"id"`
	TenantID  string    `db:"tenant_id"`
	ContactID string    `db:"contact_id"`
	FunnelID  string    `db:"funnel_id"`
	StageID   string    `db:"stage_id"`
	Name      string    `db:"name"`
	CreatedAt time.Time `db:"created_at"`
}

// TenantSettings carries tenant-wide AI configuration, read as an explicit
// value object by the forwarding gate.
type TenantSettings struct {
	TenantID   string  `db:"tenant_id"`
	AIEnabled  bool    `db:"ai_enabled"`
	AIQueueID  *string `db:"ai_queue_id"`
	AIFunnelID *string `db:"ai_funnel_id"`
}
