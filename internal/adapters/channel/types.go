package channel

// EventPayload is the raw webhook envelope the provider posts. The provider
// multiplexes several event families onto one endpoint, so everything beyond
// the envelope is optional.
type EventPayload struct {
	Event      string          `json:"event"`
	InstanceID string          `json:"instanceId"`
	Message    *MessagePayload `json:"message,omitempty"`
	Receipt    *ReceiptPayload `json:"receipt,omitempty"`
	Ack        *AckPayload     `json:"ack,omitempty"`
}

// MessagePayload is one inbound/outbound chat message as delivered by the
// provider.
type MessagePayload struct {
	ID        string `json:"id"`
	ChatID    string `json:"chatId"`
	From      string `json:"from"`
	IsGroup   bool   `json:"isGroup"`
	FromMe    bool   `json:"fromMe"`
	Timestamp int64  `json:"timestamp"`

	Type    string `json:"type"`
	Body    string `json:"body"`
	Caption string `json:"caption,omitempty"`

	// Sender display candidates, in no guaranteed order of presence.
	SenderName string `json:"senderName,omitempty"`
	PushName   string `json:"pushName,omitempty"`
	SenderLid  string `json:"senderLid,omitempty"`
	Picture    string `json:"profilePicture,omitempty"`

	// Group display candidates.
	GroupName string `json:"groupName,omitempty"`
	ChatName  string `json:"chatName,omitempty"`
	GroupPic  string `json:"groupPicture,omitempty"`

	FileName string `json:"fileName,omitempty"`
	Mimetype string `json:"mimetype,omitempty"`

	// Structured responses (buttons, lists, polls).
	ButtonID   string `json:"selectedButtonId,omitempty"`
	ButtonText string `json:"selectedButtonText,omitempty"`
	ListRowID  string `json:"selectedRowId,omitempty"`

	Reaction *ReactionPayload `json:"reaction,omitempty"`
	Context  *ContextPayload  `json:"context,omitempty"`
}

// ReactionPayload carries the emoji and the id of the message it targets.
type ReactionPayload struct {
	Emoji     string `json:"emoji"`
	MessageID string `json:"messageId"`
}

// ContextPayload is the provider's context-info block for replies/quotes.
type ContextPayload struct {
	StanzaID    string `json:"stanzaId"`
	QuotedBody  string `json:"quotedBody"`
	Participant string `json:"participant"`
	FromMe      bool   `json:"fromMe"`
}

// ReceiptPayload is a read/delivery receipt referencing provider message ids.
type ReceiptPayload struct {
	MessageIDs []string `json:"messageIds"`
	State      string   `json:"state"` // "Delivered" or "Read"
}

// AckPayload is a generic acknowledgment with a numeric level.
type AckPayload struct {
	MessageID string `json:"messageId"`
	Level     int    `json:"level"` // 1 sent, 2 delivered, >=3 read
}

// mediaDownloadResponse is the provider's media-download endpoint response.
// Data is base64, usually with a data-URL prefix.
type mediaDownloadResponse struct {
	Data     string `json:"data"`
	Mimetype string `json:"mimetype"`
	FileName string `json:"fileName"`
}
