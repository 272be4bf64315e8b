package handler

// LINE Messaging API webhook types. Only the fields the relay reads are
// declared.

const (
	LineEventTypeMessage = "message"

	LineMessageTypeText  = "text"
	LineMessageTypeImage = "image"

	LineModeStandby = "standby"
)

type LineWebhookRequest struct {
	Destination string      `json:"destination"`
	Events      []LineEvent `json:"events"`
}

type LineEvent struct {
	Type            string               `json:"type"`
	Mode            string               `json:"mode,omitempty"`
	Timestamp       int64                `json:"timestamp"`
	WebhookEventID  string               `json:"webhookEventId,omitempty"`
	DeliveryContext *LineDeliveryContext `json:"deliveryContext,omitempty"`
	ReplyToken      string               `json:"replyToken,omitempty"`
	Source          LineSource           `json:"source"`
	Message         *LineMessage         `json:"message,omitempty"`
}

func (e *LineEvent) IsRedelivery() bool {
	return e.DeliveryContext != nil && e.DeliveryContext.IsRedelivery
}

type LineDeliveryContext struct {
	IsRedelivery bool `json:"isRedelivery"`
}

type LineSource struct {
	Type    string `json:"type"`
	UserID  string `json:"userId,omitempty"`
	GroupID string `json:"groupId,omitempty"`
	RoomID  string `json:"roomId,omitempty"`
}

type LineMessage struct {
	ID              string               `json:"id"`
	Type            string               `json:"type"`
	Text            string               `json:"text,omitempty"`
	ContentProvider *LineContentProvider `json:"contentProvider,omitempty"`
}

type LineContentProvider struct {
	Type               string `json:"type"`
	OriginalContentURL string `json:"originalContentUrl,omitempty"`
}
