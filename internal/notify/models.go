// Package notify defines the outbound notification channel: structured
// safety messages delivered to emergency contacts over SMS, voice and push
// through an external gateway.
package notify

import (
	"context"
	"errors"
	"time"

	"github.com/saferoute/saferoute/pkg/geo"
)

// Notification errors.
var (
	// ErrGatewayUnavailable indicates the notification gateway could not be
	// reached or returned a server error. Retryable.
	ErrGatewayUnavailable = errors.New("notification gateway unavailable")
)

// MessageType classifies an outbound safety message.
type MessageType string

// Message types.
const (
	MessageSOS    MessageType = "sos"
	MessageAlert  MessageType = "alert"
	MessageSafe   MessageType = "safe"
	MessageNotice MessageType = "notice"
)

// Channel identifies a delivery channel.
type Channel string

// Delivery channels.
const (
	ChannelSMS  Channel = "sms"
	ChannelCall Channel = "call"
	ChannelPush Channel = "push"
)

// Channels selects which delivery channels to attempt.
type Channels struct {
	SMS  bool `json:"sms"`
	Call bool `json:"call"`
	Push bool `json:"push"`
}

// Contact is a notification recipient.
type Contact struct {
	ID    string `json:"id"`
	Name  string `json:"name"`
	Phone string `json:"phone"`
}

// Message is the structured payload delivered to every contact.
type Message struct {
	UserID    string          `json:"user_id"`
	UserName  string          `json:"user_name"`
	Type      MessageType     `json:"type"`
	Location  *geo.Coordinate `json:"location,omitempty"`
	Detail    string          `json:"detail,omitempty"`
	Timestamp time.Time       `json:"timestamp"`
}

// Request is one notification dispatch: a message fanned out to a contact
// list over the selected channels.
type Request struct {
	Contacts []Contact `json:"contacts"`
	Message  Message   `json:"message"`
	Channels Channels  `json:"channels"`
}

// Delivery is the per-contact, per-channel outcome.
type Delivery struct {
	ContactID string  `json:"contact_id"`
	Channel   Channel `json:"channel"`
	Delivered bool    `json:"delivered"`
	Error     string  `json:"error,omitempty"`
}

// Result is the gateway's accepted-dispatch summary. The gateway call
// succeeding does not imply every delivery succeeded; callers inspect
// Failed for partial failures.
type Result struct {
	Deliveries []Delivery `json:"deliveries"`
}

// Failed returns the deliveries that did not go through.
func (r *Result) Failed() []Delivery {
	var failed []Delivery
	for _, d := range r.Deliveries {
		if !d.Delivered {
			failed = append(failed, d)
		}
	}
	return failed
}

// Gateway is the external notification channel.
type Gateway interface {
	// Send fans the message out to all contacts. A non-nil error means the
	// gateway call itself failed (retryable); per-contact failures are
	// reported in the result.
	Send(ctx context.Context, req Request) (*Result, error)
	// Name returns the gateway identifier for logging and metrics.
	Name() string
}
