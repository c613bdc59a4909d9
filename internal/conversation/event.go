package conversation

import "context"

// EventKind classifies inbound conversation events.
type EventKind string

const (
	KindCommand EventKind = "command"
	KindButton  EventKind = "button"
	KindText    EventKind = "text"
)

// Event is the abstract shape of one inbound conversation event. The gateway
// translates transport-specific updates into this form.
type Event struct {
	OwnerID        string
	ConversationID string
	Kind           EventKind
	Payload        string
	Language       string
}

// Choice is one tappable option attached to an outbound message. Data comes
// back as the payload of a KindButton event.
type Choice struct {
	Label string
	Data  string
}

// Sender delivers outbound conversation actions. Implemented by the gateway
// client; tests substitute fakes.
type Sender interface {
	// Send posts a new message and returns its id.
	Send(ctx context.Context, conversationID, text string) (messageID string, err error)
	// SendChoices posts a message with tappable options.
	SendChoices(ctx context.Context, conversationID, text string, choices []Choice) (messageID string, err error)
	// Edit replaces the text of a previously sent message.
	Edit(ctx context.Context, conversationID, messageID, text string) error
	// Delete removes a previously sent message.
	Delete(ctx context.Context, conversationID, messageID string) error
}
