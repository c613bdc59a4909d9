// Package gateway adapts the Telegram Bot API to the conversation layer:
// inbound webhook updates become conversation events, outbound replies go
// through the bot client.
package gateway

import (
	"encoding/json"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/whale-professor/Solvan/internal/conversation"
)

// Update is the subset of the Bot API update object this service consumes.
// Unknown update kinds decode fine and simply produce no event.
type Update struct {
	UpdateID      int64          `json:"update_id"`
	Message       *Message       `json:"message"`
	CallbackQuery *CallbackQuery `json:"callback_query"`
}

// Message is an inbound chat message.
type Message struct {
	MessageID int64  `json:"message_id"`
	From      *User  `json:"from"`
	Chat      Chat   `json:"chat"`
	Text      string `json:"text"`
}

// User identifies the sender of a message or callback.
type User struct {
	ID           int64  `json:"id"`
	LanguageCode string `json:"language_code"`
}

// Chat identifies the conversation a message belongs to.
type Chat struct {
	ID int64 `json:"id"`
}

// CallbackQuery is an inline-button press.
type CallbackQuery struct {
	ID      string   `json:"id"`
	From    *User    `json:"from"`
	Message *Message `json:"message"`
	Data    string   `json:"data"`
}

// DecodeUpdate parses one webhook body.
func DecodeUpdate(r io.Reader) (*Update, error) {
	var u Update
	if err := json.NewDecoder(r).Decode(&u); err != nil {
		return nil, fmt.Errorf("telegram: decode update: %w", err)
	}
	return &u, nil
}

// CallbackID returns the callback query id when the update is a button press,
// so the handler can acknowledge it.
func (u *Update) CallbackID() string {
	if u.CallbackQuery != nil {
		return u.CallbackQuery.ID
	}
	return ""
}

// Event translates the update into a conversation event. The second return is
// false for update kinds the service does not handle.
func (u *Update) Event() (conversation.Event, bool) {
	switch {
	case u.CallbackQuery != nil:
		cq := u.CallbackQuery
		if cq.From == nil || cq.Message == nil {
			return conversation.Event{}, false
		}
		return conversation.Event{
			OwnerID:        strconv.FormatInt(cq.From.ID, 10),
			ConversationID: strconv.FormatInt(cq.Message.Chat.ID, 10),
			Kind:           conversation.KindButton,
			Payload:        cq.Data,
			Language:       cq.From.LanguageCode,
		}, true
	case u.Message != nil:
		msg := u.Message
		if msg.From == nil || strings.TrimSpace(msg.Text) == "" {
			return conversation.Event{}, false
		}
		kind := conversation.KindText
		if strings.HasPrefix(msg.Text, "/") {
			kind = conversation.KindCommand
		}
		return conversation.Event{
			OwnerID:        strconv.FormatInt(msg.From.ID, 10),
			ConversationID: strconv.FormatInt(msg.Chat.ID, 10),
			Kind:           kind,
			Payload:        msg.Text,
			Language:       msg.From.LanguageCode,
		}, true
	default:
		return conversation.Event{}, false
	}
}
