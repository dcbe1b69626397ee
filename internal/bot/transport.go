// Package bot carries the chat-transport boundary: the inbound event types,
// the outbound Transport interface with its HTTP gateway implementation, the
// per-instructor event dispatcher and the reply message catalog. The wire
// protocol behind the gateway is opaque to the rest of the system.
package bot

import (
	"context"
	"errors"
)

// ErrTransport is wrapped around delivery failures. Events that hit it are
// logged and dropped, never retried inline.
var ErrTransport = errors.New("transport error")

// TextMessage is an inbound text from an instructor chat.
type TextMessage struct {
	From        int64  `json:"from"`
	Text        string `json:"text"`
	ReplyTarget string `json:"reply_target,omitempty"`
}

// PhotoMessage is an inbound photo; the ref resolves to the best-resolution
// image via Transport.DownloadPhoto.
type PhotoMessage struct {
	From     int64  `json:"from"`
	PhotoRef string `json:"photo_ref"`
}

// ButtonPress is an inbound press of an inline keyboard button.
type ButtonPress struct {
	From        int64  `json:"from"`
	PressID     string `json:"press_id"`
	MessageRef  string `json:"message_ref"`
	ActionToken string `json:"action_token"`
}

// Button is one inline keyboard button carrying an opaque action token.
type Button struct {
	Text  string `json:"text"`
	Token string `json:"token"`
}

// Keyboard is rows of buttons attached to an outbound message.
type Keyboard [][]Button

// Row builds a single-row keyboard.
func Row(buttons ...Button) Keyboard {
	return Keyboard{buttons}
}

// Transport is the outbound side of the chat boundary.
type Transport interface {
	SendText(ctx context.Context, to int64, text string, kb Keyboard) error
	SendPhoto(ctx context.Context, to int64, photo []byte, caption string, kb Keyboard) error
	// EditOrDeleteMessage replaces the message's text and keyboard; an empty
	// text deletes the message.
	EditOrDeleteMessage(ctx context.Context, to int64, messageRef string, text string, kb Keyboard) error
	// AnswerButtonPress acknowledges a press, optionally with a short notice.
	AnswerButtonPress(ctx context.Context, pressID string, notice string) error
	DownloadPhoto(ctx context.Context, photoRef string) ([]byte, error)
}
