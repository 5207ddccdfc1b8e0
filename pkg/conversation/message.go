package conversation

import (
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/go-go-golems/grillo/pkg/errdefs"
)

// Sender is the closed set of message origins.
type Sender string

const (
	SenderUser        Sender = "user"
	SenderAssistant   Sender = "assistant"
	SenderSystemError Sender = "system-error"
	// SenderContext marks directives injected into the history sent to the
	// model. They are hidden from the visible transcript.
	SenderContext Sender = "context"
	// SenderTransient marks the in-progress message of an open stream.
	SenderTransient Sender = "transient"
)

var senders = []Sender{SenderUser, SenderAssistant, SenderSystemError, SenderContext, SenderTransient}

func (s Sender) Valid() bool {
	for _, v := range senders {
		if v == s {
			return true
		}
	}
	return false
}

func ParseSender(s string) (Sender, error) {
	ret := Sender(s)
	if !ret.Valid() {
		return "", &errdefs.ValidationError{Field: "sender", Reason: fmt.Sprintf("unknown sender %q", s)}
	}
	return ret, nil
}

// Message is one entry of a conversation. Committed messages are treated as
// immutable: mutations replace slices, never edit entries in place.
type Message struct {
	ID     uuid.UUID `json:"id" yaml:"id"`
	Sender Sender    `json:"sender" yaml:"sender"`
	Text   string    `json:"text" yaml:"text"`
	// Images are raw attachments, only carried by user messages.
	Images [][]byte  `json:"images,omitempty" yaml:"images,omitempty"`
	Model  string    `json:"model,omitempty" yaml:"model,omitempty"`
	Time   time.Time `json:"time" yaml:"time"`
	// Language is set on context messages produced by a language change.
	Language string `json:"language,omitempty" yaml:"language,omitempty"`
}

type MessageOption func(*Message)

func WithTime(t time.Time) MessageOption {
	return func(m *Message) {
		m.Time = t
	}
}

func WithID(id uuid.UUID) MessageOption {
	return func(m *Message) {
		m.ID = id
	}
}

func WithModel(model string) MessageOption {
	return func(m *Message) {
		m.Model = model
	}
}

func WithImages(images ...[]byte) MessageOption {
	return func(m *Message) {
		m.Images = append(m.Images, images...)
	}
}

func WithLanguage(code string) MessageOption {
	return func(m *Message) {
		m.Language = code
	}
}

func NewMessage(sender Sender, text string, options ...MessageOption) Message {
	ret := Message{
		ID:     uuid.New(),
		Sender: sender,
		Text:   text,
		Time:   time.Now(),
	}
	for _, o := range options {
		o(&ret)
	}
	return ret
}

func NewUserMessage(text string, images ...[]byte) Message {
	return NewMessage(SenderUser, text, WithImages(images...))
}

func NewAssistantMessage(model string, text string) Message {
	return NewMessage(SenderAssistant, text, WithModel(model))
}

func NewSystemErrorMessage(text string) Message {
	return NewMessage(SenderSystemError, text)
}

func NewContextMessage(text string) Message {
	return NewMessage(SenderContext, text)
}

func (m Message) IsDirective() bool {
	return m.Sender == SenderContext && m.Language != ""
}

// Validate checks the message can be committed to a conversation.
func (m Message) Validate() error {
	if m.ID == uuid.Nil {
		return &errdefs.ValidationError{Field: "id", Reason: "message id is empty"}
	}
	if !m.Sender.Valid() {
		return &errdefs.ValidationError{Field: "sender", Reason: fmt.Sprintf("unknown sender %q", m.Sender)}
	}
	if m.Sender == SenderTransient {
		return &errdefs.ValidationError{Field: "sender", Reason: "transient messages cannot be committed"}
	}
	if len(m.Images) > 0 && m.Sender != SenderUser {
		return &errdefs.ValidationError{Field: "images", Reason: "only user messages carry images"}
	}
	return nil
}

func (m Message) String() string {
	text := strings.TrimRight(m.Text, "\n")
	if m.Model != "" {
		return fmt.Sprintf("[%s/%s]: %s", m.Sender, m.Model, text)
	}
	return fmt.Sprintf("[%s]: %s", m.Sender, text)
}
