package conversation

import (
	"github.com/pkg/errors"
)

// Mutation represents a deterministic change to a conversation.
type Mutation interface {
	Apply(c *Conversation) error
	Name() string
}

type appendMessageMutation struct {
	message Message
}

func (m appendMessageMutation) Apply(c *Conversation) error {
	if err := m.message.Validate(); err != nil {
		return err
	}
	c.Messages = append(c.Messages, m.message)
	return nil
}

func (m appendMessageMutation) Name() string { return "append_message" }

// MutateAppendMessage appends a committed message at the end of the history.
func MutateAppendMessage(message Message) Mutation {
	return appendMessageMutation{message: message}
}

type prependMessageMutation struct {
	message Message
}

func (m prependMessageMutation) Apply(c *Conversation) error {
	if err := m.message.Validate(); err != nil {
		return err
	}
	messages := make(History, 0, len(c.Messages)+1)
	messages = append(messages, m.message)
	c.Messages = append(messages, c.Messages...)
	return nil
}

func (m prependMessageMutation) Name() string { return "prepend_message" }

// MutatePrependMessage inserts a message at the front of the history.
func MutatePrependMessage(message Message) Mutation {
	return prependMessageMutation{message: message}
}

// MutatePrependDirective inserts a language directive at the front of the history.
func MutatePrependDirective(language string, text string) Mutation {
	return prependMessageMutation{message: NewMessage(SenderContext, text, WithLanguage(language))}
}

type setTransientMutation struct {
	model string
	text  string
}

func (m setTransientMutation) Apply(c *Conversation) error {
	if c.Transient != nil {
		t := *c.Transient
		t.Text = m.text
		t.Model = m.model
		c.Transient = &t
		return nil
	}
	t := NewMessage(SenderTransient, m.text, WithModel(m.model))
	c.Transient = &t
	return nil
}

func (m setTransientMutation) Name() string { return "set_transient" }

// MutateSetTransient replaces the in-progress text. The transient keeps its id
// across updates.
func MutateSetTransient(model string, text string) Mutation {
	return setTransientMutation{model: model, text: text}
}

type clearTransientMutation struct{}

func (m clearTransientMutation) Apply(c *Conversation) error {
	c.Transient = nil
	return nil
}

func (m clearTransientMutation) Name() string { return "clear_transient" }

func MutateClearTransient() Mutation {
	return clearTransientMutation{}
}

type finalizeMutation struct {
	message Message
}

func (m finalizeMutation) Apply(c *Conversation) error {
	if m.message.Sender != SenderAssistant && m.message.Sender != SenderSystemError {
		return errors.Errorf("cannot finalize a stream with a %s message", m.message.Sender)
	}
	if err := m.message.Validate(); err != nil {
		return err
	}
	c.Messages = append(c.Messages, m.message)
	c.Transient = nil
	return nil
}

func (m finalizeMutation) Name() string { return "finalize" }

// MutateFinalize commits the outcome of a stream and clears the transient in
// one step.
func MutateFinalize(message Message) Mutation {
	return finalizeMutation{message: message}
}

type pruneDirectivesMutation struct {
	keep int
}

func (m pruneDirectivesMutation) Apply(c *Conversation) error {
	if m.keep <= 0 {
		return nil
	}
	seen := 0
	messages := make(History, 0, len(c.Messages))
	for _, msg := range c.Messages {
		if msg.IsDirective() {
			seen++
			if seen > m.keep {
				continue
			}
		}
		messages = append(messages, msg)
	}
	c.Messages = messages
	return nil
}

func (m pruneDirectivesMutation) Name() string { return "prune_directives" }

// MutatePruneDirectives keeps the first keep language directives, which are
// the most recent ones since directives are prepended. keep <= 0 is a no-op.
func MutatePruneDirectives(keep int) Mutation {
	return pruneDirectivesMutation{keep: keep}
}
