package conversation

import (
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
)

// Conversation is one chat thread. The in-progress message of an open stream
// lives in Transient, beside the committed Messages, so formatting the history
// for a remote call never counts it twice.
type Conversation struct {
	ID        string    `json:"id" yaml:"id"`
	CreatedAt time.Time `json:"created_at" yaml:"created_at"`
	Messages  History   `json:"messages" yaml:"messages"`
	Transient *Message  `json:"transient,omitempty" yaml:"transient,omitempty"`
	// Version is incremented for every applied mutation.
	Version uint64 `json:"version" yaml:"version"`
}

func New() *Conversation {
	return &Conversation{
		ID:        uuid.NewString(),
		CreatedAt: time.Now(),
		Messages:  History{},
	}
}

// Clone copies the message slice and the transient. Committed messages are
// never edited in place, so their image attachments are shared with c.
func (c *Conversation) Clone() *Conversation {
	if c == nil {
		return nil
	}
	ret := *c
	ret.Messages = make(History, len(c.Messages))
	copy(ret.Messages, c.Messages)
	if c.Transient != nil {
		t := *c.Transient
		ret.Transient = &t
	}
	return &ret
}

func (c *Conversation) IsEmpty() bool {
	return len(c.Messages) == 0
}

// Apply applies a single mutation and increments the version. The
// conversation is left in an undefined state when the mutation fails; callers
// that need atomicity apply to a clone.
func (c *Conversation) Apply(m Mutation) error {
	if c == nil {
		return errors.New("conversation is nil")
	}
	if m == nil {
		return errors.New("mutation is nil")
	}
	if err := m.Apply(c); err != nil {
		return errors.Wrapf(err, "mutation %s failed", m.Name())
	}
	c.Version++
	return nil
}

func (c *Conversation) ApplyAll(muts ...Mutation) error {
	for _, m := range muts {
		if err := c.Apply(m); err != nil {
			return err
		}
	}
	return nil
}

// Title is the first level-1 heading of the first assistant answer.
func (c *Conversation) Title() string {
	for _, m := range c.Messages {
		if m.Sender == SenderAssistant {
			return ExtractTitle(m.Text)
		}
	}
	return ""
}

// Added returns the messages of c that are not present in previous.
func (c *Conversation) Added(previous *Conversation) History {
	if previous == nil {
		return append(History{}, c.Messages...)
	}
	ret := History{}
	for _, m := range c.Messages {
		if !previous.Messages.Contains(m) {
			ret = append(ret, m)
		}
	}
	return ret
}
