// Package gateway defines the contract with the remote completion service.
//
// Adapters live in subpackages: ollama talks to an Ollama server, openai to
// any OpenAI-compatible endpoint, and fake replays scripted streams in tests.
package gateway

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

type Role string

const (
	RoleUser      Role = "user"
	RoleAssistant Role = "assistant"
)

type Message struct {
	Role    Role
	Content string
	Images  [][]byte
}

// ChatChunk is one increment of a streamed answer.
type ChatChunk struct {
	Delta string
}

// PullProgress is one progress report of a model download. Total and
// Completed are zero for status-only reports.
type PullProgress struct {
	Status    string
	Digest    string
	Total     int64
	Completed int64
}

func (p PullProgress) HasBytes() bool {
	return p.Total > 0
}

const DefaultTag = "latest"

type ModelDescriptor struct {
	Name       string    `json:"name" yaml:"name"`
	Tag        string    `json:"tag" yaml:"tag"`
	Size       int64     `json:"size,omitempty" yaml:"size,omitempty"`
	ModifiedAt time.Time `json:"modified_at,omitempty" yaml:"modified_at,omitempty"`
}

func (m ModelDescriptor) FullName() string {
	return fmt.Sprintf("%s:%s", m.Name, m.Tag)
}

// ParseModelName splits `name[:tag]`, defaulting the tag to latest. Registry
// hosts with ports (host:port/name:tag) keep their colon in the name.
func ParseModelName(s string) ModelDescriptor {
	s = strings.TrimSpace(s)
	idx := strings.LastIndex(s, ":")
	if idx < 0 || strings.Contains(s[idx+1:], "/") {
		return ModelDescriptor{Name: s, Tag: DefaultTag}
	}
	name, tag := s[:idx], s[idx+1:]
	if tag == "" {
		tag = DefaultTag
	}
	return ModelDescriptor{Name: name, Tag: tag}
}

// Gateway is the remote completion service. Streams are finite and not
// restartable: the channel closes on completion, and a result carrying an
// error is the last item sent on failure. Cancelling ctx ends the stream.
type Gateway interface {
	ListModels(ctx context.Context) ([]ModelDescriptor, error)
	Chat(ctx context.Context, model string, messages []Message) (<-chan helpers.Result[ChatChunk], error)
	Pull(ctx context.Context, name string) (<-chan helpers.Result[PullProgress], error)
}

// MessagesFromHistory formats a conversation history for a chat call. Context
// messages are sent with the user role since the contract only knows user and
// assistant. System errors are dropped.
func MessagesFromHistory(history conversation.History) []Message {
	ret := []Message{}
	for _, m := range history.Submittable() {
		switch m.Sender {
		case conversation.SenderUser:
			ret = append(ret, Message{Role: RoleUser, Content: m.Text, Images: m.Images})
		case conversation.SenderAssistant:
			ret = append(ret, Message{Role: RoleAssistant, Content: m.Text})
		case conversation.SenderContext:
			ret = append(ret, Message{Role: RoleUser, Content: m.Text})
		case conversation.SenderSystemError, conversation.SenderTransient:
		}
	}
	return ret
}
