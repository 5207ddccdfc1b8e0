// Package chat composes the session store, the stream aggregator, the
// language injector and the model catalog into the operations a chat surface
// needs.
package chat

import (
	"context"
	"strings"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/catalog"
	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/language"
	"github.com/go-go-golems/grillo/pkg/session"
	"github.com/go-go-golems/grillo/pkg/settings"
	"github.com/go-go-golems/grillo/pkg/stream"
)

type Manager struct {
	gateway  gateway.Gateway
	settings *settings.Settings
	sink     events.EventSink

	store      *session.Store
	aggregator *stream.Aggregator
	injector   *language.Injector
	catalog    *catalog.Catalog
}

type Option func(*Manager)

// WithEventSink sets the sink every component publishes to.
func WithEventSink(sink events.EventSink) Option {
	return func(m *Manager) {
		m.sink = sink
	}
}

func NewManager(gw gateway.Gateway, s *settings.Settings, options ...Option) (*Manager, error) {
	if gw == nil {
		return nil, errors.New("gateway is required")
	}
	if s == nil {
		s = settings.NewSettings()
	}
	if err := s.Validate(); err != nil {
		return nil, err
	}

	ret := &Manager{
		gateway:  gw,
		settings: s.Clone(),
		sink:     events.NewNullSink(),
	}
	for _, o := range options {
		o(ret)
	}

	ret.store = session.NewStore(session.WithEventSink(ret.sink))
	ret.aggregator = stream.NewAggregator(ret.store, stream.WithEventSink(ret.sink))

	injectorOptions := []language.Option{
		language.WithEventSink(ret.sink),
		language.WithDefaultLanguage(ret.settings.Chat.DefaultLanguage),
		language.WithMaxDirectives(ret.settings.Chat.MaxDirectives),
	}
	if ret.settings.Chat.DirectiveTemplate != "" {
		injectorOptions = append(injectorOptions, language.WithDirectiveTemplate(ret.settings.Chat.DirectiveTemplate))
	}
	injector, err := language.NewInjector(ret.store, injectorOptions...)
	if err != nil {
		return nil, err
	}
	ret.injector = injector

	ret.catalog = catalog.New(gw,
		catalog.WithEventSink(ret.sink),
		catalog.WithSelectedModel(ret.settings.Chat.DefaultModel),
	)

	return ret, nil
}

func (m *Manager) Store() *session.Store {
	return m.store
}

func (m *Manager) Catalog() *catalog.Catalog {
	return m.catalog
}

func (m *Manager) Language() language.Language {
	return m.injector.Current()
}

// SendMessage appends a user message to the active conversation, creating one
// if needed, and starts streaming the answer of the selected model. The
// returned handle settles once the answer (or a system-error message) is
// committed.
//
// A gateway that fails to start the stream settles the handle with a
// system-error message; the error is only returned when nothing was sent.
func (m *Manager) SendMessage(ctx context.Context, text string, images ...[]byte) (*stream.Handle, error) {
	if strings.TrimSpace(text) == "" {
		return nil, &errdefs.ValidationError{Field: "text", Reason: "message is empty"}
	}
	model := m.catalog.Selected()
	if model == "" {
		return nil, &errdefs.ValidationError{Field: "model", Reason: "no model selected"}
	}
	message := conversation.NewUserMessage(text, images...)
	if err := message.Validate(); err != nil {
		return nil, err
	}

	id := m.store.EnsureActive()

	// opening the stream first makes the busy check and the append atomic with
	// respect to other sends on the same conversation
	h, err := m.aggregator.Begin(ctx, id, model)
	if err != nil {
		return nil, err
	}
	if err := m.store.AppendMessage(id, message); err != nil {
		h.Cancel()
		_, _ = h.Wait()
		return nil, err
	}

	c, err := m.store.Get(id)
	if err != nil {
		h.Fail(err)
		return h, nil
	}
	history := c.Messages.Submittable()

	if n, err := conversation.EstimateTokens(history); err == nil {
		log.Debug().
			Str("conversation_id", id).
			Str("model", model).
			Int("messages", len(history)).
			Int("estimated_tokens", n).
			Msg("sending conversation")
	} else {
		log.Warn().Err(err).Msg("could not estimate tokens")
	}

	chunks, err := m.gateway.Chat(h.Context(), model, gateway.MessagesFromHistory(history))
	if err != nil {
		h.Fail(errdefs.NewGatewayError("chat", err))
		return h, nil
	}
	if err := h.Consume(chunks); err != nil {
		h.Fail(err)
	}
	return h, nil
}

// NewConversation reuses an empty conversation or creates one.
func (m *Manager) NewConversation() string {
	previous := m.store.ActiveID()
	id := m.store.ResetOrReuse()
	m.cancelOnSwitch(previous, id)
	return id
}

func (m *Manager) SwitchTo(id string) error {
	previous := m.store.ActiveID()
	if err := m.store.SwitchTo(id); err != nil {
		return err
	}
	m.cancelOnSwitch(previous, id)
	return nil
}

func (m *Manager) SwitchToLast() (string, error) {
	previous := m.store.ActiveID()
	id, err := m.store.SwitchToLast()
	if err != nil {
		return "", err
	}
	m.cancelOnSwitch(previous, id)
	return id, nil
}

func (m *Manager) cancelOnSwitch(previous, next string) {
	if !m.settings.Chat.CancelOnSwitch || previous == "" || previous == next {
		return
	}
	if m.aggregator.Cancel(previous) {
		log.Debug().Str("conversation_id", previous).Msg("cancelled stream on switch")
	}
}

// ChangeLanguage returns the id of the conversation that received the
// directive.
func (m *Manager) ChangeLanguage(code string) (string, error) {
	return m.injector.ChangeLanguage(code)
}

func (m *Manager) AddContext(text string) error {
	return m.injector.AddContext(text)
}

func (m *Manager) ListModels(ctx context.Context) []gateway.ModelDescriptor {
	return m.catalog.ListModels(ctx)
}

func (m *Manager) SelectModel(name string) {
	m.catalog.SelectModel(name)
}

func (m *Manager) InstallModel(ctx context.Context, name string) (*catalog.Installation, error) {
	return m.catalog.InstallModel(ctx, name)
}

// Cancel cancels the stream of conversationID and reports whether one was
// open.
func (m *Manager) Cancel(conversationID string) bool {
	return m.aggregator.Cancel(conversationID)
}

func (m *Manager) IsStreaming(conversationID string) bool {
	return m.aggregator.IsStreaming(conversationID)
}

// Transcript returns the user-visible messages of conversation id.
func (m *Manager) Transcript(id string) (conversation.History, error) {
	c, err := m.store.Get(id)
	if err != nil {
		return nil, err
	}
	return c.Messages.Transcript(), nil
}

func (m *Manager) Conversations() []*conversation.Conversation {
	return m.store.List()
}

// Close cancels every open stream and install and waits for them to settle.
func (m *Manager) Close() {
	m.aggregator.CancelAll()
	m.aggregator.Wait()
	if inst, ok := m.catalog.Installing(); ok {
		inst.Cancel()
		_ = inst.Wait()
	}
}
