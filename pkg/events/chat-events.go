package events

import (
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"github.com/pkg/errors"
	"github.com/rs/zerolog"
)

type EventType string

const (
	// Session store
	EventTypeConversationCreated  EventType = "conversation-created"
	EventTypeConversationSwitched EventType = "conversation-switched"
	EventTypeMessageCommitted     EventType = "message-committed"

	// Language injector
	EventTypeDirectiveAdded  EventType = "directive-added"
	EventTypeLanguageChanged EventType = "language-changed"

	// Stream aggregator
	EventTypeStreamStart       EventType = "stream-start"
	EventTypePartialCompletion EventType = "partial"
	EventTypeFinal             EventType = "final"
	EventTypeError             EventType = "error"

	// Model catalog
	EventTypeModelsRefreshed EventType = "models-refreshed"
	EventTypeInstallProgress EventType = "install-progress"
	EventTypeInstallDone     EventType = "install-done"
	EventTypeInstallError    EventType = "install-error"
)

type Event interface {
	Type() EventType
	Metadata() EventMetadata
	Payload() []byte
}

// EventMetadata is carried by every event. ConversationID and StreamID are
// empty for events that are not tied to a conversation (catalog events).
type EventMetadata struct {
	ID             uuid.UUID `json:"event_id" yaml:"event_id"`
	ConversationID string    `json:"conversation_id,omitempty" yaml:"conversation_id,omitempty"`
	StreamID       string    `json:"stream_id,omitempty" yaml:"stream_id,omitempty"`
	Model          string    `json:"model,omitempty" yaml:"model,omitempty"`
	Time           time.Time `json:"time" yaml:"time"`
}

func NewMetadata(conversationID string) EventMetadata {
	return EventMetadata{
		ID:             uuid.New(),
		ConversationID: conversationID,
		Time:           time.Now(),
	}
}

func (em EventMetadata) WithStream(streamID string, model string) EventMetadata {
	em.StreamID = streamID
	em.Model = model
	return em
}

func (em EventMetadata) MarshalZerologObject(e *zerolog.Event) {
	e.Str("event_id", em.ID.String())
	if em.ConversationID != "" {
		e.Str("conversation_id", em.ConversationID)
	}
	if em.StreamID != "" {
		e.Str("stream_id", em.StreamID)
	}
	if em.Model != "" {
		e.Str("model", em.Model)
	}
}

type EventImpl struct {
	Type_     EventType     `json:"type"`
	Metadata_ EventMetadata `json:"meta"`

	// raw JSON when the event was decoded by NewEventFromJSON
	payload []byte
}

func (e *EventImpl) MarshalZerologObject(ev *zerolog.Event) {
	ev.Str("type", string(e.Type_))
	ev.Object("meta", e.Metadata_)
}

func (e *EventImpl) Type() EventType {
	return e.Type_
}

func (e *EventImpl) Metadata() EventMetadata {
	return e.Metadata_
}

func (e *EventImpl) Payload() []byte {
	return e.payload
}

func (e *EventImpl) SetPayload(b []byte) {
	e.payload = b
}

var _ Event = &EventImpl{}

func newImpl(t EventType, metadata EventMetadata) EventImpl {
	return EventImpl{Type_: t, Metadata_: metadata}
}

type EventConversationCreated struct {
	EventImpl
}

func NewConversationCreatedEvent(metadata EventMetadata) *EventConversationCreated {
	return &EventConversationCreated{EventImpl: newImpl(EventTypeConversationCreated, metadata)}
}

type EventConversationSwitched struct {
	EventImpl
	From string `json:"from,omitempty"`
}

func NewConversationSwitchedEvent(metadata EventMetadata, from string) *EventConversationSwitched {
	return &EventConversationSwitched{
		EventImpl: newImpl(EventTypeConversationSwitched, metadata),
		From:      from,
	}
}

type EventMessageCommitted struct {
	EventImpl
	MessageID string `json:"message_id"`
	Sender    string `json:"sender"`
	Text      string `json:"text"`
	Version   uint64 `json:"version"`
}

func NewMessageCommittedEvent(metadata EventMetadata, messageID, sender, text string, version uint64) *EventMessageCommitted {
	return &EventMessageCommitted{
		EventImpl: newImpl(EventTypeMessageCommitted, metadata),
		MessageID: messageID,
		Sender:    sender,
		Text:      text,
		Version:   version,
	}
}

type EventDirectiveAdded struct {
	EventImpl
	Language string `json:"language"`
	Text     string `json:"text"`
}

func NewDirectiveAddedEvent(metadata EventMetadata, language, text string) *EventDirectiveAdded {
	return &EventDirectiveAdded{
		EventImpl: newImpl(EventTypeDirectiveAdded, metadata),
		Language:  language,
		Text:      text,
	}
}

type EventLanguageChanged struct {
	EventImpl
	From string `json:"from"`
	To   string `json:"to"`
}

func NewLanguageChangedEvent(metadata EventMetadata, from, to string) *EventLanguageChanged {
	return &EventLanguageChanged{
		EventImpl: newImpl(EventTypeLanguageChanged, metadata),
		From:      from,
		To:        to,
	}
}

type EventStreamStart struct {
	EventImpl
}

func NewStreamStartEvent(metadata EventMetadata) *EventStreamStart {
	return &EventStreamStart{EventImpl: newImpl(EventTypeStreamStart, metadata)}
}

type EventPartialCompletion struct {
	EventImpl
	Delta string `json:"delta"`
	// Completion is the concatenation of every delta received so far.
	Completion string `json:"completion"`
}

func NewPartialCompletionEvent(metadata EventMetadata, delta string, completion string) *EventPartialCompletion {
	return &EventPartialCompletion{
		EventImpl:  newImpl(EventTypePartialCompletion, metadata),
		Delta:      delta,
		Completion: completion,
	}
}

type EventFinal struct {
	EventImpl
	Text string `json:"text"`
}

func NewFinalEvent(metadata EventMetadata, text string) *EventFinal {
	return &EventFinal{
		EventImpl: newImpl(EventTypeFinal, metadata),
		Text:      text,
	}
}

type EventError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewErrorEvent(metadata EventMetadata, err error) *EventError {
	ret := &EventError{EventImpl: newImpl(EventTypeError, metadata)}
	if err != nil {
		ret.ErrorString = err.Error()
	}
	return ret
}

type EventModelsRefreshed struct {
	EventImpl
	Models      []string `json:"models"`
	ErrorString string   `json:"error_string,omitempty"`
}

func NewModelsRefreshedEvent(metadata EventMetadata, models []string, err error) *EventModelsRefreshed {
	ret := &EventModelsRefreshed{
		EventImpl: newImpl(EventTypeModelsRefreshed, metadata),
		Models:    models,
	}
	if err != nil {
		ret.ErrorString = err.Error()
	}
	return ret
}

type EventInstallProgress struct {
	EventImpl
	Status         string  `json:"status,omitempty"`
	Digest         string  `json:"digest,omitempty"`
	Completed      int64   `json:"completed"`
	Total          int64   `json:"total"`
	Percentage     int64   `json:"percentage"`
	BytesPerSecond float64 `json:"bytes_per_second"`
}

func NewInstallProgressEvent(metadata EventMetadata, status, digest string, completed, total, percentage int64, bytesPerSecond float64) *EventInstallProgress {
	return &EventInstallProgress{
		EventImpl:      newImpl(EventTypeInstallProgress, metadata),
		Status:         status,
		Digest:         digest,
		Completed:      completed,
		Total:          total,
		Percentage:     percentage,
		BytesPerSecond: bytesPerSecond,
	}
}

type EventInstallDone struct {
	EventImpl
}

func NewInstallDoneEvent(metadata EventMetadata) *EventInstallDone {
	return &EventInstallDone{EventImpl: newImpl(EventTypeInstallDone, metadata)}
}

type EventInstallError struct {
	EventImpl
	ErrorString string `json:"error_string"`
}

func NewInstallErrorEvent(metadata EventMetadata, err error) *EventInstallError {
	ret := &EventInstallError{EventImpl: newImpl(EventTypeInstallError, metadata)}
	if err != nil {
		ret.ErrorString = err.Error()
	}
	return ret
}

var (
	_ Event = &EventConversationCreated{}
	_ Event = &EventConversationSwitched{}
	_ Event = &EventMessageCommitted{}
	_ Event = &EventDirectiveAdded{}
	_ Event = &EventLanguageChanged{}
	_ Event = &EventStreamStart{}
	_ Event = &EventPartialCompletion{}
	_ Event = &EventFinal{}
	_ Event = &EventError{}
	_ Event = &EventModelsRefreshed{}
	_ Event = &EventInstallProgress{}
	_ Event = &EventInstallDone{}
	_ Event = &EventInstallError{}
)

func ToTypedEvent[T any](b []byte) (*T, error) {
	var ret *T
	if err := json.Unmarshal(b, &ret); err != nil {
		return nil, err
	}
	if ret == nil {
		return nil, errors.New("empty event payload")
	}
	return ret, nil
}

type decoder func(b []byte) (Event, error)

func typed[T any, P interface {
	*T
	Event
	SetPayload([]byte)
}](b []byte) (Event, error) {
	ret, err := ToTypedEvent[T](b)
	if err != nil {
		return nil, err
	}
	p := P(ret)
	p.SetPayload(b)
	return p, nil
}

var decoders = map[EventType]decoder{
	EventTypeConversationCreated:  typed[EventConversationCreated],
	EventTypeConversationSwitched: typed[EventConversationSwitched],
	EventTypeMessageCommitted:     typed[EventMessageCommitted],
	EventTypeDirectiveAdded:       typed[EventDirectiveAdded],
	EventTypeLanguageChanged:      typed[EventLanguageChanged],
	EventTypeStreamStart:          typed[EventStreamStart],
	EventTypePartialCompletion:    typed[EventPartialCompletion],
	EventTypeFinal:                typed[EventFinal],
	EventTypeError:                typed[EventError],
	EventTypeModelsRefreshed:      typed[EventModelsRefreshed],
	EventTypeInstallProgress:      typed[EventInstallProgress],
	EventTypeInstallDone:          typed[EventInstallDone],
	EventTypeInstallError:         typed[EventInstallError],
}

// NewEventFromJSON decodes a serialized event into its concrete type. Unknown
// types decode into a plain *EventImpl.
func NewEventFromJSON(b []byte) (Event, error) {
	var e *EventImpl
	if err := json.Unmarshal(b, &e); err != nil {
		return nil, errors.Wrap(err, "could not decode event")
	}
	if e == nil {
		return nil, errors.New("empty event payload")
	}
	e.payload = b

	dec, ok := decoders[e.Type_]
	if !ok {
		return e, nil
	}
	ret, err := dec(b)
	if err != nil {
		return nil, errors.Wrapf(err, "could not decode %s event", e.Type_)
	}
	return ret, nil
}
