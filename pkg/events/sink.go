package events

import (
	"encoding/json"

	"github.com/ThreeDotsLabs/watermill"
	"github.com/ThreeDotsLabs/watermill/message"
	"github.com/rs/zerolog/log"
)

// DefaultTopic is the topic the chat manager publishes on unless configured otherwise.
const DefaultTopic = "grillo"

// EventSink represents a destination for conversation events.
type EventSink interface {
	PublishEvent(event Event) error
}

// NullSink discards every event.
type NullSink struct{}

func NewNullSink() *NullSink {
	return &NullSink{}
}

func (n *NullSink) PublishEvent(event Event) error {
	return nil
}

var _ EventSink = (*NullSink)(nil)

// WatermillSink publishes events as JSON messages to a watermill Publisher.
type WatermillSink struct {
	publisher message.Publisher
	topic     string
}

func NewWatermillSink(publisher message.Publisher, topic string) *WatermillSink {
	return &WatermillSink{
		publisher: publisher,
		topic:     topic,
	}
}

func (w *WatermillSink) PublishEvent(event Event) error {
	payload, err := json.Marshal(event)
	if err != nil {
		log.Error().Err(err).Msg("Failed to marshal event to JSON")
		return err
	}

	msg := message.NewMessage(watermill.NewUUID(), payload)
	err = w.publisher.Publish(w.topic, msg)
	if err != nil {
		log.Error().Err(err).Str("topic", w.topic).Msg("Failed to publish event to watermill")
		return err
	}

	log.Trace().Str("topic", w.topic).Str("event_type", string(event.Type())).Msg("Published event")
	return nil
}

var _ EventSink = (*WatermillSink)(nil)

// MultiSink fans an event out to several sinks, returning the first error.
type MultiSink []EventSink

func (m MultiSink) PublishEvent(event Event) error {
	var first error
	for _, s := range m {
		if err := s.PublishEvent(event); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Publish sends event to sink and only logs failures. Publishing is best
// effort: a failing subscriber never rolls back a committed state change.
func Publish(sink EventSink, event Event) {
	if sink == nil {
		return
	}
	if err := sink.PublishEvent(event); err != nil {
		log.Warn().Err(err).Str("event_type", string(event.Type())).Msg("failed to publish event")
	}
}
