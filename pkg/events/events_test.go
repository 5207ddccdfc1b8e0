package events

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestNewEventFromJSONDecodesConcreteTypes(t *testing.T) {
	md := NewMetadata("c1").WithStream("s1", "llama2:latest")

	cases := []struct {
		name  string
		event Event
		check func(t *testing.T, ev Event)
	}{
		{
			name:  "partial",
			event: NewPartialCompletionEvent(md, "lo", "hello"),
			check: func(t *testing.T, ev Event) {
				p, ok := ev.(*EventPartialCompletion)
				require.True(t, ok)
				require.Equal(t, "lo", p.Delta)
				require.Equal(t, "hello", p.Completion)
			},
		},
		{
			name:  "error",
			event: NewErrorEvent(md, errors.New("connection refused")),
			check: func(t *testing.T, ev Event) {
				e, ok := ev.(*EventError)
				require.True(t, ok)
				require.Equal(t, "connection refused", e.ErrorString)
			},
		},
		{
			name:  "install progress",
			event: NewInstallProgressEvent(NewMetadata(""), "pulling", "sha256:abc", 250, 1000, 25, 125.5),
			check: func(t *testing.T, ev Event) {
				p, ok := ev.(*EventInstallProgress)
				require.True(t, ok)
				require.Equal(t, int64(25), p.Percentage)
				require.Equal(t, 125.5, p.BytesPerSecond)
			},
		},
		{
			name:  "committed",
			event: NewMessageCommittedEvent(md, "m1", "assistant", "# Title", 3),
			check: func(t *testing.T, ev Event) {
				c, ok := ev.(*EventMessageCommitted)
				require.True(t, ok)
				require.Equal(t, uint64(3), c.Version)
				require.Equal(t, "assistant", c.Sender)
			},
		},
	}

	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			b, err := json.Marshal(tc.event)
			require.NoError(t, err)

			ev, err := NewEventFromJSON(b)
			require.NoError(t, err)
			require.Equal(t, tc.event.Type(), ev.Type())
			require.Equal(t, tc.event.Metadata().ID, ev.Metadata().ID)
			require.Equal(t, b, ev.Payload())
			tc.check(t, ev)
		})
	}
}

func TestNewEventFromJSONUnknownType(t *testing.T) {
	ev, err := NewEventFromJSON([]byte(`{"type":"something-else","meta":{}}`))
	require.NoError(t, err)
	_, ok := ev.(*EventImpl)
	require.True(t, ok)

	_, err = NewEventFromJSON([]byte(`not json`))
	require.Error(t, err)
}

type recordingSink struct {
	mu     sync.Mutex
	events []Event
	err    error
}

func (r *recordingSink) PublishEvent(event Event) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.events = append(r.events, event)
	return r.err
}

func TestMultiSinkDeliversToAll(t *testing.T) {
	a := &recordingSink{err: errors.New("a failed")}
	b := &recordingSink{}
	err := MultiSink{a, b}.PublishEvent(NewStreamStartEvent(NewMetadata("c1")))
	require.EqualError(t, err, "a failed")
	require.Len(t, a.events, 1)
	require.Len(t, b.events, 1)

	Publish(nil, NewStreamStartEvent(NewMetadata("c1")))
	Publish(a, NewStreamStartEvent(NewMetadata("c1")))
	require.Len(t, a.events, 2)
}

func TestEventRouterDeliversEvents(t *testing.T) {
	router, err := NewEventRouter()
	require.NoError(t, err)

	received := make(chan Event, 4)
	router.AddEventHandler("test", DefaultTopic, func(ctx context.Context, ev Event) error {
		received <- ev
		return nil
	})

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- router.Run(ctx)
	}()
	<-router.Running()

	sink := router.Sink(DefaultTopic)
	require.NoError(t, sink.PublishEvent(NewFinalEvent(NewMetadata("c1"), "bonjour")))

	select {
	case ev := <-received:
		final, ok := ev.(*EventFinal)
		require.True(t, ok)
		require.Equal(t, "bonjour", final.Text)
		require.Equal(t, "c1", final.Metadata().ConversationID)
	case <-time.After(5 * time.Second):
		t.Fatal("event was not delivered")
	}

	cancel()
	require.NoError(t, router.Close())
	<-done
}
