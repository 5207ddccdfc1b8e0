// Package stream turns a chunk stream from the gateway into one committed
// message.
package stream

import (
	"context"
	"sync"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/session"
)

// Aggregator allows one open stream per conversation.
type Aggregator struct {
	store *session.Store
	sink  events.EventSink

	mu     sync.Mutex
	active map[string]*Handle

	// runs between the settled check and the transient update, set by tests
	beforeTransientCommit func(h *Handle)
}

type Option func(*Aggregator)

func WithEventSink(sink events.EventSink) Option {
	return func(a *Aggregator) {
		a.sink = sink
	}
}

func NewAggregator(store *session.Store, options ...Option) *Aggregator {
	ret := &Aggregator{
		store:  store,
		sink:   events.NewNullSink(),
		active: map[string]*Handle{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// Begin opens a stream for conversationID. It fails with a BusyError while
// another stream of the same conversation is open.
func (a *Aggregator) Begin(ctx context.Context, conversationID string, model string) (*Handle, error) {
	if _, err := a.store.Get(conversationID); err != nil {
		return nil, err
	}
	if ctx == nil {
		ctx = context.Background()
	}

	a.mu.Lock()
	if h, ok := a.active[conversationID]; ok && h.IsRunning() {
		a.mu.Unlock()
		return nil, &errdefs.BusyError{Operation: "stream", Target: conversationID}
	}
	streamCtx, cancel := context.WithCancel(ctx)
	h := &Handle{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		Model:          model,
		ctx:            streamCtx,
		cancel:         cancel,
		done:           make(chan struct{}),
		aggregator:     a,
	}
	a.active[conversationID] = h
	a.mu.Unlock()

	log.Debug().Str("conversation_id", conversationID).Str("stream_id", h.ID).Str("model", model).Msg("stream started")
	h.publish(events.NewStreamStartEvent(h.metadata()))
	return h, nil
}

func (a *Aggregator) release(h *Handle) {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.active[h.ConversationID] == h {
		delete(a.active, h.ConversationID)
	}
}

// Active returns the open stream of conversationID, if any.
func (a *Aggregator) Active(conversationID string) (*Handle, bool) {
	a.mu.Lock()
	defer a.mu.Unlock()
	h, ok := a.active[conversationID]
	return h, ok
}

func (a *Aggregator) IsStreaming(conversationID string) bool {
	h, ok := a.Active(conversationID)
	return ok && h.IsRunning()
}

// Cancel cancels the open stream of conversationID and reports whether there
// was one.
func (a *Aggregator) Cancel(conversationID string) bool {
	h, ok := a.Active(conversationID)
	if !ok {
		return false
	}
	h.Cancel()
	return true
}

func (a *Aggregator) handles() []*Handle {
	a.mu.Lock()
	defer a.mu.Unlock()
	ret := make([]*Handle, 0, len(a.active))
	for _, h := range a.active {
		ret = append(ret, h)
	}
	return ret
}

// CancelAll cancels every open stream.
func (a *Aggregator) CancelAll() {
	for _, h := range a.handles() {
		h.Cancel()
	}
}

// Wait blocks until every stream open at call time has settled.
func (a *Aggregator) Wait() {
	for _, h := range a.handles() {
		<-h.Done()
	}
}
