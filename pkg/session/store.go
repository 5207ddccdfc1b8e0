// Package session holds the set of conversations and the active pointer.
//
// Every change to a conversation goes through Store.Mutate, which computes the
// next state from the latest committed state while holding the store lock.
// Mutations are applied to a copy that replaces the stored conversation only
// when every mutation succeeded.
package session

import (
	"sync"

	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/events"
)

type Store struct {
	mu            sync.RWMutex
	conversations map[string]*conversation.Conversation
	// creation order
	order    []string
	activeID string

	// taken before mu is released so events go out in commit order
	publishMu sync.Mutex
	sink      events.EventSink
}

type Option func(*Store)

// WithEventSink sets the sink store events are published to. Publishing is
// synchronous and serialized, so the sink must not call methods that change
// the store before returning.
func WithEventSink(sink events.EventSink) Option {
	return func(s *Store) {
		s.sink = sink
	}
}

func NewStore(options ...Option) *Store {
	ret := &Store{
		conversations: map[string]*conversation.Conversation{},
		sink:          events.NewNullSink(),
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

func snapshot(c *conversation.Conversation) *conversation.Conversation {
	return c.Clone()
}

// unlockAndPublish releases mu and publishes evs. Events of successive
// commits are published in the order the commits happened.
func (s *Store) unlockAndPublish(evs []events.Event) {
	if len(evs) == 0 {
		s.mu.Unlock()
		return
	}
	s.publishMu.Lock()
	defer s.publishMu.Unlock()
	s.mu.Unlock()
	for _, ev := range evs {
		events.Publish(s.sink, ev)
	}
}

// must be called with the lock held
func (s *Store) createLocked() (string, []events.Event) {
	c := conversation.New()
	s.conversations[c.ID] = c
	s.order = append(s.order, c.ID)
	evs := []events.Event{events.NewConversationCreatedEvent(events.NewMetadata(c.ID))}
	return c.ID, append(evs, s.activateLocked(c.ID)...)
}

// must be called with the lock held
func (s *Store) activateLocked(id string) []events.Event {
	if s.activeID == id {
		return nil
	}
	from := s.activeID
	s.activeID = id
	return []events.Event{events.NewConversationSwitchedEvent(events.NewMetadata(id), from)}
}

// CreateConversation creates an empty conversation and makes it active.
func (s *Store) CreateConversation() string {
	s.mu.Lock()
	id, evs := s.createLocked()
	log.Debug().Str("conversation_id", id).Msg("created conversation")
	s.unlockAndPublish(evs)
	return id
}

// ResetOrReuse activates an existing empty conversation instead of creating a
// new one. The active conversation is preferred, then the most recently
// created empty one.
func (s *Store) ResetOrReuse() string {
	s.mu.Lock()
	var (
		id  string
		evs []events.Event
	)
	if c, ok := s.conversations[s.activeID]; ok && c.IsEmpty() {
		id = c.ID
	} else {
		for i := len(s.order) - 1; i >= 0; i-- {
			if s.conversations[s.order[i]].IsEmpty() {
				id = s.order[i]
				break
			}
		}
		if id != "" {
			evs = s.activateLocked(id)
		} else {
			id, evs = s.createLocked()
		}
	}
	s.unlockAndPublish(evs)
	return id
}

// EnsureActive returns the active conversation id, creating one when none is
// active.
func (s *Store) EnsureActive() string {
	s.mu.Lock()
	if s.activeID != "" {
		id := s.activeID
		s.mu.Unlock()
		return id
	}
	id, evs := s.createLocked()
	s.unlockAndPublish(evs)
	return id
}

// SwitchTo activates id. Unknown ids leave the active conversation unchanged.
func (s *Store) SwitchTo(id string) error {
	s.mu.Lock()
	if _, ok := s.conversations[id]; !ok {
		s.mu.Unlock()
		return &errdefs.NotFoundError{Resource: "conversation", ID: id}
	}
	evs := s.activateLocked(id)
	s.unlockAndPublish(evs)
	return nil
}

// SwitchToLast activates the most recently created conversation.
func (s *Store) SwitchToLast() (string, error) {
	s.mu.Lock()
	if len(s.order) == 0 {
		s.mu.Unlock()
		return "", &errdefs.NotFoundError{Resource: "conversation"}
	}
	id := s.order[len(s.order)-1]
	evs := s.activateLocked(id)
	s.unlockAndPublish(evs)
	return id, nil
}

// Mutate applies mutations to conversation id atomically and returns a
// snapshot of the result. If any mutation fails, the conversation is left
// unchanged.
func (s *Store) Mutate(id string, mutations ...conversation.Mutation) (*conversation.Conversation, error) {
	s.mu.Lock()
	current, ok := s.conversations[id]
	if !ok {
		s.mu.Unlock()
		return nil, &errdefs.NotFoundError{Resource: "conversation", ID: id}
	}

	next := snapshot(current)
	if err := next.ApplyAll(mutations...); err != nil {
		s.mu.Unlock()
		return nil, err
	}
	s.conversations[id] = next

	evs := []events.Event{}
	for _, m := range next.Added(current) {
		evs = append(evs, events.NewMessageCommittedEvent(
			events.NewMetadata(id), m.ID.String(), string(m.Sender), m.Text, next.Version,
		))
	}
	ret := snapshot(next)

	if len(evs) > 0 {
		log.Trace().Str("conversation_id", id).Int("committed", len(evs)).Uint64("version", ret.Version).Msg("committed messages")
	}
	s.unlockAndPublish(evs)
	return ret, nil
}

func (s *Store) AppendMessage(id string, message conversation.Message) error {
	_, err := s.Mutate(id, conversation.MutateAppendMessage(message))
	return err
}

func (s *Store) Get(id string) (*conversation.Conversation, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[id]
	if !ok {
		return nil, &errdefs.NotFoundError{Resource: "conversation", ID: id}
	}
	return snapshot(c), nil
}

func (s *Store) ActiveID() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.activeID
}

// Active returns a snapshot of the active conversation.
func (s *Store) Active() (*conversation.Conversation, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	c, ok := s.conversations[s.activeID]
	if !ok {
		return nil, false
	}
	return snapshot(c), true
}

// List returns snapshots of every conversation in creation order.
func (s *Store) List() []*conversation.Conversation {
	s.mu.RLock()
	defer s.mu.RUnlock()
	ret := make([]*conversation.Conversation, 0, len(s.order))
	for _, id := range s.order {
		ret = append(ret, snapshot(s.conversations[id]))
	}
	return ret
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.order)
}
