package stream

import (
	"context"
	"strings"
	"sync"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/conversation"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

var (
	ErrHandleNil      = errors.New("stream handle is nil")
	ErrStreamCanceled = errors.New("response cancelled")
)

// Handle is one in-flight stream. It settles exactly once, committing either
// the assistant message or a system-error message, and the transient is
// cleared in the same mutation.
type Handle struct {
	ID             string
	ConversationID string
	Model          string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}

	aggregator *Aggregator

	// held across the settled check and the store mutation of every commit,
	// so no transient update can land after the outcome
	commitMu sync.Mutex

	mu        sync.Mutex
	consuming bool
	settled   bool
	builder   strings.Builder
	message   conversation.Message
	err       error
}

// Context is cancelled when the handle is cancelled. Gateway calls feeding
// the handle must use it so their goroutines exit with the stream.
func (h *Handle) Context() context.Context {
	return h.ctx
}

// Text returns the concatenation of every chunk received so far.
func (h *Handle) Text() string {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.builder.String()
}

func (h *Handle) Done() <-chan struct{} {
	return h.done
}

// Cancel stops the stream. It is safe to call multiple times, and after the
// stream settled. A handle that is not consuming yet settles right away.
func (h *Handle) Cancel() {
	if h == nil {
		return
	}
	h.cancel()

	h.mu.Lock()
	consuming := h.consuming
	h.mu.Unlock()
	if !consuming {
		h.settle(ErrStreamCanceled)
	}
}

func (h *Handle) IsRunning() bool {
	if h == nil {
		return false
	}
	select {
	case <-h.done:
		return false
	default:
		return true
	}
}

// Wait blocks until the stream settled and returns the committed message.
// The error is nil when the assistant message was committed.
func (h *Handle) Wait() (conversation.Message, error) {
	if h == nil {
		return conversation.Message{}, ErrHandleNil
	}
	<-h.done
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.message, h.err
}

// Consume reads chunks until the channel closes (completion), an error result
// arrives (failure), or the handle is cancelled. It returns immediately; use
// Wait or Done to observe the outcome.
func (h *Handle) Consume(chunks <-chan helpers.Result[gateway.ChatChunk]) error {
	h.mu.Lock()
	if h.consuming || h.settled {
		h.mu.Unlock()
		return errors.Errorf("stream %s is already consuming", h.ID)
	}
	h.consuming = true
	h.mu.Unlock()

	go h.run(chunks)
	return nil
}

// Fail settles the stream with err. Used when the gateway call fails before
// any chunk is delivered.
func (h *Handle) Fail(err error) {
	if err == nil {
		err = errors.New("stream failed")
	}
	h.settle(err)
}

func (h *Handle) metadata() events.EventMetadata {
	return events.NewMetadata(h.ConversationID).WithStream(h.ID, h.Model)
}

// publish sends ev to the aggregator sink and to the sinks attached to the
// context the stream was started with.
func (h *Handle) publish(ev events.Event) {
	events.Publish(h.aggregator.sink, ev)
	events.PublishEventToContext(h.ctx, ev)
}

func (h *Handle) run(chunks <-chan helpers.Result[gateway.ChatChunk]) {
	for {
		select {
		case <-h.ctx.Done():
			h.settle(ErrStreamCanceled)
			return
		case r, ok := <-chunks:
			if !ok {
				h.settle(nil)
				return
			}
			chunk, err := r.Value()
			if err != nil {
				if h.ctx.Err() != nil {
					err = ErrStreamCanceled
				}
				h.settle(err)
				return
			}
			h.append(chunk.Delta)
		}
	}
}

func (h *Handle) append(delta string) {
	h.commitMu.Lock()
	defer h.commitMu.Unlock()

	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		return
	}
	h.builder.WriteString(delta)
	completion := h.builder.String()
	h.mu.Unlock()

	if hook := h.aggregator.beforeTransientCommit; hook != nil {
		hook(h)
	}
	_, err := h.aggregator.store.Mutate(h.ConversationID, conversation.MutateSetTransient(h.Model, completion))
	if err != nil {
		log.Warn().Err(err).Str("conversation_id", h.ConversationID).Str("stream_id", h.ID).Msg("could not update transient")
	}
	h.publish(events.NewPartialCompletionEvent(h.metadata(), delta, completion))
}

func (h *Handle) settle(cause error) {
	h.commitMu.Lock()
	h.mu.Lock()
	if h.settled {
		h.mu.Unlock()
		h.commitMu.Unlock()
		return
	}
	h.settled = true
	text := h.builder.String()
	h.mu.Unlock()

	var message conversation.Message
	if cause == nil {
		message = conversation.NewAssistantMessage(h.Model, text)
	} else {
		message = conversation.NewSystemErrorMessage("Error: " + cause.Error())
	}

	_, err := h.aggregator.store.Mutate(h.ConversationID, conversation.MutateFinalize(message))
	h.commitMu.Unlock()
	if err != nil {
		log.Error().Err(err).Str("conversation_id", h.ConversationID).Str("stream_id", h.ID).Msg("could not commit stream outcome")
		if cause == nil {
			cause = err
		}
	}

	if cause == nil {
		log.Debug().Str("conversation_id", h.ConversationID).Str("stream_id", h.ID).Int("length", len(text)).Msg("stream completed")
		h.publish(events.NewFinalEvent(h.metadata(), text))
	} else {
		log.Debug().Err(cause).Str("conversation_id", h.ConversationID).Str("stream_id", h.ID).Msg("stream failed")
		h.publish(events.NewErrorEvent(h.metadata(), cause))
	}

	h.mu.Lock()
	h.message = message
	h.err = cause
	h.mu.Unlock()

	h.aggregator.release(h)
	h.cancel()
	close(h.done)
}
