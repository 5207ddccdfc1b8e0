// Package fake provides a scripted in-memory gateway for tests.
package fake

import (
	"context"
	"sync"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

// ChatScript is the scripted answer to one Chat call. Chunks are delivered
// in order, then Err (if set) ends the stream. When Hold is set, the stream
// blocks after the chunks until Hold is closed or the context is cancelled.
type ChatScript struct {
	Chunks []string
	Err    error
	Hold   chan struct{}
	// StartErr fails the call itself before any streaming.
	StartErr error
}

type PullScript struct {
	Progress []gateway.PullProgress
	Err      error
	Hold     chan struct{}
	// Step paces the progress events: one receive per event.
	Step     chan struct{}
	StartErr error
}

type ChatCall struct {
	Model    string
	Messages []gateway.Message
}

// Gateway replays scripts in the order they were queued. Once the chat
// scripts are exhausted, Chat answers with an empty completed stream.
type Gateway struct {
	mu          sync.Mutex
	models      []gateway.ModelDescriptor
	listErr     error
	chatScripts []ChatScript
	pullScripts []PullScript
	chatCalls   []ChatCall
	pullCalls   []string
	listCalls   int
}

func New(models ...string) *Gateway {
	ret := &Gateway{}
	ret.SetModels(models...)
	return ret
}

func (g *Gateway) SetModels(models ...string) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.models = nil
	for _, m := range models {
		g.models = append(g.models, gateway.ParseModelName(m))
	}
}

func (g *Gateway) SetListError(err error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listErr = err
}

func (g *Gateway) QueueChat(scripts ...ChatScript) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.chatScripts = append(g.chatScripts, scripts...)
}

func (g *Gateway) QueuePull(scripts ...PullScript) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.pullScripts = append(g.pullScripts, scripts...)
}

func (g *Gateway) ChatCalls() []ChatCall {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]ChatCall{}, g.chatCalls...)
}

func (g *Gateway) PullCalls() []string {
	g.mu.Lock()
	defer g.mu.Unlock()
	return append([]string{}, g.pullCalls...)
}

func (g *Gateway) ListCalls() int {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.listCalls
}

func (g *Gateway) ListModels(ctx context.Context) ([]gateway.ModelDescriptor, error) {
	g.mu.Lock()
	defer g.mu.Unlock()
	g.listCalls++
	if g.listErr != nil {
		return nil, errdefs.NewGatewayError("list models", g.listErr)
	}
	return append([]gateway.ModelDescriptor{}, g.models...), nil
}

func (g *Gateway) Chat(ctx context.Context, model string, messages []gateway.Message) (<-chan helpers.Result[gateway.ChatChunk], error) {
	g.mu.Lock()
	g.chatCalls = append(g.chatCalls, ChatCall{Model: model, Messages: append([]gateway.Message{}, messages...)})
	script := ChatScript{}
	if len(g.chatScripts) > 0 {
		script = g.chatScripts[0]
		g.chatScripts = g.chatScripts[1:]
	}
	g.mu.Unlock()

	if script.StartErr != nil {
		return nil, errdefs.NewGatewayError("chat", script.StartErr)
	}

	c := make(chan helpers.Result[gateway.ChatChunk])
	go func() {
		defer close(c)
		for _, chunk := range script.Chunks {
			if !helpers.Send(ctx, c, helpers.NewValueResult(gateway.ChatChunk{Delta: chunk})) {
				return
			}
		}
		if script.Hold != nil {
			select {
			case <-script.Hold:
			case <-ctx.Done():
				helpers.Send(ctx, c, helpers.NewErrorResult[gateway.ChatChunk](errdefs.NewGatewayError("chat", ctx.Err())))
				return
			}
		}
		if script.Err != nil {
			helpers.Send(ctx, c, helpers.NewErrorResult[gateway.ChatChunk](errdefs.NewGatewayError("chat", script.Err)))
		}
	}()
	return c, nil
}

func (g *Gateway) Pull(ctx context.Context, name string) (<-chan helpers.Result[gateway.PullProgress], error) {
	g.mu.Lock()
	g.pullCalls = append(g.pullCalls, name)
	script := PullScript{}
	if len(g.pullScripts) > 0 {
		script = g.pullScripts[0]
		g.pullScripts = g.pullScripts[1:]
	}
	g.mu.Unlock()

	if script.StartErr != nil {
		return nil, errdefs.NewGatewayError("pull", script.StartErr)
	}

	c := make(chan helpers.Result[gateway.PullProgress])
	go func() {
		defer close(c)
		for _, p := range script.Progress {
			if script.Step != nil {
				select {
				case <-script.Step:
				case <-ctx.Done():
					return
				}
			}
			if !helpers.Send(ctx, c, helpers.NewValueResult(p)) {
				return
			}
		}
		if script.Hold != nil {
			select {
			case <-script.Hold:
			case <-ctx.Done():
				helpers.Send(ctx, c, helpers.NewErrorResult[gateway.PullProgress](errdefs.NewGatewayError("pull", ctx.Err())))
				return
			}
		}
		if script.Err != nil {
			helpers.Send(ctx, c, helpers.NewErrorResult[gateway.PullProgress](errdefs.NewGatewayError("pull", script.Err)))
		}
	}()
	return c, nil
}

var _ gateway.Gateway = &Gateway{}
