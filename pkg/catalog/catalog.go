// Package catalog lists the models of the gateway, tracks the selected one and
// drives model installs.
package catalog

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"

	"github.com/go-go-golems/grillo/pkg/errdefs"
	"github.com/go-go-golems/grillo/pkg/events"
	"github.com/go-go-golems/grillo/pkg/gateway"
	"github.com/go-go-golems/grillo/pkg/helpers"
)

type Catalog struct {
	gateway gateway.Gateway
	sink    events.EventSink
	now     func() time.Time

	mu       sync.Mutex
	models   []gateway.ModelDescriptor
	loading  bool
	err      error
	selected string

	installing *Installation
	progress   *Progress
}

type Option func(*Catalog)

func WithEventSink(sink events.EventSink) Option {
	return func(c *Catalog) {
		c.sink = sink
	}
}

// WithClock replaces time.Now for throughput computations.
func WithClock(now func() time.Time) Option {
	return func(c *Catalog) {
		c.now = now
	}
}

func WithSelectedModel(name string) Option {
	return func(c *Catalog) {
		c.selected = name
	}
}

func New(gw gateway.Gateway, options ...Option) *Catalog {
	ret := &Catalog{
		gateway: gw,
		sink:    events.NewNullSink(),
		now:     time.Now,
		models:  []gateway.ModelDescriptor{},
	}
	for _, o := range options {
		o(ret)
	}
	return ret
}

// ListModels refreshes the catalog from the gateway. Failures are recorded in
// Err and leave an empty list; they are never returned.
func (c *Catalog) ListModels(ctx context.Context) []gateway.ModelDescriptor {
	c.mu.Lock()
	c.loading = true
	c.err = nil
	c.mu.Unlock()

	models, err := c.gateway.ListModels(ctx)
	if models == nil {
		models = []gateway.ModelDescriptor{}
	}

	c.mu.Lock()
	c.loading = false
	if err != nil {
		log.Warn().Err(err).Msg("could not list models")
		c.err = errdefs.NewGatewayError("list models", err)
		c.models = []gateway.ModelDescriptor{}
	} else {
		c.models = models
	}
	ret := append([]gateway.ModelDescriptor{}, c.models...)
	listErr := c.err
	c.mu.Unlock()

	names := make([]string, 0, len(ret))
	for _, m := range ret {
		names = append(names, m.FullName())
	}
	events.Publish(c.sink, events.NewModelsRefreshedEvent(events.NewMetadata(""), names, listErr))
	return ret
}

func (c *Catalog) Models() []gateway.ModelDescriptor {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]gateway.ModelDescriptor{}, c.models...)
}

func (c *Catalog) Loading() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.loading
}

// Err is the failure of the last ListModels call.
func (c *Catalog) Err() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.err
}

func (c *Catalog) SelectModel(name string) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.selected = strings.TrimSpace(name)
}

func (c *Catalog) Selected() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.selected
}

// Progress returns the state of the running install, or nil when idle.
func (c *Catalog) Progress() *Progress {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.progress == nil {
		return nil
	}
	p := *c.progress
	return &p
}

// Installing returns the running install, if any.
func (c *Catalog) Installing() (*Installation, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.installing, c.installing != nil
}

// InstallModel starts pulling name. Only one install runs at a time.
func (c *Catalog) InstallModel(ctx context.Context, name string) (*Installation, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return nil, &errdefs.ValidationError{Field: "name", Reason: "model name is empty"}
	}
	if ctx == nil {
		ctx = context.Background()
	}

	c.mu.Lock()
	if c.installing != nil {
		current := c.installing.Model
		c.mu.Unlock()
		return nil, &errdefs.BusyError{Operation: "install", Target: current}
	}
	installCtx, cancel := context.WithCancel(ctx)
	inst := newInstallation(name, cancel)
	c.installing = inst
	c.progress = &Progress{Model: name}
	c.mu.Unlock()

	stream, err := c.gateway.Pull(installCtx, name)
	if err != nil {
		c.finish(inst, err)
		return nil, err
	}

	log.Debug().Str("model", name).Msg("install started")
	go c.run(ctx, installCtx, inst, stream)
	return inst, nil
}

func (c *Catalog) run(
	parent context.Context,
	ctx context.Context,
	inst *Installation,
	stream <-chan helpers.Result[gateway.PullProgress],
) {
	tracker := &rateTracker{}
	for {
		select {
		case <-ctx.Done():
			c.finish(inst, errors.Wrap(ctx.Err(), "install cancelled"))
			return
		case r, ok := <-stream:
			if !ok {
				// refresh so the installed model becomes selectable
				c.ListModels(parent)
				c.finish(inst, nil)
				return
			}
			p, err := r.Value()
			if err != nil {
				c.finish(inst, err)
				return
			}
			c.update(inst, tracker, p)
		}
	}
}

func (c *Catalog) update(inst *Installation, tracker *rateTracker, p gateway.PullProgress) {
	c.mu.Lock()
	if c.installing != inst || c.progress == nil {
		c.mu.Unlock()
		return
	}
	next := *c.progress
	next.Status = p.Status
	if p.HasBytes() {
		next.Digest = p.Digest
		next.BytesCompleted = p.Completed
		next.BytesTotal = p.Total
		next.Percentage = Percentage(p.Completed, p.Total)
		next.BytesPerSecond = tracker.observe(p, c.now())
	}
	c.progress = &next
	c.mu.Unlock()

	log.Trace().Str("model", inst.Model).Int64("percentage", next.Percentage).Float64("bytes_per_second", next.BytesPerSecond).Msg("install progress")
	inst.publish(next)
	events.Publish(c.sink, events.NewInstallProgressEvent(
		events.NewMetadata("").WithStream("", inst.Model),
		next.Status, next.Digest, next.BytesCompleted, next.BytesTotal, next.Percentage, next.BytesPerSecond,
	))
}

func (c *Catalog) finish(inst *Installation, err error) {
	c.mu.Lock()
	if c.installing == inst {
		c.installing = nil
		c.progress = nil
	}
	c.mu.Unlock()

	md := events.NewMetadata("").WithStream("", inst.Model)
	if err != nil {
		log.Warn().Err(err).Str("model", inst.Model).Msg("install failed")
		events.Publish(c.sink, events.NewInstallErrorEvent(md, err))
	} else {
		log.Debug().Str("model", inst.Model).Msg("install done")
		events.Publish(c.sink, events.NewInstallDoneEvent(md))
	}
	inst.settle(err)
}
