package catalog

import (
	"context"
	"sync"

	"github.com/pkg/errors"
)

const updatesBuffer = 64

var ErrInstallationNil = errors.New("installation is nil")

// Installation is a running model pull.
type Installation struct {
	Model string

	cancel  context.CancelFunc
	updates chan Progress
	done    chan struct{}

	mu     sync.Mutex
	closed bool
	err    error
}

func newInstallation(model string, cancel context.CancelFunc) *Installation {
	return &Installation{
		Model:   model,
		cancel:  cancel,
		updates: make(chan Progress, updatesBuffer),
		done:    make(chan struct{}),
	}
}

// Updates delivers progress snapshots and closes when the install settles.
// Updates are dropped when the reader falls behind; Catalog.Progress always
// holds the latest one.
func (i *Installation) Updates() <-chan Progress {
	return i.updates
}

func (i *Installation) Done() <-chan struct{} {
	return i.done
}

// Cancel aborts the install. Safe to call multiple times.
func (i *Installation) Cancel() {
	if i == nil {
		return
	}
	i.cancel()
}

// Wait blocks until the install settled and returns its error.
func (i *Installation) Wait() error {
	if i == nil {
		return ErrInstallationNil
	}
	<-i.done
	i.mu.Lock()
	defer i.mu.Unlock()
	return i.err
}

func (i *Installation) publish(p Progress) {
	i.mu.Lock()
	defer i.mu.Unlock()
	if i.closed {
		return
	}
	select {
	case i.updates <- p:
	default:
	}
}

func (i *Installation) settle(err error) {
	i.mu.Lock()
	if i.closed {
		i.mu.Unlock()
		return
	}
	i.closed = true
	i.err = err
	close(i.updates)
	i.mu.Unlock()

	i.cancel()
	close(i.done)
}
