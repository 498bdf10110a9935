// Package sync keeps local state and the remote tables in step: an
// initial all-or-nothing pull, a liveness probe, a debounced push of
// local edits, immediate chat sends, a realtime listener for incoming
// messages and the system wipe.
package sync

import (
	"context"
	"log/slog"
	gosync "sync"
	"time"

	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
)

// Options tunes an Engine. Zero values use the defaults.
type Options struct {
	PushDebounce  time.Duration
	ProbeInterval time.Duration
	// DisableListener skips the realtime subscription (one-shot commands).
	DisableListener bool
}

// Engine bundles the sync components over one remote store and one
// state store.
type Engine struct {
	Status     *StatusReporter
	Reconciler *Reconciler
	Listener   *Listener
	Pusher     *Pusher
	Sender     *Sender

	opts   Options
	cancel context.CancelFunc
	wg     gosync.WaitGroup
}

// NewEngine wires the components; nothing runs until Start.
func NewEngine(store remote.Store, st *state.Store, opts Options) *Engine {
	status := NewStatusReporter()
	rec := NewReconciler(store, st, status)
	if opts.ProbeInterval > 0 {
		rec.ProbeInterval = opts.ProbeInterval
	}
	pusher := NewPusher(store, st, status, rec)
	if opts.PushDebounce > 0 {
		pusher.Debounce = opts.PushDebounce
	}
	return &Engine{
		Status:     status,
		Reconciler: rec,
		Listener:   NewListener(store, st),
		Pusher:     pusher,
		Sender:     NewSender(store, st),
		opts:       opts,
	}
}

// Start subscribes to remote changes, begins watching local edits and
// launches the reconciliation loop.
func (e *Engine) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel

	if !e.opts.DisableListener {
		if err := e.Listener.Start(ctx); err != nil {
			cancel()
			return err
		}
	}
	e.Pusher.Start(ctx)

	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.Reconciler.Run(ctx)
	}()
	slog.Debug("sync: engine started")
	return nil
}

// Stop tears everything down: pending push timers, the probe loop and
// the realtime subscription. It blocks until background work exits.
func (e *Engine) Stop() {
	if e.cancel != nil {
		e.cancel()
	}
	e.Pusher.Stop()
	e.wg.Wait()
	if err := e.Listener.Stop(); err != nil {
		slog.Debug("sync: listener stop", "err", err)
	}
	slog.Debug("sync: engine stopped")
}
