package sync

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	gosync "sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/wire"
)

const (
	// DefaultPushDebounce is the quiet period after the last local
	// change before a push fires.
	DefaultPushDebounce = 3 * time.Second
	pushTimeout         = 30 * time.Second
)

// ErrPushSuppressed is returned by Flush when pushing is currently not
// allowed: a sync is in flight, the link is offline, or no full sync has
// succeeded yet.
var ErrPushSuppressed = errors.New("push suppressed")

// watched are the collections written back by the pusher. Messages go
// through Sender instead.
var watched = []state.Collection{state.Clients, state.Accounts, state.Tasks, state.Transactions}

// Pusher upserts whole local collections to the remote store after a
// quiet period following local edits.
type Pusher struct {
	remote remote.Store
	state  *state.Store
	status *StatusReporter
	rec    *Reconciler

	Debounce time.Duration

	ctx    context.Context
	cancel context.CancelFunc
	wg     gosync.WaitGroup

	mu          gosync.Mutex
	timer       *time.Timer
	pending     bool
	pushing     bool
	rearm       bool
	stopped     bool
	unsubState  func()
	unsubStatus func()
	lastPush    time.Time
	lastPushErr error
}

// NewPusher creates a pusher. Call Start to begin watching state.
func NewPusher(store remote.Store, st *state.Store, status *StatusReporter, rec *Reconciler) *Pusher {
	return &Pusher{
		remote:   store,
		state:    st,
		status:   status,
		rec:      rec,
		Debounce: DefaultPushDebounce,
	}
}

// Start subscribes to local edits and status transitions.
func (p *Pusher) Start(ctx context.Context) {
	p.ctx, p.cancel = context.WithCancel(ctx)

	unsubState := p.state.Subscribe(func(c state.Change) {
		if c.FromRemote || !c.Touches(watched...) {
			return
		}
		p.schedule()
	})

	statusCh, unsubStatus := p.status.Subscribe()
	p.wg.Add(1)
	go func() {
		defer p.wg.Done()
		for s := range statusCh {
			if s == StatusOnline {
				p.schedule()
			}
		}
	}()

	p.mu.Lock()
	p.unsubState = unsubState
	p.unsubStatus = unsubStatus
	p.mu.Unlock()
}

// schedule restarts the trailing debounce timer.
func (p *Pusher) schedule() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.stopped || p.ctx == nil {
		return
	}
	if p.timer != nil {
		p.timer.Stop()
	}
	d := p.Debounce
	if d <= 0 {
		d = DefaultPushDebounce
	}
	p.timer = time.AfterFunc(d, p.fire)
	p.pending = true
}

func (p *Pusher) fire() {
	p.mu.Lock()
	p.pending = false
	p.mu.Unlock()
	if p.ctx.Err() != nil {
		return
	}
	if err := p.push(p.ctx); err != nil && !errors.Is(err, ErrPushSuppressed) {
		slog.Debug("push: failed", "err", err)
	}
}

// Pending reports whether a debounced push is waiting to fire.
func (p *Pusher) Pending() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.pending
}

// LastPush returns when the last push finished and its error.
func (p *Pusher) LastPush() (time.Time, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.lastPush, p.lastPushErr
}

// Flush cancels any pending timer and pushes immediately.
func (p *Pusher) Flush(ctx context.Context) error {
	p.mu.Lock()
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	p.pending = false
	p.mu.Unlock()
	return p.push(ctx)
}

// suppressed returns the reason pushing is currently blocked, or "".
func (p *Pusher) suppressed() string {
	if p.rec != nil && p.rec.InFlight() {
		return "sync in flight"
	}
	if p.status.Get() == StatusOffline {
		return "offline"
	}
	if p.rec != nil && !p.rec.Synced() {
		return "never synced"
	}
	if p.rec != nil && p.rec.SyncError() != nil {
		return "last full sync failed"
	}
	return ""
}

func (p *Pusher) push(ctx context.Context) error {
	if reason := p.suppressed(); reason != "" {
		slog.Debug("push: skipped", "reason", reason)
		return fmt.Errorf("%w: %s", ErrPushSuppressed, reason)
	}

	p.mu.Lock()
	if p.pushing {
		// push again once the running one resolves
		p.rearm = true
		p.mu.Unlock()
		slog.Debug("push: skipped", "reason", "previous push unresolved")
		return fmt.Errorf("%w: previous push unresolved", ErrPushSuppressed)
	}
	p.pushing = true
	p.mu.Unlock()

	// hold the reconciliation slot so no pull or wipe starts mid-push
	if p.rec != nil {
		if !p.rec.tryBegin() {
			p.mu.Lock()
			p.pushing = false
			p.mu.Unlock()
			slog.Debug("push: skipped", "reason", "sync in flight")
			return fmt.Errorf("%w: sync in flight", ErrPushSuppressed)
		}
		defer p.rec.end()
	}

	err := p.upsertAll(ctx)

	p.mu.Lock()
	p.pushing = false
	p.lastPush = time.Now()
	p.lastPushErr = err
	rearm := p.rearm
	p.rearm = false
	p.mu.Unlock()

	if rearm {
		p.schedule()
	}
	return err
}

// upsertAll writes every non-empty watched collection concurrently.
// Tables are independent: one rejection does not stop the others.
func (p *Pusher) upsertAll(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, pushTimeout)
	defer cancel()

	snap := p.state.Snapshot()
	batches := map[remote.Table]any{}
	if len(snap.Clients) > 0 {
		batches[remote.TableClients] = wire.EncodeRows(snap.Clients, wire.ClientToWire)
	}
	if len(snap.Accounts) > 0 {
		batches[remote.TableAccounts] = wire.EncodeRows(snap.Accounts, wire.AccountToWire)
	}
	if len(snap.Tasks) > 0 {
		batches[remote.TableTasks] = wire.EncodeRows(snap.Tasks, wire.TaskToWire)
	}
	if len(snap.Transactions) > 0 {
		batches[remote.TableTransactions] = wire.EncodeRows(snap.Transactions, wire.TransactionToWire)
	}
	if len(batches) == 0 {
		return nil
	}

	var (
		g    errgroup.Group
		mu   gosync.Mutex
		errs []error
	)
	for table, rows := range batches {
		g.Go(func() error {
			if err := p.remote.Upsert(ctx, table, rows); err != nil {
				mu.Lock()
				errs = append(errs, err)
				mu.Unlock()
			}
			return nil
		})
	}
	g.Wait()

	err := errors.Join(errs...)
	switch {
	case err == nil:
		slog.Debug("push: upserted", "tables", len(batches))
	case remote.IsTransport(err):
		p.status.Fail(err)
		slog.Warn("push: remote unreachable", "err", err)
	default:
		slog.Error("push: rejected", "err", err)
	}
	return err
}

// Stop cancels any pending push and detaches from state and status.
func (p *Pusher) Stop() {
	p.mu.Lock()
	if p.stopped {
		p.mu.Unlock()
		return
	}
	p.stopped = true
	p.pending = false
	if p.timer != nil {
		p.timer.Stop()
		p.timer = nil
	}
	unsubState, unsubStatus := p.unsubState, p.unsubStatus
	p.mu.Unlock()

	if unsubState != nil {
		unsubState()
	}
	if unsubStatus != nil {
		unsubStatus()
	}
	if p.cancel != nil {
		p.cancel()
	}
	p.wg.Wait()
}
