package sync

import (
	"context"
	"errors"
	"log/slog"
	gosync "sync"
	"sync/atomic"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/wire"
)

// DefaultProbeInterval is how often Run checks remote liveness.
const DefaultProbeInterval = 120 * time.Second

// ErrBusy is returned when an operation needs the reconciliation slot
// while another holds it.
var ErrBusy = errors.New("sync already in progress")

// Reconciler pulls the remote tables into local state and tracks remote
// liveness.
type Reconciler struct {
	remote remote.Store
	state  *state.Store
	status *StatusReporter

	ProbeInterval time.Duration

	inFlight atomic.Bool

	mu       gosync.Mutex
	syncErr  error
	lastSync time.Time
	synced   bool
}

// NewReconciler wires a reconciler over store and st.
func NewReconciler(store remote.Store, st *state.Store, status *StatusReporter) *Reconciler {
	return &Reconciler{
		remote:        store,
		state:         st,
		status:        status,
		ProbeInterval: DefaultProbeInterval,
	}
}

// InFlight reports whether a full sync, a push or a wipe currently holds
// the slot.
func (r *Reconciler) InFlight() bool {
	return r.inFlight.Load()
}

// tryBegin claims the reconciliation slot.
func (r *Reconciler) tryBegin() bool {
	return r.inFlight.CompareAndSwap(false, true)
}

func (r *Reconciler) end() {
	r.inFlight.Store(false)
}

// SyncError returns the failure of the most recent full sync, or nil if
// it succeeded (or none ran yet).
func (r *Reconciler) SyncError() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.syncErr
}

// Synced reports whether a full sync has succeeded at least once. Until
// then local data may be seed or stale and must not be pushed.
func (r *Reconciler) Synced() bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.synced
}

// LastSync returns when a full sync last succeeded.
func (r *Reconciler) LastSync() time.Time {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.lastSync
}

// FullSync fetches all five tables and replaces local state wholesale.
// Either every table is applied or none is. A call made while another
// sync, a push or a wipe holds the slot returns (false, nil) without doing
// anything.
func (r *Reconciler) FullSync(ctx context.Context) (bool, error) {
	if !r.tryBegin() {
		return false, nil
	}
	defer r.end()

	r.status.Set(StatusChecking)
	start := time.Now()

	snap, err := r.fetchAll(ctx)
	if err != nil {
		r.mu.Lock()
		r.syncErr = err
		r.mu.Unlock()
		r.status.Fail(err)
		slog.Warn("sync: full sync failed", "err", err)
		return true, err
	}

	if err := r.state.ReplaceRemote(snap); err != nil {
		// In-memory state is already replaced; only the mirror write failed.
		slog.Error("sync: persist snapshot", "err", err)
	}

	r.mu.Lock()
	r.syncErr = nil
	r.lastSync = time.Now()
	r.synced = true
	r.mu.Unlock()
	r.status.Set(StatusOnline)
	slog.Info("sync: full sync complete",
		"clients", len(snap.Clients), "accounts", len(snap.Accounts), "tasks", len(snap.Tasks),
		"transactions", len(snap.Transactions), "messages", len(snap.Messages),
		"took", time.Since(start).Round(time.Millisecond))
	return true, nil
}

// fetchAll reads the tables concurrently; the first failure cancels the
// remaining fetches.
func (r *Reconciler) fetchAll(ctx context.Context) (state.Snapshot, error) {
	var snap state.Snapshot
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		rows, err := r.remote.FetchAll(gctx, remote.TableClients)
		if err != nil {
			return err
		}
		snap.Clients, err = wire.DecodeRows(rows, wire.ClientFromWire)
		return wrapDecode(remote.TableClients, err)
	})
	g.Go(func() error {
		rows, err := r.remote.FetchAll(gctx, remote.TableAccounts)
		if err != nil {
			return err
		}
		snap.Accounts, err = wire.DecodeRows(rows, wire.AccountFromWire)
		return wrapDecode(remote.TableAccounts, err)
	})
	g.Go(func() error {
		rows, err := r.remote.FetchAll(gctx, remote.TableTasks)
		if err != nil {
			return err
		}
		snap.Tasks, err = wire.DecodeRows(rows, wire.TaskFromWire)
		return wrapDecode(remote.TableTasks, err)
	})
	g.Go(func() error {
		rows, err := r.remote.FetchAll(gctx, remote.TableTransactions)
		if err != nil {
			return err
		}
		snap.Transactions, err = wire.DecodeRows(rows, wire.TransactionFromWire)
		return wrapDecode(remote.TableTransactions, err)
	})
	g.Go(func() error {
		rows, err := r.remote.FetchAll(gctx, remote.TableMessages, remote.OrderBy("created_at", true))
		if err != nil {
			return err
		}
		snap.Messages, err = wire.DecodeRows(rows, wire.MessageFromWire)
		return wrapDecode(remote.TableMessages, err)
	})

	if err := g.Wait(); err != nil {
		return state.Snapshot{}, err
	}
	return snap, nil
}

func wrapDecode(table remote.Table, err error) error {
	if err == nil {
		return nil
	}
	return &remote.ConstraintError{Op: "decode", Table: table, Message: "malformed row", Err: err}
}

// Resync runs a manual full sync. Unlike FullSync it reports a concurrent
// sync or an unresolved push as ErrBusy.
func (r *Reconciler) Resync(ctx context.Context) error {
	ran, err := r.FullSync(ctx)
	if !ran {
		return ErrBusy
	}
	return err
}

// Probe performs one liveness check and updates the status. It never
// pulls data.
func (r *Reconciler) Probe(ctx context.Context) error {
	if r.InFlight() {
		return nil
	}
	if err := r.remote.Probe(ctx); err != nil {
		r.status.Fail(err)
		slog.Debug("sync: probe failed", "err", err)
		return err
	}
	r.status.Set(StatusOnline)
	return nil
}

// Run performs an initial full sync, then probes every ProbeInterval until
// ctx is done.
func (r *Reconciler) Run(ctx context.Context) {
	r.FullSync(ctx)

	interval := r.ProbeInterval
	if interval <= 0 {
		interval = DefaultProbeInterval
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			r.Probe(ctx)
		}
	}
}
