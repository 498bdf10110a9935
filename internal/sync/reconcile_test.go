package sync

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/remote"
)

func TestFullSyncReplacesWholesale(t *testing.T) {
	fs := newFakeStore()
	fs.setRows(remote.TableClients, `{"id":"c1","name":"A"}`, `{"id":"c2","name":"B"}`, `{"id":"c3","name":"C"}`)
	fs.setRows(remote.TableMessages, `{"id":"m1","sender_id":"u1","text":"hi","created_at":"2025-02-01T10:00:00Z"}`)

	st := newTestState(t)
	// a local-only client must disappear: replace, not merge
	st.UpdateClients(func(cs []models.Client) []models.Client {
		return append(cs, models.Client{ID: "local-only"})
	})

	status := NewStatusReporter()
	rec := NewReconciler(fs, st, status)
	ran, err := rec.FullSync(context.Background())
	if !ran || err != nil {
		t.Fatalf("FullSync: ran=%v err=%v", ran, err)
	}

	clients := st.Clients()
	if len(clients) != 3 {
		t.Fatalf("got %d clients, want 3", len(clients))
	}
	for _, c := range clients {
		if c.ID == "local-only" {
			t.Fatal("stale local client survived full sync")
		}
	}
	if len(st.Tasks()) != 0 {
		t.Fatalf("tasks = %d, want 0", len(st.Tasks()))
	}
	if msgs := st.Messages(); len(msgs) != 1 || msgs[0].Type != models.MessageText {
		t.Fatalf("messages = %+v", msgs)
	}
	if status.Get() != StatusOnline {
		t.Fatalf("status = %s, want online", status.Get())
	}
	if rec.SyncError() != nil || rec.LastSync().IsZero() {
		t.Fatal("successful sync not recorded")
	}
}

func TestFullSyncOrdersMessagesByCreation(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, newTestState(t), NewStatusReporter())
	rec.FullSync(context.Background())

	o := fs.orders[remote.TableMessages]
	if o.OrderColumn != "created_at" || !o.Ascending {
		t.Fatalf("messages fetched with %+v, want created_at ascending", o)
	}
	for _, tbl := range remote.Tables {
		if fs.fetches[tbl] != 1 {
			t.Fatalf("%s fetched %d times, want 1", tbl, fs.fetches[tbl])
		}
	}
}

func TestFullSyncFailureLeavesStateUntouched(t *testing.T) {
	fs := newFakeStore()
	fs.setRows(remote.TableClients, `{"id":"c1"}`, `{"id":"c2"}`)
	fs.setRows(remote.TableAccounts, `{"id":"a1"}`)
	fs.fetchErr[remote.TableTransactions] = errUnreachable

	st := newTestState(t)
	before := st.Snapshot()

	status := NewStatusReporter()
	rec := NewReconciler(fs, st, status)
	ran, err := rec.FullSync(context.Background())
	if !ran || !remote.IsTransport(err) {
		t.Fatalf("FullSync: ran=%v err=%v", ran, err)
	}

	after := st.Snapshot()
	if len(after.Clients) != len(before.Clients) || after.Clients[0].ID != before.Clients[0].ID {
		t.Fatalf("clients partially replaced: %+v", after.Clients)
	}
	if len(after.Accounts) != len(before.Accounts) || len(after.Messages) != len(before.Messages) {
		t.Fatal("collections changed after failed sync")
	}
	if status.Get() != StatusOffline {
		t.Fatalf("status = %s, want offline", status.Get())
	}
	if rec.SyncError() == nil {
		t.Fatal("sync failure not recorded")
	}
}

func TestFullSyncMalformedRowIsAllOrNothing(t *testing.T) {
	fs := newFakeStore()
	fs.setRows(remote.TableClients, `{"id":"c1"}`)
	fs.setRows(remote.TableTasks, `{"id": 42}`)

	st := newTestState(t)
	rec := NewReconciler(fs, st, NewStatusReporter())
	if _, err := rec.FullSync(context.Background()); !remote.IsConstraint(err) {
		t.Fatalf("expected decode constraint error, got %v", err)
	}
	if c := st.Clients(); len(c) != 1 || c[0].ID != models.SeedClients()[0].ID {
		t.Fatalf("clients replaced despite failed sync: %+v", c)
	}
}

func TestFullSyncSingleFlight(t *testing.T) {
	fs := newFakeStore()
	fs.fetchGate = make(chan struct{})
	rec := NewReconciler(fs, newTestState(t), NewStatusReporter())

	done := make(chan error, 1)
	go func() {
		_, err := rec.FullSync(context.Background())
		done <- err
	}()
	waitFor(t, "first sync in flight", rec.InFlight)

	ran, err := rec.FullSync(context.Background())
	if ran || err != nil {
		t.Fatalf("concurrent FullSync: ran=%v err=%v, want no-op", ran, err)
	}
	if err := rec.Resync(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Resync during sync = %v, want ErrBusy", err)
	}

	close(fs.fetchGate)
	if err := <-done; err != nil {
		t.Fatalf("first sync: %v", err)
	}
	if rec.InFlight() {
		t.Fatal("slot not released")
	}
}

func TestProbeUpdatesStatusWithoutPulling(t *testing.T) {
	fs := newFakeStore()
	status := NewStatusReporter()
	rec := NewReconciler(fs, newTestState(t), status)

	fs.probeErr = errUnreachable
	if err := rec.Probe(context.Background()); err == nil {
		t.Fatal("expected probe error")
	}
	if status.Get() != StatusOffline {
		t.Fatalf("status = %s, want offline", status.Get())
	}

	fs.probeErr = nil
	if err := rec.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	if status.Get() != StatusOnline {
		t.Fatalf("status = %s, want online", status.Get())
	}
	for _, tbl := range remote.Tables {
		if fs.fetches[tbl] != 0 {
			t.Fatalf("probe pulled %s", tbl)
		}
	}
}

func TestRunProbesOnInterval(t *testing.T) {
	fs := newFakeStore()
	rec := NewReconciler(fs, newTestState(t), NewStatusReporter())
	rec.ProbeInterval = 10 * time.Millisecond

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go rec.Run(ctx)

	waitFor(t, "three probes", func() bool {
		fs.mu.Lock()
		defer fs.mu.Unlock()
		return fs.probes >= 3
	})
	fs.mu.Lock()
	fetches := fs.fetches[remote.TableClients]
	fs.mu.Unlock()
	if fetches != 1 {
		t.Fatalf("clients fetched %d times, want exactly the initial sync", fetches)
	}
}
