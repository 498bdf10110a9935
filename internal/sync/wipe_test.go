package sync

import (
	"context"
	"errors"
	"testing"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/remote"
)

func TestWipeDeletesInOrderAndResets(t *testing.T) {
	fs := newFakeStore()
	st := newTestState(t)
	st.UpdateTasks(func(ts []models.Task) []models.Task {
		return append(ts, models.Task{ID: "T-1001", Title: "Install"})
	})
	st.UpdateAdvances(func(a []models.Advance) []models.Advance {
		return append(a, models.Advance{ID: "adv1", UserID: "u3"})
	})

	rec := NewReconciler(fs, st, NewStatusReporter())
	if err := rec.Wipe(context.Background()); err != nil {
		t.Fatalf("Wipe: %v", err)
	}

	want := []remote.Table{remote.TableTransactions, remote.TableTasks, remote.TableMessages, remote.TableAccounts, remote.TableClients}
	if len(fs.deletes) != len(want) {
		t.Fatalf("deletes = %v, want %v", fs.deletes, want)
	}
	for i := range want {
		if fs.deletes[i] != want[i] {
			t.Fatalf("deletes = %v, want %v", fs.deletes, want)
		}
	}

	snap := st.Snapshot()
	if len(snap.Clients)+len(snap.Tasks)+len(snap.Accounts)+len(snap.Transactions) != 0 {
		t.Fatalf("mirrored collections not emptied: %+v", snap)
	}
	if len(snap.Messages) != 1 || snap.Messages[0].ID != "m0" {
		t.Fatalf("messages = %+v, want seed", snap.Messages)
	}
	if len(st.Advances()) != 0 {
		t.Fatal("advances not cleared")
	}
	if rec.InFlight() {
		t.Fatal("slot not released after wipe")
	}
}

func TestWipeStopsAtFirstFailure(t *testing.T) {
	fs := newFakeStore()
	fs.deleteErr[remote.TableMessages] = &remote.ConstraintError{Op: "delete", Table: remote.TableMessages, Code: "42501", Message: "permission denied"}
	st := newTestState(t)

	rec := NewReconciler(fs, st, NewStatusReporter())
	err := rec.Wipe(context.Background())

	var we *WipeError
	if !errors.As(err, &we) || we.Table != remote.TableMessages {
		t.Fatalf("err = %v, want WipeError at messages", err)
	}
	if len(we.Deleted) != 2 {
		t.Fatalf("deleted = %v, want transactions and tasks", we.Deleted)
	}
	if len(fs.deletes) != 2 {
		t.Fatalf("continued past failure: %v", fs.deletes)
	}
	// local state untouched
	if len(st.Clients()) != 1 || len(st.Accounts()) != 2 {
		t.Fatal("local state reset despite failed wipe")
	}
}

func TestWipeRefusedDuringSync(t *testing.T) {
	fs := newFakeStore()
	fs.fetchGate = make(chan struct{})
	rec := NewReconciler(fs, newTestState(t), NewStatusReporter())

	go rec.FullSync(context.Background())
	waitFor(t, "sync in flight", rec.InFlight)
	if err := rec.Wipe(context.Background()); !errors.Is(err, ErrBusy) {
		t.Fatalf("Wipe = %v, want ErrBusy", err)
	}
	close(fs.fetchGate)
}
