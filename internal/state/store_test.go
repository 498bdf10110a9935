package state

import (
	"database/sql"
	"errors"
	"testing"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/desk/internal/mirror"
	"github.com/marcus/desk/internal/models"
)

func newTestMirror(t *testing.T) *mirror.Mirror {
	t.Helper()
	conn, err := sql.Open("sqlite3", ":memory:")
	if err != nil {
		t.Fatalf("open sqlite: %v", err)
	}
	conn.SetMaxOpenConns(1)
	m, err := mirror.New(conn, "")
	if err != nil {
		t.Fatalf("mirror.New: %v", err)
	}
	t.Cleanup(func() { m.Close() })
	return m
}

func TestOpenFallsBackToSeed(t *testing.T) {
	s := Open(newTestMirror(t))

	if got := s.Messages(); len(got) != 1 || got[0].ID != "m0" {
		t.Fatalf("messages = %+v, want seed greeting", got)
	}
	if got := s.Accounts(); len(got) != 2 {
		t.Fatalf("accounts = %+v, want seed accounts", got)
	}
	if s.Theme() != models.ThemeLight {
		t.Fatalf("theme = %q", s.Theme())
	}
}

func TestUpdatePersistsAndNotifies(t *testing.T) {
	m := newTestMirror(t)
	s := Open(m)

	var changes []Change
	cancel := s.Subscribe(func(c Change) { changes = append(changes, c) })
	defer cancel()

	err := s.UpdateClients(func(cs []models.Client) []models.Client {
		return append(cs, models.Client{ID: "c2", Name: "Acme"})
	})
	if err != nil {
		t.Fatalf("UpdateClients: %v", err)
	}
	if len(changes) != 1 || !changes[0].Touches(Clients) || changes[0].FromRemote {
		t.Fatalf("changes = %+v", changes)
	}

	// A second store over the same mirror sees the write.
	reopened := Open(m)
	if got := reopened.Clients(); len(got) != 2 || got[1].Name != "Acme" {
		t.Fatalf("reopened clients = %+v", got)
	}
}

func TestReadsReturnCopies(t *testing.T) {
	s := Open(newTestMirror(t))
	s.UpdateTasks(func([]models.Task) []models.Task {
		return []models.Task{{ID: "T-1001", Title: "Fix", History: []models.HistoryEntry{{ID: "h1"}}}}
	})

	tasks := s.Tasks()
	tasks[0].Title = "changed"
	tasks[0].History[0].Action = "tampered"

	again := s.Tasks()
	if again[0].Title != "Fix" || again[0].History[0].Action != "" {
		t.Fatalf("store mutated through returned copy: %+v", again[0])
	}
}

func TestAppendMessageIfAbsentDedups(t *testing.T) {
	s := Open(newTestMirror(t))
	msg := models.ChatMessage{ID: "m1", SenderID: "u2", Text: "hi", Type: models.MessageText}

	added, err := s.AppendMessageIfAbsent(msg)
	if err != nil || !added {
		t.Fatalf("first append: added=%v err=%v", added, err)
	}
	added, _ = s.AppendMessageIfAbsent(msg)
	if added {
		t.Fatal("duplicate id appended")
	}
	if got := s.Messages(); len(got) != 2 {
		t.Fatalf("messages = %d, want 2 (seed + m1)", len(got))
	}
}

func TestReplaceRemoteMarksChange(t *testing.T) {
	s := Open(newTestMirror(t))
	var got Change
	s.Subscribe(func(c Change) { got = c })

	snap := Snapshot{
		Clients:  []models.Client{{ID: "c9", Name: "Remote"}},
		Messages: []models.ChatMessage{{ID: "m5"}},
	}
	if err := s.ReplaceRemote(snap); err != nil {
		t.Fatalf("ReplaceRemote: %v", err)
	}
	if !got.FromRemote || len(got.Collections) != len(Mirrored) {
		t.Fatalf("change = %+v", got)
	}
	if c := s.Clients(); len(c) != 1 || c[0].ID != "c9" {
		t.Fatalf("clients = %+v", c)
	}
	// nil collections become empty, not absent
	if tasks := s.Tasks(); tasks == nil || len(tasks) != 0 {
		t.Fatalf("tasks = %#v, want empty slice", tasks)
	}
}

func TestUpdateFinanceIsAtomic(t *testing.T) {
	s := Open(newTestMirror(t))
	before := s.Accounts()

	wantErr := errors.New("rejected")
	err := s.UpdateFinance(func(a []models.FinancialAccount, tx []models.Transaction) ([]models.FinancialAccount, []models.Transaction, error) {
		a[0].Name = "mutated"
		return a, tx, wantErr
	})
	if !errors.Is(err, wantErr) {
		t.Fatalf("err = %v", err)
	}
	if s.Accounts()[0].Name != before[0].Name {
		t.Fatal("failed finance update leaked into state")
	}
}

func TestResetAfterWipe(t *testing.T) {
	m := newTestMirror(t)
	s := Open(m)
	s.UpdateTimesheet(func(e []models.TimeEntry) []models.TimeEntry {
		return append(e, models.TimeEntry{ID: "e1", UserID: "u3", Date: "2025-03-01"})
	})
	s.UpdateMessages(func(ms []models.ChatMessage) []models.ChatMessage {
		return append(ms, models.ChatMessage{ID: "m7"})
	})
	if err := m.Save(mirror.KeyInventory, []string{"drill"}); err != nil {
		t.Fatalf("seed inventory: %v", err)
	}

	if err := s.ResetAfterWipe(); err != nil {
		t.Fatalf("ResetAfterWipe: %v", err)
	}
	if len(s.Clients()) != 0 || len(s.Timesheet()) != 0 || len(s.Accounts()) != 0 {
		t.Fatal("business collections not emptied")
	}
	if msgs := s.Messages(); len(msgs) != 1 || msgs[0].ID != "m0" {
		t.Fatalf("messages = %+v, want seed", msgs)
	}
	if _, ok, _ := m.Get(mirror.KeyInventory); ok {
		t.Fatal("inventory key survived wipe")
	}
	if len(s.Users()) != 3 {
		t.Fatal("users must survive a wipe")
	}
}
