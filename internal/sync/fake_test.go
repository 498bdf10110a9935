package sync

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	gosync "sync"
	"testing"
	"time"

	_ "github.com/mattn/go-sqlite3"

	"github.com/marcus/desk/internal/mirror"
	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
)

type upsertCall struct {
	Table remote.Table
	Rows  []map[string]any
}

// fakeStore is an in-memory remote.Store that records every call.
type fakeStore struct {
	mu gosync.Mutex

	rows      map[remote.Table][]json.RawMessage
	fetchErr  map[remote.Table]error
	fetchGate chan struct{}
	fetches   map[remote.Table]int
	orders    map[remote.Table]remote.FetchOptions

	upserts    []upsertCall
	upsertErr  error
	upsertGate chan struct{}

	inserts   []map[string]any
	insertErr error

	deletes   []remote.Table
	deleteErr map[remote.Table]error

	probeErr error
	probes   int

	subs []*fakeSub
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		rows:      map[remote.Table][]json.RawMessage{},
		fetchErr:  map[remote.Table]error{},
		fetches:   map[remote.Table]int{},
		orders:    map[remote.Table]remote.FetchOptions{},
		deleteErr: map[remote.Table]error{},
	}
}

var errUnreachable = &remote.TransportError{Op: "fetch", Err: errors.New("dial tcp: connection refused")}

func (f *fakeStore) setRows(t remote.Table, rows ...string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	raw := make([]json.RawMessage, len(rows))
	for i, r := range rows {
		raw[i] = json.RawMessage(r)
	}
	f.rows[t] = raw
}

func (f *fakeStore) FetchAll(ctx context.Context, table remote.Table, opts ...remote.FetchOption) ([]json.RawMessage, error) {
	f.mu.Lock()
	gate := f.fetchGate
	f.fetches[table]++
	f.orders[table] = remote.ApplyFetchOptions(opts)
	err := f.fetchErr[table]
	rows := append([]json.RawMessage(nil), f.rows[table]...)
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, &remote.TransportError{Op: "fetch", Table: table, Err: ctx.Err()}
		}
	}
	if err != nil {
		return nil, err
	}
	return rows, nil
}

func decodeBatch(rows any) []map[string]any {
	data, _ := json.Marshal(rows)
	var out []map[string]any
	if err := json.Unmarshal(data, &out); err != nil {
		var one map[string]any
		json.Unmarshal(data, &one)
		out = []map[string]any{one}
	}
	return out
}

func (f *fakeStore) Insert(ctx context.Context, table remote.Table, row any) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	f.inserts = append(f.inserts, decodeBatch(row)...)
	return nil
}

func (f *fakeStore) Upsert(ctx context.Context, table remote.Table, rows any) error {
	f.mu.Lock()
	f.upserts = append(f.upserts, upsertCall{Table: table, Rows: decodeBatch(rows)})
	err, gate := f.upsertErr, f.upsertGate
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return &remote.TransportError{Op: "upsert", Table: table, Err: ctx.Err()}
		}
	}
	return err
}

// holdUpserts makes every later Upsert block until the returned func is
// called.
func (f *fakeStore) holdUpserts() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.upsertGate = gate
	f.mu.Unlock()
	var once gosync.Once
	return func() { once.Do(func() { close(gate) }) }
}

func (f *fakeStore) DeleteAll(ctx context.Context, table remote.Table, excludingID string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.deleteErr[table]; err != nil {
		return err
	}
	if excludingID != "0" {
		return errors.New("unexpected sentinel " + excludingID)
	}
	f.deletes = append(f.deletes, table)
	return nil
}

func (f *fakeStore) Subscribe(ctx context.Context, table remote.Table, filter remote.EventFilter, onEvent func(remote.Change)) (remote.Subscription, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	s := &fakeSub{table: table, filter: filter, onEvent: onEvent}
	f.subs = append(f.subs, s)
	return s, nil
}

func (f *fakeStore) Probe(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.probes++
	return f.probeErr
}

func (f *fakeStore) Close() error { return nil }

func (f *fakeStore) upsertCalls() []upsertCall {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]upsertCall(nil), f.upserts...)
}

func (f *fakeStore) activeSubs() []*fakeSub {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []*fakeSub
	for _, s := range f.subs {
		if !s.isClosed() {
			out = append(out, s)
		}
	}
	return out
}

type fakeSub struct {
	table   remote.Table
	filter  remote.EventFilter
	onEvent func(remote.Change)

	mu     gosync.Mutex
	closed bool
}

func (s *fakeSub) emit(c remote.Change) {
	if s.isClosed() || !s.filter.Matches(c.Type) {
		return
	}
	s.onEvent(c)
}

func (s *fakeSub) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *fakeSub) Close() error {
	s.mu.Lock()
	s.closed = true
	s.mu.Unlock()
	return nil
}

func newTestState(t *testing.T) *state.Store {
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
	return state.Open(m)
}

// waitFor polls cond until it holds or the deadline passes.
func waitFor(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(3 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(5 * time.Millisecond)
	}
}
