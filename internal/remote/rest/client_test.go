package rest

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/marcus/desk/internal/remote"
)

type recorded struct {
	Method string
	Path   string
	Query  string
	Header http.Header
	Body   string
}

// fakeTableAPI records every request and answers with the configured handler.
type fakeTableAPI struct {
	mu       sync.Mutex
	requests []recorded
	respond  func(w http.ResponseWriter, r *http.Request)
}

func (f *fakeTableAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	body, _ := io.ReadAll(r.Body)
	f.mu.Lock()
	f.requests = append(f.requests, recorded{
		Method: r.Method,
		Path:   r.URL.Path,
		Query:  r.URL.RawQuery,
		Header: r.Header.Clone(),
		Body:   string(body),
	})
	f.mu.Unlock()
	if f.respond != nil {
		f.respond(w, r)
		return
	}
	w.WriteHeader(http.StatusCreated)
}

func (f *fakeTableAPI) last(t *testing.T) recorded {
	t.Helper()
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.requests) == 0 {
		t.Fatal("no requests recorded")
	}
	return f.requests[len(f.requests)-1]
}

func newTestClient(t *testing.T, api *fakeTableAPI) *Client {
	t.Helper()
	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)
	return New(srv.URL+"/", "anon-key")
}

func TestFetchAllBuildsQuery(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`[{"id":"m1"},{"id":"m2"}]`))
	}}
	c := newTestClient(t, api)

	rows, err := c.FetchAll(context.Background(), remote.TableMessages, remote.OrderBy("created_at", true))
	if err != nil {
		t.Fatalf("FetchAll: %v", err)
	}
	if len(rows) != 2 {
		t.Fatalf("got %d rows, want 2", len(rows))
	}

	req := api.last(t)
	if req.Method != http.MethodGet || req.Path != "/rest/v1/messages" {
		t.Fatalf("unexpected request %s %s", req.Method, req.Path)
	}
	if !strings.Contains(req.Query, "order=created_at.asc") || !strings.Contains(req.Query, "select=%2A") {
		t.Fatalf("query = %q", req.Query)
	}
	if req.Header.Get("apikey") != "anon-key" || req.Header.Get("Authorization") != "Bearer anon-key" {
		t.Fatalf("auth headers missing: %v", req.Header)
	}
}

func TestUpsertSendsMergePreference(t *testing.T) {
	api := &fakeTableAPI{}
	c := newTestClient(t, api)

	rows := []map[string]string{{"id": "c1", "name": "Acme"}}
	if err := c.Upsert(context.Background(), remote.TableClients, rows); err != nil {
		t.Fatalf("Upsert: %v", err)
	}
	req := api.last(t)
	if req.Method != http.MethodPost || req.Query != "on_conflict=id" {
		t.Fatalf("unexpected request %s ?%s", req.Method, req.Query)
	}
	if !strings.Contains(req.Header.Get("Prefer"), "resolution=merge-duplicates") {
		t.Fatalf("Prefer = %q", req.Header.Get("Prefer"))
	}
	var decoded []map[string]string
	if err := json.Unmarshal([]byte(req.Body), &decoded); err != nil || decoded[0]["name"] != "Acme" {
		t.Fatalf("body = %q (err %v)", req.Body, err)
	}
}

func TestDeleteAllExcludesSentinel(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(http.StatusNoContent) }}
	c := newTestClient(t, api)

	if err := c.DeleteAll(context.Background(), remote.TableTasks, "0"); err != nil {
		t.Fatalf("DeleteAll: %v", err)
	}
	req := api.last(t)
	if req.Method != http.MethodDelete || req.Query != "id=neq.0" {
		t.Fatalf("unexpected request %s ?%s", req.Method, req.Query)
	}
}

func TestProbeReadsOneClientID(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) { w.Write([]byte(`[]`)) }}
	c := newTestClient(t, api)

	if err := c.Probe(context.Background()); err != nil {
		t.Fatalf("Probe: %v", err)
	}
	req := api.last(t)
	if req.Path != "/rest/v1/clients" || !strings.Contains(req.Query, "limit=1") || !strings.Contains(req.Query, "select=id") {
		t.Fatalf("unexpected probe %s ?%s", req.Path, req.Query)
	}
}

func TestClientErrorIsConstraint(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		w.Write([]byte(`{"code":"23505","message":"duplicate key value","details":"Key (id)=(c1) already exists.","hint":null}`))
	}}
	c := newTestClient(t, api)

	err := c.Insert(context.Background(), remote.TableClients, map[string]string{"id": "c1"})
	var ce *remote.ConstraintError
	if !errors.As(err, &ce) {
		t.Fatalf("expected ConstraintError, got %T %v", err, err)
	}
	if ce.Code != "23505" || ce.Details == "" {
		t.Fatalf("unexpected constraint error %+v", ce)
	}
}

func TestUnauthorizedWrapsSentinel(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusUnauthorized)
		w.Write([]byte(`{"message":"Invalid API key"}`))
	}}
	c := newTestClient(t, api)

	_, err := c.FetchAll(context.Background(), remote.TableClients)
	if !remote.IsConstraint(err) || !errors.Is(err, remote.ErrUnauthorized) {
		t.Fatalf("expected unauthorized constraint error, got %v", err)
	}
}

func TestServerErrorIsTransport(t *testing.T) {
	api := &fakeTableAPI{respond: func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusBadGateway)
	}}
	c := newTestClient(t, api)

	if _, err := c.FetchAll(context.Background(), remote.TableAccounts); !remote.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
}

func TestUnreachableIsTransport(t *testing.T) {
	srv := httptest.NewServer(http.NotFoundHandler())
	url := srv.URL
	srv.Close()

	c := New(url, "k")
	err := c.Probe(context.Background())
	if !remote.IsTransport(err) {
		t.Fatalf("expected transport error, got %v", err)
	}
	if !strings.HasPrefix(remote.Describe(err), "network error") {
		t.Fatalf("Describe = %q", remote.Describe(err))
	}
}

func TestUnknownTableRejectedBeforeIO(t *testing.T) {
	api := &fakeTableAPI{}
	c := newTestClient(t, api)

	if err := c.Insert(context.Background(), remote.Table("users"), map[string]string{}); err == nil {
		t.Fatal("expected error for unknown table")
	}
	api.mu.Lock()
	n := len(api.requests)
	api.mu.Unlock()
	if n != 0 {
		t.Fatalf("expected no requests, got %d", n)
	}
}
