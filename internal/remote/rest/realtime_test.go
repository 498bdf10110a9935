package rest

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/desk/internal/remote"
)

// fakeRealtime accepts one channel join per connection and lets the test
// push change frames to the joined client.
type fakeRealtime struct {
	upgrader websocket.Upgrader

	mu     sync.Mutex
	conns  []*websocket.Conn
	topic  string
	events []string
	joined chan struct{}
}

func newFakeRealtime() *fakeRealtime {
	return &fakeRealtime{joined: make(chan struct{}, 8)}
}

func (f *fakeRealtime) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != realtimePath || r.URL.Query().Get("apikey") == "" {
		http.NotFound(w, r)
		return
	}
	conn, err := f.upgrader.Upgrade(w, r, nil)
	if err != nil {
		return
	}
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			conn.Close()
			return
		}
		f.mu.Lock()
		f.events = append(f.events, msg.Event)
		f.mu.Unlock()
		if msg.Event != "phx_join" {
			continue
		}
		f.mu.Lock()
		f.topic = msg.Topic
		f.conns = append(f.conns, conn)
		f.mu.Unlock()
		reply := phxMessage{Topic: msg.Topic, Event: "phx_reply", Ref: msg.Ref, Payload: json.RawMessage(`{"status":"ok","response":{}}`)}
		if err := conn.WriteJSON(reply); err != nil {
			return
		}
		f.joined <- struct{}{}
	}
}

func (f *fakeRealtime) push(t *testing.T, changeType string, record string) {
	t.Helper()
	f.mu.Lock()
	conn := f.conns[len(f.conns)-1]
	topic := f.topic
	f.mu.Unlock()
	payload := `{"data":{"type":"` + changeType + `","table":"messages","record":` + record + `,"old_record":null}}`
	if err := conn.WriteJSON(phxMessage{Topic: topic, Event: "postgres_changes", Payload: json.RawMessage(payload)}); err != nil {
		t.Fatalf("push: %v", err)
	}
}

func (f *fakeRealtime) dropAll() {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, c := range f.conns {
		c.Close()
	}
}

func (f *fakeRealtime) sawEvent(name string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	for _, e := range f.events {
		if e == name {
			return true
		}
	}
	return false
}

func waitJoined(t *testing.T, f *fakeRealtime) {
	t.Helper()
	select {
	case <-f.joined:
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for channel join")
	}
}

func TestRealtimeDeliversFilteredChanges(t *testing.T) {
	fake := newFakeRealtime()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	got := make(chan remote.Change, 4)
	sub, err := c.Subscribe(context.Background(), remote.TableMessages, remote.EventFilter{Event: remote.EventInsert}, func(ch remote.Change) {
		got <- ch
	})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	waitJoined(t, fake)

	fake.push(t, "UPDATE", `{"id":"m0"}`)
	fake.push(t, "INSERT", `{"id":"m1"}`)

	select {
	case ch := <-got:
		if ch.Type != remote.EventInsert || ch.Table != remote.TableMessages {
			t.Fatalf("unexpected change %+v", ch)
		}
		var row struct{ ID string }
		if err := json.Unmarshal(ch.New, &row); err != nil || row.ID != "m1" {
			t.Fatalf("record = %s", string(ch.New))
		}
	case <-time.After(5 * time.Second):
		t.Fatal("timed out waiting for change")
	}

	select {
	case ch := <-got:
		t.Fatalf("filtered event delivered: %+v", ch)
	case <-time.After(100 * time.Millisecond):
	}
}

func TestRealtimeReconnectsAfterDrop(t *testing.T) {
	fake := newFakeRealtime()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	c.ReconnectMin = 10 * time.Millisecond
	c.ReconnectMax = 50 * time.Millisecond

	got := make(chan remote.Change, 4)
	sub, err := c.Subscribe(context.Background(), remote.TableMessages, remote.EventFilter{}, func(ch remote.Change) { got <- ch })
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	defer sub.Close()
	waitJoined(t, fake)

	fake.dropAll()
	waitJoined(t, fake)

	fake.push(t, "INSERT", `{"id":"m9"}`)
	select {
	case <-got:
	case <-time.After(5 * time.Second):
		t.Fatal("no change after reconnect")
	}
}

func TestRealtimeCloseSendsLeave(t *testing.T) {
	fake := newFakeRealtime()
	srv := httptest.NewServer(fake)
	defer srv.Close()

	c := New(srv.URL, "anon-key")
	sub, err := c.Subscribe(context.Background(), remote.TableMessages, remote.EventFilter{}, func(remote.Change) {})
	if err != nil {
		t.Fatalf("Subscribe: %v", err)
	}
	waitJoined(t, fake)

	if err := sub.Close(); err != nil {
		t.Fatalf("Close: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for !fake.sawEvent("phx_leave") {
		if time.Now().After(deadline) {
			t.Fatal("server never saw phx_leave")
		}
		time.Sleep(10 * time.Millisecond)
	}
}

func TestRealtimeURL(t *testing.T) {
	c := New("https://example.supabase.co/", "key")
	got, err := c.realtimeURL()
	if err != nil {
		t.Fatalf("realtimeURL: %v", err)
	}
	want := "wss://example.supabase.co/realtime/v1/websocket?apikey=key&vsn=1.0.0"
	if got != want {
		t.Fatalf("realtimeURL = %q, want %q", got, want)
	}
}
