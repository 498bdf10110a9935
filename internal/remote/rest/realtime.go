package rest

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"sync"
	"sync/atomic"
	"time"

	"github.com/gorilla/websocket"
	"github.com/marcus/desk/internal/remote"
)

const (
	realtimePath             = "/realtime/v1/websocket"
	defaultHeartbeatInterval = 25 * time.Second
	defaultReconnectMin      = 1 * time.Second
	defaultReconnectMax      = 30 * time.Second
	joinTimeout              = 10 * time.Second
	writeTimeout             = 10 * time.Second
)

// Dialer opens websocket connections. *websocket.Dialer satisfies it.
type Dialer interface {
	DialContext(ctx context.Context, urlStr string, requestHeader http.Header) (*websocket.Conn, *http.Response, error)
}

// phxMessage is one frame of the realtime channel protocol.
type phxMessage struct {
	Topic   string          `json:"topic"`
	Event   string          `json:"event"`
	Payload json.RawMessage `json:"payload"`
	Ref     string          `json:"ref,omitempty"`
}

type changeConfig struct {
	Event  string `json:"event"`
	Schema string `json:"schema"`
	Table  string `json:"table"`
}

type joinPayload struct {
	Config struct {
		PostgresChanges []changeConfig `json:"postgres_changes"`
	} `json:"config"`
	AccessToken string `json:"access_token,omitempty"`
}

type replyPayload struct {
	Status   string          `json:"status"`
	Response json.RawMessage `json:"response"`
}

type changePayload struct {
	Data struct {
		Type      string          `json:"type"`
		Table     string          `json:"table"`
		Record    json.RawMessage `json:"record"`
		OldRecord json.RawMessage `json:"old_record"`
	} `json:"data"`
}

// realtimeSub is a live subscription to one table's change stream. It
// reconnects with capped backoff until closed.
type realtimeSub struct {
	client  *Client
	table   remote.Table
	filter  remote.EventFilter
	onEvent func(remote.Change)
	topic   string

	ctx    context.Context
	cancel context.CancelFunc
	done   chan struct{}
	ref    atomic.Int64

	mu   sync.Mutex
	conn *websocket.Conn
}

// Subscribe opens a realtime channel for table. Connection failures are
// retried in the background; only an invalid table fails immediately.
func (c *Client) Subscribe(ctx context.Context, table remote.Table, filter remote.EventFilter, onEvent func(remote.Change)) (remote.Subscription, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if onEvent == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", table)
	}
	subCtx, cancel := context.WithCancel(ctx)
	s := &realtimeSub{
		client:  c,
		table:   table,
		filter:  filter,
		onEvent: onEvent,
		topic:   "realtime:desk_" + string(table),
		ctx:     subCtx,
		cancel:  cancel,
		done:    make(chan struct{}),
	}
	go s.run()
	return s, nil
}

// realtimeURL derives the websocket endpoint from the REST base URL.
func (c *Client) realtimeURL() (string, error) {
	u, err := url.Parse(c.BaseURL)
	if err != nil {
		return "", err
	}
	switch u.Scheme {
	case "https":
		u.Scheme = "wss"
	case "http":
		u.Scheme = "ws"
	}
	u.Path = strings.TrimRight(u.Path, "/") + realtimePath
	q := url.Values{}
	q.Set("apikey", c.APIKey)
	q.Set("vsn", "1.0.0")
	u.RawQuery = q.Encode()
	return u.String(), nil
}

func (c *Client) heartbeatInterval() time.Duration {
	if c.HeartbeatInterval > 0 {
		return c.HeartbeatInterval
	}
	return defaultHeartbeatInterval
}

func (c *Client) reconnectBounds() (time.Duration, time.Duration) {
	lo, hi := c.ReconnectMin, c.ReconnectMax
	if lo <= 0 {
		lo = defaultReconnectMin
	}
	if hi < lo {
		hi = defaultReconnectMax
		if hi < lo {
			hi = lo
		}
	}
	return lo, hi
}

func (c *Client) dialer() Dialer {
	if c.Dialer != nil {
		return c.Dialer
	}
	return websocket.DefaultDialer
}

func (s *realtimeSub) nextRef() string {
	return strconv.FormatInt(s.ref.Add(1), 10)
}

func (s *realtimeSub) run() {
	defer close(s.done)

	backoff, maxBackoff := s.client.reconnectBounds()
	for {
		connected, err := s.session()
		if s.ctx.Err() != nil {
			return
		}
		if connected {
			backoff, _ = s.client.reconnectBounds()
		}
		slog.Debug("realtime: disconnected", "table", s.table, "err", err, "retry_in", backoff)

		select {
		case <-s.ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff *= 2
		if backoff > maxBackoff {
			backoff = maxBackoff
		}
	}
}

// session runs one connection: dial, join, then read until failure.
// connected reports whether the join succeeded.
func (s *realtimeSub) session() (connected bool, err error) {
	wsURL, err := s.client.realtimeURL()
	if err != nil {
		return false, err
	}
	conn, _, err := s.client.dialer().DialContext(s.ctx, wsURL, nil)
	if err != nil {
		return false, err
	}
	s.mu.Lock()
	s.conn = conn
	s.mu.Unlock()
	defer func() {
		s.mu.Lock()
		s.conn = nil
		s.mu.Unlock()
		conn.Close()
	}()

	if err := s.join(conn); err != nil {
		return false, err
	}
	slog.Debug("realtime: joined", "table", s.table)

	hbCtx, hbCancel := context.WithCancel(s.ctx)
	defer hbCancel()
	go s.heartbeat(hbCtx)

	// Unblock the read below when the subscription is closed.
	stop := context.AfterFunc(s.ctx, func() { conn.Close() })
	defer stop()

	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return true, err
		}
		s.dispatch(msg)
	}
}

func (s *realtimeSub) join(conn *websocket.Conn) error {
	event := string(s.filter.Event)
	if event == "" {
		event = string(remote.EventAll)
	}
	var jp joinPayload
	jp.Config.PostgresChanges = []changeConfig{{Event: event, Schema: "public", Table: string(s.table)}}
	jp.AccessToken = s.client.APIKey
	payload, err := json.Marshal(jp)
	if err != nil {
		return err
	}
	ref := s.nextRef()
	if err := s.write(conn, phxMessage{Topic: s.topic, Event: "phx_join", Payload: payload, Ref: ref}); err != nil {
		return fmt.Errorf("send join: %w", err)
	}

	conn.SetReadDeadline(time.Now().Add(joinTimeout))
	defer conn.SetReadDeadline(time.Time{})
	for {
		var msg phxMessage
		if err := conn.ReadJSON(&msg); err != nil {
			return fmt.Errorf("await join reply: %w", err)
		}
		if msg.Event != "phx_reply" || msg.Ref != ref {
			continue
		}
		var reply replyPayload
		if err := json.Unmarshal(msg.Payload, &reply); err != nil {
			return fmt.Errorf("decode join reply: %w", err)
		}
		if reply.Status != "ok" {
			return fmt.Errorf("join rejected: %s %s", reply.Status, string(reply.Response))
		}
		return nil
	}
}

func (s *realtimeSub) heartbeat(ctx context.Context) {
	ticker := time.NewTicker(s.client.heartbeatInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.mu.Lock()
			conn := s.conn
			s.mu.Unlock()
			if conn == nil {
				return
			}
			msg := phxMessage{Topic: "phoenix", Event: "heartbeat", Payload: json.RawMessage(`{}`), Ref: s.nextRef()}
			if err := s.write(conn, msg); err != nil {
				slog.Debug("realtime: heartbeat", "table", s.table, "err", err)
				return
			}
		}
	}
}

// write serializes frame writes; gorilla connections allow one concurrent writer.
func (s *realtimeSub) write(conn *websocket.Conn, msg phxMessage) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	conn.SetWriteDeadline(time.Now().Add(writeTimeout))
	return conn.WriteJSON(msg)
}

func (s *realtimeSub) dispatch(msg phxMessage) {
	if msg.Event != "postgres_changes" || msg.Topic != s.topic {
		return
	}
	var p changePayload
	if err := json.Unmarshal(msg.Payload, &p); err != nil {
		slog.Warn("realtime: bad change payload", "table", s.table, "err", err)
		return
	}
	ev := remote.EventType(strings.ToUpper(p.Data.Type))
	if !s.filter.Matches(ev) {
		return
	}
	s.onEvent(remote.Change{
		Type:  ev,
		Table: s.table,
		New:   p.Data.Record,
		Old:   p.Data.OldRecord,
	})
}

// Close leaves the channel, drops the connection and waits for the
// background loop to exit. Safe to call more than once.
func (s *realtimeSub) Close() error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn != nil {
		leave := phxMessage{Topic: s.topic, Event: "phx_leave", Payload: json.RawMessage(`{}`), Ref: s.nextRef()}
		if err := s.write(conn, leave); err != nil {
			slog.Debug("realtime: leave", "table", s.table, "err", err)
		}
	}
	s.cancel()
	<-s.done
	return nil
}
