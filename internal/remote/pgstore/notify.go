package pgstore

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus/desk/internal/remote"
)

const (
	defaultListenRetryMin = 1 * time.Second
	defaultListenRetryMax = 30 * time.Second
)

// notification is the payload written by desk_notify_change().
type notification struct {
	Type      string          `json:"type"`
	Table     string          `json:"table"`
	Record    json.RawMessage `json:"record"`
	OldRecord json.RawMessage `json:"old_record"`
}

// ChannelName is the LISTEN channel carrying changes for table.
func ChannelName(table remote.Table) string {
	return "desk_" + string(table)
}

type listenSub struct {
	cancel context.CancelFunc
	done   chan struct{}
}

func (l *listenSub) Close() error {
	l.cancel()
	<-l.done
	return nil
}

// Subscribe holds one pooled connection in LISTEN mode for table and
// delivers decoded notifications until closed. Lost connections are
// re-acquired with capped backoff.
func (s *Store) Subscribe(ctx context.Context, table remote.Table, filter remote.EventFilter, onEvent func(remote.Change)) (remote.Subscription, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	if onEvent == nil {
		return nil, fmt.Errorf("subscribe %s: nil callback", table)
	}
	subCtx, cancel := context.WithCancel(ctx)
	l := &listenSub{cancel: cancel, done: make(chan struct{})}
	go func() {
		defer close(l.done)
		s.listenLoop(subCtx, table, filter, onEvent)
	}()
	return l, nil
}

func (s *Store) retryBounds() (time.Duration, time.Duration) {
	lo, hi := s.ListenRetryMin, s.ListenRetryMax
	if lo <= 0 {
		lo = defaultListenRetryMin
	}
	if hi < lo {
		hi = max(defaultListenRetryMax, lo)
	}
	return lo, hi
}

func (s *Store) listenLoop(ctx context.Context, table remote.Table, filter remote.EventFilter, onEvent func(remote.Change)) {
	backoff, maxBackoff := s.retryBounds()
	for {
		listened, err := s.listenOnce(ctx, table, filter, onEvent)
		if ctx.Err() != nil {
			return
		}
		if listened {
			backoff, _ = s.retryBounds()
		}
		slog.Debug("pgstore: listen lost", "table", table, "err", err, "retry_in", backoff)

		select {
		case <-ctx.Done():
			return
		case <-time.After(backoff):
		}
		backoff = min(backoff*2, maxBackoff)
	}
}

func (s *Store) listenOnce(ctx context.Context, table remote.Table, filter remote.EventFilter, onEvent func(remote.Change)) (bool, error) {
	conn, err := s.Pool.Acquire(ctx)
	if err != nil {
		return false, err
	}
	// A connection left in LISTEN mode must not return to the pool.
	defer func() {
		conn.Conn().Close(context.Background())
		conn.Release()
	}()

	if _, err := conn.Exec(ctx, "LISTEN "+ident(ChannelName(table))); err != nil {
		return false, err
	}
	slog.Debug("pgstore: listening", "table", table)

	for {
		n, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return true, err
		}
		change, ok := decodeNotification(table, n.Payload)
		if !ok || !filter.Matches(change.Type) {
			continue
		}
		onEvent(change)
	}
}

func decodeNotification(table remote.Table, payload string) (remote.Change, bool) {
	var n notification
	if err := json.Unmarshal([]byte(payload), &n); err != nil {
		slog.Warn("pgstore: bad notification payload", "table", table, "err", err)
		return remote.Change{}, false
	}
	return remote.Change{
		Type:  remote.EventType(strings.ToUpper(n.Type)),
		Table: table,
		New:   n.Record,
		Old:   n.OldRecord,
	}, true
}
