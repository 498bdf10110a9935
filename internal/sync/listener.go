package sync

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	gosync "sync"

	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/wire"
)

// ErrAlreadyListening is returned by Start on a running listener.
var ErrAlreadyListening = errors.New("listener already started")

// Listener appends chat messages inserted remotely by other clients.
type Listener struct {
	remote remote.Store
	state  *state.Store

	mu  gosync.Mutex
	sub remote.Subscription
}

// NewListener creates a stopped listener.
func NewListener(store remote.Store, st *state.Store) *Listener {
	return &Listener{remote: store, state: st}
}

// Start opens the message insert subscription.
func (l *Listener) Start(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.sub != nil {
		return ErrAlreadyListening
	}
	sub, err := l.remote.Subscribe(ctx, remote.TableMessages, remote.EventFilter{Event: remote.EventInsert}, l.handle)
	if err != nil {
		return err
	}
	l.sub = sub
	return nil
}

// Stop closes the subscription. Stopping a stopped listener is a no-op.
func (l *Listener) Stop() error {
	l.mu.Lock()
	sub := l.sub
	l.sub = nil
	l.mu.Unlock()
	if sub == nil {
		return nil
	}
	return sub.Close()
}

func (l *Listener) handle(ch remote.Change) {
	if ch.Type != remote.EventInsert || len(ch.New) == 0 {
		return
	}
	var w wire.Message
	if err := json.Unmarshal(ch.New, &w); err != nil {
		slog.Warn("listener: bad message row", "err", err)
		return
	}
	msg := wire.MessageFromWire(w)
	if msg.ID == "" {
		return
	}
	added, err := l.state.AppendMessageIfAbsent(msg)
	if err != nil {
		slog.Error("listener: persist message", "id", msg.ID, "err", err)
	}
	if added {
		slog.Debug("listener: message received", "id", msg.ID, "sender", msg.SenderID)
	}
}
