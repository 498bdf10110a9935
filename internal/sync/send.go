package sync

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
	"github.com/marcus/desk/internal/wire"
)

// ErrEmptyMessage rejects a send with no text and no attachment.
var ErrEmptyMessage = errors.New("message is empty")

// SendResult carries the locally stored message and the outcome of the
// remote insert. A non-nil Err does not undo the local append.
type SendResult struct {
	Message models.ChatMessage
	Err     error
}

// Sender appends chat messages locally and inserts them remotely right
// away, without debouncing.
type Sender struct {
	remote remote.Store
	state  *state.Store
	now    func() time.Time
}

// NewSender creates a sender.
func NewSender(store remote.Store, st *state.Store) *Sender {
	return &Sender{remote: store, state: st, now: time.Now}
}

// Send posts a text message. An empty receiverID addresses the channel.
func (s *Sender) Send(ctx context.Context, senderID, receiverID, text string) (SendResult, error) {
	text = strings.TrimSpace(text)
	if text == "" {
		return SendResult{}, ErrEmptyMessage
	}
	return s.send(ctx, models.ChatMessage{
		SenderID:   senderID,
		ReceiverID: receiverID,
		Text:       text,
		Type:       models.MessageText,
	})
}

// SendImage posts an image message referencing url.
func (s *Sender) SendImage(ctx context.Context, senderID, receiverID, url, caption string) (SendResult, error) {
	if strings.TrimSpace(url) == "" {
		return SendResult{}, ErrEmptyMessage
	}
	return s.send(ctx, models.ChatMessage{
		SenderID:      senderID,
		ReceiverID:    receiverID,
		Text:          strings.TrimSpace(caption),
		Type:          models.MessageImage,
		AttachmentURL: url,
	})
}

func (s *Sender) send(ctx context.Context, msg models.ChatMessage) (SendResult, error) {
	msg.ID = models.NewMessageID()
	msg.CreatedAt = s.now().UTC()
	msg.IsRead = false

	if _, err := s.state.AppendMessageIfAbsent(msg); err != nil {
		// still in memory; the mirror write is retried on the next update
		slog.Error("send: persist locally", "id", msg.ID, "err", err)
	}

	res := SendResult{Message: msg}
	if err := s.remote.Insert(ctx, remote.TableMessages, wire.MessageToWire(msg)); err != nil {
		slog.Warn("send: remote insert failed", "id", msg.ID, "err", err)
		res.Err = err
	}
	return res, nil
}

// MarkRead flags every direct message from senderID to readerID as read.
// It is local only and returns how many messages changed.
func (s *Sender) MarkRead(senderID, readerID string) (int, error) {
	changed := 0
	err := s.state.UpdateMessages(func(ms []models.ChatMessage) []models.ChatMessage {
		for i := range ms {
			if ms[i].SenderID == senderID && ms[i].ReceiverID == readerID && !ms[i].IsRead {
				ms[i].IsRead = true
				changed++
			}
		}
		return ms
	})
	return changed, err
}
