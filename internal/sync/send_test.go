package sync

import (
	"context"
	"errors"
	"strings"
	"testing"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/remote"
)

func TestSendAppendsThenInserts(t *testing.T) {
	fs := newFakeStore()
	st := newTestState(t)
	s := NewSender(fs, st)

	res, err := s.Send(context.Background(), "u1", "", "  hello team  ")
	if err != nil || res.Err != nil {
		t.Fatalf("Send: err=%v res.Err=%v", err, res.Err)
	}
	if !strings.HasPrefix(res.Message.ID, "m") || res.Message.Text != "hello team" {
		t.Fatalf("message = %+v", res.Message)
	}

	msgs := st.Messages()
	if msgs[len(msgs)-1].ID != res.Message.ID {
		t.Fatal("message not appended locally")
	}
	if len(fs.inserts) != 1 {
		t.Fatalf("inserts = %d, want 1", len(fs.inserts))
	}
	row := fs.inserts[0]
	if row["id"] != res.Message.ID || row["sender_id"] != "u1" || row["receiver_id"] != nil {
		t.Fatalf("inserted row = %v", row)
	}
	if len(fs.upsertCalls()) != 0 {
		t.Fatal("send must not go through upsert")
	}
}

func TestSendFailureKeepsLocalMessage(t *testing.T) {
	fs := newFakeStore()
	fs.insertErr = &remote.TransportError{Op: "insert", Table: remote.TableMessages, Err: errors.New("timeout")}
	st := newTestState(t)
	s := NewSender(fs, st)

	res, err := s.Send(context.Background(), "u2", "u3", "are you on site?")
	if err != nil {
		t.Fatalf("Send returned fatal error: %v", err)
	}
	if !remote.IsTransport(res.Err) {
		t.Fatalf("res.Err = %v, want transport error", res.Err)
	}
	msgs := st.Messages()
	if last := msgs[len(msgs)-1]; last.ID != res.Message.ID || last.ReceiverID != "u3" {
		t.Fatalf("local message missing after failed insert: %+v", last)
	}
}

func TestSendRejectsEmpty(t *testing.T) {
	s := NewSender(newFakeStore(), newTestState(t))
	if _, err := s.Send(context.Background(), "u1", "", "   "); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("err = %v, want ErrEmptyMessage", err)
	}
	if _, err := s.SendImage(context.Background(), "u1", "", "", "caption"); !errors.Is(err, ErrEmptyMessage) {
		t.Fatalf("image err = %v, want ErrEmptyMessage", err)
	}
}

func TestSendImage(t *testing.T) {
	fs := newFakeStore()
	s := NewSender(fs, newTestState(t))
	res, err := s.SendImage(context.Background(), "u3", "", "https://files.example/p.jpg", "")
	if err != nil || res.Err != nil {
		t.Fatalf("SendImage: %v %v", err, res.Err)
	}
	if res.Message.Type != models.MessageImage || fs.inserts[0]["attachment_url"] != "https://files.example/p.jpg" {
		t.Fatalf("unexpected image message %+v / %v", res.Message, fs.inserts[0])
	}
}

func TestMarkRead(t *testing.T) {
	st := newTestState(t)
	st.UpdateMessages(func(ms []models.ChatMessage) []models.ChatMessage {
		return append(ms,
			models.ChatMessage{ID: "m1", SenderID: "u2", ReceiverID: "u1"},
			models.ChatMessage{ID: "m2", SenderID: "u2", ReceiverID: "u1"},
			models.ChatMessage{ID: "m3", SenderID: "u2", ReceiverID: "u3"},
			models.ChatMessage{ID: "m4", SenderID: "u2"},
		)
	})
	s := NewSender(newFakeStore(), st)

	n, err := s.MarkRead("u2", "u1")
	if err != nil || n != 2 {
		t.Fatalf("MarkRead = %d, %v; want 2", n, err)
	}
	for _, m := range st.Messages() {
		want := m.ID == "m0" || m.ID == "m1" || m.ID == "m2"
		if m.IsRead != want {
			t.Fatalf("message %s read=%v, want %v", m.ID, m.IsRead, want)
		}
	}
}
