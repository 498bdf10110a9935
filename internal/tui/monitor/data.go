package monitor

import (
	"sort"
	"time"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/state"
	desksync "github.com/marcus/desk/internal/sync"
)

// FetchData gathers everything the monitor displays.
func FetchData(engine *desksync.Engine, st *state.Store, userID string) RefreshDataMsg {
	msg := RefreshDataMsg{
		Timestamp: time.Now(),
		Status:    engine.Status.Info(),
		LastSync:  engine.Reconciler.LastSync(),
		SyncErr:   engine.Reconciler.SyncError(),
	}
	msg.PushPending = engine.Pusher.Pending()
	msg.LastPush, msg.LastPushErr = engine.Pusher.LastPush()

	snap := st.Snapshot()
	msg.Counts = Counts{
		Clients:      len(snap.Clients),
		Accounts:     len(snap.Accounts),
		Tasks:        len(snap.Tasks),
		Transactions: len(snap.Transactions),
		Messages:     len(snap.Messages),
	}
	msg.ByStatus = taskBreakdown(snap.Tasks)
	msg.Chat, msg.Unread = chatFeed(st.Users(), snap.Messages, userID, chatLines)
	return msg
}

// chatFeed returns the newest limit messages visible to userID, oldest
// first, and the number of unread direct messages addressed to them.
func chatFeed(users []models.User, msgs []models.ChatMessage, userID string, limit int) ([]ChatLine, int) {
	var lines []ChatLine
	unread := 0
	for _, m := range msgs {
		visible := m.ReceiverID == "" || m.ReceiverID == userID || m.SenderID == userID
		if !visible {
			continue
		}
		isUnread := m.ReceiverID == userID && !m.IsRead
		if isUnread {
			unread++
		}
		text := m.Text
		if m.Type == models.MessageImage {
			text = "[image] " + m.AttachmentURL
		}
		lines = append(lines, ChatLine{
			From:   senderName(users, m.SenderID),
			To:     senderName(users, m.ReceiverID),
			Text:   text,
			At:     m.CreatedAt,
			Unread: isUnread,
		})
	}
	sort.SliceStable(lines, func(i, j int) bool { return lines[i].At.Before(lines[j].At) })
	if len(lines) > limit {
		lines = lines[len(lines)-limit:]
	}
	return lines, unread
}

// taskBreakdown counts tasks per status.
func taskBreakdown(tasks []models.Task) map[models.TaskStatus]int {
	out := map[models.TaskStatus]int{}
	for _, t := range tasks {
		out[t.Status]++
	}
	return out
}
