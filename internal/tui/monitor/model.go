package monitor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/bubbles/spinner"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/state"
	desksync "github.com/marcus/desk/internal/sync"
)

// Counts holds the size of each mirrored collection.
type Counts struct {
	Clients      int
	Accounts     int
	Tasks        int
	Transactions int
	Messages     int
}

// ChatLine is a chat message prepared for display.
type ChatLine struct {
	From   string
	To     string
	Text   string
	At     time.Time
	Unread bool
}

// Model is the Bubble Tea model for the sync monitor.
type Model struct {
	Engine *desksync.Engine
	State  *state.Store
	UserID string

	// Window dimensions
	Width  int
	Height int

	// Panel data
	Status      desksync.StatusInfo
	LastSync    time.Time
	SyncErr     error
	PushPending bool
	LastPush    time.Time
	LastPushErr error
	Counts      Counts
	ByStatus    map[models.TaskStatus]int
	Chat        []ChatLine
	Unread      int

	// UI state
	ShowHelp    bool
	Resyncing   bool
	Composing   bool
	Notice      string
	LastRefresh time.Time

	RefreshInterval time.Duration

	spinner  spinner.Model
	input    textinput.Model
	statusCh <-chan desksync.Status
}

// MinWidth is the minimum terminal width for proper display
const MinWidth = 40

// MinHeight is the minimum terminal height for proper display
const MinHeight = 12

const chatLines = 8

// TickMsg triggers a data refresh
type TickMsg time.Time

// StatusMsg carries a connectivity transition.
type StatusMsg desksync.Status

// ResyncDoneMsg reports the end of a manual resync.
type ResyncDoneMsg struct{ Err error }

// FlushDoneMsg reports the end of a manual push.
type FlushDoneMsg struct{ Err error }

// MarkReadDoneMsg reports how many direct messages were marked read.
type MarkReadDoneMsg struct {
	Count int
	Err   error
}

// SentMsg reports the end of a chat send.
type SentMsg struct {
	Result desksync.SendResult
	Err    error
}

// RefreshDataMsg carries refreshed data
type RefreshDataMsg struct {
	Status      desksync.StatusInfo
	LastSync    time.Time
	SyncErr     error
	PushPending bool
	LastPush    time.Time
	LastPushErr error
	Counts      Counts
	ByStatus    map[models.TaskStatus]int
	Chat        []ChatLine
	Unread      int
	Timestamp   time.Time
}

// NewModel creates a monitor over a started engine.
func NewModel(engine *desksync.Engine, st *state.Store, userID string, interval time.Duration) Model {
	sp := spinner.New(spinner.WithSpinner(spinner.Dot), spinner.WithStyle(spinnerStyle))
	in := textinput.New()
	in.Placeholder = "message to the team channel"
	in.CharLimit = 2000
	return Model{
		Engine:          engine,
		State:           st,
		UserID:          userID,
		RefreshInterval: interval,
		spinner:         sp,
		input:           in,
	}
}

// Init implements tea.Model
func (m Model) Init() tea.Cmd {
	return tea.Batch(
		m.fetchData(),
		m.scheduleTick(),
		m.spinner.Tick,
		m.waitForStatus(),
	)
}

// Update implements tea.Model
func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		if m.Composing {
			return m.handleComposeKey(msg)
		}
		return m.handleKey(msg)

	case tea.WindowSizeMsg:
		m.Width = msg.Width
		m.Height = msg.Height
		m.input.Width = max(10, msg.Width-6)
		return m, nil

	case TickMsg:
		return m, tea.Batch(m.fetchData(), m.scheduleTick())

	case StatusMsg:
		m.Status.Status = desksync.Status(msg)
		return m, tea.Batch(m.fetchData(), m.waitForStatus())

	case ResyncDoneMsg:
		m.Resyncing = false
		switch {
		case msg.Err == desksync.ErrBusy:
			m.Notice = "sync already running"
		case msg.Err != nil:
			m.Notice = "sync failed"
		default:
			m.Notice = "synced"
		}
		return m, m.fetchData()

	case FlushDoneMsg:
		switch {
		case errors.Is(msg.Err, desksync.ErrPushSuppressed):
			m.Notice = "push skipped: " + msg.Err.Error()
		case msg.Err != nil:
			m.Notice = "push failed: " + remote.Describe(msg.Err)
		default:
			m.Notice = "pushed"
		}
		return m, m.fetchData()

	case MarkReadDoneMsg:
		if msg.Err != nil {
			m.Notice = "mark read failed: " + msg.Err.Error()
		} else {
			m.Notice = fmt.Sprintf("marked %d read", msg.Count)
		}
		return m, m.fetchData()

	case SentMsg:
		switch {
		case msg.Err != nil:
			m.Notice = msg.Err.Error()
		case msg.Result.Err != nil:
			m.Notice = "sent locally, remote insert failed"
		default:
			m.Notice = "sent"
		}
		return m, m.fetchData()

	case RefreshDataMsg:
		m.Status = msg.Status
		m.LastSync = msg.LastSync
		m.SyncErr = msg.SyncErr
		m.PushPending = msg.PushPending
		m.LastPush = msg.LastPush
		m.LastPushErr = msg.LastPushErr
		m.Counts = msg.Counts
		m.ByStatus = msg.ByStatus
		m.Chat = msg.Chat
		m.Unread = msg.Unread
		m.LastRefresh = msg.Timestamp
		return m, nil

	case spinner.TickMsg:
		var cmd tea.Cmd
		m.spinner, cmd = m.spinner.Update(msg)
		return m, cmd
	}

	return m, nil
}

// handleKey processes key input
func (m Model) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q", "ctrl+c":
		return m, tea.Quit

	case "r":
		if m.Resyncing {
			return m, nil
		}
		m.Resyncing = true
		m.Notice = ""
		return m, m.resync()

	case "p":
		return m, m.flush()

	case "c":
		m.Composing = true
		m.Notice = ""
		m.input.Reset()
		return m, m.input.Focus()

	case "m":
		return m, m.markRead()

	case "?":
		m.ShowHelp = !m.ShowHelp
		return m, nil
	}

	return m, nil
}

func (m Model) handleComposeKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.Type {
	case tea.KeyEsc:
		m.Composing = false
		m.input.Blur()
		return m, nil
	case tea.KeyEnter:
		text := m.input.Value()
		m.Composing = false
		m.input.Blur()
		return m, m.send(text)
	}
	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

// View implements tea.Model
func (m Model) View() string {
	return m.renderView()
}

// scheduleTick returns a command that sends a TickMsg after the refresh interval
func (m Model) scheduleTick() tea.Cmd {
	return tea.Tick(m.RefreshInterval, func(t time.Time) tea.Msg {
		return TickMsg(t)
	})
}

// fetchData returns a command that gathers the panel data
func (m Model) fetchData() tea.Cmd {
	return func() tea.Msg {
		return FetchData(m.Engine, m.State, m.UserID)
	}
}

// WithStatusUpdates subscribes to connectivity changes so transitions
// redraw immediately instead of on the next tick. Call cancel once the
// program exits.
func (m Model) WithStatusUpdates() (Model, func()) {
	ch, cancel := m.Engine.Status.Subscribe()
	m.statusCh = ch
	return m, cancel
}

func (m Model) waitForStatus() tea.Cmd {
	ch := m.statusCh
	if ch == nil {
		return nil
	}
	return func() tea.Msg {
		s, ok := <-ch
		if !ok {
			return nil
		}
		return StatusMsg(s)
	}
}

func (m Model) resync() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		return ResyncDoneMsg{Err: engine.Reconciler.Resync(context.Background())}
	}
}

func (m Model) flush() tea.Cmd {
	engine := m.Engine
	return func() tea.Msg {
		return FlushDoneMsg{Err: engine.Pusher.Flush(context.Background())}
	}
}

func (m Model) send(text string) tea.Cmd {
	engine, userID := m.Engine, m.UserID
	return func() tea.Msg {
		res, err := engine.Sender.Send(context.Background(), userID, "", text)
		return SentMsg{Result: res, Err: err}
	}
}

func (m Model) markRead() tea.Cmd {
	engine, st, userID := m.Engine, m.State, m.UserID
	return func() tea.Msg {
		var done MarkReadDoneMsg
		for _, u := range st.Users() {
			if u.ID == userID {
				continue
			}
			n, err := engine.Sender.MarkRead(u.ID, userID)
			done.Count += n
			if err != nil {
				done.Err = err
				break
			}
		}
		return done
	}
}

// senderName resolves a user id for display.
func senderName(users []models.User, id string) string {
	for _, u := range users {
		if u.ID == id {
			return u.Name
		}
	}
	if id == "" {
		return "channel"
	}
	return id
}
