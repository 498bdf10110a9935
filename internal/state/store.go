// Package state owns every in-memory collection. Each mutation is written
// through to the local mirror and announced to subscribers, which is how
// the push side learns that something changed.
package state

import (
	"log/slog"
	"slices"
	"sync"

	"github.com/marcus/desk/internal/mirror"
	"github.com/marcus/desk/internal/models"
)

// Collection names one owned collection.
type Collection string

const (
	Users        Collection = "users"
	Clients      Collection = "clients"
	Tasks        Collection = "tasks"
	Accounts     Collection = "accounts"
	Transactions Collection = "transactions"
	Messages     Collection = "messages"
	Sales        Collection = "sales"
	Services     Collection = "services"
	Timesheet    Collection = "timesheet"
	Advances     Collection = "advances"
	Theme        Collection = "theme"
)

// Mirrored lists the collections replicated to the remote store.
var Mirrored = []Collection{Clients, Accounts, Tasks, Transactions, Messages}

var mirrorKeys = map[Collection]string{
	Users:        mirror.KeyUsers,
	Clients:      mirror.KeyClients,
	Tasks:        mirror.KeyTasks,
	Accounts:     mirror.KeyAccounts,
	Transactions: mirror.KeyTransactions,
	Messages:     mirror.KeyMessages,
	Sales:        mirror.KeySales,
	Services:     mirror.KeyServices,
	Timesheet:    mirror.KeyTimesheet,
	Advances:     mirror.KeyAdvances,
	Theme:        mirror.KeyTheme,
}

// Change describes one committed mutation.
type Change struct {
	Collections []Collection
	// FromRemote is set when the data came from a pull and must not be
	// pushed back.
	FromRemote bool
}

// Touches reports whether the change includes any of cs.
func (c Change) Touches(cs ...Collection) bool {
	for _, x := range c.Collections {
		if slices.Contains(cs, x) {
			return true
		}
	}
	return false
}

// Snapshot is a full copy of the remotely mirrored collections.
type Snapshot struct {
	Clients      []models.Client
	Accounts     []models.FinancialAccount
	Tasks        []models.Task
	Transactions []models.Transaction
	Messages     []models.ChatMessage
}

// Store holds application state. Safe for concurrent use.
type Store struct {
	m *mirror.Mirror

	mu           sync.RWMutex
	users        []models.User
	clients      []models.Client
	tasks        []models.Task
	accounts     []models.FinancialAccount
	transactions []models.Transaction
	messages     []models.ChatMessage
	sales        []models.Sale
	services     []models.MonthlyService
	timesheet    []models.TimeEntry
	advances     []models.Advance
	theme        models.Theme

	subMu  sync.Mutex
	subs   map[int]func(Change)
	nextID int
}

// Open loads every collection from m, falling back to seed data for keys
// that were never written.
func Open(m *mirror.Mirror) *Store {
	s := &Store{m: m, subs: map[int]func(Change){}}
	s.users = load(m, Users, models.SeedUsers())
	s.clients = load(m, Clients, models.SeedClients())
	s.tasks = load(m, Tasks, models.SeedTasks())
	s.accounts = load(m, Accounts, models.SeedAccounts())
	s.transactions = load(m, Transactions, models.SeedTransactions())
	s.messages = load(m, Messages, models.SeedMessages())
	s.sales = load(m, Sales, []models.Sale{})
	s.services = load(m, Services, []models.MonthlyService{})
	s.timesheet = load(m, Timesheet, []models.TimeEntry{})
	s.advances = load(m, Advances, []models.Advance{})
	s.theme = load(m, Theme, models.ThemeLight)
	return s
}

func load[T any](m *mirror.Mirror, c Collection, fallback T) T {
	v, err := mirror.Load(m, mirrorKeys[c], fallback)
	if err != nil {
		slog.Warn("state: load failed, using defaults", "collection", c, "err", err)
	}
	return v
}

// Subscribe registers fn for every committed change and returns a func
// that unregisters it. fn runs on the mutating goroutine after the lock
// is released.
func (s *Store) Subscribe(fn func(Change)) (cancel func()) {
	s.subMu.Lock()
	id := s.nextID
	s.nextID++
	s.subs[id] = fn
	s.subMu.Unlock()
	return func() {
		s.subMu.Lock()
		delete(s.subs, id)
		s.subMu.Unlock()
	}
}

func (s *Store) notify(c Change) {
	s.subMu.Lock()
	fns := make([]func(Change), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.subMu.Unlock()
	for _, fn := range fns {
		fn(c)
	}
}

// update applies fn to *field under the write lock, persists the result
// and notifies subscribers. The in-memory value is kept even if the
// mirror write fails.
func update[T any](s *Store, c Collection, field *[]T, fn func([]T) []T) error {
	s.mu.Lock()
	next := fn(slices.Clone(*field))
	if next == nil {
		next = []T{}
	}
	*field = next
	err := s.m.Save(mirrorKeys[c], next)
	s.mu.Unlock()

	if err != nil {
		slog.Error("state: persist failed", "collection", c, "err", err)
	}
	s.notify(Change{Collections: []Collection{c}})
	return err
}

func read[T any](s *Store, field *[]T) []T {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(*field)
}

// Users returns a copy of the staff roster.
func (s *Store) Users() []models.User { return read(s, &s.users) }

// User looks up one staff member by id.
func (s *Store) User(id string) (models.User, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	for _, u := range s.users {
		if u.ID == id {
			return u, true
		}
	}
	return models.User{}, false
}

func (s *Store) Clients() []models.Client { return read(s, &s.clients) }
func (s *Store) Accounts() []models.FinancialAccount { return read(s, &s.accounts) }
func (s *Store) Transactions() []models.Transaction { return read(s, &s.transactions) }
func (s *Store) Messages() []models.ChatMessage { return read(s, &s.messages) }
func (s *Store) Sales() []models.Sale { return read(s, &s.sales) }
func (s *Store) Services() []models.MonthlyService { return read(s, &s.services) }
func (s *Store) Timesheet() []models.TimeEntry { return read(s, &s.timesheet) }
func (s *Store) Advances() []models.Advance { return read(s, &s.advances) }

// Tasks returns a copy of the task list. History and attachments are
// copied too so callers can append freely.
func (s *Store) Tasks() []models.Task {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return cloneTasks(s.tasks)
}

func cloneTasks(in []models.Task) []models.Task {
	out := make([]models.Task, len(in))
	for i, t := range in {
		t.History = slices.Clone(t.History)
		t.Attachments = slices.Clone(t.Attachments)
		if t.ClientConfirmation != nil {
			c := *t.ClientConfirmation
			t.ClientConfirmation = &c
		}
		out[i] = t
	}
	return out
}

// Theme returns the stored UI theme.
func (s *Store) Theme() models.Theme {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.theme
}

func (s *Store) UpdateUsers(fn func([]models.User) []models.User) error {
	return update(s, Users, &s.users, fn)
}

func (s *Store) UpdateClients(fn func([]models.Client) []models.Client) error {
	return update(s, Clients, &s.clients, fn)
}

func (s *Store) UpdateAccounts(fn func([]models.FinancialAccount) []models.FinancialAccount) error {
	return update(s, Accounts, &s.accounts, fn)
}

func (s *Store) UpdateTransactions(fn func([]models.Transaction) []models.Transaction) error {
	return update(s, Transactions, &s.transactions, fn)
}

func (s *Store) UpdateMessages(fn func([]models.ChatMessage) []models.ChatMessage) error {
	return update(s, Messages, &s.messages, fn)
}

func (s *Store) UpdateSales(fn func([]models.Sale) []models.Sale) error {
	return update(s, Sales, &s.sales, fn)
}

func (s *Store) UpdateServices(fn func([]models.MonthlyService) []models.MonthlyService) error {
	return update(s, Services, &s.services, fn)
}

func (s *Store) UpdateTimesheet(fn func([]models.TimeEntry) []models.TimeEntry) error {
	return update(s, Timesheet, &s.timesheet, fn)
}

func (s *Store) UpdateAdvances(fn func([]models.Advance) []models.Advance) error {
	return update(s, Advances, &s.advances, fn)
}

// UpdateTasks hands fn a deep copy of the task list.
func (s *Store) UpdateTasks(fn func([]models.Task) []models.Task) error {
	return update(s, Tasks, &s.tasks, func(ts []models.Task) []models.Task {
		return fn(cloneTasks(ts))
	})
}

// UpdateFinance changes accounts and transactions together so a recorded
// transaction and its balance effect are never observed apart.
func (s *Store) UpdateFinance(fn func([]models.FinancialAccount, []models.Transaction) ([]models.FinancialAccount, []models.Transaction, error)) error {
	s.mu.Lock()
	accounts, txs, err := fn(slices.Clone(s.accounts), slices.Clone(s.transactions))
	if err != nil {
		s.mu.Unlock()
		return err
	}
	s.accounts, s.transactions = nonNil(accounts), nonNil(txs)
	err = s.m.SaveMany(map[string]any{
		mirror.KeyAccounts:     s.accounts,
		mirror.KeyTransactions: s.transactions,
	})
	s.mu.Unlock()

	if err != nil {
		slog.Error("state: persist failed", "collection", "finance", "err", err)
	}
	s.notify(Change{Collections: []Collection{Accounts, Transactions}})
	return err
}

// SetTheme stores the UI theme.
func (s *Store) SetTheme(t models.Theme) error {
	s.mu.Lock()
	s.theme = t
	err := s.m.Save(mirror.KeyTheme, t)
	s.mu.Unlock()
	s.notify(Change{Collections: []Collection{Theme}})
	return err
}

// AppendMessageIfAbsent adds msg unless a message with the same id is
// already present. It reports whether msg was added.
func (s *Store) AppendMessageIfAbsent(msg models.ChatMessage) (bool, error) {
	s.mu.Lock()
	for _, m := range s.messages {
		if m.ID == msg.ID {
			s.mu.Unlock()
			return false, nil
		}
	}
	s.messages = append(slices.Clone(s.messages), msg)
	err := s.m.Save(mirror.KeyMessages, s.messages)
	s.mu.Unlock()

	if err != nil {
		slog.Error("state: persist failed", "collection", Messages, "err", err)
	}
	s.notify(Change{Collections: []Collection{Messages}})
	return true, err
}

// Snapshot copies the mirrored collections.
func (s *Store) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		Clients:      slices.Clone(s.clients),
		Accounts:     slices.Clone(s.accounts),
		Tasks:        cloneTasks(s.tasks),
		Transactions: slices.Clone(s.transactions),
		Messages:     slices.Clone(s.messages),
	}
}

// ReplaceRemote swaps in a freshly pulled copy of all five mirrored
// collections at once.
func (s *Store) ReplaceRemote(snap Snapshot) error {
	s.mu.Lock()
	s.clients = nonNil(snap.Clients)
	s.accounts = nonNil(snap.Accounts)
	s.tasks = nonNil(snap.Tasks)
	s.transactions = nonNil(snap.Transactions)
	s.messages = nonNil(snap.Messages)
	err := s.m.SaveMany(map[string]any{
		mirror.KeyClients:      s.clients,
		mirror.KeyAccounts:     s.accounts,
		mirror.KeyTasks:        s.tasks,
		mirror.KeyTransactions: s.transactions,
		mirror.KeyMessages:     s.messages,
	})
	s.mu.Unlock()

	if err != nil {
		slog.Error("state: persist failed", "collection", "remote snapshot", "err", err)
	}
	s.notify(Change{Collections: slices.Clone(Mirrored), FromRemote: true})
	return err
}

// ResetAfterWipe empties business data after the remote tables were
// cleared. Messages go back to the seed greeting and the unmirrored
// local keys are dropped.
func (s *Store) ResetAfterWipe() error {
	s.mu.Lock()
	s.clients = []models.Client{}
	s.tasks = []models.Task{}
	s.accounts = []models.FinancialAccount{}
	s.transactions = []models.Transaction{}
	s.messages = models.SeedMessages()
	s.sales = []models.Sale{}
	s.services = []models.MonthlyService{}
	s.timesheet = []models.TimeEntry{}
	s.advances = []models.Advance{}
	err := s.m.SaveMany(map[string]any{
		mirror.KeyClients:      s.clients,
		mirror.KeyTasks:        s.tasks,
		mirror.KeyAccounts:     s.accounts,
		mirror.KeyTransactions: s.transactions,
		mirror.KeyMessages:     s.messages,
		mirror.KeySales:        s.sales,
		mirror.KeyServices:     s.services,
		mirror.KeyTimesheet:    s.timesheet,
		mirror.KeyAdvances:     s.advances,
	})
	if err == nil {
		err = s.m.Remove(mirror.UnmirroredKeys...)
	}
	s.mu.Unlock()

	s.notify(Change{
		Collections: []Collection{Clients, Tasks, Accounts, Transactions, Messages, Sales, Services, Timesheet, Advances},
		FromRemote:  true,
	})
	return err
}

func nonNil[T any](v []T) []T {
	if v == nil {
		return []T{}
	}
	return v
}
