package sync

import (
	gosync "sync"
	"time"
)

// Status is the connectivity state shown to the user.
type Status string

const (
	StatusChecking Status = "checking"
	StatusOnline   Status = "online"
	StatusOffline  Status = "offline"
)

// StatusInfo is a point-in-time view of the reporter.
type StatusInfo struct {
	Status    Status
	LastErr   error
	ChangedAt time.Time
}

// StatusReporter holds the current connectivity status and fans changes
// out to subscribers. Subscribers only ever see the latest value.
type StatusReporter struct {
	mu        gosync.Mutex
	status    Status
	lastErr   error
	changedAt time.Time
	subs      map[int]chan Status
	nextID    int
}

// NewStatusReporter starts in the checking state.
func NewStatusReporter() *StatusReporter {
	return &StatusReporter{
		status:    StatusChecking,
		changedAt: time.Now(),
		subs:      map[int]chan Status{},
	}
}

// Get returns the current status.
func (r *StatusReporter) Get() Status {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.status
}

// Info returns status, last error and change time together.
func (r *StatusReporter) Info() StatusInfo {
	r.mu.Lock()
	defer r.mu.Unlock()
	return StatusInfo{Status: r.status, LastErr: r.lastErr, ChangedAt: r.changedAt}
}

// Set records a new status. Moving to online clears the last error.
func (r *StatusReporter) Set(s Status) {
	r.set(s, nil)
}

// Fail marks the remote unreachable and keeps err for display.
func (r *StatusReporter) Fail(err error) {
	r.set(StatusOffline, err)
}

func (r *StatusReporter) set(s Status, err error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if err != nil || s == StatusOnline {
		r.lastErr = err
	}
	if s == r.status {
		return
	}
	r.status = s
	r.changedAt = time.Now()
	for _, ch := range r.subs {
		// keep only the newest value in each buffer
		select {
		case <-ch:
		default:
		}
		ch <- s
	}
}

// Subscribe returns a channel receiving every status transition. The
// channel is closed by cancel.
func (r *StatusReporter) Subscribe() (<-chan Status, func()) {
	ch := make(chan Status, 1)
	r.mu.Lock()
	id := r.nextID
	r.nextID++
	r.subs[id] = ch
	r.mu.Unlock()

	var once gosync.Once
	return ch, func() {
		once.Do(func() {
			r.mu.Lock()
			delete(r.subs, id)
			r.mu.Unlock()
			close(ch)
		})
	}
}
