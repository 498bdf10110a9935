// Package remote defines the table-oriented interface over the hosted
// backend. Implementations live in the rest (PostgREST + realtime websocket)
// and pgstore (direct Postgres) subpackages.
package remote

import (
	"context"
	"encoding/json"
	"fmt"
)

// Table names a remote table
type Table string

const (
	TableClients      Table = "clients"
	TableAccounts     Table = "accounts"
	TableTasks        Table = "tasks"
	TableTransactions Table = "transactions"
	TableMessages     Table = "messages"
)

// Tables lists every tracked table in full-sync order.
var Tables = []Table{TableClients, TableAccounts, TableTasks, TableTransactions, TableMessages}

// Validate rejects table names outside the tracked set before any I/O.
func (t Table) Validate() error {
	for _, known := range Tables {
		if t == known {
			return nil
		}
	}
	return fmt.Errorf("unknown table %q", string(t))
}

// EventType is a row-change kind
type EventType string

const (
	EventInsert EventType = "INSERT"
	EventUpdate EventType = "UPDATE"
	EventDelete EventType = "DELETE"
	EventAll    EventType = "*"
)

// EventFilter selects which change events a subscription delivers
type EventFilter struct {
	Event EventType
}

// Matches reports whether a change of type t passes the filter
func (f EventFilter) Matches(t EventType) bool {
	return f.Event == "" || f.Event == EventAll || f.Event == t
}

// Change is one row-change notification
type Change struct {
	Type  EventType
	Table Table
	New   json.RawMessage
	Old   json.RawMessage
}

// Subscription is a live change stream; Close tears it down.
type Subscription interface {
	Close() error
}

// FetchOptions tunes FetchAll
type FetchOptions struct {
	OrderColumn string
	Ascending   bool
	Limit       int
	Columns     string
}

// FetchOption mutates FetchOptions
type FetchOption func(*FetchOptions)

// OrderBy sorts the result by column
func OrderBy(column string, ascending bool) FetchOption {
	return func(o *FetchOptions) {
		o.OrderColumn = column
		o.Ascending = ascending
	}
}

// Limit caps the number of rows returned
func Limit(n int) FetchOption {
	return func(o *FetchOptions) { o.Limit = n }
}

// Select restricts the returned columns (comma-separated)
func Select(columns string) FetchOption {
	return func(o *FetchOptions) { o.Columns = columns }
}

// ApplyFetchOptions folds opts into a FetchOptions value.
func ApplyFetchOptions(opts []FetchOption) FetchOptions {
	o := FetchOptions{Columns: "*"}
	for _, fn := range opts {
		fn(&o)
	}
	return o
}

// Store is the per-table façade over the remote backend. All methods
// perform network I/O only and never touch local state.
type Store interface {
	// FetchAll returns every row of table.
	FetchAll(ctx context.Context, table Table, opts ...FetchOption) ([]json.RawMessage, error)
	// Insert adds a single row.
	Insert(ctx context.Context, table Table, row any) error
	// Upsert replaces rows by primary key. Idempotent.
	Upsert(ctx context.Context, table Table, rows any) error
	// DeleteAll removes every row whose id differs from excludingID.
	DeleteAll(ctx context.Context, table Table, excludingID string) error
	// Subscribe delivers change events for table until the subscription is closed.
	Subscribe(ctx context.Context, table Table, filter EventFilter, onEvent func(Change)) (Subscription, error)
	// Probe performs a single cheap read to test liveness.
	Probe(ctx context.Context) error
	// Close releases connections held by the store.
	Close() error
}
