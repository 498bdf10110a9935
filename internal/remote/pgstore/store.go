// Package pgstore implements remote.Store directly against Postgres. Rows
// travel as JSON so the wire structs used by the REST adapter apply
// unchanged; change notifications arrive over LISTEN/NOTIFY.
package pgstore

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/marcus/desk/internal/remote"
)

// Store is a pgx-backed remote store.
type Store struct {
	Pool *pgxpool.Pool

	// ListenRetryMin and ListenRetryMax bound the LISTEN reconnect backoff.
	ListenRetryMin time.Duration
	ListenRetryMax time.Duration
}

var _ remote.Store = (*Store)(nil)

// Open connects a pool to dsn and verifies it with a ping.
func Open(ctx context.Context, dsn string) (*Store, error) {
	poolCfg, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("parse database url: %w", err)
	}
	poolCfg.MaxConnLifetime = time.Hour
	poolCfg.MaxConns = 10
	poolCfg.MinConns = 1

	pool, err := pgxpool.NewWithConfig(ctx, poolCfg)
	if err != nil {
		return nil, &remote.TransportError{Op: "connect", Err: err}
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, &remote.TransportError{Op: "connect", Err: err}
	}
	return &Store{Pool: pool}, nil
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}

// FetchAll returns every row of table as JSON objects.
func (s *Store) FetchAll(ctx context.Context, table remote.Table, opts ...remote.FetchOption) ([]json.RawMessage, error) {
	if err := table.Validate(); err != nil {
		return nil, err
	}
	o := remote.ApplyFetchOptions(opts)

	cols := "*"
	if o.Columns != "" && o.Columns != "*" {
		parts := strings.Split(o.Columns, ",")
		for i, p := range parts {
			parts[i] = ident(strings.TrimSpace(p))
		}
		cols = strings.Join(parts, ", ")
	}
	q := fmt.Sprintf("SELECT row_to_json(t)::text FROM (SELECT %s FROM %s", cols, ident(string(table)))
	if o.OrderColumn != "" {
		dir := "DESC"
		if o.Ascending {
			dir = "ASC"
		}
		q += fmt.Sprintf(" ORDER BY %s %s", ident(o.OrderColumn), dir)
	}
	if o.Limit > 0 {
		q += fmt.Sprintf(" LIMIT %d", o.Limit)
	}
	q += ") t"

	rows, err := s.Pool.Query(ctx, q)
	if err != nil {
		return nil, classify("fetch", table, err)
	}
	defer rows.Close()

	out := []json.RawMessage{}
	for rows.Next() {
		var text string
		if err := rows.Scan(&text); err != nil {
			return nil, classify("fetch", table, err)
		}
		out = append(out, json.RawMessage(text))
	}
	if err := rows.Err(); err != nil {
		return nil, classify("fetch", table, err)
	}
	return out, nil
}

// Insert adds a single row.
func (s *Store) Insert(ctx context.Context, table remote.Table, row any) error {
	if err := table.Validate(); err != nil {
		return err
	}
	payload, cols, err := encodeRows(row)
	if err != nil {
		return &remote.ConstraintError{Op: "insert", Table: table, Message: "marshal request", Err: err}
	}
	if len(cols) == 0 {
		return nil
	}
	colList := joinIdents(cols)
	q := fmt.Sprintf("INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM json_populate_recordset(NULL::%[1]s, $1::json)",
		ident(string(table)), colList)
	if _, err := s.Pool.Exec(ctx, q, payload); err != nil {
		return classify("insert", table, err)
	}
	return nil
}

// Upsert replaces rows by id. Columns absent from every row keep their
// stored values.
func (s *Store) Upsert(ctx context.Context, table remote.Table, rows any) error {
	if err := table.Validate(); err != nil {
		return err
	}
	payload, cols, err := encodeRows(rows)
	if err != nil {
		return &remote.ConstraintError{Op: "upsert", Table: table, Message: "marshal request", Err: err}
	}
	if len(cols) == 0 {
		return nil
	}

	var sets []string
	for _, c := range cols {
		if c == "id" {
			continue
		}
		sets = append(sets, fmt.Sprintf("%s = EXCLUDED.%s", ident(c), ident(c)))
	}
	conflict := "DO NOTHING"
	if len(sets) > 0 {
		conflict = "DO UPDATE SET " + strings.Join(sets, ", ")
	}
	colList := joinIdents(cols)
	q := fmt.Sprintf("INSERT INTO %[1]s (%[2]s) SELECT %[2]s FROM json_populate_recordset(NULL::%[1]s, $1::json) ON CONFLICT (id) %[3]s",
		ident(string(table)), colList, conflict)
	if _, err := s.Pool.Exec(ctx, q, payload); err != nil {
		return classify("upsert", table, err)
	}
	return nil
}

// DeleteAll removes every row whose id differs from excludingID.
func (s *Store) DeleteAll(ctx context.Context, table remote.Table, excludingID string) error {
	if err := table.Validate(); err != nil {
		return err
	}
	q := fmt.Sprintf("DELETE FROM %s WHERE id <> $1", ident(string(table)))
	if _, err := s.Pool.Exec(ctx, q, excludingID); err != nil {
		return classify("delete", table, err)
	}
	return nil
}

// Probe reads at most one client id.
func (s *Store) Probe(ctx context.Context) error {
	_, err := s.FetchAll(ctx, remote.TableClients, remote.Select("id"), remote.Limit(1))
	return err
}

// Close closes the pool.
func (s *Store) Close() error {
	s.Pool.Close()
	return nil
}

// encodeRows marshals a row or slice of rows into a JSON array and returns
// the sorted union of their keys.
func encodeRows(v any) (string, []string, error) {
	data, err := json.Marshal(v)
	if err != nil {
		return "", nil, err
	}
	trimmed := strings.TrimSpace(string(data))
	if strings.HasPrefix(trimmed, "{") {
		trimmed = "[" + trimmed + "]"
	}
	var objs []map[string]json.RawMessage
	if err := json.Unmarshal([]byte(trimmed), &objs); err != nil {
		return "", nil, fmt.Errorf("rows must be JSON objects: %w", err)
	}
	seen := map[string]bool{}
	var cols []string
	for _, o := range objs {
		for k := range o {
			if !seen[k] {
				seen[k] = true
				cols = append(cols, k)
			}
		}
	}
	sort.Strings(cols)
	return trimmed, cols, nil
}

func joinIdents(cols []string) string {
	quoted := make([]string, len(cols))
	for i, c := range cols {
		quoted[i] = ident(c)
	}
	return strings.Join(quoted, ", ")
}

// classify maps a pgx error onto the remote taxonomy: server-reported
// errors are rejections, everything else is transport.
func classify(op string, table remote.Table, err error) error {
	var pgErr *pgconn.PgError
	if errors.As(err, &pgErr) {
		ce := &remote.ConstraintError{
			Op:      op,
			Table:   table,
			Code:    pgErr.Code,
			Message: pgErr.Message,
			Details: pgErr.Detail,
			Err:     err,
		}
		if pgErr.Code == "42501" || pgErr.Code == "28000" || pgErr.Code == "28P01" {
			ce.Err = fmt.Errorf("%w: %w", remote.ErrUnauthorized, err)
		}
		return ce
	}
	return &remote.TransportError{Op: op, Table: table, Err: err}
}
