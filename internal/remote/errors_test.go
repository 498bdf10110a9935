package remote

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestErrorClassification(t *testing.T) {
	te := &TransportError{Op: "fetch", Table: TableClients, Err: errors.New("connection refused")}
	ce := &ConstraintError{Op: "upsert", Table: TableTasks, Code: "23502", Message: "null value in column"}

	wrappedT := fmt.Errorf("sync: %w", te)
	wrappedC := fmt.Errorf("push: %w", ce)

	if !IsTransport(wrappedT) || IsConstraint(wrappedT) {
		t.Error("wrapped transport error misclassified")
	}
	if !IsConstraint(wrappedC) || IsTransport(wrappedC) {
		t.Error("wrapped constraint error misclassified")
	}
	if IsTransport(errors.New("plain")) || IsConstraint(errors.New("plain")) {
		t.Error("plain error should match neither class")
	}
}

func TestConstraintErrorUnwrapsSentinel(t *testing.T) {
	err := &ConstraintError{Op: "insert", Table: TableMessages, Message: "JWT expired", Err: ErrUnauthorized}
	if !errors.Is(err, ErrUnauthorized) {
		t.Error("expected errors.Is(ErrUnauthorized)")
	}
}

func TestDescribe(t *testing.T) {
	tests := []struct {
		name string
		err  error
		want string
	}{
		{"nil", nil, "unknown error"},
		{"transport", &TransportError{Op: "probe", Err: errors.New("dial tcp: i/o timeout")}, "network error"},
		{"constraint with details", &ConstraintError{Code: "23505", Message: "duplicate key", Details: "Key (id)=(c1) already exists."}, "duplicate key: Key (id)=(c1) already exists."},
		{"constraint null details", &ConstraintError{Message: "bad", Details: "null"}, "bad"},
		{"constraint code only", &ConstraintError{Code: "PGRST204"}, "PGRST204"},
		{"fetch text", errors.New("TypeError: Failed to fetch"), "network error"},
		{"other", errors.New("boom"), "boom"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := Describe(tt.err)
			if !strings.HasPrefix(got, tt.want) {
				t.Errorf("Describe = %q, want prefix %q", got, tt.want)
			}
		})
	}
}

func TestTableValidate(t *testing.T) {
	for _, tbl := range Tables {
		if err := tbl.Validate(); err != nil {
			t.Errorf("%s: %v", tbl, err)
		}
	}
	if err := Table("users; drop table x").Validate(); err == nil {
		t.Error("expected unknown table error")
	}
}

func TestEventFilterMatches(t *testing.T) {
	if !(EventFilter{}).Matches(EventDelete) {
		t.Error("empty filter should match everything")
	}
	if !(EventFilter{Event: EventAll}).Matches(EventUpdate) {
		t.Error("* should match everything")
	}
	f := EventFilter{Event: EventInsert}
	if !f.Matches(EventInsert) || f.Matches(EventUpdate) {
		t.Error("insert filter mismatch")
	}
}

func TestApplyFetchOptions(t *testing.T) {
	o := ApplyFetchOptions([]FetchOption{OrderBy("created_at", true), Limit(1), Select("id")})
	if o.OrderColumn != "created_at" || !o.Ascending || o.Limit != 1 || o.Columns != "id" {
		t.Errorf("unexpected options %+v", o)
	}
	if d := ApplyFetchOptions(nil); d.Columns != "*" {
		t.Errorf("default columns = %q", d.Columns)
	}
}
