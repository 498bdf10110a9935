package pgstore

import (
	"context"
	"fmt"

	"github.com/marcus/desk/internal/remote"
)

const notifyFunction = `
CREATE OR REPLACE FUNCTION desk_notify_change() RETURNS trigger AS $$
BEGIN
	PERFORM pg_notify('desk_' || TG_TABLE_NAME, json_build_object(
		'type', TG_OP,
		'table', TG_TABLE_NAME,
		'record', CASE WHEN TG_OP = 'DELETE' THEN NULL ELSE row_to_json(NEW) END,
		'old_record', CASE WHEN TG_OP = 'INSERT' THEN NULL ELSE row_to_json(OLD) END
	)::text);
	RETURN NULL;
END;
$$ LANGUAGE plpgsql`

// InstallTriggers creates the notify function and one AFTER trigger per
// tracked table. It is idempotent and leaves table definitions alone.
func (s *Store) InstallTriggers(ctx context.Context) error {
	tx, err := s.Pool.Begin(ctx)
	if err != nil {
		return classify("install triggers", "", err)
	}
	defer tx.Rollback(ctx)

	if _, err := tx.Exec(ctx, notifyFunction); err != nil {
		return classify("install triggers", "", err)
	}
	for _, t := range remote.Tables {
		name := ident(string(t))
		stmts := []string{
			fmt.Sprintf("DROP TRIGGER IF EXISTS desk_notify ON %s", name),
			fmt.Sprintf("CREATE TRIGGER desk_notify AFTER INSERT OR UPDATE OR DELETE ON %s FOR EACH ROW EXECUTE FUNCTION desk_notify_change()", name),
		}
		for _, stmt := range stmts {
			if _, err := tx.Exec(ctx, stmt); err != nil {
				return classify("install triggers", t, err)
			}
		}
	}
	if err := tx.Commit(ctx); err != nil {
		return classify("install triggers", "", err)
	}
	return nil
}
