package sync

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/marcus/desk/internal/remote"
)

// wipeOrder deletes dependents before the rows they reference.
var wipeOrder = []remote.Table{
	remote.TableTransactions,
	remote.TableTasks,
	remote.TableMessages,
	remote.TableAccounts,
	remote.TableClients,
}

// wipeSentinelID is excluded from every delete; no real row uses it.
const wipeSentinelID = "0"

// WipeError reports which table a system wipe stopped at.
type WipeError struct {
	Table   remote.Table
	Deleted []remote.Table
	Err     error
}

func (e *WipeError) Error() string {
	return fmt.Sprintf("wipe stopped at %s: %v", e.Table, e.Err)
}

func (e *WipeError) Unwrap() error { return e.Err }

// Wipe deletes all remote business data, then resets local state. The
// reconciliation slot is held throughout so no push or pull interleaves.
// On the first failed delete it stops; local data is only reset when
// every remote delete succeeded.
func (r *Reconciler) Wipe(ctx context.Context) error {
	if !r.tryBegin() {
		return ErrBusy
	}
	defer r.end()

	var deleted []remote.Table
	for _, t := range wipeOrder {
		if err := r.remote.DeleteAll(ctx, t, wipeSentinelID); err != nil {
			if remote.IsTransport(err) {
				r.status.Fail(err)
			}
			slog.Error("wipe: delete failed", "table", t, "deleted", deleted, "err", err)
			return &WipeError{Table: t, Deleted: deleted, Err: err}
		}
		deleted = append(deleted, t)
	}

	if err := r.state.ResetAfterWipe(); err != nil {
		return fmt.Errorf("reset local state: %w", err)
	}
	slog.Info("wipe: complete")
	return nil
}
