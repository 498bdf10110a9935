package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/remote"
	desksync "github.com/marcus/desk/internal/sync"
	"github.com/marcus/desk/internal/syncconfig"
)

const syncTimeout = 60 * time.Second

var syncCmd = &cobra.Command{
	Use:   "sync",
	Short: "Pull every remote table and replace local data",
	Long: `Runs a full sync: every tracked table is fetched in parallel and, only
if all fetches succeed, replaces the local copy. On any failure local data
is left untouched.

With --status only a liveness probe is made; nothing is pulled.`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{requireRemote: true})
		if err != nil {
			return err
		}
		defer a.close()

		ctx, cancel := context.WithTimeout(cmd.Context(), syncTimeout)
		defer cancel()

		if only, _ := cmd.Flags().GetBool("status"); only {
			err := a.engine.Reconciler.Probe(ctx)
			info := a.engine.Status.Info()
			if jsonOutput(cmd) {
				return output.JSON(statusJSON(info, a.settings.Backend))
			}
			fmt.Printf("Remote: %s (%s)\n", formatConnectivity(info.Status), a.settings.Backend)
			if err != nil {
				fmt.Printf("Error:  %s\n", remote.Describe(err))
			}
			return nil
		}

		if err := a.engine.Reconciler.Resync(ctx); err != nil {
			if errors.Is(err, desksync.ErrBusy) {
				return err
			}
			output.Error("sync failed, local data unchanged: %s", remote.Describe(err))
			return err
		}

		snap := a.state.Snapshot()
		if jsonOutput(cmd) {
			return output.JSON(map[string]int{
				"clients":      len(snap.Clients),
				"accounts":     len(snap.Accounts),
				"tasks":        len(snap.Tasks),
				"transactions": len(snap.Transactions),
				"messages":     len(snap.Messages),
			})
		}
		output.Success("Synced: %d clients, %d accounts, %d tasks, %d transactions, %d messages",
			len(snap.Clients), len(snap.Accounts), len(snap.Tasks), len(snap.Transactions), len(snap.Messages))
		return nil
	},
}

func formatConnectivity(s desksync.Status) string {
	switch s {
	case desksync.StatusOnline:
		return "online"
	case desksync.StatusOffline:
		return "offline"
	default:
		return "checking"
	}
}

func statusJSON(info desksync.StatusInfo, backend syncconfig.Backend) map[string]any {
	out := map[string]any{
		"status":     string(info.Status),
		"backend":    backend,
		"changed_at": info.ChangedAt,
	}
	if info.LastErr != nil {
		out["error"] = remote.Describe(info.LastErr)
	}
	return out
}

func init() {
	syncCmd.Flags().Bool("status", false, "Only probe the remote and report connectivity")
	rootCmd.AddCommand(syncCmd)
}
