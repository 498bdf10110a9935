package cmd

import (
	"errors"
	"fmt"
	"strings"

	"github.com/charmbracelet/huh"
	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/remote"
	desksync "github.com/marcus/desk/internal/sync"
)

var wipeCmd = &cobra.Command{
	Use:     "wipe",
	Short:   "Delete all remote business data and reset local state",
	GroupID: "system",
	Long: `Deletes every client, account, transaction, task and message from the
remote store, then resets the local copy to the seed users. Stops at the
first table that fails; local data is kept in that case.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		yes, _ := cmd.Flags().GetBool("yes")
		if !yes {
			if !output.IsTerminal() {
				return errors.New("refusing to wipe without --yes")
			}
			confirmed := false
			err := huh.NewConfirm().
				Title("Wipe all remote data?").
				Description("Clients, finance, tasks and chat are deleted for everyone.").
				Affirmative("Wipe").
				Negative("Cancel").
				Value(&confirmed).
				Run()
			if err != nil {
				return err
			}
			if !confirmed {
				output.Info("Cancelled")
				return nil
			}
		}

		a, err := openApp(cmd, appOptions{requireRemote: true})
		if err != nil {
			return err
		}
		defer a.close()

		err = a.engine.Reconciler.Wipe(cmd.Context())
		var we *desksync.WipeError
		switch {
		case errors.As(err, &we):
			done := make([]string, len(we.Deleted))
			for i, t := range we.Deleted {
				done[i] = string(t)
			}
			if len(done) > 0 {
				output.Warning("already deleted: %s", strings.Join(done, ", "))
			}
			return fmt.Errorf("wipe stopped at %s: %s", we.Table, remote.Describe(we.Err))
		case errors.Is(err, desksync.ErrBusy):
			return errors.New("a sync is in progress, try again")
		case err != nil:
			return err
		}
		output.Success("Remote data wiped and local state reset")
		return nil
	},
}

func init() {
	wipeCmd.Flags().BoolP("yes", "y", false, "Skip the confirmation prompt")
	rootCmd.AddCommand(wipeCmd)
}
