package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/syncconfig"
)

var statusCmd = &cobra.Command{
	Use:     "status",
	Short:   "Show local data and sync configuration",
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{})
		if err != nil {
			return err
		}
		defer a.close()

		snap := a.state.Snapshot()
		dir, _ := syncconfig.GetDataDir()
		remoteDesc := "not configured"
		switch {
		case a.engine != nil && a.settings.Backend == syncconfig.BackendPostgres:
			remoteDesc = "postgres"
		case a.engine != nil:
			remoteDesc = a.settings.URL
		}

		unread := 0
		for _, m := range snap.Messages {
			if m.ReceiverID == a.user.ID && !m.IsRead {
				unread++
			}
		}

		if jsonOutput(cmd) {
			return output.JSON(map[string]any{
				"user":         a.user.ID,
				"data_dir":     dir,
				"remote":       remoteDesc,
				"clients":      len(snap.Clients),
				"accounts":     len(snap.Accounts),
				"tasks":        len(snap.Tasks),
				"transactions": len(snap.Transactions),
				"messages":     len(snap.Messages),
				"unread":       unread,
			})
		}

		fmt.Printf("User:     %s (%s)\n", a.user.Name, a.user.Role)
		fmt.Printf("Data dir: %s\n", dir)
		fmt.Printf("Remote:   %s\n", remoteDesc)
		fmt.Println()
		fmt.Printf("  Clients:      %d\n", len(snap.Clients))
		fmt.Printf("  Accounts:     %d\n", len(snap.Accounts))
		fmt.Printf("  Tasks:        %d\n", len(snap.Tasks))
		fmt.Printf("  Transactions: %d\n", len(snap.Transactions))
		fmt.Printf("  Messages:     %d (%d unread)\n", len(snap.Messages), unread)
		return nil
	},
}

func init() {
	rootCmd.AddCommand(statusCmd)
}
