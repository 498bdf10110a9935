package cmd

import (
	"fmt"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/tui/monitor"
)

var watchCmd = &cobra.Command{
	Use:     "watch",
	Aliases: []string{"monitor"},
	Short:   "Live dashboard of sync status and team chat",
	Long: `Keeps the sync engine running and shows a live dashboard:
- Sync: connectivity, last full sync, pending push
- Data: record counts by collection and task status
- Chat: recent channel and direct messages, arriving in realtime

Key bindings:
  r   Resync from the remote
  p   Push local edits now
  c   Compose a channel message
  m   Mark direct messages to you as read
  ?   Toggle help
  q   Quit`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{requireRemote: true, listen: true})
		if err != nil {
			return err
		}
		defer a.close()

		if err := a.start(cmd.Context()); err != nil {
			return err
		}

		interval, _ := cmd.Flags().GetDuration("interval")
		if interval < 500*time.Millisecond {
			interval = 2 * time.Second
		}

		model, cancel := monitor.NewModel(a.engine, a.state, a.user.ID, interval).WithStatusUpdates()
		defer cancel()

		p := tea.NewProgram(model, tea.WithAltScreen())
		if _, err := p.Run(); err != nil {
			return fmt.Errorf("error running dashboard: %w", err)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(watchCmd)
	watchCmd.Flags().Duration("interval", 2*time.Second, "Refresh interval")
}
