package cmd

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/public"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Run the sync engine and the public confirmation/request endpoints",
	Long: `Keeps local data in sync with the remote and serves the public,
unauthenticated endpoints clients use:

  GET  /public-task?id=&token=          task status page data
  POST /public-task/confirm?id=&token=  confirm a completed task
  POST /public-request                  submit a service request

Listens on DESK_LISTEN_ADDR (default :8090).`,
	GroupID: "sync",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd, appOptions{listen: true})
		if err != nil {
			return err
		}
		defer a.close()

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		if err := a.start(ctx); err != nil {
			return err
		}
		if a.engine == nil {
			slog.Warn("no remote configured, serving local data only")
		}

		cfg := public.LoadConfig()
		if addr, _ := cmd.Flags().GetString("addr"); addr != "" {
			cfg.ListenAddr = addr
		}
		srv := public.NewServer(cfg, a.state)
		addr, err := srv.Start()
		if err != nil {
			return err
		}
		slog.Info("server started", "addr", addr)
		output.Info("Listening on %s", addr)

		<-ctx.Done()
		slog.Info("shutting down")

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.ShutdownTimeout)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown", "err", err)
		}
		if a.engine != nil {
			// push anything the public endpoints changed before exiting
			a.flushAfterMutation(shutdownCtx)
		}
		return nil
	},
}

func init() {
	serveCmd.Flags().String("addr", "", "Listen address (overrides DESK_LISTEN_ADDR)")
	rootCmd.AddCommand(serveCmd)
}
