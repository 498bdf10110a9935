package cmd

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/desk/internal/mirror"
	"github.com/marcus/desk/internal/models"
	"github.com/marcus/desk/internal/output"
	"github.com/marcus/desk/internal/remote"
	"github.com/marcus/desk/internal/remote/pgstore"
	"github.com/marcus/desk/internal/remote/rest"
	"github.com/marcus/desk/internal/state"
	desksync "github.com/marcus/desk/internal/sync"
	"github.com/marcus/desk/internal/syncconfig"
)

// flushTimeout bounds the push a one-shot command does before exiting.
const flushTimeout = 15 * time.Second

// app is what every command works against: the local mirror and state,
// plus the remote store and sync engine when a remote is configured.
type app struct {
	mirror   *mirror.Mirror
	state    *state.Store
	remote   remote.Store
	engine   *desksync.Engine
	settings syncconfig.Settings
	user     models.User
	started  bool
	// pullErr is set when the pull before an edit failed; the edit then
	// stays local.
	pullErr error
}

type appOptions struct {
	// requireRemote fails instead of running local-only.
	requireRemote bool
	// listen keeps the realtime subscription (long-running commands).
	listen bool
}

// openApp opens the local mirror and, if configured, the remote backend.
// A missing or invalid remote configuration leaves the app local-only.
func openApp(cmd *cobra.Command, opts appOptions) (*app, error) {
	dir, err := syncconfig.GetDataDir()
	if err != nil {
		return nil, err
	}
	m, err := mirror.Open(dir)
	if err != nil {
		return nil, err
	}
	a := &app{mirror: m, state: state.Open(m)}

	if a.user, err = resolveUser(cmd, a.state); err != nil {
		m.Close()
		return nil, err
	}

	settings, err := syncconfig.Resolve(time.Now())
	a.settings = settings
	if err != nil {
		if opts.requireRemote {
			m.Close()
			return nil, err
		}
		if !errors.Is(err, syncconfig.ErrNoRemote) {
			slog.Warn("remote disabled", "err", err)
		}
		return a, nil
	}

	store, err := openRemote(cmd.Context(), settings)
	if err != nil {
		if opts.requireRemote {
			m.Close()
			return nil, fmt.Errorf("connect remote: %s", remote.Describe(err))
		}
		slog.Warn("remote unavailable, working locally", "err", remote.Describe(err))
		return a, nil
	}
	a.remote = store
	a.engine = desksync.NewEngine(store, a.state, desksync.Options{
		PushDebounce:    settings.PushDebounce,
		ProbeInterval:   settings.ProbeInterval,
		DisableListener: !opts.listen,
	})
	return a, nil
}

func openRemote(ctx context.Context, s syncconfig.Settings) (remote.Store, error) {
	switch s.Backend {
	case syncconfig.BackendPostgres:
		if ctx == nil {
			ctx = context.Background()
		}
		return pgstore.Open(ctx, s.DatabaseURL)
	default:
		return rest.New(s.URL, s.AnonKey), nil
	}
}

// resolveUser picks the acting user: --as, then DESK_USER or the config
// file, then the first known user.
func resolveUser(cmd *cobra.Command, st *state.Store) (models.User, error) {
	id, _ := cmd.Flags().GetString("as")
	if id == "" {
		id = syncconfig.GetUser()
	}
	if id == "" {
		users := st.Users()
		if len(users) == 0 {
			return models.User{}, errors.New("no users in local store")
		}
		return users[0], nil
	}
	u, ok := st.User(id)
	if !ok {
		return models.User{}, fmt.Errorf("unknown user %q", id)
	}
	return u, nil
}

// start launches the engine for long-running commands.
func (a *app) start(ctx context.Context) error {
	if a.engine == nil {
		return nil
	}
	if err := a.engine.Start(ctx); err != nil {
		return err
	}
	a.started = true
	return nil
}

func (a *app) close() {
	if a.engine != nil && a.started {
		a.engine.Stop()
	}
	if a.remote != nil {
		if err := a.remote.Close(); err != nil {
			slog.Debug("close remote", "err", err)
		}
	}
	if err := a.mirror.Close(); err != nil {
		slog.Debug("close mirror", "err", err)
	}
}

// pullBeforeMutation refreshes local data from the remote so the push
// after the edit carries current rows, not seed or stale ones. On failure
// the edit still applies locally and flushAfterMutation skips the push.
func (a *app) pullBeforeMutation(ctx context.Context) {
	if a.engine == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := a.engine.Reconciler.Resync(ctx); err != nil {
		a.pullErr = err
		slog.Warn("pull before edit failed", "err", err)
	}
}

// flushAfterMutation pushes local edits right away so a one-shot command
// does not exit before its debounce fires. Failures are logged and the
// local change stays in place.
func (a *app) flushAfterMutation(ctx context.Context) {
	if a.engine == nil {
		slog.Debug("flush: no remote configured")
		return
	}
	if a.pullErr != nil {
		output.Warning("not synced, change kept locally: %s", remote.Describe(a.pullErr))
		return
	}
	ctx, cancel := context.WithTimeout(ctx, flushTimeout)
	defer cancel()
	if err := a.engine.Pusher.Flush(ctx); err != nil {
		slog.Warn("push failed, change kept locally", "err", err)
		if !errors.Is(err, desksync.ErrPushSuppressed) {
			output.Warning("not synced: %s", remote.Describe(err))
		}
	}
}

// jsonOutput reports whether --json was given.
func jsonOutput(cmd *cobra.Command) bool {
	v, _ := cmd.Flags().GetBool("json")
	return v
}

// userName resolves an id for display, falling back to the id.
func (a *app) userName(id string) string {
	if u, ok := a.state.User(id); ok {
		return u.Name
	}
	return id
}
