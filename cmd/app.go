package cmd

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/marcus/dealbook/internal/config"
	"github.com/marcus/dealbook/internal/docstore"
	"github.com/marcus/dealbook/internal/identity"
	"github.com/marcus/dealbook/internal/output"
	"github.com/marcus/dealbook/internal/serverdb"
	"github.com/marcus/dealbook/internal/statemgr"
	dsync "github.com/marcus/dealbook/internal/sync"
	"github.com/marcus/dealbook/internal/syncclient"
)

// app is one CLI invocation acting as a client device.
type app struct {
	cfg       *config.Config
	ids       *identity.Provider
	storage   identity.Storage
	remote    docstore.Store
	storeURL  string
	principal string
	timeout   time.Duration
	mgr       *statemgr.Manager
	close     func() error
}

func setupLogging(cmd *cobra.Command) error {
	level := slog.LevelWarn
	if dir, err := config.Dir(); err == nil {
		if cfg, err := config.Load(dir); err == nil {
			level = parseLevel(cfg.GetLogLevel())
		}
	}
	if debug, _ := cmd.Flags().GetBool("debug"); debug {
		level = slog.LevelDebug
	}
	handler := slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level})
	slog.SetDefault(slog.New(handler))
	return nil
}

func parseLevel(s string) slog.Level {
	switch strings.ToLower(s) {
	case "debug":
		return slog.LevelDebug
	case "info":
		return slog.LevelInfo
	case "error":
		return slog.LevelError
	default:
		return slog.LevelWarn
	}
}

// openApp resolves config, identity and the document store and builds the manager.
// The caller must call a.Close.
func openApp(cmd *cobra.Command) (*app, error) {
	dir, dirErr := config.Dir()
	cfg := &config.Config{}
	if dirErr == nil {
		loaded, err := config.Load(dir)
		if err != nil {
			return nil, fmt.Errorf("load config: %w", err)
		}
		cfg = loaded
	}

	a := &app{cfg: cfg, close: func() error { return nil }}

	noPersist, _ := cmd.Flags().GetBool("no-persist")
	switch {
	case noPersist:
		a.storage = identity.NewMemoryStorage()
	case dirErr != nil:
		slog.Warn("config dir unavailable, client id will not persist", "err", dirErr)
		a.storage = identity.UnavailableStorage{}
	default:
		a.storage = identity.NewFileStorage(dir)
	}
	a.ids = identity.NewProvider(a.storage)

	a.principal = cfg.GetPrincipal()
	if p, _ := cmd.Flags().GetString("principal"); p != "" {
		a.principal = p
	}
	a.storeURL = cfg.GetStoreURL()
	if s, _ := cmd.Flags().GetString("store"); s != "" {
		a.storeURL = s
	}
	a.timeout = cfg.GetTimeout()
	if d, _ := cmd.Flags().GetDuration("timeout"); d > 0 {
		a.timeout = d
	}

	refresh := cfg.GetRefreshInterval()
	if f := cmd.Flags().Lookup("interval"); f != nil && f.Changed {
		refresh, _ = cmd.Flags().GetDuration("interval")
	}

	remote, closeFn, err := openRemote(a.storeURL, a.ids.ClientID())
	if err != nil {
		return nil, err
	}
	a.remote = remote
	a.close = closeFn

	a.mgr = statemgr.New(remote, a.ids,
		statemgr.WithActivityLimit(cfg.GetActivityLimit()),
		statemgr.WithSyncConfig(dsync.Config{
			Debounce:        cfg.GetDebounce(),
			RefreshInterval: refresh,
			PushTimeout:     a.timeout,
		}),
	)
	slog.Debug("app ready", "principal", a.principal, "store", a.storeURL, "client", a.ids.ClientID())
	return a, nil
}

// Close releases the document store.
func (a *app) Close() error {
	return a.close()
}

// openRemote opens the store named by rawURL. An empty URL means no store.
//
//	http://host:port, https://...   store server
//	file:path.db, sqlite:path.db    local SQLite document db
//	memory:                         in-process store, gone on exit
func openRemote(rawURL, clientID string) (docstore.Store, func() error, error) {
	noop := func() error { return nil }
	switch {
	case rawURL == "":
		return nil, noop, nil
	case rawURL == "memory:":
		return docstore.NewMemory(), noop, nil
	case strings.HasPrefix(rawURL, "http://"), strings.HasPrefix(rawURL, "https://"):
		return syncclient.New(rawURL, clientID), noop, nil
	case strings.HasPrefix(rawURL, "file:"), strings.HasPrefix(rawURL, "sqlite:"):
		path := rawURL[strings.Index(rawURL, ":")+1:]
		path = strings.TrimPrefix(path, "//")
		if path == "" {
			return nil, nil, fmt.Errorf("store %q: missing path", rawURL)
		}
		db, err := serverdb.Open(path)
		if err != nil {
			return nil, nil, fmt.Errorf("open store %s: %w", path, err)
		}
		return db, db.Close, nil
	}
	return nil, nil, fmt.Errorf("unsupported store %q (want http(s)://, file:, sqlite: or memory:)", rawURL)
}

// connect pulls the principal's document. Without a principal the app stays local-only
// and connect reports false.
func (a *app) connect(ctx context.Context) (bool, error) {
	if a.principal == "" {
		return false, nil
	}
	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()
	if err := a.mgr.Init(ctx, a.principal); err != nil {
		return false, fmt.Errorf("pull %s: %w", a.principal, err)
	}
	return true, nil
}

// runMutation pulls, applies fn and pushes the result before returning.
func runMutation(cmd *cobra.Command, fn func(a *app) error) error {
	a, err := openApp(cmd)
	if err != nil {
		output.Error("%v", err)
		return err
	}
	defer a.Close()

	connected, err := a.connect(cmd.Context())
	if err != nil {
		output.Error("%v", err)
		return err
	}
	if err := fn(a); err != nil {
		return err
	}
	if !connected {
		output.Warning("not connected to a principal; the change was not saved (use --principal)")
		return nil
	}

	ctx, cancel := context.WithTimeout(cmd.Context(), a.timeout)
	defer cancel()
	return reportPush(a.mgr.Flush(ctx))
}

// reportPush prints the outcome of a push. A conflict is only a warning: the remote copy
// is left as is and the local change is dropped when the process exits.
func reportPush(res dsync.PushResult) error {
	switch res.Status {
	case dsync.PushConflict:
		output.Warning("not saved: %v", res.Err)
		output.Info("Run 'dealbook pull' to load the latest copy, then retry.")
		return nil
	case dsync.PushFailed:
		output.Error("save failed: %v", res.Err)
		return res.Err
	case dsync.PushSkipped:
		output.Warning("not saved: %v", res.Err)
		return nil
	}
	return nil
}

// readDoc pulls the document for read-only commands. Without a principal it returns
// the local default document.
func readDoc(cmd *cobra.Command) (*app, error) {
	a, err := openApp(cmd)
	if err != nil {
		output.Error("%v", err)
		return nil, err
	}
	connected, err := a.connect(cmd.Context())
	if err != nil {
		a.Close()
		output.Error("%v", err)
		return nil, err
	}
	if !connected {
		output.Warning("not connected to a principal; showing an empty local document")
	}
	return a, nil
}
