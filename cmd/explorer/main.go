// Directory explorer client
//
// Keeps a local, partially loaded copy of the directory tree in sync with
// the directory server:
// - lazy per-directory loading with structural sharing
// - live updates over the notification socket
// - periodic refresh and health check for offline recovery
// - warm start from a local snapshot
//
// Sub-commands:
//
//	explorer tree [flags]        Load roots, open directories, print the tree
//	explorer watch [flags]       Stay in sync and print tree events
//	explorer path <id> [flags]   Print the breadcrumb of a directory from the snapshot
package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gridexplore/explorer/internal/config"
	"github.com/gridexplore/explorer/internal/events"
	"github.com/gridexplore/explorer/internal/explorer"
	"github.com/gridexplore/explorer/internal/logging"
	"github.com/gridexplore/explorer/internal/metrics"
	"github.com/gridexplore/explorer/internal/snapshot"
	"github.com/gridexplore/explorer/pkg/client"
	"github.com/gridexplore/explorer/pkg/tree"
	flag "github.com/spf13/pflag"
	"go.uber.org/zap"
)

func main() {
	cmd, args := "tree", os.Args[1:]
	if len(args) > 0 && !strings.HasPrefix(args[0], "-") {
		cmd, args = args[0], args[1:]
	}

	var err error
	switch cmd {
	case "tree":
		err = cmdTree(args)
	case "watch":
		err = cmdWatch(args)
	case "path":
		err = cmdPath(args)
	case "help":
		usage()
		return
	default:
		fmt.Fprintf(os.Stderr, "Error: unknown command %q\n\n", cmd)
		usage()
		os.Exit(2)
	}

	logging.Sync()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func usage() {
	fmt.Fprintln(os.Stderr, `Usage:
  explorer tree [flags]        Load roots, open directories, print the tree
  explorer watch [flags]       Stay in sync and print tree events
  explorer path <id> [flags]   Print the breadcrumb of a directory from the snapshot

Run "explorer <command> --help" for flags.`)
}

// commonFlags registers the flags shared by every command, defaulting to
// the environment configuration.
func commonFlags(fs *flag.FlagSet, cfg *config.Config) {
	fs.StringVar(&cfg.ServerURL, "server", cfg.ServerURL, "Directory server URL")
	fs.StringVar(&cfg.NotifyURL, "notify", cfg.NotifyURL, "Notification server URL (ws or wss, derived from --server when empty)")
	fs.StringVar(&cfg.Token, "token", cfg.Token, "Bearer token")
	fs.StringVar(&cfg.Locale, "locale", cfg.Locale, "Locale used to sort directory names")
	fs.StringVar(&cfg.SnapshotPath, "snapshot", cfg.SnapshotPath, "Snapshot file or s3://bucket/key for warm start (empty disables)")
	fs.StringVar(&cfg.LogLevel, "log-level", cfg.LogLevel, "Log level: debug, info, warn, error")
	fs.StringVar(&cfg.LogFormat, "log-format", cfg.LogFormat, "Log format: console or json")
	fs.DurationVar(&cfg.RequestTimeout, "timeout", cfg.RequestTimeout, "HTTP request timeout")
	fs.IntVarP(&cfg.FetchConcurrency, "concurrency", "c", cfg.FetchConcurrency, "Concurrent directory fetches")
	fs.BoolVar(&cfg.CheckConsistency, "check", cfg.CheckConsistency, "Validate the cached tree after every change")
}

// setup parses flags, then configures logging and collation.
func setup(name string, args []string, extra func(*flag.FlagSet, *config.Config)) (*config.Config, *flag.FlagSet, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, nil, err
	}

	fs := flag.NewFlagSet(name, flag.ExitOnError)
	commonFlags(fs, cfg)
	if extra != nil {
		extra(fs, cfg)
	}
	if err := fs.Parse(args); err != nil {
		return nil, nil, err
	}
	cfg.ResolveNotifyURL()
	if err := cfg.Validate(); err != nil {
		return nil, nil, err
	}

	if err := logging.Init(logging.Config{
		Level:      cfg.LogLevel,
		Format:     cfg.LogFormat,
		OutputPath: "stderr",
	}); err != nil {
		return nil, nil, fmt.Errorf("init logging: %w", err)
	}
	if err := tree.SetCollationLocale(cfg.Locale); err != nil {
		return nil, nil, err
	}
	return cfg, fs, nil
}

// newClient builds the REST client. With an OIDC issuer configured the
// token is verified first, so a bad token fails here rather than on the
// first fetch.
func newClient(ctx context.Context, cfg *config.Config) (*client.Client, error) {
	verifier, err := client.NewTokenVerifier(ctx, client.OIDCConfig{
		IssuerURL: cfg.OIDCIssuerURL,
		ClientID:  cfg.OIDCClientID,
	})
	if err != nil {
		return nil, err
	}
	if verifier != nil && cfg.Token != "" {
		id, err := verifier.Verify(ctx, cfg.Token)
		if err != nil {
			return nil, err
		}
		logging.L().Info("authenticated",
			zap.String("user", id.Username),
			zap.Time("expires_at", id.ExpiresAt))
	}

	return client.New(client.Config{
		BaseURL:   cfg.ServerURL,
		Timeout:   cfg.RequestTimeout,
		AuthToken: cfg.Token,
	}), nil
}

func signalContext() (context.Context, context.CancelFunc) {
	return signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
}

func openSnapshot(ctx context.Context, cfg *config.Config) (snapshot.Backend, error) {
	if cfg.SnapshotPath == "" {
		return nil, nil
	}
	return snapshot.Open(ctx, cfg.SnapshotPath, snapshot.S3Config{
		Endpoint:  cfg.S3Endpoint,
		Region:    cfg.S3Region,
		AccessKey: cfg.S3AccessKey,
		SecretKey: cfg.S3SecretKey,
	})
}

// restore loads the snapshot into store when one is configured.
func restore(ctx context.Context, backend snapshot.Backend, store *explorer.Store) bool {
	if backend == nil {
		return false
	}
	st, err := snapshot.Load(ctx, backend)
	if err != nil {
		if !errors.Is(err, snapshot.ErrNotFound) {
			logging.L().Warn("ignoring snapshot", zap.Stringer("location", backend), zap.Error(err))
		}
		return false
	}
	store.Restore(st)
	return true
}

func cmdTree(args []string) error {
	var open []string
	var all bool
	cfg, _, err := setup("tree", args, func(fs *flag.FlagSet, _ *config.Config) {
		fs.StringSliceVarP(&open, "open", "o", nil, "Directory ids to open, in order")
		fs.BoolVarP(&all, "all", "a", false, "Print loaded but collapsed directories too")
	})
	if err != nil {
		return err
	}

	ctx, cancel := signalContext()
	defer cancel()

	c, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	backend, err := openSnapshot(ctx, cfg)
	if err != nil {
		return err
	}
	store := explorer.NewStore(explorer.StoreOptions{CheckConsistency: cfg.CheckConsistency})
	sy := explorer.NewSyncer(store, c, explorer.SyncConfig{
		Concurrency: cfg.FetchConcurrency,
		Snapshot:    backend,
	})

	warm := restore(ctx, backend, store)
	if warm {
		err = sy.RefreshExpanded(ctx)
	} else {
		err = sy.LoadRoots(ctx)
	}
	if err != nil {
		if !warm || !errors.Is(err, client.ErrOffline) {
			return err
		}
		logging.L().Warn("server unreachable, showing snapshot", zap.Error(err))
	}

	for _, id := range open {
		if err := sy.Open(ctx, id); err != nil {
			return err
		}
	}

	v := store.Snapshot()
	p := newPrinter(os.Stdout)
	p.expanded = make(map[string]bool, len(v.Expanded))
	for _, id := range v.Expanded {
		p.expanded[id] = true
	}
	p.all = all
	p.printForest(v.Roots)

	return sy.SaveSnapshot(ctx)
}

func cmdWatch(args []string) error {
	cfg, _, err := setup("watch", args, func(fs *flag.FlagSet, cfg *config.Config) {
		fs.DurationVar(&cfg.RefreshInterval, "refresh", cfg.RefreshInterval, "Periodic refresh interval (0 to disable)")
		fs.DurationVar(&cfg.HealthCheckPeriod, "health-check", cfg.HealthCheckPeriod, "Health check interval for offline recovery")
		fs.StringVar(&cfg.MetricsAddr, "metrics", cfg.MetricsAddr, "Address to serve /metrics on (empty disables)")
	})
	if err != nil {
		return err
	}
	metricsAddr := cfg.MetricsAddr

	ctx, cancel := signalContext()
	defer cancel()

	if metricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", metrics.Handler())
		srv := &http.Server{
			Addr:              metricsAddr,
			Handler:           logging.Middleware(mux),
			ReadHeaderTimeout: 5 * time.Second,
		}
		go func() {
			logging.L().Info("metrics listening", zap.String("addr", metricsAddr))
			if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				logging.L().Error("metrics server failed", zap.Error(err))
			}
		}()
		defer func() {
			shutdownCtx, done := context.WithTimeout(context.Background(), 5*time.Second)
			defer done()
			srv.Shutdown(shutdownCtx)
		}()
	}

	c, err := newClient(ctx, cfg)
	if err != nil {
		return err
	}
	backend, err := openSnapshot(ctx, cfg)
	if err != nil {
		return err
	}
	broadcaster := events.NewBroadcaster()
	store := explorer.NewStore(explorer.StoreOptions{Events: broadcaster, CheckConsistency: cfg.CheckConsistency})
	notifier := client.NewNotifier(client.NotifierConfig{
		URL:   cfg.NotifyURL,
		Token: c.AuthToken,
	})
	sy := explorer.NewSyncer(store, c, explorer.SyncConfig{
		Concurrency:       cfg.FetchConcurrency,
		RefreshInterval:   cfg.RefreshInterval,
		HealthCheckPeriod: cfg.HealthCheckPeriod,
		Snapshot:          backend,
		Notifier:          notifier,
		Health:            c,
		Token:             c,
	})

	sub := broadcaster.Subscribe()
	defer broadcaster.Unsubscribe(sub)
	go printEvents(ctx, os.Stdout, store, sub)

	if restore(ctx, backend, store) {
		err = sy.RefreshExpanded(ctx)
	} else {
		err = sy.LoadRoots(ctx)
	}
	if err != nil {
		logging.L().Warn("initial load failed, waiting for the server", zap.Error(err))
	}

	logging.L().Info("watching directory tree",
		zap.String("server", cfg.ServerURL),
		zap.String("notify", cfg.NotifyURL))
	return sy.Run(ctx)
}

func printEvents(ctx context.Context, w io.Writer, store *explorer.Store, sub chan events.TreeEvent) {
	for {
		select {
		case <-ctx.Done():
			return
		case ev, ok := <-sub:
			if !ok {
				return
			}
			v := store.Snapshot()
			label := ev.NodeID
			if n, ok := v.Nodes[ev.NodeID]; ok {
				label = n.ElementName
			}
			fmt.Fprintf(w, "%s #%d %-8s %s (%d directories)\n",
				time.UnixMilli(ev.Timestamp).Format(time.TimeOnly), ev.Seq, ev.Type, label, len(v.Nodes))
		}
	}
}

func cmdPath(args []string) error {
	cfg, fs, err := setup("path", args, nil)
	if err != nil {
		return err
	}
	if fs.NArg() != 1 {
		return fmt.Errorf("usage: explorer path <id> --snapshot FILE")
	}
	if cfg.SnapshotPath == "" {
		return fmt.Errorf("--snapshot or EXPLORER_SNAPSHOT is required")
	}

	ctx, cancel := signalContext()
	defer cancel()

	backend, err := openSnapshot(ctx, cfg)
	if err != nil {
		return err
	}
	st, err := snapshot.Load(ctx, backend)
	if err != nil {
		return err
	}
	path := tree.BuildPathToFromMap(fs.Arg(0), st.Nodes)
	if len(path) == 0 {
		return fmt.Errorf("directory %s is not in the snapshot", fs.Arg(0))
	}
	fmt.Println(formatBreadcrumb(path))
	return nil
}
