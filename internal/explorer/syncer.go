package explorer

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/gridexplore/explorer/internal/logging"
	"github.com/gridexplore/explorer/internal/snapshot"
	"github.com/gridexplore/explorer/pkg/client"
	"github.com/gridexplore/explorer/pkg/models"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
)

// Fetcher lists directories. *client.Client implements it.
type Fetcher interface {
	FetchRootFolders(ctx context.Context) ([]*models.DirectoryNode, error)
	FetchDirectoryContent(ctx context.Context, directoryID string, types ...string) ([]*models.DirectoryNode, error)
}

// Subscriber delivers directory change notifications. *client.Notifier
// implements it.
type Subscriber interface {
	Subscribe(ctx context.Context) (<-chan client.DirectoryEvent, <-chan error)
}

// HealthChecker probes the server. *client.Client implements it.
type HealthChecker interface {
	Ping(ctx context.Context) error
	IsOnline() bool
}

// TokenWatcher reports upcoming token expiry. *client.Client implements it.
type TokenWatcher interface {
	TokenExpiresWithin(d time.Duration) (bool, time.Time)
}

// SyncConfig configures a Syncer. Zero durations disable the matching loop.
type SyncConfig struct {
	Concurrency       int
	RefreshInterval   time.Duration
	HealthCheckPeriod time.Duration
	TokenWarning      time.Duration
	Snapshot          snapshot.Backend

	Notifier Subscriber
	Health   HealthChecker
	Token    TokenWatcher
	Logger   *zap.Logger
}

// Syncer fetches directory listings and feeds them to a Store.
type Syncer struct {
	store   *Store
	fetcher Fetcher
	cfg     SyncConfig
	log     *zap.Logger
}

// NewSyncer creates a syncer for store.
func NewSyncer(store *Store, fetcher Fetcher, cfg SyncConfig) *Syncer {
	if cfg.Concurrency < 1 {
		cfg.Concurrency = 4
	}
	if cfg.TokenWarning == 0 {
		cfg.TokenWarning = 5 * time.Minute
	}
	if cfg.Logger == nil {
		cfg.Logger = logging.Named("syncer")
	}
	return &Syncer{store: store, fetcher: fetcher, cfg: cfg, log: cfg.Logger}
}

// LoadRoots fetches and reconciles the root directories.
func (s *Syncer) LoadRoots(ctx context.Context) error {
	t := s.store.Begin(RootID)
	roots, err := s.fetcher.FetchRootFolders(ctx)
	if err != nil {
		return err
	}
	s.store.ApplyTicket(t, directoriesOnly(roots))
	return nil
}

// Refresh fetches and reconciles the children of one directory. A
// directory the server no longer knows triggers a refresh of its parent so
// it is pruned from the tree.
func (s *Syncer) Refresh(ctx context.Context, id string) error {
	if id == RootID {
		return s.LoadRoots(ctx)
	}

	t := s.store.Begin(id)
	children, err := s.fetcher.FetchDirectoryContent(ctx, id, models.TypeDirectory)
	if errors.Is(err, client.ErrDirectoryNotFound) {
		parent := RootID
		if n, ok := s.store.Node(id); ok {
			parent = n.ParentUUID
		}
		s.log.Info("directory vanished, refreshing parent",
			logging.NodeID(id), zap.String("parent", parent))
		return s.Refresh(ctx, parent)
	}
	if err != nil {
		return err
	}
	s.store.ApplyTicket(t, directoriesOnly(children))
	return nil
}

// Open loads a directory's children and expands it.
func (s *Syncer) Open(ctx context.Context, id string) error {
	if err := s.Refresh(ctx, id); err != nil {
		return fmt.Errorf("open %s: %w", id, err)
	}
	s.store.Expand(id)
	return nil
}

// RefreshExpanded refetches the roots and every expanded directory
// concurrently. Results are applied as they arrive; tickets keep a slow
// response from overwriting a newer one.
func (s *Syncer) RefreshExpanded(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(s.cfg.Concurrency)

	g.Go(func() error {
		if err := s.LoadRoots(ctx); err != nil {
			return fmt.Errorf("roots: %w", err)
		}
		return nil
	})
	for _, id := range s.store.Expanded() {
		id := id
		g.Go(func() error {
			if err := s.Refresh(ctx, id); err != nil {
				return fmt.Errorf("directory %s: %w", id, err)
			}
			return nil
		})
	}
	return g.Wait()
}

// HandleEvent applies one server notification.
func (s *Syncer) HandleEvent(ctx context.Context, ev client.DirectoryEvent) error {
	if ev.Error != "" {
		s.log.Warn("notification reports an error",
			logging.NodeID(ev.DirectoryUUID),
			zap.String("type", ev.NotificationType),
			zap.String("error", ev.Error))
		return nil
	}

	if ev.IsRootDirectory {
		if err := s.LoadRoots(ctx); err != nil {
			return err
		}
	}
	if ev.DirectoryUUID == "" {
		return nil
	}
	if _, known := s.store.Node(ev.DirectoryUUID); !known {
		return nil
	}
	return s.Refresh(ctx, ev.DirectoryUUID)
}

// SaveSnapshot persists the current state when a snapshot backend is set.
func (s *Syncer) SaveSnapshot(ctx context.Context) error {
	if s.cfg.Snapshot == nil {
		return nil
	}
	v := s.store.Snapshot()
	return snapshot.Save(ctx, s.cfg.Snapshot, v.Roots, v.Expanded, v.Selected)
}

// Run keeps the store in sync until ctx is done: notification watch,
// periodic refresh, health check and token expiry warning. Individual fetch
// failures are logged, not returned.
func (s *Syncer) Run(ctx context.Context) error {
	g, ctx := errgroup.WithContext(ctx)

	if s.cfg.Notifier != nil {
		g.Go(func() error {
			s.watchNotifications(ctx)
			return nil
		})
	}
	if s.cfg.RefreshInterval > 0 {
		g.Go(func() error {
			s.refreshLoop(ctx)
			return nil
		})
	}
	if s.cfg.Health != nil && s.cfg.HealthCheckPeriod > 0 {
		g.Go(func() error {
			s.healthLoop(ctx)
			return nil
		})
	}

	err := g.Wait()
	saveCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
	defer cancel()
	if serr := s.SaveSnapshot(saveCtx); serr != nil {
		s.log.Warn("saving snapshot failed", zap.Error(serr))
	}
	return err
}

func (s *Syncer) watchNotifications(ctx context.Context) {
	evs, errs := s.cfg.Notifier.Subscribe(ctx)
	for {
		select {
		case <-ctx.Done():
			return
		case err, ok := <-errs:
			if !ok {
				errs = nil
				continue
			}
			s.log.Debug("notification channel error", zap.Error(err))
		case ev, ok := <-evs:
			if !ok {
				return
			}
			if err := s.HandleEvent(ctx, ev); err != nil && ctx.Err() == nil {
				s.log.Warn("applying notification failed",
					logging.NodeID(ev.DirectoryUUID), zap.Error(err))
			}
		}
	}
}

func (s *Syncer) refreshLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.RefreshInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			start := time.Now()
			if err := s.RefreshExpanded(ctx); err != nil {
				if ctx.Err() == nil {
					s.log.Warn("periodic refresh failed", zap.Error(err))
				}
				continue
			}
			s.log.Debug("periodic refresh done", zap.Duration("duration", time.Since(start)))
			if err := s.SaveSnapshot(ctx); err != nil {
				s.log.Warn("saving snapshot failed", zap.Error(err))
			}
		}
	}
}

func (s *Syncer) healthLoop(ctx context.Context) {
	ticker := time.NewTicker(s.cfg.HealthCheckPeriod)
	defer ticker.Stop()

	var warnedFor time.Time
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			wasOnline := s.cfg.Health.IsOnline()
			err := s.cfg.Health.Ping(ctx)
			if err == nil && !wasOnline {
				s.log.Info("server reachable again, refreshing expanded directories")
				if err := s.RefreshExpanded(ctx); err != nil && ctx.Err() == nil {
					s.log.Warn("refresh after reconnect failed", zap.Error(err))
				}
			}

			if s.cfg.Token == nil {
				continue
			}
			if soon, exp := s.cfg.Token.TokenExpiresWithin(s.cfg.TokenWarning); soon && !exp.Equal(warnedFor) {
				warnedFor = exp
				s.log.Warn("access token expires soon", zap.Time("expires_at", exp))
			}
		}
	}
}

func directoriesOnly(nodes []*models.DirectoryNode) []*models.DirectoryNode {
	out := make([]*models.DirectoryNode, 0, len(nodes))
	for _, n := range nodes {
		if n != nil && n.IsDirectory() {
			out = append(out, n)
		}
	}
	return out
}
