// Package app wires configuration into the crawl pipeline and the read side.
package app

import (
	"context"
	"errors"
	"fmt"
	"path/filepath"

	gcsclient "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/clock/system"
	"github.com/JakeFAU/jobkb-crawler/internal/config"
	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/export"
	"github.com/JakeFAU/jobkb-crawler/internal/extract"
	collyfetcher "github.com/JakeFAU/jobkb-crawler/internal/fetcher/colly"
	"github.com/JakeFAU/jobkb-crawler/internal/fetcher/headless"
	"github.com/JakeFAU/jobkb-crawler/internal/hash/sha256"
	"github.com/JakeFAU/jobkb-crawler/internal/id/uuid"
	"github.com/JakeFAU/jobkb-crawler/internal/kb"
	"github.com/JakeFAU/jobkb-crawler/internal/policy/ratelimit"
	pubsubpublisher "github.com/JakeFAU/jobkb-crawler/internal/publisher/pubsub"
	"github.com/JakeFAU/jobkb-crawler/internal/storage/gcs"
	"github.com/JakeFAU/jobkb-crawler/internal/storage/local"
	memstore "github.com/JakeFAU/jobkb-crawler/internal/storage/memory"
	"github.com/JakeFAU/jobkb-crawler/internal/storage/postgres"
)

// App holds the long-lived services of one crawl process.
type App struct {
	cfg      config.Config
	logger   *zap.Logger
	pipeline *Pipeline
	closers  []func() error
}

// browserProbe is swapped in tests.
var browserProbe = headless.Probe

// New builds every collaborator the configuration asks for. Optional
// backends that fail to initialize abort startup.
func New(ctx context.Context, cfg config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{cfg: cfg, logger: logger}

	fetcher, err := a.newFetcher()
	if err != nil {
		return nil, err
	}

	exporter, err := export.NewCSVExporter(cfg.Output.Dir, logger.Named("export"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init exporter: %w", err)
	}
	limiter := ratelimit.New(ratelimit.Config{RequestsPerSecond: cfg.Crawler.RequestsPerSecond})

	categoryCrawler, err := crawler.NewCategoryCrawler(
		fetcher,
		extract.New(extract.DefaultSelectors()),
		exporter,
		limiter,
		logger.Named("crawler"),
	)
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init category crawler: %w", err)
	}

	builder, err := kb.NewBuilder(exporter, system.New(), cfg.Crawler.DefaultCategory, logger.Named("kb"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init builder: %w", err)
	}
	writer, err := kb.NewWriter(cfg.Output.KnowledgeBase, logger.Named("kb.writer"))
	if err != nil {
		a.Close()
		return nil, fmt.Errorf("init writer: %w", err)
	}

	a.pipeline = &Pipeline{
		Categories:  cfg.Categories,
		Concurrency: cfg.Crawler.Concurrency,
		Crawl:       categoryCrawler.Crawl,
		Builder:     builder,
		Writer:      writer,
		IDs:         uuid.New(),
		Hasher:      sha256.New(),
		Logger:      logger.Named("pipeline"),
		Topic:       cfg.PubSub.TopicName,
	}

	if err := a.initBlobStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initRecordStore(ctx); err != nil {
		a.Close()
		return nil, err
	}
	if err := a.initPublisher(ctx); err != nil {
		a.Close()
		return nil, err
	}
	return a, nil
}

// Pipeline returns the configured crawl pipeline.
func (a *App) Pipeline() *Pipeline {
	return a.pipeline
}

// Run executes one crawl.
func (a *App) Run(ctx context.Context) (RunSummary, error) {
	return a.pipeline.Run(ctx)
}

// Close releases browser, database, and client resources.
func (a *App) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			a.logger.Warn("error closing resource", zap.Error(err))
		}
	}
	a.closers = nil
}

// newFetcher selects the fetch strategy once. auto uses the scroll fetcher
// when a Chrome binary is available and falls back to static HTTP otherwise.
func (a *App) newFetcher() (crawler.Fetcher, error) {
	mode := a.cfg.Fetch.Mode
	if mode == config.FetchModeAuto {
		if path, err := browserProbe(a.cfg.Headless.ExecPath); err != nil {
			a.logger.Info("headless browser not found, using static fetcher", zap.Error(err))
			mode = config.FetchModeStatic
		} else {
			a.logger.Info("headless browser found", zap.String("path", path))
			mode = config.FetchModeScroll
		}
	}

	switch mode {
	case config.FetchModeStatic:
		return collyfetcher.New(collyfetcher.Config{
			UserAgent:     a.cfg.Crawler.UserAgent,
			RespectRobots: a.cfg.Crawler.RespectRobots,
			Timeout:       a.cfg.FetchTimeout(),
			CardSelector:  a.cfg.Fetch.CardSelector,
		}, a.logger.Named("fetcher.static")), nil
	case config.FetchModeScroll:
		f, err := headless.NewChromedp(headless.Config{
			UserAgent:         a.cfg.Crawler.UserAgent,
			ExecPath:          a.cfg.Headless.ExecPath,
			CardSelector:      a.cfg.Fetch.CardSelector,
			InitialWait:       a.cfg.InitialWait(),
			SettleTime:        a.cfg.SettleTime(),
			MaxScrollAttempts: a.cfg.Headless.MaxScrollAttempts,
			NavigationTimeout: a.cfg.NavigationTimeout(),
		}, a.logger.Named("fetcher.scroll"))
		if err != nil {
			return nil, fmt.Errorf("init scroll fetcher: %w", err)
		}
		a.closers = append(a.closers, func() error { f.Close(); return nil })
		return f, nil
	default:
		return nil, fmt.Errorf("unknown fetch mode %q", mode)
	}
}

func (a *App) initBlobStore(ctx context.Context) error {
	switch a.cfg.Storage.Backend {
	case config.StorageNone, "":
		return nil
	case config.StorageLocal:
		store, err := local.New(local.Config{BaseDir: filepath.Join(a.cfg.Storage.LocalDir, a.cfg.Storage.Prefix)})
		if err != nil {
			return fmt.Errorf("init local blob store: %w", err)
		}
		a.pipeline.Blobs = store
	case config.StorageMemory:
		a.pipeline.Blobs = memstore.NewBlobStore()
	case config.StorageGCS:
		client, err := gcsclient.NewClient(ctx)
		if err != nil {
			return fmt.Errorf("create gcs client: %w", err)
		}
		a.closers = append(a.closers, client.Close)
		store, err := gcs.New(client, gcs.Config{Bucket: a.cfg.Storage.GCSBucket, Prefix: a.cfg.Storage.Prefix})
		if err != nil {
			return fmt.Errorf("init gcs blob store: %w", err)
		}
		a.pipeline.Blobs = store
	default:
		return fmt.Errorf("unknown storage backend %q", a.cfg.Storage.Backend)
	}
	a.logger.Info("artifact mirror enabled", zap.String("backend", a.cfg.Storage.Backend))
	return nil
}

func (a *App) initRecordStore(ctx context.Context) error {
	if a.cfg.DB.DSN == "" {
		return nil
	}
	store, err := postgres.NewRecordStore(ctx, postgres.RecordStoreConfig{
		DSN:      a.cfg.DB.DSN,
		Table:    a.cfg.DB.Table,
		MaxConns: a.cfg.DB.MaxConns,
	})
	if err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	a.closers = append(a.closers, func() error { store.Close(); return nil })
	if err := store.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("init record store: %w", err)
	}
	a.pipeline.Records = store
	return nil
}

func (a *App) initPublisher(ctx context.Context) error {
	if a.cfg.PubSub.TopicName == "" {
		return nil
	}
	pub, err := pubsubpublisher.NewFromProject(ctx, a.cfg.PubSub.ProjectID)
	if err != nil {
		return fmt.Errorf("init publisher: %w", err)
	}
	a.closers = append(a.closers, pub.Close)
	a.pipeline.Publisher = pub
	return nil
}

// IsPostCommit reports whether err came from a step after a successful commit.
func IsPostCommit(err error) bool {
	return errors.Is(err, ErrPostCommit)
}
