package app

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"path/filepath"
	"time"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/kb"
)

// MirrorObject is the blob path the committed artifact is mirrored to.
const MirrorObject = "knowledge_base.json"

// ErrPostCommit wraps failures of the steps that run after a successful
// commit. The committed artifact stays in place when it is returned.
var ErrPostCommit = errors.New("post-commit steps failed")

// Committer persists a knowledge base atomically.
type Committer interface {
	Commit(ctx context.Context, kb crawler.KnowledgeBase) ([]byte, error)
	Path() string
}

// RefreshEvent is published after every successful commit.
type RefreshEvent struct {
	RunID          string    `json:"run_id"`
	TotalJobs      int       `json:"total_jobs"`
	ExtractionTime time.Time `json:"extraction_time"`
	URI            string    `json:"uri"`
	Checksum       string    `json:"sha256,omitempty"`
}

// RunSummary describes one finished crawl run.
type RunSummary struct {
	RunID          string
	TotalJobs      int
	ExtractionTime time.Time
	URI            string
	Checksum       string
	Categories     []CategoryCount
}

// CategoryCount is the number of records stored for one category.
type CategoryCount struct {
	Category string
	Records  int
}

// Pipeline runs one crawl: every category, the build, the commit, and the
// optional post-commit steps.
type Pipeline struct {
	Categories  []crawler.Category
	Concurrency int
	Crawl       crawler.CategoryCrawlerFunc
	Builder     *kb.Builder
	Writer      Committer
	IDs         crawler.IDGenerator
	Hasher      crawler.Hasher
	Logger      *zap.Logger

	// Optional post-commit collaborators; nil disables the step.
	Blobs     crawler.BlobStore
	Records   crawler.RecordStore
	Publisher crawler.Publisher
	Topic     string
}

// Run executes the pipeline. A commit failure aborts the run and is returned
// as is. Post-commit failures are joined and wrapped in ErrPostCommit.
func (p *Pipeline) Run(ctx context.Context) (RunSummary, error) {
	if err := p.validate(); err != nil {
		return RunSummary{}, err
	}
	logger := p.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	runID, err := p.IDs.NewID()
	if err != nil {
		return RunSummary{}, fmt.Errorf("generate run id: %w", err)
	}
	logger = logger.With(zap.String("run_id", runID))
	logger.Info("crawl run started", zap.Int("categories", len(p.Categories)))

	results := crawler.NewRunner(p.Categories, p.Concurrency, p.Crawl).Run(ctx)
	base := p.Builder.Build(results)

	data, err := p.Writer.Commit(ctx, base)
	if err != nil {
		return RunSummary{}, fmt.Errorf("commit knowledge base: %w", err)
	}

	summary := RunSummary{
		RunID:          runID,
		TotalJobs:      base.Metadata.TotalJobs,
		ExtractionTime: base.Metadata.ExtractionTime,
		URI:            fileURI(p.Writer.Path()),
	}
	if p.Hasher != nil {
		sum, err := p.Hasher.Hash(data)
		if err != nil {
			logger.Warn("artifact checksum failed", zap.Error(err))
		}
		summary.Checksum = sum
	}
	for _, part := range base.Categories {
		summary.Categories = append(summary.Categories, CategoryCount{Category: part.Category, Records: len(part.Records)})
	}

	var errs []error
	if p.Blobs != nil {
		uri, err := p.Blobs.PutObject(ctx, MirrorObject, "application/json", bytes.NewReader(data))
		if err != nil {
			errs = append(errs, fmt.Errorf("mirror artifact: %w", err))
		} else {
			summary.URI = uri
			logger.Info("artifact mirrored", zap.String("uri", uri))
		}
	}
	if p.Records != nil {
		var all []crawler.JobRecord
		for _, part := range base.Categories {
			all = append(all, part.Records...)
		}
		if err := p.Records.UpsertRecords(ctx, runID, base.Metadata.ExtractionTime, crawler.Dedup(all)); err != nil {
			errs = append(errs, fmt.Errorf("store records: %w", err))
		}
	}
	if p.Publisher != nil && p.Topic != "" {
		event := RefreshEvent{
			RunID:          runID,
			TotalJobs:      summary.TotalJobs,
			ExtractionTime: summary.ExtractionTime,
			URI:            summary.URI,
			Checksum:       summary.Checksum,
		}
		if msgID, err := p.Publisher.Publish(ctx, p.Topic, event); err != nil {
			errs = append(errs, fmt.Errorf("publish refresh: %w", err))
		} else {
			logger.Info("refresh published", zap.String("topic", p.Topic), zap.String("message_id", msgID))
		}
	}

	logger.Info("crawl run finished",
		zap.Int("total_jobs", summary.TotalJobs),
		zap.String("uri", summary.URI),
		zap.String("sha256", summary.Checksum),
	)
	if len(errs) > 0 {
		err := errors.Join(errs...)
		logger.Warn("post-commit steps failed", zap.Error(err))
		return summary, fmt.Errorf("%w: %w", ErrPostCommit, err)
	}
	return summary, nil
}

func (p *Pipeline) validate() error {
	switch {
	case p.Crawl == nil:
		return errors.New("pipeline: crawl func is required")
	case p.Builder == nil:
		return errors.New("pipeline: builder is required")
	case p.Writer == nil:
		return errors.New("pipeline: writer is required")
	case p.IDs == nil:
		return errors.New("pipeline: id generator is required")
	}
	return nil
}

func fileURI(path string) string {
	if abs, err := filepath.Abs(path); err == nil {
		path = abs
	}
	return "file://" + path
}
