package kb

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/gofrs/flock"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/metrics"
	"github.com/JakeFAU/jobkb-crawler/internal/storage/local"
)

const lockRetryDelay = 100 * time.Millisecond

// Writer commits knowledge base artifacts to a single path.
type Writer struct {
	path   string
	lock   *flock.Flock
	logger *zap.Logger
}

// NewWriter returns a Writer for path. Concurrent writers, in this or other
// processes, serialize on path + ".lock".
func NewWriter(path string, logger *zap.Logger) (*Writer, error) {
	if path == "" {
		return nil, fmt.Errorf("knowledge base path is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Writer{
		path:   path,
		lock:   flock.New(path + ".lock"),
		logger: logger,
	}, nil
}

// Path returns the artifact location.
func (w *Writer) Path() string {
	return w.path
}

// Encode renders kb as indented JSON.
func Encode(kb crawler.KnowledgeBase) ([]byte, error) {
	data, err := json.MarshalIndent(kb, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode knowledge base: %w", err)
	}
	return data, nil
}

// Commit atomically replaces the artifact with kb and returns the bytes
// written. On error the previous artifact is left untouched.
func (w *Writer) Commit(ctx context.Context, kb crawler.KnowledgeBase) ([]byte, error) {
	data, err := w.commit(ctx, kb)
	metrics.ObserveCommit(kb.Metadata.TotalJobs, err)
	if err != nil {
		w.logger.Error("knowledge base commit failed", zap.String("path", w.path), zap.Error(err))
		return nil, err
	}
	w.logger.Info("knowledge base committed",
		zap.String("path", w.path),
		zap.Int("total_jobs", kb.Metadata.TotalJobs),
	)
	return data, nil
}

func (w *Writer) commit(ctx context.Context, kb crawler.KnowledgeBase) ([]byte, error) {
	data, err := Encode(kb)
	if err != nil {
		return nil, err
	}
	if err := os.MkdirAll(filepath.Dir(w.path), 0o750); err != nil {
		return nil, fmt.Errorf("create knowledge base directory: %w", err)
	}
	locked, err := w.lock.TryLockContext(ctx, lockRetryDelay)
	if err != nil {
		return nil, fmt.Errorf("lock knowledge base: %w", err)
	}
	if !locked {
		return nil, fmt.Errorf("lock knowledge base: not acquired")
	}
	defer func() {
		if err := w.lock.Unlock(); err != nil {
			w.logger.Warn("unlock knowledge base", zap.Error(err))
		}
	}()

	if err := local.WriteFileAtomic(w.path, data, 0o644); err != nil {
		return nil, fmt.Errorf("write knowledge base: %w", err)
	}
	return data, nil
}
