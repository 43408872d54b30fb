// Package kb assembles, persists, and serves the job knowledge base.
package kb

import (
	"fmt"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
	"github.com/JakeFAU/jobkb-crawler/internal/metrics"
)

// Builder aggregates category results into a KnowledgeBase and writes the
// combined export.
type Builder struct {
	exporter        crawler.Exporter
	clock           crawler.Clock
	defaultCategory string
	logger          *zap.Logger
}

// NewBuilder constructs a Builder. defaultCategory receives the global sample
// when a run produces no records at all.
func NewBuilder(exporter crawler.Exporter, clock crawler.Clock, defaultCategory string, logger *zap.Logger) (*Builder, error) {
	if clock == nil {
		return nil, fmt.Errorf("clock is required")
	}
	if defaultCategory == "" {
		return nil, fmt.Errorf("default category is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Builder{
		exporter:        exporter,
		clock:           clock,
		defaultCategory: defaultCategory,
		logger:          logger,
	}, nil
}

// Build returns the knowledge base for results, kept in the given order.
// Per-category partitions are stored as-is; only the combined export is
// deduplicated across categories. total_jobs is the sum of partition lengths.
func (b *Builder) Build(results []crawler.CategoryResult) crawler.KnowledgeBase {
	parts := make(crawler.Partitions, 0, len(results))
	var all []crawler.JobRecord
	for _, res := range results {
		records := append([]crawler.JobRecord(nil), res.Records...)
		parts = append(parts, crawler.CategoryResult{Category: res.Category, Records: records})
		all = append(all, records...)
	}

	combined := crawler.Dedup(all)
	if len(combined) == 0 {
		sample := crawler.GlobalSampleRecord(b.defaultCategory)
		parts = appendToPartition(parts, b.defaultCategory, sample)
		combined = []crawler.JobRecord{sample}
		metrics.ObserveFallback("run")
		b.logger.Warn("run produced no records, using global sample",
			zap.String("category", b.defaultCategory))
	}

	if b.exporter != nil {
		if err := b.exporter.WriteCombined(combined); err != nil {
			b.logger.Warn("combined export failed", zap.Error(err))
		}
	}

	kb := crawler.KnowledgeBase{
		Metadata: crawler.Metadata{
			TotalJobs:      parts.Total(),
			ExtractionTime: b.clock.Now(),
		},
		Categories: parts,
	}
	b.logger.Info("knowledge base built",
		zap.Int("categories", len(parts)),
		zap.Int("total_jobs", kb.Metadata.TotalJobs),
		zap.Int("combined", len(combined)),
	)
	return kb
}

func appendToPartition(parts crawler.Partitions, category string, rec crawler.JobRecord) crawler.Partitions {
	for i := range parts {
		if parts[i].Category == category {
			parts[i].Records = append(parts[i].Records, rec)
			return parts
		}
	}
	return append(parts, crawler.CategoryResult{Category: category, Records: []crawler.JobRecord{rec}})
}
