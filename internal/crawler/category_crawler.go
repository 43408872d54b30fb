package crawler

import (
	"context"
	"errors"

	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/metrics"
)

// CategoryCrawler drives a Fetcher and an Extractor for a single category.
type CategoryCrawler struct {
	fetcher   Fetcher
	extractor Extractor
	exporter  Exporter
	waiter    Waiter
	logger    *zap.Logger
}

// NewCategoryCrawler wires a CategoryCrawler. exporter and waiter are optional.
func NewCategoryCrawler(
	fetcher Fetcher,
	extractor Extractor,
	exporter Exporter,
	waiter Waiter,
	logger *zap.Logger,
) (*CategoryCrawler, error) {
	if fetcher == nil {
		return nil, errors.New("fetcher is required")
	}
	if extractor == nil {
		return nil, errors.New("extractor is required")
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &CategoryCrawler{
		fetcher:   fetcher,
		extractor: extractor,
		exporter:  exporter,
		waiter:    waiter,
		logger:    logger,
	}, nil
}

// Crawl fetches one category and returns its deduplicated records. The result
// is never empty: a category that yields nothing gets a single sample record.
func (c *CategoryCrawler) Crawl(ctx context.Context, category, url string) CategoryResult {
	logger := c.logger.With(zap.String("category", category), zap.String("url", url))
	logger.Info("crawling category")

	records := c.collect(ctx, category, url, logger)
	records = Dedup(records)
	if len(records) == 0 {
		logger.Warn("no records extracted; substituting sample record")
		metrics.ObserveFallback("category")
		records = []JobRecord{SampleRecord(category)}
	}
	metrics.ObserveRecords(category, len(records))

	if c.exporter != nil {
		if err := c.exporter.WriteCategory(category, records); err != nil {
			logger.Warn("category export failed", zap.Error(err))
		}
	}

	logger.Info("category crawled", zap.Int("records", len(records)))
	return CategoryResult{Category: category, Records: records}
}

func (c *CategoryCrawler) collect(ctx context.Context, category, url string, logger *zap.Logger) []JobRecord {
	if c.waiter != nil {
		if err := c.waiter.Wait(ctx, url); err != nil {
			logger.Warn("fetch skipped", zap.Error(err))
			return nil
		}
	}

	page := c.fetcher.Fetch(ctx, url)
	metrics.ObserveFetch(category, page.Mode, page.Err != nil, page.Duration)
	if page.Mode == ModeScroll {
		metrics.ObserveScrollAttempts(page.ScrollAttempts)
	}
	if page.Err != nil {
		logger.Warn("fetch returned no data", zap.Error(page.Err))
	}

	records := make([]JobRecord, 0, len(page.Cards))
	for _, card := range page.Cards {
		rec := c.extractor.Extract(card, category)
		rec.Category = category
		records = append(records, rec)
	}
	logger.Debug("cards extracted", zap.Int("cards", len(page.Cards)))
	return records
}
