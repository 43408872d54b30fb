package crawler

import (
	"context"

	"golang.org/x/sync/errgroup"
)

// CategoryCrawlerFunc crawls one category.
type CategoryCrawlerFunc func(ctx context.Context, category, url string) CategoryResult

// Runner crawls every configured category and returns results in category order.
type Runner struct {
	categories  []Category
	concurrency int
	crawl       CategoryCrawlerFunc
}

// NewRunner builds a Runner. A concurrency below 2 crawls categories sequentially.
func NewRunner(categories []Category, concurrency int, crawl CategoryCrawlerFunc) *Runner {
	if concurrency < 1 {
		concurrency = 1
	}
	cp := make([]Category, len(categories))
	copy(cp, categories)
	return &Runner{categories: cp, concurrency: concurrency, crawl: crawl}
}

// Run crawls all categories. It returns only after every category finished.
func (r *Runner) Run(ctx context.Context) []CategoryResult {
	results := make([]CategoryResult, len(r.categories))
	if r.concurrency == 1 {
		for i, cat := range r.categories {
			results[i] = r.crawl(ctx, cat.Name, cat.URL)
		}
		return results
	}

	var g errgroup.Group
	g.SetLimit(r.concurrency)
	for i, cat := range r.categories {
		g.Go(func() error {
			results[i] = r.crawl(ctx, cat.Name, cat.URL)
			return nil
		})
	}
	// Crawls never fail; Wait is the join barrier.
	_ = g.Wait()
	return results
}
