// Package collyfetcher implements the static crawler.Fetcher using gocolly.
package collyfetcher

import (
	"context"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

// DefaultUserAgent is a browser-like User-Agent sent when none is configured.
const DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"

// Config controls collector behavior.
type Config struct {
	UserAgent     string
	RespectRobots bool
	Timeout       time.Duration
	CardSelector  string
}

// Fetcher implements crawler.Fetcher with a single HTTP GET per category.
type Fetcher struct {
	cfg           Config
	baseCollector *colly.Collector
	logger        *zap.Logger
}

type collectorHooks interface {
	OnHTML(string, colly.HTMLCallback)
	OnResponse(colly.ResponseCallback)
	OnError(colly.ErrorCallback)
}

// fetchState collects what the hooks observe during one visit.
type fetchState struct {
	html  string
	cards []*goquery.Selection
	err   error
}

// New builds a Fetcher.
func New(cfg Config, logger *zap.Logger) *Fetcher {
	if cfg.UserAgent == "" {
		cfg.UserAgent = DefaultUserAgent
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 10 * time.Second
	}
	if cfg.CardSelector == "" {
		cfg.CardSelector = "div.drop__card"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	// Clones share the base collector's HTTP backend, so the client is
	// configured once here and never per visit.
	c := colly.NewCollector(colly.Async(false))
	c.WithTransport(newHTTPTransport())
	c.SetRequestTimeout(cfg.Timeout)

	return &Fetcher{
		cfg:           cfg,
		baseCollector: c,
		logger:        logger,
	}
}

// Fetch executes a single HTTP GET and returns the matched listing cards.
// Failures are logged and reported through Page.Err with no cards.
func (f *Fetcher) Fetch(ctx context.Context, url string) crawler.Page {
	start := time.Now()
	state := &fetchState{}
	collector := f.buildCollector(state)

	page := crawler.Page{URL: url, Mode: crawler.ModeStatic}
	if err := f.runCollector(ctx, collector, url, state); err != nil {
		f.logger.Warn("static fetch failed", zap.String("url", url), zap.Error(err))
		page.Err = err
		page.Duration = time.Since(start)
		return page
	}

	page.HTML = state.html
	page.Cards = state.cards
	page.Duration = time.Since(start)
	f.logger.Debug("static fetch complete",
		zap.String("url", url),
		zap.Int("cards", len(state.cards)),
		zap.Duration("duration", page.Duration),
	)
	return page
}

func (f *Fetcher) buildCollector(state *fetchState) *colly.Collector {
	collector := f.baseCollector.Clone()
	collector.UserAgent = f.cfg.UserAgent
	collector.IgnoreRobotsTxt = !f.cfg.RespectRobots
	collector.AllowURLRevisit = true

	f.configureCollectorHooks(collector, state)
	return collector
}

func (f *Fetcher) configureCollectorHooks(hooks collectorHooks, state *fetchState) {
	hooks.OnResponse(func(r *colly.Response) {
		state.html = string(r.Body)
	})

	hooks.OnHTML(f.cfg.CardSelector, func(e *colly.HTMLElement) {
		state.cards = append(state.cards, e.DOM)
	})

	hooks.OnError(func(_ *colly.Response, err error) {
		state.err = err
	})
}

func (f *Fetcher) runCollector(ctx context.Context, collector *colly.Collector, url string, state *fetchState) error {
	done := make(chan error, 1)
	go func() {
		done <- collector.Visit(url)
	}()

	select {
	case <-ctx.Done():
		return fmt.Errorf("colly fetch canceled: %w", ctx.Err())
	case err := <-done:
		if err != nil {
			return fmt.Errorf("colly visit failed: %w", err)
		}
		if state.err != nil {
			return fmt.Errorf("colly response failed: %w", state.err)
		}
		return nil
	}
}

func newHTTPTransport() *http.Transport {
	return &http.Transport{
		Proxy: http.ProxyFromEnvironment,
		DialContext: (&net.Dialer{
			Timeout:   10 * time.Second,
			KeepAlive: 30 * time.Second,
		}).DialContext,
		TLSHandshakeTimeout:   10 * time.Second,
		ExpectContinueTimeout: 1 * time.Second,
		MaxIdleConns:          100,
		IdleConnTimeout:       90 * time.Second,
	}
}
