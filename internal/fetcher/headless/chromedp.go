// Package headless contains fetchers that execute JavaScript via browsers.
package headless

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/chromedp/cdproto/emulation"
	"github.com/chromedp/chromedp"
	"go.uber.org/zap"

	"github.com/JakeFAU/jobkb-crawler/internal/crawler"
)

// ErrBrowserUnavailable is returned by Probe when no Chrome binary can be found.
var ErrBrowserUnavailable = errors.New("headless browser unavailable")

// Config controls the behavior of the scroll fetcher.
type Config struct {
	UserAgent         string
	ExecPath          string
	CardSelector      string
	InitialWait       time.Duration
	SettleTime        time.Duration
	MaxScrollAttempts int
	NavigationTimeout time.Duration
}

// session is one browser tab.
type session interface {
	Navigate(ctx context.Context, url string) error
	ScrollHeight(ctx context.Context) (int64, error)
	ScrollToBottom(ctx context.Context) error
	HTML(ctx context.Context) (string, error)
}

type sleepFunc func(ctx context.Context, d time.Duration) error

// Fetcher implements crawler.Fetcher by scrolling a headless Chrome tab until
// the page stops growing.
type Fetcher struct {
	cfg         Config
	allocator   context.Context
	allocCancel context.CancelFunc
	logger      *zap.Logger

	openSession func(ctx context.Context) (session, context.Context, context.CancelFunc)
	sleep       sleepFunc
}

var browserCandidates = []string{
	"headless-shell",
	"chromium",
	"chromium-browser",
	"google-chrome",
	"google-chrome-stable",
}

// Probe reports whether a Chrome binary is usable. An explicit execPath is
// checked directly; otherwise well-known binary names are searched on PATH.
func Probe(execPath string) (string, error) {
	if execPath != "" {
		if _, err := os.Stat(execPath); err != nil {
			return "", fmt.Errorf("%w: %v", ErrBrowserUnavailable, err)
		}
		return execPath, nil
	}
	for _, name := range browserCandidates {
		if path, err := exec.LookPath(name); err == nil {
			return path, nil
		}
	}
	return "", fmt.Errorf("%w: none of %s found on PATH", ErrBrowserUnavailable, strings.Join(browserCandidates, ", "))
}

// NewChromedp creates a scroll fetcher backed by chromedp.
func NewChromedp(cfg Config, logger *zap.Logger) (*Fetcher, error) {
	if cfg.MaxScrollAttempts < 0 {
		return nil, fmt.Errorf("max scroll attempts must be >= 0")
	}
	cfg = withDefaults(cfg)
	if logger == nil {
		logger = zap.NewNop()
	}

	opts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.Flag("disable-gpu", true),
		chromedp.Flag("no-sandbox", true),
		chromedp.Flag("disable-dev-shm-usage", true),
		chromedp.Flag("enable-automation", false),
	)
	if cfg.ExecPath != "" {
		opts = append(opts, chromedp.ExecPath(cfg.ExecPath))
	}
	allocCtx, allocCancel := chromedp.NewExecAllocator(context.Background(), opts...)

	f := &Fetcher{
		cfg:         cfg,
		allocator:   allocCtx,
		allocCancel: allocCancel,
		logger:      logger,
		sleep:       sleepCtx,
	}
	f.openSession = f.openChromedpSession
	return f, nil
}

func withDefaults(cfg Config) Config {
	if cfg.CardSelector == "" {
		cfg.CardSelector = "div.drop__card"
	}
	if cfg.SettleTime <= 0 {
		cfg.SettleTime = 5 * time.Second
	}
	if cfg.MaxScrollAttempts == 0 {
		cfg.MaxScrollAttempts = 10
	}
	if cfg.NavigationTimeout <= 0 {
		cfg.NavigationTimeout = 3 * time.Minute
	}
	return cfg
}

// Close cancels the allocator context.
func (f *Fetcher) Close() {
	if f.allocCancel != nil {
		f.allocCancel()
	}
}

// Fetch loads url in a fresh tab, scrolls until the page height settles, and
// returns the listing cards of the final DOM. Each call owns its own tab, so
// concurrent fetches never share a session.
func (f *Fetcher) Fetch(ctx context.Context, url string) crawler.Page {
	start := time.Now()
	page := crawler.Page{URL: url, Mode: crawler.ModeScroll}
	logger := f.logger.With(zap.String("url", url))

	sess, taskCtx, cancel := f.openSession(ctx)
	defer cancel()

	if err := sess.Navigate(taskCtx, url); err != nil {
		return f.fail(page, start, logger, fmt.Errorf("navigate: %w", err))
	}
	if err := f.sleep(taskCtx, f.cfg.InitialWait); err != nil {
		return f.fail(page, start, logger, err)
	}

	attempts, err := f.scrollUntilStable(taskCtx, sess, logger)
	page.ScrollAttempts = attempts
	if err != nil {
		// Keep whatever loaded before the scroll loop broke.
		logger.Warn("scroll loop aborted", zap.Int("attempts", attempts), zap.Error(err))
	}

	html, err := sess.HTML(taskCtx)
	if err != nil {
		return f.fail(page, start, logger, fmt.Errorf("read rendered html: %w", err))
	}
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(html))
	if err != nil {
		return f.fail(page, start, logger, fmt.Errorf("parse rendered html: %w", err))
	}

	page.HTML = html
	doc.Find(f.cfg.CardSelector).Each(func(_ int, s *goquery.Selection) {
		page.Cards = append(page.Cards, s)
	})
	page.Duration = time.Since(start)
	logger.Info("scroll fetch complete",
		zap.Int("cards", len(page.Cards)),
		zap.Int("attempts", attempts),
		zap.Duration("duration", page.Duration),
	)
	return page
}

// scrollUntilStable scrolls to the bottom, waits SettleTime and compares the
// page height. It stops on the first unchanged height or after
// MaxScrollAttempts scrolls and returns the number of scrolls performed.
func (f *Fetcher) scrollUntilStable(ctx context.Context, sess session, logger *zap.Logger) (int, error) {
	last, err := sess.ScrollHeight(ctx)
	if err != nil {
		return 0, fmt.Errorf("read scroll height: %w", err)
	}
	for attempt := 1; attempt <= f.cfg.MaxScrollAttempts; attempt++ {
		if err := sess.ScrollToBottom(ctx); err != nil {
			return attempt - 1, fmt.Errorf("scroll: %w", err)
		}
		if err := f.sleep(ctx, f.cfg.SettleTime); err != nil {
			return attempt, err
		}
		height, err := sess.ScrollHeight(ctx)
		if err != nil {
			return attempt, fmt.Errorf("read scroll height: %w", err)
		}
		if height == last {
			logger.Debug("page height settled", zap.Int("attempt", attempt), zap.Int64("height", height))
			return attempt, nil
		}
		logger.Debug("page grew", zap.Int("attempt", attempt), zap.Int64("height", height))
		last = height
	}
	logger.Info("scroll attempt cap reached", zap.Int("attempts", f.cfg.MaxScrollAttempts))
	return f.cfg.MaxScrollAttempts, nil
}

func (f *Fetcher) fail(page crawler.Page, start time.Time, logger *zap.Logger, err error) crawler.Page {
	logger.Warn("scroll fetch failed", zap.Error(err))
	page.Err = err
	page.Cards = nil
	page.Duration = time.Since(start)
	return page
}

func (f *Fetcher) openChromedpSession(ctx context.Context) (session, context.Context, context.CancelFunc) {
	tabCtx, tabCancel := chromedp.NewContext(f.allocator)
	timeoutCtx, timeoutCancel := context.WithTimeout(tabCtx, f.cfg.NavigationTimeout)
	// Tie the tab to the caller's context as well as the navigation budget.
	stop := context.AfterFunc(ctx, timeoutCancel)
	return &chromedpSession{userAgent: f.cfg.UserAgent}, timeoutCtx, func() {
		stop()
		timeoutCancel()
		tabCancel()
	}
}

type chromedpSession struct {
	userAgent string
}

func (s *chromedpSession) Navigate(ctx context.Context, url string) error {
	actions := []chromedp.Action{
		chromedp.ActionFunc(func(ctx context.Context) error {
			if s.userAgent == "" {
				return nil
			}
			if err := emulation.SetUserAgentOverride(s.userAgent).Do(ctx); err != nil {
				return fmt.Errorf("set user-agent: %w", err)
			}
			return nil
		}),
		chromedp.Navigate(url),
		chromedp.WaitReady("body", chromedp.ByQuery),
	}
	if err := chromedp.Run(ctx, actions...); err != nil {
		return fmt.Errorf("chromedp run: %w", err)
	}
	return nil
}

func (s *chromedpSession) ScrollHeight(ctx context.Context) (int64, error) {
	var height int64
	if err := chromedp.Run(ctx, chromedp.Evaluate(`document.body.scrollHeight`, &height)); err != nil {
		return 0, fmt.Errorf("evaluate scroll height: %w", err)
	}
	return height, nil
}

func (s *chromedpSession) ScrollToBottom(ctx context.Context) error {
	if err := chromedp.Run(ctx, chromedp.Evaluate(`window.scrollTo(0, document.body.scrollHeight);`, nil)); err != nil {
		return fmt.Errorf("evaluate scroll: %w", err)
	}
	return nil
}

func (s *chromedpSession) HTML(ctx context.Context) (string, error) {
	var html string
	if err := chromedp.Run(ctx, chromedp.OuterHTML("html", &html, chromedp.ByQuery)); err != nil {
		return "", fmt.Errorf("chromedp outer html: %w", err)
	}
	return html, nil
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return fmt.Errorf("settle wait canceled: %w", ctx.Err())
	case <-timer.C:
		return nil
	}
}
