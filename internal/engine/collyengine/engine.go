// Package collyengine implements the fetching engine using gocolly.
package collyengine

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/gocolly/colly/v2"
	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
)

// Renderer re-renders a page in a real browser and returns its title and
// body text. Used for pages that come back script-only from a plain fetch.
type Renderer interface {
	Render(ctx context.Context, pageURL string) (title, text string, err error)
	Close() error
}

// Config controls collector behavior for one job.
type Config struct {
	UserAgent            string
	MaxConcurrency       int
	MaxRequestsPerMinute int
	MaxLinksPerPage      int
	PageTimeout          time.Duration

	// Renderer, when non-nil, is applied to pages whose static body text is
	// shorter than MinTextBytes.
	Renderer     Renderer
	MinTextBytes int
}

// Engine fetches a job's pages with colly: seed URLs plus discovered links,
// bounded by the job's MaxRequests budget.
type Engine struct {
	cfg    Config
	clock  crawler.Clock
	logger *zap.Logger
}

// New builds an Engine.
func New(cfg Config, clock crawler.Clock, logger *zap.Logger) *Engine {
	if cfg.MaxConcurrency <= 0 {
		cfg.MaxConcurrency = 1
	}
	if cfg.PageTimeout <= 0 {
		cfg.PageTimeout = 30 * time.Second
	}
	return &Engine{cfg: cfg, clock: clock, logger: logger}
}

// Run visits the job's URLs and reports every page through the sink. It
// returns only on a fatal fault; per-page failures go through the sink.
func (e *Engine) Run(ctx context.Context, job crawler.Job, sink crawler.Sink) error {
	collector := e.buildCollector()

	var (
		mu        sync.Mutex
		requested int
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		mu.Lock()
		if requested >= job.MaxRequests {
			mu.Unlock()
			r.Abort()
			return
		}
		requested++
		mu.Unlock()
	})

	collector.OnHTML("html", func(el *colly.HTMLElement) {
		e.handlePage(ctx, el, sink)
	})

	collector.OnError(func(r *colly.Response, err error) {
		sink.OnPageError(ctx, r.Request.URL.String(), err)
	})

	for _, seed := range job.URLs {
		if err := collector.Visit(seed); err != nil {
			sink.OnPageError(ctx, seed, err)
		}
	}
	collector.Wait()
	return ctx.Err()
}

// Close releases the renderer, if any. Called on every job outcome.
func (e *Engine) Close() error {
	if e.cfg.Renderer == nil {
		return nil
	}
	return e.cfg.Renderer.Close()
}

func (e *Engine) buildCollector() *colly.Collector {
	collector := colly.NewCollector(colly.Async(true))
	if e.cfg.UserAgent != "" {
		collector.UserAgent = e.cfg.UserAgent
	}
	collector.SetRequestTimeout(e.cfg.PageTimeout)

	rule := &colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: e.cfg.MaxConcurrency,
	}
	if e.cfg.MaxRequestsPerMinute > 0 {
		rule.Delay = time.Minute / time.Duration(e.cfg.MaxRequestsPerMinute)
	}
	if err := collector.Limit(rule); err != nil {
		e.logger.Warn("apply limit rule failed", zap.Error(err))
	}
	return collector
}

func (e *Engine) handlePage(ctx context.Context, el *colly.HTMLElement, sink crawler.Sink) {
	pageURL := el.Request.URL.String()
	title := strings.TrimSpace(el.ChildText("title"))
	text := el.ChildText("body")

	if e.cfg.Renderer != nil && len(text) < e.cfg.MinTextBytes {
		renderedTitle, renderedText, err := e.cfg.Renderer.Render(ctx, pageURL)
		if err != nil {
			e.logger.Warn("headless render failed", zap.String("url", pageURL), zap.Error(err))
		} else {
			title, text = renderedTitle, renderedText
		}
	}

	res := crawler.Result{
		URL:       pageURL,
		Title:     title,
		FullText:  text,
		CrawledAt: e.clock.Now(),
	}
	if err := sink.OnResult(ctx, res); err != nil {
		e.logger.Error("sink rejected result", zap.String("url", pageURL), zap.Error(err))
	}

	e.followLinks(el)
}

// followLinks enqueues up to MaxLinksPerPage absolute links from the page.
// Already-visited and over-budget links are skipped silently.
func (e *Engine) followLinks(el *colly.HTMLElement) {
	if e.cfg.MaxLinksPerPage <= 0 {
		return
	}
	followed := 0
	for _, href := range el.ChildAttrs("a[href]", "href") {
		if followed >= e.cfg.MaxLinksPerPage {
			return
		}
		link := el.Request.AbsoluteURL(href)
		if !strings.HasPrefix(link, "http") {
			continue
		}
		if err := el.Request.Visit(link); err == nil {
			followed++
		}
	}
}
