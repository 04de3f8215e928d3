package collyengine

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/crawlkit/crawld/internal/crawler"
)

type fixedClock struct {
	now time.Time
}

func (c fixedClock) Now() time.Time {
	return c.now
}

// recordingSink collects sink callbacks; safe for colly's parallel handlers.
type recordingSink struct {
	mu      sync.Mutex
	results []crawler.Result
	errs    map[string]error
}

func newRecordingSink() *recordingSink {
	return &recordingSink{errs: make(map[string]error)}
}

func (s *recordingSink) OnResult(_ context.Context, res crawler.Result) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.results = append(s.results, res)
	return nil
}

func (s *recordingSink) OnPageError(_ context.Context, pageURL string, pageErr error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.errs[pageURL] = pageErr
}

func (s *recordingSink) resultCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.results)
}

func (s *recordingSink) resultFor(url string) (crawler.Result, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, r := range s.results {
		if r.URL == url {
			return r, true
		}
	}
	return crawler.Result{}, false
}

type fakeRenderer struct {
	title  string
	text   string
	err    error
	closed bool
	calls  int
	mu     sync.Mutex
}

func (r *fakeRenderer) Render(_ context.Context, _ string) (string, string, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.calls++
	return r.title, r.text, r.err
}

func (r *fakeRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.closed = true
	return nil
}

func testClock() fixedClock {
	return fixedClock{now: time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)}
}

func TestRunExtractsTitleAndText(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title> Example Page </title></head><body>Hello crawl world</body></html>`)
	}))
	defer ts.Close()

	e := New(Config{MaxConcurrency: 2, PageTimeout: 5 * time.Second}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	res, ok := sink.resultFor(ts.URL)
	require.True(t, ok, "expected a result for the seed URL")
	assert.Equal(t, "Example Page", res.Title)
	assert.Contains(t, res.FullText, "Hello crawl world")
	assert.Equal(t, testClock().now, res.CrawledAt)
}

func TestRunFollowsLinksUpToCap(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, _ *http.Request) {
		var links strings.Builder
		for i := 0; i < 6; i++ {
			fmt.Fprintf(&links, `<a href="/page/%d">p%d</a>`, i, i)
		}
		fmt.Fprintf(w, `<html><head><title>Index</title></head><body>%s</body></html>`, links.String())
	})
	mux.HandleFunc("/page/", func(w http.ResponseWriter, r *http.Request) {
		fmt.Fprintf(w, `<html><head><title>%s</title></head><body>leaf page content</body></html>`, r.URL.Path)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := New(Config{
		MaxConcurrency:  2,
		MaxLinksPerPage: 2,
		PageTimeout:     5 * time.Second,
	}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 100}

	require.NoError(t, e.Run(context.Background(), job, sink))

	// Seed plus at most two followed links from it.
	assert.Equal(t, 3, sink.resultCount())
}

func TestRunHonorsRequestBudget(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		// Every page links onward, so only the budget ends the crawl.
		fmt.Fprintf(w, `<html><head><title>Chain</title></head><body>
			<a href="%s/a">a</a><a href="%s/b">b</a><a href="%s/c">c</a>
		</body></html>`, r.URL.Path, r.URL.Path, r.URL.Path)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := New(Config{
		MaxConcurrency:  1,
		MaxLinksPerPage: 3,
		PageTimeout:     5 * time.Second,
	}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 4}

	require.NoError(t, e.Run(context.Background(), job, sink))

	assert.LessOrEqual(t, sink.resultCount(), 4)
	assert.GreaterOrEqual(t, sink.resultCount(), 1)
}

func TestRunReportsFailedPages(t *testing.T) {
	t.Parallel()

	mux := http.NewServeMux()
	mux.HandleFunc("/ok", func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>OK</title></head><body>fine</body></html>`)
	})
	mux.HandleFunc("/broken", func(w http.ResponseWriter, _ *http.Request) {
		http.Error(w, "nope", http.StatusInternalServerError)
	})
	ts := httptest.NewServer(mux)
	defer ts.Close()

	e := New(Config{MaxConcurrency: 2, PageTimeout: 5 * time.Second}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL + "/ok", ts.URL + "/broken"}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	assert.Equal(t, 1, sink.resultCount())
	sink.mu.Lock()
	defer sink.mu.Unlock()
	assert.Contains(t, sink.errs, ts.URL+"/broken")
}

func TestRunReportsUnreachableSeed(t *testing.T) {
	t.Parallel()

	e := New(Config{MaxConcurrency: 1, PageTimeout: time.Second}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	seed := "not-a-valid-url"
	job := crawler.Job{ID: "job-1", URLs: []string{seed}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	sink.mu.Lock()
	defer sink.mu.Unlock()
	require.Contains(t, sink.errs, seed)
}

func TestRunCanceledContext(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><body>never seen</body></html>`)
	}))
	defer ts.Close()

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	e := New(Config{MaxConcurrency: 1, PageTimeout: time.Second}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 10}

	err := e.Run(ctx, job, sink)
	require.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, sink.resultCount())
}

func TestRunPromotesThinPagesToRenderer(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Shell</title></head><body><div id="app"></div></body></html>`)
	}))
	defer ts.Close()

	renderer := &fakeRenderer{title: "Rendered Title", text: "Rendered body text from the browser"}
	e := New(Config{
		MaxConcurrency: 1,
		PageTimeout:    5 * time.Second,
		Renderer:       renderer,
		MinTextBytes:   100,
	}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	res, ok := sink.resultFor(ts.URL)
	require.True(t, ok)
	assert.Equal(t, "Rendered Title", res.Title)
	assert.Equal(t, "Rendered body text from the browser", res.FullText)
}

func TestRunKeepsStaticExtractionWhenRendererFails(t *testing.T) {
	t.Parallel()

	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprint(w, `<html><head><title>Static</title></head><body>thin</body></html>`)
	}))
	defer ts.Close()

	renderer := &fakeRenderer{err: errors.New("browser gone")}
	e := New(Config{
		MaxConcurrency: 1,
		PageTimeout:    5 * time.Second,
		Renderer:       renderer,
		MinTextBytes:   100,
	}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	res, ok := sink.resultFor(ts.URL)
	require.True(t, ok)
	assert.Equal(t, "Static", res.Title)
	assert.Contains(t, res.FullText, "thin")
}

func TestRunSkipsRendererForRichPages(t *testing.T) {
	t.Parallel()

	long := strings.Repeat("plenty of static words ", 20)
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		fmt.Fprintf(w, `<html><head><title>Rich</title></head><body>%s</body></html>`, long)
	}))
	defer ts.Close()

	renderer := &fakeRenderer{title: "never", text: "never"}
	e := New(Config{
		MaxConcurrency: 1,
		PageTimeout:    5 * time.Second,
		Renderer:       renderer,
		MinTextBytes:   50,
	}, testClock(), zap.NewNop())
	sink := newRecordingSink()
	job := crawler.Job{ID: "job-1", URLs: []string{ts.URL}, MaxRequests: 10}

	require.NoError(t, e.Run(context.Background(), job, sink))

	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.Zero(t, renderer.calls, "rich pages must not hit the renderer")
}

func TestCloseReleasesRenderer(t *testing.T) {
	t.Parallel()

	e := New(Config{}, testClock(), zap.NewNop())
	require.NoError(t, e.Close(), "close without renderer is a no-op")

	renderer := &fakeRenderer{}
	e = New(Config{Renderer: renderer}, testClock(), zap.NewNop())
	require.NoError(t, e.Close())
	renderer.mu.Lock()
	defer renderer.mu.Unlock()
	assert.True(t, renderer.closed)
}
