package politecrawl

import (
	"context"
	"fmt"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var listingRules = ExtractionRuleSet{
	Rules: []ExtractionRule{
		{Selector: "div.item", Fields: []FieldSelector{
			{Name: "title", Selector: "h2", Required: true},
		}},
	},
	NextSelector: "a.next",
}

func pageHtml(page, items int, next string) string {
	body := ""
	for i := 1; i <= items; i++ {
		body += fmt.Sprintf(`<div class="item"><h2>Item %d-%d</h2></div>`, page, i)
	}
	if next != "" {
		body += fmt.Sprintf(`<a class="next" href="%s">next</a>`, next)
	}
	return "<html><body>" + body + "</body></html>"
}

// chainServer serves /list?page=N with two items per page and a next link
// up to the given total. pageCalls counts listing requests only.
func chainServer(total int, pageCalls *int32) *httptest.Server {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(pageCalls, 1)
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		next := ""
		if total <= 0 || page < total {
			next = fmt.Sprintf("/list?page=%d", page+1)
		}
		w.Write([]byte(pageHtml(page, 2, next)))
	})
	return httptest.NewServer(mux)
}

func TestCrawlFollowsChainToEnd(t *testing.T) {
	var pageCalls int32
	server := chainServer(3, &pageCalls)
	defer server.Close()

	app := newTestCrawler(server.URL+"/list?page=1", Engine{MaxPages: 10})
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	assert.Equal(t, 3, report.PagesFetched)
	assert.Equal(t, 6, report.RecordsExtracted)
	assert.Equal(t, 0, report.PagesFailed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&pageCalls))
}

func TestCrawlStopsAtMaxPages(t *testing.T) {
	var pageCalls int32
	server := chainServer(0, &pageCalls) // endless chain
	defer server.Close()

	app := newTestCrawler(server.URL+"/list?page=1", Engine{MaxPages: 3})
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	assert.Equal(t, 3, report.PagesFetched)
	assert.Equal(t, int32(3), atomic.LoadInt32(&pageCalls), "no fetch may be issued past the page bound")
}

func TestCrawlDetectsCycle(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/a", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageHtml(1, 1, "/b")))
	})
	mux.HandleFunc("/b", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageHtml(2, 1, "/a")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL + "/a")
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 0, report.PagesFailed)
}

func TestCrawlSelfLinkStopsImmediately(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageHtml(1, 1, r.URL.Path)))
	}))
	defer server.Close()

	app := newTestCrawler(server.URL + "/loop")
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)
	assert.Equal(t, 1, report.PagesFetched)
}

func TestCrawlSeedFetchFailureIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		http.NotFound(w, r)
	}))
	defer server.Close()

	app := newTestCrawler(server.URL + "/gone")
	report, err := app.Crawl(context.Background(), listingRules)
	require.Error(t, err)

	var fetchErr *FetchError
	assert.ErrorAs(t, err, &fetchErr)
	assert.Equal(t, 0, report.PagesFetched)
}

func TestCrawlSeedDisallowedIsFatal(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/robots.txt", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte("User-agent: *\nDisallow: /\n"))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL + "/list")
	report, err := app.Crawl(context.Background(), listingRules)
	require.Error(t, err)

	var policyErr *PolicyError
	require.ErrorAs(t, err, &policyErr)
	assert.Equal(t, PolicyDisallowed, policyErr.Reason)
	assert.Equal(t, 0, report.PagesFetched)
}

func TestCrawlContinuesPastMidChainFailure(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		if page == 2 {
			http.NotFound(w, r)
			return
		}
		next := ""
		if page < 3 {
			next = fmt.Sprintf("/list?page=%d", page+1)
		}
		w.Write([]byte(pageHtml(page, 2, next)))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL + "/list?page=1")
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err, "non-seed page failures must not fail the crawl")

	// Page 2 fails but the crawl infers page 3 from the failed URL and
	// keeps going.
	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 4, report.RecordsExtracted)
	require.Len(t, report.Failures, 1)
	assert.Contains(t, report.Failures[0].Url, "page=2")
}

func TestCrawlFailingChainBoundedByMaxPages(t *testing.T) {
	var pageCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&pageCalls, 1)
		if r.URL.Query().Get("page") != "1" {
			http.NotFound(w, r)
			return
		}
		w.Write([]byte(pageHtml(1, 2, "/list?page=2")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL+"/list?page=1", Engine{MaxPages: 3})
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	// Failed pages count toward the page bound, so an endless chain of
	// inferred-but-broken links still terminates.
	assert.Equal(t, 1, report.PagesFetched)
	assert.Equal(t, 2, report.PagesFailed)
	assert.Equal(t, int32(3), atomic.LoadInt32(&pageCalls))
}

func TestCrawlExtractionFailureContinuesPagination(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/empty", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`<html><body><a class="next" href="/full">next</a></body></html>`))
	})
	mux.HandleFunc("/full", func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(pageHtml(2, 3, "")))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL + "/empty")
	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 3, report.RecordsExtracted)
	require.Len(t, report.Failures, 1)

	var extractionErr *ExtractionError
	assert.ErrorAs(t, report.Failures[0].Err, &extractionErr)
}

func TestCrawlCancellationStopsCleanly(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())

	var pageCalls int32
	mux := http.NewServeMux()
	mux.HandleFunc("/list", func(w http.ResponseWriter, r *http.Request) {
		if atomic.AddInt32(&pageCalls, 1) >= 3 {
			// Cancel before the third page is delivered.
			cancel()
			time.Sleep(100 * time.Millisecond)
		}
		page := 1
		fmt.Sscanf(r.URL.Query().Get("page"), "%d", &page)
		w.Write([]byte(pageHtml(page, 2, fmt.Sprintf("/list?page=%d", page+1))))
	})
	server := httptest.NewServer(mux)
	defer server.Close()

	app := newTestCrawler(server.URL + "/list?page=1")
	report, err := app.Crawl(ctx, listingRules)
	require.NoError(t, err)

	assert.Equal(t, 2, report.PagesFetched)
	assert.Equal(t, 4, report.RecordsExtracted)
	assert.Equal(t, 0, report.PagesFailed)
}

type fakeRenderer struct {
	html     string
	err      error
	rendered int32
	released int32
}

func (f *fakeRenderer) Render(ctx context.Context, target CrawlTarget, wait RenderWaitCondition) (*FetchResult, error) {
	atomic.AddInt32(&f.rendered, 1)
	if f.err != nil {
		return nil, f.err
	}
	return renderedResult(f.html, target.Url, time.Millisecond), nil
}

func (f *fakeRenderer) Close() {
	atomic.AddInt32(&f.released, 1)
}

func TestCrawlDynamicPageUsesRenderer(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	fake := &fakeRenderer{html: pageHtml(1, 2, "")}
	app := newTestCrawler(server.URL + "/js")
	app.IsDynamicPage(true)
	app.renderer = fake

	report, err := app.Crawl(context.Background(), listingRules)
	require.NoError(t, err)

	assert.Equal(t, 1, report.PagesFetched)
	assert.Equal(t, 2, report.RecordsExtracted)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.rendered))
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.released), "browser session must be released")
}

func TestCrawlRenderFailureOnSeedIsFatal(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(http.NotFound))
	defer server.Close()

	fake := &fakeRenderer{err: &RenderError{Kind: RenderWaitTimeout, Url: server.URL + "/js"}}
	app := newTestCrawler(server.URL + "/js")
	app.IsDynamicPage(true)
	app.renderer = fake

	_, err := app.Crawl(context.Background(), listingRules)
	require.Error(t, err)

	var renderErr *RenderError
	assert.ErrorAs(t, err, &renderErr)
	assert.Equal(t, int32(1), atomic.LoadInt32(&fake.released))
}

func TestMultiCrawlerRunsAllTargets(t *testing.T) {
	var aCalls, bCalls int32
	serverA := chainServer(2, &aCalls)
	defer serverA.Close()
	serverB := chainServer(1, &bCalls)
	defer serverB.Close()

	eng := Engine{
		BaseDelay:        time.Millisecond,
		JitterMax:        time.Nanosecond,
		RetryBackoff:     time.Millisecond,
		Timeout:          5 * time.Second,
		MaxRetryAttempts: 2,
	}
	reports := New().
		AddTarget(TargetConfig{Name: "site-a", Url: serverA.URL + "/list?page=1", Engine: eng, Rules: listingRules}).
		AddTarget(TargetConfig{Name: "site-b", Url: serverB.URL + "/list?page=1", Engine: eng, Rules: listingRules}).
		Start(context.Background())

	require.Len(t, reports, 2)
	assert.Equal(t, 2, reports["site-a"].PagesFetched)
	assert.Equal(t, 1, reports["site-b"].PagesFetched)
}
