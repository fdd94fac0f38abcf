package politecrawl

import (
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"golang.org/x/net/html/charset"
)

type Map map[string]interface{}

// CrawlTarget identifies one page to fetch. Targets are immutable once
// enqueued; identity is the normalized Url.
type CrawlTarget struct {
	Url     string
	Host    string
	Depth   int
	Referer string
}

// NewCrawlTarget normalizes a raw URL into a target. The normalized form is
// what the seen-set and all per-host accounting key on.
func NewCrawlTarget(rawUrl string, depth int, referer string) (CrawlTarget, error) {
	normalized, host, err := normalizeUrl(rawUrl)
	if err != nil {
		return CrawlTarget{}, err
	}
	return CrawlTarget{
		Url:     normalized,
		Host:    host,
		Depth:   depth,
		Referer: referer,
	}, nil
}

// PolicyDecision is the policy gate's verdict for one target. Decisions are
// derived from robots rules and the per-host budget; robots documents are
// cached for the lifetime of the session.
type PolicyDecision struct {
	Allowed    bool
	Reason     PolicyReason
	CrawlDelay time.Duration
}

// FetchResult carries a fetched document. It is never mutated after creation.
type FetchResult struct {
	StatusCode  int
	FinalUrl    string
	Body        []byte
	ContentType string
	Headers     http.Header
	Elapsed     time.Duration
	Attempts    int
	Rendered    bool
}

// Document parses the body into a goquery document, decoding the charset
// declared by the server. Non-HTML payloads are refused.
func (r *FetchResult) Document() (*goquery.Document, error) {
	if !strings.Contains(r.ContentType, "html") {
		return nil, fmt.Errorf("cannot parse %q as document: %s", r.ContentType, r.FinalUrl)
	}
	reader, err := charset.NewReader(strings.NewReader(string(r.Body)), r.ContentType)
	if err != nil {
		return nil, fmt.Errorf("failed to create reader with correct encoding: %w", err)
	}
	return goquery.NewDocumentFromReader(reader)
}

// Record is one extracted item: field name to extracted value. Values are
// strings or nil for missing optional fields. The extraction engine always
// injects "source_url" and "extracted_at".
type Record Map

// PartialFailure is a page-level error that did not abort the crawl.
type PartialFailure struct {
	Url string
	Err error
}

// CrawlReport summarizes a completed crawl session. A completed crawl always
// reports both the good pages and the failed ones.
type CrawlReport struct {
	Seed             string
	PagesFetched     int
	RecordsExtracted int
	PagesFailed      int
	Records          []Record
	Failures         []PartialFailure
	Elapsed          time.Duration
}
