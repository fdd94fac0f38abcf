package politecrawl

import (
	"context"
	"net/http"
	"time"
)

// renderer wraps a headless-browser capability. Implementations navigate to
// the target, apply the wait condition, and return the fully rendered
// markup. The browser session is acquired per navigation and released on
// every exit path.
type renderer interface {
	Render(ctx context.Context, target CrawlTarget, wait RenderWaitCondition) (*FetchResult, error)
	Close()
}

const scrollToBottomJS = `() => window.scrollTo(0, document.body.scrollHeight)`

// renderedResult wraps browser output so the rest of the pipeline can stay
// render-agnostic: the extraction engine consumes it exactly like a static
// fetch result.
func renderedResult(html, finalUrl string, elapsed time.Duration) *FetchResult {
	return &FetchResult{
		StatusCode:  http.StatusOK,
		FinalUrl:    finalUrl,
		Body:        []byte(html),
		ContentType: "text/html; charset=utf-8",
		Headers:     http.Header{},
		Elapsed:     elapsed,
		Attempts:    1,
		Rendered:    true,
	}
}

func waitTimeoutOr(cond RenderWaitCondition, fallback time.Duration) time.Duration {
	if cond.Timeout > 0 {
		return cond.Timeout
	}
	return fallback
}

func settleOrDefault(cond RenderWaitCondition) time.Duration {
	if cond.Settle > 0 {
		return cond.Settle
	}
	return 500 * time.Millisecond
}
