package politecrawl

import (
	"context"
	"fmt"
)

type crawlState int

const (
	stateIdle crawlState = iota
	stateFetching
	stateExtracting
	stateDeciding
	stateDone
	stateFailed
)

// PaginationState is the pagination driver's working state: the target
// being processed, how many pages have been visited, and the seen-URL set
// that prevents revisiting.
type PaginationState struct {
	Current      CrawlTarget
	PagesVisited int
	seen         *seenSet
	state        crawlState
}

// paginator drives one crawl session through the state machine
// Idle -> Fetching -> Extracting -> Deciding -> (Fetching | Done | Failed).
type paginator struct {
	app    *Crawler
	rules  ExtractionRuleSet
	state  PaginationState
	report *CrawlReport
}

func newPaginator(app *Crawler, seed CrawlTarget, rules ExtractionRuleSet) *paginator {
	return &paginator{
		app:   app,
		rules: rules,
		state: PaginationState{
			Current: seed,
			seen:    newSeenSet(app.engine.SeenCapacity),
			state:   stateIdle,
		},
		report: &CrawlReport{Seed: seed.Url},
	}
}

// run executes the crawl until a terminal state. Page-level errors become
// partial-failure entries and the crawl continues; only a refused or
// unfetchable seed is fatal.
func (p *paginator) run(ctx context.Context) (*CrawlReport, error) {
	app := p.app
	seed := p.state.Current

	decision := app.Allowed(ctx, seed)
	if !decision.Allowed {
		p.state.state = stateFailed
		return p.finish(), &PolicyError{Reason: decision.Reason, Url: seed.Url}
	}
	p.applyCrawlDelay(seed.Host, decision)
	p.state.seen.Add(seed.Url)
	p.state.state = stateFetching

	for p.state.state == stateFetching {
		target := p.state.Current

		result, err := app.fetchDocument(ctx, target)
		if err != nil {
			if ctx.Err() != nil && target.Url != seed.Url {
				// Cancellation mid-crawl is an orderly stop, not a failure.
				p.state.state = stateDone
				break
			}
			if target.Url == seed.Url {
				p.state.state = stateFailed
				return p.finish(), fmt.Errorf("seed target failed: %w", err)
			}
			// A failed page still counts toward the page bound, and the
			// crawl moves on to whatever next link can be inferred from
			// the failed URL alone.
			p.recordFailure(target.Url, err)
			p.state.PagesVisited++
			p.state.state = stateDeciding
			p.decide(ctx, app.NextLink(nil, target.Url, p.rules), target)
			continue
		}
		p.state.PagesVisited++
		p.report.PagesFetched++

		p.state.state = stateExtracting
		next := p.extractPage(result, target)

		p.state.state = stateDeciding
		p.decide(ctx, next, target)
	}

	return p.finish(), nil
}

// extractPage parses and extracts one fetched page, returning the candidate
// next-page link. Extraction problems are recorded, never fatal.
func (p *paginator) extractPage(result *FetchResult, target CrawlTarget) string {
	pageUrl := result.FinalUrl
	if pageUrl == "" {
		pageUrl = target.Url
	}

	doc, err := result.Document()
	if err != nil {
		p.recordFailure(target.Url, err)
		return p.app.NextLink(nil, pageUrl, p.rules)
	}

	records, err := p.app.Extract(doc, pageUrl, p.rules)
	if err != nil {
		p.recordFailure(target.Url, err)
	}
	p.report.Records = append(p.report.Records, records...)
	p.report.RecordsExtracted += len(records)

	return p.app.NextLink(doc, pageUrl, p.rules)
}

// decide implements the Deciding transitions. Fetching is entered only when
// a fresh, policy-approved next link exists and the page bound has not been
// reached; everything else terminates in Done.
func (p *paginator) decide(ctx context.Context, next string, current CrawlTarget) {
	if ctx.Err() != nil {
		p.app.Logger.Info("Crawl cancelled after %d pages", p.state.PagesVisited)
		p.state.state = stateDone
		return
	}
	if next == "" {
		p.state.state = stateDone
		return
	}
	if p.state.PagesVisited >= p.app.engine.MaxPages {
		p.app.Logger.Info("Reached max pages (%d), stopping", p.app.engine.MaxPages)
		p.state.state = stateDone
		return
	}

	nextTarget, err := NewCrawlTarget(next, current.Depth+1, current.Url)
	if err != nil {
		p.recordFailure(next, err)
		p.state.state = stateDone
		return
	}
	if p.state.seen.Has(nextTarget.Url) {
		p.app.Logger.Info("Next link already seen, cycle detected: %s", nextTarget.Url)
		p.state.state = stateDone
		return
	}

	decision := p.app.Allowed(ctx, nextTarget)
	if !decision.Allowed {
		p.recordFailure(nextTarget.Url, &PolicyError{Reason: decision.Reason, Url: nextTarget.Url})
		p.state.state = stateDone
		return
	}
	p.applyCrawlDelay(nextTarget.Host, decision)

	p.state.seen.Add(nextTarget.Url)
	p.state.Current = nextTarget
	p.state.state = stateFetching
}

func (p *paginator) applyCrawlDelay(host string, decision PolicyDecision) {
	if decision.CrawlDelay > 0 {
		p.app.throttle.SetMinDelay(host, decision.CrawlDelay)
	}
}

func (p *paginator) recordFailure(url string, err error) {
	p.app.Logger.Error("page failed %s: %v", url, err)
	p.report.Failures = append(p.report.Failures, PartialFailure{Url: url, Err: err})
}

func (p *paginator) finish() *CrawlReport {
	p.report.PagesFailed = len(p.report.Failures)
	return p.report
}
