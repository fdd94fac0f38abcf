package politecrawl

import (
	"context"
	"net/url"
	"sync"

	"github.com/temoto/robotstxt"
)

// policyGate decides whether a target may be fetched. It caches each host's
// robots.txt for the lifetime of the session and tracks per-host request
// budgets. Robots documents are fetched through the throttled fetcher but
// are themselves never gate-checked.
type policyGate struct {
	mu      sync.Mutex
	robots  map[string]*robotstxt.RobotsData
	fetched map[string]bool
	spent   map[string]int
}

func newPolicyGate() *policyGate {
	return &policyGate{
		robots:  make(map[string]*robotstxt.RobotsData),
		fetched: make(map[string]bool),
		spent:   make(map[string]int),
	}
}

// Allowed evaluates robots rules and the per-host budget for a target. An
// allowed decision consumes one unit of the host's budget. Rule precedence
// follows the longest-matching-path convention with Allow winning ties,
// which is what robotstxt implements.
func (app *Crawler) Allowed(ctx context.Context, target CrawlTarget) PolicyDecision {
	budget := app.engine.HostBudget

	app.gate.mu.Lock()
	if budget > 0 && app.gate.spent[target.Host] >= budget {
		app.gate.mu.Unlock()
		return PolicyDecision{Allowed: false, Reason: PolicyBudgetExhausted}
	}
	app.gate.mu.Unlock()

	decision := PolicyDecision{Allowed: true, Reason: PolicyAllowed}
	if app.engine.RespectRobots == nil || *app.engine.RespectRobots {
		data := app.robotsData(ctx, target)
		if data != nil {
			group := data.FindGroup(app.GetUserAgent())
			decision.CrawlDelay = group.CrawlDelay
			if !group.Test(pathForRobots(target.Url)) {
				return PolicyDecision{Allowed: false, Reason: PolicyDisallowed, CrawlDelay: group.CrawlDelay}
			}
		}
	}

	// Check-and-reserve under one lock so concurrent callers cannot
	// overspend the budget between the early check and the spend.
	app.gate.mu.Lock()
	if budget > 0 && app.gate.spent[target.Host] >= budget {
		app.gate.mu.Unlock()
		return PolicyDecision{Allowed: false, Reason: PolicyBudgetExhausted}
	}
	app.gate.spent[target.Host]++
	app.gate.mu.Unlock()
	return decision
}

// robotsData returns the host's cached robots rules, fetching them on first
// use. A fetch failure is treated as "allow all": logged as a warning, the
// host is remembered so the fetch is not repeated.
func (app *Crawler) robotsData(ctx context.Context, target CrawlTarget) *robotstxt.RobotsData {
	app.gate.mu.Lock()
	if app.gate.fetched[target.Host] {
		data := app.gate.robots[target.Host]
		app.gate.mu.Unlock()
		return data
	}
	app.gate.mu.Unlock()

	robotsTarget, err := NewCrawlTarget(robotsUrl(target.Url), 0, "")
	var data *robotstxt.RobotsData
	if err == nil {
		res, fetchErr := app.Fetch(ctx, robotsTarget)
		if fetchErr != nil {
			app.Logger.Warn("could not fetch robots.txt for %s, allowing all: %v", target.Host, fetchErr)
		} else {
			data, err = robotstxt.FromStatusAndBytes(res.StatusCode, res.Body)
			if err != nil {
				app.Logger.Warn("error parsing robots.txt for %s, allowing all: %v", target.Host, err)
				data = nil
			}
		}
	}

	app.gate.mu.Lock()
	app.gate.fetched[target.Host] = true
	app.gate.robots[target.Host] = data
	app.gate.mu.Unlock()
	return data
}

func robotsUrl(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return ""
	}
	return parsed.Scheme + "://" + parsed.Host + "/robots.txt"
}

func pathForRobots(target string) string {
	parsed, err := url.Parse(target)
	if err != nil {
		return "/"
	}
	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}
	if parsed.RawQuery != "" {
		path += "?" + parsed.RawQuery
	}
	return path
}
