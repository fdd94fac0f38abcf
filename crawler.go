package politecrawl

import (
	"context"
	"fmt"
	"net/http"
	"time"
)

// Crawler is one session-scoped coordinator. It owns all shared mutable
// state of a crawl: per-host request pacing, per-host budgets, the robots
// cache, and (when dynamic) the browser capability.
type Crawler struct {
	Name    string
	Url     string
	BaseUrl string
	Config  *configService
	Logger  *defaultLogger

	engine     *Engine
	httpClient *http.Client
	throttle   *hostThrottle
	gate       *policyGate
	renderer   renderer
	uaIndex    uint32

	startTime time.Time
}

// NewCrawler builds a session for one seed URL. Engine values override the
// defaults; anything left zero keeps its default.
func NewCrawler(name, url string, engines ...Engine) *Crawler {
	defaultEngine := getDefaultEngine()
	config := newConfig()
	applyConfigOverrides(&defaultEngine, config)
	if len(engines) > 0 {
		eng := engines[0]
		overrideEngineDefaults(&defaultEngine, &eng)
	}

	crawler := &Crawler{
		Name:   name,
		Url:    url,
		engine: &defaultEngine,
		Config: config,
	}
	crawler.Logger = newDefaultLogger(name)
	crawler.BaseUrl = crawler.getBaseUrl(url)
	crawler.httpClient = crawler.getHttpClient()
	crawler.throttle = newHostThrottle(
		defaultEngine.BaseDelay,
		defaultEngine.JitterMin,
		defaultEngine.JitterMax,
		defaultEngine.RateLimit,
	)
	crawler.gate = newPolicyGate()
	return crawler
}

// Start prepares the session, initializing the browser capability when the
// site is dynamic.
func (app *Crawler) Start() error {
	app.startTime = time.Now()
	app.Logger.Info("Crawler Started! 🚀")
	if app.engine.IsDynamic && app.renderer == nil {
		var err error
		switch app.engine.Adapter {
		case PlaywrightEngine:
			app.renderer, err = newPlaywrightAdapter(app)
		case RodEngine:
			app.renderer, err = newRodAdapter(app)
		default:
			err = fmt.Errorf("unsupported adapter: %s", app.engine.Adapter)
		}
		if err != nil {
			return fmt.Errorf("failed to initialize rendering adapter: %w", err)
		}
	}
	return nil
}

// Stop releases the session's resources. Safe to call more than once.
func (app *Crawler) Stop() {
	defer func() {
		if r := recover(); r != nil {
			app.Logger.Error("Recovered in Stop: %v", r)
		}
	}()
	if app.renderer != nil {
		app.renderer.Close()
		app.renderer = nil
	}
	app.httpClient.CloseIdleConnections()
	app.Logger.Info("Crawler stopped in ⚡ %v", time.Since(app.startTime))
}

// Crawl runs the pagination driver from the seed URL until a terminal
// state and returns the session report. The context cancels cooperatively:
// between pages and before each retry attempt.
func (app *Crawler) Crawl(ctx context.Context, rules ExtractionRuleSet) (*CrawlReport, error) {
	seed, err := NewCrawlTarget(app.Url, 0, "")
	if err != nil {
		return nil, err
	}

	if err := app.Start(); err != nil {
		return nil, err
	}
	defer app.Stop()

	report, err := newPaginator(app, seed, rules).run(ctx)
	if report != nil {
		report.Elapsed = time.Since(app.startTime)
		app.Logger.Info("Crawl finished: %d pages fetched, %d records, %d pages failed",
			report.PagesFetched, report.RecordsExtracted, report.PagesFailed)
	}
	return report, err
}

// fetchDocument obtains the raw document for a target: a throttled static
// fetch, or a browser render when the site is dynamic. Renders go through
// the same per-host pacing as static fetches.
func (app *Crawler) fetchDocument(ctx context.Context, target CrawlTarget) (*FetchResult, error) {
	if app.engine.IsDynamic && app.renderer != nil {
		if err := app.throttle.Wait(ctx, target.Host); err != nil {
			return nil, err
		}
		result, err := app.renderer.Render(ctx, target, app.engine.WaitFor)
		if err != nil && app.engine.StoreFailedHtml {
			app.Logger.Html("", target.Url, err.Error())
		}
		return result, err
	}
	return app.Fetch(ctx, target)
}
