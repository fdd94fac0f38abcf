package politecrawl

import (
	"time"
)

const (
	PlaywrightEngine = "playwright"
	RodEngine        = "rod"
)

// RateLimit optionally caps requests per host to a fixed window, layered on
// top of the base delay and jitter.
type RateLimit struct {
	Requests int
	Window   time.Duration
}

// Engine holds the tunable behaviour of a crawl session.
type Engine struct {
	Adapter           string // playwright, rod
	BrowserType       string
	IsDynamic         bool
	JavaScriptEnabled bool
	WaitFor           RenderWaitCondition

	BaseDelay time.Duration
	JitterMin time.Duration
	JitterMax time.Duration
	RateLimit RateLimit

	Timeout          time.Duration
	MaxRetryAttempts int
	RetryBackoff     time.Duration

	MaxPages     int
	HostBudget   int
	SeenCapacity int
	WorkerCount  int

	RotateUserAgents bool
	UserAgents       []string
	RespectRobots    *bool

	StoreFailedHtml bool
}

func getDefaultEngine() Engine {
	respectRobots := true
	return Engine{
		Adapter:           RodEngine,
		BrowserType:       "chromium",
		IsDynamic:         false,
		JavaScriptEnabled: true,
		BaseDelay:         1 * time.Second,
		JitterMin:         0,
		JitterMax:         2 * time.Second,
		Timeout:           30 * time.Second,
		MaxRetryAttempts:  3,
		RetryBackoff:      1 * time.Second,
		MaxPages:          10,
		HostBudget:        200,
		SeenCapacity:      10000,
		WorkerCount:       2,
		RotateUserAgents:  false,
		RespectRobots:     &respectRobots,
	}
}

// applyConfigOverrides reads engine tunables from the environment config.
// Explicit Engine values passed to NewCrawler still take precedence.
func applyConfigOverrides(eng *Engine, config *configService) {
	if adapter := config.GetString("CRAWLER_ADAPTER"); adapter != "" {
		eng.Adapter = adapter
	}
	if browserType := config.GetString("CRAWLER_BROWSER_TYPE"); browserType != "" {
		eng.BrowserType = browserType
	}
	if ua := config.EnvString("CRAWLER_USER_AGENT"); ua != "" {
		eng.UserAgents = []string{ua}
	}
	if config.GetBool("CRAWLER_ROTATE_UA") {
		eng.RotateUserAgents = true
	}
	if delayMs := config.GetInt("CRAWLER_BASE_DELAY_MS"); delayMs > 0 {
		eng.BaseDelay = time.Duration(delayMs) * time.Millisecond
	}
	if maxPages := config.GetInt("CRAWLER_MAX_PAGES"); maxPages > 0 {
		eng.MaxPages = maxPages
	}
	if budget := config.GetInt("CRAWLER_HOST_BUDGET"); budget > 0 {
		eng.HostBudget = budget
	}
	if workers := config.GetInt("CRAWLER_WORKERS"); workers > 0 {
		eng.WorkerCount = workers
	}
}

func overrideEngineDefaults(defaultEngine *Engine, eng *Engine) {
	if eng.Adapter != "" {
		defaultEngine.Adapter = eng.Adapter
	}
	if eng.BrowserType != "" {
		defaultEngine.BrowserType = eng.BrowserType
	}
	if eng.IsDynamic {
		defaultEngine.IsDynamic = eng.IsDynamic
	}
	if eng.WaitFor.Kind != WaitNone {
		defaultEngine.WaitFor = eng.WaitFor
	}
	if eng.BaseDelay > 0 {
		defaultEngine.BaseDelay = eng.BaseDelay
	}
	if eng.JitterMin > 0 {
		defaultEngine.JitterMin = eng.JitterMin
	}
	if eng.JitterMax > 0 {
		defaultEngine.JitterMax = eng.JitterMax
	}
	if eng.RateLimit.Requests > 0 {
		defaultEngine.RateLimit = eng.RateLimit
	}
	if eng.Timeout > 0 {
		defaultEngine.Timeout = eng.Timeout
	}
	if eng.MaxRetryAttempts > 0 {
		defaultEngine.MaxRetryAttempts = eng.MaxRetryAttempts
	}
	if eng.RetryBackoff > 0 {
		defaultEngine.RetryBackoff = eng.RetryBackoff
	}
	if eng.MaxPages > 0 {
		defaultEngine.MaxPages = eng.MaxPages
	}
	if eng.HostBudget > 0 {
		defaultEngine.HostBudget = eng.HostBudget
	}
	if eng.SeenCapacity > 0 {
		defaultEngine.SeenCapacity = eng.SeenCapacity
	}
	if eng.WorkerCount > 0 {
		defaultEngine.WorkerCount = eng.WorkerCount
	}
	if eng.RotateUserAgents {
		defaultEngine.RotateUserAgents = true
	}
	if len(eng.UserAgents) > 0 {
		defaultEngine.UserAgents = eng.UserAgents
	}
	if eng.RespectRobots != nil {
		defaultEngine.RespectRobots = eng.RespectRobots
	}
	if eng.StoreFailedHtml {
		defaultEngine.StoreFailedHtml = true
	}
}

func (app *Crawler) SetBrowserType(browserType string) *Crawler {
	app.engine.BrowserType = browserType
	return app
}

func (app *Crawler) SetAdapter(adapter string) *Crawler {
	app.engine.Adapter = adapter
	return app
}

func (app *Crawler) IsDynamicPage(isDynamic bool) *Crawler {
	app.engine.IsDynamic = isDynamic
	return app
}

func (app *Crawler) SetDelayRange(base, jitterMin, jitterMax time.Duration) *Crawler {
	app.engine.BaseDelay = base
	app.engine.JitterMin = jitterMin
	app.engine.JitterMax = jitterMax
	app.throttle.configure(base, jitterMin, jitterMax)
	return app
}

func (app *Crawler) SetTimeout(timeout time.Duration) *Crawler {
	app.engine.Timeout = timeout
	return app
}

func (app *Crawler) SetMaxPages(maxPages int) *Crawler {
	app.engine.MaxPages = maxPages
	return app
}

func (app *Crawler) SetHostBudget(budget int) *Crawler {
	app.engine.HostBudget = budget
	return app
}

func (app *Crawler) SetWorkerCount(workerCount int) *Crawler {
	app.engine.WorkerCount = workerCount
	return app
}

func (app *Crawler) EnableUserAgentRotation() *Crawler {
	app.engine.RotateUserAgents = true
	return app
}

func (app *Crawler) SetWaitFor(condition RenderWaitCondition) *Crawler {
	app.engine.WaitFor = condition
	return app
}
