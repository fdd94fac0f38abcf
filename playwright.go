package politecrawl

import (
	"context"
	"fmt"
	"time"

	"github.com/playwright-community/playwright-go"
)

// playwrightAdapter renders JavaScript-dependent pages with Playwright. It
// supports Chromium, Firefox, and WebKit depending on Engine.BrowserType.
type playwrightAdapter struct {
	app     *Crawler
	pw      *playwright.Playwright
	browser playwright.Browser
}

func newPlaywrightAdapter(app *Crawler) (*playwrightAdapter, error) {
	pw, err := playwright.Run()
	if err != nil {
		return nil, fmt.Errorf("failed to initialize playwright: %w", err)
	}

	launchOptions := playwright.BrowserTypeLaunchOptions{
		Headless: playwright.Bool(true),
	}

	var browser playwright.Browser
	switch app.engine.BrowserType {
	case "chromium":
		browser, err = pw.Chromium.Launch(launchOptions)
	case "firefox":
		browser, err = pw.Firefox.Launch(launchOptions)
	case "webkit":
		browser, err = pw.WebKit.Launch(launchOptions)
	default:
		pw.Stop()
		return nil, fmt.Errorf("unsupported browser type: %s", app.engine.BrowserType)
	}
	if err != nil {
		pw.Stop()
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}

	return &playwrightAdapter{app: app, pw: pw, browser: browser}, nil
}

func (a *playwrightAdapter) Close() {
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.pw != nil {
		_ = a.pw.Stop()
	}
}

func (a *playwrightAdapter) Render(ctx context.Context, target CrawlTarget, wait RenderWaitCondition) (*FetchResult, error) {
	start := time.Now()

	page, err := a.browser.NewPage(playwright.BrowserNewPageOptions{
		UserAgent:         playwright.String(a.app.GetUserAgent()),
		JavaScriptEnabled: playwright.Bool(a.app.engine.JavaScriptEnabled),
	})
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	defer page.Close()

	timeoutMs := float64(a.app.engine.Timeout.Milliseconds())
	resp, err := page.Goto(target.Url, playwright.PageGotoOptions{Timeout: playwright.Float(timeoutMs)})
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	if resp != nil && !statusOk(resp.Status()) {
		return nil, &RenderError{
			Kind: RenderNavigationFailed,
			Url:  target.Url,
			Err:  fmt.Errorf("StatusCode:%d %s", resp.Status(), resp.StatusText()),
		}
	}

	if err := a.applyWait(ctx, page, wait); err != nil {
		return nil, err
	}

	html, err := page.Content()
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	finalUrl := page.URL()
	if finalUrl == "" {
		finalUrl = target.Url
	}
	return renderedResult(html, finalUrl, time.Since(start)), nil
}

func (a *playwrightAdapter) applyWait(ctx context.Context, page playwright.Page, wait RenderWaitCondition) error {
	url := page.URL()
	switch wait.Kind {
	case WaitSelector:
		timeout := waitTimeoutOr(wait, a.app.engine.Timeout)
		_, err := page.WaitForSelector(wait.Selector, playwright.PageWaitForSelectorOptions{
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			return &RenderError{Kind: RenderWaitTimeout, Url: url, Err: fmt.Errorf("element not found: %s", wait.Selector)}
		}
	case WaitNetworkIdle:
		timeout := waitTimeoutOr(wait, a.app.engine.Timeout)
		err := page.WaitForLoadState(playwright.PageWaitForLoadStateOptions{
			State:   playwright.LoadStateNetworkidle,
			Timeout: playwright.Float(float64(timeout.Milliseconds())),
		})
		if err != nil {
			return &RenderError{Kind: RenderWaitTimeout, Url: url, Err: err}
		}
	case WaitScroll:
		for i := 0; i < wait.Scrolls; i++ {
			if _, err := page.Evaluate("window.scrollTo(0, document.body.scrollHeight)"); err != nil {
				return &RenderError{Kind: RenderNavigationFailed, Url: url, Err: err}
			}
			if err := sleepCtx(ctx, settleOrDefault(wait)); err != nil {
				return err
			}
		}
	default:
	}
	return nil
}
