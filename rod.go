package politecrawl

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// rodAdapter renders JavaScript-dependent pages with the Rod framework. The
// browser process is shared for the session; each navigation gets its own
// page which is closed on every exit path.
type rodAdapter struct {
	app      *Crawler
	launcher *launcher.Launcher
	browser  *rod.Browser
}

func newRodAdapter(app *Crawler) (*rodAdapter, error) {
	l := launcher.New().Headless(true).NoSandbox(true)
	controlUrl, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("failed to launch browser: %w", err)
	}
	browser := rod.New().ControlURL(controlUrl)
	if err := browser.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("failed to connect to browser: %w", err)
	}
	return &rodAdapter{app: app, launcher: l, browser: browser}, nil
}

func (a *rodAdapter) Close() {
	if a.browser != nil {
		_ = a.browser.Close()
	}
	if a.launcher != nil {
		a.launcher.Kill()
	}
}

func (a *rodAdapter) Render(ctx context.Context, target CrawlTarget, wait RenderWaitCondition) (*FetchResult, error) {
	start := time.Now()

	page, err := a.browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	defer page.Close()
	page = page.Context(ctx)

	err = page.SetUserAgent(&proto.NetworkSetUserAgentOverride{UserAgent: a.app.GetUserAgent()})
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}

	e := proto.NetworkResponseReceived{}
	waitResponse := page.WaitEvent(&e)
	if err := page.Timeout(a.app.engine.Timeout).Navigate(target.Url); err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	waitResponse()
	if e.Response != nil && !statusOk(e.Response.Status) {
		return nil, &RenderError{
			Kind: RenderNavigationFailed,
			Url:  target.Url,
			Err:  fmt.Errorf("StatusCode:%d %s", e.Response.Status, e.Response.StatusText),
		}
	}

	if err := a.applyWait(ctx, page, wait, target.Url); err != nil {
		return nil, err
	}

	html, err := page.HTML()
	if err != nil {
		return nil, &RenderError{Kind: RenderNavigationFailed, Url: target.Url, Err: err}
	}
	return renderedResult(html, target.Url, time.Since(start)), nil
}

func (a *rodAdapter) applyWait(ctx context.Context, page *rod.Page, wait RenderWaitCondition, url string) error {
	if info, err := page.Info(); err == nil {
		url = info.URL
	}
	switch wait.Kind {
	case WaitSelector:
		timeout := waitTimeoutOr(wait, a.app.engine.Timeout)
		if _, err := page.Timeout(timeout).Element(wait.Selector); err != nil {
			return &RenderError{Kind: RenderWaitTimeout, Url: url, Err: fmt.Errorf("element not found: %s", wait.Selector)}
		}
	case WaitNetworkIdle:
		timeout := waitTimeoutOr(wait, a.app.engine.Timeout)
		if err := page.Timeout(timeout).WaitStable(settleOrDefault(wait)); err != nil {
			return &RenderError{Kind: RenderWaitTimeout, Url: url, Err: err}
		}
	case WaitScroll:
		for i := 0; i < wait.Scrolls; i++ {
			if _, err := page.Eval(scrollToBottomJS); err != nil {
				return &RenderError{Kind: RenderNavigationFailed, Url: url, Err: err}
			}
			if err := sleepCtx(ctx, settleOrDefault(wait)); err != nil {
				return err
			}
		}
	default:
		if err := page.WaitLoad(); err != nil {
			return &RenderError{Kind: RenderWaitTimeout, Url: url, Err: err}
		}
	}
	return nil
}

func statusOk(status int) bool {
	return status == 0 || (status >= 200 && status <= 299)
}
