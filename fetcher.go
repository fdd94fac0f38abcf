package politecrawl

import (
	"compress/flate"
	"compress/gzip"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/andybalholm/brotli"
	"github.com/gabriel-vasile/mimetype"
)

const maxBodyBytes = 10 * 1024 * 1024

func (app *Crawler) getHttpClient() *http.Client {
	return &http.Client{
		Timeout: app.engine.Timeout,
		Transport: &http.Transport{
			DialContext: (&net.Dialer{
				Timeout:   30 * time.Second,
				KeepAlive: 30 * time.Second,
			}).DialContext,
			TLSHandshakeTimeout: 30 * time.Second,
			MaxIdleConns:        100,
			IdleConnTimeout:     90 * time.Second,
		},
	}
}

// Fetch downloads one target, honoring the per-host minimum delay and
// retrying transient failures (connection resets, 5xx, 429) with
// exponential backoff. A 429 additionally honors the Retry-After header.
// Non-transient failures are surfaced immediately and never retried.
func (app *Crawler) Fetch(ctx context.Context, target CrawlTarget) (*FetchResult, error) {
	maxAttempts := app.engine.MaxRetryAttempts
	if maxAttempts < 1 {
		maxAttempts = 1
	}

	start := time.Now()
	var lastErr error
	for attempt := 1; attempt <= maxAttempts; attempt++ {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if err := app.throttle.Wait(ctx, target.Host); err != nil {
			return nil, err
		}

		result, retryAfter, err := app.doRequest(ctx, target, attempt)
		if err == nil {
			result.Elapsed = time.Since(start)
			return result, nil
		}

		var fetchErr *FetchError
		if errors.As(err, &fetchErr) && fetchErr.Kind == FetchPermanent {
			return nil, err
		}
		lastErr = err
		app.Logger.Warn("attempt %d/%d failed for %s: %v", attempt, maxAttempts, target.Url, err)

		if attempt == maxAttempts {
			break
		}
		backoff := app.engine.RetryBackoff << (attempt - 1)
		if retryAfter > backoff {
			backoff = retryAfter
		}
		if err := sleepCtx(ctx, backoff); err != nil {
			return nil, err
		}
	}
	return nil, lastErr
}

func (app *Crawler) doRequest(ctx context.Context, target CrawlTarget, attempt int) (*FetchResult, time.Duration, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target.Url, nil)
	if err != nil {
		return nil, 0, &FetchError{Kind: FetchPermanent, Url: target.Url, Err: err}
	}

	req.Header.Set("User-Agent", app.GetUserAgent())
	req.Header.Set("Accept", "text/html,application/xhtml+xml,application/xml;q=0.9,*/*;q=0.8")
	req.Header.Set("Accept-Language", "en-US,en;q=0.5")
	req.Header.Set("Accept-Encoding", "gzip, deflate, br")
	if target.Referer != "" {
		req.Header.Set("Referer", target.Referer)
	} else if app.BaseUrl != "" {
		req.Header.Set("Referer", app.BaseUrl)
	}

	resp, err := app.httpClient.Do(req)
	if err != nil {
		return nil, 0, classifyTransportError(target.Url, err)
	}

	if resp.StatusCode >= 200 && resp.StatusCode <= 299 {
		body, readErr := readBody(resp)
		if readErr != nil {
			return nil, 0, &FetchError{Kind: FetchTransient, Url: target.Url, StatusCode: resp.StatusCode, Err: readErr}
		}
		contentType := resp.Header.Get("Content-Type")
		if contentType == "" {
			contentType = mimetype.Detect(body).String()
		}
		finalUrl := target.Url
		if resp.Request != nil && resp.Request.URL != nil {
			finalUrl = resp.Request.URL.String()
		}
		return &FetchResult{
			StatusCode:  resp.StatusCode,
			FinalUrl:    finalUrl,
			Body:        body,
			ContentType: contentType,
			Headers:     resp.Header.Clone(),
			Attempts:    attempt,
		}, 0, nil
	}

	io.Copy(io.Discard, io.LimitReader(resp.Body, 4096))
	resp.Body.Close()

	if resp.StatusCode == http.StatusTooManyRequests {
		retryAfter := parseRetryAfter(resp.Header.Get("Retry-After"))
		return nil, retryAfter, &FetchError{Kind: FetchTransient, Url: target.Url, StatusCode: resp.StatusCode, Err: fmt.Errorf("too many requests")}
	}
	if isTransientStatus(resp.StatusCode) {
		return nil, 0, &FetchError{Kind: FetchTransient, Url: target.Url, StatusCode: resp.StatusCode, Err: fmt.Errorf("server error: %s", resp.Status)}
	}
	return nil, 0, &FetchError{Kind: FetchPermanent, Url: target.Url, StatusCode: resp.StatusCode, Err: fmt.Errorf("request rejected: %s", resp.Status)}
}

func classifyTransportError(url string, err error) error {
	if errors.Is(err, context.Canceled) {
		return err
	}
	var netErr net.Error
	if errors.As(err, &netErr) && netErr.Timeout() {
		return &FetchError{Kind: FetchTimeout, Url: url, Err: err}
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return &FetchError{Kind: FetchTimeout, Url: url, Err: err}
	}
	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return &FetchError{Kind: FetchPermanent, Url: url, Err: err}
	}
	return &FetchError{Kind: FetchTransient, Url: url, Err: err}
}

func readBody(resp *http.Response) ([]byte, error) {
	if resp.Body == nil {
		return nil, errors.New("empty response body")
	}

	reader := io.Reader(resp.Body)
	closers := []io.Closer{resp.Body}

	switch strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Encoding"))) {
	case "gzip":
		gz, err := gzip.NewReader(resp.Body)
		if err != nil {
			return nil, fmt.Errorf("gzip decode: %w", err)
		}
		reader = gz
		closers = append(closers, gz)
	case "br":
		reader = brotli.NewReader(resp.Body)
	case "deflate":
		fl := flate.NewReader(resp.Body)
		reader = fl
		closers = append(closers, fl)
	}

	defer func() {
		for i := len(closers) - 1; i >= 0; i-- {
			_ = closers[i].Close()
		}
	}()

	body, err := io.ReadAll(io.LimitReader(reader, maxBodyBytes+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read response body: %w", err)
	}
	if len(body) > maxBodyBytes {
		return nil, fmt.Errorf("response body exceeds limit of %d bytes", maxBodyBytes)
	}
	return body, nil
}

// parseRetryAfter accepts either a delay in seconds or an HTTP date.
func parseRetryAfter(value string) time.Duration {
	value = strings.TrimSpace(value)
	if value == "" {
		return 0
	}
	if seconds, err := strconv.Atoi(value); err == nil && seconds >= 0 {
		return time.Duration(seconds) * time.Second
	}
	if at, err := http.ParseTime(value); err == nil {
		if d := time.Until(at); d > 0 {
			return d
		}
	}
	return 0
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return nil
	}
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-timer.C:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}
