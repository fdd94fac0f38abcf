package politecrawl

import (
	"fmt"
	"net/url"
	"regexp"
	"strings"
)

// normalizeUrl canonicalizes a URL so that equivalent spellings compare
// equal: lowercased scheme and host, default ports stripped, fragment
// dropped, empty path replaced with "/". The query string is preserved.
func normalizeUrl(rawUrl string) (normalized string, host string, err error) {
	parsed, err := url.Parse(strings.TrimSpace(rawUrl))
	if err != nil {
		return "", "", fmt.Errorf("failed to parse Url %q: %w", rawUrl, err)
	}
	if !parsed.IsAbs() || parsed.Host == "" {
		return "", "", fmt.Errorf("not an absolute Url: %q", rawUrl)
	}

	scheme := strings.ToLower(parsed.Scheme)
	host = strings.ToLower(parsed.Hostname())
	if port := parsed.Port(); port != "" && port != defaultPort(scheme) {
		host = host + ":" + port
	}

	path := parsed.EscapedPath()
	if path == "" {
		path = "/"
	}

	normalized = scheme + "://" + host + path
	if parsed.RawQuery != "" {
		normalized += "?" + parsed.RawQuery
	}
	return normalized, strings.ToLower(parsed.Hostname()), nil
}

func defaultPort(scheme string) string {
	switch scheme {
	case "http":
		return "80"
	case "https":
		return "443"
	default:
		return ""
	}
}

// absoluteUrl resolves href against the page it was found on.
func absoluteUrl(pageUrl, href string) string {
	href = strings.TrimSpace(href)
	if href == "" {
		return ""
	}
	base, err := url.Parse(pageUrl)
	if err != nil {
		return ""
	}
	ref, err := url.Parse(href)
	if err != nil {
		return ""
	}
	resolved := base.ResolveReference(ref)
	if resolved.Scheme != "http" && resolved.Scheme != "https" {
		return ""
	}
	return resolved.String()
}

func (app *Crawler) getBaseUrl(urlString string) string {
	parsedUrl, err := url.Parse(urlString)
	if err != nil {
		app.Logger.Error("failed to parse Url %q: %v", urlString, err)
		return ""
	}
	return parsedUrl.Scheme + "://" + parsedUrl.Host
}

var (
	whitespaceRe = regexp.MustCompile(`\s+`)
	controlRe    = regexp.MustCompile("[\x00-\x08\x0b\x0c\x0e-\x1f\x7f]")
)

// cleanText collapses whitespace and strips control bytes from extracted
// field text.
func cleanText(text string) string {
	if text == "" {
		return ""
	}
	text = controlRe.ReplaceAllString(text, "")
	text = whitespaceRe.ReplaceAllString(text, " ")
	return strings.TrimSpace(text)
}
