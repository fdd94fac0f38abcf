package politecrawl

import (
	"fmt"
)

type FetchErrorKind string

const (
	FetchTransient FetchErrorKind = "transient"
	FetchPermanent FetchErrorKind = "permanent"
	FetchTimeout   FetchErrorKind = "timeout"
)

// FetchError describes a failed fetch attempt. Transient errors have already
// been retried by the fetcher before being surfaced.
type FetchError struct {
	Kind       FetchErrorKind
	Url        string
	StatusCode int
	Err        error
}

func (e *FetchError) Error() string {
	if e.StatusCode > 0 {
		return fmt.Sprintf("fetch %s: %s (status %d): %v", e.Url, e.Kind, e.StatusCode, e.Err)
	}
	return fmt.Sprintf("fetch %s: %s: %v", e.Url, e.Kind, e.Err)
}

func (e *FetchError) Unwrap() error { return e.Err }

type PolicyReason string

const (
	PolicyAllowed         PolicyReason = "allowed"
	PolicyDisallowed      PolicyReason = "disallowed"
	PolicyBudgetExhausted PolicyReason = "budget-exhausted"
)

// PolicyError is returned when the policy gate refuses a target.
type PolicyError struct {
	Reason PolicyReason
	Url    string
}

func (e *PolicyError) Error() string {
	return fmt.Sprintf("policy refused %s: %s", e.Url, e.Reason)
}

type ExtractionErrorKind string

const (
	ExtractionNoMatch              ExtractionErrorKind = "no-match"
	ExtractionMissingRequiredField ExtractionErrorKind = "missing-required-field"
)

// ExtractionError reports a page or record level extraction problem.
// Missing required fields drop a single record and never abort the page.
type ExtractionError struct {
	Kind  ExtractionErrorKind
	Url   string
	Field string
}

func (e *ExtractionError) Error() string {
	if e.Field != "" {
		return fmt.Sprintf("extraction failed for %s: %s (%s)", e.Url, e.Kind, e.Field)
	}
	return fmt.Sprintf("extraction failed for %s: %s", e.Url, e.Kind)
}

type RenderErrorKind string

const (
	RenderNavigationFailed RenderErrorKind = "navigation-failed"
	RenderWaitTimeout      RenderErrorKind = "wait-timeout"
)

// RenderError describes a failed browser rendering attempt. The pagination
// driver treats these exactly like fetch errors.
type RenderError struct {
	Kind RenderErrorKind
	Url  string
	Err  error
}

func (e *RenderError) Error() string {
	return fmt.Sprintf("render %s: %s: %v", e.Url, e.Kind, e.Err)
}

func (e *RenderError) Unwrap() error { return e.Err }

// isTransientStatus reports whether an HTTP status code is worth retrying.
func isTransientStatus(status int) bool {
	return status == 429 || status >= 500
}
