package politecrawl

import "time"

// FieldSelector maps one record field to a selector relative to the matched
// node. An empty Attr extracts the node text.
type FieldSelector struct {
	Name     string `json:"name"`
	Selector string `json:"selector"`
	Attr     string `json:"attr"`
	Required bool   `json:"required"`
}

// ExtractionRule is one selector strategy: a node selector plus the field
// mapping applied to every matched node.
type ExtractionRule struct {
	Selector string          `json:"selector"`
	Fields   []FieldSelector `json:"fields"`
}

// ExtractionRuleSet is the externally supplied selector knowledge for a
// site. Rules are tried in declaration order and the first one producing at
// least one matched node wins the page; later rules are not consulted.
type ExtractionRuleSet struct {
	Rules []ExtractionRule `json:"rules"`

	// NextSelector optionally names an explicit "next page" element. When it
	// yields nothing the engine falls back to rel="next" links and finally to
	// a numbered pagination pattern inferred from the current URL.
	NextSelector string `json:"next_selector"`
}

type WaitKind string

const (
	WaitNone        WaitKind = ""
	WaitSelector    WaitKind = "selector-present"
	WaitNetworkIdle WaitKind = "network-idle"
	WaitScroll      WaitKind = "scroll-count"
)

// RenderWaitCondition tells the rendering adapter when a dynamically
// rendered page is ready for extraction.
type RenderWaitCondition struct {
	Kind     WaitKind
	Selector string
	Timeout  time.Duration
	Scrolls  int
	Settle   time.Duration
}

// WaitForSelector waits until the selector matches or the timeout elapses.
func WaitForSelector(selector string, timeout time.Duration) RenderWaitCondition {
	return RenderWaitCondition{Kind: WaitSelector, Selector: selector, Timeout: timeout}
}

// WaitForNetworkIdle waits until the page settles or the timeout elapses.
func WaitForNetworkIdle(timeout time.Duration) RenderWaitCondition {
	return RenderWaitCondition{Kind: WaitNetworkIdle, Timeout: timeout}
}

// WaitForScrolls performs n scroll-to-bottom actions with a settle delay in
// between, to trigger incremental loading. Best effort: extraction proceeds
// whether or not the last scroll produced new content.
func WaitForScrolls(n int, settle time.Duration) RenderWaitCondition {
	return RenderWaitCondition{Kind: WaitScroll, Scrolls: n, Settle: settle}
}
