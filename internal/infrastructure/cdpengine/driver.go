// Package cdpengine implements the browser Execution Engine: snapshot
// capture, action dispatch, and verification against a live Chrome
// DevTools Protocol target.
//
// The package separates the narrow set of CDP operations it needs
// (Driver) from the engine logic that builds snapshots, resolves refs,
// and polls for verification, so the latter can be exercised with a
// fake Driver. The real driver is grounded on the remote-allocator /
// per-target chromedp.Context pattern used for relaying commands to an
// already-running Chrome instance, rather than launching a managed
// headless browser.
package cdpengine

import (
	"context"
	"time"
)

// A11yNode is one entry of a raw accessibility-tree walk, before it is
// assigned a stable Ref by the engine.
type A11yNode struct {
	BackendNodeID int64
	Role          string
	Name          string
	FrameID       string
	SelectorHints []string
	ChildIndices  []int // indices into the same flat slice
}

// DOMNode is a fallback entry produced by a raw DOM walk when the
// accessibility tree is unavailable for a frame.
type DOMNode struct {
	BackendNodeID int64
	Tag           string
	Role          string
	Name          string
	FrameID       string
	SelectorHints []string
	ChildIndices  []int
}

// Driver is the minimal CDP surface the engine needs from a given tab
// target. One Driver instance is bound to one tab for its lifetime;
// Detach tears the binding down.
type Driver interface {
	// Accessibility captures a full accessibility-tree walk for the
	// tab's current document. An empty/nil result with a nil error
	// means the tree was unavailable and the engine should fall back
	// to DOMWalk.
	Accessibility(ctx context.Context) ([]A11yNode, error)

	// DOMWalk captures a raw DOM walk, used when Accessibility cannot
	// produce nodes (e.g. a frame with accessibility disabled).
	DOMWalk(ctx context.Context) ([]DOMNode, error)

	// ClickBackendNode dispatches a click at the given backend node.
	ClickBackendNode(ctx context.Context, backendNodeID int64) error
	// ClickSelector falls back to a CSS selector when the backend
	// node reference is stale.
	ClickSelector(ctx context.Context, selector string) error

	// FillBackendNode sets an input/textarea's value via the backend
	// node, typing through the DOM value setter.
	FillBackendNode(ctx context.Context, backendNodeID int64, value string) error
	FillSelector(ctx context.Context, selector, value string) error
	// FillRichText sets value through a rich-text editor's in-page
	// model API (e.g. a `.setContent` call) rather than simulated
	// keystrokes, for editors where SendKeys does not register.
	FillRichText(ctx context.Context, selector, value string) error

	HoverBackendNode(ctx context.Context, backendNodeID int64) error
	HoverSelector(ctx context.Context, selector string) error

	TypeBackendNode(ctx context.Context, backendNodeID int64, text string) error
	TypeSelector(ctx context.Context, selector, text string) error

	Navigate(ctx context.Context, url string) error

	// CurrentURL returns the tab's current top-level URL, used by the
	// urlChanged verification predicate.
	CurrentURL(ctx context.Context) (string, error)
	// TextContains reports whether the rendered page text contains
	// substr.
	TextContains(ctx context.Context, substr string) (bool, error)
	// SelectorExists reports whether selector matches at least one
	// element.
	SelectorExists(ctx context.Context, selector string) (bool, error)
	// AttributeEquals reports whether the first element matched by
	// selector has attr set to want.
	AttributeEquals(ctx context.Context, selector, attr, want string) (bool, error)

	// Detach releases the driver's binding to its tab. Any command
	// in flight when Detach is called should return ctx.Err() or a
	// driver-specific cancellation error.
	Detach(ctx context.Context) error
}

// PollConfig bounds a verification poll.
type PollConfig struct {
	Interval time.Duration
	Timeout  time.Duration
}

// DefaultPollConfig matches the interval/timeout the engine uses when
// a capability policy does not override it.
func DefaultPollConfig() PollConfig {
	return PollConfig{Interval: 200 * time.Millisecond, Timeout: 5 * time.Second}
}
