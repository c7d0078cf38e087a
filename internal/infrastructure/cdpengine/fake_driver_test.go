package cdpengine

import (
	"context"
	"sync"
)

// fakeDriver is an in-memory Driver used to exercise snapshot/action/
// verify/lease logic without a live Chrome instance.
type fakeDriver struct {
	mu sync.Mutex

	a11y      []A11yNode
	a11yErr   error
	domNodes  []DOMNode
	domErr    error
	clickedBN []int64
	clickedEl []string
	filledBN  map[int64]string
	filledEl  map[string]string
	richText  map[string]string
	hoveredBN []int64
	hoveredEl []string
	typedBN   map[int64]string
	typedEl   map[string]string
	navigated []string
	url       string
	pageText  string
	selectors map[string]bool
	attrs     map[string]string // "selector.attr" -> value

	failBackendNode bool // force every *BackendNode call to fail, forcing selector fallback
	detached        bool
}

func newFakeDriver() *fakeDriver {
	return &fakeDriver{
		filledBN:  map[int64]string{},
		filledEl:  map[string]string{},
		richText:  map[string]string{},
		typedBN:   map[int64]string{},
		typedEl:   map[string]string{},
		selectors: map[string]bool{},
		attrs:     map[string]string{},
	}
}

func (f *fakeDriver) Accessibility(ctx context.Context) ([]A11yNode, error) {
	return f.a11y, f.a11yErr
}

func (f *fakeDriver) DOMWalk(ctx context.Context) ([]DOMNode, error) {
	return f.domNodes, f.domErr
}

func (f *fakeDriver) ClickBackendNode(ctx context.Context, backendNodeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBackendNode {
		return errSentinel
	}
	f.clickedBN = append(f.clickedBN, backendNodeID)
	return nil
}

func (f *fakeDriver) ClickSelector(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.clickedEl = append(f.clickedEl, selector)
	return nil
}

func (f *fakeDriver) FillBackendNode(ctx context.Context, backendNodeID int64, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBackendNode {
		return errSentinel
	}
	f.filledBN[backendNodeID] = value
	return nil
}

func (f *fakeDriver) FillSelector(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.filledEl[selector] = value
	return nil
}

func (f *fakeDriver) FillRichText(ctx context.Context, selector, value string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.richText[selector] = value
	return nil
}

func (f *fakeDriver) HoverBackendNode(ctx context.Context, backendNodeID int64) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBackendNode {
		return errSentinel
	}
	f.hoveredBN = append(f.hoveredBN, backendNodeID)
	return nil
}

func (f *fakeDriver) HoverSelector(ctx context.Context, selector string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.hoveredEl = append(f.hoveredEl, selector)
	return nil
}

func (f *fakeDriver) TypeBackendNode(ctx context.Context, backendNodeID int64, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failBackendNode {
		return errSentinel
	}
	f.typedBN[backendNodeID] = text
	return nil
}

func (f *fakeDriver) TypeSelector(ctx context.Context, selector, text string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.typedEl[selector] = text
	return nil
}

func (f *fakeDriver) Navigate(ctx context.Context, url string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.navigated = append(f.navigated, url)
	f.url = url
	return nil
}

func (f *fakeDriver) CurrentURL(ctx context.Context) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.url, nil
}

func (f *fakeDriver) TextContains(ctx context.Context, substr string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return stringContains(f.pageText, substr), nil
}

func (f *fakeDriver) SelectorExists(ctx context.Context, selector string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.selectors[selector], nil
}

func (f *fakeDriver) AttributeEquals(ctx context.Context, selector, attr, want string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.attrs[selector+"."+attr] == want, nil
}

func (f *fakeDriver) Detach(ctx context.Context) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.detached = true
	return nil
}

var errSentinel = &fakeError{"backend node dispatch unavailable"}

type fakeError struct{ msg string }

func (e *fakeError) Error() string { return e.msg }
