package cdpengine

import (
	"context"
	"fmt"
	"strings"

	"github.com/chromedp/cdproto/accessibility"
	"github.com/chromedp/cdproto/cdp"
	"github.com/chromedp/cdproto/dom"
	"github.com/chromedp/cdproto/input"
	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/cdproto/target"
	"github.com/chromedp/chromedp"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// ChromeDPDriver relays commands to one tab of an already-running
// Chrome instance reached over its DevTools debug URL, the same
// remote-allocator-plus-per-target-context shape used to attach to an
// existing browser session rather than launch a managed one.
type ChromeDPDriver struct {
	allocCtx    context.Context
	allocCancel context.CancelFunc
	taskCtx     context.Context
	taskCancel  context.CancelFunc
	targetID    target.ID
}

// DialTarget attaches to an existing Chrome tab identified by targetID,
// reached through debugURL (e.g. "http://localhost:9222").
func DialTarget(ctx context.Context, debugURL string, targetID target.ID) (*ChromeDPDriver, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
	taskCtx, taskCancel := chromedp.NewContext(allocCtx, chromedp.WithTargetID(targetID))
	if err := chromedp.Run(taskCtx); err != nil {
		taskCancel()
		allocCancel()
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "attach to chrome target failed", err)
	}
	return &ChromeDPDriver{
		allocCtx:    allocCtx,
		allocCancel: allocCancel,
		taskCtx:     taskCtx,
		taskCancel:  taskCancel,
		targetID:    targetID,
	}, nil
}

// ListTargets enumerates page targets reachable through debugURL, for
// choosing which tab DialTarget should attach to.
func ListTargets(ctx context.Context, debugURL string) ([]*target.Info, error) {
	allocCtx, allocCancel := chromedp.NewRemoteAllocator(ctx, debugURL)
	defer allocCancel()
	taskCtx, taskCancel := chromedp.NewContext(allocCtx)
	defer taskCancel()

	infos, err := chromedp.Targets(taskCtx)
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "list chrome targets failed", err)
	}
	pages := infos[:0]
	for _, t := range infos {
		if t.Type == "page" {
			pages = append(pages, t)
		}
	}
	return pages, nil
}

func (d *ChromeDPDriver) Accessibility(ctx context.Context) ([]A11yNode, error) {
	var rootNodes []*accessibility.Node
	err := chromedp.Run(d.taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		nodes, err := accessibility.GetFullAXTree().Do(ctx)
		if err != nil {
			return err
		}
		rootNodes = nodes
		return nil
	}))
	if err != nil {
		// Accessibility tree unavailable for this frame; the engine
		// falls back to DOMWalk.
		return nil, nil
	}
	return flattenAXTree(rootNodes), nil
}

func flattenAXTree(nodes []*accessibility.Node) []A11yNode {
	out := make([]A11yNode, 0, len(nodes))
	indexByAXID := make(map[accessibility.NodeID]int, len(nodes))
	for i, n := range nodes {
		indexByAXID[n.NodeID] = i
	}
	for _, n := range nodes {
		var backendID int64
		if n.BackendDOMNodeID != 0 {
			backendID = int64(n.BackendDOMNodeID)
		}
		role, name := "", ""
		if n.Role != nil {
			role = fmt.Sprintf("%v", n.Role.Value)
		}
		if n.Name != nil {
			name = fmt.Sprintf("%v", n.Name.Value)
		}
		var children []int
		for _, childID := range n.ChildIds {
			if idx, ok := indexByAXID[childID]; ok {
				children = append(children, idx)
			}
		}
		out = append(out, A11yNode{
			BackendNodeID: backendID,
			Role:          role,
			Name:          name,
			ChildIndices:  children,
		})
	}
	return out
}

func (d *ChromeDPDriver) DOMWalk(ctx context.Context) ([]DOMNode, error) {
	var rootNode *cdp.Node
	err := chromedp.Run(d.taskCtx, chromedp.ActionFunc(func(ctx context.Context) error {
		n, err := dom.GetDocument().Do(ctx)
		if err != nil {
			return err
		}
		rootNode = n
		return nil
	}))
	if err != nil {
		return nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "dom walk failed", err)
	}
	var out []DOMNode
	var walk func(n *cdp.Node)
	walk = func(n *cdp.Node) {
		if n == nil {
			return
		}
		out = append(out, DOMNode{
			BackendNodeID: int64(n.BackendNodeID),
			Tag:           n.NodeName,
		})
		for _, c := range n.Children {
			walk(c)
		}
	}
	walk(rootNode)
	return out, nil
}

func (d *ChromeDPDriver) ClickBackendNode(ctx context.Context, backendNodeID int64) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cx, cy, err := backendNodeCenter(ctx, backendNodeID)
		if err != nil {
			return err
		}
		return dispatchClick(ctx, cx, cy)
	}))
}

func (d *ChromeDPDriver) ClickSelector(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.Click(selector, chromedp.ByQuery))
}

func (d *ChromeDPDriver) FillBackendNode(ctx context.Context, backendNodeID int64, value string) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		return setValueByBackendNode(ctx, backendNodeID, value)
	}))
}

func (d *ChromeDPDriver) FillSelector(ctx context.Context, selector, value string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.SetValue(selector, value, chromedp.ByQuery))
}

func (d *ChromeDPDriver) FillRichText(ctx context.Context, selector, value string) error {
	script := fmt.Sprintf(`(function(){
		var el = document.querySelector(%q);
		if (!el) { return false; }
		if (el.__editorModel && typeof el.__editorModel.setContent === 'function') {
			el.__editorModel.setContent(%q);
			return true;
		}
		el.innerText = %q;
		el.dispatchEvent(new Event('input', {bubbles:true}));
		return true;
	})()`, selector, value, value)
	var ok bool
	return d.run(ctx, chromedp.Evaluate(script, &ok))
}

func (d *ChromeDPDriver) HoverBackendNode(ctx context.Context, backendNodeID int64) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		cx, cy, err := backendNodeCenter(ctx, backendNodeID)
		if err != nil {
			return err
		}
		return input.DispatchMouseEvent(input.MouseMoved, cx, cy).Do(ctx)
	}))
}

func (d *ChromeDPDriver) HoverSelector(ctx context.Context, selector string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.ScrollIntoView(selector, chromedp.ByQuery))
}

func (d *ChromeDPDriver) TypeBackendNode(ctx context.Context, backendNodeID int64, text string) error {
	return d.run(ctx, chromedp.ActionFunc(func(ctx context.Context) error {
		if _, err := backendNodeCenter(ctx, backendNodeID); err != nil {
			return err
		}
		for _, r := range text {
			if err := input.DispatchKeyEvent(input.KeyChar).WithText(string(r)).Do(ctx); err != nil {
				return err
			}
		}
		return nil
	}))
}

func (d *ChromeDPDriver) TypeSelector(ctx context.Context, selector, text string) error {
	return d.run(ctx, chromedp.WaitVisible(selector, chromedp.ByQuery), chromedp.SendKeys(selector, text, chromedp.ByQuery))
}

func (d *ChromeDPDriver) Navigate(ctx context.Context, url string) error {
	return d.run(ctx, chromedp.Navigate(url))
}

func (d *ChromeDPDriver) CurrentURL(ctx context.Context) (string, error) {
	var url string
	if err := d.run(ctx, chromedp.Location(&url)); err != nil {
		return "", err
	}
	return url, nil
}

func (d *ChromeDPDriver) TextContains(ctx context.Context, substr string) (bool, error) {
	var body string
	if err := d.run(ctx, chromedp.Evaluate(`document.body ? document.body.innerText : ""`, &body)); err != nil {
		return false, err
	}
	return stringContains(body, substr), nil
}

func (d *ChromeDPDriver) SelectorExists(ctx context.Context, selector string) (bool, error) {
	var exists bool
	script := fmt.Sprintf(`!!document.querySelector(%q)`, selector)
	if err := d.run(ctx, chromedp.Evaluate(script, &exists)); err != nil {
		return false, err
	}
	return exists, nil
}

func (d *ChromeDPDriver) AttributeEquals(ctx context.Context, selector, attr, want string) (bool, error) {
	var got string
	var ok bool
	if err := d.run(ctx, chromedp.AttributeValue(selector, attr, &got, &ok, chromedp.ByQuery)); err != nil {
		return false, err
	}
	return ok && got == want, nil
}

func (d *ChromeDPDriver) Detach(ctx context.Context) error {
	d.taskCancel()
	d.allocCancel()
	return nil
}

// run executes actions against the bound tab. d.taskCtx supplies the
// CDP executor; ctx's deadline/cancellation is layered on top so a
// caller timeout or a Detach in flight aborts the call.
func (d *ChromeDPDriver) run(ctx context.Context, actions ...chromedp.Action) error {
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if d.taskCtx.Err() != nil {
		return d.taskCtx.Err()
	}
	if err := chromedp.Run(d.taskCtx, actions...); err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "chrome action failed", err)
	}
	return nil
}

// backendNodeCenter resolves the viewport-relative center point of a
// backend node's content box, for dispatching synthetic mouse events
// at its location — the same box-model-then-dispatch path used when a
// ref's backend node is still live but has no stable CSS selector.
func backendNodeCenter(ctx context.Context, backendNodeID int64) (x, y float64, err error) {
	model, err := dom.GetBoxModel().WithBackendNodeID(cdp.BackendNodeID(backendNodeID)).Do(ctx)
	if err != nil {
		return 0, 0, pkgerrors.Wrap(pkgerrors.CodeInternal, "resolve backend node box model failed", err)
	}
	quad := model.Content
	if len(quad) < 8 {
		return 0, 0, pkgerrors.New(pkgerrors.CodeInternal, "backend node has no content quad")
	}
	x = (quad[0] + quad[2] + quad[4] + quad[6]) / 4
	y = (quad[1] + quad[3] + quad[5] + quad[7]) / 4
	return x, y, nil
}

func dispatchClick(ctx context.Context, x, y float64) error {
	if err := input.DispatchMouseEvent(input.MousePressed, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx); err != nil {
		return err
	}
	return input.DispatchMouseEvent(input.MouseReleased, x, y).WithButton(input.Left).WithClickCount(1).Do(ctx)
}

// setValueByBackendNode sets an input/textarea's value through the
// DOM directly via Runtime.callFunctionOn bound to the resolved
// remote object, for backend-node dispatch where a CSS selector is
// not (yet) known.
func setValueByBackendNode(ctx context.Context, backendNodeID int64, value string) error {
	obj, err := dom.ResolveNode().WithBackendNodeID(cdp.BackendNodeID(backendNodeID)).Do(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "resolve backend node failed", err)
	}
	const fn = `function(v){ this.value = v; this.dispatchEvent(new Event('input', {bubbles:true})); this.dispatchEvent(new Event('change', {bubbles:true})); }`
	_, exc, err := runtime.CallFunctionOn(fn).
		WithObjectID(obj.ObjectID).
		WithArguments([]*runtime.CallArgument{{Value: []byte(fmt.Sprintf("%q", value))}}).
		Do(ctx)
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeInternal, "set value via backend node failed", err)
	}
	if exc != nil {
		return pkgerrors.New(pkgerrors.CodeInternal, "set value threw in page: "+exc.Exception.Description)
	}
	return nil
}

func stringContains(haystack, needle string) bool {
	return strings.Contains(haystack, needle)
}
