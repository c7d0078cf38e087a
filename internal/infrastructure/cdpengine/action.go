package cdpengine

import (
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// ActionKind enumerates the action vocabulary spec.md names for the
// Execution Engine.
type ActionKind string

const (
	ActionClick    ActionKind = "click"
	ActionFill     ActionKind = "fill"
	ActionNavigate ActionKind = "navigate"
	ActionHover    ActionKind = "hover"
	ActionType     ActionKind = "type"
)

// richTextSelectorHint marks a node whose selector hints identify a
// known rich-text editor, so Fill routes through FillRichText instead
// of a plain value assignment.
const richTextSelectorHint = "richtext"

// Action is one dispatch request against a ref produced by the most
// recent Capture call.
type Action struct {
	Kind  ActionKind
	Ref   string // resolved against the engine's current ref table
	Value string // fill/type payload; unused for click/hover
	URL   string // navigate target; unused otherwise
}

func dispatchAction(ctx dispatchContext, act Action) error {
	if act.Kind == ActionNavigate {
		if act.URL == "" {
			return pkgerrors.New(pkgerrors.CodeArgs, "navigate requires a url")
		}
		return ctx.driver.Navigate(ctx.ctx, act.URL)
	}

	meta, ok := ctx.table.byRef[act.Ref]
	if !ok {
		return pkgerrors.New(pkgerrors.CodeArgs, "unknown ref: "+act.Ref).WithHint("take a new snapshot; refs expire once the page changes")
	}

	switch act.Kind {
	case ActionClick:
		if meta.BackendNodeID != 0 {
			if err := ctx.driver.ClickBackendNode(ctx.ctx, meta.BackendNodeID); err == nil {
				return nil
			}
		}
		return clickBySelectorHints(ctx, meta)

	case ActionFill:
		if hasHint(meta.SelectorHints, richTextSelectorHint) {
			return fillRichTextBySelectorHints(ctx, meta, act.Value)
		}
		if meta.BackendNodeID != 0 {
			if err := ctx.driver.FillBackendNode(ctx.ctx, meta.BackendNodeID, act.Value); err == nil {
				return nil
			}
		}
		return fillBySelectorHints(ctx, meta, act.Value)

	case ActionHover:
		if meta.BackendNodeID != 0 {
			if err := ctx.driver.HoverBackendNode(ctx.ctx, meta.BackendNodeID); err == nil {
				return nil
			}
		}
		return hoverBySelectorHints(ctx, meta)

	case ActionType:
		if meta.BackendNodeID != 0 {
			if err := ctx.driver.TypeBackendNode(ctx.ctx, meta.BackendNodeID, act.Value); err == nil {
				return nil
			}
		}
		return typeBySelectorHints(ctx, meta, act.Value)

	default:
		return pkgerrors.New(pkgerrors.CodeArgs, "unsupported action kind: "+string(act.Kind))
	}
}

func hasHint(hints []string, want string) bool {
	for _, h := range hints {
		if h == want {
			return true
		}
	}
	return false
}

func clickBySelectorHints(ctx dispatchContext, meta SnapshotNodeMeta) error {
	return withSelectorFallback(meta, func(sel string) error { return ctx.driver.ClickSelector(ctx.ctx, sel) })
}

func fillBySelectorHints(ctx dispatchContext, meta SnapshotNodeMeta, value string) error {
	return withSelectorFallback(meta, func(sel string) error { return ctx.driver.FillSelector(ctx.ctx, sel, value) })
}

func fillRichTextBySelectorHints(ctx dispatchContext, meta SnapshotNodeMeta, value string) error {
	return withSelectorFallback(meta, func(sel string) error { return ctx.driver.FillRichText(ctx.ctx, sel, value) })
}

func hoverBySelectorHints(ctx dispatchContext, meta SnapshotNodeMeta) error {
	return withSelectorFallback(meta, func(sel string) error { return ctx.driver.HoverSelector(ctx.ctx, sel) })
}

func typeBySelectorHints(ctx dispatchContext, meta SnapshotNodeMeta, text string) error {
	return withSelectorFallback(meta, func(sel string) error { return ctx.driver.TypeSelector(ctx.ctx, sel, text) })
}

func withSelectorFallback(meta SnapshotNodeMeta, try func(selector string) error) error {
	if len(meta.SelectorHints) == 0 {
		return pkgerrors.New(pkgerrors.CodeArgs, "ref has no live backend node and no selector hints").WithHint("take a new snapshot")
	}
	var lastErr error
	for _, sel := range meta.SelectorHints {
		if sel == richTextSelectorHint {
			continue
		}
		if err := try(sel); err == nil {
			return nil
		} else {
			lastErr = err
		}
	}
	if lastErr == nil {
		lastErr = pkgerrors.New(pkgerrors.CodeArgs, "no usable selector hint for ref")
	}
	return lastErr
}
