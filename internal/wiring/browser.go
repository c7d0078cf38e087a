package wiring

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/chromedp/cdproto/target"
	"go.uber.org/zap"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/toolprovider"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/cdpengine"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// BrowserGateway attaches the Execution Engine to tabs lazily: the
// Runtime Loop only ever names a tab_id, never a live chromedp
// session, so the first action or snapshot against a tab dials it
// through the configured debug URL and every call after reuses that
// binding until the tab is detached.
type BrowserGateway struct {
	engine   *cdpengine.Engine
	debugURL string

	mu       sync.Mutex
	attached map[string]bool
}

// NewBrowserGateway builds a gateway over engine, dialing tabs against
// debugURL (e.g. "http://127.0.0.1:9222") on first use.
func NewBrowserGateway(engine *cdpengine.Engine, debugURL string) *BrowserGateway {
	return &BrowserGateway{engine: engine, debugURL: debugURL, attached: make(map[string]bool)}
}

func (g *BrowserGateway) ensure(ctx context.Context, tabID string) error {
	g.mu.Lock()
	if g.attached[tabID] {
		g.mu.Unlock()
		return nil
	}
	g.mu.Unlock()

	driver, err := cdpengine.DialTarget(ctx, g.debugURL, target.ID(tabID))
	if err != nil {
		return pkgerrors.Wrap(pkgerrors.CodeServiceUnavail, "attach to browser tab "+tabID, err)
	}
	g.engine.Attach(ctx, tabID, driver)

	g.mu.Lock()
	g.attached[tabID] = true
	g.mu.Unlock()
	return nil
}

func stringArg(args map[string]any, key string) string {
	v, _ := args[key].(string)
	return v
}

// snapshotToMap walks a captured Snapshot's public accessors into a
// plain map, since entity.Snapshot's own fields are unexported and a
// direct json.Marshal would serialize to "{}". Only the top-level
// (frameID "") frame's roots are walked — nested-frame snapshots are
// reachable by ref from the caller's follow-up actions but are not
// flattened into this tree.
func snapshotToMap(snap *entity.Snapshot) map[string]any {
	var walk func(ref string) map[string]any
	walk = func(ref string) map[string]any {
		node, ok := snap.Node(ref)
		if !ok {
			return nil
		}
		out := map[string]any{
			"ref":  ref,
			"role": node.Role,
			"name": node.Name,
		}
		if len(node.Children) > 0 {
			children := make([]map[string]any, 0, len(node.Children))
			for _, childRef := range node.Children {
				if child := walk(childRef); child != nil {
					children = append(children, child)
				}
			}
			out["children"] = children
		}
		return out
	}

	roots := make([]map[string]any, 0)
	for _, ref := range snap.Roots("") {
		if n := walk(ref); n != nil {
			roots = append(roots, n)
		}
	}
	return map[string]any{
		"snapshot_id": snap.SnapshotID(),
		"tab_id":      snap.TabID(),
		"node_count":  snap.NodeCount(),
		"roots":       roots,
	}
}

func predicateFromArgs(args map[string]any, kindKey, textKey, selectorKey, attrKey, wantKey, prevURLKey string) (cdpengine.Predicate, bool) {
	kind := stringArg(args, kindKey)
	if kind == "" {
		return cdpengine.Predicate{}, false
	}
	return cdpengine.Predicate{
		Kind:        cdpengine.PredicateKind(kind),
		Text:        stringArg(args, textKey),
		Selector:    stringArg(args, selectorKey),
		Attr:        stringArg(args, attrKey),
		Want:        stringArg(args, wantKey),
		PreviousURL: stringArg(args, prevURLKey),
	}, true
}

// registerBrowserCapabilities declares the CapabilityPolicy and single
// provider for every browser.* capability and wires closures that
// translate toolprovider.Invoke's (target, args) shape into engine
// calls. Each action kind gets its own capability (rather than one
// shared "browser.action") because Invoke is never told which
// canonical tool name triggered it.
func registerBrowserCapabilities(providers *toolprovider.Registry, gateway *BrowserGateway, engine *cdpengine.Engine, logger *zap.Logger) error {
	mutatingPolicy := entity.CapabilityPolicy{
		RequiresLease:            true,
		Verification:             entity.VerifyOnCritical,
		Mutating:                 true,
		MaxRetries:               2,
		NoProgressSignatureClass: "browser_action",
	}
	readPolicy := entity.CapabilityPolicy{
		RequiresLease: false,
		Verification:  entity.VerifyNever,
		Mutating:      false,
		MaxRetries:    1,
	}

	actionKinds := map[string]cdpengine.ActionKind{
		"browser.click":    cdpengine.ActionClick,
		"browser.fill":     cdpengine.ActionFill,
		"browser.navigate": cdpengine.ActionNavigate,
		"browser.hover":    cdpengine.ActionHover,
		"browser.type":     cdpengine.ActionType,
	}

	for capability, kind := range actionKinds {
		providers.RegisterCapability(capability, mutatingPolicy)
		kind := kind
		invoke := func(ctx context.Context, tgt string, args map[string]any) (map[string]any, error) {
			tabID := stringArg(args, "tab_id")
			if tabID == "" {
				tabID = tgt
			}
			ownerID := stringArg(args, "owner_id")
			if err := gateway.ensure(ctx, tabID); err != nil {
				return nil, err
			}
			act := cdpengine.Action{Kind: kind, Ref: stringArg(args, "ref"), Value: stringArg(args, "value"), URL: stringArg(args, "url")}
			if err := engine.Act(ctx, tabID, ownerID, act); err != nil {
				return nil, err
			}
			result := map[string]any{"ok": true}
			if pred, has := predicateFromArgs(args, "predicate_kind", "predicate_text", "predicate_selector", "predicate_attr", "predicate_want", "predicate_previous_url"); has {
				vr, err := engine.Verify(ctx, tabID, pred, cdpengine.DefaultPollConfig())
				if err != nil {
					logger.Warn("post-action verify failed", zap.String("capability", capability), zap.Error(err))
				} else {
					result["verified"] = vr.Verified
					result["evidence"] = vr.Evidence
				}
			}
			return result, nil
		}
		if err := providers.RegisterProvider("cdp-engine", capability, 0, nil, invoke); err != nil {
			return fmt.Errorf("register provider for %s: %w", capability, err)
		}
	}

	providers.RegisterCapability("browser.snapshot", readPolicy)
	if err := providers.RegisterProvider("cdp-engine", "browser.snapshot", 0, nil, func(ctx context.Context, tgt string, args map[string]any) (map[string]any, error) {
		tabID := stringArg(args, "tab_id")
		if tabID == "" {
			tabID = tgt
		}
		if err := gateway.ensure(ctx, tabID); err != nil {
			return nil, err
		}
		snap, err := engine.Capture(ctx, tabID)
		if err != nil {
			return nil, err
		}
		return snapshotToMap(snap), nil
	}); err != nil {
		return err
	}

	providers.RegisterCapability("browser.lease", readPolicy)
	if err := providers.RegisterProvider("cdp-engine", "browser.lease", 0, nil, func(ctx context.Context, tgt string, args map[string]any) (map[string]any, error) {
		tabID := stringArg(args, "tab_id")
		if tabID == "" {
			tabID = tgt
		}
		ownerID := stringArg(args, "owner_id")
		ttlMs, _ := args["ttl_ms"].(float64)
		ttl := time.Duration(ttlMs) * time.Millisecond
		if ttl <= 0 {
			ttl = 30 * time.Second
		}
		if err := gateway.ensure(ctx, tabID); err != nil {
			return nil, err
		}
		lease, err := engine.Lease(tabID, ownerID, stringArg(args, "session_id"), ttl)
		if err != nil {
			return nil, err
		}
		return map[string]any{"tab_id": lease.TabID(), "owner_id": lease.OwnerID(), "expires_at": lease.ExpiresAt()}, nil
	}); err != nil {
		return err
	}

	providers.RegisterCapability("browser.verify", readPolicy)
	if err := providers.RegisterProvider("cdp-engine", "browser.verify", 0, nil, func(ctx context.Context, tgt string, args map[string]any) (map[string]any, error) {
		tabID := stringArg(args, "tab_id")
		if tabID == "" {
			tabID = tgt
		}
		pred, has := predicateFromArgs(args, "kind", "text", "selector", "attr", "want", "previous_url")
		if !has {
			return nil, pkgerrors.New(pkgerrors.CodeArgs, "browser.verify requires a predicate kind")
		}
		cfg := cdpengine.DefaultPollConfig()
		if ms, ok := args["timeout_ms"].(float64); ok && ms > 0 {
			cfg.Timeout = time.Duration(ms) * time.Millisecond
		}
		if ms, ok := args["interval_ms"].(float64); ok && ms > 0 {
			cfg.Interval = time.Duration(ms) * time.Millisecond
		}
		if err := gateway.ensure(ctx, tabID); err != nil {
			return nil, err
		}
		vr, err := engine.Verify(ctx, tabID, pred, cfg)
		if err != nil {
			return nil, err
		}
		return map[string]any{"verified": vr.Verified, "evidence": vr.Evidence}, nil
	}); err != nil {
		return err
	}

	return nil
}
