package cdpengine

import (
	"context"
	"fmt"
	"sync/atomic"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// snapshotSeq generates process-unique snapshot IDs without a
// wall-clock read (workflow scripts and some callers run under a
// frozen clock); a monotonic counter is sufficient since refs are only
// ever compared within one running process.
var snapshotSeq int64

func nextSnapshotID(tabID string) string {
	n := atomic.AddInt64(&snapshotSeq, 1)
	return fmt.Sprintf("snap-%s-%d", tabID, n)
}

// refTable is the ref -> backend-node map a snapshot produces,
// consulted by action dispatch until the next snapshot replaces it.
type refTable struct {
	byRef map[string]SnapshotNodeMeta
}

// SnapshotNodeMeta mirrors entity.SnapshotNode with the backend node
// ID kept alongside it for action dispatch (entity.SnapshotNode itself
// only exposes the stable Ref to domain callers).
type SnapshotNodeMeta struct {
	Ref           string
	BackendNodeID int64
	SelectorHints []string
}

// Capture builds a snapshot of tabID, preferring the accessibility
// tree and falling back to a DOM walk when the tree comes back empty.
// It assigns each node a short ref token and returns both the domain
// entity.Snapshot and the ref table the engine needs for dispatch.
func Capture(ctx context.Context, driver Driver, tabID string) (*entity.Snapshot, *refTable, error) {
	a11y, err := driver.Accessibility(ctx)
	if err != nil {
		return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "accessibility capture failed", err)
	}

	var nodes []entity.SnapshotNode
	var metas []SnapshotNodeMeta

	if len(a11y) > 0 {
		nodes, metas = buildFromA11y(a11y)
	} else {
		dom, err := driver.DOMWalk(ctx)
		if err != nil {
			return nil, nil, pkgerrors.Wrap(pkgerrors.CodeInternal, "dom walk fallback failed", err)
		}
		nodes, metas = buildFromDOM(dom)
	}

	frameTree := map[string][]string{}
	for _, n := range nodes {
		frameTree[n.FrameID] = append(frameTree[n.FrameID], n.Ref)
	}

	snapshotID := nextSnapshotID(tabID)
	snap := entity.NewSnapshot(snapshotID, tabID, nodes, frameTree)

	table := &refTable{byRef: make(map[string]SnapshotNodeMeta, len(metas))}
	for _, m := range metas {
		table.byRef[m.Ref] = m
	}
	return snap, table, nil
}

func buildFromA11y(a11y []A11yNode) ([]entity.SnapshotNode, []SnapshotNodeMeta) {
	nodes := make([]entity.SnapshotNode, 0, len(a11y))
	metas := make([]SnapshotNodeMeta, 0, len(a11y))
	refs := make([]string, len(a11y))
	for i := range a11y {
		refs[i] = fmt.Sprintf("e%d", i+1)
	}
	for i, n := range a11y {
		children := make([]string, 0, len(n.ChildIndices))
		for _, ci := range n.ChildIndices {
			if ci >= 0 && ci < len(refs) {
				children = append(children, refs[ci])
			}
		}
		nodes = append(nodes, entity.SnapshotNode{
			Ref:           refs[i],
			BackendNodeID: n.BackendNodeID,
			Role:          n.Role,
			Name:          n.Name,
			SelectorHints: n.SelectorHints,
			FrameID:       n.FrameID,
			Children:      children,
		})
		metas = append(metas, SnapshotNodeMeta{Ref: refs[i], BackendNodeID: n.BackendNodeID, SelectorHints: n.SelectorHints})
	}
	return nodes, metas
}

func buildFromDOM(dnodes []DOMNode) ([]entity.SnapshotNode, []SnapshotNodeMeta) {
	nodes := make([]entity.SnapshotNode, 0, len(dnodes))
	metas := make([]SnapshotNodeMeta, 0, len(dnodes))
	refs := make([]string, len(dnodes))
	for i := range dnodes {
		refs[i] = fmt.Sprintf("d%d", i+1)
	}
	for i, n := range dnodes {
		children := make([]string, 0, len(n.ChildIndices))
		for _, ci := range n.ChildIndices {
			if ci >= 0 && ci < len(refs) {
				children = append(children, refs[ci])
			}
		}
		nodes = append(nodes, entity.SnapshotNode{
			Ref:           refs[i],
			BackendNodeID: n.BackendNodeID,
			Role:          n.Tag,
			Name:          n.Name,
			SelectorHints: n.SelectorHints,
			FrameID:       n.FrameID,
			Children:      children,
		})
		metas = append(metas, SnapshotNodeMeta{Ref: refs[i], BackendNodeID: n.BackendNodeID, SelectorHints: n.SelectorHints})
	}
	return nodes, metas
}
