// Package transform implements the Message Transform (spec.md §4.3):
// it produces LLM-consumable history from a raw branch of entries,
// dropping orphaned tool entries, reconciling assistant entries whose
// declared tool_calls never resolved, and normalizing non-ASCII-safe
// tool_call ids.
//
// Grounded on the teacher's dangling_toolcall_middleware (a
// process-message middleware stage that strips unresolved tool_call
// references before sending history to the LLM) — the same defensive
// "don't let the LLM see a dangling reference" concern, generalized here
// into the two explicit branch-disposition policies spec.md calls for.
package transform

import (
	"crypto/sha256"
	"encoding/hex"
	"unicode"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/llm"
)

// BranchDisposition tells Transform how to reconcile assistant entries
// whose declared tool_calls lack a matching tool-role entry on the
// branch (spec.md §4.3's Open Question (b) decision).
type BranchDisposition int

const (
	// Abandoned: the branch stopped mid-flight (e.g. the run crashed
	// before the tool executed). Preserve intent by synthesizing
	// errored/aborted tool entries so the history stays well-formed.
	Abandoned BranchDisposition = iota
	// Compacted: the branch was deliberately summarized away. Strip the
	// tool_call declarations from the emitted history instead, since a
	// synthetic error would misrepresent a summary as a failure.
	Compacted
)

// Transform converts a raw branch into LLM-consumable messages.
func Transform(branch []*entity.Entry, disposition BranchDisposition) []llm.Message {
	declaredCalls := make(map[string]bool) // tool_call id -> declared
	resolvedCalls := make(map[string]bool) // tool_call id -> has a tool entry

	for _, e := range branch {
		if c := e.ToolCall(); c != nil {
			declaredCalls[c.ID] = true
		}
		if r := e.ToolResult(); r != nil {
			resolvedCalls[r.ToolCallID] = true
		}
	}

	out := make([]llm.Message, 0, len(branch))
	for _, e := range branch {
		switch e.Role() {
		case entity.RoleTool:
			r := e.ToolResult()
			if r == nil || !declaredCalls[r.ToolCallID] {
				continue // orphaned tool entry: drop
			}
			out = append(out, llm.Message{
				Role:       "tool",
				Content:    r.Output,
				ToolCallID: normalizeID(r.ToolCallID),
			})

		case entity.RoleAssistant:
			msg := llm.Message{Role: "assistant", Content: e.Content().Text()}
			if c := e.ToolCall(); c != nil {
				if resolvedCalls[c.ID] || disposition == Abandoned {
					msg.ToolCalls = []llm.ToolCallRequest{{
						ID:        normalizeID(c.ID),
						Name:      c.Name,
						Arguments: c.Arguments,
					}}
				}
				// disposition == Compacted && !resolved: strip the
				// declaration — msg.ToolCalls stays nil.
			}
			out = append(out, msg)
			if c := e.ToolCall(); c != nil && !resolvedCalls[c.ID] && disposition == Abandoned {
				out = append(out, llm.Message{
					Role:       "tool",
					Content:    "aborted: run ended before this tool call completed",
					ToolCallID: normalizeID(c.ID),
				})
			}

		case entity.RoleUser:
			out = append(out, llm.Message{Role: "user", Content: e.Content().Text()})

		case entity.RoleSystemSummary:
			out = append(out, llm.Message{Role: "system", Content: e.Content().Text()})
		}
	}
	return out
}

// normalizeID replaces a non-ASCII-safe tool_call id with a deterministic
// hash-derived id, stable across calls with the same input, so the
// rewritten id in the emitted history still matches across the
// assistant/tool message pair. Persistent entries are never touched —
// only the slice of llm.Message returned by Transform.
func normalizeID(id string) string {
	if isASCIISafe(id) {
		return id
	}
	sum := sha256.Sum256([]byte(id))
	return "tc_" + hex.EncodeToString(sum[:])[:16]
}

func isASCIISafe(id string) bool {
	if id == "" {
		return false
	}
	for _, r := range id {
		if r > unicode.MaxASCII || unicode.IsControl(r) {
			return false
		}
	}
	return true
}
