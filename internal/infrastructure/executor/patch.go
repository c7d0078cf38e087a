package executor

import (
	"fmt"
	"sort"
	"strconv"
	"strings"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// hunk is one `@@ -a,b +c,d @@` block of a unified diff, parsed into
// the minimum shape needed to validate against and apply to the current
// file content: a run of context/delete lines anchored at a source line
// number, and the replacement lines to splice in.
type hunk struct {
	oldStart int
	oldLines int
	newStart int
	newLines int
	lines    []diffLine
}

type diffLine struct {
	kind byte // ' ' context, '-' delete, '+' add
	text string
}

// ParsePatch parses a unified-diff body (no file headers, just hunks) as
// the teacher's ApplyPatchTool never needed to: it shells out to the
// real `patch` binary instead of parsing the format itself. This is new
// code grounded directly on the unified-diff format spec.md §4.10
// prescribes (`@@ -a,b +c,d @@` headers, context/delete-line validation,
// overlapping-hunk rejection).
func ParsePatch(diff string) ([]hunk, error) {
	lines := strings.Split(diff, "\n")
	var hunks []hunk
	i := 0
	for i < len(lines) {
		line := lines[i]
		if !strings.HasPrefix(line, "@@") {
			i++
			continue
		}
		h, consumed, err := parseHunk(lines[i:])
		if err != nil {
			return nil, err
		}
		hunks = append(hunks, h)
		i += consumed
	}
	if len(hunks) == 0 {
		return nil, pkgerrors.New(pkgerrors.CodePatch, "patch contains no hunks")
	}
	if err := checkOverlap(hunks); err != nil {
		return nil, err
	}
	return hunks, nil
}

func parseHunk(lines []string) (hunk, int, error) {
	header := lines[0]
	oldStart, oldLines, newStart, newLines, err := parseHunkHeader(header)
	if err != nil {
		return hunk{}, 0, err
	}
	h := hunk{oldStart: oldStart, oldLines: oldLines, newStart: newStart, newLines: newLines}

	consumed := 1
	for i := 1; i < len(lines); i++ {
		l := lines[i]
		if l == "" && i == len(lines)-1 {
			consumed = i + 1
			break
		}
		if strings.HasPrefix(l, "@@") {
			break
		}
		if len(l) == 0 {
			consumed = i + 1
			continue
		}
		switch l[0] {
		case ' ', '-', '+':
			h.lines = append(h.lines, diffLine{kind: l[0], text: l[1:]})
			consumed = i + 1
		default:
			return hunk{}, 0, pkgerrors.New(pkgerrors.CodePatch, fmt.Sprintf("invalid diff line %q", l))
		}
	}
	return h, consumed, nil
}

func parseHunkHeader(header string) (oldStart, oldLines, newStart, newLines int, err error) {
	// @@ -a,b +c,d @@ (b/d default to 1 when omitted)
	body := strings.TrimPrefix(header, "@@")
	body = strings.TrimSuffix(strings.TrimSpace(body), "@@")
	body = strings.TrimSpace(body)
	parts := strings.Fields(body)
	if len(parts) != 2 || !strings.HasPrefix(parts[0], "-") || !strings.HasPrefix(parts[1], "+") {
		return 0, 0, 0, 0, pkgerrors.New(pkgerrors.CodePatch, fmt.Sprintf("malformed hunk header %q", header))
	}
	oldStart, oldLines, err = parseRange(parts[0][1:])
	if err != nil {
		return 0, 0, 0, 0, pkgerrors.Wrap(pkgerrors.CodePatch, "malformed hunk header", err)
	}
	newStart, newLines, err = parseRange(parts[1][1:])
	if err != nil {
		return 0, 0, 0, 0, pkgerrors.Wrap(pkgerrors.CodePatch, "malformed hunk header", err)
	}
	return oldStart, oldLines, newStart, newLines, nil
}

func parseRange(s string) (start, count int, err error) {
	fields := strings.SplitN(s, ",", 2)
	start, err = strconv.Atoi(fields[0])
	if err != nil {
		return 0, 0, err
	}
	count = 1
	if len(fields) == 2 {
		count, err = strconv.Atoi(fields[1])
		if err != nil {
			return 0, 0, err
		}
	}
	return start, count, nil
}

// checkOverlap rejects hunks whose old-file line ranges intersect —
// applying them in sequence against one source snapshot would otherwise
// depend on order and silently corrupt the result.
func checkOverlap(hunks []hunk) error {
	sorted := make([]hunk, len(hunks))
	copy(sorted, hunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].oldStart < sorted[j].oldStart })
	for i := 1; i < len(sorted); i++ {
		prevEnd := sorted[i-1].oldStart + sorted[i-1].oldLines
		if sorted[i].oldStart < prevEnd {
			return pkgerrors.New(pkgerrors.CodePatch, "hunks overlap")
		}
	}
	return nil
}

// Apply validates each hunk's context/delete lines against src and
// returns the patched content. A context or delete line that doesn't
// match the source at the expected position fails the whole patch —
// partial application is never attempted.
func Apply(src string, hunks []hunk) (string, error) {
	srcLines := strings.Split(src, "\n")
	var out []string
	cursor := 0 // 0-based index into srcLines, next line not yet emitted

	sorted := make([]hunk, len(hunks))
	copy(sorted, hunks)
	sort.Slice(sorted, func(i, j int) bool { return sorted[i].oldStart < sorted[j].oldStart })

	for _, h := range sorted {
		start := h.oldStart - 1
		if h.oldLines == 0 {
			start = h.oldStart
		}
		if start < cursor || start > len(srcLines) {
			return "", pkgerrors.New(pkgerrors.CodePatch, "hunk position out of range")
		}
		out = append(out, srcLines[cursor:start]...)
		cursor = start

		for _, dl := range h.lines {
			switch dl.kind {
			case ' ', '-':
				if cursor >= len(srcLines) || srcLines[cursor] != dl.text {
					return "", pkgerrors.New(pkgerrors.CodePatch, fmt.Sprintf("context mismatch at line %d", cursor+1))
				}
				if dl.kind == ' ' {
					out = append(out, dl.text)
				}
				cursor++
			case '+':
				out = append(out, dl.text)
			}
		}
	}
	out = append(out, srcLines[cursor:]...)
	return strings.Join(out, "\n"), nil
}
