package transform

import (
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/valueobject"
)

func content(text string) valueobject.MessageContent {
	return valueobject.NewMessageContent(text, valueobject.ContentTypeText)
}

func TestTransform_DropsOrphanedToolEntry(t *testing.T) {
	orphan := entity.ReconstructEntry("t1", "root", entity.RoleTool, content(""), nil,
		&entity.ToolResultRef{ToolCallID: "never-declared", Output: "x", Success: true}, time.Now())
	root := entity.ReconstructEntry("root", "", entity.RoleUser, content("hi"), nil, nil, time.Now())

	out := Transform([]*entity.Entry{root, orphan}, Abandoned)
	require.Len(t, out, 1)
	require.Equal(t, "user", out[0].Role)
}

func TestTransform_AbandonedBranchSynthesizesAbortedResult(t *testing.T) {
	call := entity.ToolCallRef{ID: "call-1", Name: "fs.read_text"}
	assistant, err := entity.NewToolCallEntry("a1", "root", content(""), call)
	require.NoError(t, err)

	out := Transform([]*entity.Entry{assistant}, Abandoned)
	require.Len(t, out, 2)
	require.Equal(t, "assistant", out[0].Role)
	require.Len(t, out[0].ToolCalls, 1)
	require.Equal(t, "tool", out[1].Role)
	require.Equal(t, "call-1", out[1].ToolCallID)
}

func TestTransform_CompactedBranchStripsDeclaration(t *testing.T) {
	call := entity.ToolCallRef{ID: "call-1", Name: "fs.read_text"}
	assistant, err := entity.NewToolCallEntry("a1", "root", content("thinking"), call)
	require.NoError(t, err)

	out := Transform([]*entity.Entry{assistant}, Compacted)
	require.Len(t, out, 1)
	require.Empty(t, out[0].ToolCalls)
}

func TestTransform_ResolvedCallKeepsDeclarationAndResult(t *testing.T) {
	call := entity.ToolCallRef{ID: "call-1", Name: "fs.read_text"}
	assistant, err := entity.NewToolCallEntry("a1", "root", content(""), call)
	require.NoError(t, err)
	result, err := entity.NewToolResultEntry("r1", "a1", entity.ToolResultRef{ToolCallID: "call-1", Output: "data", Success: true}, true)
	require.NoError(t, err)

	out := Transform([]*entity.Entry{assistant, result}, Compacted)
	require.Len(t, out, 2)
	require.Len(t, out[0].ToolCalls, 1)
	require.Equal(t, "tool", out[1].Role)
}

func TestTransform_NormalizesNonASCIIID(t *testing.T) {
	call := entity.ToolCallRef{ID: "调用-1", Name: "fs.read_text"}
	assistant, err := entity.NewToolCallEntry("a1", "root", content(""), call)
	require.NoError(t, err)
	result, err := entity.NewToolResultEntry("r1", "a1", entity.ToolResultRef{ToolCallID: "调用-1", Output: "data", Success: true}, true)
	require.NoError(t, err)

	out := Transform([]*entity.Entry{assistant, result}, Abandoned)
	require.Len(t, out, 2)
	require.NotEqual(t, "调用-1", out[0].ToolCalls[0].ID)
	require.Equal(t, out[0].ToolCalls[0].ID, out[1].ToolCallID)
}
