package executor

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestParsePatch_AcceptsValidHunk(t *testing.T) {
	diff := "@@ -1,3 +1,3 @@\n line one\n-line two\n+line TWO\n line three\n"
	hunks, err := ParsePatch(diff)
	require.NoError(t, err)
	require.Len(t, hunks, 1)
	require.Equal(t, 1, hunks[0].oldStart)
	require.Equal(t, 3, hunks[0].oldLines)
}

func TestParsePatch_RejectsOverlappingHunks(t *testing.T) {
	diff := "@@ -1,3 +1,3 @@\n a\n-b\n+B\n c\n@@ -2,2 +2,2 @@\n b\n-c\n+C\n"
	_, err := ParsePatch(diff)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePatch, pkgerrors.Code(err))
}

func TestParsePatch_RejectsMalformedHeader(t *testing.T) {
	_, err := ParsePatch("@@ nonsense @@\n context\n")
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePatch, pkgerrors.Code(err))
}

func TestApply_ReplacesLineWithinContext(t *testing.T) {
	src := "line one\nline two\nline three"
	hunks, err := ParsePatch("@@ -1,3 +1,3 @@\n line one\n-line two\n+line TWO\n line three\n")
	require.NoError(t, err)

	out, err := Apply(src, hunks)
	require.NoError(t, err)
	require.Equal(t, "line one\nline TWO\nline three", out)
}

func TestApply_RejectsContextMismatch(t *testing.T) {
	src := "line one\nsomething else\nline three"
	hunks, err := ParsePatch("@@ -1,3 +1,3 @@\n line one\n-line two\n+line TWO\n line three\n")
	require.NoError(t, err)

	_, err = Apply(src, hunks)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodePatch, pkgerrors.Code(err))
}

func TestApply_AppliesMultipleNonOverlappingHunks(t *testing.T) {
	src := "a\nb\nc\nd\ne"
	hunks, err := ParsePatch("@@ -1,1 +1,1 @@\n-a\n+A\n@@ -5,1 +5,1 @@\n-e\n+E\n")
	require.NoError(t, err)

	out, err := Apply(src, hunks)
	require.NoError(t, err)
	require.Equal(t, "A\nb\nc\nd\nE", out)
}
