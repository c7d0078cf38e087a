package orchestrator

import "testing"

import "github.com/stretchr/testify/require"

func TestProgressTracker_FlagsRepeatedSignature(t *testing.T) {
	tr := NewProgressTracker(3, 10)
	sig := Signature{CanonicalTool: "cdp.click", NormalizedTarget: "#submit", ExpectedEvidenceDigest: "d1"}

	flagged, _ := tr.Observe(sig, true)
	require.False(t, flagged)
	flagged, _ = tr.Observe(sig, true)
	require.False(t, flagged)
	flagged, reason := tr.Observe(sig, true)
	require.True(t, flagged)
	require.Contains(t, reason, "repeated")
}

func TestProgressTracker_FlagsNoEvidenceRun(t *testing.T) {
	tr := NewProgressTracker(100, 2)
	sigA := Signature{CanonicalTool: "cdp.click", NormalizedTarget: "#a"}
	sigB := Signature{CanonicalTool: "cdp.click", NormalizedTarget: "#b"}

	flagged, _ := tr.Observe(sigA, false)
	require.False(t, flagged)
	flagged, reason := tr.Observe(sigB, false)
	require.True(t, flagged)
	require.Contains(t, reason, "no verifiable forward evidence")
}

func TestProgressTracker_EvidenceResetsNoEvidenceRun(t *testing.T) {
	tr := NewProgressTracker(100, 2)
	sig := Signature{CanonicalTool: "cdp.click", NormalizedTarget: "#a"}

	tr.Observe(sig, false)
	tr.Observe(sig, true)
	flagged, _ := tr.Observe(sig, false)
	require.False(t, flagged)
}

func TestProgressTracker_ResetClearsState(t *testing.T) {
	tr := NewProgressTracker(2, 2)
	sig := Signature{CanonicalTool: "cdp.click", NormalizedTarget: "#a"}
	tr.Observe(sig, true)
	tr.Reset()
	flagged, _ := tr.Observe(sig, true)
	require.False(t, flagged)
}
