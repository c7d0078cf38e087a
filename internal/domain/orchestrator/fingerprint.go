package orchestrator

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"sync"
)

// Signature is the no-progress fingerprint per spec.md §4.11/§9: a
// capability-scoped action identity used to detect repeated actions that
// never move the session forward.
type Signature struct {
	CanonicalTool          string
	NormalizedTarget       string
	ExpectedEvidenceDigest string
}

// Key renders the signature to a stable comparison key.
func (s Signature) Key() string {
	sum := sha256.Sum256([]byte(s.CanonicalTool + "|" + s.NormalizedTarget + "|" + s.ExpectedEvidenceDigest))
	return hex.EncodeToString(sum[:16])
}

// ProgressTracker counts consecutive repeats of a signature and flags
// no-progress once a threshold is crossed, or once N consecutive turns
// report no verifiable forward evidence.
type ProgressTracker struct {
	mu             sync.Mutex
	lastKey        string
	repeatCount    int
	noEvidenceRun  int
	repeatThreshold int
	noEvidenceThreshold int
}

// NewProgressTracker creates a tracker with the given thresholds.
func NewProgressTracker(repeatThreshold, noEvidenceThreshold int) *ProgressTracker {
	if repeatThreshold <= 0 {
		repeatThreshold = 3
	}
	if noEvidenceThreshold <= 0 {
		noEvidenceThreshold = 3
	}
	return &ProgressTracker{repeatThreshold: repeatThreshold, noEvidenceThreshold: noEvidenceThreshold}
}

// Observe records one turn's outcome. hadEvidence reports whether the
// engine found verifiable forward evidence for this action. It returns
// true once either threshold is crossed.
func (p *ProgressTracker) Observe(sig Signature, hadEvidence bool) (noProgress bool, reason string) {
	p.mu.Lock()
	defer p.mu.Unlock()

	key := sig.Key()
	if key == p.lastKey {
		p.repeatCount++
	} else {
		p.repeatCount = 1
		p.lastKey = key
	}

	if hadEvidence {
		p.noEvidenceRun = 0
	} else {
		p.noEvidenceRun++
	}

	if p.repeatCount >= p.repeatThreshold {
		return true, fmt.Sprintf("signature repeated %d times: %s/%s", p.repeatCount, sig.CanonicalTool, sig.NormalizedTarget)
	}
	if p.noEvidenceRun >= p.noEvidenceThreshold {
		return true, fmt.Sprintf("no verifiable forward evidence across %d consecutive turns", p.noEvidenceRun)
	}
	return false, ""
}

// Reset clears accumulated state, e.g. after a successful compaction or
// a regenerate.
func (p *ProgressTracker) Reset() {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lastKey = ""
	p.repeatCount = 0
	p.noEvidenceRun = 0
}
