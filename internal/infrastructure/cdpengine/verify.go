package cdpengine

import (
	"context"
	"time"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

// PredicateKind enumerates spec.md's supported verification predicates.
type PredicateKind string

const (
	PredicateTextIncludes  PredicateKind = "textIncludes"
	PredicateSelectorExist PredicateKind = "selectorExists"
	PredicateURLChanged    PredicateKind = "urlChanged"
	PredicateAttrEquals    PredicateKind = "attributeEquals"
)

// Predicate describes one verification check. PreviousURL is only
// used by PredicateURLChanged; Selector/Attr/Want are only used by
// PredicateAttrEquals and PredicateSelectorExist as applicable.
type Predicate struct {
	Kind        PredicateKind
	Text        string
	Selector    string
	Attr        string
	Want        string
	PreviousURL string
}

// VerifyResult reports whether the predicate held within the poll
// window, with the last observed value as evidence either way.
type VerifyResult struct {
	Verified bool
	Evidence string
}

// Verify polls driver at cfg.Interval until the predicate holds or
// cfg.Timeout elapses. A verified=false result after window-exhaust is
// not itself an error; callers classify that by capability policy
// (hard failure for critical actions, progress_uncertain otherwise).
func Verify(ctx context.Context, driver Driver, pred Predicate, cfg PollConfig) (VerifyResult, error) {
	if cfg.Interval <= 0 {
		cfg.Interval = DefaultPollConfig().Interval
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultPollConfig().Timeout
	}

	deadline := time.Now().Add(cfg.Timeout)
	var lastEvidence string

	for {
		ok, evidence, err := evaluatePredicate(ctx, driver, pred)
		if err != nil {
			return VerifyResult{}, pkgerrors.Wrap(pkgerrors.CodeInternal, "predicate evaluation failed", err)
		}
		lastEvidence = evidence
		if ok {
			return VerifyResult{Verified: true, Evidence: evidence}, nil
		}
		if time.Now().After(deadline) {
			return VerifyResult{Verified: false, Evidence: lastEvidence}, nil
		}
		select {
		case <-ctx.Done():
			return VerifyResult{}, ctx.Err()
		case <-time.After(cfg.Interval):
		}
	}
}

func evaluatePredicate(ctx context.Context, driver Driver, pred Predicate) (bool, string, error) {
	switch pred.Kind {
	case PredicateTextIncludes:
		ok, err := driver.TextContains(ctx, pred.Text)
		return ok, "textIncludes:" + pred.Text, err

	case PredicateSelectorExist:
		ok, err := driver.SelectorExists(ctx, pred.Selector)
		return ok, "selectorExists:" + pred.Selector, err

	case PredicateURLChanged:
		cur, err := driver.CurrentURL(ctx)
		if err != nil {
			return false, "", err
		}
		return cur != pred.PreviousURL, "url:" + cur, nil

	case PredicateAttrEquals:
		ok, err := driver.AttributeEquals(ctx, pred.Selector, pred.Attr, pred.Want)
		return ok, "attributeEquals:" + pred.Selector + "." + pred.Attr, err

	default:
		return false, "", pkgerrors.New(pkgerrors.CodeArgs, "unsupported verification predicate: "+string(pred.Kind))
	}
}
