package cdpengine

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/require"
)

func TestVerify_URLChangedPredicate(t *testing.T) {
	driver := newFakeDriver()
	driver.url = "https://example.com/start"

	go func() {
		time.Sleep(20 * time.Millisecond)
		driver.mu.Lock()
		driver.url = "https://example.com/next"
		driver.mu.Unlock()
	}()

	result, err := Verify(context.Background(), driver, Predicate{Kind: PredicateURLChanged, PreviousURL: "https://example.com/start"}, PollConfig{Interval: 5 * time.Millisecond, Timeout: 200 * time.Millisecond})
	require.NoError(t, err)
	require.True(t, result.Verified)
	require.Contains(t, result.Evidence, "https://example.com/next")
}

func TestVerify_SelectorExistsPredicate(t *testing.T) {
	driver := newFakeDriver()
	driver.selectors["#done-banner"] = true

	result, err := Verify(context.Background(), driver, Predicate{Kind: PredicateSelectorExist, Selector: "#done-banner"}, DefaultPollConfig())
	require.NoError(t, err)
	require.True(t, result.Verified)
}

func TestVerify_AttributeEqualsPredicate(t *testing.T) {
	driver := newFakeDriver()
	driver.attrs["#status.data-state"] = "saved"

	result, err := Verify(context.Background(), driver, Predicate{Kind: PredicateAttrEquals, Selector: "#status", Attr: "data-state", Want: "saved"}, DefaultPollConfig())
	require.NoError(t, err)
	require.True(t, result.Verified)
}

func TestVerify_UnsupportedPredicateErrors(t *testing.T) {
	driver := newFakeDriver()
	_, err := Verify(context.Background(), driver, Predicate{Kind: "bogus"}, DefaultPollConfig())
	require.Error(t, err)
}
