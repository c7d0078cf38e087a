package bridge

import (
	"testing"

	"github.com/stretchr/testify/require"

	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestConcurrencyGate_AllowsUpToMaxConcurrency(t *testing.T) {
	gate := NewConcurrencyGate(2, 1000)

	require.NoError(t, gate.TryAcquire())
	require.NoError(t, gate.TryAcquire())
	require.Equal(t, 2, gate.Active())
}

func TestConcurrencyGate_RejectsBeyondMaxConcurrencyWithBusy(t *testing.T) {
	gate := NewConcurrencyGate(1, 1000)

	require.NoError(t, gate.TryAcquire())
	err := gate.TryAcquire()
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeBusy, pkgerrors.Code(err))
}

func TestConcurrencyGate_ReleaseFreesASlot(t *testing.T) {
	gate := NewConcurrencyGate(1, 1000)

	require.NoError(t, gate.TryAcquire())
	gate.Release()
	require.NoError(t, gate.TryAcquire())
}

func TestConcurrencyGate_RejectsWhenAdmissionRateExceeded(t *testing.T) {
	// burst ties to max_concurrency (1 here), so the single burst token is
	// spent by the first call and the near-zero refill rate starves the
	// second regardless of slot availability.
	gate := NewConcurrencyGate(1, 0.0001)

	require.NoError(t, gate.TryAcquire())
	gate.Release()
	err := gate.TryAcquire()
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeBusy, pkgerrors.Code(err))
}
