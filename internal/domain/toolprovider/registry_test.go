package toolprovider

import (
	"context"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	pkgerrors "github.com/fenwicklabs/brainloop/pkg/errors"
)

func TestRegistry_RefusesProviderWithoutPolicy(t *testing.T) {
	r := NewRegistry()
	err := r.RegisterProvider("p1", "cdp.click", 1, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		return nil, nil
	})
	require.ErrorIs(t, err, entity.ErrCapabilityUnbound)
}

func TestRegistry_RoutesToHighestPriority(t *testing.T) {
	r := NewRegistry()
	r.RegisterCapability("cdp.click", entity.CapabilityPolicy{RequiresLease: true, Verification: entity.VerifyOnCritical, Mutating: true, MaxRetries: 2})

	var called string
	require.NoError(t, r.RegisterProvider("low", "cdp.click", 1, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "low"
		return nil, nil
	}))
	require.NoError(t, r.RegisterProvider("high", "cdp.click", 10, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "high"
		return nil, nil
	}))

	_, err := r.Route(context.Background(), "cdp.click", "tab-1", nil)
	require.NoError(t, err)
	require.Equal(t, "high", called)
}

func TestRegistry_TieBreaksByRegistrationOrder(t *testing.T) {
	r := NewRegistry()
	r.RegisterCapability("cdp.click", entity.CapabilityPolicy{})

	var called string
	require.NoError(t, r.RegisterProvider("first", "cdp.click", 5, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "first"
		return nil, nil
	}))
	require.NoError(t, r.RegisterProvider("second", "cdp.click", 5, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "second"
		return nil, nil
	}))

	_, err := r.Route(context.Background(), "cdp.click", "tab-1", nil)
	require.NoError(t, err)
	require.Equal(t, "first", called)
}

func TestRegistry_PredicateSkipsNonMatchingProvider(t *testing.T) {
	r := NewRegistry()
	r.RegisterCapability("cdp.click", entity.CapabilityPolicy{})

	var called string
	require.NoError(t, r.RegisterProvider("specific", "cdp.click", 10, func(target string) bool {
		return target == "tab-2"
	}, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "specific"
		return nil, nil
	}))
	require.NoError(t, r.RegisterProvider("generic", "cdp.click", 1, nil, func(context.Context, string, map[string]any) (map[string]any, error) {
		called = "generic"
		return nil, nil
	}))

	_, err := r.Route(context.Background(), "cdp.click", "tab-1", nil)
	require.NoError(t, err)
	require.Equal(t, "generic", called)
}

func TestRegistry_NoProviderAccepts(t *testing.T) {
	r := NewRegistry()
	r.RegisterCapability("cdp.click", entity.CapabilityPolicy{})
	require.NoError(t, r.RegisterProvider("specific", "cdp.click", 10, func(target string) bool {
		return target == "tab-2"
	}, func(context.Context, string, map[string]any) (map[string]any, error) { return nil, nil }))

	_, err := r.Route(context.Background(), "cdp.click", "tab-1", nil)
	require.Error(t, err)
	require.Equal(t, pkgerrors.CodeNoProvider, pkgerrors.Code(err))
}
