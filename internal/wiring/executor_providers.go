package wiring

import (
	"context"

	"github.com/fenwicklabs/brainloop/internal/domain/entity"
	"github.com/fenwicklabs/brainloop/internal/domain/toolprovider"
	"github.com/fenwicklabs/brainloop/internal/infrastructure/bridge"
)

// registerExecutorCapabilities declares the policy for every Local
// Executor capability and, when a bridge client successfully dialed,
// registers a single provider that adapts toolprovider.Invoke's
// (target, args) shape to bridge.Client.Invoke's (tool, sessionID,
// agentID, args) shape. If bridgeClient is nil (the executor daemon was
// unreachable at startup) the capability is still declared so policy
// lookups succeed, but no provider is registered — Route then degrades
// to E_NO_PROVIDER rather than panicking on a nil client.
func registerExecutorCapabilities(providers *toolprovider.Registry, bridgeClient *bridge.Client) error {
	policies := map[string]entity.CapabilityPolicy{
		"fs.read_text": {
			Verification: entity.VerifyNever,
			MaxRetries:   2,
		},
		"fs.write_text": {
			Verification:             entity.VerifyAlways,
			Mutating:                 true,
			MaxRetries:               1,
			NoProgressSignatureClass: "fs_write",
		},
		"fs.patch_text": {
			Verification:             entity.VerifyAlways,
			Mutating:                 true,
			MaxRetries:               1,
			NoProgressSignatureClass: "fs_write",
		},
		"command.run": {
			Verification: entity.VerifyNever,
			Mutating:     true,
			MaxRetries:   1,
		},
	}
	for capability, policy := range policies {
		providers.RegisterCapability(capability, policy)
	}
	if bridgeClient == nil {
		return nil
	}
	for capability := range policies {
		capability := capability
		invoke := func(ctx context.Context, target string, args map[string]any) (map[string]any, error) {
			sessionID, _ := args["session_id"].(string)
			agentID, _ := args["owner_id"].(string)
			return bridgeClient.Invoke(ctx, capability, sessionID, agentID, args)
		}
		if err := providers.RegisterProvider("executor-bridge", capability, 0, nil, invoke); err != nil {
			return err
		}
	}
	return nil
}
