package plugin

import (
	"errors"
	"fmt"
	"slices"
)

// IsolationStrategy enforces capability restrictions for plugins.
type IsolationStrategy interface {
	Validate(info Info, policy IsolationPolicy) error
	Prepare(info Info) error
	Cleanup(info Info) error
}

// CapabilityStrategy only checks declared capabilities against the policy.
// Deny lists win over allow lists.
type CapabilityStrategy struct{}

// Validate implements IsolationStrategy.
func (CapabilityStrategy) Validate(info Info, policy IsolationPolicy) error {
	for _, c := range info.Capabilities {
		if slices.Contains(policy.DeniedCapabilities, c) {
			return fmt.Errorf("plugin %s: capability %s is denied", info.ID, c)
		}
		if len(policy.AllowedCapabilities) > 0 && !slices.Contains(policy.AllowedCapabilities, c) {
			return fmt.Errorf("plugin %s: capability %s is not allowed", info.ID, c)
		}
	}
	return nil
}

// Prepare implements IsolationStrategy.
func (CapabilityStrategy) Prepare(Info) error { return nil }

// Cleanup implements IsolationStrategy.
func (CapabilityStrategy) Cleanup(Info) error { return nil }

// MergePolicies combines the default and plugin specific isolation policies.
func MergePolicies(defaults IsolationPolicy, plugin *IsolationPolicy) IsolationPolicy {
	if plugin == nil || plugin.IsZero() {
		return defaults
	}
	return plugin.Merge(defaults)
}

// EnsurePolicy rejects plugins that declare capabilities without any policy
// covering them.
func EnsurePolicy(info Info, policy IsolationPolicy) error {
	if len(info.Capabilities) > 0 && policy.IsZero() {
		return errors.New("plugins declaring capabilities require an isolation policy")
	}
	return nil
}
