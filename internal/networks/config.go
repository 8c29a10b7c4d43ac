package networks

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Overrides models the structure of configs/networks.yaml.
type Overrides struct {
	Networks map[string]Deployment `yaml:"networks"`
}

// LoadTable returns the default table with the overrides from path applied.
// An empty path yields the defaults unchanged.
func LoadTable(path string) (Table, error) {
	if strings.TrimSpace(path) == "" {
		return Default(), nil
	}

	content, err := os.ReadFile(path)
	if err != nil {
		return Table{}, fmt.Errorf("read network overrides: %w", err)
	}

	var overrides Overrides
	if err := yaml.Unmarshal(content, &overrides); err != nil {
		return Table{}, fmt.Errorf("parse network overrides: %w", err)
	}
	return ApplyOverrides(overrides)
}

// ApplyOverrides merges non-empty override fields into the defaults. Only the
// built-in networks may be overridden.
func ApplyOverrides(overrides Overrides) (Table, error) {
	merged := make(map[Name]Deployment, len(defaults))
	for name, dep := range defaults {
		merged[name] = dep
	}
	for raw, override := range overrides.Networks {
		name, ok := Parse(raw)
		if !ok {
			return Table{}, fmt.Errorf("network %q is not supported", raw)
		}
		merged[name] = mergeDeployment(merged[name], override)
	}
	return newTable(merged), nil
}

func mergeDeployment(base, override Deployment) Deployment {
	if v := strings.TrimSpace(override.RouterContractID); v != "" {
		base.RouterContractID = v
	}
	if v := strings.TrimSpace(override.WrappedNativeTokenID); v != "" {
		base.WrappedNativeTokenID = v
	}
	if v := strings.TrimSpace(override.WrappedNativeAddress); v != "" {
		base.WrappedNativeAddress = v
	}
	if v := strings.TrimSpace(override.MirrorNodeURL); v != "" {
		base.MirrorNodeURL = strings.TrimRight(v, "/")
	}
	if v := strings.TrimSpace(override.JSONRPCURL); v != "" {
		base.JSONRPCURL = v
	}
	return base
}
