// Package networks holds the static per-network deployment table used by the
// swap flow: SaucerSwap router, wrapped HBAR and the service endpoints for the
// two supported Hedera ledgers.
package networks

import (
	"sort"
	"strings"
)

// Name identifies a Hedera ledger instance.
type Name string

const (
	Testnet Name = "testnet"
	Mainnet Name = "mainnet"
)

// Deployment describes everything the swap flow needs to know about a network.
type Deployment struct {
	RouterContractID     string `yaml:"router_contract_id"`
	WrappedNativeTokenID string `yaml:"wrapped_native_token_id"`
	WrappedNativeAddress string `yaml:"wrapped_native_address"`
	MirrorNodeURL        string `yaml:"mirror_node_url"`
	JSONRPCURL           string `yaml:"json_rpc_url"`
}

// Table is an immutable mapping from network to deployment. The zero value is
// empty; use Default or LoadTable.
type Table struct {
	entries map[Name]Deployment
}

var defaults = map[Name]Deployment{
	Testnet: {
		RouterContractID:     "0.0.19264",
		WrappedNativeTokenID: "0.0.15058",
		WrappedNativeAddress: "0x0000000000000000000000000000000000003ad2",
		MirrorNodeURL:        "https://testnet.mirrornode.hedera.com/api/v1",
		JSONRPCURL:           "https://testnet.hashio.io/api",
	},
	Mainnet: {
		RouterContractID:     "0.0.3045981",
		WrappedNativeTokenID: "0.0.1456986",
		WrappedNativeAddress: "0x0000000000000000000000000000000000163b5a",
		MirrorNodeURL:        "https://mainnet-public.mirrornode.hedera.com/api/v1",
		JSONRPCURL:           "https://mainnet.hashio.io/api",
	},
}

// Default returns the built-in SaucerSwap V1 deployment table.
func Default() Table {
	return newTable(defaults)
}

func newTable(src map[Name]Deployment) Table {
	entries := make(map[Name]Deployment, len(src))
	for name, dep := range src {
		entries[name] = dep
	}
	return Table{entries: entries}
}

// Parse maps a user supplied network name onto a supported Name.
func Parse(raw string) (Name, bool) {
	switch Name(strings.ToLower(strings.TrimSpace(raw))) {
	case Testnet:
		return Testnet, true
	case Mainnet:
		return Mainnet, true
	default:
		return "", false
	}
}

// Lookup returns the deployment for a network.
func (t Table) Lookup(name Name) (Deployment, bool) {
	dep, ok := t.entries[name]
	return dep, ok
}

// Names lists the configured networks in stable order.
func (t Table) Names() []Name {
	names := make([]Name, 0, len(t.entries))
	for name := range t.entries {
		names = append(names, name)
	}
	sort.Slice(names, func(i, j int) bool { return names[i] < names[j] })
	return names
}

// RouterContractID returns the SaucerSwap router contract id.
func (t Table) RouterContractID(name Name) (string, bool) {
	return t.field(name, func(d Deployment) string { return d.RouterContractID })
}

// WrappedNativeAddress returns the EVM address of WHBAR.
func (t Table) WrappedNativeAddress(name Name) (string, bool) {
	return t.field(name, func(d Deployment) string { return d.WrappedNativeAddress })
}

// MirrorNodeURL returns the mirror node REST base URL.
func (t Table) MirrorNodeURL(name Name) (string, bool) {
	return t.field(name, func(d Deployment) string { return d.MirrorNodeURL })
}

// JSONRPCURL returns the JSON-RPC relay endpoint.
func (t Table) JSONRPCURL(name Name) (string, bool) {
	return t.field(name, func(d Deployment) string { return d.JSONRPCURL })
}

func (t Table) field(name Name, pick func(Deployment) string) (string, bool) {
	dep, ok := t.entries[name]
	if !ok {
		return "", false
	}
	value := strings.TrimSpace(pick(dep))
	if value == "" {
		return "", false
	}
	return value, true
}
