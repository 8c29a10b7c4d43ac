package plugin

import (
	"context"
	"encoding/json"
)

// Type represents the functional category of a plugin.
type Type string

const (
	// TypeTool plugins expose callable tools to agents.
	TypeTool Type = "tool"
)

// Capability expresses optional features a plugin may request access to.
type Capability string

const (
	CapabilityNetwork    Capability = "network"
	CapabilitySigning    Capability = "signing"
	CapabilityFilesystem Capability = "filesystem"
)

// Info contains descriptive metadata for a plugin implementation.
type Info struct {
	ID           string       `json:"id"`
	Name         string       `json:"name"`
	Description  string       `json:"description,omitempty"`
	Version      string       `json:"version,omitempty"`
	Category     Type         `json:"category"`
	Capabilities []Capability `json:"capabilities,omitempty"`
}

// State represents the lifecycle position of a plugin instance.
type State string

const (
	StateRegistered  State = "registered"
	StateInitialised State = "initialised"
	StateStarted     State = "started"
	StateStopped     State = "stopped"
)

// Call carries the caller's execution choices into a tool.
type Call struct {
	Mode      string `json:"mode,omitempty"`
	AccountID string `json:"account_id,omitempty"`
}

// Result is what a tool hands back to the host. Tools report failures inside
// the result; Payload is always JSON serialisable.
type Result struct {
	Payload   any    `json:"payload"`
	Succeeded bool   `json:"succeeded"`
	Code      string `json:"code,omitempty"`
}

// InvokeFunc executes a tool.
type InvokeFunc func(ctx context.Context, call Call, params json.RawMessage) Result

// Tool is a single callable capability.
type Tool struct {
	Method          string          `json:"method"`
	Name            string          `json:"name"`
	Description     string          `json:"description"`
	ParameterSchema json.RawMessage `json:"parameters"`
	Invoke          InvokeFunc      `json:"-"`
}

// Descriptor is the serialisable view of a registered tool.
type Descriptor struct {
	Tool
	PluginID string `json:"plugin"`
}
