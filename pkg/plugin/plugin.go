package plugin

import (
	"context"
	"fmt"
	"log/slog"
	"time"
)

// Plugin defines the lifecycle hooks that each plugin implementation must satisfy.
type Plugin interface {
	// Info returns the static metadata for the plugin.
	Info() Info
	// Configure inspects the configuration block before initialisation and may
	// inject defaults into it.
	Configure(cfg map[string]any) error
	// Init binds the plugin to the host's shared resources.
	Init(ctx *ExecutionContext) error
	// Start activates the plugin.
	Start(ctx *ExecutionContext) error
	// Stop releases anything acquired in Init or Start.
	Stop(ctx *ExecutionContext) error
}

// ToolProvider is implemented by plugins that expose tools. Tools is read
// once the plugin has started.
type ToolProvider interface {
	Tools() []Tool
}

// ExecutionContext is passed to plugins for every lifecycle stage.
type ExecutionContext struct {
	// C is the underlying context for cancellation and deadlines.
	C context.Context
	// Config is the plugin specific configuration block.
	Config map[string]any
	// Resources exposes shared services supplied by the host application.
	Resources map[string]any
	// Logger is scoped to the plugin id.
	Logger *slog.Logger
}

// Clone returns a shallow copy of the execution context so plugins can safely mutate maps.
func (c *ExecutionContext) Clone() *ExecutionContext {
	if c == nil {
		return nil
	}
	dup := *c
	dup.Config = cloneConfig(c.Config)
	if c.Resources != nil {
		dup.Resources = make(map[string]any, len(c.Resources))
		for k, v := range c.Resources {
			dup.Resources[k] = v
		}
	}
	return &dup
}

// Resource fetches a typed shared resource.
func Resource[T any](ctx *ExecutionContext, key string) (T, error) {
	var zero T
	if ctx == nil {
		return zero, fmt.Errorf("resource %s: no execution context", key)
	}
	raw, ok := ctx.Resources[key]
	if !ok || raw == nil {
		return zero, fmt.Errorf("resource %s is not provided by the host", key)
	}
	value, ok := raw.(T)
	if !ok {
		return zero, fmt.Errorf("resource %s has type %T, want %T", key, raw, zero)
	}
	return value, nil
}

// InvocationObserver is told about every tool invocation handled by the manager.
type InvocationObserver func(method string, result Result, elapsed time.Duration)

// Option modifies the behaviour of a plugin manager instance.
type Option func(*Manager)

// WithLoader overrides the default binary loader implementation.
func WithLoader(loader Loader) Option {
	return func(m *Manager) {
		if loader != nil {
			m.loader = loader
		}
	}
}

// WithIsolationStrategy sets a custom isolation policy enforcement strategy.
func WithIsolationStrategy(strategy IsolationStrategy) Option {
	return func(m *Manager) {
		if strategy != nil {
			m.isolation = strategy
		}
	}
}

// WithResource registers a shared resource that will be exposed to all plugins.
func WithResource(key string, value any) Option {
	return func(m *Manager) {
		if key == "" || value == nil {
			return
		}
		m.resources[key] = value
	}
}

// WithLogger sets the manager logger. Plugins receive children of it.
func WithLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.log = l
		}
	}
}

// WithAuditLogger sets the logger that records every invocation.
func WithAuditLogger(l *slog.Logger) Option {
	return func(m *Manager) {
		if l != nil {
			m.audit = l
		}
	}
}

// WithInvocationObserver registers a callback for every invocation.
func WithInvocationObserver(observer InvocationObserver) Option {
	return func(m *Manager) {
		if observer != nil {
			m.observers = append(m.observers, observer)
		}
	}
}
