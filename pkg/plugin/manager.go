package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"sort"
	"sync"
	"time"
)

var (
	// ErrToolNotFound is returned when no started plugin exposes a method.
	ErrToolNotFound = errors.New("tool not found")
	// ErrPluginNotFound is returned for unknown plugin ids.
	ErrPluginNotFound = errors.New("plugin not registered")
)

// Manager keeps track of registered plugins, orchestrates their lifecycle and
// routes tool invocations to them.
type Manager struct {
	mu        sync.RWMutex
	registry  map[string]*instance
	tools     map[string]registeredTool
	loader    Loader
	isolation IsolationStrategy
	resources map[string]any
	cfg       ManagerConfig
	log       *slog.Logger
	audit     *slog.Logger
	observers []InvocationObserver
}

type instance struct {
	mu     sync.Mutex
	plugin Plugin
	info   Info
	state  State
	config map[string]any
	policy IsolationPolicy
	source string
}

type registeredTool struct {
	tool     Tool
	pluginID string
}

// NewManager constructs a manager and loads every enabled plugin that the
// configuration points at on disk.
func NewManager(cfg ManagerConfig, opts ...Option) (*Manager, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	if cfg.Plugins == nil {
		cfg.Plugins = map[string]PluginConfig{}
	}
	m := &Manager{
		registry:  make(map[string]*instance),
		tools:     make(map[string]registeredTool),
		loader:    GoPluginLoader{},
		isolation: CapabilityStrategy{},
		resources: make(map[string]any),
		cfg:       cfg,
		log:       slog.Default(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(m)
		}
	}
	if m.audit == nil {
		m.audit = m.log
	}
	if err := m.loadConfigured(); err != nil {
		return nil, err
	}
	return m, nil
}

// RegisterBuiltin registers a plugin compiled into the host, using the
// configuration block with the same id when present. Disabled built-ins are
// skipped without error.
func (m *Manager) RegisterBuiltin(p Plugin) error {
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	id := p.Info().ID
	settings, _ := m.cfg.Settings(id)
	if !settings.IsEnabled() {
		m.log.Info("built-in plugin disabled", slog.String("plugin", id))
		return nil
	}
	policy := MergePolicies(m.cfg.Defaults, settings.Policy)
	return m.register(id, p, cloneConfig(settings.Config), policy, "builtin")
}

// Register registers a plugin instance directly with the manager.
func (m *Manager) Register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy) error {
	return m.register(id, p, cfg, MergePolicies(m.cfg.Defaults, &policy), "manual")
}

func (m *Manager) register(id string, p Plugin, cfg map[string]any, policy IsolationPolicy, source string) error {
	if id == "" {
		return errors.New("plugin id cannot be empty")
	}
	if p == nil {
		return errors.New("plugin implementation cannot be nil")
	}
	info := p.Info()
	if info.ID != "" && info.ID != id {
		return fmt.Errorf("plugin id mismatch: %s != %s", info.ID, id)
	}
	info.ID = id
	if err := EnsurePolicy(info, policy); err != nil {
		return fmt.Errorf("plugin %s: %w", id, err)
	}
	if err := m.isolation.Validate(info, policy); err != nil {
		return err
	}
	if cfg == nil {
		cfg = map[string]any{}
	}
	if err := p.Configure(cfg); err != nil {
		return fmt.Errorf("configure plugin %s: %w", id, err)
	}

	m.mu.Lock()
	defer m.mu.Unlock()
	if _, exists := m.registry[id]; exists {
		return fmt.Errorf("plugin %s already registered", id)
	}
	m.registry[id] = &instance{plugin: p, info: info, state: StateRegistered, config: cfg, policy: policy, source: source}
	m.log.Info("plugin registered", slog.String("plugin", id), slog.String("source", source))
	return nil
}

// Load loads a plugin implementation from disk and registers it with the manager.
func (m *Manager) Load(id string, path string, cfg map[string]any, policy IsolationPolicy) error {
	if path == "" {
		return errors.New("plugin path cannot be empty")
	}
	p, err := m.loader.Load(path)
	if err != nil {
		return fmt.Errorf("load plugin from %s: %w", path, err)
	}
	return m.register(id, p, cfg, policy, path)
}

// Start initialises and starts a plugin by id, then publishes its tools.
func (m *Manager) Start(ctx context.Context, id string) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state == StateStarted {
		return nil
	}

	execCtx := m.executionContext(ctx, inst)
	if inst.state == StateRegistered {
		if err := inst.plugin.Init(execCtx.Clone()); err != nil {
			return fmt.Errorf("initialise plugin %s: %w", id, err)
		}
		inst.state = StateInitialised
	}
	if err := m.isolation.Prepare(inst.info); err != nil {
		return fmt.Errorf("prepare isolation for %s: %w", id, err)
	}
	if err := inst.plugin.Start(execCtx.Clone()); err != nil {
		_ = m.isolation.Cleanup(inst.info)
		return fmt.Errorf("start plugin %s: %w", id, err)
	}
	if err := m.publishTools(id, inst.plugin); err != nil {
		_ = inst.plugin.Stop(execCtx.Clone())
		_ = m.isolation.Cleanup(inst.info)
		return err
	}
	inst.state = StateStarted
	m.log.Info("plugin started", slog.String("plugin", id))
	return nil
}

// Stop withdraws a plugin's tools and halts it if it is running.
func (m *Manager) Stop(ctx context.Context, id string) error {
	inst, err := m.get(id)
	if err != nil {
		return err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	if inst.state != StateStarted {
		return nil
	}
	m.withdrawTools(id)
	if err := inst.plugin.Stop(m.executionContext(ctx, inst).Clone()); err != nil {
		return fmt.Errorf("stop plugin %s: %w", id, err)
	}
	if err := m.isolation.Cleanup(inst.info); err != nil {
		return fmt.Errorf("cleanup isolation for %s: %w", id, err)
	}
	inst.state = StateStopped
	m.log.Info("plugin stopped", slog.String("plugin", id))
	return nil
}

// StartAll starts all registered plugins in id order.
func (m *Manager) StartAll(ctx context.Context) error {
	for _, id := range m.ids() {
		if err := m.Start(ctx, id); err != nil {
			return err
		}
	}
	return nil
}

// StopAll stops all active plugins and reports every failure.
func (m *Manager) StopAll(ctx context.Context) error {
	var errs []error
	ids := m.ids()
	for i := len(ids) - 1; i >= 0; i-- {
		if err := m.Stop(ctx, ids[i]); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

// State returns the lifecycle state of a plugin.
func (m *Manager) State(id string) (State, error) {
	inst, err := m.get(id)
	if err != nil {
		return "", err
	}
	inst.mu.Lock()
	defer inst.mu.Unlock()
	return inst.state, nil
}

// Plugins lists the metadata of every registered plugin.
func (m *Manager) Plugins() []Info {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Info, 0, len(m.registry))
	for _, inst := range m.registry {
		out = append(out, inst.info)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out
}

// Tool looks up a published tool by method.
func (m *Manager) Tool(method string) (Descriptor, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rt, ok := m.tools[method]
	if !ok {
		return Descriptor{}, false
	}
	return Descriptor{Tool: rt.tool, PluginID: rt.pluginID}, true
}

// Tools lists every published tool sorted by method.
func (m *Manager) Tools() []Descriptor {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]Descriptor, 0, len(m.tools))
	for _, rt := range m.tools {
		out = append(out, Descriptor{Tool: rt.tool, PluginID: rt.pluginID})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Method < out[j].Method })
	return out
}

// Invoke runs a tool once. The error is only set when the method is unknown;
// tool failures are reported inside the Result.
func (m *Manager) Invoke(ctx context.Context, method string, call Call, params json.RawMessage) (Result, error) {
	desc, ok := m.Tool(method)
	if !ok {
		return Result{}, fmt.Errorf("%w: %s", ErrToolNotFound, method)
	}

	started := time.Now()
	result := desc.Invoke(ctx, call, params)
	elapsed := time.Since(started)

	m.audit.Info("tool invoked",
		slog.String("plugin", desc.PluginID),
		slog.String("method", method),
		slog.String("mode", call.Mode),
		slog.String("account_id", call.AccountID),
		slog.Bool("succeeded", result.Succeeded),
		slog.String("code", result.Code),
		slog.Duration("elapsed", elapsed),
	)
	for _, observe := range m.observers {
		observe(method, result, elapsed)
	}
	return result, nil
}

func (m *Manager) publishTools(id string, p Plugin) error {
	provider, ok := p.(ToolProvider)
	if !ok {
		return nil
	}
	tools := provider.Tools()

	m.mu.Lock()
	defer m.mu.Unlock()
	for _, tool := range tools {
		if tool.Method == "" || tool.Invoke == nil {
			return fmt.Errorf("plugin %s exposes an incomplete tool %q", id, tool.Method)
		}
		if existing, taken := m.tools[tool.Method]; taken && existing.pluginID != id {
			return fmt.Errorf("tool %s already provided by plugin %s", tool.Method, existing.pluginID)
		}
	}
	for _, tool := range tools {
		m.tools[tool.Method] = registeredTool{tool: tool, pluginID: id}
	}
	return nil
}

func (m *Manager) withdrawTools(id string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for method, rt := range m.tools {
		if rt.pluginID == id {
			delete(m.tools, method)
		}
	}
}

func (m *Manager) executionContext(ctx context.Context, inst *instance) *ExecutionContext {
	return &ExecutionContext{
		C:         ctx,
		Config:    inst.config,
		Resources: m.resources,
		Logger:    m.log.With(slog.String("plugin", inst.info.ID)),
	}
}

func (m *Manager) ids() []string {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := make([]string, 0, len(m.registry))
	for id := range m.registry {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}

func (m *Manager) get(id string) (*instance, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	inst, ok := m.registry[id]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrPluginNotFound, id)
	}
	return inst, nil
}

func (m *Manager) loadConfigured() error {
	ids := make([]string, 0, len(m.cfg.Plugins))
	for id := range m.cfg.Plugins {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	for _, id := range ids {
		pc := m.cfg.Plugins[id]
		if !pc.IsEnabled() || pc.Path == "" {
			continue
		}
		path := pc.Path
		if !filepath.IsAbs(path) && m.cfg.PluginDir != "" {
			path = filepath.Join(m.cfg.PluginDir, path)
		}
		policy := MergePolicies(m.cfg.Defaults, pc.Policy)
		if err := m.Load(id, path, cloneConfig(pc.Config), policy); err != nil {
			return err
		}
	}
	return nil
}

func cloneConfig(cfg map[string]any) map[string]any {
	if cfg == nil {
		return map[string]any{}
	}
	cp := make(map[string]any, len(cfg))
	for k, v := range cfg {
		cp[k] = v
	}
	return cp
}
