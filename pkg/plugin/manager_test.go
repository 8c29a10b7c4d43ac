package plugin

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"
	"time"
)

type echoPlugin struct {
	id           string
	capabilities []Capability
	methods      []string
	configured   map[string]any
	greeting     string
	stopped      bool
}

func (p *echoPlugin) Info() Info {
	return Info{ID: p.id, Name: "echo", Category: TypeTool, Capabilities: p.capabilities}
}

func (p *echoPlugin) Configure(cfg map[string]any) error {
	if _, ok := cfg["prefix"]; !ok {
		cfg["prefix"] = "echo:"
	}
	p.configured = cfg
	return nil
}

func (p *echoPlugin) Init(ctx *ExecutionContext) error {
	greeting, err := Resource[string](ctx, "greeting")
	if err != nil {
		return err
	}
	p.greeting = greeting
	return nil
}

func (p *echoPlugin) Start(*ExecutionContext) error { return nil }

func (p *echoPlugin) Stop(*ExecutionContext) error {
	p.stopped = true
	return nil
}

func (p *echoPlugin) Tools() []Tool {
	tools := make([]Tool, 0, len(p.methods))
	for _, method := range p.methods {
		tools = append(tools, Tool{
			Method:          method,
			Description:     "echoes params",
			ParameterSchema: json.RawMessage(`{"type":"object"}`),
			Invoke: func(ctx context.Context, call Call, params json.RawMessage) Result {
				return Result{Payload: p.configured["prefix"].(string) + string(params), Succeeded: call.Mode != "fail", Code: call.Mode}
			},
		})
	}
	return tools
}

func quiet() *slog.Logger {
	return slog.New(slog.NewTextHandler(io.Discard, nil))
}

func TestManagerPublishesAndInvokesTools(t *testing.T) {
	var observed []string
	m, err := NewManager(ManagerConfig{}, WithResource("greeting", "hi"), WithLogger(quiet()),
		WithInvocationObserver(func(method string, result Result, elapsed time.Duration) {
			observed = append(observed, method)
		}))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}

	p := &echoPlugin{id: "echo", methods: []string{"ECHO"}}
	if err := m.Register("echo", p, nil, IsolationPolicy{}); err != nil {
		t.Fatalf("register: %v", err)
	}
	if _, ok := m.Tool("ECHO"); ok {
		t.Fatal("tools must not be visible before start")
	}
	if err := m.StartAll(context.Background()); err != nil {
		t.Fatalf("start: %v", err)
	}
	if p.greeting != "hi" {
		t.Fatalf("expected resource injection, got %q", p.greeting)
	}

	result, err := m.Invoke(context.Background(), "ECHO", Call{Mode: "ok"}, json.RawMessage(`{"a":1}`))
	if err != nil {
		t.Fatalf("invoke: %v", err)
	}
	if result.Payload != `echo:{"a":1}` || !result.Succeeded {
		t.Fatalf("unexpected result %+v", result)
	}
	if len(observed) != 1 || observed[0] != "ECHO" {
		t.Fatalf("expected observer call, got %v", observed)
	}

	if err := m.StopAll(context.Background()); err != nil {
		t.Fatalf("stop: %v", err)
	}
	if !p.stopped {
		t.Fatal("expected plugin to be stopped")
	}
	if _, err := m.Invoke(context.Background(), "ECHO", Call{}, nil); !errors.Is(err, ErrToolNotFound) {
		t.Fatalf("expected tool to be withdrawn, got %v", err)
	}
}

func TestManagerRejectsDuplicateMethods(t *testing.T) {
	m, _ := NewManager(ManagerConfig{}, WithResource("greeting", "hi"), WithLogger(quiet()))
	_ = m.Register("a", &echoPlugin{id: "a", methods: []string{"SAME"}}, nil, IsolationPolicy{})
	_ = m.Register("b", &echoPlugin{id: "b", methods: []string{"SAME"}}, nil, IsolationPolicy{})

	if err := m.StartAll(context.Background()); err == nil {
		t.Fatal("expected duplicate method to fail")
	}
	if state, _ := m.State("b"); state == StateStarted {
		t.Fatal("plugin with a conflicting tool must not start")
	}
}

func TestManagerMissingResource(t *testing.T) {
	m, _ := NewManager(ManagerConfig{}, WithLogger(quiet()))
	_ = m.Register("echo", &echoPlugin{id: "echo"}, nil, IsolationPolicy{})
	if err := m.Start(context.Background(), "echo"); err == nil {
		t.Fatal("expected init to fail without resource")
	}
	if _, err := m.State("missing"); !errors.Is(err, ErrPluginNotFound) {
		t.Fatalf("expected plugin not found, got %v", err)
	}
}

func TestCapabilityPolicy(t *testing.T) {
	m, _ := NewManager(ManagerConfig{}, WithLogger(quiet()))
	p := &echoPlugin{id: "net", capabilities: []Capability{CapabilityNetwork}}

	if err := m.Register("net", p, nil, IsolationPolicy{}); err == nil {
		t.Fatal("expected capability without policy to be rejected")
	}
	if err := m.Register("net", p, nil, IsolationPolicy{DeniedCapabilities: []Capability{CapabilityNetwork}}); err == nil {
		t.Fatal("expected denied capability to be rejected")
	}
	if err := m.Register("net", p, nil, IsolationPolicy{AllowedCapabilities: []Capability{CapabilitySigning}}); err == nil {
		t.Fatal("expected capability outside allow list to be rejected")
	}
	if err := m.Register("net", p, nil, IsolationPolicy{AllowedCapabilities: []Capability{CapabilityNetwork}}); err != nil {
		t.Fatalf("expected allowed capability to register: %v", err)
	}
}

func TestRegisterBuiltinUsesConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "plugins.yaml")
	content := []byte(`defaults:
  allowed_capabilities: [network, signing]
plugins:
  echo:
    config:
      prefix: "custom:"
  off:
    enabled: false
`)
	if err := os.WriteFile(path, content, 0o600); err != nil {
		t.Fatalf("write config: %v", err)
	}
	cfg, err := LoadManagerConfig(path)
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	m, err := NewManager(cfg, WithResource("greeting", "hi"), WithLogger(quiet()))
	if err != nil {
		t.Fatalf("new manager: %v", err)
	}
	echo := &echoPlugin{id: "echo", capabilities: []Capability{CapabilityNetwork}, methods: []string{"ECHO"}}
	if err := m.RegisterBuiltin(echo); err != nil {
		t.Fatalf("register builtin: %v", err)
	}
	if err := m.RegisterBuiltin(&echoPlugin{id: "off"}); err != nil {
		t.Fatalf("disabled builtin must be skipped silently: %v", err)
	}
	if len(m.Plugins()) != 1 {
		t.Fatalf("expected one registered plugin, got %v", m.Plugins())
	}
	if echo.configured["prefix"] != "custom:" {
		t.Fatalf("expected configured prefix, got %v", echo.configured["prefix"])
	}
}
