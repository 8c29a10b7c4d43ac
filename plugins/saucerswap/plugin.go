// Package saucerswap registers the SWAP_HBAR_FOR_TOKEN tool with the plugin
// manager.
package saucerswap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"

	"hedera-swap-plugin/internal/association"
	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/mirror"
	"hedera-swap-plugin/internal/networks"
	ssrouter "hedera-swap-plugin/internal/saucerswap"
	"hedera-swap-plugin/internal/swap"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
)

// ID is the plugin id used in plugins.yaml.
const ID = "saucerswap"

// Shared resource keys the host must provide.
const (
	ResourceConnection = "ledger.connection"
	ResourceHandler    = "ledger.handler"
	ResourceMirror     = "mirror.client"
	ResourceNetworks   = "networks.table"
	// ResourceMinimum is optional; without it no minimum output is enforced.
	ResourceMinimum = "swap.minimum"
)

const configDefaultMode = "default_mode"

// Plugin exposes the swap tool.
type Plugin struct {
	defaultMode ledger.Mode
	tool        *swap.Tool
	log         *slog.Logger
}

var (
	_ plugin.Plugin       = (*Plugin)(nil)
	_ plugin.ToolProvider = (*Plugin)(nil)
)

// New returns an unconfigured plugin.
func New() *Plugin {
	return &Plugin{defaultMode: ledger.ModeAutonomous}
}

// Info implements plugin.Plugin.
func (p *Plugin) Info() plugin.Info {
	return plugin.Info{
		ID:           ID,
		Name:         "SaucerSwap",
		Description:  "Swap HBAR for fungible HTS tokens through the SaucerSwap V1 router",
		Version:      "1.0.0",
		Category:     plugin.TypeTool,
		Capabilities: []plugin.Capability{plugin.CapabilityNetwork, plugin.CapabilitySigning},
	}
}

// Configure implements plugin.Plugin.
func (p *Plugin) Configure(cfg map[string]any) error {
	raw, ok := cfg[configDefaultMode]
	if !ok {
		cfg[configDefaultMode] = string(p.defaultMode)
		return nil
	}
	text, _ := raw.(string)
	mode, ok := ledger.ParseMode(text)
	if !ok {
		return fmt.Errorf("%s must be %q or %q, got %v", configDefaultMode, ledger.ModeAutonomous, ledger.ModeReturnBytes, raw)
	}
	p.defaultMode = mode
	return nil
}

// Init implements plugin.Plugin.
func (p *Plugin) Init(ctx *plugin.ExecutionContext) error {
	conn, err := plugin.Resource[ledger.Connection](ctx, ResourceConnection)
	if err != nil {
		return err
	}
	handler, err := plugin.Resource[ledger.Handler](ctx, ResourceHandler)
	if err != nil {
		return err
	}
	client, err := plugin.Resource[*mirror.Client](ctx, ResourceMirror)
	if err != nil {
		return err
	}
	table, err := plugin.Resource[networks.Table](ctx, ResourceNetworks)
	if err != nil {
		table = networks.Default()
	}
	var minimum ssrouter.MinimumOutput = ssrouter.ZeroMinimum{}
	if m, err := plugin.Resource[ssrouter.MinimumOutput](ctx, ResourceMinimum); err == nil {
		minimum = m
	}

	p.log = ctx.Logger
	if p.log == nil {
		p.log = logger.Named(ID)
	}

	guard := association.NewGuard(conn, handler, client, table, association.WithLogger(p.log))
	tool, err := swap.New(swap.Dependencies{
		Connection: conn,
		Handler:    handler,
		Mirror:     client,
		Guard:      guard,
		Networks:   table,
		Minimum:    minimum,
	}, swap.WithLogger(p.log))
	if err != nil {
		return err
	}
	p.tool = tool
	return nil
}

// Start implements plugin.Plugin.
func (p *Plugin) Start(ctx *plugin.ExecutionContext) error {
	if p.tool == nil {
		return xerrors.New(xerrors.CodeInitializationFailure, "saucerswap plugin started before init")
	}
	p.log.Info("swap tool ready", slog.String("method", swap.Method), slog.String("default_mode", string(p.defaultMode)))
	return nil
}

// Stop implements plugin.Plugin.
func (p *Plugin) Stop(*plugin.ExecutionContext) error {
	return nil
}

// Tools implements plugin.ToolProvider.
func (p *Plugin) Tools() []plugin.Tool {
	return []plugin.Tool{{
		Method:          swap.Method,
		Name:            "Swap HBAR for token",
		Description:     swap.Description,
		ParameterSchema: swap.ParameterSchema,
		Invoke:          p.invoke,
	}}
}

func (p *Plugin) invoke(ctx context.Context, call plugin.Call, params json.RawMessage) plugin.Result {
	callCtx := ledger.CallContext{Mode: p.defaultMode, AccountID: call.AccountID}
	if call.Mode != "" {
		mode, ok := ledger.ParseMode(call.Mode)
		if !ok {
			return toPluginResult(swap.Failed(xerrors.Newf(xerrors.CodeInvalidArgument, "unknown mode %q", call.Mode)))
		}
		callCtx.Mode = mode
	}
	return toPluginResult(p.tool.Invoke(ctx, callCtx, params))
}

func toPluginResult(result swap.Result) plugin.Result {
	return plugin.Result{
		Payload:   result,
		Succeeded: result.Succeeded(),
		Code:      string(result.Code()),
	}
}
