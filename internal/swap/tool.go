// Package swap implements the SWAP_HBAR_FOR_TOKEN tool: HBAR in, an HTS
// fungible token out, routed through the SaucerSwap V1 router.
package swap

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	"github.com/ethereum/go-ethereum/common"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/mirror"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/internal/saucerswap"
	"hedera-swap-plugin/pkg/logger"
)

// Method is the stable tool name.
const Method = "SWAP_HBAR_FOR_TOKEN"

// Description is shown to agents choosing a tool.
const Description = `This tool swaps HBAR for a fungible HTS token using the SaucerSwap V1 router.

Parameters:
- hbarAmount (number, required): amount of HBAR to spend
- tokenId (string, required): the token to receive, e.g. 0.0.731861
- recipientAccountId (string, optional): account receiving the tokens, defaults to the caller's account

The recipient is associated with the token first when needed.`

// Messages returned for configuration gaps and wrong token types.
const (
	UnsupportedRouterMessage = "Unsupported Hedera network for SaucerSwap router."
	NotFungibleMessage       = "This token is not a Fungible Token"
)

// Mirror 是工具所需的 Mirror Node 查询能力。
type Mirror interface {
	TokenInfo(ctx context.Context, baseURL, tokenID string) (mirror.TokenInfo, error)
	AccountEVMAddress(ctx context.Context, baseURL, accountID string) (string, error)
}

// Ensurer 确保收款账户可以接收代币。
type Ensurer interface {
	Ensure(ctx context.Context, call ledger.CallContext, accountID, tokenID string) error
}

// Dependencies 汇总工具的外部协作者。
type Dependencies struct {
	Connection ledger.Connection
	Handler    ledger.Handler
	Mirror     Mirror
	Guard      Ensurer
	Networks   networks.Table
	Minimum    saucerswap.MinimumOutput
}

// Tool 编排一次兑换的全部步骤。
type Tool struct {
	deps  Dependencies
	now   func() time.Time
	log   *slog.Logger
	audit *slog.Logger
}

// Option 定义可选配置。
type Option func(*Tool)

// WithClock 替换用于计算截止时间的时钟。
func WithClock(now func() time.Time) Option {
	return func(t *Tool) {
		if now != nil {
			t.now = now
		}
	}
}

// WithLogger 覆盖组件日志。
func WithLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.log = l
		}
	}
}

// WithAuditLogger 覆盖审计日志。
func WithAuditLogger(l *slog.Logger) Option {
	return func(t *Tool) {
		if l != nil {
			t.audit = l
		}
	}
}

// New 创建兑换工具。未配置 Minimum 时使用 ZeroMinimum。
func New(deps Dependencies, opts ...Option) (*Tool, error) {
	switch {
	case deps.Connection == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "swap tool needs a ledger connection")
	case deps.Handler == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "swap tool needs a transaction handler")
	case deps.Mirror == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "swap tool needs a mirror client")
	case deps.Guard == nil:
		return nil, xerrors.New(xerrors.CodeInitializationFailure, "swap tool needs an association guard")
	}
	if deps.Minimum == nil {
		deps.Minimum = saucerswap.ZeroMinimum{}
	}

	t := &Tool{
		deps:  deps,
		now:   time.Now,
		log:   logger.Named("swap"),
		audit: logger.Audit(),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(t)
		}
	}
	return t, nil
}

// Invoke 解析原始参数后执行兑换，任何错误都转换为 Result。
func (t *Tool) Invoke(ctx context.Context, call ledger.CallContext, raw json.RawMessage) Result {
	params, err := ParseParams(raw)
	if err != nil {
		return Failed(err)
	}
	return t.Execute(ctx, call, params)
}

// Execute 按固定顺序执行兑换流程，任一步失败立即返回。
func (t *Tool) Execute(ctx context.Context, call ledger.CallContext, params Params) (result Result) {
	defer func() {
		if r := recover(); r != nil {
			t.log.Error("swap panicked", slog.Any("panic", r))
			result = Failed(xerrors.New(xerrors.CodeUnknown, fmt.Sprintf("swap failed: %v", r)))
		}
	}()

	if call.Mode == "" {
		call.Mode = ledger.ModeAutonomous
	}
	outcome, err := t.execute(ctx, call, params)
	if err != nil {
		t.log.Warn("swap failed",
			slog.String("token_id", params.TokenID),
			slog.String("code", string(xerrors.CodeOf(err))),
			slog.String("error", err.Error()),
		)
		return Failed(err)
	}
	result = success(outcome)
	if !result.Succeeded() {
		t.log.Warn("swap transaction failed",
			slog.String("token_id", params.TokenID),
			slog.String("transaction_id", outcome.Receipt.TransactionID),
			slog.String("status", outcome.Receipt.Status),
		)
	}
	return result
}

func (t *Tool) execute(ctx context.Context, call ledger.CallContext, params Params) (*ledger.Outcome, error) {
	if err := params.Validate(); err != nil {
		return nil, err
	}
	table := t.deps.Networks

	// 1. 当前网络。
	network, ok := t.deps.Connection.Network()
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnsupportedNetwork, "ledger connection has no network")
	}

	// 2. 路由合约。
	routerID, ok := table.RouterContractID(network)
	if !ok {
		return nil, xerrors.New(xerrors.CodeUnsupportedNetwork, UnsupportedRouterMessage,
			xerrors.WithMetadata("network", string(network)))
	}

	// 3. Mirror Node 地址。
	mirrorURL, ok := table.MirrorNodeURL(network)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeUnsupportedNetwork, "no mirror node configured for %s", network)
	}

	// 4. 代币类型必须为同质化代币。
	token, err := t.deps.Mirror.TokenInfo(ctx, mirrorURL, params.TokenID)
	if err != nil {
		return nil, err
	}
	if !token.IsFungible() {
		return nil, xerrors.New(xerrors.CodeNotFungibleToken, NotFungibleMessage,
			xerrors.WithMetadata("token_id", params.TokenID),
			xerrors.WithMetadata("type", token.Type))
	}

	// 5. 收款账户。
	recipient, err := t.recipient(call, params)
	if err != nil {
		return nil, err
	}

	// 6. 关联检查。
	if err := t.deps.Guard.Ensure(ctx, call, recipient, params.TokenID); err != nil {
		return nil, err
	}

	// 7. 兑换路径。
	path, err := saucerswap.ResolvePath(table, network, params.TokenID)
	if err != nil {
		return nil, err
	}

	// 8. 截止时间。
	deadline := big.NewInt(t.now().Unix() + saucerswap.DeadlineWindowSeconds)

	// 9. 收款账户的 EVM 地址。
	to, err := t.recipientAddress(ctx, mirrorURL, recipient)
	if err != nil {
		return nil, err
	}

	// 10. 编码合约参数。
	tinybar, err := params.Tinybar()
	if err != nil {
		return nil, err
	}
	minOut, err := t.deps.Minimum.MinimumOutput(ctx, saucerswap.QuoteRequest{
		Network:          network,
		RouterContractID: routerID,
		AmountInTinybar:  big.NewInt(tinybar),
		Path:             path,
	})
	if err != nil {
		return nil, err
	}
	calldata, err := saucerswap.EncodeSwapExactETHForTokens(minOut, path, to, deadline)
	if err != nil {
		return nil, err
	}

	// 11. 构建合约调用交易。
	tx := ledger.ContractExecute{
		ContractID:         routerID,
		Gas:                saucerswap.SwapGas,
		PayableTinybar:     tinybar,
		FunctionName:       saucerswap.SwapFunction,
		FunctionParameters: calldata,
	}

	// 12. 交给交易处理器。
	outcome, err := t.deps.Handler.Handle(ctx, tx, call, ledger.WithFormatter(formatReceipt(params)))
	if err != nil {
		return nil, err
	}
	if outcome == nil {
		return nil, xerrors.New(xerrors.CodeUnexpectedMode, "transaction handler returned no outcome")
	}

	attrs := []any{
		slog.String("network", string(network)),
		slog.String("mode", string(call.Mode)),
		slog.String("recipient", recipient),
		slog.String("token_id", params.TokenID),
		slog.Int64("tinybar", tinybar),
		slog.String("min_out", minOut.String()),
	}
	if outcome.Receipt != nil {
		attrs = append(attrs,
			slog.String("transaction_id", outcome.Receipt.TransactionID),
			slog.String("status", outcome.Receipt.Status))
	}
	t.audit.Info("swap submitted", attrs...)
	return outcome, nil
}

// recipient 依次取显式参数、调用方账户与运营账户。
func (t *Tool) recipient(call ledger.CallContext, params Params) (string, error) {
	if params.RecipientAccountID != "" {
		return params.RecipientAccountID, nil
	}
	if call.AccountID != "" {
		return call.AccountID, nil
	}
	if operator, ok := t.deps.Connection.OperatorAccountID(); ok {
		return operator, nil
	}
	return "", xerrors.New(xerrors.CodeMissingAccount, "no recipient account id was given and no default account is available")
}

func (t *Tool) recipientAddress(ctx context.Context, mirrorURL, accountID string) (common.Address, error) {
	evm, err := t.deps.Mirror.AccountEVMAddress(ctx, mirrorURL, accountID)
	if err != nil {
		return common.Address{}, err
	}
	if evm != "" && common.IsHexAddress(evm) {
		return common.HexToAddress(evm), nil
	}
	return saucerswap.AccountAddress(accountID)
}
