package saucerswap

import (
	"context"
	"fmt"
	"log/slog"
	"math/big"
	"time"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/ethclient"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/pkg/logger"
)

const (
	maxBasisPoints      = 10_000
	defaultQuoteTimeout = 10 * time.Second
)

// QuoteRequest describes the swap a minimum output is computed for.
type QuoteRequest struct {
	Network          networks.Name
	RouterContractID string
	AmountInTinybar  *big.Int
	Path             Path
}

// MinimumOutput decides the amountOutMin passed to the router.
type MinimumOutput interface {
	MinimumOutput(ctx context.Context, req QuoteRequest) (*big.Int, error)
}

// ZeroMinimum accepts any output amount. It is used when no slippage
// tolerance is configured.
type ZeroMinimum struct{}

// MinimumOutput implements MinimumOutput.
func (ZeroMinimum) MinimumOutput(context.Context, QuoteRequest) (*big.Int, error) {
	return new(big.Int), nil
}

// ContractCaller is the read-only call surface of an EVM JSON-RPC client.
type ContractCaller interface {
	CallContract(ctx context.Context, msg ethereum.CallMsg, blockNumber *big.Int) ([]byte, error)
}

// Dialer opens a ContractCaller for a JSON-RPC endpoint. The returned close
// function releases the connection.
type Dialer func(ctx context.Context, rpcURL string) (ContractCaller, func(), error)

// DialEthClient dials a JSON-RPC relay with go-ethereum's ethclient.
func DialEthClient(ctx context.Context, rpcURL string) (ContractCaller, func(), error) {
	client, err := ethclient.DialContext(ctx, rpcURL)
	if err != nil {
		return nil, nil, err
	}
	return client, client.Close, nil
}

// QuotedMinimum quotes the router's getAmountsOut over the network's JSON-RPC
// relay and subtracts a fixed tolerance in basis points.
type QuotedMinimum struct {
	table   networks.Table
	bps     int64
	timeout time.Duration
	dial    Dialer
	log     *slog.Logger
}

// QuotedOption customises a QuotedMinimum.
type QuotedOption func(*QuotedMinimum)

// WithDialer replaces the JSON-RPC dialer.
func WithDialer(d Dialer) QuotedOption {
	return func(q *QuotedMinimum) {
		if d != nil {
			q.dial = d
		}
	}
}

// WithQuoteTimeout bounds a single quote call.
func WithQuoteTimeout(d time.Duration) QuotedOption {
	return func(q *QuotedMinimum) {
		if d > 0 {
			q.timeout = d
		}
	}
}

// NewQuotedMinimum validates the tolerance, which must be within [0, 10000).
func NewQuotedMinimum(table networks.Table, slippageBps int, opts ...QuotedOption) (*QuotedMinimum, error) {
	if slippageBps < 0 || slippageBps >= maxBasisPoints {
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "slippage must be between 0 and %d basis points, got %d", maxBasisPoints-1, slippageBps)
	}
	q := &QuotedMinimum{
		table:   table,
		bps:     int64(slippageBps),
		timeout: defaultQuoteTimeout,
		dial:    DialEthClient,
		log:     logger.Named("saucerswap"),
	}
	for _, opt := range opts {
		if opt != nil {
			opt(q)
		}
	}
	return q, nil
}

// MinimumOutput implements MinimumOutput.
func (q *QuotedMinimum) MinimumOutput(ctx context.Context, req QuoteRequest) (*big.Int, error) {
	rpcURL, ok := q.table.JSONRPCURL(req.Network)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeUnsupportedNetwork, "no JSON-RPC relay configured for %s", req.Network)
	}
	router, err := ContractAddress(req.RouterContractID)
	if err != nil {
		return nil, err
	}
	if req.AmountInTinybar == nil || req.AmountInTinybar.Sign() <= 0 {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "quote amount must be positive")
	}

	calldata, err := RouterABI.Pack(GetAmountsOutFunction, req.AmountInTinybar, req.Path.Addresses())
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", GetAmountsOutFunction, err)
	}

	callCtx, cancel := context.WithTimeout(ctx, q.timeout)
	defer cancel()

	caller, closeFn, err := q.dial(callCtx, rpcURL)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLookupFailed, err, "dial JSON-RPC relay")
	}
	if closeFn != nil {
		defer closeFn()
	}

	raw, err := caller.CallContract(callCtx, ethereum.CallMsg{To: &router, Data: calldata}, nil)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLookupFailed, err, "quote "+GetAmountsOutFunction)
	}
	quoted, err := decodeAmountsOut(raw)
	if err != nil {
		return nil, err
	}

	minimum := new(big.Int).Mul(quoted, big.NewInt(maxBasisPoints-q.bps))
	minimum.Quo(minimum, big.NewInt(maxBasisPoints))

	q.log.Debug("quoted minimum output",
		slog.String("network", string(req.Network)),
		slog.String("amount_in", req.AmountInTinybar.String()),
		slog.String("quoted", quoted.String()),
		slog.String("minimum", minimum.String()),
		slog.Int64("slippage_bps", q.bps),
	)
	return minimum, nil
}

func decodeAmountsOut(raw []byte) (*big.Int, error) {
	values, err := RouterABI.Methods[GetAmountsOutFunction].Outputs.Unpack(raw)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeLookupFailed, err, "decode "+GetAmountsOutFunction)
	}
	if len(values) != 1 {
		return nil, xerrors.Newf(xerrors.CodeLookupFailed, "%s returned %d values", GetAmountsOutFunction, len(values))
	}
	amounts, ok := values[0].([]*big.Int)
	if !ok || len(amounts) < 2 {
		return nil, xerrors.Newf(xerrors.CodeLookupFailed, "%s returned an unexpected amounts list", GetAmountsOutFunction)
	}
	return amounts[len(amounts)-1], nil
}
