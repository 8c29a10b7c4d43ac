// Package saucerswap encodes calls to the SaucerSwap V1 router and resolves
// the EVM addresses those calls need.
package saucerswap

import (
	"bytes"
	"fmt"
	"math/big"
	"strings"

	"github.com/ethereum/go-ethereum/accounts/abi"
	"github.com/ethereum/go-ethereum/common"
	hiero "github.com/hashgraph/hedera-sdk-go/v2"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/networks"
)

// Router call constants.
const (
	SwapFunction          = "swapExactETHForTokens"
	GetAmountsOutFunction = "getAmountsOut"
	SwapGas               = uint64(400000)
	DeadlineWindowSeconds = 300
	TinybarsPerHbar       = 100_000_000
)

const routerABIJSON = `[
  {
    "name": "swapExactETHForTokens",
    "type": "function",
    "stateMutability": "payable",
    "inputs": [
      {"name": "amountOutMin", "type": "uint256"},
      {"name": "path", "type": "address[]"},
      {"name": "to", "type": "address"},
      {"name": "deadline", "type": "uint256"}
    ],
    "outputs": [{"name": "amounts", "type": "uint256[]"}]
  },
  {
    "name": "getAmountsOut",
    "type": "function",
    "stateMutability": "view",
    "inputs": [
      {"name": "amountIn", "type": "uint256"},
      {"name": "path", "type": "address[]"}
    ],
    "outputs": [{"name": "amounts", "type": "uint256[]"}]
  }
]`

// RouterABI is the subset of the SaucerSwap V1 router ABI used here.
var RouterABI = mustParseABI(routerABIJSON)

func mustParseABI(raw string) abi.ABI {
	parsed, err := abi.JSON(strings.NewReader(raw))
	if err != nil {
		panic(fmt.Sprintf("parse router abi: %v", err))
	}
	return parsed
}

// Path is the two-hop route WHBAR -> token.
type Path [2]common.Address

// Addresses returns the path as the slice form the ABI expects.
func (p Path) Addresses() []common.Address {
	return []common.Address{p[0], p[1]}
}

// ResolvePath builds the swap route for tokenID on network. It performs no I/O.
func ResolvePath(table networks.Table, network networks.Name, tokenID string) (Path, error) {
	wrapped, ok := table.WrappedNativeAddress(network)
	if !ok {
		return Path{}, xerrors.Newf(xerrors.CodeUnsupportedNetwork, "no wrapped HBAR address configured for %s", network)
	}
	if !common.IsHexAddress(wrapped) {
		return Path{}, xerrors.Newf(xerrors.CodeInvalidArgument, "wrapped HBAR address %q is not an EVM address", wrapped)
	}
	token, err := TokenAddress(tokenID)
	if err != nil {
		return Path{}, err
	}
	return Path{common.HexToAddress(wrapped), token}, nil
}

// TokenAddress returns the long-zero EVM address of an HTS token.
func TokenAddress(tokenID string) (common.Address, error) {
	id, err := hiero.TokenIDFromString(strings.TrimSpace(tokenID))
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid token id %q", tokenID))
	}
	return common.HexToAddress(id.ToSolidityAddress()), nil
}

// AccountAddress returns the long-zero EVM address of an account.
func AccountAddress(accountID string) (common.Address, error) {
	id, err := hiero.AccountIDFromString(strings.TrimSpace(accountID))
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid account id %q", accountID))
	}
	return common.HexToAddress(id.ToSolidityAddress()), nil
}

// ContractAddress returns the long-zero EVM address of a contract.
func ContractAddress(contractID string) (common.Address, error) {
	id, err := hiero.ContractIDFromString(strings.TrimSpace(contractID))
	if err != nil {
		return common.Address{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, fmt.Sprintf("invalid contract id %q", contractID))
	}
	return common.HexToAddress(id.ToSolidityAddress()), nil
}

// EncodeSwapExactETHForTokens packs the router call including its selector.
func EncodeSwapExactETHForTokens(amountOutMin *big.Int, path Path, to common.Address, deadline *big.Int) ([]byte, error) {
	if amountOutMin == nil {
		amountOutMin = new(big.Int)
	}
	if deadline == nil {
		return nil, xerrors.New(xerrors.CodeInvalidArgument, "deadline is required")
	}
	data, err := RouterABI.Pack(SwapFunction, amountOutMin, path.Addresses(), to, deadline)
	if err != nil {
		return nil, fmt.Errorf("encode %s: %w", SwapFunction, err)
	}
	return data, nil
}

// SwapArguments is the decoded form of a swapExactETHForTokens call.
type SwapArguments struct {
	AmountOutMin *big.Int
	Path         []common.Address
	To           common.Address
	Deadline     *big.Int
}

// DecodeSwapExactETHForTokens reverses EncodeSwapExactETHForTokens.
func DecodeSwapExactETHForTokens(data []byte) (SwapArguments, error) {
	method := RouterABI.Methods[SwapFunction]
	if len(data) < 4 || !bytes.Equal(data[:4], method.ID) {
		return SwapArguments{}, xerrors.New(xerrors.CodeInvalidArgument, "calldata is not a swapExactETHForTokens call")
	}
	values, err := method.Inputs.Unpack(data[4:])
	if err != nil {
		return SwapArguments{}, fmt.Errorf("decode %s: %w", SwapFunction, err)
	}
	if len(values) != 4 {
		return SwapArguments{}, fmt.Errorf("decode %s: expected 4 values, got %d", SwapFunction, len(values))
	}
	args := SwapArguments{}
	var ok bool
	if args.AmountOutMin, ok = values[0].(*big.Int); !ok {
		return SwapArguments{}, fmt.Errorf("decode %s: unexpected amountOutMin %T", SwapFunction, values[0])
	}
	if args.Path, ok = values[1].([]common.Address); !ok {
		return SwapArguments{}, fmt.Errorf("decode %s: unexpected path %T", SwapFunction, values[1])
	}
	if args.To, ok = values[2].(common.Address); !ok {
		return SwapArguments{}, fmt.Errorf("decode %s: unexpected recipient %T", SwapFunction, values[2])
	}
	if args.Deadline, ok = values[3].(*big.Int); !ok {
		return SwapArguments{}, fmt.Errorf("decode %s: unexpected deadline %T", SwapFunction, values[3])
	}
	return args, nil
}
