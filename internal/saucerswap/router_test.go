package saucerswap

import (
	"bytes"
	"context"
	"errors"
	"math/big"
	"strings"
	"testing"

	ethereum "github.com/ethereum/go-ethereum"
	"github.com/ethereum/go-ethereum/common"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/networks"
)

func TestResolvePathStartsWithWrappedHBAR(t *testing.T) {
	table := networks.Default()
	for _, name := range table.Names() {
		path, err := ResolvePath(table, name, "0.0.731861")
		if err != nil {
			t.Fatalf("%s: unexpected error: %v", name, err)
		}
		wrapped, _ := table.WrappedNativeAddress(name)
		if path[0] != common.HexToAddress(wrapped) {
			t.Fatalf("%s: first hop %s is not WHBAR %s", name, path[0].Hex(), wrapped)
		}
		if path[1] != common.HexToAddress("0x00000000000000000000000000000000000b2ad5") {
			t.Fatalf("%s: unexpected token address %s", name, path[1].Hex())
		}
	}
}

func TestResolvePathIsDeterministic(t *testing.T) {
	table := networks.Default()
	first, err := ResolvePath(table, networks.Testnet, "0.0.1183558")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	second, _ := ResolvePath(table, networks.Testnet, "0.0.1183558")
	if first != second {
		t.Fatalf("expected identical paths, got %v and %v", first, second)
	}
}

func TestResolvePathUnsupportedNetwork(t *testing.T) {
	_, err := ResolvePath(networks.Default(), "previewnet", "0.0.1183558")
	if !errors.Is(err, xerrors.ErrUnsupportedNetwork) {
		t.Fatalf("expected unsupported network, got %v", err)
	}
}

func TestResolvePathRejectsMalformedToken(t *testing.T) {
	_, err := ResolvePath(networks.Default(), networks.Testnet, "sauce")
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestAccountAddressIsLongZero(t *testing.T) {
	addr, err := AccountAddress("0.0.1234")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if addr != common.HexToAddress("0x00000000000000000000000000000000000004d2") {
		t.Fatalf("unexpected address %s", addr.Hex())
	}
}

func TestEncodeSwapExactETHForTokensRoundTrip(t *testing.T) {
	path, err := ResolvePath(networks.Default(), networks.Testnet, "0.0.1183558")
	if err != nil {
		t.Fatalf("resolve path: %v", err)
	}
	to := common.HexToAddress("0x00000000000000000000000000000000000004d2")
	deadline := big.NewInt(1_700_000_300)

	data, err := EncodeSwapExactETHForTokens(big.NewInt(0), path, to, deadline)
	if err != nil {
		t.Fatalf("encode: %v", err)
	}
	// keccak256("swapExactETHForTokens(uint256,address[],address,uint256)")[:4]
	if !bytes.Equal(data[:4], common.FromHex("0x7ff36ab5")) {
		t.Fatalf("unexpected selector %x", data[:4])
	}

	args, err := DecodeSwapExactETHForTokens(data)
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if args.AmountOutMin.Sign() != 0 || args.Deadline.Cmp(deadline) != 0 || args.To != to {
		t.Fatalf("unexpected arguments %+v", args)
	}
	if len(args.Path) != 2 || args.Path[0] != path[0] || args.Path[1] != path[1] {
		t.Fatalf("unexpected path %v", args.Path)
	}
}

type stubCaller struct {
	msg   ethereum.CallMsg
	reply []byte
	err   error
}

func (s *stubCaller) CallContract(ctx context.Context, msg ethereum.CallMsg, block *big.Int) ([]byte, error) {
	s.msg = msg
	return s.reply, s.err
}

func TestZeroMinimum(t *testing.T) {
	got, err := ZeroMinimum{}.MinimumOutput(context.Background(), QuoteRequest{})
	if err != nil || got.Sign() != 0 {
		t.Fatalf("expected zero, got %v (%v)", got, err)
	}
}

func TestQuotedMinimumAppliesTolerance(t *testing.T) {
	reply, err := RouterABI.Methods[GetAmountsOutFunction].Outputs.Pack([]*big.Int{big.NewInt(100_000_000), big.NewInt(2_000_000)})
	if err != nil {
		t.Fatalf("pack reply: %v", err)
	}
	caller := &stubCaller{reply: reply}
	var dialed string
	quoter, err := NewQuotedMinimum(networks.Default(), 50, WithDialer(func(ctx context.Context, url string) (ContractCaller, func(), error) {
		dialed = url
		return caller, nil, nil
	}))
	if err != nil {
		t.Fatalf("new quoter: %v", err)
	}

	path, _ := ResolvePath(networks.Default(), networks.Testnet, "0.0.1183558")
	minimum, err := quoter.MinimumOutput(context.Background(), QuoteRequest{
		Network:          networks.Testnet,
		RouterContractID: "0.0.19264",
		AmountInTinybar:  big.NewInt(100_000_000),
		Path:             path,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if minimum.Cmp(big.NewInt(1_990_000)) != 0 {
		t.Fatalf("expected 1990000, got %s", minimum)
	}
	if dialed != "https://testnet.hashio.io/api" {
		t.Fatalf("unexpected relay %q", dialed)
	}
	if caller.msg.To == nil || *caller.msg.To != common.HexToAddress("0x0000000000000000000000000000000000004b40") {
		t.Fatalf("unexpected call target %v", caller.msg.To)
	}
}

func TestQuotedMinimumFailures(t *testing.T) {
	if _, err := NewQuotedMinimum(networks.Default(), 10_000); xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid tolerance, got %v", err)
	}

	caller := &stubCaller{err: errors.New("execution reverted")}
	quoter, _ := NewQuotedMinimum(networks.Default(), 100, WithDialer(func(ctx context.Context, url string) (ContractCaller, func(), error) {
		return caller, nil, nil
	}))

	req := QuoteRequest{Network: networks.Testnet, RouterContractID: "0.0.19264", AmountInTinybar: big.NewInt(1)}
	_, err := quoter.MinimumOutput(context.Background(), req)
	if !errors.Is(err, xerrors.ErrLookupFailed) || !strings.Contains(err.Error(), "execution reverted") {
		t.Fatalf("expected lookup failure, got %v", err)
	}

	req.Network = "previewnet"
	if _, err := quoter.MinimumOutput(context.Background(), req); !errors.Is(err, xerrors.ErrUnsupportedNetwork) {
		t.Fatalf("expected unsupported network, got %v", err)
	}
}
