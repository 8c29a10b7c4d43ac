package hedera

import (
	"context"
	"errors"
	"testing"

	hiero "github.com/hashgraph/hedera-sdk-go/v2"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/networks"
)

func newTestnetAdapter(t *testing.T) *Adapter {
	t.Helper()
	adapter := NewAdapter(hiero.ClientForTestnet())
	t.Cleanup(func() { _ = adapter.Close() })
	return adapter
}

func TestAdapterReportsNetworkAndOperator(t *testing.T) {
	adapter := newTestnetAdapter(t)

	name, ok := adapter.Network()
	if !ok || name != networks.Testnet {
		t.Fatalf("expected testnet, got %q (ok=%v)", name, ok)
	}
	if _, ok := adapter.OperatorAccountID(); ok {
		t.Fatal("expected no operator on a bare client")
	}
}

func TestDialRejectsUnknownNetwork(t *testing.T) {
	_, err := Dial(Config{Network: "previewnet"})
	if !errors.Is(err, xerrors.ErrUnsupportedNetwork) {
		t.Fatalf("expected unsupported network, got %v", err)
	}
}

func TestDialRequiresOperatorPair(t *testing.T) {
	_, err := Dial(Config{Network: "testnet", OperatorID: "0.0.1234"})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}

func TestReturnBytesFreezesForPayer(t *testing.T) {
	adapter := newTestnetAdapter(t)

	tx := ledger.ContractExecute{
		ContractID:         "0.0.19264",
		Gas:                400000,
		PayableTinybar:     150000000,
		FunctionName:       "swapExactETHForTokens",
		FunctionParameters: []byte{0x7f, 0xf3, 0x6a, 0xb5},
	}
	outcome, err := adapter.Handle(context.Background(), tx, ledger.CallContext{
		Mode:      ledger.ModeReturnBytes,
		AccountID: "0.0.1234",
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if !outcome.IsBytes() || len(outcome.Bytes) == 0 {
		t.Fatalf("expected unsigned bytes, got %+v", outcome)
	}
}

func TestReturnBytesWithoutPayer(t *testing.T) {
	adapter := newTestnetAdapter(t)

	tx := ledger.TokenAssociate{AccountID: "0.0.1234", TokenIDs: []string{"0.0.5678"}}
	_, err := adapter.Handle(context.Background(), tx, ledger.CallContext{Mode: ledger.ModeReturnBytes})
	if !errors.Is(err, xerrors.ErrMissingAccount) {
		t.Fatalf("expected missing account, got %v", err)
	}
}

func TestAutonomousWithoutOperator(t *testing.T) {
	adapter := newTestnetAdapter(t)

	tx := ledger.TokenAssociate{AccountID: "0.0.1234", TokenIDs: []string{"0.0.5678"}}
	_, err := adapter.Handle(context.Background(), tx, ledger.CallContext{Mode: ledger.ModeAutonomous})
	if !errors.Is(err, xerrors.ErrMissingAccount) {
		t.Fatalf("expected missing account, got %v", err)
	}
}

func TestInvalidIdentifiersAreRejected(t *testing.T) {
	adapter := newTestnetAdapter(t)

	tx := ledger.TokenAssociate{AccountID: "0.0.1234", TokenIDs: []string{"not-a-token"}}
	_, err := adapter.Handle(context.Background(), tx, ledger.CallContext{
		Mode:      ledger.ModeReturnBytes,
		AccountID: "0.0.1234",
	})
	if xerrors.CodeOf(err) != xerrors.CodeInvalidArgument {
		t.Fatalf("expected invalid argument, got %v", err)
	}
}
