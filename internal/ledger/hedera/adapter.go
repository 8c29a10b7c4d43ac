// Package hedera binds the ledger transaction model to the Hedera Go SDK.
package hedera

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"

	hiero "github.com/hashgraph/hedera-sdk-go/v2"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
	"hedera-swap-plugin/internal/networks"
	"hedera-swap-plugin/pkg/logger"
)

// Config describes how to reach a Hedera network.
type Config struct {
	Network     string
	OperatorID  string
	OperatorKey string
}

// Adapter implements ledger.Connection and ledger.Handler on an SDK client.
type Adapter struct {
	client *hiero.Client
	log    *slog.Logger
}

var (
	_ ledger.Connection = (*Adapter)(nil)
	_ ledger.Handler    = (*Adapter)(nil)
)

// Dial creates an SDK client for the configured network. The operator is
// optional; without it only return_bytes calls can be served.
func Dial(cfg Config) (*Adapter, error) {
	name, ok := networks.Parse(cfg.Network)
	if !ok {
		return nil, xerrors.Newf(xerrors.CodeUnsupportedNetwork, "network %q is not supported", cfg.Network)
	}

	client, err := hiero.ClientForName(string(name))
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInitializationFailure, err, "create hedera client")
	}

	operatorID := strings.TrimSpace(cfg.OperatorID)
	operatorKey := strings.TrimSpace(cfg.OperatorKey)
	if operatorID != "" || operatorKey != "" {
		if operatorID == "" || operatorKey == "" {
			_ = client.Close()
			return nil, xerrors.New(xerrors.CodeInvalidArgument, "operator account id and key must be set together")
		}
		accountID, err := hiero.AccountIDFromString(operatorID)
		if err != nil {
			_ = client.Close()
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse operator account id")
		}
		key, err := hiero.PrivateKeyFromString(operatorKey)
		if err != nil {
			_ = client.Close()
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse operator key")
		}
		client.SetOperator(accountID, key)
	}

	return NewAdapter(client), nil
}

// NewAdapter wraps an existing SDK client.
func NewAdapter(client *hiero.Client) *Adapter {
	return &Adapter{client: client, log: logger.Named("ledger")}
}

// Close releases the SDK client.
func (a *Adapter) Close() error {
	if a == nil || a.client == nil {
		return nil
	}
	return a.client.Close()
}

// Network implements ledger.Connection.
func (a *Adapter) Network() (networks.Name, bool) {
	if a == nil || a.client == nil {
		return "", false
	}
	ledgerID := a.client.GetLedgerID()
	switch {
	case ledgerID == nil:
		return "", false
	case ledgerID.IsTestnet():
		return networks.Testnet, true
	case ledgerID.IsMainnet():
		return networks.Mainnet, true
	default:
		return "", false
	}
}

// OperatorAccountID implements ledger.Connection.
func (a *Adapter) OperatorAccountID() (string, bool) {
	if a == nil || a.client == nil {
		return "", false
	}
	id := a.client.GetOperatorAccountID()
	text := id.String()
	if text == "" || text == "0.0.0" {
		return "", false
	}
	return text, true
}

// Handle implements ledger.Handler.
func (a *Adapter) Handle(ctx context.Context, tx ledger.Transaction, call ledger.CallContext, opts ...ledger.HandleOption) (*ledger.Outcome, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	options := ledger.ApplyHandleOptions(opts...)

	switch call.Mode {
	case ledger.ModeReturnBytes:
		return a.toBytes(tx, call)
	case ledger.ModeAutonomous, "":
		return a.execute(tx, options)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "unknown mode %q", call.Mode)
	}
}

// sdkTransaction is the subset of SDK transaction behaviour the adapter uses.
type sdkTransaction interface {
	ToBytes() ([]byte, error)
	Execute(client *hiero.Client) (hiero.TransactionResponse, error)
}

func (a *Adapter) toBytes(tx ledger.Transaction, call ledger.CallContext) (*ledger.Outcome, error) {
	payerText := strings.TrimSpace(call.AccountID)
	if payerText == "" {
		if operator, ok := a.OperatorAccountID(); ok {
			payerText = operator
		}
	}
	if payerText == "" {
		return nil, xerrors.New(xerrors.CodeMissingAccount, "return_bytes mode needs a payer account id")
	}
	payer, err := hiero.AccountIDFromString(payerText)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse payer account id")
	}

	frozen, err := a.build(tx, &payer)
	if err != nil {
		return nil, err
	}
	payload, err := frozen.ToBytes()
	if err != nil {
		return nil, fmt.Errorf("serialize %s: %w", tx.Kind(), err)
	}
	return &ledger.Outcome{Bytes: payload}, nil
}

func (a *Adapter) execute(tx ledger.Transaction, options ledger.HandleOptions) (*ledger.Outcome, error) {
	if _, ok := a.OperatorAccountID(); !ok {
		return nil, xerrors.New(xerrors.CodeMissingAccount, "autonomous mode needs an operator account")
	}

	frozen, err := a.build(tx, nil)
	if err != nil {
		return nil, err
	}

	resp, err := frozen.Execute(a.client)
	if err != nil {
		return nil, fmt.Errorf("submit %s: %w", tx.Kind(), err)
	}

	receipt := ledger.Receipt{TransactionID: resp.TransactionID.String()}
	sdkReceipt, err := resp.GetReceipt(a.client)
	if err != nil {
		var statusErr hiero.ErrHederaReceiptStatus
		if !errors.As(err, &statusErr) {
			return nil, fmt.Errorf("receipt for %s: %w", receipt.TransactionID, err)
		}
		receipt.Status = statusErr.Status.String()
	} else {
		receipt.Status = sdkReceipt.Status.String()
	}

	a.log.Info("transaction executed",
		slog.String("kind", tx.Kind()),
		slog.String("transaction_id", receipt.TransactionID),
		slog.String("status", receipt.Status),
	)

	outcome := &ledger.Outcome{Receipt: &receipt}
	if options.Formatter != nil {
		outcome.HumanMessage = options.Formatter(receipt)
	}
	return outcome, nil
}

// build converts a ledger transaction into a frozen SDK transaction. A non-nil
// payer pins the transaction id so it can be signed elsewhere.
func (a *Adapter) build(tx ledger.Transaction, payer *hiero.AccountID) (sdkTransaction, error) {
	switch t := tx.(type) {
	case ledger.TokenAssociate:
		return a.buildAssociate(t, payer)
	case *ledger.TokenAssociate:
		return a.buildAssociate(*t, payer)
	case ledger.ContractExecute:
		return a.buildContractExecute(t, payer)
	case *ledger.ContractExecute:
		return a.buildContractExecute(*t, payer)
	default:
		return nil, xerrors.Newf(xerrors.CodeInvalidArgument, "unsupported transaction %T", tx)
	}
}

func (a *Adapter) buildAssociate(t ledger.TokenAssociate, payer *hiero.AccountID) (sdkTransaction, error) {
	accountID, err := hiero.AccountIDFromString(t.AccountID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse account id")
	}
	tokenIDs := make([]hiero.TokenID, 0, len(t.TokenIDs))
	for _, raw := range t.TokenIDs {
		id, err := hiero.TokenIDFromString(raw)
		if err != nil {
			return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse token id")
		}
		tokenIDs = append(tokenIDs, id)
	}

	sdkTx := hiero.NewTokenAssociateTransaction().
		SetAccountID(accountID).
		SetTokenIDs(tokenIDs...).
		SetTransactionMemo(t.Memo)
	if payer != nil {
		sdkTx.SetTransactionID(hiero.TransactionIDGenerate(*payer))
	}
	frozen, err := sdkTx.FreezeWith(a.client)
	if err != nil {
		return nil, fmt.Errorf("freeze TokenAssociate: %w", err)
	}
	return frozen, nil
}

func (a *Adapter) buildContractExecute(t ledger.ContractExecute, payer *hiero.AccountID) (sdkTransaction, error) {
	contractID, err := hiero.ContractIDFromString(t.ContractID)
	if err != nil {
		return nil, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "parse contract id")
	}

	sdkTx := hiero.NewContractExecuteTransaction().
		SetContractID(contractID).
		SetGas(t.Gas).
		SetPayableAmount(hiero.HbarFromTinybar(t.PayableTinybar)).
		SetFunctionParameters(t.FunctionParameters).
		SetTransactionMemo(t.Memo)
	if payer != nil {
		sdkTx.SetTransactionID(hiero.TransactionIDGenerate(*payer))
	}
	frozen, err := sdkTx.FreezeWith(a.client)
	if err != nil {
		return nil, fmt.Errorf("freeze ContractExecute: %w", err)
	}
	return frozen, nil
}
