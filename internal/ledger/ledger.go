// Package ledger defines the transaction values built by the swap flow and the
// contract of the collaborator that either submits them or returns their
// unsigned bytes. Concrete SDK bindings live in ledger/hedera.
package ledger

import (
	"context"
	"strings"

	"hedera-swap-plugin/internal/networks"
)

// Mode selects how a Handler treats a transaction.
type Mode string

const (
	// ModeAutonomous signs with the operator, submits and waits for a receipt.
	ModeAutonomous Mode = "autonomous"
	// ModeReturnBytes freezes the transaction and hands back the unsigned bytes.
	ModeReturnBytes Mode = "return_bytes"
)

// SuccessStatus is the receipt status of a successful transaction.
const SuccessStatus = "SUCCESS"

// ParseMode maps a user supplied mode onto a Mode.
func ParseMode(raw string) (Mode, bool) {
	switch Mode(strings.ToLower(strings.TrimSpace(raw))) {
	case ModeAutonomous:
		return ModeAutonomous, true
	case ModeReturnBytes:
		return ModeReturnBytes, true
	default:
		return "", false
	}
}

// CallContext carries the caller's choices through every call.
type CallContext struct {
	Mode      Mode   `json:"mode"`
	AccountID string `json:"account_id,omitempty"`
}

// ReturnsBytes reports whether the caller expects an unsigned payload.
func (c CallContext) ReturnsBytes() bool {
	return c.Mode == ModeReturnBytes
}

// Transaction is implemented by the transaction values this system builds.
type Transaction interface {
	Kind() string
}

// TokenAssociate associates tokens with an account.
type TokenAssociate struct {
	AccountID string
	TokenIDs  []string
	Memo      string
}

// Kind implements Transaction.
func (TokenAssociate) Kind() string { return "TokenAssociate" }

// ContractExecute calls a smart contract function, optionally sending HBAR.
type ContractExecute struct {
	ContractID         string
	Gas                uint64
	PayableTinybar     int64
	FunctionName       string
	FunctionParameters []byte
	Memo               string
}

// Kind implements Transaction.
func (ContractExecute) Kind() string { return "ContractExecute" }

// Connection exposes what the swap flow needs from the ledger client.
type Connection interface {
	Network() (networks.Name, bool)
	OperatorAccountID() (string, bool)
}

// Receipt is the result of an executed transaction.
type Receipt struct {
	Status        string `json:"status"`
	TransactionID string `json:"transactionId"`
}

// Succeeded reports whether the receipt carries SuccessStatus.
func (r Receipt) Succeeded() bool {
	return r.Status == SuccessStatus
}

// Outcome is exactly one of Bytes or Receipt.
type Outcome struct {
	Bytes        []byte   `json:"bytes,omitempty"`
	Receipt      *Receipt `json:"raw,omitempty"`
	HumanMessage string   `json:"humanMessage,omitempty"`
}

// IsBytes reports whether the outcome carries an unsigned payload.
func (o *Outcome) IsBytes() bool {
	return o != nil && o.Receipt == nil
}

// Formatter renders a human readable message for an executed transaction.
type Formatter func(Receipt) string

// HandleOptions are resolved per call.
type HandleOptions struct {
	Formatter Formatter
}

// HandleOption customises a single Handle call.
type HandleOption func(*HandleOptions)

// WithFormatter sets the result formatting callback.
func WithFormatter(f Formatter) HandleOption {
	return func(o *HandleOptions) {
		o.Formatter = f
	}
}

// ApplyHandleOptions resolves options for Handler implementations.
func ApplyHandleOptions(opts ...HandleOption) HandleOptions {
	var resolved HandleOptions
	for _, opt := range opts {
		if opt != nil {
			opt(&resolved)
		}
	}
	return resolved
}

// Handler submits a transaction or returns its bytes, according to call.Mode.
type Handler interface {
	Handle(ctx context.Context, tx Transaction, call CallContext, opts ...HandleOption) (*Outcome, error)
}

// HandlerFunc adapts a function to Handler.
type HandlerFunc func(ctx context.Context, tx Transaction, call CallContext, opts ...HandleOption) (*Outcome, error)

// Handle implements Handler.
func (f HandlerFunc) Handle(ctx context.Context, tx Transaction, call CallContext, opts ...HandleOption) (*Outcome, error) {
	return f(ctx, tx, call, opts...)
}
