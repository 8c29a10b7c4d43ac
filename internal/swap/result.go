package swap

import (
	"fmt"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/ledger"
)

// Raw 是失败结果的机器可读部分。
type Raw struct {
	Error     string            `json:"error"`
	ErrorCode xerrors.Code      `json:"errorCode"`
	Metadata  map[string]string `json:"metadata,omitempty"`
}

// Result is the only value a swap invocation returns. Exactly one of Outcome
// and Raw is set.
type Result struct {
	Outcome      *ledger.Outcome `json:"outcome,omitempty"`
	Raw          *Raw            `json:"raw,omitempty"`
	HumanMessage string          `json:"humanMessage"`
}

// Succeeded reports whether the handler produced an outcome and, when the
// transaction was executed, whether its receipt reports SUCCESS.
func (r Result) Succeeded() bool {
	if r.Raw != nil || r.Outcome == nil {
		return false
	}
	return r.Outcome.Receipt == nil || r.Outcome.Receipt.Succeeded()
}

// Code returns the error code of a failed result, or an empty code. An
// executed swap whose receipt is not SUCCESS reports TRANSACTION_FAILED; the
// receipt itself stays in Outcome.
func (r Result) Code() xerrors.Code {
	if r.Raw != nil {
		return r.Raw.ErrorCode
	}
	if r.Outcome != nil && r.Outcome.Receipt != nil && !r.Outcome.Receipt.Succeeded() {
		return xerrors.CodeTransactionFailed
	}
	return ""
}

func success(outcome *ledger.Outcome) Result {
	message := outcome.HumanMessage
	if message == "" && outcome.IsBytes() {
		message = "Swap transaction prepared. Sign and submit the returned bytes."
	}
	return Result{Outcome: outcome, HumanMessage: message}
}

// Failed converts an error into a failed Result.
func Failed(err error) Result {
	coded, ok := xerrors.From(err)
	if !ok {
		coded = xerrors.Wrap(xerrors.CodeUnknown, err, "")
	}
	message := err.Error()
	return Result{
		Raw: &Raw{
			Error:     message,
			ErrorCode: coded.Code(),
			Metadata:  coded.Metadata(),
		},
		HumanMessage: message,
	}
}

func formatReceipt(params Params) ledger.Formatter {
	return func(r ledger.Receipt) string {
		if !r.Succeeded() {
			return fmt.Sprintf("Swap of %s HBAR for token %s finished with status %s. Transaction ID: %s",
				params.HbarAmount.String(), params.TokenID, r.Status, r.TransactionID)
		}
		return fmt.Sprintf("Swapped %s HBAR for token %s. Transaction ID: %s",
			params.HbarAmount.String(), params.TokenID, r.TransactionID)
	}
}
