package swap

import (
	"bytes"
	"encoding/json"
	"fmt"
	"math"
	"strings"

	"github.com/shopspring/decimal"

	xerrors "hedera-swap-plugin/internal/errors"
	"hedera-swap-plugin/internal/saucerswap"
)

const minIdentifierLength = 3

// Params 是 SWAP_HBAR_FOR_TOKEN 的输入。
type Params struct {
	HbarAmount         decimal.Decimal `json:"hbarAmount"`
	TokenID            string          `json:"tokenId"`
	RecipientAccountID string          `json:"recipientAccountId,omitempty"`
}

// ParameterSchema 以 JSON Schema 描述输入，供工具列表展示。
var ParameterSchema = json.RawMessage(`{
  "type": "object",
  "properties": {
    "hbarAmount": {
      "type": "number",
      "exclusiveMinimum": 0,
      "description": "Amount of HBAR to swap"
    },
    "tokenId": {
      "type": "string",
      "minLength": 3,
      "description": "The token ID to receive (e.g. 0.0.123456)"
    },
    "recipientAccountId": {
      "type": "string",
      "minLength": 3,
      "description": "Optional recipient account ID. Defaults to the caller's account"
    }
  },
  "required": ["hbarAmount", "tokenId"],
  "additionalProperties": false
}`)

// ParseParams 解析并校验原始 JSON 参数。
func ParseParams(raw json.RawMessage) (Params, error) {
	if len(bytes.TrimSpace(raw)) == 0 {
		return Params{}, xerrors.New(xerrors.CodeInvalidArgument, "params are required")
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil {
		return Params{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "params must be a JSON object")
	}
	if _, ok := fields["hbarAmount"]; !ok {
		return Params{}, xerrors.New(xerrors.CodeInvalidArgument, "hbarAmount is required")
	}

	var params Params
	if err := json.Unmarshal(raw, &params); err != nil {
		return Params{}, xerrors.Wrap(xerrors.CodeInvalidArgument, err, "decode params")
	}
	params.TokenID = strings.TrimSpace(params.TokenID)
	params.RecipientAccountID = strings.TrimSpace(params.RecipientAccountID)
	if err := params.Validate(); err != nil {
		return Params{}, err
	}
	return params, nil
}

// Validate 检查参数的语义约束。
func (p Params) Validate() error {
	if !p.HbarAmount.IsPositive() {
		return xerrors.New(xerrors.CodeInvalidArgument, "hbarAmount must be greater than 0")
	}
	if len(p.TokenID) < minIdentifierLength {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "tokenId must contain at least %d characters", minIdentifierLength)
	}
	if p.RecipientAccountID != "" && len(p.RecipientAccountID) < minIdentifierLength {
		return xerrors.Newf(xerrors.CodeInvalidArgument, "recipientAccountId must contain at least %d characters", minIdentifierLength)
	}
	if _, err := p.Tinybar(); err != nil {
		return err
	}
	return nil
}

// Tinybar 将 HBAR 数量换算为 tinybar，精度超过 8 位小数时报错。
func (p Params) Tinybar() (int64, error) {
	tinybar := p.HbarAmount.Mul(decimal.NewFromInt(saucerswap.TinybarsPerHbar))
	if !tinybar.Equal(tinybar.Truncate(0)) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, "hbarAmount supports at most 8 decimal places")
	}
	if tinybar.GreaterThan(decimal.NewFromInt(math.MaxInt64)) {
		return 0, xerrors.New(xerrors.CodeInvalidArgument, fmt.Sprintf("hbarAmount %s is too large", p.HbarAmount))
	}
	return tinybar.IntPart(), nil
}
