package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"time"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"

	"hedera-swap-plugin/internal/swap"
	"hedera-swap-plugin/pkg/logger"
	"hedera-swap-plugin/pkg/plugin"
)

type swapOptions struct {
	amount    string
	tokenID   string
	recipient string
	mode      string
	accountID string
}

func newSwapCmd(root *rootOptions) *cobra.Command {
	opts := &swapOptions{}
	cmd := &cobra.Command{
		Use:   "swap",
		Short: "Swap HBAR for a fungible token once and print the JSON result",
		Example: `  swapd swap --amount 1.5 --token 0.0.1183558
  swapd swap --amount 10 --token 0.0.731861 --mode return_bytes --account 0.0.6006`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			params, err := opts.params()
			if err != nil {
				return err
			}
			cfg, err := loadConfig(root.configPath)
			if err != nil {
				return err
			}
			defer logger.Sync()

			rt, err := newRuntime(cmd.Context(), cfg)
			if err != nil {
				return err
			}
			defer func() {
				closeCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
				defer cancel()
				_ = rt.Close(closeCtx)
			}()

			result, err := rt.manager.Invoke(cmd.Context(), swap.Method,
				plugin.Call{Mode: opts.mode, AccountID: opts.accountID}, params)
			if err != nil {
				return err
			}
			if err := printResult(cmd.OutOrStdout(), result); err != nil {
				return err
			}
			if !result.Succeeded {
				return fmt.Errorf("swap failed: %s", result.Code)
			}
			return nil
		},
	}
	flags := cmd.Flags()
	flags.StringVar(&opts.amount, "amount", "", "HBAR amount to swap, e.g. 1.5")
	flags.StringVar(&opts.tokenID, "token", "", "target token id, e.g. 0.0.1183558")
	flags.StringVar(&opts.recipient, "recipient", "", "account receiving the tokens (defaults to --account, then the operator)")
	flags.StringVar(&opts.mode, "mode", "", "autonomous or return_bytes (defaults to the configured mode)")
	flags.StringVar(&opts.accountID, "account", "", "account the call is made on behalf of")
	_ = cmd.MarkFlagRequired("amount")
	_ = cmd.MarkFlagRequired("token")
	return cmd
}

func (o *swapOptions) params() (json.RawMessage, error) {
	amount, err := decimal.NewFromString(o.amount)
	if err != nil {
		return nil, fmt.Errorf("invalid --amount %q: %w", o.amount, err)
	}
	params := swap.Params{HbarAmount: amount, TokenID: o.tokenID, RecipientAccountID: o.recipient}
	if err := params.Validate(); err != nil {
		return nil, err
	}
	return json.Marshal(params)
}

func printResult(w io.Writer, result plugin.Result) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
