package main

import (
	"github.com/spf13/cobra"
)

type rootOptions struct {
	configPath string
}

func newRootCmd() *cobra.Command {
	opts := &rootOptions{}
	cmd := &cobra.Command{
		Use:   "swapd",
		Short: "Swap HBAR for Hedera tokens through the SaucerSwap router",
		Long: `swapd hosts the SaucerSwap plugin and exposes its SWAP_HBAR_FOR_TOKEN tool.

Use "swapd serve" to run the HTTP API and job workers, or "swapd swap" to run a
single swap from the command line and print the JSON result.

The configuration file is read from --config, then $SWAPD_CONFIG, then
configs/swapd.json. The operator private key is never read from the file; set
the environment variable named by hedera.operator_key_env instead.`,
		SilenceUsage: true,
	}
	cmd.PersistentFlags().StringVarP(&opts.configPath, "config", "c", "", "path to the swapd JSON configuration")

	cmd.AddCommand(newServeCmd(opts), newSwapCmd(opts), newToolsCmd(opts))
	return cmd
}
