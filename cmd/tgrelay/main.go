// tgrelay - Telegram support-group relay
// License: MIT
//
// Copyright (c) 2026 tgrelay contributors

package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgrelay/pkg/logger"
)

const version = "0.1.0"
const logo = "📨"

var (
	configPathFlag string
	debugFlag      bool
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:          "tgrelay",
		Short:        "Relay website support chats into a Telegram group",
		SilenceUsage: true,
		PersistentPreRun: func(cmd *cobra.Command, args []string) {
			if debugFlag {
				logger.SetLevel(logger.DEBUG)
			}
		},
	}

	cmd.PersistentFlags().StringVar(&configPathFlag, "config", "", "Config file path (default ~/.tgrelay/config.json)")
	cmd.PersistentFlags().BoolVarP(&debugFlag, "debug", "d", false, "Enable debug logging")

	cmd.AddCommand(newServeCmd())
	cmd.AddCommand(newWebhookCmd())
	cmd.AddCommand(newStatusCmd())
	cmd.AddCommand(newConfigCmd())
	cmd.AddCommand(newSendTestCmd())
	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Show version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Fprintf(cmd.OutOrStdout(), "%s tgrelay v%s\n", logo, version)
		},
	})

	return cmd
}
