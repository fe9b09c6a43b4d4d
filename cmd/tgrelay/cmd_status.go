package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"tgrelay/pkg/forwarder"
)

func newStatusCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show configuration and bot identity",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			configPath := getConfigPath()

			fmt.Fprintf(out, "%s tgrelay Status\n\n", logo)
			if _, err := os.Stat(configPath); err == nil {
				fmt.Fprintln(out, "Config:", configPath, "✓")
			} else {
				fmt.Fprintln(out, "Config:", configPath, "✗ (defaults and environment only)")
			}

			fmt.Fprintf(out, "Control chat: %d\n", cfg.Telegram.ControlChatID)
			fmt.Fprintf(out, "Gateway: %s:%d\n", cfg.Gateway.Host, cfg.Gateway.Port)
			fmt.Fprintf(out, "Gateway API key: %s\n", setOrNot(cfg.Gateway.APIKey))
			fmt.Fprintf(out, "Main server: %s\n", forwarder.NewFromConfig(cfg).Endpoint())
			fmt.Fprintf(out, "Main server secret: %s\n", setOrNot(cfg.MainServer.Secret))
			fmt.Fprintf(out, "Canned replies: %d\n", len(cfg.Relay.CannedReplies))
			fmt.Fprintf(out, "Logging: %v\n", cfg.Logging.Enabled)
			if cfg.Logging.Enabled {
				fmt.Fprintf(out, "Log File: %s\n", cfg.LogFilePath())
			}
			fmt.Fprintln(out)

			tg, err := requireTelegram(cfg)
			if err != nil {
				fmt.Fprintln(out, "Bot: ✗", err)
				return nil
			}
			me, err := tg.GetMe(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, "Bot: ✗", err)
				return nil
			}
			fmt.Fprintf(out, "Bot: @%s (%s, id %d) ✓\n", me.Username, me.Name, me.ID)

			status, err := tg.WebhookInfo(cmd.Context())
			if err != nil {
				fmt.Fprintln(out, "Webhook: ✗", err)
				return nil
			}
			printWebhookStatus(out, status, cfg.PublicWebhookURL())
			return nil
		},
	}
}

func setOrNot(v string) string {
	if v == "" {
		return "not set"
	}
	return "✓"
}
