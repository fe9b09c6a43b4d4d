package main

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"tgrelay/pkg/channel"
	"tgrelay/pkg/platform"
)

func newWebhookCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "webhook",
		Short: "Manage the Telegram webhook",
	}

	var url string
	set := &cobra.Command{
		Use:   "set",
		Short: "Verify the bot token and register the webhook",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tg, err := requireTelegram(cfg)
			if err != nil {
				return err
			}
			target := strings.TrimSpace(url)
			if target == "" {
				target = cfg.PublicWebhookURL()
			}

			state, err := channel.NewManager(tg, target, cfg.Telegram.WebhookSecret).Connect(cmd.Context())
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Webhook registered for @%s\n  %s\n", state.BotUsername, state.WebhookURL)
			return nil
		},
	}
	set.Flags().StringVar(&url, "url", "", "Full webhook URL (default telegram.webhook_url + telegram.webhook_path)")

	del := &cobra.Command{
		Use:   "delete",
		Short: "Remove the webhook registration",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tg, err := requireTelegram(cfg)
			if err != nil {
				return err
			}
			if err := tg.DeleteWebhook(cmd.Context()); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "✓ Webhook removed")
			return nil
		},
	}

	info := &cobra.Command{
		Use:   "info",
		Short: "Show what Telegram has registered for this bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			tg, err := requireTelegram(cfg)
			if err != nil {
				return err
			}
			status, err := tg.WebhookInfo(cmd.Context())
			if err != nil {
				return err
			}
			printWebhookStatus(cmd.OutOrStdout(), status, cfg.PublicWebhookURL())
			return nil
		},
	}

	cmd.AddCommand(set, del, info)
	return cmd
}

func printWebhookStatus(w io.Writer, status platform.WebhookStatus, expected string) {
	mark := "✓"
	if status.URL == "" || status.URL != expected {
		mark = "✗"
	}
	url := status.URL
	if url == "" {
		url = "(none)"
	}
	fmt.Fprintf(w, "Webhook: %s %s\n", url, mark)
	if expected != "" && status.URL != expected {
		fmt.Fprintf(w, "  expected %s\n", expected)
	}
	fmt.Fprintf(w, "Pending updates: %d\n", status.PendingUpdates)
	if status.LastErrorMessage != "" {
		fmt.Fprintf(w, "Last error: %s (%s)\n", status.LastErrorMessage, status.LastErrorDate.Format(time.RFC3339))
	}
}
