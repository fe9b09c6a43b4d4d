package main

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"
)

func newSendTestCmd() *cobra.Command {
	var text string
	cmd := &cobra.Command{
		Use:   "send-test",
		Short: "Post a test message to the control group",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig()
			if err != nil {
				return err
			}
			if cfg.Telegram.ControlChatID == 0 {
				return fmt.Errorf("telegram.control_chat_id is not set")
			}
			tg, err := requireTelegram(cfg)
			if err != nil {
				return err
			}

			body := strings.TrimSpace(text)
			if body == "" {
				body = fmt.Sprintf("%s tgrelay test message\n🕒 %s", logo, time.Now().In(cfg.Location()).Format(cfg.Relay.TimeFormat))
			}
			id, err := tg.SendText(cmd.Context(), cfg.Telegram.ControlChatID, body, nil)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "✓ Sent to %d (message %d)\n", cfg.Telegram.ControlChatID, id)
			return nil
		},
	}
	cmd.Flags().StringVar(&text, "text", "", "Message text (default a timestamped test line)")
	return cmd
}
