package cli

import (
	"errors"
	"fmt"

	"github.com/finbot/finbot/internal/telegram"
	"github.com/spf13/cobra"
)

func init() {
	RootCmd.AddCommand(&cobra.Command{
		Use:   "set-webhook <public-url>",
		Short: "Point the Telegram bot at this server's /webhook endpoint",
		Args:  cobra.ExactArgs(1),
		RunE:  runSetWebhook,
	})
}

func runSetWebhook(cmd *cobra.Command, args []string) error {
	if cfg.TelegramBotToken == "" {
		return errors.New("TELEGRAM_BOT_TOKEN is required")
	}
	client := telegram.NewClient(telegram.Options{Token: cfg.TelegramBotToken, BaseURL: cfg.TelegramBaseURL})
	ctx := commandContext(cmd)

	me, err := client.GetMe(ctx)
	if err != nil {
		return fmt.Errorf("getMe: %w", err)
	}
	if err := client.SetWebhook(ctx, args[0], cfg.TelegramWebhookSecret); err != nil {
		return err
	}
	fmt.Printf("webhook for @%s set to %s\n", me.Username, args[0])
	return nil
}
