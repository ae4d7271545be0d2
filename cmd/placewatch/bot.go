package main

import (
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"placewatch/internal/bot"
)

func botCMD() *cobra.Command {
	return &cobra.Command{
		Use:   "bot",
		Short: "Run the Telegram bot",
		RunE: func(cmd *cobra.Command, args []string) error {
			e, err := setup()
			if err != nil {
				return err
			}
			defer e.close()

			if e.cfg.Notify.TelegramBotToken == "" {
				return errors.New("TELEGRAM_BOT_TOKEN is required for bot")
			}

			b, err := bot.New(e.cfg.Notify.TelegramBotToken, e.store, e.cfg, e.log)
			if err != nil {
				return fmt.Errorf("create bot: %w", err)
			}
			zones, err := e.zones()
			if err != nil {
				return err
			}
			if zones != nil {
				b.SetZones(zones)
			}

			e.log.Info("starting bot")
			b.Run(cmd.Context())
			e.log.Info("bot stopped")
			return nil
		},
	}
}
