package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/cobra"

	"github.com/Alturino/storefront/internal/constants"
	"github.com/Alturino/storefront/internal/log"
)

func Start() {
	logger := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.RFC3339}).
		With().
		Timestamp().
		Str(log.KeyAppName, constants.AppStorefront).
		Str(log.KeyTag, "main Start").
		Logger()

	logger.Info().Msg("adding listener for SIGINT and SIGTERM")
	c, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	logger.Info().Msg("added listener for SIGINT and SIGTERM")

	c = logger.WithContext(c)

	configName := constants.AppStorefront
	rootCmd := &cobra.Command{
		Use:   constants.AppStorefront,
		Short: "Storefront catalog, cart and checkout service",
	}
	rootCmd.PersistentFlags().
		StringVar(&configName, "config", configName, "config file name under ./env without extension")

	commands := []*cobra.Command{
		{
			Use:   "storefront",
			Short: "Run storefront http api",
			Run: func(cmd *cobra.Command, args []string) {
				runStorefront(cmd.Context(), configName)
			},
		},
		{
			Use:   "notification",
			Short: "Run notification subscriber",
			Run: func(cmd *cobra.Command, args []string) {
				runNotificationService(cmd.Context(), configName)
			},
		},
	}
	rootCmd.AddCommand(commands...)
	if err := rootCmd.ExecuteContext(c); err != nil {
		logger.Fatal().Err(err).Msgf("error when executing command=%s", err.Error())
	}
}
