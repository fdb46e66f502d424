package cmd

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/scalarorg/xtransfer/config"
	"github.com/scalarorg/xtransfer/internal/engine"
	"github.com/scalarorg/xtransfer/pkg/api"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

var (
	environment string
	configFile  string
	rootCmd     = &cobra.Command{
		Use:   "xtransfer",
		Short: "Cross-chain transfer engine",
		Run:   run,
	}
)

// Execute executes the root command.
func Execute() error {
	return rootCmd.Execute()
}

func run(cmd *cobra.Command, args []string) {
	// Load and initialize global config
	if err := config.Load(environment, configFile); err != nil {
		panic("Failed to load config: " + err.Error())
	}
	config.InitLogger()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	service, err := engine.NewService(ctx, config.GlobalConfig)
	if err != nil {
		log.Fatal().Err(err).Msg("Failed to create transfer engine")
	}
	if err := service.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("Failed to start transfer engine")
	}

	server := api.NewServer(config.GlobalConfig.Api.Listen, service, service.Metrics.Handler())
	go func() {
		if err := server.Start(); err != nil {
			log.Error().Err(err).Msg("Api server stopped")
			stop()
		}
	}()

	// Wait for interrupt signal to gracefully shutdown the server
	<-ctx.Done()
	log.Info().Msg("Shutting down xtransfer...")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		log.Warn().Err(err).Msg("Failed to shutdown api server")
	}
	service.Stop()
}

func init() {
	rootCmd.PersistentFlags().StringVar(
		&environment,
		"env",
		"local",
		"Environment name, selects data/<env>/config.json",
	)
	rootCmd.PersistentFlags().StringVar(
		&configFile,
		"config",
		"",
		"Path to the configuration file, overrides --env",
	)
	viper.BindPFlag("env", rootCmd.PersistentFlags().Lookup("env"))
}

// Fail logs err and exits with status 1.
func Fail(err error) {
	log.Error().Err(err).Msg("xtransfer failed")
	os.Exit(1)
}
