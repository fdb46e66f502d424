package config

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

func InitLogger() {
	zerolog.TimeFieldFormat = time.RFC3339
	level, err := zerolog.ParseLevel(viper.GetString("LOG_LEVEL"))
	if err != nil || viper.GetString("LOG_LEVEL") == "" {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)
	if viper.GetBool("IS_DEV") {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr, TimeFormat: time.TimeOnly})
	}
}
