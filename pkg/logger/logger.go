package logger

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
)

type Config struct {
	Level      string `yaml:"level"`
	TimeFormat string `yaml:"time_format"`
	Pretty     bool   `yaml:"pretty"`
}

func New() zerolog.Logger {
	return NewWithConfig(Config{
		Level:      "info",
		TimeFormat: time.RFC3339,
		Pretty:     false,
	})
}

func NewWithConfig(config Config) zerolog.Logger {
	level, err := zerolog.ParseLevel(config.Level)
	if err != nil {
		level = zerolog.InfoLevel
	}
	zerolog.SetGlobalLevel(level)

	if config.TimeFormat != "" {
		zerolog.TimeFieldFormat = config.TimeFormat
	}

	var logger zerolog.Logger

	if config.Pretty {
		logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
			FormatLevel: func(i interface{}) string {
				return colorizeLevel(i.(string))
			},
		})
	} else {
		logger = zerolog.New(os.Stdout).With().Timestamp().Logger()
	}

	logger = logger.With().
		Str("service", "ledger").
		Str("version", "1.0.0").
		Logger()

	return logger
}

var levelColors = map[string]string{
	"trace": "\033[35m",
	"debug": "\033[36m",
	"info":  "\033[32m",
	"warn":  "\033[33m",
	"error": "\033[31m",
	"fatal": "\033[91m",
	"panic": "\033[91m",
}

func colorizeLevel(level string) string {
	if color, ok := levelColors[level]; ok {
		return color + level + "\033[0m"
	}
	return level
}
