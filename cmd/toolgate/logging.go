package main

import (
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"golang.org/x/term"

	"github.com/toolgate/ollama-gateway/internal/config"
)

// setupLogging configures the global logger from the verbosity setting.
// Interactive terminals get the console writer, everything else raw JSON.
func setupLogging(v config.Verbosity) {
	zerolog.SetGlobalLevel(v.ZerologLevel())

	if term.IsTerminal(int(os.Stderr.Fd())) {
		log.Logger = log.Output(zerolog.ConsoleWriter{
			Out:        os.Stderr,
			TimeFormat: time.RFC3339,
		})
		return
	}
	log.Logger = zerolog.New(os.Stderr).With().Timestamp().Logger()
}
