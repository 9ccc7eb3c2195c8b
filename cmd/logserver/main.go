package main

import (
	"os"

	"github.com/Chichichkin/LogServer/internal/applog"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		applog.Error().Err(err).Msg("logserver exited with error")
		os.Exit(1)
	}
}
