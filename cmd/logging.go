package cmd

import (
	"sketchpad/internal/config"
	"sketchpad/internal/log"
)

// defaultUILogFile receives log output while the terminal UI is active and
// no log file is configured.
const defaultUILogFile = "sketchpad.log"

func configureLogging(cfg *config.Config, quiet bool) error {
	opts := log.Options{Level: cfg.LogLevel, File: cfg.LogFile, Quiet: quiet}
	if quiet && opts.File == "" {
		opts.File = defaultUILogFile
	}
	return log.Configure(opts)
}
