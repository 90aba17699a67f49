package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/tphakala/audiobridge-go/cmd"
	"github.com/tphakala/audiobridge-go/internal/conf"
	"github.com/tphakala/audiobridge-go/internal/logging"
)

func main() {
	settings, err := conf.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "error loading configuration: %v\n", err)
		os.Exit(1)
	}

	level := slog.LevelInfo
	if settings.Debug {
		level = slog.LevelDebug
	}
	logging.Init(level)

	if settings.Main.Log.Enabled {
		fileLogger, closeLog, err := logging.NewFileLogger(
			settings.Main.Log.Path, settings.Main.Name, level, logging.FileRotation{
				MaxSizeMB:  settings.Main.Log.MaxSize,
				MaxBackups: settings.Main.Log.MaxBackups,
				MaxAgeDays: settings.Main.Log.MaxAge,
			})
		if err != nil {
			fmt.Fprintf(os.Stderr, "error opening log file: %v\n", err)
			os.Exit(1)
		}
		defer func() {
			if err := closeLog(); err != nil {
				fmt.Fprintf(os.Stderr, "error closing log file: %v\n", err)
			}
		}()
		slog.SetDefault(fileLogger)
	}

	rootCmd := cmd.RootCommand(settings)
	if err := rootCmd.Execute(); err != nil {
		logging.Fatal("command failed", "error", err)
	}
}
