package cmd

import (
	"github.com/spf13/cobra"

	"github.com/tphakala/audiobridge-go/cmd/devices"
	"github.com/tphakala/audiobridge-go/cmd/run"
	"github.com/tphakala/audiobridge-go/internal/conf"
)

// RootCommand creates and returns the root command
func RootCommand(settings *conf.Settings) *cobra.Command {
	rootCmd := &cobra.Command{
		Use:   "audiobridge",
		Short: "AudioBridge CLI",
		Long:  "Bidirectional realtime audio bridge between the network and local audio hardware.",
	}

	setupFlags(rootCmd, settings)

	subcommands := []*cobra.Command{
		run.Command(settings),
		devices.Command(),
	}
	rootCmd.AddCommand(subcommands...)

	return rootCmd
}

// setupFlags configures the global flags for the root command.
func setupFlags(rootCmd *cobra.Command, settings *conf.Settings) {
	rootCmd.PersistentFlags().BoolVarP(&settings.Debug, "debug", "d", settings.Debug, "Enable debug output")
}
