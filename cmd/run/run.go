package run

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"github.com/tphakala/audiobridge-go/internal/bridge"
	"github.com/tphakala/audiobridge-go/internal/conf"
)

// Command creates the command that runs the audio bridge.
func Command(settings *conf.Settings) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "run",
		Short: "Run the audio bridge",
		Long:  "Start streaming between the network peer and the local audio devices until interrupted.",
		RunE: func(cmd *cobra.Command, args []string) error {
			b, err := bridge.New(settings)
			if err != nil {
				return err
			}
			return b.Run(cmd.Context())
		},
	}

	if err := setupFlags(cmd, settings); err != nil {
		fmt.Printf("error setting up flags: %v\n", err)
		os.Exit(1)
	}

	return cmd
}

// setupFlags configures flags specific to the run command.
func setupFlags(cmd *cobra.Command, settings *conf.Settings) error {
	cmd.Flags().StringVar(&settings.Network.Listen, "listen", viper.GetString("network.listen"), "Ingest bind address (host:port)")
	cmd.Flags().StringVar(&settings.Network.Peer, "peer", viper.GetString("network.peer"), "Egress destination address, empty disables the send path")
	cmd.Flags().StringVar(&settings.Codec.Type, "codec", viper.GetString("codec.type"), "Wire codec (opus, pcm-stereo-float, pcm16-mono)")
	cmd.Flags().BoolVar(&settings.Export.Enabled, "export", viper.GetBool("export.enabled"), "Dump outgoing audio to a WAV file")
	cmd.Flags().StringVar(&settings.Export.Path, "exportpath", viper.GetString("export.path"), "Path of the WAV dump")
	cmd.Flags().StringVar(&settings.WebServer.Listen, "apilisten", viper.GetString("webserver.listen"), "Listen address of the monitoring API")

	if err := viper.BindPFlags(cmd.Flags()); err != nil {
		return fmt.Errorf("error binding flags: %w", err)
	}
	return nil
}
