package devices

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/tphakala/audiobridge-go/internal/device"
)

// Command creates the command that lists audio hardware endpoints.
func Command() *cobra.Command {
	return &cobra.Command{
		Use:   "devices",
		Short: "List audio devices",
		Long:  "Print the playback and capture devices visible to the audio backend.",
		RunE: func(cmd *cobra.Command, args []string) error {
			playback, err := device.ListPlaybackDevices()
			if err != nil {
				return err
			}
			capture, err := device.ListCaptureDevices()
			if err != nil {
				return err
			}

			fmt.Println("Playback devices:")
			printDevices(playback)
			fmt.Println("Capture devices:")
			printDevices(capture)
			return nil
		},
	}
}

func printDevices(devices []device.DeviceInfo) {
	if len(devices) == 0 {
		fmt.Println("  (none)")
		return
	}
	for _, d := range devices {
		marker := " "
		if d.Default {
			marker = "*"
		}
		fmt.Printf("  %s %d: %s\n", marker, d.Index, d.Name)
	}
}
