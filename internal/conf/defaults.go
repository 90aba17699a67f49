// conf/defaults.go default values for settings
package conf

import (
	"github.com/spf13/viper"
)

// Sets default values for the configuration.
func setDefaultConfig() {
	viper.SetDefault("debug", false)

	viper.SetDefault("main.name", "AudioBridge")
	viper.SetDefault("main.log.enabled", true)
	viper.SetDefault("main.log.path", "audiobridge.log")
	viper.SetDefault("main.log.maxsize", 50)
	viper.SetDefault("main.log.maxbackups", 3)
	viper.SetDefault("main.log.maxage", 28)

	viper.SetDefault("audio.samplerate", 24000)
	viper.SetDefault("audio.framesize", 240)
	viper.SetDefault("audio.bufferms", 500)
	viper.SetDefault("audio.levelintervalms", 100)
	viper.SetDefault("audio.output.channels", 2)
	viper.SetDefault("audio.output.samplewidth", 2)
	viper.SetDefault("audio.input.channels", 1)
	viper.SetDefault("audio.input.samplewidth", 2)

	viper.SetDefault("codec.type", "opus")
	viper.SetDefault("codec.channels", 1)
	viper.SetDefault("codec.bitrate", 64000)
	viper.SetDefault("codec.concealment", "silence")

	viper.SetDefault("network.listen", "0.0.0.0:47800")
	viper.SetDefault("network.peer", "")

	viper.SetDefault("export.enabled", false)
	viper.SetDefault("export.path", "debug/egress.wav")

	viper.SetDefault("webserver.enabled", true)
	viper.SetDefault("webserver.listen", "0.0.0.0:8080")
}
