package util

import (
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"lrpc/codec"
	"lrpc/config"
)

const (
	// Wrap is the number of characters to Wrap the help text at
	Wrap int = 50
)

// WrapString wraps a string at Wrap characters
func WrapString(text string) string {
	var wrappedLines []string
	var currentLine strings.Builder
	lineWidth := 0

	for _, word := range strings.Fields(text) {
		wordWidth := len(word)

		if lineWidth > 0 && lineWidth+1+wordWidth > Wrap {
			wrappedLines = append(wrappedLines, currentLine.String())
			currentLine.Reset()
			lineWidth = 0
		}
		if lineWidth > 0 {
			currentLine.WriteString(" ")
			lineWidth++
		}
		currentLine.WriteString(word)
		lineWidth += wordWidth
	}

	if currentLine.Len() > 0 {
		wrappedLines = append(wrappedLines, currentLine.String())
	}
	return strings.Join(wrappedLines, "\n")
}

// InitConfig loads .env files and makes every flag overridable as LRPC_<FLAG>
// (dashes become underscores, e.g. LRPC_REGISTRY_ENDPOINTS).
func InitConfig() {
	_ = godotenv.Load(".env")
	_ = godotenv.Load(".env.local")

	viper.SetEnvPrefix("lrpc")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

// SetupCommonFlags adds the flags shared by server and client commands.
func SetupCommonFlags(cmd *cobra.Command) {
	key := "codec"
	cmd.PersistentFlags().String(key, "json", WrapString("Serialization format of request and response payloads (json, gob). Client and server must agree"))

	key = "max-frame-size"
	cmd.PersistentFlags().Int(key, 16*1024*1024, WrapString("Largest accepted frame payload in bytes"))

	key = "registry"
	cmd.PersistentFlags().String(key, "memory", WrapString("Registry backend (memory, etcd). The memory registry only works inside one process"))

	key = "registry-endpoints"
	cmd.PersistentFlags().String(key, "127.0.0.1:2379", WrapString("Comma-separated etcd endpoints"))

	key = "registry-root"
	cmd.PersistentFlags().String(key, "/registry", WrapString("Key prefix of all registry entries"))

	key = "registry-ttl"
	cmd.PersistentFlags().Int(key, 10, WrapString("Lease TTL in seconds of published entries"))

	key = "tcp-keepalive"
	cmd.PersistentFlags().Int(key, 0, WrapString("TCP keep-alive period in seconds (0 disables)"))

	key = "tcp-linger"
	cmd.PersistentFlags().Int(key, -1, WrapString("TCP linger time in seconds (-1 keeps the OS default)"))

	key = "read-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket read buffer in KB (0 keeps the OS default)"))

	key = "write-buffer"
	cmd.PersistentFlags().Int(key, 0, WrapString("Socket write buffer in KB (0 keeps the OS default)"))
}

// GetTCPConf reads the socket options from viper.
func GetTCPConf() config.TCPConf {
	return config.TCPConf{
		KeepAliveSec:    viper.GetInt("tcp-keepalive"),
		LingerSec:       viper.GetInt("tcp-linger"),
		ReadBufferSize:  viper.GetInt("read-buffer") * 1024,
		WriteBufferSize: viper.GetInt("write-buffer") * 1024,
	}
}

// GetRegistryConfig reads the registry selection from viper.
func GetRegistryConfig() config.RegistryConfig {
	var endpoints []string
	for _, e := range strings.Split(viper.GetString("registry-endpoints"), ",") {
		if e = strings.TrimSpace(e); e != "" {
			endpoints = append(endpoints, e)
		}
	}
	return config.RegistryConfig{
		Type:      config.RegistryType(viper.GetString("registry")),
		Endpoints: endpoints,
		Root:      viper.GetString("registry-root"),
		TTLSecond: viper.GetInt("registry-ttl"),
	}
}

// GetCodec parses the codec flag.
func GetCodec() (codec.CodecType, error) {
	return codec.ParseCodecType(viper.GetString("codec"))
}

// GetDuration reads a duration flag given in milliseconds.
func GetDuration(key string) time.Duration {
	return time.Duration(viper.GetInt64(key)) * time.Millisecond
}
