// Package config holds the server and client configuration structs shared by the CLI, the
// server, the client and the transport layer.
package config

import (
	"fmt"
	"strings"
	"time"

	"lrpc/codec"
	"lrpc/protocol"
)

// --------------------------------------------------------------------------
// Shared sub configurations
// --------------------------------------------------------------------------

// TCPConf holds socket options applied to every connection after it is established.
// No-delay is not configurable, it is always on.
type TCPConf struct {
	KeepAliveSec    int // 0 disables keep-alive
	LingerSec       int // < 0 keeps the OS default
	ReadBufferSize  int // 0 keeps the OS default
	WriteBufferSize int // 0 keeps the OS default
}

type RegistryType string

const (
	RegistryMemory RegistryType = "memory"
	RegistryEtcd   RegistryType = "etcd"
)

// RegistryConfig selects and configures the registry backend.
type RegistryConfig struct {
	Type      RegistryType
	Endpoints []string // etcd endpoints
	Root      string
	TTLSecond int
}

// --------------------------------------------------------------------------
// RPC server configuration struct
// --------------------------------------------------------------------------

type ServerConfig struct {
	// Endpoint is the listen address
	Endpoint string
	// AdvertiseAddr is published to the registry, the listener address if empty
	AdvertiseAddr string

	Codec        codec.CodecType
	MaxFrameSize int

	// Handler settings, zero disables
	RequestTimeout time.Duration
	RateLimit      float64 // requests per second
	RateBurst      int

	ShutdownTimeout time.Duration

	Transport TCPConf
	Registry  RegistryConfig

	LogLevel string
}

func DefaultServerConfig() ServerConfig {
	return ServerConfig{
		Endpoint:        "127.0.0.1:8080",
		Codec:           codec.CodecTypeJSON,
		MaxFrameSize:    protocol.DefaultMaxFrameSize,
		ShutdownTimeout: 5 * time.Second,
		Transport:       TCPConf{LingerSec: -1},
		Registry:        RegistryConfig{Type: RegistryMemory},
		LogLevel:        "info",
	}
}

// String returns a formatted string representation of the configuration
func (c *ServerConfig) String() string {
	var sb strings.Builder
	addSection, addField := writers(&sb)

	addSection("RPC Server")
	addField("Endpoint", c.Endpoint)
	addField("Advertise Address", orDefault(c.AdvertiseAddr, "(listener address)"))
	addField("Codec", c.Codec.String())
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("Request Timeout", durationOrOff(c.RequestTimeout))
	if c.RateLimit > 0 {
		addField("Rate Limit", fmt.Sprintf("%.1f/s (burst %d)", c.RateLimit, c.RateBurst))
	} else {
		addField("Rate Limit", "off")
	}
	addField("Shutdown Timeout", c.ShutdownTimeout.String())

	writeTransport(addSection, addField, c.Transport)
	writeRegistry(addSection, addField, c.Registry)

	addSection("Logging")
	addField("Log Level", c.LogLevel)
	return sb.String()
}

// --------------------------------------------------------------------------
// RPC client configuration struct
// --------------------------------------------------------------------------

type ClientConfig struct {
	// Address bypasses the registry when set, every service resolves to it
	Address  string
	Balancer string

	Codec        codec.CodecType
	MaxFrameSize int
	// CallTimeout bounds one round trip when the context carries no deadline, zero waits forever
	CallTimeout time.Duration

	Transport TCPConf
	Registry  RegistryConfig
}

func DefaultClientConfig() ClientConfig {
	return ClientConfig{
		Balancer:     "random",
		Codec:        codec.CodecTypeJSON,
		MaxFrameSize: protocol.DefaultMaxFrameSize,
		CallTimeout:  10 * time.Second,
		Transport:    TCPConf{LingerSec: -1},
		Registry:     RegistryConfig{Type: RegistryMemory},
	}
}

// String returns a formatted string representation of the client configuration
func (c *ClientConfig) String() string {
	var sb strings.Builder
	addSection, addField := writers(&sb)

	addSection("Client Configuration")
	addField("Address", orDefault(c.Address, "(discovery)"))
	addField("Balancer", c.Balancer)
	addField("Codec", c.Codec.String())
	addField("Max Frame Size", fmt.Sprintf("%d bytes", c.MaxFrameSize))
	addField("Call Timeout", durationOrOff(c.CallTimeout))

	writeTransport(addSection, addField, c.Transport)
	if c.Address == "" {
		writeRegistry(addSection, addField, c.Registry)
	}
	return sb.String()
}

// --------------------------------------------------------------------------
// formatting helpers
// --------------------------------------------------------------------------

func writers(sb *strings.Builder) (func(string), func(string, string)) {
	addSection := func(title string) {
		sb.WriteString("\n")
		sb.WriteString(fmt.Sprintf("%s\n", strings.ToUpper(title)))
	}
	addField := func(name, value string) {
		sb.WriteString(fmt.Sprintf("  %-22s: %s\n", name, value))
	}
	return addSection, addField
}

func writeTransport(addSection func(string), addField func(string, string), t TCPConf) {
	addSection("Transport")
	addField("TCP No Delay", "true")
	addField("Keep Alive", fmt.Sprintf("%d sec", t.KeepAliveSec))
	addField("Linger", fmt.Sprintf("%d sec", t.LingerSec))
	addField("Read Buffer", fmt.Sprintf("%d bytes", t.ReadBufferSize))
	addField("Write Buffer", fmt.Sprintf("%d bytes", t.WriteBufferSize))
}

func writeRegistry(addSection func(string), addField func(string, string), r RegistryConfig) {
	addSection("Registry")
	addField("Type", string(r.Type))
	if r.Type == RegistryEtcd {
		addField("Endpoints", strings.Join(r.Endpoints, ", "))
		addField("Root", orDefault(r.Root, "/registry"))
		addField("TTL", fmt.Sprintf("%d sec", r.TTLSecond))
	}
}

func orDefault(v, def string) string {
	if v == "" {
		return def
	}
	return v
}

func durationOrOff(d time.Duration) string {
	if d <= 0 {
		return "off"
	}
	return d.String()
}
