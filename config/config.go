// Package config defines the server and client's process configuration,
// bound from environment variables with an optional dotenv-style file as a
// fallback source.
package config

import (
	"fmt"

	"github.com/joho/godotenv"
	"github.com/kelseyhightower/envconfig"
)

// Config holds the server's runtime configuration.
type Config struct {
	ListenAddress string `envconfig:"LISTEN_ADDRESS" required:"true" default:"0.0.0.0:6667" desc:"TCP address the chat listener binds to."`
	MaxUsers      int    `envconfig:"MAX_USERS" default:"0" desc:"Maximum concurrent registered nicknames. 0 disables the admission cap."`
	ReadBufSize   int    `envconfig:"READ_BUF_SIZE" default:"1024" desc:"Not applied: frames are always read into a fixed 1024-byte buffer."`
	LogLevel      string `envconfig:"LOG_LEVEL" default:"info" desc:"Logging granularity: debug, info, warn, or error."`
	AdminEnabled  bool   `envconfig:"ADMIN_ENABLED" default:"true" desc:"Run the interactive admin console on stdin."`
}

// ClientConfig holds the CLI client's runtime configuration, including the
// liveness watchdog's timing thresholds.
type ClientConfig struct {
	ServerAddress    string `envconfig:"SERVER_ADDRESS" required:"true" default:"127.0.0.1:6667" desc:"host:port of the chat server to connect to."`
	Nickname         string `envconfig:"NICKNAME" desc:"Nickname to register with; prompted for if unset."`
	KeepAliveAfter   int    `envconfig:"KEEPALIVE_AFTER_SECONDS" default:"5" desc:"Seconds of server silence before sending a KEEP_ALIVE."`
	UnresponsiveAfter int   `envconfig:"UNRESPONSIVE_AFTER_SECONDS" default:"30" desc:"Seconds of server silence before declaring it unresponsive and exiting."`
}

// Load processes environment variables into a Config, optionally seeded from
// envFile first (a missing file is not an error -- the process falls back to
// whatever is already in the environment).
func Load(envFile string) (Config, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile) // missing file: fall back to real env vars
	}
	var c Config
	if err := envconfig.Process("", &c); err != nil {
		return Config{}, fmt.Errorf("config: unable to process env vars: %w", err)
	}
	return c, nil
}

// LoadClient processes environment variables into a ClientConfig, with the
// same optional dotenv fallback as Load.
func LoadClient(envFile string) (ClientConfig, error) {
	if envFile != "" {
		_ = godotenv.Load(envFile)
	}
	var c ClientConfig
	if err := envconfig.Process("", &c); err != nil {
		return ClientConfig{}, fmt.Errorf("config: unable to process env vars: %w", err)
	}
	return c, nil
}
