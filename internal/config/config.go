// Package config loads the server configuration from a YAML file and
// WEBMAIL_-prefixed environment variables.
package config

import (
	"fmt"
	"os"
	"strings"

	"github.com/spf13/viper"
)

// ServerConfig holds the HTTP listener settings.
type ServerConfig struct {
	Host string `mapstructure:"host" yaml:"host"`
	Port int    `mapstructure:"port" yaml:"port"`
}

// IMAPConfig holds the defaults applied when a login request does not name
// its own mail server.
type IMAPConfig struct {
	// DefaultHost is the IMAP server used when a login omits one.
	DefaultHost string `mapstructure:"default_host" yaml:"default_host"`

	// DefaultPort is the IMAP port used when a login omits one.
	DefaultPort int `mapstructure:"default_port" yaml:"default_port"`

	// DefaultTLS selects implicit TLS for the default server.
	DefaultTLS bool `mapstructure:"default_tls" yaml:"default_tls"`

	// DialTimeoutSec bounds connect+login against the mail server.
	DialTimeoutSec int `mapstructure:"dial_timeout_sec" yaml:"dial_timeout_sec"`

	// InsecureSkipVerify disables certificate verification, for
	// deployments fronting the mail server with a self-signed cert.
	InsecureSkipVerify bool `mapstructure:"insecure_skip_verify" yaml:"insecure_skip_verify"`
}

// SMTPConfig optionally pins the submission endpoint. When Host is empty
// the endpoint is derived from the IMAP server by convention.
type SMTPConfig struct {
	Host        string `mapstructure:"host" yaml:"host"`
	Port        int    `mapstructure:"port" yaml:"port"`
	ImplicitTLS bool   `mapstructure:"implicit_tls" yaml:"implicit_tls"`
}

// TokenConfig controls the session token key material.
type TokenConfig struct {
	// Secret is the deployment secret the token key is derived from. When
	// empty the secret comes from the OS keyring instead.
	Secret string `mapstructure:"secret" yaml:"secret"`

	// KeyringService names the keyring entry used when Secret is unset.
	KeyringService string `mapstructure:"keyring_service" yaml:"keyring_service"`
}

// LogConfig holds logging settings.
type LogConfig struct {
	Level  string `mapstructure:"level" yaml:"level"`
	Pretty bool   `mapstructure:"pretty" yaml:"pretty"`
}

// Config is the top-level server configuration.
type Config struct {
	Server ServerConfig `mapstructure:"server" yaml:"server"`
	IMAP   IMAPConfig   `mapstructure:"imap" yaml:"imap"`
	SMTP   SMTPConfig   `mapstructure:"smtp" yaml:"smtp"`
	Token  TokenConfig  `mapstructure:"token" yaml:"token"`
	Log    LogConfig    `mapstructure:"log" yaml:"log"`
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.host", "127.0.0.1")
	v.SetDefault("server.port", 8080)
	v.SetDefault("imap.default_host", "")
	v.SetDefault("imap.default_port", 993)
	v.SetDefault("imap.default_tls", true)
	v.SetDefault("imap.dial_timeout_sec", 15)
	v.SetDefault("imap.insecure_skip_verify", false)
	v.SetDefault("smtp.host", "")
	v.SetDefault("smtp.port", 0)
	v.SetDefault("smtp.implicit_tls", false)
	v.SetDefault("token.secret", "")
	v.SetDefault("token.keyring_service", "webmail")
	v.SetDefault("log.level", "info")
	v.SetDefault("log.pretty", false)
}

// Load reads configuration from the given YAML file, overlaid with
// WEBMAIL_-prefixed environment variables (WEBMAIL_SERVER_PORT,
// WEBMAIL_TOKEN_SECRET, ...). A missing file is not an error; defaults and
// environment alone are enough to run.
func Load(path string) (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetEnvPrefix("WEBMAIL")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")
		if err := v.ReadInConfig(); err != nil {
			if _, ok := err.(*os.PathError); !ok {
				if _, notFound := err.(viper.ConfigFileNotFoundError); !notFound {
					return nil, fmt.Errorf("reading config %s: %w", path, err)
				}
			}
		}
	}

	cfg := &Config{}
	if err := v.Unmarshal(cfg); err != nil {
		return nil, fmt.Errorf("parsing config %s: %w", path, err)
	}
	return cfg, nil
}
