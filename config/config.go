// Package config loads the settings shared by the gateway and the directory
// from a YAML file, TAGATEWAY_ prefixed environment variables and flags.
package config

import (
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/mitchellh/mapstructure"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"gopkg.in/yaml.v3"

	"github.com/wallera-computer/tagateway/gateway"
	"github.com/wallera-computer/tagateway/protocol"
)

const envPrefix = "TAGATEWAY"

// maxSocketPath is the longest path a unix socket can be bound to.
const maxSocketPath = 107

type Config struct {
	Gateway struct {
		UUID            string        `mapstructure:"uuid" yaml:"uuid"`
		SocketDir       string        `mapstructure:"socket_dir" yaml:"socket_dir"`
		DirectorySocket string        `mapstructure:"directory_socket" yaml:"directory_socket"`
		Framing         string        `mapstructure:"framing" yaml:"framing"`
		ReplyTimeout    time.Duration `mapstructure:"reply_timeout" yaml:"reply_timeout"`
		TeardownTimeout time.Duration `mapstructure:"teardown_timeout" yaml:"teardown_timeout"`
	} `mapstructure:"gateway" yaml:"gateway"`

	Log struct {
		Level       string `mapstructure:"level" yaml:"level"`
		Development bool   `mapstructure:"development" yaml:"development"`
	} `mapstructure:"log" yaml:"log"`

	Wallet struct {
		KeyringDir      string `mapstructure:"keyring_dir" yaml:"keyring_dir"`
		KeyringPassword string `mapstructure:"keyring_password" yaml:"-"`
	} `mapstructure:"wallet" yaml:"wallet"`

	Directory struct {
		Socket  string `mapstructure:"socket" yaml:"socket"`
		DataDir string `mapstructure:"data_dir" yaml:"data_dir"`
	} `mapstructure:"directory" yaml:"directory"`
}

type option struct {
	key   string
	flag  string
	value interface{}
	usage string
}

var (
	logOptions = []option{
		{"log.level", "log-level", "info", "log level: debug, info, warn or error"},
		{"log.development", "development", false, "human readable logs"},
	}

	gatewayOptions = []option{
		{"gateway.uuid", "uuid", "", "uuid of the served trusted application"},
		{"gateway.socket_dir", "socket-dir", "/tmp", "directory holding the listening socket"},
		{"gateway.directory_socket", "directory-socket", "/tmp/server.sock", "socket of the TA directory"},
		{"gateway.framing", "framing", protocol.LengthPrefixed.String(), "message framing: length-prefix or eof"},
		{"gateway.reply_timeout", "reply-timeout", time.Duration(0), "how long to wait on a session, 0 waits forever"},
		{"gateway.teardown_timeout", "teardown-timeout", gateway.DefaultTeardownTimeout, "how long to wait on each session while shutting down"},
		{"wallet.keyring_dir", "keyring-dir", "~/.tagateway/keyring", "directory of the file keyring holding the wallet seed"},
		{"wallet.keyring_password", "", "", ""},
	}

	directoryOptions = []option{
		{"directory.socket", "listen", "/tmp/server.sock", "socket registrations are received on"},
		{"directory.data_dir", "data-dir", "", "registration database directory, empty keeps it in memory"},
		{"gateway.socket_dir", "socket-dir", "/tmp", "directory holding the TA sockets"},
	}
)

// GatewayFlags registers the flags of the gateway binary on fs.
func GatewayFlags(fs *pflag.FlagSet) {
	addFlags(fs, logOptions)
	addFlags(fs, gatewayOptions)
}

// DirectoryFlags registers the flags of the directory binary on fs.
func DirectoryFlags(fs *pflag.FlagSet) {
	addFlags(fs, logOptions)
	addFlags(fs, directoryOptions)
}

func addFlags(fs *pflag.FlagSet, opts []option) {
	for _, o := range opts {
		if o.flag == "" || fs.Lookup(o.flag) != nil {
			continue
		}

		switch v := o.value.(type) {
		case string:
			fs.String(o.flag, v, o.usage)
		case bool:
			fs.Bool(o.flag, v, o.usage)
		case time.Duration:
			fs.Duration(o.flag, v, o.usage)
		}
	}
}

// Load reads path, if not empty, then the environment, then the flags set on
// fs, if not nil. Later sources win.
func Load(path string, fs *pflag.FlagSet) (*Config, error) {
	v := viper.New()

	for _, opts := range [][]option{logOptions, gatewayOptions, directoryOptions} {
		for _, o := range opts {
			v.SetDefault(o.key, o.value)

			if fs == nil || o.flag == "" {
				continue
			}

			if f := fs.Lookup(o.flag); f != nil {
				if err := v.BindPFlag(o.key, f); err != nil {
					return nil, fmt.Errorf("cannot bind flag %s, %w", o.flag, err)
				}
			}
		}
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config: %w", err)
		}
	}

	var c Config
	if err := v.Unmarshal(&c, viper.DecodeHook(mapstructure.StringToTimeDurationHookFunc())); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := c.expandPaths(); err != nil {
		return nil, err
	}

	return &c, nil
}

func (c *Config) expandPaths() error {
	for _, p := range []*string{
		&c.Gateway.SocketDir,
		&c.Gateway.DirectorySocket,
		&c.Wallet.KeyringDir,
		&c.Directory.Socket,
		&c.Directory.DataDir,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("cannot expand %q, %w", *p, err)
		}

		*p = expanded
	}

	return nil
}

// Validate checks the settings the gateway needs.
func (c *Config) Validate() error {
	if _, err := uuid.Parse(c.Gateway.UUID); err != nil {
		return fmt.Errorf("invalid gateway uuid %q, %w", c.Gateway.UUID, err)
	}

	if _, err := protocol.ParseFraming(c.Gateway.Framing); err != nil {
		return err
	}

	if c.Gateway.ReplyTimeout < 0 {
		return fmt.Errorf("reply timeout cannot be negative, got %s", c.Gateway.ReplyTimeout)
	}

	if c.Gateway.TeardownTimeout < 0 {
		return fmt.Errorf("teardown timeout cannot be negative, got %s", c.Gateway.TeardownTimeout)
	}

	if err := checkSocketPath(gateway.SocketPath(c.Gateway.SocketDir, c.Gateway.UUID)); err != nil {
		return err
	}

	return checkSocketPath(c.Gateway.DirectorySocket)
}

// ValidateDirectory checks the settings the directory needs.
func (c *Config) ValidateDirectory() error {
	return checkSocketPath(c.Directory.Socket)
}

func checkSocketPath(path string) error {
	if path == "" {
		return fmt.Errorf("socket path is empty")
	}

	if len(path) > maxSocketPath {
		return fmt.Errorf("socket path %q is %d bytes long, at most %d are allowed", path, len(path), maxSocketPath)
	}

	return nil
}

// GatewayConfig returns the gateway settings. c must be valid.
func (c *Config) GatewayConfig() (gateway.Config, error) {
	framing, err := protocol.ParseFraming(c.Gateway.Framing)
	if err != nil {
		return gateway.Config{}, err
	}

	return gateway.Config{
		UUID:            c.Gateway.UUID,
		SocketDir:       c.Gateway.SocketDir,
		DirectorySocket: c.Gateway.DirectorySocket,
		Framing:         framing,
		ReplyTimeout:    c.Gateway.ReplyTimeout,
		TeardownTimeout: c.Gateway.TeardownTimeout,
	}, nil
}

// Write renders c as YAML. The keyring password is left out.
func Write(w io.Writer, c *Config) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)

	if err := enc.Encode(c); err != nil {
		return fmt.Errorf("cannot encode config, %w", err)
	}

	return enc.Close()
}
