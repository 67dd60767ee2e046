package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"strings"

	"github.com/nixpig/wardensh/internal/client"
	"github.com/nixpig/wardensh/internal/history"
	"github.com/nixpig/wardensh/internal/protocol"
	"github.com/nixpig/wardensh/internal/tlsconfig"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

const (
	envPrefix      = "WSH"
	configFileName = ".wsh.yaml"
)

type config struct {
	socket      string
	historyPath string
	historySize int
	output      protocol.Format
	logLevel    string

	certPath   string
	keyPath    string
	caCertPath string
	serverName string
}

func (c *config) tls() *tlsconfig.Config {
	return &tlsconfig.Config{
		CertPath:   c.certPath,
		KeyPath:    c.keyPath,
		CACertPath: c.caCertPath,
		ServerName: c.serverName,
	}
}

func defaultHistoryPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return history.DefaultFileName
	}

	return filepath.Join(home, history.DefaultFileName)
}

func defaultConfigPath() string {
	home, err := os.UserHomeDir()
	if err != nil {
		return ""
	}

	return filepath.Join(home, configFileName)
}

func registerFlags(flags *pflag.FlagSet) {
	flags.String("config", defaultConfigPath(), "Path to YAML config file")
	flags.String("socket", client.DefaultTarget, "Server to connect to: socket path, unix:///path or tcp://host:port")
	flags.String("history", defaultHistoryPath(), "Path to history file")
	flags.Int("history-size", history.DefaultSize, "Number of history lines kept (0 for unlimited)")
	flags.String("output", string(protocol.FormatJSON), "Result format: json or yaml")
	flags.String("log-level", "warn", "Log level: debug, info, warn or error")
	flags.String("cert-path", "", "Path to client TLS certificate (tcp targets)")
	flags.String("key-path", "", "Path to client TLS private key (tcp targets)")
	flags.String("ca-cert-path", "", "Path to CA certificate for mTLS (tcp targets)")
	flags.String("server-name", "", "Server name to verify (defaults to the target host)")
}

// loadConfig resolves settings from flags, WSH_* environment variables and
// the config file, in that order of precedence. A missing config file is
// ignored.
func loadConfig(flags *pflag.FlagSet) (*config, error) {
	v := viper.New()

	if err := v.BindPFlags(flags); err != nil {
		return nil, fmt.Errorf("bind flags: %w", err)
	}

	v.SetEnvPrefix(envPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	v.AutomaticEnv()

	if path := v.GetString("config"); path != "" {
		v.SetConfigFile(path)
		v.SetConfigType("yaml")

		if err := v.ReadInConfig(); err != nil && !errors.Is(err, fs.ErrNotExist) {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", path, err)
			}
		}
	}

	output, err := protocol.ParseFormat(v.GetString("output"))
	if err != nil {
		return nil, err
	}

	cfg := &config{
		socket:      v.GetString("socket"),
		historyPath: v.GetString("history"),
		historySize: v.GetInt("history-size"),
		output:      output,
		logLevel:    v.GetString("log-level"),
		certPath:    v.GetString("cert-path"),
		keyPath:     v.GetString("key-path"),
		caCertPath:  v.GetString("ca-cert-path"),
		serverName:  v.GetString("server-name"),
	}

	if cfg.historyPath == "" {
		return nil, errors.New("history cannot be empty")
	}

	if cfg.historySize < 0 {
		return nil, errors.New("history-size cannot be negative")
	}

	if cfg.tls().Enabled() {
		if err := cfg.tls().Validate(); err != nil {
			return nil, err
		}
	}

	return cfg, nil
}
