package config

import (
	"bytes"
	"fmt"
	"os"
	"regexp"

	"github.com/BurntSushi/toml"
)

// Security is the transport security mode for an upstream IRC connection.
type Security string

const (
	SecurityPlain Security = "plain"
	SecurityTLS   Security = "tls"
)

// ServerConfig describes one configured upstream IRC server.
type ServerConfig struct {
	UserName        string   `toml:"user_name,omitempty"`
	Password        string   `toml:"password,omitempty"`
	Host            string   `toml:"host"`
	Port            int      `toml:"port"`
	Security        Security `toml:"security,omitempty"`
	DefaultChannels []string `toml:"default_channels,omitempty"`

	// IdentifyCommand is the server-dependent registration/identification
	// exchange issued once Password is non-empty, e.g. "PRIVMSG NickServ :IDENTIFY %s".
	// A single "%s" verb, if present, is substituted with Password.
	IdentifyCommand string `toml:"identify_command,omitempty"`
}

// Config is the daemon-level configuration record. It is the only
// collaborator treated as given: loaded once at startup and never
// otherwise derived.
type Config struct {
	DefaultUserName string                   `toml:"default_user_name"`
	LogLevel        string                   `toml:"log_level,omitempty"`
	MetricsAddr     string                   `toml:"metrics_addr,omitempty"`
	Servers         map[string]*ServerConfig `toml:"servers"`
}

func DefaultConfig() *Config {
	return &Config{
		DefaultUserName: "guest",
		LogLevel:        "info",
		Servers:         make(map[string]*ServerConfig),
	}
}

// Load reads and parses a TOML config file, refusing to proceed if the file
// is group- or world-readable (it may carry IRC passwords).
func Load(path string) (*Config, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	if perm := info.Mode().Perm(); perm&0077 != 0 {
		return nil, fmt.Errorf("config file %s has insecure permissions %o (expected 0600). Fix with: chmod 600 %s", path, perm, path)
	}

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("load config: %w", err)
	}
	var cfg Config
	if err := toml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("parse config %s: %w", path, err)
	}
	if cfg.Servers == nil {
		cfg.Servers = make(map[string]*ServerConfig)
	}
	if cfg.DefaultUserName == "" {
		cfg.DefaultUserName = "guest"
	}
	return &cfg, nil
}

func (c *Config) Save(path string) error {
	var buf bytes.Buffer
	if err := toml.NewEncoder(&buf).Encode(c); err != nil {
		return fmt.Errorf("marshal config: %w", err)
	}
	return AtomicWriteFile(path, buf.Bytes(), 0600)
}

var envVarPattern = regexp.MustCompile(`\$([A-Za-z_][A-Za-z0-9_]*)`)

// ResolvePassword resolves a single $VAR reference in a password value from
// the process environment, so a config file can avoid storing secrets
// directly (e.g. password = "$FREENODE_PASSWORD").
func ResolvePassword(password string) string {
	if password == "" {
		return ""
	}
	return envVarPattern.ReplaceAllStringFunc(password, func(match string) string {
		return os.Getenv(match[1:])
	})
}
