// Package config loads the relay configuration from YAML.
package config

import (
	"errors"
	"fmt"
	"net"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

const (
	// MinPort and MaxPort bound the listening port.
	MinPort = 1024
	MaxPort = 65535

	// Nickname memory backends accepted in nick_memory.backend.
	BackendNone   = "none"   // Remember nothing; every client starts as a guest
	BackendMemory = "memory" // In-process go-cache, for a single relay
	BackendRedis  = "redis"  // Shared Redis, for several relays
)

// ErrInvalid wraps every validation failure.
var ErrInvalid = errors.New("invalid config")

// Config is the full relay configuration as read from YAML.
type Config struct {
	Server     ServerConfig     `yaml:"server"`
	Connection ConnectionConfig `yaml:"connection"`
	Log        LogConfig        `yaml:"log"`
	NickMemory NickMemoryConfig `yaml:"nick_memory"`
}

// ServerConfig names the relay and sets its listen address.
type ServerConfig struct {
	Name string `yaml:"name"`
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
}

// ConnectionConfig holds per-connection framing and timing limits.
type ConnectionConfig struct {
	MaxLineBytes  int           `yaml:"max_line_bytes"`
	WriteTimeout  time.Duration `yaml:"write_timeout"`
	ShutdownGrace time.Duration `yaml:"shutdown_grace"`
}

// LogConfig selects the log level and optional log directory.
type LogConfig struct {
	Level string `yaml:"level"`
	// Dir enables daily rotated log files when non-empty.
	Dir string `yaml:"dir"`
}

// NickMemoryConfig controls remembering nicknames per remote host.
type NickMemoryConfig struct {
	Backend string        `yaml:"backend"`
	TTL     time.Duration `yaml:"ttl"`
	Redis   RedisConfig   `yaml:"redis"`
}

// RedisConfig is the connection and key layout for the redis backend.
type RedisConfig struct {
	Addr      string `yaml:"addr"`
	Password  string `yaml:"password"`
	DB        int    `yaml:"db"`
	KeyPrefix string `yaml:"key_prefix"`
}

// Default returns the configuration used when no file is given.
func Default() *Config {
	return &Config{
		Server: ServerConfig{
			Name: "chat-relay",
			Host: "127.0.0.1",
			Port: 8888,
		},
		Connection: ConnectionConfig{
			MaxLineBytes:  4096,
			WriteTimeout:  10 * time.Second,
			ShutdownGrace: 2 * time.Second,
		},
		Log: LogConfig{
			Level: "info",
		},
		NickMemory: NickMemoryConfig{
			Backend: BackendNone,
			TTL:     10 * time.Minute,
			Redis: RedisConfig{
				Addr:      "localhost:6379",
				KeyPrefix: "chat-relay:nick:",
			},
		},
	}
}

// Load reads path on top of Default and validates the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parse %s: %w", path, err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

// Validate reports the first problem found, wrapped in ErrInvalid.
func (c *Config) Validate() error {
	if err := ValidateHost(c.Server.Host); err != nil {
		return err
	}

	if err := ValidatePort(c.Server.Port); err != nil {
		return err
	}

	if c.Server.Name == "" {
		return fmt.Errorf("%w: server.name is empty", ErrInvalid)
	}

	if c.Connection.MaxLineBytes <= 0 {
		return fmt.Errorf("%w: connection.max_line_bytes must be positive", ErrInvalid)
	}

	if c.Connection.WriteTimeout <= 0 {
		return fmt.Errorf("%w: connection.write_timeout must be positive", ErrInvalid)
	}

	if c.Connection.ShutdownGrace < 0 {
		return fmt.Errorf("%w: connection.shutdown_grace is negative", ErrInvalid)
	}

	switch c.NickMemory.Backend {
	case BackendNone:
	case BackendMemory, BackendRedis:
		if c.NickMemory.TTL <= 0 {
			return fmt.Errorf("%w: nick_memory.ttl must be positive", ErrInvalid)
		}
		if c.NickMemory.Backend == BackendRedis && c.NickMemory.Redis.Addr == "" {
			return fmt.Errorf("%w: nick_memory.redis.addr is empty", ErrInvalid)
		}
	default:
		return fmt.Errorf("%w: unknown nick_memory.backend %q", ErrInvalid, c.NickMemory.Backend)
	}

	return nil
}

// Addr returns host:port for net.Listen.
func (c *Config) Addr() string {
	return net.JoinHostPort(c.Server.Host, strconv.Itoa(c.Server.Port))
}

// ValidateHost accepts a dotted IPv4 address.
func ValidateHost(host string) error {
	ip := net.ParseIP(host)
	if ip == nil || ip.To4() == nil || strings.Contains(host, ":") {
		return fmt.Errorf("%w: host %q is not an IPv4 address", ErrInvalid, host)
	}

	return nil
}

// ValidatePort accepts MinPort..MaxPort.
func ValidatePort(port int) error {
	if port < MinPort || port > MaxPort {
		return fmt.Errorf("%w: port %d outside %d-%d", ErrInvalid, port, MinPort, MaxPort)
	}

	return nil
}

// ParsePort parses a decimal port string and validates its range.
func ParsePort(s string) (int, error) {
	port, err := strconv.Atoi(s)
	if err != nil || strings.Trim(s, "0123456789") != "" {
		return 0, fmt.Errorf("%w: port %q is not a number", ErrInvalid, s)
	}

	if err := ValidatePort(port); err != nil {
		return 0, err
	}

	return port, nil
}
