package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, body string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()
	require.NoError(t, cfg.Validate())
	assert.Equal(t, "127.0.0.1:8888", cfg.Addr())
	assert.Equal(t, BackendNone, cfg.NickMemory.Backend)
	assert.Equal(t, 4096, cfg.Connection.MaxLineBytes)
}

func TestLoad(t *testing.T) {
	t.Run("overrides defaults and keeps the rest", func(t *testing.T) {
		path := writeConfig(t, `
server:
  host: 0.0.0.0
  port: 9000
connection:
  write_timeout: 3s
nick_memory:
  backend: memory
  ttl: 1m
`)
		cfg, err := Load(path)
		require.NoError(t, err)

		assert.Equal(t, "0.0.0.0:9000", cfg.Addr())
		assert.Equal(t, "chat-relay", cfg.Server.Name)
		assert.Equal(t, 3*time.Second, cfg.Connection.WriteTimeout)
		assert.Equal(t, 2*time.Second, cfg.Connection.ShutdownGrace)
		assert.Equal(t, BackendMemory, cfg.NickMemory.Backend)
		assert.Equal(t, time.Minute, cfg.NickMemory.TTL)
		assert.Equal(t, "chat-relay:nick:", cfg.NickMemory.Redis.KeyPrefix)
	})

	t.Run("missing file", func(t *testing.T) {
		_, err := Load(filepath.Join(t.TempDir(), "absent.yaml"))
		assert.ErrorIs(t, err, os.ErrNotExist)
	})

	t.Run("malformed yaml", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server: [1, 2"))
		assert.Error(t, err)
	})

	t.Run("invalid values are rejected", func(t *testing.T) {
		_, err := Load(writeConfig(t, "server:\n  port: 80\n"))
		assert.ErrorIs(t, err, ErrInvalid)
	})
}

func TestConfig_Validate(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(c *Config)
	}{
		{"hostname instead of ip", func(c *Config) { c.Server.Host = "localhost" }},
		{"ipv6 host", func(c *Config) { c.Server.Host = "::1" }},
		{"port below range", func(c *Config) { c.Server.Port = 1023 }},
		{"port above range", func(c *Config) { c.Server.Port = 65536 }},
		{"empty name", func(c *Config) { c.Server.Name = "" }},
		{"zero line size", func(c *Config) { c.Connection.MaxLineBytes = 0 }},
		{"zero write timeout", func(c *Config) { c.Connection.WriteTimeout = 0 }},
		{"negative grace", func(c *Config) { c.Connection.ShutdownGrace = -time.Second }},
		{"unknown backend", func(c *Config) { c.NickMemory.Backend = "etcd" }},
		{"memory without ttl", func(c *Config) {
			c.NickMemory.Backend = BackendMemory
			c.NickMemory.TTL = 0
		}},
		{"redis without addr", func(c *Config) {
			c.NickMemory.Backend = BackendRedis
			c.NickMemory.Redis.Addr = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)
			assert.ErrorIs(t, cfg.Validate(), ErrInvalid)
		})
	}
}

func TestParsePort(t *testing.T) {
	tests := []struct {
		in      string
		want    int
		wantErr bool
	}{
		{"1024", 1024, false},
		{"65535", 65535, false},
		{"8888", 8888, false},
		{"1023", 0, true},
		{"65536", 0, true},
		{"+8888", 0, true},
		{"88a8", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParsePort(tt.in)
			if tt.wantErr {
				assert.ErrorIs(t, err, ErrInvalid)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestLoad_exampleFile(t *testing.T) {
	cfg, err := Load(filepath.Join("..", "config.example.yaml"))
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)
}
