package main

import (
	"bytes"
	"context"
	"net"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/cyberinferno/chat-relay/config"
	"github.com/cyberinferno/chat-relay/nickstore"
)

func TestParseArgs(t *testing.T) {
	t.Run("host and port", func(t *testing.T) {
		cfg, err := parseArgs([]string{"127.0.0.1", "9000"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "127.0.0.1:9000", cfg.Addr())
	})

	t.Run("positionals override the config file", func(t *testing.T) {
		path := filepath.Join(t.TempDir(), "relay.yaml")
		require.NoError(t, os.WriteFile(path, []byte("server:\n  name: lobby\n  port: 7000\nlog:\n  level: debug\n"), 0o644))

		cfg, err := parseArgs([]string{"-config", path, "0.0.0.0", "9001"}, &bytes.Buffer{})
		require.NoError(t, err)
		assert.Equal(t, "0.0.0.0:9001", cfg.Addr())
		assert.Equal(t, "lobby", cfg.Server.Name)
		assert.Equal(t, "debug", cfg.Log.Level)
	})

	bad := []struct {
		name string
		args []string
	}{
		{"no arguments", nil},
		{"port missing", []string{"127.0.0.1"}},
		{"extra argument", []string{"127.0.0.1", "9000", "x"}},
		{"hostname", []string{"localhost", "9000"}},
		{"ipv6", []string{"::1", "9000"}},
		{"privileged port", []string{"127.0.0.1", "80"}},
		{"port too large", []string{"127.0.0.1", "70000"}},
		{"port not a number", []string{"127.0.0.1", "http"}},
		{"unknown flag", []string{"-verbose", "127.0.0.1", "9000"}},
		{"missing config file", []string{"-config", "/nonexistent/relay.yaml", "127.0.0.1", "9000"}},
	}

	for _, tt := range bad {
		t.Run(tt.name, func(t *testing.T) {
			_, err := parseArgs(tt.args, &bytes.Buffer{})
			assert.Error(t, err)
		})
	}
}

func TestRun_usage(t *testing.T) {
	var stderr bytes.Buffer
	code := run(context.Background(), []string{"not-an-ip", "9000"}, &stderr)
	assert.Equal(t, 1, code)
	assert.Contains(t, stderr.String(), usage)
}

func TestRun_cancelled(t *testing.T) {
	if testing.Short() {
		t.Skip("binds a local port")
	}

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan int, 1)
	go func() { done <- run(ctx, []string{"127.0.0.1", "38421"}, &bytes.Buffer{}) }()

	time.Sleep(100 * time.Millisecond)
	cancel()

	select {
	case code := <-done:
		assert.Contains(t, []int{0, 1}, code, "0 after a clean stop, 1 if the port was taken")
	case <-time.After(5 * time.Second):
		t.Fatal("run did not return after cancellation")
	}
}

func TestNewNickStore(t *testing.T) {
	cfg := config.Default()

	store, err := newNickStore(cfg)
	require.NoError(t, err)
	assert.NotNil(t, store)

	cfg.NickMemory.Backend = config.BackendMemory
	store, err = newNickStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &nickstore.MemoryStore{}, store)

	cfg.NickMemory.Backend = config.BackendRedis
	store, err = newNickStore(cfg)
	require.NoError(t, err)
	assert.IsType(t, &nickstore.RedisStore{}, store)
	assert.NoError(t, store.Close())

	cfg.NickMemory.Backend = "etcd"
	_, err = newNickStore(cfg)
	assert.ErrorIs(t, err, config.ErrInvalid)
}

func TestNewLogger(t *testing.T) {
	cfg := config.Default()
	cfg.Log.Dir = t.TempDir()

	log, err := newLogger(cfg)
	require.NoError(t, err)
	log.Info("hello")
	require.NoError(t, log.Close())

	entries, err := os.ReadDir(cfg.Log.Dir)
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	cfg.Log.Level = "loud"
	_, err = newLogger(cfg)
	assert.Error(t, err)
}

func TestRun_bindFailureLoggedOnce(t *testing.T) {
	ln, err := net.Listen("tcp", "127.0.0.1:0")
	require.NoError(t, err)
	t.Cleanup(func() { _ = ln.Close() })

	port := ln.Addr().(*net.TCPAddr).Port
	if config.ValidatePort(port) != nil {
		t.Skipf("ephemeral port %d outside accepted range", port)
	}

	logDir := t.TempDir()
	path := filepath.Join(t.TempDir(), "relay.yaml")
	require.NoError(t, os.WriteFile(path, []byte("log:\n  dir: "+logDir+"\n"), 0o644))

	code := run(context.Background(), []string{"-config", path, "127.0.0.1", strconv.Itoa(port)}, &bytes.Buffer{})
	assert.Equal(t, 1, code)

	entries, err := os.ReadDir(logDir)
	require.NoError(t, err)
	require.Len(t, entries, 1)
	data, err := os.ReadFile(filepath.Join(logDir, entries[0].Name()))
	require.NoError(t, err)
	assert.Equal(t, 1, strings.Count(string(data), `"level":"error"`), string(data))
}
