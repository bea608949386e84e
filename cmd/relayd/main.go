package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"

	"github.com/cyberinferno/chat-relay/chat"
	"github.com/cyberinferno/chat-relay/config"
	"github.com/cyberinferno/chat-relay/logger"
	"github.com/cyberinferno/chat-relay/nickstore"
)

const usage = "Usage: relayd HOST_IP PORT"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stderr))
}

func run(ctx context.Context, args []string, stderr io.Writer) int {
	cfg, err := parseArgs(args, stderr)
	if err != nil {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	log, err := newLogger(cfg)
	if err != nil {
		fmt.Fprintf(stderr, "Failed to create logger: %v\n", err)
		return 1
	}
	defer func() { _ = log.Close() }()

	nicks, err := newNickStore(cfg)
	if err != nil {
		log.Error("failed to create nickname store", logger.Field{Key: "error", Value: err})
		return 1
	}
	defer func() { _ = nicks.Close() }()

	// Bind and accept failures are logged where they happen.
	srv := chat.NewServer(cfg, log, nicks)
	if err := srv.Run(ctx); err != nil {
		return 1
	}

	return 0
}

// parseArgs builds the config from an optional -config file and the
// required HOST_IP PORT positionals, which override the file.
func parseArgs(args []string, stderr io.Writer) (*config.Config, error) {
	fs := flag.NewFlagSet("relayd", flag.ContinueOnError)
	fs.SetOutput(stderr)
	configPath := fs.String("config", "", "Path to YAML config file")
	if err := fs.Parse(args); err != nil {
		return nil, err
	}

	if fs.NArg() != 2 {
		return nil, fmt.Errorf("%w: expected HOST_IP PORT", config.ErrInvalid)
	}

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.Load(*configPath)
		if err != nil {
			fmt.Fprintf(stderr, "Failed to load config: %v\n", err)
			return nil, err
		}
		cfg = loaded
	}

	host := fs.Arg(0)
	if err := config.ValidateHost(host); err != nil {
		return nil, err
	}

	port, err := config.ParsePort(fs.Arg(1))
	if err != nil {
		return nil, err
	}

	cfg.Server.Host = host
	cfg.Server.Port = port
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	return cfg, nil
}

func newLogger(cfg *config.Config) (logger.Logger, error) {
	level, err := logger.ParseLevel(cfg.Log.Level)
	if err != nil {
		return nil, err
	}

	if cfg.Log.Dir != "" {
		return logger.NewZerologFileLogger(cfg.Server.Name, cfg.Log.Dir, level)
	}

	return logger.NewZerologLogger(zerolog.New(os.Stdout), cfg.Server.Name, level), nil
}

func newNickStore(cfg *config.Config) (nickstore.Store, error) {
	mem := cfg.NickMemory
	switch mem.Backend {
	case config.BackendNone:
		return nickstore.NewNopStore(), nil
	case config.BackendMemory:
		return nickstore.NewMemoryStore(mem.TTL), nil
	case config.BackendRedis:
		client := redis.NewClient(&redis.Options{
			Addr:     mem.Redis.Addr,
			Password: mem.Redis.Password,
			DB:       mem.Redis.DB,
		})
		return nickstore.NewRedisStore(client, mem.Redis.KeyPrefix, mem.TTL), nil
	default:
		return nil, fmt.Errorf("%w: unknown nick_memory.backend %q", config.ErrInvalid, mem.Backend)
	}
}
