package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/cyberinferno/chat-relay/chatclient"
	"github.com/cyberinferno/chat-relay/config"
)

const usage = "Usage: relaychat HOST_IP PORT"

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	os.Exit(run(ctx, os.Args[1:], os.Stdin, os.Stdout, os.Stderr))
}

// run relays stdin lines to the relay and relay lines to stdout until the
// relay sends quit, the connection drops, stdin ends or ctx is cancelled.
func run(ctx context.Context, args []string, stdin io.Reader, stdout, stderr io.Writer) int {
	fs := flag.NewFlagSet("relaychat", flag.ContinueOnError)
	fs.SetOutput(stderr)
	timeout := fs.Duration("timeout", 10*time.Second, "Dial and write timeout")
	if err := fs.Parse(args); err != nil || fs.NArg() != 2 {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	if err := config.ValidateHost(fs.Arg(0)); err != nil {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	port, err := config.ParsePort(fs.Arg(1))
	if err != nil {
		fmt.Fprintln(stderr, usage)
		return 1
	}

	cfg := config.Default()
	cfg.Server.Host = fs.Arg(0)
	cfg.Server.Port = port

	clientCfg := chatclient.DefaultConfig(cfg.Addr())
	clientCfg.ConnectionTimeout = *timeout
	clientCfg.WriteTimeout = *timeout

	client := chatclient.NewClient(clientCfg)
	client.OnLine(func(e chatclient.LineEvent) {
		fmt.Fprintln(stdout, e.Line)
	})
	client.OnError(func(e chatclient.ErrorEvent) {
		fmt.Fprintf(stderr, "connection error: %v\n", e.Error)
	})

	if err := client.Connect(); err != nil {
		return 1
	}
	defer func() { _ = client.Close() }()

	inputDone := make(chan struct{})
	go func() {
		defer close(inputDone)
		scanner := bufio.NewScanner(stdin)
		for scanner.Scan() {
			if err := client.SendLine(scanner.Text()); err != nil {
				return
			}
		}
	}()

	select {
	case <-client.Done():
	case <-inputDone:
		// Give the relay a moment to answer a final quit.
		select {
		case <-client.Done():
		case <-time.After(time.Second):
		}
	case <-ctx.Done():
	}

	return 0
}
