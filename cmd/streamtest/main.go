// streamtest connects to a WebSocket feed and gives an interactive prompt
// for sending payloads while received messages stream to the console.
// Usage: go run ./cmd/streamtest --url wss://stream.example.com/ws
//
// With --config, the client section of a pricewatch config file is used
// and --url overrides its endpoint.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/chzyer/readline"

	"github.com/rickgao/pricewatch/internal/config"
	"github.com/rickgao/pricewatch/internal/connection"
)

func main() {
	configPath := flag.String("config", "", "optional pricewatch config file")
	url := flag.String("url", "", "WebSocket URL (overrides config)")
	heartbeat := flag.Duration("heartbeat", 0, "heartbeat interval (overrides config)")
	reconnect := flag.Duration("reconnect", 0, "reconnect interval (overrides config)")
	attempts := flag.Int("attempts", -1, "max reconnect attempts (overrides config)")
	verbose := flag.Bool("verbose", false, "debug logging")
	flag.Parse()

	cfg := config.Default()
	if *configPath != "" {
		loaded, err := config.LoadWithDefaults(*configPath)
		if err != nil {
			fmt.Fprintf(os.Stderr, "failed to load config: %v\n", err)
			os.Exit(1)
		}
		cfg = loaded
	}
	if *url != "" {
		cfg.Client.URL = *url
	}
	if *heartbeat > 0 {
		cfg.Client.HeartbeatInterval = *heartbeat
	}
	if *reconnect > 0 {
		cfg.Client.ReconnectInterval = *reconnect
	}
	if *attempts >= 0 {
		cfg.Client.MaxReconnectAttempts = attempts
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:          "feed> ",
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to create readline: %v\n", err)
		os.Exit(1)
	}
	defer rl.Close()

	// Log through readline so output does not clobber the prompt.
	level := slog.LevelInfo
	if *verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(rl.Stderr(), &slog.HandlerOptions{Level: level}))

	client, err := connection.New(cfg.Client.ConnectionConfig(), connection.WithLogger(logger))
	if err != nil {
		logger.Error("invalid client config", "error", err)
		os.Exit(1)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGTERM)
	go func() {
		select {
		case <-sigCh:
			cancel()
			rl.Close()
		case <-ctx.Done():
		}
	}()

	console := newConsole(client, rl.Stdout())
	console.attach(client)

	client.Connect()
	console.printHelp()

	for ctx.Err() == nil {
		line, err := rl.Readline()
		if err != nil {
			if err == readline.ErrInterrupt {
				continue
			}
			break
		}
		if quit := console.execute(line); quit {
			break
		}
	}

	fmt.Fprintln(rl.Stdout(), "Exiting...")
	client.Close()

	// Give the close frame a moment to go out before the process exits.
	deadline := time.Now().Add(time.Second)
	for client.State() != connection.StateClosed && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
}
