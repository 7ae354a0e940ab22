// Command relay runs the agent runtime as an interactive terminal session.
// Each line of input is one conversational turn.
package main

import (
	"bufio"
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/exec"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	goredis "github.com/redis/go-redis/v9"

	"github.com/nevindra/relay"
	"github.com/nevindra/relay/frontend/plaintext"
	"github.com/nevindra/relay/internal/config"
	"github.com/nevindra/relay/mcp"
	"github.com/nevindra/relay/observer"
	"github.com/nevindra/relay/provider/anthropic"
	"github.com/nevindra/relay/provider/openaicompat"
	"github.com/nevindra/relay/store/postgres"
	redisstore "github.com/nevindra/relay/store/redis"
	"github.com/nevindra/relay/store/sqlite"
	"github.com/nevindra/relay/tools/fetch"
	"github.com/nevindra/relay/tools/websearch"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintln(os.Stderr, "relay:", err)
		os.Exit(1)
	}
}

func run() error {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	cfg := config.Load(os.Getenv("RELAY_CONFIG"))
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: slog.LevelWarn}))

	backend, err := buildBackend(cfg)
	if err != nil {
		return err
	}

	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	tracer, closeTracer, err := buildTracer(ctx, cfg)
	if err != nil {
		return err
	}
	defer closeTracer()

	registry := relay.NewRegistry()
	if err := registerTools(ctx, cfg, registry, tracer, logger); err != nil {
		return err
	}

	opts := []relay.Option{
		relay.WithMemory(store),
		relay.WithTools(registry),
		relay.WithTracer(tracer),
		relay.WithLogger(logger),
		relay.WithModelOptions(relay.ModelOptions{
			Model:       cfg.Model.Model,
			MaxTokens:   cfg.Model.MaxTokens,
			Temperature: cfg.Model.Temperature,
		}),
	}
	if cfg.Runtime.NodeBudget > 0 {
		opts = append(opts, relay.WithNodeBudget(cfg.Runtime.NodeBudget))
	}
	if cfg.Runtime.ToolCallLimit > 0 {
		opts = append(opts, relay.WithToolCallLimit(cfg.Runtime.ToolCallLimit))
	}
	if cfg.Runtime.ModelTimeoutSec > 0 {
		opts = append(opts, relay.WithModelTimeout(time.Duration(cfg.Runtime.ModelTimeoutSec)*time.Second))
	}
	if cfg.Runtime.ToolTimeoutSec > 0 {
		opts = append(opts, relay.WithToolTimeout(time.Duration(cfg.Runtime.ToolTimeoutSec)*time.Second))
	}
	if cfg.Runtime.MemoryTimeoutSec > 0 {
		opts = append(opts, relay.WithMemoryTimeout(time.Duration(cfg.Runtime.MemoryTimeoutSec)*time.Second))
	}

	rt, err := relay.New(backend, opts...)
	if err != nil {
		return err
	}

	return repl(ctx, rt)
}

// repl reads one turn per line. The conversation ID is minted once per
// session; each turn gets a fresh trace ID. The core never mints either.
func repl(ctx context.Context, rt *relay.Runtime) error {
	conversationID := relay.NewID()
	fmt.Printf("relay session %s (ctrl-d to exit)\n", conversationID)

	scanner := bufio.NewScanner(os.Stdin)
	scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
	for {
		fmt.Print("> ")
		if !scanner.Scan() {
			fmt.Println()
			return scanner.Err()
		}
		input := strings.TrimSpace(scanner.Text())
		if input == "" {
			continue
		}
		if ctx.Err() != nil {
			return nil
		}

		res, err := rt.Invoke(ctx, relay.TurnRequest{
			Input:          input,
			ConversationID: conversationID,
			TraceID:        relay.NewID(),
			InputType:      relay.InputText,
		})
		if err != nil {
			fmt.Fprintln(os.Stderr, "relay:", err)
			continue
		}
		fmt.Println(plaintext.Render(res.Output))
	}
}

func buildBackend(cfg config.Config) (relay.ModelBackend, error) {
	if cfg.Model.APIKey == "" {
		return nil, fmt.Errorf("no API key configured for provider %q", cfg.Model.Provider)
	}

	var backend relay.ModelBackend
	switch cfg.Model.Provider {
	case "anthropic":
		backend = anthropic.New(cfg.Model.APIKey, cfg.Model.Model)
	case "openai", "openai-compatible":
		backend = openaicompat.New(cfg.Model.APIKey, cfg.Model.BaseURL, cfg.Model.Model)
	default:
		return nil, fmt.Errorf("unknown model provider %q", cfg.Model.Provider)
	}

	if cfg.Model.RPM > 0 {
		backend = relay.WithRateLimit(backend, relay.RPM(cfg.Model.RPM))
	}
	return backend, nil
}

func buildStore(ctx context.Context, cfg config.Config, logger *slog.Logger) (relay.MemoryStore, func(), error) {
	nop := func() {}
	switch cfg.Memory.Store {
	case "memory":
		return relay.NewMemStore(), nop, nil
	case "disabled":
		return relay.DisabledStore{}, nop, nil
	case "sqlite":
		s := sqlite.New(cfg.Memory.Path, sqlite.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			return nil, nil, fmt.Errorf("sqlite init: %w", err)
		}
		return s, func() { _ = s.Close() }, nil
	case "postgres":
		pool, err := pgxpool.New(ctx, cfg.Memory.PostgresURL)
		if err != nil {
			return nil, nil, fmt.Errorf("postgres connect: %w", err)
		}
		s := postgres.New(pool, postgres.WithLogger(logger))
		if err := s.Init(ctx); err != nil {
			pool.Close()
			return nil, nil, fmt.Errorf("postgres init: %w", err)
		}
		return s, pool.Close, nil
	case "redis":
		client := goredis.NewClient(&goredis.Options{Addr: cfg.Memory.RedisAddr, DB: cfg.Memory.RedisDB})
		s := redisstore.New(client, redisstore.WithLogger(logger))
		return s, func() { _ = client.Close() }, nil
	default:
		return nil, nil, fmt.Errorf("unknown memory store %q", cfg.Memory.Store)
	}
}

func buildTracer(ctx context.Context, cfg config.Config) (relay.Tracer, func(), error) {
	if !cfg.Observer.Enabled {
		return relay.NoopTracer{}, func() {}, nil
	}

	shutdown, err := observer.Init(ctx, cfg.Observer.ServiceName)
	if err != nil {
		return nil, nil, fmt.Errorf("observer init: %w", err)
	}

	alarms := &relay.InvariantAlarms{}
	tracer := observer.NewFanout(
		observer.NewTracer(alarms),
		observer.NewRecorder(cfg.Observer.MaxRecorded, alarms),
	)
	closer := func() {
		cctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = shutdown(cctx)
	}
	return tracer, closer, nil
}

func registerTools(ctx context.Context, cfg config.Config, registry *relay.Registry, tracer relay.Tracer, logger *slog.Logger) error {
	search := websearch.New(websearch.Credentials{
		Brave:  cfg.Search.BraveAPIKey,
		Serper: cfg.Search.SerperAPIKey,
		Tavily: cfg.Search.TavilyAPIKey,
	}, websearch.WithLogger(logger))
	if err := registry.Register(search); err != nil {
		return err
	}
	if err := registry.Register(fetch.New()); err != nil {
		return err
	}

	for _, command := range cfg.MCP.Servers {
		tools, err := startMCPServer(ctx, command, tracer)
		if err != nil {
			logger.Warn("mcp server skipped", "command", command, "err", err)
			continue
		}
		for _, t := range tools {
			if err := registry.Register(t); err != nil {
				logger.Warn("mcp tool skipped", "tool", t.Definition().Name, "err", err)
			}
		}
	}
	return nil
}

// startMCPServer launches a tool server subprocess and wraps its tools.
// The subprocess lives for the session; it dies with the parent.
func startMCPServer(ctx context.Context, command string, tracer relay.Tracer) ([]relay.Tool, error) {
	parts := strings.Fields(command)
	if len(parts) == 0 {
		return nil, fmt.Errorf("empty mcp server command")
	}

	cmd := exec.CommandContext(ctx, parts[0], parts[1:]...)
	cmd.Stderr = os.Stderr
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return nil, err
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	initCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	return mcp.RemoteTools(initCtx, mcp.NewClient(stdout, stdin), tracer)
}
