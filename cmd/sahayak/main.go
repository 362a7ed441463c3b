package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"github.com/arogyasahayak/sahayak/internal/assistant"
	"github.com/arogyasahayak/sahayak/internal/cache"
	"github.com/arogyasahayak/sahayak/internal/config"
	"github.com/arogyasahayak/sahayak/internal/history"
	"github.com/arogyasahayak/sahayak/internal/notify"
	"github.com/arogyasahayak/sahayak/internal/persona"
	"github.com/arogyasahayak/sahayak/internal/providers"
	"github.com/arogyasahayak/sahayak/internal/reminder"
	"github.com/arogyasahayak/sahayak/internal/server"
	"github.com/arogyasahayak/sahayak/internal/store"
)

var version = "0.1.0"

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "init":
			runInit()
			return
		case "version", "--version", "-v":
			fmt.Printf("sahayak v%s\n", version)
			return
		case "help", "--help", "-h":
			printUsage()
			return
		case "serve":
			// fall through below
		default:
			fmt.Fprintf(os.Stderr, "unknown command %q\n\n", os.Args[1])
			printUsage()
			os.Exit(1)
		}
	}

	runServe()
}

func runInit() {
	if err := os.MkdirAll(config.Home(), 0755); err != nil {
		fmt.Fprintf(os.Stderr, "creating %s: %v\n", config.Home(), err)
		os.Exit(1)
	}

	cfgPath := config.DefaultConfigPath()
	if _, err := os.Stat(cfgPath); err == nil {
		fmt.Println("Config already exists at", cfgPath)
		return
	}

	if err := os.WriteFile(cfgPath, []byte(defaultConfig), 0644); err != nil {
		fmt.Fprintf(os.Stderr, "writing config: %v\n", err)
		os.Exit(1)
	}
	fmt.Println("Config written to", cfgPath)
	fmt.Println("Set GEMINI_API_KEY and OPENROUTER_API_KEY, then run 'sahayak serve'.")
}

func runServe() {
	// A .env next to the binary is convenient in development; absence is fine.
	_ = godotenv.Load()

	cfgPath := config.DefaultConfigPath()
	if _, err := os.Stat(cfgPath); os.IsNotExist(err) {
		fmt.Println("No config found. Run 'sahayak init' first.")
		os.Exit(1)
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error loading config: %v\n", err)
		os.Exit(1)
	}

	logger := newLogger(cfg.Log)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)

	if err := os.MkdirAll(filepath.Dir(cfg.Store.Path), 0755); err != nil {
		logger.Error("creating data dir", "error", err)
		os.Exit(1)
	}
	db, err := store.Open(cfg.Store.Path)
	if err != nil {
		logger.Error("opening database", "error", err)
		os.Exit(1)
	}
	defer db.Close()

	stack, err := providers.FromConfig(cfg, logger)
	if err != nil {
		logger.Error("configuring providers", "error", err)
		os.Exit(1)
	}

	registry := persona.NewRegistry(cfg.Assistant.DefaultLang)
	if cfg.Personas.Dir != "" {
		if err := registry.LoadOverrides(cfg.Personas.Dir); err != nil {
			logger.Error("loading persona overrides", "error", err)
			os.Exit(1)
		}
	}

	client := assistant.New(stack, registry, assistant.Options{
		MaxRetries:  cfg.Assistant.MaxRetries,
		Temperature: cfg.Assistant.Temperature,
		MaxTokens:   cfg.Assistant.MaxTokens,
		QuotaMarker: cfg.Assistant.QuotaMarker,
	}, logger)

	hist, err := history.New(db)
	if err != nil {
		logger.Error("initializing history", "error", err)
		os.Exit(1)
	}
	tips, err := cache.New(db)
	if err != nil {
		logger.Error("initializing cache", "error", err)
		os.Exit(1)
	}

	dispatcher := notify.NewDispatcher()
	reminders, err := reminder.New(db, dispatcher,
		config.Duration(cfg.Reminder.PollInterval, 30*time.Second), logger)
	if err != nil {
		logger.Error("initializing reminders", "error", err)
		os.Exit(1)
	}
	reminders.Start(ctx)

	srv := server.New(cfg.Server, server.Deps{
		Client:      client,
		History:     hist,
		Tips:        tips,
		Reminders:   reminders,
		Dispatcher:  dispatcher,
		CallTimeout: config.Duration(cfg.Assistant.CallTimeout, 5*time.Minute),
	}, logger)

	if err := srv.Start(); err != nil {
		logger.Error("starting server", "error", err)
		os.Exit(1)
	}

	logger.Info("sahayak running", "version", version, "addr", cfg.Server.ListenAddr)

	<-sigCh
	logger.Info("shutting down")
	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer shutdownCancel()
	if err := srv.Stop(shutdownCtx); err != nil {
		logger.Error("shutdown", "error", err)
	}
}

func newLogger(cfg config.LogConfig) *slog.Logger {
	var level slog.Level
	switch strings.ToLower(cfg.Level) {
	case "debug":
		level = slog.LevelDebug
	case "warn", "warning":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	default:
		level = slog.LevelInfo
	}

	out := os.Stderr
	if cfg.File != "" {
		if err := os.MkdirAll(filepath.Dir(cfg.File), 0755); err == nil {
			if f, err := os.OpenFile(cfg.File, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0644); err == nil {
				out = f
			}
		}
	}

	return slog.New(slog.NewTextHandler(out, &slog.HandlerOptions{Level: level}))
}

func printUsage() {
	fmt.Printf("sahayak v%s — Arogya Sahayak completion service\n\n", version)
	fmt.Println("Usage:")
	fmt.Println("  sahayak serve     Start the HTTP/WebSocket server")
	fmt.Println("  sahayak init      Write a starter config")
	fmt.Println("  sahayak version   Show version")
	fmt.Println("  sahayak help      Show this help")
}

const defaultConfig = `{
  "provider": {
    "primary": {
      "base_url": "https://generativelanguage.googleapis.com/v1beta/openai",
      "api_key": "${GEMINI_API_KEY}",
      "model": "gemini-2.0-flash"
    },
    "fallback": {
      "base_url": "https://openrouter.ai/api/v1",
      "api_key": "${OPENROUTER_API_KEY}",
      "models": [
        "meta-llama/llama-3.3-70b-instruct:free",
        "google/gemma-3-27b-it:free",
        "mistralai/mistral-small-3.1-24b-instruct:free"
      ]
    }
  },
  "assistant": {
    "max_retries": 3,
    "quota_marker": "free-models-per-day"
  },
  "server": {
    "listen_addr": ":8080",
    "rate_per_minute": 30
  },
  "log": {
    "level": "info"
  }
}
`
