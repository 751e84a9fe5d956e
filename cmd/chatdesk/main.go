// ABOUTME: Entry point for the chatdesk storefront bot
// ABOUTME: serve runs the bot; init writes a starter config file

package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/fatih/color"
	"github.com/joho/godotenv"

	"github.com/magicair/chatdesk/internal/bot"
	"github.com/magicair/chatdesk/internal/config"
)

// Version is set by goreleaser at build time.
var version = "dev"

const banner = `
       _           _      _           _
   ___| |__   __ _| |_ __| | ___  ___| | __
  / __| '_ \ / _' | __/ _' |/ _ \/ __| |/ /
 | (__| | | | (_| | || (_| |  __/\__ \   <
  \___|_| |_|\__,_|\__\__,_|\___||___/_|\_\
`

// getConfigPath returns the path to the config file.
// Priority: CHATDESK_CONFIG env var > XDG_CONFIG_HOME/chatdesk/chatdesk.yaml > ~/.config/chatdesk/chatdesk.yaml
func getConfigPath() string {
	if envPath := os.Getenv("CHATDESK_CONFIG"); envPath != "" {
		return envPath
	}

	configDir := os.Getenv("XDG_CONFIG_HOME")
	if configDir == "" {
		homeDir, err := os.UserHomeDir()
		if err != nil {
			return "chatdesk.yaml" // fallback
		}
		configDir = filepath.Join(homeDir, ".config")
	}

	return filepath.Join(configDir, "chatdesk", "chatdesk.yaml")
}

func main() {
	if len(os.Args) < 2 {
		fmt.Println("Usage: chatdesk <command>")
		fmt.Println()
		fmt.Println("Commands:")
		fmt.Println("  serve   Start the bot")
		fmt.Println("  init    Create a starter config file")
		os.Exit(1)
	}

	// A local .env may carry TELEGRAM_TOKEN and OPENAI_API_KEY for the
	// ${VAR} expansion inside the config file.
	_ = godotenv.Load()

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	var err error
	switch os.Args[1] {
	case "serve":
		err = runServe(ctx)
	case "init":
		err = runInit()
	default:
		fmt.Fprintf(os.Stderr, "Unknown command: %s\n", os.Args[1])
		os.Exit(1)
	}

	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func runServe(ctx context.Context) error {
	configPath := getConfigPath()

	cyan := color.New(color.FgCyan)
	cyan.Print(banner)
	gray := color.New(color.FgHiBlack)
	gray.Printf("    version: %s\n\n", version)

	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}

	logger := setupLogger(cfg.Logging)

	green := color.New(color.FgGreen)
	green.Print("    ▶ ")
	fmt.Printf("Config:    %s\n", configPath)
	green.Print("    ▶ ")
	fmt.Printf("Database:  %s\n", cfg.Database.Path)
	green.Print("    ▶ ")
	fmt.Printf("Operators: %d\n", len(cfg.Operators))
	green.Print("    ▶ ")
	fmt.Printf("Hours:     %02d:00-%02d:00 %s\n", cfg.Hours.Start, cfg.Hours.End, cfg.Hours.Timezone)
	fmt.Println()

	logger.Info("starting chatdesk", "config", configPath, "operators", len(cfg.Operators))

	b, err := bot.New(cfg, logger)
	if err != nil {
		return fmt.Errorf("creating bot: %w", err)
	}
	return b.Run(ctx)
}

const starterConfig = `telegram:
  token: ${TELEGRAM_TOKEN}

operators:
  - id: 123456789
    name: "Олег"

working_hours:
  start: 9
  end: 21
  timezone: Europe/Kyiv

rate_limit:
  cap: 30
  window: 60s
  cooldown: 5m

orders:
  auto_finalize_delay: 5m

sweep:
  interval: 10m

ai:
  api_key: ${OPENAI_API_KEY}
  model: gpt-4o-mini
  timeout: 20s
  history_size: 10
  history_ttl: 5h

database:
  path: chatdesk.db

logging:
  level: info
  format: text
`

func runInit() error {
	path := getConfigPath()
	if _, err := os.Stat(path); err == nil {
		return fmt.Errorf("config already exists at %s", path)
	}
	if err := os.MkdirAll(filepath.Dir(path), 0755); err != nil {
		return fmt.Errorf("creating config directory: %w", err)
	}
	if err := os.WriteFile(path, []byte(starterConfig), 0600); err != nil {
		return fmt.Errorf("writing config: %w", err)
	}

	color.Green("Created %s", path)
	fmt.Println("Edit the operator list and export TELEGRAM_TOKEN and OPENAI_API_KEY, then run: chatdesk serve")
	return nil
}
