// Package main is the entry point for httptrail.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/tschaume/httptrail/internal/config"
	"github.com/tschaume/httptrail/internal/gateway"
	"github.com/tschaume/httptrail/internal/monitoring"
)

// ANSI color codes
const (
	trailBlue = "\033[38;2;30;110;180m"
	bold      = "\033[1m"
	reset     = "\033[0m"
)

// ASCII banner for startup
const banner = `
 ██╗  ██╗████████╗████████╗██████╗ ████████╗██████╗  █████╗ ██╗██╗
 ██║  ██║╚══██╔══╝╚══██╔══╝██╔══██╗╚══██╔══╝██╔══██╗██╔══██╗██║██║
 ███████║   ██║      ██║   ██████╔╝   ██║   ██████╔╝███████║██║██║
 ██╔══██║   ██║      ██║   ██╔═══╝    ██║   ██╔══██╗██╔══██║██║██║
 ██║  ██║   ██║      ██║   ██║        ██║   ██║  ██║██║  ██║██║███████╗
 ╚═╝  ╚═╝   ╚═╝      ╚═╝   ╚═╝        ╚═╝   ╚═╝  ╚═╝╚═╝  ╚═╝╚═╝╚══════╝
`

func printBanner() {
	fmt.Print(trailBlue + bold + banner + reset + "\n")
}

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/httptrail/.env first
	configEnv := filepath.Join(homeDir, ".config", "httptrail", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env (can override)
	_ = godotenv.Load()
}

func main() {
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runServer(os.Args[2:])
			return
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: serve
	runServer(os.Args[1:])
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string) ([]byte, string, error) {
	// If user specified a config path, read it directly
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	homeDir, _ := os.UserHomeDir()

	// Search filesystem in order of preference
	searchPaths := []string{}
	if homeDir != "" {
		searchPaths = append(searchPaths,
			filepath.Join(homeDir, ".config", "httptrail", "config.yaml"),
		)
	}
	searchPaths = append(searchPaths,
		"configs/config.yaml",
		"config.yaml",
	)

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	// Fall back to embedded config
	if data, err := getEmbeddedConfig("config"); err == nil {
		return data, "(embedded) config.yaml", nil
	}

	return nil, "", fmt.Errorf("no config file found. Specify --config path")
}

// runServer starts the gateway.
func runServer(args []string) {
	// Load .env files from standard locations
	loadEnvFiles()

	fs := flag.NewFlagSet("serve", flag.ExitOnError)
	configPath := fs.String("config", "", "path to config file")
	debug := fs.Bool("debug", false, "enable debug logging")
	noBanner := fs.Bool("no-banner", false, "suppress startup banner")
	_ = fs.Parse(args) // ExitOnError handles errors

	if !*noBanner {
		printBanner()
	}

	// Bootstrap logging; replaced by the configured logger once the
	// config has been read.
	setupLogging(*debug)

	configData, configSource, err := resolveServeConfig(*configPath)
	if err != nil {
		log.Fatal().Err(err).Msg("No config file found. Specify --config path")
	}

	log.Info().
		Str("version", Version).
		Str("config", configSource).
		Msg("httptrail starting")

	cfg, err := config.LoadFromBytes(configData)
	if err != nil {
		log.Fatal().Err(err).Str("config", configSource).Msg("failed to load configuration")
	}
	if *debug {
		cfg.Logging.Level = "debug"
	}
	monitoring.Global(cfg.Logging)

	log.Info().
		Int("port", cfg.Server.Port).
		Str("upstream", cfg.Upstream.URL).
		Bool("jsonl_sink", cfg.Sinks.JSONL.Enabled).
		Bool("store_sink", cfg.Sinks.Store.Enabled).
		Bool("tail_sink", cfg.Sinks.Tail.Enabled).
		Bool("s3_sink", cfg.Sinks.S3.Enabled).
		Msg("configuration loaded")

	gw, err := gateway.New(cfg)
	if err != nil {
		log.Fatal().Err(err).Msg("failed to build gateway")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		log.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
		defer cancel()

		if err := gw.Shutdown(ctx); err != nil {
			log.Error().Err(err).Msg("gateway shutdown error")
		}
	}()

	if err := gw.Start(); err != nil {
		if err.Error() != "http: Server closed" {
			log.Fatal().Err(err).Msg("gateway error")
		}
	}

	log.Info().Msg("httptrail stopped")
}

// setupLogging configures the bootstrap zerolog output.
func setupLogging(debug bool) {
	log.Logger = log.Output(zerolog.ConsoleWriter{
		Out:        os.Stdout,
		TimeFormat: time.RFC3339,
	})

	if debug {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	} else {
		zerolog.SetGlobalLevel(zerolog.InfoLevel)
	}
}

// printHelp prints usage information
func printHelp() {
	printBanner()
	fmt.Println("httptrail - reverse proxy with structured access logging")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  httptrail [command] [options]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the gateway (default)")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE    Gateway config (searches standard paths if omitted)")
	fmt.Println("  --debug          Enable debug logging")
	fmt.Println("  --no-banner      Suppress the startup banner")
	fmt.Println()
	fmt.Println("Operator endpoints (on the configured port):")
	fmt.Println("  /healthz         Liveness probe")
	fmt.Println("  /stats           Metrics snapshot")
	fmt.Println("  /logs/recent     Recent access records (?limit=N)")
	fmt.Println("  /logs/tail       Live websocket tail (?path=, ?status=, ?q=, ?v=)")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  httptrail serve                    Start with the resolved config")
	fmt.Println("  httptrail serve --config gw.yaml   Start with an explicit config")
	fmt.Println("  httptrail serve --debug            Start with debug logging")
}
