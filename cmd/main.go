// Package main is the entry point for cptn.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"path/filepath"
	"strings"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"golang.org/x/term"

	"github.com/cptn-hooks/cptn/internal/config"
	"github.com/cptn-hooks/cptn/internal/executor"
	"github.com/cptn-hooks/cptn/internal/hooks"
	"github.com/cptn-hooks/cptn/internal/monitoring"
	"github.com/cptn-hooks/cptn/internal/server"
)

const shutdownTimeout = 30 * time.Second

// loadEnvFiles loads .env from standard locations
func loadEnvFiles() {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		_ = godotenv.Load()
		return
	}

	// Try loading from ~/.config/cptn/.env first
	configEnv := filepath.Join(homeDir, ".config", "cptn", ".env")
	if _, err := os.Stat(configEnv); err == nil {
		_ = godotenv.Load(configEnv)
	}

	// Also load local .env
	_ = godotenv.Load()
}

func main() {
	// Handle subcommands first (before flags)
	if len(os.Args) > 1 {
		switch os.Args[1] {
		case "serve", "start":
			runServe(os.Args[2:])
			return
		case "config":
			if err := printConfig(os.Stdout, os.Args[2:]); err != nil {
				fmt.Fprintln(os.Stderr, err)
				os.Exit(1)
			}
			return
		case "version", "-v", "--version":
			PrintVersion()
			return
		case "help", "-h", "--help":
			printHelp()
			return
		}
	}

	// Default: serve, passing any flags through
	runServe(os.Args[1:])
}

// serveFlags holds the parsed serve command line.
type serveFlags struct {
	configPath string
	addr       string
	debug      bool
}

func parseServeFlags(args []string) (serveFlags, error) {
	var f serveFlags
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.StringVar(&f.configPath, "config", "", "path to config file")
	fs.StringVar(&f.addr, "addr", "", "TCP port or unix socket path (overrides config)")
	fs.BoolVar(&f.debug, "debug", false, "enable debug logging")
	if err := fs.Parse(args); err != nil {
		return f, err
	}
	if fs.NArg() > 0 {
		return f, fmt.Errorf("unexpected arguments: %v", fs.Args())
	}
	return f, nil
}

// configSearchPaths lists the config files tried when --config is not given.
func configSearchPaths(homeDir string) []string {
	paths := []string{"cptn.yaml"}
	if homeDir != "" {
		paths = append(paths, filepath.Join(homeDir, ".config", "cptn", "config.yaml"))
	}
	return paths
}

// resolveServeConfig resolves the config for the serve command.
// Checks: user flag -> filesystem locations -> embedded default.
// Returns raw bytes and source description.
func resolveServeConfig(userConfig string, searchPaths []string) ([]byte, string, error) {
	if userConfig != "" {
		data, err := os.ReadFile(userConfig)
		if err != nil {
			return nil, "", fmt.Errorf("config file not found: %s", userConfig)
		}
		return data, userConfig, nil
	}

	for _, path := range searchPaths {
		if data, err := os.ReadFile(path); err == nil {
			return data, path, nil
		}
	}

	data, err := getEmbeddedConfig("cptn")
	if err != nil {
		return nil, "", fmt.Errorf("no config file found. Specify --config path")
	}
	return data, "(embedded) cptn.yaml", nil
}

// loadConfig resolves, parses and validates the configuration, then applies
// command line overrides.
func loadConfig(f serveFlags, searchPaths []string) (*config.Config, string, error) {
	data, source, err := resolveServeConfig(f.configPath, searchPaths)
	if err != nil {
		return nil, "", err
	}

	cfg, err := config.LoadFromBytes(data)
	if err != nil {
		return nil, source, fmt.Errorf("%s: %w", source, err)
	}

	if f.addr != "" {
		cfg.Server.Address = f.addr
	}
	if f.debug {
		cfg.Debug = true
	}
	return cfg, source, nil
}

// buildRegistry registers every configured hook as a shell command.
func buildRegistry(cfg *config.Config) (*hooks.Registry, error) {
	registry := hooks.NewRegistry(executor.Command)
	for _, h := range cfg.Hooks {
		if _, err := registry.Register(h.RegisterOptions()); err != nil {
			return nil, err
		}
	}
	return registry, nil
}

// runServe starts the webhook listener and blocks until it stops.
func runServe(args []string) {
	loadEnvFiles()

	f, err := parseServeFlags(args)
	if err != nil {
		if errors.Is(err, flag.ErrHelp) {
			return
		}
		fmt.Fprintln(os.Stderr, err)
		os.Exit(2)
	}

	homeDir, _ := os.UserHomeDir()
	cfg, source, err := loadConfig(f, configSearchPaths(homeDir))
	if err != nil {
		fmt.Fprintf(os.Stderr, "failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger := setupLogging(cfg)
	logger.Info().
		Str("version", Version).
		Str("config", source).
		Str("address", cfg.Server.Address).
		Bool("debug", cfg.Debug).
		Msg("cptn starting")

	registry, err := buildRegistry(cfg)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to register hooks")
	}

	srv, err := server.New(cfg, registry, logger)
	if err != nil {
		logger.Fatal().Err(err).Msg("failed to create server")
	}

	// Handle graceful shutdown
	go func() {
		sigChan := make(chan os.Signal, 1)
		signal.Notify(sigChan, syscall.SIGINT, syscall.SIGTERM)
		<-sigChan

		logger.Info().Msg("shutdown signal received")

		ctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := srv.Shutdown(ctx); err != nil {
			logger.Error().Err(err).Msg("server shutdown error")
		}
	}()

	if err := srv.Start(); err != nil {
		logger.Fatal().Err(err).Str("address", cfg.Server.Address).Msg("server error")
	}
}

// printConfig writes a bundled config to w. Without a name it prints the
// default config.
func printConfig(w io.Writer, args []string) error {
	name := "cptn"
	if len(args) > 0 {
		name = args[0]
	}

	data, err := getEmbeddedConfig(name)
	if err != nil {
		names, _ := listEmbeddedConfigs()
		return fmt.Errorf("unknown config %q (available: %s)", name, strings.Join(names, ", "))
	}
	_, err = w.Write(data)
	return err
}

// setupLogging configures the global logger from the monitoring section.
// An empty log_format picks console output on a terminal and JSON otherwise.
func setupLogging(cfg *config.Config) *monitoring.Logger {
	lc := cfg.Monitoring.LoggerConfig(cfg.Debug)
	lc.Format = resolveLogFormat(lc.Format, lc.Output, term.IsTerminal(int(os.Stdout.Fd())))
	return monitoring.Global(lc)
}

func resolveLogFormat(format, output string, stdoutIsTerminal bool) string {
	if format != "" {
		return format
	}
	if (output == "" || output == "stdout") && stdoutIsTerminal {
		return "console"
	}
	return "json"
}

// printHelp prints usage information
func printHelp() {
	fmt.Println("cptn - webhook listener that runs hooks")
	fmt.Println()
	fmt.Println("Usage:")
	fmt.Println("  cptn [options]")
	fmt.Println("  cptn [command]")
	fmt.Println()
	fmt.Println("Commands:")
	fmt.Println("  serve        Start the webhook listener (default)")
	fmt.Println("  config NAME  Print a bundled config (cptn, example)")
	fmt.Println("  version      Print version information")
	fmt.Println("  help         Show this help message")
	fmt.Println()
	fmt.Println("Options:")
	fmt.Println("  --config FILE    Config file (default: ./cptn.yaml, ~/.config/cptn/config.yaml)")
	fmt.Println("  --addr ADDR      TCP port, or unix socket path if not an integer")
	fmt.Println("  --debug          Enable debug logging")
	fmt.Println()
	fmt.Println("Environment:")
	fmt.Println("  CPTN_ADDR, CPTN_DEBUG, CPTN_TELEMETRY_LOG override the config file.")
	fmt.Println("  .env files are read from ~/.config/cptn/.env and ./.env")
	fmt.Println()
	fmt.Println("Examples:")
	fmt.Println("  cptn config example > cptn.yaml")
	fmt.Println("  cptn serve --addr 9000")
	fmt.Println("  cptn serve --addr /run/cptn/hooks.sock --debug")
	fmt.Println("  curl -X POST -d '{\"ref\":\"main\"}' localhost:9000/deploy")
}
