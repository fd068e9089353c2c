// Package main provides the entry point for the OSSC question sourcing admin CLI tool.
package main

import (
	"context"
	"fmt"
	"os"

	"osscprep/cmd/adm/commands"
	"osscprep/internal/config"
	"osscprep/internal/observability"
)

func main() {
	ctx := context.Background()

	// Set default config file if not already set
	if os.Getenv(config.ConfigFileEnv) == "" {
		for _, path := range []string{"config.yaml", "../config.yaml", "../../config.yaml"} {
			if _, err := os.Stat(path); err == nil {
				if err := os.Setenv(config.ConfigFileEnv, path); err != nil {
					fmt.Fprintf(os.Stderr, "Failed to set %s: %v\n", config.ConfigFileEnv, err)
					os.Exit(1)
				}
				break
			}
		}
	}

	cfg, err := config.NewConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	// Keep the CLI quiet and offline from the collector
	cfg.Logging.Level = "error"
	cfg.Logging.File = ""
	cfg.OpenTelemetry.EnableTracing = false
	cfg.OpenTelemetry.EnableMetrics = false
	cfg.OpenTelemetry.EnableLogging = false

	_, _, logger, err := observability.SetupObservability(cfg, "ossc-adm")
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize observability: %v\n", err)
		os.Exit(1)
	}
	defer func() { _ = logger.Sync() }()

	rootCmd := commands.NewRootCommand(&commands.Env{Config: cfg, Logger: logger})
	if err := rootCmd.ExecuteContext(ctx); err != nil {
		os.Exit(1)
	}
}
