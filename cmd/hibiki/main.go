package main

import (
	"fmt"
	"os"
	"time"

	"github.com/mvoisin/hibiki/common/environment"
	"github.com/mvoisin/hibiki/common/version"
	"github.com/mvoisin/hibiki/internal/hibiki/app"
	"github.com/mvoisin/hibiki/internal/hibiki/config"
	"github.com/mvoisin/hibiki/internal/hibiki/matrix"
)

func main() {
	fmt.Printf("Hibiki Chat Bot\n")
	fmt.Printf("Version: %s\n", version.Version)
	fmt.Printf("Commit: %s\n", version.GitCommit)
	fmt.Printf("Build Time: %s\n", version.BuildTime)
	fmt.Println()

	cfg, err := loadConfig()
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}

	// Validate required configuration
	if cfg.Matrix.Homeserver == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_HOMESERVER is required\n")
		os.Exit(1)
	}
	if cfg.Matrix.UserID == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_USER_ID is required\n")
		os.Exit(1)
	}
	if cfg.Matrix.AccessToken == "" {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_ACCESS_TOKEN is required\n")
		os.Exit(1)
	}
	if len(cfg.Matrix.Rooms) == 0 {
		fmt.Fprintf(os.Stderr, "Error: MATRIX_ROOMS is required\n")
		os.Exit(1)
	}
	if cfg.ProviderAPIKey == "" {
		fmt.Fprintf(os.Stderr, "Error: OPENAI_API_KEY is required\n")
		os.Exit(1)
	}

	hibiki, err := app.New(cfg)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize Hibiki: %v\n", err)
		os.Exit(1)
	}
	defer hibiki.Stop()

	if err := hibiki.Run(); err != nil {
		fmt.Fprintf(os.Stderr, "Error running Hibiki: %v\n", err)
		os.Exit(1)
	}
}

// loadConfig reads the optional YAML config file, then applies environment
// overrides. Environment always wins, and secrets (the Matrix access token
// and the provider API key) come only from the environment.
func loadConfig() (*app.Config, error) {
	var file config.File
	if path := environment.StringOr("HIBIKI_CONFIG", ""); path != "" {
		loaded, err := config.Load(path)
		if err != nil {
			return nil, err
		}
		file = *loaded
	}

	timeout := 30 * time.Second
	if file.Provider.Timeout != "" {
		d, err := time.ParseDuration(file.Provider.Timeout)
		if err != nil {
			return nil, fmt.Errorf("config: invalid provider.timeout %q: %w", file.Provider.Timeout, err)
		}
		timeout = d
	}

	return &app.Config{
		DatabasePath: environment.StringOr("DATABASE_PATH", orDefault(file.DatabasePath, "./hibiki.db")),
		Matrix: matrix.Config{
			Homeserver:  environment.StringOr("MATRIX_HOMESERVER", file.Matrix.Homeserver),
			UserID:      environment.StringOr("MATRIX_USER_ID", file.Matrix.UserID),
			AccessToken: environment.StringOr("MATRIX_ACCESS_TOKEN", ""),
			Rooms:       environment.StringSliceOr("MATRIX_ROOMS", file.Matrix.Rooms),
		},
		SystemMessage:     environment.StringOr("HIBIKI_SYSTEM_MESSAGE", file.SystemMessage),
		DailyLimit:        environment.IntOr("HIBIKI_DAILY_LIMIT", file.DailyLimit),
		Model:             environment.StringOr("HIBIKI_MODEL", file.Model),
		ProviderEndpoint:  environment.StringOr("OPENAI_BASE_URL", file.Provider.Endpoint),
		ProviderAPIKey:    environment.StringOr("OPENAI_API_KEY", ""),
		ProviderTimeout:   environment.DurationOr("HIBIKI_PROVIDER_TIMEOUT", timeout),
		ProviderMaxTokens: environment.IntOr("HIBIKI_MAX_TOKENS", file.Provider.MaxTokens),
		HTTPAddr:          environment.StringOr("HIBIKI_HTTP_ADDR", file.HTTPAddr),
		MaxMessageBytes:   environment.IntOr("HIBIKI_MAX_MESSAGE_BYTES", file.MaxMessageBytes),
	}, nil
}

// orDefault returns fallback when value is empty.
func orDefault(value, fallback string) string {
	if value == "" {
		return fallback
	}
	return value
}
