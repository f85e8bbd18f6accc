// Package config handles application configuration from environment variables.
package config

import (
	"fmt"
	"os"
	"strconv"
)

// Config holds the application configuration.
type Config struct {
	RulesFile       string
	DatabasePath    string
	LogLevel        string
	GmailToken      string
	FetchMaxResults int
}

// Load reads configuration from environment variables.
func Load() (*Config, error) {
	rulesFile := os.Getenv("RULES_FILE")
	if rulesFile == "" {
		rulesFile = "./rules.json"
	}

	dbPath := os.Getenv("DATABASE_PATH")
	if dbPath == "" {
		dbPath = "./data/mail.db"
	}

	logLevel := os.Getenv("LOG_LEVEL")
	if logLevel == "" {
		logLevel = "info"
	}

	maxResults := 20
	if raw := os.Getenv("FETCH_MAX_RESULTS"); raw != "" {
		n, err := strconv.Atoi(raw)
		if err != nil || n <= 0 {
			return nil, fmt.Errorf("invalid FETCH_MAX_RESULTS %q", raw)
		}
		maxResults = n
	}

	return &Config{
		RulesFile:       rulesFile,
		DatabasePath:    dbPath,
		LogLevel:        logLevel,
		GmailToken:      os.Getenv("GMAIL_ACCESS_TOKEN"),
		FetchMaxResults: maxResults,
	}, nil
}

// RequireToken fails when no Gmail token is configured. Commands that only
// touch the local database do not call this.
func (c *Config) RequireToken() error {
	if c.GmailToken == "" {
		return fmt.Errorf("GMAIL_ACCESS_TOKEN is required")
	}
	return nil
}
