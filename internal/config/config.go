package config

import (
	"encoding/json"
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"

	"finfeed/domain"
)

type Config struct {
	LogLevel  string
	LogPretty bool

	FeedsFile    string
	TaxonomyFile string // optional; empty means the built-in table

	IngestSpec      string
	StatsSpec       string
	MaintenanceSpec string

	FetchTimeout time.Duration

	PGHost     string
	PGPort     int
	PGUser     string
	PGPassword string
	PGDatabase string

	ControlAddr string
}

func Load() Config {
	_ = godotenv.Load()

	return Config{
		LogLevel:        getenv("LOG_LEVEL", "info"),
		LogPretty:       parseBoolEnv("LOG_PRETTY", true),
		FeedsFile:       getenv("FEEDS_FILE", "feeds.json"),
		TaxonomyFile:    getenv("TAXONOMY_FILE", ""),
		IngestSpec:      getenv("INGEST_SCHEDULE", "@every 2m"),
		StatsSpec:       getenv("STATS_SCHEDULE", "@hourly"),
		MaintenanceSpec: getenv("MAINTENANCE_SCHEDULE", "@daily"),
		FetchTimeout:    parseDurationEnv("FETCH_TIMEOUT", 30*time.Second),
		PGHost:          getenv("POSTGRES_HOST", "localhost"),
		PGPort:          parseIntEnv("POSTGRES_PORT", 5432),
		PGUser:          getenv("POSTGRES_USER", "postgres"),
		PGPassword:      getenv("POSTGRES_PASSWORD", "changeme"),
		PGDatabase:      getenv("POSTGRES_DBNAME", "finfeed"),
		ControlAddr:     getenv("CONTROL_ADDR", "127.0.0.1:8088"),
	}
}

// LoadFeeds reads the configured feed list from a JSON file of
// {category, name, url} entries. Any invalid entry fails the whole load;
// a broken feed list is fatal at startup rather than silently partial.
func LoadFeeds(path string) ([]domain.FeedSpec, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read feed list: %w", err)
	}

	var entries []struct {
		Category string `json:"category"`
		Name     string `json:"name"`
		URL      string `json:"url"`
	}
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse feed list %s: %w", path, err)
	}
	if len(entries) == 0 {
		return nil, fmt.Errorf("feed list %s is empty", path)
	}

	specs := make([]domain.FeedSpec, 0, len(entries))
	for i, e := range entries {
		if strings.TrimSpace(e.Name) == "" {
			return nil, fmt.Errorf("feed list %s: entry %d has no name", path, i)
		}
		if !strings.HasPrefix(e.URL, "http://") && !strings.HasPrefix(e.URL, "https://") {
			return nil, fmt.Errorf("feed list %s: entry %q has invalid url %q", path, e.Name, e.URL)
		}
		category := strings.TrimSpace(e.Category)
		if category == "" {
			category = "general"
		}
		specs = append(specs, domain.FeedSpec{Category: category, Name: e.Name, URL: e.URL})
	}
	return specs, nil
}

func getenv(key, def string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return def
}

func parseIntEnv(key string, def int) int {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			return n
		}
	}
	return def
}

func parseBoolEnv(key string, def bool) bool {
	if v := os.Getenv(key); v != "" {
		if b, err := strconv.ParseBool(v); err == nil {
			return b
		}
	}
	return def
}

func parseDurationEnv(key string, def time.Duration) time.Duration {
	if v := os.Getenv(key); v != "" {
		if d, err := time.ParseDuration(v); err == nil {
			return d
		}
	}
	return def
}
