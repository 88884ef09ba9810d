// Package config holds process configuration loaded from the environment
// and the runtime-mutable scraper settings (retry policy, domain rules,
// vendor configs). Settings are passed into constructors explicitly so
// tests can run with isolated configurations.
package config

import (
	"os"
	"strconv"
	"time"

	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

// Config holds application configuration loaded from environment variables.
type Config struct {
	Port            string
	DBPath          string
	ReadTimeout     time.Duration
	WriteTimeout    time.Duration
	IdleTimeout     time.Duration
	ShutdownTimeout time.Duration

	// Scraper collaborator endpoints and selection.
	ScraperService  string // reader | api | local
	ReaderBaseURL   string
	ScrapeAPIURL    string
	ScrapeAPIKey    string
	OCRServiceURL   string
	ExtractorURL    string
	FetchTimeout    time.Duration

	// Auth.
	JWTSecret   string
	JWTDuration time.Duration

	// Throttles and bounds.
	BatchDelay    time.Duration // courtesy delay between batch items
	MonitorDelay  time.Duration // courtesy delay between monitor checks
	QueuePoll     time.Duration // queue worker idle poll interval
	QueueWorkers  int           // bound on concurrent queue attempts
	SchedulerTick time.Duration // monitor scheduler wakeup interval
}

// Load reads the .env file and returns a populated Config struct.
func Load() *Config {
	if err := godotenv.Load(); err != nil {
		logrus.Info("no .env file found, falling back to system env vars")
	}

	return &Config{
		Port:            getEnv("PORT", "8080"),
		DBPath:          getEnv("DB_PATH", "plan-scraper.db"),
		ReadTimeout:     30 * time.Second,
		WriteTimeout:    30 * time.Second,
		IdleTimeout:     60 * time.Second,
		ShutdownTimeout: 30 * time.Second,

		ScraperService: getEnv("SCRAPER_SERVICE", "reader"),
		ReaderBaseURL:  getEnv("READER_BASE_URL", "https://r.jina.ai"),
		ScrapeAPIURL:   getEnv("SCRAPE_API_URL", ""),
		ScrapeAPIKey:   getEnv("SCRAPE_API_KEY", ""),
		OCRServiceURL:  getEnv("OCR_SERVICE_URL", ""),
		ExtractorURL:   getEnv("EXTRACTOR_URL", "http://localhost:8200"),
		FetchTimeout:   time.Duration(getEnvInt("FETCH_TIMEOUT_MS", 30000)) * time.Millisecond,

		JWTSecret:   getEnv("JWT_SECRET", ""),
		JWTDuration: time.Duration(getEnvInt("JWT_DURATION_HOURS", 24)) * time.Hour,

		BatchDelay:    time.Duration(getEnvInt("BATCH_DELAY_MS", 1500)) * time.Millisecond,
		MonitorDelay:  time.Duration(getEnvInt("MONITOR_DELAY_MS", 2000)) * time.Millisecond,
		QueuePoll:     time.Duration(getEnvInt("QUEUE_POLL_MS", 500)) * time.Millisecond,
		QueueWorkers:  getEnvInt("QUEUE_WORKERS", 1),
		SchedulerTick: time.Duration(getEnvInt("SCHEDULER_TICK_MS", 3600000)) * time.Millisecond,
	}
}

// getEnv returns environment variable value or default
func getEnv(key, defaultValue string) string {
	if value := os.Getenv(key); value != "" {
		return value
	}
	return defaultValue
}

// getEnvInt returns an integer environment variable value or default
func getEnvInt(key string, defaultValue int) int {
	if value := os.Getenv(key); value != "" {
		if parsed, err := strconv.Atoi(value); err == nil {
			return parsed
		}
	}
	return defaultValue
}
