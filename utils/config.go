package utils

import (
	"log/slog"
	"os"
	"time"
)

type Config struct {
	port             string
	databaseFilePath string
	sourcesFile      string

	refreshCron          string
	refreshWindowBack    time.Duration
	refreshWindowForward time.Duration

	metricCollectionInterval time.Duration

	location *time.Location
}

func NewConfig() *Config {
	return &Config{
		port: func() string {
			port := os.Getenv("PORT")
			if port == "" {
				port = "8080"
			}
			slog.Debug("env", "PORT", port)
			return port
		}(),
		databaseFilePath: func() string {
			databaseFilePath := os.Getenv("DATABASE_FILE_PATH")
			if databaseFilePath == "" {
				databaseFilePath = "./larder.db"
			}
			slog.Debug("env", "DATABASE_FILE_PATH", databaseFilePath)
			return databaseFilePath
		}(),
		sourcesFile: func() string {
			sourcesFile := os.Getenv("SOURCES_FILE")
			if sourcesFile == "" {
				sourcesFile = "./sources.yaml"
			}
			slog.Debug("env", "SOURCES_FILE", sourcesFile)
			return sourcesFile
		}(),

		refreshCron: func() string {
			refreshCron := os.Getenv("REFRESH_CRON")
			if refreshCron == "" {
				slog.Warn("REFRESH_CRON is not set")
				refreshCron = "@every 15m"
			}
			slog.Debug("env", "REFRESH_CRON", refreshCron)
			return refreshCron
		}(),
		refreshWindowBack: func() time.Duration {
			refreshWindowBack := os.Getenv("REFRESH_WINDOW_BACK")
			if refreshWindowBack == "" {
				refreshWindowBack = "720h" // 30 days
			}
			duration, err := time.ParseDuration(refreshWindowBack)
			if err != nil {
				slog.Error("invalid REFRESH_WINDOW_BACK", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "REFRESH_WINDOW_BACK", refreshWindowBack, "duration", duration)
			return duration
		}(),
		refreshWindowForward: func() time.Duration {
			refreshWindowForward := os.Getenv("REFRESH_WINDOW_FORWARD")
			if refreshWindowForward == "" {
				refreshWindowForward = "8760h" // 1 year
			}
			duration, err := time.ParseDuration(refreshWindowForward)
			if err != nil {
				slog.Error("invalid REFRESH_WINDOW_FORWARD", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "REFRESH_WINDOW_FORWARD", refreshWindowForward, "duration", duration)
			return duration
		}(),

		metricCollectionInterval: func() time.Duration {
			metricCollectionInterval := os.Getenv("METRIC_COLLECTION_INTERVAL")
			if metricCollectionInterval == "" {
				metricCollectionInterval = "15s"
			}
			duration, err := time.ParseDuration(metricCollectionInterval)
			if err != nil {
				slog.Error("invalid METRIC_COLLECTION_INTERVAL", "error", err)
				os.Exit(1)
			}
			slog.Debug("env", "METRIC_COLLECTION_INTERVAL", metricCollectionInterval, "duration", duration)
			return duration
		}(),

		location: func() *time.Location {
			timezoneStr := os.Getenv("TIMEZONE")
			var loc *time.Location
			var err error
			switch timezoneStr {
			case "":
				slog.Warn("TIMEZONE is not set, using local timezone", "timezone", time.Local)
				loc = time.Local
			case "UTC":
				loc = time.UTC
			default:
				loc, err = time.LoadLocation(timezoneStr)
				if err != nil {
					slog.Error("invalid timezone", "timezone", timezoneStr, "error", err)
					os.Exit(1)
				}
			}
			slog.Debug("env", "TIMEZONE", timezoneStr)
			return loc
		}(),
	}
}

// Get PORT env, default to 8080
func (c *Config) GetPort() string {
	return c.port
}

// Get DATABASE_FILE_PATH env, default to ./larder.db
func (c *Config) GetDatabaseFilePath() string {
	return c.databaseFilePath
}

// Get SOURCES_FILE env, default to ./sources.yaml
func (c *Config) GetSourcesFile() string {
	return c.sourcesFile
}

// Get REFRESH_CRON env, default to @every 15m
func (c *Config) GetRefreshCron() string {
	return c.refreshCron
}

// Get METRIC_COLLECTION_INTERVAL env, default to 15s
func (c *Config) GetMetricCollectionInterval() time.Duration {
	return c.metricCollectionInterval
}

// Get TIMEZONE env
func (c *Config) GetLocation() *time.Location {
	return c.location
}

// RefreshWindow is the range refreshes ask servers for, spanning
// REFRESH_WINDOW_BACK before now to REFRESH_WINDOW_FORWARD after.
func (c *Config) RefreshWindow(now time.Time) (time.Time, time.Time) {
	return now.Add(-c.refreshWindowBack), now.Add(c.refreshWindowForward)
}
