package config

import (
	"strings"
	"testing"
)

func validConfig() *Config {
	return &Config{
		InputPath:       "/tmp/valgrind.log",
		MaxLogSizeMB:    50,
		OutputPath:      "valgrind_report.xlsx",
		ReportFormat:    "xlsx",
		CSVFallback:     true,
		TopSourcesLimit: 10,
		MaxReportFrames: 8,
		LogLevel:        "info",
		EnableDatabase:  true,
		DatabasePath:    "./data/reports.db",
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name:   "Valid config",
			mutate: func(c *Config) {},
		},
		{
			name:    "Missing input path",
			mutate:  func(c *Config) { c.InputPath = "" },
			wantErr: "input path",
		},
		{
			name:    "Missing output path",
			mutate:  func(c *Config) { c.OutputPath = "" },
			wantErr: "REPORT_OUTPUT_PATH",
		},
		{
			name:    "Invalid format",
			mutate:  func(c *Config) { c.ReportFormat = "pdf" },
			wantErr: "invalid report format",
		},
		{
			name:    "Log size too small",
			mutate:  func(c *Config) { c.MaxLogSizeMB = 0 },
			wantErr: "MAX_LOG_SIZE_MB",
		},
		{
			name:    "Log size too large",
			mutate:  func(c *Config) { c.MaxLogSizeMB = 501 },
			wantErr: "MAX_LOG_SIZE_MB",
		},
		{
			name:    "Top sources out of range",
			mutate:  func(c *Config) { c.TopSourcesLimit = 0 },
			wantErr: "TOP_SOURCES_LIMIT",
		},
		{
			name:    "Report frames out of range",
			mutate:  func(c *Config) { c.MaxReportFrames = 100 },
			wantErr: "MAX_REPORT_FRAMES",
		},
		{
			name:    "Invalid log level",
			mutate:  func(c *Config) { c.LogLevel = "verbose" },
			wantErr: "LOG_LEVEL",
		},
		{
			name: "Telegram enabled without token",
			mutate: func(c *Config) {
				c.EnableTelegram = true
				c.TelegramArchiveChannel = -1001234567890
			},
			wantErr: "TELEGRAM_BOT_TOKEN",
		},
		{
			name: "Telegram token bad format",
			mutate: func(c *Config) {
				c.EnableTelegram = true
				c.TelegramBotToken = "not-a-token"
				c.TelegramArchiveChannel = -1001234567890
			},
			wantErr: "invalid format",
		},
		{
			name: "Telegram archive channel missing",
			mutate: func(c *Config) {
				c.EnableTelegram = true
				c.TelegramBotToken = "123456789:AAbbCCddEEffGGhh"
			},
			wantErr: "TELEGRAM_CHANNEL_ARCHIVE_ID",
		},
		{
			name: "Telegram archive channel not a supergroup",
			mutate: func(c *Config) {
				c.EnableTelegram = true
				c.TelegramBotToken = "123456789:AAbbCCddEEffGGhh"
				c.TelegramArchiveChannel = 12345
			},
			wantErr: "starts with -100",
		},
		{
			name: "Telegram fully configured",
			mutate: func(c *Config) {
				c.EnableTelegram = true
				c.TelegramBotToken = "123456789:AAbbCCddEEffGGhh"
				c.TelegramArchiveChannel = -1001234567890
				c.TelegramAlertsChannel = -1009876543210
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Errorf("Expected valid config, got error: %v", err)
				}
				return
			}

			if err == nil {
				t.Fatalf("Expected error containing %q, got nil", tt.wantErr)
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Expected error containing %q, got %q", tt.wantErr, err.Error())
			}
		})
	}
}

func TestLoadWithCLIOverrides(t *testing.T) {
	t.Setenv("VALGRIND_LOG_PATH", "/tmp/env.log")
	t.Setenv("REPORT_FORMAT", "xlsx")

	cli := &CLIOptions{
		InputPath:  "/tmp/cli.log",
		OutputPath: "cli_report.csv",
		Format:     "csv",
		TopSources: 5,
	}

	cfg, err := LoadWithCLI(cli)
	if err != nil {
		t.Fatalf("LoadWithCLI failed: %v", err)
	}

	if cfg.InputPath != "/tmp/cli.log" {
		t.Errorf("Expected CLI input path to win, got %q", cfg.InputPath)
	}
	if cfg.OutputPath != "cli_report.csv" {
		t.Errorf("Expected CLI output path to win, got %q", cfg.OutputPath)
	}
	if cfg.ReportFormat != "csv" {
		t.Errorf("Expected CLI format to win, got %q", cfg.ReportFormat)
	}
	if cfg.TopSourcesLimit != 5 {
		t.Errorf("Expected CLI top sources to win, got %d", cfg.TopSourcesLimit)
	}
}

func TestLoadDefaults(t *testing.T) {
	t.Setenv("VALGRIND_LOG_PATH", "/tmp/valgrind.log")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load failed: %v", err)
	}

	if cfg.MaxLogSizeMB != 50 {
		t.Errorf("Expected default max log size 50, got %d", cfg.MaxLogSizeMB)
	}
	if cfg.ReportFormat != "xlsx" {
		t.Errorf("Expected default format xlsx, got %q", cfg.ReportFormat)
	}
	if !cfg.CSVFallback {
		t.Error("Expected CSV fallback enabled by default")
	}
	if cfg.TopSourcesLimit != 10 {
		t.Errorf("Expected default top sources 10, got %d", cfg.TopSourcesLimit)
	}
	if cfg.MaxReportFrames != 8 {
		t.Errorf("Expected default report frames 8, got %d", cfg.MaxReportFrames)
	}
	if cfg.LogLevel != "info" {
		t.Errorf("Expected default log level info, got %q", cfg.LogLevel)
	}
	if cfg.EnableTelegram {
		t.Error("Expected Telegram disabled by default")
	}
}
