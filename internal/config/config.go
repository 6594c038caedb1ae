// Package config loads application configuration from CLI arguments, a
// .env file, and environment variables, in that priority order.
package config

import (
	"flag"
	"fmt"
	"os"
	"regexp"
	"strings"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/olegiv/valgrind-analyzer-go/internal/report"
)

// CLIOptions holds command-line argument overrides
type CLIOptions struct {
	InputPath   string // -input: path to the valgrind log file
	OutputPath  string // -output: report output path
	Format      string // -format: report format (xlsx, csv)
	CSVFallback bool   // -csv-fallback: fall back to CSV if workbook generation fails
	TopSources  int    // -top-sources: number of top sources to rank
	ShowHelp    bool   // -help: show usage
	ShowVersion bool   // -version: show version
}

// ParseCLI parses command-line arguments and returns CLIOptions
func ParseCLI() *CLIOptions {
	opts := &CLIOptions{}

	flag.StringVar(&opts.InputPath, "input", "", "Path to the valgrind log file (overrides config)")
	flag.StringVar(&opts.OutputPath, "output", "", "Report output path (overrides config)")
	flag.StringVar(&opts.Format, "format", "", "Report format: xlsx, csv")
	flag.BoolVar(&opts.CSVFallback, "csv-fallback", false, "Fall back to CSV export if workbook generation fails")
	flag.IntVar(&opts.TopSources, "top-sources", 0, "Number of top issue sources to rank (overrides config)")
	flag.BoolVar(&opts.ShowHelp, "help", false, "Show usage information")
	flag.BoolVar(&opts.ShowVersion, "version", false, "Show version information")

	flag.Usage = func() {
		_, _ = fmt.Fprintf(os.Stderr, "Valgrind Log Analyzer - Memcheck report generation\n\n")
		_, _ = fmt.Fprintf(os.Stderr, "Usage: %s [options] [logfile]\n\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "Options:\n")
		flag.PrintDefaults()
		_, _ = fmt.Fprintf(os.Stderr, "\nExamples:\n")
		_, _ = fmt.Fprintf(os.Stderr, "  %s -input /tmp/valgrind.log\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -input valgrind.log -output reports/leaks.xlsx\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "  %s -input valgrind.log -format csv\n", os.Args[0])
		_, _ = fmt.Fprintf(os.Stderr, "\nEnvironment variables can be set in .env file or exported directly.\n")
		_, _ = fmt.Fprintf(os.Stderr, "CLI arguments override environment variables.\n")
	}

	flag.Parse()

	// A bare positional argument is accepted as the input path.
	if opts.InputPath == "" && flag.NArg() > 0 {
		opts.InputPath = flag.Arg(0)
	}

	return opts
}

// PrintUsage prints the command-line usage information
func PrintUsage() {
	flag.Usage()
}

// Config holds all application configuration
type Config struct {
	// Input
	InputPath    string
	MaxLogSizeMB int

	// Report
	OutputPath      string
	ReportFormat    string // "xlsx" or "csv"
	CSVFallback     bool
	TopSourcesLimit int
	MaxReportFrames int // trace frames shown per issue in detail sheets

	// Application
	LogLevel       string
	EnableDatabase bool
	DatabasePath   string

	// Telegram (optional)
	EnableTelegram         bool
	TelegramBotToken       string
	TelegramArchiveChannel int64
	TelegramAlertsChannel  int64 // Optional
}

// Load loads configuration from .env file and environment variables.
// For CLI overrides, use LoadWithCLI instead.
func Load() (*Config, error) {
	return LoadWithCLI(nil)
}

// LoadWithCLI loads configuration with CLI argument overrides.
// Priority: CLI args > .env file > OS environment variables > defaults.
func LoadWithCLI(cli *CLIOptions) (*Config, error) {
	viper.AutomaticEnv()
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	// godotenv.Load() sets OS env vars from .env, which viper then reads.
	_ = godotenv.Load()

	setDefaults()

	config := &Config{
		InputPath:    viper.GetString("VALGRIND_LOG_PATH"),
		MaxLogSizeMB: viper.GetInt("MAX_LOG_SIZE_MB"),

		OutputPath:      viper.GetString("REPORT_OUTPUT_PATH"),
		ReportFormat:    viper.GetString("REPORT_FORMAT"),
		CSVFallback:     viper.GetBool("REPORT_CSV_FALLBACK"),
		TopSourcesLimit: viper.GetInt("TOP_SOURCES_LIMIT"),
		MaxReportFrames: viper.GetInt("MAX_REPORT_FRAMES"),

		LogLevel:       viper.GetString("LOG_LEVEL"),
		EnableDatabase: viper.GetBool("ENABLE_DATABASE"),
		DatabasePath:   viper.GetString("DATABASE_PATH"),

		EnableTelegram:         viper.GetBool("ENABLE_TELEGRAM"),
		TelegramBotToken:       viper.GetString("TELEGRAM_BOT_TOKEN"),
		TelegramArchiveChannel: viper.GetInt64("TELEGRAM_CHANNEL_ARCHIVE_ID"),
		TelegramAlertsChannel:  viper.GetInt64("TELEGRAM_CHANNEL_ALERTS_ID"),
	}

	// Apply CLI overrides (highest priority)
	if cli != nil {
		if cli.InputPath != "" {
			config.InputPath = cli.InputPath
		}
		if cli.OutputPath != "" {
			config.OutputPath = cli.OutputPath
		}
		if cli.Format != "" {
			config.ReportFormat = cli.Format
		}
		if cli.CSVFallback {
			config.CSVFallback = true
		}
		if cli.TopSources > 0 {
			config.TopSourcesLimit = cli.TopSources
		}
	}

	if err := config.Validate(); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}

	return config, nil
}

// setDefaults sets default configuration values
func setDefaults() {
	viper.SetDefault("MAX_LOG_SIZE_MB", 50)

	viper.SetDefault("REPORT_OUTPUT_PATH", "valgrind_report.xlsx")
	viper.SetDefault("REPORT_FORMAT", string(report.FormatExcel))
	viper.SetDefault("REPORT_CSV_FALLBACK", true)
	viper.SetDefault("TOP_SOURCES_LIMIT", 10)
	viper.SetDefault("MAX_REPORT_FRAMES", 8)

	viper.SetDefault("LOG_LEVEL", "info")
	viper.SetDefault("ENABLE_DATABASE", true)
	viper.SetDefault("DATABASE_PATH", "./data/reports.db")

	viper.SetDefault("ENABLE_TELEGRAM", false)
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.InputPath == "" {
		return fmt.Errorf("input path is required (use -input or VALGRIND_LOG_PATH)")
	}

	if c.OutputPath == "" {
		return fmt.Errorf("REPORT_OUTPUT_PATH must not be empty")
	}

	if _, err := report.ParseFormat(c.ReportFormat); err != nil {
		return err
	}

	if c.MaxLogSizeMB < 1 || c.MaxLogSizeMB > 500 {
		return fmt.Errorf("MAX_LOG_SIZE_MB must be between 1 and 500")
	}

	if c.TopSourcesLimit < 1 || c.TopSourcesLimit > 100 {
		return fmt.Errorf("TOP_SOURCES_LIMIT must be between 1 and 100")
	}

	if c.MaxReportFrames < 1 || c.MaxReportFrames > 64 {
		return fmt.Errorf("MAX_REPORT_FRAMES must be between 1 and 64")
	}

	validLogLevels := map[string]bool{
		"debug": true,
		"info":  true,
		"warn":  true,
		"error": true,
	}
	if !validLogLevels[strings.ToLower(c.LogLevel)] {
		return fmt.Errorf("LOG_LEVEL must be one of: debug, info, warn, error")
	}

	if c.EnableTelegram {
		if err := c.validateTelegram(); err != nil {
			return err
		}
	}

	return nil
}

// validateTelegram validates the optional notification settings.
func (c *Config) validateTelegram() error {
	if c.TelegramBotToken == "" {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN is required when ENABLE_TELEGRAM=true")
	}
	telegramTokenRegex := regexp.MustCompile(`^\d+:[A-Za-z0-9_-]+$`)
	if !telegramTokenRegex.MatchString(c.TelegramBotToken) {
		return fmt.Errorf("TELEGRAM_BOT_TOKEN has invalid format (expected: 'number:token')")
	}

	if c.TelegramArchiveChannel == 0 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID is required when ENABLE_TELEGRAM=true")
	}
	if c.TelegramArchiveChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ARCHIVE_ID must be a supergroup/channel ID (starts with -100)")
	}

	if c.TelegramAlertsChannel != 0 && c.TelegramAlertsChannel > -100 {
		return fmt.Errorf("TELEGRAM_CHANNEL_ALERTS_ID must be a supergroup/channel ID (starts with -100)")
	}

	return nil
}

// HasAlertsChannel returns true if alerts channel is configured
func (c *Config) HasAlertsChannel() bool {
	return c.TelegramAlertsChannel != 0
}
