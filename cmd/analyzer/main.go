package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
	"github.com/olegiv/valgrind-analyzer-go/internal/config"
	"github.com/olegiv/valgrind-analyzer-go/internal/logging"
	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
	"github.com/olegiv/valgrind-analyzer-go/internal/notification"
	"github.com/olegiv/valgrind-analyzer-go/internal/report"
	"github.com/olegiv/valgrind-analyzer-go/internal/storage"
	"github.com/olegiv/valgrind-analyzer-go/pkg/logger"
)

const (
	exitSuccess = 0
	exitFailure = 1
)

// Version information - injected at build time via ldflags
var (
	version   = "dev"
	buildTime = "unknown"
	gitCommit = "unknown"
)

func main() {
	os.Exit(run())
}

func run() int {
	// Parse CLI arguments first
	cli := config.ParseCLI()

	// Handle -help flag
	if cli.ShowHelp {
		config.PrintUsage()
		return exitSuccess
	}

	// Handle -version flag
	if cli.ShowVersion {
		fmt.Printf("valgrind-analyzer %s\n", version)
		if gitCommit != "unknown" {
			fmt.Printf("  commit: %s\n", gitCommit)
		}
		if buildTime != "unknown" {
			fmt.Printf("  built:  %s\n", buildTime)
		}
		return exitSuccess
	}

	// Setup signal handling for graceful shutdown
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	sigChan := make(chan os.Signal, 1)
	signal.Notify(sigChan, os.Interrupt, syscall.SIGTERM)
	go func() {
		<-sigChan
		cancel()
	}()

	// Load configuration with CLI overrides
	cfg, err := config.LoadWithCLI(cli)
	if err != nil {
		_, _ = fmt.Fprintf(os.Stderr, "Configuration error: %v\n", err)
		return exitFailure
	}

	// Initialize logger with credential sanitization
	baseLog := logger.New(logger.Config{
		Level:      cfg.LogLevel,
		LogDir:     "./logs",
		Filename:   "analyzer.log",
		MaxSizeMB:  10,
		MaxBackups: 5,
		Console:    true,
	})
	log := logging.NewSecure(baseLog)
	defer func() {
		if err := log.Close(); err != nil {
			_, _ = fmt.Fprintf(os.Stderr, "Failed to close logger: %v\n", err)
		}
	}()

	log.Info().Str("input", cfg.InputPath).Msg("Starting Valgrind Log Analyzer")

	if err := runAnalyzer(ctx, cfg, log); err != nil {
		log.Error().Err(err).Msg("Analysis failed")
		return exitFailure
	}

	log.Info().Msg("Analysis completed successfully")
	return exitSuccess
}

// diagnosticLogger forwards parse warnings to the application log as they
// are raised, so malformed input is visible before the final summary.
type diagnosticLogger struct {
	log *logging.SecureLogger
}

func (d *diagnosticLogger) ParseWarning(w memcheck.ParseWarning) {
	d.log.Warn().
		Int("line", w.LineNumber).
		Str("reason", w.Reason).
		Str("text", w.RawText).
		Msg("Parse warning")
}

func runAnalyzer(ctx context.Context, cfg *config.Config, log *logging.SecureLogger) error {
	startTime := time.Now()

	log.Info().Msg("Initializing components...")

	// 1. Initialize storage (if enabled)
	var store *storage.Storage
	var err error

	if cfg.EnableDatabase {
		store, err = storage.New(cfg.DatabasePath)
		if err != nil {
			return fmt.Errorf("failed to initialize storage: %w", err)
		}
		defer func(store *storage.Storage) {
			if err := store.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close database")
			}
		}(store)
		log.Info().Str("path", cfg.DatabasePath).Msg("Database initialized")
	}

	// 2. Initialize Telegram client (if enabled)
	var telegramClient *notification.TelegramClient
	if cfg.EnableTelegram {
		telegramClient, err = notification.NewTelegramClient(
			cfg.TelegramBotToken,
			cfg.TelegramArchiveChannel,
			cfg.TelegramAlertsChannel,
		)
		if err != nil {
			return fmt.Errorf("failed to initialize Telegram client: %w", err)
		}
		defer func(telegramClient *notification.TelegramClient) {
			if err := telegramClient.Close(); err != nil {
				log.Warn().Err(err).Msg("Failed to close Telegram client")
			}
		}(telegramClient)

		botInfo := telegramClient.GetBotInfo()
		log.Info().
			Str("username", botInfo["username"].(string)).
			Msg("Telegram bot initialized")
	}

	// 3. Register report renderers
	registry := report.NewRegistry()
	if err := registry.Register(report.NewExcelRenderer(cfg.MaxReportFrames)); err != nil {
		return fmt.Errorf("failed to register xlsx renderer: %w", err)
	}
	if err := registry.Register(report.NewCSVRenderer()); err != nil {
		return fmt.Errorf("failed to register csv renderer: %w", err)
	}

	// 4. Read and validate the valgrind log
	log.Info().Str("path", cfg.InputPath).Msg("Reading valgrind log...")

	reader := memcheck.NewReader(cfg.MaxLogSizeMB)
	lines, err := reader.Read(cfg.InputPath)
	if err != nil {
		return fmt.Errorf("failed to read valgrind log: %w", err)
	}

	if sourceInfo, err := reader.GetSourceInfo(cfg.InputPath); err == nil {
		log.Info().
			Float64("size_mb", sourceInfo["size_mb"].(float64)).
			Float64("age_hours", sourceInfo["age_hours"].(float64)).
			Int("lines", len(lines)).
			Msg("Log file read successfully")
	}

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("analysis cancelled: %w", err)
	}

	// 5. Extract issue records
	log.Info().Msg("Extracting memory issues...")
	records, warnings := memcheck.Assemble(lines, &diagnosticLogger{log: log})
	log.Info().
		Int("records", len(records)).
		Int("warnings", len(warnings)).
		Msg("Extraction completed")

	// 6. Classify and compute statistics
	classified := classify.Classify(records)
	stats := classify.ComputeStatistics(classified, cfg.TopSourcesLimit)
	critical := classify.CriticalCount(stats)

	log.Info().
		Int("total_issues", stats.TotalIssues).
		Int64("total_bytes", stats.TotalBytes).
		Int64("total_blocks", stats.TotalBlocks).
		Int("critical", critical).
		Msg("Classification completed")

	if err := ctx.Err(); err != nil {
		return fmt.Errorf("analysis cancelled: %w", err)
	}

	// 7. Render the report
	format, err := report.ParseFormat(cfg.ReportFormat)
	if err != nil {
		return err
	}
	renderer, ok := registry.Get(format)
	if !ok {
		return fmt.Errorf("no renderer registered for format %q", format)
	}

	reportPath := cfg.OutputPath
	log.Info().Str("format", string(format)).Str("output", reportPath).Msg("Rendering report...")

	if err := renderer.Render(classified, stats, reportPath); err != nil {
		if format == report.FormatExcel && cfg.CSVFallback {
			// Workbook generation failed; fall back to the plain CSV export.
			log.Warn().Err(err).Msg("Workbook generation failed, falling back to CSV")

			csvRenderer, ok := registry.Get(report.FormatCSV)
			if !ok {
				return fmt.Errorf("csv fallback requested but no csv renderer registered")
			}
			reportPath = report.FallbackPath(reportPath)
			if err := csvRenderer.Render(classified, stats, reportPath); err != nil {
				return fmt.Errorf("csv fallback failed: %w", err)
			}
		} else {
			return fmt.Errorf("report rendering failed: %w", err)
		}
	}
	log.Info().Str("path", reportPath).Msg("Report written")

	duration := time.Since(startTime)

	// 8. Save run summary to database (if enabled)
	if store != nil {
		log.Info().Msg("Saving run summary to database...")

		issuesByType := make(map[string]int, len(stats.IssuesByType))
		bytesByType := make(map[string]int64, len(stats.BytesByType))
		for _, t := range memcheck.AllIssueTypes() {
			issuesByType[t.String()] = stats.IssuesByType[t]
			bytesByType[t.String()] = stats.BytesByType[t]
		}

		run := &storage.RunSummary{
			Timestamp:       time.Now(),
			InputPath:       cfg.InputPath,
			ReportPath:      reportPath,
			TotalIssues:     stats.TotalIssues,
			TotalBytes:      stats.TotalBytes,
			TotalBlocks:     stats.TotalBlocks,
			IssuesByType:    issuesByType,
			BytesByType:     bytesByType,
			CriticalCount:   critical,
			ParseWarnings:   len(warnings),
			DurationSeconds: duration.Seconds(),
		}

		if err := store.SaveRun(run); err != nil {
			log.Warn().Err(err).Msg("Failed to save run summary")
		} else {
			log.Info().Int64("id", run.ID).Msg("Run summary saved")
		}

		if trend, err := store.TrendContext(7); err != nil {
			log.Warn().Err(err).Msg("Failed to retrieve run history")
		} else if trend != "" {
			log.Debug().Str("trend", trend).Msg("Run history")
		}

		// Cleanup old runs (>90 days)
		deleted, err := store.CleanupOldRuns(90)
		if err != nil {
			log.Warn().Err(err).Msg("Failed to cleanup old runs")
		} else if deleted > 0 {
			log.Info().Int64("deleted", deleted).Msg("Old runs cleaned up")
		}
	}

	// 9. Send Telegram notification (if enabled)
	if telegramClient != nil {
		log.Info().Msg("Sending Telegram notification...")
		notif := &notification.Report{
			Stats:         &stats,
			InputPath:     cfg.InputPath,
			ReportPath:    reportPath,
			ParseWarnings: len(warnings),
			Duration:      duration,
		}
		if err := telegramClient.SendAnalysisReport(notif); err != nil {
			return fmt.Errorf("failed to send Telegram notification: %w", err)
		}

		if cfg.HasAlertsChannel() && critical > 0 {
			log.Info().Msg("Alert notification sent (critical issues found)")
		}
	}

	// Final summary
	log.Info().
		Float64("total_duration_s", duration.Seconds()).
		Msg("All operations completed successfully")

	return nil
}
