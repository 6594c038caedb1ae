// Package notification delivers analysis summaries to Telegram channels.
package notification

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	tgbotapi "github.com/go-telegram-bot-api/telegram-bot-api/v5"

	"github.com/olegiv/valgrind-analyzer-go/internal/classify"
	internalerrors "github.com/olegiv/valgrind-analyzer-go/internal/errors"
	"github.com/olegiv/valgrind-analyzer-go/internal/memcheck"
)

const (
	maxMessageLength = 4096
	// minMessageInterval is the minimum time between messages to the same channel
	// to avoid Telegram rate limits
	minMessageInterval = 1 * time.Second
	// maxRetries is the maximum number of retry attempts for sending messages
	maxRetries = 3
	// baseRetryDelay is the initial delay between retries (doubles each attempt)
	baseRetryDelay = 2 * time.Second
)

// Report bundles everything the notification message needs about one run.
type Report struct {
	Stats         *classify.Statistics
	InputPath     string
	ReportPath    string
	ParseWarnings int
	Duration      time.Duration
}

// TelegramClient handles Telegram notifications
type TelegramClient struct {
	bot             *tgbotapi.BotAPI
	archiveChannel  int64
	alertsChannel   int64
	hostname        string
	lastMessageTime time.Time
}

// NewTelegramClient creates a new Telegram client
func NewTelegramClient(botToken string, archiveChannel, alertsChannel int64) (*TelegramClient, error) {
	bot, err := tgbotapi.NewBotAPI(botToken)
	if err != nil {
		// Sanitize error to prevent bot token from appearing in error messages
		return nil, internalerrors.Wrapf(err, "failed to create Telegram bot")
	}

	// Get hostname for reports
	hostname, err := os.Hostname()
	if err != nil {
		hostname = "unknown"
	}

	return &TelegramClient{
		bot:            bot,
		archiveChannel: archiveChannel,
		alertsChannel:  alertsChannel,
		hostname:       hostname,
	}, nil
}

// SendAnalysisReport sends the run summary to the archive channel, and to the
// alerts channel as well when critical issues were found.
func (t *TelegramClient) SendAnalysisReport(report *Report) error {
	message := t.formatMessage(report)

	// Send to archive channel (always)
	if err := t.sendToChannel(t.archiveChannel, message); err != nil {
		return fmt.Errorf("failed to send to archive channel: %w", err)
	}

	if t.alertsChannel != 0 && classify.CriticalCount(*report.Stats) > 0 {
		if err := t.sendToChannel(t.alertsChannel, message); err != nil {
			return fmt.Errorf("failed to send to alerts channel: %w", err)
		}
	}

	return nil
}

// formatMessage formats a run summary into a Telegram message
func (t *TelegramClient) formatMessage(report *Report) string {
	stats := report.Stats
	critical := classify.CriticalCount(*stats)

	var msg strings.Builder

	// Header
	msg.WriteString("🔍 *Valgrind Memory Report*\n")
	msg.WriteString(fmt.Sprintf("🖥 Host\\: %s\n", escapeMarkdown(t.hostname)))
	msg.WriteString(fmt.Sprintf("📅 Date\\: %s\n", escapeMarkdown(time.Now().Format("2006-01-02 15:04:05"))))
	msg.WriteString(fmt.Sprintf("📄 Log\\: %s\n", escapeMarkdown(filepath.Base(report.InputPath))))
	if critical > 0 {
		msg.WriteString("🔴 *Status\\:* CRITICAL\n\n")
	} else if stats.TotalIssues > 0 {
		msg.WriteString("🟡 *Status\\:* WARNING\n\n")
	} else {
		msg.WriteString("🟢 *Status\\:* CLEAN\n\n")
	}

	// Execution Stats
	msg.WriteString("📋 *Execution Stats*\n")
	msg.WriteString(fmt.Sprintf("• Total Issues\\: %d\n", stats.TotalIssues))
	msg.WriteString(fmt.Sprintf("• Critical Issues\\: %d\n", critical))
	msg.WriteString(fmt.Sprintf("• Total Bytes\\: %d\n", stats.TotalBytes))
	msg.WriteString(fmt.Sprintf("• Total Blocks\\: %d\n", stats.TotalBlocks))
	if report.ParseWarnings > 0 {
		msg.WriteString(fmt.Sprintf("• Parse Warnings\\: %d\n", report.ParseWarnings))
	}
	msg.WriteString(fmt.Sprintf("• Duration\\: %s\n\n", escapeMarkdown(fmt.Sprintf("%.2fs", report.Duration.Seconds()))))

	// Issue breakdown, worst categories first
	if stats.TotalIssues > 0 {
		msg.WriteString("📊 *Issues by Type*\n")
		for _, it := range memcheck.AllIssueTypes() {
			count := stats.IssuesByType[it]
			if count == 0 {
				continue
			}
			msg.WriteString(fmt.Sprintf("• %s\\: %d \\(%d bytes\\)\n",
				escapeMarkdown(it.DisplayName()), count, stats.BytesByType[it]))
		}
		msg.WriteString("\n")
	}

	// Top sources
	if len(stats.TopSources) > 0 {
		msg.WriteString("📈 *Top Sources*\n")
		for i, src := range stats.TopSources {
			msg.WriteString(fmt.Sprintf("%d\\. %s \\(%d\\)\n", i+1, escapeMarkdown(src.Source), src.Count))
		}
		msg.WriteString("\n")
	}

	if report.ReportPath != "" {
		msg.WriteString(fmt.Sprintf("💾 Report\\: %s\n", escapeMarkdown(report.ReportPath)))
	}

	return msg.String()
}

// sendToChannel sends a message to a Telegram channel with rate limiting
func (t *TelegramClient) sendToChannel(channelID int64, message string) error {
	// Split message if it exceeds Telegram's limit
	messages := t.splitMessage(message)

	for _, msg := range messages {
		t.waitForRateLimit()

		msgConfig := tgbotapi.NewMessage(channelID, msg)
		msgConfig.ParseMode = "MarkdownV2"

		// Send with exponential backoff retry
		if err := t.sendWithRetry(msgConfig); err != nil {
			return err
		}

		t.lastMessageTime = time.Now()
	}

	return nil
}

// waitForRateLimit ensures minimum interval between messages
func (t *TelegramClient) waitForRateLimit() {
	if t.lastMessageTime.IsZero() {
		return
	}

	elapsed := time.Since(t.lastMessageTime)
	if elapsed < minMessageInterval {
		time.Sleep(minMessageInterval - elapsed)
	}
}

// sendWithRetry sends a message with exponential backoff retry
func (t *TelegramClient) sendWithRetry(msgConfig tgbotapi.MessageConfig) error {
	var lastErr error

	for attempt := 1; attempt <= maxRetries; attempt++ {
		_, err := t.bot.Send(msgConfig)
		if err == nil {
			return nil
		}

		lastErr = err

		// Check if this is a rate limit error (429)
		if isRateLimitError(err) {
			retryAfter := extractRetryAfter(err)
			if retryAfter > 0 {
				time.Sleep(time.Duration(retryAfter) * time.Second)
				continue
			}
		}

		// Exponential backoff for other errors
		if attempt < maxRetries {
			delay := baseRetryDelay * time.Duration(1<<(attempt-1)) // 2s, 4s, 8s...
			time.Sleep(delay)
		}
	}

	// Sanitize error to prevent credentials from appearing in error messages
	return internalerrors.Wrapf(lastErr, "failed to send message after %d retries", maxRetries)
}

// isRateLimitError checks if the error is a Telegram rate limit error (429)
func isRateLimitError(err error) bool {
	if err == nil {
		return false
	}
	errStr := err.Error()
	return strings.Contains(errStr, "429") || strings.Contains(errStr, "Too Many Requests")
}

// extractRetryAfter extracts the retry_after value from a rate limit error
func extractRetryAfter(err error) int {
	if err == nil {
		return 0
	}

	// Telegram API errors typically include retry_after in the message
	// Example: "Too Many Requests: retry after 30"
	errStr := err.Error()

	if idx := strings.Index(strings.ToLower(errStr), "retry after "); idx != -1 {
		remaining := errStr[idx+len("retry after "):]
		var seconds int
		if _, err := fmt.Sscanf(remaining, "%d", &seconds); err == nil {
			return seconds
		}
	}

	// Default to a conservative wait time if we can't extract the value
	return 30
}

// splitMessage splits a long message into multiple messages
func (t *TelegramClient) splitMessage(message string) []string {
	if len(message) <= maxMessageLength {
		return []string{message}
	}

	var messages []string
	lines := strings.Split(message, "\n")
	var currentMsg strings.Builder

	for _, line := range lines {
		// If adding this line would exceed the limit
		if currentMsg.Len()+len(line)+1 > maxMessageLength {
			if currentMsg.Len() > 0 {
				messages = append(messages, currentMsg.String())
				currentMsg.Reset()
			}

			// If a single line is too long, split it
			if len(line) > maxMessageLength {
				for i := 0; i < len(line); i += maxMessageLength {
					end := i + maxMessageLength
					if end > len(line) {
						end = len(line)
					}
					messages = append(messages, line[i:end])
				}
				continue
			}
		}

		currentMsg.WriteString(line)
		currentMsg.WriteString("\n")
	}

	// Add remaining content
	if currentMsg.Len() > 0 {
		messages = append(messages, currentMsg.String())
	}

	return messages
}

// escapeMarkdown escapes special characters for Telegram MarkdownV2
func escapeMarkdown(text string) string {
	// Characters that need to be escaped in MarkdownV2
	// See: https://core.telegram.org/bots/api#markdownv2-style
	specialChars := []string{
		"_", "*", "[", "]", "(", ")", "~", "`", ">", "#", "+", "-", "=", "|", "{", "}", ".", "!", ":",
	}

	result := text
	for _, char := range specialChars {
		result = strings.ReplaceAll(result, char, "\\"+char)
	}

	return result
}

// GetBotInfo returns information about the bot
func (t *TelegramClient) GetBotInfo() map[string]interface{} {
	return map[string]interface{}{
		"username":        t.bot.Self.UserName,
		"archive_channel": t.archiveChannel,
		"alerts_channel":  t.alertsChannel,
		"hostname":        t.hostname,
	}
}

// Close closes the Telegram client
func (t *TelegramClient) Close() error {
	t.bot.StopReceivingUpdates()
	return nil
}
