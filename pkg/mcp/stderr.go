package mcp

import (
	"log/slog"
	"regexp"
	"strings"
)

// Many MCP servers write ordinary progress output to stderr. Classifying it
// keeps operator logs readable; it never affects the protocol.

var errorKeywords = []string{"error", "exception", "failed", "failure", "fatal", "critical"}

var warnKeywords = []string{"warn", "warning", "deprecated", "警告"}

var infoKeywords = []string{"started", "running", "server", "installed", "packages", "成功", "完成", "已启动", "✅"}

// Package-manager install summaries, e.g. "42 packages in 350ms".
var packagesPattern = regexp.MustCompile(`\d+ packages? in \d+ms`)

// classifyStderrLine maps one stderr line to a log level by case-insensitive
// substring scan. Error keywords win over warn, warn over info; anything
// unmatched is debug.
func classifyStderrLine(line string) slog.Level {
	lower := strings.ToLower(line)
	for _, kw := range errorKeywords {
		if strings.Contains(lower, kw) {
			return slog.LevelError
		}
	}
	for _, kw := range warnKeywords {
		if strings.Contains(lower, kw) {
			return slog.LevelWarn
		}
	}
	for _, kw := range infoKeywords {
		if strings.Contains(lower, kw) {
			return slog.LevelInfo
		}
	}
	if packagesPattern.MatchString(line) {
		return slog.LevelInfo
	}
	return slog.LevelDebug
}
