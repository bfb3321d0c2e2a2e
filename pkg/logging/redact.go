package logging

import (
	"context"
	"fmt"
	"log/slog"
	"regexp"
	"strings"
)

// Server specs carry API keys in env maps and headers, so everything headed
// for a sink passes through these patterns. Capture groups keep the prefix
// and replace only the secret.
var redactPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(?i)(Authorization:\s*)\S+(\s+\S+)?`),
	regexp.MustCompile(`(?i)(Bearer\s+)\S+`),
	regexp.MustCompile(`(?i)((?:password|passwd|secret|api[_-]?key|token|credentials?)\s*[=:]\s*)\S+`),
}

var sensitiveKeyPattern = regexp.MustCompile(`(?i)(password|passwd|secret|token|key|credential|auth)`)

// RedactingHandler rewrites secret-looking values in records before they
// reach the inner handler.
type RedactingHandler struct {
	inner slog.Handler
}

// NewRedactingHandler wraps inner with secret redaction.
func NewRedactingHandler(inner slog.Handler) *RedactingHandler {
	return &RedactingHandler{inner: inner}
}

func (h *RedactingHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.inner.Enabled(ctx, level)
}

func (h *RedactingHandler) Handle(ctx context.Context, r slog.Record) error {
	var attrs []slog.Attr
	r.Attrs(func(a slog.Attr) bool {
		attrs = append(attrs, redactAttr(a))
		return true
	})

	clean := slog.NewRecord(r.Time, r.Level, RedactString(r.Message), r.PC)
	clean.AddAttrs(attrs...)
	return h.inner.Handle(ctx, clean)
}

func (h *RedactingHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	redacted := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		redacted[i] = redactAttr(a)
	}
	return &RedactingHandler{inner: h.inner.WithAttrs(redacted)}
}

func (h *RedactingHandler) WithGroup(name string) slog.Handler {
	return &RedactingHandler{inner: h.inner.WithGroup(name)}
}

func redactAttr(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindString:
		return slog.String(a.Key, RedactString(a.Value.String()))
	case slog.KindGroup:
		members := a.Value.Group()
		redacted := make([]any, len(members))
		for i, m := range members {
			redacted[i] = redactAttr(m)
		}
		return slog.Group(a.Key, redacted...)
	case slog.KindAny:
		switch v := a.Value.Any().(type) {
		case []string:
			out := make([]string, len(v))
			for i, s := range v {
				out[i] = RedactString(s)
			}
			return slog.Any(a.Key, out)
		case map[string]string:
			return slog.Any(a.Key, RedactEnv(v))
		case error:
			return slog.String(a.Key, RedactString(v.Error()))
		case fmt.Stringer:
			return slog.String(a.Key, RedactString(v.String()))
		}
	}
	return a
}

// RedactString applies the redaction patterns to s.
func RedactString(s string) string {
	for _, p := range redactPatterns {
		s = p.ReplaceAllString(s, "${1}[REDACTED]")
	}
	return s
}

// RedactEnv returns a copy of env with values of secret-looking keys
// replaced.
func RedactEnv(env map[string]string) map[string]string {
	if env == nil {
		return nil
	}
	out := make(map[string]string, len(env))
	for k, v := range env {
		if isSensitiveKey(k) {
			out[k] = "[REDACTED]"
		} else {
			out[k] = RedactString(v)
		}
	}
	return out
}

func isSensitiveKey(key string) bool {
	return sensitiveKeyPattern.MatchString(strings.ToLower(key))
}
