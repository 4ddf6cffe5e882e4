package log

import (
	"context"
	"io"
	"log/slog"
	"net/url"
	"regexp"
	"strings"
)

// MaskValue is the string used to replace sensitive values.
const MaskValue = "***REDACTED***"

// sensitiveKeys are attribute keys whose values are never logged.
var sensitiveKeys = map[string]bool{
	"authorization":       true,
	"proxy-authorization": true,
	"cookie":              true,
	"set-cookie":          true,
	"x-api-key":           true,
	"password":            true,
	"passwd":              true,
	"secret":              true,
	"token":               true,
	"api_key":             true,
	"apikey":              true,
	"access_token":        true,
	"refresh_token":       true,
	"session_id":          true,
	"sessionid":           true,
	"jsessionid":          true,
	"credential":          true,
	"credentials":         true,
}

// sensitiveKeywords mark a key as sensitive when contained anywhere in it.
// The bare word "key" is left out because it matches "primary_key" and friends.
var sensitiveKeywords = []string{
	"password", "passwd", "secret", "token", "credential", "cookie",
}

// sensitiveQueryParams are query parameters redacted inside logged URLs.
var sensitiveQueryParams = map[string]bool{
	"token":         true,
	"access_token":  true,
	"refresh_token": true,
	"api_key":       true,
	"apikey":        true,
	"key":           true,
	"password":      true,
	"secret":        true,
	"sig":           true,
	"signature":     true,
}

// sensitivePatterns match values that look like credentials regardless of key.
var sensitivePatterns = []*regexp.Regexp{
	regexp.MustCompile(`^eyJ[A-Za-z0-9_-]*\.eyJ[A-Za-z0-9_-]*\.[A-Za-z0-9_-]*$`),
	regexp.MustCompile(`(?i)^bearer\s+.+`),
	regexp.MustCompile(`(?i)^basic\s+[A-Za-z0-9+/=]+$`),
	regexp.MustCompile(`^AKIA[0-9A-Z]{16}$`),
	regexp.MustCompile(`(?i)-----BEGIN.*(PRIVATE|SECRET).*KEY-----`),
}

// SecureHandler wraps an slog.Handler and sanitizes attributes before they
// reach it. Values under sensitive keys are masked entirely; URL values keep
// their shape but lose user-info passwords and credential query parameters,
// so seed URLs and DevTools endpoints can be logged safely.
type SecureHandler struct {
	handler slog.Handler
}

// NewSecureHandler creates a new SecureHandler wrapping the given handler.
// If handler is nil, slog.Default().Handler() is used.
func NewSecureHandler(handler slog.Handler) *SecureHandler {
	if handler == nil {
		handler = slog.Default().Handler()
	}
	return &SecureHandler{handler: handler}
}

// Enabled delegates to the underlying handler.
func (h *SecureHandler) Enabled(ctx context.Context, level slog.Level) bool {
	return h.handler.Enabled(ctx, level)
}

// Handle sanitizes the record's attributes and passes it on.
func (h *SecureHandler) Handle(ctx context.Context, r slog.Record) error {
	sanitized := slog.NewRecord(r.Time, r.Level, r.Message, r.PC)
	r.Attrs(func(a slog.Attr) bool {
		sanitized.AddAttrs(sanitizeAttr(a))
		return true
	})
	return h.handler.Handle(ctx, sanitized)
}

// WithAttrs returns a new handler with the given attributes sanitized and added.
func (h *SecureHandler) WithAttrs(attrs []slog.Attr) slog.Handler {
	sanitized := make([]slog.Attr, len(attrs))
	for i, a := range attrs {
		sanitized[i] = sanitizeAttr(a)
	}
	return &SecureHandler{handler: h.handler.WithAttrs(sanitized)}
}

// WithGroup returns a new handler with the given group name.
func (h *SecureHandler) WithGroup(name string) slog.Handler {
	return &SecureHandler{handler: h.handler.WithGroup(name)}
}

func sanitizeAttr(a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	if a.Value.Kind() == slog.KindGroup {
		attrs := a.Value.Group()
		sanitized := make([]slog.Attr, len(attrs))
		for i, ga := range attrs {
			sanitized[i] = sanitizeAttr(ga)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(sanitized...)}
	}

	if isSensitiveKey(a.Key) {
		return slog.String(a.Key, MaskValue)
	}

	switch a.Value.Kind() {
	case slog.KindString:
		s := a.Value.String()
		if isSensitiveValue(s) {
			return slog.String(a.Key, MaskValue)
		}
		if strings.Contains(s, "://") {
			return slog.String(a.Key, RedactURL(s))
		}
	case slog.KindAny:
		if u, ok := a.Value.Any().(*url.URL); ok && u != nil {
			return slog.String(a.Key, RedactURL(u.String()))
		}
	}
	return a
}

func isSensitiveKey(key string) bool {
	k := strings.ToLower(key)
	if sensitiveKeys[k] {
		return true
	}
	for _, keyword := range sensitiveKeywords {
		if strings.Contains(k, keyword) {
			return true
		}
	}
	return false
}

func isSensitiveValue(value string) bool {
	for _, pattern := range sensitivePatterns {
		if pattern.MatchString(value) {
			return true
		}
	}
	return false
}

// RedactURL masks the user-info password and credential query parameters of
// raw. Strings that do not parse as absolute URLs are returned unchanged.
func RedactURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil || u.Scheme == "" {
		return raw
	}

	changed := false
	if u.User != nil {
		if _, hasPassword := u.User.Password(); hasPassword {
			u.User = url.UserPassword(u.User.Username(), MaskValue)
			changed = true
		}
	}

	if u.RawQuery != "" {
		q := u.Query()
		masked := false
		for name := range q {
			if sensitiveQueryParams[strings.ToLower(name)] {
				q.Set(name, MaskValue)
				masked = true
			}
		}
		if masked {
			u.RawQuery = q.Encode()
			changed = true
		}
	}

	if !changed {
		return raw
	}
	// url.URL escapes the mask inside user-info; put it back so logs stay readable.
	return strings.ReplaceAll(u.String(), url.QueryEscape(MaskValue), MaskValue)
}

func levelFor(verbose bool) slog.Level {
	if verbose {
		return slog.LevelDebug
	}
	return slog.LevelInfo
}

// NewSecureLogger creates a text slog.Logger writing to w through a
// SecureHandler. verbose selects debug level, otherwise info.
func NewSecureLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}
	return slog.New(NewSecureHandler(slog.NewTextHandler(w, opts)))
}

// NewSecureJSONLogger is NewSecureLogger with JSON output, for log aggregation.
func NewSecureJSONLogger(w io.Writer, verbose bool) *slog.Logger {
	opts := &slog.HandlerOptions{Level: levelFor(verbose)}
	return slog.New(NewSecureHandler(slog.NewJSONHandler(w, opts)))
}
