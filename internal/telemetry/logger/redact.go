package logger

import (
	"log/slog"
	"strings"
)

type rule int

const (
	keep rule = iota
	// mask keeps both ends of an identifier so lines stay correlatable.
	mask
	// drop replaces secrets and clinical content entirely.
	drop
)

// rules are matched by substring of the lower-cased key, first match wins.
var rules = []struct {
	pattern string
	rule    rule
}{
	{"password", drop},
	{"secret", drop},
	{"token", drop},
	{"key", drop},
	{"credential", drop},
	{"auth", drop},
	{"content", drop},
	{"payload", drop},
	{"plaintext", drop},
	{"message", drop},
	{"diagnosis", drop},
	{"patient", mask},
	{"user_id", mask},
	{"actor", mask},
}

// Counters and descriptors that would otherwise hit a drop pattern.
var exempt = map[string]bool{
	"token_count":     true,
	"message_count":   true,
	"key_source":      true,
	"key_fingerprint": true,
}

const redactedValue = "***REDACTED***"

func classify(key string) rule {
	key = strings.ToLower(key)
	if exempt[key] {
		return keep
	}
	for _, r := range rules {
		if strings.Contains(key, r.pattern) {
			return r.rule
		}
	}
	return keep
}

// redactSensitive is the ReplaceAttr hook installed by New. Numbers and
// booleans are never redacted; structured values under a drop key are.
func redactSensitive(a slog.Attr) slog.Attr {
	switch a.Value.Kind() {
	case slog.KindGroup:
		group := a.Value.Group()
		out := make([]slog.Attr, len(group))
		for i, g := range group {
			out[i] = redactSensitive(g)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		s := a.Value.String()
		if s == "" {
			return a
		}
		switch classify(a.Key) {
		case drop:
			return slog.String(a.Key, redactedValue)
		case mask:
			return slog.String(a.Key, maskID(s))
		}
	case slog.KindAny:
		if classify(a.Key) == drop {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

// maskID keeps the first and last three characters of identifiers longer
// than eight characters.
func maskID(s string) string {
	if len(s) <= 8 {
		return "***"
	}
	return s[:3] + "..." + s[len(s)-3:]
}
