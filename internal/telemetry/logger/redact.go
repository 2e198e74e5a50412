package logger

import (
	"log/slog"
	"strings"
)

const redactedValue = "***REDACTED***"

// Attribute keys containing one of these are secret.
var secretKeyParts = []string{"password", "secret", "token", "key", "credential", "auth", "bearer"}

// Keys naming a location rather than a value are exempt, so that
// key_file or ca_file paths stay readable.
var locationSuffixes = []string{"_file", "_path", "_dir"}

// Values with these prefixes are masked under any key. Every JWT starts
// with "eyJ", the base64 of `{"`.
var secretValuePrefixes = []string{"Bearer ", "bearer ", "eyJ"}

// redact is the slog ReplaceAttr hook.
func redact(_ []string, a slog.Attr) slog.Attr {
	a.Value = a.Value.Resolve()

	switch a.Value.Kind() {
	case slog.KindGroup:
		attrs := a.Value.Group()
		out := make([]slog.Attr, len(attrs))
		for i, attr := range attrs {
			out[i] = redact(nil, attr)
		}
		return slog.Attr{Key: a.Key, Value: slog.GroupValue(out...)}
	case slog.KindString:
		v := a.Value.String()
		if v == "" {
			return a
		}
		for _, p := range secretValuePrefixes {
			if strings.HasPrefix(v, p) {
				return slog.String(a.Key, mask(v, p))
			}
		}
		if isSecretKey(a.Key) {
			return slog.String(a.Key, redactedValue)
		}
	}
	return a
}

// mask keeps prefix plus three characters either side of the body, or
// only the prefix when the body is too short to hide.
func mask(v, prefix string) string {
	body := v[len(prefix):]
	if len(body) <= 12 {
		return prefix + "***"
	}
	return prefix + body[:3] + "..." + body[len(body)-3:]
}

func isSecretKey(key string) bool {
	k := strings.ToLower(key)
	for _, s := range locationSuffixes {
		if strings.HasSuffix(k, s) {
			return false
		}
	}
	for _, p := range secretKeyParts {
		if strings.Contains(k, p) {
			return true
		}
	}
	return false
}
