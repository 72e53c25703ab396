package config

import (
	"fmt"
	"log/slog"
	"strings"
)

// LevelTrace sits below [slog.LevelDebug] and is meant for raw Ollama
// request/response payloads when debugging the chat or embedding
// boundary. The value -8 matches how other Go projects slot a Trace
// level under slog's built-ins.
const LevelTrace = slog.Level(-8)

// ParseLogLevel converts the log_level config string to an
// [slog.Level]. Matching is case-insensitive and ignores surrounding
// whitespace; an empty string means Info. "warning" is accepted as an
// alias for "warn". Unrecognized values return an error rather than
// silently defaulting, so a typo in config.yaml is caught at startup.
func ParseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "", "info":
		return slog.LevelInfo, nil
	case "trace":
		return LevelTrace, nil
	case "debug":
		return slog.LevelDebug, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("unknown log level %q (valid: trace, debug, info, warn, error)", s)
	}
}

// ReplaceLogLevelNames is an [slog.HandlerOptions.ReplaceAttr] function
// that renders [LevelTrace] as "TRACE". slog only knows its four
// built-in level names and would otherwise print "DEBUG-4".
func ReplaceLogLevelNames(groups []string, a slog.Attr) slog.Attr {
	if a.Key == slog.LevelKey {
		level, ok := a.Value.Any().(slog.Level)
		if ok && level == LevelTrace {
			a.Value = slog.StringValue("TRACE")
		}
	}
	return a
}
