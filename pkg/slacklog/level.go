package slacklog

import (
	"log/slog"
	"strconv"
	"strings"

	"github.com/rs/zerolog"
)

// Level is the severity of a record. Values are ordered; gaps between the
// named levels are allowed and render as Level(N).
type Level int

const (
	LevelNotSet   Level = 0
	LevelTrace    Level = 5
	LevelDebug    Level = 10
	LevelInfo     Level = 20
	LevelWarn     Level = 30
	LevelError    Level = 40
	LevelCritical Level = 50

	LevelWarning = LevelWarn
	LevelFatal   = LevelCritical
)

func (l Level) String() string {
	switch l {
	case LevelNotSet:
		return "NOTSET"
	case LevelTrace:
		return "TRACE"
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARNING"
	case LevelError:
		return "ERROR"
	case LevelCritical:
		return "CRITICAL"
	default:
		return "Level(" + strconv.Itoa(int(l)) + ")"
	}
}

// Known reports whether l is one of the named levels.
func (l Level) Known() bool {
	switch l {
	case LevelNotSet, LevelTrace, LevelDebug, LevelInfo, LevelWarn, LevelError, LevelCritical:
		return true
	}
	return false
}

// ParseLevel accepts level names case-insensitively (WARN/WARNING,
// FATAL/CRITICAL, NOTSET/UNSET). Unknown names are a configuration error.
func ParseLevel(s string) (Level, error) {
	switch strings.ToUpper(strings.TrimSpace(s)) {
	case "NOTSET", "UNSET", "":
		return LevelNotSet, nil
	case "TRACE":
		return LevelTrace, nil
	case "DEBUG":
		return LevelDebug, nil
	case "INFO":
		return LevelInfo, nil
	case "WARN", "WARNING":
		return LevelWarn, nil
	case "ERROR":
		return LevelError, nil
	case "FATAL", "CRITICAL", "PANIC":
		return LevelCritical, nil
	}
	return LevelNotSet, configErrorf("unknown severity %q", s)
}

// FromSlog maps a slog level onto the nearest named Level.
func FromSlog(l slog.Level) Level {
	switch {
	case l < slog.LevelDebug:
		return LevelTrace
	case l < slog.LevelInfo:
		return LevelDebug
	case l < slog.LevelWarn:
		return LevelInfo
	case l < slog.LevelError:
		return LevelWarn
	case l < slog.LevelError+4:
		return LevelError
	default:
		return LevelCritical
	}
}

// ToSlog is the inverse of FromSlog for the named levels.
func (l Level) ToSlog() slog.Level {
	switch {
	case l <= LevelTrace:
		return slog.LevelDebug - 4
	case l <= LevelDebug:
		return slog.LevelDebug
	case l <= LevelInfo:
		return slog.LevelInfo
	case l <= LevelWarn:
		return slog.LevelWarn
	case l <= LevelError:
		return slog.LevelError
	default:
		return slog.LevelError + 4
	}
}

// FromZerolog maps zerolog levels. NoLevel and Disabled become LevelNotSet.
func FromZerolog(l zerolog.Level) Level {
	switch l {
	case zerolog.TraceLevel:
		return LevelTrace
	case zerolog.DebugLevel:
		return LevelDebug
	case zerolog.InfoLevel:
		return LevelInfo
	case zerolog.WarnLevel:
		return LevelWarn
	case zerolog.ErrorLevel:
		return LevelError
	case zerolog.FatalLevel, zerolog.PanicLevel:
		return LevelCritical
	default:
		return LevelNotSet
	}
}
