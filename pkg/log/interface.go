// Package log is the structured logging layer shared by the search, tracking
// and dataset packages. Library code depends only on the Logger interface;
// the process default is a zerolog JSON logger installed by SetupLogger, and
// tests capture output with TestLogger.
//
//	logger := log.GetLogger().With(log.ComponentKey, "modelselection")
//	logger.Info("Candidate evaluated",
//	    log.CandidateKey, 1,
//	    log.ScoreKey, 0.81,
//	)
package log

import (
	"context"
)

// Logger mirrors the leveled methods of log/slog. Fields are alternating
// key/value pairs. Error additionally accepts a lone leading error value,
// which is logged under ErrAttrKey with its stack trace.
type Logger interface {
	Debug(msg string, fields ...any)
	Info(msg string, fields ...any)
	Warn(msg string, fields ...any)
	Error(msg string, fields ...any)

	// With returns a logger that adds fields to every entry, e.g. the run ID
	// once a tracking run has started.
	With(fields ...any) Logger

	// Enabled reports whether entries at level are emitted. The search checks
	// it before formatting per-fold progress lines.
	Enabled(ctx context.Context, level Level) bool
}

// Level uses the slog.Level values.
type Level int

const (
	LevelDebug Level = -4
	LevelInfo  Level = 0
	LevelWarn  Level = 4
	LevelError Level = 8
)

func (l Level) String() string {
	switch l {
	case LevelDebug:
		return "DEBUG"
	case LevelInfo:
		return "INFO"
	case LevelWarn:
		return "WARN"
	case LevelError:
		return "ERROR"
	default:
		return "UNKNOWN"
	}
}
