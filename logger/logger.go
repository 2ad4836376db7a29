package logger

import (
	"fmt"
	"io"
	"os"
	"runtime/debug"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"
	"github.com/rs/zerolog/pkgerrors"
)

type Options struct {
	// Level is a zerolog level name ("debug", "info", ...) or its number.
	Level string
	// Console switches from JSON lines to zerolog's human-readable writer.
	Console bool
	// Dir, when set, additionally writes JSON logs to a daily rotating file
	// in that directory.
	Dir string
	// Out defaults to os.Stdout.
	Out io.Writer
}

// ParseLevel accepts a level name such as "debug" or zerolog's numeric
// level. An empty string means info.
func ParseLevel(level string) (zerolog.Level, error) {
	level = strings.TrimSpace(level)
	if level == "" {
		return zerolog.InfoLevel, nil
	}
	if n, err := strconv.Atoi(level); err == nil {
		if n < int(zerolog.TraceLevel) || n > int(zerolog.Disabled) {
			return zerolog.NoLevel, fmt.Errorf("log level %d out of range", n)
		}
		return zerolog.Level(n), nil
	}
	parsed, err := zerolog.ParseLevel(strings.ToLower(level))
	if err != nil {
		return zerolog.NoLevel, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	return parsed, nil
}

// New builds the process logger. The returned close function releases the
// log file when Dir is set and is a no-op otherwise.
func New(opts Options) (zerolog.Logger, func() error, error) {
	zerolog.ErrorStackMarshaler = pkgerrors.MarshalStack
	zerolog.TimeFieldFormat = time.RFC3339Nano

	level, err := ParseLevel(opts.Level)
	if err != nil {
		return zerolog.Nop(), nil, err
	}

	out := opts.Out
	if out == nil {
		out = os.Stdout
	}
	if opts.Console {
		out = zerolog.ConsoleWriter{Out: out, TimeFormat: time.RFC3339}
	}

	closeFn := func() error { return nil }
	if opts.Dir != "" {
		fileWriter, err := NewDailyRotatingWriter(opts.Dir, "chatrelay-", ".log")
		if err != nil {
			return zerolog.Nop(), nil, fmt.Errorf("failed to open log directory: %w", err)
		}
		out = zerolog.MultiLevelWriter(out, fileWriter)
		closeFn = fileWriter.Close
	}

	gitRevision, goVersion := buildInfo()
	logger := zerolog.New(out).
		Level(level).
		With().
		Timestamp().
		Str("git_revision", gitRevision).
		Str("go_version", goVersion).
		Logger()

	return logger, closeFn, nil
}

// Init builds the logger and installs it as both the global logger and the
// fallback for contexts that carry none.
func Init(opts Options) (func() error, error) {
	logger, closeFn, err := New(opts)
	if err != nil {
		return nil, err
	}
	log.Logger = logger
	zerolog.DefaultContextLogger = &log.Logger
	return closeFn, nil
}

func buildInfo() (gitRevision, goVersion string) {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "", ""
	}
	for _, setting := range info.Settings {
		if setting.Key == "vcs.revision" {
			gitRevision = setting.Value
			break
		}
	}
	return gitRevision, info.GoVersion
}
