package logger

import (
	"context"
	"io"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// log is the process-wide logger. Request handlers derive scoped copies.
var log = zerolog.New(os.Stdout).With().Timestamp().Logger()

type ctxKey struct{}

// Init initializes the global logger
func Init(env string, logLevel string) {
	zerolog.TimeFieldFormat = time.RFC3339

	var output io.Writer = os.Stdout
	if env == "development" || env == "dev" || env == "" {
		output = zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: "15:04:05",
		}
	}

	level, err := zerolog.ParseLevel(strings.ToLower(logLevel))
	if err != nil || logLevel == "" {
		level = zerolog.InfoLevel
	}
	if logLevel == "warning" {
		level = zerolog.WarnLevel
	}
	zerolog.SetGlobalLevel(level)

	log = zerolog.New(output).
		With().
		Timestamp().
		Caller().
		Str("service", "storefront-core").
		Logger()
}

// SetOutput redirects the global logger, mainly for tests.
func SetOutput(w io.Writer) {
	log = log.Output(w)
}

func Get() *zerolog.Logger {
	return &log
}

// WithContext returns the request-scoped logger, or the global one.
func WithContext(ctx context.Context) *zerolog.Logger {
	if l, ok := ctx.Value(ctxKey{}).(*zerolog.Logger); ok {
		return l
	}
	return &log
}

func NewContext(ctx context.Context, l *zerolog.Logger) context.Context {
	return context.WithValue(ctx, ctxKey{}, l)
}

func WithRequestID(requestID string) zerolog.Logger {
	return log.With().Str("request_id", requestID).Logger()
}

func WithUserID(l zerolog.Logger, userID string) zerolog.Logger {
	return l.With().Str("user_id", userID).Logger()
}

// --- Convenience Methods ---

func Debug() *zerolog.Event {
	return log.Debug()
}

func Info() *zerolog.Event {
	return log.Info()
}

func Warn() *zerolog.Event {
	return log.Warn()
}

func Error() *zerolog.Event {
	return log.Error()
}

func Fatal() *zerolog.Event {
	return log.Fatal()
}

func ServiceStart(name, version, port string) {
	log.Info().
		Str("version", version).
		Str("port", port).
		Msgf("%s started", name)
}

func ServiceStop(name string) {
	log.Info().Msgf("%s stopped", name)
}
