package observability

import (
	"io"
	"log/slog"
	"os"

	"gopkg.in/natefinch/lumberjack.v2"
)

// NewLogger writes JSON in production and text elsewhere. When file is set the
// output is also rotated through lumberjack.
func NewLogger(env, file string) *slog.Logger {
	return slog.New(newHandler(env, writer(file)))
}

func newHandler(env string, w io.Writer) slog.Handler {
	if env == "prod" || env == "production" {
		return slog.NewJSONHandler(w, nil)
	}
	return slog.NewTextHandler(w, nil)
}

func writer(file string) io.Writer {
	if file == "" {
		return os.Stdout
	}
	return io.MultiWriter(os.Stdout, &lumberjack.Logger{
		Filename:   file,
		MaxSize:    100, // MB
		MaxBackups: 5,
		MaxAge:     28, // days
		Compress:   true,
	})
}
