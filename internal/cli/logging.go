package cli

import (
	"io"
	"log/slog"

	"github.com/roach88/thingdir/internal/config"
)

// newLogger builds the process logger from the log configuration. The
// --verbose flag forces debug level.
func newLogger(w io.Writer, lc config.LogConfig, verbose bool) (*slog.Logger, error) {
	level, err := lc.SlogLevel()
	if err != nil {
		return nil, err
	}
	if verbose {
		level = slog.LevelDebug
	}
	hopts := &slog.HandlerOptions{Level: level}
	var h slog.Handler = slog.NewTextHandler(w, hopts)
	if lc.Format == "json" {
		h = slog.NewJSONHandler(w, hopts)
	}
	return slog.New(h), nil
}
