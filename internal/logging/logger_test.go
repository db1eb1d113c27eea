package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"

	"github.com/rcliao/memcompose/internal/logging"
)

func TestParseLevel(t *testing.T) {
	lvl, ok := logging.ParseLevel("WARNING")
	gt.True(t, ok)
	gt.Equal(t, lvl, slog.LevelWarn)

	lvl, ok = logging.ParseLevel("verbose")
	gt.False(t, ok)
	gt.Equal(t, lvl, slog.LevelInfo)
}

func TestFromContext(t *testing.T) {
	var buf bytes.Buffer
	l := logging.New("debug", &buf)
	ctx := logging.With(context.Background(), l)

	logging.From(ctx).Info("retrieval degraded", "owner", "alice")
	gt.S(t, buf.String()).Contains("retrieval degraded")

	gt.Equal(t, logging.From(context.Background()), logging.Default())
}
