package logging_test

import (
	"bytes"
	"context"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

func TestFromFallsBackToDefault(t *testing.T) {
	var buf bytes.Buffer
	logger := slog.New(slog.NewTextHandler(&buf, nil))
	logging.SetDefault(logger)

	logging.From(context.Background()).Info("hello")
	gt.String(t, buf.String()).Contains("hello")
}

func TestWithOverridesDefault(t *testing.T) {
	var defaultBuf, ctxBuf bytes.Buffer
	logging.SetDefault(slog.New(slog.NewTextHandler(&defaultBuf, nil)))

	ctx := logging.With(context.Background(), slog.New(slog.NewTextHandler(&ctxBuf, nil)))
	logging.From(ctx).Info("scoped")

	gt.String(t, ctxBuf.String()).Contains("scoped")
	gt.Value(t, defaultBuf.Len()).Equal(0)
}
