package errutil_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"strings"
	"testing"

	"github.com/m-mizutani/goerr/v2"
	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

func TestHandle(t *testing.T) {
	var buf bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewJSONHandler(&buf, nil)))

	t.Run("nil passes through", func(t *testing.T) {
		gt.NoError(t, errutil.Handle(ctx, nil, "unused"))
		gt.Equal(t, buf.Len(), 0)
	})

	t.Run("goerr values are logged", func(t *testing.T) {
		buf.Reset()
		src := goerr.New("boom", goerr.V("document_id", "doc-1"))
		err := errutil.Handle(ctx, src, "command failed")
		gt.Value(t, errors.Is(err, src)).Equal(true)
		gt.String(t, buf.String()).Contains("command failed")
		gt.String(t, buf.String()).Contains(`"document_id":"doc-1"`)
	})

	t.Run("plain error", func(t *testing.T) {
		buf.Reset()
		err := errutil.Handle(ctx, errors.New("plain"), "command failed")
		gt.Error(t, err)
		gt.String(t, buf.String()).Contains("plain")
		gt.Value(t, strings.Contains(buf.String(), "stack")).Equal(false)
	})
}
