package safe_test

import (
	"bytes"
	"context"
	"errors"
	"log/slog"
	"testing"

	"github.com/m-mizutani/gt"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
)

type failing struct{}

func (failing) Close() error                { return errors.New("close error") }
func (failing) Write(p []byte) (int, error) { return 0, errors.New("write error") }

func TestCloseAndWrite(t *testing.T) {
	var logs bytes.Buffer
	ctx := logging.With(context.Background(), slog.New(slog.NewTextHandler(&logs, nil)))

	safe.Close(ctx, nil)
	safe.Write(ctx, nil, []byte("x"))
	gt.Equal(t, logs.Len(), 0)

	var out bytes.Buffer
	safe.Write(ctx, &out, []byte("hello"))
	gt.Equal(t, out.String(), "hello")

	safe.Close(ctx, failing{})
	gt.String(t, logs.String()).Contains("close error")
	gt.String(t, logs.String()).Contains("safe_test.failing")

	safe.Write(ctx, failing{}, []byte("hello"))
	gt.String(t, logs.String()).Contains("write error")
}
