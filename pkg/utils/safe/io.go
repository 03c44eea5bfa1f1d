package safe

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// Close releases closer and logs a failure instead of returning it. Nil is ignored.
func Close(ctx context.Context, closer io.Closer) {
	if closer == nil {
		return
	}
	if err := closer.Close(); err != nil {
		logging.From(ctx).Warn("close failed",
			slog.String("type", typeName(closer)),
			slog.Any("error", err))
	}
}

// Write sends data to w for command output; a failed write is logged, not returned.
func Write(ctx context.Context, w io.Writer, data []byte) {
	if w == nil || len(data) == 0 {
		return
	}
	if n, err := w.Write(data); err != nil {
		logging.From(ctx).Warn("write failed",
			slog.Int("written", n),
			slog.Int("size", len(data)),
			slog.Any("error", err))
	}
}

func typeName(v any) string {
	return fmt.Sprintf("%T", v)
}
