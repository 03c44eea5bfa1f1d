package errutil

import (
	"context"
	"errors"
	"log/slog"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/logging"
)

// Handle records err at the command boundary and hands it back to the caller.
// Values collected along a goerr chain are flattened into a "values" group.
func Handle(ctx context.Context, err error, msg string) error {
	if err == nil {
		return nil
	}

	attrs := []any{slog.String("error", err.Error())}

	var ge *goerr.Error
	if errors.As(err, &ge) {
		values := ge.Values()
		group := make([]any, 0, len(values))
		for k, v := range values {
			group = append(group, slog.Any(k, v))
		}
		if len(group) > 0 {
			attrs = append(attrs, slog.Group("values", group...))
		}
		attrs = append(attrs, slog.Any("stack", ge.Stacks()))
	}

	logging.From(ctx).Error(msg, attrs...)
	return err
}
