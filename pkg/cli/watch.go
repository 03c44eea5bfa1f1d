package cli

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/service/watcher"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdWatch(e *env) *cli.Command {
	var (
		conversationID string
		extensions     []string
		skipInitial    bool
	)

	return &cli.Command{
		Name:      "watch",
		Aliases:   []string{"w"},
		Usage:     "Feed files under a directory into the usage index as they change",
		ArgsUsage: "DIR",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Conversation the files are recorded in",
				Sources:     cli.EnvVars("RECALL_CONVERSATION_ID"),
				Destination: &conversationID,
			},
			&cli.StringSliceFlag{
				Name:        "extension",
				Usage:       "File extension to watch (repeatable, default: common text and source files)",
				Value:       watcher.DefaultExtensions,
				Destination: &extensions,
			},
			&cli.BoolFlag{
				Name:        "skip-initial",
				Usage:       "Do not index files that already exist",
				Destination: &skipInitial,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one directory is required")
			}
			dir := c.Args().First()

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			w, err := watcher.New(watcher.WithExtensions(extensions...))
			if err != nil {
				return err
			}
			defer safe.Close(ctx, w)

			handler := usageIndexer(uc, conversationID, e.out)
			if !skipInitial {
				if err := w.Walk(ctx, dir, handler); err != nil {
					return err
				}
			}

			ctx, stop := signal.NotifyContext(ctx, os.Interrupt, syscall.SIGTERM)
			defer stop()

			return w.Run(ctx, dir, handler)
		},
	}
}

// usageIndexer records created and modified files in the usage index.
// Removed files keep their usage history.
func usageIndexer(uc *usecase.UseCases, conversationID string, out io.Writer) watcher.Handler {
	return func(ctx context.Context, ev watcher.Event) error {
		if ev.Op == watcher.OpRemoved {
			logging.From(ctx).Debug("file removed", "path", ev.Path)
			return nil
		}

		entry, err := uc.Usage.IndexFile(ctx, ev.Path, conversationID)
		if err != nil {
			return err
		}
		fmt.Fprintf(out, "%s %s\taccessed %d times\n", sourceColor.Sprint(ev.Op), idColor.Sprint(entry.ID), entry.AccessCount)
		return nil
	}
}
