package cli

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

func cmdUsage(e *env) *cli.Command {
	return &cli.Command{
		Name:    "usage",
		Aliases: []string{"u"},
		Usage:   "Inspect and maintain the cross-session usage index",
		Commands: []*cli.Command{
			cmdUsageAdd(e),
			cmdUsageAccess(e),
			cmdUsageRelevant(e),
			cmdUsageCoAccessed(e),
			cmdUsagePrune(e),
			cmdUsageRebuild(e),
			cmdUsageStats(e),
			cmdUsageLog(e),
		},
	}
}

func cmdUsageAdd(e *env) *cli.Command {
	var conversationID string

	return &cli.Command{
		Name:      "add",
		Usage:     "Index files as seen in a conversation",
		ArgsUsage: "FILE...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Conversation the files were seen in",
				Sources:     cli.EnvVars("RECALL_CONVERSATION_ID"),
				Destination: &conversationID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() == 0 {
				return goerr.New("at least one file is required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			for _, path := range c.Args().Slice() {
				entry, err := uc.Usage.IndexFile(ctx, path, conversationID)
				if err != nil {
					return err
				}
				fmt.Fprintf(e.out, "%s\taccessed %d times\n", idColor.Sprint(entry.ID), entry.AccessCount)
			}
			return nil
		},
	}
}

func cmdUsageAccess(e *env) *cli.Command {
	var (
		conversationID string
		accessContext  string
	)

	return &cli.Command{
		Name:      "access",
		Usage:     "Record an access to an indexed entry",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Conversation the access happened in",
				Sources:     cli.EnvVars("RECALL_CONVERSATION_ID"),
				Destination: &conversationID,
			},
			&cli.StringFlag{
				Name:        "context",
				Usage:       "Free-form note stored with the access log entry",
				Destination: &accessContext,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one entry ID is required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			entry, err := uc.Usage.RecordAccess(ctx, c.Args().First(), conversationID, time.Now(), accessContext)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "%s\taccessed %d times in %d conversations\n",
				idColor.Sprint(entry.ID), entry.AccessCount, len(entry.ConversationIDs))
			return nil
		},
	}
}

func cmdUsageRelevant(e *env) *cli.Command {
	var (
		limit         int
		exclude       string
		minSimilarity float64
	)

	return &cli.Command{
		Name:      "relevant",
		Usage:     "Find entries relevant to a query",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Value:       10,
				Destination: &limit,
			},
			&cli.StringFlag{
				Name:        "exclude-conversation",
				Usage:       "Skip entries seen only in this conversation",
				Destination: &exclude,
			},
			&cli.Float64Flag{
				Name:        "min-similarity",
				Value:       0.3,
				Destination: &minSimilarity,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			query := strings.Join(c.Args().Slice(), " ")
			if strings.TrimSpace(query) == "" {
				return goerr.New("query is required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			matches, err := uc.Usage.FindRelevant(ctx, query, limit, exclude, minSimilarity)
			if err != nil {
				return err
			}
			printUsageMatches(e.out, matches)
			return nil
		},
	}
}

func cmdUsageCoAccessed(e *env) *cli.Command {
	var limit int

	return &cli.Command{
		Name:      "co-accessed",
		Usage:     "List entries used in the same conversations as an entry",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Value:       10,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one entry ID is required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			related, err := uc.Usage.CoAccessed(ctx, c.Args().First(), limit)
			if err != nil {
				return err
			}
			if len(related) == 0 {
				fmt.Fprintln(e.out, dimColor.Sprint("no results"))
				return nil
			}
			for _, r := range related {
				fmt.Fprintf(e.out, "%s %s\t%d shared conversations\n",
					scoreColor.Sprintf("%.3f", r.Score), idColor.Sprint(r.EntryID), r.Count)
			}
			return nil
		},
	}
}

func cmdUsagePrune(e *env) *cli.Command {
	var keep int

	return &cli.Command{
		Name:  "prune",
		Usage: "Keep only the most recently accessed entries",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "keep",
				Usage:       "Number of entries to keep",
				Value:       1000,
				Destination: &keep,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			n, err := uc.Usage.Prune(ctx, keep)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "pruned %d entries\n", n)
			return nil
		},
	}
}

func cmdUsageRebuild(e *env) *cli.Command {
	return &cli.Command{
		Name:  "rebuild",
		Usage: "Re-embed every usage entry",
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			n, err := uc.Usage.Rebuild(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "rebuilt %d entries\n", n)
			return nil
		},
	}
}

func cmdUsageStats(e *env) *cli.Command {
	return &cli.Command{
		Name:  "stats",
		Usage: "Show the size of the usage index",
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			stats, err := uc.Usage.Stats(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "entries: %d\naccess logs: %d\n", stats.Entries, stats.AccessLogs)
			return nil
		},
	}
}

func cmdUsageLog(e *env) *cli.Command {
	var limit int

	return &cli.Command{
		Name:  "log",
		Usage: "Show the newest access log entries",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Value:       20,
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			repo, err := e.openRepository(ctx)
			if err != nil {
				return err
			}
			defer safe.Close(ctx, repo)

			logs, err := repo.Usage().ListAccessLogs(ctx, limit)
			if err != nil {
				return goerr.Wrap(err, "failed to list access logs")
			}
			for _, l := range logs {
				fmt.Fprintf(e.out, "%s %s %s %s\n",
					dimColor.Sprint(l.Timestamp.Format(time.RFC3339)),
					idColor.Sprint(l.EntryID),
					sourceColor.Sprint(l.ConversationID),
					l.Context)
			}
			return nil
		},
	}
}
