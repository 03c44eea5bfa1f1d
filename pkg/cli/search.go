package cli

import (
	"context"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdSearch(e *env) *cli.Command {
	var (
		limit          int
		minSimilarity  float64
		sources        []string
		conversationID string
		topics         []string
		hybrid         bool
	)

	return &cli.Command{
		Name:      "search",
		Aliases:   []string{"s"},
		Usage:     "Semantic search over stored documents",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "Maximum number of results (0 uses the configured default)",
				Destination: &limit,
			},
			&cli.Float64Flag{
				Name:        "min-similarity",
				Usage:       "Minimum cosine similarity (defaults to the tuning value)",
				Destination: &minSimilarity,
			},
			&cli.StringSliceFlag{
				Name:        "source",
				Usage:       "Restrict results to a source (repeatable)",
				Destination: &sources,
			},
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Restrict results to a conversation",
				Destination: &conversationID,
			},
			&cli.StringSliceFlag{
				Name:        "topic",
				Usage:       "Predicted topic that boosts matching results (repeatable)",
				Destination: &topics,
			},
			&cli.BoolFlag{
				Name:        "hybrid",
				Usage:       "Combine semantic similarity with keyword matching",
				Destination: &hybrid,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			srcs, err := parseSources(sources)
			if err != nil {
				return err
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			if !c.IsSet("min-similarity") {
				minSimilarity = uc.Search.Config().MinSimilarity
			}

			req := usecase.SearchRequest{
				Query:           strings.Join(c.Args().Slice(), " "),
				Sources:         srcs,
				ConversationID:  conversationID,
				Limit:           limit,
				MinSimilarity:   minSimilarity,
				PredictedTopics: topics,
			}

			var results []*model.SearchResult
			if hybrid {
				results, err = uc.Search.HybridSearch(ctx, req)
			} else {
				results, err = uc.Search.Search(ctx, req)
			}
			if err != nil {
				return err
			}

			printSearchResults(e.out, results)
			return nil
		},
	}
}

func cmdSimilar(e *env) *cli.Command {
	var limit int

	return &cli.Command{
		Name:      "similar",
		Usage:     "List documents similar to a stored document",
		ArgsUsage: "ID",
		Flags: []cli.Flag{
			&cli.IntFlag{
				Name:        "limit",
				Aliases:     []string{"n"},
				Usage:       "Maximum number of results (0 uses the configured default)",
				Destination: &limit,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if c.Args().Len() != 1 {
				return goerr.New("exactly one document ID is required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			results, err := uc.Search.FindSimilar(ctx, model.DocumentID(c.Args().First()), limit)
			if err != nil {
				return err
			}

			printSearchResults(e.out, results)
			return nil
		},
	}
}

func parseSources(values []string) ([]types.Source, error) {
	var sources []types.Source
	for _, v := range values {
		src, err := types.ParseSource(v)
		if err != nil {
			return nil, goerr.Wrap(usecase.ErrInvalidSource, err.Error())
		}
		sources = append(sources, src)
	}
	return sources, nil
}
