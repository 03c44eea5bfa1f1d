package cli

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"github.com/urfave/cli/v3"
	"gopkg.in/yaml.v3"
)

const (
	formatText = "text"
	formatYAML = "yaml"
)

// builtView is the YAML rendering of a built context
type builtView struct {
	Budget           int            `yaml:"budget"`
	TotalTokens      int            `yaml:"total_tokens"`
	RenderedTokens   int            `yaml:"rendered_tokens"`
	Utilization      float64        `yaml:"utilization"`
	OverBudget       bool           `yaml:"over_budget"`
	TypeDistribution map[string]int `yaml:"type_distribution"`
	Included         []itemView     `yaml:"included"`
	Excluded         []itemView     `yaml:"excluded,omitempty"`
	Formatted        string         `yaml:"formatted"`
}

type itemView struct {
	ID        string  `yaml:"id"`
	Type      string  `yaml:"type"`
	Title     string  `yaml:"title,omitempty"`
	Tokens    int     `yaml:"tokens"`
	Relevance float64 `yaml:"relevance"`
	Required  bool    `yaml:"required,omitempty"`
	Truncated bool    `yaml:"truncated,omitempty"`
}

func newBuiltView(built *model.BuiltContext) *builtView {
	view := &builtView{
		Budget:           built.Budget,
		TotalTokens:      built.TotalTokens,
		RenderedTokens:   usecase.FormattedTokens(built),
		Utilization:      built.Utilization,
		OverBudget:       built.OverBudget,
		TypeDistribution: make(map[string]int, len(built.TypeDistribution)),
		Formatted:        built.Formatted,
	}
	for t, n := range built.TypeDistribution {
		view.TypeDistribution[t.String()] = n
	}
	for _, item := range built.Included {
		view.Included = append(view.Included, newItemView(item))
	}
	for _, item := range built.Excluded {
		view.Excluded = append(view.Excluded, newItemView(item))
	}
	return view
}

func newItemView(item *model.ContextItem) itemView {
	return itemView{
		ID:        item.ID,
		Type:      item.Type.String(),
		Title:     item.Title,
		Tokens:    item.TokenCount,
		Relevance: item.RelevanceScore,
		Required:  item.Metadata.IsRequired,
		Truncated: item.Truncated,
	}
}

func cmdBuild(e *env) *cli.Command {
	var (
		sessionID    string
		budget       int
		modelName    string
		systemPrompt string
		systemFile   string
		summary      string
		messages     []string
		activeIDs    []string
		preferred    []string
		topics       []string
		format       string
	)

	return &cli.Command{
		Name:      "build",
		Aliases:   []string{"b"},
		Usage:     "Assemble a token-bounded context for a query",
		ArgsUsage: "QUERY...",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "session",
				Usage:       "Session ID; files included in the context are recorded as accessed in it",
				Sources:     cli.EnvVars("RECALL_SESSION_ID"),
				Destination: &sessionID,
			},
			&cli.IntFlag{
				Name:        "budget",
				Usage:       "Token budget",
				Destination: &budget,
			},
			&cli.StringFlag{
				Name:        "model",
				Usage:       "Derive the token budget from a model name",
				Destination: &modelName,
			},
			&cli.StringFlag{
				Name:        "system",
				Usage:       "System prompt, always included",
				Destination: &systemPrompt,
			},
			&cli.StringFlag{
				Name:        "system-file",
				Usage:       "Read the system prompt from a file",
				Destination: &systemFile,
			},
			&cli.StringFlag{
				Name:        "summary",
				Usage:       "Summary of the previous session, always included and truncatable",
				Destination: &summary,
			},
			&cli.StringSliceFlag{
				Name:        "message",
				Usage:       "Recent conversation message, oldest first (repeatable)",
				Destination: &messages,
			},
			&cli.StringSliceFlag{
				Name:        "active",
				Usage:       "ID of an item active in the session (repeatable)",
				Destination: &activeIDs,
			},
			&cli.StringSliceFlag{
				Name:        "prefer",
				Usage:       "Preferred item type (repeatable)",
				Destination: &preferred,
			},
			&cli.StringSliceFlag{
				Name:        "topic",
				Usage:       "Predicted topic (repeatable)",
				Destination: &topics,
			},
			&cli.StringFlag{
				Name:        "format",
				Usage:       "Output format (text or yaml)",
				Value:       formatText,
				Destination: &format,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if format != formatText && format != formatYAML {
				return goerr.New("unsupported output format", goerr.V("format", format))
			}
			if budget <= 0 && modelName == "" {
				return goerr.New("either --budget or --model is required")
			}
			if systemFile != "" {
				// #nosec G304 - path is expected to be provided by CLI argument
				data, err := os.ReadFile(systemFile)
				if err != nil {
					return goerr.Wrap(err, "failed to read system prompt", goerr.V("path", systemFile))
				}
				systemPrompt = string(data)
			}

			var preferredTypes []types.ItemType
			for _, p := range preferred {
				t := types.ItemType(p)
				if !t.IsValid() {
					return goerr.New("invalid item type", goerr.V("type", p))
				}
				preferredTypes = append(preferredTypes, t)
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			req := usecase.BuildRequest{
				Query:               strings.Join(c.Args().Slice(), " "),
				SessionID:           sessionID,
				SystemPrompt:        systemPrompt,
				PriorSessionSummary: summary,
				RecentItems:         messageItems(messages, time.Now()),
				ActiveItemIDs:       activeIDs,
				PreferredTypes:      preferredTypes,
				PredictedTopics:     topics,
				Budget:              budget,
			}

			var built *model.BuiltContext
			if budget > 0 {
				built, err = uc.Context.Build(ctx, req)
			} else {
				built, err = uc.Context.BuildForModel(ctx, req, modelName)
			}
			if err != nil {
				return err
			}

			if format == formatYAML {
				data, err := yaml.Marshal(newBuiltView(built))
				if err != nil {
					return goerr.Wrap(err, "failed to marshal context")
				}
				safe.Write(ctx, e.out, data)
				return nil
			}

			fmt.Fprintln(e.out, built.Formatted)
			fmt.Fprintln(e.out, dimColor.Sprintf("\n%d/%d tokens (%.1f%%), %d included, %d excluded",
				built.TotalTokens, built.Budget, built.Utilization, len(built.Included), len(built.Excluded)))
			if built.OverBudget {
				fmt.Fprintln(e.out, scoreColor.Sprint("required content exceeds the budget"))
			}
			return nil
		},
	}
}

// messageItems turns recent messages into context items. Later messages are
// treated as more recent, one minute apart.
func messageItems(messages []string, now time.Time) []*model.ContextItem {
	items := make([]*model.ContextItem, 0, len(messages))
	for i, msg := range messages {
		items = append(items, &model.ContextItem{
			ID:           fmt.Sprintf("message-%d", i+1),
			Type:         types.ItemTypeMessage,
			Content:      msg,
			LastAccessed: now.Add(-time.Duration(len(messages)-1-i) * time.Minute),
			Metadata: model.ContextItemMetadata{
				CanTruncate: types.ItemTypeMessage.CanTruncate(),
			},
		})
	}
	return items
}
