package cli

import (
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/m-mizutani/goerr/v2"
	"github.com/secmon-lab/recall/pkg/domain/model"
	"github.com/secmon-lab/recall/pkg/domain/types"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/urfave/cli/v3"
)

func cmdIndex(e *env) *cli.Command {
	var (
		id             string
		source         string
		conversationID string
		sessionID      string
		title          string
		tags           []string
		file           string
		protected      bool
	)

	return &cli.Command{
		Name:      "index",
		Aliases:   []string{"i"},
		Usage:     "Store content in the vector store",
		ArgsUsage: "[TEXT...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "id",
				Usage:       "Document ID (generated when omitted)",
				Destination: &id,
			},
			&cli.StringFlag{
				Name:        "source",
				Aliases:     []string{"s"},
				Usage:       "Content source (message, theme, note, file, code, search_result, task, summary)",
				Value:       string(types.SourceNote),
				Destination: &source,
			},
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Conversation ID the content belongs to",
				Sources:     cli.EnvVars("RECALL_CONVERSATION_ID"),
				Destination: &conversationID,
			},
			&cli.StringFlag{
				Name:        "session",
				Usage:       "Session ID the content belongs to",
				Destination: &sessionID,
			},
			&cli.StringFlag{
				Name:        "title",
				Usage:       "Document title",
				Destination: &title,
			},
			&cli.StringSliceFlag{
				Name:        "tag",
				Usage:       "Tag attached to the document (repeatable)",
				Destination: &tags,
			},
			&cli.StringFlag{
				Name:        "file",
				Aliases:     []string{"f"},
				Usage:       "Read content from a file instead of arguments",
				Destination: &file,
			},
			&cli.BoolFlag{
				Name:        "protected",
				Usage:       "Mark the document as protected",
				Destination: &protected,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			content := strings.Join(c.Args().Slice(), " ")
			if file != "" {
				// #nosec G304 - path is expected to be provided by CLI argument
				data, err := os.ReadFile(file)
				if err != nil {
					return goerr.Wrap(err, "failed to read content file", goerr.V("path", file))
				}
				content = string(data)
			}

			src, err := types.ParseSource(source)
			if err != nil {
				return goerr.Wrap(usecase.ErrInvalidSource, err.Error())
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			docs, err := uc.Search.Index(ctx, usecase.IndexRequest{
				ID:      model.DocumentID(id),
				Content: content,
				Source:  src,
				Metadata: model.DocumentMetadata{
					ConversationID: conversationID,
					SessionID:      sessionID,
					Title:          title,
					Tags:           tags,
					IsProtected:    protected,
				},
			})
			if err != nil {
				return err
			}

			for _, doc := range docs {
				fmt.Fprintf(e.out, "%s\t%s\tchunk %d/%d\n",
					doc.ID, doc.Source, doc.Metadata.ChunkIndex+1, doc.Metadata.TotalChunks)
			}
			return nil
		},
	}
}

func cmdDelete(e *env) *cli.Command {
	var conversationID string

	return &cli.Command{
		Name:      "delete",
		Usage:     "Remove documents by ID, or every document of a conversation",
		ArgsUsage: "[ID...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "conversation",
				Usage:       "Remove every document of this conversation",
				Destination: &conversationID,
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			if conversationID == "" && c.Args().Len() == 0 {
				return goerr.New("document IDs or --conversation are required")
			}

			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			var total int
			if conversationID != "" {
				n, err := uc.Search.DeleteConversation(ctx, conversationID)
				if err != nil {
					return err
				}
				total += n
			}
			for _, id := range c.Args().Slice() {
				n, err := uc.Search.Delete(ctx, model.DocumentID(id))
				if err != nil {
					return err
				}
				total += n
			}

			fmt.Fprintf(e.out, "deleted %d documents\n", total)
			return nil
		},
	}
}

func cmdReindex(e *env) *cli.Command {
	return &cli.Command{
		Name:  "reindex",
		Usage: "Re-embed every stored document",
		Action: func(ctx context.Context, c *cli.Command) error {
			uc, closeRepo, err := e.open(ctx)
			if err != nil {
				return err
			}
			defer closeRepo()

			n, err := uc.Search.Reindex(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(e.out, "reindexed %d documents\n", n)
			return nil
		},
	}
}
