package cli

import (
	"context"
	"io"
	"os"

	"github.com/secmon-lab/recall/pkg/cli/config"
	"github.com/secmon-lab/recall/pkg/domain/interfaces"
	"github.com/secmon-lab/recall/pkg/usecase"
	"github.com/secmon-lab/recall/pkg/utils/errutil"
	"github.com/secmon-lab/recall/pkg/utils/logging"
	"github.com/secmon-lab/recall/pkg/utils/safe"
	"github.com/urfave/cli/v3"
)

// env is the state shared by every subcommand
type env struct {
	repoCfg config.Repository
	tuning  config.Tuning
	out     io.Writer
}

// open configures the repository and wires the use cases. The returned
// function closes the repository.
func (e *env) open(ctx context.Context) (*usecase.UseCases, func(), error) {
	opts, err := e.tuning.Configure()
	if err != nil {
		return nil, nil, err
	}

	repo, err := e.repoCfg.Configure(ctx)
	if err != nil {
		return nil, nil, err
	}

	return usecase.New(repo, opts...), func() { safe.Close(ctx, repo) }, nil
}

// openRepository configures the repository alone, for commands that bypass the use cases
func (e *env) openRepository(ctx context.Context) (interfaces.Repository, error) {
	return e.repoCfg.Configure(ctx)
}

func Run(ctx context.Context, args []string, version string) error {
	return run(ctx, args, version, os.Stdout)
}

func run(ctx context.Context, args []string, version string, out io.Writer) error {
	var loggerCfg config.Logger
	var closer func()
	e := &env{out: out}

	flags := loggerCfg.Flags()
	flags = append(flags, e.repoCfg.Flags()...)
	flags = append(flags, e.tuning.Flags()...)

	app := &cli.Command{
		Name:    "recall",
		Usage:   "Token-bounded context retrieval and assembly",
		Version: version,
		Flags:   flags,
		Writer:  out,
		Before: func(ctx context.Context, c *cli.Command) (context.Context, error) {
			f, err := loggerCfg.Configure()
			if err != nil {
				return ctx, err
			}
			closer = f

			logging.Default().Debug("Starting recall",
				"logger", &loggerCfg,
				"repository", &e.repoCfg,
				"tuning", &e.tuning,
			)
			return ctx, nil
		},
		After: func(ctx context.Context, c *cli.Command) error {
			if closer != nil {
				closer()
			}
			return nil
		},
		Commands: []*cli.Command{
			cmdIndex(e),
			cmdDelete(e),
			cmdReindex(e),
			cmdSearch(e),
			cmdSimilar(e),
			cmdBuild(e),
			cmdUsage(e),
			cmdWatch(e),
			cmdMigrate(),
		},
	}

	if err := app.Run(ctx, args); err != nil {
		return errutil.Handle(ctx, err, "failed to run recall")
	}

	return nil
}
