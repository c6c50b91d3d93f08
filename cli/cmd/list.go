package cmd

import (
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/cli/query"
	"github.com/waivern/orchestrator/cli/render"
	"github.com/waivern/orchestrator/store"
)

// listWarningThreshold is the number of items above which we warn about using --limit.
const listWarningThreshold = 100

// isStderrTTY returns true if stderr is a TTY.
func isStderrTTY() bool {
	info, err := os.Stderr.Stat()
	if err != nil {
		return false
	}
	return (info.Mode() & os.ModeCharDevice) != 0
}

// ListCommand returns the list command with subcommands.
func ListCommand(st func() (store.ArtifactStore, error)) *cli.Command {
	return &cli.Command{
		Name:  "list",
		Usage: "List entities (runs)",
		Subcommands: []*cli.Command{
			listRunsCommand(st),
		},
	}
}

func listRunsCommand(openStore func() (store.ArtifactStore, error)) *cli.Command {
	return &cli.Command{
		Name:  "runs",
		Usage: "List runs",
		Flags: append(ReadOnlyFlags(),
			&cli.StringFlag{
				Name:  "status",
				Usage: "Filter by status: running, success, partial, failed, timeout",
			},
			&cli.IntFlag{
				Name:  "limit",
				Usage: "Maximum number of runs to return (0 = no limit)",
				Value: 0,
			},
		),
		Action: listRunsAction(openStore),
	}
}

func listRunsAction(openStore func() (store.ArtifactStore, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		if c.Bool("tui") {
			return cli.Exit("--tui is not supported for list commands", 1)
		}

		st, err := openStore()
		if err != nil {
			return cli.Exit(fmt.Sprintf("open store: %v", err), exitConfigError)
		}
		defer func() { _ = st.Close() }()

		opts := query.ListRunsOptions{
			Status: c.String("status"),
			Limit:  c.Int("limit"),
		}

		results, err := query.ListRuns(c.Context, st, opts)
		if err != nil {
			return cli.Exit(fmt.Sprintf("list runs: %v", err), exitConfigError)
		}

		// Warn if output is large and --limit was not specified (TTY only to avoid noise in pipelines)
		if len(results) > listWarningThreshold && opts.Limit == 0 && isStderrTTY() {
			fmt.Fprintf(os.Stderr, "Warning: returning %d results. Consider using --limit to reduce output.\n\n", len(results))
		}

		return r.Render(results)
	}
}
