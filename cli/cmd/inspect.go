package cmd

import (
	"fmt"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/cli/query"
	"github.com/waivern/orchestrator/cli/render"
	"github.com/waivern/orchestrator/store"
)

// InspectCommand returns the inspect command with subcommands.
func InspectCommand(st func() (store.ArtifactStore, error)) *cli.Command {
	return &cli.Command{
		Name:  "inspect",
		Usage: "Inspect a single entity (run)",
		Subcommands: []*cli.Command{
			inspectRunCommand(st),
		},
	}
}

func inspectRunCommand(openStore func() (store.ArtifactStore, error)) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Inspect a run by ID",
		ArgsUsage: "<run-id>",
		Flags:     TUIReadOnlyFlags(),
		Action:    inspectRunAction(openStore),
	}
}

func inspectRunAction(openStore func() (store.ArtifactStore, error)) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("run-id required", 1)
		}
		runID := c.Args().First()

		r, err := render.NewRenderer(c)
		if err != nil {
			return err
		}

		st, err := openStore()
		if err != nil {
			return cli.Exit(fmt.Sprintf("open store: %v", err), exitConfigError)
		}
		defer func() { _ = st.Close() }()

		resp, err := query.InspectRun(c.Context, st, runID)
		if err != nil {
			return cli.Exit(fmt.Sprintf("inspect run: %v", err), exitConfigError)
		}

		if c.Bool("tui") {
			return r.RenderTUI("inspect_run", resp)
		}

		return r.Render(resp)
	}
}
