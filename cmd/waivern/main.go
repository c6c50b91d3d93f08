// Package main provides the waivern CLI entrypoint.
//
// waivern is the only execution entrypoint for running a runbook; every
// other command is read-only.
//
// Usage:
//
//	waivern <command> [subcommand] [options]
//
// Exit codes for `run`:
//   - 0: success
//   - 1: partial (optional-artifact failures only)
//   - 2: failed (executor crash or non-optional artifact failure)
//   - 3: policy failure (runbook failed to parse or plan)
package main

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/cli/cmd"
	"github.com/waivern/orchestrator/producer/builtin"
	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

// commit is set via ldflags at build time.
var commit = "unknown"

func main() {
	factory := builtin.DefaultRegistry()

	app := &cli.App{
		Name:           "waivern",
		Usage:          "Compliance-analysis orchestrator CLI",
		Version:        fmt.Sprintf("%s (commit: %s)", types.Version, commit),
		ExitErrHandler: exitErrHandler,
		Commands: []*cli.Command{
			cmd.RunCommand(factory),
			cmd.InspectCommand(openStore),
			cmd.ListCommand(openStore),
			cmd.VersionCommand("", commit),
		},
	}

	if err := app.Run(os.Args); err != nil {
		// exitErrHandler already handled the exit for cli.ExitCoder errors.
		// This branch handles unexpected errors that weren't wrapped.
		os.Exit(1)
	}
}

// openStore builds the artifact store read-only commands (list, inspect)
// query. These commands have no --config flag of their own, so they read
// the store backend directly from WAIVERN_STORE_* environment variables.
// `waivern run` does not read these variables; it takes its store
// settings from flags and the config file.
func openStore() (store.ArtifactStore, error) {
	backend := os.Getenv("WAIVERN_STORE_TYPE")
	if backend == "" {
		backend = string(store.BackendMemory)
	}
	cfg := store.Config{
		Type:     store.BackendType(backend),
		BasePath: os.Getenv("WAIVERN_STORE_PATH"),
		S3: store.S3Config{
			Bucket:   os.Getenv("WAIVERN_STORE_BUCKET"),
			Prefix:   os.Getenv("WAIVERN_STORE_PREFIX"),
			Region:   os.Getenv("WAIVERN_STORE_REGION"),
			Endpoint: os.Getenv("WAIVERN_STORE_ENDPOINT"),
		},
		Redis: store.RedisConfig{
			URL:       os.Getenv("WAIVERN_STORE_URL"),
			KeyPrefix: os.Getenv("WAIVERN_STORE_KEY_PREFIX"),
		},
	}
	return store.New(context.Background(), cfg)
}

// exitErrHandler preserves exit codes set via cli.Exit() so run's exit
// code contract is propagated to the shell.
func exitErrHandler(_ *cli.Context, err error) {
	if err == nil {
		return
	}

	var exitCoder cli.ExitCoder
	if errors.As(err, &exitCoder) {
		code := exitCoder.ExitCode()
		msg := exitCoder.Error()
		if msg != "" && msg != fmt.Sprintf("exit status %d", code) {
			fmt.Fprintln(os.Stderr, msg)
		}
		os.Exit(code)
	}

	fmt.Fprintf(os.Stderr, "Error: %v\n", err)
	os.Exit(1)
}
