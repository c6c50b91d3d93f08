package cmd

import (
	"flag"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"testing"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/config"
	"github.com/waivern/orchestrator/producer/builtin"
	"github.com/waivern/orchestrator/store"
)

func TestExitCodeConstants(t *testing.T) {
	if exitSuccess != 0 {
		t.Errorf("exitSuccess = %d, want 0", exitSuccess)
	}
	if exitScriptError != 1 {
		t.Errorf("exitScriptError = %d, want 1", exitScriptError)
	}
	if exitExecutorCrash != 2 {
		t.Errorf("exitExecutorCrash = %d, want 2", exitExecutorCrash)
	}
	if exitPolicyFailure != 3 {
		t.Errorf("exitPolicyFailure = %d, want 3", exitPolicyFailure)
	}
	if exitConfigError != exitExecutorCrash {
		t.Errorf("exitConfigError = %d, want %d (exitExecutorCrash)", exitConfigError, exitExecutorCrash)
	}
}

func newIntFlagContext(t *testing.T, flagName string, set bool, value int) *cli.Context {
	t.Helper()
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.IntFlag{Name: flagName}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.Int(flagName, 0, "")
	if set {
		if err := fs.Set(flagName, strconv.Itoa(value)); err != nil {
			t.Fatalf("set flag: %v", err)
		}
	}
	return cli.NewContext(app, fs, nil)
}

func TestResolveInt_CLIWins(t *testing.T) {
	c := newIntFlagContext(t, "max-concurrency", true, 8)
	got := resolveInt(c, "max-concurrency", 4, 2)
	if got != 8 {
		t.Errorf("expected CLI value 8, got %d", got)
	}
}

func TestResolveInt_ConfigFallback(t *testing.T) {
	c := newIntFlagContext(t, "max-concurrency", false, 0)
	got := resolveInt(c, "max-concurrency", 4, 2)
	if got != 4 {
		t.Errorf("expected config fallback 4, got %d", got)
	}
}

func TestResolveInt_RunbookFallback(t *testing.T) {
	c := newIntFlagContext(t, "max-concurrency", false, 0)
	got := resolveInt(c, "max-concurrency", 0, 2)
	if got != 2 {
		t.Errorf("expected runbook fallback 2, got %d", got)
	}
}

func TestConfigIntVal_NilConfig(t *testing.T) {
	got := configIntVal(nil, func(c *config.Config) int { return c.MaxConcurrency })
	if got != 0 {
		t.Errorf("expected 0 for nil config, got %d", got)
	}
}

func TestConfigIntVal_NonNil(t *testing.T) {
	cfg := &config.Config{MaxConcurrency: 6}
	got := configIntVal(cfg, func(c *config.Config) int { return c.MaxConcurrency })
	if got != 6 {
		t.Errorf("expected 6, got %d", got)
	}
}

func TestStoreBackendFrom_DefaultsToMemory(t *testing.T) {
	app := cli.NewApp()
	app.Flags = []cli.Flag{&cli.StringFlag{Name: "store-backend"}}
	fs := flag.NewFlagSet("test", flag.ContinueOnError)
	fs.String("store-backend", "", "")
	c := cli.NewContext(app, fs, nil)

	got := storeBackendFrom(c, nil)
	if got != store.BackendMemory {
		t.Errorf("expected memory default, got %q", got)
	}
}

func newTestApp() *cli.App {
	app := cli.NewApp()
	app.Commands = []*cli.Command{RunCommand(builtin.DefaultRegistry())}
	app.ExitErrHandler = func(_ *cli.Context, _ error) {}
	return app
}

func TestRunAction_MissingRunbookPath(t *testing.T) {
	app := newTestApp()
	err := app.Run([]string{"waivern", "run"})
	if err == nil {
		t.Fatal("expected error for missing runbook path")
	}
	if !strings.Contains(err.Error(), "runbook-path required") {
		t.Errorf("error should mention runbook-path required, got: %v", err)
	}
}

func TestRunAction_UnreadableRunbook(t *testing.T) {
	app := newTestApp()
	err := app.Run([]string{"waivern", "run", "/nonexistent/runbook.yaml"})
	if err == nil {
		t.Fatal("expected error for unreadable runbook")
	}
	if !strings.Contains(err.Error(), "read runbook") {
		t.Errorf("error should mention read runbook, got: %v", err)
	}
}

func TestRunAction_ExecutesSuccessfully(t *testing.T) {
	dir := t.TempDir()

	inputPath := filepath.Join(dir, "input.json")
	if err := os.WriteFile(inputPath, []byte(`{"rows": [1, 2, 3]}`), 0o644); err != nil {
		t.Fatal(err)
	}

	runbookPath := filepath.Join(dir, "runbook.yaml")
	runbookYAML := `
name: demo
artifacts:
  raw:
    source:
      type: file
      properties:
        path: ` + inputPath + `
    output: true
`
	if err := os.WriteFile(runbookPath, []byte(runbookYAML), 0o644); err != nil {
		t.Fatal(err)
	}

	app := newTestApp()
	err := app.Run([]string{"waivern", "run", runbookPath, "--quiet"})
	if err != nil {
		if exitErr, ok := err.(cli.ExitCoder); ok && exitErr.ExitCode() != exitSuccess {
			t.Fatalf("expected success exit code, got %d: %v", exitErr.ExitCode(), err)
		} else if !ok {
			t.Fatalf("unexpected error: %v", err)
		}
	}
}
