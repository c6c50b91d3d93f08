package cmd

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/urfave/cli/v2"

	"github.com/waivern/orchestrator/cli/render"
	"github.com/waivern/orchestrator/config"
	"github.com/waivern/orchestrator/executor"
	"github.com/waivern/orchestrator/metrics"
	"github.com/waivern/orchestrator/notify"
	"github.com/waivern/orchestrator/notify/redis"
	"github.com/waivern/orchestrator/notify/webhook"
	"github.com/waivern/orchestrator/planner"
	"github.com/waivern/orchestrator/producer"
	"github.com/waivern/orchestrator/store"
	"github.com/waivern/orchestrator/types"
)

// Exit codes for run.
const (
	exitSuccess       = 0
	exitScriptError   = 1
	exitExecutorCrash = 2
	exitPolicyFailure = 3
)

// exitConfigError is used for CLI/input validation failures. These are
// pre-execution errors (not run failures), but there is no separate
// code reserved for them, so they map to exitExecutorCrash.
const exitConfigError = exitExecutorCrash

// RunCommand returns the run command, the only command in the CLI that
// executes a runbook rather than reading already-persisted state.
func RunCommand(factory producer.Factory) *cli.Command {
	return &cli.Command{
		Name:      "run",
		Usage:     "Execute a runbook",
		ArgsUsage: "<runbook-path>",
		UsageText: `waivern run <runbook-path> [options]

EXAMPLES:
  # Run with filesystem storage
  waivern run ./runbooks/quarterly-review.yaml \
    --store-backend filesystem --store-path ./data

  # Run with config file defaults
  waivern run ./runbooks/quarterly-review.yaml --config ./waivern.yaml

  # Run with a Redis run-completion notification
  waivern run ./runbooks/quarterly-review.yaml \
    --store-backend redis --store-url redis://localhost:6379/0 \
    --notify-type redis --notify-url redis://localhost:6379/0`,
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:  "config",
				Usage: "Path to waivern.yaml config file",
			},
			&cli.IntFlag{
				Name:  "max-concurrency",
				Usage: "Maximum number of nodes executed concurrently (overrides runbook config)",
			},
			&cli.IntFlag{
				Name:  "timeout-seconds",
				Usage: "Run-wide timeout in seconds (overrides runbook config)",
			},
			&cli.Float64Flag{
				Name:  "cost-limit",
				Usage: "Run-wide cost budget (overrides runbook config)",
			},
			&cli.StringFlag{
				Name:  "store-backend",
				Usage: "Artifact store backend: memory, filesystem, s3, redis",
			},
			&cli.StringFlag{
				Name:  "store-path",
				Usage: "Filesystem store base path",
			},
			&cli.StringFlag{
				Name:  "store-bucket",
				Usage: "S3 bucket",
			},
			&cli.StringFlag{
				Name:  "store-prefix",
				Usage: "S3 key prefix",
			},
			&cli.StringFlag{
				Name:  "store-region",
				Usage: "S3 region",
			},
			&cli.StringFlag{
				Name:  "store-endpoint",
				Usage: "S3-compatible endpoint (e.g. for R2, MinIO)",
			},
			&cli.BoolFlag{
				Name:  "store-path-style",
				Usage: "Use S3 path-style addressing",
			},
			&cli.StringFlag{
				Name:  "store-url",
				Usage: "Redis store connection URL",
			},
			&cli.StringFlag{
				Name:  "store-key-prefix",
				Usage: "Redis store key prefix",
			},
			&cli.StringFlag{
				Name:  "notify-type",
				Usage: "Run-completion notifier: redis, webhook (default: none)",
			},
			&cli.StringFlag{
				Name:  "notify-url",
				Usage: "Redis notifier connection URL",
			},
			&cli.StringFlag{
				Name:  "notify-channel",
				Usage: "Redis notifier pub/sub channel",
			},
			&cli.StringFlag{
				Name:  "notify-webhook-url",
				Usage: "Webhook notifier target URL",
			},
			&cli.BoolFlag{
				Name:  "quiet",
				Usage: "Suppress result output",
			},
		},
		Action: runAction(factory),
	}
}

func runAction(factory producer.Factory) cli.ActionFunc {
	return func(c *cli.Context) error {
		if c.NArg() < 1 {
			return cli.Exit("runbook-path required", exitConfigError)
		}
		runbookPath := c.Args().First()

		var cfg *config.Config
		if configPath := c.String("config"); configPath != "" {
			loaded, err := config.Load(configPath)
			if err != nil {
				return cli.Exit(fmt.Sprintf("failed to load config: %v", err), exitConfigError)
			}
			cfg = loaded
		}

		data, err := os.ReadFile(runbookPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("read runbook: %v", err), exitConfigError)
		}

		root, err := planner.Parse(data, runbookPath)
		if err != nil {
			return cli.Exit(fmt.Sprintf("parse runbook: %v", err), exitPolicyFailure)
		}

		applyConfigPrecedence(c, cfg, root)

		st, err := openStoreFromPrecedence(c, cfg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("open store: %v", err), exitConfigError)
		}
		defer func() { _ = st.Close() }()

		notifier, err := openNotifierFromPrecedence(c, cfg)
		if err != nil {
			return cli.Exit(fmt.Sprintf("configure notifier: %v", err), exitConfigError)
		}
		if notifier != nil {
			defer func() { _ = notifier.Close() }()
		}

		p := planner.New(planner.FileLoader{}, factory)
		plan, err := p.Plan(root)
		if err != nil {
			code := exitExecutorCrash
			if kind, ok := types.KindOf(err); ok && kind.IsPlanError() {
				code = exitPolicyFailure
			}
			return cli.Exit(fmt.Sprintf("plan runbook: %v", err), code)
		}

		collector := metrics.NewCollector(root.Name, string(storeBackendFrom(c, cfg)), "")

		opts := []executor.Option{executor.WithMetrics(collector)}
		if notifier != nil {
			opts = append(opts, executor.WithNotifier(notifier))
		}
		e := executor.New(factory, st, opts...)

		ctx, cancel := context.WithCancel(context.Background())
		defer cancel()

		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		defer signal.Stop(sigCh)
		go func() {
			<-sigCh
			cancel()
		}()

		result, err := e.Run(ctx, plan)
		if err != nil {
			return cli.Exit(fmt.Sprintf("execute runbook: %v", err), exitExecutorCrash)
		}

		if !c.Bool("quiet") {
			r, rerr := render.NewRenderer(c)
			if rerr != nil {
				return rerr
			}
			if rerr := r.Render(result); rerr != nil {
				return rerr
			}
		}

		return cli.Exit("", result.ExitCode())
	}
}

// applyConfigPrecedence overrides root.Config in place, following CLI
// flag > config file > the runbook's own config block.
func applyConfigPrecedence(c *cli.Context, cfg *config.Config, root *types.Runbook) {
	root.Config.MaxConcurrency = resolveInt(c, "max-concurrency", configIntVal(cfg, func(cfg *config.Config) int { return cfg.MaxConcurrency }), root.Config.MaxConcurrency)
	root.Config.TimeoutSeconds = resolveInt(c, "timeout-seconds", configIntVal(cfg, func(cfg *config.Config) int { return cfg.TimeoutSeconds }), root.Config.TimeoutSeconds)
	root.Config.CostLimit = resolveFloat(c, "cost-limit", configFloatVal(cfg, func(cfg *config.Config) float64 { return cfg.CostLimit }), root.Config.CostLimit)
}

// resolveInt returns the CLI flag value if explicitly set, else the
// config value if non-zero, else fallback (the runbook's own value).
func resolveInt(c *cli.Context, flag string, configVal, fallback int) int {
	if c.IsSet(flag) {
		return c.Int(flag)
	}
	if configVal != 0 {
		return configVal
	}
	return fallback
}

func resolveFloat(c *cli.Context, flag string, configVal, fallback float64) float64 {
	if c.IsSet(flag) {
		return c.Float64(flag)
	}
	if configVal != 0 {
		return configVal
	}
	return fallback
}

func resolveString(c *cli.Context, flag string, configVal string) string {
	if c.IsSet(flag) {
		return c.String(flag)
	}
	return configVal
}

func resolveBool(c *cli.Context, flag string, configVal bool) bool {
	if c.Bool(flag) {
		return true
	}
	return configVal
}

func configIntVal(cfg *config.Config, fn func(*config.Config) int) int {
	if cfg == nil {
		return 0
	}
	return fn(cfg)
}

func configFloatVal(cfg *config.Config, fn func(*config.Config) float64) float64 {
	if cfg == nil {
		return 0
	}
	return fn(cfg)
}

func configStringVal(cfg *config.Config, fn func(*config.Config) string) string {
	if cfg == nil {
		return ""
	}
	return fn(cfg)
}

func storeBackendFrom(c *cli.Context, cfg *config.Config) store.BackendType {
	backend := resolveString(c, "store-backend", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Backend }))
	if backend == "" {
		return store.BackendMemory
	}
	return store.BackendType(backend)
}

// openStoreFromPrecedence builds the artifact store selected by CLI
// flags or config file, following CLI flag > config file > default
// (in-memory) precedence per field.
func openStoreFromPrecedence(c *cli.Context, cfg *config.Config) (store.ArtifactStore, error) {
	storeCfg := store.Config{
		Type:     storeBackendFrom(c, cfg),
		BasePath: resolveString(c, "store-path", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Path })),
		S3: store.S3Config{
			Bucket:    resolveString(c, "store-bucket", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Bucket })),
			Prefix:    resolveString(c, "store-prefix", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Prefix })),
			Region:    resolveString(c, "store-region", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Region })),
			Endpoint:  resolveString(c, "store-endpoint", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.Endpoint })),
			PathStyle: resolveBool(c, "store-path-style", cfg != nil && cfg.Store.PathStyle),
		},
		Redis: store.RedisConfig{
			URL:       resolveString(c, "store-url", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.URL })),
			KeyPrefix: resolveString(c, "store-key-prefix", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Store.KeyPrefix })),
		},
	}
	return store.New(c.Context, storeCfg)
}

// openNotifierFromPrecedence builds the run-completion notifier selected
// by CLI flags or config file. Returns (nil, nil) when no notifier type
// was requested.
func openNotifierFromPrecedence(c *cli.Context, cfg *config.Config) (notify.Notifier, error) {
	notifyType := resolveString(c, "notify-type", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Notify.Type }))
	switch notifyType {
	case "":
		return nil, nil
	case "redis":
		return redis.New(redis.Config{
			URL:     resolveString(c, "notify-url", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Notify.URL })),
			Channel: resolveString(c, "notify-channel", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Notify.Channel })),
			Timeout: notifyTimeout(cfg),
			Retries: notifyRetries(cfg),
		})
	case "webhook":
		return webhook.New(webhook.Config{
			URL:     resolveString(c, "notify-webhook-url", configStringVal(cfg, func(cfg *config.Config) string { return cfg.Notify.WebhookURL })),
			Headers: notifyHeaders(cfg),
			Timeout: notifyTimeout(cfg),
			Retries: notifyRetries(cfg),
		})
	default:
		return nil, fmt.Errorf("unknown notify type %q (must be redis or webhook)", notifyType)
	}
}

func notifyTimeout(cfg *config.Config) time.Duration {
	if cfg == nil {
		return 0
	}
	return cfg.Notify.Timeout.Duration
}

func notifyRetries(cfg *config.Config) int {
	if cfg == nil || cfg.Notify.Retries == nil {
		return webhook.DefaultRetries
	}
	return *cfg.Notify.Retries
}

func notifyHeaders(cfg *config.Config) map[string]string {
	if cfg == nil {
		return nil
	}
	return cfg.Notify.Headers
}
