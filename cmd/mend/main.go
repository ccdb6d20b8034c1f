// SPDX-License-Identifier: Apache-2.0

// mend is a self-improving IT incident resolution agent. It triages an
// incident, drafts a resolution plan, and iterates critic/refiner passes
// until the plan clears the quality bar, learning from every loop.
package main

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/mendsys/mend/pkg/config"
	"github.com/mendsys/mend/pkg/eval"
	"github.com/mendsys/mend/pkg/httpapi"
	"github.com/mendsys/mend/pkg/incident"
	"github.com/mendsys/mend/pkg/mcp"
	"github.com/mendsys/mend/pkg/memory"
	"github.com/mendsys/mend/pkg/telemetry"
)

const version = "0.1.0"

type globalFlags struct {
	ConfigArgs []string
	Timeout    time.Duration
	JSON       bool
	Help       bool
}

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	global, args, err := parseGlobalFlags(os.Args[1:])
	if err != nil {
		fatal(err)
	}
	if global.Help || len(args) == 0 {
		printUsage()
		return
	}

	if err := config.LoadDotenv(".env"); err != nil {
		fatal(err)
	}
	cfg, err := config.LoadWithCLI(global.ConfigArgs)
	if err != nil {
		fatal(err)
	}

	switch args[0] {
	case "serve":
		runServe(ctx, cfg, configPathFromArgs(global.ConfigArgs))
	case "resolve":
		runResolve(ctx, global, cfg, args[1:])
	case "stats":
		runStats(ctx, global, cfg)
	case "timeline":
		runTimeline(ctx, global, cfg)
	case "clear":
		runClear(ctx, cfg)
	case "eval":
		runEval(ctx, global, cfg, args[1:])
	case "mcp-serve":
		runMCPServe(ctx, cfg)
	case "init":
		runInit()
	case "version":
		fmt.Printf("mend %s\n", version)
	case "help":
		printUsage()
	default:
		fatal(fmt.Errorf("unknown command %q", args[0]))
	}
}

func parseGlobalFlags(args []string) (globalFlags, []string, error) {
	flags := globalFlags{Timeout: 5 * time.Minute}

	for i := 0; i < len(args); i++ {
		arg := args[i]
		if arg == "--" {
			return flags, args[i+1:], nil
		}
		if !strings.HasPrefix(arg, "-") {
			return flags, args[i:], nil
		}
		switch {
		case arg == "-h" || arg == "--help":
			flags.Help = true
			return flags, nil, nil
		case arg == "--json":
			flags.JSON = true
		case arg == "--config" || arg == "--set" || arg == "--profile" || arg == "--env":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for %s", arg)
			}
			flags.ConfigArgs = append(flags.ConfigArgs, arg, args[i+1])
			i++
		case strings.HasPrefix(arg, "--config=") || strings.HasPrefix(arg, "--set=") ||
			strings.HasPrefix(arg, "--profile=") || strings.HasPrefix(arg, "--env="):
			flags.ConfigArgs = append(flags.ConfigArgs, arg)
		case arg == "--timeout":
			if i+1 >= len(args) {
				return flags, nil, fmt.Errorf("missing value for --timeout")
			}
			value, err := time.ParseDuration(args[i+1])
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
			i++
		case strings.HasPrefix(arg, "--timeout="):
			value, err := time.ParseDuration(strings.TrimPrefix(arg, "--timeout="))
			if err != nil {
				return flags, nil, fmt.Errorf("invalid --timeout: %w", err)
			}
			flags.Timeout = value
		default:
			return flags, nil, fmt.Errorf("unknown global flag %q", arg)
		}
	}
	return flags, nil, nil
}

// configPathFromArgs extracts the --config value so serve can watch the
// file for loop-setting changes.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		switch {
		case args[i] == "--config" && i+1 < len(args):
			return args[i+1]
		case strings.HasPrefix(args[i], "--config="):
			return strings.TrimPrefix(args[i], "--config=")
		}
	}
	return ""
}

func runServe(ctx context.Context, cfg *config.Config, configPath string) {
	a, err := buildApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.Close(context.Background())

	if configPath != "" {
		watcher, _, err := config.WatchConfig(ctx, configPath, config.WithWatchLogger(a.logger))
		if err != nil {
			a.logger.Warn("config watch disabled", "path", configPath, "error", err)
		} else {
			watcher.OnChange(func(c *config.Config) {
				a.pipeline.Tune(c.Loop.Threshold, c.Loop.MaxIterations)
				a.logger.Info("loop settings reloaded",
					"threshold", c.Loop.Threshold,
					"max_iterations", c.Loop.MaxIterations)
			})
		}
	}

	srv := httpapi.New(a.pipeline, a.store,
		httpapi.WithLogger(a.logger),
		httpapi.WithHealth(a.health),
	)
	addr := fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port)
	if err := srv.Serve(ctx, addr); err != nil {
		fatal(err)
	}
}

func runResolve(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	cmd := flag.NewFlagSet("resolve", flag.ContinueOnError)
	system := cmd.String("system", "", "affected system")
	severity := cmd.String("severity", "", "reported severity")
	if err := cmd.Parse(args); err != nil {
		fatal(err)
	}
	description := strings.TrimSpace(strings.Join(cmd.Args(), " "))
	if description == "" {
		fatal(fmt.Errorf("usage: mend resolve [--system s] [--severity s] <incident description>"))
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.Close(context.Background())

	ctx, cancel := context.WithTimeout(ctx, global.Timeout)
	defer cancel()

	inc := incident.NewIncident(description)
	inc.System = *system
	inc.Severity = *severity

	result, err := a.pipeline.Resolve(ctx, inc)
	if err != nil {
		fatal(err)
	}

	if global.JSON {
		printJSON(result)
		return
	}

	fmt.Printf("Incident:   %s\n", inc.ID)
	if result.Triage != nil {
		fmt.Printf("Triage:     %s / %s / blast=%s\n",
			result.Triage.Priority, result.Triage.Category, result.Triage.BlastRadius)
	}
	fmt.Printf("Outcome:    %s after %d critic pass(es)\n", result.Outcome, result.Iterations)
	if result.Critique != nil {
		fmt.Printf("Quality:    %.3f\n", result.Critique.Composite)
	}
	fmt.Println("Plan:")
	for i, step := range result.Resolution.Steps {
		fmt.Printf("  %d. %s\n", i+1, step)
	}
	if len(result.Resolution.Rollback) > 0 {
		fmt.Println("Rollback:")
		for i, step := range result.Resolution.Rollback {
			fmt.Printf("  %d. %s\n", i+1, step)
		}
	}
	if result.Narration != "" {
		fmt.Printf("\n%s\n", result.Narration)
	}
	if result.NeedsHumanReview() {
		fmt.Println("\nLow confidence: review before applying.")
	}
}

func runStats(ctx context.Context, global globalFlags, cfg *config.Config) {
	store, closeStore := mustStore(ctx, cfg)
	defer closeStore(context.Background())

	stats, err := store.Stats(ctx)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(stats)
		return
	}
	fmt.Printf("Resolutions:  %d\n", stats.TotalResolutions)
	fmt.Printf("Average:      %.3f\n", stats.OverallAverage)
	fmt.Printf("Best:         %.3f\n", stats.BestScore)
	fmt.Printf("Latest:       %.3f\n", stats.LatestScore)
	fmt.Printf("Improvement:  %+.3f (first to last)\n", stats.FirstToLastDelta)
	for category, cs := range stats.ByCategory {
		fmt.Printf("  %-12s %d runs, avg %.3f\n", category, cs.Count, cs.Average)
	}
}

func runTimeline(ctx context.Context, global globalFlags, cfg *config.Config) {
	store, closeStore := mustStore(ctx, cfg)
	defer closeStore(context.Background())

	timeline, err := store.Timeline(ctx)
	if err != nil {
		fatal(err)
	}
	if global.JSON {
		printJSON(timeline)
		return
	}
	for _, entry := range timeline {
		fmt.Printf("%3d  %s  %-12s score=%.3f avg=%.3f\n",
			entry.Index, entry.Timestamp, entry.Category, entry.Score, entry.CumulativeAvg)
	}
}

func runClear(ctx context.Context, cfg *config.Config) {
	store, closeStore := mustStore(ctx, cfg)
	defer closeStore(context.Background())

	if err := store.Clear(ctx); err != nil {
		fatal(err)
	}
	fmt.Println("experience memory cleared")
}

func runEval(ctx context.Context, global globalFlags, cfg *config.Config, args []string) {
	mode := "experience"
	if len(args) > 0 {
		mode = args[0]
	}

	a, err := buildApp(ctx, cfg)
	if err != nil {
		fatal(err)
	}
	defer a.Close(context.Background())

	runner := eval.NewRunner(a.pipeline, eval.WithRunnerLogger(a.logger))

	switch mode {
	case "baseline":
		// Score the pipeline against an empty memory.
		emptyPipeline, err := rebuildWithStore(ctx, cfg, a, memory.NewInMemory())
		if err != nil {
			fatal(err)
		}
		report, err := eval.NewRunner(emptyPipeline, eval.WithRunnerLogger(a.logger)).Run(ctx)
		if err != nil {
			fatal(err)
		}
		printReport(global, report)
	case "experience":
		report, err := runner.Run(ctx)
		if err != nil {
			fatal(err)
		}
		printReport(global, report)
	case "both":
		baselinePipeline, err := rebuildWithStore(ctx, cfg, a, memory.NewInMemory())
		if err != nil {
			fatal(err)
		}
		baseline, err := eval.NewRunner(baselinePipeline, eval.WithRunnerLogger(a.logger)).Run(ctx)
		if err != nil {
			fatal(err)
		}
		improved, err := runner.Run(ctx)
		if err != nil {
			fatal(err)
		}
		delta := eval.Compare(baseline, improved)
		if global.JSON {
			printJSON(map[string]interface{}{
				"baseline": baseline,
				"improved": improved,
				"delta":    delta,
			})
			return
		}
		fmt.Printf("baseline avg:  %.3f\n", delta.Baseline)
		fmt.Printf("improved avg:  %.3f\n", delta.Improved)
		fmt.Printf("change:        %+.3f\n", delta.Change)
	default:
		fatal(fmt.Errorf("usage: mend eval [baseline|experience|both]"))
	}
}

func runMCPServe(ctx context.Context, cfg *config.Config) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	store, closeStore := mustStore(ctx, cfg)
	defer closeStore(context.Background())

	logger.Info("serving experience memory over MCP stdio")
	srv := mcp.NewExperienceServer(cfg.App.Name, version, store)
	if err := srv.ServeStdio(); err != nil {
		fatal(err)
	}
}

func runInit() {
	if err := config.EnsureDotenv(".env", ".env.example"); err != nil {
		fatal(err)
	}
	fmt.Println(".env ready")
}

func mustStore(ctx context.Context, cfg *config.Config) (memory.Store, func(context.Context) error) {
	logger := telemetry.ConfigureSlog(os.Stderr, cfg.Log.Level, cfg.Log.Format)
	store, closeStore, err := buildStore(ctx, cfg, logger)
	if err != nil {
		fatal(err)
	}
	return store, closeStore
}

func printReport(global globalFlags, report *eval.Report) {
	if global.JSON {
		printJSON(report)
		return
	}
	for _, s := range report.Scores {
		if s.Error != "" {
			fmt.Printf("%-10s FAILED: %s\n", s.Name, s.Error)
			continue
		}
		fmt.Printf("%-10s score=%.3f composite=%.3f iterations=%d outcome=%s\n",
			s.Name, s.Score, s.Composite, s.Iterations, s.Outcome)
	}
	fmt.Printf("average: %.3f\n", report.Average)
}

func printJSON(value any) {
	payload, err := json.MarshalIndent(value, "", "  ")
	if err != nil {
		fatal(err)
	}
	fmt.Println(string(payload))
}

func basicAuth(user, token string) string {
	return base64.StdEncoding.EncodeToString([]byte(user + ":" + token))
}

func printUsage() {
	fmt.Print(`mend - self-improving incident resolution agent

Usage:
  mend [global flags] <command> [args]

Commands:
  serve                       run the HTTP API
  resolve <description>       resolve one incident and print the plan
  stats                       print improvement statistics
  timeline                    print the per-resolution score timeline
  clear                       wipe the experience memory
  eval [baseline|experience|both]
                              score the built-in incident dataset
  mcp-serve                   expose the experience memory over MCP stdio
  init                        seed .env from .env.example
  version                     print the version

Global flags:
  --config <path>             config file (yaml)
  --profile <name>            overlay config.<name>.yaml
  --set key=value             override a config key (repeatable)
  --timeout <duration>        per-resolution timeout (default 5m)
  --json                      machine-readable output
`)
}

func fatal(err error) {
	fmt.Fprintln(os.Stderr, err)
	os.Exit(1)
}
