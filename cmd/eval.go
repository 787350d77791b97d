package cmd

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/signal"
	"sort"
	"syscall"

	"github.com/spf13/cobra"
	"github.com/tafreeman/prompteval/internal/batch"
	"github.com/tafreeman/prompteval/internal/evaluator"
	"github.com/tafreeman/prompteval/internal/model"
	telem "github.com/tafreeman/prompteval/internal/otel"
	"github.com/tafreeman/prompteval/internal/probe"
	"github.com/tafreeman/prompteval/internal/provider"
)

var (
	flagEvalRuns       int
	flagEvalParallel   int
	flagEvalRetries    int
	flagEvalThreshold  float64
	flagEvalInclude    []string
	flagEvalExclude    []string
	flagEvalOnly       []string
	flagEvalCheckpoint string
	flagEvalResume     bool
	flagEvalOut        string
	flagEvalCI         bool
)

var evalCmd = &cobra.Command{
	Use:   "eval <path>",
	Short: "Evaluate prompt files against the rubric",
	Long: `Evaluate every matching prompt file under <path> with the judge model.

Each file is judged several times; per-dimension scores are aggregated
by median and checked against the rubric's hard gates and the pass-rate
threshold. Results stream to a JSONL log the moment each file finishes,
and completed files are recorded in a checkpoint so an interrupted run
resumes where it stopped (--resume).

On SIGINT/SIGTERM no new files are started; in-flight files finish and
are flushed before exit.

With --ci the command exits non-zero unless every evaluated file passed.`,
	Args: cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}
		if cmd.Flags().Changed("runs") {
			cfg.Runs = flagEvalRuns
		}
		if cmd.Flags().Changed("parallel") {
			cfg.Parallel = flagEvalParallel
		}
		if cmd.Flags().Changed("retries") {
			cfg.Retries = flagEvalRetries
		}
		if cmd.Flags().Changed("pass-threshold") {
			if flagEvalThreshold < 0 || flagEvalThreshold > 1 {
				return fmt.Errorf("pass threshold %v out of range [0, 1]", flagEvalThreshold)
			}
			cfg.PassThreshold = flagEvalThreshold
		}

		id, err := model.ParseID(cfg.Model)
		if err != nil {
			return err
		}

		reg := buildRegistry(cfg)
		// Fail fast on missing credentials, before any file is touched.
		if err := requireAdapter(reg, id); err != nil {
			return err
		}

		rb, err := loadRubric(cfg)
		if err != nil {
			return err
		}

		items, err := batch.Discover(args[0], batch.Filter{
			Include: flagEvalInclude,
			Exclude: flagEvalExclude,
			Only:    flagEvalOnly,
		})
		if err != nil {
			return err
		}
		if len(items) == 0 {
			return fmt.Errorf("no files matched under %s", args[0])
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
		defer stop()

		telem.Version = Version
		tel, err := telem.Init(ctx, telem.OTELConfig{
			Endpoint: cfg.OTELEndpoint,
			Headers:  cfg.OTELHeaders,
		})
		if err != nil {
			fmt.Fprintf(os.Stderr, "warning: otel init failed: %v\n", err)
		}
		var metrics *telem.Metrics
		if tel != nil {
			metrics = tel.Metrics
			defer tel.Shutdown(context.WithoutCancel(ctx))
		}

		dispatcher := provider.NewDispatcher(reg, cfg.TimeoutDuration)
		dispatcher.Metrics = metrics
		prober := probe.New(probe.NewCache(cfg.CacheDir), dispatcher.Generate, cfg.Parallel)
		prober.Metrics = metrics

		engine := evaluator.NewEngine(dispatcher.Generate)
		engine.MaxTokens = cfg.MaxTokens
		engine.PassThreshold = cfg.PassThreshold
		engine.Metrics = metrics

		if !flagEvalResume {
			// A fresh run must not inherit a stale checkpoint.
			if err := os.Remove(flagEvalCheckpoint); err != nil && !os.IsNotExist(err) {
				return fmt.Errorf("clearing checkpoint: %w", err)
			}
		}
		cp, err := batch.OpenCheckpoint(flagEvalCheckpoint)
		if err != nil {
			return err
		}
		defer cp.Close()

		log, err := batch.OpenResultLog(flagEvalOut)
		if err != nil {
			return err
		}
		defer log.Close()

		runner := &batch.Runner{
			Prober: prober,
			Evaluate: func(ctx context.Context, candidate string) (*evaluator.Aggregate, []evaluator.Run, error) {
				return engine.Evaluate(ctx, candidate, rb, id, cfg.Runs)
			},
			Model:        id,
			Parallel:     cfg.Parallel,
			Retries:      cfg.Retries,
			RetryBackoff: cfg.BackoffDuration,
			Checkpoint:   cp,
			Log:          log,
			Metrics:      metrics,
		}

		rep, runErr := runner.Run(ctx, items)
		if runErr != nil {
			fmt.Fprintln(os.Stderr, "interrupted: in-flight files flushed, resume with --resume")
		}

		if err := printReport(rep); err != nil {
			return err
		}

		if flagEvalCI {
			if len(rep.FailedItems) > 0 {
				return fmt.Errorf("%d of %d files failed", rep.Failed, rep.Total)
			}
			if rep.Interrupted > 0 {
				return fmt.Errorf("interrupted with %d files unprocessed", rep.Interrupted)
			}
		}
		return nil
	},
}

func printReport(rep *batch.Report) error {
	if flagJSON {
		enc := json.NewEncoder(os.Stdout)
		enc.SetIndent("", "  ")
		return enc.Encode(rep)
	}

	fmt.Printf("evaluated %d files: %d passed, %d failed, %d skipped",
		rep.Total, rep.Passed, rep.Failed, rep.Skipped)
	if rep.Interrupted > 0 {
		fmt.Printf(", %d interrupted", rep.Interrupted)
	}
	fmt.Println()

	if len(rep.DimensionAverages) > 0 {
		names := make([]string, 0, len(rep.DimensionAverages))
		for name := range rep.DimensionAverages {
			names = append(names, name)
		}
		sort.Strings(names)
		fmt.Println("\ndimension averages:")
		for _, name := range names {
			fmt.Printf("  %-14s %.1f\n", name, rep.DimensionAverages[name])
		}
	}

	if len(rep.FailedItems) > 0 {
		fmt.Println("\nfailed:")
		for _, f := range rep.FailedItems {
			if f.Code != "" {
				fmt.Printf("  %s  %s (%s, %d retries)\n", f.ID, f.Reason, f.Code, f.Retries)
			} else {
				fmt.Printf("  %s  %s\n", f.ID, f.Reason)
			}
		}
	}
	return nil
}

func init() {
	evalCmd.Flags().IntVar(&flagEvalRuns, "runs", 3, "judge runs per file")
	evalCmd.Flags().IntVar(&flagEvalParallel, "parallel", 4, "files evaluated concurrently")
	evalCmd.Flags().IntVar(&flagEvalRetries, "retries", 2, "max retries per file for retryable failures")
	evalCmd.Flags().Float64Var(&flagEvalThreshold, "pass-threshold", 0.75, "required fraction of runs passing all hard gates")
	evalCmd.Flags().StringSliceVar(&flagEvalInclude, "include", nil, "glob patterns to include (default *.md)")
	evalCmd.Flags().StringSliceVar(&flagEvalExclude, "exclude", nil, "glob patterns to exclude")
	evalCmd.Flags().StringSliceVar(&flagEvalOnly, "only", nil, "restrict to exact file ids (e.g. a changed-files list)")
	evalCmd.Flags().StringVar(&flagEvalCheckpoint, "checkpoint", ".prompteval.checkpoint", "checkpoint file path")
	evalCmd.Flags().BoolVar(&flagEvalResume, "resume", false, "skip files completed in a previous run")
	evalCmd.Flags().StringVar(&flagEvalOut, "out", "prompteval-results.jsonl", "result log path (JSONL, appended)")
	evalCmd.Flags().BoolVar(&flagEvalCI, "ci", false, "exit non-zero unless every file passed")
	rootCmd.AddCommand(evalCmd)
}
