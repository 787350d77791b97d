package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tafreeman/prompteval/internal/model"
	"github.com/tafreeman/prompteval/internal/probe"
	"github.com/tafreeman/prompteval/internal/provider"
)

var flagProbeNoCache bool

var probeCmd = &cobra.Command{
	Use:   "probe <provider:name>...",
	Short: "Check whether specific models are usable",
	Long: `Probe each listed model with a minimal one-token request and report
whether it is usable, with the failure class when it is not.

Outcomes are cached with outcome-dependent lifetimes: working backends
are rechecked rarely, transient failures soon, hard failures (bad
credentials, unknown model) not for a day. Use --no-cache to force a
fresh probe.

Exits non-zero if any listed model is unusable.`,
	Args: cobra.MinimumNArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		ids := make([]model.ID, len(args))
		for i, arg := range args {
			ids[i], err = model.ParseID(arg)
			if err != nil {
				return err
			}
		}

		reg := buildRegistry(cfg)
		dispatcher := provider.NewDispatcher(reg, cfg.TimeoutDuration)
		prober := probe.New(probe.NewCache(cfg.CacheDir), dispatcher.Generate, cfg.Parallel)

		if flagProbeNoCache {
			for _, id := range ids {
				prober.Cache().Invalidate(id)
			}
		}

		results := make([]probe.Result, len(ids))
		for i, id := range ids {
			results[i] = prober.Check(cmd.Context(), id)
		}

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			if err := enc.Encode(results); err != nil {
				return err
			}
		} else {
			for _, r := range results {
				if r.Usable {
					fmt.Printf("ok   %s\n", r.Model)
				} else {
					fmt.Printf("fail %s (%s)\n", r.Model, r.Code)
				}
			}
		}

		for _, r := range results {
			if !r.Usable {
				return fmt.Errorf("%d of %d models unusable", countUnusable(results), len(results))
			}
		}
		return nil
	},
}

func countUnusable(results []probe.Result) int {
	n := 0
	for _, r := range results {
		if !r.Usable {
			n++
		}
	}
	return n
}

func init() {
	probeCmd.Flags().BoolVar(&flagProbeNoCache, "no-cache", false, "ignore cached probe results")
	rootCmd.AddCommand(probeCmd)
}
