package cmd

import (
	"encoding/json"
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"github.com/tafreeman/prompteval/internal/probe"
	"github.com/tafreeman/prompteval/internal/provider"
)

var (
	flagModelsParallel int
	flagModelsRefresh  bool
)

var modelsCmd = &cobra.Command{
	Use:   "models",
	Short: "Discover and probe every reachable model",
	Long: `Probe the model catalog of every configured provider and report which
models are usable right now.

Backends that can enumerate their own models (local Ollama) are asked
dynamically; the rest are probed against a known catalog. Results are
cached, so a models run warms the cache for a following eval.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := loadConfig()
		if err != nil {
			return err
		}

		parallel := cfg.Parallel
		if cmd.Flags().Changed("parallel") {
			parallel = flagModelsParallel
		}

		reg := buildRegistry(cfg)
		dispatcher := provider.NewDispatcher(reg, cfg.TimeoutDuration)
		prober := probe.New(probe.NewCache(cfg.CacheDir), dispatcher.Generate, parallel)

		if flagModelsRefresh {
			prober.Cache().Purge()
		}

		d := prober.DiscoverAll(cmd.Context(), reg)

		if flagJSON {
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(d)
		}

		for _, ps := range d.Providers {
			fmt.Printf("%s (%s): %d/%d usable\n", ps.Name, ps.Provider, ps.Usable, len(ps.Results))
			for _, r := range ps.Results {
				if r.Usable {
					fmt.Printf("  ok   %s\n", r.Model)
				} else {
					fmt.Printf("  fail %s (%s)\n", r.Model, r.Code)
				}
			}
		}
		fmt.Printf("\n%d/%d models usable\n", d.Usable, d.Total)
		return nil
	},
}

func init() {
	modelsCmd.Flags().IntVar(&flagModelsParallel, "parallel", 4, "number of models to probe concurrently")
	modelsCmd.Flags().BoolVar(&flagModelsRefresh, "refresh", false, "purge the probe cache and re-probe everything")
	rootCmd.AddCommand(modelsCmd)
}
