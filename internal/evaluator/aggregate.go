package evaluator

import (
	"math"
	"sort"

	"github.com/tafreeman/prompteval/internal/rubric"
)

// Run is one repetition of the judging prompt. Immutable once created; a
// run whose response could not be parsed carries ParseFailed and no scores.
type Run struct {
	Index       int                `json:"index"`
	Scores      map[string]float64 `json:"scores,omitempty"`
	ParseFailed bool               `json:"parse_failed,omitempty"`
	// Err is the classified failure for a run that never produced a
	// parseable response.
	Err string `json:"err,omitempty"`
}

// DimensionStats holds the aggregate for one dimension across runs.
type DimensionStats struct {
	Median float64 `json:"median"`
	StdDev float64 `json:"stddev"`
}

// Aggregate is the deterministic summary of a set of runs.
type Aggregate struct {
	PerDimension map[string]DimensionStats `json:"per_dimension"`
	// Overall is the weight-normalized mean of dimension medians.
	Overall float64 `json:"overall"`
	// HardGatesPassed is true only if every gating dimension's median
	// meets its threshold.
	HardGatesPassed bool `json:"hard_gates_passed"`
	// PassRate is the fraction of individual runs in which every gating
	// dimension met its threshold, evaluated per run. Parse failures
	// count as failing runs. This exposes run-to-run instability a
	// median alone would hide.
	PassRate float64 `json:"pass_rate"`
	// Pass is the overall verdict: HardGatesPassed and PassRate at or
	// above the configured threshold.
	Pass          bool `json:"pass"`
	Runs          int  `json:"runs"`
	ParseFailures int  `json:"parse_failures"`

	// Token totals across all runs, for cost accounting.
	InputTokens  int64 `json:"input_tokens,omitempty"`
	OutputTokens int64 `json:"output_tokens,omitempty"`
}

// aggregate reduces a fixed set of runs into an Aggregate. Deterministic:
// the same runs always produce the same result.
//
// Medians are computed over parse-successful runs only; judge models
// occasionally emit a wild outlier on a single run, and the median absorbs
// that without discarding the dimension. Edge cases fail closed: zero
// parseable runs report zero scores and failed gates, never "not evaluated".
func aggregate(runs []Run, rb *rubric.Rubric, passThreshold float64) *Aggregate {
	agg := &Aggregate{
		PerDimension: make(map[string]DimensionStats, len(rb.Dimensions)),
		Runs:         len(runs),
	}

	var ok []Run
	for _, r := range runs {
		if r.ParseFailed {
			agg.ParseFailures++
			continue
		}
		ok = append(ok, r)
	}

	for _, d := range rb.Dimensions {
		values := make([]float64, 0, len(ok))
		for _, r := range ok {
			values = append(values, r.Scores[d.Name])
		}
		agg.PerDimension[d.Name] = DimensionStats{
			Median: median(values),
			StdDev: stddev(values),
		}
	}

	var weightSum, weighted float64
	for _, d := range rb.Dimensions {
		weighted += agg.PerDimension[d.Name].Median * d.Weight
		weightSum += d.Weight
	}
	if weightSum > 0 && len(ok) > 0 {
		agg.Overall = weighted / weightSum
	}

	gates := rb.Gates()

	agg.HardGatesPassed = len(ok) > 0
	for _, g := range gates {
		if agg.PerDimension[g.Name].Median < g.Min {
			agg.HardGatesPassed = false
		}
	}

	if len(runs) > 0 {
		passing := 0
		for _, r := range runs {
			if r.ParseFailed {
				continue
			}
			pass := true
			for _, g := range gates {
				if r.Scores[g.Name] < g.Min {
					pass = false
					break
				}
			}
			if pass {
				passing++
			}
		}
		agg.PassRate = float64(passing) / float64(len(runs))
	}

	// An exact PassRate at the threshold passes; zero parseable runs
	// never does.
	agg.Pass = agg.HardGatesPassed && agg.PassRate >= passThreshold && len(ok) > 0

	return agg
}

// median returns the middle value (mean of the two middles for even n).
// Zero for an empty slice.
func median(values []float64) float64 {
	if len(values) == 0 {
		return 0
	}
	sorted := make([]float64, len(values))
	copy(sorted, values)
	sort.Float64s(sorted)

	mid := len(sorted) / 2
	if len(sorted)%2 == 1 {
		return sorted[mid]
	}
	return (sorted[mid-1] + sorted[mid]) / 2
}

// stddev returns the population standard deviation. Zero for fewer than two
// values.
func stddev(values []float64) float64 {
	if len(values) < 2 {
		return 0
	}
	var sum float64
	for _, v := range values {
		sum += v
	}
	mean := sum / float64(len(values))

	var sq float64
	for _, v := range values {
		sq += (v - mean) * (v - mean)
	}
	return math.Sqrt(sq / float64(len(values)))
}
