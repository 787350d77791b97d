package evaluator

import (
	"reflect"
	"testing"

	"github.com/tafreeman/prompteval/internal/rubric"
)

func testRubric(t *testing.T) *rubric.Rubric {
	t.Helper()
	r, err := rubric.Parse([]byte(`
name: test
dimensions:
  - name: Clarity
  - name: Completeness
    gate: true
    min: 7
`))
	if err != nil {
		t.Fatalf("test rubric: %v", err)
	}
	return r
}

func runsWithScores(clarity, completeness []float64) []Run {
	runs := make([]Run, len(clarity))
	for i := range clarity {
		runs[i] = Run{
			Index: i,
			Scores: map[string]float64{
				"Clarity":      clarity[i],
				"Completeness": completeness[i],
			},
		}
	}
	return runs
}

func TestAggregate_MedianRobustToOutliers(t *testing.T) {
	// One wild outlier must not drag the dimension toward the mean.
	runs := runsWithScores(
		[]float64{2, 8, 8, 7, 8},
		[]float64{8, 8, 8, 8, 8},
	)
	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if got := agg.PerDimension["Clarity"].Median; got != 8 {
		t.Errorf("Clarity median: got %v, want 8", got)
	}
	if agg.PerDimension["Clarity"].StdDev == 0 {
		t.Error("Clarity stddev: got 0, want > 0 for dispersed scores")
	}
}

func TestAggregate_HardGateBelowThresholdFails(t *testing.T) {
	// Completeness median 6 < gate min 7; high Clarity cannot compensate.
	runs := runsWithScores(
		[]float64{10, 10, 10},
		[]float64{6, 6, 6},
	)
	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if agg.HardGatesPassed {
		t.Error("HardGatesPassed: got true with a gating median below threshold")
	}
	if agg.Pass {
		t.Error("Pass: got true with a failed hard gate")
	}
}

func TestAggregate_PassRatePerRun(t *testing.T) {
	// Median completeness is 8 (gate passes), but one of four runs dips
	// below the gate: pass rate 0.75.
	runs := runsWithScores(
		[]float64{8, 8, 8, 8},
		[]float64{8, 8, 6, 9},
	)
	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if !agg.HardGatesPassed {
		t.Fatal("HardGatesPassed: got false, want true (median 8 >= 7)")
	}
	if agg.PassRate != 0.75 {
		t.Errorf("PassRate: got %v, want 0.75", agg.PassRate)
	}
	// Exactly at the threshold passes.
	if !agg.Pass {
		t.Error("Pass: got false at PassRate == threshold, want true")
	}
}

func TestAggregate_PassRateBelowThresholdFails(t *testing.T) {
	runs := runsWithScores(
		[]float64{8, 8, 8, 8},
		[]float64{8, 6, 6, 9},
	)
	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if agg.PassRate != 0.5 {
		t.Errorf("PassRate: got %v, want 0.5", agg.PassRate)
	}
	if agg.Pass {
		t.Error("Pass: got true with PassRate below threshold")
	}
}

func TestAggregate_ParseFailuresCountAgainstPassRate(t *testing.T) {
	runs := runsWithScores(
		[]float64{8, 8, 8},
		[]float64{8, 8, 8},
	)
	runs = append(runs, Run{Index: 3, ParseFailed: true})

	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if agg.ParseFailures != 1 {
		t.Errorf("ParseFailures: got %d, want 1", agg.ParseFailures)
	}
	if agg.PassRate != 0.75 {
		t.Errorf("PassRate: got %v, want 0.75 (parse failure counts as a failing run)", agg.PassRate)
	}
	// The parse-failed run is excluded from the numeric aggregate.
	if got := agg.PerDimension["Clarity"].Median; got != 8 {
		t.Errorf("Clarity median: got %v, want 8", got)
	}
}

func TestAggregate_AllParseFailedFailsClosed(t *testing.T) {
	runs := []Run{
		{Index: 0, ParseFailed: true},
		{Index: 1, ParseFailed: true},
	}
	agg := aggregate(runs, testRubric(t), DefaultPassThreshold)

	if agg.HardGatesPassed {
		t.Error("HardGatesPassed: got true with zero parseable runs")
	}
	if agg.Pass {
		t.Error("Pass: got true with zero parseable runs")
	}
	if agg.Overall != 0 {
		t.Errorf("Overall: got %v, want 0", agg.Overall)
	}
	for name, stats := range agg.PerDimension {
		if stats.Median != 0 {
			t.Errorf("%s median: got %v, want 0", name, stats.Median)
		}
	}
}

func TestAggregate_Deterministic(t *testing.T) {
	runs := runsWithScores(
		[]float64{2, 8, 8, 7, 8},
		[]float64{8, 7, 9, 8, 6},
	)
	first := aggregate(runs, testRubric(t), DefaultPassThreshold)
	for i := 0; i < 5; i++ {
		again := aggregate(runs, testRubric(t), DefaultPassThreshold)
		if !reflect.DeepEqual(first, again) {
			t.Fatalf("aggregate not deterministic:\nfirst: %+v\nagain: %+v", first, again)
		}
	}
}

func TestMedian(t *testing.T) {
	tests := []struct {
		name   string
		values []float64
		want   float64
	}{
		{"empty", nil, 0},
		{"single", []float64{7}, 7},
		{"odd", []float64{2, 8, 8, 7, 8}, 8},
		{"even", []float64{2, 4, 6, 8}, 5},
		{"unsorted input untouched", []float64{9, 1, 5}, 5},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := median(tt.values); got != tt.want {
				t.Errorf("median(%v) = %v, want %v", tt.values, got, tt.want)
			}
		})
	}
}
