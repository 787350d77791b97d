// Package rubric loads the scoring rubrics fed to the evaluator engine.
package rubric

import (
	_ "embed"
	"fmt"
	"os"

	"gopkg.in/yaml.v3"
)

// Dimension is one scored axis of a rubric. Scores run 0-10.
type Dimension struct {
	Name        string  `yaml:"name"`
	Description string  `yaml:"description"`
	// Weight scales this dimension's contribution to the overall score.
	// Zero means 1.0.
	Weight float64 `yaml:"weight"`
	// Gate marks this dimension as a hard gate: its median (and each
	// individual run) must reach Min for an overall pass.
	Gate bool    `yaml:"gate"`
	Min  float64 `yaml:"min"`
}

// Rubric declares the dimensions a judge scores, plus guidance embedded in
// the judging prompt.
type Rubric struct {
	Name       string      `yaml:"name"`
	Guidance   string      `yaml:"guidance"`
	Dimensions []Dimension `yaml:"dimensions"`
}

//go:embed default.yaml
var defaultRubric []byte

// Default returns the built-in rubric.
func Default() *Rubric {
	r, err := Parse(defaultRubric)
	if err != nil {
		// The embedded rubric is validated by tests; a parse failure here
		// is a build defect.
		panic(fmt.Sprintf("embedded default rubric: %v", err))
	}
	return r
}

// Load reads and validates a rubric from a YAML file.
func Load(path string) (*Rubric, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading rubric: %w", err)
	}
	r, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("rubric %s: %w", path, err)
	}
	return r, nil
}

// Parse decodes and validates rubric YAML.
func Parse(data []byte) (*Rubric, error) {
	var r Rubric
	if err := yaml.Unmarshal(data, &r); err != nil {
		return nil, err
	}
	if len(r.Dimensions) == 0 {
		return nil, fmt.Errorf("rubric declares no dimensions")
	}
	seen := make(map[string]bool, len(r.Dimensions))
	for i := range r.Dimensions {
		d := &r.Dimensions[i]
		if d.Name == "" {
			return nil, fmt.Errorf("dimension %d has no name", i)
		}
		if seen[d.Name] {
			return nil, fmt.Errorf("duplicate dimension %q", d.Name)
		}
		seen[d.Name] = true
		if d.Weight == 0 {
			d.Weight = 1
		}
		if d.Min < 0 || d.Min > 10 {
			return nil, fmt.Errorf("dimension %q: min %v out of range 0-10", d.Name, d.Min)
		}
		if d.Gate && d.Min == 0 {
			return nil, fmt.Errorf("dimension %q: gate requires a min threshold", d.Name)
		}
	}
	return &r, nil
}

// Gates returns the gating dimensions.
func (r *Rubric) Gates() []Dimension {
	var gates []Dimension
	for _, d := range r.Dimensions {
		if d.Gate {
			gates = append(gates, d)
		}
	}
	return gates
}
