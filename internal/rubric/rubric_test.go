package rubric

import (
	"os"
	"path/filepath"
	"testing"
)

func TestDefault_Valid(t *testing.T) {
	r := Default()
	if r.Name == "" {
		t.Error("default rubric has no name")
	}
	if len(r.Dimensions) == 0 {
		t.Fatal("default rubric has no dimensions")
	}
	if len(r.Gates()) == 0 {
		t.Error("default rubric declares no hard gates")
	}
}

func TestParse(t *testing.T) {
	tests := []struct {
		name    string
		yaml    string
		wantErr bool
	}{
		{
			name: "valid",
			yaml: `
name: test
dimensions:
  - name: Clarity
  - name: Accuracy
    gate: true
    min: 6
`,
		},
		{
			name:    "no dimensions",
			yaml:    "name: empty\n",
			wantErr: true,
		},
		{
			name: "duplicate dimension",
			yaml: `
name: dup
dimensions:
  - name: Clarity
  - name: Clarity
`,
			wantErr: true,
		},
		{
			name: "gate without threshold",
			yaml: `
name: badgate
dimensions:
  - name: Clarity
    gate: true
`,
			wantErr: true,
		},
		{
			name: "min out of range",
			yaml: `
name: badmin
dimensions:
  - name: Clarity
    min: 11
`,
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.yaml))
			if tt.wantErr && err == nil {
				t.Error("expected error, got nil")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("unexpected error: %v", err)
			}
		})
	}
}

func TestParse_DefaultWeight(t *testing.T) {
	r, err := Parse([]byte("name: w\ndimensions:\n  - name: Clarity\n"))
	if err != nil {
		t.Fatalf("Parse: %v", err)
	}
	if r.Dimensions[0].Weight != 1 {
		t.Errorf("Weight: got %v, want 1", r.Dimensions[0].Weight)
	}
}

func TestLoad(t *testing.T) {
	path := filepath.Join(t.TempDir(), "rubric.yaml")
	content := "name: file\ndimensions:\n  - name: Clarity\n"
	if err := os.WriteFile(path, []byte(content), 0o644); err != nil {
		t.Fatal(err)
	}

	r, err := Load(path)
	if err != nil {
		t.Fatalf("Load: %v", err)
	}
	if r.Name != "file" {
		t.Errorf("Name: got %q, want %q", r.Name, "file")
	}

	if _, err := Load(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Error("expected error for missing file")
	}
}
