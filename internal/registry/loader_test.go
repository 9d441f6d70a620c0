package registry

import (
	"os"
	"path/filepath"
	"testing"
)

func TestLoadBuiltin(t *testing.T) {
	reg, err := LoadBuiltin()
	if err != nil {
		t.Fatalf("LoadBuiltin() error: %v", err)
	}
	if reg.Len() == 0 {
		t.Fatal("LoadBuiltin() returned empty registry")
	}

	// A few anchors that the rest of the pipeline relies on.
	for _, name := range []string{"weather", "time", "wiki"} {
		if _, ok := reg.Get(name); !ok {
			t.Errorf("builtin catalog missing capability %q", name)
		}
	}

	weather, _ := reg.Get("weather")
	missing := weather.MissingSlots(nil)
	if len(missing) != 1 || missing[0] != "location" {
		t.Errorf("weather.MissingSlots(nil) = %v, want [location]", missing)
	}
}

func TestParse_SchemaRejectsMalformedCatalog(t *testing.T) {
	tests := []struct {
		name string
		yaml string
	}{
		{
			name: "missing capabilities key",
			yaml: "things: []\n",
		},
		{
			name: "capability without name",
			yaml: `
capabilities:
  - description: no name here
    keywords: [x]
`,
		},
		{
			name: "bad parameter type",
			yaml: `
capabilities:
  - name: demo
    description: demo
    keywords: [demo]
    parameters:
      - {name: value, type: quaternion, required: true}
`,
		},
		{
			name: "not yaml at all",
			yaml: "{{{{",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := Parse([]byte(tt.yaml)); err == nil {
				t.Fatal("Parse() expected error, got nil")
			}
		})
	}
}

func TestLoadFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "catalog.yaml")
	catalog := `
capabilities:
  - name: echo
    description: Echo the input back
    examples: ["say something back"]
    keywords: [echo, repeat]
    parameters:
      - {name: text, type: freetext, required: true}
`
	if err := os.WriteFile(path, []byte(catalog), 0o644); err != nil {
		t.Fatal(err)
	}

	reg, err := LoadFile(path)
	if err != nil {
		t.Fatalf("LoadFile() error: %v", err)
	}
	if reg.Len() != 1 {
		t.Fatalf("LoadFile() Len = %d, want 1", reg.Len())
	}
	if _, ok := reg.Get("echo"); !ok {
		t.Error("LoadFile() missing capability echo")
	}

	if _, err := LoadFile(filepath.Join(dir, "absent.yaml")); err == nil {
		t.Error("LoadFile(absent) expected error")
	}
}
