package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestValidateSuiteYAML(t *testing.T) {
	tests := []struct {
		name    string
		doc     string
		wantErr bool
	}{
		{
			name: "minimal",
			doc: `
name: s
cases:
  - id: 1
    name: Load time
    extract: {kind: load_time}
`,
		},
		{
			name: "full case",
			doc: `
name: s
preamble:
  - {key: Application, value: Profiler}
cases:
  - id: 2
    name: X profile
    min_version: "1.1"
    footnote: measured in cm before 1.1
    steps:
      - action: open_file
        args: {path: "{{data}}"}
    extract:
      kind: state
      path: profiles.x
      scale: [{below: "1.1", field: positions, factor: 10}]
    compare: {mode: similarity, amplitude_percent: 1, distance: 1, window: 80}
`,
		},
		{
			name:    "missing cases",
			doc:     "name: s\n",
			wantErr: true,
		},
		{
			name: "unknown compare mode",
			doc: `
name: s
cases:
  - {id: 1, name: a, extract: {kind: state, path: x}, compare: {mode: fuzzy}}
`,
			wantErr: true,
		},
		{
			name: "bad min_version",
			doc: `
name: s
cases:
  - {id: 1, name: a, min_version: "v2", extract: {kind: load_time}}
`,
			wantErr: true,
		},
		{
			name: "non-positive epsilon",
			doc: `
name: s
cases:
  - {id: 1, name: a, extract: {kind: state, path: x}, compare: {mode: tolerance, epsilon: 0}}
`,
			wantErr: true,
		},
		{
			name:    "not yaml",
			doc:     "name: [unclosed",
			wantErr: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateSuiteYAML([]byte(tt.doc))
			if tt.wantErr {
				assert.Error(t, err)
			} else {
				assert.NoError(t, err)
			}
		})
	}
}

func TestValidatePlanYAML(t *testing.T) {
	valid := `
suite: profile-analyzer
backend: interp
repeat_reference: true
data_sets:
  - {label: open field, path: data/open.csv}
versions:
  - {label: current, install_path: /opt/app/2.1}
  - {install_path: /opt/app/1.0}
`
	assert.NoError(t, ValidatePlanYAML([]byte(valid)))

	assert.Error(t, ValidatePlanYAML([]byte("data_sets: []\nversions: []\n")))
	assert.Error(t, ValidatePlanYAML([]byte(`
backend: docker
data_sets: [{label: a, path: b}]
versions: [{install_path: c}]
`)))
}
