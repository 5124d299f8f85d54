package version

import (
	"runtime"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestResolve(t *testing.T) {
	tests := []struct {
		input   string
		want    int
		wantErr bool
	}{
		{"1.2.3", 10203, false},
		{"2.0", 20000, false},
		{"1.1", 10100, false},
		{"0.9.12", 912, false},
		{" 3.4.5\n", 30405, false},
		{"1", 0, true},
		{"1.2.3.4", 0, true},
		{"v1.2", 0, true},
		{"1.100", 0, true},
		{"", 0, true},
	}

	for _, tt := range tests {
		t.Run(tt.input, func(t *testing.T) {
			got, err := Resolve(tt.input)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseDefaultsPatch(t *testing.T) {
	v, err := Parse("2.0")
	require.NoError(t, err)
	assert.Equal(t, Version{Major: 2}, v)
	assert.Equal(t, "2.0.0", v.String())
}

func TestMustResolvePanics(t *testing.T) {
	assert.Panics(t, func() { MustResolve("bogus") })
	assert.Equal(t, 10100, MustResolve("1.1"))
}

func TestDescriptors(t *testing.T) {
	ds := Descriptors("/opt/app/2.1.0", []string{"/opt/app/1.0/", "/opt/app/1.1"})
	require.Len(t, ds, 3)

	assert.Equal(t, "2.1.0", ds[0].Label)
	assert.True(t, ds[0].IsReference)
	assert.Equal(t, "1.0", ds[1].Label)
	assert.False(t, ds[1].IsReference)
	assert.Equal(t, "/opt/app/1.1", ds[2].InstallPath)
}

func TestMarkReference(t *testing.T) {
	in := []Descriptor{{Label: "a"}, {Label: "b", IsReference: true}}
	out := MarkReference(in)

	assert.True(t, out[0].IsReference)
	assert.False(t, out[1].IsReference)
	// Input untouched.
	assert.True(t, in[1].IsReference)
}

func TestRuntimeTag(t *testing.T) {
	tag := RuntimeTag()
	assert.True(t, strings.HasSuffix(tag, "-"+runtime.GOOS+"-"+runtime.GOARCH))
}
