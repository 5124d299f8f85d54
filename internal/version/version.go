// Package version parses application release versions and describes the
// installations a matrix run compares.
package version

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
	"strings"
)

// Pattern is the accepted version format: major.minor with an optional patch.
var Pattern = regexp.MustCompile(`^(\d+)\.(\d+)(?:\.(\d+))?$`)

// Version is a parsed application version.
type Version struct {
	Major int
	Minor int
	Patch int
}

// Parse parses a dotted version string. The patch component defaults to 0.
func Parse(s string) (Version, error) {
	match := Pattern.FindStringSubmatch(strings.TrimSpace(s))
	if match == nil {
		return Version{}, fmt.Errorf("invalid version format: %q", s)
	}

	// Errors ignored: the pattern guarantees digits only.
	major, _ := strconv.Atoi(match[1])
	minor, _ := strconv.Atoi(match[2])
	patch := 0
	if match[3] != "" {
		patch, _ = strconv.Atoi(match[3])
	}

	if minor > 99 || patch > 99 {
		return Version{}, fmt.Errorf("version %q out of range: minor and patch must be below 100", s)
	}

	return Version{Major: major, Minor: minor, Patch: patch}, nil
}

// Resolved returns the integer encoding major*10000 + minor*100 + patch.
func (v Version) Resolved() int {
	return v.Major*10000 + v.Minor*100 + v.Patch
}

func (v Version) String() string {
	return fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
}

// Resolve parses s and returns its integer encoding.
func Resolve(s string) (int, error) {
	v, err := Parse(s)
	if err != nil {
		return 0, err
	}
	return v.Resolved(), nil
}

// MustResolve is like Resolve but panics on malformed input.
// Intended for static suite definitions.
func MustResolve(s string) int {
	n, err := Resolve(s)
	if err != nil {
		panic(err)
	}
	return n
}

// Descriptor identifies one installed release under test.
type Descriptor struct {
	Label       string `json:"label" yaml:"label"`
	InstallPath string `json:"install_path" yaml:"install_path"`
	IsReference bool   `json:"is_reference" yaml:"-"`
}

// Descriptors builds the ordered descriptor list for a run: the current
// installation first (the reference), then prior installations in caller order.
// Labels default to the base name of the install path.
func Descriptors(current string, prior []string) []Descriptor {
	out := make([]Descriptor, 0, len(prior)+1)
	out = append(out, Descriptor{Label: DefaultLabel(current), InstallPath: current, IsReference: true})
	for _, p := range prior {
		out = append(out, Descriptor{Label: DefaultLabel(p), InstallPath: p})
	}
	return out
}

// MarkReference returns a copy of ds where only the first entry is the reference.
func MarkReference(ds []Descriptor) []Descriptor {
	out := make([]Descriptor, len(ds))
	copy(out, ds)
	for i := range out {
		out[i].IsReference = i == 0
	}
	return out
}

// DefaultLabel is the label of an install path: its base name.
func DefaultLabel(installPath string) string {
	p := strings.TrimRight(installPath, `/\`)
	if i := strings.LastIndexAny(p, `/\`); i >= 0 {
		p = p[i+1:]
	}
	if p == "" {
		return installPath
	}
	return p
}

// RuntimeTag identifies the runtime environment a report was produced on,
// e.g. "go1.24.0-linux-amd64".
func RuntimeTag() string {
	return fmt.Sprintf("%s-%s-%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)
}
