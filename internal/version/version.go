// Package version exposes build metadata for the ombra binary.
//
// Release builds stamp Version, Commit and Date through -ldflags; when
// the variables keep their defaults the package falls back to the module
// build info the Go toolchain embeds into the binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

// Stamped at build time:
//
//	go build -ldflags "\
//	  -X github.com/ombra-web/ombra/internal/version.Version=v1.2.0 \
//	  -X github.com/ombra-web/ombra/internal/version.Commit=$(git rev-parse HEAD) \
//	  -X github.com/ombra-web/ombra/internal/version.Date=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
var (
	Version = "dev"
	Commit  = "unknown"
	Date    = "unknown"
)

// Info is the resolved build metadata.
type Info struct {
	Version   string    `json:"version" yaml:"version"`
	Commit    string    `json:"commit" yaml:"commit"`
	Date      time.Time `json:"date,omitempty" yaml:"date,omitempty"`
	GoVersion string    `json:"go_version" yaml:"go_version"`
	Platform  string    `json:"platform" yaml:"platform"`
	Modified  bool      `json:"modified,omitempty" yaml:"modified,omitempty"`
}

// Current resolves the build metadata, preferring ldflags values and
// falling back to the build info recorded by the toolchain.
func Current() Info {
	in := Info{
		Version:   Version,
		Commit:    Commit,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	if t, err := time.Parse(time.RFC3339, Date); err == nil {
		in.Date = t
	}
	bi, ok := debug.ReadBuildInfo()
	if !ok {
		return in
	}
	if in.Version == "dev" && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		in.Version = bi.Main.Version
	}
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if in.Commit == "unknown" && s.Value != "" {
				in.Commit = s.Value
			}
		case "vcs.time":
			if in.Date.IsZero() {
				if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
					in.Date = t
				}
			}
		case "vcs.modified":
			in.Modified = s.Value == "true"
		}
	}
	return in
}

// Short returns the single-line form: "v1.2.0 (1a2b3c4)" when the
// commit is known, the bare version otherwise.
func (in Info) Short() string {
	if in.Commit != "unknown" && len(in.Commit) >= 7 {
		return fmt.Sprintf("%s (%s)", in.Version, in.Commit[:7])
	}
	return in.Version
}

// String renders the multi-line human-readable form.
func (in Info) String() string {
	var b strings.Builder
	fmt.Fprintf(&b, "ombra %s", in.Version)
	if in.Commit != "unknown" && len(in.Commit) >= 7 {
		fmt.Fprintf(&b, " (%s)", in.Commit[:7])
	}
	if in.Modified {
		b.WriteString(" (dirty)")
	}
	b.WriteByte('\n')
	if !in.Date.IsZero() {
		fmt.Fprintf(&b, "built:    %s\n", in.Date.Format(time.RFC3339))
	}
	fmt.Fprintf(&b, "go:       %s\n", in.GoVersion)
	fmt.Fprintf(&b, "platform: %s", in.Platform)
	return b.String()
}
