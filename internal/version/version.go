// Package version reports how the storeconn binary was built.
package version

import (
	"runtime"
	"runtime/debug"
	"strings"
	"time"
)

const (
	defaultModule  = "pkt.systems/storeconn"
	unknownVersion = "v0.0.0-unknown"
)

// buildVersion is set via -ldflags "-X pkt.systems/storeconn/internal/version.buildVersion=...".
var buildVersion = ""

// Info describes the running build.
type Info struct {
	Module    string    `yaml:"module"`
	Version   string    `yaml:"version"`
	Revision  string    `yaml:"revision,omitempty"`
	Committed time.Time `yaml:"committed,omitempty"`
	Modified  bool      `yaml:"modified,omitempty"`
	GoVersion string    `yaml:"go"`
	Platform  string    `yaml:"platform"`
}

// Read collects Info from the ldflags override and the embedded build info.
func Read() Info {
	out := Info{
		Module:    defaultModule,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
	info, ok := debug.ReadBuildInfo()
	if ok {
		if path := strings.TrimSpace(info.Main.Path); path != "" {
			out.Module = path
		}
		out.Revision, out.Committed, out.Modified = vcsStamps(info.Settings)
	}
	out.Version = resolve(strings.TrimSpace(buildVersion), info, ok, out)
	return out
}

func resolve(override string, info *debug.BuildInfo, ok bool, stamps Info) string {
	if override != "" {
		return override
	}
	if ok {
		if v := strings.TrimSpace(info.Main.Version); v != "" && v != "(devel)" {
			return v
		}
	}
	if v := stamps.pseudo(); v != "" {
		return v
	}
	return unknownVersion
}

// Current returns the best available version string.
func Current() string { return Read().Version }

// Module returns the main module path; test binaries report none and get
// the storeconn module path.
func Module() string { return Read().Module }

// String returns "<module> <version>".
func String() string {
	i := Read()
	return i.Module + " " + i.Version
}

func vcsStamps(settings []debug.BuildSetting) (revision string, committed time.Time, modified bool) {
	for _, s := range settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.time":
			if t, err := time.Parse(time.RFC3339, s.Value); err == nil {
				committed = t.UTC()
			}
		case "vcs.modified":
			modified = s.Value == "true"
		}
	}
	return revision, committed, modified
}

// pseudo renders a Go-style pseudo version from the VCS stamps.
func (i Info) pseudo() string {
	if i.Revision == "" || i.Committed.IsZero() {
		return ""
	}
	rev := i.Revision
	if len(rev) > 12 {
		rev = rev[:12]
	}
	out := "v0.0.0-" + i.Committed.Format("20060102150405") + "-" + rev
	if i.Modified {
		out += "+dirty"
	}
	return out
}
