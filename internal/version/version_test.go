package version

import (
	"runtime"
	"runtime/debug"
	"testing"
)

func TestPseudoFromStamps(t *testing.T) {
	cases := []struct {
		name     string
		settings []debug.BuildSetting
		want     string
	}{
		{name: "empty"},
		{
			name: "clean",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "0123456789abcdef0123"},
				{Key: "vcs.time", Value: "2026-03-01T10:20:30Z"},
			},
			want: "v0.0.0-20260301102030-0123456789ab",
		},
		{
			name: "dirty",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.time", Value: "2026-03-01T12:20:30+02:00"},
				{Key: "vcs.modified", Value: "true"},
			},
			want: "v0.0.0-20260301102030-abc+dirty",
		},
		{
			name: "bad time",
			settings: []debug.BuildSetting{
				{Key: "vcs.revision", Value: "abc"},
				{Key: "vcs.time", Value: "yesterday"},
			},
		},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			var i Info
			i.Revision, i.Committed, i.Modified = vcsStamps(tc.settings)
			if got := i.pseudo(); got != tc.want {
				t.Fatalf("pseudo=%q want %q", got, tc.want)
			}
		})
	}
}

func TestResolveOrder(t *testing.T) {
	stamps := Info{}
	stamps.Revision, stamps.Committed, _ = vcsStamps([]debug.BuildSetting{
		{Key: "vcs.revision", Value: "abc"},
		{Key: "vcs.time", Value: "2026-03-01T10:20:30Z"},
	})
	tagged := &debug.BuildInfo{Main: debug.Module{Version: "v0.4.0"}}
	devel := &debug.BuildInfo{Main: debug.Module{Version: "(devel)"}}

	if got := resolve("v9.9.9", tagged, true, stamps); got != "v9.9.9" {
		t.Fatalf("override: %q", got)
	}
	if got := resolve("", tagged, true, stamps); got != "v0.4.0" {
		t.Fatalf("module version: %q", got)
	}
	if got := resolve("", devel, true, stamps); got != "v0.0.0-20260301102030-abc" {
		t.Fatalf("pseudo: %q", got)
	}
	if got := resolve("", nil, false, Info{}); got != unknownVersion {
		t.Fatalf("unknown: %q", got)
	}
}

func TestBuildVersionOverride(t *testing.T) {
	prev := buildVersion
	t.Cleanup(func() { buildVersion = prev })
	buildVersion = "v1.2.3"
	info := Read()
	if info.Version != "v1.2.3" || Current() != "v1.2.3" {
		t.Fatalf("version=%q current=%q", info.Version, Current())
	}
	if got := String(); got != Module()+" v1.2.3" {
		t.Fatalf("String=%q", got)
	}
	if info.GoVersion != runtime.Version() || info.Platform != runtime.GOOS+"/"+runtime.GOARCH {
		t.Fatalf("unexpected toolchain fields %+v", info)
	}
}
