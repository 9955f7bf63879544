package buildinfo

import (
	"runtime"
	"runtime/debug"
	"strings"
	"testing"
)

func TestRead(t *testing.T) {
	info := Read()
	for _, f := range info.Fields() {
		if f[1] == "" {
			t.Errorf("Read() field %s is empty", f[0])
		}
	}
	if info.GoVersion != runtime.Version() {
		t.Errorf("GoVersion = %q, want %q", info.GoVersion, runtime.Version())
	}
}

func TestInfo_FillFromVCS(t *testing.T) {
	bi := &debug.BuildInfo{
		Main: debug.Module{Version: "v1.2.3"},
		Settings: []debug.BuildSetting{
			{Key: "vcs.revision", Value: "0123456789abcdef0123"},
			{Key: "vcs.time", Value: "2026-01-02T03:04:05Z"},
			{Key: "vcs.modified", Value: "true"},
		},
	}
	info := Info{Version: "dev", Commit: "unknown", Branch: "unknown", BuildTime: "unknown"}
	info.fill(bi)

	if info.Version != "v1.2.3" {
		t.Errorf("Version = %q, want v1.2.3", info.Version)
	}
	if info.Commit != "0123456789ab-dirty" {
		t.Errorf("Commit = %q, want 0123456789ab-dirty", info.Commit)
	}
	if info.BuildTime != "2026-01-02T03:04:05Z" {
		t.Errorf("BuildTime = %q", info.BuildTime)
	}
	if info.Branch != "unknown" {
		t.Errorf("Branch = %q, want unknown", info.Branch)
	}
}

func TestInfo_FillKeepsStampedValues(t *testing.T) {
	bi := &debug.BuildInfo{
		Main:     debug.Module{Version: "(devel)"},
		Settings: []debug.BuildSetting{{Key: "vcs.revision", Value: "ffff"}, {Key: "vcs.time", Value: "later"}},
	}
	info := Info{Version: "v2.0.0", Commit: "abc123", BuildTime: "2026-10-01"}
	info.fill(bi)

	if info.Version != "v2.0.0" || info.Commit != "abc123" || info.BuildTime != "2026-10-01" {
		t.Errorf("fill overwrote stamped values: %+v", info)
	}
}

func TestInfo_String(t *testing.T) {
	info := Info{Version: "v1.0.0", Commit: "abc", Branch: "main", BuildTime: "now"}
	if got, want := info.String(), "mqttscope v1.0.0 (abc@main) built now"; got != want {
		t.Errorf("String() = %q, want %q", got, want)
	}
	if !strings.HasPrefix(Read().String(), "mqttscope ") {
		t.Errorf("Read().String() = %q", Read().String())
	}
}
