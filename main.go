package main

import (
	"runtime/debug"

	"github.com/marcus/desk/cmd"
)

// Version is stamped by release builds with -ldflags "-X main.Version=v1.2.3".
var Version = ""

// buildVersion prefers the stamped version, then the module version recorded
// by go install, then the VCS commit of a local build.
func buildVersion() string {
	if Version != "" {
		return Version
	}
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return "dev"
	}
	if v := info.Main.Version; v != "" && v != "(devel)" {
		return v
	}
	commit, dirty := "", false
	for _, kv := range info.Settings {
		switch kv.Key {
		case "vcs.revision":
			commit = kv.Value
		case "vcs.modified":
			dirty = kv.Value == "true"
		}
	}
	if commit == "" {
		return "dev"
	}
	if len(commit) > 7 {
		commit = commit[:7]
	}
	if dirty {
		return "dev-" + commit + "-modified"
	}
	return "dev-" + commit
}

func main() {
	cmd.SetVersion(buildVersion())
	cmd.Execute()
}
