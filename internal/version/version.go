// Package version reports the build identity of the sprinkler binaries.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"time"
)

// Set at build time via ldflags:
//
//	go build -ldflags="-X github.com/reeslabree/sprinkler-controller/internal/version.Version=v1.2.3 \
//	                   -X github.com/reeslabree/sprinkler-controller/internal/version.Commit=abc123"
//
// Otherwise they are derived from the embedded build info, or fall back to
// "dev" with a timestamp.
var (
	// Version is the semantic version of the application
	Version = ""
	// Commit is the short git commit hash
	Commit = ""
)

func init() {
	if info, ok := debug.ReadBuildInfo(); ok && (Version == "" || Commit == "") {
		v, c := fromBuildInfo(info)
		if Version == "" {
			Version = v
		}
		if Commit == "" {
			Commit = c
		}
	}

	if Version == "" {
		Version = "dev-" + time.Now().Format("20060102-150405")
	}
	if Commit == "" {
		Commit = "unknown"
	}
}

// fromBuildInfo derives a version and commit from build info. Either result
// may be empty.
func fromBuildInfo(info *debug.BuildInfo) (version, commit string) {
	// Set by "go install module@version"
	if v := info.Main.Version; v != "" && v != "(devel)" {
		version = v
	}

	var revision, modified, vcsTime string
	for _, s := range info.Settings {
		switch s.Key {
		case "vcs.revision":
			revision = s.Value
		case "vcs.modified":
			modified = s.Value
		case "vcs.time":
			vcsTime = s.Value
		}
	}

	if revision != "" {
		commit = revision
		if len(commit) > 7 {
			commit = commit[:7]
		}
		if modified == "true" {
			commit += "-dirty"
		}
	}

	if version == "" && vcsTime != "" {
		if t, err := time.Parse(time.RFC3339, vcsTime); err == nil {
			version = "dev-" + t.Format("20060102")
		}
	}
	return version, commit
}

// Full returns the version including the commit.
func Full() string {
	return fmt.Sprintf("%s (commit: %s)", Version, Commit)
}

// Line returns the banner printed by each binary's version command.
func Line(binary string) string {
	return fmt.Sprintf("%s %s (commit: %s, %s)", binary, Version, Commit, runtime.Version())
}
