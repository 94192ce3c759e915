// Package version reports the build identity of the agent-core binary.
package version

import "runtime/debug"

// AppName is used in user-agent strings and log banners.
const AppName = "agent-core"

// commit may be injected at build time via -ldflags for container builds
// where .git metadata is stripped.
var commit string

// GitCommit is the short (8 char) commit hash, or "dev" when neither an
// ldflags override nor VCS build info is available.
var GitCommit = resolveCommit()

func resolveCommit() string {
	if commit != "" {
		return short(commit)
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		for _, s := range info.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return short(s.Value)
			}
		}
	}
	return "dev"
}

func short(rev string) string {
	if len(rev) > 8 {
		return rev[:8]
	}
	return rev
}

// Full returns "agent-core/<commit>".
func Full() string {
	return AppName + "/" + GitCommit
}
