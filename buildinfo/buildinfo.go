// Package buildinfo reports the version of the running binary.
//
// Release builds set the values with ldflags:
//
//	go build -ldflags "-X github.com/dreamiurg/mountaineers-assistant-sub000/buildinfo.version=v1.2.0"
//
// Without them the commit and build time fall back to the VCS stamp the Go
// toolchain embeds in binaries built from a checkout.
package buildinfo

import (
	"runtime/debug"
	"sync"
)

const unknown = "unknown"

type Properties struct {
	Version   string `json:"version"`
	BuildTime string `json:"build_time"`
	GitCommit string `json:"git_commit"`
}

var (
	version   = "dev"
	buildTime = unknown
	gitCommit = unknown
)

var resolve = sync.OnceValue(func() Properties {
	p := Properties{Version: version, BuildTime: buildTime, GitCommit: gitCommit}
	if bi, ok := debug.ReadBuildInfo(); ok {
		p = withVCS(p, bi)
	}
	return p
})

// Get returns the build properties of the running binary.
func Get() Properties {
	return resolve()
}

// withVCS fills fields left unset by ldflags from the embedded VCS settings.
func withVCS(p Properties, bi *debug.BuildInfo) Properties {
	for _, s := range bi.Settings {
		switch s.Key {
		case "vcs.revision":
			if p.GitCommit == unknown {
				p.GitCommit = s.Value
			}
		case "vcs.time":
			if p.BuildTime == unknown {
				p.BuildTime = s.Value
			}
		}
	}
	return p
}

// UserAgent is the User-Agent sent to the activity site when none is configured.
func UserAgent() string {
	return "mountaineers-assistant/" + version
}
