package buildinfo

import (
	"runtime/debug"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGet(t *testing.T) {
	props := Get()
	assert.Equal(t, "dev", props.Version)
	assert.NotEmpty(t, props.BuildTime)
	assert.NotEmpty(t, props.GitCommit)
	assert.Equal(t, "mountaineers-assistant/dev", UserAgent())
}

func TestWithVCS(t *testing.T) {
	bi := &debug.BuildInfo{Settings: []debug.BuildSetting{
		{Key: "vcs", Value: "git"},
		{Key: "vcs.revision", Value: "abc123"},
		{Key: "vcs.time", Value: "2024-04-01T12:00:00Z"},
	}}

	p := withVCS(Properties{Version: "dev", BuildTime: unknown, GitCommit: unknown}, bi)
	assert.Equal(t, "abc123", p.GitCommit)
	assert.Equal(t, "2024-04-01T12:00:00Z", p.BuildTime)

	p = withVCS(Properties{Version: "v1.0.0", BuildTime: "yesterday", GitCommit: "deadbeef"}, bi)
	assert.Equal(t, "deadbeef", p.GitCommit, "ldflags win")
	assert.Equal(t, "yesterday", p.BuildTime)
}
