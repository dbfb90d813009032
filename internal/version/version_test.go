package version

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCurrent(t *testing.T) {
	info := Current()
	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.GoVersion)
	assert.Contains(t, info.Platform, "/")
	assert.NotEmpty(t, info.Short())
}

func TestInfoShort(t *testing.T) {
	in := Info{Version: "v1.2.0", Commit: "abcdef1234567890"}
	assert.Equal(t, "v1.2.0 (abcdef1)", in.Short())

	in.Commit = "unknown"
	assert.Equal(t, "v1.2.0", in.Short())
}

func TestInfoString(t *testing.T) {
	in := Info{
		Version:   "v1.2.0",
		Commit:    "abcdef1234567890",
		GoVersion: "go1.24.4",
		Platform:  "linux/amd64",
		Modified:  true,
	}
	s := in.String()
	assert.Contains(t, s, "ombra v1.2.0 (abcdef1)")
	assert.Contains(t, s, "(dirty)")
	assert.Contains(t, s, "go:       go1.24.4")
	assert.Contains(t, s, "platform: linux/amd64")
}
