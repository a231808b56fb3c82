package version

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestGetInfo(t *testing.T) {
	info := GetInfo()

	assert.NotEmpty(t, info.Version)
	assert.NotEmpty(t, info.BuildMethod)
	assert.Contains(t, info.Platform, "/")
	assert.True(t, strings.HasPrefix(info.GoVersion, "go"))
}

func TestGetVersionString(t *testing.T) {
	s := GetVersionString()
	assert.Contains(t, s, Name)
	assert.Contains(t, s, Version)
}

func TestGetDetailedVersionString(t *testing.T) {
	detailed := GetDetailedVersionString()
	for _, field := range []string{Name, "Git commit:", "Build method:", "Go version:", "Platform:"} {
		assert.Contains(t, detailed, field)
	}
}

func TestBuildMethodDetection(t *testing.T) {
	assert.Contains(t, []string{"make", "go-install", "unknown"}, getBuildMethod())
}

func TestIsRelease(t *testing.T) {
	origVersion, origCommit := Version, GitCommit
	t.Cleanup(func() { Version, GitCommit = origVersion, origCommit })

	Version, GitCommit = "1.2.0", "abcdef1234567"
	assert.True(t, IsRelease())
	assert.Equal(t, "make", getBuildMethod())
	assert.Equal(t, Name+" 1.2.0 (abcdef12)", GetVersionString())

	Version = "1.3.0-dev"
	assert.False(t, IsRelease())

	GitCommit = "unknown"
	Version = "1.2.0"
	assert.False(t, IsRelease())
}
