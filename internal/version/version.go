package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
	"strings"
)

// Name is the program name shown in version output
const Name = "gmail-inbox"

var (
	// Version is the semantic version number
	Version = "0.3.0-dev"

	// GitCommit is the git commit hash (injected at build time)
	GitCommit = "unknown"

	// BuildDate is the build date (injected at build time)
	BuildDate = "unknown"
)

// Info contains version information
type Info struct {
	Version     string `json:"version"`
	GitCommit   string `json:"git_commit"`
	BuildDate   string `json:"build_date"`
	BuildMethod string `json:"build_method"`
	GoVersion   string `json:"go_version"`
	Platform    string `json:"platform"`
}

// GetInfo returns comprehensive version information
func GetInfo() Info {
	return Info{
		Version:     Version,
		GitCommit:   commit(),
		BuildDate:   BuildDate,
		BuildMethod: getBuildMethod(),
		GoVersion:   runtime.Version(),
		Platform:    fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
	}
}

// commit prefers the injected hash and falls back to the VCS stamp
func commit() string {
	if GitCommit != "unknown" {
		return GitCommit
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, s := range bi.Settings {
			if s.Key == "vcs.revision" && s.Value != "" {
				return s.Value
			}
		}
	}
	return GitCommit
}

// getBuildMethod reports how the binary was built: "make" when ldflags
// injected a commit, "go-install" when module info is present
func getBuildMethod() string {
	if GitCommit != "unknown" {
		return "make"
	}
	if bi, ok := debug.ReadBuildInfo(); ok && bi.Main.Version != "" && bi.Main.Version != "(devel)" {
		return "go-install"
	}
	return "unknown"
}

// GetVersionString returns a formatted version string
func GetVersionString() string {
	info := GetInfo()
	if info.GitCommit == "unknown" {
		return fmt.Sprintf("%s %s", Name, info.Version)
	}
	short := info.GitCommit
	if len(short) > 8 {
		short = short[:8]
	}
	return fmt.Sprintf("%s %s (%s)", Name, info.Version, short)
}

// GetDetailedVersionString returns a detailed version string for --version output
func GetDetailedVersionString() string {
	info := GetInfo()
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Name, info.Version)
	fmt.Fprintf(&b, "Git commit: %s\n", info.GitCommit)
	fmt.Fprintf(&b, "Build date: %s\n", info.BuildDate)
	fmt.Fprintf(&b, "Build method: %s\n", info.BuildMethod)
	fmt.Fprintf(&b, "Go version: %s\n", info.GoVersion)
	fmt.Fprintf(&b, "Platform: %s", info.Platform)
	return b.String()
}

// IsRelease returns true if this is a release version (not a dev build)
func IsRelease() bool {
	return Version != "" && GitCommit != "unknown" && !strings.Contains(Version, "dev")
}
