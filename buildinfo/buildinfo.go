// Package buildinfo contains application metadata that can be set at build time.
//
// For release builds, use ldflags to set the version:
//
//	go build -ldflags "-X github.com/nedpals/davi-transit/buildinfo.Version=1.0.0"
//
// Or set multiple values:
//
//	go build -ldflags "\
//	  -X github.com/nedpals/davi-transit/buildinfo.Version=1.0.0 \
//	  -X github.com/nedpals/davi-transit/buildinfo.Commit=$(git rev-parse --short HEAD) \
//	  -X github.com/nedpals/davi-transit/buildinfo.BuildTime=$(date -u +%Y-%m-%dT%H:%M:%SZ)"
package buildinfo

import (
	"fmt"
	"runtime"
	"strings"
)

// Application metadata - can be overridden at build time via ldflags
var (
	// Name is the technical application name, also the CLI root command
	Name = "davi-transit"

	// DirName is the name of the config directory within user config paths
	DirName = "davi-transit"

	// DisplayName is the user-friendly name
	DisplayName = "Davi Transit"

	// Description is a short description of the application
	Description = "Transit card reader and decoder"

	// Version is the semantic version (set via ldflags for releases)
	Version = "dev"

	// Commit is the git commit hash (set via ldflags)
	Commit = ""

	// BuildTime is the build timestamp (set via ldflags)
	BuildTime = ""
)

// EnvPrefix prefixes every environment variable the application reads.
func EnvPrefix() string {
	return strings.ToUpper(strings.ReplaceAll(Name, "-", "_")) + "_"
}

// FullVersion returns the version string with optional commit info.
// Examples:
//   - "dev" (development build)
//   - "1.0.0" (release build)
//   - "1.0.0 (abc1234)" (release build with commit)
func FullVersion() string {
	if Commit != "" {
		return fmt.Sprintf("%s (%s)", Version, Commit)
	}
	return Version
}

// BuildInfo returns a multi-line string with full build information.
func BuildInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "%s %s\n", Name, FullVersion())
	fmt.Fprintf(&b, "  %s\n", Description)
	fmt.Fprintf(&b, "  Go: %s\n", runtime.Version())
	fmt.Fprintf(&b, "  OS/Arch: %s/%s", runtime.GOOS, runtime.GOARCH)
	if BuildTime != "" {
		fmt.Fprintf(&b, "\n  Built: %s", BuildTime)
	}
	return b.String()
}

// IsDev returns true if this is a development build.
func IsDev() bool {
	return Version == "dev"
}
