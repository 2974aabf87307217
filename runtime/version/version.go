// Package version reports the hkweather build. The variables can be set at
// build time with ldflags:
//
//	go build -ldflags "-X github.com/hanyun2019/mcp-on-aws-demo/runtime/version.version=1.0.0"
package version

import (
	"context"
	"fmt"
	"runtime/debug"
	"strings"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
)

const (
	devVersion     = "dev"
	shortCommitLen = 7
	vcsRevisionKey = "vcs.revision"
	vcsModifiedKey = "vcs.modified"
)

// Build-time variables.
var (
	version   = devVersion
	gitCommit = ""
	buildDate = ""
)

// GetVersion returns the current version string, falling back to the module
// version recorded in the build info.
func GetVersion() string {
	if version != devVersion {
		return version
	}
	if info, ok := debug.ReadBuildInfo(); ok {
		if info.Main.Version != "" && info.Main.Version != "(devel)" {
			return info.Main.Version
		}
	}
	return devVersion
}

func buildSetting(key string) string {
	info, ok := debug.ReadBuildInfo()
	if !ok {
		return ""
	}
	for _, setting := range info.Settings {
		if setting.Key == key {
			return setting.Value
		}
	}
	return ""
}

func commit() string {
	if gitCommit != "" {
		return gitCommit
	}
	rev := buildSetting(vcsRevisionKey)
	return rev[:min(shortCommitLen, len(rev))]
}

// GetVersionInfo returns the multi-line text printed by "hkweather version".
func GetVersionInfo() string {
	var b strings.Builder
	fmt.Fprintf(&b, "hkweather version %s", GetVersion())
	if c := commit(); c != "" {
		fmt.Fprintf(&b, "\ncommit: %s", c)
	}
	if buildDate != "" {
		fmt.Fprintf(&b, "\nbuilt: %s", buildDate)
	}
	return b.String()
}

// GetBuildInfo returns version details as slog key/value pairs.
func GetBuildInfo() []any {
	attrs := []any{"version", GetVersion()}
	if c := commit(); c != "" {
		attrs = append(attrs, "commit", c)
	}
	if gitCommit == "" && buildSetting(vcsModifiedKey) == "true" {
		attrs = append(attrs, "dirty", true)
	}
	if buildDate != "" {
		attrs = append(attrs, "built", buildDate)
	}
	return attrs
}

// LogStartup records which build of component is starting, at debug level.
func LogStartup(ctx context.Context, component string) {
	logger.DebugContext(ctx, "hkweather starting", append([]any{"component", component}, GetBuildInfo()...)...)
}
