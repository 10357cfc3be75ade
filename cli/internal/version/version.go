// Package version reports build information for the duckql binary.
package version

import (
	"fmt"
	"runtime"
	"runtime/debug"
)

var (
	// Version is the version of the CLI
	Version = "0.1.0"
	// BuildDate is the build date
	BuildDate = "unknown"
	// GitCommit is the git commit hash
	GitCommit = "unknown"
)

// Info holds version information
type Info struct {
	Version       string
	BuildDate     string
	GitCommit     string
	GoVersion     string
	Platform      string
	DuckDBVersion string
}

// Get returns version information. The DuckDB driver version is read from
// the module build info when available.
func Get() Info {
	info := Info{
		Version:       Version,
		BuildDate:     BuildDate,
		GitCommit:     GitCommit,
		GoVersion:     runtime.Version(),
		Platform:      fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH),
		DuckDBVersion: "unknown",
	}
	if bi, ok := debug.ReadBuildInfo(); ok {
		for _, dep := range bi.Deps {
			if dep.Path == "github.com/marcboeker/go-duckdb" {
				info.DuckDBVersion = dep.Version
			}
		}
	}
	return info
}

// String returns a formatted version string
func (i Info) String() string {
	return fmt.Sprintf("duckql version %s (%s %s)", i.Version, i.Platform, i.GoVersion)
}

// FullString returns a detailed version string
func (i Info) FullString() string {
	return fmt.Sprintf(`duckql version %s
Build Date: %s
Git Commit: %s
Platform: %s
Go Version: %s
go-duckdb: %s`, i.Version, i.BuildDate, i.GitCommit, i.Platform, i.GoVersion, i.DuckDBVersion)
}
