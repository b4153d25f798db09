// Package version carries build identification for the homebase binaries.
// Release builds stamp the variables at link time:
//
//	go build -ldflags "-X github.com/strandbotics/homebase/internal/version.Version=v0.3.0 \
//	  -X github.com/strandbotics/homebase/internal/version.GitSHA=$(git rev-parse HEAD)"
package version

import "fmt"

var (
	// Version is the release tag, "dev" for unstamped builds
	Version = "dev"
	// GitSHA is the git commit the binary was built from
	GitSHA = "unknown"
	// BuildTime is the build timestamp
	BuildTime = "unknown"
)

// String renders the build identification on one line, leaving out fields
// an unstamped build does not carry.
func String() string {
	if GitSHA == "unknown" {
		return Version
	}
	sha := GitSHA
	if len(sha) > 12 {
		sha = sha[:12]
	}
	if BuildTime == "unknown" {
		return fmt.Sprintf("%s (%s)", Version, sha)
	}
	return fmt.Sprintf("%s (%s, built %s)", Version, sha, BuildTime)
}
