// Package version holds build metadata stamped in with -ldflags, e.g.
//
//	go build -ldflags "-X github.com/pysugar/coach-connect/internal/version.Version=v0.1.0 \
//	  -X github.com/pysugar/coach-connect/internal/version.Commit=$(git rev-parse --short HEAD)"
package version

var (
	Version   = "dev"
	Commit    = "none"
	BuildTime = "unknown"
)

// String is the one-line form used in the start-up log.
func String() string {
	return Version + " (" + Commit + ", built " + BuildTime + ")"
}
