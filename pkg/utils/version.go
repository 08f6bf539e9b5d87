// Package utils provides bespoke, one off utils that don't make sense to be
// their own package
package utils

import "runtime"

// Set at link time with -ldflags "-X github.com/papercomputeco/parley/pkg/utils.Version=...".
var (
	Version   = "dev"
	Sha       = "HEAD"
	Buildtime = "dev"
)

// BuildInfo describes the running parley binary.
type BuildInfo struct {
	Version   string `json:"version"`
	Sha       string `json:"sha"`
	Buildtime string `json:"built_at"`
	GoVersion string `json:"go_version"`
	Platform  string `json:"platform"`
}

func Info() BuildInfo {
	return BuildInfo{
		Version:   Version,
		Sha:       Sha,
		Buildtime: Buildtime,
		GoVersion: runtime.Version(),
		Platform:  runtime.GOOS + "/" + runtime.GOARCH,
	}
}
