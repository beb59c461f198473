// SPDX-License-Identifier: MIT
//
// Package build exposes build metadata (name, version, commit, build time)
// embedded into the binary with -ldflags. The values default to "dev"
// placeholders so uninstrumented builds (go run, tests) still work.
package build

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// Package-level variables populated by -ldflags at compile time.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string

	buildFlags = &ldFlags{
		Name:    "beatpulse",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies any ldflags-provided values into the flags struct.
// Missing flags keep their development defaults rather than failing,
// so the engine can run without a full release build.
func Initialize() {
	if buildName != "" {
		buildFlags.Name = buildName
	}
	if buildTime != "" {
		buildFlags.Time = buildTime
	}
	if buildCommit != "" {
		buildFlags.Commit = buildCommit
	}
	if buildVersion != "" {
		buildFlags.Version = buildVersion
	}
}

// GetBuildFlags returns the current build information. Call Initialize()
// first; afterwards the returned struct is read-only.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
