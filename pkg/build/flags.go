// SPDX-License-Identifier: MIT
//
// Package build holds the version metadata stamped into the binary with
// linker flags, for example:
//
//	go build -ldflags "-X sketchpad/pkg/build.buildName=sketchpad \
//	    -X sketchpad/pkg/build.buildVersion=v0.3.0 ..."
//
// Development builds carry the defaults below.
package build

import (
	"errors"
	"fmt"
)

// Description is the one-line summary shown in help output.
const Description = "Teach a visual sketch to respond to your voice"

type ldFlags struct {
	Name    string
	Time    string
	Commit  string
	Version string
}

// String formats the flags for --version output and log lines.
func (f *ldFlags) String() string {
	return fmt.Sprintf("%s %s (commit %s, built %s)", f.Name, f.Version, f.Commit, f.Time)
}

// ErrDevBuild wraps the error returned by Initialize for unstamped binaries.
var ErrDevBuild = errors.New("development build")

// Populated by -ldflags.
var (
	buildName    string
	buildTime    string
	buildCommit  string
	buildVersion string
	buildFlags   = &ldFlags{
		Name:    "sketchpad",
		Time:    "unknown",
		Commit:  "unknown",
		Version: "dev",
	}
)

// Initialize copies the linker-provided values into the build flags. When
// any of them is missing the defaults are kept and an error wrapping
// ErrDevBuild names the first missing one.
func Initialize() error {
	for _, f := range []struct{ name, value string }{
		{"BuildName", buildName},
		{"BuildTime", buildTime},
		{"BuildCommit", buildCommit},
		{"BuildVersion", buildVersion},
	} {
		if f.value == "" {
			return fmt.Errorf("%w: %s is required", ErrDevBuild, f.name)
		}
	}

	buildFlags.Name = buildName
	buildFlags.Time = buildTime
	buildFlags.Commit = buildCommit
	buildFlags.Version = buildVersion
	return nil
}

// GetBuildFlags returns the current build information.
func GetBuildFlags() *ldFlags {
	return buildFlags
}
