package versioning

import (
	"fmt"
	"regexp"
	"runtime"
	"strconv"
)

// APIVersion represents a semantic version for the API
type APIVersion struct {
	Major      int    `json:"major"`
	Minor      int    `json:"minor"`
	Patch      int    `json:"patch"`
	Prerelease string `json:"prerelease,omitempty"`
}

// String returns the version as a string (e.g., "1.2.3" or "1.2.3-beta")
func (v APIVersion) String() string {
	version := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		version += "-" + v.Prerelease
	}
	return version
}

// Compare returns -1 if v < other, 0 if equal, 1 if v > other.
func (v APIVersion) Compare(other APIVersion) int {
	for _, pair := range [][2]int{{v.Major, other.Major}, {v.Minor, other.Minor}, {v.Patch, other.Patch}} {
		if pair[0] < pair[1] {
			return -1
		}
		if pair[0] > pair[1] {
			return 1
		}
	}

	switch {
	case v.Prerelease == other.Prerelease:
		return 0
	case v.Prerelease == "":
		return 1
	case other.Prerelease == "":
		return -1
	case v.Prerelease < other.Prerelease:
		return -1
	default:
		return 1
	}
}

var (
	V1_0_0 = APIVersion{Major: 1, Minor: 0, Patch: 0}

	// CurrentVersion is the API this build serves.
	CurrentVersion = V1_0_0

	// MinimumSupportedVersion is the oldest client API still accepted.
	MinimumSupportedVersion = V1_0_0
)

var versionPattern = regexp.MustCompile(`^(\d+)\.(\d+)\.(\d+)(?:-([a-zA-Z0-9\-\.]+))?$`)

// ParseVersion parses a version string into an APIVersion
func ParseVersion(versionStr string) (APIVersion, error) {
	matches := versionPattern.FindStringSubmatch(versionStr)
	if matches == nil {
		return APIVersion{}, fmt.Errorf("invalid version format: %s", versionStr)
	}

	parts := make([]int, 3)
	for i := range parts {
		n, err := strconv.Atoi(matches[i+1])
		if err != nil {
			return APIVersion{}, fmt.Errorf("invalid version component %q: %w", matches[i+1], err)
		}
		parts[i] = n
	}

	return APIVersion{Major: parts[0], Minor: parts[1], Patch: parts[2], Prerelease: matches[4]}, nil
}

// Build information, set with -ldflags at release time.
var (
	Version   = "dev"
	BuildTime = "unknown"
	GitCommit = "unknown"
)

// BuildInfo describes the running binary.
type BuildInfo struct {
	API       string `json:"api_version"`
	Version   string `json:"version"`
	Commit    string `json:"git_commit"`
	BuildTime string `json:"build_time"`
	GoVersion string `json:"go_version"`
}

func CurrentBuildInfo() BuildInfo {
	return BuildInfo{
		API:       CurrentVersion.String(),
		Version:   Version,
		Commit:    GitCommit,
		BuildTime: BuildTime,
		GoVersion: runtime.Version(),
	}
}

// VersionCompatibility reports whether a requested API version can be served.
type VersionCompatibility struct {
	Requested  APIVersion `json:"requested_version"`
	Current    APIVersion `json:"current_version"`
	Compatible bool       `json:"compatible"`
	TooOld     bool       `json:"too_old,omitempty"`
	TooNew     bool       `json:"too_new,omitempty"`
}

// CheckCompatibility accepts any version in the current major line that is
// not newer than the current version and not older than the minimum.
func CheckCompatibility(requested APIVersion) VersionCompatibility {
	compat := VersionCompatibility{Requested: requested, Current: CurrentVersion}
	switch {
	case requested.Compare(MinimumSupportedVersion) < 0:
		compat.TooOld = true
	case requested.Major != CurrentVersion.Major || requested.Compare(CurrentVersion) > 0:
		compat.TooNew = true
	default:
		compat.Compatible = true
	}
	return compat
}
