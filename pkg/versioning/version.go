// Package versioning provides the semantic version value stamped on command
// center revisions. The bump operation chosen signals the magnitude of a
// change to downstream consumers: a from-scratch generation starts at 1.0.0,
// an applied recalibration bumps the minor, and in-place edits bump the patch.
package versioning

import (
	"encoding/json"
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Initial is the version stamped on a command center generated from scratch.
var Initial = Version{Major: 1, Minor: 0, Patch: 0}

// Version represents a semantic version following SemVer 2.0.0.
type Version struct {
	Major      uint64
	Minor      uint64
	Patch      uint64
	Prerelease string
	Build      string
}

// String returns the string representation of the version.
func (v Version) String() string {
	s := fmt.Sprintf("%d.%d.%d", v.Major, v.Minor, v.Patch)
	if v.Prerelease != "" {
		s += "-" + v.Prerelease
	}
	if v.Build != "" {
		s += "+" + v.Build
	}
	return s
}

// Parse parses a version string into a Version. A leading "v" is accepted;
// partial versions such as "1.0" are rejected.
func Parse(version string) (Version, error) {
	sv, err := semver.StrictNewVersion(strings.TrimPrefix(strings.TrimSpace(version), "v"))
	if err != nil {
		return Version{}, fmt.Errorf("invalid version string %q: %w", version, err)
	}
	return Version{
		Major:      sv.Major(),
		Minor:      sv.Minor(),
		Patch:      sv.Patch(),
		Prerelease: sv.Prerelease(),
		Build:      sv.Metadata(),
	}, nil
}

// MustParse is Parse for literals known to be valid.
func MustParse(version string) Version {
	v, err := Parse(version)
	if err != nil {
		panic(err)
	}
	return v
}

// Compare compares two versions using SemVer precedence.
// Returns -1 if v < other, 0 if v == other, 1 if v > other.
func (v Version) Compare(other Version) int {
	return v.semver().Compare(other.semver())
}

func (v Version) semver() *semver.Version {
	return semver.New(v.Major, v.Minor, v.Patch, v.Prerelease, v.Build)
}

// IsZero reports whether v was never set.
func (v Version) IsZero() bool {
	return v == Version{}
}

// BumpMajor returns a new version with major incremented.
func (v Version) BumpMajor() Version {
	return Version{Major: v.Major + 1}
}

// BumpMinor returns a new version with minor incremented and patch reset.
func (v Version) BumpMinor() Version {
	return Version{Major: v.Major, Minor: v.Minor + 1}
}

// BumpPatch returns a new version with patch incremented.
func (v Version) BumpPatch() Version {
	return Version{Major: v.Major, Minor: v.Minor, Patch: v.Patch + 1}
}

// MarshalJSON encodes the version as its string form.
func (v Version) MarshalJSON() ([]byte, error) {
	return json.Marshal(v.String())
}

// UnmarshalJSON decodes a version string.
func (v *Version) UnmarshalJSON(data []byte) error {
	var s string
	if err := json.Unmarshal(data, &s); err != nil {
		return fmt.Errorf("version must be a string: %w", err)
	}
	parsed, err := Parse(s)
	if err != nil {
		return err
	}
	*v = parsed
	return nil
}

// MarshalYAML encodes the version as its string form.
func (v Version) MarshalYAML() (any, error) {
	return v.String(), nil
}
