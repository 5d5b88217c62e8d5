// Package version carries the framework release number.
//
// Releases cut from main use rounded versions (1.0.0, 1.1.0); builds from
// feature branches carry a prerelease suffix such as 1.0.0-dev.1.
package version

import (
	"strconv"
	"strings"

	"golang.org/x/mod/semver"
)

// Version is the single source of truth for the framework version.
const Version = "0.3.11"

// Get returns the full version string.
func Get() string {
	return Version
}

// Tag returns the git tag the version is published under.
func Tag() string {
	return "v" + Version
}

// Tuple splits the version into major, minor, patch and prerelease suffix.
func Tuple() (major, minor, patch int, suffix string) {
	major, minor, patch, suffix, _ = Parse(Tag())
	return major, minor, patch, suffix
}

// IsRelease reports whether the version is a main branch release.
func IsRelease() bool {
	return semver.Prerelease(Tag()) == ""
}

// ValidTag reports whether tag is a full vMAJOR.MINOR.PATCH[-suffix] tag.
func ValidTag(tag string) bool {
	return semver.IsValid(tag) && semver.Canonical(tag) == strings.SplitN(tag, "+", 2)[0]
}

// Parse breaks a tag such as v1.2.3-dev.1 into its components.
func Parse(tag string) (major, minor, patch int, suffix string, ok bool) {
	if !ValidTag(tag) {
		return 0, 0, 0, "", false
	}
	suffix = strings.TrimPrefix(semver.Prerelease(tag), "-")
	core := strings.TrimSuffix(strings.TrimPrefix(semver.Canonical(tag), "v"), semver.Prerelease(tag))
	parts := strings.Split(core, ".")
	major, _ = strconv.Atoi(parts[0])
	minor, _ = strconv.Atoi(parts[1])
	patch, _ = strconv.Atoi(parts[2])
	return major, minor, patch, suffix, true
}
