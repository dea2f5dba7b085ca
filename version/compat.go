package version

import (
	"fmt"
	"strings"

	"github.com/Masterminds/semver/v3"
)

// Validate checks that a version string follows Semantic Versioning 2.0.0.
// It accepts versions with or without the 'v' prefix and requires
// MAJOR.MINOR.PATCH format. The build-default "dev" is treated as valid.
func Validate(v string) error {
	if v == "" {
		return fmt.Errorf("version is empty")
	}
	if v == devVersion {
		return nil
	}

	clean := strings.TrimPrefix(v, "v")

	// StrictNewVersion requires MAJOR.MINOR.PATCH
	// (NewVersion would auto-complete "1.0" to "1.0.0").
	if _, err := semver.StrictNewVersion(clean); err != nil {
		return fmt.Errorf("invalid semantic version: %w", err)
	}

	return nil
}

// Compatible reports whether a producer version stamped on a bus message
// is wire-compatible with this worker. Versions are compatible when their
// major components match; "dev" builds are compatible with everything.
func Compatible(producer string) bool {
	local := Get()
	if producer == "" || producer == devVersion || local == devVersion {
		return true
	}

	pv, err := semver.NewVersion(strings.TrimPrefix(producer, "v"))
	if err != nil {
		return false
	}
	lv, err := semver.NewVersion(strings.TrimPrefix(local, "v"))
	if err != nil {
		return true
	}

	return pv.Major() == lv.Major()
}
