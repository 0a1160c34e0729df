package spec

import (
	"strings"

	"golang.org/x/mod/semver"
)

// Schema version window supported by this build. Documents below the
// minimum are refused on read; documents above the maximum are refused
// on write (and on read, since we could not round-trip them safely).
const (
	MinSchemaVersion = "1.0"
	MaxSchemaVersion = "2.0"

	// CurrentSchemaVersion is stamped into newly created documents.
	CurrentSchemaVersion = "1.0"
)

// canonVersion normalizes a metadata.version string for comparison.
// Versions are stored without the "v" prefix; absent means 1.0.
func canonVersion(v string) string {
	v = strings.TrimSpace(v)
	if v == "" {
		v = "1.0"
	}
	if !strings.HasPrefix(v, "v") {
		v = "v" + v
	}
	if semver.Canonical(v) == "" {
		return ""
	}
	return v
}

// CheckReadVersion returns an error when a document's schema version
// falls outside the supported window for reading.
func CheckReadVersion(v string) error {
	cv := canonVersion(v)
	if cv == "" {
		return E(KindMalformedSpec, "unparseable schema version %q", v)
	}
	if semver.Compare(cv, "v"+MinSchemaVersion) < 0 {
		return E(KindMalformedSpec, "schema version %s is below minimum supported %s", v, MinSchemaVersion).
			WithDetails(map[string]any{"version": v, "min_supported": MinSchemaVersion})
	}
	if semver.Compare(cv, "v"+MaxSchemaVersion) > 0 {
		return E(KindMalformedSpec, "schema version %s exceeds maximum supported %s", v, MaxSchemaVersion).
			WithDetails(map[string]any{"version": v, "max_supported": MaxSchemaVersion})
	}
	return nil
}

// CheckWriteVersion returns an error when the engine must not persist
// a document of the given schema version.
func CheckWriteVersion(v string) error {
	cv := canonVersion(v)
	if cv == "" {
		return E(KindMalformedSpec, "unparseable schema version %q", v)
	}
	if semver.Compare(cv, "v"+MaxSchemaVersion) > 0 {
		return E(KindMalformedSpec, "refusing to write schema version %s newer than supported %s", v, MaxSchemaVersion).
			WithDetails(map[string]any{"version": v, "max_supported": MaxSchemaVersion})
	}
	return nil
}
