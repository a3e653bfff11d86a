package domain

import "strings"

// CurrentSchemaVersion is stamped onto every queue payload this build
// produces. Consumers accept any "1.x" — see AcceptsSchemaVersion.
const CurrentSchemaVersion = "1.0"

// AcceptsSchemaVersion reports whether a consumer built against
// CurrentSchemaVersion's major version can process a payload carrying v.
// Unknown trailing fields are always ignored by json.Unmarshal into a
// known struct; this only guards the major-version boundary.
func AcceptsSchemaVersion(v string) bool {
	if v == "" {
		return false
	}
	major := v
	if idx := strings.IndexByte(v, '.'); idx >= 0 {
		major = v[:idx]
	}
	ourMajor := CurrentSchemaVersion[:strings.IndexByte(CurrentSchemaVersion, '.')]
	return major == ourMajor
}
