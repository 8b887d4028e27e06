package device

import (
	"errors"
	"regexp"
)

// InternalTestingID is the sentinel device ID the relay exposes for
// integration testing. It is accepted even though it does not match
// the normal token format.
const InternalTestingID = "internal-testing"

// ErrInvalidURL is returned when a string is neither a device ID nor a
// recognizable HypeRate share URL.
var ErrInvalidURL = errors.New("not a HypeRate share URL or device ID")

var (
	// Normal device IDs are 3-8 alphanumeric characters.
	validIDPattern = regexp.MustCompile(`^[a-zA-Z0-9]{3,8}$`)

	// Share URLs look like https://app.hyperate.io/<id>, with the scheme
	// optional and an optional query string. Extraction is more lenient
	// than validation: hyphens are allowed so the sentinel ID survives.
	shareURLPattern = regexp.MustCompile(`^(?:https?://)?app\.hyperate\.io/([a-zA-Z0-9\-]+)`)

	// Raw tokens accepted by extraction (validation may still reject them).
	rawIDPattern = regexp.MustCompile(`^[a-zA-Z0-9\-]{3,16}$`)
)

// IsValidDeviceID reports whether s is a device ID the relay will
// accept: the fixed-length alphanumeric format or the internal-testing
// sentinel.
func IsValidDeviceID(s string) bool {
	if s == InternalTestingID {
		return true
	}
	return validIDPattern.MatchString(s)
}

// ExtractDeviceID extracts the device ID embedded in a share URL.
// Raw device IDs pass through unchanged, so user input can be either
// form. Returns ErrInvalidURL if neither pattern matches.
func ExtractDeviceID(s string) (string, error) {
	if m := shareURLPattern.FindStringSubmatch(s); m != nil {
		return m[1], nil
	}
	if rawIDPattern.MatchString(s) {
		return s, nil
	}
	return "", ErrInvalidURL
}
