package device

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestIsValidDeviceID(t *testing.T) {
	t.Run("Valid", func(t *testing.T) {
		for _, id := range []string{"abc123", "DEF456", "a1b2c3", "123", "abcdefgh"} {
			assert.True(t, IsValidDeviceID(id), "id %q should be valid", id)
		}
	})

	t.Run("InternalTesting", func(t *testing.T) {
		assert.True(t, IsValidDeviceID("internal-testing"))
	})

	t.Run("TooShort", func(t *testing.T) {
		for _, id := range []string{"", "a", "ab"} {
			assert.False(t, IsValidDeviceID(id), "id %q should be rejected", id)
		}
	})

	t.Run("TooLong", func(t *testing.T) {
		for _, id := range []string{"abcdefghi", "123456789", "toolongdeviceid"} {
			assert.False(t, IsValidDeviceID(id), "id %q should be rejected", id)
		}
	})

	t.Run("InvalidCharacters", func(t *testing.T) {
		for _, id := range []string{"abc-123", "def_456", "abc@123", "test.id", "test id"} {
			assert.False(t, IsValidDeviceID(id), "id %q should be rejected", id)
		}
	})
}

func TestExtractDeviceID(t *testing.T) {
	t.Run("FromURL", func(t *testing.T) {
		cases := []struct {
			input string
			want  string
		}{
			{"https://app.hyperate.io/abc123", "abc123"},
			{"http://app.hyperate.io/DEF456", "DEF456"},
			{"app.hyperate.io/test123", "test123"},
			{"https://app.hyperate.io/abc123?param=value", "abc123"},
			{"http://app.hyperate.io/test-device?query=1&other=2", "test-device"},
		}
		for _, tc := range cases {
			got, err := ExtractDeviceID(tc.input)
			require.NoError(t, err, "input %q", tc.input)
			assert.Equal(t, tc.want, got, "input %q", tc.input)
		}
	})

	t.Run("RawID", func(t *testing.T) {
		for _, id := range []string{"abc123", "DEF456", "internal-testing"} {
			got, err := ExtractDeviceID(id)
			require.NoError(t, err)
			assert.Equal(t, id, got)
		}
	})

	t.Run("Invalid", func(t *testing.T) {
		for _, s := range []string{"", "https://other-site.com/abc123", "https://app.hyperate.io/", "has spaces"} {
			_, err := ExtractDeviceID(s)
			assert.ErrorIs(t, err, ErrInvalidURL, "input %q", s)
		}
	})

	t.Run("RoundTrip", func(t *testing.T) {
		// Every valid device ID embedded in a share URL extracts back
		// to itself.
		for _, id := range []string{"abc123", "XYZ", "a1b2c3d4", "internal-testing"} {
			require.True(t, IsValidDeviceID(id))
			got, err := ExtractDeviceID("https://app.hyperate.io/" + id)
			require.NoError(t, err)
			assert.Equal(t, id, got)
		}
	})
}
