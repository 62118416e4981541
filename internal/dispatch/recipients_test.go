package dispatch

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestSplitRecipients(t *testing.T) {
	cases := []struct {
		name string
		raw  string
		want []string
	}{
		{"comma separated", "a@x.com,b@x.com", []string{"a@x.com", "b@x.com"}},
		{"semicolon separated", "a@x.com;b@x.com", []string{"a@x.com", "b@x.com"}},
		{"semicolon wins over comma", "a@x.com;b@x.com,c@x.com", []string{"a@x.com", "b@x.com,c@x.com"}},
		{"whitespace trimmed", "  a@x.com ,\tb@x.com ", []string{"a@x.com", "b@x.com"}},
		{"duplicates keep first occurrence", "a@x.com,b@x.com,a@x.com", []string{"a@x.com", "b@x.com"}},
		{"invalid entries dropped", "a@x.com,not-an-address,,b@x.com", []string{"a@x.com", "b@x.com"}},
		{"all invalid", "nope, also nope", nil},
		{"empty", "", nil},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			assert.Equal(t, tc.want, SplitRecipients(tc.raw))
		})
	}
}

func TestSplitRecipientsSemicolonWinsOverComma(t *testing.T) {
	// A comma inside a semicolon-separated entry makes the entry invalid
	// rather than splitting it further.
	got := SplitRecipients("a@x.com;b@x.com,c")
	assert.Equal(t, []string{"a@x.com", "b@x.com,c"}, got)
}

func TestValidPhone(t *testing.T) {
	valid := []string{"+34600111222", "+12025550147", "+123456789012345", " +34600111222 "}
	for _, p := range valid {
		assert.True(t, ValidPhone(p), p)
	}

	invalid := []string{
		"",
		"34600111222",       // missing +
		"+123456789",        // 9 digits, too short
		"+1234567890123456", // 16 digits, too long
		"+34 600 111 222",   // spaces inside
		"+34600abc222",
		"+",
	}
	for _, p := range invalid {
		assert.False(t, ValidPhone(p), p)
	}
}
