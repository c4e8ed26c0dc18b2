package plate

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalize(t *testing.T) {
	testCases := []struct {
		name      string
		raw       string
		expected  string
		expectErr bool
	}{
		{
			name:     "Already normalized",
			raw:      "ABC123",
			expected: "ABC123",
		},
		{
			name:     "Lowercase with spaces",
			raw:      "  abc123 ",
			expected: "ABC123",
		},
		{
			name:     "Hyphenated",
			raw:      "xyz-98a",
			expected: "XYZ-98A",
		},
		{
			name:      "Blank",
			raw:       "   ",
			expectErr: true,
		},
		{
			name:      "Too short",
			raw:       "a1",
			expectErr: true,
		},
		{
			name:      "Inner space",
			raw:       "ABC 123",
			expectErr: true,
		},
		{
			name:      "Accented letter",
			raw:       "ÑAB123",
			expectErr: true,
		},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := Normalize(tc.raw)
			if tc.expectErr {
				assert.Error(t, err)
				return
			}
			assert.NoError(t, err)
			assert.Equal(t, tc.expected, got)
		})
	}
}
