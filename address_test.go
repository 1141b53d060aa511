package ryepay

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFullName(t *testing.T) {
	tests := []struct {
		full  string
		first string
		last  string
	}{
		{"Ada Lovelace", "Ada", "Lovelace"},
		{"Ada", "Ada", ""},
		{"", "", ""},
		{"  Ada   Lovelace  ", "Ada", "Lovelace"},
		// Third token is discarded by policy.
		{"Ada King Lovelace", "Ada", "King"},
	}

	for _, tt := range tests {
		name := ParseFullName(tt.full)
		assert.Equal(t, tt.first, name.First, "full=%q", tt.full)
		assert.Equal(t, tt.last, name.Last, "full=%q", tt.full)
	}
}

func TestPartialAddressHasContact(t *testing.T) {
	assert.False(t, PartialAddress{PostalCode: "98101", CountryCode: "US"}.HasContact())
	assert.True(t, PartialAddress{FirstName: "Ada"}.HasContact())
}
