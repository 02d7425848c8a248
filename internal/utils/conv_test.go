package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseID(t *testing.T) {
	id, ok := ParseID("17")
	assert.True(t, ok)
	assert.Equal(t, uint(17), id)

	for _, bad := range []string{"", "0", "-1", "1.5", "x"} {
		_, ok := ParseID(bad)
		assert.False(t, ok, "input %q", bad)
	}
}
