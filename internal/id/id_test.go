package id

import (
	"regexp"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestUUID_Format(t *testing.T) {
	uuidRegex := regexp.MustCompile(`^[0-9a-f]{8}-[0-9a-f]{4}-4[0-9a-f]{3}-[89ab][0-9a-f]{3}-[0-9a-f]{12}$`)
	assert.Regexp(t, uuidRegex, UUID())
	assert.NotEqual(t, UUID(), UUID())
}

func TestShortID(t *testing.T) {
	for _, n := range []int{1, 4, MaxShortIDBytes} {
		s, err := ShortID(n)
		require.NoError(t, err)
		assert.Len(t, s, 2*n)
		assert.Regexp(t, `^[0-9a-f]+$`, s)
	}
}

func TestShortID_Bounds(t *testing.T) {
	for _, n := range []int{0, -1, MaxShortIDBytes + 1} {
		_, err := ShortID(n)
		assert.Error(t, err, "n=%d", n)
	}
}
