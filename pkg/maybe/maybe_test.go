package maybe

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestMaybe(t *testing.T) {
	var none Maybe[string]
	v, ok := none.Get()
	assert.False(t, ok)
	assert.Empty(t, v)

	m := Some("scheme")
	v, ok = m.Get()
	assert.True(t, ok)
	assert.Equal(t, "scheme", v)
}
