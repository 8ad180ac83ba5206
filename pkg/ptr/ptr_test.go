package ptr

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestDeref(t *testing.T) {
	assert.Equal(t, 3, Deref(Ptr(3), 7))
	assert.Equal(t, 7, Deref[int](nil, 7))
}

func TestNonZero(t *testing.T) {
	assert.Nil(t, NonZero(""))
	assert.Equal(t, "x", *NonZero("x"))
	assert.Nil(t, NonZero(float32(0)))
}
