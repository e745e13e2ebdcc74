package safepool

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestPoolGetPut(t *testing.T) {
	created := 0
	p := NewPool(func() int {
		created++
		return created
	})

	a := p.Get()
	require.Equal(t, 1, a)

	p.Put(a)
	b := p.Get()
	require.Equal(t, a, b, "Put item should be reused by the next Get")
}
