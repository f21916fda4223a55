package ports

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestAllocateLowestFree(t *testing.T) {
	a := New(20000, 20010)

	p1, err := a.Allocate("w1")
	require.NoError(t, err)

	p2, err := a.Allocate("w2")
	require.NoError(t, err)

	assert.NotEqual(t, p1, p2)
	assert.GreaterOrEqual(t, p1, 20000)
	assert.Less(t, p2, 20010)
}

func TestReleaseIsIdempotent(t *testing.T) {
	a := New(20100, 20110)

	p, err := a.Allocate("w1")
	require.NoError(t, err)

	a.Release(p)
	a.Release(p) // second release must not panic or error

	_, ok := a.OwnerOf(p)
	assert.False(t, ok)
}

func TestExhaustedRangeReturnsErrNoPorts(t *testing.T) {
	a := New(20200, 20202)

	_, err := a.Allocate("w1")
	require.NoError(t, err)
	_, err = a.Allocate("w2")
	require.NoError(t, err)

	_, err = a.Allocate("w3")
	require.ErrorIs(t, err, ErrNoPorts)
}

func TestReserveRejectsAlreadyTrackedPort(t *testing.T) {
	a := New(20300, 20310)

	p, err := a.Allocate("w1")
	require.NoError(t, err)

	err = a.Reserve(p, "w2")
	assert.ErrorIs(t, err, ErrPortInUse)
}

func TestPortReclaimAfterRelease(t *testing.T) {
	a := New(20400, 20401)

	p, err := a.Allocate("w1")
	require.NoError(t, err)

	a.Release(p)

	p2, err := a.Allocate("w2")
	require.NoError(t, err)
	assert.Equal(t, p, p2)
}
