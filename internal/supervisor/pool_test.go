package supervisor_test

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/gargamel/gargamel-league/internal/supervisor"
)

func newTestPool(t *testing.T, n int) *supervisor.Pool {
	t.Helper()
	creds := make([]supervisor.Credential, n)
	for i := range creds {
		creds[i] = supervisor.Credential{
			Username: fmt.Sprintf("bot%d", i),
			Password: "secret",
		}
	}
	return supervisor.NewPool(creds, testLogger())
}

func TestPoolAcquiresSmallestFreeSlot(t *testing.T) {
	p := newTestPool(t, 3)

	slot0, cred0, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot0)
	assert.Equal(t, "bot0", cred0.Username)

	slot1, _, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, slot1)

	// Freeing slot 0 makes it the next one handed out, not slot 2.
	p.Release(0)
	slot, cred, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 0, slot)
	assert.Equal(t, "bot0", cred.Username)
}

func TestPoolExhaustion(t *testing.T) {
	p := newTestPool(t, 2)

	_, _, err := p.Acquire()
	require.NoError(t, err)
	_, _, err = p.Acquire()
	require.NoError(t, err)

	_, _, err = p.Acquire()
	assert.ErrorIs(t, err, supervisor.ErrNoSlotAvailable)
	assert.Equal(t, 2, p.ActiveCount())

	p.Release(1)
	_, _, err = p.Acquire()
	assert.NoError(t, err)
}

func TestPoolReleaseIdempotent(t *testing.T) {
	p := newTestPool(t, 2)

	slot, _, err := p.Acquire()
	require.NoError(t, err)
	assert.Equal(t, 1, p.ActiveCount())

	p.Release(slot)
	p.Release(slot) // double release is a no-op
	p.Release(99)   // out of range ignored
	assert.Equal(t, 0, p.ActiveCount())

	// The double release must not have corrupted slot accounting.
	a, _, err := p.Acquire()
	require.NoError(t, err)
	b, _, err := p.Acquire()
	require.NoError(t, err)
	assert.NotEqual(t, a, b)
	_, _, err = p.Acquire()
	assert.ErrorIs(t, err, supervisor.ErrNoSlotAvailable)
}

func TestPoolSize(t *testing.T) {
	p := newTestPool(t, 4)
	assert.Equal(t, 4, p.Size())
	assert.Equal(t, 0, p.ActiveCount())
}
