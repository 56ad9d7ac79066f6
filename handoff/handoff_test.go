package handoff

import (
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueue_DrainAllKeepsOrder(t *testing.T) {
	q := NewQueue[int]()
	require.Nil(t, q.DrainAll())

	for _, v := range []int{5, 3, 3, 9} {
		q.Push(v)
	}
	require.Equal(t, 4, q.Len())
	require.Equal(t, []int{5, 3, 3, 9}, q.DrainAll())
	require.Nil(t, q.DrainAll())

	q.Push(1)
	require.Equal(t, []int{1}, q.DrainAll())
}

func TestQueue_ConcurrentProducer(t *testing.T) {
	const n = 10000
	q := NewQueue[int]()

	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		for i := 0; i < n; i++ {
			q.Push(i)
		}
	}()

	var got []int
	deadline := time.After(5 * time.Second)
	for len(got) < n {
		select {
		case <-deadline:
			t.Fatalf("drained %d of %d items", len(got), n)
		default:
		}
		got = append(got, q.DrainAll()...)
	}
	wg.Wait()

	for i, v := range got {
		require.Equal(t, i, v)
	}
}

func TestErrorChannel_OnceInOnceOut(t *testing.T) {
	c := NewErrorChannel()
	_, ok := c.Take()
	require.False(t, ok)

	require.True(t, c.Put("could not open port"))
	assert.False(t, c.Put("second"))

	msg, ok := c.Take()
	require.True(t, ok)
	require.Equal(t, "could not open port", msg)

	_, ok = c.Take()
	require.False(t, ok)
}

func TestLiveBuffer_Freshness(t *testing.T) {
	b := NewLiveBuffer[int64]()
	fixed := time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC)
	b.now = func() time.Time { return fixed }

	_, ok := b.ReadIfFresh()
	require.False(t, ok)

	b.Push(1)
	b.Push(2)
	snap, ok := b.ReadIfFresh()
	require.True(t, ok)
	require.Equal(t, int64(2), snap.Value)
	require.Equal(t, fixed, snap.At)

	_, ok = b.ReadIfFresh()
	require.False(t, ok, "second read without push must be stale")

	b.Push(3)
	snap, ok = b.ReadIfFresh()
	require.True(t, ok)
	require.Equal(t, int64(3), snap.Value)
}
