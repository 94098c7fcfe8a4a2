package event

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newEnv(seq uint64) *Envelope {
	env := AcquireEnvelope()
	env.Seq = seq
	return env
}

func TestQueue_FIFO(t *testing.T) {
	q := NewQueue()
	for i := uint64(1); i <= 5; i++ {
		q.Enqueue(newEnv(i))
	}
	require.Equal(t, 5, q.Len())

	for i := uint64(1); i <= 5; i++ {
		env, ok := q.TryDequeue()
		require.True(t, ok)
		require.Equal(t, i, env.Seq)
	}

	_, ok := q.TryDequeue()
	require.False(t, ok, "empty queue must not block or return an envelope")
}

func TestQueue_NoConsumerKeepsEverything(t *testing.T) {
	q := NewQueue()

	const n = 10_000
	done := make(chan struct{})
	go func() {
		for i := uint64(1); i <= n; i++ {
			q.Enqueue(newEnv(i))
		}
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(5 * time.Second):
		t.Fatal("Enqueue blocked without a consumer")
	}
	require.Equal(t, n, q.Len())

	for i := uint64(1); i <= n; i++ {
		env, ok := q.TryDequeue()
		require.True(t, ok, "envelope %d lost", i)
		require.Equal(t, i, env.Seq)
	}
	require.Zero(t, q.Len())
}

func TestQueue_StalledConsumerLosesNothing(t *testing.T) {
	q := NewQueue()
	q.Enqueue(newEnv(0))
	before := q.Len()

	const producers, perProducer = 4, 100
	var wg sync.WaitGroup
	for p := 0; p < producers; p++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := 0; i < perProducer; i++ {
				q.Enqueue(newEnv(uint64(i)))
			}
		}()
	}
	wg.Wait()

	require.Equal(t, before+producers*perProducer, q.Len())

	drained := 0
	for {
		if _, ok := q.TryDequeue(); !ok {
			break
		}
		drained++
	}
	require.Equal(t, before+producers*perProducer, drained)
}

func TestQueue_DequeueTimeout(t *testing.T) {
	q := NewQueue()
	ctx := context.Background()

	start := time.Now()
	_, ok := q.DequeueTimeout(ctx, 50*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)

	go func() {
		time.Sleep(20 * time.Millisecond)
		q.Enqueue(newEnv(9))
	}()
	env, ok := q.DequeueTimeout(ctx, time.Second)
	require.True(t, ok)
	require.Equal(t, uint64(9), env.Seq)
}

func TestQueue_DequeueTimeoutStaleSignal(t *testing.T) {
	q := NewQueue()
	q.Enqueue(newEnv(1))

	// Drain without consuming the notification.
	_, ok := q.TryDequeue()
	require.True(t, ok)

	start := time.Now()
	_, ok = q.DequeueTimeout(context.Background(), 50*time.Millisecond)
	require.False(t, ok)
	require.GreaterOrEqual(t, time.Since(start), 40*time.Millisecond)
}

func TestQueue_DequeueTimeoutCancelled(t *testing.T) {
	q := NewQueue()
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	done := make(chan struct{})
	go func() {
		_, ok := q.DequeueTimeout(ctx, time.Hour)
		assert.False(t, ok)
		close(done)
	}()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("DequeueTimeout ignored cancelled context")
	}
}
