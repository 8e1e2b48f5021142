package task

import (
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTaskQueue_Enqueue(t *testing.T) {
	t.Parallel()

	t.Run("enqueued tasks are readable in order", func(t *testing.T) {
		t.Parallel()

		queue := NewTaskQueue(2, testLogger())
		first := newMockRunnable("task-1")
		second := newMockRunnable("task-2")

		require.NoError(t, queue.Enqueue(first))
		require.NoError(t, queue.Enqueue(second))

		got := <-queue.GetChannel()
		assert.Equal(t, "task-1", got.ID())
		got = <-queue.GetChannel()
		assert.Equal(t, "task-2", got.ID())
	})

	t.Run("full queue", func(t *testing.T) {
		t.Parallel()

		queue := NewTaskQueue(1, testLogger())
		require.NoError(t, queue.Enqueue(newMockRunnable("task-1")))

		err := queue.Enqueue(newMockRunnable("task-2"))
		assert.ErrorIs(t, err, ErrQueueFull)
	})

	t.Run("closed queue", func(t *testing.T) {
		t.Parallel()

		queue := NewTaskQueue(1, testLogger())
		queue.Close()

		err := queue.Enqueue(newMockRunnable("task-1"))
		assert.ErrorIs(t, err, ErrQueueClosed)
	})

	t.Run("close is idempotent", func(t *testing.T) {
		t.Parallel()

		queue := NewTaskQueue(1, testLogger())
		queue.Close()
		assert.NotPanics(t, queue.Close)
	})
}

func TestTaskQueue_ConcurrentEnqueueAndClose(t *testing.T) {
	t.Parallel()

	// Enqueue racing Close must never panic with a send on a closed
	// channel: every call either succeeds or returns a queue error.
	queue := NewTaskQueue(4, testLogger())

	var wg sync.WaitGroup
	for i := 0; i < 16; i++ {
		wg.Add(1)
		go func(n int) {
			defer wg.Done()
			err := queue.Enqueue(newMockRunnable(fmt.Sprintf("task-%d", n)))
			if err != nil {
				assert.True(t,
					errors.Is(err, ErrQueueFull) || errors.Is(err, ErrQueueClosed),
					"unexpected enqueue error: %v", err)
			}
		}(i)
	}
	queue.Close()
	wg.Wait()
}

func TestTaskQueue_ChannelClosesOnClose(t *testing.T) {
	t.Parallel()

	queue := NewTaskQueue(1, testLogger())
	queue.Close()

	_, ok := <-queue.GetChannel()
	assert.False(t, ok)
}
