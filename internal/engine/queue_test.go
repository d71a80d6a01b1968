package engine

import (
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func job(id string) Job {
	return Job{Batch: &enrollment.Batch{ID: id}}
}

func TestJobQueue_FIFO(t *testing.T) {
	q := newJobQueue()

	for _, id := range []string{"A", "B", "C"} {
		require.True(t, q.Enqueue(job(id)))
	}
	assert.Equal(t, 3, q.Len())

	for _, want := range []string{"A", "B", "C"} {
		j, ok := q.TryDequeue()
		require.True(t, ok)
		assert.Equal(t, want, j.Batch.ID)
	}
	assert.Zero(t, q.Len())
}

func TestJobQueue_TryDequeue_Empty(t *testing.T) {
	q := newJobQueue()

	_, ok := q.TryDequeue()
	assert.False(t, ok, "dequeue from empty queue should return false")
}

func TestJobQueue_WaitSignalsOnEnqueue(t *testing.T) {
	q := newJobQueue()

	done := make(chan string)
	go func() {
		<-q.Wait()
		j, ok := q.TryDequeue()
		if ok {
			done <- j.Batch.ID
		}
	}()

	time.Sleep(10 * time.Millisecond)
	q.Enqueue(job("blocking"))

	select {
	case id := <-done:
		assert.Equal(t, "blocking", id)
	case <-time.After(time.Second):
		t.Fatal("waiter was not signalled")
	}
}

// A dequeue that leaves jobs behind re-signals so a second waiter wakes.
func TestJobQueue_ResignalsWhileJobsRemain(t *testing.T) {
	q := newJobQueue()
	q.Enqueue(job("A"))
	q.Enqueue(job("B"))

	<-q.Wait()
	_, ok := q.TryDequeue()
	require.True(t, ok)

	select {
	case <-q.Wait():
	default:
		t.Fatal("expected a pending signal for the remaining job")
	}
}

func TestJobQueue_CloseWakesWaiters(t *testing.T) {
	q := newJobQueue()

	done := make(chan struct{})
	go func() {
		<-q.Wait()
		<-q.Wait()
		close(done)
	}()

	time.Sleep(10 * time.Millisecond)
	q.Close()

	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("waiter did not unblock after close")
	}
	assert.True(t, q.Drained())
}

func TestJobQueue_EnqueueAfterClose(t *testing.T) {
	q := newJobQueue()
	q.Close()
	q.Close()

	assert.False(t, q.Enqueue(job("late")), "enqueue after close should return false")
}

func TestJobQueue_DrainsAfterClose(t *testing.T) {
	q := newJobQueue()
	q.Enqueue(job("A"))
	q.Close()

	assert.False(t, q.Drained(), "queued jobs remain after close")
	j, ok := q.TryDequeue()
	require.True(t, ok)
	assert.Equal(t, "A", j.Batch.ID)
	assert.True(t, q.Drained())
}

func TestJobQueue_ConcurrentEnqueue(t *testing.T) {
	q := newJobQueue()
	const goroutines = 50

	var wg sync.WaitGroup
	for i := 0; i < goroutines; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			q.Enqueue(job(fmt.Sprint(i)))
		}(i)
	}
	wg.Wait()

	seen := make(map[string]bool)
	for {
		j, ok := q.TryDequeue()
		if !ok {
			break
		}
		seen[j.Batch.ID] = true
	}
	assert.Len(t, seen, goroutines)
}
