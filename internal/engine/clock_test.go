package engine

import (
	"context"
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

func TestClock_FirstSeqIsOne(t *testing.T) {
	c := NewClock()
	assert.Zero(t, c.Last())
	assert.Equal(t, int64(1), c.Next())
	assert.Equal(t, int64(1), c.Last())
}

func TestClock_SharedAcrossWorkers(t *testing.T) {
	c := NewClock()
	const workers, chunks = 16, 250

	var (
		wg   sync.WaitGroup
		mu   sync.Mutex
		seen = make(map[int64]bool, workers*chunks)
	)
	for i := 0; i < workers; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for j := 0; j < chunks; j++ {
				seq := c.Next()
				mu.Lock()
				seen[seq] = true
				mu.Unlock()
			}
		}()
	}
	wg.Wait()

	assert.Len(t, seen, workers*chunks, "no seq issued twice")
	assert.Equal(t, int64(workers*chunks), c.Last())
}

func TestProcess_ResumedClockContinuesActionLog(t *testing.T) {
	f := newFixture()
	e := f.engine(WithClock(ResumeClock(41)))

	rep, err := e.Process(context.Background(), &enrollment.Batch{ID: "b-1", Events: []*enrollment.Event{
		testutil.Event("7").Start("2024-09-01").Subscriber("sub-7").Build(),
	}})
	require.NoError(t, err)

	require.Len(t, rep.Chunks, 1)
	assert.Equal(t, int64(42), rep.Chunks[0].Seq)
	require.Len(t, f.journal.records, 1)
	assert.Equal(t, int64(42), f.journal.records[0].Seq)
}

func TestProcess_SeqsUniqueAcrossBatches(t *testing.T) {
	f := newFixture()
	e := f.engine()

	var seqs []int64
	for i := 0; i < 3; i++ {
		hbx := fmt.Sprintf("%d", 100+i)
		rep, err := e.Process(context.Background(), &enrollment.Batch{
			ID:     fmt.Sprintf("b-%d", i),
			Events: []*enrollment.Event{testutil.Event(hbx).Start("2024-09-01").Subscriber("sub-" + hbx).Build()},
		})
		require.NoError(t, err)
		for _, c := range rep.Chunks {
			seqs = append(seqs, c.Seq)
		}
	}
	assert.Equal(t, []int64{1, 2, 3}, seqs)
}
