package chunk

import (
	"math/rand"
	"strconv"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

func events(n int) []*enrollment.Event {
	out := make([]*enrollment.Event, n)
	for i := range out {
		out[i] = testutil.Event(strconv.Itoa(i)).Build()
	}
	return out
}

func shape(chunks []enrollment.Chunk) [][]string {
	out := make([][]string, len(chunks))
	for i, c := range chunks {
		out[i] = c.HbxIDs()
	}
	return out
}

func flatten(chunks []enrollment.Chunk) []*enrollment.Event {
	var out []*enrollment.Event
	for _, c := range chunks {
		out = append(out, c...)
	}
	return out
}

// adjacentIDs treats (a, b) as adjacent when b's id is listed for a.
func adjacentIDs(pairs map[string]string) func(a, b *enrollment.Event) bool {
	return func(a, b *enrollment.Event) bool {
		return pairs[a.HbxEnrollmentID] == b.HbxEnrollmentID
	}
}

// tripleIDs accepts exactly one window.
func tripleIDs(a, b, c string) func(enrollment.Chunk) bool {
	return func(w enrollment.Chunk) bool {
		return w[0].HbxEnrollmentID == a && w[1].HbxEnrollmentID == b && w[2].HbxEnrollmentID == c
	}
}

func TestPairs_CapAtTwo(t *testing.T) {
	p := Partitioner{Adjacent: adjacentIDs(map[string]string{"0": "1", "1": "2", "3": "4"})}
	got := p.Partition(events(5))
	assert.Equal(t, [][]string{{"0", "1"}, {"2"}, {"3", "4"}}, shape(got))
}

func TestPairs_NoAdjacency(t *testing.T) {
	got := Partitioner{}.Partition(events(3))
	assert.Equal(t, [][]string{{"0"}, {"1"}, {"2"}}, shape(got))
}

func TestPartition_ContiguousTriple(t *testing.T) {
	p := Partitioner{
		Triple:   tripleIDs("1", "2", "3"),
		Adjacent: adjacentIDs(map[string]string{"4": "5"}),
	}
	got := p.Partition(events(6))
	assert.Equal(t, [][]string{{"0"}, {"1", "2", "3"}, {"4", "5"}}, shape(got))
}

// Notices skipped inside a matched window move ahead of it.
func TestPartition_NonContiguousTriple(t *testing.T) {
	p := Partitioner{
		Triple:   tripleIDs("0", "2", "4"),
		Adjacent: adjacentIDs(map[string]string{"1": "3"}),
	}
	got := p.Partition(events(6))
	assert.Equal(t, [][]string{{"1", "3"}, {"0", "2", "4"}, {"5"}}, shape(got))
}

func TestPartition_Empty(t *testing.T) {
	assert.Empty(t, Partitioner{}.Partition(nil))
}

// Without a triple match the concatenation reproduces the input exactly;
// with one it is a permutation of the input.
func TestPartition_ConcatenationProperty(t *testing.T) {
	r := rand.New(rand.NewSource(11))
	for iter := 0; iter < 300; iter++ {
		in := events(1 + r.Intn(8))
		adj := map[string]string{}
		for i := 0; i+1 < len(in); i++ {
			if r.Intn(2) == 0 {
				adj[strconv.Itoa(i)] = strconv.Itoa(i + 1)
			}
		}
		p := Partitioner{Adjacent: adjacentIDs(adj)}
		assert.Equal(t, in, flatten(p.Partition(in)))

		if len(in) >= 3 {
			i := r.Intn(len(in) - 2)
			p.Triple = tripleIDs(strconv.Itoa(i), strconv.Itoa(i+1), strconv.Itoa(i+2))
			assert.Equal(t, in, flatten(p.Partition(in)), "contiguous triple at %d", i)
		}

		for _, c := range p.Partition(in) {
			assert.True(t, len(c) >= 1 && len(c) <= 3)
		}
	}
}
