// Package chunk splits a canonically ordered batch into candidate
// transactions of one to three notices.
//
// A triple window is tried first over every 3-combination of the order. The
// first window accepted by the triple classifier becomes one chunk; notices
// skipped inside the window move ahead of it and are paired with the notices
// before it. Everything else is split by pairwise adjacency into chunks of
// at most two.
package chunk

import (
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Partitioner holds the two predicates the builders consult.
type Partitioner struct {
	// Triple reports whether a three-notice window is one transaction.
	Triple func(enrollment.Chunk) bool
	// Adjacent reports whether b directly continues a.
	Adjacent func(a, b *enrollment.Event) bool
}

// Partition returns the chunks for ordered. Every notice appears in exactly
// one chunk. Chunk concatenation equals ordered unless a non-contiguous
// triple matched, in which case skipped notices precede the triple.
func (p Partitioner) Partition(ordered []*enrollment.Event) []enrollment.Chunk {
	if len(ordered) == 0 {
		return nil
	}
	if p.Triple != nil {
		if before, window, after, ok := p.findTriple(ordered); ok {
			out := p.Pairs(before)
			out = append(out, window)
			return append(out, p.Partition(after)...)
		}
	}
	return p.Pairs(ordered)
}

// findTriple enumerates (i, j, k) in lexicographic order and returns the
// split around the first accepted window.
func (p Partitioner) findTriple(ordered []*enrollment.Event) (before []*enrollment.Event, window enrollment.Chunk, after []*enrollment.Event, ok bool) {
	n := len(ordered)
	for i := 0; i < n; i++ {
		for j := i + 1; j < n; j++ {
			for k := j + 1; k < n; k++ {
				w := enrollment.Chunk{ordered[i], ordered[j], ordered[k]}
				if !p.Triple(w) {
					continue
				}
				for x := 0; x < k; x++ {
					if x != i && x != j {
						before = append(before, ordered[x])
					}
				}
				after = append(after, ordered[k+1:]...)
				return before, w, after, true
			}
		}
	}
	return nil, nil, nil, false
}

// Pairs splits ordered by adjacency. A notice joins the previous chunk when
// that chunk holds a single notice it is adjacent to.
func (p Partitioner) Pairs(ordered []*enrollment.Event) []enrollment.Chunk {
	var out []enrollment.Chunk
	for _, ev := range ordered {
		if n := len(out); n > 0 && len(out[n-1]) == 1 && p.Adjacent != nil && p.Adjacent(out[n-1][0], ev) {
			out[n-1] = append(out[n-1], ev)
			continue
		}
		out = append(out, enrollment.Chunk{ev})
	}
	return out
}
