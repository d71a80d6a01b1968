package enrollment

import "github.com/ideacrew/gluedb-sub000/internal/ir"

// Chunk is an ordered group of one to three notices forming one candidate
// transaction.
type Chunk []*Event

// Terms returns the termination notices in chunk order.
func (c Chunk) Terms() []*Event {
	var out []*Event
	for _, e := range c {
		if e.IsTermination {
			out = append(out, e)
		}
	}
	return out
}

// NonTerms returns the non-termination notices in chunk order.
func (c Chunk) NonTerms() []*Event {
	var out []*Event
	for _, e := range c {
		if !e.IsTermination {
			out = append(out, e)
		}
	}
	return out
}

// HbxIDs returns the hbx enrollment ids in chunk order.
func (c Chunk) HbxIDs() []string {
	out := make([]string, len(c))
	for i, e := range c {
		out[i] = e.HbxEnrollmentID
	}
	return out
}

// Hash identifies the chunk by its notices' content hashes, in order.
func (c Chunk) Hash() string {
	hashes := make([]string, len(c))
	for i, e := range c {
		hashes[i] = e.ContentHash()
	}
	return ir.ChunkHash(hashes)
}

// Batch is one correlated group of notices processed as a unit.
type Batch struct {
	ID     string
	Events []*Event
}
