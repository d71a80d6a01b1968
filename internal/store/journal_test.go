package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

func TestActionLog(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	records := []ActionRecord{
		{BatchID: "b-2", Seq: 1, Action: "Termination", HbxEnrollmentIDs: []string{"9"}, Outcome: "published"},
		{BatchID: "b-1", Seq: 2, Action: "InitialEnrollment", HbxEnrollmentIDs: []string{"3"}, Outcome: "rejected", Detail: "already applied"},
		{BatchID: "b-1", Seq: 1, Action: "CarrierSwitch", HbxEnrollmentIDs: []string{"1", "2"}, Outcome: "published"},
	}
	for _, rec := range records {
		require.NoError(t, s.RecordAction(ctx, rec))
	}

	got, err := s.ReadActionLog(ctx, "b-1")
	require.NoError(t, err)
	assert.Equal(t, []ActionRecord{records[2], records[1]}, got)

	batches, err := s.ListBatches(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"b-2", "b-1"}, batches)

	empty, err := s.ReadActionLog(ctx, "b-9")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}

func TestLastActionSeq(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	seq, err := s.LastActionSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(0), seq)

	recordActions(t, s, "b-1", 3, 7)
	recordActions(t, s, "b-2", 5)

	seq, err = s.LastActionSeq(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(7), seq)
}

func TestAcknowledge(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	ev := testutil.Event("1").Build()

	require.NoError(t, s.Acknowledge(ctx, ev, enrollment.DispositionDuplicate, "duplicate of 1"))
	require.NoError(t, s.Acknowledge(ctx, ev, enrollment.DispositionProcessed, ""))

	got, err := s.ReadDispositions(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []Disposition{
		{HbxEnrollmentID: "1", ContentHash: ev.ContentHash(), Disposition: enrollment.DispositionDuplicate, Reason: "duplicate of 1"},
		{HbxEnrollmentID: "1", ContentHash: ev.ContentHash(), Disposition: enrollment.DispositionProcessed},
	}, got)
}
