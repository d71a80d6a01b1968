package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/action"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/testutil"
)

// The SQLite store satisfies every collaborator of the two-phase protocol.
func TestStore_CarrierSwitchEndToEnd(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)

	old := seedPolicy(t, s, testutil.Event("1").Build())
	seedPolicy(t, s, testutil.Event("R").Start("2025-01-01").Build())
	chunk := enrollment.Chunk{
		testutil.Event("1").Term("2024-05-31").Existing(old).Build(),
		testutil.Event("2").Start("2024-06-01").Carrier("carrier-b").Build(),
	}
	deps := action.Deps{
		Policies:  s,
		Markers:   s,
		Publisher: s,
		Carriers: enrollment.CarrierTable{
			"carrier-a": {ID: "carrier-a", Reinstates: true, CascadeCancelRenewals: true},
		},
	}

	r, ok := action.Resolve(chunk, deps)
	require.True(t, ok)
	require.Equal(t, action.KindCarrierSwitch, r.Descriptor.Kind)

	persisted, err := r.Persist(ctx)
	require.NoError(t, err)
	require.True(t, persisted)
	assert.Equal(t, []string{"R"}, r.CascadeCanceled())

	published, errs := r.Publish(ctx)
	require.Empty(t, errs)
	assert.True(t, published)

	pending, err := s.PendingConfirmations(ctx, 10)
	require.NoError(t, err)
	require.Len(t, pending, 2)
	assert.Equal(t, enrollment.URITerminateEnrollment, pending[0].ActionURI)
	assert.Equal(t, enrollment.URIInitial, pending[1].ActionURI)

	// Redelivery of the same chunk is a no-op.
	again, _ := action.Resolve(chunk, deps)
	persisted, err = again.Persist(ctx)
	require.NoError(t, err)
	assert.False(t, persisted)

	created, found, err := s.FindPolicy(ctx, "2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "carrier-b", created.CarrierID)

	ended, _, err := s.FindPolicy(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, enrollment.StatusTerminated, ended.Status)
}
