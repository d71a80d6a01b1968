package testutil

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// Terminating twice at the same date applies once.
func TestMemoryPolicies_TerminateIdempotent(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPolicies()
	pol := PolicyFrom(Event("1").Build())
	s.PutPolicy(pol)

	ok, err := s.TerminateAsOf(ctx, pol, D("2024-01-31"), false)
	require.NoError(t, err)
	assert.True(t, ok)

	ok, err = s.TerminateAsOf(ctx, pol, D("2024-01-31"), false)
	require.NoError(t, err)
	assert.False(t, ok)

	assert.Equal(t, enrollment.StatusTerminated, s.Policy("1").Status)
	assert.Equal(t, []string{"TerminateAsOf 1 2024-01-31", "TerminateAsOf 1 2024-01-31"}, s.MutationCalls())
}

// Reinstated policies are reachable under the reinstating notice's id.
func TestMemoryPolicies_ReinstateAliases(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPolicies()
	pol := PolicyFrom(Event("1").Build())
	pol.Status = enrollment.StatusTerminated
	pol.End = DP("2024-03-31")
	s.PutPolicy(pol)

	ok, err := s.ReinstatePolicy(ctx, Event("2").Start("2024-04-01").Build(), pol)
	require.NoError(t, err)
	assert.True(t, ok)

	got, found, err := s.FindPolicy(ctx, "2")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, "1", got.ID)
	assert.Equal(t, enrollment.StatusActive, got.Status)
}

// Only next-year January renewals at the same carrier are canceled.
func TestMemoryPolicies_CancelDependentRenewals(t *testing.T) {
	ctx := context.Background()
	s := NewMemoryPolicies()
	old := PolicyFrom(Event("1").Start("2023-01-01").Build())
	s.PutPolicy(old)
	s.PutPolicy(PolicyFrom(Event("2").Start("2024-01-01").Build()))
	s.PutPolicy(PolicyFrom(Event("3").Start("2024-01-01").Carrier("carrier-b").Build()))
	s.PutPolicy(PolicyFrom(Event("4").Start("2024-03-01").Build()))

	ids, err := s.CancelDependentRenewals(ctx, old)
	require.NoError(t, err)
	assert.Equal(t, []string{"2"}, ids)
	assert.True(t, s.Policy("2").IsCanceled())
	assert.False(t, s.Policy("3").IsCanceled())
}

func TestMemoryMarkers(t *testing.T) {
	ctx := context.Background()
	m := NewMemoryMarkers()
	mk := enrollment.Marker{HbxEnrollmentID: "1", ActionURI: "#initial", ContentHash: "h"}

	inserted, err := m.Mark(ctx, mk)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = m.Mark(ctx, mk)
	require.NoError(t, err)
	assert.False(t, inserted)

	seen, err := m.Seen(ctx, "1", "h")
	require.NoError(t, err)
	assert.True(t, seen)
}
