package store

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func TestMarkers(t *testing.T) {
	ctx := context.Background()
	s := createTestStore(t)
	m := enrollment.Marker{HbxEnrollmentID: "1", ActionURI: enrollment.URIInitial, ContentHash: "h1"}

	exists, err := s.Exists(ctx, m)
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := s.Mark(ctx, m)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Mark(ctx, m)
	require.NoError(t, err)
	assert.False(t, inserted, "second mark is a no-op")

	exists, err = s.Exists(ctx, m)
	require.NoError(t, err)
	assert.True(t, exists)

	other := m
	other.ActionURI = enrollment.URITerminateEnrollment
	exists, err = s.Exists(ctx, other)
	require.NoError(t, err)
	assert.False(t, exists, "markers are per action")

	seen, err := s.Seen(ctx, "1", "h1")
	require.NoError(t, err)
	assert.True(t, seen)
	seen, err = s.Seen(ctx, "1", "h2")
	require.NoError(t, err)
	assert.False(t, seen)

	_, err = s.Mark(ctx, other)
	require.NoError(t, err)
	got, err := s.ReadMarkers(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Marker{m, other}, got)

	empty, err := s.ReadMarkers(ctx, "2")
	require.NoError(t, err)
	assert.NotNil(t, empty)
	assert.Empty(t, empty)
}
