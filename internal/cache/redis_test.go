package cache

import (
	"context"
	"os"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func TestConnect_AcceptsURLAndAddr(t *testing.T) {
	ctx := context.Background()

	c, err := Connect(ctx, "redis://:secret@cache.internal:6380/2")
	require.NoError(t, err)
	defer c.Close()
	assert.Equal(t, "cache.internal:6380", c.Options().Addr)
	assert.Equal(t, 2, c.Options().DB)
	assert.Equal(t, "secret", c.Options().Password)

	c2, err := Connect(ctx, "localhost:6379")
	require.NoError(t, err)
	defer c2.Close()
	assert.Equal(t, "localhost:6379", c2.Options().Addr)

	_, err = Connect(ctx, "redis://host:notaport")
	assert.Error(t, err)
}

func TestKeys(t *testing.T) {
	s := NewRedisMarkers(nil, "")
	m := enrollment.Marker{HbxEnrollmentID: "1001", ActionURI: "#initial", ContentHash: "abc"}

	assert.Equal(t, "enrollsync:marker:1001:#initial:abc", s.MarkerKey(m))
	assert.Equal(t, "enrollsync:seen:1001", s.SeenKey("1001"))

	custom := NewRedisMarkers(nil, "tenant-a")
	assert.Equal(t, "tenant-a:seen:1001", custom.SeenKey("1001"))
}

func TestParseMarkerKey(t *testing.T) {
	s := NewRedisMarkers(nil, "")
	m := enrollment.Marker{HbxEnrollmentID: "1001", ActionURI: "urn:openhbx:#initial", ContentHash: "abc"}

	got, ok := s.parseMarkerKey("1001", s.MarkerKey(m))
	require.True(t, ok)
	assert.Equal(t, m, got)

	_, ok = s.parseMarkerKey("1001", "enrollsync:marker:1002:#initial:abc")
	assert.False(t, ok)
	_, ok = s.parseMarkerKey("1001", "enrollsync:marker:1001:#initial:")
	assert.False(t, ok)
}

func TestEscapeGlob(t *testing.T) {
	assert.Equal(t, `p:marker:a\*b\?\[c\]:`, escapeGlob("p:marker:a*b?[c]:"))
}

// TestRedisMarkers_Live runs against a real server when REDIS_URL is set.
func TestRedisMarkers_Live(t *testing.T) {
	url := os.Getenv("REDIS_URL")
	if url == "" {
		t.Skip("REDIS_URL not set")
	}
	ctx := context.Background()
	client, err := Connect(ctx, url)
	require.NoError(t, err)
	defer client.Close()

	s := NewRedisMarkers(client, "test-"+uuid.NewString())
	m := enrollment.Marker{HbxEnrollmentID: "1", ActionURI: "#initial", ContentHash: "h1"}
	t.Cleanup(func() {
		client.Del(ctx, s.MarkerKey(m), s.SeenKey(m.HbxEnrollmentID))
	})

	exists, err := s.Exists(ctx, m)
	require.NoError(t, err)
	assert.False(t, exists)

	inserted, err := s.Mark(ctx, m)
	require.NoError(t, err)
	assert.True(t, inserted)

	inserted, err = s.Mark(ctx, m)
	require.NoError(t, err)
	assert.False(t, inserted)

	exists, err = s.Exists(ctx, m)
	require.NoError(t, err)
	assert.True(t, exists)

	seen, err := s.Seen(ctx, "1", "h1")
	require.NoError(t, err)
	assert.True(t, seen)

	markers, err := s.ReadMarkers(ctx, "1")
	require.NoError(t, err)
	assert.Equal(t, []enrollment.Marker{m}, markers)
}
