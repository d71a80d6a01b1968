// Package cache provides a Redis-backed idempotency marker store for
// deployments that run several workers against a shared marker space.
package cache

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

// DefaultPrefix namespaces every key.
const DefaultPrefix = "enrollsync"

// Connect initializes a Redis client from URL or host:port input.
func Connect(_ context.Context, redisURL string) (*redis.Client, error) {
	if strings.HasPrefix(redisURL, "redis://") || strings.HasPrefix(redisURL, "rediss://") {
		opt, err := redis.ParseURL(redisURL)
		if err != nil {
			return nil, fmt.Errorf("parse redis url: %w", err)
		}
		return redis.NewClient(opt), nil
	}
	return redis.NewClient(&redis.Options{Addr: redisURL}), nil
}

// RedisMarkers stores one key per marker, written with SET NX, and a set of
// consumed content hashes per enrollment.
type RedisMarkers struct {
	client redis.Cmdable
	prefix string
	// TTL bounds marker lifetime. Zero keeps markers forever.
	TTL time.Duration
}

var _ enrollment.Markers = (*RedisMarkers)(nil)

// NewRedisMarkers creates a marker store. An empty prefix uses DefaultPrefix.
func NewRedisMarkers(client redis.Cmdable, prefix string) *RedisMarkers {
	if prefix == "" {
		prefix = DefaultPrefix
	}
	return &RedisMarkers{client: client, prefix: prefix}
}

// MarkerKey is the key guarding one marker.
func (s *RedisMarkers) MarkerKey(m enrollment.Marker) string {
	return s.prefix + ":marker:" + m.HbxEnrollmentID + ":" + m.ActionURI + ":" + m.ContentHash
}

// SeenKey is the set of content hashes consumed for an enrollment.
func (s *RedisMarkers) SeenKey(hbx string) string {
	return s.prefix + ":seen:" + hbx
}

func (s *RedisMarkers) Exists(ctx context.Context, m enrollment.Marker) (bool, error) {
	n, err := s.client.Exists(ctx, s.MarkerKey(m)).Result()
	if err != nil {
		return false, fmt.Errorf("check marker: %w", err)
	}
	return n > 0, nil
}

func (s *RedisMarkers) Seen(ctx context.Context, hbx, contentHash string) (bool, error) {
	ok, err := s.client.SIsMember(ctx, s.SeenKey(hbx), contentHash).Result()
	if err != nil {
		return false, fmt.Errorf("check seen: %w", err)
	}
	return ok, nil
}

// Mark writes the marker and records its content hash in one transaction.
// It reports whether the marker is new.
func (s *RedisMarkers) Mark(ctx context.Context, m enrollment.Marker) (bool, error) {
	var set *redis.BoolCmd
	_, err := s.client.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		set = pipe.SetNX(ctx, s.MarkerKey(m), 1, s.TTL)
		pipe.SAdd(ctx, s.SeenKey(m.HbxEnrollmentID), m.ContentHash)
		if s.TTL > 0 {
			pipe.Expire(ctx, s.SeenKey(m.HbxEnrollmentID), s.TTL)
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("write marker: %w", err)
	}
	return set.Val(), nil
}

// ReadMarkers returns every marker written for hbx, sorted by action URI.
func (s *RedisMarkers) ReadMarkers(ctx context.Context, hbx string) ([]enrollment.Marker, error) {
	prefix := s.prefix + ":marker:" + hbx + ":"
	var out []enrollment.Marker
	iter := s.client.Scan(ctx, 0, escapeGlob(prefix)+"*", 100).Iterator()
	for iter.Next(ctx) {
		if m, ok := s.parseMarkerKey(hbx, iter.Val()); ok {
			out = append(out, m)
		}
	}
	if err := iter.Err(); err != nil {
		return nil, fmt.Errorf("scan markers: %w", err)
	}
	slices.SortFunc(out, func(a, b enrollment.Marker) int {
		if c := strings.Compare(a.ActionURI, b.ActionURI); c != 0 {
			return c
		}
		return strings.Compare(a.ContentHash, b.ContentHash)
	})
	return out, nil
}

// parseMarkerKey inverts MarkerKey. The content hash never contains a colon,
// so it is split off from the right.
func (s *RedisMarkers) parseMarkerKey(hbx, key string) (enrollment.Marker, bool) {
	rest, ok := strings.CutPrefix(key, s.prefix+":marker:"+hbx+":")
	if !ok {
		return enrollment.Marker{}, false
	}
	i := strings.LastIndexByte(rest, ':')
	if i <= 0 || i == len(rest)-1 {
		return enrollment.Marker{}, false
	}
	return enrollment.Marker{HbxEnrollmentID: hbx, ActionURI: rest[:i], ContentHash: rest[i+1:]}, true
}

func escapeGlob(s string) string {
	var b strings.Builder
	for _, r := range s {
		switch r {
		case '*', '?', '[', ']', '\\':
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}
