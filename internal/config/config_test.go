package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

func TestDefault(t *testing.T) {
	cfg := Default()

	assert.Equal(t, "enrollsync.db", cfg.Database)
	assert.Equal(t, MarkersSQLite, cfg.Markers)
	assert.Equal(t, "localhost:6379", cfg.Redis.URL)
	assert.Equal(t, "enrollsync", cfg.Redis.Prefix)
	assert.Zero(t, cfg.RedisTTL())
	assert.False(t, cfg.Kafka.Enabled())
	assert.Equal(t, "enrollment.batches", cfg.Kafka.InboundTopic)
	assert.Equal(t, "enrollment.confirmations", cfg.Kafka.ConfirmationTopic)
	assert.Equal(t, 5, cfg.Kafka.Attempts)
	assert.Equal(t, ":8080", cfg.HTTP.Addr)
	assert.Equal(t, 4, cfg.Engine.Workers)
	assert.Equal(t, 2*time.Second, cfg.OutboxInterval())
	assert.Equal(t, 100, cfg.Outbox.BatchSize)
	assert.Equal(t, 5, cfg.Outbox.MaxRetries)
	assert.Empty(t, cfg.Carriers)
}

func TestLoad_Full(t *testing.T) {
	cfg, err := Load(filepath.Join("testdata", "full.cue"))
	require.NoError(t, err)

	assert.Equal(t, "/var/lib/enrollsync/state.db", cfg.Database)
	assert.Equal(t, MarkersRedis, cfg.Markers)
	assert.Equal(t, "redis://cache:6379/1", cfg.Redis.URL)
	assert.Equal(t, 720*time.Hour, cfg.RedisTTL())
	assert.True(t, cfg.Kafka.Enabled())
	assert.Equal(t, []string{"kafka-1:9092", "kafka-2:9092"}, cfg.Kafka.Brokers)
	assert.Equal(t, "enrollsync-prod", cfg.Kafka.GroupID)
	assert.Equal(t, "enrollment.batches", cfg.Kafka.InboundTopic, "unset fields keep defaults")
	assert.Equal(t, "127.0.0.1:9000", cfg.HTTP.Addr)
	assert.Equal(t, 8, cfg.Engine.Workers)
	assert.Equal(t, []string{"carrier-a", "carrier-b"}, cfg.CarrierIDs())

	table := cfg.CarrierTable()
	assert.Equal(t, enrollment.Carrier{ID: "carrier-a", Name: "Alpha Health", Reinstates: true}, table["carrier-a"])
	assert.Equal(t, enrollment.Carrier{ID: "carrier-b", Name: "carrier-b", CascadeCancelRenewals: true}, table["carrier-b"])
	_, ok := table.Carrier("carrier-z")
	assert.False(t, ok)
}

func TestParse_Rejects(t *testing.T) {
	tests := []struct {
		name string
		src  string
		want string
	}{
		{"unknown field", `databse: "x.db"`, "databse"},
		{"bad marker backend", `markers: "memcached"`, "markers"},
		{"zero workers", `engine: workers: 0`, "workers"},
		{"wrong type", `database: 3`, "database"},
		{"unknown carrier field", `carriers: a: {reinstate: true}`, "reinstate"},
		{"bad interval", `outbox: interval: "soon"`, "outbox.interval"},
		{"bad ttl", `redis: ttl: "1 day"`, "redis.ttl"},
		{"syntax", `database: "x`, "x.cue"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Parse([]byte(tt.src), "x.cue")
			require.Error(t, err)
			var verr *ValidationError
			require.ErrorAs(t, err, &verr)
			assert.Equal(t, "x.cue", verr.File)
			assert.NotEmpty(t, verr.Problems)
			assert.Contains(t, err.Error(), tt.want)
		})
	}
}

func TestLoad_MissingFile(t *testing.T) {
	_, err := Load(filepath.Join(t.TempDir(), "absent.cue"))
	assert.ErrorIs(t, err, os.ErrNotExist)
}

func TestResolve(t *testing.T) {
	dir := t.TempDir()
	wd, err := os.Getwd()
	require.NoError(t, err)
	require.NoError(t, os.Chdir(dir))
	t.Cleanup(func() { _ = os.Chdir(wd) })

	cfg, err := Resolve("")
	require.NoError(t, err)
	assert.Equal(t, Default(), cfg)

	require.NoError(t, os.WriteFile(DefaultFile, []byte(`engine: workers: 2`), 0o644))
	cfg, err = Resolve("")
	require.NoError(t, err)
	assert.Equal(t, 2, cfg.Engine.Workers)

	other := filepath.Join(dir, "other.cue")
	require.NoError(t, os.WriteFile(other, []byte(`engine: workers: 3`), 0o644))
	cfg, err = Resolve(other)
	require.NoError(t, err)
	assert.Equal(t, 3, cfg.Engine.Workers)
}
