package cli

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/ideacrew/gluedb-sub000/internal/action"
	"github.com/ideacrew/gluedb-sub000/internal/cache"
	"github.com/ideacrew/gluedb-sub000/internal/config"
	"github.com/ideacrew/gluedb-sub000/internal/engine"
	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
	"github.com/ideacrew/gluedb-sub000/internal/store"
)

// LoadBatch reads a batch file. The extension picks the decoder: .json,
// .yaml or .yml.
func LoadBatch(path string) (*enrollment.Batch, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read batch: %w", err)
	}
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return enrollment.DecodeBatchJSON(data)
	case ".yaml", ".yml":
		return enrollment.DecodeBatchYAML(data)
	default:
		return nil, fmt.Errorf("unsupported batch file extension %q: want .json, .yaml or .yml", ext)
	}
}

// markerStore is an idempotency backend that can also list markers.
type markerStore interface {
	enrollment.Markers
	ReadMarkers(ctx context.Context, hbx string) ([]enrollment.Marker, error)
}

func loadConfig(opts *RootOptions) (*config.Config, error) {
	cfg, err := config.Resolve(opts.Config)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to load config", err)
	}
	return cfg, nil
}

// openStore opens the SQLite database. A non-empty override replaces the
// configured path.
func openStore(cfg *config.Config, override string) (*store.Store, error) {
	path := cfg.Database
	if override != "" {
		path = override
	}
	slog.Debug("opening database", "path", path)
	st, err := store.Open(path)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to open database", err)
	}
	return st, nil
}

// openMarkers returns the configured marker backend. The Redis client is
// nil when markers live in SQLite; otherwise the caller closes it.
func openMarkers(ctx context.Context, cfg *config.Config, st *store.Store) (markerStore, *redis.Client, error) {
	if cfg.Markers != config.MarkersRedis {
		return st, nil, nil
	}
	client, err := cache.Connect(ctx, cfg.Redis.URL)
	if err != nil {
		return nil, nil, WrapExitError(ExitCommandError, "failed to connect to redis", err)
	}
	markers := cache.NewRedisMarkers(client, cfg.Redis.Prefix)
	markers.TTL = cfg.RedisTTL()
	slog.Debug("using redis markers", "addr", client.Options().Addr, "prefix", cfg.Redis.Prefix)
	return markers, client, nil
}

// newEngine wires the store as policy collaborator, outbox, acknowledger
// and journal. Seqs continue after the last one in the action log.
func newEngine(ctx context.Context, cfg *config.Config, st *store.Store, markers enrollment.Markers, opts ...engine.Option) (*engine.Engine, error) {
	last, err := st.LastActionSeq(ctx)
	if err != nil {
		return nil, WrapExitError(ExitCommandError, "failed to read action log", err)
	}
	deps := action.Deps{
		Policies:  st,
		Markers:   markers,
		Publisher: st,
		Carriers:  cfg.CarrierTable(),
	}
	base := []engine.Option{
		engine.WithAcknowledger(st),
		engine.WithJournal(st),
		engine.WithWorkers(cfg.Engine.Workers),
		engine.WithClock(engine.ResumeClock(last)),
	}
	return engine.New(deps, append(base, opts...)...), nil
}

// commandContext returns the command's context, or Background when the
// command runs outside Execute.
func commandContext(ctx context.Context) context.Context {
	if ctx == nil {
		return context.Background()
	}
	return ctx
}
