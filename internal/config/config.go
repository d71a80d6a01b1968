// Package config loads the CUE configuration file.
//
// A configuration file is unified with the embedded #Config schema, so every
// field is optional and unknown fields are rejected. Defaults live in the
// schema only.
package config

import (
	_ "embed"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"
	"time"

	"cuelang.org/go/cue"
	"cuelang.org/go/cue/cuecontext"
	cueerrors "cuelang.org/go/cue/errors"

	"github.com/ideacrew/gluedb-sub000/internal/enrollment"
)

//go:embed schema.cue
var schemaSource string

// DefaultFile is read when no path is given and the file exists.
const DefaultFile = "enrollsync.cue"

// Marker backends.
const (
	MarkersSQLite = "sqlite"
	MarkersRedis  = "redis"
)

type Config struct {
	Database string                   `json:"database"`
	Markers  string                   `json:"markers"`
	Redis    RedisConfig              `json:"redis"`
	Kafka    KafkaConfig              `json:"kafka"`
	HTTP     HTTPConfig               `json:"http"`
	Engine   EngineConfig             `json:"engine"`
	Outbox   OutboxConfig             `json:"outbox"`
	Carriers map[string]CarrierConfig `json:"carriers"`
}

type RedisConfig struct {
	URL    string `json:"url"`
	Prefix string `json:"prefix"`
	TTL    string `json:"ttl"`
}

type KafkaConfig struct {
	Brokers           []string `json:"brokers"`
	GroupID           string   `json:"group_id"`
	InboundTopic      string   `json:"inbound_topic"`
	ConfirmationTopic string   `json:"confirmation_topic"`
	Attempts          int      `json:"attempts"`
}

// Enabled reports whether any broker is configured.
func (k KafkaConfig) Enabled() bool { return len(k.Brokers) > 0 }

type HTTPConfig struct {
	Addr string `json:"addr"`
}

type EngineConfig struct {
	Workers int `json:"workers"`
}

type OutboxConfig struct {
	Interval   string `json:"interval"`
	BatchSize  int    `json:"batch_size"`
	MaxRetries int    `json:"max_retries"`
}

type CarrierConfig struct {
	Name                  string `json:"name,omitempty"`
	Reinstates            bool   `json:"reinstates"`
	CascadeCancelRenewals bool   `json:"cascade_cancel_renewals"`
}

// ValidationError lists every schema violation found in a file.
type ValidationError struct {
	File     string
	Problems []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid config %s: %s", e.File, strings.Join(e.Problems, "; "))
}

// Default returns the schema defaults.
func Default() *Config {
	cfg, err := decode(nil, "<default>")
	if err != nil {
		panic(fmt.Sprintf("config schema defaults do not decode: %v", err))
	}
	return cfg
}

// Load reads and validates the file at path.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read config: %w", err)
	}
	return Parse(data, path)
}

// Resolve loads path, or DefaultFile when path is empty and that file
// exists, or the defaults otherwise.
func Resolve(path string) (*Config, error) {
	if path != "" {
		return Load(path)
	}
	if _, err := os.Stat(DefaultFile); err == nil {
		return Load(DefaultFile)
	} else if !errors.Is(err, os.ErrNotExist) {
		return nil, fmt.Errorf("stat %s: %w", DefaultFile, err)
	}
	return Default(), nil
}

// Parse validates CUE source against the schema and decodes it.
func Parse(data []byte, filename string) (*Config, error) {
	return decode(data, filename)
}

func decode(data []byte, filename string) (*Config, error) {
	ctx := cuecontext.New()
	schema := ctx.CompileString(schemaSource, cue.Filename("schema.cue"))
	if err := schema.Err(); err != nil {
		return nil, fmt.Errorf("compile config schema: %w", err)
	}
	v := schema.LookupPath(cue.ParsePath("#Config"))

	if data != nil {
		user := ctx.CompileBytes(data, cue.Filename(filename))
		if err := user.Err(); err != nil {
			return nil, validationError(filename, err)
		}
		v = v.Unify(user)
	}
	if err := v.Validate(cue.Concrete(true)); err != nil {
		return nil, validationError(filename, err)
	}

	var cfg Config
	if err := v.Decode(&cfg); err != nil {
		return nil, fmt.Errorf("decode config %s: %w", filename, err)
	}
	if err := cfg.check(); err != nil {
		return nil, &ValidationError{File: filename, Problems: []string{err.Error()}}
	}
	return &cfg, nil
}

func validationError(file string, err error) error {
	var problems []string
	for _, e := range cueerrors.Errors(err) {
		msg := e.Error()
		if pos := e.Position(); pos.IsValid() {
			msg = fmt.Sprintf("%d:%d: %s", pos.Line(), pos.Column(), msg)
		}
		problems = append(problems, msg)
	}
	if len(problems) == 0 {
		problems = []string{err.Error()}
	}
	return &ValidationError{File: file, Problems: problems}
}

func (c *Config) check() error {
	if _, err := time.ParseDuration(c.Outbox.Interval); err != nil {
		return fmt.Errorf("outbox.interval: %w", err)
	}
	if _, err := time.ParseDuration(c.Redis.TTL); err != nil {
		return fmt.Errorf("redis.ttl: %w", err)
	}
	return nil
}

// OutboxInterval is the parsed relay interval.
func (c *Config) OutboxInterval() time.Duration {
	d, _ := time.ParseDuration(c.Outbox.Interval)
	return d
}

// RedisTTL is the parsed marker lifetime.
func (c *Config) RedisTTL() time.Duration {
	d, _ := time.ParseDuration(c.Redis.TTL)
	return d
}

// CarrierTable builds the carrier profiles. Carriers absent from the file
// fall back to enrollment.DefaultCarrier at lookup time.
func (c *Config) CarrierTable() enrollment.CarrierTable {
	t := make(enrollment.CarrierTable, len(c.Carriers))
	for id, cc := range c.Carriers {
		name := cc.Name
		if name == "" {
			name = id
		}
		t[id] = enrollment.Carrier{
			ID:                    id,
			Name:                  name,
			Reinstates:            cc.Reinstates,
			CascadeCancelRenewals: cc.CascadeCancelRenewals,
		}
	}
	return t
}

// CarrierIDs returns the configured carrier ids in sorted order.
func (c *Config) CarrierIDs() []string {
	ids := make([]string, 0, len(c.Carriers))
	for id := range c.Carriers {
		ids = append(ids, id)
	}
	sort.Strings(ids)
	return ids
}
