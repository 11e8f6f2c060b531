package transcript

import (
	"context"
	"fmt"
	"strings"
	"time"

	contractx "github.com/tanpawarit/whiteboard-agent/agent/contract"
)

const (
	DriverSQLite   = "sqlite"
	DriverPostgres = "postgres"
	DriverUpstash  = "upstash"
)

type Config struct {
	Driver    string        `split_words:"true" default:"sqlite"`
	DSN       string        `envconfig:"DSN" default:"whiteboard.db"`
	URL       string        `envconfig:"URL"`
	Token     string        `split_words:"true"`
	Timeout   time.Duration `split_words:"true" default:"10s"`
	KeyPrefix string        `split_words:"true" default:"whiteboard:"`
}

// Store is a TranscriptStore that owns a connection.
type Store interface {
	contractx.TranscriptStore
	Close() error
}

// Open builds the backend named by cfg.Driver.
func Open(ctx context.Context, cfg Config) (Store, error) {
	switch strings.ToLower(strings.TrimSpace(cfg.Driver)) {
	case "", DriverSQLite:
		return OpenSQLite(ctx, cfg.DSN)
	case DriverPostgres, "pg":
		return OpenPostgres(ctx, cfg.DSN)
	case DriverUpstash:
		return NewUpstashStore(UpstashConfig{
			URL:     cfg.URL,
			Token:   cfg.Token,
			Timeout: cfg.Timeout,
		}, WithKeyPrefix(cfg.KeyPrefix))
	default:
		return nil, fmt.Errorf("unknown transcript driver %q", cfg.Driver)
	}
}
