package backend

import (
	"fmt"
	"time"

	"spendboard/internal/config"
)

// Type names a transaction backend.
type Type string

const (
	APIBackend    Type = config.BackendAPI
	SQLiteBackend Type = config.BackendSQLite
	MemoryBackend Type = config.BackendMemory
)

// String implements fmt.Stringer
func (t Type) String() string {
	return string(t)
}

// IsValid returns true if the backend type is valid
func (t Type) IsValid() bool {
	switch t {
	case APIBackend, SQLiteBackend, MemoryBackend:
		return true
	default:
		return false
	}
}

// Options holds everything needed to build a backend.
type Options struct {
	Type Type

	// API backend
	APIURL     string
	APITimeout time.Duration

	// SQLite backend. AMQP is optional; without it stale months are not
	// refreshed on demand.
	SQLiteDBPath     string
	MirrorStaleAfter time.Duration
	AMQPURL          string
	AMQPExchange     string
	AMQPQueue        string

	// Memory backend seed directory
	DataDirectory string
}

// FromAppConfig converts the application config to backend options
func FromAppConfig(appConfig *config.Config) (Options, error) {
	if appConfig == nil {
		return Options{}, fmt.Errorf("app config is nil")
	}

	t := Type(appConfig.Backend)
	if !t.IsValid() {
		return Options{}, fmt.Errorf("invalid backend type in config: %s", appConfig.Backend)
	}

	return Options{
		Type: t,

		APIURL:     appConfig.APIURL,
		APITimeout: appConfig.APITimeout,

		SQLiteDBPath:     appConfig.SQLiteDBPath,
		MirrorStaleAfter: appConfig.MirrorStaleAfter,
		AMQPURL:          appConfig.AMQPURL,
		AMQPExchange:     appConfig.AMQPExchange,
		AMQPQueue:        appConfig.AMQPQueue,

		DataDirectory: appConfig.DataDir,
	}, nil
}

// Validate validates the backend options
func (o Options) Validate() error {
	if !o.Type.IsValid() {
		return fmt.Errorf("invalid backend type: %s", o.Type)
	}

	switch o.Type {
	case APIBackend:
		if o.APIURL == "" {
			return fmt.Errorf("transactions API URL is required for api backend")
		}
	case SQLiteBackend:
		if o.SQLiteDBPath == "" {
			return fmt.Errorf("SQLite database path is required for sqlite backend")
		}
	case MemoryBackend:
		// DataDirectory defaults to "data"
	}

	return nil
}
