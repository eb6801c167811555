package app

import (
	"strings"
	"time"

	"github.com/flowforge/mediaflow/internal/platform/envutil"
)

// StorageBackend selects which store.TaskStore implementation app.New
// wires up. "memory" is for local/dev runs and tests; "postgres" is the
// production path, grounded on the teacher's internal/db.NewPostgresService.
type StorageBackend string

const (
	StorageBackendMemory   StorageBackend = "memory"
	StorageBackendPostgres StorageBackend = "postgres"
)

// Config is generalized from the teacher's Config/LoadConfig, trading its
// JWT/token-TTL fields (the web app's concern, out of scope per §1's
// non-goals) for the job engine's own knobs: queue backend address, the
// enqueuer's poll cadence, mirror debounce, worker pool sizing, and the
// storage backend selector. Uses internal/platform/envutil in place of the
// teacher's internal/utils.GetEnv/GetEnvAsInt, since that package (tied to
// *logger.Logger) never made the trip into this module.
type Config struct {
	LogMode string

	RedisAddr string

	StorageBackend StorageBackend
	Postgres       PostgresConfig

	WorkDir string

	PollInterval time.Duration
	BatchSize    int

	ProgressDebounce time.Duration

	WorkersPerQueue int

	HTTPAddr string

	GCSBucket string
}

type PostgresConfig struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func LoadConfig() Config {
	backend := StorageBackend(strings.ToLower(envutil.String("STORAGE_BACKEND", string(StorageBackendMemory))))
	if backend != StorageBackendPostgres {
		backend = StorageBackendMemory
	}

	return Config{
		LogMode: envutil.String("LOG_MODE", "development"),

		RedisAddr: envutil.String("REDIS_ADDR", "localhost:6379"),

		StorageBackend: backend,
		Postgres: PostgresConfig{
			Host:     envutil.String("POSTGRES_HOST", "localhost"),
			Port:     envutil.String("POSTGRES_PORT", "5432"),
			User:     envutil.String("POSTGRES_USER", "postgres"),
			Password: envutil.String("POSTGRES_PASSWORD", ""),
			Name:     envutil.String("POSTGRES_DB", "mediaflow"),
			SSLMode:  envutil.String("POSTGRES_SSLMODE", "disable"),
		},

		WorkDir: envutil.String("WORK_DIR", "/tmp/mediaflow"),

		PollInterval:     envutil.Duration("ENQUEUER_POLL_INTERVAL_MS", 500),
		BatchSize:        envutil.Int("ENQUEUER_BATCH_SIZE", 25),
		ProgressDebounce: envutil.Duration("MIRROR_DEBOUNCE_MS", 500),
		WorkersPerQueue:  envutil.Int("WORKERS_PER_QUEUE", 2),

		HTTPAddr: envutil.String("HTTP_ADDR", ":8080"),

		GCSBucket: envutil.String("GCS_BUCKET_NAME", ""),
	}
}
