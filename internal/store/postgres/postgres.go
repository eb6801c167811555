// Package postgres implements store.TaskStore over jackc/pgx/v5 +
// gorm.io/gorm + gorm.io/driver/postgres (teacher stack, internal/db's
// PostgresService and internal/repos/job_run.go's JobRunRepo), narrowed to
// exactly the columns the engine owns (§6): status, progress, result,
// errorLog, startedAt, completedAt.
package postgres

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/datatypes"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/flowforge/mediaflow/internal/domain"
	"github.com/flowforge/mediaflow/internal/platform/logger"
	"github.com/flowforge/mediaflow/internal/store"
)

// taskRow is the gorm model backing the engine's view of the tasks table
// (§3 TaskRecord). createdBy/workspaceRef are read-only to the engine;
// AutoMigrate is not called here — the web application owns the schema,
// the engine only ever queries/updates the columns it's granted.
type taskRow struct {
	ID           string `gorm:"column:id;primaryKey"`
	WorkspaceRef string `gorm:"column:workspace_ref"`
	CreatedBy    string `gorm:"column:created_by"`
	Kind         string `gorm:"column:kind"`
	Status       string `gorm:"column:status"`
	PayloadJSON  datatypes.JSON `gorm:"column:payload"`
	ResultJSON   datatypes.JSON `gorm:"column:result"`
	Progress     float64
	ErrorLog     string
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	ParentJobID  string `gorm:"column:parent_job_id"`
}

func (taskRow) TableName() string { return "tasks" }

// trackRow backs render:prepare's GetTracksByIDs lookup (§4.3, named after
// the teacher's JobRunRepo.GetByIDs).
type trackRow struct {
	ID       string         `gorm:"column:id;primaryKey"`
	DataJSON datatypes.JSON `gorm:"column:data"`
}

func (trackRow) TableName() string { return "timeline_tracks" }

type Store struct {
	db  *gorm.DB
	log *logger.Logger
}

// Config mirrors the teacher's PostgresService env resolution
// (internal/db/postgres.go), parameterized instead of reading os.Getenv
// directly so callers assemble the DSN once at boot from app config.
type Config struct {
	Host     string
	Port     string
	User     string
	Password string
	Name     string
	SSLMode  string
}

func (c Config) dsn() string {
	sslmode := c.SSLMode
	if sslmode == "" {
		sslmode = "disable"
	}
	return fmt.Sprintf("postgres://%s:%s@%s:%s/%s?sslmode=%s",
		c.User, c.Password, c.Host, c.Port, c.Name, sslmode)
}

func New(cfg Config, log *logger.Logger) (*Store, error) {
	db, err := gorm.Open(postgres.Open(cfg.dsn()), &gorm.Config{
		DisableForeignKeyConstraintWhenMigrating: true,
	})
	if err != nil {
		return nil, fmt.Errorf("connect postgres: %w", err)
	}
	return &Store{db: db, log: log.With("store", "postgres")}, nil
}

func wrapErr(err error) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%w: %v", domain.ErrStorePutFailed, err)
}

func (s *Store) ListQueued(ctx context.Context, limit int) ([]domain.Task, error) {
	var rows []taskRow
	q := s.db.WithContext(ctx).
		Where("status = ?", domain.TaskStatusQueued).
		Order("created_at ASC")
	if limit > 0 {
		q = q.Limit(limit)
	}
	if err := q.Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	out := make([]domain.Task, 0, len(rows))
	for _, r := range rows {
		t, err := r.toDomain()
		if err != nil {
			return nil, err
		}
		out = append(out, t)
	}
	return out, nil
}

// ClaimQueued generalizes the teacher's ClaimNextRunnable SELECT FOR
// UPDATE SKIP LOCKED pattern to a single conditional UPDATE, since the
// enqueuer already knows which task id it wants to claim (§4.6's
// workspace-fair round-robin picks the id before calling this).
func (s *Store) ClaimQueued(ctx context.Context, taskID string) (bool, error) {
	now := time.Now()
	res := s.db.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE", Options: "SKIP LOCKED"}).
		Model(&taskRow{}).
		Where("id = ? AND status = ?", taskID, domain.TaskStatusQueued).
		Updates(map[string]interface{}{
			"status":     domain.TaskStatusRunning,
			"started_at": now,
		})
	if res.Error != nil {
		return false, wrapErr(res.Error)
	}
	return res.RowsAffected > 0, nil
}

func (s *Store) Get(ctx context.Context, taskID string) (domain.Task, error) {
	var row taskRow
	err := s.db.WithContext(ctx).Where("id = ?", taskID).First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return domain.Task{}, fmt.Errorf("task %s not found: %w", taskID, domain.ErrStorageIO)
	}
	if err != nil {
		return domain.Task{}, wrapErr(err)
	}
	return row.toDomain()
}

func (s *Store) Update(ctx context.Context, taskID string, upd store.TaskUpdate) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var current taskRow
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
			Where("id = ?", taskID).First(&current).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return fmt.Errorf("task %s not found: %w", taskID, domain.ErrStorageIO)
			}
			return wrapErr(err)
		}
		if domain.IsTerminal(current.Status) && upd.Status != "" && upd.Status != current.Status {
			return fmt.Errorf("task %s already %s: %w", taskID, current.Status, domain.ErrTerminalConflict)
		}

		cols := map[string]interface{}{}
		if upd.Status != "" {
			cols["status"] = upd.Status
		}
		if upd.Progress != nil {
			cols["progress"] = *upd.Progress
		}
		if upd.Result != nil {
			b, err := marshalJSON(upd.Result)
			if err != nil {
				return wrapErr(err)
			}
			cols["result"] = b
		}
		if upd.ErrorLog != nil {
			cols["error_log"] = *upd.ErrorLog
		}
		if upd.StartedAt != nil {
			cols["started_at"] = *upd.StartedAt
		}
		if upd.CompletedAt != nil {
			cols["completed_at"] = *upd.CompletedAt
		}
		if upd.ParentJobID != nil {
			cols["parent_job_id"] = *upd.ParentJobID
		}
		if len(cols) == 0 {
			return nil
		}
		return tx.Model(&taskRow{}).Where("id = ?", taskID).Updates(cols).Error
	})
}

func (s *Store) GetTracksByIDs(ctx context.Context, ids []string) (map[string]map[string]any, error) {
	out := map[string]map[string]any{}
	if len(ids) == 0 {
		return out, nil
	}
	var rows []trackRow
	if err := s.db.WithContext(ctx).Where("id IN ?", ids).Find(&rows).Error; err != nil {
		return nil, wrapErr(err)
	}
	for _, r := range rows {
		m, err := unmarshalJSON(r.DataJSON)
		if err != nil {
			return nil, wrapErr(err)
		}
		out[r.ID] = m
	}
	return out, nil
}

func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
