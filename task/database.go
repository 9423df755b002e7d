// Copyright 2025 The Go A2A Authors
// SPDX-License-Identifier: Apache-2.0

package task

import (
	"context"
	"database/sql/driver"
	"errors"
	"fmt"

	"github.com/glebarez/sqlite"
	"github.com/go-json-experiment/json"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
	"gorm.io/gorm/logger"

	"github.com/agentvault/a2a"
)

// taskJSON stores a whole [a2a.Task] in one JSON column.
type taskJSON struct {
	a2a.Task
}

// Value implements [driver.Valuer].
func (t taskJSON) Value() (driver.Value, error) {
	return json.Marshal(t.Task)
}

// Scan implements [sql.Scanner].
func (t *taskJSON) Scan(value any) error {
	var data []byte
	switch v := value.(type) {
	case nil:
		*t = taskJSON{}
		return nil
	case []byte:
		data = v
	case string:
		data = []byte(v)
	default:
		return fmt.Errorf("cannot scan %T into taskJSON", value)
	}
	return json.Unmarshal(data, &t.Task)
}

// taskModel is one cached task row. State and Updated are copied out of the payload so they
// can be indexed and sorted on.
type taskModel struct {
	AgentURL string   `gorm:"primaryKey"`
	TaskID   string   `gorm:"primaryKey"`
	State    string   `gorm:"index"`
	Updated  int64    `gorm:"index"`
	Payload  taskJSON `gorm:"type:text;not null"`
}

func (taskModel) TableName() string { return "a2a_tasks" }

// DatabaseStore is a [Store] over a GORM database.
type DatabaseStore struct {
	db *gorm.DB
}

var _ Store = (*DatabaseStore)(nil)

// NewDatabaseStore returns a store over db and creates its table if needed.
func NewDatabaseStore(ctx context.Context, db *gorm.DB) (*DatabaseStore, error) {
	if db == nil {
		return nil, errors.New("task: nil database")
	}
	if err := db.WithContext(ctx).AutoMigrate(&taskModel{}); err != nil {
		return nil, fmt.Errorf("task: migrate: %w", err)
	}
	return &DatabaseStore{db: db}, nil
}

// OpenSQLite opens (creating if needed) the SQLite database at dsn and returns a store over it.
// Use ":memory:" for a throwaway database.
func OpenSQLite(ctx context.Context, dsn string) (*DatabaseStore, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		Logger: logger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("task: open %s: %w", dsn, err)
	}
	if dsn == ":memory:" {
		// Every pooled connection would otherwise see its own empty database.
		sqlDB, err := db.DB()
		if err != nil {
			return nil, fmt.Errorf("task: open %s: %w", dsn, err)
		}
		sqlDB.SetMaxOpenConns(1)
	}
	return NewDatabaseStore(ctx, db)
}

// Close closes the underlying database connection.
func (s *DatabaseStore) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Get implements [Store].
func (s *DatabaseStore) Get(ctx context.Context, k Key) (*a2a.Task, error) {
	if err := k.validate(); err != nil {
		return nil, err
	}

	var m taskModel
	err := s.db.WithContext(ctx).
		Where("agent_url = ? AND task_id = ?", k.AgentURL, k.TaskID).
		First(&m).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, &StoreError{Op: "get", Key: k, Err: ErrNotFound}
	}
	if err != nil {
		return nil, &StoreError{Op: "get", Key: k, Err: err}
	}
	return &m.Payload.Task, nil
}

// Save implements [Store].
func (s *DatabaseStore) Save(ctx context.Context, k Key, task *a2a.Task) error {
	if err := k.validate(); err != nil {
		return err
	}

	m := taskModel{
		AgentURL: k.AgentURL,
		TaskID:   k.TaskID,
		State:    string(task.State),
		Updated:  updatedNanos(task),
		Payload:  taskJSON{Task: *task},
	}
	err := s.db.WithContext(ctx).
		Clauses(clause.OnConflict{UpdateAll: true}).
		Create(&m).Error
	if err != nil {
		return &StoreError{Op: "save", Key: k, Err: err}
	}
	return nil
}

// List implements [Store].
func (s *DatabaseStore) List(ctx context.Context, agentURL string) ([]*a2a.Task, error) {
	db := s.db.WithContext(ctx)
	if agentURL != "" {
		db = db.Where("agent_url = ?", agentURL)
	}

	var models []taskModel
	if err := db.Order("updated DESC").Order("task_id").Find(&models).Error; err != nil {
		return nil, &StoreError{Op: "list", Key: Key{AgentURL: agentURL}, Err: err}
	}

	tasks := make([]*a2a.Task, len(models))
	for i := range models {
		tasks[i] = &models[i].Payload.Task
	}
	return tasks, nil
}

func updatedNanos(t *a2a.Task) int64 {
	switch {
	case !t.UpdatedAt.IsZero():
		return t.UpdatedAt.UnixNano()
	case !t.CreatedAt.IsZero():
		return t.CreatedAt.UnixNano()
	}
	return 0
}
