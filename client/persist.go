package client

import (
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	_ "modernc.org/sqlite" // pure Go sqlite driver, no cgo
)

// DefaultStoreName keys the persisted snapshot.
const DefaultStoreName = "project-management-storage"

// snapshotSchemaVersion guards the persisted shape. A mismatched version
// is discarded on load; the next poll repopulates state.
const snapshotSchemaVersion = 1

// Persister saves the store snapshot on every state transition and loads
// it at startup. Cross-process sharing is read-replay only: a snapshot
// written by one process is seen by another at its next start, never live.
type Persister interface {
	Load(name string) (*State, bool, error)
	Save(name string, st *State) error
}

// NopPersister keeps state memory-only.
type NopPersister struct{}

func (NopPersister) Load(string) (*State, bool, error) { return nil, false, nil }
func (NopPersister) Save(string, *State) error         { return nil }

type storeSnapshot struct {
	Name          string `gorm:"primaryKey"`
	SchemaVersion int    `gorm:"not null"`
	Data          []byte `gorm:"not null"`
	UpdatedAt     time.Time
}

// SQLitePersister writes the JSON-encoded snapshot as a single named row
// in a local sqlite file.
type SQLitePersister struct {
	db *gorm.DB
}

// OpenSQLitePersister opens (or creates) the snapshot database at path.
func OpenSQLitePersister(path string) (*SQLitePersister, error) {
	sqlDB, err := sql.Open("sqlite", path+"?_pragma=busy_timeout(5000)")
	if err != nil {
		return nil, fmt.Errorf("open sqlite database: %w", err)
	}
	db, err := gorm.Open(sqlite.Dialector{Conn: sqlDB}, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("open gorm: %w", err)
	}
	if err := db.Exec("PRAGMA journal_mode = WAL;").Error; err != nil {
		return nil, fmt.Errorf("enable WAL mode: %w", err)
	}
	// sqlite supports one writer at a time
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(&storeSnapshot{}); err != nil {
		return nil, fmt.Errorf("migrate snapshot table: %w", err)
	}
	return &SQLitePersister{db: db}, nil
}

func (p *SQLitePersister) Load(name string) (*State, bool, error) {
	var row storeSnapshot
	err := p.db.First(&row, "name = ?", name).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("load snapshot %q: %w", name, err)
	}
	if row.SchemaVersion != snapshotSchemaVersion {
		return nil, false, nil
	}
	var st State
	if err := json.Unmarshal(row.Data, &st); err != nil {
		return nil, false, fmt.Errorf("decode snapshot %q: %w", name, err)
	}
	return &st, true, nil
}

func (p *SQLitePersister) Save(name string, st *State) error {
	data, err := json.Marshal(st)
	if err != nil {
		return fmt.Errorf("encode snapshot %q: %w", name, err)
	}
	row := storeSnapshot{
		Name:          name,
		SchemaVersion: snapshotSchemaVersion,
		Data:          data,
		UpdatedAt:     time.Now(),
	}
	err = p.db.Save(&row).Error
	if err != nil {
		return fmt.Errorf("save snapshot %q: %w", name, err)
	}
	return nil
}

// Close releases the underlying database handle.
func (p *SQLitePersister) Close() error {
	sqlDB, err := p.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
