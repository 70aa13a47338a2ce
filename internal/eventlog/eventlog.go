// Package eventlog persists the relay's operational events to sqlite.
// It is the only thing the server ever writes to disk.
package eventlog

import (
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	gormlogger "gorm.io/gorm/logger"
)

type Event struct {
	ID     uint `gorm:"primaryKey"`
	At     time.Time
	Kind   string
	Detail string
}

type Log struct {
	db *gorm.DB
}

// Open creates or appends to the event database at path. Use ":memory:"
// for an ephemeral log.
func Open(path string) (*Log, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: gormlogger.Discard,
	})
	if err != nil {
		return nil, fmt.Errorf("opening event log: %w", err)
	}

	if err := db.AutoMigrate(&Event{}); err != nil {
		return nil, fmt.Errorf("migrating event log: %w", err)
	}

	return &Log{db: db}, nil
}

func (l *Log) Record(at time.Time, kind, detail string) error {
	return l.db.Create(&Event{At: at, Kind: kind, Detail: detail}).Error
}

// Recent returns up to n events, newest first.
func (l *Log) Recent(n int) ([]Event, error) {
	var events []Event
	err := l.db.Order("id desc").Limit(n).Find(&events).Error
	return events, err
}

func (l *Log) Close() error {
	sqlDB, err := l.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}
