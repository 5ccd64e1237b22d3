// Package sqlstore implements the repositories on gorm over a pure-Go SQLite driver.
// Uniqueness (emails, usernames, SINGLE chat pairs) is enforced by unique indexes and
// status transitions are single conditional UPDATE statements.
package sqlstore

import (
	"chat-core/errors"
	"fmt"
	"strings"

	"github.com/glebarez/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

type userModel struct {
	ID           string `gorm:"primaryKey;size:36"`
	Email        string `gorm:"not null"`
	EmailKey     string `gorm:"uniqueIndex;not null"`
	Username     string `gorm:"not null"`
	UsernameKey  string `gorm:"uniqueIndex;not null"`
	PasswordHash string
	Roles        string
	CreatedUnix  int64 `gorm:"column:created_at"`
}

func (userModel) TableName() string { return "users" }

type chatModel struct {
	ID           string  `gorm:"primaryKey;size:36"`
	Name         string
	Type         string  `gorm:"not null"`
	PairKey      *string `gorm:"uniqueIndex"`
	CreatedUnix  int64   `gorm:"column:created_at"`
	ActivityUnix int64   `gorm:"column:last_activity;index"`
}

func (chatModel) TableName() string { return "chats" }

type participantModel struct {
	ChatID   string `gorm:"primaryKey;size:36"`
	UserID   string `gorm:"primaryKey;size:36;index"`
	Position int
}

func (participantModel) TableName() string { return "chat_participants" }

type messageModel struct {
	Seq      int64  `gorm:"primaryKey;autoIncrement"`
	ID       string `gorm:"uniqueIndex;size:36;not null"`
	ChatID   string `gorm:"index:idx_chat_timestamp,priority:1;not null"`
	SenderID string `gorm:"not null"`
	Content  string
	Type     string
	Status   string
	Language string
	SentUnix int64 `gorm:"column:created_at;index:idx_chat_timestamp,priority:2"`

	// ContentKey is the content lowered with Unicode case rules, searched instead of LOWER(content).
	ContentKey string
}

func (messageModel) TableName() string { return "messages" }

type receiptModel struct {
	MessageID string `gorm:"primaryKey;size:36"`
	ReaderID  string `gorm:"primaryKey;size:36"`
	ChatID    string `gorm:"index:idx_receipt_chat_reader,priority:1;not null"`
	ReadUnix  int64  `gorm:"column:read_at"`
}

func (receiptModel) TableName() string { return "read_receipts" }

// Open connects to the SQLite database at dsn and migrates the schema.
// A single open connection serialises writers, SQLite's own locking would otherwise
// surface as "database is locked" errors under concurrent transactions.
func Open(dsn string) (*gorm.DB, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("sqlite opening failed: %w", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		return nil, err
	}
	sqlDB.SetMaxOpenConns(1)

	if err = db.AutoMigrate(&userModel{}, &chatModel{}, &participantModel{}, &messageModel{}, &receiptModel{}); err != nil {
		return nil, fmt.Errorf("migration failed: %w", err)
	}
	return db, nil
}

// Close releases the underlying connection pool.
func Close(db *gorm.DB) error {
	sqlDB, err := db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func isUniqueViolation(err error) bool {
	return errors.Is(err, gorm.ErrDuplicatedKey) ||
		(err != nil && strings.Contains(err.Error(), "UNIQUE constraint failed"))
}

// handleFindError maps gorm's not-found to the given domain error.
func handleFindError(err error, target error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return target
	}
	return errors.Internal(err)
}

// escapeLike neutralises LIKE wildcards in user input, used with ESCAPE '\'.
func escapeLike(term string) string {
	term = strings.ReplaceAll(term, `\`, `\\`)
	term = strings.ReplaceAll(term, "%", `\%`)
	return strings.ReplaceAll(term, "_", `\_`)
}
