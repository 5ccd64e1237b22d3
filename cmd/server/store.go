package main

import (
	"chat-core/infrastructure/sqlstore"
	"chat-core/internal"
	"chat-core/repositories"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"

	"github.com/dgraph-io/badger/v4"
)

type store struct {
	users    repositories.IUserRepository
	chats    repositories.IChatRepository
	messages repositories.IMessageRepository
	close    func() error
}

// openStore opens the persistence driver selected by STORE_DRIVER.
func openStore(config internal.Config, log *slog.Logger) (store, error) {
	switch config.StoreDriver {
	case internal.StoreSQLite:
		if err := os.MkdirAll(filepath.Dir(config.SQLiteDSN), 0o755); err != nil {
			return store{}, fmt.Errorf("database directory: %w", err)
		}
		db, err := sqlstore.Open(config.SQLiteDSN)
		if err != nil {
			return store{}, err
		}
		return store{
			users:    sqlstore.NewUserRepository(db, log),
			chats:    sqlstore.NewChatRepository(db, log),
			messages: sqlstore.NewMessageRepository(db, log),
			close:    func() error { return sqlstore.Close(db) },
		}, nil
	default:
		db, err := badger.Open(badger.DefaultOptions(config.BadgerFilepath).
			WithLoggingLevel(badger.WARNING))
		if err != nil {
			return store{}, fmt.Errorf("database opening failed: %w", err)
		}
		return store{
			users:    repositories.NewUserRepository(db, log),
			chats:    repositories.NewChatRepository(db, log),
			messages: repositories.NewMessageRepository(db, log),
			close:    db.Close,
		}, nil
	}
}
