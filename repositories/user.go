package repositories

import (
	"chat-core/domain"
	"chat-core/errors"
	"context"
	"encoding/json"
	"log/slog"
	"sort"
	"strings"
	"time"

	"github.com/dgraph-io/badger/v4"
)

type UserRepository struct {
	db  *badger.DB
	log *slog.Logger
}

func NewUserRepository(db *badger.DB, log *slog.Logger) UserRepository {
	return UserRepository{db: db, log: log}
}

var _ IUserRepository = UserRepository{}

// diskUser is the persisted form of a user. Unlike domain.User it keeps the password hash.
type diskUser struct {
	ID           string   `json:"id"`
	Email        string   `json:"email"`
	Username     string   `json:"username"`
	PasswordHash string   `json:"password_hash"`
	Roles        []string `json:"roles"`
	CreatedAt    int64    `json:"created_at"`
}

// CreateUser persists the user and reserves its email and username in the same transaction.
func (u UserRepository) CreateUser(_ context.Context, user domain.User) (domain.User, error) {
	user.CreatedAt = time.Now().UTC()
	err := update(u.db, func(txn *badger.Txn) error {
		email := strings.ToLower(user.Email)
		username := strings.ToLower(user.Username)

		taken, err := exists(txn, emailKey(email))
		if err != nil {
			return err
		}
		if taken {
			return errors.ErrUserAlreadyExists
		}
		if taken, err = exists(txn, usernameKey(username)); err != nil {
			return err
		}
		if taken {
			return errors.ErrUsernameTaken
		}

		if err = setJSON(txn, userKey(user.ID), fromUser(user)); err != nil {
			return err
		}
		if err = txn.Set(emailKey(email), []byte(user.ID)); err != nil {
			return err
		}
		return txn.Set(usernameKey(username), []byte(user.ID))
	})
	if err != nil {
		return domain.User{}, errors.Internal(err)
	}
	return user, nil
}

func (u UserRepository) GetUserByID(_ context.Context, id string) (domain.User, error) {
	var disk diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, userKey(id), &disk)
	})
	if err != nil {
		return domain.User{}, notFound(err, errors.ErrUserNotFound)
	}
	return toUser(disk), nil
}

func (u UserRepository) GetUserByEmail(_ context.Context, email string) (domain.User, error) {
	var disk diskUser
	err := u.db.View(func(txn *badger.Txn) error {
		id, err := getString(txn, emailKey(strings.ToLower(email)))
		if err != nil {
			return err
		}
		return getJSON(txn, userKey(id), &disk)
	})
	if err != nil {
		return domain.User{}, notFound(err, errors.ErrUserNotFound)
	}
	return toUser(disk), nil
}

func (u UserRepository) UserExists(_ context.Context, id string) (bool, error) {
	var found bool
	err := u.db.View(func(txn *badger.Txn) error {
		var err error
		found, err = exists(txn, userKey(id))
		return err
	})
	if err != nil {
		return false, errors.Internal(err)
	}
	return found, nil
}

// SearchUsers scans every account and keeps those whose username contains term, ignoring case.
func (u UserRepository) SearchUsers(_ context.Context, term string, limit int) ([]domain.User, error) {
	needle := strings.ToLower(term)
	var users []domain.User
	err := u.db.View(func(txn *badger.Txn) error {
		prefix := []byte(userPrefix)
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		for it.Seek(prefix); it.ValidForPrefix(prefix); it.Next() {
			var disk diskUser
			err := it.Item().Value(func(val []byte) error {
				return json.Unmarshal(val, &disk)
			})
			if err != nil {
				return err
			}
			if strings.Contains(strings.ToLower(disk.Username), needle) {
				users = append(users, toUser(disk))
			}
		}
		return nil
	})
	if err != nil {
		return nil, errors.Internal(err)
	}
	sort.Slice(users, func(i, j int) bool { return users[i].Username < users[j].Username })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

// UpdateUsername swaps the username reservation atomically.
// Renaming to the same name with a different case is allowed.
func (u UserRepository) UpdateUsername(_ context.Context, id, username string) (domain.User, error) {
	var disk diskUser
	err := update(u.db, func(txn *badger.Txn) error {
		disk = diskUser{}
		if err := getJSON(txn, userKey(id), &disk); err != nil {
			return notFound(err, errors.ErrUserNotFound)
		}
		oldName := strings.ToLower(disk.Username)
		newName := strings.ToLower(username)

		if oldName != newName {
			owner, err := getString(txn, usernameKey(newName))
			switch {
			case err == nil && owner != id:
				return errors.ErrUsernameTaken
			case err != nil && !errors.Is(err, badger.ErrKeyNotFound):
				return err
			}
			if err = txn.Delete(usernameKey(oldName)); err != nil {
				return err
			}
			if err = txn.Set(usernameKey(newName), []byte(id)); err != nil {
				return err
			}
		}
		disk.Username = username
		return setJSON(txn, userKey(id), disk)
	})
	if err != nil {
		return domain.User{}, errors.Internal(err)
	}
	return toUser(disk), nil
}

// DeleteUser removes the account and frees its email and username.
// Chats and messages keep referencing the id as a historical participant.
func (u UserRepository) DeleteUser(_ context.Context, id string) error {
	err := update(u.db, func(txn *badger.Txn) error {
		var disk diskUser
		if err := getJSON(txn, userKey(id), &disk); err != nil {
			return notFound(err, errors.ErrUserNotFound)
		}
		for _, key := range [][]byte{
			userKey(id),
			emailKey(strings.ToLower(disk.Email)),
			usernameKey(strings.ToLower(disk.Username)),
		} {
			if err := txn.Delete(key); err != nil {
				return err
			}
		}
		return nil
	})
	if err != nil {
		u.log.Debug("User deletion failed", "user_id", id, "error", err)
	}
	return errors.Internal(err)
}

func fromUser(user domain.User) diskUser {
	return diskUser{
		ID:           user.ID,
		Email:        user.Email,
		Username:     user.Username,
		PasswordHash: user.PasswordHash,
		Roles:        user.Roles,
		CreatedAt:    user.CreatedAt.UnixNano(),
	}
}

func toUser(disk diskUser) domain.User {
	return domain.User{
		ID:           disk.ID,
		Email:        disk.Email,
		Username:     disk.Username,
		PasswordHash: disk.PasswordHash,
		Roles:        disk.Roles,
		CreatedAt:    time.Unix(0, disk.CreatedAt).UTC(),
	}
}
