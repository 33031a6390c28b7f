// Package userstore resolves user identifiers to user records.
//
// Two backends are provided: BadgerStore (embedded key/value, also usable
// fully in memory) and SQLiteStore.
package userstore

import (
	"context"
	"errors"
	"fmt"
	"time"
)

var (
	// ErrNotFound is returned when no user matches the identifier.
	ErrNotFound = errors.New("user not found")
	// ErrAlreadyExists is returned when creating a user whose id is taken.
	ErrAlreadyExists = errors.New("user already exists")
)

// User is a user record.
type User struct {
	ID        string    `json:"id"`
	Username  string    `json:"username"`
	CreatedAt time.Time `json:"created_at"`
}

// Store is a user repository.
type Store interface {
	Lookup(ctx context.Context, userID string) (User, error)
	Create(ctx context.Context, user User) (User, error)
	Close() error
}

// Backend names accepted by Open.
const (
	BackendBadger = "badger"
	BackendSQLite = "sqlite"
	BackendMemory = "memory"
)

// Open opens the store selected by backend. path is the badger directory or
// the sqlite file and is ignored for the memory backend.
func Open(backend, path string) (Store, error) {
	var (
		store Store
		err   error
	)
	switch backend {
	case BackendBadger:
		store, err = OpenBadger(path)
	case BackendMemory:
		store, err = OpenBadger("")
	case BackendSQLite:
		store, err = OpenSQLite(path)
	default:
		return nil, fmt.Errorf("unknown user store backend %q", backend)
	}
	if err != nil {
		return nil, err
	}
	return store, nil
}
