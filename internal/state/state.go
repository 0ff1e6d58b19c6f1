// Package state persists small key/value application state (the archive
// credential and notification preferences) in a bbolt database.
package state

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sync"
	"time"

	bolt "go.etcd.io/bbolt"
)

const (
	stateDirPerm  = fs.FileMode(0o700)
	stateFilePerm = fs.FileMode(0o600)

	// stateOpenTimeout is the maximum time to wait for the bolt database lock.
	stateOpenTimeout = 5 * time.Second
)

var (
	appBucket     = []byte("app")
	tokenKey      = []byte("token")
	permissionKey = []byte("notification_permission")
)

// Permission is the user's decision about system notifications.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// State wraps a bbolt database for persistent application state.
type State struct {
	db *bolt.DB

	mu       sync.Mutex
	watchers []func(token string)
}

// LoadAt opens a state database at the given path, creating it if it
// does not exist. The app bucket is created on open.
func LoadAt(path string) (*State, error) {
	if err := os.MkdirAll(filepath.Dir(path), stateDirPerm); err != nil {
		return nil, fmt.Errorf("creating state directory: %w", err)
	}

	db, err := bolt.Open(path, stateFilePerm, &bolt.Options{Timeout: stateOpenTimeout})
	if err != nil {
		return nil, fmt.Errorf("opening state db: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(appBucket)
		return err
	})
	if err != nil {
		db.Close()
		return nil, fmt.Errorf("initializing state db: %w", err)
	}

	return &State{db: db}, nil
}

// Close closes the database.
func (s *State) Close() error {
	return s.db.Close()
}

// Token returns the stored archive credential, or empty string.
func (s *State) Token() string {
	return string(s.get(tokenKey))
}

// SetToken persists the credential and notifies watchers when it changed.
func (s *State) SetToken(token string) error {
	prev := s.Token()
	if err := s.put(tokenKey, []byte(token)); err != nil {
		return fmt.Errorf("storing token: %w", err)
	}
	if prev != token {
		s.notify(token)
	}
	return nil
}

// Invalidate drops the credential after the server rejected it.
func (s *State) Invalidate() error {
	return s.SetToken("")
}

// OnTokenChange registers fn to be called with the new token after every
// change. Callbacks run synchronously on the changing goroutine.
func (s *State) OnTokenChange(fn func(token string)) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.watchers = append(s.watchers, fn)
}

func (s *State) notify(token string) {
	s.mu.Lock()
	watchers := append([]func(string){}, s.watchers...)
	s.mu.Unlock()
	for _, fn := range watchers {
		fn(token)
	}
}

// Permission returns the stored notification decision.
func (s *State) Permission() Permission {
	switch p := Permission(s.get(permissionKey)); p {
	case PermissionGranted, PermissionDenied:
		return p
	default:
		return PermissionDefault
	}
}

// SetPermission persists the notification decision.
func (s *State) SetPermission(p Permission) error {
	if err := s.put(permissionKey, []byte(p)); err != nil {
		return fmt.Errorf("storing permission: %w", err)
	}
	return nil
}

func (s *State) get(key []byte) []byte {
	var out []byte
	_ = s.db.View(func(tx *bolt.Tx) error {
		if v := tx.Bucket(appBucket).Get(key); v != nil {
			out = append([]byte(nil), v...)
		}
		return nil
	})
	return out
}

func (s *State) put(key, value []byte) error {
	return s.db.Update(func(tx *bolt.Tx) error {
		b := tx.Bucket(appBucket)
		if len(value) == 0 {
			return b.Delete(key)
		}
		return b.Put(key, value)
	})
}
