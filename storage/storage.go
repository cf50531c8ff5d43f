// Package storage provides the persistent key/value layer that holds a
// client's session tokens between process runs.
package storage

import "errors"

// Keys under which the session layer persists its state.
const (
	KeyAccess  = "access"
	KeyRefresh = "refresh"
	KeyUser    = "user"
)

// SessionKeys lists every key owned by the session layer.
var SessionKeys = []string{KeyAccess, KeyRefresh, KeyUser}

var (
	// ErrNotFound is returned by Get when no value is stored under the key.
	ErrNotFound = errors.New("not found")
	// ErrUnsealFailed is returned when a sealed value cannot be decrypted,
	// usually because the passphrase changed.
	ErrUnsealFailed = errors.New("unseal failed")
)

// TokenStore is a string-keyed store for session state. Implementations
// must be safe for concurrent use; concurrent writers to the same key
// resolve last-write-wins.
type TokenStore interface {
	// Get returns the value stored under key or ErrNotFound.
	Get(key string) (string, error)
	// Set creates or replaces the value stored under key.
	Set(key, value string) error
	// Delete removes the given keys. Missing keys are not an error.
	Delete(keys ...string) error
}

// Lookup returns the value stored under key, treating ErrNotFound as empty.
func Lookup(s TokenStore, key string) (string, error) {
	v, err := s.Get(key)
	if errors.Is(err, ErrNotFound) {
		return "", nil
	}
	return v, err
}
