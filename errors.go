package datastore

import (
	"errors"
	"fmt"

	"github.com/stevegt/datastore/engine"
)

var (
	// ErrOpenFailed matches every *OpenError.
	ErrOpenFailed = errors.New("error opening database")
	// ErrKeyNotFound is returned by GetItem for an absent key.
	ErrKeyNotFound = errors.New("key not found")
	// ErrKeyCollision is returned by SetItem when the key is already
	// present.  It is the engine's own error, passed through.
	ErrKeyCollision = engine.ErrKeyExists
	// ErrInvalidKeyType matches every *KeyTypeError.
	ErrInvalidKeyType = errors.New("key must be a string or a number")
	// ErrStoreNotConfigured is returned by operations on a DataStore
	// that has no engine or no store name.
	ErrStoreNotConfigured = errors.New("store name not set")
)

// OpenError reports that a database could not be opened.  Err is the
// engine's reason.
type OpenError struct {
	Name    string
	Version int
	Err     error
}

func (e *OpenError) Error() string {
	return fmt.Sprintf("%v %q: %v", ErrOpenFailed, e.Name, e.Err)
}

func (e *OpenError) Unwrap() error { return e.Err }

func (e *OpenError) Is(target error) bool { return target == ErrOpenFailed }

// KeyTypeError reports a key that is neither a string nor a number.
type KeyTypeError struct {
	Key interface{}
}

func (e *KeyTypeError) Error() string {
	return fmt.Sprintf("%v, got %T", ErrInvalidKeyType, e.Key)
}

func (e *KeyTypeError) Is(target error) bool { return target == ErrInvalidKeyType }
