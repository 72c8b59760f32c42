// Package engine defines the storage engine capability that the
// datastore client is written against.  An engine hosts named,
// versioned databases; each database holds named object stores
// mapping string keys to byte values.  Schema changes (store
// creation) are only allowed while a database is being upgraded.
//
// Engine primitives report their outcome through a Request, a
// single-shot completion that settles exactly once with either a
// result or an error.
package engine

import (
	"errors"
)

// Mode is the access mode of a transaction.
type Mode int

const (
	// ReadOnly transactions may only read.
	ReadOnly Mode = iota
	// ReadWrite transactions may read and write.
	ReadWrite
)

func (m Mode) String() string {
	switch m {
	case ReadOnly:
		return "readonly"
	case ReadWrite:
		return "readwrite"
	}
	return "unknown"
}

// Errors reported by engines.  Engines return these values verbatim
// (or wrapped with %w) so callers can match them with errors.Is.
var (
	ErrInvalidArgument = errors.New("invalid argument")
	ErrVersion         = errors.New("requested version is less than the existing version")
	ErrFormat          = errors.New("database was written by a newer format")
	ErrNotFound        = errors.New("no such object store")
	ErrKeyExists       = errors.New("key already exists in the object store")
	ErrReadOnly        = errors.New("transaction is read-only")
	ErrNotUpgrading    = errors.New("schema changes are only allowed during an upgrade")
	ErrTxnDone         = errors.New("transaction has already finished")
	ErrClosed          = errors.New("database connection is closed")
	ErrDatabaseBusy    = errors.New("database is open")
)

// Missing is the result of a get on a key that is not in the store.
// It is distinct from any stored value, including an empty one.
type Missing struct{}

// UpgradeFunc is called by Open, inside the engine's upgrade
// transaction, when the database is created or its version raised.
// Returning an error aborts the upgrade and fails the open.
type UpgradeFunc func(up Upgrade) error

// Upgrade is the view of a database during its upgrade phase.
type Upgrade interface {
	Name() string
	// OldVersion is 0 when the database is being created.
	OldVersion() int
	NewVersion() int
	StoreNames() []string
	HasStore(name string) bool
	// CreateStore creates an object store.  It fails if the store
	// already exists.
	CreateStore(name string) error
}

// Engine opens databases.
type Engine interface {
	Catalog
	// Open opens the named database at version.  A version of 0
	// opens the current version, or version 1 if the database does
	// not exist yet.  The request's result is a Conn.
	Open(name string, version int, upgrade UpgradeFunc) *Request
}

// DatabaseInfo describes one database in a catalog.
type DatabaseInfo struct {
	Name    string
	Version int
}

// Catalog enumerates and deletes databases.
type Catalog interface {
	Databases() ([]DatabaseInfo, error)
	// DeleteDatabase deletes a database.  Deleting a database that
	// does not exist succeeds.
	DeleteDatabase(name string) error
}

// Conn is an open database connection.
type Conn interface {
	Name() string
	Version() int
	StoreNames() []string
	HasStore(name string) bool
	// Transaction starts a transaction scoped to a single object
	// store.
	Transaction(store string, mode Mode) (Txn, error)
	// Close releases the connection.  Closing twice is a no-op.
	Close() error
}

// Txn is a transaction over one object store.
type Txn interface {
	Mode() Mode
	// Store returns the handle for the store the transaction is
	// scoped to.
	Store(name string) (ObjectStore, error)
	// Commit finishes the transaction, making writes durable.  For
	// read-only transactions it just releases the snapshot.
	Commit() *Request
	// Abort discards the transaction.  Aborting a finished
	// transaction is a no-op.
	Abort() error
}

// ObjectStore is the per-store primitive surface inside a
// transaction.  Every call issues one asynchronous request.
type ObjectStore interface {
	Name() string
	// Get results in a []byte, or Missing if the key is absent.
	Get(key string) *Request
	// Add inserts value under key.  It fails with ErrKeyExists if
	// the key is present.
	Add(value []byte, key string) *Request
	// Delete removes key.  Deleting an absent key succeeds.
	Delete(key string) *Request
	// GetAllKeys results in a []string in ascending key order.
	GetAllKeys() *Request
	// Count results in an int.
	Count() *Request
	Clear() *Request
}

// ValidName reports whether name can be used for a database or
// object store.
func ValidName(name string) bool {
	return name != ""
}
