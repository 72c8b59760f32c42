// Package datastore is a small client for a transactional, versioned,
// embedded key-value engine.  A DataStore names one object store in
// one database and offers get/set/remove/keys/count/clear on it.
// SetupDb provisions a database and its stores at a schema version.
//
// A DataStore holds no open connection.  Every operation opens the
// database, runs one primitive in a transaction scoped to the store,
// and closes the connection again.
package datastore

import (
	"github.com/stevegt/datastore/engine"
)

const (
	// DefaultDbName is the database used when none is given.
	DefaultDbName = "Default DB"
	// DefaultStoreName is the store used when none is given.
	DefaultStoreName = "data"
)

// DataStore is a handle on one object store in one database.
type DataStore struct {
	// Engine hosts the database.
	Engine engine.Engine
	// DbName is the database name.
	DbName string
	// StoreName is the object store name.
	StoreName string
	// Version is the schema version to open the database at.  Zero
	// opens whatever version the database has, or 1 if it is new.
	Version int
}

// New returns a DataStore for storeName in dbName.  Empty names are
// replaced with DefaultDbName and DefaultStoreName.
func New(eng engine.Engine, dbName, storeName string) *DataStore {
	if dbName == "" {
		dbName = DefaultDbName
	}
	if storeName == "" {
		storeName = DefaultStoreName
	}
	return &DataStore{
		Engine:    eng,
		DbName:    dbName,
		StoreName: storeName,
	}
}

// check guards against a DataStore built as a bare struct literal.
func (ds *DataStore) check() error {
	if ds == nil || ds.Engine == nil || ds.StoreName == "" {
		return ErrStoreNotConfigured
	}
	return nil
}
