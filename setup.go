package datastore

import (
	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
)

// SetupOptions configures SetupDb.
type SetupOptions struct {
	// Name is the database name.  Required.
	Name string
	// Version is the schema version to open at.  Zero means 1.
	Version int
	// Stores lists the stores that must exist.  nil means a single
	// DefaultStoreName store; an empty slice means none.
	Stores []string
	// OnUpgradeNeeded, if set, is called after an open that created
	// the database or raised its version.  created holds a DataStore
	// for each store this call created, in Stores order; stores that
	// already existed are not included.
	OnUpgradeNeeded func(db engine.Conn, created []*DataStore)
}

// SetupDb opens the database named in opts, creating it and any
// missing stores as needed, and returns the open connection.  The
// caller must close it.  Stores that already exist are left alone.
func SetupDb(eng engine.Engine, opts SetupOptions) (db engine.Conn, err error) {
	version := opts.Version
	if version == 0 {
		version = 1
	}
	stores := opts.Stores
	if stores == nil {
		stores = []string{DefaultStoreName}
	}

	var upgraded bool
	var created []string
	req := eng.Open(opts.Name, version, func(up engine.Upgrade) error {
		Debug("upgrade needed for %q: %d -> %d", up.Name(), up.OldVersion(), up.NewVersion())
		upgraded = true
		created = created[:0]
		for _, name := range stores {
			if up.HasStore(name) {
				continue
			}
			err := up.CreateStore(name)
			if err != nil {
				return err
			}
			created = append(created, name)
		}
		return nil
	})
	res, err := await(req)
	if err != nil {
		Debug("error opening database %q: %v", opts.Name, err)
		return nil, &OpenError{Name: opts.Name, Version: version, Err: err}
	}
	db = res.(engine.Conn)

	if upgraded && opts.OnUpgradeNeeded != nil {
		handles := make([]*DataStore, 0, len(created))
		for _, name := range created {
			ds := New(eng, opts.Name, name)
			ds.Version = version
			handles = append(handles, ds)
		}
		func() {
			ok := false
			defer func() {
				if !ok {
					db.Close()
				}
			}()
			opts.OnUpgradeNeeded(db, handles)
			ok = true
		}()
	}
	return
}
