package datastore

import (
	"errors"
	"fmt"

	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
)

// maxUpgrades bounds how many times getDb raises the version while
// other clients keep upgrading the same database under it.
const maxUpgrades = 16

// getDb opens the database backing ds.  If the open upgrades the
// database, ds's store is created when missing.  The caller closes
// the returned connection.
//
// With Version 0 the returned connection always has ds's store: if
// the database exists without it, getDb reopens at the next version so
// the upgrade creates it.  Another client may take that version first
// for its own store, so getDb tries again from wherever the database
// ended up.
func (ds *DataStore) getDb() (db engine.Conn, err error) {
	db, err = ds.open(ds.Version)
	if err != nil || ds.Version != 0 {
		return
	}
	for i := 0; !db.HasStore(ds.StoreName); i++ {
		next := db.Version() + 1
		err = db.Close()
		if err != nil {
			return nil, err
		}
		if i == maxUpgrades {
			err = fmt.Errorf("%w: store %q still missing after %d upgrades", engine.ErrNotFound, ds.StoreName, i)
			return nil, &OpenError{Name: ds.DbName, Version: next, Err: err}
		}
		Debug("store %q missing from %q, upgrading to %d", ds.StoreName, ds.DbName, next)
		db, err = ds.open(next)
		if errors.Is(err, engine.ErrVersion) {
			// someone else went past next; start over at the
			// current version
			db, err = ds.open(0)
		}
		if err != nil {
			return nil, err
		}
	}
	return
}

func (ds *DataStore) open(version int) (db engine.Conn, err error) {
	req := ds.Engine.Open(ds.DbName, version, func(up engine.Upgrade) error {
		Debug("upgrade needed for %q: %d -> %d", up.Name(), up.OldVersion(), up.NewVersion())
		if up.HasStore(ds.StoreName) {
			return nil
		}
		return up.CreateStore(ds.StoreName)
	})
	res, err := await(req)
	if err != nil {
		Debug("error opening database %q: %v", ds.DbName, err)
		return nil, &OpenError{Name: ds.DbName, Version: version, Err: err}
	}
	return res.(engine.Conn), nil
}
