package datastore

import (
	"fmt"

	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
)

// ListDatabases returns the databases known to cat.
func ListDatabases(cat engine.Catalog) ([]engine.DatabaseInfo, error) {
	return cat.Databases()
}

// DropDatabases deletes the named databases from cat, or every
// database when no names are given.  It returns the names it deleted.
// It stops at the first failure.
func DropDatabases(cat engine.Catalog, names ...string) (dropped []string, err error) {
	if len(names) == 0 {
		infos, err := cat.Databases()
		if err != nil {
			return nil, err
		}
		for _, info := range infos {
			names = append(names, info.Name)
		}
	}
	for _, name := range names {
		Debug("deleting database %q", name)
		err = cat.DeleteDatabase(name)
		if err != nil {
			return dropped, fmt.Errorf("cannot delete database %q: %w", name, err)
		}
		dropped = append(dropped, name)
	}
	return
}
