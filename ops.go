package datastore

import (
	"fmt"

	"github.com/stevegt/datastore/engine"
)

// run is the unit of work behind every operation: open the database,
// start a transaction scoped to ds's store, issue one primitive, wait
// for it, commit, and close.  The connection is closed on every path.
func (ds *DataStore) run(mode engine.Mode, primitive func(engine.ObjectStore) *engine.Request) (result interface{}, err error) {
	err = ds.check()
	if err != nil {
		return
	}
	db, err := ds.getDb()
	if err != nil {
		return
	}
	defer func() {
		cerr := db.Close()
		if err == nil {
			err = cerr
		}
	}()

	txn, err := db.Transaction(ds.StoreName, mode)
	if err != nil {
		return
	}
	store, err := txn.Store(ds.StoreName)
	if err != nil {
		txn.Abort()
		return
	}
	result, err = await(primitive(store))
	if err != nil {
		txn.Abort()
		return nil, err
	}
	err = awaitDone(txn.Commit())
	if err != nil {
		return nil, err
	}
	return
}

// keyed validates key and then runs one primitive with it.
func (ds *DataStore) keyed(key interface{}, mode engine.Mode, primitive func(engine.ObjectStore, string) *engine.Request) (result interface{}, err error) {
	err = ds.check()
	if err != nil {
		return
	}
	k, err := normalizeKey(key)
	if err != nil {
		return
	}
	return ds.run(mode, func(store engine.ObjectStore) *engine.Request {
		return primitive(store, k)
	})
}

// getRaw returns the stored bytes for key.
func (ds *DataStore) getRaw(key interface{}) (data []byte, err error) {
	res, err := ds.keyed(key, engine.ReadOnly, func(store engine.ObjectStore, k string) *engine.Request {
		return store.Get(k)
	})
	if err != nil {
		return
	}
	switch v := res.(type) {
	case engine.Missing:
		return nil, ErrKeyNotFound
	case []byte:
		return v, nil
	}
	return nil, fmt.Errorf("unexpected get result %T", res)
}

// GetItem returns the value stored under key.  It fails with
// ErrKeyNotFound if there is none.  Maps come back as
// map[string]interface{}, integers as int64 or uint64.
func (ds *DataStore) GetItem(key interface{}) (value interface{}, err error) {
	data, err := ds.getRaw(key)
	if err != nil {
		return
	}
	err = unmarshalValue(data, &value)
	return
}

// GetItemInto decodes the value stored under key into v, which must
// be a pointer.
func (ds *DataStore) GetItemInto(key interface{}, v interface{}) (err error) {
	data, err := ds.getRaw(key)
	if err != nil {
		return
	}
	return unmarshalValue(data, v)
}

// SetItem stores value under key.  It never overwrites: if key is
// already present it fails with ErrKeyCollision and the stored value
// is unchanged.
func (ds *DataStore) SetItem(key interface{}, value interface{}) (err error) {
	data, err := marshalValue(value)
	if err != nil {
		return
	}
	_, err = ds.keyed(key, engine.ReadWrite, func(store engine.ObjectStore, k string) *engine.Request {
		return store.Add(data, k)
	})
	return
}

// RemoveItem deletes key.  Removing an absent key succeeds.
func (ds *DataStore) RemoveItem(key interface{}) (err error) {
	_, err = ds.keyed(key, engine.ReadWrite, func(store engine.ObjectStore, k string) *engine.Request {
		return store.Delete(k)
	})
	return
}

// Keys returns every key in the store, in the engine's key order.
func (ds *DataStore) Keys() (keys []string, err error) {
	res, err := ds.run(engine.ReadOnly, func(store engine.ObjectStore) *engine.Request {
		return store.GetAllKeys()
	})
	if err != nil {
		return
	}
	keys, ok := res.([]string)
	if !ok {
		return nil, fmt.Errorf("unexpected keys result %T", res)
	}
	return
}

// Count returns the number of records in the store.
func (ds *DataStore) Count() (n int, err error) {
	res, err := ds.run(engine.ReadOnly, func(store engine.ObjectStore) *engine.Request {
		return store.Count()
	})
	if err != nil {
		return
	}
	n, ok := res.(int)
	if !ok {
		return 0, fmt.Errorf("unexpected count result %T", res)
	}
	return
}

// Length is Count.
func (ds *DataStore) Length() (int, error) {
	return ds.Count()
}

// Clear removes every record from the store.
func (ds *DataStore) Clear() (err error) {
	_, err = ds.run(engine.ReadWrite, func(store engine.ObjectStore) *engine.Request {
		return store.Clear()
	})
	return
}
