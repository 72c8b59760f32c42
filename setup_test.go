package datastore

import (
	"errors"
	"io/ioutil"
	"os"
	"path/filepath"
	"reflect"
	"testing"

	"github.com/stevegt/datastore/engine"
	"github.com/stevegt/datastore/engine/bolt"
	. "github.com/stevegt/goadapt"
)

// hookRecorder records OnUpgradeNeeded calls.
type hookRecorder struct {
	calls   int
	created [][]string
}

func (h *hookRecorder) hook(db engine.Conn, created []*DataStore) {
	h.calls++
	names := []string{}
	for _, ds := range created {
		names = append(names, ds.StoreName)
	}
	h.created = append(h.created, names)
}

func setup(t *testing.T, eng engine.Engine, opts SetupOptions) engine.Conn {
	db, err := SetupDb(eng, opts)
	Tassert(t, err == nil, "setup %q: %v", opts.Name, err)
	Tassert(t, db != nil)
	return db
}

// As a caller, I want setup to create what is missing, and to hear
// about it only when the database was created or upgraded.
func TestSetupDb(t *testing.T) {
	eachEngine(t, func(t *testing.T, eng engine.Engine) {
		h := &hookRecorder{}
		opts := SetupOptions{Name: "app", Stores: []string{"a", "b"}, OnUpgradeNeeded: h.hook}

		db := setup(t, eng, opts)
		Tassert(t, db.Name() == "app" && db.Version() == 1, "%s %d", db.Name(), db.Version())
		Tassert(t, reflect.DeepEqual(db.StoreNames(), []string{"a", "b"}), "stores %v", db.StoreNames())
		db.Close()
		Tassert(t, h.calls == 1, "calls %d", h.calls)
		Tassert(t, reflect.DeepEqual(h.created[0], []string{"a", "b"}), "created %v", h.created)

		// same version: no upgrade, no hook
		setup(t, eng, opts).Close()
		Tassert(t, h.calls == 1, "calls %d", h.calls)

		// higher version, nothing new: hook with an empty list
		opts.Version = 2
		db = setup(t, eng, opts)
		Tassert(t, db.Version() == 2)
		db.Close()
		Tassert(t, h.calls == 2, "calls %d", h.calls)
		Tassert(t, len(h.created[1]) == 0, "created %v", h.created[1])

		// higher version with a new store: only the new one
		opts.Version = 3
		opts.Stores = []string{"a", "c"}
		db = setup(t, eng, opts)
		Tassert(t, reflect.DeepEqual(db.StoreNames(), []string{"a", "b", "c"}), "stores %v", db.StoreNames())
		db.Close()
		Tassert(t, h.calls == 3, "calls %d", h.calls)
		Tassert(t, reflect.DeepEqual(h.created[2], []string{"c"}), "created %v", h.created[2])

		// lower version fails
		opts.Version = 1
		db, err := SetupDb(eng, opts)
		Tassert(t, errors.Is(err, ErrOpenFailed), "%v", err)
		Tassert(t, errors.Is(err, engine.ErrVersion), "%v", err)
		Tassert(t, db == nil)
		Tassert(t, h.calls == 3, "calls %d", h.calls)
	})
}

// As a caller, I want the default store when I name none, and no
// store when I pass an empty list.
func TestSetupDefaults(t *testing.T) {
	eachEngine(t, func(t *testing.T, eng engine.Engine) {
		db := setup(t, eng, SetupOptions{Name: "defaults"})
		Tassert(t, db.Version() == 1)
		Tassert(t, reflect.DeepEqual(db.StoreNames(), []string{DefaultStoreName}), "stores %v", db.StoreNames())
		db.Close()

		db = setup(t, eng, SetupOptions{Name: "bare", Stores: []string{}})
		Tassert(t, len(db.StoreNames()) == 0, "stores %v", db.StoreNames())
		db.Close()

		_, err := SetupDb(eng, SetupOptions{})
		Tassert(t, errors.Is(err, ErrOpenFailed), "%v", err)
		Tassert(t, errors.Is(err, engine.ErrInvalidArgument), "%v", err)
	})
}

// As a caller, I want the handles passed to the hook to work while
// the setup connection is still open, e.g. to seed data.
func TestSetupSeed(t *testing.T) {
	eachEngine(t, func(t *testing.T, eng engine.Engine) {
		opts := SetupOptions{
			Name:    "seeded",
			Version: 2,
			Stores:  []string{"users"},
			OnUpgradeNeeded: func(db engine.Conn, created []*DataStore) {
				Tassert(t, db.Version() == 2)
				for _, ds := range created {
					Tassert(t, ds.DbName == "seeded" && ds.Version == 2, "%+v", ds)
					err := ds.SetItem("admin", map[string]interface{}{"name": "root"})
					Tassert(t, err == nil, "%v", err)
				}
			},
		}
		db := setup(t, eng, opts)
		err := db.Close()
		Tassert(t, err == nil, "%v", err)

		users := New(eng, "seeded", "users")
		v, err := users.GetItem("admin")
		Tassert(t, err == nil, "%v", err)
		Tassert(t, reflect.DeepEqual(v, map[string]interface{}{"name": "root"}), "got %#v", v)
	})
}

// As a caller, I want a panicking hook not to leak the connection.
func TestSetupHookPanic(t *testing.T) {
	eachEngine(t, func(t *testing.T, eng engine.Engine) {
		opts := SetupOptions{
			Name: "panicky",
			OnUpgradeNeeded: func(db engine.Conn, created []*DataStore) {
				panic("hook failed")
			},
		}
		func() {
			defer func() {
				r := recover()
				Tassert(t, r == "hook failed", "recovered %v", r)
			}()
			SetupDb(eng, opts)
			t.Fatal("SetupDb returned after the hook panicked")
		}()
		dropped, err := DropDatabases(eng, "panicky")
		Tassert(t, err == nil, "connection left open: %v", err)
		Tassert(t, len(dropped) == 1)
	})
}

// As a caller, I want to list and drop databases.
func TestDropDatabases(t *testing.T) {
	eachEngine(t, func(t *testing.T, eng engine.Engine) {
		for _, name := range []string{"one", "two", "three"} {
			err := New(eng, name, "").SetItem("k", "v")
			Tassert(t, err == nil, "%v", err)
		}
		infos, err := ListDatabases(eng)
		Tassert(t, err == nil, "%v", err)
		Tassert(t, len(infos) == 3, "infos %v", infos)

		db := setup(t, eng, SetupOptions{Name: "two"})
		dropped, err := DropDatabases(eng, "one", "two", "three")
		Tassert(t, errors.Is(err, engine.ErrDatabaseBusy), "%v", err)
		Tassert(t, reflect.DeepEqual(dropped, []string{"one"}), "dropped %v", dropped)
		db.Close()

		dropped, err = DropDatabases(eng)
		Tassert(t, err == nil, "%v", err)
		Tassert(t, reflect.DeepEqual(dropped, []string{"three", "two"}), "dropped %v", dropped)
		infos, err = ListDatabases(eng)
		Tassert(t, err == nil, "%v", err)
		Tassert(t, len(infos) == 0, "infos %v", infos)
	})
}

// As a caller, I want dropping every database to skip other .db files
// sharing the directory.
func TestDropKeepsForeignFiles(t *testing.T) {
	dir, err := ioutil.TempDir(tmpDir, "bolt")
	Tassert(t, err == nil, "%v", err)
	eng, err := bolt.New(dir, nil)
	Tassert(t, err == nil, "%v", err)
	err = New(eng, "mine", "").SetItem("k", "v")
	Tassert(t, err == nil, "%v", err)
	app := filepath.Join(dir, "app.db")
	err = ioutil.WriteFile(app, []byte("SQLite format 3\x00 plus some pages"), 0644)
	Tassert(t, err == nil, "%v", err)

	infos, err := ListDatabases(eng)
	Tassert(t, err == nil, "%v", err)
	Tassert(t, len(infos) == 1 && infos[0].Name == "mine", "infos %v", infos)
	dropped, err := DropDatabases(eng)
	Tassert(t, err == nil, "%v", err)
	Tassert(t, reflect.DeepEqual(dropped, []string{"mine"}), "dropped %v", dropped)
	_, err = os.Stat(app)
	Tassert(t, err == nil, "foreign file removed: %v", err)
}
