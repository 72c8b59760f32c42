// Package mem is an in-memory engine.  Each object store is a
// google/btree tree of records.  Transactions work on lazy
// copy-on-write clones: readers see the snapshot taken when the
// transaction began, and the single writer's clone replaces the live
// trees when it commits.
package mem

import (
	"fmt"
	"sort"
	"sync"

	"github.com/google/btree"
	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
)

const degree = 32

// record is a btree item.
type record struct {
	key   string
	value []byte
}

func (r *record) Less(than btree.Item) bool {
	return r.key < than.(*record).key
}

// Engine is an engine.Engine that keeps all databases in memory.
type Engine struct {
	mu  sync.Mutex
	dbs map[string]*database
}

type database struct {
	name    string
	version int
	// writer serializes read-write transactions and upgrades
	writer sync.Mutex
	mu     sync.Mutex
	stores map[string]*btree.BTree
	conns  int
}

// New returns an empty engine.
func New() *Engine {
	return &Engine{dbs: make(map[string]*database)}
}

// Open opens or creates the named database.  The returned request is
// already settled when Open returns.
func (e *Engine) Open(name string, version int, upgrade engine.UpgradeFunc) *engine.Request {
	c, err := e.open(name, version, upgrade)
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Succeeded(c)
}

func (e *Engine) open(name string, version int, upgrade engine.UpgradeFunc) (c *conn, err error) {
	if !engine.ValidName(name) {
		return nil, fmt.Errorf("%w: empty database name", engine.ErrInvalidArgument)
	}
	if version < 0 {
		return nil, fmt.Errorf("%w: version %d", engine.ErrInvalidArgument, version)
	}
	e.mu.Lock()
	db, ok := e.dbs[name]
	if !ok {
		db = &database{name: name, stores: make(map[string]*btree.BTree)}
		e.dbs[name] = db
	}
	db.mu.Lock()
	db.conns++
	db.mu.Unlock()
	e.mu.Unlock()
	defer func() {
		if err != nil {
			db.release()
		}
	}()

	db.mu.Lock()
	current := db.version
	db.mu.Unlock()
	target := version
	if target == 0 {
		target = current
		if target == 0 {
			target = 1
		}
	}
	if target < current {
		return nil, fmt.Errorf("%w: %q is at %d, requested %d", engine.ErrVersion, name, current, target)
	}
	if target > current {
		err = db.upgrade(target, upgrade)
		if err != nil {
			return
		}
	}
	c = &conn{db: db, version: target}
	Debug("opened %q at version %d", name, target)
	return
}

// upgrade raises the database to target, running fn on staged
// copies of the store trees.
func (db *database) upgrade(target int, fn engine.UpgradeFunc) (err error) {
	db.writer.Lock()
	defer db.writer.Unlock()
	// another connection may have upgraded while we waited
	db.mu.Lock()
	old := db.version
	db.mu.Unlock()
	if target < old {
		return fmt.Errorf("%w: %q is at %d, requested %d", engine.ErrVersion, db.name, old, target)
	}
	if target == old {
		return nil
	}
	Debug("upgrading %q from version %d to %d", db.name, old, target)
	up := &upgradeTx{db: db, old: old, new: target, stores: db.snapshot()}
	if fn != nil {
		err = fn(up)
		if err != nil {
			return
		}
	}
	db.mu.Lock()
	db.version = target
	db.stores = up.stores
	db.mu.Unlock()
	return
}

// snapshot clones every store tree.  Clone mutates the source's
// copy-on-write context, so it runs under db.mu.
func (db *database) snapshot() (stores map[string]*btree.BTree) {
	db.mu.Lock()
	defer db.mu.Unlock()
	stores = make(map[string]*btree.BTree, len(db.stores))
	for name, tree := range db.stores {
		stores[name] = tree.Clone()
	}
	return
}

func (db *database) clone(store string) (tree *btree.BTree, ok bool) {
	db.mu.Lock()
	defer db.mu.Unlock()
	live, ok := db.stores[store]
	if !ok {
		return nil, false
	}
	return live.Clone(), true
}

func (db *database) storeNames() (names []string) {
	db.mu.Lock()
	defer db.mu.Unlock()
	names = make([]string, 0, len(db.stores))
	for name := range db.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (db *database) release() {
	db.mu.Lock()
	defer db.mu.Unlock()
	db.conns--
}

// Databases lists databases that have completed at least one upgrade.
func (e *Engine) Databases() (infos []engine.DatabaseInfo, err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	infos = []engine.DatabaseInfo{}
	for name, db := range e.dbs {
		db.mu.Lock()
		version := db.version
		db.mu.Unlock()
		if version == 0 {
			continue
		}
		infos = append(infos, engine.DatabaseInfo{Name: name, Version: version})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return
}

// DeleteDatabase forgets a database.  It fails with
// engine.ErrDatabaseBusy while a connection is open.
func (e *Engine) DeleteDatabase(name string) error {
	if !engine.ValidName(name) {
		return fmt.Errorf("%w: empty database name", engine.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	db, ok := e.dbs[name]
	if !ok {
		return nil
	}
	db.mu.Lock()
	busy := db.conns > 0
	db.mu.Unlock()
	if busy {
		return fmt.Errorf("%w: %q", engine.ErrDatabaseBusy, name)
	}
	delete(e.dbs, name)
	return nil
}

// upgradeTx stages store creation on cloned trees; open installs them
// only if the upgrade callback succeeds.
type upgradeTx struct {
	db     *database
	old    int
	new    int
	stores map[string]*btree.BTree
}

func (u *upgradeTx) Name() string    { return u.db.name }
func (u *upgradeTx) OldVersion() int { return u.old }
func (u *upgradeTx) NewVersion() int { return u.new }

func (u *upgradeTx) StoreNames() (names []string) {
	names = make([]string, 0, len(u.stores))
	for name := range u.stores {
		names = append(names, name)
	}
	sort.Strings(names)
	return
}

func (u *upgradeTx) HasStore(name string) bool {
	_, ok := u.stores[name]
	return ok
}

func (u *upgradeTx) CreateStore(name string) error {
	if !engine.ValidName(name) {
		return fmt.Errorf("%w: store name %q", engine.ErrInvalidArgument, name)
	}
	if u.HasStore(name) {
		return fmt.Errorf("store %q already exists in %q", name, u.db.name)
	}
	u.stores[name] = btree.New(degree)
	Debug("created store %q in %q", name, u.db.name)
	return nil
}
