package mem

import (
	"fmt"
	"sync"

	"github.com/google/btree"
	"github.com/stevegt/datastore/engine"
)

// conn is a connection to an in-memory database.
type conn struct {
	db      *database
	version int
	mu      sync.Mutex
	closed  bool
}

func (c *conn) Name() string         { return c.db.name }
func (c *conn) Version() int         { return c.version }
func (c *conn) StoreNames() []string { return c.db.storeNames() }

func (c *conn) HasStore(name string) bool {
	c.db.mu.Lock()
	defer c.db.mu.Unlock()
	_, ok := c.db.stores[name]
	return ok
}

// Transaction takes a snapshot of the store.  Read-write
// transactions also hold the database's writer lock until they
// finish.
func (c *conn) Transaction(store string, mode engine.Mode) (engine.Txn, error) {
	c.mu.Lock()
	closed := c.closed
	c.mu.Unlock()
	if closed {
		return nil, engine.ErrClosed
	}
	if mode == engine.ReadWrite {
		c.db.writer.Lock()
	}
	tree, ok := c.db.clone(store)
	if !ok {
		if mode == engine.ReadWrite {
			c.db.writer.Unlock()
		}
		return nil, fmt.Errorf("%w: %q in %q", engine.ErrNotFound, store, c.db.name)
	}
	return &txn{db: c.db, store: store, mode: mode, tree: tree}, nil
}

func (c *conn) Close() error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return nil
	}
	c.closed = true
	c.db.release()
	return nil
}

type txn struct {
	db    *database
	store string
	mode  engine.Mode
	tree  *btree.BTree
	done  bool
}

func (t *txn) Mode() engine.Mode { return t.mode }

func (t *txn) Store(name string) (engine.ObjectStore, error) {
	if t.done {
		return nil, engine.ErrTxnDone
	}
	if name != t.store {
		return nil, fmt.Errorf("%w: %q is outside the transaction scope", engine.ErrNotFound, name)
	}
	return &objectStore{t: t}, nil
}

// Commit installs the transaction's tree as the live tree.
func (t *txn) Commit() *engine.Request {
	if t.done {
		return engine.Failed(engine.ErrTxnDone)
	}
	t.done = true
	if t.mode != engine.ReadWrite {
		return engine.Succeeded(nil)
	}
	defer t.db.writer.Unlock()
	t.db.mu.Lock()
	defer t.db.mu.Unlock()
	if _, ok := t.db.stores[t.store]; !ok {
		return engine.Failed(fmt.Errorf("%w: %q", engine.ErrNotFound, t.store))
	}
	t.db.stores[t.store] = t.tree
	return engine.Succeeded(nil)
}

func (t *txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	if t.mode == engine.ReadWrite {
		t.db.writer.Unlock()
	}
	return nil
}

type objectStore struct {
	t *txn
}

func (s *objectStore) Name() string { return s.t.store }

func (s *objectStore) check(write bool) error {
	if s.t.done {
		return engine.ErrTxnDone
	}
	if write && s.t.mode != engine.ReadWrite {
		return engine.ErrReadOnly
	}
	return nil
}

func (s *objectStore) Get(key string) *engine.Request {
	err := s.check(false)
	if err != nil {
		return engine.Failed(err)
	}
	item := s.t.tree.Get(&record{key: key})
	if item == nil {
		return engine.Succeeded(engine.Missing{})
	}
	v := item.(*record).value
	value := make([]byte, len(v))
	copy(value, v)
	return engine.Succeeded(value)
}

func (s *objectStore) Add(value []byte, key string) *engine.Request {
	err := s.check(true)
	if err != nil {
		return engine.Failed(err)
	}
	if s.t.tree.Has(&record{key: key}) {
		return engine.Failed(fmt.Errorf("%w: %q", engine.ErrKeyExists, key))
	}
	v := make([]byte, len(value))
	copy(v, value)
	s.t.tree.ReplaceOrInsert(&record{key: key, value: v})
	return engine.Succeeded(nil)
}

func (s *objectStore) Delete(key string) *engine.Request {
	err := s.check(true)
	if err != nil {
		return engine.Failed(err)
	}
	s.t.tree.Delete(&record{key: key})
	return engine.Succeeded(nil)
}

func (s *objectStore) GetAllKeys() *engine.Request {
	err := s.check(false)
	if err != nil {
		return engine.Failed(err)
	}
	keys := make([]string, 0, s.t.tree.Len())
	s.t.tree.Ascend(func(item btree.Item) bool {
		keys = append(keys, item.(*record).key)
		return true
	})
	return engine.Succeeded(keys)
}

func (s *objectStore) Count() *engine.Request {
	err := s.check(false)
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Succeeded(s.t.tree.Len())
}

func (s *objectStore) Clear() *engine.Request {
	err := s.check(true)
	if err != nil {
		return engine.Failed(err)
	}
	s.t.tree.Clear(false)
	return engine.Succeeded(nil)
}
