package bolt

import (
	"fmt"
	"sync"

	"github.com/stevegt/datastore/engine"
	bbolt "go.etcd.io/bbolt"
)

// bbolt rejects zero-length keys, so every record key is stored
// behind a one-byte tag.  The tag is the same for all keys, which
// keeps bbolt's byte ordering of the bare keys.
const keyTag = 'k'

func encodeKey(key string) []byte {
	buf := make([]byte, 0, len(key)+1)
	buf = append(buf, keyTag)
	return append(buf, key...)
}

func decodeKey(k []byte) string {
	return string(k[1:])
}

// conn is one reference on a shared database file.
type conn struct {
	e       *Engine
	f       *file
	name    string
	version int
	mu      sync.Mutex
	closed  bool
}

func (c *conn) Name() string { return c.name }
func (c *conn) Version() int { return c.version }

// StoreNames returns the names of the database's object stores in
// ascending order.
func (c *conn) StoreNames() (names []string) {
	if c.isClosed() {
		return []string{}
	}
	c.f.bdb.View(func(tx *bbolt.Tx) error {
		names = storeNames(tx)
		return nil
	})
	return
}

// HasStore reports whether the named object store exists.
func (c *conn) HasStore(name string) (ok bool) {
	if c.isClosed() {
		return false
	}
	c.f.bdb.View(func(tx *bbolt.Tx) error {
		ok = bucket(tx, name) != nil
		return nil
	})
	return
}

// Transaction begins a bbolt transaction scoped to store.
func (c *conn) Transaction(store string, mode engine.Mode) (engine.Txn, error) {
	if c.isClosed() {
		return nil, engine.ErrClosed
	}
	btx, err := c.f.bdb.Begin(mode == engine.ReadWrite)
	if err != nil {
		return nil, err
	}
	if bucket(btx, store) == nil {
		btx.Rollback()
		return nil, fmt.Errorf("%w: %q in %q", engine.ErrNotFound, store, c.name)
	}
	return &txn{btx: btx, store: store, mode: mode}, nil
}

// Close releases the connection's reference on the database file.
func (c *conn) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	c.mu.Unlock()
	return c.e.release(c.f)
}

func (c *conn) isClosed() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.closed
}

// txn wraps a bbolt transaction.  A txn is used by one goroutine at a
// time.
type txn struct {
	btx   *bbolt.Tx
	store string
	mode  engine.Mode
	done  bool
}

func (t *txn) Mode() engine.Mode { return t.mode }

// Store returns the handle for the transaction's store.
func (t *txn) Store(name string) (engine.ObjectStore, error) {
	if t.done {
		return nil, engine.ErrTxnDone
	}
	if name != t.store {
		return nil, fmt.Errorf("%w: %q is outside the transaction scope", engine.ErrNotFound, name)
	}
	return &objectStore{t: t, name: name}, nil
}

// Commit commits a read-write transaction and rolls back a read-only
// one.
func (t *txn) Commit() *engine.Request {
	if t.done {
		return engine.Failed(engine.ErrTxnDone)
	}
	t.done = true
	if t.mode == engine.ReadWrite {
		return engine.Settled(nil, t.btx.Commit())
	}
	return engine.Settled(nil, t.btx.Rollback())
}

// Abort rolls back the transaction.
func (t *txn) Abort() error {
	if t.done {
		return nil
	}
	t.done = true
	return t.btx.Rollback()
}

// objectStore issues primitives against one bucket.
type objectStore struct {
	t    *txn
	name string
}

func (s *objectStore) Name() string { return s.name }

// bucket looks the bucket up on every call, since Clear replaces it.
func (s *objectStore) bucket(write bool) (b *bbolt.Bucket, err error) {
	if s.t.done {
		return nil, engine.ErrTxnDone
	}
	if write && s.t.mode != engine.ReadWrite {
		return nil, engine.ErrReadOnly
	}
	b = bucket(s.t.btx, s.name)
	if b == nil {
		return nil, fmt.Errorf("%w: %q", engine.ErrNotFound, s.name)
	}
	return
}

// Get copies the value out of the mmap, since bbolt values are only
// valid for the life of the transaction.
func (s *objectStore) Get(key string) *engine.Request {
	b, err := s.bucket(false)
	if err != nil {
		return engine.Failed(err)
	}
	v := b.Get(encodeKey(key))
	if v == nil {
		return engine.Succeeded(engine.Missing{})
	}
	value := make([]byte, len(v))
	copy(value, v)
	return engine.Succeeded(value)
}

func (s *objectStore) Add(value []byte, key string) *engine.Request {
	b, err := s.bucket(true)
	if err != nil {
		return engine.Failed(err)
	}
	k := encodeKey(key)
	if b.Get(k) != nil {
		return engine.Failed(fmt.Errorf("%w: %q", engine.ErrKeyExists, key))
	}
	if value == nil {
		value = []byte{}
	}
	return engine.Settled(nil, b.Put(k, value))
}

func (s *objectStore) Delete(key string) *engine.Request {
	b, err := s.bucket(true)
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Settled(nil, b.Delete(encodeKey(key)))
}

func (s *objectStore) GetAllKeys() *engine.Request {
	b, err := s.bucket(false)
	if err != nil {
		return engine.Failed(err)
	}
	keys := []string{}
	err = b.ForEach(func(k, _ []byte) error {
		keys = append(keys, decodeKey(k))
		return nil
	})
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Succeeded(keys)
}

func (s *objectStore) Count() *engine.Request {
	b, err := s.bucket(false)
	if err != nil {
		return engine.Failed(err)
	}
	n := 0
	err = b.ForEach(func(_, _ []byte) error {
		n++
		return nil
	})
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Succeeded(n)
}

// Clear drops and recreates the bucket.
func (s *objectStore) Clear() *engine.Request {
	_, err := s.bucket(true)
	if err != nil {
		return engine.Failed(err)
	}
	name := []byte(s.name)
	err = s.t.btx.DeleteBucket(name)
	if err != nil {
		return engine.Failed(err)
	}
	_, err = s.t.btx.CreateBucket(name)
	if err != nil {
		return engine.Failed(err)
	}
	return engine.Succeeded(nil)
}
