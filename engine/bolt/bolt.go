// Package bolt is a file-backed engine built on bbolt.  Each database
// lives in its own file in the engine's directory; each object store
// is a top-level bucket.
//
// Within a process, connections to the same database share one
// *bbolt.DB, which is closed when the last connection closes.  Only
// one Engine per directory should be used per process, since bbolt
// holds an exclusive OS lock on every open file.
package bolt

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strconv"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
	"github.com/stevegt/semver"
	bbolt "go.etcd.io/bbolt"
)

// FormatVersion is the version of the on-disk layout written by this
// package.
const FormatVersion = "1.0.0"

const (
	// metaBucket holds the database version and format; it is not
	// visible as an object store.
	metaBucket = "__datastore__"
	fileExt    = ".db"
	lockExt    = ".lock"
)

var (
	keyVersion = []byte("version")
	keyFormat  = []byte("format")
)

// Options configures an Engine.
type Options struct {
	// Timeout bounds how long an open waits for another process to
	// release a database file.  Zero waits forever.
	Timeout time.Duration
	// FileMode is used for new database files.
	FileMode os.FileMode
}

// DefaultOptions returns the options used when New is given nil.
func DefaultOptions() *Options {
	return &Options{
		Timeout:  10 * time.Second,
		FileMode: 0600,
	}
}

// Engine is an engine.Engine whose databases are bbolt files in one
// directory.
type Engine struct {
	dir   string
	opts  Options
	mu    sync.Mutex
	files map[string]*file
}

// file is one open bbolt database shared by all connections to it.
// refs is guarded by Engine.mu; the other fields are set once before
// ready is closed.
type file struct {
	path  string
	refs  int
	ready chan struct{}
	bdb   *bbolt.DB
	lock  *flock.Flock
	err   error
}

// New returns an engine rooted at dir, creating the directory if it
// doesn't exist.
func New(dir string, opts *Options) (e *Engine, err error) {
	defer Return(&err)
	if opts == nil {
		opts = DefaultOptions()
	}
	dir, err = filepath.Abs(dir)
	Ck(err)
	err = os.MkdirAll(dir, 0755)
	Ck(err, "cannot create engine directory %q", dir)
	e = &Engine{
		dir:   dir,
		opts:  *opts,
		files: make(map[string]*file),
	}
	if e.opts.FileMode == 0 {
		e.opts.FileMode = 0600
	}
	return
}

// Dir returns the directory holding the database files.
func (e *Engine) Dir() string {
	return e.dir
}

// path returns the file path for a database name.
func (e *Engine) path(name string) string {
	return filepath.Join(e.dir, url.PathEscape(name)+fileExt)
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
	f, err := e.acquire(name)
	if err != nil {
		return
	}
	defer func() {
		if err != nil {
			e.release(f)
		}
	}()

	var current int
	err = f.bdb.View(func(tx *bbolt.Tx) (err error) {
		current, err = readMeta(tx)
		return
	})
	if err != nil {
		return
	}
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
		err = f.bdb.Update(func(tx *bbolt.Tx) error {
			// another connection may have upgraded since the read
			old, err := readMeta(tx)
			if err != nil {
				return err
			}
			if target < old {
				return fmt.Errorf("%w: %q is at %d, requested %d", engine.ErrVersion, name, old, target)
			}
			if target == old {
				return nil
			}
			err = writeMeta(tx, target)
			if err != nil {
				return err
			}
			Debug("upgrading %q from version %d to %d", name, old, target)
			if upgrade == nil {
				return nil
			}
			return upgrade(&upgradeTx{tx: tx, name: name, old: old, new: target})
		})
		if err != nil {
			return
		}
	}
	c = &conn{e: e, f: f, name: name, version: target}
	Debug("opened %q at version %d", name, target)
	return
}

// acquire returns the shared file for a database, opening it if this
// is the first connection.  The file is opened outside e.mu, since
// bbolt.Open may wait on another process; later callers for the same
// path wait on f.ready instead.
func (e *Engine) acquire(name string) (f *file, err error) {
	path := e.path(name)
	e.mu.Lock()
	f, ok := e.files[path]
	if !ok {
		f = &file{path: path, ready: make(chan struct{})}
		e.files[path] = f
	}
	f.refs++
	e.mu.Unlock()
	if !ok {
		f.lock, f.bdb, f.err = e.openFile(path)
		close(f.ready)
	}
	return e.wait(f)
}

// retain takes a reference on path's file if this process already has
// it open.
func (e *Engine) retain(path string) (f *file, ok bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f, ok = e.files[path]
	if ok {
		f.refs++
	}
	return
}

// wait blocks until f is open, dropping the reference if the open
// failed.
func (e *Engine) wait(f *file) (*file, error) {
	<-f.ready
	if f.err != nil {
		err := f.err
		e.release(f)
		return nil, err
	}
	return f, nil
}

// openFile takes the shared lock on path's lockfile and opens the
// bbolt file.
func (e *Engine) openFile(path string) (lock *flock.Flock, bdb *bbolt.DB, err error) {
	lock = flock.New(path + lockExt)
	err = lock.RLock()
	if err != nil {
		return nil, nil, fmt.Errorf("cannot lock %q: %w", path, err)
	}
	bdb, err = bbolt.Open(path, e.opts.FileMode, &bbolt.Options{Timeout: e.opts.Timeout})
	if err != nil {
		lock.Unlock()
		return nil, nil, err
	}
	Debug("opened %s", path)
	return
}

// release drops one reference to f, closing it with the last one.
func (e *Engine) release(f *file) (err error) {
	e.mu.Lock()
	defer e.mu.Unlock()
	f.refs--
	if f.refs > 0 {
		return
	}
	delete(e.files, f.path)
	if f.bdb == nil {
		// the open failed
		return
	}
	err = f.bdb.Close()
	uerr := f.lock.Unlock()
	if err == nil {
		err = uerr
	}
	Debug("closed %s", f.path)
	return
}

// readMeta returns the stored database version, 0 for a database that
// has never been upgraded.  It refuses files written by a newer
// format.
func readMeta(tx *bbolt.Tx) (version int, err error) {
	b := tx.Bucket([]byte(metaBucket))
	if b == nil {
		return 0, nil
	}
	format := b.Get(keyFormat)
	if format != nil {
		err = checkFormat(format)
		if err != nil {
			return
		}
	}
	version, err = strconv.Atoi(string(b.Get(keyVersion)))
	if err != nil {
		return 0, fmt.Errorf("%w: bad version: %v", engine.ErrFormat, err)
	}
	return
}

// checkFormat fails if format is newer than FormatVersion.
func checkFormat(format []byte) error {
	stored, err := semver.Parse(format)
	if err != nil {
		return fmt.Errorf("%w: bad format %q: %v", engine.ErrFormat, format, err)
	}
	ours, err := semver.Parse([]byte(FormatVersion))
	Ck(err)
	cmp, err := semver.Cmp(stored, ours)
	if err != nil {
		return err
	}
	if cmp > 0 {
		return fmt.Errorf("%w: %s > %s", engine.ErrFormat, format, FormatVersion)
	}
	return nil
}

func writeMeta(tx *bbolt.Tx, version int) (err error) {
	b, err := tx.CreateBucketIfNotExists([]byte(metaBucket))
	if err != nil {
		return
	}
	err = b.Put(keyFormat, []byte(FormatVersion))
	if err != nil {
		return
	}
	return b.Put(keyVersion, []byte(strconv.Itoa(version)))
}

// storeNames lists the object stores visible in tx.
func storeNames(tx *bbolt.Tx) (names []string) {
	names = []string{}
	tx.ForEach(func(name []byte, _ *bbolt.Bucket) error {
		if string(name) != metaBucket {
			names = append(names, string(name))
		}
		return nil
	})
	return
}

// bucket returns the bucket for a store, hiding the meta bucket.
func bucket(tx *bbolt.Tx, name string) *bbolt.Bucket {
	if name == metaBucket {
		return nil
	}
	return tx.Bucket([]byte(name))
}

// upgradeTx is the engine.Upgrade handed to upgrade callbacks.
type upgradeTx struct {
	tx   *bbolt.Tx
	name string
	old  int
	new  int
}

func (u *upgradeTx) Name() string         { return u.name }
func (u *upgradeTx) OldVersion() int      { return u.old }
func (u *upgradeTx) NewVersion() int      { return u.new }
func (u *upgradeTx) StoreNames() []string { return storeNames(u.tx) }

func (u *upgradeTx) HasStore(name string) bool {
	return bucket(u.tx, name) != nil
}

// CreateStore creates a bucket for the store.
func (u *upgradeTx) CreateStore(name string) error {
	if !engine.ValidName(name) || name == metaBucket {
		return fmt.Errorf("%w: store name %q", engine.ErrInvalidArgument, name)
	}
	_, err := u.tx.CreateBucket([]byte(name))
	if err != nil {
		return fmt.Errorf("cannot create store %q: %w", name, err)
	}
	Debug("created store %q in %q", name, u.name)
	return nil
}
