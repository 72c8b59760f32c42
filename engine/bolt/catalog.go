package bolt

import (
	"encoding/binary"
	"errors"
	"fmt"
	"io"
	"net/url"
	"os"
	"sort"
	"strings"

	"github.com/gofrs/flock"
	"github.com/stevegt/datastore/engine"
	. "github.com/stevegt/goadapt"
	bbolt "go.etcd.io/bbolt"
)

// Databases lists the databases in the engine directory.  Files that
// were created but never completed an upgrade are skipped, and so are
// .db files that are not bbolt files.
func (e *Engine) Databases() (infos []engine.DatabaseInfo, err error) {
	entries, err := os.ReadDir(e.dir)
	if err != nil {
		return
	}
	infos = []engine.DatabaseInfo{}
	for _, entry := range entries {
		fn := entry.Name()
		if entry.IsDir() || !strings.HasSuffix(fn, fileExt) {
			continue
		}
		name, err := url.PathUnescape(strings.TrimSuffix(fn, fileExt))
		if err != nil {
			// not one of ours
			continue
		}
		version, err := e.version(name)
		if err != nil {
			return nil, err
		}
		if version == 0 {
			continue
		}
		infos = append(infos, engine.DatabaseInfo{Name: name, Version: version})
	}
	sort.Slice(infos, func(i, j int) bool { return infos[i].Name < infos[j].Name })
	return
}

// version reads a database's stored version without upgrading it.  A
// file this process has open is read through the shared handle; any
// other file is opened read-only, so listing neither writes to it nor
// creates a lockfile.  Foreign files report version 0.
func (e *Engine) version(name string) (version int, err error) {
	path := e.path(name)
	read := func(tx *bbolt.Tx) (err error) {
		version, err = readMeta(tx)
		return
	}
	f, ok := e.retain(path)
	if ok {
		f, err = e.wait(f)
		if err != nil {
			return
		}
		defer e.release(f)
		err = f.bdb.View(read)
		return
	}
	ours, err := isBolt(path)
	if err != nil || !ours {
		return
	}
	bdb, err := bbolt.Open(path, e.opts.FileMode, &bbolt.Options{ReadOnly: true, Timeout: e.opts.Timeout})
	switch {
	case errors.Is(err, bbolt.ErrInvalid), errors.Is(err, bbolt.ErrVersionMismatch), errors.Is(err, bbolt.ErrChecksum):
		Debug("skipping %s: %v", path, err)
		return 0, nil
	case err != nil:
		return
	}
	defer bdb.Close()
	err = bdb.View(read)
	return
}

// boltMagic is the magic number in a bbolt meta page.  It sits after
// the 16-byte page header, in the byte order of the writing machine.
const boltMagic = 0xED0CDAED

// isBolt reports whether path starts with a bbolt meta page.  A
// missing file is not an error.
func isBolt(path string) (ok bool, err error) {
	fh, err := os.Open(path)
	if os.IsNotExist(err) {
		return false, nil
	}
	if err != nil {
		return
	}
	defer fh.Close()
	var buf [20]byte
	_, err = io.ReadFull(fh, buf[:])
	if err == io.EOF || err == io.ErrUnexpectedEOF {
		return false, nil
	}
	if err != nil {
		return
	}
	magic := buf[16:]
	ok = binary.LittleEndian.Uint32(magic) == boltMagic || binary.BigEndian.Uint32(magic) == boltMagic
	return
}

// DeleteDatabase removes a database file.  It fails with
// engine.ErrDatabaseBusy while any connection, in this process or
// another, holds the database open.
func (e *Engine) DeleteDatabase(name string) (err error) {
	if !engine.ValidName(name) {
		return fmt.Errorf("%w: empty database name", engine.ErrInvalidArgument)
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	path := e.path(name)
	if _, ok := e.files[path]; ok {
		return fmt.Errorf("%w: %q", engine.ErrDatabaseBusy, name)
	}
	_, err = os.Stat(path)
	if err == nil {
		ours, err := isBolt(path)
		if err != nil {
			return err
		}
		if !ours {
			return fmt.Errorf("%w: %s is not a database file", engine.ErrFormat, path)
		}
	}
	lockpath := path + lockExt
	lock := flock.New(lockpath)
	ok, err := lock.TryLock()
	if err != nil {
		return fmt.Errorf("cannot lock %q: %w", name, err)
	}
	if !ok {
		return fmt.Errorf("%w: %q is open in another process", engine.ErrDatabaseBusy, name)
	}
	defer lock.Unlock()
	err = os.Remove(path)
	if err != nil && !os.IsNotExist(err) {
		return
	}
	err = os.Remove(lockpath)
	if os.IsNotExist(err) {
		err = nil
	}
	return
}
