// Package fsatomic implements the write-to-temp, fsync, rename pattern
// spec.md §4.2 requires of the PID, service state, and cron state files,
// serialized through an advisory lock so concurrent CLI invocations don't
// interleave writes.
package fsatomic

import (
	"encoding/json"
	"os"

	"github.com/gofrs/flock"
	"github.com/google/renameio"
)

// Document is a JSON-backed file guarded by a sibling .lock file.
type Document struct {
	path string
	lock *flock.Flock
}

func New(path string) *Document {
	return &Document{path: path, lock: flock.New(path + ".lock")}
}

// Load reads v from disk. A missing file is not an error: spec.md §4.2
// says readers are resilient to it and should behave as an empty
// document, so callers should pass a zero-valued v and check
// os.IsNotExist themselves only if they care to distinguish "empty" from
// "absent" (they don't, per the spec).
func (d *Document) Load(v interface{}) error {
	if err := d.lock.RLock(); err != nil {
		return err
	}
	defer d.lock.Unlock()

	b, err := os.ReadFile(d.path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil
		}
		return err
	}
	if len(b) == 0 {
		return nil
	}
	return json.Unmarshal(b, v)
}

// Save persists v via write-to-temp, fsync, rename, holding the advisory
// lock for the duration of the mutation.
func (d *Document) Save(v interface{}) error {
	if err := d.lock.Lock(); err != nil {
		return err
	}
	defer d.lock.Unlock()
	return writeAtomic(d.path, v)
}

// Mutate loads the current document, applies fn, and saves the result,
// all under a single held write lock so the read-modify-write cycle is
// not interrupted by another writer.
func (d *Document) Mutate(v interface{}, fn func() error) error {
	if err := d.lock.Lock(); err != nil {
		return err
	}
	defer d.lock.Unlock()

	b, err := os.ReadFile(d.path)
	if err != nil && !os.IsNotExist(err) {
		return err
	}
	if len(b) > 0 {
		if err := json.Unmarshal(b, v); err != nil {
			return err
		}
	}
	if err := fn(); err != nil {
		return err
	}
	return writeAtomic(d.path, v)
}

// writeAtomic persists v via renameio's write-to-temp, fsync, rename
// primitive: it handles the temp file naming, fsync-before-close, and
// rename-over-destination itself, including fsyncing the containing
// directory so the rename is itself durable.
func writeAtomic(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	return renameio.WriteFile(path, b, 0o640)
}
