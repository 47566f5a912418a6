// Package statefile implements the durable hash->lifecycle map described
// in spec.md §4.2 and §3 (ServiceLifecycleStatus).
package statefile

import (
	"sync"
	"time"

	"github.com/sysgio/sysg/internal/fsatomic"
	"github.com/sysgio/sysg/internal/sysgerr"
)

type Lifecycle string

const (
	Running             Lifecycle = "Running"
	ExitedSuccessfully   Lifecycle = "ExitedSuccessfully"
	ExitedWithError      Lifecycle = "ExitedWithError"
	Stopped              Lifecycle = "Stopped"
	Skipped              Lifecycle = "Skipped"
)

// Entry is the persisted record for one unit hash.
type Entry struct {
	Lifecycle Lifecycle  `json:"status"`
	Pid       int        `json:"pid,omitempty"`
	ExitCode  *int       `json:"exit_code,omitempty"`
	Signal    *int       `json:"signal,omitempty"`
	StartedAt *time.Time `json:"started_at,omitempty"`
}

type File struct {
	doc *fsatomic.Document
	mtx sync.RWMutex
}

func Open(path string) *File {
	return &File{doc: fsatomic.New(path)}
}

func (f *File) load() (map[string]Entry, error) {
	m := make(map[string]Entry)
	if err := f.doc.Load(&m); err != nil {
		return nil, &sysgerr.ServiceStateError{Op: "load", Err: err}
	}
	if m == nil {
		m = make(map[string]Entry)
	}
	return m, nil
}

func (f *File) Get(hash string) (Entry, bool, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	m, err := f.load()
	if err != nil {
		return Entry{}, false, err
	}
	e, ok := m[hash]
	return e, ok, nil
}

func (f *File) All() (map[string]Entry, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	return f.load()
}

func (f *File) Set(hash string, e Entry) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	m := make(map[string]Entry)
	err := f.doc.Mutate(&m, func() error {
		m[hash] = e
		return nil
	})
	if err != nil {
		return &sysgerr.ServiceStateError{Op: "set", Err: err}
	}
	return nil
}

func (f *File) Remove(hash string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	m := make(map[string]Entry)
	err := f.doc.Mutate(&m, func() error {
		delete(m, hash)
		return nil
	})
	if err != nil {
		return &sysgerr.ServiceStateError{Op: "remove", Err: err}
	}
	return nil
}

// Services returns every hash currently recorded.
func (f *File) Services() ([]string, error) {
	m, err := f.All()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}
