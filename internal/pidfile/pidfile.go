// Package pidfile implements the durable name->PID map described in
// spec.md §4.2, used by non-daemon CLI paths to resolve a service's PID
// without talking to the running supervisor.
package pidfile

import (
	"sync"

	"github.com/sysgio/sysg/internal/fsatomic"
	"github.com/sysgio/sysg/internal/sysgerr"
)

type File struct {
	doc *fsatomic.Document
	mtx sync.RWMutex
}

func Open(path string) *File {
	return &File{doc: fsatomic.New(path)}
}

func (f *File) load() (map[string]int, error) {
	m := make(map[string]int)
	if err := f.doc.Load(&m); err != nil {
		return nil, &sysgerr.PidFileError{Op: "load", Err: err}
	}
	if m == nil {
		m = make(map[string]int)
	}
	return m, nil
}

// Get returns the PID recorded for service, if any.
func (f *File) Get(service string) (int, bool, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	m, err := f.load()
	if err != nil {
		return 0, false, err
	}
	pid, ok := m[service]
	return pid, ok, nil
}

// Services returns every service name currently recorded.
func (f *File) Services() ([]string, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	m, err := f.load()
	if err != nil {
		return nil, err
	}
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out, nil
}

// All returns a snapshot copy of the full map.
func (f *File) All() (map[string]int, error) {
	f.mtx.RLock()
	defer f.mtx.RUnlock()
	return f.load()
}

// Set records service->pid.
func (f *File) Set(service string, pid int) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	m := make(map[string]int)
	err := f.doc.Mutate(&m, func() error {
		m[service] = pid
		return nil
	})
	if err != nil {
		return &sysgerr.PidFileError{Op: "set", Err: err}
	}
	return nil
}

// Remove deletes service's entry, if present. Removing an absent entry is
// not an error.
func (f *File) Remove(service string) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	m := make(map[string]int)
	err := f.doc.Mutate(&m, func() error {
		delete(m, service)
		return nil
	})
	if err != nil {
		return &sysgerr.PidFileError{Op: "remove", Err: err}
	}
	return nil
}
