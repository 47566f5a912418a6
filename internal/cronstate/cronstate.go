// Package cronstate implements the durable hash->cron-job-state map
// described in spec.md §4.2 and §3 (Cron unit, CronExecutionRecord).
package cronstate

import (
	"sync"
	"time"

	"github.com/sysgio/sysg/internal/fsatomic"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// ExecutionStatus is the outcome of one cron dispatch.
type ExecutionStatus string

const (
	Success     ExecutionStatus = "Success"
	Failed      ExecutionStatus = "Failed"
	OverlapErr  ExecutionStatus = "OverlapError"
)

// ExecutionRecord mirrors spec.md §3's CronExecutionRecord. Status and
// CompletedAt are both nil/zero iff this is the single in-flight record
// for the unit.
type ExecutionRecord struct {
	StartedAt   time.Time        `json:"started_at"`
	CompletedAt *time.Time       `json:"completed_at,omitempty"`
	Status      *ExecutionStatus `json:"status,omitempty"`
	ExitCode    *int             `json:"exit_code,omitempty"`
	FailReason  string           `json:"fail_reason,omitempty"`
}

// MaxHistory bounds execution_history length per spec.md §8 invariant 5.
const MaxHistory = 10

// Entry is the persisted state for one cron unit.
type Entry struct {
	Timezone         string            `json:"timezone"`
	LastExecution    *time.Time        `json:"last_execution,omitempty"`
	NextExecution    *time.Time        `json:"next_execution,omitempty"`
	CurrentlyRunning bool              `json:"currently_running"`
	History          []ExecutionRecord `json:"history"`
}

// AppendHistory appends rec and truncates to the most recent MaxHistory
// entries, preserving monotonicity by StartedAt.
func (e *Entry) AppendHistory(rec ExecutionRecord) {
	e.History = append(e.History, rec)
	if len(e.History) > MaxHistory {
		e.History = e.History[len(e.History)-MaxHistory:]
	}
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
		return nil, &sysgerr.CronStateError{Op: "load", Err: err}
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
		return &sysgerr.CronStateError{Op: "set", Err: err}
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
		return &sysgerr.CronStateError{Op: "remove", Err: err}
	}
	return nil
}

// PruneExcept deletes every persisted entry whose hash is not in keep.
// This implements the "prune law" from spec.md §8 invariant 7: after a
// reload that omits a cron unit, it no longer appears in the cron state
// file.
func (f *File) PruneExcept(keep map[string]bool) error {
	f.mtx.Lock()
	defer f.mtx.Unlock()
	m := make(map[string]Entry)
	err := f.doc.Mutate(&m, func() error {
		for hash := range m {
			if !keep[hash] {
				delete(m, hash)
			}
		}
		return nil
	})
	if err != nil {
		return &sysgerr.CronStateError{Op: "prune", Err: err}
	}
	return nil
}
