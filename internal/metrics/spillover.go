package metrics

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"sort"
	"sync"
	"time"

	"github.com/sysgio/sysg/internal/sysgerr"
)

// Spillover persists evicted samples to rotated JSONL segments under dir,
// per spec.md §6 ("Metrics spillover"). Segments rotate at segmentBytes
// and the total across all segments is capped at maxBytes, oldest
// segments deleted first.
type Spillover struct {
	mtx          sync.Mutex
	dir          string
	segmentBytes int64
	maxBytes     int64

	current     *os.File
	currentSize int64
}

type spilloverRecord struct {
	UnitHash string `json:"unit_hash"`
	Sample   Sample `json:"sample"`
}

func NewSpillover(dir string, segmentBytes, maxBytes int64) (*Spillover, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, &sysgerr.MetricsError{Op: "mkdir", Err: err}
	}
	return &Spillover{dir: dir, segmentBytes: segmentBytes, maxBytes: maxBytes}, nil
}

// Write appends one record, rotating to a new segment if the current one
// would exceed segmentBytes, then enforces the total-bytes cap.
func (s *Spillover) Write(hash string, sample Sample) error {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	b, err := json.Marshal(spilloverRecord{UnitHash: hash, Sample: sample})
	if err != nil {
		return &sysgerr.MetricsError{Op: "marshal", Err: err}
	}
	b = append(b, '\n')

	if s.current == nil || s.currentSize+int64(len(b)) > s.segmentBytes {
		if err := s.rotateLocked(); err != nil {
			return err
		}
	}

	n, err := s.current.Write(b)
	if err != nil {
		return &sysgerr.MetricsError{Op: "write", Err: err}
	}
	s.currentSize += int64(n)

	return s.enforceCapLocked()
}

func (s *Spillover) rotateLocked() error {
	if s.current != nil {
		s.current.Close()
	}
	name := fmt.Sprintf("segment-%d.jsonl", time.Now().UnixNano())
	f, err := os.OpenFile(filepath.Join(s.dir, name), os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o640)
	if err != nil {
		return &sysgerr.MetricsError{Op: "rotate", Err: err}
	}
	s.current = f
	s.currentSize = 0
	return nil
}

// enforceCapLocked deletes the oldest segments until total size fits
// maxBytes. Segments are ordered by filename, which embeds a
// monotonically increasing creation timestamp.
func (s *Spillover) enforceCapLocked() error {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return &sysgerr.MetricsError{Op: "readdir", Err: err}
	}
	type seg struct {
		name string
		size int64
	}
	var segs []seg
	var total int64
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue
		}
		segs = append(segs, seg{name: e.Name(), size: info.Size()})
		total += info.Size()
	}
	sort.Slice(segs, func(i, j int) bool { return segs[i].name < segs[j].name })

	for total > s.maxBytes && len(segs) > 0 {
		oldest := segs[0]
		segs = segs[1:]
		if filepath.Join(s.dir, oldest.name) == currentPathFor(s) {
			continue
		}
		if err := os.Remove(filepath.Join(s.dir, oldest.name)); err != nil && !os.IsNotExist(err) {
			return &sysgerr.MetricsError{Op: "evict", Err: err}
		}
		total -= oldest.size
	}
	return nil
}

func currentPathFor(s *Spillover) string {
	if s.current == nil {
		return ""
	}
	return s.current.Name()
}

func (s *Spillover) Close() error {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	if s.current != nil {
		return s.current.Close()
	}
	return nil
}
