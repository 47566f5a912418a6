package metrics

import (
	"sort"
	"sync"
	"time"

	"github.com/sysgio/sysg/internal/logging"
)

// Store holds a bounded ring of Samples per unit hash, enforced by three
// simultaneous bounds per spec.md §4.3: retention window, max in-memory
// bytes across all units, and optional disk spillover.
type Store struct {
	mtx        sync.Mutex
	rings      map[string][]Sample
	retention  time.Duration
	maxBytes   int
	spill      *Spillover
	lg         *logging.Logger
}

type Option func(*Store)

func WithRetention(d time.Duration) Option { return func(s *Store) { s.retention = d } }
func WithMaxBytes(n int) Option            { return func(s *Store) { s.maxBytes = n } }
func WithSpillover(sp *Spillover) Option    { return func(s *Store) { s.spill = sp } }
func WithLogger(lg *logging.Logger) Option  { return func(s *Store) { s.lg = lg } }

func NewStore(opts ...Option) *Store {
	s := &Store{
		rings:     make(map[string][]Sample),
		retention: time.Hour,
		maxBytes:  8 << 20, // 8 MiB default budget across all units
		lg:        logging.NewDiscardLogger(),
	}
	for _, o := range opts {
		o(s)
	}
	return s
}

// RecordSample appends sample for hash, then applies, in order: age
// pruning, memory-budget enforcement (round-robin eviction over units
// sorted by hash), and spillover persistence of anything evicted.
func (s *Store) RecordSample(hash string, sample Sample) {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	s.rings[hash] = append(s.rings[hash], sample)
	s.pruneByAgeLocked(time.Now())
	evicted := s.enforceBudgetLocked()

	if s.spill != nil {
		for _, ev := range evicted {
			if err := s.spill.Write(ev.hash, ev.sample); err != nil {
				s.lg.Warnf("metrics spillover write failed for %s: %v", ev.hash, err)
			}
		}
	}
}

func (s *Store) pruneByAgeLocked(now time.Time) {
	cutoff := now.Add(-s.retention)
	for hash, ring := range s.rings {
		i := 0
		for i < len(ring) && ring[i].Timestamp.Before(cutoff) {
			i++
		}
		if i > 0 {
			s.rings[hash] = ring[i:]
		}
	}
}

type evictedSample struct {
	hash   string
	sample Sample
}

// enforceBudgetLocked evicts the oldest sample from units round-robin,
// visiting units in sorted-hash order, until total estimated bytes fits
// maxBytes. This matches spec.md §4.3's "round-robin over units sorted by
// hash" eviction order and its invariant 9 (sum_over_units(ring_bytes) <=
// max_memory_bytes after every record_sample).
func (s *Store) enforceBudgetLocked() []evictedSample {
	var evicted []evictedSample
	for s.totalBytesLocked() > s.maxBytes {
		hashes := s.sortedNonEmptyHashesLocked()
		if len(hashes) == 0 {
			break
		}
		progressed := false
		for _, h := range hashes {
			ring := s.rings[h]
			if len(ring) == 0 {
				continue
			}
			evicted = append(evicted, evictedSample{hash: h, sample: ring[0]})
			s.rings[h] = ring[1:]
			progressed = true
			if s.totalBytesLocked() <= s.maxBytes {
				break
			}
		}
		if !progressed {
			break
		}
	}
	return evicted
}

func (s *Store) totalBytesLocked() int {
	total := 0
	for _, ring := range s.rings {
		total += len(ring) * approxSampleBytes
	}
	return total
}

func (s *Store) sortedNonEmptyHashesLocked() []string {
	out := make([]string, 0, len(s.rings))
	for h, ring := range s.rings {
		if len(ring) > 0 {
			out = append(out, h)
		}
	}
	sort.Strings(out)
	return out
}

// SummarizeUnit returns the aggregate view spec.md §4.3 calls for.
func (s *Store) SummarizeUnit(hash string) Summary {
	s.mtx.Lock()
	defer s.mtx.Unlock()

	ring := s.rings[hash]
	if len(ring) == 0 {
		return Summary{}
	}
	var sum, max float64
	for _, sm := range ring {
		sum += sm.CPUPercent
		if sm.CPUPercent > max {
			max = sm.CPUPercent
		}
	}
	last := ring[len(ring)-1]
	return Summary{
		LatestCPU: last.CPUPercent,
		AvgCPU:    sum / float64(len(ring)),
		MaxCPU:    max,
		LatestRSS: last.RSSBytes,
		Samples:   len(ring),
	}
}

// RecentSamples returns up to the most recent n samples for hash, oldest
// first, for the Inspect command's per-sample view.
func (s *Store) RecentSamples(hash string, n int) []Sample {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	ring := s.rings[hash]
	if n <= 0 || n > len(ring) {
		n = len(ring)
	}
	out := make([]Sample, n)
	copy(out, ring[len(ring)-n:])
	return out
}

// Drop removes a unit's ring entirely, used when a unit is pruned from
// config so its memory isn't held forever.
func (s *Store) Drop(hash string) {
	s.mtx.Lock()
	defer s.mtx.Unlock()
	delete(s.rings, hash)
}
