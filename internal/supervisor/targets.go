package supervisor

import "github.com/sysgio/sysg/internal/metrics"

// Targets implements metrics.TargetLister: the union of current config
// hashes and persisted state hashes, each resolved to a PID, per
// spec.md §4.3.
func (s *Supervisor) Targets() []metrics.Target {
	s.mtx.RLock()
	cfg := s.cfg
	s.mtx.RUnlock()

	hashes := make(map[string]string) // hash -> name
	if cfg != nil {
		for name, svc := range cfg.Services {
			hashes[svc.Hash()] = name
		}
	}
	if states, err := s.states.All(); err == nil {
		for hash, entry := range states {
			if _, ok := hashes[hash]; !ok {
				hashes[hash] = ""
			}
			_ = entry
		}
	}

	pidMap, _ := s.pids.All()
	stateMap, _ := s.states.All()

	out := make([]metrics.Target, 0, len(hashes))
	for hash, name := range hashes {
		pid := 0
		if entry, ok := stateMap[hash]; ok && entry.Pid > 0 {
			pid = entry.Pid
		} else if name != "" {
			if p, ok := pidMap[name]; ok {
				pid = p
			}
		}
		out = append(out, metrics.Target{Hash: hash, PID: pid})
	}
	return out
}
