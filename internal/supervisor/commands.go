package supervisor

import (
	"fmt"

	"github.com/sysgio/sysg/internal/ipc"
)

// handle implements the command surface from spec.md §4.7 and is
// registered as the ipc.Server's Handler. Commands are already
// serialized by the accept loop's per-connection goroutine ordering
// responses after requests, per spec.md §5.
func (s *Supervisor) handle(req ipc.Request) ipc.Response {
	switch req.Tag {
	case ipc.ReqStart:
		return s.handleStart(req)
	case ipc.ReqStop:
		return s.handleStop(req)
	case ipc.ReqRestart:
		return s.handleRestart(req)
	case ipc.ReqShutdown:
		return s.handleShutdown()
	case ipc.ReqStatus:
		return s.handleStatus()
	case ipc.ReqInspect:
		return s.handleInspect(req)
	default:
		return ipc.ErrorResponse(fmt.Errorf("unknown request tag %q", req.Tag))
	}
}

func (s *Supervisor) handleStart(req ipc.Request) ipc.Response {
	s.mtx.RLock()
	d, cfg := s.d, s.cfg
	s.mtx.RUnlock()

	if req.Service == "" {
		results := d.StartAll(s.bgCtx)
		return summarize(results)
	}
	svc, ok := cfg.Services[req.Service]
	if !ok {
		return ipc.ErrorResponse(fmt.Errorf("unknown service %q", req.Service))
	}
	if _, err := d.SpawnUnit(s.bgCtx, svc.Hash()); err != nil {
		return ipc.ErrorResponse(err)
	}
	return ipc.OkResponse()
}

func (s *Supervisor) handleStop(req ipc.Request) ipc.Response {
	s.mtx.RLock()
	d, cfg := s.d, s.cfg
	s.mtx.RUnlock()

	if req.Service == "" {
		d.StopAll()
		return ipc.OkResponse()
	}
	svc, ok := cfg.Services[req.Service]
	if !ok {
		return ipc.ErrorResponse(fmt.Errorf("unknown service %q", req.Service))
	}
	if err := d.StopUnit(s.bgCtx, svc.Hash()); err != nil {
		return ipc.ErrorResponse(err)
	}
	return ipc.OkResponse()
}

func (s *Supervisor) handleRestart(req ipc.Request) ipc.Response {
	if req.Service == "" {
		path := req.Config
		if path == "" {
			s.mtx.RLock()
			path = s.cfgPath
			s.mtx.RUnlock()
		}
		s.mtx.Lock()
		err := s.reloadLocked(path)
		s.mtx.Unlock()
		if err != nil {
			return ipc.ErrorResponse(err)
		}
		return ipc.OkResponse()
	}

	s.mtx.RLock()
	d, cfg := s.d, s.cfg
	s.mtx.RUnlock()
	svc, ok := cfg.Services[req.Service]
	if !ok {
		return ipc.ErrorResponse(fmt.Errorf("unknown service %q", req.Service))
	}
	hash := svc.Hash()
	if err := d.StopUnit(s.bgCtx, hash); err != nil {
		return ipc.ErrorResponse(err)
	}
	if _, err := d.SpawnUnit(s.bgCtx, hash); err != nil {
		return ipc.ErrorResponse(err)
	}
	return ipc.OkResponse()
}

func (s *Supervisor) handleShutdown() ipc.Response {
	go s.Shutdown()
	return ipc.OkResponse()
}

func (s *Supervisor) handleStatus() ipc.Response {
	s.mtx.RLock()
	cfg := s.cfg
	s.mtx.RUnlock()
	snap, err := s.statusB.Build(cfg)
	if err != nil {
		return ipc.ErrorResponse(err)
	}
	return ipc.StatusResponse(snap)
}

func (s *Supervisor) handleInspect(req ipc.Request) ipc.Response {
	s.mtx.RLock()
	cfg := s.cfg
	s.mtx.RUnlock()
	snap, err := s.statusB.Build(cfg)
	if err != nil {
		return ipc.ErrorResponse(err)
	}
	for _, u := range snap.Units {
		if u.Name == req.Unit || u.Hash == req.Unit {
			samples := s.metrics.RecentSamples(u.Hash, req.Samples)
			return ipc.InspectResponse(ipc.InspectPayload{Unit: u, Samples: samples})
		}
	}
	return ipc.ErrorResponse(fmt.Errorf("unknown unit %q", req.Unit))
}

func summarize(results map[string]error) ipc.Response {
	for name, err := range results {
		if err != nil {
			return ipc.MessageResponse(fmt.Sprintf("%s: %v (and possibly others)", name, err))
		}
	}
	return ipc.OkResponse()
}
