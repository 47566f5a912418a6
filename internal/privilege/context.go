// Package privilege builds and applies the per-spawn pre-exec pipeline
// described in spec.md §4.4: namespace isolation, resource limits, nice,
// CPU affinity, Linux capabilities, the UID/GID switch, and the
// post-spawn cgroup attach.
package privilege

import (
	"os/user"
	"strconv"

	"github.com/sysgio/sysg/internal/config"
	"github.com/sysgio/sysg/internal/logging"
	"github.com/sysgio/sysg/internal/sysgerr"
)

// UserContext is the resolved target identity for a spawn.
type UserContext struct {
	UID                 int
	GID                 int
	SupplementaryGIDs    []int
	Home                 string
	Shell                string
	Username             string
}

// Plan is everything the pre-exec pipeline needs for one spawn, built
// once per spawn from the unit's effective config.
type Plan struct {
	Hash string

	User *UserContext // nil if no user switch requested

	NoFile  int64
	NProc   int64
	MemLock int64
	Nice    *int
	CPUSet  []int

	Capabilities []string // e.g. "CAP_NET_BIND_SERVICE"

	NetworkNS, MountNS, PidNS, UserNS bool
	PrivateTmp                        bool
	Seccomp, AppArmor, SELinux        string

	Cgroup *CgroupSpec
}

type CgroupSpec struct {
	MemoryMax string
	CPUMax    string
	CPUWeight int64
}

// BuildPlan derives a Plan from a unit's effective spec. If a user switch
// is requested and we are not effectively root, construction fails with
// PermissionDenied per spec.md §4.4. If dropPrivileges is set, running as
// root with no explicit user, and svc declares no user, it defaults to
// "nobody".
func BuildPlan(hash string, svc config.ServiceConfig, isRoot, dropPrivileges bool) (*Plan, error) {
	p := &Plan{Hash: hash}

	userName := svc.User
	if userName == "" && dropPrivileges && isRoot {
		userName = "nobody"
	}
	if userName != "" {
		if !isRoot {
			return nil, &sysgerr.PermissionDenied{Reason: "user switch requested by non-root supervisor"}
		}
		uc, err := resolveUser(userName, svc.Group, svc.SupplementaryGroups)
		if err != nil {
			return nil, err
		}
		p.User = uc
	}

	if svc.Limits != nil {
		p.NoFile = orInfinity(svc.Limits.NoFile)
		p.NProc = orInfinity(svc.Limits.NProc)
		p.MemLock = orInfinity(svc.Limits.MemLock)
		p.Nice = svc.Limits.Nice
		p.CPUSet = append([]int(nil), svc.Limits.CPUAffinity...)
		if svc.Limits.Cgroup != nil {
			p.Cgroup = &CgroupSpec{
				MemoryMax: svc.Limits.Cgroup.MemoryMax,
				CPUMax:    svc.Limits.Cgroup.CPUMax,
			}
			if svc.Limits.Cgroup.CPUWeight != nil {
				p.Cgroup.CPUWeight = *svc.Limits.Cgroup.CPUWeight
			}
		}
	}

	p.Capabilities = append([]string(nil), svc.Capabilities...)

	if svc.Isolation != nil {
		p.NetworkNS = svc.Isolation.NetworkNS
		p.MountNS = svc.Isolation.MountNS
		p.PidNS = svc.Isolation.PidNS
		p.UserNS = svc.Isolation.UserNS
		p.PrivateTmp = svc.Isolation.PrivateTmp
		p.Seccomp = svc.Isolation.Seccomp
		p.AppArmor = svc.Isolation.AppArmor
		p.SELinux = svc.Isolation.SELinux
	}

	return p, nil
}

// RLimInfinity is the RLIM_INFINITY sentinel spec.md §4.4 calls out: a
// limit left unset maps to "unlimited" rather than "zero". An explicit 0
// is passed through as 0.
const RLimInfinity int64 = -1

func orInfinity(p *int64) int64 {
	if p == nil {
		return RLimInfinity
	}
	return *p
}

func resolveUser(name, group string, supplementary []string) (*UserContext, error) {
	u, err := user.Lookup(name)
	if err != nil {
		return nil, &sysgerr.PermissionDenied{Reason: "unknown user " + name + ": " + err.Error()}
	}
	uid, _ := strconv.Atoi(u.Uid)
	gid, _ := strconv.Atoi(u.Gid)

	if group != "" {
		if g, err := lookupGroupID(group); err == nil {
			gid = g
		}
	}

	sup := make([]int, 0, len(supplementary)+1)
	for _, g := range supplementary {
		if id, err := lookupGroupID(g); err == nil {
			sup = append(sup, id)
		}
	}

	return &UserContext{
		UID:               uid,
		GID:               gid,
		SupplementaryGIDs: append(sup, gid),
		Home:              u.HomeDir,
		Username:          u.Username,
	}, nil
}

func lookupGroupID(name string) (int, error) {
	if g, err := user.LookupGroup(name); err == nil {
		return strconv.Atoi(g.Gid)
	}
	return strconv.Atoi(name)
}

// Logger is the minimal logging surface the pipeline needs; satisfied by
// *logging.Logger.
type Logger interface {
	Warnf(format string, args ...interface{})
}

var _ Logger = (*logging.Logger)(nil)
