// Package config loads and validates systemg.yaml, the unit declaration
// file described in spec.md §3. The wire format is YAML, per the
// original implementation's use of serde_yaml; the loader's shape (size
// cap, environment expansion, disabled-unit pruning) follows the
// teacher's manager/config.go.
package config

import (
	"fmt"
	"os"

	"gopkg.in/yaml.v3"

	"github.com/sysgio/sysg/internal/unitid"
)

// maxConfigSize guards against a runaway config file, matching the
// teacher's own defensive cap in config/loader.go.
const maxConfigSize = 4 * 1024 * 1024

const (
	DefaultBackoff       = "5s"
	DefaultMaxRestarts   = 5
	DefaultRestartWindow = "10m"
	DefaultHookTimeout   = "10s"
	DefaultStopGrace     = "5s"
)

type EnvConfig struct {
	File string            `yaml:"file,omitempty"`
	Vars map[string]string `yaml:"vars,omitempty"`
}

type Hook struct {
	Command string `yaml:"command"`
	Timeout string `yaml:"timeout,omitempty"`
}

type HookPair struct {
	Success *Hook `yaml:"success,omitempty"`
	Error   *Hook `yaml:"error,omitempty"`
}

type HooksConfig struct {
	OnStart   *HookPair `yaml:"on_start,omitempty"`
	OnStop    *HookPair `yaml:"on_stop,omitempty"`
	OnRestart *HookPair `yaml:"on_restart,omitempty"`
}

type CronConfig struct {
	Expression string `yaml:"expression"`
	Timezone   string `yaml:"timezone,omitempty"`
}

type DeploymentConfig struct {
	PreStart string `yaml:"pre_start,omitempty"`
	PostStop string `yaml:"post_stop,omitempty"`
	Strategy string `yaml:"strategy,omitempty"`
}

type CgroupConfig struct {
	MemoryMax string `yaml:"memory_max,omitempty"`
	CPUMax    string `yaml:"cpu_max,omitempty"`
	CPUWeight *int64 `yaml:"cpu_weight,omitempty"`
}

type LimitsConfig struct {
	NoFile      *int64        `yaml:"nofile,omitempty"`
	NProc       *int64        `yaml:"nproc,omitempty"`
	MemLock     *int64        `yaml:"memlock,omitempty"`
	Nice        *int          `yaml:"nice,omitempty"`
	CPUAffinity []int         `yaml:"cpu_affinity,omitempty"`
	Cgroup      *CgroupConfig `yaml:"cgroup,omitempty"`
}

type IsolationConfig struct {
	NetworkNS  bool   `yaml:"network_ns,omitempty"`
	MountNS    bool   `yaml:"mount_ns,omitempty"`
	PidNS      bool   `yaml:"pid_ns,omitempty"`
	UserNS     bool   `yaml:"user_ns,omitempty"`
	PrivateTmp bool   `yaml:"private_tmp,omitempty"`
	Seccomp    string `yaml:"seccomp,omitempty"`
	AppArmor   string `yaml:"apparmor,omitempty"`
	SELinux    string `yaml:"selinux,omitempty"`
}

type SpawnConfig struct {
	Mode     string `yaml:"mode,omitempty"`
	MaxTotal int    `yaml:"max_total,omitempty"`
}

// ServiceConfig mirrors spec.md §3's ServiceConfig exactly.
type ServiceConfig struct {
	Command             string            `yaml:"command"`
	Env                 *EnvConfig        `yaml:"env,omitempty"`
	RestartPolicy        string            `yaml:"restart_policy,omitempty"`
	Backoff              string            `yaml:"backoff,omitempty"`
	MaxRestarts          *int              `yaml:"max_restarts,omitempty"`
	DependsOn            []string          `yaml:"depends_on,omitempty"`
	Deployment           *DeploymentConfig `yaml:"deployment,omitempty"`
	Hooks                *HooksConfig      `yaml:"hooks,omitempty"`
	Cron                 *CronConfig       `yaml:"cron,omitempty"`
	User                 string            `yaml:"user,omitempty"`
	Group                string            `yaml:"group,omitempty"`
	SupplementaryGroups  []string          `yaml:"supplementary_groups,omitempty"`
	Capabilities         []string          `yaml:"capabilities,omitempty"`
	Limits               *LimitsConfig     `yaml:"limits,omitempty"`
	Isolation            *IsolationConfig  `yaml:"isolation,omitempty"`
	Spawn                *SpawnConfig      `yaml:"spawn,omitempty"`
	Skip                 bool              `yaml:"skip,omitempty"`
}

// Config is the top-level systemg.yaml document.
type Config struct {
	Version    string                   `yaml:"version,omitempty"`
	ProjectDir string                   `yaml:"project_dir,omitempty"`
	Env        *EnvConfig               `yaml:"env,omitempty"`
	Services   map[string]ServiceConfig `yaml:"services"`
}

// IsCron reports whether the unit should be scheduled instead of run as a
// long-lived service.
func (s ServiceConfig) IsCron() bool { return s.Cron != nil && s.Cron.Expression != "" }

// EffectiveBackoff returns the configured backoff, or DefaultBackoff.
func (s ServiceConfig) EffectiveBackoff() string {
	if s.Backoff == "" {
		return DefaultBackoff
	}
	return s.Backoff
}

// EffectiveMaxRestarts returns the configured cap, or DefaultMaxRestarts.
func (s ServiceConfig) EffectiveMaxRestarts() int {
	if s.MaxRestarts == nil {
		return DefaultMaxRestarts
	}
	return *s.MaxRestarts
}

// EffectiveRestartPolicy defaults to "on_failure" when unset, matching a
// supervisor that restarts crashes but not clean exits unless told
// otherwise.
func (s ServiceConfig) EffectiveRestartPolicy() string {
	if s.RestartPolicy == "" {
		return "on_failure"
	}
	return s.RestartPolicy
}

// Hash computes the stable config hash for the service's effective spec, per
// spec.md §6. Two configs differing only in declaration/map order produce
// the same hash.
func (s ServiceConfig) Hash() string {
	spec := unitid.Spec{
		Command:             s.Command,
		RestartPolicy:        s.EffectiveRestartPolicy(),
		Backoff:              s.EffectiveBackoff(),
		MaxRestarts:          s.EffectiveMaxRestarts(),
		DependsOn:            s.DependsOn,
		User:                 s.User,
		Group:                s.Group,
		SupplementaryGroups:  s.SupplementaryGroups,
		Capabilities:         s.Capabilities,
		Skip:                 s.Skip,
	}
	if s.Env != nil {
		spec.Env = s.Env.Vars
	}
	if s.Hooks != nil {
		spec.Hooks = &unitid.Hooks{}
		if s.Hooks.OnStart != nil {
			spec.Hooks.OnStartSuccess = hookOf(s.Hooks.OnStart.Success)
			spec.Hooks.OnStartError = hookOf(s.Hooks.OnStart.Error)
		}
		if s.Hooks.OnStop != nil {
			spec.Hooks.OnStopSuccess = hookOf(s.Hooks.OnStop.Success)
			spec.Hooks.OnStopError = hookOf(s.Hooks.OnStop.Error)
		}
		if s.Hooks.OnRestart != nil {
			spec.Hooks.OnRestartSuccess = hookOf(s.Hooks.OnRestart.Success)
			spec.Hooks.OnRestartError = hookOf(s.Hooks.OnRestart.Error)
		}
	}
	if s.Cron != nil {
		spec.Cron = &unitid.Cron{Expression: s.Cron.Expression, Timezone: s.Cron.Timezone}
	}
	if s.Limits != nil {
		l := &unitid.Limits{Nice: deref(s.Limits.Nice), CPUAffinity: s.Limits.CPUAffinity}
		l.NoFile = deref64(s.Limits.NoFile)
		l.NProc = deref64(s.Limits.NProc)
		l.MemLock = deref64(s.Limits.MemLock)
		if s.Limits.Cgroup != nil {
			l.CgroupCPU = s.Limits.Cgroup.CPUMax
			l.CgroupWeigh = deref64(s.Limits.Cgroup.CPUWeight)
		}
		spec.Limits = l
	}
	if s.Isolation != nil {
		spec.Isolation = &unitid.Isolation{
			NetworkNS:  s.Isolation.NetworkNS,
			MountNS:    s.Isolation.MountNS,
			PidNS:      s.Isolation.PidNS,
			UserNS:     s.Isolation.UserNS,
			PrivateTmp: s.Isolation.PrivateTmp,
			Seccomp:    s.Isolation.Seccomp,
			AppArmor:   s.Isolation.AppArmor,
			SELinux:    s.Isolation.SELinux,
		}
	}
	if s.Spawn != nil {
		spec.Spawn = &unitid.Spawn{Mode: s.Spawn.Mode, MaxTotal: s.Spawn.MaxTotal}
	}
	return unitid.Hash(spec)
}

func hookOf(h *Hook) *unitid.Hook {
	if h == nil {
		return nil
	}
	return &unitid.Hook{Command: h.Command, Timeout: h.Timeout}
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}

func deref64(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}

// Load reads path, expands environment variables (including any
// per-service env.file), and validates the result.
func Load(path string) (*Config, error) {
	raw, err := readCapped(path)
	if err != nil {
		return nil, err
	}

	var c Config
	if err := yaml.Unmarshal([]byte(raw), &c); err != nil {
		return nil, &parseError{path: path, err: err}
	}

	if err := c.loadEnvFiles(); err != nil {
		return nil, err
	}

	expanded := expandEnv(raw, c.environOverlay())
	var c2 Config
	if err := yaml.Unmarshal([]byte(expanded), &c2); err != nil {
		return nil, &parseError{path: path, err: err}
	}

	if err := c2.Validate(); err != nil {
		return nil, err
	}
	return &c2, nil
}

func readCapped(path string) (string, error) {
	fi, err := os.Stat(path)
	if err != nil {
		return "", &readError{path: path, err: err}
	}
	if fi.Size() > maxConfigSize {
		return "", &readError{path: path, err: fmt.Errorf("config file exceeds %d bytes", maxConfigSize)}
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", &readError{path: path, err: err}
	}
	return string(b), nil
}

// loadEnvFiles reads each service's env.file (if set) into its Vars map,
// env.file entries losing to already-present Vars entries, matching
// the original implementation's merge order.
func (c *Config) loadEnvFiles() error {
	for name, svc := range c.Services {
		if svc.Env == nil || svc.Env.File == "" {
			continue
		}
		fileVars, err := loadEnvFile(svc.Env.File)
		if err != nil {
			return &parseError{path: svc.Env.File, err: err}
		}
		merged := make(map[string]string, len(fileVars)+len(svc.Env.Vars))
		for k, v := range fileVars {
			merged[k] = v
		}
		for k, v := range svc.Env.Vars {
			merged[k] = v
		}
		svc.Env.Vars = merged
		c.Services[name] = svc
	}
	return nil
}

// environOverlay flattens the top-level env block and every service's
// merged vars into one lookup table for expandEnv, service-specific vars
// taking precedence collapses correctly because expansion happens on the
// raw document text, so each section only ever sees its own scope in
// practice; the overlay here additionally carries the global block so
// ${VAR} in any section can reach it.
func (c *Config) environOverlay() map[string]string {
	out := make(map[string]string)
	if c.Env != nil {
		for k, v := range c.Env.Vars {
			out[k] = v
		}
	}
	for _, svc := range c.Services {
		if svc.Env == nil {
			continue
		}
		for k, v := range svc.Env.Vars {
			out[k] = v
		}
	}
	return out
}

type readError struct {
	path string
	err  error
}

func (e *readError) Error() string { return fmt.Sprintf("read %s: %v", e.path, e.err) }
func (e *readError) Unwrap() error { return e.err }

type parseError struct {
	path string
	err  error
}

func (e *parseError) Error() string { return fmt.Sprintf("parse %s: %v", e.path, e.err) }
func (e *parseError) Unwrap() error { return e.err }
