// Package sysgerr collects the typed error taxonomy shared by every
// supervisor component, so callers can branch on kind with errors.As
// instead of string-matching messages.
package sysgerr

import "fmt"

// ConfigReadError wraps a failure to read the config file from disk.
type ConfigReadError struct {
	Path string
	Err  error
}

func (e *ConfigReadError) Error() string {
	return fmt.Sprintf("read config %s: %v", e.Path, e.Err)
}

func (e *ConfigReadError) Unwrap() error { return e.Err }

// ConfigParseError wraps a failure to parse a config document already read.
type ConfigParseError struct {
	Path string
	Err  error
}

func (e *ConfigParseError) Error() string {
	return fmt.Sprintf("parse config %s: %v", e.Path, e.Err)
}

func (e *ConfigParseError) Unwrap() error { return e.Err }

// ServiceStartError records a fork/exec/pre-start failure for a service.
type ServiceStartError struct {
	Service string
	Err     error
}

func (e *ServiceStartError) Error() string {
	return fmt.Sprintf("start %s: %v", e.Service, e.Err)
}

func (e *ServiceStartError) Unwrap() error { return e.Err }

// ServiceStopError records a signaling failure other than ESRCH.
type ServiceStopError struct {
	Service string
	Err     error
}

func (e *ServiceStopError) Error() string {
	return fmt.Sprintf("stop %s: %v", e.Service, e.Err)
}

func (e *ServiceStopError) Unwrap() error { return e.Err }

// HookExecutionError records a hook failure or timeout. It is always
// recovered locally by the caller; it exists as a typed value purely for
// logging and testing.
type HookExecutionError struct {
	Service string
	Hook    string
	Err     error
}

func (e *HookExecutionError) Error() string {
	return fmt.Sprintf("hook %s/%s: %v", e.Service, e.Hook, e.Err)
}

func (e *HookExecutionError) Unwrap() error { return e.Err }

// DependencyError records a missing or cyclic dependency discovered while
// topologically sorting a bulk start.
type DependencyError struct {
	Service    string
	Dependency string
	Cyclic     bool
}

func (e *DependencyError) Error() string {
	if e.Cyclic {
		return fmt.Sprintf("dependency cycle: %s -> %s", e.Service, e.Dependency)
	}
	return fmt.Sprintf("missing dependency: %s depends on unknown unit %s", e.Service, e.Dependency)
}

// MutexPoisonError signals an internal invariant violation around a shared
// lock. The supervisor logs it and remains alive; it is never expected to
// be seen outside a programming error.
type MutexPoisonError struct {
	Resource string
}

func (e *MutexPoisonError) Error() string {
	return fmt.Sprintf("internal invariant violated guarding %s", e.Resource)
}

// PidFileError wraps an I/O or parse failure on the PID file.
type PidFileError struct {
	Op  string
	Err error
}

func (e *PidFileError) Error() string { return fmt.Sprintf("pid file %s: %v", e.Op, e.Err) }
func (e *PidFileError) Unwrap() error { return e.Err }

// ServiceStateError wraps an I/O or parse failure on the service state file.
type ServiceStateError struct {
	Op  string
	Err error
}

func (e *ServiceStateError) Error() string { return fmt.Sprintf("service state %s: %v", e.Op, e.Err) }
func (e *ServiceStateError) Unwrap() error { return e.Err }

// CronStateError wraps an I/O or parse failure on the cron state file.
type CronStateError struct {
	Op  string
	Err error
}

func (e *CronStateError) Error() string { return fmt.Sprintf("cron state %s: %v", e.Op, e.Err) }
func (e *CronStateError) Unwrap() error { return e.Err }

// MetricsError wraps a spillover I/O failure. The collector logs it and
// drops the sample; it never propagates further.
type MetricsError struct {
	Op  string
	Err error
}

func (e *MetricsError) Error() string { return fmt.Sprintf("metrics %s: %v", e.Op, e.Err) }
func (e *MetricsError) Unwrap() error { return e.Err }

// ControlError wraps an IPC transport failure. NotAvailable is a sentinel
// value (not this type) used by CLI callers to trigger disk fallback.
type ControlError struct {
	Op  string
	Err error
}

func (e *ControlError) Error() string { return fmt.Sprintf("control socket %s: %v", e.Op, e.Err) }
func (e *ControlError) Unwrap() error { return e.Err }

// SpawnLimitExceeded signals a dynamic-spawn quota hit at the spawn
// authorization boundary; no process is created.
type SpawnLimitExceeded struct {
	Service string
	Limit   int
}

func (e *SpawnLimitExceeded) Error() string {
	return fmt.Sprintf("spawn limit of %d exceeded for %s", e.Limit, e.Service)
}

// PermissionDenied signals a privilege escalation was requested by a
// non-root supervisor, or system mode was requested by a non-root user.
type PermissionDenied struct {
	Reason string
}

func (e *PermissionDenied) Error() string { return fmt.Sprintf("permission denied: %s", e.Reason) }
