package daemon

import "github.com/sysgio/sysg/internal/statefile"

// setState and setPid centralize the "log and continue" disposition the
// rest of the package uses for state-file I/O failures: a write failure
// here must never abort a spawn or stop in progress, only be visible in
// the log, per spec.md §7's treatment of ServiceStateError/PidFileError
// as non-fatal.
func (d *Daemon) setState(hash string, e statefile.Entry) {
	if err := d.svcs.Set(hash, e); err != nil {
		d.lg.Warnf("write service state for %s: %v", hash, err)
	}
}

func (d *Daemon) setPid(service string, pid int) {
	if err := d.pids.Set(service, pid); err != nil {
		d.lg.Warnf("write pid file for %s: %v", service, err)
	}
}

func (d *Daemon) removePid(service string) {
	if err := d.pids.Remove(service); err != nil {
		d.lg.Warnf("remove pid file entry for %s: %v", service, err)
	}
}
