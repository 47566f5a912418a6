//go:build !linux

package privilege

import "errors"

// AttachCgroup is a Linux-only feature per spec.md §9; elsewhere it is a
// stub so callers can warn-and-continue uniformly.
func AttachCgroup(hash string, pid int, spec *CgroupSpec) error {
	if spec == nil {
		return nil
	}
	return errors.New("cgroups are only supported on linux")
}
