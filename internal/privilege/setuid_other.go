//go:build !linux

package privilege

import "golang.org/x/sys/unix"

func setuidGeneric(uid, gid int, supplementary []int) error {
	if err := unix.Setgroups(supplementary); err != nil {
		return err
	}
	if err := unix.Setgid(gid); err != nil {
		return err
	}
	return unix.Setuid(uid)
}
