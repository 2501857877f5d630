//go:build unix

package sandbox

import "syscall"

// sysProcCredential builds the process attributes for a child that
// holds only the given uid/gid and no supplementary groups.
func sysProcCredential(uid, gid uint32) *syscall.SysProcAttr {
	return &syscall.SysProcAttr{
		Credential: &syscall.Credential{
			Uid:    uid,
			Gid:    gid,
			Groups: []uint32{},
		},
	}
}
