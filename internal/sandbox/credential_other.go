//go:build !unix

package sandbox

import "syscall"

// Credential transitions are unsupported here; the child runs with the
// parent's privileges.
func sysProcCredential(uid, gid uint32) *syscall.SysProcAttr {
	return nil
}
