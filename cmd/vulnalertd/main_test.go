package main

import (
	"testing"

	"vulnalert/config"
)

func TestResolveSandboxIDsNumeric(t *testing.T) {
	uid, gid, err := resolveSandboxIDs(config.SandboxConfig{UID: 971, GID: 972})
	if err != nil {
		t.Fatalf("resolve: %v", err)
	}
	if uid != 971 || gid != 972 {
		t.Fatalf("expected 971/972, got %d/%d", uid, gid)
	}
}

func TestResolveSandboxIDsUnknownUser(t *testing.T) {
	if _, _, err := resolveSandboxIDs(config.SandboxConfig{User: "vulnalert-no-such-user"}); err == nil {
		t.Fatalf("expected an error for an unknown sandbox user")
	}
}
