package sandbox

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vulnalert/pkg/models"
)

const testMethodID = "11111111-2222-3333-4444-555555555555"

func writeHelper(t *testing.T, dataDir, script string) {
	t.Helper()
	dir := filepath.Join(dataDir, "global_alert_methods", testMethodID)
	if err := os.MkdirAll(dir, 0755); err != nil {
		t.Fatalf("mkdir helper dir: %v", err)
	}
	if err := os.WriteFile(filepath.Join(dir, "alert"), []byte("#!/bin/sh\n"+script), 0755); err != nil {
		t.Fatalf("write helper: %v", err)
	}
}

func TestRunHelperSuccess(t *testing.T) {
	dataDir := t.TempDir()
	record := filepath.Join(t.TempDir(), "record")
	t.Setenv("HELPER_RECORD", record)
	// $1 is the test argument, $2 the report path.
	writeHelper(t, dataDir, `cat "$2" > "$HELPER_RECORD"`+"\nexit 0\n")

	s := New(dataDir, PlainRunner{})
	code, message := s.RunHelper(testMethodID, ShellQuote("arg1"), "report.txt", []byte("report body"), nil)
	if code != models.OK {
		t.Fatalf("expected code 0, got %d (%s)", code, message)
	}
	got, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if string(got) != "report body" {
		t.Fatalf("helper saw report %q", got)
	}
}

func TestRunHelperScriptFailureCarriesDiagnostic(t *testing.T) {
	dataDir := t.TempDir()
	writeHelper(t, dataDir, "echo 'bad creds' >&2\nexit 2\n")

	s := New(dataDir, PlainRunner{})
	code, message := s.RunHelper(testMethodID, "", "report.txt", []byte("x"), nil)
	if code != models.ErrScriptFailed {
		t.Fatalf("expected code -5, got %d", code)
	}
	if message != "bad creds" {
		t.Fatalf("expected diagnostic 'bad creds', got %q", message)
	}
}

func TestRunHelperScriptFailureWithoutDiagnostic(t *testing.T) {
	dataDir := t.TempDir()
	writeHelper(t, dataDir, "exit 2\n")

	s := New(dataDir, PlainRunner{})
	code, message := s.RunHelper(testMethodID, "", "report.txt", nil, nil)
	if code != models.ErrScriptFailed {
		t.Fatalf("expected code -5, got %d", code)
	}
	if message != "Exited with code 2." {
		t.Fatalf("got message %q", message)
	}
}

func TestRunHelperOtherExitIsInternalError(t *testing.T) {
	dataDir := t.TempDir()
	writeHelper(t, dataDir, "exit 1\n")

	s := New(dataDir, PlainRunner{})
	code, _ := s.RunHelper(testMethodID, "", "report.txt", nil, nil)
	if code != models.ErrInternal {
		t.Fatalf("expected code -1, got %d", code)
	}
}

func TestRunHelperMissingHelper(t *testing.T) {
	s := New(t.TempDir(), PlainRunner{})
	code, _ := s.RunHelper(testMethodID, "", "report.txt", nil, nil)
	if code != models.ErrInternal {
		t.Fatalf("expected code -1 for a missing helper, got %d", code)
	}
}

func TestRunHelperRemovesTempDirOnEveryExit(t *testing.T) {
	dataDir := t.TempDir()
	record := filepath.Join(t.TempDir(), "record")
	t.Setenv("HELPER_RECORD", record)
	writeHelper(t, dataDir, `dirname "$1" > "$HELPER_RECORD"`+"\nexit 2\n")

	s := New(dataDir, PlainRunner{})
	if code, _ := s.RunHelper(testMethodID, "", "report.txt", []byte("x"), nil); code != models.ErrScriptFailed {
		t.Fatalf("expected code -5, got %d", code)
	}

	raw, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	tempDir := strings.TrimSpace(string(raw))
	if tempDir == "" {
		t.Fatalf("helper did not record its temp dir")
	}
	if _, err := os.Stat(tempDir); !os.IsNotExist(err) {
		t.Fatalf("expected temp dir %s to be removed, stat err: %v", tempDir, err)
	}
}

func TestRunHelperAppendsExtraFileBeforeReport(t *testing.T) {
	dataDir := t.TempDir()
	record := filepath.Join(t.TempDir(), "record")
	t.Setenv("HELPER_RECORD", record)
	// With extra data, $1 is the extra file and $2 the report.
	writeHelper(t, dataDir, `cat "$1" > "$HELPER_RECORD"`+"\nexit 0\n")

	s := New(dataDir, PlainRunner{})
	code, _ := s.RunHelper(testMethodID, "", "report.txt", []byte("report"), []byte("secret"))
	if code != models.OK {
		t.Fatalf("expected code 0, got %d", code)
	}
	got, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if string(got) != "secret" {
		t.Fatalf("helper saw extra data %q", got)
	}
}

func TestRunCustomBuildsSideFiles(t *testing.T) {
	dataDir := t.TempDir()
	record := filepath.Join(t.TempDir(), "record")
	t.Setenv("HELPER_RECORD", record)
	writeHelper(t, dataDir, `cat "$1" > "$HELPER_RECORD"`+"\nexit 0\n")

	s := New(dataDir, PlainRunner{})
	code, _ := s.RunCustom(testMethodID, "report.txt", []byte("report"), func(ctx *Context) (string, error) {
		auth := filepath.Join(ctx.Dir, "auth")
		if err := os.WriteFile(auth, []byte("alice\n"), 0600); err != nil {
			return "", err
		}
		return ShellQuote(auth), nil
	})
	if code != models.OK {
		t.Fatalf("expected code 0, got %d", code)
	}
	got, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	if string(got) != "alice\n" {
		t.Fatalf("helper saw auth file %q", got)
	}
}

func TestContextCloseIsIdempotent(t *testing.T) {
	ctx, err := NewContext("report.txt", []byte("x"), []byte("y"))
	if err != nil {
		t.Fatalf("new context: %v", err)
	}
	dir := ctx.Dir
	ctx.Close()
	ctx.Close()
	if _, err := os.Stat(dir); !os.IsNotExist(err) {
		t.Fatalf("expected %s to be removed", dir)
	}
}

func TestShellQuote(t *testing.T) {
	if got := ShellQuote("it's"); got != `'it'\''s'` {
		t.Fatalf("got %s", got)
	}
}
