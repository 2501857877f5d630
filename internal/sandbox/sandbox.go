// Package sandbox runs the per-method helper programs that perform the
// actual network delivery for several transports. Every run gets a
// private temp directory holding the report, an error file for the
// helper's diagnostics and optionally one extra-data file; the
// directory is removed on every exit path.
package sandbox

import (
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/pkg/models"
)

// helperName is the executable expected inside each method directory.
const helperName = "alert"

// Context is one sandboxed run's temp resources.
type Context struct {
	Dir        string
	ReportPath string
	ErrorPath  string
	ExtraPath  string
}

// NewContext creates the temp directory and writes the report, the
// empty error file and the optional extra-data file into it.
func NewContext(reportFilename string, report, extra []byte) (*Context, error) {
	dir, err := os.MkdirTemp("", "vulnalert-helper-")
	if err != nil {
		return nil, fmt.Errorf("create helper temp dir: %w", err)
	}
	ctx := &Context{Dir: dir}

	if reportFilename == "" {
		reportFilename = "report"
	}
	ctx.ReportPath = filepath.Join(dir, reportFilename)
	if err := os.WriteFile(ctx.ReportPath, report, 0600); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("write report file: %w", err)
	}

	ctx.ErrorPath = filepath.Join(dir, "error")
	if err := os.WriteFile(ctx.ErrorPath, nil, 0600); err != nil {
		ctx.Close()
		return nil, fmt.Errorf("create error file: %w", err)
	}

	if extra != nil {
		f, err := os.CreateTemp(dir, "extra_")
		if err != nil {
			ctx.Close()
			return nil, fmt.Errorf("create extra file: %w", err)
		}
		ctx.ExtraPath = f.Name()
		if _, err := f.Write(extra); err != nil {
			f.Close()
			ctx.Close()
			return nil, fmt.Errorf("write extra file: %w", err)
		}
		if err := f.Close(); err != nil {
			ctx.Close()
			return nil, fmt.Errorf("close extra file: %w", err)
		}
	}

	return ctx, nil
}

// Close removes the temp directory. Safe to call more than once.
func (c *Context) Close() {
	if c.Dir == "" {
		return
	}
	if err := os.RemoveAll(c.Dir); err != nil {
		logger.Warnf("Failed to remove helper temp dir %s: %v", c.Dir, err)
	}
	c.Dir = ""
}

// ErrorMessage returns the helper's diagnostic text, if it wrote any.
func (c *Context) ErrorMessage() string {
	data, err := os.ReadFile(c.ErrorPath)
	if err != nil {
		return ""
	}
	return strings.TrimSpace(string(data))
}

// Chown hands the temp files to the given uid/gid so a de-privileged
// helper can still read and write them.
func (c *Context) Chown(uid, gid int) error {
	paths := []string{c.Dir, c.ReportPath, c.ErrorPath}
	if c.ExtraPath != "" {
		paths = append(paths, c.ExtraPath)
	}
	for _, p := range paths {
		if err := os.Chown(p, uid, gid); err != nil {
			return fmt.Errorf("chown %s: %w", p, err)
		}
	}
	return nil
}

// Runner executes one helper command line from a working directory.
type Runner interface {
	Run(ctx *Context, dir, command string) error
}

// PlainRunner runs the helper through the shell with the caller's own
// privileges.
type PlainRunner struct{}

// Run executes the command via /bin/sh.
func (PlainRunner) Run(ctx *Context, dir, command string) error {
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	return cmd.Run()
}

// CredentialRunner starts the helper as an unprivileged uid/gid. Used
// when the daemon itself runs privileged: the child process never
// executes helper code with the daemon's credentials.
type CredentialRunner struct {
	UID uint32
	GID uint32
}

// Run hands the temp files to the target user, then executes the
// command in a child process holding only that user's credentials. The
// credential transition happens before exec; a failure to transition
// aborts the child.
func (r CredentialRunner) Run(ctx *Context, dir, command string) error {
	if err := ctx.Chown(int(r.UID), int(r.GID)); err != nil {
		return err
	}
	cmd := exec.Command("/bin/sh", "-c", command)
	cmd.Dir = dir
	cmd.SysProcAttr = sysProcCredential(r.UID, r.GID)
	return cmd.Run()
}

// Sandbox locates method helpers and maps their exit status onto the
// dispatch result taxonomy.
type Sandbox struct {
	dataDir string
	runner  Runner
}

// New creates a sandbox rooted at the given data directory.
func New(dataDir string, runner Runner) *Sandbox {
	if runner == nil {
		runner = PlainRunner{}
	}
	return &Sandbox{dataDir: dataDir, runner: runner}
}

// HelperPath returns the helper program location for a method UUID.
func (s *Sandbox) HelperPath(methodID string) string {
	return filepath.Join(s.dataDir, "global_alert_methods", methodID, helperName)
}

// RunHelper writes the report (and optional extra content) into a
// fresh temp context, runs the method helper with the given argument
// string, and returns the mapped result code plus any diagnostic the
// helper left in its error file. The temp directory is gone by the
// time RunHelper returns, on every path.
//
// Helper contract: exit 0 is success, exit 2 is a structured failure
// with the diagnostic on stderr (redirected to the error file), any
// other status is an unstructured failure.
func (s *Sandbox) RunHelper(methodID, args, reportFilename string, report, extra []byte) (models.Code, string) {
	ctx, err := NewContext(reportFilename, report, extra)
	if err != nil {
		logger.Errorf("Helper setup failed: %v", err)
		return models.ErrInternal, ""
	}
	defer ctx.Close()

	helper := s.HelperPath(methodID)
	if _, err := os.Stat(helper); err != nil {
		logger.Errorf("Alert helper missing or unreadable: %s: %v", helper, err)
		return models.ErrInternal, ""
	}

	if ctx.ExtraPath != "" {
		args += " " + ShellQuote(ctx.ExtraPath)
	}
	return s.execHelper(ctx, helper, args)
}

// execHelper runs one assembled helper invocation and maps its exit
// status onto the result taxonomy.
func (s *Sandbox) execHelper(ctx *Context, helper, args string) (models.Code, string) {
	command := ShellQuote(helper) + " " + args +
		" " + ShellQuote(ctx.ReportPath) +
		" > /dev/null 2> " + ShellQuote(ctx.ErrorPath)

	logger.Debugf("Running alert helper: %s", command)

	err := s.runner.Run(ctx, filepath.Dir(helper), command)
	if err == nil {
		return models.OK, ""
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
		message := ctx.ErrorMessage()
		if message == "" {
			message = fmt.Sprintf("Exited with code %d.", exitErr.ExitCode())
		}
		logger.Warnf("Alert helper reported failure: %s", message)
		return models.ErrScriptFailed, message
	}

	logger.Errorf("Alert helper failed: %v", err)
	return models.ErrInternal, ""
}

// RunCustom is RunHelper for methods needing more than one side file.
// The build callback may write additional files into ctx.Dir and
// returns the argument string; the report path is appended after it.
func (s *Sandbox) RunCustom(methodID, reportFilename string, report []byte, build func(ctx *Context) (string, error)) (models.Code, string) {
	ctx, err := NewContext(reportFilename, report, nil)
	if err != nil {
		logger.Errorf("Helper setup failed: %v", err)
		return models.ErrInternal, ""
	}
	defer ctx.Close()

	helper := s.HelperPath(methodID)
	if _, err := os.Stat(helper); err != nil {
		logger.Errorf("Alert helper missing or unreadable: %s: %v", helper, err)
		return models.ErrInternal, ""
	}

	args, err := build(ctx)
	if err != nil {
		logger.Errorf("Helper argument setup failed: %v", err)
		return models.ErrInternal, ""
	}

	return s.execHelper(ctx, helper, args)
}

// ShellQuote wraps a string in single quotes for safe use on a shell
// command line.
func ShellQuote(s string) string {
	return "'" + strings.ReplaceAll(s, "'", `'\''`) + "'"
}
