package transport

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"

	"vulnalert/internal/logger"
	"vulnalert/internal/sandbox"
	"vulnalert/pkg/models"
)

// SourcefireHandler uploads a report to a Sourcefire Defense Center.
// The helper is invoked directly rather than through the shared
// sandbox command line: the Defense Center protocol needs the pkcs12
// bundle and password as raw files, not redirected descriptors.
type SourcefireHandler struct{}

// NewSourcefireHandler creates the Sourcefire handler.
func NewSourcefireHandler() *SourcefireHandler { return &SourcefireHandler{} }

// Kind returns MethodSourcefire.
func (h *SourcefireHandler) Kind() models.MethodKind { return models.MethodSourcefire }

// Dispatch resolves content and credentials and execs the helper.
func (h *SourcefireHandler) Dispatch(ctx *Context) models.DispatchResult {
	ip := ctx.MethodData("defense_center_ip")
	if ip == "" {
		logger.Warnf("Alert %s: Sourcefire method without defense_center_ip", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}
	port := ctx.MethodDataInt("defense_center_port", 8307)

	var pkcs12 []byte
	if encoded := ctx.MethodData("pkcs12"); encoded != "" {
		decoded, err := base64.StdEncoding.DecodeString(encoded)
		if err != nil {
			logger.Errorf("Alert %s: pkcs12 decode failed: %v", ctx.Alert.ID, err)
			return models.NewResult(models.ErrInternal)
		}
		pkcs12 = decoded
	}

	password := ""
	if ctx.MethodData("pkcs12_credential") != "" {
		cred, code := ctx.Credential("pkcs12_credential")
		if code != models.OK {
			return models.NewResult(code)
		}
		password = cred.Password
	}

	content, code := ctx.Content.ResolveContent(ContentRequest{LookupName: "Sourcefire"})
	if code != models.OK {
		return models.NewResult(code)
	}

	helper := ctx.Sandbox.HelperPath(SourcefireMethodID)
	if _, err := os.Stat(helper); err != nil {
		logger.Errorf("Alert %s: Sourcefire helper missing: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}

	sctx, err := sandbox.NewContext("report.csv", content.Rendered.Content, nil)
	if err != nil {
		logger.Errorf("Alert %s: Sourcefire temp setup failed: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	defer sctx.Close()

	pkcs12Path := filepath.Join(sctx.Dir, "pkcs12")
	if err := os.WriteFile(pkcs12Path, pkcs12, 0600); err != nil {
		logger.Errorf("Alert %s: write pkcs12: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	passwordPath := filepath.Join(sctx.Dir, "pkcs12_password")
	if err := os.WriteFile(passwordPath, []byte(password), 0600); err != nil {
		logger.Errorf("Alert %s: write pkcs12 password: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}

	errFile, err := os.OpenFile(sctx.ErrorPath, os.O_WRONLY|os.O_TRUNC, 0600)
	if err != nil {
		logger.Errorf("Alert %s: open error file: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	defer errFile.Close()

	cmd := exec.Command(helper, ip, fmt.Sprintf("%d", port), pkcs12Path, sctx.ReportPath, passwordPath)
	cmd.Dir = filepath.Dir(helper)
	cmd.Stderr = errFile
	err = cmd.Run()
	if err == nil {
		return models.NewResult(models.OK)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
		message := sctx.ErrorMessage()
		if message == "" {
			message = fmt.Sprintf("Exited with code %d.", exitErr.ExitCode())
		}
		return models.DispatchResult{Code: models.ErrScriptFailed, Message: message}
	}
	logger.Errorf("Alert %s: Sourcefire helper failed: %v", ctx.Alert.ID, err)
	return models.NewResult(models.ErrInternal)
}
