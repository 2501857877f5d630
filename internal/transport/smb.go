package transport

import (
	"fmt"
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/internal/sandbox"
	"vulnalert/pkg/models"
)

// SMBHandler writes report content to an SMB share via the smbclient
// helper. Username and password go into an auth file in the sandbox so
// they never appear in a process listing.
type SMBHandler struct{}

// NewSMBHandler creates the SMB handler.
func NewSMBHandler() *SMBHandler { return &SMBHandler{} }

// Kind returns MethodSMB.
func (h *SMBHandler) Kind() models.MethodKind { return models.MethodSMB }

// Dispatch resolves credential and content and runs the helper.
func (h *SMBHandler) Dispatch(ctx *Context) models.DispatchResult {
	cred, code := ctx.Credential("smb_credential")
	if code != models.OK {
		return models.NewResult(code)
	}

	sharePath := ctx.MethodData("smb_share_path")
	if sharePath == "" {
		logger.Warnf("Alert %s: SMB method without smb_share_path", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}
	filePath := ctx.MethodData("smb_file_path")
	maxProtocol := ctx.MethodData("smb_max_protocol")

	content, code := ctx.Content.ResolveContent(ContentRequest{
		FormatParamName: "smb_report_format",
		FallbackFormat:  XMLReportFormatID,
		ConfigParamName: "smb_report_config",
	})
	if code != models.OK {
		return models.NewResult(code)
	}

	filename := reportFilename(ctx.Report, content.Rendered.Extension)
	// A trailing separator means "directory": deliver under the
	// generated report filename.
	if filePath == "" || strings.HasSuffix(filePath, "/") || strings.HasSuffix(filePath, "\\") {
		filePath += filename
	}

	authFile := fmt.Sprintf("username = %s\npassword = %s\n", cred.Login, cred.Password)

	args := strings.Join([]string{
		sandbox.ShellQuote(sharePath),
		sandbox.ShellQuote(filePath),
		sandbox.ShellQuote(maxProtocol),
	}, " ")

	result, message := ctx.Sandbox.RunHelper(SMBMethodID, args, filename, content.Rendered.Content, []byte(authFile))
	return models.DispatchResult{Code: result, Message: message}
}
