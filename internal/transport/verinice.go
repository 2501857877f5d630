package transport

import (
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/internal/sandbox"
	"vulnalert/pkg/models"
)

// VeriniceHandler posts a "Verinice ISM" report archive to a
// verinice.PRO server via the verinice helper.
type VeriniceHandler struct{}

// NewVeriniceHandler creates the verinice handler.
func NewVeriniceHandler() *VeriniceHandler { return &VeriniceHandler{} }

// Kind returns MethodVerinice.
func (h *VeriniceHandler) Kind() models.MethodKind { return models.MethodVerinice }

// Dispatch resolves content and credential and runs the helper.
func (h *VeriniceHandler) Dispatch(ctx *Context) models.DispatchResult {
	cred, code := ctx.Credential("verinice_server_credential")
	if code != models.OK {
		return models.NewResult(code)
	}

	serverURL := ctx.MethodData("verinice_server_url")
	if serverURL == "" {
		logger.Warnf("Alert %s: verinice method without verinice_server_url", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}

	content, code := ctx.Content.ResolveContent(ContentRequest{
		FormatParamName: "verinice_server_report_format",
		LookupName:      "Verinice ISM",
		ConfigParamName: "verinice_server_report_config",
	})
	if code != models.OK {
		return models.NewResult(code)
	}

	filename := reportFilename(ctx.Report, content.Rendered.Extension)
	args := strings.Join([]string{
		sandbox.ShellQuote(serverURL),
		sandbox.ShellQuote(cred.Login),
	}, " ")

	// The password rides in the extra file.
	result, message := ctx.Sandbox.RunHelper(VeriniceMethodID, args, filename,
		content.Rendered.Content, []byte(cred.Password))
	return models.DispatchResult{Code: result, Message: message}
}
