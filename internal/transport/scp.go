package transport

import (
	"fmt"
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

// SCPHandler copies report content to user@host:path through the SCP
// helper. The credential's password or private key travels in the
// sandbox extra file, never on the command line.
type SCPHandler struct {
	path *template.Renderer
}

// NewSCPHandler creates the SCP handler.
func NewSCPHandler() *SCPHandler {
	return &SCPHandler{path: template.NewSCPPathRenderer()}
}

// Kind returns MethodSCP.
func (h *SCPHandler) Kind() models.MethodKind { return models.MethodSCP }

// Dispatch resolves credential and content and runs the helper.
func (h *SCPHandler) Dispatch(ctx *Context) models.DispatchResult {
	cred, code := ctx.Credential("scp_credential")
	if code != models.OK {
		return models.NewResult(code)
	}

	host := ctx.MethodData("scp_host")
	if host == "" {
		logger.Warnf("Alert %s: SCP method without scp_host", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}
	port := ctx.MethodDataInt("scp_port", 22)
	knownHosts := ctx.MethodData("scp_known_hosts")

	destPath := h.path.Expand(ctx.MethodData("scp_path"), &template.Context{
		Event: ctx.Event,
		Alert: ctx.Alert,
		Task:  ctx.Task,
	})
	if destPath == "" {
		destPath = "report.txt"
	}

	var report []byte
	filename := "report"
	if ctx.Event.Kind.IsSecInfo() {
		report = []byte(secInfoNotice(ctx))
	} else {
		content, code := ctx.Content.ResolveContent(ContentRequest{
			FormatParamName: "scp_report_format",
			FallbackFormat:  TXTReportFormatID,
			ConfigParamName: "scp_report_config",
		})
		if code != models.OK {
			return models.NewResult(code)
		}
		report = content.Rendered.Content
		filename = reportFilename(ctx.Report, content.Rendered.Extension)
	}

	// Password-based logins get the password in the extra file; key
	// logins get the private key. The helper tells them apart by the
	// auth-mode argument.
	authMode := "password"
	secret := cred.Password
	if cred.PrivateKey != "" {
		authMode = "key"
		secret = cred.PrivateKey
	}

	args := strings.Join([]string{
		sandbox.ShellQuote(authMode),
		sandbox.ShellQuote(cred.Login),
		sandbox.ShellQuote(host),
		sandbox.ShellQuote(fmt.Sprintf("%d", port)),
		sandbox.ShellQuote(destPath),
		sandbox.ShellQuote(knownHosts),
	}, " ")

	result, message := ctx.Sandbox.RunHelper(SCPMethodID, args, filename, report, []byte(secret))
	return models.DispatchResult{Code: result, Message: message}
}

// secInfoNotice is the text sent in place of a report for SecInfo
// events.
func secInfoNotice(ctx *Context) string {
	return fmt.Sprintf("%s: %s\n", ctx.Event.Kind, ctx.Event.Description())
}
