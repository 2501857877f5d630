package transport

import (
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/internal/sandbox"
	"vulnalert/pkg/models"
)

// SendHandler streams report content to a raw host:port TCP endpoint
// through the send helper.
type SendHandler struct{}

// NewSendHandler creates the send handler.
func NewSendHandler() *SendHandler { return &SendHandler{} }

// Kind returns MethodSend.
func (h *SendHandler) Kind() models.MethodKind { return models.MethodSend }

// Dispatch resolves content and runs the helper.
func (h *SendHandler) Dispatch(ctx *Context) models.DispatchResult {
	host := ctx.MethodData("send_host")
	port := ctx.MethodData("send_port")
	if host == "" || port == "" {
		logger.Warnf("Alert %s: send method needs send_host and send_port", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}

	var report []byte
	filename := "report"
	if ctx.Event.Kind.IsSecInfo() {
		report = []byte(secInfoNotice(ctx))
	} else {
		content, code := ctx.Content.ResolveContent(ContentRequest{
			FormatParamName: "send_report_format",
			FallbackFormat:  XMLReportFormatID,
			ConfigParamName: "send_report_config",
		})
		if code != models.OK {
			return models.NewResult(code)
		}
		report = content.Rendered.Content
		filename = reportFilename(ctx.Report, content.Rendered.Extension)
	}

	args := strings.Join([]string{
		sandbox.ShellQuote(host),
		sandbox.ShellQuote(port),
	}, " ")

	result, message := ctx.Sandbox.RunHelper(SendMethodID, args, filename, report, nil)
	return models.DispatchResult{Code: result, Message: message}
}
