package transport

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"vulnalert/internal/sandbox"
	"vulnalert/pkg/models"
)

// tippingPointCACert trusts the SMS appliance's certificate chain; it
// is installed into the sandbox for every upload.
const tippingPointCACertFile = "tp_sms_cert.pem"

// TippingPointHandler converts an XML report and uploads it to a
// TippingPoint SMS via the report-converter helper.
type TippingPointHandler struct {
	// CACert is the PEM chain written next to the auth file.
	CACert string
}

// NewTippingPointHandler creates the TippingPoint handler.
func NewTippingPointHandler(caCert string) *TippingPointHandler {
	return &TippingPointHandler{CACert: caCert}
}

// Kind returns MethodTippingPoint.
func (h *TippingPointHandler) Kind() models.MethodKind { return models.MethodTippingPoint }

// Dispatch resolves content and credential and runs the helper.
func (h *TippingPointHandler) Dispatch(ctx *Context) models.DispatchResult {
	cred, code := ctx.Credential("tp_sms_credential")
	if code != models.OK {
		return models.NewResult(code)
	}

	hostname := ctx.MethodData("tp_sms_hostname")
	if hostname == "" {
		return models.NewResult(models.ErrInternal)
	}
	// Some SMS versions present a certificate whose subject does not
	// match the hostname; the helper gets an explicit workaround flag.
	tlsWorkaround := ctx.MethodDataInt("tp_sms_tls_workaround", 0)

	content, code := ctx.Content.ResolveContent(ContentRequest{
		FormatParamName: "tp_sms_report_format",
		FallbackFormat:  XMLReportFormatID,
		ConfigParamName: "tp_sms_report_config",
	})
	if code != models.OK {
		return models.NewResult(code)
	}

	filename := reportFilename(ctx.Report, content.Rendered.Extension)
	result, message := ctx.Sandbox.RunCustom(TippingPointMethodID, filename, content.Rendered.Content,
		func(sctx *sandbox.Context) (string, error) {
			authPath := filepath.Join(sctx.Dir, "auth")
			auth := fmt.Sprintf("%s\n%s\n", cred.Login, cred.Password)
			if err := os.WriteFile(authPath, []byte(auth), 0600); err != nil {
				return "", fmt.Errorf("write auth file: %w", err)
			}
			certPath := filepath.Join(sctx.Dir, tippingPointCACertFile)
			if err := os.WriteFile(certPath, []byte(h.CACert), 0600); err != nil {
				return "", fmt.Errorf("write CA certificate: %w", err)
			}
			return strings.Join([]string{
				sandbox.ShellQuote(hostname),
				sandbox.ShellQuote(authPath),
				sandbox.ShellQuote(certPath),
				sandbox.ShellQuote(fmt.Sprintf("%d", tlsWorkaround)),
			}, " "), nil
		})
	return models.DispatchResult{Code: result, Message: message}
}
