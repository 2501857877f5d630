package transport

import (
	"vulnalert/internal/logger"
	"vulnalert/internal/mailer"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

// TXTReportFormatID is the built-in plain-text report format, the
// fallback for inline and attached email reports.
const TXTReportFormatID = "a3810a62-1f62-11e1-9219-406186ea4fc5"

// Email notice modes stored in method data.
const (
	noticeSimple  = "1"
	noticeInclude = "0"
	noticeAttach  = "2"
)

const (
	defaultSubjectTask    = "[Scan Alert] Task '$n': $e"
	defaultSubjectSecInfo = "[Scan Alert] $T $q $S arrived"
	defaultSubjectTicket  = "[Scan Alert] $e"

	defaultMessageSimple = `After the event $e,
the following condition was met: $c

Full details are available on the scan management server.

$t
Note:
This email was sent to you as a configured security scan escalation.
Please contact your local system administrator if you think you
should not have received it.
`

	defaultMessageInclude = `After the event $e,
the following condition was met: $c

This email escalation is configured to apply report format '$r'.
Full details and other report formats are available on the scan
management server.

$t$i

Note:
This email was sent to you as a configured security scan escalation.
Please contact your local system administrator if you think you
should not have received it.
`

	defaultMessageAttach = `After the event $e,
the following condition was met: $c

This email escalation is configured to attach report format '$r'.
Full details and other report formats are available on the scan
management server.

$t

Note:
This email was sent to you as a configured security scan escalation.
Please contact your local system administrator if you think you
should not have received it.
`

	attachmentDroppedNote = "\nNote: the report exceeded the maximum attachment size and was omitted.\n"
)

// mailSender is the slice of *mailer.Mailer the handler uses.
type mailSender interface {
	Send(from, to, subject, body string, attachment *mailer.Attachment, recipient *models.Credential) error
	MaxIncludeSize() int
	MaxAttachmentSize() int
}

// EmailHandler delivers alerts by mail: a plain notice, an inlined
// report or an attached report, optionally encrypted for the
// recipient.
type EmailHandler struct {
	mailer  mailSender
	subject *template.Renderer
	message *template.Renderer
}

// NewEmailHandler creates the email handler.
func NewEmailHandler(m *mailer.Mailer) *EmailHandler {
	return &EmailHandler{
		mailer:  m,
		subject: template.NewSubjectRenderer(),
		message: template.NewMessageRenderer(),
	}
}

// Kind returns MethodEmail.
func (h *EmailHandler) Kind() models.MethodKind { return models.MethodEmail }

// Dispatch composes and sends the mail.
func (h *EmailHandler) Dispatch(ctx *Context) models.DispatchResult {
	to := ctx.MethodData("to_address")
	if to == "" {
		logger.Warnf("Alert %s: email method without to_address", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}
	from := ctx.MethodData("from_address")

	var recipient *models.Credential
	if ctx.MethodData("recipient_credential") != "" {
		cred, code := ctx.Credential("recipient_credential")
		if code != models.OK {
			return models.NewResult(code)
		}
		recipient = cred
	}

	notice := ctx.MethodData("notice")
	if notice == "" {
		notice = noticeSimple
	}
	// Report content only exists for task events.
	if ctx.Event.Kind != models.EventTaskRunStatusChanged {
		notice = noticeSimple
	}

	tctx := &template.Context{
		Event:      ctx.Event,
		Alert:      ctx.Alert,
		Task:       ctx.Task,
		Actor:      ctx.Actor,
		TotalCount: ctx.TotalCount,
	}
	if ctx.Filter != nil {
		tctx.FilterName = ctx.Filter.Name
		tctx.FilterTerm = ctx.Filter.Term
	} else {
		tctx.FilterTerm = ctx.Get.FilterTerm
	}

	var attachment *mailer.Attachment
	messageTemplate := defaultMessageSimple

	switch notice {
	case noticeInclude:
		content, code := ctx.Content.ResolveContent(ContentRequest{
			FormatParamName: "notice_report_format",
			FallbackFormat:  TXTReportFormatID,
			ConfigParamName: "notice_report_config",
		})
		if code != models.OK {
			return models.NewResult(code)
		}
		tctx.Report = string(content.Rendered.Content)
		tctx.MaxIncludeSize = h.mailer.MaxIncludeSize()
		tctx.FormatName = content.Format.Name
		tctx.Timezone = content.Rendered.Timezone
		tctx.HostSummary = content.Rendered.HostSummary
		messageTemplate = defaultMessageInclude
	case noticeAttach:
		content, code := ctx.Content.ResolveContent(ContentRequest{
			FormatParamName: "notice_attach_format",
			FallbackFormat:  TXTReportFormatID,
			ConfigParamName: "notice_attach_config",
		})
		if code != models.OK {
			return models.NewResult(code)
		}
		tctx.FormatName = content.Format.Name
		tctx.Timezone = content.Rendered.Timezone
		tctx.HostSummary = content.Rendered.HostSummary
		messageTemplate = defaultMessageAttach
		max := h.mailer.MaxAttachmentSize()
		if max < 0 || len(content.Rendered.Content) <= max {
			attachment = &mailer.Attachment{
				Filename:    reportFilename(ctx.Report, content.Rendered.Extension),
				ContentType: content.Rendered.ContentType,
				Content:     content.Rendered.Content,
			}
		}
	}

	subjectTemplate := ctx.MethodData("subject")
	if subjectTemplate == "" {
		switch {
		case ctx.Event.Kind.IsSecInfo():
			subjectTemplate = defaultSubjectSecInfo
		case ctx.Event.Kind.IsTicket():
			subjectTemplate = defaultSubjectTicket
		default:
			subjectTemplate = defaultSubjectTask
		}
	}
	if custom := ctx.MethodData("message"); custom != "" {
		messageTemplate = custom
	}

	subject := h.subject.Expand(subjectTemplate, tctx)
	body := h.message.Expand(messageTemplate, tctx)
	if notice == noticeAttach && attachment == nil {
		body += attachmentDroppedNote
	}

	if err := h.mailer.Send(from, to, subject, body, attachment, recipient); err != nil {
		logger.Errorf("Alert %s: email to %s failed: %v", ctx.Alert.ID, to, err)
		return models.NewResult(models.ErrInternal)
	}
	return models.NewResult(models.OK)
}
