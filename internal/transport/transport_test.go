package transport

import (
	"os"
	"path/filepath"
	"strings"
	"testing"

	"vulnalert/internal/mailer"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

type fakeResolver struct {
	content *Content
	code    models.Code
	lastReq ContentRequest
}

func (f *fakeResolver) ResolveContent(req ContentRequest) (*Content, models.Code) {
	f.lastReq = req
	if f.code != models.OK {
		return nil, f.code
	}
	return f.content, models.OK
}

func textContent(body string) *Content {
	return &Content{
		Rendered: &render.Rendered{
			Content:     []byte(body),
			Extension:   "txt",
			ContentType: "text/plain",
		},
		Format: &models.ReportFormat{ID: TXTReportFormatID, Name: "TXT", Extension: "txt", ContentType: "text/plain"},
	}
}

func testContext(t *testing.T, method models.MethodKind, methodData map[string]string) (*Context, *store.Memory) {
	t.Helper()
	m := store.NewMemory()
	ctx := &Context{
		Actor: models.Actor{Username: "alice"},
		Alert: &models.Alert{
			ID:         "alert-1",
			Name:       "Nightly escalation",
			Owner:      "alice",
			Event:      models.EventTaskRunStatusChanged,
			Condition:  models.ConditionAlways,
			Method:     method,
			MethodData: methodData,
			Active:     true,
		},
		Task:    &models.Task{ID: "task-1", Name: "Weekly scan", Owner: "alice"},
		Report:  &models.Report{ID: "report-1", TaskID: "task-1"},
		Event:   models.Event{Kind: models.EventTaskRunStatusChanged, Status: models.StatusDone},
		Content: &fakeResolver{content: textContent("report body\n")},
		Stores:  m.Stores(store.LogAudit{}),
	}
	return ctx, m
}

type recordedMail struct {
	from, to, subject, body string
	attachment              *mailer.Attachment
	recipient               *models.Credential
}

type fakeSender struct {
	sent          []recordedMail
	maxAttachment int
	maxInclude    int
	err           error
}

func (f *fakeSender) Send(from, to, subject, body string, attachment *mailer.Attachment, recipient *models.Credential) error {
	f.sent = append(f.sent, recordedMail{from, to, subject, body, attachment, recipient})
	return f.err
}

func (f *fakeSender) MaxIncludeSize() int    { return f.maxInclude }
func (f *fakeSender) MaxAttachmentSize() int { return f.maxAttachment }

func newTestEmailHandler(sender mailSender) *EmailHandler {
	return &EmailHandler{
		mailer:  sender,
		subject: template.NewSubjectRenderer(),
		message: template.NewMessageRenderer(),
	}
}

func TestRegistryRejectsTicketEventsOffEmail(t *testing.T) {
	r := NewRegistry(NewSyslogHandler())
	ctx, _ := testContext(t, models.MethodSyslog, nil)
	ctx.Event = models.Event{Kind: models.EventTicketReceived}
	ctx.Alert.Event = models.EventTicketReceived

	result := r.Dispatch(ctx)
	if result.Code != models.ErrInternal {
		t.Fatalf("expected -1 for ticket event over syslog, got %d", result.Code)
	}
}

func TestRegistryRejectsSecInfoEventsOnIncapableMethods(t *testing.T) {
	h := NewSyslogHandler()
	h.Emit = func(facility, message string) error { return nil }
	r := NewRegistry(h)
	ctx, _ := testContext(t, models.MethodSyslog, nil)
	ctx.Event = models.Event{Kind: models.EventNewSecInfo, SecInfoType: "nvt", SecInfoCount: 2}
	ctx.Alert.Event = models.EventNewSecInfo

	result := r.Dispatch(ctx)
	if result.Code != models.ErrInternal {
		t.Fatalf("expected -1 for SecInfo event over syslog, got %d", result.Code)
	}
}

func TestRegistryUnknownMethod(t *testing.T) {
	r := NewRegistry()
	ctx, _ := testContext(t, models.MethodSyslog, nil)
	if result := r.Dispatch(ctx); result.Code != models.ErrInternal {
		t.Fatalf("expected -1 without a handler, got %d", result.Code)
	}
}

func TestSyslogWritesEventLine(t *testing.T) {
	var gotFacility, gotMessage string
	h := NewSyslogHandler()
	h.Emit = func(facility, message string) error {
		gotFacility = facility
		gotMessage = message
		return nil
	}

	ctx, _ := testContext(t, models.MethodSyslog, map[string]string{"submethod": "daemon"})
	result := NewRegistry(h).Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	if gotFacility != "daemon" {
		t.Fatalf("expected facility daemon, got %q", gotFacility)
	}
	want := "Task run status changed: Task status changed to 'Done'"
	if gotMessage != want {
		t.Fatalf("got %q, want %q", gotMessage, want)
	}
}

func TestEmailSimpleNotice(t *testing.T) {
	sender := &fakeSender{maxAttachment: 1048576, maxInclude: 20000}
	h := newTestEmailHandler(sender)

	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address":   "soc@example.com",
		"from_address": "scanner@example.com",
	})
	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	if len(sender.sent) != 1 {
		t.Fatalf("expected 1 mail, got %d", len(sender.sent))
	}
	mail := sender.sent[0]
	if mail.to != "soc@example.com" || mail.from != "scanner@example.com" {
		t.Fatalf("unexpected addressing: %+v", mail)
	}
	if !strings.Contains(mail.subject, "Task 'Weekly scan'") {
		t.Fatalf("unexpected subject %q", mail.subject)
	}
	if mail.attachment != nil {
		t.Fatalf("simple notice must not attach a report")
	}
}

func TestEmailMissingToAddress(t *testing.T) {
	h := newTestEmailHandler(&fakeSender{})
	ctx, _ := testContext(t, models.MethodEmail, nil)
	if result := h.Dispatch(ctx); result.Code != models.ErrInternal {
		t.Fatalf("expected -1 without to_address, got %d", result.Code)
	}
}

func TestEmailAttachmentWithinLimit(t *testing.T) {
	sender := &fakeSender{maxAttachment: 100, maxInclude: 20000}
	h := newTestEmailHandler(sender)

	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address": "soc@example.com",
		"notice":     "2",
	})
	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	mail := sender.sent[0]
	if mail.attachment == nil {
		t.Fatalf("expected the report to be attached")
	}
	if mail.attachment.Filename != "report-report-1.txt" {
		t.Fatalf("unexpected attachment filename %q", mail.attachment.Filename)
	}
	if strings.Contains(mail.body, "exceeded the maximum attachment size") {
		t.Fatalf("unexpected dropped-attachment note")
	}
}

func TestEmailOversizedAttachmentDroppedWithNote(t *testing.T) {
	sender := &fakeSender{maxAttachment: 4, maxInclude: 20000}
	h := newTestEmailHandler(sender)

	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address": "soc@example.com",
		"notice":     "2",
	})
	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0 even with an oversized report, got %d", result.Code)
	}
	mail := sender.sent[0]
	if mail.attachment != nil {
		t.Fatalf("expected the oversized report to be dropped")
	}
	if !strings.Contains(mail.body, "exceeded the maximum attachment size") {
		t.Fatalf("expected a dropped-attachment note in body %q", mail.body)
	}
}

func TestEmailIncludeTruncatesReport(t *testing.T) {
	sender := &fakeSender{maxAttachment: 1048576, maxInclude: 10}
	h := newTestEmailHandler(sender)

	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address": "soc@example.com",
		"notice":     "0",
	})
	ctx.Content = &fakeResolver{content: textContent(strings.Repeat("a", 50))}

	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	body := sender.sent[0].body
	if !strings.Contains(body, template.TruncationNotice(10)) {
		t.Fatalf("expected truncation notice in body %q", body)
	}
	if strings.Contains(body, strings.Repeat("a", 11)) {
		t.Fatalf("expected report cut at 10 characters")
	}
}

func TestEmailSecInfoEventForcesSimpleNotice(t *testing.T) {
	sender := &fakeSender{maxAttachment: 1048576, maxInclude: 20000}
	h := newTestEmailHandler(sender)

	resolver := &fakeResolver{content: textContent("x")}
	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address": "soc@example.com",
		"notice":     "2",
	})
	ctx.Alert.Event = models.EventNewSecInfo
	ctx.Event = models.Event{Kind: models.EventNewSecInfo, SecInfoType: "cve", SecInfoCount: 3}
	ctx.Content = resolver

	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	if resolver.lastReq != (ContentRequest{}) {
		t.Fatalf("expected no content resolution for a SecInfo event")
	}
	if sender.sent[0].attachment != nil {
		t.Fatalf("expected no attachment for a SecInfo event")
	}
}

func TestEmailTicketEventNamesTicket(t *testing.T) {
	sender := &fakeSender{maxAttachment: 1048576, maxInclude: 20000}
	h := newTestEmailHandler(sender)

	resolver := &fakeResolver{content: textContent("x")}
	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address": "soc@example.com",
		"notice":     "2",
	})
	ctx.Alert.Event = models.EventTicketReceived
	ctx.Event = models.Event{
		Kind:   models.EventTicketReceived,
		Ticket: &models.Ticket{ID: "ticket-1", Name: "Fix TLS on web-1", Owner: "bob"},
	}
	ctx.Content = resolver

	result := h.Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	mail := sender.sent[0]
	if mail.subject != "[Scan Alert] Ticket 'Fix TLS on web-1' received" {
		t.Fatalf("unexpected subject %q", mail.subject)
	}
	if !strings.Contains(mail.body, "Ticket 'Fix TLS on web-1' received") {
		t.Fatalf("expected the ticket name in body %q", mail.body)
	}
	if resolver.lastReq != (ContentRequest{}) {
		t.Fatalf("expected no content resolution for a ticket event")
	}
	if mail.attachment != nil {
		t.Fatalf("expected no attachment for a ticket event")
	}
}

func TestEmailUnresolvableRecipientCredential(t *testing.T) {
	h := newTestEmailHandler(&fakeSender{})
	ctx, _ := testContext(t, models.MethodEmail, map[string]string{
		"to_address":           "soc@example.com",
		"recipient_credential": "cred-missing",
	})
	if result := h.Dispatch(ctx); result.Code != models.ErrCredential {
		t.Fatalf("expected -4 for an unresolvable credential, got %d", result.Code)
	}
}

func TestSCPHandlerRunsHelperWithQuotedArgs(t *testing.T) {
	dataDir := t.TempDir()
	record := filepath.Join(t.TempDir(), "record")
	t.Setenv("HELPER_RECORD", record)
	helperDir := filepath.Join(dataDir, "global_alert_methods", SCPMethodID)
	if err := os.MkdirAll(helperDir, 0755); err != nil {
		t.Fatalf("mkdir: %v", err)
	}
	script := "#!/bin/sh\nprintf '%s\\n' \"$@\" > \"$HELPER_RECORD\"\nexit 0\n"
	if err := os.WriteFile(filepath.Join(helperDir, "alert"), []byte(script), 0755); err != nil {
		t.Fatalf("write helper: %v", err)
	}

	ctx, m := testContext(t, models.MethodSCP, map[string]string{
		"scp_credential": "cred-1",
		"scp_host":       "files.example.com",
		"scp_path":       "/reports/$n.txt",
	})
	m.Credentials["cred-1"] = &models.Credential{
		ID: "cred-1", Type: models.CredentialUserPass, Login: "scpuser", Password: "hunter2",
	}
	ctx.Sandbox = sandbox.New(dataDir, sandbox.PlainRunner{})

	result := NewSCPHandler().Dispatch(ctx)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d (%s)", result.Code, result.Message)
	}

	raw, err := os.ReadFile(record)
	if err != nil {
		t.Fatalf("read record: %v", err)
	}
	// auth-mode login host port path known-hosts secret-file report-file
	args := strings.Split(strings.TrimRight(string(raw), "\n"), "\n")
	if len(args) != 8 {
		t.Fatalf("expected 8 helper arguments, got %d: %q", len(args), args)
	}
	if args[0] != "password" || args[1] != "scpuser" || args[2] != "files.example.com" || args[3] != "22" {
		t.Fatalf("unexpected helper arguments: %q", args)
	}
	if args[4] != "/reports/Weekly scan.txt" {
		t.Fatalf("unexpected destination path %q", args[4])
	}
}

func TestSCPHandlerMissingCredential(t *testing.T) {
	ctx, _ := testContext(t, models.MethodSCP, map[string]string{"scp_host": "files.example.com"})
	if result := NewSCPHandler().Dispatch(ctx); result.Code != models.ErrCredential {
		t.Fatalf("expected -4, got %d", result.Code)
	}
}

func TestContentResolutionFailurePropagates(t *testing.T) {
	ctx, m := testContext(t, models.MethodSCP, map[string]string{
		"scp_credential": "cred-1",
		"scp_host":       "files.example.com",
	})
	m.Credentials["cred-1"] = &models.Credential{ID: "cred-1", Type: models.CredentialUserPass, Login: "u", Password: "p"}
	ctx.Content = &fakeResolver{code: models.ErrReportFormat}

	if result := NewSCPHandler().Dispatch(ctx); result.Code != models.ErrReportFormat {
		t.Fatalf("expected -2, got %d", result.Code)
	}
}
