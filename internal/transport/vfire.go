package transport

import (
	"encoding/xml"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"sort"
	"strings"

	"vulnalert/internal/logger"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

// vfireCallPrefix marks method-data keys that become call input fields.
const vfireCallPrefix = "vfire_call_"

// vfireCall is the alert_data document handed to the vFire helper.
type vfireCall struct {
	XMLName     xml.Name          `xml:"alert_data"`
	BaseURL     string            `xml:"base_url"`
	ClientID    string            `xml:"client_id"`
	SessionType string            `xml:"session_type"`
	Username    string            `xml:"username"`
	Password    string            `xml:"password"`
	Inputs      []vfireInput      `xml:"call_input"`
	Attachments []vfireAttachment `xml:"attachment"`
}

type vfireInput struct {
	Name  string `xml:"name,attr"`
	Value string `xml:",chardata"`
}

// vfireAttachment is one report produced for the call, by format.
type vfireAttachment struct {
	LocalPath      string `xml:"local_path"`
	RemoteFilename string `xml:"remote_filename"`
	ContentType    string `xml:"content_type"`
	FormatName     string `xml:"report_format"`
}

// VfireHandler creates an Alemba vFire call carrying one report
// attachment per configured report format. The helper reads the
// alert_data file passed as its single argument and reports through
// stdout, so it runs outside the shared sandbox command line.
type VfireHandler struct {
	description *template.Renderer
}

// NewVfireHandler creates the vFire handler.
func NewVfireHandler() *VfireHandler {
	return &VfireHandler{description: template.NewMessageRenderer()}
}

// Kind returns MethodVfire.
func (h *VfireHandler) Kind() models.MethodKind { return models.MethodVfire }

// Dispatch generates the attachments and the call document and execs
// the helper.
func (h *VfireHandler) Dispatch(ctx *Context) models.DispatchResult {
	baseURL := ctx.MethodData("vfire_base_url")
	if baseURL == "" {
		logger.Warnf("Alert %s: vFire method without vfire_base_url", ctx.Alert.ID)
		return models.NewResult(models.ErrInternal)
	}
	clientID := ctx.MethodData("vfire_client_id")
	sessionType := ctx.MethodData("vfire_session_type")
	if sessionType == "" {
		sessionType = "Analyst"
	}

	cred, code := ctx.Credential("vfire_credential")
	if code != models.OK {
		return models.NewResult(code)
	}

	dir, err := os.MkdirTemp("", "vulnalert-vfire-")
	if err != nil {
		logger.Errorf("Alert %s: vFire temp setup failed: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	defer os.RemoveAll(dir)

	attachments, code := h.generateAttachments(ctx, dir)
	if code != models.OK {
		return models.NewResult(code)
	}

	call := vfireCall{
		BaseURL:     baseURL,
		ClientID:    clientID,
		SessionType: sessionType,
		Username:    cred.Login,
		Password:    cred.Password,
		Inputs:      h.callInputs(ctx),
		Attachments: attachments,
	}

	doc, err := xml.MarshalIndent(call, "", "  ")
	if err != nil {
		logger.Errorf("Alert %s: vFire call encoding failed: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	callPath := filepath.Join(dir, "alert_data.xml")
	if err := os.WriteFile(callPath, doc, 0600); err != nil {
		logger.Errorf("Alert %s: write vFire call file: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}

	helper := ctx.Sandbox.HelperPath(VfireMethodID)
	if _, err := os.Stat(helper); err != nil {
		logger.Errorf("Alert %s: vFire helper missing: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}

	cmd := exec.Command(helper, callPath)
	cmd.Dir = filepath.Dir(helper)
	out, err := cmd.CombinedOutput()
	if err == nil {
		return models.NewResult(models.OK)
	}

	var exitErr *exec.ExitError
	if errors.As(err, &exitErr) && exitErr.ExitCode() == 2 {
		message := strings.TrimSpace(string(out))
		if message == "" {
			message = fmt.Sprintf("Exited with code %d.", exitErr.ExitCode())
		}
		return models.DispatchResult{Code: models.ErrScriptFailed, Message: message}
	}
	logger.Errorf("Alert %s: vFire helper failed: %v: %s", ctx.Alert.ID, err, strings.TrimSpace(string(out)))
	return models.NewResult(models.ErrInternal)
}

// generateAttachments renders one report per configured format into
// the call's temp directory.
func (h *VfireHandler) generateAttachments(ctx *Context, dir string) ([]vfireAttachment, models.Code) {
	formatIDs := strings.Split(ctx.MethodData("report_formats"), ",")
	var attachments []vfireAttachment
	for i, raw := range formatIDs {
		formatID := strings.TrimSpace(raw)
		if formatID == "" {
			continue
		}
		content, code := ctx.Content.ResolveContent(ContentRequest{FormatID: formatID})
		if code != models.OK {
			return nil, code
		}
		local := filepath.Join(dir, fmt.Sprintf("report-%d.%s", i, content.Rendered.Extension))
		if err := os.WriteFile(local, content.Rendered.Content, 0600); err != nil {
			logger.Errorf("Alert %s: write vFire attachment: %v", ctx.Alert.ID, err)
			return nil, models.ErrInternal
		}
		attachments = append(attachments, vfireAttachment{
			LocalPath:      local,
			RemoteFilename: reportFilename(ctx.Report, content.Rendered.Extension),
			ContentType:    content.Rendered.ContentType,
			FormatName:     content.Format.Name,
		})
	}
	return attachments, models.OK
}

// callInputs collects the free-form vfire_call_* fields, with the
// description expanded through the message template.
func (h *VfireHandler) callInputs(ctx *Context) []vfireInput {
	tctx := &template.Context{
		Event:      ctx.Event,
		Alert:      ctx.Alert,
		Task:       ctx.Task,
		Actor:      ctx.Actor,
		TotalCount: ctx.TotalCount,
	}

	keys := make([]string, 0, len(ctx.Alert.MethodData))
	for key := range ctx.Alert.MethodData {
		if strings.HasPrefix(key, vfireCallPrefix) {
			keys = append(keys, key)
		}
	}
	sort.Strings(keys)

	inputs := make([]vfireInput, 0, len(keys))
	for _, key := range keys {
		name := strings.TrimPrefix(key, vfireCallPrefix)
		value := ctx.Alert.MethodData[key]
		if name == "description" {
			value = h.description.Expand(value, tctx)
		}
		inputs = append(inputs, vfireInput{Name: name, Value: value})
	}
	return inputs
}
