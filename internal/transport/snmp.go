package transport

import (
	"strings"

	"vulnalert/internal/sandbox"
	"vulnalert/internal/template"
	"vulnalert/pkg/models"
)

// SNMPHandler sends a trap through the SNMP helper.
type SNMPHandler struct {
	subject *template.Renderer
}

// NewSNMPHandler creates the SNMP handler.
func NewSNMPHandler() *SNMPHandler {
	return &SNMPHandler{subject: template.NewSubjectRenderer()}
}

// Kind returns MethodSNMP.
func (h *SNMPHandler) Kind() models.MethodKind { return models.MethodSNMP }

// Dispatch builds the trap message and runs the helper.
func (h *SNMPHandler) Dispatch(ctx *Context) models.DispatchResult {
	community := ctx.MethodData("snmp_community")
	if community == "" {
		community = "public"
	}
	agent := ctx.MethodData("snmp_agent")
	if agent == "" {
		agent = "localhost"
	}

	message := ctx.Event.Description()
	if tmpl := ctx.MethodData("snmp_message"); tmpl != "" {
		message = h.subject.Expand(tmpl, &template.Context{
			Event:      ctx.Event,
			Alert:      ctx.Alert,
			Task:       ctx.Task,
			Actor:      ctx.Actor,
			TotalCount: ctx.TotalCount,
		})
	}

	args := strings.Join([]string{
		sandbox.ShellQuote(community),
		sandbox.ShellQuote(agent),
		sandbox.ShellQuote(message),
	}, " ")

	result, scriptMessage := ctx.Sandbox.RunHelper(SNMPMethodID, args, "report", nil, nil)
	return models.DispatchResult{Code: result, Message: scriptMessage}
}
