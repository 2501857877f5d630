// Package transport delivers one triggered alert over its configured
// method. Each method kind has one Handler; the Registry maps method
// kinds to handlers so new transports slot in without touching
// dispatch. Several handlers delegate the network hop to an external
// helper program run in the script sandbox.
package transport

import (
	"fmt"
	"strconv"

	"vulnalert/internal/logger"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/pkg/models"
)

// Reserved helper directory UUIDs under
// <dataDir>/global_alert_methods/. One per helper-backed method.
const (
	SCPMethodID          = "b122a672-4c07-44e8-9bd1-8d9a5a7d35d8"
	SendMethodID         = "4e3cbd4c-5b0e-4c97-85a1-0be0f3c91f4e"
	SMBMethodID          = "9f9c8a62-05b1-44a8-ae05-2a56c7b5a1d2"
	SNMPMethodID         = "83d6e743-0bd0-45ba-a534-0f9ff6e2b5ce"
	SourcefireMethodID   = "c427a688-b653-40ab-a9d0-d6ba842a9d63"
	TippingPointMethodID = "5b39c481-9137-4876-aa3b-66a2ea2b4b0e"
	VeriniceMethodID     = "f9d97653-f89b-41af-9ba1-0f6ee00e9c1a"
	VfireMethodID        = "159f79a5-fce8-4ec5-aa49-7d17a77739a3"
)

// Built-in report format UUIDs used as fallbacks.
const (
	XMLReportFormatID = "a994b278-1f62-11e1-96ac-406186ea4fc5"
)

// Content is resolved report content with its resolution context.
type Content struct {
	Rendered *render.Rendered
	Format   *models.ReportFormat
	Filter   *models.Filter
}

// ContentRequest names how a handler wants its report content: which
// method-data key holds an explicit format UUID, which display name to
// try next, and which format to fall back to.
type ContentRequest struct {
	// FormatID is an explicit format UUID, bypassing the method-data
	// lookup (vFire resolves several formats per dispatch).
	FormatID        string
	FormatParamName string
	LookupName      string
	FallbackFormat  string
	ConfigParamName string
}

// ContentResolver renders report content for the dispatch in progress.
// Escalation binds it to the alert, task, report and filter at hand.
type ContentResolver interface {
	ResolveContent(req ContentRequest) (*Content, models.Code)
}

// Context carries one dispatch through a handler.
type Context struct {
	Actor  models.Actor
	Alert  *models.Alert
	Task   *models.Task
	Report *models.Report
	Event  models.Event

	Get              render.GetParams
	Filter           *models.Filter
	NotesDetails     bool
	OverridesDetails bool
	// TotalCount backs the $T template directive.
	TotalCount int

	Content ContentResolver
	Sandbox *sandbox.Sandbox
	Stores  store.Stores
}

// MethodData returns one method parameter of the alert.
func (c *Context) MethodData(key string) string {
	return c.Alert.Data("method", key)
}

// MethodDataInt parses one numeric method parameter.
func (c *Context) MethodDataInt(key string, fallback int) int {
	raw := c.MethodData(key)
	if raw == "" {
		return fallback
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		logger.Warnf("Alert %s: method data %s=%q is not a number", c.Alert.ID, key, raw)
		return fallback
	}
	return n
}

// Credential resolves the credential a method parameter points at.
func (c *Context) Credential(key string) (*models.Credential, models.Code) {
	id := c.MethodData(key)
	if id == "" {
		return nil, models.ErrCredential
	}
	cred, err := c.Stores.Credentials.FindWithPermission(id, c.Actor, "get_credentials")
	if err != nil {
		logger.Warnf("Alert %s: credential %s: %v", c.Alert.ID, id, err)
		return nil, models.ErrCredential
	}
	return cred, models.OK
}

// Handler delivers one alert over one method kind.
type Handler interface {
	Kind() models.MethodKind
	Dispatch(ctx *Context) models.DispatchResult
}

// Registry maps method kinds to handlers and enforces which event
// kinds each method accepts.
type Registry struct {
	handlers map[models.MethodKind]Handler
}

// NewRegistry builds a registry from handlers.
func NewRegistry(handlers ...Handler) *Registry {
	r := &Registry{handlers: make(map[models.MethodKind]Handler, len(handlers))}
	for _, h := range handlers {
		r.handlers[h.Kind()] = h
	}
	return r
}

// Register adds or replaces one handler.
func (r *Registry) Register(h Handler) {
	r.handlers[h.Kind()] = h
}

// Dispatch routes the context to its method's handler. Ticket events
// are only deliverable by email; SecInfo events only by email, SCP,
// Send and SNMP.
func (r *Registry) Dispatch(ctx *Context) models.DispatchResult {
	method := ctx.Alert.Method

	if ctx.Event.Kind.IsTicket() && method != models.MethodEmail {
		logger.Warnf("Alert %s: method %s does not support ticket events", ctx.Alert.ID, method)
		return models.NewResult(models.ErrInternal)
	}
	if ctx.Event.Kind.IsSecInfo() && !secInfoCapable(method) {
		logger.Warnf("Alert %s: method %s does not support SecInfo events", ctx.Alert.ID, method)
		return models.NewResult(models.ErrInternal)
	}

	h, ok := r.handlers[method]
	if !ok {
		logger.Errorf("Alert %s: no handler for method %s", ctx.Alert.ID, method)
		return models.NewResult(models.ErrInternal)
	}
	return h.Dispatch(ctx)
}

func secInfoCapable(method models.MethodKind) bool {
	switch method {
	case models.MethodEmail, models.MethodSCP, models.MethodSend, models.MethodSNMP:
		return true
	default:
		return false
	}
}

// reportFilename builds the name delivered to remote targets.
func reportFilename(report *models.Report, extension string) string {
	if report == nil {
		return "report." + extension
	}
	return fmt.Sprintf("report-%s.%s", report.ID, extension)
}
