// Package store defines the narrow interfaces the alert engine uses to
// reach the rest of the management layer: alert definitions, tasks and
// reports, permission-checked resource lookups, the audit trail and the
// persisted SecInfo counters. The engine never writes scan history.
package store

import (
	"errors"

	"vulnalert/pkg/models"
)

// ErrNotFound is returned when a referenced resource does not exist or
// is not visible to the actor.
var ErrNotFound = errors.New("not found")

// ErrPermissionDenied is returned when the actor lacks the required
// permission on an existing resource.
var ErrPermissionDenied = errors.New("permission denied")

// AlertStore reads alert definitions.
type AlertStore interface {
	// Alert returns one alert by UUID.
	Alert(id string) (*models.Alert, error)
	// ForTask lists alerts attached to a task, in attachment order.
	ForTask(taskID string) ([]*models.Alert, error)
	// ForEvent lists every active alert registered for an event kind
	// that is not bound to a single task (SecInfo and ticket events).
	ForEvent(kind models.EventKind) ([]*models.Alert, error)
}

// TaskStore reads tasks, reports and filtered result counts.
type TaskStore interface {
	Task(id string) (*models.Task, error)
	Report(id string) (*models.Report, error)
	// LastReport returns the most recent finished report of a task, or
	// ErrNotFound when the task has none.
	LastReport(taskID string) (*models.Report, error)
	// SecondLastReport returns the report preceding the last one.
	SecondLastReport(taskID string) (*models.Report, error)
	// ReportCounts counts a report's results under a filter term.
	ReportCounts(reportID, filterTerm string) (models.ResultCounts, error)
	// Results returns the filtered result rows used for rendering.
	Results(reportID, filterTerm string) ([]models.Result, error)
}

// CredentialStore resolves stored credentials with a permission check.
type CredentialStore interface {
	FindWithPermission(id string, actor models.Actor, permission string) (*models.Credential, error)
}

// ReportFormatStore resolves report formats and report configs.
type ReportFormatStore interface {
	FindWithPermission(id string, actor models.Actor, permission string) (*models.ReportFormat, error)
	// FindByName resolves a format by its display name.
	FindByName(name string) (*models.ReportFormat, error)
	ReportConfig(id string, actor models.Actor) (*models.ReportConfig, error)
}

// FilterStore resolves stored filters with a permission check.
type FilterStore interface {
	FindWithPermission(id string, actor models.Actor, permission string) (*models.Filter, error)
}

// ACL gates externally triggered operations.
type ACL interface {
	UserMay(actor models.Actor, operation string) bool
}

// AuditLog records alert firings for the event log. Failures during
// dispatch are recorded here and nowhere else; there is no retry queue.
type AuditLog interface {
	Event(resourceType, resourceName, id, action string)
	Fail(resourceType, resourceName, id, action string)
}

// SecInfoCounter persists per-alert SecInfo counts between feed syncs.
// FilterCountAtLeast conditions on SecInfo events compare against the
// stored value rather than report result counts.
type SecInfoCounter interface {
	SecInfoCount(alertID string) (int, error)
	SetSecInfoCount(alertID string, count int) error
}

// Stores bundles every collaborator the engine needs.
type Stores struct {
	Alerts        AlertStore
	Tasks         TaskStore
	Credentials   CredentialStore
	ReportFormats ReportFormatStore
	Filters       FilterStore
	ACL           ACL
	Audit         AuditLog
	Counter       SecInfoCounter
}
