// Package escalate fires one alert for one event: it resolves the
// results filter, binds report-content resolution for the chosen
// transport, and hands the assembled context to the method handler.
package escalate

import (
	"fmt"

	"vulnalert/internal/logger"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/internal/transport"
	"vulnalert/pkg/models"
)

// emailDefaultRows bounds preset email filters; other methods get the
// full result list.
const emailDefaultRows = 1000

// Builder assembles and runs escalations.
type Builder struct {
	stores   store.Stores
	renderer render.Renderer
	registry *transport.Registry
	sandbox  *sandbox.Sandbox
}

// New creates a builder.
func New(stores store.Stores, renderer render.Renderer, registry *transport.Registry, sb *sandbox.Sandbox) *Builder {
	return &Builder{stores: stores, renderer: renderer, registry: registry, sandbox: sb}
}

// FilterGet resolves the alert's results filter into GET parameters.
// Preset alerts (no stored filter) get a default: all severity
// classes, notes and overrides included, sorted by descending
// severity, row-capped for email only. Stored filters are rewritten
// with notes=/overrides= prefixes when the alert carries report
// composer flags; this backs a minimal composer without a filter
// editing UI and is not a general filter merge.
func (b *Builder) FilterGet(actor models.Actor, alert *models.Alert) (render.GetParams, *models.Filter, models.Code) {
	var filter *models.Filter
	var term string

	if alert.FilterID != "" {
		f, err := b.stores.Filters.FindWithPermission(alert.FilterID, actor, "get_filters")
		if err != nil {
			logger.Warnf("Alert %s: filter %s: %v", alert.ID, alert.FilterID, err)
			return render.GetParams{}, nil, models.ErrFilter
		}
		filter = f
		term = f.Term
		if flags := composerPrefix(alert); flags != "" {
			term = flags + term
		}
	} else {
		rows := -1
		if alert.Method == models.MethodEmail {
			rows = emailDefaultRows
		}
		term = fmt.Sprintf("notes=1 overrides=1 sort-reverse=severity rows=%d", rows)
	}

	get := render.GetParams{
		FilterTerm:       term,
		Details:          true,
		IgnorePagination: alert.MethodData["composer_ignore_pagination"] == "1",
	}
	return get, filter, models.OK
}

// composerPrefix renders the notes=/overrides= prefix for alerts that
// carry composer flags. The prefix wins over later occurrences in the
// stored term.
func composerPrefix(alert *models.Alert) string {
	prefix := ""
	if v, ok := alert.MethodData["composer_include_notes"]; ok && v != "" {
		prefix += "notes=" + boolDigit(v) + " "
	}
	if v, ok := alert.MethodData["composer_include_overrides"]; ok && v != "" {
		prefix += "overrides=" + boolDigit(v) + " "
	}
	return prefix
}

func boolDigit(v string) string {
	if v == "0" {
		return "0"
	}
	return "1"
}

// Escalate fires the alert for the event. The report may be nil; the
// content resolver then falls back to the task's most recent report.
func (b *Builder) Escalate(actor models.Actor, alert *models.Alert, task *models.Task, report *models.Report, event models.Event) models.DispatchResult {
	get, filter, code := b.FilterGet(actor, alert)
	if code != models.OK {
		return models.NewResult(code)
	}

	notesDetails := alert.MethodData["composer_include_notes"] != "0"
	overridesDetails := alert.MethodData["composer_include_overrides"] != "0"

	ctx := &transport.Context{
		Actor:            actor,
		Alert:            alert,
		Task:             task,
		Report:           report,
		Event:            event,
		Get:              get,
		Filter:           filter,
		NotesDetails:     notesDetails,
		OverridesDetails: overridesDetails,
		TotalCount:       b.totalCount(actor, task, report, event, get),
		Sandbox:          b.sandbox,
		Stores:           b.stores,
	}
	ctx.Content = &contentResolver{builder: b, ctx: ctx}

	return b.registry.Dispatch(ctx)
}

// totalCount backs the $T directive: the feed count for SecInfo
// events, the filtered result total otherwise. Best effort; a failed
// count renders as zero.
func (b *Builder) totalCount(actor models.Actor, task *models.Task, report *models.Report, event models.Event, get render.GetParams) int {
	if event.Kind.IsSecInfo() {
		return event.SecInfoCount
	}
	if report == nil {
		if task == nil {
			return 0
		}
		last, err := b.stores.Tasks.LastReport(task.ID)
		if err != nil {
			return 0
		}
		report = last
	}
	counts, err := b.stores.Tasks.ReportCounts(report.ID, get.FilterTerm)
	if err != nil {
		return 0
	}
	return counts.Sum()
}
