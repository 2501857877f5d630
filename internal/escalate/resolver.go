package escalate

import (
	"vulnalert/internal/logger"
	"vulnalert/internal/store"
	"vulnalert/internal/transport"
	"vulnalert/pkg/models"
)

// contentResolver renders report content on demand for the dispatch in
// progress. Resolution picks the format in order: explicit UUID from
// the request, UUID from method data, display-name lookup, then the
// request's fallback format.
type contentResolver struct {
	builder *Builder
	ctx     *transport.Context
}

// ResolveContent renders the dispatch's report with the requested
// format. A report config attached to the alert is honored only when
// the configured format won out; configs do not carry over to
// fallbacks.
func (r *contentResolver) ResolveContent(req transport.ContentRequest) (*transport.Content, models.Code) {
	report, code := r.report()
	if code != models.OK {
		return nil, code
	}

	format, usedFallback, code := r.format(req)
	if code != models.OK {
		return nil, code
	}

	var cfg *models.ReportConfig
	if !usedFallback && req.ConfigParamName != "" {
		if id := r.ctx.MethodData(req.ConfigParamName); id != "" {
			c, err := r.builder.stores.ReportFormats.ReportConfig(id, r.ctx.Actor)
			if err != nil {
				logger.Warnf("Alert %s: report config %s unusable, rendering without it: %v",
					r.ctx.Alert.ID, id, err)
			} else {
				cfg = c
			}
		}
	}

	rendered, err := r.builder.renderer.Render(report, nil, r.ctx.Get, format, cfg,
		r.ctx.NotesDetails, r.ctx.OverridesDetails)
	if err != nil {
		logger.Errorf("Alert %s: render report %s as %s: %v", r.ctx.Alert.ID, report.ID, format.Name, err)
		return nil, models.ErrInternal
	}

	return &transport.Content{Rendered: rendered, Format: format, Filter: r.ctx.Filter}, models.OK
}

// report returns the dispatch's report, falling back to the task's
// most recent one. A task with no report cannot produce content.
func (r *contentResolver) report() (*models.Report, models.Code) {
	if r.ctx.Report != nil {
		return r.ctx.Report, models.OK
	}
	if r.ctx.Task == nil {
		logger.Warnf("Alert %s: content requested without task or report", r.ctx.Alert.ID)
		return nil, models.ErrInternal
	}
	last, err := r.builder.stores.Tasks.LastReport(r.ctx.Task.ID)
	if err != nil {
		if err == store.ErrNotFound {
			logger.Warnf("Alert %s: task %s has no report", r.ctx.Alert.ID, r.ctx.Task.ID)
		} else {
			logger.Errorf("Alert %s: last report of task %s: %v", r.ctx.Alert.ID, r.ctx.Task.ID, err)
		}
		return nil, models.ErrInternal
	}
	return last, models.OK
}

// format resolves the report format for the request and reports
// whether the fallback was used.
func (r *contentResolver) format(req transport.ContentRequest) (*models.ReportFormat, bool, models.Code) {
	formats := r.builder.stores.ReportFormats
	actor := r.ctx.Actor

	if req.FormatID != "" {
		f, err := formats.FindWithPermission(req.FormatID, actor, "get_report_formats")
		if err != nil {
			logger.Warnf("Alert %s: report format %s: %v", r.ctx.Alert.ID, req.FormatID, err)
			return nil, false, models.ErrReportFormat
		}
		return f, false, models.OK
	}

	if req.FormatParamName != "" {
		if id := r.ctx.MethodData(req.FormatParamName); id != "" {
			f, err := formats.FindWithPermission(id, actor, "get_report_formats")
			if err != nil {
				logger.Warnf("Alert %s: report format %s: %v", r.ctx.Alert.ID, id, err)
				return nil, false, models.ErrReportFormat
			}
			return f, false, models.OK
		}
	}

	if req.LookupName != "" {
		if f, err := formats.FindByName(req.LookupName); err == nil {
			return f, false, models.OK
		}
	}

	if req.FallbackFormat == "" {
		logger.Warnf("Alert %s: no report format resolvable", r.ctx.Alert.ID)
		return nil, false, models.ErrReportFormat
	}
	f, err := formats.FindWithPermission(req.FallbackFormat, actor, "get_report_formats")
	if err != nil {
		logger.Warnf("Alert %s: fallback report format %s: %v", r.ctx.Alert.ID, req.FallbackFormat, err)
		return nil, false, models.ErrReportFormat
	}
	return f, true, models.OK
}
