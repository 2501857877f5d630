// Package condition decides whether a matched alert actually fires.
// Evaluation is stateless: one call per (event, alert) pair, reading
// report counts and task severities but never writing.
package condition

import (
	"fmt"
	"strconv"

	"vulnalert/internal/store"
	"vulnalert/pkg/models"
)

// Evaluator applies alert conditions against report and task state.
type Evaluator struct {
	tasks   store.TaskStore
	filters store.FilterStore
	counter store.SecInfoCounter
}

// New creates an evaluator over the given stores.
func New(tasks store.TaskStore, filters store.FilterStore, counter store.SecInfoCounter) *Evaluator {
	return &Evaluator{tasks: tasks, filters: filters, counter: counter}
}

// Met reports whether the alert's condition holds for the event. The
// report may be nil, in which case the task's most recent report is
// consulted where one is needed.
func (e *Evaluator) Met(actor models.Actor, task *models.Task, report *models.Report, alert *models.Alert, event models.Event) (bool, error) {
	switch alert.Condition {
	case models.ConditionAlways:
		return true, nil
	case models.ConditionFilterCountAtLeast:
		return e.filterCountAtLeast(actor, task, report, alert, event)
	case models.ConditionFilterCountChanged:
		return e.filterCountChanged(actor, task, alert)
	case models.ConditionSeverityAtLeast:
		return severityAtLeast(task, alert)
	case models.ConditionSeverityChanged:
		return severityChanged(task, alert)
	default:
		return false, fmt.Errorf("unknown condition kind %d", alert.Condition)
	}
}

func (e *Evaluator) filterTerm(actor models.Actor, alert *models.Alert) (string, error) {
	filterID := alert.ConditionData["filter_id"]
	if filterID == "" {
		return "", nil
	}
	filter, err := e.filters.FindWithPermission(filterID, actor, "get_filters")
	if err != nil {
		return "", fmt.Errorf("resolve condition filter %s: %w", filterID, err)
	}
	return filter.Term, nil
}

func (e *Evaluator) reportSum(actor models.Actor, reportID string, alert *models.Alert) (int, error) {
	term, err := e.filterTerm(actor, alert)
	if err != nil {
		return 0, err
	}
	counts, err := e.tasks.ReportCounts(reportID, term)
	if err != nil {
		return 0, fmt.Errorf("count report %s results: %w", reportID, err)
	}
	return counts.Sum(), nil
}

func (e *Evaluator) filterCountAtLeast(actor models.Actor, task *models.Task, report *models.Report, alert *models.Alert, event models.Event) (bool, error) {
	count, err := dataInt(alert.ConditionData, "count", 1)
	if err != nil {
		return false, err
	}

	// SecInfo events compare the persisted feed count, not report
	// results.
	if event.Kind.IsSecInfo() {
		n, err := e.counter.SecInfoCount(alert.ID)
		if err != nil {
			return false, fmt.Errorf("read secinfo count: %w", err)
		}
		return n >= count, nil
	}

	if report == nil {
		if task == nil {
			return false, nil
		}
		last, err := e.tasks.LastReport(task.ID)
		if err == store.ErrNotFound {
			return 0 >= count, nil
		}
		if err != nil {
			return false, err
		}
		report = last
	}

	sum, err := e.reportSum(actor, report.ID, alert)
	if err != nil {
		return false, err
	}
	return sum >= count, nil
}

func (e *Evaluator) filterCountChanged(actor models.Actor, task *models.Task, alert *models.Alert) (bool, error) {
	if task == nil {
		return false, nil
	}

	count, err := dataInt(alert.ConditionData, "count", 1)
	if err != nil {
		return false, err
	}
	direction := alert.ConditionData["direction"]

	// A negative threshold means the opposite direction.
	if count < 0 {
		count = -count
		switch direction {
		case "decreased":
			direction = "increased"
		case "changed":
		default:
			direction = "decreased"
		}
	}

	lastReport, err := e.tasks.LastReport(task.ID)
	if err == store.ErrNotFound {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	last, err := e.reportSum(actor, lastReport.ID, alert)
	if err != nil {
		return false, err
	}

	secondReport, err := e.tasks.SecondLastReport(task.ID)
	if err == store.ErrNotFound {
		// First report ever: any results count as an increase.
		switch direction {
		case "decreased":
			return false, nil
		default:
			return last > 0, nil
		}
	}
	if err != nil {
		return false, err
	}
	second, err := e.reportSum(actor, secondReport.ID, alert)
	if err != nil {
		return false, err
	}

	cmp := last - second
	switch direction {
	case "changed":
		if cmp < 0 {
			cmp = -cmp
		}
		return cmp >= count, nil
	case "decreased":
		return cmp <= count, nil
	default:
		return cmp >= count, nil
	}
}

func severityAtLeast(task *models.Task, alert *models.Alert) (bool, error) {
	if task == nil || task.Severity == models.SeverityMissing {
		return false, nil
	}
	threshold, err := dataFloat(alert.ConditionData, "severity", 0)
	if err != nil {
		return false, err
	}
	return task.Severity >= threshold, nil
}

func severityChanged(task *models.Task, alert *models.Alert) (bool, error) {
	if task == nil {
		return false, nil
	}
	if task.Severity == models.SeverityMissing || task.PrevSeverity == models.SeverityMissing {
		return false, nil
	}
	switch alert.ConditionData["direction"] {
	case "increased":
		return task.Severity > task.PrevSeverity, nil
	case "decreased":
		return task.Severity < task.PrevSeverity, nil
	default:
		return task.Severity != task.PrevSeverity, nil
	}
}

func dataInt(data map[string]string, key string, fallback int) (int, error) {
	raw, ok := data[key]
	if !ok || raw == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("condition %s %q: %w", key, raw, err)
	}
	return n, nil
}

func dataFloat(data map[string]string, key string, fallback float64) (float64, error) {
	raw, ok := data[key]
	if !ok || raw == "" {
		return fallback, nil
	}
	f, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("condition %s %q: %w", key, raw, err)
	}
	return f, nil
}
