// Package dispatch routes incoming events to the alerts registered for
// them and runs the escalations for those whose condition holds.
package dispatch

import (
	"strconv"
	"time"

	"github.com/google/uuid"

	"vulnalert/internal/condition"
	"vulnalert/internal/escalate"
	"vulnalert/internal/logger"
	"vulnalert/internal/metrics"
	"vulnalert/internal/store"
	"vulnalert/pkg/models"
)

// Dispatcher matches events against registered alerts.
type Dispatcher struct {
	stores    store.Stores
	evaluator *condition.Evaluator
	escalator *escalate.Builder
}

// New creates a dispatcher.
func New(stores store.Stores, evaluator *condition.Evaluator, escalator *escalate.Builder) *Dispatcher {
	return &Dispatcher{stores: stores, evaluator: evaluator, escalator: escalator}
}

// Event fires every matching alert for one event. Task events consult
// the task's alert attachments; SecInfo and ticket events consult the
// per-event registrations. The match list is materialized up front so
// an escalation that edits alerts cannot disturb the iteration, and
// alerts fire newest registration first.
func (d *Dispatcher) Event(event models.Event, task *models.Task, report *models.Report) {
	metrics.EventsConsumed.WithLabelValues(event.Kind.String()).Inc()

	alerts, err := d.match(event, task)
	if err != nil {
		logger.Errorf("Match alerts for %s: %v", event.Kind, err)
		return
	}

	for i := len(alerts) - 1; i >= 0; i-- {
		alert := alerts[i]
		if !alert.Active {
			continue
		}
		actor := models.Actor{Username: alert.Owner}

		met, err := d.evaluator.Met(actor, task, report, alert, event)
		if event.Kind.IsSecInfo() {
			// The condition compared the persisted count from the
			// previous sync; store the new one for the next.
			if serr := d.stores.Counter.SetSecInfoCount(alert.ID, event.SecInfoCount); serr != nil {
				logger.Warnf("Alert %s: persist secinfo count: %v", alert.ID, serr)
			}
		}
		if err != nil {
			logger.Errorf("Alert %s: condition check failed: %v", alert.ID, err)
			d.stores.Audit.Fail("alert", alert.Name, alert.ID, "Alert check")
			continue
		}
		if !met {
			logger.Debugf("Alert %s: condition %s not met", alert.ID, alert.Condition)
			continue
		}

		metrics.AlertsTriggered.Inc()
		result := d.escalator.Escalate(actor, alert, task, report, event)
		metrics.Dispatches.WithLabelValues(alert.Method.String(), strconv.Itoa(int(result.Code))).Inc()

		if result.Ok() {
			logger.Infof("Alert %s (%s) fired for %s", alert.Name, alert.ID, event.Kind)
			d.stores.Audit.Event("alert", alert.Name, alert.ID, "Alert fired")
		} else {
			logger.Warnf("Alert %s (%s) failed with code %d: %s",
				alert.Name, alert.ID, result.Code, result.Message)
			d.stores.Audit.Fail("alert", alert.Name, alert.ID, "Alert fired")
		}
	}
}

func (d *Dispatcher) match(event models.Event, task *models.Task) ([]*models.Alert, error) {
	if event.Kind == models.EventTaskRunStatusChanged {
		if task == nil {
			return nil, nil
		}
		return d.stores.Alerts.ForTask(task.ID)
	}
	return d.stores.Alerts.ForEvent(event.Kind)
}

// fixtureSink is implemented by stores that can absorb the disposable
// task, report and results the test path synthesizes.
type fixtureSink interface {
	PutTask(*models.Task)
	PutReport(*models.Report)
	PutResults(reportID string, rows []models.Result, counts models.ResultCounts)
}

// ManageAlert runs one alert on demand, bypassing its condition. When
// no task is named a throwaway task with one sample report is
// synthesized so report-bearing methods have content to render.
func (d *Dispatcher) ManageAlert(actor models.Actor, alertID, taskID string) models.DispatchResult {
	if !d.stores.ACL.UserMay(actor, "test_alert") {
		return models.NewResult(models.CodePermissionDenied)
	}

	alert, err := d.stores.Alerts.Alert(alertID)
	if err != nil {
		logger.Warnf("Test alert %s: %v", alertID, err)
		return models.NewResult(models.CodeAlertNotFound)
	}

	var task *models.Task
	var report *models.Report
	if taskID != "" {
		task, err = d.stores.Tasks.Task(taskID)
		if err != nil {
			logger.Warnf("Test alert %s: task %s: %v", alertID, taskID, err)
			return models.NewResult(models.CodeTaskNotFound)
		}
		if last, err := d.stores.Tasks.LastReport(taskID); err == nil {
			report = last
		}
	} else {
		var rows []models.Result
		var counts models.ResultCounts
		task, report, rows, counts = sampleTaskReport(actor)
		if sink, ok := d.stores.Tasks.(fixtureSink); ok {
			sink.PutTask(task)
			sink.PutReport(report)
			sink.PutResults(report.ID, rows, counts)
		}
	}

	event := models.Event{Kind: models.EventTaskRunStatusChanged, Status: models.StatusDone}
	result := d.escalator.Escalate(actor, alert, task, report, event)
	metrics.Dispatches.WithLabelValues(alert.Method.String(), strconv.Itoa(int(result.Code))).Inc()
	return result
}

// sampleTaskReport builds the throwaway fixture for condition-free
// test runs: a task, one report, and a pair of sample results so
// report-bearing methods deliver non-empty content.
func sampleTaskReport(actor models.Actor) (*models.Task, *models.Report, []models.Result, models.ResultCounts) {
	task := &models.Task{
		ID:           uuid.NewString(),
		Name:         "Temporary Task for Alert",
		Owner:        actor.Username,
		Severity:     models.SeverityMissing,
		PrevSeverity: models.SeverityMissing,
	}
	report := &models.Report{
		ID:      uuid.NewString(),
		TaskID:  task.ID,
		Created: time.Now().UTC(),
	}
	rows := []models.Result{
		{
			ID:          uuid.NewString(),
			Host:        "127.0.0.1",
			Port:        "telnet (23/tcp)",
			NVT:         "Telnet service",
			Severity:    7.5,
			QoD:         80,
			Description: "Sample result for an alert method test run.",
		},
		{
			ID:          uuid.NewString(),
			Host:        "127.0.0.1",
			Port:        "http (80/tcp)",
			NVT:         "Cleartext HTTP service",
			Severity:    5.0,
			QoD:         80,
			Description: "Sample result for an alert method test run.",
		},
	}
	counts := models.ResultCounts{High: 1, Medium: 1}
	return task, report, rows, counts
}
