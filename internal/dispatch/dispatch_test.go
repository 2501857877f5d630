package dispatch

import (
	"testing"
	"time"

	"vulnalert/internal/condition"
	"vulnalert/internal/escalate"
	"vulnalert/internal/render"
	"vulnalert/internal/sandbox"
	"vulnalert/internal/store"
	"vulnalert/internal/transport"
	"vulnalert/pkg/models"
)

// fakeSyslog records the facility of every emitted line, which the
// tests use to observe dispatch order.
type fakeSyslog struct {
	facilities []string
	messages   []string
}

func (f *fakeSyslog) handler() transport.Handler {
	h := transport.NewSyslogHandler()
	h.Emit = func(facility, message string) error {
		f.facilities = append(f.facilities, facility)
		f.messages = append(f.messages, message)
		return nil
	}
	return h
}

func syslogAlert(id, name, facility string, cond models.ConditionKind, condData map[string]string) *models.Alert {
	return &models.Alert{
		ID:            id,
		Name:          name,
		Owner:         "alice",
		Event:         models.EventTaskRunStatusChanged,
		Condition:     cond,
		ConditionData: condData,
		Method:        models.MethodSyslog,
		MethodData:    map[string]string{"submethod": facility},
		Active:        true,
	}
}

func newTestDispatcher(m *store.Memory, sink *fakeSyslog) *Dispatcher {
	stores := m.Stores(store.LogAudit{})
	registry := transport.NewRegistry(sink.handler())
	renderer := render.Plain{Tasks: stores.Tasks}
	evaluator := condition.New(stores.Tasks, stores.Filters, stores.Counter)
	escalator := escalate.New(stores, renderer, registry, sandbox.New("/nonexistent", sandbox.PlainRunner{}))
	return New(stores, evaluator, escalator)
}

func seededMemory() (*store.Memory, *models.Task, *models.Report) {
	m := store.NewMemory()
	task := &models.Task{ID: "task-1", Name: "Weekly scan", Owner: "alice"}
	m.Tasks[task.ID] = task
	report := &models.Report{
		ID: "report-1", TaskID: task.ID,
		Created: time.Date(2026, 3, 2, 8, 0, 0, 0, time.UTC),
	}
	m.Reports[report.ID] = report
	m.Counts[report.ID] = models.ResultCounts{High: 4}
	return m, task, report
}

func TestEventFiresAttachedAlertsInReverseOrder(t *testing.T) {
	m, task, report := seededMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "First attached", "local0", models.ConditionAlways, nil)
	m.AlertsByID["alert-b"] = syslogAlert("alert-b", "Second attached", "local1", models.ConditionAlways, nil)
	m.AttachAlert(task.ID, "alert-a")
	m.AttachAlert(task.ID, "alert-b")

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)

	d.Event(models.Event{Kind: models.EventTaskRunStatusChanged, Status: models.StatusDone}, task, report)

	if len(sink.facilities) != 2 {
		t.Fatalf("expected 2 dispatches, got %d", len(sink.facilities))
	}
	if sink.facilities[0] != "local1" || sink.facilities[1] != "local0" {
		t.Fatalf("expected newest attachment first, got %v", sink.facilities)
	}
	if sink.messages[0] != "Task run status changed: Task status changed to 'Done'" {
		t.Fatalf("unexpected syslog line %q", sink.messages[0])
	}
}

func TestEventSkipsUnmetConditions(t *testing.T) {
	m, task, report := seededMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Too strict", "local0",
		models.ConditionFilterCountAtLeast, map[string]string{"count": "100"})
	m.AlertsByID["alert-b"] = syslogAlert("alert-b", "Loose", "local1",
		models.ConditionFilterCountAtLeast, map[string]string{"count": "2"})
	m.AttachAlert(task.ID, "alert-a")
	m.AttachAlert(task.ID, "alert-b")

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	d.Event(models.Event{Kind: models.EventTaskRunStatusChanged, Status: models.StatusDone}, task, report)

	if len(sink.facilities) != 1 || sink.facilities[0] != "local1" {
		t.Fatalf("expected only the met condition to fire, got %v", sink.facilities)
	}
}

func TestEventSkipsInactiveAlerts(t *testing.T) {
	m, task, report := seededMemory()
	alert := syslogAlert("alert-a", "Disabled", "local0", models.ConditionAlways, nil)
	alert.Active = false
	m.AlertsByID[alert.ID] = alert
	m.AttachAlert(task.ID, alert.ID)

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	d.Event(models.Event{Kind: models.EventTaskRunStatusChanged, Status: models.StatusDone}, task, report)

	if len(sink.facilities) != 0 {
		t.Fatalf("expected no dispatches for an inactive alert, got %v", sink.facilities)
	}
}

func TestSecInfoEventUpdatesPersistedCount(t *testing.T) {
	m := store.NewMemory()
	alert := syslogAlert("alert-a", "Feed watcher", "local0",
		models.ConditionFilterCountAtLeast, map[string]string{"count": "3"})
	alert.Event = models.EventNewSecInfo
	alert.Method = models.MethodSNMP
	alert.MethodData = nil
	m.AlertsByID[alert.ID] = alert
	m.SecInfo[alert.ID] = 1

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	d.Event(models.Event{Kind: models.EventNewSecInfo, SecInfoType: "nvt", SecInfoCount: 9}, nil, nil)

	if got := m.SecInfo[alert.ID]; got != 9 {
		t.Fatalf("expected the persisted count to follow the event, got %d", got)
	}
}

func TestManageAlertPermissionDenied(t *testing.T) {
	m, _, _ := seededMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Guarded", "local0", models.ConditionAlways, nil)
	m.Permissions["bob:get_tasks"] = true // non-empty map, no test_alert grant

	d := newTestDispatcher(m, &fakeSyslog{})
	result := d.ManageAlert(models.Actor{Username: "bob"}, "alert-a", "")
	if result.Code != models.CodePermissionDenied {
		t.Fatalf("expected 99, got %d", result.Code)
	}
}

func TestManageAlertUnknownAlert(t *testing.T) {
	m, _, _ := seededMemory()
	d := newTestDispatcher(m, &fakeSyslog{})
	result := d.ManageAlert(models.Actor{Username: "alice"}, "alert-missing", "")
	if result.Code != models.CodeAlertNotFound {
		t.Fatalf("expected 1, got %d", result.Code)
	}
}

func TestManageAlertUnknownTask(t *testing.T) {
	m, _, _ := seededMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Nightly", "local0", models.ConditionAlways, nil)
	d := newTestDispatcher(m, &fakeSyslog{})
	result := d.ManageAlert(models.Actor{Username: "alice"}, "alert-a", "task-missing")
	if result.Code != models.CodeTaskNotFound {
		t.Fatalf("expected 2, got %d", result.Code)
	}
}

func TestManageAlertBypassesCondition(t *testing.T) {
	m, task, _ := seededMemory()
	// A condition that would never hold on its own.
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Strict", "local2",
		models.ConditionFilterCountAtLeast, map[string]string{"count": "100000"})
	m.AttachAlert(task.ID, "alert-a")

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	result := d.ManageAlert(models.Actor{Username: "alice"}, "alert-a", task.ID)
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	if len(sink.facilities) != 1 || sink.facilities[0] != "local2" {
		t.Fatalf("expected one forced dispatch, got %v", sink.facilities)
	}
}

func TestManageAlertSynthesizesTaskFixture(t *testing.T) {
	m, _, _ := seededMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Nightly", "local0", models.ConditionAlways, nil)

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	result := d.ManageAlert(models.Actor{Username: "alice"}, "alert-a", "")
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}
	if len(sink.messages) != 1 {
		t.Fatalf("expected one dispatch, got %d", len(sink.messages))
	}
}

func TestManageAlertFixtureRendersSampleResults(t *testing.T) {
	m := store.NewMemory()
	m.AlertsByID["alert-a"] = syslogAlert("alert-a", "Nightly", "local0", models.ConditionAlways, nil)

	sink := &fakeSyslog{}
	d := newTestDispatcher(m, sink)
	result := d.ManageAlert(models.Actor{Username: "alice"}, "alert-a", "")
	if result.Code != models.OK {
		t.Fatalf("expected code 0, got %d", result.Code)
	}

	var report *models.Report
	for _, r := range m.Reports {
		report = r
	}
	if report == nil {
		t.Fatalf("expected a synthesized report in the store")
	}

	rows, err := m.Results(report.ID, "")
	if err != nil {
		t.Fatalf("results: %v", err)
	}
	if len(rows) == 0 {
		t.Fatalf("expected the synthesized report to carry sample results")
	}
	counts, err := m.ReportCounts(report.ID, "")
	if err != nil {
		t.Fatalf("report counts: %v", err)
	}
	if counts.Sum() != len(rows) {
		t.Fatalf("counts sum %d does not match %d rows", counts.Sum(), len(rows))
	}

	rendered, err := render.Plain{Tasks: m}.Render(report, nil, render.GetParams{}, nil, nil, true, true)
	if err != nil {
		t.Fatalf("render: %v", err)
	}
	if len(rendered.Content) == 0 {
		t.Fatalf("expected non-empty rendered content for the test run")
	}
}
