package store

import (
	"os"
	"path/filepath"
	"testing"

	"vulnalert/pkg/models"
)

const fixtureYAML = `
alerts:
  - id: alert-1
    name: Nightly escalation
    owner: alice
    event: task_run_status_changed
    condition: severity_at_least
    condition_data:
      severity: "5.5"
    method: email
    method_data:
      to_address: soc@example.com
    filter_id: filter-1
    active: true
    tasks: [task-1]
tasks:
  - id: task-1
    name: Weekly scan
    owner: alice
    severity: 7.0
    prev_severity: 4.0
reports:
  - id: report-1
    task_id: task-1
    created: 2026-03-02T08:00:00Z
    timezone: UTC
    counts:
      high: 3
      medium: 1
    results:
      - id: r1
        host: 10.0.0.1
        port: 443/tcp
        nvt: TLS check
        severity: 7.5
filters:
  - id: filter-1
    name: High only
    term: severity>6.9
permissions:
  - alice:test_alert
secinfo_counts:
  alert-1: 4
`

func TestLoadFixtures(t *testing.T) {
	path := filepath.Join(t.TempDir(), "fixtures.yml")
	if err := os.WriteFile(path, []byte(fixtureYAML), 0600); err != nil {
		t.Fatalf("write fixtures: %v", err)
	}

	m, err := LoadFixtures(path)
	if err != nil {
		t.Fatalf("load fixtures: %v", err)
	}

	alert, err := m.Alert("alert-1")
	if err != nil {
		t.Fatalf("alert: %v", err)
	}
	if alert.Event != models.EventTaskRunStatusChanged {
		t.Fatalf("unexpected event kind %v", alert.Event)
	}
	if alert.Condition != models.ConditionSeverityAtLeast {
		t.Fatalf("unexpected condition kind %v", alert.Condition)
	}
	if alert.Method != models.MethodEmail {
		t.Fatalf("unexpected method kind %v", alert.Method)
	}
	if alert.MethodData["to_address"] != "soc@example.com" {
		t.Fatalf("method data not carried over: %v", alert.MethodData)
	}

	attached, err := m.ForTask("task-1")
	if err != nil {
		t.Fatalf("for task: %v", err)
	}
	if len(attached) != 1 || attached[0].ID != "alert-1" {
		t.Fatalf("expected the alert attached to task-1, got %v", attached)
	}

	counts, err := m.ReportCounts("report-1", "")
	if err != nil {
		t.Fatalf("report counts: %v", err)
	}
	if counts.Sum() != 4 {
		t.Fatalf("expected 4 results, got %d", counts.Sum())
	}

	if !m.UserMay(models.Actor{Username: "alice"}, "test_alert") {
		t.Fatalf("expected alice to hold test_alert")
	}
	if m.UserMay(models.Actor{Username: "bob"}, "test_alert") {
		t.Fatalf("expected bob to lack test_alert")
	}

	if n, _ := m.SecInfoCount("alert-1"); n != 4 {
		t.Fatalf("expected persisted secinfo count 4, got %d", n)
	}
}

func TestFixturesRejectUnknownKinds(t *testing.T) {
	fx := Fixtures{Alerts: []FixtureAlert{{ID: "a", Event: "task_run_status_changed", Condition: "always", Method: "carrier_pigeon"}}}
	if _, err := fx.Populate(); err == nil {
		t.Fatalf("expected an error for an unknown method name")
	}
}

func TestMemoryReportOrdering(t *testing.T) {
	m := NewMemory()
	m.Tasks["task-1"] = &models.Task{ID: "task-1"}

	if _, err := m.LastReport("task-1"); err != ErrNotFound {
		t.Fatalf("expected ErrNotFound without reports, got %v", err)
	}

	early := &models.Report{ID: "r-early", TaskID: "task-1"}
	late := &models.Report{ID: "r-late", TaskID: "task-1"}
	late.Created = early.Created.AddDate(0, 0, 1)
	m.PutReport(late)
	m.PutReport(early)

	last, err := m.LastReport("task-1")
	if err != nil {
		t.Fatalf("last report: %v", err)
	}
	if last.ID != "r-late" {
		t.Fatalf("expected the newest report, got %s", last.ID)
	}

	second, err := m.SecondLastReport("task-1")
	if err != nil {
		t.Fatalf("second last report: %v", err)
	}
	if second.ID != "r-early" {
		t.Fatalf("expected the older report, got %s", second.ID)
	}
}
