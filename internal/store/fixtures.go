package store

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"vulnalert/pkg/models"
)

// Fixtures is the YAML form of a populated memory store: alert
// definitions plus the management resources they reference. alertctl
// runs against these; tests build them in code.
type Fixtures struct {
	Alerts        []FixtureAlert         `yaml:"alerts"`
	Tasks         []*models.Task         `yaml:"tasks"`
	Reports       []FixtureReport        `yaml:"reports"`
	Credentials   []*models.Credential   `yaml:"credentials"`
	ReportFormats []*models.ReportFormat `yaml:"report_formats"`
	ReportConfigs []*models.ReportConfig `yaml:"report_configs"`
	Filters       []*models.Filter       `yaml:"filters"`
	// Permissions lists "<user>:<operation>" grants. Empty means allow
	// everything.
	Permissions   []string       `yaml:"permissions"`
	SecInfoCounts map[string]int `yaml:"secinfo_counts"`
}

// FixtureAlert is an alert definition with kinds spelled out by name.
type FixtureAlert struct {
	ID            string            `yaml:"id"`
	Name          string            `yaml:"name"`
	Owner         string            `yaml:"owner"`
	Comment       string            `yaml:"comment"`
	Event         string            `yaml:"event"`
	Condition     string            `yaml:"condition"`
	ConditionData map[string]string `yaml:"condition_data"`
	Method        string            `yaml:"method"`
	MethodData    map[string]string `yaml:"method_data"`
	FilterID      string            `yaml:"filter_id"`
	Active        bool              `yaml:"active"`
	// Tasks lists task UUIDs the alert is attached to.
	Tasks []string `yaml:"tasks"`
}

// FixtureReport is a report with its result rows and filtered counts.
type FixtureReport struct {
	ID       string              `yaml:"id"`
	TaskID   string              `yaml:"task_id"`
	Created  time.Time           `yaml:"created"`
	Timezone string              `yaml:"timezone"`
	Counts   models.ResultCounts `yaml:"counts"`
	Results  []models.Result     `yaml:"results"`
}

var fixtureEvents = map[string]models.EventKind{
	"task_run_status_changed": models.EventTaskRunStatusChanged,
	"new_secinfo":             models.EventNewSecInfo,
	"updated_secinfo":         models.EventUpdatedSecInfo,
	"ticket_received":         models.EventTicketReceived,
	"assigned_ticket_changed": models.EventAssignedTicketChanged,
	"owned_ticket_changed":    models.EventOwnedTicketChanged,
}

var fixtureConditions = map[string]models.ConditionKind{
	"always":                models.ConditionAlways,
	"filter_count_at_least": models.ConditionFilterCountAtLeast,
	"filter_count_changed":  models.ConditionFilterCountChanged,
	"severity_at_least":     models.ConditionSeverityAtLeast,
	"severity_changed":      models.ConditionSeverityChanged,
}

var fixtureMethods = map[string]models.MethodKind{
	"email":        models.MethodEmail,
	"http_get":     models.MethodHTTPGet,
	"scp":          models.MethodSCP,
	"send":         models.MethodSend,
	"smb":          models.MethodSMB,
	"snmp":         models.MethodSNMP,
	"sourcefire":   models.MethodSourcefire,
	"start_task":   models.MethodStartTask,
	"syslog":       models.MethodSyslog,
	"tippingpoint": models.MethodTippingPoint,
	"verinice":     models.MethodVerinice,
	"vfire":        models.MethodVfire,
}

// LoadFixtures reads a fixtures YAML file into a fresh memory store.
func LoadFixtures(path string) (*Memory, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, err
	}

	var fx Fixtures
	if err := yaml.Unmarshal(data, &fx); err != nil {
		return nil, fmt.Errorf("parse fixtures %s: %w", path, err)
	}
	return fx.Populate()
}

// Populate builds a memory store from the fixtures.
func (fx *Fixtures) Populate() (*Memory, error) {
	m := NewMemory()

	for _, fa := range fx.Alerts {
		alert, err := fa.toAlert()
		if err != nil {
			return nil, err
		}
		m.AlertsByID[alert.ID] = alert
		for _, taskID := range fa.Tasks {
			m.AttachAlert(taskID, alert.ID)
		}
	}
	for _, t := range fx.Tasks {
		m.Tasks[t.ID] = t
	}
	for _, fr := range fx.Reports {
		m.Reports[fr.ID] = &models.Report{
			ID:       fr.ID,
			TaskID:   fr.TaskID,
			Created:  fr.Created,
			Timezone: fr.Timezone,
		}
		m.Counts[fr.ID] = fr.Counts
		m.ResultRows[fr.ID] = fr.Results
	}
	for _, c := range fx.Credentials {
		m.Credentials[c.ID] = c
	}
	for _, f := range fx.ReportFormats {
		m.Formats[f.ID] = f
	}
	for _, c := range fx.ReportConfigs {
		m.Configs[c.ID] = c
	}
	for _, f := range fx.Filters {
		m.Filters[f.ID] = f
	}
	for _, grant := range fx.Permissions {
		m.Permissions[grant] = true
	}
	for alertID, n := range fx.SecInfoCounts {
		m.SecInfo[alertID] = n
	}
	return m, nil
}

func (fa FixtureAlert) toAlert() (*models.Alert, error) {
	event, ok := fixtureEvents[fa.Event]
	if !ok {
		return nil, fmt.Errorf("alert %s: unknown event %q", fa.ID, fa.Event)
	}
	cond, ok := fixtureConditions[fa.Condition]
	if !ok {
		return nil, fmt.Errorf("alert %s: unknown condition %q", fa.ID, fa.Condition)
	}
	method, ok := fixtureMethods[fa.Method]
	if !ok {
		return nil, fmt.Errorf("alert %s: unknown method %q", fa.ID, fa.Method)
	}
	return &models.Alert{
		ID:            fa.ID,
		Name:          fa.Name,
		Owner:         fa.Owner,
		Comment:       fa.Comment,
		Event:         event,
		Condition:     cond,
		ConditionData: fa.ConditionData,
		Method:        method,
		MethodData:    fa.MethodData,
		FilterID:      fa.FilterID,
		Active:        fa.Active,
	}, nil
}
