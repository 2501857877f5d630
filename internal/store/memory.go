package store

import (
	"sort"
	"sync"

	"vulnalert/pkg/models"
)

// Memory is an in-process implementation of every store interface. It
// backs alertctl fixture runs and tests; production deployments wire
// the management database instead.
type Memory struct {
	mu sync.RWMutex

	AlertsByID  map[string]*models.Alert
	TaskAlerts  map[string][]string
	Tasks       map[string]*models.Task
	Reports     map[string]*models.Report
	Counts      map[string]models.ResultCounts
	ResultRows  map[string][]models.Result
	Credentials map[string]*models.Credential
	Formats     map[string]*models.ReportFormat
	Configs     map[string]*models.ReportConfig
	Filters     map[string]*models.Filter
	SecInfo     map[string]int

	// Permissions maps "<user>:<operation>" to allowed. An empty map
	// allows everything.
	Permissions map[string]bool
}

// NewMemory returns an empty in-memory store.
func NewMemory() *Memory {
	return &Memory{
		AlertsByID:  make(map[string]*models.Alert),
		TaskAlerts:  make(map[string][]string),
		Tasks:       make(map[string]*models.Task),
		Reports:     make(map[string]*models.Report),
		Counts:      make(map[string]models.ResultCounts),
		ResultRows:  make(map[string][]models.Result),
		Credentials: make(map[string]*models.Credential),
		Formats:     make(map[string]*models.ReportFormat),
		Configs:     make(map[string]*models.ReportConfig),
		Filters:     make(map[string]*models.Filter),
		SecInfo:     make(map[string]int),
		Permissions: make(map[string]bool),
	}
}

// Stores bundles the memory store under every collaborator interface.
func (m *Memory) Stores(audit AuditLog) Stores {
	return Stores{
		Alerts:        m,
		Tasks:         m,
		Credentials:   memoryCredentials{m},
		ReportFormats: memoryFormats{m},
		Filters:       memoryFilters{m},
		ACL:           m,
		Audit:         audit,
		Counter:       m,
	}
}

// The permission-checked lookups return distinct types, so each gets a
// thin adapter over the shared maps.

type memoryCredentials struct{ m *Memory }

// FindWithPermission resolves a credential.
func (s memoryCredentials) FindWithPermission(id string, actor models.Actor, permission string) (*models.Credential, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	c, ok := s.m.Credentials[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

type memoryFormats struct{ m *Memory }

// FindWithPermission resolves a report format.
func (s memoryFormats) FindWithPermission(id string, actor models.Actor, permission string) (*models.ReportFormat, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	f, ok := s.m.Formats[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

// FindByName resolves a report format by display name.
func (s memoryFormats) FindByName(name string) (*models.ReportFormat, error) {
	return s.m.FindByName(name)
}

// ReportConfig resolves a report config by UUID.
func (s memoryFormats) ReportConfig(id string, actor models.Actor) (*models.ReportConfig, error) {
	return s.m.ReportConfig(id, actor)
}

type memoryFilters struct{ m *Memory }

// FindWithPermission resolves a filter.
func (s memoryFilters) FindWithPermission(id string, actor models.Actor, permission string) (*models.Filter, error) {
	s.m.mu.RLock()
	defer s.m.mu.RUnlock()
	f, ok := s.m.Filters[id]
	if !ok {
		return nil, ErrNotFound
	}
	return f, nil
}

// Alert returns one alert by UUID.
func (m *Memory) Alert(id string) (*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	a, ok := m.AlertsByID[id]
	if !ok {
		return nil, ErrNotFound
	}
	return a, nil
}

// AttachAlert links an alert to a task.
func (m *Memory) AttachAlert(taskID, alertID string) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.TaskAlerts[taskID] = append(m.TaskAlerts[taskID], alertID)
}

// ForTask lists alerts attached to a task.
func (m *Memory) ForTask(taskID string) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	ids := m.TaskAlerts[taskID]
	out := make([]*models.Alert, 0, len(ids))
	for _, id := range ids {
		if a, ok := m.AlertsByID[id]; ok {
			out = append(out, a)
		}
	}
	return out, nil
}

// ForEvent lists active alerts registered for an event kind.
func (m *Memory) ForEvent(kind models.EventKind) ([]*models.Alert, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	var out []*models.Alert
	for _, a := range m.AlertsByID {
		if a.Event == kind && a.Active {
			out = append(out, a)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

// PutTask stores a task.
func (m *Memory) PutTask(t *models.Task) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Tasks[t.ID] = t
}

// PutReport stores a report.
func (m *Memory) PutReport(r *models.Report) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.Reports[r.ID] = r
}

// PutResults stores a report's result rows and per-class counts.
func (m *Memory) PutResults(reportID string, rows []models.Result, counts models.ResultCounts) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ResultRows[reportID] = rows
	m.Counts[reportID] = counts
}

// Task returns one task by UUID.
func (m *Memory) Task(id string) (*models.Task, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.Tasks[id]
	if !ok {
		return nil, ErrNotFound
	}
	return t, nil
}

// Report returns one report by UUID.
func (m *Memory) Report(id string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	r, ok := m.Reports[id]
	if !ok {
		return nil, ErrNotFound
	}
	return r, nil
}

func (m *Memory) taskReports(taskID string) []*models.Report {
	var reports []*models.Report
	for _, r := range m.Reports {
		if r.TaskID == taskID {
			reports = append(reports, r)
		}
	}
	sort.Slice(reports, func(i, j int) bool {
		return reports[i].Created.Before(reports[j].Created)
	})
	return reports
}

// LastReport returns the most recent report of a task.
func (m *Memory) LastReport(taskID string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := m.taskReports(taskID)
	if len(reports) == 0 {
		return nil, ErrNotFound
	}
	return reports[len(reports)-1], nil
}

// SecondLastReport returns the report preceding the last one.
func (m *Memory) SecondLastReport(taskID string) (*models.Report, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	reports := m.taskReports(taskID)
	if len(reports) < 2 {
		return nil, ErrNotFound
	}
	return reports[len(reports)-2], nil
}

// ReportCounts counts a report's results under a filter term. The
// memory store keeps precomputed counts per report and ignores the
// term beyond requiring the report to exist.
func (m *Memory) ReportCounts(reportID, filterTerm string) (models.ResultCounts, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.Reports[reportID]; !ok {
		return models.ResultCounts{}, ErrNotFound
	}
	return m.Counts[reportID], nil
}

// Results returns the stored result rows of a report.
func (m *Memory) Results(reportID, filterTerm string) ([]models.Result, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if _, ok := m.Reports[reportID]; !ok {
		return nil, ErrNotFound
	}
	return m.ResultRows[reportID], nil
}

// FindByName resolves a report format by display name.
func (m *Memory) FindByName(name string) (*models.ReportFormat, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, f := range m.Formats {
		if f.Name == name {
			return f, nil
		}
	}
	return nil, ErrNotFound
}

// ReportConfig resolves a report config by UUID.
func (m *Memory) ReportConfig(id string, actor models.Actor) (*models.ReportConfig, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.Configs[id]
	if !ok {
		return nil, ErrNotFound
	}
	return c, nil
}

// UserMay gates an operation for an actor.
func (m *Memory) UserMay(actor models.Actor, operation string) bool {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if len(m.Permissions) == 0 {
		return true
	}
	return m.Permissions[actor.Username+":"+operation]
}

// SecInfoCount returns the persisted SecInfo count for an alert.
func (m *Memory) SecInfoCount(alertID string) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.SecInfo[alertID], nil
}

// SetSecInfoCount stores the SecInfo count for an alert.
func (m *Memory) SetSecInfoCount(alertID string, count int) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.SecInfo[alertID] = count
	return nil
}
