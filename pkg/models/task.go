package models

import "time"

// SeverityMissing marks a task or report without a computed severity.
const SeverityMissing = -99.0

// Task is a configured scan task. Severity values carry overrides
// applied at the default minimum QoD.
type Task struct {
	ID           string  `json:"id" yaml:"id"`
	Name         string  `json:"name" yaml:"name"`
	Owner        string  `json:"owner" yaml:"owner"`
	Comment      string  `json:"comment,omitempty" yaml:"comment,omitempty"`
	Severity     float64 `json:"severity" yaml:"severity"`
	PrevSeverity float64 `json:"prev_severity" yaml:"prev_severity"`
}

// ResultCounts holds per-severity-class result counts of one report
// under one filter.
type ResultCounts struct {
	Critical      int `json:"critical" yaml:"critical"`
	High          int `json:"high" yaml:"high"`
	Medium        int `json:"medium" yaml:"medium"`
	Low           int `json:"low" yaml:"low"`
	Log           int `json:"log" yaml:"log"`
	FalsePositive int `json:"false_positive" yaml:"false_positive"`
}

// Sum totals every severity class, log and false-positive included.
func (c ResultCounts) Sum() int {
	return c.Critical + c.High + c.Medium + c.Low + c.Log + c.FalsePositive
}

// Result is one scan finding row, as consumed by report rendering.
type Result struct {
	ID          string  `json:"id" yaml:"id"`
	Host        string  `json:"host" yaml:"host"`
	Port        string  `json:"port" yaml:"port"`
	NVT         string  `json:"nvt" yaml:"nvt"`
	Severity    float64 `json:"severity" yaml:"severity"`
	QoD         int     `json:"qod" yaml:"qod"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
}

// Report is one scan report belonging to a task.
type Report struct {
	ID       string    `json:"id" yaml:"id"`
	TaskID   string    `json:"task_id" yaml:"task_id"`
	Created  time.Time `json:"created" yaml:"created"`
	Timezone string    `json:"timezone,omitempty" yaml:"timezone,omitempty"`
}

// Ticket is a remediation ticket raised from a scan result.
type Ticket struct {
	ID    string `json:"id" yaml:"id"`
	Name  string `json:"name" yaml:"name"`
	Owner string `json:"owner" yaml:"owner"`
}

// ReportFormat describes one installed report format.
type ReportFormat struct {
	ID          string `json:"id" yaml:"id"`
	Name        string `json:"name" yaml:"name"`
	Extension   string `json:"extension" yaml:"extension"`
	ContentType string `json:"content_type" yaml:"content_type"`
}

// ReportConfig holds per-alert parameter overrides for a report format.
type ReportConfig struct {
	ID     string            `json:"id" yaml:"id"`
	Name   string            `json:"name" yaml:"name"`
	Params map[string]string `json:"params,omitempty" yaml:"params,omitempty"`
}

// Filter is a stored results filter.
type Filter struct {
	ID   string `json:"id" yaml:"id"`
	Name string `json:"name" yaml:"name"`
	Term string `json:"term" yaml:"term"`
}

// CredentialType enumerates stored credential flavors.
type CredentialType string

const (
	CredentialUserPass CredentialType = "up"
	CredentialUserKey  CredentialType = "usk"
	CredentialPGP      CredentialType = "pgp"
	CredentialSMIME    CredentialType = "smime"
	CredentialPassword CredentialType = "pw"
)

// Credential is a stored secret referenced by alert method data.
type Credential struct {
	ID          string         `json:"id" yaml:"id"`
	Name        string         `json:"name" yaml:"name"`
	Type        CredentialType `json:"type" yaml:"type"`
	Login       string         `json:"login,omitempty" yaml:"login,omitempty"`
	Password    string         `json:"password,omitempty" yaml:"password,omitempty"`
	PrivateKey  string         `json:"private_key,omitempty" yaml:"private_key,omitempty"`
	PublicKey   string         `json:"public_key,omitempty" yaml:"public_key,omitempty"`
	Certificate string         `json:"certificate,omitempty" yaml:"certificate,omitempty"`
}

// Actor identifies the user on whose behalf a dispatch runs. It is
// passed explicitly; there is no ambient current-user state.
type Actor struct {
	UserID   string
	Username string
}
