package models

import "fmt"

// EventKind identifies the domain occurrence an alert listens for.
type EventKind int

const (
	EventUnknown EventKind = iota
	EventTaskRunStatusChanged
	EventNewSecInfo
	EventUpdatedSecInfo
	EventTicketReceived
	EventAssignedTicketChanged
	EventOwnedTicketChanged
)

// String returns the display name of the event kind.
func (e EventKind) String() string {
	switch e {
	case EventTaskRunStatusChanged:
		return "Task run status changed"
	case EventNewSecInfo:
		return "New SecInfo arrived"
	case EventUpdatedSecInfo:
		return "Updated SecInfo arrived"
	case EventTicketReceived:
		return "Ticket received"
	case EventAssignedTicketChanged:
		return "Assigned ticket changed"
	case EventOwnedTicketChanged:
		return "Owned ticket changed"
	default:
		return "Internal Error"
	}
}

// IsSecInfo reports whether the event concerns SecInfo arrival.
func (e EventKind) IsSecInfo() bool {
	return e == EventNewSecInfo || e == EventUpdatedSecInfo
}

// IsTicket reports whether the event concerns a ticket lifecycle change.
func (e EventKind) IsTicket() bool {
	return e == EventTicketReceived || e == EventAssignedTicketChanged || e == EventOwnedTicketChanged
}

// ConditionKind identifies the predicate guarding an alert.
type ConditionKind int

const (
	ConditionUnknown ConditionKind = iota
	ConditionAlways
	ConditionFilterCountAtLeast
	ConditionFilterCountChanged
	ConditionSeverityAtLeast
	ConditionSeverityChanged
)

// String returns the display name of the condition kind.
func (c ConditionKind) String() string {
	switch c {
	case ConditionAlways:
		return "Always"
	case ConditionFilterCountAtLeast:
		return "Filter count at least"
	case ConditionFilterCountChanged:
		return "Filter count changed"
	case ConditionSeverityAtLeast:
		return "Severity at least"
	case ConditionSeverityChanged:
		return "Severity changed"
	default:
		return "Internal Error"
	}
}

// MethodKind identifies the transport used to deliver a notification.
type MethodKind int

const (
	MethodUnknown MethodKind = iota
	MethodEmail
	MethodHTTPGet
	MethodSCP
	MethodSend
	MethodSMB
	MethodSNMP
	MethodSourcefire
	MethodStartTask
	MethodSyslog
	MethodTippingPoint
	MethodVerinice
	MethodVfire
)

// String returns the display name of the method kind.
func (m MethodKind) String() string {
	switch m {
	case MethodEmail:
		return "Email"
	case MethodHTTPGet:
		return "HTTP Get"
	case MethodSCP:
		return "SCP"
	case MethodSend:
		return "Send"
	case MethodSMB:
		return "SMB"
	case MethodSNMP:
		return "SNMP"
	case MethodSourcefire:
		return "Sourcefire Connector"
	case MethodStartTask:
		return "Start Task"
	case MethodSyslog:
		return "Syslog"
	case MethodTippingPoint:
		return "TippingPoint SMS"
	case MethodVerinice:
		return "verinice Connector"
	case MethodVfire:
		return "Alemba vFire"
	default:
		return "Internal Error"
	}
}

// Alert is a configured notification rule. Alerts are created and
// modified by the management CRUD layer; this engine only reads them.
type Alert struct {
	ID            string            `json:"id" yaml:"id"`
	Name          string            `json:"name" yaml:"name"`
	Owner         string            `json:"owner" yaml:"owner"`
	Comment       string            `json:"comment,omitempty" yaml:"comment,omitempty"`
	Event         EventKind         `json:"event" yaml:"event"`
	Condition     ConditionKind     `json:"condition" yaml:"condition"`
	ConditionData map[string]string `json:"condition_data,omitempty" yaml:"condition_data,omitempty"`
	Method        MethodKind        `json:"method" yaml:"method"`
	MethodData    map[string]string `json:"method_data,omitempty" yaml:"method_data,omitempty"`
	FilterID      string            `json:"filter_id,omitempty" yaml:"filter_id,omitempty"`
	Active        bool              `json:"active" yaml:"active"`
}

// Data returns one method or condition parameter, or "" when unset.
func (a *Alert) Data(group, key string) string {
	switch group {
	case "method":
		return a.MethodData[key]
	case "condition":
		return a.ConditionData[key]
	default:
		return ""
	}
}

// ConditionDescription renders the condition for audit logs and the
// subject template's $c directive.
func (a *Alert) ConditionDescription() string {
	switch a.Condition {
	case ConditionFilterCountAtLeast:
		return fmt.Sprintf("Filter count at least %s", a.ConditionData["count"])
	case ConditionFilterCountChanged:
		return fmt.Sprintf("Filter count changed by at least %s", a.ConditionData["count"])
	case ConditionSeverityAtLeast:
		return fmt.Sprintf("Severity at least %s", a.ConditionData["severity"])
	case ConditionSeverityChanged:
		return fmt.Sprintf("Severity %s", a.ConditionData["direction"])
	default:
		return a.Condition.String()
	}
}
