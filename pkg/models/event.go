package models

import "fmt"

// TaskStatus is the run status of a scan task.
type TaskStatus int

const (
	StatusNew TaskStatus = iota
	StatusRequested
	StatusQueued
	StatusRunning
	StatusStopRequested
	StatusStopped
	StatusInterrupted
	StatusProcessing
	StatusDone
	StatusDeleteRequested
)

// String returns the display name of the task status.
func (s TaskStatus) String() string {
	switch s {
	case StatusNew:
		return "New"
	case StatusRequested:
		return "Requested"
	case StatusQueued:
		return "Queued"
	case StatusRunning:
		return "Running"
	case StatusStopRequested:
		return "Stop Requested"
	case StatusStopped:
		return "Stopped"
	case StatusInterrupted:
		return "Interrupted"
	case StatusProcessing:
		return "Processing"
	case StatusDone:
		return "Done"
	case StatusDeleteRequested:
		return "Delete Requested"
	default:
		return "Internal Error"
	}
}

// Event is one domain occurrence produced by the task, SecInfo or
// ticket subsystems. It is transient; this engine never persists it.
type Event struct {
	Kind EventKind
	// Status is set for task run-status events.
	Status TaskStatus
	// SecInfoType is set for SecInfo events: "nvt", "cve", "cpe",
	// "cert_bund_adv", "dfn_cert_adv" or "ovaldef".
	SecInfoType string
	// SecInfoCount is the number of new or updated SecInfo items the
	// event covers.
	SecInfoCount int
	// SecInfoCheckTime is the feed check timestamp (unix seconds) for
	// SecInfo events.
	SecInfoCheckTime int64
	// Ticket is the primary resource of ticket events.
	Ticket *Ticket
}

// ticketName names the event's ticket for display, falling back to its
// UUID.
func (ev Event) ticketName() string {
	if ev.Ticket == nil {
		return ""
	}
	if ev.Ticket.Name != "" {
		return ev.Ticket.Name
	}
	return ev.Ticket.ID
}

// Description renders the event for syslog lines, audit entries and
// the $e template directive.
func (ev Event) Description() string {
	switch ev.Kind {
	case EventTaskRunStatusChanged:
		return fmt.Sprintf("Task status changed to '%s'", ev.Status)
	case EventNewSecInfo:
		return fmt.Sprintf("%d new %s appeared in the feed", ev.SecInfoCount, SecInfoTypeName(ev.SecInfoType, ev.SecInfoCount != 1))
	case EventUpdatedSecInfo:
		return fmt.Sprintf("%d %s were updated in the feed", ev.SecInfoCount, SecInfoTypeName(ev.SecInfoType, true))
	case EventTicketReceived:
		if name := ev.ticketName(); name != "" {
			return fmt.Sprintf("Ticket '%s' received", name)
		}
		return "Ticket received"
	case EventAssignedTicketChanged:
		if name := ev.ticketName(); name != "" {
			return fmt.Sprintf("Assigned ticket '%s' changed", name)
		}
		return "Assigned ticket changed"
	case EventOwnedTicketChanged:
		if name := ev.ticketName(); name != "" {
			return fmt.Sprintf("Owned ticket '%s' changed", name)
		}
		return "Owned ticket changed"
	default:
		return "Internal Error"
	}
}

// SecInfoTypeName maps a SecInfo type string to its display name,
// optionally pluralized.
func SecInfoTypeName(typ string, plural bool) string {
	var one, many string
	switch typ {
	case "nvt":
		one, many = "NVT", "NVTs"
	case "cve":
		one, many = "CVE", "CVEs"
	case "cpe":
		one, many = "CPE", "CPEs"
	case "cert_bund_adv":
		one, many = "CERT-Bund Advisory", "CERT-Bund Advisories"
	case "dfn_cert_adv":
		one, many = "DFN-CERT Advisory", "DFN-CERT Advisories"
	case "ovaldef":
		one, many = "OVAL Definition", "OVAL Definitions"
	default:
		one, many = "SecInfo item", "SecInfo items"
	}
	if plural {
		return many
	}
	return one
}
