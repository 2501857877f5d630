package redis

import (
	"testing"

	"vulnalert/pkg/models"
)

func TestDecodeTaskEvent(t *testing.T) {
	env, err := Decode([]byte(`{"event":"task_run_status_changed","status":"Done","task_id":"task-1","report_id":"report-1"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	if env.TaskID != "task-1" || env.ReportID != "report-1" {
		t.Fatalf("unexpected envelope: %+v", env)
	}

	ev, err := env.ToEvent()
	if err != nil {
		t.Fatalf("to event: %v", err)
	}
	if ev.Kind != models.EventTaskRunStatusChanged || ev.Status != models.StatusDone {
		t.Fatalf("unexpected event: %+v", ev)
	}
	if ev.Description() != "Task status changed to 'Done'" {
		t.Fatalf("unexpected description %q", ev.Description())
	}
}

func TestDecodeSecInfoEvent(t *testing.T) {
	env, err := Decode([]byte(`{"event":"new_secinfo","secinfo_type":"cve","secinfo_count":17,"secinfo_check_time":1764576000}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, err := env.ToEvent()
	if err != nil {
		t.Fatalf("to event: %v", err)
	}
	if ev.Kind != models.EventNewSecInfo || ev.SecInfoType != "cve" || ev.SecInfoCount != 17 {
		t.Fatalf("unexpected event: %+v", ev)
	}
}

func TestDecodeTicketEvent(t *testing.T) {
	env, err := Decode([]byte(`{"event":"ticket_received","ticket_id":"ticket-1","ticket_name":"Fix TLS on web-1","ticket_owner":"bob"}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	ev, err := env.ToEvent()
	if err != nil {
		t.Fatalf("to event: %v", err)
	}
	if ev.Kind != models.EventTicketReceived {
		t.Fatalf("unexpected kind %v", ev.Kind)
	}
	if ev.Ticket == nil || ev.Ticket.ID != "ticket-1" || ev.Ticket.Owner != "bob" {
		t.Fatalf("ticket not carried over: %+v", ev.Ticket)
	}
	if ev.Description() != "Ticket 'Fix TLS on web-1' received" {
		t.Fatalf("unexpected description %q", ev.Description())
	}
}

func TestToEventRejectsTicketEventWithoutID(t *testing.T) {
	env := &Envelope{Event: "assigned_ticket_changed"}
	if _, err := env.ToEvent(); err == nil {
		t.Fatalf("expected an error for a ticket event without ticket_id")
	}
}

func TestDecodeRejectsUnknownEvent(t *testing.T) {
	if _, err := Decode([]byte(`{"event":"reboot"}`)); err == nil {
		t.Fatalf("expected an error for an unknown event kind")
	}
}

func TestDecodeRejectsGarbage(t *testing.T) {
	if _, err := Decode([]byte("not json")); err == nil {
		t.Fatalf("expected a decode error")
	}
}

func TestToEventRejectsUnknownStatus(t *testing.T) {
	env := &Envelope{Event: "task_run_status_changed", Status: "Exploded"}
	if _, err := env.ToEvent(); err == nil {
		t.Fatalf("expected an error for an unknown task status")
	}
}
