package transport

import (
	"fmt"
	"log/syslog"

	"vulnalert/internal/logger"
	"vulnalert/pkg/models"
)

// SyslogHandler logs the event to the local syslog daemon. No
// subprocess, no report content.
type SyslogHandler struct {
	// Emit writes one line at the given facility. Replaceable, so
	// tests can observe dispatches without a syslog daemon.
	Emit func(facility, message string) error
}

// NewSyslogHandler creates the syslog handler.
func NewSyslogHandler() *SyslogHandler {
	return &SyslogHandler{Emit: emitSyslog}
}

// Kind returns MethodSyslog.
func (h *SyslogHandler) Kind() models.MethodKind { return models.MethodSyslog }

// Dispatch writes "<event name>: <event description>".
func (h *SyslogHandler) Dispatch(ctx *Context) models.DispatchResult {
	facility := ctx.MethodData("submethod")
	if facility == "" {
		facility = "syslog"
	}
	message := fmt.Sprintf("%s: %s", ctx.Event.Kind, ctx.Event.Description())

	if err := h.Emit(facility, message); err != nil {
		logger.Errorf("Alert %s: syslog write failed: %v", ctx.Alert.ID, err)
		return models.NewResult(models.ErrInternal)
	}
	return models.NewResult(models.OK)
}

func emitSyslog(facility, message string) error {
	w, err := syslog.New(syslogPriority(facility)|syslog.LOG_INFO, "vulnalert")
	if err != nil {
		return err
	}
	defer w.Close()
	return w.Info(message)
}

func syslogPriority(facility string) syslog.Priority {
	switch facility {
	case "daemon":
		return syslog.LOG_DAEMON
	case "user":
		return syslog.LOG_USER
	case "auth":
		return syslog.LOG_AUTH
	case "local0":
		return syslog.LOG_LOCAL0
	case "local1":
		return syslog.LOG_LOCAL1
	case "local2":
		return syslog.LOG_LOCAL2
	case "local3":
		return syslog.LOG_LOCAL3
	case "local4":
		return syslog.LOG_LOCAL4
	case "local5":
		return syslog.LOG_LOCAL5
	case "local6":
		return syslog.LOG_LOCAL6
	case "local7":
		return syslog.LOG_LOCAL7
	default:
		return syslog.LOG_SYSLOG
	}
}
