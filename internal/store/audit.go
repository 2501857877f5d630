package store

import "vulnalert/internal/logger"

// LogAudit writes audit entries through the package logger. The event
// log is the only record of event-driven dispatch outcomes.
type LogAudit struct{}

// Event records a successful action on a resource.
func (LogAudit) Event(resourceType, resourceName, id, action string) {
	logger.Infof("%s %s (%s): %s", resourceName, id, resourceType, action)
}

// Fail records a failed action on a resource.
func (LogAudit) Fail(resourceType, resourceName, id, action string) {
	logger.Errorf("%s %s (%s): %s: failed", resourceName, id, resourceType, action)
}
