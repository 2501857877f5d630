package models

// Code is the dispatch result taxonomy. Downstream logging depends on
// every value staying distinct, so handlers return codes unchanged up
// the call chain.
type Code int

const (
	// OK means the alert method ran to completion.
	OK Code = 0
	// ErrInternal covers I/O failures, missing helpers, encryption
	// failures and malformed method data.
	ErrInternal Code = -1
	// ErrReportFormat means a referenced report format could not be
	// resolved.
	ErrReportFormat Code = -2
	// ErrFilter means a referenced filter could not be resolved.
	ErrFilter Code = -3
	// ErrCredential means a referenced credential could not be
	// resolved.
	ErrCredential Code = -4
	// ErrScriptFailed means the external helper ran but reported
	// failure; DispatchResult.Message carries its diagnostic when one
	// was written.
	ErrScriptFailed Code = -5

	// The positive codes are reserved for the ad-hoc test entry point.
	CodeAlertNotFound    Code = 1
	CodeTaskNotFound     Code = 2
	CodePermissionDenied Code = 99
)

// DispatchResult is the outcome of firing one alert.
type DispatchResult struct {
	Code    Code
	Message string
}

// Ok reports whether the dispatch succeeded.
func (r DispatchResult) Ok() bool { return r.Code == OK }

// NewResult builds a DispatchResult without a message.
func NewResult(code Code) DispatchResult { return DispatchResult{Code: code} }
