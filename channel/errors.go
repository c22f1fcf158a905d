package channel

import "errors"

// ErrorReason is the machine-readable classification a service failure
// carries alongside its message.
type ErrorReason string

const (
	// ReasonTimeout marks a call that did not complete before the service's
	// deadline. Timeouts are the only delivery failures eligible for queued
	// retry on the creation path.
	ReasonTimeout ErrorReason = "timeout"
	// ReasonNotFound marks a lookup for a channel or transfer that does not
	// exist.
	ReasonNotFound ErrorReason = "not_found"
	// ReasonUnavailable marks transport-level failures reaching the service.
	ReasonUnavailable ErrorReason = "unavailable"
)

// ServiceError is the structured failure returned by channel service calls.
type ServiceError struct {
	Message string
	Reason  ErrorReason
	Cause   error
}

func (e *ServiceError) Error() string {
	if e == nil {
		return ""
	}
	if e.Reason != "" {
		return "channel service: " + e.Message + " (" + string(e.Reason) + ")"
	}
	return "channel service: " + e.Message
}

func (e *ServiceError) Unwrap() error {
	if e == nil {
		return nil
	}
	return e.Cause
}

// IsTimeout reports whether the error chain contains a timeout-classified
// service failure.
func IsTimeout(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Reason == ReasonTimeout
}

// IsNotFound reports whether the error chain contains a not-found service
// failure.
func IsNotFound(err error) bool {
	var se *ServiceError
	return errors.As(err, &se) && se.Reason == ReasonNotFound
}
