// Package stackerr defines the error taxonomy shared by planning, provisioning
// and the stack lifecycle.
//
// Three categories exist:
//
//   - ConfigurationError: the declared topology is wrong (cycles, missing or
//     mismatched references, overbroad grants). Caught before anything is created.
//   - ProvisioningError: a create or delete call to the platform failed.
//   - PreconditionError: a component found another component's completed state
//     violated (for example a distribution whose identity is not yet granted).
//
// Each category wraps one of the sentinel errors below so callers can branch
// with errors.Is and errors.As.
package stackerr

import (
	"errors"
	"fmt"
)

// Sentinel causes.
var (
	ErrCyclicDependency    = errors.New("CyclicDependency")
	ErrMissingDependency   = errors.New("MissingDependency")
	ErrInvalidReference    = errors.New("InvalidReference")
	ErrDuplicateResource   = errors.New("DuplicateResource")
	ErrInvalidBucket       = errors.New("InvalidBucket")
	ErrInvalidPrincipal    = errors.New("InvalidPrincipal")
	ErrOverbroadGrant      = errors.New("OverbroadGrant")
	ErrEmptyGrant          = errors.New("EmptyGrant")
	ErrIdentityMismatch    = errors.New("IdentityMismatch")
	ErrInvalidBehavior     = errors.New("InvalidBehavior")
	ErrInvalidErrorMap     = errors.New("InvalidErrorMap")
	ErrOriginNotAuthorized = errors.New("OriginNotAuthorized")
	ErrDependencyNotReady  = errors.New("DependencyNotReady")
	ErrUnknownHandler      = errors.New("UnknownHandler")
)

// ConfigurationError reports a defect in the declared topology.
type ConfigurationError struct {
	Resource string
	Err      error
}

func (e *ConfigurationError) Error() string {
	if e.Resource == "" {
		return fmt.Sprintf("configuration error: %v", e.Err)
	}
	return fmt.Sprintf("configuration error: %s: %v", e.Resource, e.Err)
}

func (e *ConfigurationError) Unwrap() error { return e.Err }

// ProvisioningError reports a failed platform call for a single resource.
type ProvisioningError struct {
	Resource string
	Op       string // "create" or "delete"
	Err      error
}

func (e *ProvisioningError) Error() string {
	return fmt.Sprintf("provisioning error: %s %s: %v", e.Op, e.Resource, e.Err)
}

func (e *ProvisioningError) Unwrap() error { return e.Err }

// PreconditionError reports that a dependency's state does not allow the
// operation to proceed.
type PreconditionError struct {
	Resource string
	Err      error
}

func (e *PreconditionError) Error() string {
	return fmt.Sprintf("precondition failed: %s: %v", e.Resource, e.Err)
}

func (e *PreconditionError) Unwrap() error { return e.Err }

// Configuration builds a ConfigurationError wrapping cause with a formatted detail.
func Configuration(resource string, cause error, format string, args ...any) error {
	return &ConfigurationError{Resource: resource, Err: withDetail(cause, format, args...)}
}

// Precondition builds a PreconditionError wrapping cause with a formatted detail.
func Precondition(resource string, cause error, format string, args ...any) error {
	return &PreconditionError{Resource: resource, Err: withDetail(cause, format, args...)}
}

// Provisioning wraps a platform failure for resource.
func Provisioning(resource, op string, err error) error {
	return &ProvisioningError{Resource: resource, Op: op, Err: err}
}

// IsConfiguration reports whether err is (or wraps) a ConfigurationError.
func IsConfiguration(err error) bool {
	var target *ConfigurationError
	return errors.As(err, &target)
}

// IsPrecondition reports whether err is (or wraps) a PreconditionError.
func IsPrecondition(err error) bool {
	var target *PreconditionError
	return errors.As(err, &target)
}

// IsProvisioning reports whether err is (or wraps) a ProvisioningError.
func IsProvisioning(err error) bool {
	var target *ProvisioningError
	return errors.As(err, &target)
}

// Category names the taxonomy bucket of err for user-facing reports.
func Category(err error) string {
	switch {
	case err == nil:
		return ""
	case IsConfiguration(err):
		return "ConfigurationError"
	case IsPrecondition(err):
		return "PreconditionError"
	case IsProvisioning(err):
		return "ProvisioningError"
	default:
		return "Error"
	}
}

func withDetail(cause error, format string, args ...any) error {
	if format == "" {
		return cause
	}
	return fmt.Errorf("%w: %s", cause, fmt.Sprintf(format, args...))
}
