package media

import (
	"errors"
	"fmt"
	"os"
	"strings"
)

// Kind is a stable, user-presentable classification of a device
// acquisition failure.
type Kind int

const (
	KindUnknown Kind = iota
	KindPermissionDenied
	KindDeviceNotFound
	KindDeviceBusy
	KindUnsupportedConstraints
	KindSecurityBlocked
	KindUnsupportedPlatform
)

func (k Kind) String() string {
	switch k {
	case KindPermissionDenied:
		return "permission_denied"
	case KindDeviceNotFound:
		return "device_not_found"
	case KindDeviceBusy:
		return "device_busy"
	case KindUnsupportedConstraints:
		return "unsupported_constraints"
	case KindSecurityBlocked:
		return "security_blocked"
	case KindUnsupportedPlatform:
		return "unsupported_platform"
	}
	return "unknown"
}

// Error pairs a classification with the underlying device failure.
type Error struct {
	Kind  Kind
	cause error
}

func (e *Error) Error() string {
	if e.cause == nil {
		return fmt.Sprintf("media: %s", e.Kind)
	}
	return fmt.Sprintf("media: %s: %v", e.Kind, e.cause)
}

func (e *Error) Unwrap() error { return e.cause }

// NewError builds a classified acquisition error.
func NewError(kind Kind, cause error) *Error {
	return &Error{Kind: kind, cause: cause}
}

// KindOf extracts the classification from err, or KindUnknown.
func KindOf(err error) Kind {
	var me *Error
	if errors.As(err, &me) {
		return me.Kind
	}
	return KindUnknown
}

// Classify maps a raw device-layer failure onto a Kind. The driver
// stack reports OS errors with platform-specific wording, so matching
// is on errno sentinels first and message fragments second.
// KindSecurityBlocked is reserved for platform capture-policy denials
// and is produced by callers that hit one, never inferred here.
func Classify(err error) *Error {
	var me *Error
	if errors.As(err, &me) {
		return me
	}
	msg := strings.ToLower(err.Error())
	switch {
	case errors.Is(err, os.ErrPermission),
		strings.Contains(msg, "permission denied"),
		strings.Contains(msg, "operation not permitted"):
		return NewError(KindPermissionDenied, err)
	case strings.Contains(msg, "device or resource busy"),
		strings.Contains(msg, "device busy"),
		strings.Contains(msg, "already in use"):
		return NewError(KindDeviceBusy, err)
	case errors.Is(err, os.ErrNotExist),
		strings.Contains(msg, "no such device"),
		strings.Contains(msg, "no such file"),
		strings.Contains(msg, "device not found"):
		return NewError(KindDeviceNotFound, err)
	case strings.Contains(msg, "fits the constraints"),
		strings.Contains(msg, "unsupported constraint"):
		return NewError(KindUnsupportedConstraints, err)
	}
	return NewError(KindUnknown, err)
}
