// Package errdefs defines the daemon's error kinds (spec.md §7) as
// wrapped sentinel errors, in the style of the teacher's pkg/errdefs:
// callers compare with errors.Is against the sentinel, never a type
// switch, so wrapping with extra context never breaks classification.
package errdefs

import (
	"errors"
	"fmt"
)

var (
	// ErrNotSupported means the feature is absent on this vendor/driver
	// combination. It is a normal outcome, not a bug.
	ErrNotSupported = errors.New("not supported")

	// ErrInvalidArgument means the caller-supplied value fails validation
	// (fan percent out of [0,1], empty curve, mismatched PMFW curve length).
	ErrInvalidArgument = errors.New("invalid argument")

	// ErrPendingConfirmation means another mutation is awaiting confirm
	// or revert; the pending-confirm cell is a singleton (spec.md §4.4).
	ErrPendingConfirmation = errors.New("a config change is pending confirmation")

	// ErrIO wraps a sysfs/DRM read or write failure.
	ErrIO = errors.New("i/o error")

	// ErrParse wraps unexpected sysfs file content.
	ErrParse = errors.New("parse error")

	// ErrDeviceBusy means the clock-down wait before a power cap write
	// timed out (spec.md §4.2 step 1).
	ErrDeviceBusy = errors.New("device busy")

	// ErrPermissionDenied means the caller's socket peer group didn't
	// match daemon.admin_groups.
	ErrPermissionDenied = errors.New("permission denied")

	// ErrInternal means an invariant was violated; it should never
	// surface in ordinary operation.
	ErrInternal = errors.New("internal error")
)

// Kind identifies an error kind for RPC serialization (spec.md §4.5,
// §7: responses carry {kind, message}).
type Kind string

const (
	KindNotSupported       Kind = "not_supported"
	KindInvalidArgument    Kind = "invalid_argument"
	KindPendingConfirm     Kind = "pending_confirmation"
	KindIO                 Kind = "io_error"
	KindParse              Kind = "parse_error"
	KindDeviceBusy         Kind = "device_busy"
	KindPermissionDenied   Kind = "permission_denied"
	KindInternal           Kind = "internal"
	KindUnknown            Kind = "unknown"
)

var sentinelsByKind = []struct {
	kind Kind
	err  error
}{
	{KindNotSupported, ErrNotSupported},
	{KindInvalidArgument, ErrInvalidArgument},
	{KindPendingConfirm, ErrPendingConfirmation},
	{KindIO, ErrIO},
	{KindParse, ErrParse},
	{KindDeviceBusy, ErrDeviceBusy},
	{KindPermissionDenied, ErrPermissionDenied},
	{KindInternal, ErrInternal},
}

// ClassifyKind maps an error to its RPC-facing Kind by walking the
// wrap chain against each known sentinel. Unrecognized errors (e.g.
// a bare I/O error that was never wrapped) classify as KindUnknown.
func ClassifyKind(err error) Kind {
	if err == nil {
		return ""
	}
	for _, s := range sentinelsByKind {
		if errors.Is(err, s.err) {
			return s.kind
		}
	}
	return KindUnknown
}

// IsNotSupported reports whether err (or anything it wraps) is ErrNotSupported.
func IsNotSupported(err error) bool { return errors.Is(err, ErrNotSupported) }

// IsInvalidArgument reports whether err (or anything it wraps) is ErrInvalidArgument.
func IsInvalidArgument(err error) bool { return errors.Is(err, ErrInvalidArgument) }

// IsPendingConfirmation reports whether err (or anything it wraps) is ErrPendingConfirmation.
func IsPendingConfirmation(err error) bool { return errors.Is(err, ErrPendingConfirmation) }

// IsDeviceBusy reports whether err (or anything it wraps) is ErrDeviceBusy.
func IsDeviceBusy(err error) bool { return errors.Is(err, ErrDeviceBusy) }

// WithPath wraps err with sysfs path context (the IoError{path} /
// ParseError{path,line} shape from spec.md §7, flattened to a message
// since Go error wrapping doesn't carry structured fields).
func WithPath(err error, path string) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s: %w", path, err)
}

// WithLine wraps a parse error with sysfs path and line context.
func WithLine(err error, path string, line int) error {
	if err == nil {
		return nil
	}
	return fmt.Errorf("%s:%d: %w", path, line, err)
}

// InvalidArgumentf builds a new ErrInvalidArgument-classified error
// with a formatted message.
func InvalidArgumentf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrInvalidArgument)...)
}

// NotSupportedf builds a new ErrNotSupported-classified error with a
// formatted message.
func NotSupportedf(format string, args ...any) error {
	return fmt.Errorf(format+": %w", append(args, ErrNotSupported)...)
}
