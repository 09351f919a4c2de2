package errors

import (
	stderrors "errors"
	"fmt"
)

type Kind string

const (
	KindVersionNotFound Kind = "VERSION_NOT_FOUND"
	KindLabelConflict   Kind = "LABEL_CONFLICT"
	KindProjectConflict Kind = "PROJECT_CONFLICT"
	KindProjectNotFound Kind = "PROJECT_NOT_FOUND"
	KindInvalidParent   Kind = "INVALID_PARENT"
	KindNothingToUndo   Kind = "NOTHING_TO_UNDO"
	KindStoreIO         Kind = "STORE_IO"
	KindCorruptIndex    Kind = "CORRUPT_INDEX"
)

// Error carries a machine-matchable kind alongside the message. StoreIO
// and CorruptIndex are fatal for the invocation; everything else is an
// ordinary user-recoverable condition.
type Error struct {
	Kind    Kind
	Message string
	Err     error
}

func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %v", e.Message, e.Err)
	}
	return e.Message
}

func (e *Error) Unwrap() error {
	return e.Err
}

func VersionNotFound(ref string) *Error {
	return &Error{
		Kind:    KindVersionNotFound,
		Message: fmt.Sprintf("version not found: %s", ref),
	}
}

func LabelConflict(label string, holder int) *Error {
	return &Error{
		Kind:    KindLabelConflict,
		Message: fmt.Sprintf("label %q already assigned to version %d", label, holder),
	}
}

func ProjectConflict(name string) *Error {
	return &Error{
		Kind:    KindProjectConflict,
		Message: fmt.Sprintf("project already exists: %s", name),
	}
}

func ProjectNotFound(name string) *Error {
	return &Error{
		Kind:    KindProjectNotFound,
		Message: fmt.Sprintf("project not found: %s", name),
	}
}

func InvalidParent(project string, parent int) *Error {
	return &Error{
		Kind:    KindInvalidParent,
		Message: fmt.Sprintf("parent version %d does not exist in project %s", parent, project),
	}
}

func NothingToUndo() *Error {
	return &Error{
		Kind:    KindNothingToUndo,
		Message: "nothing to undo",
	}
}

func StoreIO(message string, err error) *Error {
	return &Error{
		Kind:    KindStoreIO,
		Message: message,
		Err:     err,
	}
}

func CorruptIndex(message string, err error) *Error {
	return &Error{
		Kind:    KindCorruptIndex,
		Message: message,
		Err:     err,
	}
}

// IsKind reports whether err is (or wraps) a kiln error of the given kind.
func IsKind(err error, kind Kind) bool {
	var e *Error
	if !stderrors.As(err, &e) {
		return false
	}
	return e.Kind == kind
}

// Fatal reports whether the error should abort the invocation without
// retry: underlying storage failures and metadata integrity failures.
func Fatal(err error) bool {
	return IsKind(err, KindStoreIO) || IsKind(err, KindCorruptIndex)
}
