package failure

import (
	"errors"
	"fmt"
)

type Code string

const (
	ResolutionFailed   Code = "UPD_RESOLUTION_FAILED"
	FetchFailed        Code = "UPD_FETCH_FAILED"
	RootSetupFailed    Code = "UPD_ROOT_SETUP_FAILED"
	ManifestCorrupt    Code = "UPD_MANIFEST_CORRUPT"
	BackupFailed       Code = "UPD_BACKUP_FAILED"
	QuarantineFailed   Code = "UPD_QUARANTINE_FAILED"
	ExtractFailed      Code = "UPD_EXTRACT_FAILED"
	UnsafeArchiveEntry Code = "UPD_UNSAFE_ARCHIVE_ENTRY"
	ManifestSaveFailed Code = "UPD_MANIFEST_SAVE_FAILED"
	RecoveryFailed     Code = "UPD_RECOVERY_FAILED"
	LaunchFailed       Code = "UPD_LAUNCH_FAILED"
)

// Error is a stage failure carrying its taxonomy code and the operation
// that produced it.
type Error struct {
	Code Code
	Op   string
	Err  error
}

func New(code Code, op string, err error) *Error {
	return &Error{Code: code, Op: op, Err: err}
}

func Errorf(code Code, op string, format string, args ...any) *Error {
	return &Error{Code: code, Op: op, Err: fmt.Errorf(format, args...)}
}

func (e *Error) Error() string {
	switch {
	case e.Op != "" && e.Err != nil:
		return fmt.Sprintf("%s: %s: %v", e.Code, e.Op, e.Err)
	case e.Err != nil:
		return fmt.Sprintf("%s: %v", e.Code, e.Err)
	case e.Op != "":
		return fmt.Sprintf("%s: %s", e.Code, e.Op)
	}
	return string(e.Code)
}

func (e *Error) Unwrap() error { return e.Err }

// CodeOf returns the code of the outermost *Error in err's chain, or "".
func CodeOf(err error) Code {
	var fe *Error
	if errors.As(err, &fe) {
		return fe.Code
	}
	return ""
}

// Is reports whether any *Error in err's tree carries code.
func Is(err error, code Code) bool {
	return errors.Is(err, &Error{Code: code})
}

// Is matches a bare code target such as &Error{Code: BackupFailed}.
func (e *Error) Is(target error) bool {
	t, ok := target.(*Error)
	if !ok || t.Op != "" || t.Err != nil {
		return false
	}
	return e.Code == t.Code
}

// Recoverable reports whether a failure with this code may have displaced
// managed files and therefore warrants a rollback attempt.
func Recoverable(code Code) bool {
	switch code {
	case BackupFailed, QuarantineFailed, ExtractFailed, UnsafeArchiveEntry, ManifestSaveFailed:
		return true
	}
	return false
}

// RollbackError reports an update failure whose automatic recovery failed too.
type RollbackError struct {
	Original error
	Recovery error
}

func (e *RollbackError) Error() string {
	return fmt.Sprintf("%v; rollback failed: %v", e.Original, e.Recovery)
}

func (e *RollbackError) Unwrap() []error {
	return []error{e.Original, e.Recovery}
}
