package constants

// FileState is the lifecycle of a watched document.
type FileState string

// Stable values (these also appear in logs and outcome events).
const (
	FileDiscovered      FileState = "DISCOVERED"
	FileQueued          FileState = "QUEUED"
	FileProcessing      FileState = "PROCESSING"
	FileArchivedSuccess FileState = "ARCHIVED_SUCCESS"
	FileArchivedFailed  FileState = "ARCHIVED_FAILED" // needs review
)

// IsTerminal reports whether no further transition is allowed.
func (s FileState) IsTerminal() bool {
	return s == FileArchivedSuccess || s == FileArchivedFailed
}

// CanTransition enforces DISCOVERED -> QUEUED -> PROCESSING -> ARCHIVED_*.
func (s FileState) CanTransition(next FileState) bool {
	switch s {
	case "":
		return next == FileDiscovered
	case FileDiscovered:
		return next == FileQueued
	case FileQueued:
		return next == FileProcessing
	case FileProcessing:
		return next == FileArchivedSuccess || next == FileArchivedFailed
	default:
		return false
	}
}

// Review flags attached to records that pass validation but deserve a look.
const (
	FlagUnknownCategory = "unknown_category"
	FlagZeroAmount      = "zero_amount"
)
