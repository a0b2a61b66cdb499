package domain

// SaveStatus is the state of a single fetch attempt.
//
// The set of values is closed: NotStarted, InProgress, Success, Failure.
// Switches over a SaveStatus must handle all four.
type SaveStatus uint8

const (
	SaveNotStarted SaveStatus = iota
	SaveInProgress
	SaveSuccess
	SaveFailure
)

func (s SaveStatus) String() string {
	switch s {
	case SaveNotStarted:
		return "not_started"
	case SaveInProgress:
		return "in_progress"
	case SaveSuccess:
		return "success"
	case SaveFailure:
		return "failure"
	default:
		return "unknown"
	}
}

// SaveResult is produced by the fetcher for each attempt. It is logged and
// used to decide whether a link gets marked processed, never persisted.
type SaveResult struct {
	Status       SaveStatus
	OrderID      int64
	LocalPath    string
	URL          string
	ErrorMessage string
}

// Succeeded reports whether the file landed on disk.
func (r SaveResult) Succeeded() bool { return r.Status == SaveSuccess }

// Fail returns a copy of r marked as failed with msg.
func (r SaveResult) Fail(msg string) SaveResult {
	r.Status = SaveFailure
	r.ErrorMessage = msg
	return r
}
