package downloader

import "fmt"

// ConfigurationError reports a precondition failure checked synchronously at
// transfer start. No transfer state is created when one is returned.
type ConfigurationError struct {
	Reason string
}

func (e *ConfigurationError) Error() string {
	return e.Reason
}

// NotFoundError reports a missing rom or download record.
type NotFoundError struct {
	Resource string
}

func (e *NotFoundError) Error() string {
	return e.Resource + " not found"
}

// TransferError wraps a failure inside the transfer goroutine. Op names the
// stage that failed.
type TransferError struct {
	Op  string
	Err error
}

func (e *TransferError) Error() string {
	return fmt.Sprintf("%s failed: %v", e.Op, e.Err)
}

func (e *TransferError) Unwrap() error {
	return e.Err
}

// ExtractionError reports that every extraction strategy was exhausted. The
// transfer still completes with the archive kept on disk.
type ExtractionError struct {
	Reason string
}

func (e *ExtractionError) Error() string {
	return "extraction failed: " + e.Reason
}
