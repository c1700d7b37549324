// Package flows holds the user-facing operations: upload, history,
// dashboard and report download. Each reports failures as errors with a
// message fit for display.
package flows

import "chemviz/internal/transport"

const (
	UploadFailedMessage  = "Upload failed. Please try again."
	HistoryFailedMessage = "Failed to load history. Please try again."
	SummaryFailedMessage = "Failed to load summary. Please try again."
	ReportFailedMessage  = "Failed to download PDF. Please try again."
)

// ValidationError is an input refused before any request is sent.
type ValidationError struct {
	Reason  string
	Message string
}

func (e *ValidationError) Error() string       { return e.Message }
func (e *ValidationError) UserMessage() string { return e.Message }

// RequestError is a failed backend call. Message is what the user sees:
// the backend's own error text, or the operation's generic fallback.
type RequestError struct {
	Op      string
	Message string
	Err     error
}

func (e *RequestError) Error() string       { return e.Op + ": " + e.Err.Error() }
func (e *RequestError) Unwrap() error       { return e.Err }
func (e *RequestError) UserMessage() string { return e.Message }

func requestError(op, fallback string, err error) *RequestError {
	return &RequestError{Op: op, Message: transport.UserMessage(err, fallback), Err: err}
}
