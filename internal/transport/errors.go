package transport

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
)

// ErrUnauthorized is wrapped by every *StatusError carrying 401.
var ErrUnauthorized = errors.New("unauthorized")

// StatusError is a non-2xx response. Message holds the backend's error
// text when the body carried one.
type StatusError struct {
	Method  string
	Path    string
	Status  int
	Message string
}

func (e *StatusError) Error() string {
	if e.Message != "" {
		return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, e.Message)
	}
	return fmt.Sprintf("%s %s: %d %s", e.Method, e.Path, e.Status, http.StatusText(e.Status))
}

func (e *StatusError) Unwrap() error {
	if e.Status == http.StatusUnauthorized {
		return ErrUnauthorized
	}
	return nil
}

func (e *StatusError) UserMessage() string {
	return e.Message
}

func IsUnauthorized(err error) bool {
	return errors.Is(err, ErrUnauthorized)
}

// UserMessage picks the text to show for err: the message carried by the
// error when it has one, otherwise fallback.
func UserMessage(err error, fallback string) string {
	if err == nil {
		return ""
	}
	var um interface{ UserMessage() string }
	if errors.As(err, &um) {
		if msg := strings.TrimSpace(um.UserMessage()); msg != "" {
			return msg
		}
	}
	return fallback
}

func newStatusError(method, path string, resp *http.Response) *StatusError {
	se := &StatusError{Method: method, Path: path, Status: resp.StatusCode}
	raw, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
	var body struct {
		Error  string `json:"error"`
		Detail string `json:"detail"`
	}
	if json.Unmarshal(raw, &body) == nil {
		se.Message = body.Error
		if se.Message == "" {
			se.Message = body.Detail
		}
	}
	return se
}
