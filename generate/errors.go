package generate

import "fmt"

// APIError is returned when the API answers with an error status or an error object.
type APIError struct {
	StatusCode int
	Message    string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("API error (status %d): %s", e.StatusCode, e.Message)
}

// MalformedResponseError is returned when a successful response lacks the
// content or usage fields an answer needs.
type MalformedResponseError struct {
	Reason string
	Body   string
}

func (e *MalformedResponseError) Error() string {
	if e.Body == "" {
		return "malformed response: " + e.Reason
	}
	return fmt.Sprintf("malformed response: %s (body: %s)", e.Reason, e.Body)
}
