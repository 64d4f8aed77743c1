package quarry

import (
	"encoding/json"
	"errors"
	"fmt"
)

// StatusNotExecuted is the status of a Response for which no request was sent,
// for example when Mine is called with an unknown alias.
const StatusNotExecuted = 0

// Response describes the outcome of a call.
// Err carries network or timeout failures reported by the transport.
type Response struct {
	Status  int
	Headers map[string]string
	Body    string
	Err     error
}

// Executed reports whether a request was actually dispatched.
func (r Response) Executed() bool {
	return r.Status != StatusNotExecuted || r.Err != nil
}

// DecodeJSON unmarshals the response body into v.
func (r Response) DecodeJSON(v any) error {
	if r.Err != nil {
		return fmt.Errorf("response has transport error: %w", r.Err)
	}
	if r.Body == "" {
		return errors.New("response body is empty")
	}
	return json.Unmarshal([]byte(r.Body), v)
}
