// Package message defines the envelopes exchanged between client and server.
//
// A Request names one device operation and carries its arguments. A Response
// is the pair (status, payload): on success the payload is the operation's
// result, on failure an ErrorDescriptor. Argument and result values are kept as
// raw JSON so every codec carries them the same way.
package message

import (
	"encoding/json"
	"errors"
	"fmt"

	"temctl/device"
)

// Response status codes.
const (
	StatusOK    = 200
	StatusError = 500
)

// Control strings recognized by the server before dispatch.
const (
	ControlClose = "close" // end the current connection
	ControlKill  = "kill"  // end the connection and stop the server
)

// Request carries the data for a single operation call.
type Request struct {
	Operation string                     `json:"operation"`
	Args      []json.RawMessage          `json:"args"`
	Kwargs    map[string]json.RawMessage `json:"kwargs"`
}

// NewRequest marshals positional and keyword arguments into a Request.
func NewRequest(operation string, args []any, kwargs map[string]any) (*Request, error) {
	req := &Request{Operation: operation, Args: make([]json.RawMessage, 0, len(args))}
	for i, a := range args {
		raw, err := json.Marshal(a)
		if err != nil {
			return nil, fmt.Errorf("argument %d of %s: %w", i, operation, err)
		}
		req.Args = append(req.Args, raw)
	}
	if len(kwargs) > 0 {
		req.Kwargs = make(map[string]json.RawMessage, len(kwargs))
		for name, v := range kwargs {
			raw, err := json.Marshal(v)
			if err != nil {
				return nil, fmt.Errorf("argument %q of %s: %w", name, operation, err)
			}
			req.Kwargs[name] = raw
		}
	}
	return req, nil
}

// ErrorDescriptor is the failure payload of a StatusError response.
type ErrorDescriptor struct {
	Kind    string `json:"kind"`
	Message string `json:"message"`
}

// Err rebuilds the device error the descriptor was made from.
func (d ErrorDescriptor) Err() *device.Error {
	return &device.Error{Kind: device.ParseKind(d.Kind), Message: d.Message}
}

// Response is the (status, payload) pair sent back for every Request.
type Response struct {
	Status  int
	Payload json.RawMessage
}

var null = json.RawMessage("null")

// OK wraps an operation result. A nil result is sent as JSON null.
func OK(result any) (*Response, error) {
	if result == nil {
		return &Response{Status: StatusOK, Payload: null}, nil
	}
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, err
	}
	return &Response{Status: StatusOK, Payload: raw}, nil
}

// Failure wraps err as an error response. Errors that are not device errors
// are reported as InternalError.
func Failure(err error) *Response {
	d := ErrorDescriptor{Kind: string(device.KindOf(err)), Message: err.Error()}
	var de *device.Error
	if errors.As(err, &de) {
		d.Message = de.Message
	}
	raw, _ := json.Marshal(d) // two strings, cannot fail
	return &Response{Status: StatusError, Payload: raw}
}

// Err returns the error carried by a StatusError response, or nil.
func (r *Response) Err() error {
	if r.Status != StatusError {
		return nil
	}
	var d ErrorDescriptor
	if err := json.Unmarshal(r.Payload, &d); err != nil {
		return device.Errorf(device.KindInternal, "undecodable error payload: %s", r.Payload)
	}
	return d.Err()
}

// Valid reports whether the status is one the protocol defines.
func (r *Response) Valid() bool {
	return r.Status == StatusOK || r.Status == StatusError
}

// MarshalJSON encodes the response as a two-element array.
func (r Response) MarshalJSON() ([]byte, error) {
	payload := r.Payload
	if len(payload) == 0 {
		payload = null
	}
	return json.Marshal([2]any{r.Status, payload})
}

// UnmarshalJSON accepts exactly a two-element array.
func (r *Response) UnmarshalJSON(data []byte) error {
	var pair []json.RawMessage
	if err := json.Unmarshal(data, &pair); err != nil {
		return fmt.Errorf("response must be a (status, payload) pair: %w", err)
	}
	if len(pair) != 2 {
		return fmt.Errorf("response must be a (status, payload) pair, got %d elements", len(pair))
	}
	if err := json.Unmarshal(pair[0], &r.Status); err != nil {
		return fmt.Errorf("response status: %w", err)
	}
	r.Payload = pair[1]
	return nil
}
