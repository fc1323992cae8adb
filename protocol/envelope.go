package protocol

import (
	"encoding/json"
	"fmt"
)

// Request is the protocol-level envelope for one inbound operation. The wire
// framing around it (stdio lines, websocket frames, ...) belongs to the
// transport collaborator.
type Request struct {
	ID     interface{}     `json:"id,omitempty"`
	Method string          `json:"method"`
	Params json.RawMessage `json:"params,omitempty"`

	// Auth carries the caller's bearer token. Optional unless the server
	// runs with a token validator, in which case tools/call requires it.
	Auth string `json:"auth,omitempty"`
}

// IsNotification reports whether the request expects no response.
func (r *Request) IsNotification() bool { return r.ID == nil }

// Response is the envelope returned for a request.
type Response struct {
	ID     interface{}     `json:"id,omitempty"`
	Result json.RawMessage `json:"result,omitempty"`
	Error  *BridgeError    `json:"error,omitempty"`
}

// Notification is a server-initiated message with no ID.
type Notification struct {
	Method string      `json:"method"`
	Params interface{} `json:"params,omitempty"`
}

// ParseRequest decodes an inbound envelope.
func ParseRequest(data []byte) (*Request, error) {
	var req Request
	if err := json.Unmarshal(data, &req); err != nil {
		return nil, fmt.Errorf("parsing request: %w", err)
	}
	if req.Method == "" {
		return nil, fmt.Errorf("request missing method")
	}
	return &req, nil
}

// NewResponse builds a success response for the given request ID.
func NewResponse(id interface{}, result interface{}) (*Response, error) {
	raw, err := json.Marshal(result)
	if err != nil {
		return nil, fmt.Errorf("marshaling result: %w", err)
	}
	return &Response{ID: id, Result: raw}, nil
}

// NewErrorResponse builds an error response carrying a structured BridgeError.
func NewErrorResponse(id interface{}, err error) *Response {
	return &Response{ID: id, Error: AsBridgeError(err)}
}
