package jsonrpc

import (
	"encoding/json"

	"github.com/mark3labs/mcp-go/mcp"
)

const Version = mcp.JSONRPC_VERSION

// Envelope is one of *Request, *Notification or *Response.
type Envelope interface {
	envelope()
}

type Request struct {
	ID     uint64
	Method string
	Params any
}

type Notification struct {
	Method string
	Params any
}

type Response struct {
	ID     uint64
	Result json.RawMessage
	Error  *Error
}

type Error struct {
	Code    int64  `json:"code"`
	Message string `json:"message"`
}

func (e *Error) Error() string {
	return e.Message
}

func (*Request) envelope()      {}
func (*Notification) envelope() {}
func (*Response) envelope()     {}

// Kind names the envelope variant for diagnostics.
func Kind(env Envelope) string {
	switch env.(type) {
	case *Request:
		return "request"
	case *Notification:
		return "notification"
	case *Response:
		return "response"
	default:
		return "unknown"
	}
}
