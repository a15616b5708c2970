package jsonrpc

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

const maxRawInError = 512

var (
	ErrNilEnvelope     = errors.New("nil envelope")
	ErrEmptyMethod     = errors.New("method is required")
	ErrResponseOutcome = errors.New("response must carry exactly one of result or error")
)

// DecodeError reports a line that is not a usable envelope. Line holds the
// raw input so callers can surface it in diagnostics.
type DecodeError struct {
	Line   string
	Reason string
	Err    error
}

func (e *DecodeError) Error() string {
	msg := e.Reason
	if e.Err != nil {
		msg += ": " + e.Err.Error()
	}
	return fmt.Sprintf("%s (raw: %s)", msg, truncate(e.Line, maxRawInError))
}

func (e *DecodeError) Unwrap() error {
	return e.Err
}

// Encode renders env as one compact JSON object followed by a single '\n'.
// The wire shapes are mcp-go's JSON-RPC message types.
func Encode(env Envelope) ([]byte, error) {
	msg, err := toWire(env)
	if err != nil {
		return nil, err
	}

	data, err := json.Marshal(msg)
	if err != nil {
		return nil, fmt.Errorf("failed to marshal %s: %w", Kind(env), err)
	}
	if bytes.IndexByte(data, '\n') >= 0 {
		return nil, fmt.Errorf("encoded %s contains a line break", Kind(env))
	}
	return append(data, '\n'), nil
}

func toWire(env Envelope) (mcp.JSONRPCMessage, error) {
	switch v := env.(type) {
	case *Request:
		if v == nil {
			return nil, ErrNilEnvelope
		}
		if v.Method == "" {
			return nil, ErrEmptyMethod
		}
		return mcp.JSONRPCRequest{
			JSONRPC: Version,
			ID:      mcp.NewRequestId(v.ID),
			Params:  v.Params,
			Request: mcp.Request{Method: v.Method},
		}, nil
	case *Notification:
		if v == nil {
			return nil, ErrNilEnvelope
		}
		if v.Method == "" {
			return nil, ErrEmptyMethod
		}
		params, err := notificationParams(v.Params)
		if err != nil {
			return nil, err
		}
		return mcp.JSONRPCNotification{
			JSONRPC:      Version,
			Notification: mcp.Notification{Method: v.Method, Params: params},
		}, nil
	case *Response:
		if v == nil {
			return nil, ErrNilEnvelope
		}
		if (len(v.Result) == 0) == (v.Error == nil) {
			return nil, ErrResponseOutcome
		}
		if v.Error != nil {
			return mcp.JSONRPCError{
				JSONRPC: Version,
				ID:      mcp.NewRequestId(v.ID),
				Error:   mcp.JSONRPCErrorDetails{Code: int(v.Error.Code), Message: v.Error.Message},
			}, nil
		}
		return mcp.JSONRPCResponse{
			JSONRPC: Version,
			ID:      mcp.NewRequestId(v.ID),
			Result:  v.Result,
		}, nil
	default:
		return nil, ErrNilEnvelope
	}
}

// notificationParams folds params into mcp-go's notification params, which
// only carry JSON objects.
func notificationParams(params any) (mcp.NotificationParams, error) {
	var out mcp.NotificationParams
	if params == nil {
		return out, nil
	}
	data, err := json.Marshal(params)
	if err != nil {
		return out, fmt.Errorf("failed to marshal notification params: %w", err)
	}
	if err := json.Unmarshal(data, &out); err != nil {
		return out, fmt.Errorf("notification params must be a JSON object: %w", err)
	}
	// Unmarshal always allocates Meta; an empty one would be emitted as "_meta":{}.
	if len(out.Meta) == 0 {
		out.Meta = nil
	}
	return out, nil
}

// Decode parses one received line. Classification follows key presence: id
// and method make a request, method alone a notification, id with result or
// error a response. Anything else is a *DecodeError.
func Decode(line []byte) (Envelope, error) {
	trimmed := bytes.TrimSpace(line)
	if len(trimmed) == 0 {
		return nil, &DecodeError{Line: string(line), Reason: "empty line"}
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(trimmed, &fields); err != nil {
		return nil, &DecodeError{Line: string(line), Reason: "invalid json", Err: err}
	}

	rawID, hasID := nonNull(fields, "id")
	rawMethod, hasMethod := nonNull(fields, "method")
	rawResult, hasResult := fields["result"]
	rawError, hasError := nonNull(fields, "error")

	fail := func(reason string, err error) (Envelope, error) {
		return nil, &DecodeError{Line: string(line), Reason: reason, Err: err}
	}

	switch {
	case hasMethod && (hasResult || hasError):
		return fail("ambiguous message: method together with result or error", nil)
	case hasMethod:
		var method string
		if err := json.Unmarshal(rawMethod, &method); err != nil {
			return fail("invalid method", err)
		}
		if method == "" {
			return fail("invalid method", ErrEmptyMethod)
		}
		params := rawParams(fields)
		if !hasID {
			return &Notification{Method: method, Params: params}, nil
		}
		var id uint64
		if err := json.Unmarshal(rawID, &id); err != nil {
			return fail("invalid request id", err)
		}
		return &Request{ID: id, Method: method, Params: params}, nil
	case hasResult && hasError:
		return fail("ambiguous response", ErrResponseOutcome)
	case hasResult || hasError:
		if !hasID {
			return fail("response without id", nil)
		}
		var id uint64
		if err := json.Unmarshal(rawID, &id); err != nil {
			return fail("invalid response id", err)
		}
		resp := &Response{ID: id}
		if hasError {
			var rpcErr Error
			if err := json.Unmarshal(rawError, &rpcErr); err != nil {
				return fail("invalid error object", err)
			}
			resp.Error = &rpcErr
		} else {
			resp.Result = rawResult
		}
		return resp, nil
	default:
		return fail("not a request, notification or response", nil)
	}
}

func nonNull(fields map[string]json.RawMessage, key string) (json.RawMessage, bool) {
	raw, ok := fields[key]
	if !ok || bytes.Equal(bytes.TrimSpace(raw), []byte("null")) {
		return nil, false
	}
	return raw, true
}

func rawParams(fields map[string]json.RawMessage) any {
	raw, ok := fields["params"]
	if !ok {
		return nil
	}
	return raw
}

func truncate(s string, max int) string {
	if len(s) <= max {
		return s
	}
	return s[:max] + "... truncated"
}
