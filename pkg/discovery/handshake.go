package discovery

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"

	"github.com/edgeopslabs/probe/pkg/jsonrpc"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	initializeID uint64 = 1
	toolsListID  uint64 = 2

	methodInitialized = "notifications/initialized"
	unknownServerName = "unknown"
)

var (
	ErrNoResponse        = errors.New("no response from provider")
	ErrUnexpectedMessage = errors.New("unexpected message")
	ErrIDMismatch        = errors.New("response id mismatch")
)

type State int

const (
	StateStart State = iota
	StateAwaitingInitializeResponse
	StateAwaitingToolsResponse
	StateDone
	StateFailed
)

func (s State) String() string {
	switch s {
	case StateStart:
		return "start"
	case StateAwaitingInitializeResponse:
		return "awaiting-initialize-response"
	case StateAwaitingToolsResponse:
		return "awaiting-tools-response"
	case StateDone:
		return "done"
	case StateFailed:
		return "failed"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Conn is the line transport a handshake runs over.
type Conn interface {
	WriteLine(line []byte) error
	ReadLine() ([]byte, error)
}

type initializeParams struct {
	ProtocolVersion string                 `json:"protocolVersion"`
	Capabilities    mcp.ClientCapabilities `json:"capabilities"`
	ClientInfo      mcp.Implementation     `json:"clientInfo"`
}

type outcome struct {
	state    State
	identity *ServerIdentity
	tools    []ToolDescriptor
	err      error
}

type handshake struct {
	conn   Conn
	params initializeParams
	logger *slog.Logger
	state  State
}

func newHandshake(conn Conn, params initializeParams, logger *slog.Logger) *handshake {
	return &handshake{conn: conn, params: params, logger: logger, state: StateStart}
}

// run drives Start through Done or Failed. Every write is preceded by a
// context check so nothing more is sent once the deadline has passed.
func (h *handshake) run(ctx context.Context) outcome {
	initReq := &jsonrpc.Request{ID: initializeID, Method: string(mcp.MethodInitialize), Params: h.params}
	if err := h.send(ctx, initReq); err != nil {
		return h.fail(fmt.Errorf("failed to send initialize request: %w", err))
	}
	h.transition(StateAwaitingInitializeResponse)

	resp, err := h.await(initializeID, "initialize")
	if err != nil {
		return h.fail(err)
	}
	if resp.Error != nil {
		return h.fail(fmt.Errorf("initialize error: %s", resp.Error.Message))
	}
	identity := parseServerIdentity(resp.Result)

	if err := h.send(ctx, &jsonrpc.Notification{Method: methodInitialized}); err != nil {
		return h.fail(fmt.Errorf("failed to send initialized notification: %w", err))
	}
	list := &jsonrpc.Request{ID: toolsListID, Method: string(mcp.MethodToolsList), Params: struct{}{}}
	if err := h.send(ctx, list); err != nil {
		return h.fail(fmt.Errorf("failed to send tools query: %w", err))
	}
	h.transition(StateAwaitingToolsResponse)

	resp, err = h.await(toolsListID, "tools query")
	if err != nil {
		return h.fail(err)
	}
	if resp.Error != nil {
		return h.fail(fmt.Errorf("tools query error: %s", resp.Error.Message))
	}

	tools, dropped := parseTools(resp.Result)
	if dropped > 0 {
		h.logger.Debug("dropped malformed tool entries", "dropped", dropped, "kept", len(tools))
	}
	h.transition(StateDone)
	return outcome{state: StateDone, identity: identity, tools: tools}
}

func (h *handshake) transition(next State) {
	h.logger.Debug("handshake transition", "from", h.state, "to", next)
	h.state = next
}

func (h *handshake) fail(err error) outcome {
	h.transition(StateFailed)
	return outcome{state: StateFailed, err: err}
}

// send encodes env and writes it unless ctx is already done. The check sits
// directly before the write; a deadline that fires between the two is caught
// by the teardown closing the provider's input.
func (h *handshake) send(ctx context.Context, env jsonrpc.Envelope) error {
	line, err := jsonrpc.Encode(env)
	if err != nil {
		return err
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	return h.conn.WriteLine(line)
}

// await reads exactly one line and requires it to be the response to id.
func (h *handshake) await(id uint64, step string) (*jsonrpc.Response, error) {
	line, err := h.conn.ReadLine()
	if err != nil {
		return nil, fmt.Errorf("failed to read %s response: %w", step, err)
	}
	if line == nil {
		return nil, fmt.Errorf("%w to %s request: provider closed its output", ErrNoResponse, step)
	}

	env, err := jsonrpc.Decode(line)
	if err != nil {
		return nil, fmt.Errorf("failed to parse %s response: %w", step, err)
	}
	resp, ok := env.(*jsonrpc.Response)
	if !ok {
		return nil, fmt.Errorf("%w: expected %s response, got %s (raw: %s)", ErrUnexpectedMessage, step, jsonrpc.Kind(env), line)
	}
	if resp.ID != id {
		return nil, fmt.Errorf("%w: %s response has id %d, want %d", ErrIDMismatch, step, resp.ID, id)
	}
	return resp, nil
}

// parseServerIdentity is best-effort: an absent serverInfo gives nil, a
// present one without a usable name is reported as "unknown".
func parseServerIdentity(result json.RawMessage) *ServerIdentity {
	var payload struct {
		ServerInfo json.RawMessage `json:"serverInfo"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return nil
	}
	raw := bytes.TrimSpace(payload.ServerInfo)
	if len(raw) == 0 || bytes.Equal(raw, []byte("null")) {
		return nil
	}

	var info mcp.Implementation
	_ = json.Unmarshal(raw, &info)
	if info.Name == "" {
		info.Name = unknownServerName
	}
	return &ServerIdentity{Name: info.Name, Version: info.Version}
}

// parseTools keeps every entry with a non-empty string name and reports how
// many were dropped.
func parseTools(result json.RawMessage) ([]ToolDescriptor, int) {
	tools := []ToolDescriptor{}

	var payload struct {
		Tools []json.RawMessage `json:"tools"`
	}
	if err := json.Unmarshal(result, &payload); err != nil {
		return tools, 0
	}

	dropped := 0
	for _, raw := range payload.Tools {
		tool, ok := parseTool(raw)
		if !ok {
			dropped++
			continue
		}
		tools = append(tools, tool)
	}
	return tools, dropped
}

func parseTool(raw json.RawMessage) (ToolDescriptor, bool) {
	var fields map[string]json.RawMessage
	if err := json.Unmarshal(raw, &fields); err != nil || fields == nil {
		return ToolDescriptor{}, false
	}

	var tool ToolDescriptor
	if err := json.Unmarshal(fields["name"], &tool.Name); err != nil || tool.Name == "" {
		return ToolDescriptor{}, false
	}
	if desc, ok := fields["description"]; ok {
		_ = json.Unmarshal(desc, &tool.Description)
	}
	if schema, ok := fields["inputSchema"]; ok && !bytes.Equal(bytes.TrimSpace(schema), []byte("null")) {
		tool.InputSchema = schema
	}
	return tool, true
}
