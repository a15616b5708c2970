package discovery

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

var (
	ErrNoExecutable = errors.New("executable is required")
	ErrNoDeadline   = errors.New("deadline must be positive")
)

// ProviderInvocationSpec describes how to start one provider. Environment is
// merged over the inherited environment and wins on conflicts.
type ProviderInvocationSpec struct {
	Executable  string
	Arguments   []string
	Environment map[string]string
	Deadline    time.Duration
}

func (s ProviderInvocationSpec) Validate() error {
	if s.Executable == "" {
		return ErrNoExecutable
	}
	if s.Deadline <= 0 {
		return fmt.Errorf("%w: got %s", ErrNoDeadline, s.Deadline)
	}
	return nil
}

type ToolDescriptor struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	InputSchema json.RawMessage `json:"inputSchema,omitempty"`
}

type ServerIdentity struct {
	Name    string `json:"name"`
	Version string `json:"version,omitempty"`
}

// SessionResult is the outcome of one Discover call. Error is set exactly
// when Success is false; Tools is empty in that case.
type SessionResult struct {
	Success        bool             `json:"success"`
	Tools          []ToolDescriptor `json:"tools"`
	Error          string           `json:"error,omitempty"`
	ServerIdentity *ServerIdentity  `json:"serverInfo,omitempty"`
}

func failure(reason string) SessionResult {
	return SessionResult{Success: false, Tools: []ToolDescriptor{}, Error: reason}
}
