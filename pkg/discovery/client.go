package discovery

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/edgeopslabs/probe/pkg/process"
	"github.com/mark3labs/mcp-go/mcp"
)

const (
	DefaultClientName    = "probe"
	DefaultClientVersion = "v0.0.1"
)

var ErrNoProcess = errors.New("launcher returned no process")

// Process is a running provider as seen by a session.
type Process interface {
	Conn
	Terminate()
}

// LaunchFunc starts a provider. The returned Process is owned by exactly one
// Discover call.
type LaunchFunc func(spec process.Spec) (Process, error)

type Client struct {
	launch          LaunchFunc
	clientInfo      mcp.Implementation
	protocolVersion string
	logger          *slog.Logger
}

type Option func(*Client)

func WithClientInfo(name, version string) Option {
	return func(c *Client) {
		if name != "" {
			c.clientInfo.Name = name
		}
		if version != "" {
			c.clientInfo.Version = version
		}
	}
}

func WithProtocolVersion(version string) Option {
	return func(c *Client) {
		if version != "" {
			c.protocolVersion = version
		}
	}
}

func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) {
		if logger != nil {
			c.logger = logger
		}
	}
}

func WithLauncher(launch LaunchFunc) Option {
	return func(c *Client) {
		if launch != nil {
			c.launch = launch
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		clientInfo:      mcp.Implementation{Name: DefaultClientName, Version: DefaultClientVersion},
		protocolVersion: mcp.LATEST_PROTOCOL_VERSION,
		logger:          slog.Default(),
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.launch == nil {
		c.launch = ProcessLauncher(&process.Launcher{Logger: c.logger})
	}
	return c
}

// ProcessLauncher adapts a process.Launcher to a LaunchFunc.
func ProcessLauncher(l *process.Launcher) LaunchFunc {
	return func(spec process.Spec) (Process, error) {
		h, err := l.Spawn(spec)
		if err != nil {
			return nil, err
		}
		return h, nil
	}
}

// Discover runs one session with the package defaults.
func Discover(ctx context.Context, spec ProviderInvocationSpec) SessionResult {
	return NewClient().Discover(ctx, spec)
}

// Discover starts the provider, runs the handshake under spec.Deadline and
// kills the provider before returning, whatever the outcome. It never
// panics; every failure is reported in the result.
func (c *Client) Discover(ctx context.Context, spec ProviderInvocationSpec) (result SessionResult) {
	logger := c.logger.With("executable", spec.Executable)
	if err := spec.Validate(); err != nil {
		logger.Warn("invalid provider spec", "error", err)
		return failure(fmt.Sprintf("invalid provider spec: %v", err))
	}

	if err := ctx.Err(); err != nil {
		logger.Debug("discovery canceled before launch", "error", err)
		return failure(fmt.Sprintf("discovery canceled: %v", err))
	}

	proc, err := c.launch(process.Spec{
		Executable: spec.Executable,
		Args:       spec.Arguments,
		Env:        spec.Environment,
	})
	if err == nil && proc == nil {
		err = ErrNoProcess
	}
	if err != nil {
		logger.Warn("failed to start provider", "error", err)
		return failure(fmt.Sprintf("failed to start provider: %v", err))
	}

	start := time.Now()
	defer func() {
		if r := recover(); r != nil {
			result = failure(fmt.Sprintf("internal error: %v", r))
		}
		proc.Terminate()

		elapsed := time.Since(start)
		if result.Success {
			logger.Info("discovery finished", "tools", len(result.Tools), "elapsed", elapsed)
		} else {
			logger.Warn("discovery failed", "error", result.Error, "elapsed", elapsed)
		}
	}()

	params := initializeParams{
		ProtocolVersion: c.protocolVersion,
		Capabilities:    mcp.ClientCapabilities{},
		ClientInfo:      c.clientInfo,
	}
	out := withDeadline(ctx, spec.Deadline, func(ctx context.Context) outcome {
		return newHandshake(proc, params, logger).run(ctx)
	})
	if out.err != nil {
		return failure(out.err.Error())
	}
	return SessionResult{
		Success:        true,
		Tools:          out.tools,
		ServerIdentity: out.identity,
	}
}
