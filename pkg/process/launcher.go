package process

import (
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"os/exec"
	"sort"
	"strings"
	"sync"
	"time"
)

// DefaultReapTimeout bounds how long Terminate waits for a killed process to
// be reaped.
const DefaultReapTimeout = 2 * time.Second

var ErrEmptyExecutable = errors.New("executable is required")

type Spec struct {
	Executable string
	Args       []string
	Env        map[string]string
}

// LaunchError is returned by Spawn when no process could be started.
type LaunchError struct {
	Executable string
	Err        error
}

func (e *LaunchError) Error() string {
	return fmt.Sprintf("%s: %v", e.Executable, e.Err)
}

func (e *LaunchError) Unwrap() error {
	return e.Err
}

type Launcher struct {
	ReapTimeout time.Duration
	Logger      *slog.Logger
}

func NewLauncher() *Launcher {
	return &Launcher{ReapTimeout: DefaultReapTimeout}
}

// Spawn starts the executable with piped stdin and stdout. Stderr goes to the
// null device. The pipes are plain os.Pipe pairs so Wait never closes the
// read side underneath a pending ReadLine.
func (l *Launcher) Spawn(spec Spec) (*Handle, error) {
	if spec.Executable == "" {
		return nil, &LaunchError{Executable: spec.Executable, Err: ErrEmptyExecutable}
	}

	cmd := exec.Command(spec.Executable, spec.Args...)
	cmd.Env = MergeEnv(os.Environ(), spec.Env)

	stdinR, stdinW, err := os.Pipe()
	if err != nil {
		return nil, &LaunchError{Executable: spec.Executable, Err: fmt.Errorf("stdin pipe: %w", err)}
	}
	stdoutR, stdoutW, err := os.Pipe()
	if err != nil {
		stdinR.Close()
		stdinW.Close()
		return nil, &LaunchError{Executable: spec.Executable, Err: fmt.Errorf("stdout pipe: %w", err)}
	}
	cmd.Stdin = stdinR
	cmd.Stdout = stdoutW

	if err := cmd.Start(); err != nil {
		stdinR.Close()
		stdinW.Close()
		stdoutR.Close()
		stdoutW.Close()
		return nil, &LaunchError{Executable: spec.Executable, Err: err}
	}
	// The child holds its own copies now.
	stdinR.Close()
	stdoutW.Close()

	reap := l.ReapTimeout
	if reap <= 0 {
		reap = DefaultReapTimeout
	}
	logger := l.Logger
	if logger == nil {
		logger = slog.Default()
	}

	h := &Handle{
		cmd:         cmd,
		stdin:       stdinW,
		stdout:      stdoutR,
		reader:      bufio.NewReader(stdoutR),
		exited:      make(chan struct{}),
		reapTimeout: reap,
		logger:      logger,
	}
	go func() {
		err := cmd.Wait()
		logger.Debug("provider exited", "executable", spec.Executable, "pid", cmd.Process.Pid, "status", err)
		close(h.exited)
	}()
	logger.Debug("provider started", "executable", spec.Executable, "pid", cmd.Process.Pid)
	return h, nil
}

// MergeEnv overlays overlay on base. Overlay keys replace base entries with
// the same key; new keys are appended in sorted order.
func MergeEnv(base []string, overlay map[string]string) []string {
	if len(overlay) == 0 {
		return append([]string(nil), base...)
	}
	merged := make([]string, 0, len(base)+len(overlay))
	for _, kv := range base {
		key, _, _ := strings.Cut(kv, "=")
		if _, replaced := overlay[key]; replaced {
			continue
		}
		merged = append(merged, kv)
	}
	keys := make([]string, 0, len(overlay))
	for key := range overlay {
		keys = append(keys, key)
	}
	sort.Strings(keys)
	for _, key := range keys {
		merged = append(merged, key+"="+overlay[key])
	}
	return merged
}

type Handle struct {
	cmd    *exec.Cmd
	stdin  *os.File
	stdout *os.File
	reader *bufio.Reader

	exited chan struct{}

	reapTimeout time.Duration
	logger      *slog.Logger

	terminateOnce sync.Once
	terminations  int
	mu            sync.Mutex
}

func (h *Handle) Pid() int {
	return h.cmd.Process.Pid
}

// WriteLine writes one encoded message. The pipe is unbuffered on our side,
// so a successful return means the bytes reached the kernel.
func (h *Handle) WriteLine(line []byte) error {
	if _, err := h.stdin.Write(line); err != nil {
		return fmt.Errorf("write to provider: %w", err)
	}
	return nil
}

// ReadLine returns the next non-blank line without its terminator, or nil
// with a nil error once the provider has closed its output.
func (h *Handle) ReadLine() ([]byte, error) {
	for {
		line, err := h.reader.ReadBytes('\n')
		if err != nil {
			if errors.Is(err, io.EOF) {
				trimmed := bytes.TrimSpace(line)
				if len(trimmed) == 0 {
					return nil, nil
				}
				return trimmed, nil
			}
			return nil, fmt.Errorf("read from provider: %w", err)
		}
		trimmed := bytes.TrimSpace(line)
		if len(trimmed) == 0 {
			continue
		}
		return trimmed, nil
	}
}

// Terminate kills the process, closes both pipes and waits a bounded time
// for the process to be reaped. Only the first call does anything; it never
// reports failure.
func (h *Handle) Terminate() {
	h.mu.Lock()
	h.terminations++
	h.mu.Unlock()

	h.terminateOnce.Do(func() {
		if err := h.cmd.Process.Kill(); err != nil && !errors.Is(err, os.ErrProcessDone) {
			h.logger.Debug("kill provider", "pid", h.cmd.Process.Pid, "error", err)
		}
		_ = h.stdin.Close()
		_ = h.stdout.Close()

		timer := time.NewTimer(h.reapTimeout)
		defer timer.Stop()
		select {
		case <-h.exited:
			h.logger.Debug("provider stopped", "pid", h.cmd.Process.Pid)
		case <-timer.C:
			h.logger.Warn("provider not reaped after kill", "pid", h.cmd.Process.Pid, "timeout", h.reapTimeout)
		}
	})
}

// Terminations counts Terminate calls, including the no-op repeats.
func (h *Handle) Terminations() int {
	h.mu.Lock()
	defer h.mu.Unlock()
	return h.terminations
}

// Exited is closed once the process has been reaped.
func (h *Handle) Exited() <-chan struct{} {
	return h.exited
}

// Running reports whether the process has not yet been reaped.
func (h *Handle) Running() bool {
	select {
	case <-h.exited:
		return false
	default:
		return true
	}
}
