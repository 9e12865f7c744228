package backend

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sort"
	"strconv"
	"sync"
	"sync/atomic"
	"syscall"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/viant/amgproxy/fault"
	"github.com/viant/amgproxy/framing"
	"github.com/viant/amgproxy/rpc"
	"github.com/viant/mcp-protocol/schema"
)

const exitSettleTimeout = 500 * time.Millisecond

var (
	initializeParams = json.RawMessage(`{"capabilities":{}}`)
	emptyParams      = json.RawMessage(`{}`)
	readyMethods     = []string{"initialized", "notifications/initialized"}
)

// Session is one handshaken amg-mcp process.
type Session struct {
	ID       string
	options  *Options
	logger   zerolog.Logger
	cmd      *exec.Cmd
	stdin    io.WriteCloser
	stdout   *os.File
	channel  *framing.Channel
	client   *rpc.Client
	registry *Registry
	tools    []string

	alive      atomic.Bool
	exited     chan struct{}
	exitStatus string
	closeOnce  sync.Once
}

type toolCall struct {
	Name      string    `json:"name"`
	Arguments Arguments `json:"arguments"`
}

// Start launches spec and completes the handshake. On any failure the process is
// closed and a fault error is returned.
func Start(ctx context.Context, spec LaunchSpec, options *Options) (*Session, error) {
	if options == nil {
		options = DefaultOptions()
	}
	options.init()
	ret := &Session{
		ID:      uuid.New().String(),
		options: options,
		exited:  make(chan struct{}),
	}
	ret.logger = options.Logger.With().Str("session", ret.ID).Logger()
	if err := ret.launch(spec); err != nil {
		return nil, err
	}
	if err := ret.handshake(ctx); err != nil {
		ret.Close()
		return nil, err
	}
	ret.logger.Info().Int("pid", ret.PID()).Int("tools", len(ret.tools)).Msg("amg-mcp session ready")
	return ret, nil
}

func (s *Session) launch(spec LaunchSpec) error {
	cmd := exec.Command(spec.Path, spec.Args...)
	if len(spec.Env) > 0 {
		cmd.Env = append(os.Environ(), spec.Env...)
	}
	stdin, err := cmd.StdinPipe()
	if err != nil {
		return fault.Wrap(fault.HandshakeFailed, "launch", fmt.Errorf("create stdin pipe: %w", err))
	}
	// stdout and stderr use plain OS pipes so that Wait does not close the read
	// ends while buffered output is still unread; the reader side closes them
	stdout, stdoutWriter, err := os.Pipe()
	if err != nil {
		return fault.Wrap(fault.HandshakeFailed, "launch", fmt.Errorf("create stdout pipe: %w", err))
	}
	stderr, stderrWriter, err := os.Pipe()
	if err != nil {
		_ = stdout.Close()
		_ = stdoutWriter.Close()
		return fault.Wrap(fault.HandshakeFailed, "launch", fmt.Errorf("create stderr pipe: %w", err))
	}
	cmd.Stdout = stdoutWriter
	cmd.Stderr = stderrWriter
	err = cmd.Start()
	_ = stdoutWriter.Close()
	_ = stderrWriter.Close()
	if err != nil {
		_ = stdout.Close()
		_ = stderr.Close()
		return fault.Wrap(fault.HandshakeFailed, "launch", fmt.Errorf("start %v: %w", spec.Path, err))
	}
	s.cmd = cmd
	s.stdin = stdin
	s.stdout = stdout
	s.alive.Store(true)

	go func() {
		forwardLines(stderr, s.options.Diagnostics)
		_ = stderr.Close()
	}()
	go func() {
		waitErr := cmd.Wait()
		status := "unknown"
		if cmd.ProcessState != nil {
			status = strconv.Itoa(cmd.ProcessState.ExitCode())
		} else if waitErr != nil {
			status = waitErr.Error()
		}
		s.exitStatus = status
		s.alive.Store(false)
		close(s.exited)
		s.logger.Debug().Str("exitStatus", status).Msg("amg-mcp exited")
	}()

	s.channel = framing.New(stdout, stdin, framing.WithExitStatus(s.settledExitStatus))
	s.client = rpc.New(s.channel, rpc.WithLogger(s.logger))
	return nil
}

func (s *Session) handshake(ctx context.Context) error {
	response, err := s.client.SendRequest(ctx, schema.MethodInitialize, initializeParams, s.options.InitTimeout)
	if err != nil {
		return &fault.Error{Kind: fault.HandshakeFailed, Op: schema.MethodInitialize, Message: "capability negotiation failed", Err: err}
	}
	if response.IsError() {
		return &fault.Error{Kind: fault.HandshakeFailed, Op: schema.MethodInitialize, Message: "capability negotiation rejected", Err: response.Error}
	}
	for _, method := range readyMethods {
		if err = s.client.SendNotification(ctx, method, emptyParams); err != nil {
			s.logger.Debug().Err(err).Str("method", method).Msg("ready notification not delivered")
		}
	}
	response, err = s.client.SendRequest(ctx, schema.MethodToolsList, emptyParams, s.options.DiscoveryTimeout)
	if err != nil {
		return &fault.Error{Kind: fault.HandshakeFailed, Op: schema.MethodToolsList, Message: "capability discovery failed", Err: err}
	}
	if response.IsError() {
		return &fault.Error{Kind: fault.HandshakeFailed, Op: schema.MethodToolsList, Message: "capability discovery rejected", Err: response.Error}
	}
	result := &schema.ListToolsResult{}
	if err = response.Decode(result); err != nil {
		return fault.Wrap(fault.HandshakeFailed, schema.MethodToolsList, err)
	}
	s.registry = newRegistry(result)
	s.tools = make([]string, 0, len(result.Tools))
	for _, tool := range result.Tools {
		s.tools = append(s.tools, tool.Name)
	}
	sort.Strings(s.tools)
	return nil
}

// Call invokes a tool. The response's error payload, if any, is returned in the
// response rather than as an error. Transport faults mark the session dead.
func (s *Session) Call(ctx context.Context, operation string, args Arguments, timeout time.Duration) (*rpc.Response, error) {
	if !s.Alive() {
		return nil, fault.Newf(fault.ChannelClosed, operation, "session %v is not alive (exit status: %v)", s.ID, s.ExitStatus())
	}
	if args == nil {
		args = Arguments{}
	}
	params := &toolCall{Name: operation, Arguments: s.registry.Filter(operation, args)}
	started := time.Now()
	response, err := s.client.SendRequest(ctx, schema.MethodToolsCall, params, timeout)
	if err != nil {
		if fault.SessionFatal(err) {
			s.alive.Store(false)
		}
		s.logger.Warn().Err(err).Str("tool", operation).Dur("elapsed", time.Since(started)).Msg("tool call failed")
		return nil, err
	}
	s.logger.Debug().Str("tool", operation).Dur("elapsed", time.Since(started)).Bool("isError", response.IsError()).Msg("tool call")
	return response, nil
}

// Alive reports whether the process is running and no transport fault was seen.
func (s *Session) Alive() bool {
	return s.alive.Load()
}

// Tools returns the discovered tool names.
func (s *Session) Tools() []string {
	return s.tools
}

// Registry returns the capability registry built during discovery.
func (s *Session) Registry() *Registry {
	return s.registry
}

// PID returns the child process id.
func (s *Session) PID() int {
	if s.cmd == nil || s.cmd.Process == nil {
		return 0
	}
	return s.cmd.Process.Pid
}

// ExitStatus returns the exit code once known, or "running".
func (s *Session) ExitStatus() string {
	select {
	case <-s.exited:
		return s.exitStatus
	default:
		return "running"
	}
}

// settledExitStatus waits briefly for the exit status of a process whose output
// has already ended.
func (s *Session) settledExitStatus() string {
	timer := time.NewTimer(exitSettleTimeout)
	defer timer.Stop()
	select {
	case <-s.exited:
		return s.exitStatus
	case <-timer.C:
		return "running"
	}
}

// Close closes stdin, asks the process to terminate and kills it if it is still
// running after CloseTimeout. Errors are ignored; Close is idempotent.
func (s *Session) Close() {
	s.closeOnce.Do(func() {
		s.alive.Store(false)
		if s.cmd == nil {
			return
		}
		_ = s.stdin.Close()
		if s.cmd.Process != nil {
			_ = s.cmd.Process.Signal(syscall.SIGTERM)
		}
		select {
		case <-s.exited:
		case <-time.After(s.options.CloseTimeout):
			if s.cmd.Process != nil {
				_ = s.cmd.Process.Kill()
			}
			select {
			case <-s.exited:
			case <-time.After(time.Second):
			}
		}
		s.channel.Close()
		_ = s.stdout.Close()
		s.logger.Debug().Str("exitStatus", s.ExitStatus()).Msg("amg-mcp session closed")
	})
}
