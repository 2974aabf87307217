package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"os/exec"
	"sync"
	"sync/atomic"
	"time"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
)

// maxRetriesCap bounds ClientOptions.MaxRetries.
const maxRetriesCap = 3

// ClientOptions configures MCP client behavior
type ClientOptions struct {
	// RequestTimeout bounds each RPC when the caller's context has no earlier deadline.
	RequestTimeout time.Duration
	// InitTimeout is the timeout for the initialization handshake
	InitTimeout time.Duration
	// MaxRetries is the number of times to retry failed requests (0..3).
	MaxRetries int
	// RetryDelay is the initial delay between retries (exponential backoff)
	RetryDelay time.Duration
	// ClientInfo identifies the client in the handshake.
	ClientInfo Implementation
}

// DefaultClientOptions returns the defaults: no retries, since a retried tool call
// would repeat a slow page load behind the user's back.
func DefaultClientOptions() ClientOptions {
	return ClientOptions{
		RequestTimeout: 90 * time.Second,
		InitTimeout:    10 * time.Second,
		MaxRetries:     0,
		RetryDelay:     100 * time.Millisecond,
		ClientInfo:     Implementation{Name: "hkweather", Version: "dev"},
	}
}

var (
	// ErrClientNotInitialized is returned when attempting operations on uninitialized client
	ErrClientNotInitialized = errors.New("mcp: client not initialized")
	// ErrClientClosed is returned when attempting operations on closed client
	ErrClientClosed = errors.New("mcp: client closed")
	// ErrServerUnresponsive is returned when server doesn't respond
	ErrServerUnresponsive = errors.New("mcp: server unresponsive")
	// ErrProcessDied is returned when the server process exits or its stdout closes
	ErrProcessDied = errors.New("mcp: server process died")
)

// StdioClient implements Client over newline-delimited JSON on a pair of streams,
// either the stdio of a spawned process or streams supplied by the caller.
type StdioClient struct {
	config  ServerConfig
	options ClientOptions
	cmd     *exec.Cmd
	stdin   io.WriteCloser
	stdout  io.ReadCloser
	stderr  io.ReadCloser

	nextID      atomic.Int64
	pendingReqs sync.Map // map[int64]chan *JSONRPCMessage
	writeMu     sync.Mutex

	mu         sync.RWMutex
	started    bool
	closed     bool
	serverInfo *InitializeResponse

	// readDone is closed when the read loop exits.
	readDone chan struct{}

	ctx    context.Context
	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewStdioClient creates a client that spawns the configured server process.
func NewStdioClient(config ServerConfig) *StdioClient {
	return NewStdioClientWithOptions(config, DefaultClientOptions())
}

// NewStdioClientWithOptions creates a client with custom options
func NewStdioClientWithOptions(config ServerConfig, options ClientOptions) *StdioClient {
	if options.MaxRetries < 0 {
		options.MaxRetries = 0
	}
	if options.MaxRetries > maxRetriesCap {
		options.MaxRetries = maxRetriesCap
	}
	if options.ClientInfo.Name == "" {
		options.ClientInfo = DefaultClientOptions().ClientInfo
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &StdioClient{
		config:   config,
		options:  options,
		readDone: make(chan struct{}),
		ctx:      ctx,
		cancel:   cancel,
	}
}

// NewStreamClient creates a client over already-open streams, e.g. an in-process
// server connected with io.Pipe.
func NewStreamClient(name string, r io.Reader, w io.WriteCloser, options ClientOptions) *StdioClient {
	c := NewStdioClientWithOptions(ServerConfig{Name: name}, options)
	rc, ok := r.(io.ReadCloser)
	if !ok {
		rc = io.NopCloser(r)
	}
	c.stdout = rc
	c.stdin = w
	return c
}

// Initialize establishes the MCP connection and negotiates capabilities
func (c *StdioClient) Initialize(ctx context.Context) (*InitializeResponse, error) {
	c.mu.Lock()

	if c.closed {
		c.mu.Unlock()
		return nil, ErrClientClosed
	}

	if c.started {
		info := c.serverInfo
		c.mu.Unlock()
		return info, nil
	}

	if c.stdout == nil {
		if err := c.startWithRetry(); err != nil {
			c.mu.Unlock()
			return nil, err
		}
	}

	c.wg.Add(1)
	go c.readLoop()

	c.started = true
	c.mu.Unlock()

	initCtx, cancel := context.WithTimeout(ctx, c.options.InitTimeout)
	defer cancel()

	req := InitializeRequest{
		ProtocolVersion: ProtocolVersion,
		ClientInfo:      c.options.ClientInfo,
	}

	var resp InitializeResponse
	if err := c.sendRequestWithRetry(initCtx, MethodInitialize, req, &resp); err != nil {
		_ = c.Close()
		if errors.Is(err, context.DeadlineExceeded) {
			return nil, fmt.Errorf("initialization timeout after %v: %w", c.options.InitTimeout, err)
		}
		return nil, fmt.Errorf("initialize request failed: %w", err)
	}

	if err := c.sendNotification(MethodInitialized, nil); err != nil {
		logger.Warn("MCP initialized notification failed, continuing", "server", c.config.Name, "error", err)
	}

	c.mu.Lock()
	c.serverInfo = &resp
	c.mu.Unlock()

	logger.Debug("MCP session initialized",
		"server", c.config.Name, "server_name", resp.ServerInfo.Name, "protocol", resp.ProtocolVersion)
	return &resp, nil
}

func (c *StdioClient) startWithRetry() error {
	var startErr error
	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(c.options.RetryDelay * time.Duration(1<<uint(attempt-1)))
		}

		startErr = c.startProcess()
		if startErr == nil {
			return nil
		}

		if attempt < c.options.MaxRetries {
			logger.Warn("MCP failed to start process, retrying",
				"server", c.config.Name, "attempt", attempt+1, "error", startErr)
		}
	}
	return fmt.Errorf("failed to start server process after %d attempts: %w", c.options.MaxRetries+1, startErr)
}

// ListTools retrieves all available tools from the server
func (c *StdioClient) ListTools(ctx context.Context) ([]Tool, error) {
	if err := c.checkHealth(); err != nil {
		return nil, err
	}

	var resp ToolsListResponse
	if err := c.sendRequestWithRetry(ctx, MethodToolsList, nil, &resp); err != nil {
		return nil, fmt.Errorf("tools/list request failed: %w", err)
	}
	return resp.Tools, nil
}

// CallTool executes a tool with the given arguments
func (c *StdioClient) CallTool(ctx context.Context, name string, arguments json.RawMessage) (*ToolCallResponse, error) {
	if err := c.checkHealth(); err != nil {
		return nil, err
	}

	req := ToolCallRequest{
		Name:      name,
		Arguments: arguments,
	}

	var resp ToolCallResponse
	if err := c.sendRequestWithRetry(ctx, MethodToolsCall, req, &resp); err != nil {
		return nil, fmt.Errorf("tools/call request failed: %w", err)
	}
	return &resp, nil
}

// Close terminates the connection and, for spawned servers, the process. It is
// safe to call more than once.
func (c *StdioClient) Close() error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return nil
	}
	c.closed = true
	started := c.started
	c.mu.Unlock()

	c.cancel()

	if c.stdin != nil {
		_ = c.stdin.Close()
	}
	if c.stdout != nil {
		_ = c.stdout.Close()
	}
	if c.stderr != nil {
		_ = c.stderr.Close()
	}

	if c.cmd != nil && c.cmd.Process != nil {
		_ = c.cmd.Process.Kill()
		_ = c.cmd.Wait()
	}

	if started {
		c.wg.Wait()
	}
	return nil
}

// IsAlive reports whether the client is initialized, open, and still reading.
func (c *StdioClient) IsAlive() bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	if !c.started || c.closed {
		return false
	}
	select {
	case <-c.readDone:
		return false
	default:
		return true
	}
}

func (c *StdioClient) startProcess() error {
	c.cmd = exec.CommandContext(c.ctx, c.config.Command, c.config.Args...)

	c.cmd.Env = os.Environ()
	for k, v := range c.config.Env {
		c.cmd.Env = append(c.cmd.Env, fmt.Sprintf("%s=%s", k, v))
	}

	var err error

	c.stdin, err = c.cmd.StdinPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdin pipe: %w", err)
	}

	c.stdout, err = c.cmd.StdoutPipe()
	if err != nil {
		return fmt.Errorf("failed to create stdout pipe: %w", err)
	}

	c.stderr, err = c.cmd.StderrPipe()
	if err != nil {
		return fmt.Errorf("failed to create stderr pipe: %w", err)
	}

	if err := c.cmd.Start(); err != nil {
		return fmt.Errorf("failed to start command: %w", err)
	}

	c.wg.Add(1)
	go c.logStderr()

	return nil
}

func (c *StdioClient) checkHealth() error {
	c.mu.RLock()
	defer c.mu.RUnlock()

	if c.closed {
		return ErrClientClosed
	}
	if !c.started {
		return ErrClientNotInitialized
	}
	select {
	case <-c.readDone:
		return ErrProcessDied
	default:
		return nil
	}
}

func (c *StdioClient) sendRequestWithRetry(ctx context.Context, method string, params, result interface{}) error {
	var lastErr error

	for attempt := 0; attempt <= c.options.MaxRetries; attempt++ {
		if attempt > 0 {
			delay := c.options.RetryDelay * time.Duration(1<<uint(attempt-1))
			select {
			case <-ctx.Done():
				return ctx.Err()
			case <-time.After(delay):
			}
		}

		err := c.sendRequest(ctx, method, params, result)
		if err == nil {
			return nil
		}
		lastErr = err

		// Cancellation, a dead process, and protocol errors will not improve on retry.
		var rpcErr *JSONRPCError
		if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) ||
			errors.Is(err, ErrProcessDied) || errors.As(err, &rpcErr) {
			return err
		}

		if attempt < c.options.MaxRetries {
			logger.Warn("MCP request failed, retrying",
				"server", c.config.Name, "method", method, "attempt", attempt+1, "error", err)
		}
	}

	if c.options.MaxRetries == 0 {
		return lastErr
	}
	return fmt.Errorf("request failed after %d attempts: %w", c.options.MaxRetries+1, lastErr)
}

func (c *StdioClient) sendRequest(ctx context.Context, method string, params, result interface{}) error {
	id := c.nextID.Add(1)

	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	msg := JSONRPCMessage{
		JSONRPC: "2.0",
		ID:      id,
		Method:  method,
		Params:  paramsJSON,
	}

	respChan := make(chan *JSONRPCMessage, 1)
	c.pendingReqs.Store(id, respChan)
	defer c.pendingReqs.Delete(id)

	if err := c.writeMessage(&msg); err != nil {
		return fmt.Errorf("%w: failed to write request: %v", ErrProcessDied, err)
	}

	var timeout <-chan time.Time
	if c.options.RequestTimeout > 0 {
		timer := time.NewTimer(c.options.RequestTimeout)
		defer timer.Stop()
		timeout = timer.C
	}

	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timeout:
		return fmt.Errorf("%w: request timeout after %v", ErrServerUnresponsive, c.options.RequestTimeout)
	case <-c.readDone:
		// A response may have been routed just before the loop exited.
		select {
		case resp := <-respChan:
			return decodeResponse(resp, result)
		default:
			return ErrProcessDied
		}
	case resp := <-respChan:
		return decodeResponse(resp, result)
	}
}

func decodeResponse(resp *JSONRPCMessage, result interface{}) error {
	if resp.Error != nil {
		return resp.Error
	}
	if result != nil && resp.Result != nil {
		if err := json.Unmarshal(resp.Result, result); err != nil {
			return fmt.Errorf("failed to unmarshal result: %w", err)
		}
	}
	return nil
}

func (c *StdioClient) sendNotification(method string, params interface{}) error {
	var paramsJSON json.RawMessage
	if params != nil {
		var err error
		paramsJSON, err = json.Marshal(params)
		if err != nil {
			return fmt.Errorf("failed to marshal params: %w", err)
		}
	}

	return c.writeMessage(&JSONRPCMessage{
		JSONRPC: "2.0",
		Method:  method,
		Params:  paramsJSON,
	})
}

func (c *StdioClient) writeMessage(msg *JSONRPCMessage) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return fmt.Errorf("failed to marshal message: %w", err)
	}
	data = append(data, '\n')

	c.mu.RLock()
	stdin := c.stdin
	c.mu.RUnlock()

	if stdin == nil {
		return fmt.Errorf("stdin not available")
	}

	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	if _, err := stdin.Write(data); err != nil {
		return fmt.Errorf("failed to write to stdin: %w", err)
	}
	return nil
}

func (c *StdioClient) readLoop() {
	defer c.wg.Done()
	defer close(c.readDone)

	scanner := bufio.NewScanner(c.stdout)
	buf := make([]byte, 0, 64*1024)
	scanner.Buffer(buf, 4*1024*1024)

	for scanner.Scan() {
		line := scanner.Bytes()
		if len(line) == 0 {
			continue
		}

		var msg JSONRPCMessage
		if err := json.Unmarshal(line, &msg); err != nil {
			logger.Warn("MCP failed to unmarshal message", "server", c.config.Name, "error", err)
			continue
		}

		c.handleMessage(&msg)
	}

	c.mu.RLock()
	closed := c.closed
	c.mu.RUnlock()
	if err := scanner.Err(); err != nil && !closed {
		logger.Error("MCP read loop stopped", "server", c.config.Name, "error", err)
	} else if !closed {
		logger.Warn("MCP server closed its output", "server", c.config.Name)
	}
}

func (c *StdioClient) handleMessage(msg *JSONRPCMessage) {
	if msg.ID != nil && msg.Method == "" {
		id, ok := msg.ID.(float64) // JSON numbers are float64
		if !ok {
			logger.Warn("MCP invalid response ID type", "type", fmt.Sprintf("%T", msg.ID))
			return
		}

		if ch, ok := c.pendingReqs.Load(int64(id)); ok {
			select {
			case ch.(chan *JSONRPCMessage) <- msg:
			default:
			}
		}
		return
	}

	if msg.ID == nil && msg.Method != "" {
		logger.Debug("MCP received notification", "server", c.config.Name, "method", msg.Method)
	}
}

func (c *StdioClient) logStderr() {
	defer c.wg.Done()

	scanner := bufio.NewScanner(c.stderr)
	for scanner.Scan() {
		logger.Debug("MCP server stderr", "server", c.config.Name, "output", scanner.Text())
	}
}
