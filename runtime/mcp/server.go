package mcp

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"sync"

	"github.com/sourcegraph/conc/pool"

	"github.com/hanyun2019/mcp-on-aws-demo/runtime/logger"
)

// DefaultServerWorkers bounds concurrent tool calls on a Server.
const DefaultServerWorkers = 4

// ToolHandler runs one tool call. A returned *JSONRPCError is sent as a protocol
// error; any other error becomes a tool result with isError set.
type ToolHandler func(ctx context.Context, arguments json.RawMessage) (*ToolCallResponse, error)

// Server serves tools over newline-delimited JSON-RPC. Handshake, ping and
// tools/list are answered inline; tools/call runs on a bounded worker pool, so
// responses may be written out of request order.
type Server struct {
	info         Implementation
	instructions string
	workers      int

	mu       sync.RWMutex
	tools    []Tool
	handlers map[string]ToolHandler

	writeMu sync.Mutex
}

// ServerOption configures a Server.
type ServerOption func(*Server)

// WithWorkers sets the number of concurrent tool calls.
func WithWorkers(n int) ServerOption {
	return func(s *Server) {
		if n > 0 {
			s.workers = n
		}
	}
}

// WithInstructions sets the instructions returned from initialize.
func WithInstructions(text string) ServerOption {
	return func(s *Server) { s.instructions = text }
}

// NewServer creates a server that identifies itself as name/version.
func NewServer(name, version string, opts ...ServerOption) *Server {
	s := &Server{
		info:     Implementation{Name: name, Version: version},
		workers:  DefaultServerWorkers,
		handlers: make(map[string]ToolHandler),
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// AddTool registers a tool. Registering a name twice replaces the handler and
// keeps the original position in tools/list.
func (s *Server) AddTool(tool Tool, handler ToolHandler) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.handlers[tool.Name]; !exists {
		s.tools = append(s.tools, tool)
	} else {
		for i := range s.tools {
			if s.tools[i].Name == tool.Name {
				s.tools[i] = tool
			}
		}
	}
	s.handlers[tool.Name] = handler
}

// Serve reads requests from r and writes responses to w until r reaches EOF or
// ctx is cancelled. In-flight tool calls finish before Serve returns.
func (s *Server) Serve(ctx context.Context, r io.Reader, w io.Writer) error {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	workers := pool.New().WithMaxGoroutines(s.workers)
	defer workers.Wait()

	lines := make(chan []byte)
	readErr := make(chan error, 1)
	go func() {
		defer close(lines)
		scanner := bufio.NewScanner(r)
		scanner.Buffer(make([]byte, 0, 64*1024), 4*1024*1024)
		for scanner.Scan() {
			line := append([]byte(nil), scanner.Bytes()...)
			select {
			case lines <- line:
			case <-ctx.Done():
				return
			}
		}
		readErr <- scanner.Err()
	}()

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case line, ok := <-lines:
			if !ok {
				select {
				case err := <-readErr:
					return err
				default:
					return nil
				}
			}
			s.handleLine(ctx, line, w, workers)
		}
	}
}

func (s *Server) handleLine(ctx context.Context, line []byte, w io.Writer, workers *pool.Pool) {
	if len(line) == 0 {
		return
	}

	var msg JSONRPCMessage
	if err := json.Unmarshal(line, &msg); err != nil {
		s.writeError(w, nil, CodeParseError, "parse error: "+err.Error())
		return
	}
	if msg.JSONRPC != "2.0" || msg.Method == "" {
		if msg.ID != nil {
			s.writeError(w, msg.ID, CodeInvalidRequest, "invalid request")
		}
		return
	}
	if msg.ID == nil {
		logger.Debug("MCP server notification", "method", msg.Method)
		return
	}

	switch msg.Method {
	case MethodInitialize:
		s.writeResult(w, msg.ID, InitializeResponse{
			ProtocolVersion: ProtocolVersion,
			Capabilities:    ServerCapabilities{Tools: &ToolsCapability{}},
			ServerInfo:      s.info,
			Instructions:    s.instructions,
		})
	case MethodPing:
		s.writeResult(w, msg.ID, struct{}{})
	case MethodToolsList:
		s.mu.RLock()
		list := make([]Tool, len(s.tools))
		copy(list, s.tools)
		s.mu.RUnlock()
		s.writeResult(w, msg.ID, ToolsListResponse{Tools: list})
	case MethodToolsCall:
		id, params := msg.ID, msg.Params
		workers.Go(func() {
			s.handleToolCall(ctx, w, id, params)
		})
	default:
		s.writeError(w, msg.ID, CodeMethodNotFound, "method not found: "+msg.Method)
	}
}

func (s *Server) handleToolCall(ctx context.Context, w io.Writer, id interface{}, params json.RawMessage) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("MCP tool handler panicked", "panic", r)
			s.writeError(w, id, CodeInternalError, "internal error")
		}
	}()

	var req ToolCallRequest
	if err := json.Unmarshal(params, &req); err != nil || req.Name == "" {
		s.writeError(w, id, CodeInvalidParams, "invalid tools/call params")
		return
	}

	s.mu.RLock()
	handler, ok := s.handlers[req.Name]
	s.mu.RUnlock()
	if !ok {
		s.writeError(w, id, CodeInvalidParams, "unknown tool: "+req.Name)
		return
	}

	args := req.Arguments
	if len(args) == 0 {
		args = json.RawMessage(`{}`)
	}

	resp, err := handler(ctx, args)
	if err != nil {
		var rpcErr *JSONRPCError
		if errors.As(err, &rpcErr) {
			s.writeError(w, id, rpcErr.Code, rpcErr.Message)
			return
		}
		resp = &ToolCallResponse{Content: []Content{TextContent(err.Error())}, IsError: true}
	}
	if resp == nil {
		resp = &ToolCallResponse{Content: []Content{}}
	}
	s.writeResult(w, id, resp)
}

func (s *Server) writeResult(w io.Writer, id interface{}, result interface{}) {
	raw, err := json.Marshal(result)
	if err != nil {
		s.writeError(w, id, CodeInternalError, fmt.Sprintf("cannot encode result: %v", err))
		return
	}
	s.write(w, &JSONRPCMessage{JSONRPC: "2.0", ID: id, Result: raw})
}

// nullID serializes as "id": null; JSONRPCMessage.ID omits a nil interface.
var nullID = json.RawMessage("null")

func (s *Server) writeError(w io.Writer, id interface{}, code int, message string) {
	if id == nil {
		id = nullID
	}
	s.write(w, &JSONRPCMessage{JSONRPC: "2.0", ID: id, Error: &JSONRPCError{Code: code, Message: message}})
}

func (s *Server) write(w io.Writer, msg *JSONRPCMessage) {
	data, err := json.Marshal(msg)
	if err != nil {
		logger.Error("MCP server cannot encode message", "error", err)
		return
	}
	data = append(data, '\n')

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := w.Write(data); err != nil {
		logger.Warn("MCP server write failed", "error", err)
	}
}
