// Package acp serves the agent to code editors over the Agent Client
// Protocol: newline-delimited JSON-RPC 2.0 on stdio.
//
// Supported methods are initialize, session/new, session/load and
// session/prompt. Progress is streamed back as session/update notifications
// (agent_message_chunk, user_message_chunk, tool_call, tool_result).
package acp

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"net/url"
	"os"
	"strings"
	"sync"

	"github.com/google/uuid"

	"github.com/m4xw311/strudelgate/agent"
	"github.com/m4xw311/strudelgate/errors"
	"github.com/m4xw311/strudelgate/session"
)

const (
	protocolVersion = 1

	codeParseError     = -32700
	codeMethodNotFound = -32601
	codeInvalidParams  = -32602
	codeInternalError  = -32603

	maxMessageSize  = 4 << 20
	maxResourceSize = 50000
)

type request struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

type response struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      json.RawMessage `json:"id,omitempty"`
	Result  any             `json:"result,omitempty"`
	Error   *rpcError       `json:"error,omitempty"`
}

type rpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

type notification struct {
	JSONRPC string `json:"jsonrpc"`
	Method  string `json:"method"`
	Params  any    `json:"params"`
}

// Server dispatches ACP requests to a single agent. Each ACP session gets its
// own persisted session; the agent is pointed at it for the duration of a
// prompt.
type Server struct {
	agent  *agent.Agent
	logger *slog.Logger
	newID  func() string

	writeMu sync.Mutex
	out     io.Writer

	mu       sync.Mutex
	sessions map[string]*session.Session
}

func NewServer(a *agent.Agent, logger *slog.Logger) *Server {
	if logger == nil {
		logger = slog.Default()
	}
	return &Server{
		agent:    a,
		logger:   logger,
		newID:    func() string { return "sess_" + uuid.NewString() },
		sessions: make(map[string]*session.Session),
	}
}

// Serve reads requests from in until EOF or ctx is done. Only JSON-RPC
// messages are written to out.
func (s *Server) Serve(ctx context.Context, in io.Reader, out io.Writer) error {
	s.out = out
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxMessageSize)

	for scanner.Scan() {
		if err := ctx.Err(); err != nil {
			return nil
		}
		line := scanner.Bytes()
		if len(strings.TrimSpace(string(line))) == 0 {
			continue
		}
		var req request
		if err := json.Unmarshal(line, &req); err != nil {
			s.logger.Debug("acp: unparseable message", "error", err)
			s.replyError(nil, codeParseError, "Parse error", nil)
			continue
		}
		s.logger.Debug("acp: request", "method", req.Method)
		s.dispatch(ctx, &req)
	}
	if err := scanner.Err(); err != nil {
		return errors.Wrapf(err, "ACP read error")
	}
	return nil
}

func (s *Server) dispatch(ctx context.Context, req *request) {
	switch req.Method {
	case "initialize":
		s.handleInitialize(req)
	case "session/new":
		s.handleSessionNew(req)
	case "session/load":
		s.handleSessionLoad(req)
	case "session/prompt":
		s.handleSessionPrompt(ctx, req)
	default:
		s.replyError(req.ID, codeMethodNotFound, "Method not found", req.Method)
	}
}

func (s *Server) handleInitialize(req *request) {
	s.reply(req.ID, map[string]any{
		"protocolVersion": protocolVersion,
		"agentCapabilities": map[string]any{
			"loadSession": true,
			"promptCapabilities": map[string]bool{
				"audio":           false,
				"embeddedContext": false,
				"image":           false,
			},
		},
		"authMethods": []any{},
	})
}

func (s *Server) handleSessionNew(req *request) {
	id := s.newID()
	sess, err := session.New(id)
	if err != nil {
		s.replyError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	// New sessions inherit the settings the agent was started with.
	if tmpl := s.agent.Session; tmpl != nil {
		sess.Mode = tmpl.Mode
		sess.Toolset = tmpl.Toolset
		sess.ToolVerbosity = tmpl.ToolVerbosity
	}
	s.mu.Lock()
	s.sessions[id] = sess
	s.mu.Unlock()
	s.reply(req.ID, map[string]string{"sessionId": id})
}

type sessionParams struct {
	SessionID string `json:"sessionId"`
}

// handleSessionLoad replays a saved conversation as session/update
// notifications, then answers null.
func (s *Server) handleSessionLoad(req *request) {
	var p sessionParams
	if err := json.Unmarshal(req.Params, &p); err != nil || p.SessionID == "" {
		s.replyError(req.ID, codeInvalidParams, "Invalid params", "sessionId is required")
		return
	}
	sess, err := session.Load(p.SessionID)
	if err != nil {
		s.replyError(req.ID, codeInvalidParams, "Invalid params", fmt.Sprintf("session not found: %v", err))
		return
	}
	s.mu.Lock()
	s.sessions[p.SessionID] = sess
	s.mu.Unlock()

	for _, msg := range sess.Messages {
		switch msg.Role {
		case "user":
			s.sendText(p.SessionID, "user_message_chunk", msg.Content)
		case "assistant":
			if msg.Content != "" {
				s.sendText(p.SessionID, "agent_message_chunk", msg.Content)
			}
			for _, tc := range msg.ToolCalls {
				s.sendToolCall(p.SessionID, tc)
			}
		case "tool":
			if len(msg.ToolCalls) > 0 {
				s.sendToolResult(p.SessionID, msg.ToolCalls[0].ToolCallID, msg.Content)
			}
		}
	}
	s.reply(req.ID, nil)
}

type contentBlock struct {
	Type        string `json:"type"`
	Text        string `json:"text,omitempty"`
	URI         string `json:"uri,omitempty"`
	Name        string `json:"name,omitempty"`
	MimeType    string `json:"mimeType,omitempty"`
	Title       string `json:"title,omitempty"`
	Description string `json:"description,omitempty"`
	Size        *int64 `json:"size,omitempty"`
}

type promptParams struct {
	SessionID string         `json:"sessionId"`
	Prompt    []contentBlock `json:"prompt"`
}

// handleSessionPrompt runs one agent turn. Tools run without confirmation;
// the editor sees every call and result as it happens.
func (s *Server) handleSessionPrompt(ctx context.Context, req *request) {
	var p promptParams
	if err := json.Unmarshal(req.Params, &p); err != nil {
		s.replyError(req.ID, codeInvalidParams, "Invalid params", err.Error())
		return
	}
	s.mu.Lock()
	sess, ok := s.sessions[p.SessionID]
	s.mu.Unlock()
	if !ok {
		s.replyError(req.ID, codeInvalidParams, "Invalid params", "unknown sessionId")
		return
	}

	cb := agent.ProcessCallbacks{
		OnAssistantMessage: func(text string) { s.sendText(p.SessionID, "agent_message_chunk", text) },
		OnToolCall:         func(tc session.ToolCall) { s.sendToolCall(p.SessionID, tc) },
		OnToolResult: func(tc session.ToolCall, result string) {
			s.sendToolResult(p.SessionID, tc.ToolCallID, result)
		},
		ShouldExecuteTool: func(session.ToolCall) bool { return true },
		OnWarning:         func(w string) { s.logger.Warn("acp: agent warning", "session", p.SessionID, "warning", w) },
	}

	s.agent.Session = sess
	if err := s.agent.ProcessUserInput(ctx, extractUserText(p.Prompt), cb); err != nil {
		s.logger.Debug("acp: prompt failed", "session", p.SessionID, "error", err)
		s.replyError(req.ID, codeInternalError, "Internal error", err.Error())
		return
	}
	s.reply(req.ID, map[string]string{"stopReason": "end_turn"})
}

func (s *Server) sendText(sessionID, kind, text string) {
	s.notify(sessionID, map[string]any{
		"sessionUpdate": kind,
		"content":       map[string]string{"type": "text", "text": text},
	})
}

func (s *Server) sendToolCall(sessionID string, tc session.ToolCall) {
	s.notify(sessionID, map[string]any{
		"sessionUpdate": "tool_call",
		"toolCall": map[string]any{
			"id":   tc.ToolCallID,
			"name": tc.Name,
			"args": tc.Args,
		},
	})
}

func (s *Server) sendToolResult(sessionID, toolCallID, result string) {
	s.notify(sessionID, map[string]any{
		"sessionUpdate": "tool_result",
		"toolResult": map[string]string{
			"toolCallId": toolCallID,
			"result":     result,
		},
	})
}

func (s *Server) notify(sessionID string, update map[string]any) {
	s.write(notification{
		JSONRPC: "2.0",
		Method:  "session/update",
		Params:  map[string]any{"sessionId": sessionID, "update": update},
	})
}

func (s *Server) reply(id json.RawMessage, result any) {
	if result == nil {
		result = json.RawMessage("null")
	}
	s.write(response{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) replyError(id json.RawMessage, code int, msg string, data any) {
	s.write(response{JSONRPC: "2.0", ID: id, Error: &rpcError{Code: code, Message: msg, Data: data}})
}

func (s *Server) write(msg any) {
	data, err := json.Marshal(msg)
	if err != nil {
		s.logger.Error("acp: marshal failed", "error", err)
		return
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	if _, err := s.out.Write(append(data, '\n')); err != nil {
		s.logger.Debug("acp: write failed", "error", err)
	}
}

// extractUserText flattens prompt blocks into one message. Linked local
// files are inlined, truncated to maxResourceSize bytes.
func extractUserText(blocks []contentBlock) string {
	var parts []string
	for _, b := range blocks {
		switch b.Type {
		case "text":
			if strings.TrimSpace(b.Text) != "" {
				parts = append(parts, b.Text)
			}
		case "resource_link":
			parts = append(parts, describeResource(b))
		}
	}
	return strings.Join(parts, "\n")
}

func describeResource(b contentBlock) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "=== Resource: %s ===\n", b.Name)
	if b.Title != "" {
		fmt.Fprintf(&sb, "Title: %s\n", b.Title)
	}
	if b.Description != "" {
		fmt.Fprintf(&sb, "Description: %s\n", b.Description)
	}
	fmt.Fprintf(&sb, "URI: %s\n", b.URI)
	if b.MimeType != "" {
		fmt.Fprintf(&sb, "Type: %s\n", b.MimeType)
	}
	if b.Size != nil {
		fmt.Fprintf(&sb, "Size: %d bytes\n", *b.Size)
	}

	sb.WriteString(resourceContents(b.URI))
	sb.WriteString("=== End Resource ===\n")
	return sb.String()
}

// resourceContents inlines file:// resources; anything else is only named.
func resourceContents(uri string) string {
	u, err := url.Parse(uri)
	if err != nil || u.Scheme != "file" {
		return "\n[External resource - content not available]\n"
	}
	data, err := os.ReadFile(u.Path)
	if err != nil {
		return fmt.Sprintf("\n[Error reading file: %v]\n", err)
	}
	content := string(data)
	if len(content) > maxResourceSize {
		content = content[:maxResourceSize] + "\n\n[... truncated ...]"
	}
	return "\n--- File Contents ---\n" + content + "\n--- End of File ---\n"
}
