// Package rpc exposes the coordination core over newline-delimited
// JSON-RPC 2.0 on stdio, for embedding the assistant in a desktop
// shell. Requests drive the coordinator; every coordinator event goes
// out as an assist/update notification.
//
// Nothing but JSON-RPC messages is ever written to stdout. Debug output
// goes to an optional trace file.
package rpc

import (
	"bufio"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"sync"
	"time"

	"github.com/m4xw311/trialdesk/agents"
	"github.com/m4xw311/trialdesk/coordinator"
	"github.com/m4xw311/trialdesk/workspace"
)

// jsonrpcRequest is a JSON-RPC 2.0 request message.
type jsonrpcRequest struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Method  string          `json:"method"`
	Params  json.RawMessage `json:"params,omitempty"`
}

// jsonrpcResponse is a JSON-RPC 2.0 response message.
type jsonrpcResponse struct {
	JSONRPC string          `json:"jsonrpc"`
	ID      any             `json:"id,omitempty"`
	Result  json.RawMessage `json:"result,omitempty"`
	Error   *jsonrpcError   `json:"error,omitempty"`
}

// jsonrpcError is a JSON-RPC 2.0 error object.
type jsonrpcError struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
	Data    any    `json:"data,omitempty"`
}

// Server bridges a JSON-RPC client to one coordinator. It is also the
// coordinator's Notifier: pass the Server to coordinator.New, then Bind
// the coordinator before Run.
type Server struct {
	coord      *coordinator.Coordinator
	workspaces *workspace.Manager
	project    string

	in        *bufio.Reader
	out       *bufio.Writer
	writeLock sync.Mutex
	trace     func(string)
}

// New creates the RPC frontend over the given streams for one project.
func New(in *bufio.Reader, out *bufio.Writer, workspaces *workspace.Manager, project string) *Server {
	return &Server{in: in, out: out, workspaces: workspaces, project: project, trace: func(string) {}}
}

// Bind attaches the coordinator after construction (the coordinator
// needs the notifier at construction time, so binding is two-phase).
func (s *Server) Bind(c *coordinator.Coordinator) {
	s.coord = c
}

// Run reads requests until EOF. With traceFlag set, a protocol trace is
// appended to assist.trace in the working directory.
func (s *Server) Run(ctx context.Context, traceFlag bool) error {
	if traceFlag {
		traceFile, err := os.OpenFile("assist.trace", os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0644)
		if err == nil {
			defer traceFile.Close()
			s.trace = func(msg string) {
				fmt.Fprintf(traceFile, "[%s] %s\n", time.Now().Format("15:04:05.000"), msg)
			}
		}
	}

	s.trace("Run: starting assist server")
	for {
		line, err := s.readMessage()
		if err != nil {
			if err == io.EOF {
				s.trace("Run: EOF, exiting")
				return nil
			}
			s.trace(fmt.Sprintf("Run: read error: %v", err))
			return fmt.Errorf("rpc: read error: %w", err)
		}
		if len(line) == 0 {
			continue
		}
		if ctx.Err() != nil {
			return ctx.Err()
		}

		s.trace(fmt.Sprintf("Run: received payload: %s", string(line)))
		var req jsonrpcRequest
		if err := json.Unmarshal(line, &req); err != nil {
			s.trace(fmt.Sprintf("Run: parse error: %v", err))
			_ = s.writeResponseError(nil, -32700, "Parse error", nil)
			continue
		}

		s.trace(fmt.Sprintf("Run: dispatching method %s id %v", req.Method, req.ID))
		switch req.Method {
		case "initialize":
			s.handleInitialize(&req)
		case "assist/submit":
			s.handleSubmit(&req)
		case "assist/approve":
			s.handleApprove(&req)
		case "assist/answer":
			s.handleAnswer(&req)
		case "assist/stop":
			s.coord.Stop()
			_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
		case "assist/stats":
			s.handleStats(&req)
		case "assist/documents":
			s.handleDocuments(&req)
		default:
			_ = s.writeResponseError(req.ID, -32601, "Method not found", nil)
		}
	}
}

// readMessage reads one newline-delimited JSON-RPC payload.
func (s *Server) readMessage() ([]byte, error) {
	line, _, err := s.in.ReadLine()
	if err != nil {
		return nil, err
	}
	return line, nil
}

// writeFramedJSON serializes one message and writes it followed by a
// newline. The write lock keeps request responses and notifications
// from interleaving; notifications arrive from the run goroutine.
func (s *Server) writeFramedJSON(obj any) error {
	data, err := json.Marshal(obj)
	if err != nil {
		return fmt.Errorf("failed to serialize JSON-RPC message: %w", err)
	}
	s.trace(fmt.Sprintf("writeFramedJSON: %s", string(data)))

	s.writeLock.Lock()
	defer s.writeLock.Unlock()
	if _, err := s.out.Write(data); err != nil {
		return err
	}
	if _, err := s.out.WriteString("\n"); err != nil {
		return err
	}
	return s.out.Flush()
}

func (s *Server) writeResponseOK(id any, result json.RawMessage) error {
	return s.writeFramedJSON(jsonrpcResponse{JSONRPC: "2.0", ID: id, Result: result})
}

func (s *Server) writeResponseError(id any, code int, msg string, data any) error {
	s.trace(fmt.Sprintf("writeResponseError: code=%d msg=%s", code, msg))
	return s.writeFramedJSON(jsonrpcResponse{
		JSONRPC: "2.0",
		ID:      id,
		Error:   &jsonrpcError{Code: code, Message: msg, Data: data},
	})
}

// writeUpdate sends an assist/update notification. Notifications have
// no id.
func (s *Server) writeUpdate(kind string, fields map[string]any) {
	update := map[string]any{"kind": kind}
	for k, v := range fields {
		update[k] = v
	}
	_ = s.writeFramedJSON(map[string]any{
		"jsonrpc": "2.0",
		"method":  "assist/update",
		"params":  map[string]any{"update": update},
	})
}

// ---- Handlers ----

func (s *Server) handleInitialize(req *jsonrpcRequest) {
	resp := map[string]any{
		"protocolVersion": 1,
		"capabilities": map[string]any{
			"approvals": true,
			"questions": true,
			"plans":     true,
		},
	}
	respBytes, err := json.Marshal(resp)
	if err != nil {
		s.trace(fmt.Sprintf("handleInitialize: marshal error: %v", err))
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// handleSubmit starts a run. The response acknowledges acceptance only;
// progress and the final answer arrive as assist/update notifications.
func (s *Server) handleSubmit(req *jsonrpcRequest) {
	var p struct {
		Prompt string `json:"prompt"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil || p.Prompt == "" {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", "prompt is required")
		return
	}
	s.coord.Submit(p.Prompt)
	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// handleApprove carries a researcher decision. It answers whichever
// decision is outstanding: a proposed plan, or a mid-run approval
// raised through the gate.
func (s *Server) handleApprove(req *jsonrpcRequest) {
	var p struct {
		Approved bool   `json:"approved"`
		Notes    string `json:"notes"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", err.Error())
		return
	}
	if s.coord.Tracker().HasProposed() {
		if p.Approved {
			s.coord.Approve(p.Notes)
		} else {
			s.coord.Decline(p.Notes)
		}
	} else {
		s.coord.Gate().SubmitApprovalResponse(p.Approved, p.Notes)
	}
	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// handleAnswer carries the researcher's answer to an outstanding
// question. With nothing outstanding the delivery is a no-op.
func (s *Server) handleAnswer(req *jsonrpcRequest) {
	var p struct {
		Answer string `json:"answer"`
	}
	if err := json.Unmarshal(req.Params, &p); err != nil {
		_ = s.writeResponseError(req.ID, -32602, "Invalid params", err.Error())
		return
	}
	s.coord.Gate().SubmitQuestionResponse(p.Answer)
	_ = s.writeResponseOK(req.ID, json.RawMessage("null"))
}

// handleStats reports the workspace file counts and total size.
func (s *Server) handleStats(req *jsonrpcRequest) {
	stats, err := s.workspaces.Stats(s.project)
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	respBytes, err := json.Marshal(map[string]any{
		"documents": stats.Documents,
		"drafts":    stats.Drafts,
		"exports":   stats.Exports,
		"totalSize": stats.TotalSize,
	})
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// handleDocuments lists the workspace files by category.
func (s *Server) handleDocuments(req *jsonrpcRequest) {
	list := func(docs []workspace.Document, err error) ([]map[string]any, error) {
		if err != nil {
			return nil, err
		}
		out := make([]map[string]any, 0, len(docs))
		for _, d := range docs {
			out = append(out, map[string]any{
				"name":     d.Name,
				"size":     d.Size,
				"modified": d.Modified,
			})
		}
		return out, nil
	}

	documents, err := list(s.workspaces.Documents(s.project))
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	drafts, err := list(s.workspaces.Drafts(s.project))
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	exports, err := list(s.workspaces.Exports(s.project))
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	respBytes, err := json.Marshal(map[string]any{
		"documents": documents,
		"drafts":    drafts,
		"exports":   exports,
	})
	if err != nil {
		_ = s.writeResponseError(req.ID, -32603, "Internal error", err.Error())
		return
	}
	_ = s.writeResponseOK(req.ID, respBytes)
}

// ---- Notifier ----

func (s *Server) Message(sender, text string) {
	s.writeUpdate("message", map[string]any{"sender": sender, "text": text})
}

func (s *Server) ApprovalRequested(description string, details map[string]interface{}) {
	s.writeUpdate("approval_requested", map[string]any{
		"description": description,
		"details":     details,
	})
}

func (s *Server) QuestionAsked(text string, options []string) {
	s.writeUpdate("question_asked", map[string]any{"text": text, "options": options})
}

func (s *Server) PlanUpdated(plan *agents.Plan) {
	s.writeUpdate("plan_updated", map[string]any{
		"plan":            plan,
		"pendingDecision": s.coord.Tracker().HasProposed(),
	})
}

func (s *Server) StepStatusChanged(index int, status agents.StepStatus) {
	s.writeUpdate("step_status", map[string]any{"index": index, "status": status})
}

func (s *Server) StatusChanged(state coordinator.State, agentName string) {
	s.writeUpdate("status", map[string]any{"state": state, "agent": agentName})
}

func (s *Server) TaskChanged(description string) {
	s.writeUpdate("task", map[string]any{"description": description})
}

func (s *Server) HistoryEntry(agent, action, status string) {
	s.writeUpdate("history", map[string]any{
		"agent":  agent,
		"action": action,
		"status": status,
	})
}
