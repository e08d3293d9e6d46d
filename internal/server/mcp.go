// Copyright 2025 Google LLC
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package server

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sync"

	"github.com/go-chi/render"
	"github.com/google/uuid"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/googleapis/mcgravity/internal/composer"
	"github.com/googleapis/mcgravity/internal/transport"
	"github.com/googleapis/mcgravity/internal/util"
)

// postEndpointPath is the canonical path advertised in the `endpoint` SSE
// event; `/sessions` is accepted as an alias by the router but the
// aggregator always advertises the same canonical path.
const postEndpointPath = "/messages"

// sessionManager tracks every open downstream Transport, keyed by session id.
type sessionManager struct {
	mu       sync.RWMutex
	sessions map[string]*transport.Transport
}

func newSessionManager() *sessionManager {
	return &sessionManager{sessions: make(map[string]*transport.Transport)}
}

func (m *sessionManager) get(id string) (*transport.Transport, bool) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	t, ok := m.sessions[id]
	return t, ok
}

func (m *sessionManager) add(t *transport.Transport) {
	m.mu.Lock()
	m.sessions[t.SessionID()] = t
	m.mu.Unlock()
}

func (m *sessionManager) remove(id string) {
	m.mu.Lock()
	delete(m.sessions, id)
	m.mu.Unlock()
}

// openSessionHandler services `GET /` and `GET /sse`: it creates a fresh
// Transport, registers it, and blocks for the session's lifetime.
func (s *Server) openSessionHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := uuid.New().String()

	var tr *transport.Transport
	tr = transport.New(sessionID, postEndpointPath,
		func(raw json.RawMessage) { s.handleMessage(r.Context(), tr, raw) },
		func() { s.sessions.remove(sessionID) },
		func(err error) {
			s.logger.WarnContext(r.Context(), "transport error", "session_id", sessionID, "error", err.Error())
		},
	)
	s.sessions.add(tr)

	if err := tr.Serve(w, r); err != nil {
		s.logger.DebugContext(r.Context(), "sse session ended", "session_id", sessionID, "error", err.Error())
	}
}

// postHandler services `POST /messages` and `POST /sessions`.
func (s *Server) postHandler(w http.ResponseWriter, r *http.Request) {
	sessionID := r.URL.Query().Get("sessionId")
	tr, ok := s.sessions.get(sessionID)
	if !ok {
		w.WriteHeader(http.StatusBadRequest)
		_, _ = w.Write([]byte("Invalid session ID"))
		return
	}

	status, err := tr.HandlePost(r)
	if err != nil {
		_ = render.Render(w, r, newErrResponse(err, status))
		return
	}
	render.Status(r, status)
	render.NoContent(w, r)
}

// handleMessage decodes one inbound JSON-RPC payload and dispatches it,
// pushing the response back over the transport's SSE stream.
func (s *Server) handleMessage(ctx context.Context, tr *transport.Transport, raw json.RawMessage) {
	if tr == nil {
		return
	}

	var baseMessage struct {
		Jsonrpc string    `json:"jsonrpc"`
		Method  string    `json:"method"`
		Id      RequestId `json:"id,omitempty"`
	}
	if err := util.DecodeJSON(bytes.NewReader(raw), &baseMessage); err != nil {
		_ = tr.Send(newJSONRPCError(nil, ParseError, err.Error(), nil))
		return
	}

	if baseMessage.Method == "" {
		_ = tr.Send(newJSONRPCError(baseMessage.Id, MethodNotFound, "method not found", nil))
		return
	}
	if baseMessage.Jsonrpc != JSONRPC_VERSION {
		_ = tr.Send(newJSONRPCError(baseMessage.Id, InvalidRequest, "invalid json-rpc version", nil))
		return
	}
	if baseMessage.Id == nil {
		// Notifications do not expect a response; mcgravity forwards none
		// of its own notifications upstream.
		return
	}

	res := s.dispatch(ctx, baseMessage.Id, baseMessage.Method, raw)
	_ = tr.Send(res)
}

func (s *Server) dispatch(ctx context.Context, id RequestId, method string, raw json.RawMessage) any {
	switch method {
	case "initialize":
		return JSONRPCResponse{
			Jsonrpc: JSONRPC_VERSION,
			Id:      id,
			Result: mcp.InitializeResult{
				ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
				Capabilities: mcp.ServerCapabilities{
					Tools:     &mcp.ToolsCapability{},
					Resources: &mcp.ResourcesCapability{},
					Prompts:   &mcp.PromptsCapability{},
				},
				ServerInfo: mcp.Implementation{Name: s.conf.MCPName, Version: s.conf.MCPVersion},
			},
		}

	case "tools/list":
		return JSONRPCResponse{
			Jsonrpc: JSONRPC_VERSION, Id: id,
			Result: mcp.ListToolsResult{Tools: s.composer.ListTools()},
		}

	case "tools/call":
		var req struct {
			Params struct {
				Name      string         `json:"name"`
				Arguments map[string]any `json:"arguments"`
			} `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return newJSONRPCError(id, InvalidParams, fmt.Sprintf("invalid tools/call request: %v", err), nil)
		}
		result, err := s.composer.CallTool(ctx, req.Params.Name, req.Params.Arguments)
		if err != nil {
			return s.errorResponse(id, err)
		}
		return JSONRPCResponse{Jsonrpc: JSONRPC_VERSION, Id: id, Result: result}

	case "resources/list":
		return JSONRPCResponse{
			Jsonrpc: JSONRPC_VERSION, Id: id,
			Result: mcp.ListResourcesResult{Resources: s.composer.ListResources()},
		}

	case "resources/read":
		var req struct {
			Params struct {
				URI string `json:"uri"`
			} `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return newJSONRPCError(id, InvalidParams, fmt.Sprintf("invalid resources/read request: %v", err), nil)
		}
		result, err := s.composer.ReadResource(ctx, req.Params.URI)
		if err != nil {
			return s.errorResponse(id, err)
		}
		return JSONRPCResponse{Jsonrpc: JSONRPC_VERSION, Id: id, Result: result}

	case "prompts/list":
		return JSONRPCResponse{
			Jsonrpc: JSONRPC_VERSION, Id: id,
			Result: mcp.ListPromptsResult{Prompts: s.composer.ListPrompts()},
		}

	case "prompts/get":
		var req struct {
			Params struct {
				Name      string            `json:"name"`
				Arguments map[string]string `json:"arguments"`
			} `json:"params"`
		}
		if err := json.Unmarshal(raw, &req); err != nil {
			return newJSONRPCError(id, InvalidParams, fmt.Sprintf("invalid prompts/get request: %v", err), nil)
		}
		result, err := s.composer.GetPrompt(ctx, req.Params.Name, req.Params.Arguments)
		if err != nil {
			return s.errorResponse(id, err)
		}
		return JSONRPCResponse{Jsonrpc: JSONRPC_VERSION, Id: id, Result: result}

	default:
		return newJSONRPCError(id, MethodNotFound, fmt.Sprintf("invalid method %s", method), nil)
	}
}

// errorResponse maps a composer error onto a JSON-RPC error, preserving the
// upstream's own message per the UpstreamInvocationError propagation policy.
// Errors satisfying composer.CategorizedError get a distinct server-defined
// code per category instead of the generic InternalError, so a downstream
// client can tell "no route to this capability" apart from "the upstream
// rejected the call" without switching on the concrete error type.
func (s *Server) errorResponse(id RequestId, err error) JSONRPCError {
	code := InternalError
	var categorized composer.CategorizedError
	if errors.As(err, &categorized) {
		switch categorized.Category() {
		case composer.CategoryCapabilityNotFound:
			code = CapabilityNotFoundErrorCode
		case composer.CategoryUpstreamConnect:
			code = UpstreamConnectErrorCode
		case composer.CategoryUpstreamInvocation:
			code = UpstreamInvocationErrorCode
		}
	}
	return newJSONRPCError(id, code, err.Error(), nil)
}
