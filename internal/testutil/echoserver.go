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

// Package testutil hosts a tiny in-process MCP server used as the upstream
// collaborator in this repo's own tests, standing in for an external
// upstream an end-to-end test would otherwise need.
package testutil

import (
	"context"
	"fmt"
	"net/http/httptest"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/mark3labs/mcp-go/server"
)

// EchoServer is a real MCP server (backed by mark3labs/mcp-go/server, the
// same SDK internal/upstream's client side wraps) exposing one tool and one
// prompt, both named "echo", and one resource named "greeting" at
// "echo://greeting". It is started over
// httptest.Server so internal/upstream.Connect can dial it exactly like a
// real upstream.
type EchoServer struct {
	*httptest.Server
}

// NewEchoServer starts an EchoServer listening on a loopback port. Call
// Close when done.
func NewEchoServer() *EchoServer {
	mcpServer := server.NewMCPServer("echo-upstream", "1.0.0")

	echoTool := mcp.NewTool("echo",
		mcp.WithDescription("Echoes back the provided message."),
		mcp.WithString("message", mcp.Description("text to echo back"), mcp.Required()),
	)
	mcpServer.AddTool(echoTool, func(ctx context.Context, req mcp.CallToolRequest) (*mcp.CallToolResult, error) {
		msg, _ := req.GetArguments()["message"].(string)
		return mcp.NewToolResultText(msg), nil
	})

	mcpServer.AddResource(
		mcp.NewResource("echo://greeting", "greeting", mcp.WithResourceDescription("a static greeting")),
		func(ctx context.Context, req mcp.ReadResourceRequest) ([]mcp.ResourceContents, error) {
			return []mcp.ResourceContents{
				mcp.TextResourceContents{URI: req.Params.URI, MIMEType: "text/plain", Text: "hello from echo-upstream"},
			}, nil
		},
	)

	mcpServer.AddPrompt(
		mcp.NewPrompt("echo", mcp.WithPromptDescription("echoes an argument back into a prompt message")),
		func(ctx context.Context, req mcp.GetPromptRequest) (*mcp.GetPromptResult, error) {
			text := req.Params.Arguments["message"]
			return &mcp.GetPromptResult{
				Description: "echo prompt",
				Messages: []mcp.PromptMessage{
					{Role: mcp.RoleUser, Content: mcp.TextContent{Type: "text", Text: fmt.Sprintf("echo: %s", text)}},
				},
			}, nil
		},
	)

	sseServer := server.NewSSEServer(mcpServer)
	return &EchoServer{Server: httptest.NewServer(sseServer)}
}

// SSEURL returns the URL internal/upstream.Connect should dial.
func (e *EchoServer) SSEURL() string {
	return e.Server.URL + "/sse"
}
