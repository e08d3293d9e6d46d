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

// Package upstream opens a short-lived MCP connection to one upstream
// server per invocation, per the connection-per-invocation contract in
// SPEC_FULL.md §4.2 and §5. It is a thin wrapper over mark3labs/mcp-go's
// client package: this package owns connect/initialize/close, the caller
// owns how long the resulting *Client lives.
package upstream

import (
	"context"
	"fmt"

	mcpclient "github.com/mark3labs/mcp-go/client"
	"github.com/mark3labs/mcp-go/mcp"

	"github.com/googleapis/mcgravity/internal/util"
)

// debugLog emits a debug line through whatever logger composer stored on
// ctx via util.WithLogger. This package has no logger field of its own — it
// is a thin per-call wrapper, not a long-lived component — so it reaches
// for the one its caller threaded through, and says nothing if none was
// threaded (e.g. a caller exercising this package directly in a test).
func debugLog(ctx context.Context, msg string, args ...any) {
	if logger, err := util.LoggerFromContext(ctx); err == nil {
		logger.DebugContext(ctx, msg, args...)
	}
}

// Client is one upstream MCP connection, opened for a single registration
// sweep or a single forwarded invocation and then closed by the caller.
type Client struct {
	raw  *mcpclient.Client
	info mcp.InitializeResult
	url  string
}

// Connect dials url over SSE, starts the transport, and performs the MCP
// Initialize handshake. The context governs only the handshake; the
// transport's own lifetime is scoped to Close, matching the teacher's own
// pattern of separating start-context from session-lifetime.
func Connect(ctx context.Context, url string, clientInfo mcp.Implementation) (*Client, error) {
	debugLog(ctx, "connecting to upstream", "upstream_url", url)

	c, err := mcpclient.NewSSEMCPClient(url)
	if err != nil {
		return nil, fmt.Errorf("upstream %s: create client: %w", url, err)
	}

	if err := c.Start(context.Background()); err != nil {
		return nil, fmt.Errorf("upstream %s: start transport: %w", url, err)
	}

	result, err := c.Initialize(ctx, mcp.InitializeRequest{
		Params: mcp.InitializeParams{
			ProtocolVersion: mcp.LATEST_PROTOCOL_VERSION,
			ClientInfo:      clientInfo,
		},
	})
	if err != nil {
		_ = c.Close()
		return nil, fmt.Errorf("upstream %s: initialize: %w", url, err)
	}

	debugLog(ctx, "upstream initialized", "upstream_url", url, "server_name", result.ServerInfo.Name)
	return &Client{raw: c, info: *result, url: url}, nil
}

// ServerInfo returns the Implementation the upstream reported at Initialize.
func (c *Client) ServerInfo() mcp.Implementation { return c.info.ServerInfo }

// Capabilities returns the capability flags the upstream reported at
// Initialize, used to skip List calls for capabilities the upstream doesn't
// advertise.
func (c *Client) Capabilities() mcp.ServerCapabilities { return c.info.Capabilities }

// ListTools enumerates the upstream's tools.
func (c *Client) ListTools(ctx context.Context) ([]mcp.Tool, error) {
	res, err := c.raw.ListTools(ctx, mcp.ListToolsRequest{})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: list tools: %w", c.url, err)
	}
	return res.Tools, nil
}

// ListResources enumerates the upstream's resources.
func (c *Client) ListResources(ctx context.Context) ([]mcp.Resource, error) {
	res, err := c.raw.ListResources(ctx, mcp.ListResourcesRequest{})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: list resources: %w", c.url, err)
	}
	return res.Resources, nil
}

// ListPrompts enumerates the upstream's prompts.
func (c *Client) ListPrompts(ctx context.Context) ([]mcp.Prompt, error) {
	res, err := c.raw.ListPrompts(ctx, mcp.ListPromptsRequest{})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: list prompts: %w", c.url, err)
	}
	return res.Prompts, nil
}

// CallTool invokes name on the upstream with the given arguments.
func (c *Client) CallTool(ctx context.Context, name string, args map[string]any) (*mcp.CallToolResult, error) {
	debugLog(ctx, "forwarding tool call", "upstream_url", c.url, "tool_name", name)
	res, err := c.raw.CallTool(ctx, mcp.CallToolRequest{
		Params: mcp.CallToolParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: call tool %q: %w", c.url, name, err)
	}
	return res, nil
}

// ReadResource reads uri from the upstream.
func (c *Client) ReadResource(ctx context.Context, uri string) (*mcp.ReadResourceResult, error) {
	res, err := c.raw.ReadResource(ctx, mcp.ReadResourceRequest{
		Params: mcp.ReadResourceParams{URI: uri},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: read resource %q: %w", c.url, uri, err)
	}
	return res, nil
}

// GetPrompt resolves name from the upstream with the given arguments.
func (c *Client) GetPrompt(ctx context.Context, name string, args map[string]string) (*mcp.GetPromptResult, error) {
	res, err := c.raw.GetPrompt(ctx, mcp.GetPromptRequest{
		Params: mcp.GetPromptParams{Name: name, Arguments: args},
	})
	if err != nil {
		return nil, fmt.Errorf("upstream %s: get prompt %q: %w", c.url, name, err)
	}
	return res, nil
}

// Close tears down the upstream transport. Safe to call once; the caller
// owns not calling it twice, matching mcpclient.Client's own contract.
func (c *Client) Close() error {
	if err := c.raw.Close(); err != nil {
		return fmt.Errorf("upstream %s: close: %w", c.url, err)
	}
	return nil
}
