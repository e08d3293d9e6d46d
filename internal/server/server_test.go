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
	"bufio"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/mark3labs/mcp-go/mcp"

	"github.com/googleapis/mcgravity/internal/composer"
	"github.com/googleapis/mcgravity/internal/log"
	"github.com/googleapis/mcgravity/internal/registry"
	"github.com/googleapis/mcgravity/internal/testutil"
)

func testServerConfig() ServerConfig {
	return ServerConfig{MCPName: "mcgravity-test", MCPVersion: "0.0.0-test", Address: "localhost", Port: 0}
}

func newTestServer(t *testing.T, comp *composer.Composer) *Server {
	t.Helper()
	logger, err := log.NewStdLogger(io.Discard, io.Discard, "error")
	if err != nil {
		t.Fatalf("NewStdLogger: %v", err)
	}
	s, err := NewServer(testServerConfig(), logger, comp)
	if err != nil {
		t.Fatalf("NewServer: %v", err)
	}
	return s
}

// sseClient opens an SSE session against ts and returns the advertised POST
// path + sessionId and a channel of decoded `message` event payloads.
type sseClient struct {
	postURL string
	events  chan []byte
	cancel  context.CancelFunc
}

func openSSE(t *testing.T, baseURL string) *sseClient {
	t.Helper()
	ctx, cancel := context.WithCancel(context.Background())
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, baseURL+"/", nil)
	if err != nil {
		cancel()
		t.Fatalf("NewRequest: %v", err)
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		cancel()
		t.Fatalf("open sse: %v", err)
	}

	client := &sseClient{events: make(chan []byte, 16), cancel: cancel}
	endpointReady := make(chan struct{})

	go func() {
		defer resp.Body.Close()
		scanner := bufio.NewScanner(resp.Body)
		var event string
		for scanner.Scan() {
			line := scanner.Text()
			switch {
			case strings.HasPrefix(line, "event: "):
				event = strings.TrimPrefix(line, "event: ")
			case strings.HasPrefix(line, "data: "):
				data := strings.TrimPrefix(line, "data: ")
				switch event {
				case "endpoint":
					client.postURL = baseURL + data
					close(endpointReady)
				case "message":
					client.events <- []byte(data)
				}
			}
		}
	}()

	select {
	case <-endpointReady:
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for endpoint event")
	}
	return client
}

func (c *sseClient) waitForMessage(t *testing.T) map[string]any {
	t.Helper()
	select {
	case raw := <-c.events:
		var v map[string]any
		if err := json.Unmarshal(raw, &v); err != nil {
			t.Fatalf("unmarshal sse message: %v", err)
		}
		return v
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for message event")
		return nil
	}
}

func TestServer_ListTargetsAndToolCallRoundTrip(t *testing.T) {
	echo := testutil.NewEchoServer()
	defer echo.Close()

	comp := composer.New(mcp.Implementation{Name: "mcgravity-test", Version: "0.0.0"}, noopLogger{}, nil)
	d := registry.Descriptor{URL: echo.SSEURL(), Name: "echo-upstream", Version: "1.0.0"}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	comp.Start(ctx, d)
	waitForCondition(t, func() bool { return len(comp.ListTools()) > 0 })

	s := newTestServer(t, comp)

	baseServer := httptest.NewServer(s.root)
	defer baseServer.Close()

	resp, err := http.Get(baseServer.URL + "/health")
	if err != nil {
		t.Fatalf("GET /health: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("/health status = %d, want 200", resp.StatusCode)
	}

	resp, err = http.Get(baseServer.URL + "/api/list-targets")
	if err != nil {
		t.Fatalf("GET /api/list-targets: %v", err)
	}
	defer resp.Body.Close()
	var targets []registry.Descriptor
	if err := json.NewDecoder(resp.Body).Decode(&targets); err != nil {
		t.Fatalf("decode list-targets: %v", err)
	}
	if len(targets) != 1 || targets[0].URL != d.URL {
		t.Fatalf("list-targets = %+v, want single entry for %s", targets, d.URL)
	}

	client := openSSE(t, baseServer.URL)
	defer client.cancel()

	body := `{"jsonrpc":"2.0","id":1,"method":"tools/call","params":{"name":"echo","arguments":{"message":"round trip"}}}`
	postResp, err := http.Post(client.postURL, "application/json", strings.NewReader(body))
	if err != nil {
		t.Fatalf("POST message: %v", err)
	}
	postResp.Body.Close()
	if postResp.StatusCode != http.StatusAccepted {
		t.Fatalf("POST status = %d, want %d", postResp.StatusCode, http.StatusAccepted)
	}

	msg := client.waitForMessage(t)
	if msg["id"] != float64(1) {
		t.Fatalf("response id = %v, want 1", msg["id"])
	}
	if _, isErr := msg["error"]; isErr {
		t.Fatalf("tools/call returned an error: %+v", msg["error"])
	}
}

func TestServer_PostUnknownSessionReturnsBadRequest(t *testing.T) {
	comp := composer.New(mcp.Implementation{Name: "mcgravity-test", Version: "0.0.0"}, noopLogger{}, nil)
	s := newTestServer(t, comp)

	ts := httptest.NewServer(s.root)
	defer ts.Close()

	resp, err := http.Post(ts.URL+"/messages?sessionId=not-a-real-session", "application/json", strings.NewReader(`{}`))
	if err != nil {
		t.Fatalf("POST: %v", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusBadRequest {
		t.Fatalf("status = %d, want %d", resp.StatusCode, http.StatusBadRequest)
	}
	b, _ := io.ReadAll(resp.Body)
	if string(b) != "Invalid session ID" {
		t.Fatalf("body = %q, want %q", string(b), "Invalid session ID")
	}
}

func waitForCondition(t *testing.T, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for time.Now().Before(deadline) {
		if cond() {
			return
		}
		time.Sleep(5 * time.Millisecond)
	}
	t.Fatal("condition never became true")
}

type noopLogger struct{}

func (noopLogger) Debug(string, ...any)                         {}
func (noopLogger) Info(string, ...any)                          {}
func (noopLogger) Warn(string, ...any)                          {}
func (noopLogger) Error(string, ...any)                         {}
func (noopLogger) DebugContext(context.Context, string, ...any) {}
func (noopLogger) InfoContext(context.Context, string, ...any)  {}
func (noopLogger) WarnContext(context.Context, string, ...any)  {}
func (noopLogger) ErrorContext(context.Context, string, ...any) {}
