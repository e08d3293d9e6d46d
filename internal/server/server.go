// Copyright 2024 Google LLC
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
	"context"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httplog/v2"
	"github.com/go-chi/render"

	logLib "github.com/googleapis/mcgravity/internal/log"
	"github.com/googleapis/mcgravity/internal/registry"

	"github.com/googleapis/mcgravity/internal/composer"
)

// Server binds a listener and routes the MCP SSE surface plus the
// auxiliary health and listing endpoints, the HTTP Frontend named C5.
type Server struct {
	conf     ServerConfig
	root     chi.Router
	logger   logLib.Logger
	composer *composer.Composer
	sessions *sessionManager
}

// NewServer returns a Server bound to composer, which must already be
// constructed (its registration loops may be started before or after this
// call; the router only reads from it at request time).
func NewServer(cfg ServerConfig, log logLib.Logger, comp *composer.Composer) (*Server, error) {
	logLevel, err := logLib.SeverityToLevel(cfg.LogLevel.String())
	if err != nil {
		return nil, fmt.Errorf("unable to initialize http log: %w", err)
	}
	var httpOpts httplog.Options
	switch cfg.LoggingFormat.String() {
	case "json":
		httpOpts = httplog.Options{
			JSON:             true,
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
			SourceFieldName:  "logging.googleapis.com/sourceLocation",
			TimeFieldName:    "timestamp",
			LevelFieldName:   "severity",
		}
	default:
		httpOpts = httplog.Options{
			LogLevel:         logLevel,
			Concise:          true,
			RequestHeaders:   true,
			MessageFieldName: "message",
		}
	}

	httpLogger := httplog.NewLogger("httplog", httpOpts)
	r := chi.NewRouter()
	r.Use(httplog.RequestLogger(httpLogger))
	r.Use(middleware.Recoverer)

	s := &Server{
		conf:     cfg,
		root:     r,
		logger:   log,
		composer: comp,
		sessions: newSessionManager(),
	}

	// Canonical and alias session-open paths (§9 Open Questions: both MUST
	// be accepted).
	r.Get("/", s.openSessionHandler)
	r.Get("/sse", s.openSessionHandler)

	// Canonical and alias client->server POST paths.
	r.Post("/messages", s.postHandler)
	r.Post("/sessions", s.postHandler)

	r.Get("/health", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("OK"))
	})

	r.Get("/api/list-targets", s.listTargetsHandler)

	return s, nil
}

// listTargetsHandler returns every upstream currently known to the
// registry, regardless of connection state.
func (s *Server) listTargetsHandler(w http.ResponseWriter, r *http.Request) {
	entries := s.composer.Registry().List()
	targets := make([]registry.Descriptor, 0, len(entries))
	for _, e := range entries {
		targets = append(targets, e.Descriptor)
	}
	render.JSON(w, r, targets)
}

// Listen starts a listener for the given Server instance.
func (s *Server) Listen(ctx context.Context) (net.Listener, error) {
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	addr := net.JoinHostPort(s.conf.Address, strconv.Itoa(s.conf.Port))
	lc := net.ListenConfig{KeepAlive: 30 * time.Second}
	l, err := lc.Listen(ctx, "tcp", addr)
	if err != nil {
		return nil, fmt.Errorf("failed to open listener for %q: %w", addr, err)
	}
	return l, nil
}

// Serve starts an HTTP server for the given Server instance. The server's
// long-lived SSE streams require no read/write deadline, so unlike a
// typical REST API this intentionally runs http.Serve rather than an
// *http.Server with timeouts configured.
func (s *Server) Serve(l net.Listener) error {
	return http.Serve(l, s.root)
}
