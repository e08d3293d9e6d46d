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

package telemetry

import (
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/metric"
	"go.opentelemetry.io/otel/trace"
)

// Instrumentation bundles the tracer and counters used across a process's
// lifetime, the way the teacher's ServerMetrics bundles counters for its own
// request path. One Instrumentation is built at startup in cmd/root.go and
// handed to composer.New as a constructor argument.
type Instrumentation struct {
	Tracer trace.Tracer

	ForwardCount      metric.Int64Counter
	ForwardErrorCount metric.Int64Counter
	ReconnectCount    metric.Int64Counter
	RegisterCount     metric.Int64Counter
}

// CreateInstrumentation builds the tracer and counters used by the
// composer. versionString is attached as the instrumentation version of
// both the meter and the tracer.
func CreateInstrumentation(versionString string) (*Instrumentation, error) {
	meter := otel.Meter("mcgravity", metric.WithInstrumentationVersion(versionString))

	forwardCount, err := meter.Int64Counter("mcgravity.composer.forward",
		metric.WithDescription("Number of capability invocations forwarded to an upstream server."))
	if err != nil {
		return nil, fmt.Errorf("unable to create forward counter: %w", err)
	}

	forwardErrorCount, err := meter.Int64Counter("mcgravity.composer.forward_error",
		metric.WithDescription("Number of forwarded invocations that returned an error."))
	if err != nil {
		return nil, fmt.Errorf("unable to create forward error counter: %w", err)
	}

	reconnectCount, err := meter.Int64Counter("mcgravity.composer.reconnect",
		metric.WithDescription("Number of upstream reconnect attempts made by the registration loop."))
	if err != nil {
		return nil, fmt.Errorf("unable to create reconnect counter: %w", err)
	}

	registerCount, err := meter.Int64Counter("mcgravity.composer.register",
		metric.WithDescription("Number of successful upstream capability registrations."))
	if err != nil {
		return nil, fmt.Errorf("unable to create register counter: %w", err)
	}

	return &Instrumentation{
		Tracer:            otel.Tracer("mcgravity", trace.WithInstrumentationVersion(versionString)),
		ForwardCount:      forwardCount,
		ForwardErrorCount: forwardErrorCount,
		ReconnectCount:    reconnectCount,
		RegisterCount:     registerCount,
	}, nil
}
