// Copyright 2026 The Devbench Authors
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

package metrics

import (
	"context"
	"fmt"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Config holds metrics configuration
type Config struct {
	Enabled bool
}

// Meter wraps OpenTelemetry meter
type Meter struct {
	meter metric.Meter
}

// New creates a new meter instance
func New(ctx context.Context, cfg Config, serviceName string) (*Meter, error) {
	if !cfg.Enabled {
		return &Meter{
			meter: otel.Meter("noop"),
		}, nil
	}

	// Get meter from global meter provider
	// In production, configure a proper meter provider with exporters
	meter := otel.Meter(serviceName)

	return &Meter{
		meter: meter,
	}, nil
}

// GetMeter returns the underlying meter
func (m *Meter) GetMeter() metric.Meter {
	return m.meter
}

// Instruments bundles the console's domain counters. A nil *Instruments is
// a valid no-op, so callers never need to branch on whether metrics are
// wired.
type Instruments struct {
	signIns       metric.Int64Counter
	gateDecisions metric.Int64Counter
	revoked       metric.Int64Counter
}

// Instruments creates the console's counters on this meter.
func (m *Meter) Instruments() (*Instruments, error) {
	signIns, err := m.meter.Int64Counter("console.signin.attempts",
		metric.WithDescription("Sign-in attempts by provider and outcome"))
	if err != nil {
		return nil, fmt.Errorf("failed to create signin counter: %w", err)
	}
	gateDecisions, err := m.meter.Int64Counter("console.gate.decisions",
		metric.WithDescription("Route admission decisions"))
	if err != nil {
		return nil, fmt.Errorf("failed to create gate counter: %w", err)
	}
	revoked, err := m.meter.Int64Counter("console.sessions.revoked",
		metric.WithDescription("Sessions revoked, explicit and sign-out-everywhere"))
	if err != nil {
		return nil, fmt.Errorf("failed to create revoked counter: %w", err)
	}
	return &Instruments{
		signIns:       signIns,
		gateDecisions: gateDecisions,
		revoked:       revoked,
	}, nil
}

// RecordSignIn counts one sign-in attempt.
func (i *Instruments) RecordSignIn(ctx context.Context, provider, outcome string) {
	if i == nil {
		return
	}
	i.signIns.Add(ctx, 1, metric.WithAttributes(
		attribute.String("provider", provider),
		attribute.String("outcome", outcome),
	))
}

// RecordGateDecision counts one admission verdict.
func (i *Instruments) RecordGateDecision(ctx context.Context, decision string) {
	if i == nil {
		return
	}
	i.gateDecisions.Add(ctx, 1, metric.WithAttributes(
		attribute.String("decision", decision),
	))
}

// RecordRevoked counts revoked sessions.
func (i *Instruments) RecordRevoked(ctx context.Context, n int64) {
	if i == nil || n == 0 {
		return
	}
	i.revoked.Add(ctx, n)
}
