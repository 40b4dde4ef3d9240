/*
 * Copyright 2025 Carver Automation Corporation.
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package metrics records hostwatch operational counters through OpenTelemetry.
package metrics

import (
	"context"
	"fmt"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

const (
	meterName = "github.com/carverauto/hostwatch"

	metricPollsTotal           = "hostwatch_polls_total"
	metricPollDuration         = "hostwatch_poll_duration_seconds"
	metricProbeFailures        = "hostwatch_probe_failures_total"
	metricEventsTotal          = "hostwatch_events_total"
	metricNotificationsDropped = "hostwatch_notifications_dropped_total"
	metricCommandsTotal        = "hostwatch_commands_total"
	metricTrackedEntities      = "hostwatch_tracked_entities"
)

// Instruments holds the hostwatch instruments. A nil *Instruments is valid
// and records nothing.
type Instruments struct {
	polls         metric.Int64Counter
	pollDuration  metric.Float64Histogram
	probeFailures metric.Int64Counter
	events        metric.Int64Counter
	dropped       metric.Int64Counter
	commands      metric.Int64Counter
	tracked       metric.Int64ObservableGauge
	registration  metric.Registration
}

// New creates the instruments on provider, or on the global provider when nil.
// tracked, when set, is observed as the number of entities in the state store.
func New(provider metric.MeterProvider, tracked func() int) (*Instruments, error) {
	if provider == nil {
		provider = otel.GetMeterProvider()
	}

	meter := provider.Meter(meterName)
	inst := &Instruments{}

	var err error

	if inst.polls, err = meter.Int64Counter(metricPollsTotal,
		metric.WithDescription("Completed poll rounds")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPollsTotal, err)
	}

	if inst.pollDuration, err = meter.Float64Histogram(metricPollDuration,
		metric.WithDescription("Duration of a full poll round"),
		metric.WithUnit("s")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricPollDuration, err)
	}

	if inst.probeFailures, err = meter.Int64Counter(metricProbeFailures,
		metric.WithDescription("Probes that degraded to unknown")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricProbeFailures, err)
	}

	if inst.events, err = meter.Int64Counter(metricEventsTotal,
		metric.WithDescription("Events emitted by reconciliation")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricEventsTotal, err)
	}

	if inst.dropped, err = meter.Int64Counter(metricNotificationsDropped,
		metric.WithDescription("Message chunks dropped after transport failures")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricNotificationsDropped, err)
	}

	if inst.commands, err = meter.Int64Counter(metricCommandsTotal,
		metric.WithDescription("Inbound commands by name and result")); err != nil {
		return nil, fmt.Errorf("create %s: %w", metricCommandsTotal, err)
	}

	if tracked != nil {
		if inst.tracked, err = meter.Int64ObservableGauge(metricTrackedEntities,
			metric.WithDescription("Entities with a recorded status")); err != nil {
			return nil, fmt.Errorf("create %s: %w", metricTrackedEntities, err)
		}

		inst.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
			o.ObserveInt64(inst.tracked, int64(tracked()))

			return nil
		}, inst.tracked)
		if err != nil {
			return nil, fmt.Errorf("register %s callback: %w", metricTrackedEntities, err)
		}
	}

	return inst, nil
}

// Close unregisters observable callbacks.
func (i *Instruments) Close() error {
	if i == nil || i.registration == nil {
		return nil
	}

	return i.registration.Unregister()
}

func (i *Instruments) RecordPoll(ctx context.Context, duration time.Duration) {
	if i == nil {
		return
	}

	i.polls.Add(ctx, 1)
	i.pollDuration.Record(ctx, duration.Seconds())
}

func (i *Instruments) RecordProbeFailure(ctx context.Context, kind string) {
	if i == nil {
		return
	}

	i.probeFailures.Add(ctx, 1, metric.WithAttributes(attribute.String("kind", kind)))
}

func (i *Instruments) RecordEvent(ctx context.Context, eventType, kind string) {
	if i == nil {
		return
	}

	i.events.Add(ctx, 1, metric.WithAttributes(
		attribute.String("type", eventType),
		attribute.String("kind", kind),
	))
}

func (i *Instruments) RecordNotificationDropped(ctx context.Context) {
	if i == nil {
		return
	}

	i.dropped.Add(ctx, 1)
}

func (i *Instruments) RecordCommand(ctx context.Context, name, result string) {
	if i == nil {
		return
	}

	i.commands.Add(ctx, 1, metric.WithAttributes(
		attribute.String("command", name),
		attribute.String("result", result),
	))
}
