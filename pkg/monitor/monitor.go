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

// Package monitor wires the poll-diff-notify loop and the command listener
// around one shared state store and live configuration.
package monitor

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/cenkalti/backoff/v5"
	"golang.org/x/sync/errgroup"

	"github.com/carverauto/hostwatch/pkg/command"
	"github.com/carverauto/hostwatch/pkg/config"
	"github.com/carverauto/hostwatch/pkg/control"
	"github.com/carverauto/hostwatch/pkg/diff"
	"github.com/carverauto/hostwatch/pkg/events"
	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/metrics"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/poller"
	"github.com/carverauto/hostwatch/pkg/probe"
	"github.com/carverauto/hostwatch/pkg/state"
	"github.com/carverauto/hostwatch/pkg/ticket"
)

const (
	receiveRetryInitial = time.Second
	receiveRetryMax     = time.Minute
	publishTimeout      = 10 * time.Second
)

var errMissingTransport = errors.New("transport and receiver are required")

// Options carries everything a Monitor needs. Sink, Tickets, Runner and
// Clock are optional.
type Options struct {
	Holder    *config.Holder
	Store     *state.Store
	Backends  poller.Backends
	Transport notify.Transport
	Receiver  notify.Receiver
	Sink      events.Sink
	Tickets   ticket.Sink
	Runner    probe.CommandRunner
	Clock     poller.Clock
	Metrics   *metrics.Instruments
	Logger    logger.Logger
}

// Monitor runs the alerting path and the control path concurrently.
type Monitor struct {
	holder   *config.Holder
	store    *state.Store
	engine   *diff.Engine
	poller   *poller.Poller
	notifier *notify.Notifier
	router   *command.Router
	receiver notify.Receiver
	sink     events.Sink
	metrics  *metrics.Instruments
	logger   logger.Logger

	retryInitial time.Duration

	mu     sync.Mutex
	cancel context.CancelFunc
	done   chan struct{}
}

func New(opts Options) (*Monitor, error) {
	if opts.Transport == nil || opts.Receiver == nil {
		return nil, errMissingTransport
	}

	if opts.Store == nil {
		opts.Store = state.NewStore()
	}

	m := &Monitor{
		holder:       opts.Holder,
		store:        opts.Store,
		engine:       diff.NewEngine(),
		receiver:     opts.Receiver,
		sink:         opts.Sink,
		metrics:      opts.Metrics,
		logger:       opts.Logger,
		retryInitial: receiveRetryInitial,
	}

	m.notifier = notify.NewNotifier(opts.Transport, m.notifySettings, opts.Logger, opts.Metrics)

	executor := control.NewExecutor(opts.Backends.Services, opts.Backends.Hypervisor, m.commandTimeout, opts.Logger)

	var tickets *ticket.Manager
	if opts.Tickets != nil {
		tickets = ticket.NewManager(opts.Tickets, 0, opts.Logger)
	}

	m.router = command.NewRouter(command.Deps{
		Config:     opts.Holder,
		Services:   opts.Backends.Services,
		Hypervisor: opts.Backends.Hypervisor,
		Executor:   executor,
		Runner:     opts.Runner,
		Tickets:    tickets,
		Replier:    m.notifier,
		Metrics:    opts.Metrics,
		Logger:     opts.Logger,
	})

	m.poller = poller.New(opts.Holder, opts.Backends, m.HandleRound, opts.Clock, opts.Logger, opts.Metrics)

	return m, nil
}

// Start implements lifecycle.Service. It blocks until ctx is cancelled or
// Stop is called.
func (m *Monitor) Start(ctx context.Context) error {
	ctx, cancel := context.WithCancel(ctx)

	m.mu.Lock()
	m.cancel = cancel
	m.done = make(chan struct{})
	done := m.done
	m.mu.Unlock()

	defer close(done)

	return m.Run(ctx)
}

// Stop cancels Start and waits for it to return or ctx to expire.
func (m *Monitor) Stop(ctx context.Context) error {
	m.mu.Lock()
	cancel, done := m.cancel, m.done
	m.mu.Unlock()

	if cancel == nil {
		return nil
	}

	cancel()

	select {
	case <-done:
		return nil
	case <-ctx.Done():
		return fmt.Errorf("monitor did not stop: %w", ctx.Err())
	}
}

// Run announces startup, then runs the poll loop and the command listener
// until ctx is cancelled.
func (m *Monitor) Run(ctx context.Context) error {
	cfg := m.holder.Load()

	if cfg.StartupMessageEnabled() {
		m.notifier.Send(ctx, fmt.Sprintf("Monitoring started on server %s.", cfg.Identifier))
	}

	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		err := m.poller.Start(gctx)
		if errors.Is(err, context.Canceled) {
			return nil
		}

		return err
	})

	g.Go(func() error {
		return m.listen(gctx)
	})

	err := g.Wait()

	m.logger.Info().Msg("Monitor stopped")

	return err
}

// Reload validates cfg, publishes it and retunes the poll interval.
func (m *Monitor) Reload(cfg *models.Config) error {
	if err := cfg.Validate(); err != nil {
		return err
	}

	previous := m.holder.Swap(cfg)

	if previous == nil || previous.PollInterval != cfg.PollInterval {
		m.poller.Reload(time.Duration(cfg.PollInterval))
	}

	m.logger.Info().Str("identifier", cfg.Identifier).Msg("Configuration reloaded")

	return nil
}

// HandleRound reconciles a completed poll round and delivers its events.
func (m *Monitor) HandleRound(ctx context.Context, cfg *models.Config, round *poller.Round) {
	policy := diff.PolicyFromConfig(cfg)

	evs := m.engine.Reconcile(round.Observations, m.store, cfg.Thresholds, policy)

	if round.VMsListed {
		evs = append(evs, m.engine.ReconcileRemovals(round.ListedVMs, cfg.VMIDs, m.store, policy)...)
	}

	m.logger.Debug().
		Int("observations", len(round.Observations)).
		Int("failures", round.Failures()).
		Int("events", len(evs)).
		Dur("duration", round.Duration).
		Msg("Poll round reconciled")

	for _, ev := range evs {
		m.metrics.RecordEvent(ctx, string(ev.Type), string(ev.Entity.Kind))
		m.notifier.Send(ctx, ev.Message(cfg.Identifier))
	}

	if m.sink != nil && len(evs) > 0 {
		pctx, cancel := context.WithTimeout(ctx, publishTimeout)
		defer cancel()

		if err := m.sink.Publish(pctx, cfg.Identifier, evs); err != nil {
			m.logger.Warn().Err(err).Int("events", len(evs)).Msg("Event publishing incomplete")
		}
	}
}

// listen feeds inbound messages to the router, backing off while the chat
// service is unreachable.
func (m *Monitor) listen(ctx context.Context) error {
	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = m.retryInitial
	bo.MaxInterval = receiveRetryMax

	for {
		msgs, err := m.receiver.Receive(ctx)
		if ctx.Err() != nil {
			return nil
		}

		if err != nil {
			wait := bo.NextBackOff()
			m.logger.Warn().Err(err).Dur("retry_in", wait).Msg("Failed to receive commands")

			select {
			case <-ctx.Done():
				return nil
			case <-time.After(wait):
			}

			continue
		}

		bo.Reset()

		for _, msg := range msgs {
			m.router.Handle(ctx, msg)
		}
	}
}

func (m *Monitor) notifySettings() notify.Settings {
	cfg := m.holder.Load()

	return notify.Settings{Target: cfg.ChannelTarget, Retries: cfg.NotifyRetries}
}

func (m *Monitor) commandTimeout() time.Duration {
	return time.Duration(m.holder.Load().CommandTimeout)
}
