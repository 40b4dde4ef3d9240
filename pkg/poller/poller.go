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

// Package poller probes every configured entity once per interval.
package poller

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/metrics"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/probe"
)

var errBackendUnavailable = errors.New("backend not configured")

// Backends are the probe implementations used for one host.
type Backends struct {
	Services   probe.ServiceManager
	Hypervisor probe.Hypervisor
	Pinger     probe.Pinger
	Sampler    probe.ResourceSampler
}

// Round is the result of one PollAll invocation.
type Round struct {
	Observations []models.Observation
	// VMsListed is true when the hypervisor list query succeeded; only then
	// is ListedVMs authoritative for removal reconciliation.
	VMsListed bool
	ListedVMs []string
	StartedAt time.Time
	Duration  time.Duration
}

// Failures counts observations that degraded to unknown.
func (r *Round) Failures() int {
	n := 0

	for _, obs := range r.Observations {
		if obs.Err != nil {
			n++
		}
	}

	return n
}

// RoundHandler consumes a completed round.
type RoundHandler func(ctx context.Context, cfg *models.Config, round *Round)

// Poller owns the periodic poll loop.
type Poller struct {
	backends Backends
	source   ConfigSource
	handler  RoundHandler
	clock    Clock
	logger   logger.Logger
	metrics  *metrics.Instruments

	ticker    Ticker
	done      chan struct{}
	reloadCh  chan time.Duration
	closeOnce sync.Once
	wg        sync.WaitGroup
}

// New creates a poller. A nil clock defaults to the real clock.
func New(source ConfigSource, backends Backends, handler RoundHandler, clock Clock,
	log logger.Logger, inst *metrics.Instruments) *Poller {
	if clock == nil {
		clock = realClock{}
	}

	return &Poller{
		backends: backends,
		source:   source,
		handler:  handler,
		clock:    clock,
		logger:   log,
		metrics:  inst,
		done:     make(chan struct{}),
		reloadCh: make(chan time.Duration, 1),
	}
}

// Start polls once immediately, then on every tick until ctx is cancelled or
// Stop is called. Rounds never overlap.
func (p *Poller) Start(ctx context.Context) error {
	interval := time.Duration(p.source.Load().PollInterval)
	p.ticker = p.clock.Ticker(interval)

	defer func() {
		if p.ticker != nil {
			p.ticker.Stop()
		}
	}()

	p.logger.Info().Dur("interval", interval).Msg("Starting poller")

	p.wg.Add(1)
	defer p.wg.Done()

	p.runRound(ctx)

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-p.done:
			return nil
		case <-p.ticker.Chan():
			p.runRound(ctx)
		case newInterval := <-p.reloadCh:
			p.ticker.Stop()
			p.ticker = p.clock.Ticker(newInterval)
			p.logger.Info().Dur("interval", newInterval).Msg("Poll interval hot-reloaded")
		}
	}
}

// Stop ends the loop and waits for an in-flight round to finish.
func (p *Poller) Stop(_ context.Context) error {
	p.closeOnce.Do(func() {
		close(p.done)
	})

	p.wg.Wait()

	return nil
}

// Reload requests a new tick interval. Stale pending requests are replaced.
func (p *Poller) Reload(interval time.Duration) {
	if interval <= 0 {
		return
	}

	select {
	case <-p.done:
		return
	default:
	}

	select {
	case <-p.reloadCh:
	default:
	}

	select {
	case p.reloadCh <- interval:
	default:
	}
}

func (p *Poller) runRound(ctx context.Context) {
	cfg := p.source.Load()
	round := p.PollAll(ctx, cfg)

	p.metrics.RecordPoll(ctx, round.Duration)

	if p.handler != nil && ctx.Err() == nil {
		p.handler(ctx, cfg, round)
	}
}

type task struct {
	entity models.Entity
	probe  func(ctx context.Context) (models.Status, error)
}

// PollAll probes every configured entity once. A failing or slow probe
// degrades to unknown for that entity only. Observations come back in
// configuration order: services, VMs, hosts, then disk, cpu and mem.
func (p *Poller) PollAll(ctx context.Context, cfg *models.Config) *Round {
	round := &Round{StartedAt: p.clock.Now()}

	tasks := make([]task, 0, len(cfg.Services)+len(cfg.VMIDs)+len(cfg.RemoteHosts)+3)
	tasks = append(tasks, p.serviceTasks(cfg)...)
	tasks = append(tasks, p.vmTasks(ctx, cfg, round)...)
	tasks = append(tasks, p.hostTasks(cfg)...)
	tasks = append(tasks, p.resourceTasks()...)

	round.Observations = p.execute(ctx, cfg, tasks)
	round.Duration = p.clock.Now().Sub(round.StartedAt)

	for _, obs := range round.Observations {
		if obs.Err == nil {
			continue
		}

		p.metrics.RecordProbeFailure(ctx, string(obs.Entity.Kind))
		p.logger.Warn().Err(obs.Err).Str("entity", obs.Entity.String()).Msg("Probe failed; status unknown")
	}

	return round
}

func (p *Poller) execute(ctx context.Context, cfg *models.Config, tasks []task) []models.Observation {
	results := make([]models.Observation, len(tasks))
	timeout := time.Duration(cfg.ProbeTimeout)

	limit := cfg.PollConcurrency
	if limit <= 0 {
		limit = 1
	}

	sem := make(chan struct{}, limit)

	var wg sync.WaitGroup

	for i := range tasks {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			select {
			case sem <- struct{}{}:
			case <-ctx.Done():
				results[i] = p.observe(tasks[i].entity, models.UnknownStatus, ctx.Err())

				return
			}
			defer func() { <-sem }()

			probeCtx, cancel := context.WithTimeout(ctx, timeout)
			defer cancel()

			status, err := runProbe(probeCtx, tasks[i].probe)
			results[i] = p.observe(tasks[i].entity, status, err)
		}(i)
	}

	wg.Wait()

	return results
}

// runProbe returns as soon as ctx expires even if the backend ignores it.
func runProbe(ctx context.Context, fn func(context.Context) (models.Status, error)) (models.Status, error) {
	type result struct {
		status models.Status
		err    error
	}

	ch := make(chan result, 1)

	go func() {
		status, err := fn(ctx)
		ch <- result{status: status, err: err}
	}()

	select {
	case r := <-ch:
		return r.status, r.err
	case <-ctx.Done():
		return models.UnknownStatus, fmt.Errorf("%w: %w", probe.ErrProbeFailed, ctx.Err())
	}
}

func (p *Poller) observe(entity models.Entity, status models.Status, err error) models.Observation {
	if err != nil {
		status = models.UnknownStatus
	}

	return models.Observation{
		Entity:     entity,
		Value:      status,
		ObservedAt: p.clock.Now(),
		Err:        err,
	}
}

func (p *Poller) serviceTasks(cfg *models.Config) []task {
	tasks := make([]task, 0, len(cfg.Services))

	for _, name := range cfg.Services {
		tasks = append(tasks, task{
			entity: models.Service(name),
			probe: func(ctx context.Context) (models.Status, error) {
				if p.backends.Services == nil {
					return models.UnknownStatus, errBackendUnavailable
				}

				return p.backends.Services.IsActive(ctx, name)
			},
		})
	}

	return tasks
}

// vmTasks merges configured ids with the hypervisor list when discovery is
// enabled. Listed VMs take their status from the list without a second query.
func (p *Poller) vmTasks(ctx context.Context, cfg *models.Config, round *Round) []task {
	listed := make(map[string]models.Status)

	var order []string

	if cfg.DiscoveryEnabled() && p.backends.Hypervisor != nil {
		listCtx, cancel := context.WithTimeout(ctx, time.Duration(cfg.ProbeTimeout))
		vms, err := p.backends.Hypervisor.List(listCtx)
		cancel()

		if err != nil {
			p.logger.Warn().Err(err).Msg("VM list failed; probing configured VMs individually")
		} else {
			round.VMsListed = true

			for _, vm := range vms {
				listed[vm.ID] = vm.Status
				order = append(order, vm.ID)
			}

			round.ListedVMs = order
		}
	}

	ids := make([]string, 0, len(cfg.VMIDs)+len(order))
	seen := make(map[string]struct{}, len(cfg.VMIDs)+len(order))

	for _, id := range append(append([]string{}, cfg.VMIDs...), order...) {
		if _, ok := seen[id]; ok {
			continue
		}

		seen[id] = struct{}{}
		ids = append(ids, id)
	}

	tasks := make([]task, 0, len(ids))

	for _, id := range ids {
		if status, ok := listed[id]; ok {
			tasks = append(tasks, task{
				entity: models.VM(id),
				probe: func(context.Context) (models.Status, error) {
					if !status.Known() {
						return models.UnknownStatus, fmt.Errorf("%w: vm %s listed with unknown state", probe.ErrProbeFailed, id)
					}

					return status, nil
				},
			})

			continue
		}

		tasks = append(tasks, task{
			entity: models.VM(id),
			probe: func(ctx context.Context) (models.Status, error) {
				if p.backends.Hypervisor == nil {
					return models.UnknownStatus, errBackendUnavailable
				}

				return p.backends.Hypervisor.Status(ctx, id)
			},
		})
	}

	return tasks
}

func (p *Poller) hostTasks(cfg *models.Config) []task {
	tasks := make([]task, 0, len(cfg.RemoteHosts))

	for _, host := range cfg.RemoteHosts {
		tasks = append(tasks, task{
			entity: models.RemoteHost(host),
			probe: func(ctx context.Context) (models.Status, error) {
				if p.backends.Pinger == nil {
					return models.UnknownStatus, errBackendUnavailable
				}

				return p.backends.Pinger.Ping(ctx, host)
			},
		})
	}

	return tasks
}

var resourceOrder = []string{models.ResourceDisk, models.ResourceCPU, models.ResourceMemory}

func (p *Poller) resourceTasks() []task {
	tasks := make([]task, 0, len(resourceOrder))

	for _, resource := range resourceOrder {
		tasks = append(tasks, task{
			entity: models.Resource(resource),
			probe: func(ctx context.Context) (models.Status, error) {
				if p.backends.Sampler == nil {
					return models.UnknownStatus, errBackendUnavailable
				}

				percent, err := p.backends.Sampler.Sample(ctx, resource)
				if err != nil {
					return models.UnknownStatus, err
				}

				return models.PercentStatus(percent), nil
			},
		})
	}

	return tasks
}
