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

package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"time"

	"go.opentelemetry.io/otel"

	"github.com/carverauto/hostwatch/pkg/config"
	"github.com/carverauto/hostwatch/pkg/events"
	"github.com/carverauto/hostwatch/pkg/lifecycle"
	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/metrics"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/monitor"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/poller"
	"github.com/carverauto/hostwatch/pkg/probe"
	"github.com/carverauto/hostwatch/pkg/state"
	"github.com/carverauto/hostwatch/pkg/ticket"
	"github.com/carverauto/hostwatch/pkg/version"
)

const (
	serviceName     = "hostwatch"
	shutdownTimeout = 15 * time.Second
)

var errFailedToLoadConfig = errors.New("failed to load config")

func main() {
	if err := run(); err != nil {
		log.Fatalf("Fatal error: %v", err)
	}
}

func run() error {
	configPath := flag.String("config", "/etc/hostwatch/hostwatch.json", "Path to hostwatch config file")
	flag.Parse()

	ctx := context.Background()

	cfg, err := config.LoadFile(ctx, *configPath, nil)
	if err != nil {
		return fmt.Errorf("%w: %w", errFailedToLoadConfig, err)
	}

	logConfig := cfg.Logging
	if logConfig == nil {
		logConfig = logger.DefaultConfig()
	}

	mainLogger, err := lifecycle.CreateComponentLogger(serviceName, logConfig)
	if err != nil {
		return fmt.Errorf("failed to initialize logger: %w", err)
	}

	mainLogger.Info().
		Str("version", version.GetFullVersion()).
		Str("identifier", cfg.Identifier).
		Msg("Starting hostwatch")

	if _, err := logger.InitializeMetrics(ctx, logger.MetricsConfig{
		ServiceName:    serviceName,
		ServiceVersion: version.GetVersion(),
		OTel:           &logConfig.OTel,
	}); err != nil && !errors.Is(err, logger.ErrOTelMetricsDisabled) {
		mainLogger.Warn().Err(err).Msg("Metrics export disabled")
	}

	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		defer cancel()

		if err := logger.ShutdownMetrics(shutdownCtx); err != nil {
			mainLogger.Warn().Err(err).Msg("Failed to flush metrics")
		}
	}()

	store := state.NewStore()

	inst, err := metrics.New(otel.GetMeterProvider(), store.Len)
	if err != nil {
		return fmt.Errorf("failed to create instruments: %w", err)
	}
	defer func() { _ = inst.Close() }()

	backends, closeBackends, err := buildBackends(ctx, cfg, mainLogger)
	if err != nil {
		return err
	}
	defer closeBackends()

	telegram := notify.NewTelegramClient(cfg.Telegram.APIURL, cfg.Telegram.Token,
		time.Duration(cfg.Telegram.PollTimeout), mainLogger)

	opts := monitor.Options{
		Holder:    config.NewHolder(cfg.Clone()),
		Store:     store,
		Backends:  backends,
		Transport: telegram,
		Receiver:  telegram,
		Runner:    probe.ExecRunner{},
		Metrics:   inst,
		Logger:    mainLogger,
	}

	if cfg.NATS != nil {
		publisher, closeNATS, err := events.Connect(ctx, cfg.NATS, mainLogger)
		if err != nil {
			return fmt.Errorf("failed to set up event publisher: %w", err)
		}
		defer closeNATS()

		opts.Sink = publisher
	}

	if cfg.Ticket != nil {
		opts.Tickets = ticket.NewOTRSClient(*cfg.Ticket, mainLogger)
	}

	m, err := monitor.New(opts)
	if err != nil {
		return err
	}

	return lifecycle.Run(ctx, m, lifecycle.Options{
		ServiceName:     serviceName,
		ShutdownTimeout: shutdownTimeout,
		Logger:          mainLogger,
		Reload: func(ctx context.Context) error {
			return reloadConfig(ctx, m, *configPath, cfg, mainLogger)
		},
	})
}

// reloadConfig re-reads path and hands it to the monitor. Settings that pick
// backends or connections at startup only take effect after a restart.
func reloadConfig(ctx context.Context, m *monitor.Monitor, path string, startup *models.Config, log logger.Logger) error {
	next, err := config.LoadFile(ctx, path, log)
	if err != nil {
		return err
	}

	if next.ServiceBackend != startup.ServiceBackend || next.Telegram.Token != startup.Telegram.Token {
		log.Warn().Msg("service_backend and telegram changes require a restart")
	}

	return m.Reload(next)
}

func buildBackends(ctx context.Context, cfg *models.Config, log logger.Logger) (poller.Backends, func(), error) {
	runner := probe.ExecRunner{}

	backends := poller.Backends{
		Hypervisor: probe.NewQMHypervisor(cfg.HypervisorCLI, runner, log),
		Pinger:     probe.NewICMPPinger(cfg.PrivilegedICMP, log),
		Sampler:    probe.NewGopsutilSampler(cfg.DiskPath, time.Duration(cfg.CPUSampleWindow)),
	}

	closer := func() {}

	switch cfg.ServiceBackend {
	case models.ServiceBackendDBus:
		mgr, err := probe.NewSystemdManager(ctx, log)
		if err != nil {
			return poller.Backends{}, nil, fmt.Errorf("failed to connect to systemd: %w", err)
		}

		backends.Services = mgr
		closer = mgr.Close
	default:
		backends.Services = probe.NewSystemctlManager(runner, log)
	}

	return backends, closer, nil
}
