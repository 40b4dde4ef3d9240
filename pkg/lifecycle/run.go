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

package lifecycle

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
)

const defaultShutdownTimeout = 10 * time.Second

// Service is a long-running component. Start blocks until ctx is cancelled
// or the service fails.
type Service interface {
	Start(ctx context.Context) error
	Stop(ctx context.Context) error
}

// Options tunes Run.
type Options struct {
	ServiceName     string
	ShutdownTimeout time.Duration
	Logger          logger.Logger
	// Reload, when set, runs on every SIGHUP. A failed reload is logged and
	// the service keeps running.
	Reload func(ctx context.Context) error
}

// Run starts svc and blocks until SIGINT/SIGTERM, parent cancellation or a
// start failure, then stops svc within the shutdown timeout.
func Run(ctx context.Context, svc Service, opts Options) error {
	log := opts.Logger
	if log == nil {
		log = logger.NewTestLogger()
	}

	timeout := opts.ShutdownTimeout
	if timeout <= 0 {
		timeout = defaultShutdownTimeout
	}

	ctx, stopSignals := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stopSignals()

	if opts.Reload != nil {
		hup := make(chan os.Signal, 1)
		signal.Notify(hup, syscall.SIGHUP)
		defer signal.Stop(hup)

		go watchReload(ctx, hup, opts.Reload, opts.ServiceName, log)
	}

	errCh := make(chan error, 1)

	go func() {
		errCh <- svc.Start(ctx)
	}()

	log.Info().Str("service", opts.ServiceName).Msg("Service started")

	var runErr error

	select {
	case <-ctx.Done():
		log.Info().Str("service", opts.ServiceName).Msg("Shutdown requested")
	case err := <-errCh:
		if err != nil && !errors.Is(err, context.Canceled) {
			runErr = fmt.Errorf("%s: %w", opts.ServiceName, err)
		}
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := svc.Stop(shutdownCtx); err != nil {
		log.Error().Err(err).Str("service", opts.ServiceName).Msg("Error during shutdown")

		if runErr == nil {
			runErr = err
		}
	}

	return runErr
}

func watchReload(ctx context.Context, sig <-chan os.Signal, reload func(context.Context) error, name string, log logger.Logger) {
	for {
		select {
		case <-ctx.Done():
			return
		case <-sig:
			log.Info().Str("service", name).Msg("Reload requested")

			if err := reload(ctx); err != nil {
				log.Error().Err(err).Str("service", name).Msg("Reload failed, keeping current configuration")
			}
		}
	}
}
