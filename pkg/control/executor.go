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

// Package control applies start, stop and restart actions to services and VMs.
package control

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/probe"
)

const defaultTimeout = 60 * time.Second

type step func(ctx context.Context, id string) (string, error)

// Executor runs control actions against the service manager and hypervisor.
type Executor struct {
	services   probe.ServiceManager
	hypervisor probe.Hypervisor
	timeout    func() time.Duration
	logger     logger.Logger
}

// NewExecutor builds an Executor. Either backend may be nil, in which case
// actions on that kind fail without side effects. timeout is read per call.
func NewExecutor(services probe.ServiceManager, hypervisor probe.Hypervisor, timeout func() time.Duration, log logger.Logger) *Executor {
	if timeout == nil {
		timeout = func() time.Duration { return defaultTimeout }
	}

	return &Executor{
		services:   services,
		hypervisor: hypervisor,
		timeout:    timeout,
		logger:     log,
	}
}

// Apply runs action on target. The Outcome is always populated; the error
// is non-nil exactly when Outcome.Success is false.
func (e *Executor) Apply(ctx context.Context, action models.Action, target models.Entity) (models.Outcome, error) {
	start, stop, err := e.steps(target)
	if err != nil {
		return failed(err), err
	}

	log := e.logger.With().Str("action", string(action)).Str("target", target.String()).Logger()

	var (
		outcome models.Outcome
		runErr  error
	)

	switch action {
	case models.ActionStart:
		outcome, runErr = e.single(ctx, start, target.ID)
	case models.ActionStop:
		outcome, runErr = e.single(ctx, stop, target.ID)
	case models.ActionRestart:
		outcome, runErr = e.restart(ctx, stop, start, target.ID)
	default:
		runErr = fmt.Errorf("%w: %q", errUnsupportedAction, action)

		return failed(runErr), runErr
	}

	if runErr != nil {
		log.Warn().Err(runErr).Str("result", string(outcome.Result)).Msg("Control action failed")
	} else {
		log.Info().Str("result", string(outcome.Result)).Msg("Control action applied")
	}

	return outcome, runErr
}

func (e *Executor) steps(target models.Entity) (start, stop step, err error) {
	switch target.Kind {
	case models.KindService:
		if err := probe.ValidateServiceName(target.ID); err != nil {
			return nil, nil, err
		}

		if e.services == nil {
			return nil, nil, fmt.Errorf("%w: service manager", errBackendUnavailable)
		}

		return e.services.Start, e.services.Stop, nil
	case models.KindVM:
		if err := probe.ValidateVMID(target.ID); err != nil {
			return nil, nil, err
		}

		if e.hypervisor == nil {
			return nil, nil, fmt.Errorf("%w: hypervisor", errBackendUnavailable)
		}

		return e.hypervisor.Start, e.hypervisor.Stop, nil
	case models.KindRemoteHost, models.KindResource:
	}

	return nil, nil, fmt.Errorf("%w: %s", errUnsupportedTarget, target.Kind)
}

func (e *Executor) single(ctx context.Context, run step, id string) (models.Outcome, error) {
	out, err := e.call(ctx, run, id)
	if err != nil {
		return models.Outcome{Result: models.ResultFailed, Output: out}, err
	}

	return models.Outcome{Success: true, Result: models.ResultSucceeded, Output: out}, nil
}

// restart stops then starts. Start is attempted even when stop failed.
func (e *Executor) restart(ctx context.Context, stop, start step, id string) (models.Outcome, error) {
	stopOut, stopErr := e.call(ctx, stop, id)
	startOut, startErr := e.call(ctx, start, id)

	output := joinOutput(stopOut, startOut)

	switch {
	case stopErr != nil:
		if startErr != nil {
			return models.Outcome{Result: models.ResultRestartFailed, Output: output},
				fmt.Errorf("restart: stop: %w (start: %w)", stopErr, startErr)
		}

		return models.Outcome{Result: models.ResultRestartFailed, Output: output},
			fmt.Errorf("restart: stop: %w", stopErr)
	case startErr != nil:
		return models.Outcome{Result: models.ResultStoppedNotRestarted, Output: output},
			fmt.Errorf("restart: start: %w", startErr)
	}

	return models.Outcome{Success: true, Result: models.ResultRestarted, Output: output}, nil
}

func (e *Executor) call(ctx context.Context, run step, id string) (string, error) {
	callCtx, cancel := context.WithTimeout(ctx, e.timeout())
	defer cancel()

	out, err := run(callCtx, id)
	if err != nil {
		return strings.TrimSpace(out), fmt.Errorf("%w: %w", ErrExecution, err)
	}

	return strings.TrimSpace(out), nil
}

func joinOutput(stopOut, startOut string) string {
	var b strings.Builder

	if stopOut != "" {
		b.WriteString("stop: ")
		b.WriteString(stopOut)
	}

	if startOut != "" {
		if b.Len() > 0 {
			b.WriteByte('\n')
		}

		b.WriteString("start: ")
		b.WriteString(startOut)
	}

	return b.String()
}

func failed(err error) models.Outcome {
	return models.Outcome{Result: models.ResultFailed, Output: err.Error()}
}
