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

package probe

import (
	"context"
	"fmt"
	"strings"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const systemctlBinary = "systemctl"

// SystemctlManager drives services through the systemctl CLI.
type SystemctlManager struct {
	runner CommandRunner
	logger logger.Logger
}

func NewSystemctlManager(runner CommandRunner, log logger.Logger) *SystemctlManager {
	if runner == nil {
		runner = ExecRunner{}
	}

	return &SystemctlManager{runner: runner, logger: log}
}

// IsActive maps `systemctl is-active` output onto active or inactive.
// is-active exits non-zero for anything but active, so the output decides.
func (m *SystemctlManager) IsActive(ctx context.Context, name string) (models.Status, error) {
	if err := ValidateServiceName(name); err != nil {
		return models.UnknownStatus, err
	}

	out, err := m.runner.Run(ctx, systemctlBinary, "is-active", name)
	state := strings.TrimSpace(string(out))

	switch state {
	case "active", "reloading":
		return models.StatusOf(models.StateActive), nil
	case "inactive", "failed", "activating", "deactivating", "dead":
		return models.StatusOf(models.StateInactive), nil
	}

	if err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: systemctl is-active %s: %w", ErrProbeFailed, name, err)
	}

	return models.UnknownStatus, fmt.Errorf("%w: %w: %q", ErrProbeFailed, errUnexpectedOutput, state)
}

func (m *SystemctlManager) Start(ctx context.Context, name string) (string, error) {
	return m.control(ctx, "start", name)
}

func (m *SystemctlManager) Stop(ctx context.Context, name string) (string, error) {
	return m.control(ctx, "stop", name)
}

func (m *SystemctlManager) control(ctx context.Context, verb, name string) (string, error) {
	if err := ValidateServiceName(name); err != nil {
		return "", err
	}

	m.logger.Debug().Str("service", name).Str("action", verb).Msg("Running systemctl")

	out, err := m.runner.Run(ctx, systemctlBinary, verb, name)
	output := strings.TrimSpace(string(out))

	if err != nil {
		return output, fmt.Errorf("%w: systemctl %s %s: %w", ErrCommandFailed, verb, name, err)
	}

	return output, nil
}
