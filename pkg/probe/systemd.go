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
	"errors"
	"fmt"
	"strings"

	systemdDbus "github.com/coreos/go-systemd/v22/dbus"
	"github.com/godbus/dbus/v5"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const (
	unitSuffix      = ".service"
	jobModeReplace  = "replace"
	jobResultDone   = "done"
	noSuchUnitError = "org.freedesktop.systemd1.NoSuchUnit"
)

var errUnitNotFound = errors.New("unit not found")

// unitConn is the subset of the systemd D-Bus connection used here.
type unitConn interface {
	GetUnitPropertyContext(ctx context.Context, unit string, propertyName string) (*systemdDbus.Property, error)
	StartUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	StopUnitContext(ctx context.Context, name string, mode string, ch chan<- string) (int, error)
	Close()
}

// SystemdManager talks to systemd over D-Bus.
type SystemdManager struct {
	conn   unitConn
	logger logger.Logger
}

// NewSystemdManager connects to the system bus.
func NewSystemdManager(ctx context.Context, log logger.Logger) (*SystemdManager, error) {
	conn, err := systemdDbus.NewWithContext(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to systemd: %w", err)
	}

	return &SystemdManager{conn: conn, logger: log}, nil
}

func (m *SystemdManager) Close() {
	m.conn.Close()
}

func (m *SystemdManager) IsActive(ctx context.Context, name string) (models.Status, error) {
	if err := ValidateServiceName(name); err != nil {
		return models.UnknownStatus, err
	}

	prop, err := m.conn.GetUnitPropertyContext(ctx, unitName(name), "ActiveState")
	if err != nil {
		if isNoSuchUnitError(err) {
			return models.StatusOf(models.StateInactive), nil
		}

		return models.UnknownStatus, fmt.Errorf("%w: ActiveState of %s: %w", ErrProbeFailed, name, err)
	}

	state, _ := prop.Value.Value().(string)

	switch state {
	case "active", "reloading":
		return models.StatusOf(models.StateActive), nil
	case "":
		return models.UnknownStatus, fmt.Errorf("%w: %w: empty ActiveState", ErrProbeFailed, errUnexpectedOutput)
	default:
		return models.StatusOf(models.StateInactive), nil
	}
}

func (m *SystemdManager) Start(ctx context.Context, name string) (string, error) {
	return m.runJob(ctx, "start", name, m.conn.StartUnitContext)
}

func (m *SystemdManager) Stop(ctx context.Context, name string) (string, error) {
	return m.runJob(ctx, "stop", name, m.conn.StopUnitContext)
}

type jobFunc func(ctx context.Context, name string, mode string, ch chan<- string) (int, error)

// runJob queues a unit job and waits for systemd to report its result.
func (m *SystemdManager) runJob(ctx context.Context, verb, name string, job jobFunc) (string, error) {
	if err := ValidateServiceName(name); err != nil {
		return "", err
	}

	m.logger.Debug().Str("service", name).Str("action", verb).Msg("Queueing systemd job")

	resultCh := make(chan string, 1)

	if _, err := job(ctx, unitName(name), jobModeReplace, resultCh); err != nil {
		if isNoSuchUnitError(err) {
			return "", fmt.Errorf("%w: %w: %s", ErrCommandFailed, errUnitNotFound, name)
		}

		return "", fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, verb, name, err)
	}

	select {
	case result := <-resultCh:
		if result != jobResultDone {
			return result, fmt.Errorf("%w: %s %s: job %s", ErrCommandFailed, verb, name, result)
		}

		return result, nil
	case <-ctx.Done():
		return "", fmt.Errorf("%w: %s %s: %w", ErrCommandFailed, verb, name, ctx.Err())
	}
}

var unitTypes = []string{".service", ".socket", ".timer", ".target", ".mount", ".path", ".scope", ".slice"}

// unitName appends .service unless name already carries a unit type.
func unitName(name string) string {
	for _, suffix := range unitTypes {
		if strings.HasSuffix(name, suffix) {
			return name
		}
	}

	return name + unitSuffix
}

func isNoSuchUnitError(err error) bool {
	var dbusErr dbus.Error
	if errors.As(err, &dbusErr) {
		return dbusErr.Name == noSuchUnitError
	}

	return false
}
