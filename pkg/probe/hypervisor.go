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
	"bufio"
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const (
	statusPrefix   = "status:"
	minListColumns = 3
)

// QMHypervisor drives Proxmox VMs through the qm CLI.
type QMHypervisor struct {
	binary string
	runner CommandRunner
	logger logger.Logger
}

func NewQMHypervisor(binary string, runner CommandRunner, log logger.Logger) *QMHypervisor {
	if binary == "" {
		binary = "qm"
	}

	if runner == nil {
		runner = ExecRunner{}
	}

	return &QMHypervisor{binary: binary, runner: runner, logger: log}
}

// Status parses `qm status <id>` output such as "status: running".
func (h *QMHypervisor) Status(ctx context.Context, id string) (models.Status, error) {
	if err := ValidateVMID(id); err != nil {
		return models.UnknownStatus, err
	}

	out, err := h.runner.Run(ctx, h.binary, "status", id)
	if err != nil {
		return models.UnknownStatus, fmt.Errorf("%w: %s status %s: %w", ErrProbeFailed, h.binary, id, err)
	}

	line := strings.TrimSpace(string(out))
	if !strings.HasPrefix(line, statusPrefix) {
		return models.UnknownStatus, fmt.Errorf("%w: %w: %q", ErrProbeFailed, errUnexpectedOutput, line)
	}

	return parseVMState(strings.TrimSpace(strings.TrimPrefix(line, statusPrefix)))
}

// List parses the `qm list` table: VMID NAME STATUS MEM BOOTDISK PID.
func (h *QMHypervisor) List(ctx context.Context) ([]VMInfo, error) {
	out, err := h.runner.Run(ctx, h.binary, "list")
	if err != nil {
		return nil, fmt.Errorf("%w: %s list: %w", ErrProbeFailed, h.binary, err)
	}

	return parseVMList(out)
}

func (h *QMHypervisor) Start(ctx context.Context, id string) (string, error) {
	return h.control(ctx, "start", id)
}

func (h *QMHypervisor) Stop(ctx context.Context, id string) (string, error) {
	return h.control(ctx, "stop", id)
}

func (h *QMHypervisor) control(ctx context.Context, verb, id string) (string, error) {
	if err := ValidateVMID(id); err != nil {
		return "", err
	}

	h.logger.Debug().Str("vm", id).Str("action", verb).Msg("Running hypervisor command")

	out, err := h.runner.Run(ctx, h.binary, verb, id)
	output := strings.TrimSpace(string(out))

	if err != nil {
		return output, fmt.Errorf("%w: %s %s %s: %w", ErrCommandFailed, h.binary, verb, id, err)
	}

	return output, nil
}

func parseVMList(out []byte) ([]VMInfo, error) {
	var vms []VMInfo

	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		fields := strings.Fields(scanner.Text())
		if len(fields) < minListColumns || fields[0] == "VMID" {
			continue
		}

		if ValidateVMID(fields[0]) != nil {
			continue
		}

		status, err := parseVMState(fields[2])
		if err != nil {
			status = models.UnknownStatus
		}

		vms = append(vms, VMInfo{ID: fields[0], Name: fields[1], Status: status})
	}

	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", ErrProbeFailed, err)
	}

	return vms, nil
}

func parseVMState(state string) (models.Status, error) {
	switch strings.ToLower(state) {
	case "running":
		return models.StatusOf(models.StateRunning), nil
	case "stopped", "paused", "suspended":
		return models.StatusOf(models.StateStopped), nil
	}

	return models.UnknownStatus, fmt.Errorf("%w: %w: vm state %q", ErrProbeFailed, errUnexpectedOutput, state)
}
