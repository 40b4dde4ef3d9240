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

package command

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/probe"
	"github.com/carverauto/hostwatch/pkg/ticket"
)

const (
	markerUp   = "🟢"
	markerDown = "🔴"

	shell     = "sh"
	shellFlag = "-c"
)

func (r *Router) serverID(_ context.Context, req *request) string {
	return "Server ID: " + req.cfg.Identifier
}

func (r *Router) help(_ context.Context, _ *request) string {
	var b strings.Builder

	b.WriteString("Available commands:\n")

	for _, name := range r.order {
		s := r.table[name]
		fmt.Fprintf(&b, "%s - %s\n", s.usage, s.help)
	}

	return strings.TrimRight(b.String(), "\n")
}

func (r *Router) listServices(ctx context.Context, req *request) string {
	if len(req.cfg.Services) == 0 {
		return fmt.Sprintf("[Server %s] No services are monitored.", req.cfg.Identifier)
	}

	lines := make([]string, 0, len(req.cfg.Services))

	for _, name := range req.cfg.Services {
		status := r.serviceStatus(ctx, req.cfg, name)
		lines = append(lines, fmt.Sprintf("%s [Server %s] %s is %s.", marker(status), req.cfg.Identifier, name, status))
	}

	return strings.Join(lines, "\n")
}

func (r *Router) listVMs(ctx context.Context, req *request) string {
	if r.Hypervisor == nil {
		return fmt.Sprintf("[Server %s] No hypervisor is available.", req.cfg.Identifier)
	}

	pctx, cancel := r.probeContext(ctx, req.cfg)
	defer cancel()

	vms, err := r.Hypervisor.List(pctx)
	if err != nil {
		r.Logger.Warn().Err(err).Msg("Failed to list VMs")
		return fmt.Sprintf("[Server %s] Failed to list VMs: %v", req.cfg.Identifier, err)
	}

	if len(vms) == 0 {
		return fmt.Sprintf("[Server %s] No VMs found.", req.cfg.Identifier)
	}

	lines := make([]string, 0, len(vms)+1)
	lines = append(lines, fmt.Sprintf("VMs on server %s:", req.cfg.Identifier))

	for _, vm := range vms {
		if vm.Name != "" {
			lines = append(lines, fmt.Sprintf("%s VM %s (%s): %s", marker(vm.Status), vm.ID, vm.Name, vm.Status))
		} else {
			lines = append(lines, fmt.Sprintf("%s VM %s: %s", marker(vm.Status), vm.ID, vm.Status))
		}
	}

	return strings.Join(lines, "\n")
}

func (r *Router) statusVM(ctx context.Context, req *request) string {
	id := req.cmd.Params()[0]

	if err := probe.ValidateVMID(id); err != nil {
		return "Invalid VM id: " + id
	}

	status := models.UnknownStatus

	if r.Hypervisor != nil {
		pctx, cancel := r.probeContext(ctx, req.cfg)
		defer cancel()

		s, err := r.Hypervisor.Status(pctx, id)
		if err != nil {
			r.Logger.Warn().Err(err).Str("vm", id).Msg("VM status query failed")
		} else {
			status = s
		}
	}

	return fmt.Sprintf("Status of VM %s on server %s: %s", id, req.cfg.Identifier, status)
}

func (r *Router) statusService(ctx context.Context, req *request) string {
	name := req.cmd.Params()[0]

	if err := probe.ValidateServiceName(name); err != nil {
		return "Invalid service name: " + name
	}

	status := r.serviceStatus(ctx, req.cfg, name)

	return fmt.Sprintf("Status of service %s on server %s: %s", name, req.cfg.Identifier, status)
}

func (r *Router) serviceStatus(ctx context.Context, cfg *models.Config, name string) models.Status {
	if r.Services == nil {
		return models.UnknownStatus
	}

	pctx, cancel := r.probeContext(ctx, cfg)
	defer cancel()

	status, err := r.Services.IsActive(pctx, name)
	if err != nil {
		r.Logger.Warn().Err(err).Str("service", name).Msg("Service status query failed")
		return models.UnknownStatus
	}

	return status
}

func (r *Router) control(action models.Action, kind models.Kind) handlerFunc {
	return func(ctx context.Context, req *request) string {
		target := models.Entity{Kind: kind, ID: req.cmd.Params()[0]}

		outcome, err := r.Executor.Apply(ctx, action, target)
		if err != nil {
			r.Logger.Warn().Err(err).Str("target", target.String()).Msg("Control action failed")
		}

		return controlReply(req.cfg.Identifier, action, target, outcome)
	}
}

func controlReply(serverID string, action models.Action, target models.Entity, outcome models.Outcome) string {
	var head string

	switch outcome.Result {
	case models.ResultSucceeded:
		head = fmt.Sprintf("%s %s %s on server %s.", markerUp, target.Label(), pastTense(action), serverID)
	case models.ResultRestarted:
		head = fmt.Sprintf("%s %s restarted on server %s.", markerUp, target.Label(), serverID)
	case models.ResultStoppedNotRestarted:
		head = fmt.Sprintf("%s %s stopped but failed to start again on server %s.", markerDown, target.Label(), serverID)
	case models.ResultRestartFailed:
		head = fmt.Sprintf("%s Failed to restart %s on server %s.", markerDown, target.Label(), serverID)
	case models.ResultFailed:
		head = fmt.Sprintf("%s Failed to %s %s on server %s.", markerDown, action, target.Label(), serverID)
	}

	if outcome.Output == "" {
		return head
	}

	return head + "\n" + outcome.Output
}

func pastTense(action models.Action) string {
	switch action {
	case models.ActionStart:
		return "started"
	case models.ActionStop:
		return "stopped"
	case models.ActionRestart:
		return "restarted"
	}

	return string(action)
}

func (r *Router) runShell(ctx context.Context, req *request) string {
	if !req.cfg.AllowRun {
		return fmt.Sprintf("The run command is disabled on server %s.", req.cfg.Identifier)
	}

	if r.Runner == nil {
		return fmt.Sprintf("[Server %s] No command runner is available.", req.cfg.Identifier)
	}

	script := tail(req.cmd.Raw, 2)

	rctx, cancel := context.WithTimeout(ctx, time.Duration(req.cfg.CommandTimeout))
	defer cancel()

	r.Logger.Warn().Str("user", req.caller.Username).Str("script", script).Msg("Running shell command")

	out, err := r.Runner.Run(rctx, shell, shellFlag, script)

	text := strings.TrimSpace(string(out))
	if err != nil {
		text = strings.TrimSpace(fmt.Sprintf("Error: %v\n%s", err, text))
	}

	if text == "" {
		text = "(no output)"
	}

	return notify.Truncate(text, notify.MaxMessageBytes)
}

func (r *Router) newTicket(_ context.Context, req *request) string {
	if r.Tickets == nil {
		return fmt.Sprintf("Ticketing is not configured on server %s.", req.cfg.Identifier)
	}

	from := req.caller.Username
	if from == "" {
		from = req.caller.UserID
	}

	return r.Tickets.Begin(ticket.SessionKey{ChatID: req.caller.ChatID, UserID: req.caller.UserID}, from)
}

func marker(s models.Status) string {
	if s.Healthy() {
		return markerUp
	}

	return markerDown
}
