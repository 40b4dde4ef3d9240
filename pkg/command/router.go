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
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/metrics"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/probe"
	"github.com/carverauto/hostwatch/pkg/ticket"
)

const replyUnauthorized = "Unauthorized: server id does not match."

// Caller describes who sent a command.
type Caller struct {
	ChatID   string
	UserID   string
	Username string
}

// Deps are the collaborators a Router dispatches to. Services, Hypervisor,
// Runner and Tickets may be nil; the matching commands then report that
// the feature is unavailable.
type Deps struct {
	Config     ConfigSource
	Services   probe.ServiceManager
	Hypervisor probe.Hypervisor
	Executor   Executor
	Runner     probe.CommandRunner
	Tickets    *ticket.Manager
	Replier    Replier
	Metrics    *metrics.Instruments
	Logger     logger.Logger
}

// Router turns inbound messages into replies.
type Router struct {
	Deps

	table map[string]spec
	order []string
}

// request is what a handler sees.
type request struct {
	cmd    models.Command
	cfg    *models.Config
	caller Caller
}

type handlerFunc func(ctx context.Context, req *request) string

type spec struct {
	// arity counts the arguments required after the identifier.
	arity int
	gated bool
	usage string
	help  string
	run   handlerFunc
}

func NewRouter(deps Deps) *Router {
	r := &Router{Deps: deps}
	r.register()

	if r.Tickets != nil {
		r.Tickets.PassThrough(r.isCommand)
	}

	return r
}

// Handle processes one inbound message and sends any reply to its chat.
func (r *Router) Handle(ctx context.Context, in notify.Inbound) {
	cfg := r.Config.Load()

	if in.ChatID != cfg.ChannelTarget {
		r.Logger.Debug().Str("chat_id", in.ChatID).Msg("Ignoring message from foreign chat")
		return
	}

	caller := Caller{ChatID: in.ChatID, UserID: in.UserID, Username: in.Username}

	if r.Tickets != nil {
		key := ticket.SessionKey{ChatID: in.ChatID, UserID: in.UserID}
		if reply, handled := r.Tickets.Handle(ctx, key, in.Text); handled {
			r.reply(ctx, in.ChatID, reply)
			return
		}
	}

	text := strings.TrimSpace(in.Text)
	if !strings.HasPrefix(text, "/") {
		return
	}

	cmd := Parse(text)
	reply, err := r.Dispatch(ctx, cmd, caller)

	result := "ok"
	if err != nil {
		result = resultLabel(err)
		r.Logger.Debug().Err(err).Str("text", text).Msg("Command not executed")
	}

	r.Metrics.RecordCommand(ctx, cmd.Name, result)
	r.reply(ctx, in.ChatID, reply)
}

// isCommand reports whether text names a registered command.
func (r *Router) isCommand(text string) bool {
	_, ok := r.table[Parse(text).Name]
	return ok
}

// Dispatch runs cmd against the current configuration and returns the
// reply text. An empty reply means nothing is sent.
func (r *Router) Dispatch(ctx context.Context, cmd models.Command, caller Caller) (string, error) {
	cfg := r.Config.Load()

	if cmd.Name == "" {
		return "", errEmptyCommand
	}

	s, ok := r.table[cmd.Name]
	if !ok {
		return "Unknown command: " + strings.TrimSpace(cmd.Raw), fmt.Errorf("%w: %s", errUnknownCommand, cmd.Name)
	}

	if s.gated && !Authorize(cmd, cfg) {
		r.Logger.Info().
			Str("command", cmd.Name).
			Str("caller_id", cmd.CallerIdentifier()).
			Str("user", caller.Username).
			Msg("Dropping command for another server")

		if cfg.ReplyUnauthorized {
			return replyUnauthorized, ErrUnauthorized
		}

		return "", ErrUnauthorized
	}

	if s.gated && len(cmd.Params()) < s.arity {
		return "Usage: " + s.usage, fmt.Errorf("%w: %s", errUsage, cmd.Name)
	}

	r.Logger.Info().Str("command", cmd.Name).Str("user", caller.Username).Msg("Executing command")

	return s.run(ctx, &request{cmd: cmd, cfg: cfg, caller: caller}), nil
}

func (r *Router) reply(ctx context.Context, target, text string) {
	if text == "" {
		return
	}

	r.Replier.SendTo(ctx, target, text)
}

func (r *Router) register() {
	r.table = make(map[string]spec)

	add := func(name string, s spec) {
		r.table[name] = s
		r.order = append(r.order, name)
	}

	add("server_id", spec{usage: "/server_id", help: "Show the server ID.", run: r.serverID})
	add("help", spec{usage: "/help", help: "Show this help.", run: r.help})
	add("list_enabled_services", spec{
		gated: true, usage: "/list_enabled_services <server_id>",
		help: "Show the status of every monitored service.", run: r.listServices,
	})
	add("list_vms", spec{
		gated: true, usage: "/list_vms <server_id>",
		help: "List hypervisor VMs with their status.", run: r.listVMs,
	})
	add("status_vm", spec{
		arity: 1, gated: true, usage: "/status_vm <server_id> <vm_id>",
		help: "Show the status of a VM.", run: r.statusVM,
	})
	add("status_service", spec{
		arity: 1, gated: true, usage: "/status_service <server_id> <service>",
		help: "Show the status of a service.", run: r.statusService,
	})

	for _, action := range []models.Action{models.ActionStart, models.ActionStop, models.ActionRestart} {
		verb := capitalize(string(action))

		add(string(action)+"_vm", spec{
			arity: 1, gated: true, usage: fmt.Sprintf("/%s_vm <server_id> <vm_id>", action),
			help: verb + " a VM.", run: r.control(action, models.KindVM),
		})
		add(string(action)+"_service", spec{
			arity: 1, gated: true, usage: fmt.Sprintf("/%s_service <server_id> <service>", action),
			help: verb + " a service.", run: r.control(action, models.KindService),
		})
	}

	add("run", spec{
		arity: 1, gated: true, usage: "/run <server_id> <command>",
		help: "Execute a shell command (when enabled).", run: r.runShell,
	})
	add("new_ticket", spec{
		gated: true, usage: "/new_ticket <server_id>",
		help: "Open a helpdesk ticket.", run: r.newTicket,
	})
}

func (r *Router) probeContext(ctx context.Context, cfg *models.Config) (context.Context, context.CancelFunc) {
	return context.WithTimeout(ctx, time.Duration(cfg.ProbeTimeout))
}

func resultLabel(err error) string {
	switch {
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, errUsage):
		return "usage"
	case errors.Is(err, errUnknownCommand):
		return "unknown"
	}

	return "error"
}

func capitalize(s string) string {
	if s == "" {
		return s
	}

	return strings.ToUpper(s[:1]) + s[1:]
}
