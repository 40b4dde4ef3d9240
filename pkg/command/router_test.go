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
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/hostwatch/pkg/config"
	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/probe"
	"github.com/carverauto/hostwatch/pkg/ticket"
)

const channel = "-100"

var errQueryFailed = errors.New("query failed")

type routerFixture struct {
	router     *Router
	holder     *config.Holder
	services   *probe.MockServiceManager
	hypervisor *probe.MockHypervisor
	runner     *probe.MockCommandRunner
	executor   *MockExecutor
	replier    *MockReplier
	sink       *ticket.MockSink
}

func newRouterFixture(t *testing.T, mutate func(*models.Config)) *routerFixture {
	t.Helper()

	cfg := &models.Config{
		Identifier:    "srv1",
		ChannelTarget: channel,
		Telegram:      models.TelegramConfig{Token: "t"},
		Services:      []string{"nginx", "sshd"},
	}

	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, cfg.Validate())

	ctrl := gomock.NewController(t)
	f := &routerFixture{
		holder:     config.NewHolder(cfg),
		services:   probe.NewMockServiceManager(ctrl),
		hypervisor: probe.NewMockHypervisor(ctrl),
		runner:     probe.NewMockCommandRunner(ctrl),
		executor:   NewMockExecutor(ctrl),
		replier:    NewMockReplier(ctrl),
		sink:       ticket.NewMockSink(ctrl),
	}

	log := logger.NewTestLogger()

	f.router = NewRouter(Deps{
		Config:     f.holder,
		Services:   f.services,
		Hypervisor: f.hypervisor,
		Executor:   f.executor,
		Runner:     f.runner,
		Tickets:    ticket.NewManager(f.sink, time.Minute, log),
		Replier:    f.replier,
		Logger:     log,
	})

	return f
}

func inbound(text string) notify.Inbound {
	return notify.Inbound{ChatID: channel, UserID: "5", Username: "ops", Text: text}
}

func TestParse(t *testing.T) {
	tests := []struct {
		raw  string
		name string
		args []string
	}{
		{"/status_service srv1 nginx", "status_service", []string{"srv1", "nginx"}},
		{"/server_id@hostwatch_bot", "server_id", []string{}},
		{"  help   srv1 ", "help", []string{"srv1"}},
		{"", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			cmd := Parse(tt.raw)
			assert.Equal(t, tt.name, cmd.Name)
			assert.Equal(t, tt.args, cmd.Args)
		})
	}
}

func TestAuthorize(t *testing.T) {
	cfg := &models.Config{Identifier: "srv1"}

	assert.True(t, Authorize(Parse("/status_vm srv1 101"), cfg))
	assert.False(t, Authorize(Parse("/status_vm srv2 101"), cfg))
	assert.False(t, Authorize(Parse("/status_vm"), cfg))
}

func TestTail(t *testing.T) {
	assert.Equal(t, "df -h  /var", tail("/run srv1 df -h  /var ", 2))
	assert.Empty(t, tail("/run srv1", 2))
}

func TestWrongIdentifierIsSilentlyDropped(t *testing.T) {
	f := newRouterFixture(t, nil)

	// no backend or replier expectations: any call fails the test
	f.router.Handle(context.Background(), inbound("/status_service wrongId nginx"))

	reply, err := f.router.Dispatch(context.Background(), Parse("/status_service wrongId nginx"), Caller{})
	require.ErrorIs(t, err, ErrUnauthorized)
	assert.Empty(t, reply)
}

func TestWrongIdentifierReplyWhenEnabled(t *testing.T) {
	f := newRouterFixture(t, func(c *models.Config) { c.ReplyUnauthorized = true })

	f.replier.EXPECT().SendTo(gomock.Any(), channel, replyUnauthorized)

	f.router.Handle(context.Background(), inbound("/stop_vm srv9 101"))
}

func TestForeignChatIgnored(t *testing.T) {
	f := newRouterFixture(t, nil)

	in := inbound("/server_id")
	in.ChatID = "999"

	f.router.Handle(context.Background(), in)
}

func TestPlainTextIgnored(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.router.Handle(context.Background(), inbound("good morning"))
}

func TestUngatedCommands(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.replier.EXPECT().SendTo(gomock.Any(), channel, "Server ID: srv1")
	f.router.Handle(context.Background(), inbound("/server_id"))

	reply, err := f.router.Dispatch(context.Background(), Parse("/help"), Caller{})
	require.NoError(t, err)
	assert.True(t, strings.HasPrefix(reply, "Available commands:"))
	assert.Contains(t, reply, "/restart_service <server_id> <service> - Restart a service.")
	assert.Contains(t, reply, "/new_ticket <server_id>")
}

func TestUnknownCommand(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.replier.EXPECT().SendTo(gomock.Any(), channel, "Unknown command: /reboot srv1")

	f.router.Handle(context.Background(), inbound("/reboot srv1"))
}

func TestUsageReply(t *testing.T) {
	f := newRouterFixture(t, nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/status_service srv1"), Caller{})
	require.ErrorIs(t, err, errUsage)
	assert.Equal(t, "Usage: /status_service <server_id> <service>", reply)
}

func TestStatusService(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.services.EXPECT().IsActive(gomock.Any(), "nginx").Return(models.StatusOf(models.StateActive), nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/status_service srv1 nginx"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "Status of service nginx on server srv1: active", reply)
}

func TestStatusServiceRejectsBadName(t *testing.T) {
	f := newRouterFixture(t, nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/status_service srv1 nginx;reboot"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "Invalid service name: nginx;reboot", reply)
}

func TestListEnabledServices(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.services.EXPECT().IsActive(gomock.Any(), "nginx").Return(models.StatusOf(models.StateActive), nil)
	f.services.EXPECT().IsActive(gomock.Any(), "sshd").Return(models.Status{}, errQueryFailed)

	reply, err := f.router.Dispatch(context.Background(), Parse("/list_enabled_services srv1"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "🟢 [Server srv1] nginx is active.\n🔴 [Server srv1] sshd is unknown.", reply)
}

func TestListVMs(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.hypervisor.EXPECT().List(gomock.Any()).Return([]probe.VMInfo{
		{ID: "101", Name: "web", Status: models.StatusOf(models.StateRunning)},
		{ID: "102", Status: models.StatusOf(models.StateStopped)},
	}, nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/list_vms srv1"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "VMs on server srv1:\n🟢 VM 101 (web): running\n🔴 VM 102: stopped", reply)
}

func TestStatusVM(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.hypervisor.EXPECT().Status(gomock.Any(), "101").Return(models.StatusOf(models.StateStopped), nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/status_vm srv1 101"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "Status of VM 101 on server srv1: stopped", reply)

	reply, _ = f.router.Dispatch(context.Background(), Parse("/status_vm srv1 abc"), Caller{})
	assert.Equal(t, "Invalid VM id: abc", reply)
}

func TestRestartServiceStoppedNotRestarted(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.executor.EXPECT().Apply(gomock.Any(), models.ActionRestart, models.Service("nginx")).
		Return(models.Outcome{Result: models.ResultStoppedNotRestarted, Output: "start: job failed"}, errQueryFailed)

	reply, err := f.router.Dispatch(context.Background(), Parse("/restart_service srv1 nginx"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "🔴 Service nginx stopped but failed to start again on server srv1.\nstart: job failed", reply)
}

func TestStartVM(t *testing.T) {
	f := newRouterFixture(t, nil)

	f.executor.EXPECT().Apply(gomock.Any(), models.ActionStart, models.VM("101")).
		Return(models.Outcome{Success: true, Result: models.ResultSucceeded}, nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/start_vm srv1 101"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "🟢 VM 101 started on server srv1.", reply)
}

func TestRunDisabledByDefault(t *testing.T) {
	f := newRouterFixture(t, nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/run srv1 uptime"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "The run command is disabled on server srv1.", reply)
}

func TestRunExecutesShell(t *testing.T) {
	f := newRouterFixture(t, func(c *models.Config) { c.AllowRun = true })

	f.runner.EXPECT().Run(gomock.Any(), "sh", "-c", "df -h | tail -1").Return([]byte("/dev/sda1 50G\n"), nil)

	reply, err := f.router.Dispatch(context.Background(), Parse("/run srv1 df -h | tail -1"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "/dev/sda1 50G", reply)
}

func TestRunOutputIsTruncated(t *testing.T) {
	f := newRouterFixture(t, func(c *models.Config) { c.AllowRun = true })

	f.runner.EXPECT().Run(gomock.Any(), "sh", "-c", "yes").Return([]byte(strings.Repeat("y\n", 5000)), nil)

	reply, _ := f.router.Dispatch(context.Background(), Parse("/run srv1 yes"), Caller{})
	assert.LessOrEqual(t, len(reply), notify.MaxMessageBytes)
}

func TestTicketDialogueThroughRouter(t *testing.T) {
	f := newRouterFixture(t, nil)

	gomock.InOrder(
		f.replier.EXPECT().SendTo(gomock.Any(), channel, gomock.Any()),
		f.replier.EXPECT().SendTo(gomock.Any(), channel, gomock.Any()),
		f.replier.EXPECT().SendTo(gomock.Any(), channel, "Ticket created. Ticket number: 42"),
	)

	f.sink.EXPECT().Create(gomock.Any(), ticket.Ticket{Subject: "VPN down", Body: "since 9am", From: "ops"}).Return("42", nil)

	f.router.Handle(context.Background(), inbound("/new_ticket srv1"))
	f.router.Handle(context.Background(), inbound("VPN down"))
	f.router.Handle(context.Background(), inbound("since 9am"))
}

func TestTicketDialogueKeepsSlashBody(t *testing.T) {
	f := newRouterFixture(t, nil)

	gomock.InOrder(
		f.replier.EXPECT().SendTo(gomock.Any(), channel, gomock.Any()),
		f.replier.EXPECT().SendTo(gomock.Any(), channel, gomock.Any()),
		f.replier.EXPECT().SendTo(gomock.Any(), channel, "Server ID: srv1"),
		f.replier.EXPECT().SendTo(gomock.Any(), channel, "Ticket created. Ticket number: 43"),
	)

	f.sink.EXPECT().Create(gomock.Any(), ticket.Ticket{Subject: "Disk full", Body: "/var is at 99%", From: "ops"}).
		Return("43", nil)

	ctx := context.Background()
	f.router.Handle(ctx, inbound("/new_ticket srv1"))
	f.router.Handle(ctx, inbound("Disk full"))
	f.router.Handle(ctx, inbound("/server_id"))
	f.router.Handle(ctx, inbound("/var is at 99%"))
}

func TestNewTicketWithoutSink(t *testing.T) {
	f := newRouterFixture(t, nil)
	f.router.Tickets = nil

	reply, err := f.router.Dispatch(context.Background(), Parse("/new_ticket srv1"), Caller{})
	require.NoError(t, err)
	assert.Equal(t, "Ticketing is not configured on server srv1.", reply)
}
