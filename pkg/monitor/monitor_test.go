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

package monitor

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"github.com/carverauto/hostwatch/pkg/config"
	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/notify"
	"github.com/carverauto/hostwatch/pkg/poller"
)

var errChatDown = errors.New("chat down")

type recordingSink struct {
	published []models.Event
}

func (r *recordingSink) Publish(_ context.Context, _ string, evs []models.Event) error {
	r.published = append(r.published, evs...)
	return nil
}

func testConfig(t *testing.T, mutate func(*models.Config)) *models.Config {
	t.Helper()

	noStartup := false
	cfg := &models.Config{
		Identifier:     "srv1",
		ChannelTarget:  "-100",
		Telegram:       models.TelegramConfig{Token: "t"},
		Services:       []string{"nginx"},
		StartupMessage: &noStartup,
	}

	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, cfg.Validate())

	return cfg
}

type fixture struct {
	monitor   *Monitor
	holder    *config.Holder
	transport *notify.MockTransport
	receiver  *notify.MockReceiver
	sink      *recordingSink
}

func newFixture(t *testing.T, cfg *models.Config) *fixture {
	t.Helper()

	ctrl := gomock.NewController(t)
	f := &fixture{
		holder:    config.NewHolder(cfg),
		transport: notify.NewMockTransport(ctrl),
		receiver:  notify.NewMockReceiver(ctrl),
		sink:      &recordingSink{},
	}

	m, err := New(Options{
		Holder:    f.holder,
		Backends:  poller.Backends{},
		Transport: f.transport,
		Receiver:  f.receiver,
		Sink:      f.sink,
		Logger:    logger.NewTestLogger(),
	})
	require.NoError(t, err)

	m.retryInitial = time.Millisecond
	f.monitor = m

	return f
}

func serviceRound(state models.State) *poller.Round {
	return &poller.Round{Observations: []models.Observation{
		{Entity: models.Service("nginx"), Value: models.StatusOf(state), ObservedAt: time.Now()},
	}}
}

func TestNginxGoesDownOnce(t *testing.T) {
	cfg := testConfig(t, nil)
	f := newFixture(t, cfg)

	f.transport.EXPECT().
		SendText(gomock.Any(), "-100", "🔴 [Server srv1] Service nginx changed to inactive (was active).").
		Return(nil).
		Times(1)

	ctx := context.Background()
	f.monitor.HandleRound(ctx, cfg, serviceRound(models.StateActive))
	f.monitor.HandleRound(ctx, cfg, serviceRound(models.StateInactive))
	f.monitor.HandleRound(ctx, cfg, serviceRound(models.StateInactive))

	status, ok := f.monitor.store.Get(models.Service("nginx"))
	require.True(t, ok)
	assert.Equal(t, models.StatusOf(models.StateInactive), status)

	require.Len(t, f.sink.published, 1)
	assert.Equal(t, models.EventTransition, f.sink.published[0].Type)
}

func TestResourceAlertsEveryRound(t *testing.T) {
	cfg := testConfig(t, nil)
	f := newFixture(t, cfg)

	round := &poller.Round{Observations: []models.Observation{
		{Entity: models.Resource(models.ResourceDisk), Value: models.PercentStatus(95)},
		{Entity: models.Resource(models.ResourceCPU), Value: models.PercentStatus(10)},
	}}

	f.transport.EXPECT().
		SendText(gomock.Any(), "-100", "🔴 [Server srv1] Disk usage is at or above 90%: 95.00%.").
		Return(nil).
		Times(2)

	f.monitor.HandleRound(context.Background(), cfg, round)
	f.monitor.HandleRound(context.Background(), cfg, round)
}

func TestRemovedVMNotifiedWhenPolicyAllows(t *testing.T) {
	cfg := testConfig(t, func(c *models.Config) { c.RemovalPolicy = models.RemovalNotify })
	f := newFixture(t, cfg)

	f.transport.EXPECT().SendText(gomock.Any(), "-100", "🔵 [Server srv1] VM 101 discovered: running.").Return(nil)
	f.transport.EXPECT().SendText(gomock.Any(), "-100", "⚪ [Server srv1] VM 101 is no longer listed (was running).").Return(nil)

	f.monitor.HandleRound(context.Background(), cfg, &poller.Round{
		VMsListed: true,
		ListedVMs: []string{"101"},
		Observations: []models.Observation{
			{Entity: models.VM("101"), Value: models.StatusOf(models.StateRunning)},
		},
	})

	// a failed list is not evidence of removal
	f.monitor.HandleRound(context.Background(), cfg, &poller.Round{})

	f.monitor.HandleRound(context.Background(), cfg, &poller.Round{VMsListed: true})

	_, ok := f.monitor.store.Get(models.VM("101"))
	assert.False(t, ok)
}

func TestRunRoutesCommandsAndStops(t *testing.T) {
	cfg := testConfig(t, func(c *models.Config) {
		startup := true
		c.StartupMessage = &startup
		c.Services = nil
	})
	f := newFixture(t, cfg)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	gomock.InOrder(
		f.receiver.EXPECT().Receive(gomock.Any()).Return(nil, errChatDown),
		f.receiver.EXPECT().Receive(gomock.Any()).Return([]notify.Inbound{
			{UpdateID: 1, ChatID: "-100", UserID: "5", Text: "/server_id"},
		}, nil),
		f.receiver.EXPECT().Receive(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]notify.Inbound, error) {
			<-ctx.Done()
			return nil, ctx.Err()
		}).AnyTimes(),
	)

	gomock.InOrder(
		f.transport.EXPECT().SendText(gomock.Any(), "-100", "Monitoring started on server srv1.").Return(nil),
		f.transport.EXPECT().SendText(gomock.Any(), "-100", "Server ID: srv1").DoAndReturn(
			func(context.Context, string, string) error {
				cancel()
				return nil
			}),
	)

	done := make(chan error, 1)

	go func() { done <- f.monitor.Run(ctx) }()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(5 * time.Second):
		require.Fail(t, "monitor did not stop")
	}
}

func TestStartStop(t *testing.T) {
	cfg := testConfig(t, func(c *models.Config) { c.Services = nil })
	f := newFixture(t, cfg)

	f.receiver.EXPECT().Receive(gomock.Any()).DoAndReturn(func(ctx context.Context) ([]notify.Inbound, error) {
		<-ctx.Done()
		return nil, ctx.Err()
	}).AnyTimes()

	done := make(chan error, 1)

	go func() { done <- f.monitor.Start(context.Background()) }()

	require.Eventually(t, func() bool {
		f.monitor.mu.Lock()
		defer f.monitor.mu.Unlock()

		return f.monitor.cancel != nil
	}, time.Second, 5*time.Millisecond)

	stopCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	require.NoError(t, f.monitor.Stop(stopCtx))
	require.NoError(t, <-done)
}

func TestReload(t *testing.T) {
	cfg := testConfig(t, nil)
	f := newFixture(t, cfg)

	next := cfg.Clone()
	next.PollInterval = models.Duration(5 * time.Second)
	require.NoError(t, f.monitor.Reload(next))
	assert.Same(t, next, f.holder.Load())

	bad := cfg.Clone()
	bad.Identifier = ""
	require.ErrorIs(t, f.monitor.Reload(bad), models.ErrInvalidConfig)
	assert.Same(t, next, f.holder.Load())
}

func TestNewRequiresTransport(t *testing.T) {
	_, err := New(Options{Holder: config.NewHolder(testConfig(t, nil)), Logger: logger.NewTestLogger()})
	require.ErrorIs(t, err, errMissingTransport)
}
