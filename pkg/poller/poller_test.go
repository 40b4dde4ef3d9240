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

package poller

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
	"github.com/carverauto/hostwatch/pkg/probe"
)

var errSampler = errors.New("sampler broke")

func testConfig(t *testing.T, mutate func(*models.Config)) *models.Config {
	t.Helper()

	cfg := &models.Config{
		Identifier:    "srv1",
		ChannelTarget: "1",
		Telegram:      models.TelegramConfig{Token: "t"},
		Services:      []string{"nginx", "sshd"},
		VMIDs:         []string{"101"},
		RemoteHosts:   []string{"10.0.0.2"},
	}

	if mutate != nil {
		mutate(cfg)
	}

	require.NoError(t, cfg.Validate())

	// Below the configurable floor so hung backends time out quickly.
	cfg.ProbeTimeout = models.Duration(50 * time.Millisecond)

	return cfg
}

type mocks struct {
	services *probe.MockServiceManager
	hv       *probe.MockHypervisor
	pinger   *probe.MockPinger
	sampler  *probe.MockResourceSampler
}

func newMocks(ctrl *gomock.Controller) (*mocks, Backends) {
	m := &mocks{
		services: probe.NewMockServiceManager(ctrl),
		hv:       probe.NewMockHypervisor(ctrl),
		pinger:   probe.NewMockPinger(ctrl),
		sampler:  probe.NewMockResourceSampler(ctrl),
	}

	return m, Backends{Services: m.services, Hypervisor: m.hv, Pinger: m.pinger, Sampler: m.sampler}
}

func (m *mocks) expectResources(disk, cpu, mem float64) {
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceDisk).Return(disk, nil)
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceCPU).Return(cpu, nil)
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceMemory).Return(mem, nil)
}

func entities(obs []models.Observation) []string {
	out := make([]string, 0, len(obs))
	for _, o := range obs {
		out = append(out, o.Entity.String())
	}

	return out
}

func TestPollAllOrderAndDiscovery(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, backends := newMocks(ctrl)

	m.services.EXPECT().IsActive(gomock.Any(), "nginx").Return(models.StatusOf(models.StateActive), nil)
	m.services.EXPECT().IsActive(gomock.Any(), "sshd").Return(models.StatusOf(models.StateInactive), nil)
	m.hv.EXPECT().List(gomock.Any()).Return([]probe.VMInfo{
		{ID: "102", Name: "db", Status: models.StatusOf(models.StateStopped)},
		{ID: "101", Name: "web", Status: models.StatusOf(models.StateRunning)},
	}, nil)
	m.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.2").Return(models.StatusOf(models.StateReachable), nil)
	m.expectResources(50, 10, 20)

	cfg := testConfig(t, nil)
	p := New(config.NewHolder(cfg), backends, nil, nil, logger.NewTestLogger(), nil)

	round := p.PollAll(context.Background(), cfg)

	assert.Equal(t, []string{
		"service/nginx", "service/sshd",
		"vm/101", "vm/102",
		"host/10.0.0.2",
		"resource/disk", "resource/cpu", "resource/mem",
	}, entities(round.Observations))
	assert.True(t, round.VMsListed)
	assert.Equal(t, []string{"102", "101"}, round.ListedVMs)
	assert.Equal(t, models.StateRunning, round.Observations[2].Value.State)
	assert.Equal(t, models.StateStopped, round.Observations[3].Value.State)
	assert.InDelta(t, 50, round.Observations[5].Value.Percent, 0.001)
	assert.Zero(t, round.Failures())
}

func TestPollAllIsolatesFailuresAndTimeouts(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, backends := newMocks(ctrl)

	m.services.EXPECT().IsActive(gomock.Any(), "nginx").DoAndReturn(
		func(ctx context.Context, _ string) (models.Status, error) {
			<-ctx.Done()

			return models.UnknownStatus, ctx.Err()
		})
	m.services.EXPECT().IsActive(gomock.Any(), "sshd").Return(models.StatusOf(models.StateActive), nil)
	m.hv.EXPECT().Status(gomock.Any(), "101").Return(models.UnknownStatus, probe.ErrProbeFailed)
	m.pinger.EXPECT().Ping(gomock.Any(), "10.0.0.2").Return(models.StatusOf(models.StateUnreachable), nil)
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceDisk).Return(0.0, errSampler)
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceCPU).Return(12.0, nil)
	m.sampler.EXPECT().Sample(gomock.Any(), models.ResourceMemory).Return(30.0, nil)

	cfg := testConfig(t, func(c *models.Config) {
		disabled := false
		c.DiscoverVMs = &disabled
	})
	p := New(config.NewHolder(cfg), backends, nil, nil, logger.NewTestLogger(), nil)

	start := time.Now()
	round := p.PollAll(context.Background(), cfg)

	assert.Less(t, time.Since(start), time.Second)
	require.Len(t, round.Observations, 7)
	assert.False(t, round.Observations[0].Value.Known(), "timed out probe degrades to unknown")
	require.ErrorIs(t, round.Observations[0].Err, context.DeadlineExceeded)
	assert.Equal(t, models.StateActive, round.Observations[1].Value.State)
	assert.False(t, round.Observations[2].Value.Known())
	assert.Equal(t, models.StateUnreachable, round.Observations[3].Value.State)
	assert.False(t, round.Observations[4].Value.Known(), "resource sampling error is unknown")
	assert.Equal(t, 3, round.Failures())
	assert.False(t, round.VMsListed)
}

func TestPollAllFallsBackWhenListFails(t *testing.T) {
	ctrl := gomock.NewController(t)
	m, backends := newMocks(ctrl)

	m.services.EXPECT().IsActive(gomock.Any(), gomock.Any()).Return(models.StatusOf(models.StateActive), nil).Times(2)
	m.hv.EXPECT().List(gomock.Any()).Return(nil, probe.ErrProbeFailed)
	m.hv.EXPECT().Status(gomock.Any(), "101").Return(models.StatusOf(models.StateRunning), nil)
	m.pinger.EXPECT().Ping(gomock.Any(), gomock.Any()).Return(models.StatusOf(models.StateReachable), nil)
	m.expectResources(1, 2, 3)

	cfg := testConfig(t, nil)
	p := New(config.NewHolder(cfg), backends, nil, nil, logger.NewTestLogger(), nil)

	round := p.PollAll(context.Background(), cfg)

	assert.False(t, round.VMsListed)
	assert.Nil(t, round.ListedVMs)
	assert.Equal(t, models.StateRunning, round.Observations[2].Value.State)
}

func TestPollAllMissingBackend(t *testing.T) {
	cfg := testConfig(t, func(c *models.Config) {
		c.VMIDs = nil
		c.RemoteHosts = nil
		c.Services = []string{"nginx"}
	})
	p := New(config.NewHolder(cfg), Backends{}, nil, nil, logger.NewTestLogger(), nil)

	round := p.PollAll(context.Background(), cfg)

	require.Len(t, round.Observations, 4)

	for _, obs := range round.Observations {
		require.ErrorIs(t, obs.Err, errBackendUnavailable)
	}
}

func TestStartLoopTicksAndReloads(t *testing.T) {
	ctrl := gomock.NewController(t)
	clock := NewMockClock(ctrl)
	ticker := NewMockTicker(ctrl)
	reloaded := NewMockTicker(ctrl)

	tickCh := make(chan time.Time, 1)

	var recv <-chan time.Time = tickCh

	clock.EXPECT().Now().Return(time.Unix(1700000000, 0)).AnyTimes()
	clock.EXPECT().Ticker(time.Minute).Return(ticker)
	clock.EXPECT().Ticker(5 * time.Second).Return(reloaded)
	ticker.EXPECT().Chan().Return(recv).AnyTimes()
	ticker.EXPECT().Stop().AnyTimes()
	reloaded.EXPECT().Chan().Return(make(<-chan time.Time)).AnyTimes()
	reloaded.EXPECT().Stop().AnyTimes()

	cfg := testConfig(t, func(c *models.Config) {
		c.Services = nil
		c.VMIDs = nil
		c.RemoteHosts = nil
	})

	rounds := make(chan *Round, 4)
	handler := func(_ context.Context, got *models.Config, r *Round) {
		assert.Same(t, cfg, got)
		rounds <- r
	}

	p := New(config.NewHolder(cfg), Backends{}, handler, clock, logger.NewTestLogger(), nil)

	errCh := make(chan error, 1)

	go func() { errCh <- p.Start(context.Background()) }()

	waitRound(t, rounds)

	tickCh <- time.Now()

	waitRound(t, rounds)

	p.Reload(5 * time.Second)
	require.Eventually(t, ctrl.Satisfied, time.Second, 5*time.Millisecond)

	require.NoError(t, p.Stop(context.Background()))
	require.NoError(t, <-errCh)
}

func waitRound(t *testing.T, rounds <-chan *Round) {
	t.Helper()

	select {
	case r := <-rounds:
		assert.Len(t, r.Observations, 3)
	case <-time.After(time.Second):
		t.Fatal("timed out waiting for poll round")
	}
}
