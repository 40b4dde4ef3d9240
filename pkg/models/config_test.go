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

package models

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func validConfig() *Config {
	return &Config{
		Identifier:    "srv1",
		ChannelTarget: "-100123",
		Telegram:      TelegramConfig{Token: "123:abc"},
		Services:      []string{"nginx"},
	}
}

func TestConfigValidateDefaults(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 60*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 10*time.Second, time.Duration(cfg.ProbeTimeout))
	assert.Equal(t, 60*time.Second, time.Duration(cfg.CommandTimeout))
	assert.Equal(t, Thresholds{Disk: 90, CPU: 90, Mem: 92}, cfg.Thresholds)
	assert.Equal(t, "https://api.telegram.org", cfg.Telegram.APIURL)
	assert.Equal(t, RemovalIgnore, cfg.RemovalPolicy)
	assert.Equal(t, ServiceBackendSystemctl, cfg.ServiceBackend)
	assert.Equal(t, "qm", cfg.HypervisorCLI)
	assert.True(t, cfg.DiscoveryEnabled())
	assert.True(t, cfg.StartupMessageEnabled())
	assert.Equal(t, map[Kind]bool{KindVM: true}, cfg.NotifyFirstSeen)
	assert.Equal(t, 4, cfg.PollConcurrency)
}

func TestConfigValidateRequiredFields(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
		errMsg string
	}{
		{"missing identifier", func(c *Config) { c.Identifier = "  " }, "identifier is required"},
		{"identifier with space", func(c *Config) { c.Identifier = "srv 1" }, "whitespace"},
		{"missing channel", func(c *Config) { c.ChannelTarget = "" }, "channel_target is required"},
		{"missing token", func(c *Config) { c.Telegram.Token = "" }, "telegram.token is required"},
		{"threshold out of range", func(c *Config) { c.Thresholds.CPU = 150 }, "threshold cpu"},
		{"bad removal policy", func(c *Config) { c.RemovalPolicy = "purge" }, "removal_policy"},
		{"bad backend", func(c *Config) { c.ServiceBackend = "upstart" }, "service_backend"},
		{"negative retries", func(c *Config) { c.NotifyRetries = -1 }, "notify_retries"},
		{"ticket without url", func(c *Config) { c.Ticket = &TicketConfig{} }, "ticket.url"},
		{"nats without url", func(c *Config) { c.NATS = &NATSConfig{} }, "nats.url"},
		{"channel username", func(c *Config) { c.ChannelTarget = "@ops_channel" }, "numeric chat id"},
		{"poll interval too short", func(c *Config) { c.PollInterval = Duration(60) }, "poll_interval"},
		{"probe timeout too short", func(c *Config) { c.ProbeTimeout = Duration(time.Millisecond) }, "probe_timeout"},
		{"command timeout too short", func(c *Config) { c.CommandTimeout = Duration(time.Microsecond) }, "command_timeout"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := validConfig()
			tt.mutate(cfg)

			err := cfg.Validate()
			require.Error(t, err)
			require.ErrorIs(t, err, ErrInvalidConfig)
			assert.Contains(t, err.Error(), tt.errMsg)
		})
	}
}

func TestConfigValidateDedupesEntityLists(t *testing.T) {
	cfg := validConfig()
	cfg.Services = []string{"nginx", " nginx ", "", "sshd"}
	cfg.VMIDs = []string{"101", "101"}

	require.NoError(t, cfg.Validate())
	assert.Equal(t, []string{"nginx", "sshd"}, cfg.Services)
	assert.Equal(t, []string{"101"}, cfg.VMIDs)
}

func TestConfigUnmarshalJSON(t *testing.T) {
	raw := `{
		"identifier": "srv1",
		"channel_target": "42",
		"telegram": {"token": "t"},
		"services": ["nginx"],
		"vm_ids": ["101"],
		"remote_hosts": ["10.0.0.1"],
		"thresholds": {"disk": 80, "cpu": 95, "mem": 90},
		"poll_interval": "30s",
		"probe_timeout": 2,
		"command_timeout": 1.5,
		"discover_vms": false,
		"notify_first_seen": {"vm": true, "service": true},
		"removal_policy": "notify"
	}`

	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(raw), &cfg))
	require.NoError(t, cfg.Validate())

	assert.Equal(t, 30*time.Second, time.Duration(cfg.PollInterval))
	assert.Equal(t, 2*time.Second, time.Duration(cfg.ProbeTimeout))
	assert.Equal(t, 1500*time.Millisecond, time.Duration(cfg.CommandTimeout))
	assert.False(t, cfg.DiscoveryEnabled())
	assert.True(t, cfg.NotifyFirstSeen[KindService])
	assert.Equal(t, RemovalNotify, cfg.RemovalPolicy)
	assert.Equal(t, Thresholds{Disk: 80, CPU: 95, Mem: 90}, cfg.Thresholds)
}

func TestDurationBareNumbersAreSeconds(t *testing.T) {
	var cfg Config
	require.NoError(t, json.Unmarshal([]byte(`{"poll_interval": 60}`), &cfg))
	assert.Equal(t, time.Minute, time.Duration(cfg.PollInterval))

	d, err := ParseDuration("45")
	require.NoError(t, err)
	assert.Equal(t, 45*time.Second, d)

	d, err = ParseDuration("2m")
	require.NoError(t, err)
	assert.Equal(t, 2*time.Minute, d)
}

func TestPollIntervalBelowFloorIsRejected(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, json.Unmarshal([]byte(`{"poll_interval": 0.5}`), cfg))

	err := cfg.Validate()
	require.ErrorIs(t, err, ErrInvalidConfig)
	assert.Contains(t, err.Error(), "poll_interval must be at least 1s")
}

func TestDurationRejectsGarbage(t *testing.T) {
	var d Duration

	require.Error(t, json.Unmarshal([]byte(`"soon"`), &d))
	require.ErrorIs(t, json.Unmarshal([]byte(`true`), &d), errInvalidDuration)
}

func TestConfigCloneIsIndependent(t *testing.T) {
	cfg := validConfig()
	require.NoError(t, cfg.Validate())

	clone := cfg.Clone()
	clone.Services[0] = "apache2"
	clone.NotifyFirstSeen[KindService] = true
	*clone.DiscoverVMs = false

	assert.Equal(t, "nginx", cfg.Services[0])
	assert.False(t, cfg.NotifyFirstSeen[KindService])
	assert.True(t, cfg.DiscoveryEnabled())
}
