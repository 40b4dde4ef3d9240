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
	"fmt"
	"maps"
	"math"
	"slices"
	"strconv"
	"strings"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
)

const (
	defaultPollInterval    = 60 * time.Second
	defaultProbeTimeout    = 10 * time.Second
	defaultCommandTimeout  = 60 * time.Second
	defaultCPUSampleWindow = time.Second
	defaultPollConcurrency = 4
	defaultDiskPath        = "/"
	defaultTelegramAPIURL  = "https://api.telegram.org"
	defaultTelegramWait    = 30 * time.Second
	defaultServiceBackend  = ServiceBackendSystemctl
	defaultHypervisorCLI   = "qm"
	defaultNATSStream      = "hostwatch-events"
	defaultNATSSubject     = "hostwatch.events"
	defaultTicketQueue     = "Raw"
	defaultTicketState     = "new"
	defaultTicketPriority  = "3 normal"

	defaultDiskThreshold = 90
	defaultCPUThreshold  = 90
	defaultMemThreshold  = 92

	maxThreshold = 100

	minPollInterval = time.Second
	minTimeout      = 100 * time.Millisecond
)

const (
	ServiceBackendDBus      = "dbus"
	ServiceBackendSystemctl = "systemctl"
)

// RemovalPolicy decides what happens to VMs that disappear from the hypervisor list.
type RemovalPolicy string

const (
	RemovalIgnore RemovalPolicy = "ignore"
	RemovalNotify RemovalPolicy = "notify"
)

// Duration is a time.Duration that unmarshals from "60s" strings or from
// bare numbers of seconds.
type Duration time.Duration

func (d *Duration) UnmarshalJSON(b []byte) error {
	var v interface{}
	if err := json.Unmarshal(b, &v); err != nil {
		return err
	}

	switch value := v.(type) {
	case float64:
		*d = Duration(seconds(value))

		return nil
	case string:
		dur, err := ParseDuration(value)
		if err != nil {
			return err
		}

		*d = Duration(dur)

		return nil
	default:
		return errInvalidDuration
	}
}

// ParseDuration reads "90s" style durations and bare numbers of seconds.
func ParseDuration(value string) (time.Duration, error) {
	value = strings.TrimSpace(value)

	if n, err := strconv.ParseFloat(value, 64); err == nil && !math.IsInf(n, 0) && !math.IsNaN(n) {
		return seconds(n), nil
	}

	dur, err := time.ParseDuration(value)
	if err != nil {
		return 0, fmt.Errorf("%w: %w", errInvalidDuration, err)
	}

	return dur, nil
}

func seconds(n float64) time.Duration {
	return time.Duration(n * float64(time.Second))
}

func (d Duration) MarshalJSON() ([]byte, error) {
	return json.Marshal(time.Duration(d).String())
}

// Thresholds are used-percentages at or above which a resource alert fires.
type Thresholds struct {
	Disk float64 `json:"disk"`
	CPU  float64 `json:"cpu"`
	Mem  float64 `json:"mem"`
}

// For returns the threshold configured for a resource id.
func (t Thresholds) For(resource string) (float64, bool) {
	switch resource {
	case ResourceDisk:
		return t.Disk, true
	case ResourceCPU:
		return t.CPU, true
	case ResourceMemory:
		return t.Mem, true
	}

	return 0, false
}

// TelegramConfig holds the Bot API credentials.
type TelegramConfig struct {
	Token       string   `json:"token"`
	APIURL      string   `json:"api_url,omitempty"`
	PollTimeout Duration `json:"poll_timeout,omitempty"`
}

// NATSConfig enables publishing events to a JetStream stream.
type NATSConfig struct {
	URL     string `json:"url"`
	Stream  string `json:"stream,omitempty"`
	Subject string `json:"subject,omitempty"`
	// CredsFile is a NATS user credentials (JWT + nkey seed) file.
	CredsFile string         `json:"creds_file,omitempty"`
	TLS       *NATSTLSConfig `json:"tls,omitempty"`
}

// NATSTLSConfig enables mutual TLS to the NATS server.
type NATSTLSConfig struct {
	CAFile     string `json:"ca_file"`
	CertFile   string `json:"cert_file"`
	KeyFile    string `json:"key_file"`
	ServerName string `json:"server_name,omitempty"`
}

// TicketConfig points the ticket dialogue at an OTRS GenericTicketConnector REST endpoint.
type TicketConfig struct {
	URL          string `json:"url"`
	User         string `json:"user"`
	Password     string `json:"password"`
	Queue        string `json:"queue,omitempty"`
	State        string `json:"state,omitempty"`
	Priority     string `json:"priority,omitempty"`
	CustomerUser string `json:"customer_user,omitempty"`
}

// Config is the hostwatch runtime configuration. A loaded Config is treated
// as immutable; reconfiguration replaces the whole value.
type Config struct {
	Identifier    string         `json:"identifier"`
	ChannelTarget string         `json:"channel_target"`
	Telegram      TelegramConfig `json:"telegram"`

	Services    []string   `json:"services"`
	VMIDs       []string   `json:"vm_ids"`
	RemoteHosts []string   `json:"remote_hosts"`
	Thresholds  Thresholds `json:"thresholds"`
	DiskPath    string     `json:"disk_path,omitempty"`

	PollInterval    Duration `json:"poll_interval"`
	ProbeTimeout    Duration `json:"probe_timeout,omitempty"`
	CommandTimeout  Duration `json:"command_timeout,omitempty"`
	CPUSampleWindow Duration `json:"cpu_sample_window,omitempty"`
	PollConcurrency int      `json:"poll_concurrency,omitempty"`

	DiscoverVMs     *bool         `json:"discover_vms,omitempty"`
	NotifyFirstSeen map[Kind]bool `json:"notify_first_seen,omitempty"`
	RemovalPolicy   RemovalPolicy `json:"removal_policy,omitempty"`

	ReplyUnauthorized bool  `json:"reply_unauthorized"`
	AllowRun          bool  `json:"allow_run"`
	NotifyRetries     int   `json:"notify_retries"`
	StartupMessage    *bool `json:"startup_message,omitempty"`

	ServiceBackend string `json:"service_backend,omitempty"`
	HypervisorCLI  string `json:"hypervisor_cli,omitempty"`
	PrivilegedICMP bool   `json:"privileged_icmp"`

	NATS    *NATSConfig    `json:"nats,omitempty"`
	Ticket  *TicketConfig  `json:"ticket,omitempty"`
	Logging *logger.Config `json:"logging,omitempty"`
}

// Validate applies defaults and rejects configurations that cannot run.
// It is called once at load time; callers never re-derive defaults.
func (c *Config) Validate() error {
	c.Identifier = strings.TrimSpace(c.Identifier)
	c.ChannelTarget = strings.TrimSpace(c.ChannelTarget)

	if c.Identifier == "" {
		return fmt.Errorf("%w: identifier is required", ErrInvalidConfig)
	}

	if strings.ContainsAny(c.Identifier, " \t\n") {
		return fmt.Errorf("%w: identifier must not contain whitespace", ErrInvalidConfig)
	}

	if c.ChannelTarget == "" {
		return fmt.Errorf("%w: channel_target is required", ErrInvalidConfig)
	}

	// Inbound updates carry the numeric chat id, never the @username.
	if _, err := strconv.ParseInt(c.ChannelTarget, 10, 64); err != nil {
		return fmt.Errorf("%w: channel_target must be a numeric chat id, got %q", ErrInvalidConfig, c.ChannelTarget)
	}

	if c.Telegram.Token == "" {
		return fmt.Errorf("%w: telegram.token is required", ErrInvalidConfig)
	}

	c.applyDefaults()

	if err := c.validateThresholds(); err != nil {
		return err
	}

	switch c.RemovalPolicy {
	case RemovalIgnore, RemovalNotify:
	default:
		return fmt.Errorf("%w: unknown removal_policy %q", ErrInvalidConfig, c.RemovalPolicy)
	}

	switch c.ServiceBackend {
	case ServiceBackendDBus, ServiceBackendSystemctl:
	default:
		return fmt.Errorf("%w: unknown service_backend %q", ErrInvalidConfig, c.ServiceBackend)
	}

	if err := c.validateDurations(); err != nil {
		return err
	}

	if c.NotifyRetries < 0 {
		return fmt.Errorf("%w: notify_retries must be non-negative", ErrInvalidConfig)
	}

	if c.Ticket != nil && c.Ticket.URL == "" {
		return fmt.Errorf("%w: ticket.url is required when ticket is set", ErrInvalidConfig)
	}

	if c.NATS != nil && c.NATS.URL == "" {
		return fmt.Errorf("%w: nats.url is required when nats is set", ErrInvalidConfig)
	}

	return nil
}

func (c *Config) applyDefaults() {
	c.Services = dedupe(c.Services)
	c.VMIDs = dedupe(c.VMIDs)
	c.RemoteHosts = dedupe(c.RemoteHosts)

	if c.Thresholds.Disk == 0 {
		c.Thresholds.Disk = defaultDiskThreshold
	}

	if c.Thresholds.CPU == 0 {
		c.Thresholds.CPU = defaultCPUThreshold
	}

	if c.Thresholds.Mem == 0 {
		c.Thresholds.Mem = defaultMemThreshold
	}

	setDuration(&c.PollInterval, defaultPollInterval)
	setDuration(&c.ProbeTimeout, defaultProbeTimeout)
	setDuration(&c.CommandTimeout, defaultCommandTimeout)
	setDuration(&c.CPUSampleWindow, defaultCPUSampleWindow)
	setDuration(&c.Telegram.PollTimeout, defaultTelegramWait)

	if c.PollConcurrency <= 0 {
		c.PollConcurrency = defaultPollConcurrency
	}

	if c.DiskPath == "" {
		c.DiskPath = defaultDiskPath
	}

	if c.Telegram.APIURL == "" {
		c.Telegram.APIURL = defaultTelegramAPIURL
	}

	c.Telegram.APIURL = strings.TrimRight(c.Telegram.APIURL, "/")

	if c.DiscoverVMs == nil {
		enabled := true
		c.DiscoverVMs = &enabled
	}

	if c.StartupMessage == nil {
		enabled := true
		c.StartupMessage = &enabled
	}

	if c.NotifyFirstSeen == nil {
		c.NotifyFirstSeen = map[Kind]bool{KindVM: true}
	}

	if c.RemovalPolicy == "" {
		c.RemovalPolicy = RemovalIgnore
	}

	c.ServiceBackend = strings.ToLower(c.ServiceBackend)
	if c.ServiceBackend == "" {
		c.ServiceBackend = defaultServiceBackend
	}

	if c.HypervisorCLI == "" {
		c.HypervisorCLI = defaultHypervisorCLI
	}

	if c.NATS != nil {
		if c.NATS.Stream == "" {
			c.NATS.Stream = defaultNATSStream
		}

		if c.NATS.Subject == "" {
			c.NATS.Subject = defaultNATSSubject
		}
	}

	if c.Ticket != nil {
		if c.Ticket.Queue == "" {
			c.Ticket.Queue = defaultTicketQueue
		}

		if c.Ticket.State == "" {
			c.Ticket.State = defaultTicketState
		}

		if c.Ticket.Priority == "" {
			c.Ticket.Priority = defaultTicketPriority
		}
	}
}

func (c *Config) validateDurations() error {
	for _, d := range []struct {
		name  string
		value Duration
		min   time.Duration
	}{
		{"poll_interval", c.PollInterval, minPollInterval},
		{"probe_timeout", c.ProbeTimeout, minTimeout},
		{"command_timeout", c.CommandTimeout, minTimeout},
		{"cpu_sample_window", c.CPUSampleWindow, minTimeout},
		{"telegram.poll_timeout", c.Telegram.PollTimeout, time.Second},
	} {
		if time.Duration(d.value) < d.min {
			return fmt.Errorf("%w: %s must be at least %s, got %s",
				ErrInvalidConfig, d.name, d.min, time.Duration(d.value))
		}
	}

	return nil
}

func (c *Config) validateThresholds() error {
	for name, value := range map[string]float64{
		ResourceDisk:   c.Thresholds.Disk,
		ResourceCPU:    c.Thresholds.CPU,
		ResourceMemory: c.Thresholds.Mem,
	} {
		if value < 0 || value > maxThreshold {
			return fmt.Errorf("%w: threshold %s=%v must be within 0-100", ErrInvalidConfig, name, value)
		}
	}

	return nil
}

// DiscoveryEnabled reports whether VMs are discovered from the hypervisor list.
func (c *Config) DiscoveryEnabled() bool {
	return c.DiscoverVMs == nil || *c.DiscoverVMs
}

// StartupMessageEnabled reports whether a message is sent when monitoring starts.
func (c *Config) StartupMessageEnabled() bool {
	return c.StartupMessage == nil || *c.StartupMessage
}

// Clone returns a deep copy so a replacement can be built without touching the live value.
func (c *Config) Clone() *Config {
	out := *c
	out.Services = slices.Clone(c.Services)
	out.VMIDs = slices.Clone(c.VMIDs)
	out.RemoteHosts = slices.Clone(c.RemoteHosts)
	out.NotifyFirstSeen = maps.Clone(c.NotifyFirstSeen)

	if c.DiscoverVMs != nil {
		v := *c.DiscoverVMs
		out.DiscoverVMs = &v
	}

	if c.StartupMessage != nil {
		v := *c.StartupMessage
		out.StartupMessage = &v
	}

	if c.NATS != nil {
		v := *c.NATS
		if v.TLS != nil {
			t := *v.TLS
			v.TLS = &t
		}

		out.NATS = &v
	}

	if c.Ticket != nil {
		v := *c.Ticket
		out.Ticket = &v
	}

	if c.Logging != nil {
		v := *c.Logging
		out.Logging = &v
	}

	return &out
}

func setDuration(d *Duration, def time.Duration) {
	if time.Duration(*d) <= 0 {
		*d = Duration(def)
	}
}

func dedupe(values []string) []string {
	if len(values) == 0 {
		return values
	}

	seen := make(map[string]struct{}, len(values))
	out := make([]string, 0, len(values))

	for _, v := range values {
		v = strings.TrimSpace(v)
		if v == "" {
			continue
		}

		if _, ok := seen[v]; ok {
			continue
		}

		seen[v] = struct{}{}
		out = append(out, v)
	}

	return out
}
