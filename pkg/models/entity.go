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

// Package models holds the types shared by the hostwatch components.
package models

import (
	"fmt"
	"strconv"
	"time"
)

// Kind identifies what sort of object an Entity is.
type Kind string

const (
	KindService    Kind = "service"
	KindVM         Kind = "vm"
	KindRemoteHost Kind = "host"
	KindResource   Kind = "resource"
)

// Resource identifiers used as Entity.ID for KindResource.
const (
	ResourceDisk   = "disk"
	ResourceCPU    = "cpu"
	ResourceMemory = "mem"
)

// EdgeTriggered reports whether changes of this kind are only reported on change.
func (k Kind) EdgeTriggered() bool {
	return k != KindResource
}

// Entity is a monitored object. Identity is the (Kind, ID) pair.
type Entity struct {
	Kind Kind   `json:"kind"`
	ID   string `json:"id"`
}

func (e Entity) String() string {
	return string(e.Kind) + "/" + e.ID
}

// Label renders the entity the way operators read it in chat.
func (e Entity) Label() string {
	switch e.Kind {
	case KindService:
		return "Service " + e.ID
	case KindVM:
		return "VM " + e.ID
	case KindRemoteHost:
		return "Host " + e.ID
	case KindResource:
		switch e.ID {
		case ResourceDisk:
			return "Disk usage"
		case ResourceCPU:
			return "CPU load"
		case ResourceMemory:
			return "Memory usage"
		}
	}

	return e.String()
}

func Service(name string) Entity    { return Entity{Kind: KindService, ID: name} }
func VM(id string) Entity           { return Entity{Kind: KindVM, ID: id} }
func RemoteHost(addr string) Entity { return Entity{Kind: KindRemoteHost, ID: addr} }
func Resource(id string) Entity     { return Entity{Kind: KindResource, ID: id} }

// State is the discrete part of a Status.
type State string

const (
	StateUnknown     State = "unknown"
	StateActive      State = "active"
	StateInactive    State = "inactive"
	StateRunning     State = "running"
	StateStopped     State = "stopped"
	StateReachable   State = "reachable"
	StateUnreachable State = "unreachable"
	// StateSampled marks a resource status carrying a valid Percent.
	StateSampled State = "sampled"
)

// Status is the kind-specific value of an observation. Resource statuses
// carry a percentage in Percent with State set to StateSampled.
type Status struct {
	State   State   `json:"state"`
	Percent float64 `json:"percent,omitempty"`
}

// UnknownStatus is reported when a probe fails.
var UnknownStatus = Status{State: StateUnknown}

func StatusOf(state State) Status {
	return Status{State: state}
}

func PercentStatus(percent float64) Status {
	return Status{State: StateSampled, Percent: percent}
}

// Known is false for unknown or zero statuses.
func (s Status) Known() bool {
	return s.State != "" && s.State != StateUnknown
}

// Healthy reports whether the status is the "good" value for its kind.
func (s Status) Healthy() bool {
	switch s.State {
	case StateActive, StateRunning, StateReachable:
		return true
	case StateUnknown, StateInactive, StateStopped, StateUnreachable, StateSampled:
		return false
	}

	return false
}

func (s Status) String() string {
	if s.State == StateSampled {
		return strconv.FormatFloat(s.Percent, 'f', 2, 64) + "%"
	}

	if s.State == "" {
		return string(StateUnknown)
	}

	return string(s.State)
}

// Observation is a single probe result.
type Observation struct {
	Entity     Entity    `json:"entity"`
	Value      Status    `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
	// Err is set when the probe failed and Value was degraded to unknown.
	Err error `json:"-"`
}

func (o Observation) String() string {
	return fmt.Sprintf("%s=%s", o.Entity, o.Value)
}
