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

//go:generate mockgen -destination=mock_probe.go -package=probe github.com/carverauto/hostwatch/pkg/probe ServiceManager,Hypervisor,Pinger,ResourceSampler,CommandRunner

// Package probe holds the backends that query and control host entities.
package probe

import (
	"context"

	"github.com/carverauto/hostwatch/pkg/models"
)

// ServiceManager queries and controls init-system services.
type ServiceManager interface {
	IsActive(ctx context.Context, name string) (models.Status, error)
	Start(ctx context.Context, name string) (string, error)
	Stop(ctx context.Context, name string) (string, error)
}

// VMInfo is one row of the hypervisor VM list.
type VMInfo struct {
	ID     string
	Name   string
	Status models.Status
}

// Hypervisor queries and controls virtual machines.
type Hypervisor interface {
	Status(ctx context.Context, id string) (models.Status, error)
	List(ctx context.Context) ([]VMInfo, error)
	Start(ctx context.Context, id string) (string, error)
	Stop(ctx context.Context, id string) (string, error)
}

// Pinger checks reachability of a remote host.
type Pinger interface {
	Ping(ctx context.Context, host string) (models.Status, error)
}

// ResourceSampler returns a used-percentage for disk, cpu or mem.
type ResourceSampler interface {
	Sample(ctx context.Context, resource string) (float64, error)
}

// CommandRunner executes an external command and returns its combined output.
type CommandRunner interface {
	Run(ctx context.Context, name string, args ...string) ([]byte, error)
}
