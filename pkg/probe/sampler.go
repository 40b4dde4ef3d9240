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
	"context"
	"fmt"
	"time"

	"github.com/shirou/gopsutil/v3/cpu"
	"github.com/shirou/gopsutil/v3/disk"
	"github.com/shirou/gopsutil/v3/mem"

	"github.com/carverauto/hostwatch/pkg/models"
)

// GopsutilSampler reads host resource usage through gopsutil.
type GopsutilSampler struct {
	diskPath  string
	cpuWindow time.Duration

	cpuCollector  func(context.Context, time.Duration, bool) ([]float64, error)
	memCollector  func(context.Context) (*mem.VirtualMemoryStat, error)
	diskCollector func(context.Context, string) (*disk.UsageStat, error)
}

func NewGopsutilSampler(diskPath string, cpuWindow time.Duration) *GopsutilSampler {
	if diskPath == "" {
		diskPath = "/"
	}

	if cpuWindow <= 0 {
		cpuWindow = time.Second
	}

	return &GopsutilSampler{
		diskPath:      diskPath,
		cpuWindow:     cpuWindow,
		cpuCollector:  cpu.PercentWithContext,
		memCollector:  mem.VirtualMemoryWithContext,
		diskCollector: disk.UsageWithContext,
	}
}

func (s *GopsutilSampler) Sample(ctx context.Context, resource string) (float64, error) {
	switch resource {
	case models.ResourceDisk:
		usage, err := s.diskCollector(ctx, s.diskPath)
		if err != nil {
			return 0, fmt.Errorf("%w: disk usage of %s: %w", ErrProbeFailed, s.diskPath, err)
		}

		return usage.UsedPercent, nil
	case models.ResourceCPU:
		percent, err := s.cpuCollector(ctx, s.cpuWindow, false)
		if err != nil {
			return 0, fmt.Errorf("%w: cpu percent: %w", ErrProbeFailed, err)
		}

		if len(percent) == 0 {
			return 0, fmt.Errorf("%w: %w: no cpu sample", ErrProbeFailed, errUnexpectedOutput)
		}

		return percent[0], nil
	case models.ResourceMemory:
		vm, err := s.memCollector(ctx)
		if err != nil {
			return 0, fmt.Errorf("%w: virtual memory: %w", ErrProbeFailed, err)
		}

		return vm.UsedPercent, nil
	}

	return 0, fmt.Errorf("%w: %q", ErrUnknownResource, resource)
}
