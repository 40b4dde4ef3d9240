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

package config

import (
	"sync/atomic"

	"github.com/carverauto/hostwatch/pkg/models"
)

// Holder publishes the live configuration. Readers take a snapshot with Load
// and never mutate it; reconfiguration stores a whole new value.
type Holder struct {
	current atomic.Pointer[models.Config]
}

func NewHolder(cfg *models.Config) *Holder {
	h := &Holder{}
	h.current.Store(cfg)

	return h
}

func (h *Holder) Load() *models.Config {
	return h.current.Load()
}

func (h *Holder) Store(cfg *models.Config) {
	h.current.Store(cfg)
}

// Swap replaces the live value and returns the previous one.
func (h *Holder) Swap(cfg *models.Config) *models.Config {
	return h.current.Swap(cfg)
}
