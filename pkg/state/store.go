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

// Package state keeps the last observed status of every monitored entity.
package state

import (
	"slices"
	"strings"
	"sync"

	"github.com/carverauto/hostwatch/pkg/models"
)

// Store holds at most one current Status per entity. It is shared by the
// poll loop and the command listener.
type Store struct {
	mu      sync.RWMutex
	current map[models.Entity]models.Status
}

func NewStore() *Store {
	return &Store{current: make(map[models.Entity]models.Status)}
}

func (s *Store) Get(entity models.Entity) (models.Status, bool) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	status, ok := s.current[entity]

	return status, ok
}

func (s *Store) Set(entity models.Entity, status models.Status) {
	s.mu.Lock()
	s.current[entity] = status
	s.mu.Unlock()
}

func (s *Store) Delete(entity models.Entity) {
	s.mu.Lock()
	delete(s.current, entity)
	s.mu.Unlock()
}

func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	return len(s.current)
}

// Snapshot returns a copy of every stored status.
func (s *Store) Snapshot() map[models.Entity]models.Status {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make(map[models.Entity]models.Status, len(s.current))
	for entity, status := range s.current {
		out[entity] = status
	}

	return out
}

// Entities returns the stored entities of one kind, sorted by id.
func (s *Store) Entities(kind models.Kind) []models.Entity {
	s.mu.RLock()

	out := make([]models.Entity, 0)

	for entity := range s.current {
		if entity.Kind == kind {
			out = append(out, entity)
		}
	}

	s.mu.RUnlock()

	slices.SortFunc(out, func(a, b models.Entity) int {
		return strings.Compare(a.ID, b.ID)
	})

	return out
}
