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

package state

import (
	"fmt"
	"sync"
	"testing"

	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStoreGetSetDelete(t *testing.T) {
	s := NewStore()

	_, ok := s.Get(models.Service("nginx"))
	assert.False(t, ok)

	s.Set(models.Service("nginx"), models.StatusOf(models.StateActive))
	s.Set(models.Service("nginx"), models.StatusOf(models.StateInactive))

	got, ok := s.Get(models.Service("nginx"))
	require.True(t, ok)
	assert.Equal(t, models.StateInactive, got.State)
	assert.Equal(t, 1, s.Len())

	s.Delete(models.Service("nginx"))
	assert.Equal(t, 0, s.Len())
}

func TestStoreEntitiesAndSnapshot(t *testing.T) {
	s := NewStore()
	s.Set(models.VM("102"), models.StatusOf(models.StateStopped))
	s.Set(models.VM("101"), models.StatusOf(models.StateRunning))
	s.Set(models.Service("sshd"), models.StatusOf(models.StateActive))

	assert.Equal(t, []models.Entity{models.VM("101"), models.VM("102")}, s.Entities(models.KindVM))

	snap := s.Snapshot()
	snap[models.VM("101")] = models.UnknownStatus

	got, _ := s.Get(models.VM("101"))
	assert.Equal(t, models.StateRunning, got.State, "snapshot must be a copy")
}

func TestStoreConcurrentAccess(t *testing.T) {
	s := NewStore()

	var wg sync.WaitGroup

	for i := range 8 {
		wg.Add(1)

		go func(i int) {
			defer wg.Done()

			entity := models.VM(fmt.Sprint(100 + i))
			for j := 0; j < 100; j++ {
				s.Set(entity, models.StatusOf(models.StateRunning))
				_, _ = s.Get(entity)
				_ = s.Snapshot()
			}
		}(i)
	}

	wg.Wait()
	assert.Equal(t, 8, s.Len())
}
