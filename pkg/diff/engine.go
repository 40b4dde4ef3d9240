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

// Package diff turns poll observations into notification-worthy events.
package diff

import (
	"time"

	"github.com/carverauto/hostwatch/pkg/models"
	"github.com/carverauto/hostwatch/pkg/state"
)

// Policy controls the two configurable reconciliation rules.
type Policy struct {
	// NotifyFirstSeen reports per kind whether a first observation emits a
	// discovery event.
	NotifyFirstSeen map[models.Kind]bool
	Removal         models.RemovalPolicy
}

// PolicyFromConfig extracts the reconciliation policy from a configuration.
func PolicyFromConfig(cfg *models.Config) Policy {
	return Policy{NotifyFirstSeen: cfg.NotifyFirstSeen, Removal: cfg.RemovalPolicy}
}

// Engine reconciles observations against a state store.
type Engine struct {
	now func() time.Time
}

func NewEngine() *Engine {
	return &Engine{now: time.Now}
}

// Reconcile compares each observation with the stored status, updates the
// store and returns the resulting events in observation order.
//
// Resources are level-triggered: an alert fires on every poll where the known
// value is at or above its threshold. Other kinds are edge-triggered: the
// first known value is recorded (and announced if the policy says so) and
// later values only produce an event when they differ from the stored one.
func (e *Engine) Reconcile(observations []models.Observation, store *state.Store,
	thresholds models.Thresholds, policy Policy) []models.Event {
	var events []models.Event

	for _, obs := range observations {
		at := obs.ObservedAt
		if at.IsZero() {
			at = e.now()
		}

		if obs.Entity.Kind == models.KindResource {
			if ev, ok := e.reconcileResource(obs, store, thresholds, at); ok {
				events = append(events, ev)
			}

			continue
		}

		previous, seen := store.Get(obs.Entity)

		if !seen {
			if !obs.Value.Known() {
				continue
			}

			store.Set(obs.Entity, obs.Value)

			if policy.NotifyFirstSeen[obs.Entity.Kind] {
				events = append(events, models.Event{
					Type:    models.EventDiscovery,
					Entity:  obs.Entity,
					Current: obs.Value,
					At:      at,
				})
			}

			continue
		}

		if obs.Value != previous {
			store.Set(obs.Entity, obs.Value)
			events = append(events, models.Event{
				Type:     models.EventTransition,
				Entity:   obs.Entity,
				Previous: previous,
				Current:  obs.Value,
				At:       at,
			})
		}
	}

	return events
}

func (e *Engine) reconcileResource(obs models.Observation, store *state.Store,
	thresholds models.Thresholds, at time.Time) (models.Event, bool) {
	if !obs.Value.Known() {
		return models.Event{}, false
	}

	previous, _ := store.Get(obs.Entity)
	store.Set(obs.Entity, obs.Value)

	threshold, ok := thresholds.For(obs.Entity.ID)
	if !ok || obs.Value.Percent < threshold {
		return models.Event{}, false
	}

	return models.Event{
		Type:      models.EventAlert,
		Entity:    obs.Entity,
		Previous:  previous,
		Current:   obs.Value,
		Threshold: threshold,
		At:        at,
	}, true
}

// ReconcileRemovals handles VMs that are stored but no longer listed by the
// hypervisor. Configured VM ids are never treated as removed. Under
// RemovalIgnore the stale records are left untouched.
func (e *Engine) ReconcileRemovals(listed, configured []string, store *state.Store, policy Policy) []models.Event {
	if policy.Removal != models.RemovalNotify {
		return nil
	}

	present := make(map[string]struct{}, len(listed)+len(configured))
	for _, id := range listed {
		present[id] = struct{}{}
	}

	for _, id := range configured {
		present[id] = struct{}{}
	}

	var events []models.Event

	for _, entity := range store.Entities(models.KindVM) {
		if _, ok := present[entity.ID]; ok {
			continue
		}

		previous, _ := store.Get(entity)
		store.Delete(entity)

		events = append(events, models.Event{
			Type:     models.EventRemoved,
			Entity:   entity,
			Previous: previous,
			At:       e.now(),
		})
	}

	return events
}
