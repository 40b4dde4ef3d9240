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
	"fmt"
	"strconv"
	"time"
)

// EventType distinguishes the events the diff engine emits.
type EventType string

const (
	EventTransition EventType = "transition"
	EventDiscovery  EventType = "discovery"
	EventAlert      EventType = "alert"
	EventRemoved    EventType = "removed"
)

const (
	markerUp      = "🟢"
	markerDown    = "🔴"
	markerNew     = "🔵"
	markerRemoved = "⚪"
)

// Event is a notification-worthy change produced by reconciliation.
type Event struct {
	Type     EventType `json:"type"`
	Entity   Entity    `json:"entity"`
	Previous Status    `json:"previous"`
	Current  Status    `json:"current"`
	// Threshold is only set for EventAlert.
	Threshold float64   `json:"threshold,omitempty"`
	At        time.Time `json:"at"`
}

// Severity maps the event onto a log-style severity string.
func (e Event) Severity() string {
	switch e.Type {
	case EventAlert:
		return "error"
	case EventTransition:
		if e.Current.Healthy() {
			return "info"
		}

		return "error"
	case EventDiscovery:
		return "info"
	case EventRemoved:
		return "warning"
	}

	return "info"
}

// Message renders the event as chat text for the given server.
func (e Event) Message(serverID string) string {
	prefix := fmt.Sprintf("[Server %s]", serverID)

	switch e.Type {
	case EventTransition:
		marker := markerDown
		if e.Current.Healthy() {
			marker = markerUp
		}

		return fmt.Sprintf("%s %s %s changed to %s (was %s).",
			marker, prefix, e.Entity.Label(), e.Current, e.Previous)
	case EventDiscovery:
		return fmt.Sprintf("%s %s %s discovered: %s.", markerNew, prefix, e.Entity.Label(), e.Current)
	case EventAlert:
		return fmt.Sprintf("%s %s %s is at or above %s%%: %s.",
			markerDown, prefix, e.Entity.Label(), strconv.FormatFloat(e.Threshold, 'f', -1, 64), e.Current)
	case EventRemoved:
		return fmt.Sprintf("%s %s %s is no longer listed (was %s).",
			markerRemoved, prefix, e.Entity.Label(), e.Previous)
	}

	return fmt.Sprintf("%s %s %s: %s", markerNew, prefix, e.Entity.Label(), e.Current)
}
