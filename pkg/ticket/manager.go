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

package ticket

import (
	"context"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
)

// State is a dialogue step.
type State int

const (
	AwaitingSubject State = iota
	AwaitingBody
	Done
)

func (s State) String() string {
	switch s {
	case AwaitingSubject:
		return "awaiting_subject"
	case AwaitingBody:
		return "awaiting_body"
	case Done:
		return "done"
	}

	return "unknown"
}

const (
	defaultSessionTTL = 10 * time.Minute
	cancelCommand     = "/cancel"

	promptSubject = "Enter the ticket subject (or /cancel):"
	promptBody    = "Enter the ticket body (or /cancel):"
	replyCanceled = "Ticket canceled."
)

// SessionKey identifies one caller in one chat.
type SessionKey struct {
	ChatID string
	UserID string
}

type session struct {
	state   State
	subject string
	from    string
	touched time.Time
}

// Manager tracks open ticket dialogues. It is safe for concurrent use.
type Manager struct {
	sink   Sink
	ttl    time.Duration
	now    func() time.Time
	logger logger.Logger

	// isCommand reports slash-text that belongs to the router. Without it
	// every message other than /cancel is dialogue input.
	isCommand func(text string) bool

	mu       sync.Mutex
	sessions map[SessionKey]*session
}

func NewManager(sink Sink, ttl time.Duration, log logger.Logger) *Manager {
	if ttl <= 0 {
		ttl = defaultSessionTTL
	}

	return &Manager{
		sink:     sink,
		ttl:      ttl,
		now:      time.Now,
		logger:   log,
		sessions: make(map[SessionKey]*session),
	}
}

// PassThrough sets the predicate selecting messages that bypass an open
// dialogue. Slash-text it rejects is kept as subject or body input.
func (m *Manager) PassThrough(isCommand func(text string) bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.isCommand = isCommand
}

// Begin opens (or restarts) a dialogue for key and returns the first prompt.
func (m *Manager) Begin(key SessionKey, from string) string {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.sessions[key] = &session{state: AwaitingSubject, from: from, touched: m.now()}

	return promptSubject
}

// State reports the dialogue step for key; ok is false when none is open.
func (m *Manager) State(key SessionKey) (State, bool) {
	m.mu.Lock()
	defer m.mu.Unlock()

	s := m.live(key)
	if s == nil {
		return Done, false
	}

	return s.state, true
}

// Handle feeds one message into the dialogue for key. handled is false when
// no dialogue is open or the text is a command meant for the router.
func (m *Manager) Handle(ctx context.Context, key SessionKey, text string) (reply string, handled bool) {
	text = strings.TrimSpace(text)

	m.mu.Lock()

	s := m.live(key)
	if s == nil {
		m.mu.Unlock()
		return "", false
	}

	if strings.EqualFold(text, cancelCommand) {
		delete(m.sessions, key)
		m.mu.Unlock()

		return replyCanceled, true
	}

	if strings.HasPrefix(text, "/") && m.isCommand != nil && m.isCommand(text) {
		m.mu.Unlock()
		return "", false
	}

	s.touched = m.now()

	switch s.state {
	case AwaitingSubject:
		if text == "" {
			m.mu.Unlock()
			return promptSubject, true
		}

		s.subject = text
		s.state = AwaitingBody
		m.mu.Unlock()

		return promptBody, true
	case AwaitingBody:
		if text == "" {
			m.mu.Unlock()
			return promptBody, true
		}

		s.state = Done
		t := Ticket{Subject: s.subject, Body: text, From: s.from}
		delete(m.sessions, key)
		m.mu.Unlock()

		return m.file(ctx, t), true
	case Done:
	}

	delete(m.sessions, key)
	m.mu.Unlock()

	return "", false
}

func (m *Manager) file(ctx context.Context, t Ticket) string {
	number, err := m.sink.Create(ctx, t)
	if err != nil {
		m.logger.Error().Err(err).Str("subject", t.Subject).Msg("Failed to create ticket")
		return "Failed to create ticket: " + err.Error()
	}

	m.logger.Info().Str("ticket", number).Str("from", t.From).Msg("Ticket created")

	return "Ticket created. Ticket number: " + number
}

// live returns the open session for key, dropping it when expired.
// Callers hold m.mu.
func (m *Manager) live(key SessionKey) *session {
	s, ok := m.sessions[key]
	if !ok {
		return nil
	}

	if m.now().Sub(s.touched) > m.ttl {
		delete(m.sessions, key)
		return nil
	}

	return s
}
