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

// Package events publishes monitoring events to NATS JetStream as CloudEvents.
package events

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const (
	cloudEventsVersion = "1.0"
	eventSource        = "hostwatch"
	eventTypePrefix    = "com.carverauto.hostwatch."
	contentTypeJSON    = "application/json"
)

var (
	// ErrPublish wraps any failure to hand an event to JetStream.
	ErrPublish = errors.New("event publish failed")

	errNoSubject = errors.New("subject is required")
)

// CloudEvent is the envelope written to the stream.
type CloudEvent struct {
	SpecVersion     string     `json:"specversion"`
	ID              string     `json:"id"`
	Source          string     `json:"source"`
	Type            string     `json:"type"`
	DataContentType string     `json:"datacontenttype"`
	Subject         string     `json:"subject,omitempty"`
	Time            *time.Time `json:"time,omitempty"`
	Data            EventData  `json:"data"`
}

// EventData is the hostwatch payload inside a CloudEvent.
type EventData struct {
	ServerID  string           `json:"server_id"`
	EventType models.EventType `json:"event_type"`
	Kind      models.Kind      `json:"kind"`
	EntityID  string           `json:"entity_id"`
	Previous  string           `json:"previous,omitempty"`
	Current   string           `json:"current,omitempty"`
	Threshold float64          `json:"threshold,omitempty"`
	Severity  string           `json:"severity"`
	Message   string           `json:"message"`
	Timestamp time.Time        `json:"timestamp"`
}

// Sink receives every event emitted by a poll round.
type Sink interface {
	Publish(ctx context.Context, serverID string, evs []models.Event) error
}

// streamPublisher is the part of jetstream.JetStream the publisher uses.
type streamPublisher interface {
	Publish(ctx context.Context, subject string, payload []byte, opts ...jetstream.PublishOpt) (*jetstream.PubAck, error)
}

// Publisher writes events to <subject>.<server>.<kind>.
type Publisher struct {
	js      streamPublisher
	subject string
	logger  logger.Logger
	newID   func() string
}

// NewPublisher creates a Publisher over an existing JetStream context.
func NewPublisher(js streamPublisher, subject string, log logger.Logger) *Publisher {
	return &Publisher{
		js:      js,
		subject: subject,
		logger:  log,
		newID:   func() string { return uuid.New().String() },
	}
}

// Build renders an event as a CloudEvent for serverID.
func (p *Publisher) Build(serverID string, ev models.Event) CloudEvent {
	at := ev.At
	if at.IsZero() {
		at = time.Now()
	}

	data := EventData{
		ServerID:  serverID,
		EventType: ev.Type,
		Kind:      ev.Entity.Kind,
		EntityID:  ev.Entity.ID,
		Threshold: ev.Threshold,
		Severity:  ev.Severity(),
		Message:   ev.Message(serverID),
		Timestamp: at,
	}

	if ev.Previous.Known() {
		data.Previous = ev.Previous.String()
	}

	if ev.Current.Known() {
		data.Current = ev.Current.String()
	}

	return CloudEvent{
		SpecVersion:     cloudEventsVersion,
		ID:              p.newID(),
		Source:          eventSource + "/" + serverID,
		Type:            eventTypePrefix + string(ev.Entity.Kind) + "." + string(ev.Type),
		DataContentType: contentTypeJSON,
		Subject:         subjectFor(p.subject, serverID, ev.Entity.Kind),
		Time:            &at,
		Data:            data,
	}
}

// Publish sends every event and returns the first failure after trying all of them.
func (p *Publisher) Publish(ctx context.Context, serverID string, evs []models.Event) error {
	var firstErr error

	for _, ev := range evs {
		if err := p.publishOne(ctx, serverID, ev); err != nil {
			p.logger.Warn().Err(err).Str("entity", ev.Entity.String()).Msg("Failed to publish event")

			if firstErr == nil {
				firstErr = err
			}
		}
	}

	return firstErr
}

func (p *Publisher) publishOne(ctx context.Context, serverID string, ev models.Event) error {
	ce := p.Build(serverID, ev)

	payload, err := json.Marshal(ce)
	if err != nil {
		return fmt.Errorf("%w: marshal %s: %w", ErrPublish, ce.Type, err)
	}

	ack, err := p.js.Publish(ctx, ce.Subject, payload, jetstream.WithMsgID(ce.ID))
	if err != nil {
		return fmt.Errorf("%w: %s: %w", ErrPublish, ce.Subject, err)
	}

	p.logger.Debug().
		Str("id", ce.ID).
		Str("subject", ce.Subject).
		Uint64("seq", ack.Sequence).
		Msg("Published event")

	return nil
}

// Connect dials NATS, makes sure the stream captures cfg.Subject and
// returns a Publisher plus a close function for the connection.
func Connect(ctx context.Context, cfg *models.NATSConfig, log logger.Logger, extraOpts ...nats.Option) (*Publisher, func(), error) {
	if cfg.Subject == "" {
		return nil, nil, errNoSubject
	}

	opts := []nats.Option{
		nats.Name(eventSource),
		nats.ErrorHandler(func(_ *nats.Conn, _ *nats.Subscription, err error) {
			log.Warn().Err(err).Msg("NATS error")
		}),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			log.Warn().Err(err).Msg("NATS disconnected")
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			log.Info().Str("url", nc.ConnectedUrl()).Msg("NATS reconnected")
		}),
	}
	secOpts, err := securityOptions(cfg)
	if err != nil {
		return nil, nil, err
	}

	opts = append(opts, secOpts...)
	opts = append(opts, extraOpts...)

	nc, err := nats.Connect(cfg.URL, opts...)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to connect to NATS: %w", err)
	}

	js, err := jetstream.New(nc)
	if err != nil {
		nc.Close()

		return nil, nil, fmt.Errorf("failed to create JetStream context: %w", err)
	}

	if err := ensureStream(ctx, js, cfg.Stream, cfg.Subject+".>"); err != nil {
		nc.Close()

		return nil, nil, err
	}

	log.Info().Str("url", nc.ConnectedUrl()).Str("stream", cfg.Stream).Msg("Connected event publisher")

	return NewPublisher(js, cfg.Subject, log), nc.Close, nil
}

func ensureStream(ctx context.Context, js jetstream.JetStream, name, subject string) error {
	stream, err := js.Stream(ctx, name)
	if err != nil {
		_, err = js.CreateOrUpdateStream(ctx, jetstream.StreamConfig{
			Name:     name,
			Subjects: []string{subject},
		})
		if err != nil {
			return fmt.Errorf("failed to create or get stream %s: %w", name, err)
		}

		return nil
	}

	info, err := stream.Info(ctx)
	if err != nil {
		return fmt.Errorf("failed to read stream %s: %w", name, err)
	}

	subjects := ensureSubjectList(info.Config.Subjects, subject)
	if len(subjects) == len(info.Config.Subjects) {
		return nil
	}

	cfg := info.Config
	cfg.Subjects = subjects

	if _, err := js.UpdateStream(ctx, cfg); err != nil {
		return fmt.Errorf("failed to add subject %s to stream %s: %w", subject, name, err)
	}

	return nil
}

func subjectFor(base, serverID string, kind models.Kind) string {
	return base + "." + sanitizeToken(serverID) + "." + string(kind)
}

// sanitizeToken keeps a value usable as a single NATS subject token.
func sanitizeToken(s string) string {
	return strings.Map(func(r rune) rune {
		switch r {
		case '.', '*', '>', ' ', '\t':
			return '_'
		}

		return r
	}, s)
}

func ensureSubjectList(subjects []string, subject string) []string {
	for _, s := range subjects {
		if matchesSubject(s, subject) {
			return subjects
		}
	}

	return append(subjects, subject)
}

// matchesSubject reports whether pattern covers subject, honouring the * and > wildcards.
func matchesSubject(pattern, subject string) bool {
	pt := strings.Split(pattern, ".")
	st := strings.Split(subject, ".")

	for i, tok := range pt {
		if tok == ">" {
			return len(st) > i
		}

		if i >= len(st) {
			return false
		}

		if tok != "*" && tok != st[i] {
			return false
		}
	}

	return len(pt) == len(st)
}
