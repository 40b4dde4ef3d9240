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

package notify

import (
	"context"
	"time"

	"github.com/cenkalti/backoff/v5"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/metrics"
)

const (
	retryInitialInterval = 500 * time.Millisecond
	retryMaxInterval     = 5 * time.Second
)

// Settings are read on every Send so reconfiguration applies immediately.
type Settings struct {
	Target  string
	Retries int
}

// Notifier delivers text to the configured channel. It never reports
// failure to its caller: undeliverable chunks are logged and dropped.
type Notifier struct {
	transport Transport
	settings  func() Settings
	logger    logger.Logger
	metrics   *metrics.Instruments

	initialInterval time.Duration
}

func NewNotifier(transport Transport, settings func() Settings, log logger.Logger, inst *metrics.Instruments) *Notifier {
	return &Notifier{
		transport:       transport,
		settings:        settings,
		logger:          log,
		metrics:         inst,
		initialInterval: retryInitialInterval,
	}
}

// Send delivers text to the current target, chunked at MaxMessageBytes.
func (n *Notifier) Send(ctx context.Context, text string) {
	n.SendTo(ctx, "", text)
}

// SendTo delivers text to target, or to the configured channel when target is empty.
func (n *Notifier) SendTo(ctx context.Context, target, text string) {
	if text == "" {
		return
	}

	s := n.settings()
	if target == "" {
		target = s.Target
	}

	for i, chunk := range Chunk(text, MaxMessageBytes) {
		if err := n.deliver(ctx, target, chunk, s.Retries); err != nil {
			n.metrics.RecordNotificationDropped(ctx)
			n.logger.Error().
				Err(err).
				Str("target", target).
				Int("chunk", i).
				Int("bytes", len(chunk)).
				Msg("Dropping undeliverable message chunk")
		}
	}
}

func (n *Notifier) deliver(ctx context.Context, target, chunk string, retries int) error {
	if retries <= 0 {
		return n.transport.SendText(ctx, target, chunk)
	}

	bo := backoff.NewExponentialBackOff()
	bo.InitialInterval = n.initialInterval
	bo.MaxInterval = retryMaxInterval

	attempt := 0
	operation := func() (struct{}, error) {
		attempt++

		err := n.transport.SendText(ctx, target, chunk)
		if err != nil && attempt <= retries {
			n.logger.Warn().Err(err).Int("attempt", attempt).Msg("Message send failed; retrying")
		}

		return struct{}{}, err
	}

	_, err := backoff.Retry(ctx, operation,
		backoff.WithBackOff(bo),
		backoff.WithMaxTries(uint(retries+1)),
	)

	return err
}
