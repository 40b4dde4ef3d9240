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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
)

const (
	defaultAPIURL      = "https://api.telegram.org"
	defaultPollTimeout = 30 * time.Second
	requestSlack       = 10 * time.Second
	maxResponseBytes   = 1 << 20
)

// TelegramClient speaks the Bot API: sendMessage for outbound text and
// getUpdates long polling for inbound messages.
type TelegramClient struct {
	baseURL     string
	token       string
	pollTimeout time.Duration
	httpClient  *http.Client
	logger      logger.Logger

	mu     sync.Mutex
	offset int64
}

func NewTelegramClient(apiURL, token string, pollTimeout time.Duration, log logger.Logger) *TelegramClient {
	if apiURL == "" {
		apiURL = defaultAPIURL
	}

	if pollTimeout <= 0 {
		pollTimeout = defaultPollTimeout
	}

	return &TelegramClient{
		baseURL:     strings.TrimRight(apiURL, "/"),
		token:       token,
		pollTimeout: pollTimeout,
		httpClient:  &http.Client{Timeout: pollTimeout + requestSlack},
		logger:      log,
	}
}

type apiResponse struct {
	OK          bool            `json:"ok"`
	Description string          `json:"description,omitempty"`
	ErrorCode   int             `json:"error_code,omitempty"`
	Result      json.RawMessage `json:"result,omitempty"`
	Parameters  *struct {
		RetryAfter int `json:"retry_after,omitempty"`
	} `json:"parameters,omitempty"`
}

type sendMessageRequest struct {
	ChatID string `json:"chat_id"`
	Text   string `json:"text"`
}

type getUpdatesRequest struct {
	Offset         int64    `json:"offset,omitempty"`
	Timeout        int      `json:"timeout"`
	AllowedUpdates []string `json:"allowed_updates"`
}

type update struct {
	UpdateID int64    `json:"update_id"`
	Message  *message `json:"message,omitempty"`
}

type message struct {
	MessageID int64 `json:"message_id"`
	From      *struct {
		ID       int64  `json:"id"`
		Username string `json:"username,omitempty"`
	} `json:"from,omitempty"`
	Chat struct {
		ID int64 `json:"id"`
	} `json:"chat"`
	Text string `json:"text,omitempty"`
}

// SendText implements Transport.
func (c *TelegramClient) SendText(ctx context.Context, target, text string) error {
	_, err := c.call(ctx, "sendMessage", sendMessageRequest{ChatID: target, Text: text})

	return err
}

// Receive implements Receiver. Each call long-polls once and acknowledges
// everything it returns by advancing the update offset.
func (c *TelegramClient) Receive(ctx context.Context) ([]Inbound, error) {
	c.mu.Lock()
	offset := c.offset
	c.mu.Unlock()

	raw, err := c.call(ctx, "getUpdates", getUpdatesRequest{
		Offset:         offset,
		Timeout:        int(c.pollTimeout / time.Second),
		AllowedUpdates: []string{"message"},
	})
	if err != nil {
		return nil, err
	}

	var updates []update
	if err := json.Unmarshal(raw, &updates); err != nil {
		return nil, fmt.Errorf("%w: decode updates: %w", ErrTransport, err)
	}

	inbound := make([]Inbound, 0, len(updates))

	for _, u := range updates {
		if u.UpdateID >= offset {
			offset = u.UpdateID + 1
		}

		if u.Message == nil || u.Message.Text == "" {
			continue
		}

		in := Inbound{
			UpdateID: u.UpdateID,
			ChatID:   strconv.FormatInt(u.Message.Chat.ID, 10),
			Text:     u.Message.Text,
		}

		if u.Message.From != nil {
			in.UserID = strconv.FormatInt(u.Message.From.ID, 10)
			in.Username = u.Message.From.Username
		}

		inbound = append(inbound, in)
	}

	c.mu.Lock()
	c.offset = offset
	c.mu.Unlock()

	if len(updates) > 0 {
		c.logger.Debug().Int("updates", len(updates)).Int64("offset", offset).Msg("Received updates")
	}

	return inbound, nil
}

func (c *TelegramClient) call(ctx context.Context, method string, body interface{}) (json.RawMessage, error) {
	payload, err := json.Marshal(body)
	if err != nil {
		return nil, fmt.Errorf("%w: encode %s: %w", ErrTransport, method, err)
	}

	url := fmt.Sprintf("%s/bot%s/%s", c.baseURL, c.token, method)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build %s request: %w", ErrTransport, method, err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		// the URL carries the bot token; never log it
		return nil, fmt.Errorf("%w: %s: %w", ErrTransport, method, redact(err, c.token))
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read %s response: %w", ErrTransport, method, err)
	}

	var parsed apiResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return nil, fmt.Errorf("%w: %s returned HTTP %d", ErrTransport, method, resp.StatusCode)
	}

	if !parsed.OK || resp.StatusCode >= http.StatusBadRequest {
		if parsed.Parameters != nil && parsed.Parameters.RetryAfter > 0 {
			return nil, fmt.Errorf("%w: %w: %s (retry after %ds)",
				ErrTransport, errAPIRejected, parsed.Description, parsed.Parameters.RetryAfter)
		}

		return nil, fmt.Errorf("%w: %w: %s: %d %s",
			ErrTransport, errAPIRejected, method, parsed.ErrorCode, parsed.Description)
	}

	return parsed.Result, nil
}

type redactedError struct {
	msg string
	err error
}

func (r *redactedError) Error() string { return r.msg }
func (r *redactedError) Unwrap() error { return r.err }

func redact(err error, token string) error {
	if token == "" || !strings.Contains(err.Error(), token) {
		return err
	}

	return &redactedError{msg: strings.ReplaceAll(err.Error(), token, "<redacted>"), err: err}
}
