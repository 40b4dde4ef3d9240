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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

const (
	defaultRequestTimeout = 30 * time.Second
	articleContentType    = "text/plain; charset=utf8"
	maxResponseBytes      = 1 << 20
)

// OTRSClient files tickets through the GenericTicketConnector REST web service.
type OTRSClient struct {
	endpoint string
	cfg      models.TicketConfig
	client   *http.Client
	logger   logger.Logger
}

func NewOTRSClient(cfg models.TicketConfig, log logger.Logger) *OTRSClient {
	return &OTRSClient{
		endpoint: strings.TrimRight(cfg.URL, "/") + "/Ticket",
		cfg:      cfg,
		client:   &http.Client{Timeout: defaultRequestTimeout},
		logger:   log,
	}
}

type otrsTicket struct {
	Title        string `json:"Title"`
	Queue        string `json:"Queue"`
	State        string `json:"State"`
	Priority     string `json:"Priority"`
	CustomerUser string `json:"CustomerUser,omitempty"`
}

type otrsArticle struct {
	Subject     string `json:"Subject"`
	Body        string `json:"Body"`
	ContentType string `json:"ContentType"`
}

type createRequest struct {
	UserLogin string      `json:"UserLogin"`
	Password  string      `json:"Password"`
	Ticket    otrsTicket  `json:"Ticket"`
	Article   otrsArticle `json:"Article"`
}

type createResponse struct {
	TicketID     string `json:"TicketID"`
	TicketNumber string `json:"TicketNumber"`
	ArticleID    string `json:"ArticleID"`
	Error        *struct {
		ErrorCode    string `json:"ErrorCode"`
		ErrorMessage string `json:"ErrorMessage"`
	} `json:"Error,omitempty"`
}

// Create implements Sink.
func (c *OTRSClient) Create(ctx context.Context, t Ticket) (string, error) {
	body := t.Body
	if t.From != "" {
		body = fmt.Sprintf("%s\n\n-- \nSubmitted via chat by %s", body, t.From)
	}

	payload, err := json.Marshal(createRequest{
		UserLogin: c.cfg.User,
		Password:  c.cfg.Password,
		Ticket: otrsTicket{
			Title:        t.Subject,
			Queue:        c.cfg.Queue,
			State:        c.cfg.State,
			Priority:     c.cfg.Priority,
			CustomerUser: c.cfg.CustomerUser,
		},
		Article: otrsArticle{
			Subject:     t.Subject,
			Body:        body,
			ContentType: articleContentType,
		},
	})
	if err != nil {
		return "", fmt.Errorf("failed to encode ticket: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to build ticket request: %w", err)
	}

	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("ticket request failed: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseBytes))
	if err != nil {
		return "", fmt.Errorf("failed to read ticket response: %w", err)
	}

	if resp.StatusCode >= http.StatusBadRequest {
		return "", fmt.Errorf("%w: HTTP %d", ErrTicketRejected, resp.StatusCode)
	}

	var parsed createResponse
	if err := json.Unmarshal(data, &parsed); err != nil {
		return "", fmt.Errorf("failed to decode ticket response: %w", err)
	}

	if parsed.Error != nil {
		return "", fmt.Errorf("%w: %s: %s", ErrTicketRejected, parsed.Error.ErrorCode, parsed.Error.ErrorMessage)
	}

	if parsed.TicketNumber == "" {
		return "", errEmptyResponse
	}

	c.logger.Debug().Str("ticket_id", parsed.TicketID).Str("article_id", parsed.ArticleID).Msg("OTRS ticket created")

	return parsed.TicketNumber, nil
}
