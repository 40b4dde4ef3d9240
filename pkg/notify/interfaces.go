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

//go:generate mockgen -destination=mock_notify.go -package=notify github.com/carverauto/hostwatch/pkg/notify Transport,Receiver

// Package notify delivers text to the chat channel and receives inbound messages.
package notify

import "context"

// Transport sends one message of at most MaxMessageBytes to target.
type Transport interface {
	SendText(ctx context.Context, target, text string) error
}

// Inbound is a text message received from the chat service.
type Inbound struct {
	UpdateID int64
	ChatID   string
	UserID   string
	Username string
	Text     string
}

// Receiver long-polls the chat service for new messages.
type Receiver interface {
	Receive(ctx context.Context) ([]Inbound, error)
}
