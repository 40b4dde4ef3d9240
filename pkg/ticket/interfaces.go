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

//go:generate mockgen -destination=mock_ticket.go -package=ticket github.com/carverauto/hostwatch/pkg/ticket Sink

// Package ticket runs the chat dialogue that files a helpdesk ticket.
package ticket

import "context"

// Ticket is what the dialogue collects.
type Ticket struct {
	Subject string
	Body    string
	// From names the chat user who opened the ticket.
	From string
}

// Sink files a ticket and returns the helpdesk ticket number.
type Sink interface {
	Create(ctx context.Context, t Ticket) (string, error)
}
