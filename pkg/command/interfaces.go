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

//go:generate mockgen -destination=mock_command.go -package=command github.com/carverauto/hostwatch/pkg/command Replier,Executor

// Package command parses inbound chat commands and dispatches the authorized ones.
package command

import (
	"context"

	"github.com/carverauto/hostwatch/pkg/models"
)

// Replier sends reply text to a chat.
type Replier interface {
	SendTo(ctx context.Context, target, text string)
}

// Executor applies control actions.
type Executor interface {
	Apply(ctx context.Context, action models.Action, target models.Entity) (models.Outcome, error)
}

// ConfigSource returns the live configuration.
type ConfigSource interface {
	Load() *models.Config
}
