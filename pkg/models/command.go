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

// Command is a parsed inbound chat command. Args[0], when present, is the
// identifier the caller claims to be addressing.
type Command struct {
	Name string   `json:"name"`
	Args []string `json:"args"`
	Raw  string   `json:"raw"`
}

// CallerIdentifier returns the claimed server identifier, or "".
func (c Command) CallerIdentifier() string {
	if len(c.Args) == 0 {
		return ""
	}

	return c.Args[0]
}

// Params returns the arguments after the identifier.
func (c Command) Params() []string {
	if len(c.Args) < 2 {
		return nil
	}

	return c.Args[1:]
}

// Action is a control operation on a service or VM.
type Action string

const (
	ActionStart   Action = "start"
	ActionStop    Action = "stop"
	ActionRestart Action = "restart"
)

// Result classifies the outcome of a control action.
type Result string

const (
	ResultSucceeded           Result = "succeeded"
	ResultFailed              Result = "failed"
	ResultRestarted           Result = "restarted"
	ResultStoppedNotRestarted Result = "stopped_not_restarted"
	ResultRestartFailed       Result = "restart_failed"
)

// Outcome is what a control action reports back to the caller.
type Outcome struct {
	Success bool   `json:"success"`
	Result  Result `json:"result"`
	Output  string `json:"output"`
}
