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

package control

import "errors"

var (
	// ErrExecution marks a control action whose backend command failed.
	ErrExecution = errors.New("execution failed")

	errUnsupportedTarget  = errors.New("unsupported target kind")
	errUnsupportedAction  = errors.New("unsupported action")
	errBackendUnavailable = errors.New("backend not configured")
)
