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

package command

import (
	"strings"
	"unicode"

	"github.com/carverauto/hostwatch/pkg/models"
)

// Parse tokenizes raw on whitespace. The first token is the command name
// with any leading slash and @botname suffix removed.
func Parse(raw string) models.Command {
	fields := strings.Fields(raw)
	if len(fields) == 0 {
		return models.Command{Raw: raw}
	}

	name := strings.TrimPrefix(fields[0], "/")
	if at := strings.IndexByte(name, '@'); at >= 0 {
		name = name[:at]
	}

	return models.Command{
		Name: name,
		Args: fields[1:],
		Raw:  raw,
	}
}

// Authorize reports whether cmd addresses this server.
func Authorize(cmd models.Command, cfg *models.Config) bool {
	return len(cmd.Args) > 0 && cmd.Args[0] == cfg.Identifier
}

// tail returns raw with its first n whitespace-separated tokens removed,
// preserving the spacing of what remains.
func tail(raw string, n int) string {
	s := strings.TrimLeftFunc(raw, unicode.IsSpace)

	for range n {
		end := strings.IndexFunc(s, unicode.IsSpace)
		if end < 0 {
			return ""
		}

		s = strings.TrimLeftFunc(s[end:], unicode.IsSpace)
	}

	return strings.TrimRightFunc(s, unicode.IsSpace)
}
