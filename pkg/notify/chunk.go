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

import "unicode/utf8"

// MaxMessageBytes is the chat service limit for one message.
const MaxMessageBytes = 4096

// Chunk splits text into ordered, contiguous pieces of at most limit bytes.
// A cut never lands inside a UTF-8 sequence, so every piece is valid UTF-8
// when text is.
func Chunk(text string, limit int) []string {
	if limit <= 0 {
		limit = MaxMessageBytes
	}

	if len(text) <= limit {
		return []string{text}
	}

	chunks := make([]string, 0, len(text)/limit+1)

	for len(text) > limit {
		cut := limit
		for cut > 0 && !utf8.RuneStart(text[cut]) {
			cut--
		}

		if cut == 0 {
			cut = limit
		}

		chunks = append(chunks, text[:cut])
		text = text[cut:]
	}

	if text != "" {
		chunks = append(chunks, text)
	}

	return chunks
}

// Truncate shortens text to at most limit bytes on a rune boundary.
func Truncate(text string, limit int) string {
	if len(text) <= limit {
		return text
	}

	return Chunk(text, limit)[0]
}
