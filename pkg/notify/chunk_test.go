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
	"strings"
	"testing"
	"unicode/utf8"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestChunkSplitsAtLimit(t *testing.T) {
	text := strings.Repeat("a", 9000)

	chunks := Chunk(text, MaxMessageBytes)
	require.Len(t, chunks, 3)
	assert.Len(t, chunks[0], 4096)
	assert.Len(t, chunks[1], 4096)
	assert.Len(t, chunks[2], 808)
	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestChunkShortText(t *testing.T) {
	assert.Equal(t, []string{"hello"}, Chunk("hello", MaxMessageBytes))
	assert.Equal(t, []string{""}, Chunk("", MaxMessageBytes))
}

func TestChunkNeverSplitsRunes(t *testing.T) {
	// each rune is 4 bytes, so a 10 byte limit must cut at 8
	text := strings.Repeat("🔴", 5)

	chunks := Chunk(text, 10)
	require.Len(t, chunks, 3)

	for _, c := range chunks {
		assert.True(t, utf8.ValidString(c))
		assert.LessOrEqual(t, len(c), 10)
	}

	assert.Equal(t, text, strings.Join(chunks, ""))
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "abc", Truncate("abc", 10))
	assert.Equal(t, "ab", Truncate("abcdef", 2))
	assert.Equal(t, "é", Truncate("éé", 3))
}
