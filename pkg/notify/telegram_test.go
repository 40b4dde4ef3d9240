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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hostwatch/pkg/logger"
)

type fakeBotAPI struct {
	mu       sync.Mutex
	sent     []sendMessageRequest
	offsets  []int64
	updates  string
	rejected bool
}

func (f *fakeBotAPI) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	f.mu.Lock()
	defer f.mu.Unlock()

	w.Header().Set("Content-Type", "application/json")

	switch r.URL.Path {
	case "/botsecret/sendMessage":
		if f.rejected {
			w.WriteHeader(http.StatusBadRequest)
			_, _ = w.Write([]byte(`{"ok":false,"error_code":400,"description":"Bad Request: chat not found"}`))

			return
		}

		var req sendMessageRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.sent = append(f.sent, req)

		_, _ = w.Write([]byte(`{"ok":true,"result":{"message_id":1}}`))
	case "/botsecret/getUpdates":
		var req getUpdatesRequest
		_ = json.NewDecoder(r.Body).Decode(&req)
		f.offsets = append(f.offsets, req.Offset)

		result := f.updates
		f.updates = "[]"

		_, _ = w.Write([]byte(`{"ok":true,"result":` + result + `}`))
	default:
		w.WriteHeader(http.StatusNotFound)
		_, _ = w.Write([]byte(`{"ok":false,"error_code":404,"description":"Not Found"}`))
	}
}

func newTestClient(t *testing.T, api *fakeBotAPI) *TelegramClient {
	t.Helper()

	srv := httptest.NewServer(api)
	t.Cleanup(srv.Close)

	return NewTelegramClient(srv.URL+"/", "secret", time.Second, logger.NewTestLogger())
}

func TestTelegramSendText(t *testing.T) {
	api := &fakeBotAPI{}
	client := newTestClient(t, api)

	require.NoError(t, client.SendText(context.Background(), "-100", "hello"))

	api.mu.Lock()
	defer api.mu.Unlock()

	require.Len(t, api.sent, 1)
	assert.Equal(t, sendMessageRequest{ChatID: "-100", Text: "hello"}, api.sent[0])
}

func TestTelegramSendTextRejected(t *testing.T) {
	api := &fakeBotAPI{rejected: true}
	client := newTestClient(t, api)

	err := client.SendText(context.Background(), "-100", "hello")
	require.Error(t, err)
	require.ErrorIs(t, err, ErrTransport)
	require.ErrorIs(t, err, errAPIRejected)
	assert.Contains(t, err.Error(), "chat not found")
}

func TestTelegramReceiveAdvancesOffset(t *testing.T) {
	api := &fakeBotAPI{updates: `[
		{"update_id": 10, "message": {"message_id": 1, "from": {"id": 5, "username": "ops"}, "chat": {"id": -100}, "text": "/server_id"}},
		{"update_id": 11, "message": {"message_id": 2, "chat": {"id": -100}}},
		{"update_id": 12, "message": {"message_id": 3, "from": {"id": 6}, "chat": {"id": 42}, "text": "hi"}}
	]`}
	client := newTestClient(t, api)

	msgs, err := client.Receive(context.Background())
	require.NoError(t, err)
	require.Len(t, msgs, 2)

	assert.Equal(t, Inbound{UpdateID: 10, ChatID: "-100", UserID: "5", Username: "ops", Text: "/server_id"}, msgs[0])
	assert.Equal(t, "42", msgs[1].ChatID)

	msgs, err = client.Receive(context.Background())
	require.NoError(t, err)
	assert.Empty(t, msgs)

	api.mu.Lock()
	defer api.mu.Unlock()

	assert.Equal(t, []int64{0, 13}, api.offsets)
}

func TestTelegramUnreachable(t *testing.T) {
	client := NewTelegramClient("http://127.0.0.1:1", "secret", time.Second, logger.NewTestLogger())

	err := client.SendText(context.Background(), "-100", "hello")
	require.ErrorIs(t, err, ErrTransport)
	assert.NotContains(t, err.Error(), "secret")
}
