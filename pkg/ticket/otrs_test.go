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
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/carverauto/hostwatch/pkg/logger"
	"github.com/carverauto/hostwatch/pkg/models"
)

func testTicketConfig(url string) models.TicketConfig {
	return models.TicketConfig{
		URL:      url + "/otrs/nph-genericinterface.pl/Webservice/GenericTicketConnector/",
		User:     "bot",
		Password: "pw",
		Queue:    "Raw",
		State:    "new",
		Priority: "3 normal",
	}
}

func TestOTRSCreate(t *testing.T) {
	var got createRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/otrs/nph-genericinterface.pl/Webservice/GenericTicketConnector/Ticket", r.URL.Path)
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))

		assert.NoError(t, json.NewDecoder(r.Body).Decode(&got))

		_, _ = w.Write([]byte(`{"TicketID":"77","TicketNumber":"2026101410000077","ArticleID":"301"}`))
	}))
	defer srv.Close()

	client := NewOTRSClient(testTicketConfig(srv.URL), logger.NewTestLogger())

	number, err := client.Create(context.Background(), Ticket{Subject: "Disk full", Body: "help", From: "ops"})
	require.NoError(t, err)
	assert.Equal(t, "2026101410000077", number)

	assert.Equal(t, "bot", got.UserLogin)
	assert.Equal(t, "pw", got.Password)
	assert.Equal(t, otrsTicket{Title: "Disk full", Queue: "Raw", State: "new", Priority: "3 normal"}, got.Ticket)
	assert.Equal(t, "Disk full", got.Article.Subject)
	assert.Equal(t, articleContentType, got.Article.ContentType)
	assert.Contains(t, got.Article.Body, "help")
	assert.Contains(t, got.Article.Body, "ops")
}

func TestOTRSCreateError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{"Error":{"ErrorCode":"TicketCreate.AuthFail","ErrorMessage":"authentication failed"}}`))
	}))
	defer srv.Close()

	client := NewOTRSClient(testTicketConfig(srv.URL), logger.NewTestLogger())

	_, err := client.Create(context.Background(), Ticket{Subject: "s", Body: "b"})
	require.ErrorIs(t, err, ErrTicketRejected)
	assert.Contains(t, err.Error(), "AuthFail")
}

func TestOTRSCreateHTTPError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		w.WriteHeader(http.StatusInternalServerError)
	}))
	defer srv.Close()

	client := NewOTRSClient(testTicketConfig(srv.URL), logger.NewTestLogger())

	_, err := client.Create(context.Background(), Ticket{Subject: "s", Body: "b"})
	require.ErrorIs(t, err, ErrTicketRejected)
}

func TestOTRSCreateMissingNumber(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, _ *http.Request) {
		_, _ = w.Write([]byte(`{}`))
	}))
	defer srv.Close()

	client := NewOTRSClient(testTicketConfig(srv.URL), logger.NewTestLogger())

	_, err := client.Create(context.Background(), Ticket{Subject: "s", Body: "b"})
	require.ErrorIs(t, err, errEmptyResponse)
}
