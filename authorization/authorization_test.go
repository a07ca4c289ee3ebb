/*
Copyright © 2024, 2025 Red Hat, Inc.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package authorization_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"

	"github.com/RedHatInsights/notifications-dispatcher/authorization"
	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

func testConfiguration(serverURL string) conf.AuthorizationConfiguration {
	return conf.AuthorizationConfiguration{
		Enabled:        true,
		URL:            serverURL,
		Timeout:        5 * time.Second,
		MaxRetries:     3,
		RetryBaseDelay: time.Millisecond,
	}
}

var testCriterion = types.AuthorizationCriterion{
	AssetType: "workspace",
	AssetID:   "ws-1",
	Relation:  "notifications_viewer",
}

// TestLookupSubjects checks the happy path of a subjects lookup
func TestLookupSubjects(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, http.MethodPost, r.Method)
		assert.Equal(t, "/lookup-subjects", r.URL.Path)

		body, err := io.ReadAll(r.Body)
		assert.NoError(t, err)
		var criterion types.AuthorizationCriterion
		assert.NoError(t, json.Unmarshal(body, &criterion))
		assert.Equal(t, testCriterion, criterion)

		_, err = w.Write([]byte(`{"subjects": ["alice", "bob"]}`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := authorization.NewClient(testConfiguration(server.URL))
	subjects, err := client.LookupSubjects(context.Background(), testCriterion)

	assert.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, subjects)
}

// TestLookupSubjectsEmptyResult checks that no subjects is a legitimate result
func TestLookupSubjectsEmptyResult(t *testing.T) {
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		_, err := w.Write([]byte(`{"subjects": []}`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := authorization.NewClient(testConfiguration(server.URL))
	subjects, err := client.LookupSubjects(context.Background(), testCriterion)

	assert.NoError(t, err)
	assert.Empty(t, subjects)
}

// TestLookupSubjectsRetriesServerErrors checks that 5xx responses are retried
func TestLookupSubjectsRetriesServerErrors(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 2 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		_, err := w.Write([]byte(`{"subjects": ["alice"]}`))
		assert.NoError(t, err)
	}))
	defer server.Close()

	client := authorization.NewClient(testConfiguration(server.URL))
	subjects, err := client.LookupSubjects(context.Background(), testCriterion)

	assert.NoError(t, err)
	assert.Equal(t, []string{"alice"}, subjects)
	assert.Equal(t, 2, calls)
}

// TestLookupSubjectsClientErrorNotRetried checks that 4xx responses fail immediately
func TestLookupSubjectsClientErrorNotRetried(t *testing.T) {
	calls := 0
	server := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusForbidden)
	}))
	defer server.Close()

	client := authorization.NewClient(testConfiguration(server.URL))
	_, err := client.LookupSubjects(context.Background(), testCriterion)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "403")
	assert.Equal(t, 1, calls)
}
