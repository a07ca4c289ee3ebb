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

package dispatcher_test

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/dispatcher"
	"github.com/RedHatInsights/notifications-dispatcher/tests/mocks"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// dispatcherTestConfig returns a configuration with the Kafka producer turned
// off and metrics pointed at the given push gateway
func dispatcherTestConfig(gatewayURL string) conf.ConfigStruct {
	return conf.ConfigStruct{
		Kafka: conf.KafkaConfiguration{
			Enabled: false,
		},
		Metrics: conf.MetricsConfiguration{
			Job:        "notifications_dispatcher",
			GatewayURL: gatewayURL,
		},
	}
}

func noDigestRun(_ context.Context, _ *dispatcher.Router, _ time.Time, _ bool) error {
	return nil
}

// TestProcessEventsNoPendingEvents checks the empty queue case
func TestProcessEventsNoPendingEvents(t *testing.T) {
	storage := new(mocks.Storage)
	storage.On("ReadPendingEvents").Return([]types.Event{}, nil)

	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{}, nil)

	err := dispatcher.ProcessEvents(context.Background(), storage, router)
	assert.NoError(t, err)
}

// TestProcessEventsRoutesAndMarksProcessed checks the happy path of one
// pending event
func TestProcessEventsRoutesAndMarksProcessed(t *testing.T) {
	event := testEvent("acme")
	endpoint := webhookEndpoint("acme")

	storage := new(mocks.Storage)
	storage.On("ReadPendingEvents").Return([]types.Event{event}, nil)
	storage.On("ReadTargetEndpoints", event.OrgID, event.EventType).
		Return([]types.Endpoint{endpoint}, nil)
	storage.On("WriteHistoryRecord", mock.Anything).Return(nil)
	storage.On("MarkEventProcessed", event.ID).Return(nil).Once()

	connector := newScriptedConnector()
	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	err := dispatcher.ProcessEvents(context.Background(), storage, router)

	assert.NoError(t, err)
	assert.Len(t, connector.delivered(), 1)
	storage.AssertExpectations(t)
}

// TestProcessEventsFailedDeliveryStillMarksProcessed checks that an event
// with failed deliveries is not re-queued
func TestProcessEventsFailedDeliveryStillMarksProcessed(t *testing.T) {
	event := testEvent("acme")
	endpoint := webhookEndpoint("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 500,
		Message:    "boom",
	})

	storage := new(mocks.Storage)
	storage.On("ReadPendingEvents").Return([]types.Event{event}, nil)
	storage.On("ReadTargetEndpoints", event.OrgID, event.EventType).
		Return([]types.Endpoint{endpoint}, nil)
	storage.On("WriteHistoryRecord", mock.Anything).Return(nil)
	storage.On("MarkEventProcessed", event.ID).Return(nil).Once()

	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	err := dispatcher.ProcessEvents(context.Background(), storage, router)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "1 of 1 events")
	storage.AssertExpectations(t)
}

// TestProcessEventsEndpointReadFailureIsolated checks that a failing endpoint
// read for one event does not stop the remaining events
func TestProcessEventsEndpointReadFailureIsolated(t *testing.T) {
	brokenEvent := testEvent("a")
	healthyEvent := testEvent("b")
	endpoint := webhookEndpoint("b")

	storage := new(mocks.Storage)
	storage.On("ReadPendingEvents").Return([]types.Event{brokenEvent, healthyEvent}, nil)
	storage.On("ReadTargetEndpoints", brokenEvent.OrgID, brokenEvent.EventType).
		Return(nil, errors.New("query timeout"))
	storage.On("ReadTargetEndpoints", healthyEvent.OrgID, healthyEvent.EventType).
		Return([]types.Endpoint{endpoint}, nil)
	storage.On("WriteHistoryRecord", mock.Anything).Return(nil)
	storage.On("MarkEventProcessed", healthyEvent.ID).Return(nil).Once()

	connector := newScriptedConnector()
	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	err := dispatcher.ProcessEvents(context.Background(), storage, router)

	assert.Error(t, err)
	assert.Len(t, connector.delivered(), 1)
	storage.AssertNotCalled(t, "MarkEventProcessed", brokenEvent.ID)
}

// TestProcessEventsStorageFailure checks that a failing event read aborts the run
func TestProcessEventsStorageFailure(t *testing.T) {
	storage := new(mocks.Storage)
	storage.On("ReadPendingEvents").Return(nil, errors.New("connection refused"))

	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{}, nil)

	err := dispatcher.ProcessEvents(context.Background(), storage, router)
	assert.Error(t, err)
}

// TestConvertLogLevel checks the translation of configured log level names
func TestConvertLogLevel(t *testing.T) {
	testCases := []struct {
		configured string
		expected   zerolog.Level
	}{
		{"debug", zerolog.DebugLevel},
		{"info", zerolog.InfoLevel},
		{"warn", zerolog.WarnLevel},
		{"warning", zerolog.WarnLevel},
		{"error", zerolog.ErrorLevel},
		{"fatal", zerolog.FatalLevel},
		{" Info ", zerolog.InfoLevel},
		{"ERROR", zerolog.ErrorLevel},
		{"", zerolog.DebugLevel},
		{"trace", zerolog.DebugLevel},
	}

	for _, testCase := range testCases {
		assert.Equal(t, testCase.expected,
			dispatcher.ConvertLogLevel(testCase.configured),
			"unexpected level for %q", testCase.configured)
	}
}

// TestStartDispatcherNoOperation checks the exit code when no operation mode
// is selected and all resources close cleanly
func TestStartDispatcherNoOperation(t *testing.T) {
	gateway := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
	defer gateway.Close()

	storage := new(mocks.Storage)
	storage.On("Close").Return(nil)

	exitCode := dispatcher.StartDispatcher(
		dispatcherTestConfig(gateway.URL), storage, types.CliFlags{}, noDigestRun)

	assert.Equal(t, dispatcher.ExitStatusOK, exitCode)
	storage.AssertExpectations(t)
}

// TestStartDispatcherStorageCloseFailure checks the exit code when the storage
// connection cannot be closed
func TestStartDispatcherStorageCloseFailure(t *testing.T) {
	gateway := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusOK)
		}),
	)
	defer gateway.Close()

	storage := new(mocks.Storage)
	storage.On("Close").Return(errors.New("connection reset by peer"))

	exitCode := dispatcher.StartDispatcher(
		dispatcherTestConfig(gateway.URL), storage, types.CliFlags{}, noDigestRun)

	assert.Equal(t, dispatcher.ExitStatusStorageError, exitCode)
}

// TestStartDispatcherMetricsPushFailure checks the exit code when the push
// gateway rejects the final metrics push
func TestStartDispatcherMetricsPushFailure(t *testing.T) {
	gateway := httptest.NewServer(
		http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			w.WriteHeader(http.StatusBadGateway)
		}),
	)
	defer gateway.Close()

	storage := new(mocks.Storage)
	storage.On("Close").Return(nil)

	exitCode := dispatcher.StartDispatcher(
		dispatcherTestConfig(gateway.URL), storage, types.CliFlags{}, noDigestRun)

	assert.Equal(t, dispatcher.ExitStatusMetricsError, exitCode)
}
