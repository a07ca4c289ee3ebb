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
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"

	"github.com/RedHatInsights/notifications-dispatcher/dispatcher"
	"github.com/RedHatInsights/notifications-dispatcher/recipients"
	"github.com/RedHatInsights/notifications-dispatcher/tests/mocks"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

func init() {
	zerolog.SetGlobalLevel(zerolog.WarnLevel)
}

// scriptedConnector returns a configured outcome per endpoint and records
// every delivered payload
type scriptedConnector struct {
	mu       sync.Mutex
	outcomes map[string]types.DeliveryOutcome
	payloads []types.DeliveryPayload
}

func newScriptedConnector() *scriptedConnector {
	return &scriptedConnector{outcomes: map[string]types.DeliveryOutcome{}}
}

func (c *scriptedConnector) scriptOutcome(endpointID types.EndpointID, outcome types.DeliveryOutcome) {
	c.outcomes[endpointID.String()] = outcome
}

func (c *scriptedConnector) Deliver(_ context.Context, payload types.DeliveryPayload) types.DeliveryOutcome {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.payloads = append(c.payloads, payload)
	if outcome, found := c.outcomes[payload.EndpointID]; found {
		return outcome
	}
	return types.DeliveryOutcome{Successful: true}
}

func (c *scriptedConnector) delivered() []types.DeliveryPayload {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]types.DeliveryPayload{}, c.payloads...)
}

// stubDirectory is a fixed-population directory client
type stubDirectory struct {
	users []types.User
}

func (d *stubDirectory) GetOrgUsers(_ context.Context, _ types.OrgID, _ bool) ([]types.User, error) {
	return d.users, nil
}

func (d *stubDirectory) GetGroupUsers(_ context.Context, _ types.OrgID, _ types.GroupID, _ bool) ([]types.User, error) {
	return d.users, nil
}

func testEvent(orgID types.OrgID) types.Event {
	return types.Event{
		ID:          uuid.New(),
		OrgID:       orgID,
		Bundle:      "console",
		Application: "policies",
		EventType:   "policy-triggered",
		Timestamp:   time.Date(2024, 3, 1, 12, 0, 0, 0, time.UTC),
		Payload:     types.EventPayload{"policy": "cpu"},
	}
}

func webhookEndpoint(orgID types.OrgID) types.Endpoint {
	return types.Endpoint{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        "hook",
		ChannelType: types.WebhookChannel,
		Properties:  types.DeliveryProperties{URL: "https://example.com/hook"},
	}
}

func emailEndpoint(orgID types.OrgID) types.Endpoint {
	return types.Endpoint{
		ID:          uuid.New(),
		OrgID:       orgID,
		Name:        "mail",
		ChannelType: types.EmailChannel,
		RecipientSettings: []types.RecipientSettings{
			{IgnoreUserPreferences: true},
		},
	}
}

func historyTolerantStorage() *mocks.Storage {
	storage := new(mocks.Storage)
	storage.On("WriteHistoryRecord", mock.Anything).Return(nil)
	return storage
}

func newTestRouter(storage dispatcher.Storage, connectors map[types.ChannelType]dispatcher.Connector, resolver *recipients.Resolver) *dispatcher.Router {
	return dispatcher.NewRouter(connectors, resolver, storage, dispatcher.NewCounterStore(), 2, 3)
}

// TestDispatchAllEndpointsAttempted checks that one failing endpoint does not
// prevent deliveries to the remaining endpoints
func TestDispatchAllEndpointsAttempted(t *testing.T) {
	endpoints := []types.Endpoint{
		webhookEndpoint("acme"),
		webhookEndpoint("acme"),
		webhookEndpoint("acme"),
		webhookEndpoint("acme"),
		webhookEndpoint("acme"),
	}

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoints[2].ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 500,
		Message:    "internal error",
	})

	router := newTestRouter(historyTolerantStorage(), map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	err := router.Dispatch(context.Background(), testEvent("acme"), endpoints, nil)

	assert.Error(t, err)
	var dispatchErr *dispatcher.DispatchError
	assert.True(t, errors.As(err, &dispatchErr))
	assert.Equal(t, 5, dispatchErr.Attempted)
	assert.Len(t, dispatchErr.Failures, 1)
	assert.Equal(t, endpoints[2].ID, dispatchErr.Failures[0].EndpointID)

	// every endpoint received its payload, the broken one included
	assert.Len(t, connector.delivered(), 5)
}

// TestDispatchNoEndpoints checks that dispatching to no endpoints is a no-op
func TestDispatchNoEndpoints(t *testing.T) {
	router := newTestRouter(new(mocks.Storage), map[types.ChannelType]dispatcher.Connector{}, nil)

	err := router.Dispatch(context.Background(), testEvent("acme"), nil, nil)
	assert.NoError(t, err)
}

// TestDispatchMissingConnector checks that an endpoint of an unregistered
// channel is reported as a failure
func TestDispatchMissingConnector(t *testing.T) {
	endpoint := webhookEndpoint("acme")
	endpoint.ChannelType = types.SlackChannel

	router := newTestRouter(historyTolerantStorage(), map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: newScriptedConnector(),
	}, nil)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)

	assert.Error(t, err)
	assert.Contains(t, err.Error(), "no connector registered")
}

// TestDispatchClientErrorMarksDisableCandidate checks that a 4xx outcome
// flags the endpoint without incrementing the server error counter
func TestDispatchClientErrorMarksDisableCandidate(t *testing.T) {
	endpoint := webhookEndpoint("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 404,
		Message:    "not found",
	})

	counters := dispatcher.NewCounterStore()
	router := dispatcher.NewRouter(map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil, historyTolerantStorage(), counters, 1, 3)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)

	assert.Error(t, err)
	assert.True(t, counters.IsDisableCandidate(endpoint.ID))
	assert.Equal(t, 0, counters.ServerErrors(endpoint.ID))
}

// TestDispatchServerErrorIncrementsCounter checks that a 5xx outcome
// increments the server error counter without flagging the endpoint yet
func TestDispatchServerErrorIncrementsCounter(t *testing.T) {
	endpoint := webhookEndpoint("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 503,
		Message:    "service unavailable",
	})

	counters := dispatcher.NewCounterStore()
	router := dispatcher.NewRouter(map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil, historyTolerantStorage(), counters, 1, 3)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)

	assert.Error(t, err)
	assert.Equal(t, 1, counters.ServerErrors(endpoint.ID))
	assert.False(t, counters.IsDisableCandidate(endpoint.ID))
}

// TestDispatchServerErrorThreshold checks that reaching the configured number
// of consecutive server errors flags the endpoint
func TestDispatchServerErrorThreshold(t *testing.T) {
	endpoint := webhookEndpoint("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 503,
		Message:    "service unavailable",
	})

	counters := dispatcher.NewCounterStore()
	router := dispatcher.NewRouter(map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil, historyTolerantStorage(), counters, 1, 3)

	for i := 0; i < 3; i++ {
		_ = router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)
	}

	assert.Equal(t, 3, counters.ServerErrors(endpoint.ID))
	assert.True(t, counters.IsDisableCandidate(endpoint.ID))
}

// TestDispatchSuccessResetsCounter checks that a successful delivery resets
// the endpoint's server error counter
func TestDispatchSuccessResetsCounter(t *testing.T) {
	endpoint := webhookEndpoint("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 500,
		Message:    "boom",
	})

	counters := dispatcher.NewCounterStore()
	router := dispatcher.NewRouter(map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil, historyTolerantStorage(), counters, 1, 5)

	_ = router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)
	_ = router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)
	assert.Equal(t, 2, counters.ServerErrors(endpoint.ID))

	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{Successful: true})
	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)

	assert.NoError(t, err)
	assert.Equal(t, 0, counters.ServerErrors(endpoint.ID))
}

// TestDispatchWritesHistory checks that every delivery attempt produces a
// history record with the outcome
func TestDispatchWritesHistory(t *testing.T) {
	endpoint := webhookEndpoint("acme")
	event := testEvent("acme")

	connector := newScriptedConnector()
	connector.scriptOutcome(endpoint.ID, types.DeliveryOutcome{
		Successful: false,
		StatusCode: 500,
		Message:    "boom",
	})

	storage := new(mocks.Storage)
	storage.On("WriteHistoryRecord", mock.MatchedBy(func(record types.HistoryRecord) bool {
		return record.EventID == event.ID &&
			record.EndpointID == endpoint.ID &&
			!record.Successful &&
			record.StatusCode == 500
	})).Return(nil).Once()

	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	_ = router.Dispatch(context.Background(), event, []types.Endpoint{endpoint}, nil)
	storage.AssertExpectations(t)
}

// TestDispatchEmailEndpointResolvesRecipients checks that email endpoints get
// their recipient list resolved and attached to the payload
func TestDispatchEmailEndpointResolvesRecipients(t *testing.T) {
	endpoint := emailEndpoint("acme")

	directoryClient := &stubDirectory{users: []types.User{
		{ID: "id-alice", Username: "alice", Email: "alice@example.com", Active: true},
		{ID: "id-bob", Username: "bob", Email: "bob@example.com", Active: true},
	}}
	resolver := recipients.NewResolver(directoryClient, nil)

	storage := historyTolerantStorage()
	storage.On("ReadSubscriptionState", types.OrgID("acme"), types.EventTypeName("policy-triggered")).
		Return(types.SubscriptionState{SubscribedByDefault: true}, nil)

	connector := newScriptedConnector()
	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.EmailChannel: connector,
	}, resolver)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)
	assert.NoError(t, err)

	delivered := connector.delivered()
	assert.Len(t, delivered, 1)
	assert.ElementsMatch(t, []string{"alice@example.com", "bob@example.com"}, delivered[0].Recipients)
	assert.NotEmpty(t, delivered[0].Subject)
	assert.NotEmpty(t, delivered[0].Body)
	assert.Equal(t, endpoint.RecipientSettings, delivered[0].RecipientSettings)
}

// TestDispatchEmailEndpointNoRecipientsSkipsDelivery checks that an empty
// resolved recipient set skips delivery without reporting a failure
func TestDispatchEmailEndpointNoRecipientsSkipsDelivery(t *testing.T) {
	endpoint := emailEndpoint("acme")

	resolver := recipients.NewResolver(&stubDirectory{}, nil)

	storage := new(mocks.Storage)
	storage.On("ReadSubscriptionState", types.OrgID("acme"), types.EventTypeName("policy-triggered")).
		Return(types.SubscriptionState{SubscribedByDefault: true}, nil)

	connector := newScriptedConnector()
	router := newTestRouter(storage, map[types.ChannelType]dispatcher.Connector{
		types.EmailChannel: connector,
	}, resolver)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)

	assert.NoError(t, err)
	assert.Empty(t, connector.delivered())
	storage.AssertNotCalled(t, "WriteHistoryRecord", mock.Anything)
}

// TestDispatchPayloadCarriesAuthenticationDescriptor checks that an endpoint
// with a stored secret produces a payload referencing the secret
func TestDispatchPayloadCarriesAuthenticationDescriptor(t *testing.T) {
	endpoint := webhookEndpoint("acme")
	endpoint.Properties.SecretID = "secret-1"
	endpoint.Properties.SecretAuthType = "bearer"
	endpoint.Properties.DisableSSLVerification = true

	connector := newScriptedConnector()
	router := newTestRouter(historyTolerantStorage(), map[types.ChannelType]dispatcher.Connector{
		types.WebhookChannel: connector,
	}, nil)

	err := router.Dispatch(context.Background(), testEvent("acme"), []types.Endpoint{endpoint}, nil)
	assert.NoError(t, err)

	delivered := connector.delivered()
	assert.Len(t, delivered, 1)
	metadata := delivered[0].Metadata
	assert.Equal(t, "https://example.com/hook", metadata.URL)
	assert.True(t, metadata.TrustAll)
	if assert.NotNil(t, metadata.Authentication) {
		assert.Equal(t, "secret-1", metadata.Authentication.SecretID)
		assert.Equal(t, "bearer", metadata.Authentication.Type)
	}
}
