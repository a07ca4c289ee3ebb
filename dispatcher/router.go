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

package dispatcher

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/recipients"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Messages
const (
	noConnectorMessage       = "No connector registered for channel"
	emptyRecipientsMessage   = "Recipient resolution returned no users, skipping delivery"
	historyWriteErrorMessage = "Unable to write delivery history record"
)

// Renderer produces the subject and body of a rendered notification for
// channels that carry human readable content
type Renderer func(event types.Event, endpoint types.Endpoint) (subject, body string)

// DefaultRenderer renders a plain one line subject and body from the event
// coordinates
func DefaultRenderer(event types.Event, _ types.Endpoint) (string, string) {
	subject := fmt.Sprintf("%s/%s: %s", event.Bundle, event.Application, event.EventType)
	body := fmt.Sprintf("Event %s of type %s was triggered for organization %s at %s",
		event.ID, event.EventType, event.OrgID, event.Timestamp.UTC().Format(time.RFC3339))
	return subject, body
}

// Router fans one event out to all its target endpoints. Each endpoint is
// processed independently so one failing endpoint never prevents deliveries
// to the remaining ones.
type Router struct {
	Connectors      map[types.ChannelType]Connector
	Resolver        *recipients.Resolver
	Storage         Storage
	Counters        *CounterStore
	Renderer        Renderer
	Concurrency     int
	MaxServerErrors int
}

// NewRouter constructs a router over the given connectors and collaborators
func NewRouter(connectors map[types.ChannelType]Connector, resolver *recipients.Resolver, storage Storage, counters *CounterStore, concurrency, maxServerErrors int) *Router {
	return &Router{
		Connectors:      connectors,
		Resolver:        resolver,
		Storage:         storage,
		Counters:        counters,
		Renderer:        DefaultRenderer,
		Concurrency:     concurrency,
		MaxServerErrors: maxServerErrors,
	}
}

// Dispatch routes one event to every endpoint in the given slice. All
// endpoints are attempted even when some fail; failures are accumulated and
// reported as one *DispatchError after the fan-out completes. A nil return
// means every endpoint was processed successfully.
func (router *Router) Dispatch(ctx context.Context, event types.Event, endpoints []types.Endpoint, criterion *types.AuthorizationCriterion) error {
	EventsProcessed.Inc()

	if len(endpoints) == 0 {
		log.Debug().
			Str("organization", string(event.OrgID)).
			Str("event type", string(event.EventType)).
			Msg("No endpoints target this event")
		return nil
	}

	// subscription state is read at most once per event, not per endpoint
	var subscription types.SubscriptionState
	for _, endpoint := range endpoints {
		if endpoint.ChannelType.NeedsRecipients() {
			state, err := router.Storage.ReadSubscriptionState(event.OrgID, event.EventType)
			if err != nil {
				return err
			}
			subscription = state
			break
		}
	}

	workers := router.Concurrency
	if workers < 1 {
		workers = 1
	}

	failures := make([]*EndpointFailure, len(endpoints))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				endpoint := endpoints[i]
				if err := router.dispatchTo(ctx, event, endpoint, subscription, criterion); err != nil {
					log.Error().
						Err(err).
						Str("endpoint", endpoint.ID.String()).
						Str("channel", endpoint.ChannelType.String()).
						Msg("Delivery to endpoint failed")
					failures[i] = &EndpointFailure{EndpointID: endpoint.ID, Err: err}
				}
			}
		}()
	}
	for i := range endpoints {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var collected []EndpointFailure
	for _, failure := range failures {
		if failure != nil {
			collected = append(collected, *failure)
		}
	}
	if len(collected) > 0 {
		return &DispatchError{Attempted: len(endpoints), Failures: collected}
	}
	return nil
}

// dispatchTo builds the channel payload for one endpoint, hands it to the
// matching connector, and records the outcome
func (router *Router) dispatchTo(ctx context.Context, event types.Event, endpoint types.Endpoint, subscription types.SubscriptionState, criterion *types.AuthorizationCriterion) error {
	EndpointsProcessed.Inc()

	connector, found := router.Connectors[endpoint.ChannelType]
	if !found {
		log.Error().
			Str("channel", endpoint.ChannelType.String()).
			Str("endpoint", endpoint.ID.String()).
			Msg(noConnectorMessage)
		return fmt.Errorf("no connector registered for channel %v", endpoint.ChannelType)
	}

	payload, err := router.buildPayload(ctx, event, endpoint, subscription, criterion)
	if err != nil {
		ResolutionErrors.Inc()
		return err
	}

	if endpoint.ChannelType.NeedsRecipients() && len(payload.Recipients) == 0 {
		// legitimate empty result, nobody subscribed or authorized
		log.Debug().
			Str("endpoint", endpoint.ID.String()).
			Str("channel", endpoint.ChannelType.String()).
			Msg(emptyRecipientsMessage)
		return nil
	}

	outcome := connector.Deliver(ctx, payload)
	return router.processOutcome(event, endpoint, outcome)
}

// buildPayload assembles the cross-connector payload for one endpoint,
// resolving recipients for channels that address users directly
func (router *Router) buildPayload(ctx context.Context, event types.Event, endpoint types.Endpoint, subscription types.SubscriptionState, criterion *types.AuthorizationCriterion) (types.DeliveryPayload, error) {
	metadata := types.DeliveryMetadata{
		URL:      endpoint.Properties.URL,
		TrustAll: endpoint.Properties.DisableSSLVerification,
	}
	if endpoint.Properties.SecretID != "" {
		metadata.Authentication = &types.AuthenticationDescriptor{
			SecretID: endpoint.Properties.SecretID,
			Type:     endpoint.Properties.SecretAuthType,
		}
	}

	payload := types.DeliveryPayload{
		OrgID:       event.OrgID,
		EndpointID:  endpoint.ID.String(),
		EventID:     event.ID.String(),
		Bundle:      event.Bundle,
		Application: event.Application,
		EventType:   event.EventType,
		Timestamp:   event.Timestamp.UTC().Format(time.RFC3339),
		Payload:     event.Payload,
		Metadata:    metadata,
	}

	if endpoint.ChannelType.NeedsRecipients() {
		payload.RecipientSettings = endpoint.RecipientSettings
		users, err := router.Resolver.Resolve(ctx, event.OrgID, endpoint.RecipientSettings, subscription, criterion)
		if err != nil {
			return payload, err
		}
		recipients := make([]string, 0, len(users))
		for _, user := range users {
			if user.Email != "" {
				recipients = append(recipients, user.Email)
			} else {
				recipients = append(recipients, user.Username)
			}
		}
		payload.Recipients = recipients

		if router.Renderer != nil {
			payload.Subject, payload.Body = router.Renderer(event, endpoint)
		}
	}

	return payload, nil
}

// processOutcome records the delivery history row and updates the endpoint
// error counters according to the outcome class
func (router *Router) processOutcome(event types.Event, endpoint types.Endpoint, outcome types.DeliveryOutcome) error {
	record := types.HistoryRecord{
		OrgID:      event.OrgID,
		EventID:    event.ID,
		EndpointID: endpoint.ID,
		CreatedAt:  time.Now().UTC(),
		Successful: outcome.Successful,
		StatusCode: outcome.StatusCode,
		Message:    outcome.Message,
	}
	if err := router.Storage.WriteHistoryRecord(record); err != nil {
		// history is best effort, the delivery outcome still stands
		log.Error().Err(err).Str("endpoint", endpoint.ID.String()).Msg(historyWriteErrorMessage)
	}

	switch {
	case outcome.Successful:
		router.Counters.ResetServerErrors(endpoint.ID)
		return nil
	case outcome.StatusCode >= 400 && outcome.StatusCode < 500:
		// the endpoint itself rejected the payload, retrying won't help
		DeliveryClientErrors.Inc()
		router.Counters.MarkDisableCandidate(endpoint.ID)
		DisableCandidates.Inc()
		return fmt.Errorf("endpoint rejected delivery with status %d: %s", outcome.StatusCode, outcome.Message)
	default:
		DeliveryServerErrors.Inc()
		count := router.Counters.IncrementServerErrors(endpoint.ID)
		if router.MaxServerErrors > 0 && count >= router.MaxServerErrors {
			router.Counters.MarkDisableCandidate(endpoint.ID)
			DisableCandidates.Inc()
		}
		if outcome.StatusCode != 0 {
			return fmt.Errorf("delivery failed with status %d: %s", outcome.StatusCode, outcome.Message)
		}
		return fmt.Errorf("delivery failed: %s", outcome.Message)
	}
}
