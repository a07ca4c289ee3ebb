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

package aggregator

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/dispatcher"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// allowedDigestMinutes are the only minute values a digest run can fire at.
// Org preferences are validated against the same set so every stored
// preference matches exactly one run per hour.
var allowedDigestMinutes = []int{0, 15, 30, 45}

// ValidateDigestMinute checks that the given minute is one of the accepted
// digest fire minutes
func ValidateDigestMinute(minute int) error {
	for _, allowed := range allowedDigestMinutes {
		if minute == allowed {
			return nil
		}
	}
	return &InvalidDigestMinuteError{Minute: minute}
}

// ComputeWindow returns the aggregation window ending at the given fire time.
// The window is half open, records created exactly at the end instant belong
// to the next window. Both bounds are in UTC.
func ComputeWindow(fireTime time.Time, digestType types.DigestType) (start, end time.Time) {
	end = fireTime.UTC()
	start = end.Add(-digestType.Period())
	return
}

// Scheduler drives periodic digest runs. Every run reads the aggregation
// keys with pending records in the window, folds the records of each key
// into one digest, and dispatches the digest as a synthetic event to the
// organization's digest endpoints.
type Scheduler struct {
	Storage       dispatcher.Storage
	Router        *dispatcher.Router
	Bundle        string
	Application   string
	EventType     types.EventTypeName
	DefaultMinute int
	Concurrency   int
}

// NewScheduler constructs a scheduler over the given storage and router
func NewScheduler(storage dispatcher.Storage, router *dispatcher.Router, bundle, application, eventType string, defaultMinute, concurrency int) *Scheduler {
	return &Scheduler{
		Storage:       storage,
		Router:        router,
		Bundle:        bundle,
		Application:   application,
		EventType:     types.EventTypeName(eventType),
		DefaultMinute: defaultMinute,
		Concurrency:   concurrency,
	}
}

// SetOrgDigestTime stores the preferred digest minute of one organization.
// The minute is validated first, an invalid value is rejected without
// touching the stored preference.
func (scheduler *Scheduler) SetOrgDigestTime(orgID types.OrgID, minute int) error {
	if err := ValidateDigestMinute(minute); err != nil {
		return err
	}
	return scheduler.Storage.WriteOrgDigestMinute(orgID, minute)
}

// Run performs one digest run fired at the given time. All aggregation keys
// due at the fire minute are processed even when some fail; failures are
// accumulated and reported as one *RunError after the run completes.
func (scheduler *Scheduler) Run(ctx context.Context, fireTime time.Time, digestType types.DigestType) error {
	start, end := ComputeWindow(fireTime, digestType)

	log.Info().
		Str("type", digestType.String()).
		Time("window start", start).
		Time("window end", end).
		Msg("Digest run started")

	keys, err := scheduler.Storage.ReadPendingAggregationKeys(start, end)
	if err != nil {
		return err
	}

	due, err := scheduler.filterDueKeys(keys, fireTime)
	if err != nil {
		return err
	}
	if len(due) == 0 {
		log.Info().Msg("No aggregation keys due at this fire time")
		return nil
	}

	commands := make([]types.AggregationCommand, 0, len(due))
	for _, key := range due {
		commands = append(commands, types.AggregationCommand{
			Key:        key,
			Start:      start,
			End:        end,
			DigestType: digestType.String(),
		})
	}

	failures := scheduler.processCommands(ctx, commands)
	if len(failures) > 0 {
		return &RunError{Attempted: len(due), Failures: failures}
	}

	log.Info().Int("keys", len(due)).Msg("Digest run finished")
	return nil
}

// filterDueKeys keeps the keys whose organization prefers the fire minute.
// Organizations without a stored preference fall back to the configured
// default minute.
func (scheduler *Scheduler) filterDueKeys(keys []types.AggregationKey, fireTime time.Time) ([]types.AggregationKey, error) {
	fireMinute := fireTime.UTC().Minute()
	minuteByOrg := map[types.OrgID]int{}

	due := make([]types.AggregationKey, 0, len(keys))
	for _, key := range keys {
		minute, cached := minuteByOrg[key.OrgID]
		if !cached {
			stored, found, err := scheduler.Storage.ReadOrgDigestMinute(key.OrgID)
			if err != nil {
				return nil, err
			}
			minute = scheduler.DefaultMinute
			if found {
				minute = stored
			}
			minuteByOrg[key.OrgID] = minute
		}
		if minute == fireMinute {
			due = append(due, key)
		}
	}
	return due, nil
}

// processCommands folds and dispatches all due aggregation commands with
// bounded concurrency, isolating failures per key
func (scheduler *Scheduler) processCommands(ctx context.Context, commands []types.AggregationCommand) []KeyFailure {
	workers := scheduler.Concurrency
	if workers < 1 {
		workers = 1
	}

	results := make([]*KeyFailure, len(commands))
	jobs := make(chan int)

	var wg sync.WaitGroup
	for w := 0; w < workers; w++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			for i := range jobs {
				command := commands[i]
				if err := scheduler.processCommand(ctx, command); err != nil {
					dispatcher.DigestKeyErrors.Inc()
					log.Error().
						Err(err).
						Str("organization", string(command.Key.OrgID)).
						Str("bundle", command.Key.Bundle).
						Str("application", command.Key.Application).
						Msg("Digest processing for aggregation key failed")
					results[i] = &KeyFailure{Key: command.Key, Err: err}
				} else {
					dispatcher.DigestKeysProcessed.Inc()
				}
			}
		}()
	}
	for i := range commands {
		jobs <- i
	}
	close(jobs)
	wg.Wait()

	var failures []KeyFailure
	for _, failure := range results {
		if failure != nil {
			failures = append(failures, *failure)
		}
	}
	return failures
}

// processCommand folds the records of one aggregation command into a digest
// and dispatches it to the organization's digest endpoints
func (scheduler *Scheduler) processCommand(ctx context.Context, command types.AggregationCommand) error {
	records, err := scheduler.Storage.ReadAggregationRecords(command.Key, command.Start, command.End)
	if err != nil {
		return err
	}
	if len(records) == 0 {
		// nothing happened in the window, no digest is produced
		return nil
	}

	accumulator := NewAccumulator(command.Key.OrgID)
	for _, record := range records {
		if err := accumulator.Accumulate(record); err != nil {
			return err
		}
	}
	digest := accumulator.Render(command.Start, command.End)

	endpoints, err := scheduler.Storage.ReadDigestEndpoints(command.Key.OrgID)
	if err != nil {
		return err
	}
	if len(endpoints) == 0 {
		log.Debug().
			Str("organization", string(command.Key.OrgID)).
			Msg("Organization has no digest endpoints")
		return nil
	}

	event, err := scheduler.digestEvent(command, digest)
	if err != nil {
		return err
	}
	return scheduler.Router.Dispatch(ctx, event, endpoints, nil)
}

// digestEvent synthesizes the digest event carrying the rendered payload
func (scheduler *Scheduler) digestEvent(command types.AggregationCommand, digest DigestPayload) (types.Event, error) {
	serialized, err := json.Marshal(digest)
	if err != nil {
		return types.Event{}, err
	}
	var payload types.EventPayload
	if err := json.Unmarshal(serialized, &payload); err != nil {
		return types.Event{}, err
	}
	payload["digest_type"] = command.DigestType
	payload["source_bundle"] = command.Key.Bundle
	payload["source_application"] = command.Key.Application

	return types.Event{
		ID:          uuid.New(),
		OrgID:       command.Key.OrgID,
		Bundle:      scheduler.Bundle,
		Application: scheduler.Application,
		EventType:   scheduler.EventType,
		Timestamp:   command.End,
		Payload:     payload,
	}, nil
}
