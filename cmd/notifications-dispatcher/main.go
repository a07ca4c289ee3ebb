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

// Entry point to the notifications dispatcher.
//
// The purpose of this service is to route notification events produced by
// upstream applications to the channel endpoints configured by each
// organization, and to produce periodic digest notifications summarizing the
// events of an aggregation window. The "process events" mode runs as a
// cronjob and forwards a delivery payload to the channel connector topics on
// the configured Kafka broker for every pending event and endpoint. The
// digest modes fold the pending aggregation records of each organization into
// one digest event and route it the same way.
//
// Additionally this service exposes several metrics about routed events and
// delivery outcomes. These metrics can be aggregated by Prometheus and
// displayed by Grafana tools.
package main

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/aggregator"
	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/dispatcher"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// defaultDigestMinute parses the configured default digest time ("HH:MM")
// and returns its minute component. An unset or invalid value falls back to
// minute zero.
func defaultDigestMinute(config conf.NotificationsConfiguration) int {
	parsed, err := time.Parse("15:04", config.DefaultDigestTime)
	if err != nil {
		log.Warn().
			Str("configured", config.DefaultDigestTime).
			Msg("Unable to parse default digest time, falling back to minute 0")
		return 0
	}
	minute := parsed.Minute()
	if err := aggregator.ValidateDigestMinute(minute); err != nil {
		log.Warn().Err(err).Msg("Configured default digest time rejected, falling back to minute 0")
		return 0
	}
	return minute
}

func runDigest(ctx context.Context, storage dispatcher.Storage, router *dispatcher.Router, config conf.ConfigStruct, fireTime time.Time, daily bool) error {
	notificationsConfig := conf.GetNotificationsConfiguration(config)
	scheduler := aggregator.NewScheduler(
		storage,
		router,
		notificationsConfig.DigestBundle,
		notificationsConfig.DigestApplication,
		notificationsConfig.DigestEventType,
		defaultDigestMinute(notificationsConfig),
		notificationsConfig.Concurrency,
	)

	digestType := types.WeeklyDigest
	if daily {
		digestType = types.DailyDigest
	}
	return scheduler.Run(ctx, fireTime, digestType)
}

func main() {
	dispatcher.Run(runDigest)
}
