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

// File metrics contains all metrics that needs to be exposed to Prometheus
// and indirectly to Grafana.

import (
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
	"github.com/prometheus/client_golang/prometheus/push"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/conf"
)

// Metrics names
const (
	EventsProcessedName       = "events_processed"
	EndpointsProcessedName    = "endpoints_processed"
	DeliveryClientErrorsName  = "delivery_client_errors"
	DeliveryServerErrorsName  = "delivery_server_errors"
	DisableCandidatesName     = "endpoint_disable_candidates"
	ResolutionErrorsName      = "resolution_errors"
	DigestKeysProcessedName   = "digest_keys_processed"
	DigestKeyErrorsName       = "digest_key_errors"
	ProducerSetupErrorsName   = "producer_setup_errors"
	StorageSetupErrorsName    = "storage_setup_errors"
)

// Metrics helps
const (
	EventsProcessedHelp       = "The total number of events routed to endpoints"
	EndpointsProcessedHelp    = "The total number of endpoints a payload was built for"
	DeliveryClientErrorsHelp  = "The total number of deliveries rejected by the channel with a client error"
	DeliveryServerErrorsHelp  = "The total number of deliveries that failed with a server or transport error"
	DisableCandidatesHelp     = "The total number of endpoints flagged as disable candidates"
	ResolutionErrorsHelp      = "The total number of failed recipient resolutions"
	DigestKeysProcessedHelp   = "The total number of aggregation keys processed by digest runs"
	DigestKeyErrorsHelp       = "The total number of aggregation keys that failed during digest runs"
	ProducerSetupErrorsHelp   = "The total number of errors when setting up Kafka producer"
	StorageSetupErrorsHelp    = "The total number of errors when setting up storage connection"
)

// PushGatewayClient is a simple wrapper over http.Client so that prometheus
// can do HTTP requests with the given authentication header
type PushGatewayClient struct {
	AuthToken string

	httpClient http.Client
}

// Do is a simple wrapper over http.Client.Do method that includes
// the authentication header configured in the PushGatewayClient instance
func (pgc *PushGatewayClient) Do(request *http.Request) (*http.Response, error) {
	if pgc.AuthToken != "" {
		log.Debug().Msg("Adding authorization header to HTTP request")
		request.Header.Set("Authorization", "Basic "+pgc.AuthToken)
	} else {
		log.Debug().Msg("No authorization token provided. Making HTTP request without credentials.")
	}
	log.Debug().Str("request", request.URL.String()).Str("method", request.Method).Msg("Pushing metrics to Prometheus push gateway")
	resp, err := pgc.httpClient.Do(request)
	if resp != nil {
		log.Debug().Int("code", resp.StatusCode).Msg("Returned status code")
	}
	return resp, err
}

// EventsProcessed shows number of events routed to endpoints
var EventsProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: EventsProcessedName,
	Help: EventsProcessedHelp,
})

// EndpointsProcessed shows number of endpoints a payload was built for
var EndpointsProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: EndpointsProcessedName,
	Help: EndpointsProcessedHelp,
})

// DeliveryClientErrors shows number of deliveries rejected with a client error
var DeliveryClientErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: DeliveryClientErrorsName,
	Help: DeliveryClientErrorsHelp,
})

// DeliveryServerErrors shows number of deliveries that failed with a server
// or transport error
var DeliveryServerErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: DeliveryServerErrorsName,
	Help: DeliveryServerErrorsHelp,
})

// DisableCandidates shows number of endpoints flagged as disable candidates
var DisableCandidates = promauto.NewCounter(prometheus.CounterOpts{
	Name: DisableCandidatesName,
	Help: DisableCandidatesHelp,
})

// ResolutionErrors shows number of failed recipient resolutions
var ResolutionErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: ResolutionErrorsName,
	Help: ResolutionErrorsHelp,
})

// DigestKeysProcessed shows number of aggregation keys processed by digest runs
var DigestKeysProcessed = promauto.NewCounter(prometheus.CounterOpts{
	Name: DigestKeysProcessedName,
	Help: DigestKeysProcessedHelp,
})

// DigestKeyErrors shows number of aggregation keys that failed during digest runs
var DigestKeyErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: DigestKeyErrorsName,
	Help: DigestKeyErrorsHelp,
})

// ProducerSetupErrors shows number of errors when setting up Kafka producer
var ProducerSetupErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: ProducerSetupErrorsName,
	Help: ProducerSetupErrorsHelp,
})

// StorageSetupErrors shows number of errors when setting up storage
var StorageSetupErrors = promauto.NewCounter(prometheus.CounterOpts{
	Name: StorageSetupErrorsName,
	Help: StorageSetupErrorsHelp,
})

// AddMetricsWithNamespaceAndSubsystem registers the metrics again using the
// given namespace and subsystem
func AddMetricsWithNamespaceAndSubsystem(namespace, subsystem string) {
	// Unregister all metrics and register them again
	prometheus.Unregister(EventsProcessed)
	prometheus.Unregister(EndpointsProcessed)
	prometheus.Unregister(DeliveryClientErrors)
	prometheus.Unregister(DeliveryServerErrors)
	prometheus.Unregister(DisableCandidates)
	prometheus.Unregister(ResolutionErrors)
	prometheus.Unregister(DigestKeysProcessed)
	prometheus.Unregister(DigestKeyErrors)
	prometheus.Unregister(ProducerSetupErrors)
	prometheus.Unregister(StorageSetupErrors)

	newCounter := func(name, help string) prometheus.Counter {
		return promauto.NewCounter(prometheus.CounterOpts{
			Namespace: namespace,
			Subsystem: subsystem,
			Name:      name,
			Help:      help,
		})
	}

	EventsProcessed = newCounter(EventsProcessedName, EventsProcessedHelp)
	EndpointsProcessed = newCounter(EndpointsProcessedName, EndpointsProcessedHelp)
	DeliveryClientErrors = newCounter(DeliveryClientErrorsName, DeliveryClientErrorsHelp)
	DeliveryServerErrors = newCounter(DeliveryServerErrorsName, DeliveryServerErrorsHelp)
	DisableCandidates = newCounter(DisableCandidatesName, DisableCandidatesHelp)
	ResolutionErrors = newCounter(ResolutionErrorsName, ResolutionErrorsHelp)
	DigestKeysProcessed = newCounter(DigestKeysProcessedName, DigestKeysProcessedHelp)
	DigestKeyErrors = newCounter(DigestKeyErrorsName, DigestKeyErrorsHelp)
	ProducerSetupErrors = newCounter(ProducerSetupErrorsName, ProducerSetupErrorsHelp)
	StorageSetupErrors = newCounter(StorageSetupErrorsName, StorageSetupErrorsHelp)
}

// PushCollectedMetrics function pushes the metrics to the configured
// prometheus push gateway
func PushCollectedMetrics(metricsConf conf.MetricsConfiguration) error {
	client := PushGatewayClient{metricsConf.GatewayAuthToken, http.Client{}}

	// Creates a pusher to the gateway "$PUSHGW_URL/metrics/job/$(job_name)
	return push.New(metricsConf.GatewayURL, metricsConf.Job).
		Collector(EventsProcessed).
		Collector(EndpointsProcessed).
		Collector(DeliveryClientErrors).
		Collector(DeliveryServerErrors).
		Collector(DisableCandidates).
		Collector(ResolutionErrors).
		Collector(DigestKeysProcessed).
		Collector(DigestKeyErrors).
		Collector(ProducerSetupErrors).
		Collector(StorageSetupErrors).
		Client(&client).
		Push()
}
