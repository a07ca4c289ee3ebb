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
	"encoding/json"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/producer"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Connector hands one payload over to the external machinery that performs
// the actual delivery on a single channel type
type Connector interface {
	Deliver(ctx context.Context, payload types.DeliveryPayload) types.DeliveryOutcome
}

// KafkaConnector forwards delivery payloads to the channel-specific connector
// topic. The consumer on the other side owns the actual HTTP call, SMTP
// session, or chat API interaction.
type KafkaConnector struct {
	Channel  types.ChannelType
	Topic    string
	Producer producer.Producer
}

// NewKafkaConnector constructs a connector producing to topicPrefix followed
// by the channel name
func NewKafkaConnector(channel types.ChannelType, topicPrefix string, kafkaProducer producer.Producer) *KafkaConnector {
	return &KafkaConnector{
		Channel:  channel,
		Topic:    topicPrefix + channel.String(),
		Producer: kafkaProducer,
	}
}

// Deliver serializes the payload and produces it to the connector topic
func (connector *KafkaConnector) Deliver(_ context.Context, payload types.DeliveryPayload) types.DeliveryOutcome {
	message, err := json.Marshal(payload)
	if err != nil {
		return types.DeliveryOutcome{Successful: false, Message: err.Error()}
	}

	partition, offset, err := connector.Producer.ProduceMessage(connector.Topic, message)
	if err != nil {
		log.Error().
			Err(err).
			Str("topic", connector.Topic).
			Msg("Unable to produce payload to connector topic")
		return types.DeliveryOutcome{Successful: false, Message: err.Error()}
	}

	log.Debug().
		Str("topic", connector.Topic).
		Int32("partition", partition).
		Int64("offset", offset).
		Msg("Payload produced to connector topic")
	return types.DeliveryOutcome{Successful: true, Message: "forwarded to connector"}
}
