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

// Package types contains declaration of various data types (usually
// structures) used elsewhere in the notifications dispatcher code.
package types

import (
	"fmt"
	"time"

	"github.com/google/uuid"
)

// OrgID data type represents organization ID.
type OrgID string

// UserID data type represents identity of one user in the user directory.
type UserID string

// EventTypeName represents the name of an event type within one application.
type EventTypeName string

// EndpointID represents unique identifier of one integration endpoint.
type EndpointID = uuid.UUID

// GroupID represents unique identifier of one user group in the directory.
type GroupID = uuid.UUID

// ProducerMessage represents a message body to be produced to a message broker.
type ProducerMessage []byte

// ChannelType type for delivery channel enum
type ChannelType int

// All delivery channels the dispatcher knows how to route payloads to
const (
	// WebhookChannel delivers to a customer-provided HTTP endpoint
	WebhookChannel ChannelType = iota
	// EmailChannel delivers through the platform email connector
	EmailChannel
	// DrawerChannel delivers to the in-app notification drawer
	DrawerChannel
	// SlackChannel delivers to a Slack incoming webhook
	SlackChannel
	// TeamsChannel delivers to a Microsoft Teams webhook
	TeamsChannel
	// GoogleChatChannel delivers to a Google Chat webhook
	GoogleChatChannel
	// PagerDutyChannel delivers to the PagerDuty Events API
	PagerDutyChannel
)

// Channel types string representation
const (
	channelTypeWebhook    = "webhook"
	channelTypeEmail      = "email"
	channelTypeDrawer     = "drawer"
	channelTypeSlack      = "slack"
	channelTypeTeams      = "teams"
	channelTypeGoogleChat = "google_chat"
	channelTypePagerDuty  = "pagerduty"
)

// String function returns string representation of given channel type
func (c ChannelType) String() string {
	return [...]string{
		channelTypeWebhook,
		channelTypeEmail,
		channelTypeDrawer,
		channelTypeSlack,
		channelTypeTeams,
		channelTypeGoogleChat,
		channelTypePagerDuty,
	}[c]
}

// ChannelTypeFromString function returns the channel type stored under the
// given name, typically read from the endpoints table.
func ChannelTypeFromString(value string) (ChannelType, error) {
	switch value {
	case channelTypeWebhook:
		return WebhookChannel, nil
	case channelTypeEmail:
		return EmailChannel, nil
	case channelTypeDrawer:
		return DrawerChannel, nil
	case channelTypeSlack:
		return SlackChannel, nil
	case channelTypeTeams:
		return TeamsChannel, nil
	case channelTypeGoogleChat:
		return GoogleChatChannel, nil
	case channelTypePagerDuty:
		return PagerDutyChannel, nil
	default:
		return 0, fmt.Errorf("unknown channel type: %s", value)
	}
}

// NeedsRecipients function reports whether targets of this channel carry
// recipient settings that have to be resolved before a payload can be built.
// Webhook-style channels deliver to one configured URL and skip resolution.
func (c ChannelType) NeedsRecipients() bool {
	return c == EmailChannel || c == DrawerChannel
}

// DigestType represents the allowed digest periods
type DigestType int

// Digest types as enum
const (
	DailyDigest DigestType = iota
	WeeklyDigest
)

// Digest types string representation
const (
	digestTypeDaily  = "daily"
	digestTypeWeekly = "weekly"
)

// String function returns string representation of given digest type
func (d DigestType) String() string {
	return [...]string{digestTypeDaily, digestTypeWeekly}[d]
}

// Period function returns the length of the aggregation window for given
// digest type
func (d DigestType) Period() time.Duration {
	return [...]time.Duration{24 * time.Hour, 7 * 24 * time.Hour}[d]
}

// User represents one user entry returned by the user directory. The
// dispatcher treats it as read-only.
type User struct {
	ID        UserID `json:"id"`
	Username  string `json:"username"`
	Email     string `json:"email"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Active    bool   `json:"active"`
	Admin     bool   `json:"admin"`
}

// RecipientSettings is an immutable value object attached to one endpoint or
// to the triggering event, describing who should be notified. GroupID set to
// nil means organization-wide resolution; the two paths are never combined.
type RecipientSettings struct {
	OnlyAdmins            bool     `json:"only_admins"`
	IgnoreUserPreferences bool     `json:"ignore_user_preferences"`
	GroupID               *GroupID `json:"group_id,omitempty"`
	Users                 []string `json:"users,omitempty"`
	Emails                []string `json:"emails,omitempty"`
}

// SubscriptionState represents per-event-type opt-in/opt-out data. It is
// supplied by the caller, the resolver does not own it.
type SubscriptionState struct {
	Subscribers         []string `json:"subscribers"`
	Unsubscribers       []string `json:"unsubscribers"`
	SubscribedByDefault bool     `json:"subscribed_by_default"`
}

// AuthorizationCriterion narrows a resolved recipient set to subjects the
// authorization service confirms hold Relation on (AssetType, AssetID).
type AuthorizationCriterion struct {
	AssetType string `json:"asset_type"`
	AssetID   string `json:"asset_id"`
	Relation  string `json:"relation"`
}

// DeliveryProperties holds channel-specific delivery metadata of one
// endpoint. The dispatcher forwards these opaquely; only connectors
// interpret them.
type DeliveryProperties struct {
	URL                    string `json:"url"`
	DisableSSLVerification bool   `json:"disable_ssl_verification"`
	SecretID               string `json:"secret_id,omitempty"`
	SecretAuthType         string `json:"secret_auth_type,omitempty"`
}

// Endpoint represents one delivery target configured for an organization
type Endpoint struct {
	ID                EndpointID
	OrgID             OrgID
	Name              string
	ChannelType       ChannelType
	SubType           string
	RecipientSettings []RecipientSettings
	Properties        DeliveryProperties
}

// EventPayload is the opaque content map carried by an event
type EventPayload map[string]interface{}

// Event represents one event produced by an upstream application
type Event struct {
	ID          uuid.UUID
	OrgID       OrgID
	Bundle      string
	Application string
	EventType   EventTypeName
	Timestamp   time.Time
	Payload     EventPayload
}

// AggregationKey groups individual events for digesting
type AggregationKey struct {
	OrgID       OrgID  `json:"org_id"`
	Bundle      string `json:"bundle"`
	Application string `json:"application"`
}

// AggregationCommand is created by the digest scheduler and consumed by the
// aggregation engine. It is short-lived and not persisted beyond the run.
type AggregationCommand struct {
	Key        AggregationKey `json:"aggregation_key"`
	Start      time.Time      `json:"start"`
	End        time.Time      `json:"end"`
	DigestType string         `json:"digest_type"`
}

// AggregationRecord is one per-event record pending aggregation. GroupKey
// identifies the sub-entity the digest groups by (e.g. a policy) and ItemID
// the affected item (e.g. a host).
type AggregationRecord struct {
	OrgID       OrgID
	Bundle      string
	Application string
	GroupKey    string
	GroupName   string
	ItemID      string
	ItemName    string
	CreatedAt   time.Time
}

// DeliveryOutcome is reported by a channel connector back to the router and
// the history recorder
type DeliveryOutcome struct {
	Successful bool   `json:"successful"`
	Message    string `json:"message"`
	StatusCode int    `json:"status_code,omitempty"`
}

// AuthenticationDescriptor names a stored secret and its expected
// authentication type. The secret value itself never travels through the
// dispatcher.
type AuthenticationDescriptor struct {
	SecretID string `json:"secret_id"`
	Type     string `json:"type"`
}

// DeliveryMetadata carries the channel-specific delivery properties of one
// payload in the cross-connector contract shape
type DeliveryMetadata struct {
	URL            string                    `json:"url,omitempty"`
	TrustAll       bool                      `json:"trust_all"`
	Authentication *AuthenticationDescriptor `json:"authentication,omitempty"`
}

// DeliveryPayload is the channel-specific payload the router forwards to one
// connector. Field names are part of the cross-adapter contract and must be
// kept stable.
type DeliveryPayload struct {
	OrgID             OrgID               `json:"org_id"`
	EndpointID        string              `json:"endpoint_id"`
	EventID           string              `json:"event_id"`
	Bundle            string              `json:"bundle"`
	Application       string              `json:"application"`
	EventType         EventTypeName       `json:"event_type"`
	Timestamp         string              `json:"timestamp"`
	Payload           EventPayload        `json:"payload"`
	Metadata          DeliveryMetadata    `json:"metadata"`
	RecipientSettings []RecipientSettings `json:"recipient_settings,omitempty"`
	Recipients        []string            `json:"recipients,omitempty"`
	Subject           string              `json:"subject,omitempty"`
	Body              string              `json:"body,omitempty"`
}

// HistoryRecord represents one delivery-history row written after every
// delivery attempt
type HistoryRecord struct {
	OrgID      OrgID
	EventID    uuid.UUID
	EndpointID EndpointID
	CreatedAt  time.Time
	Successful bool
	StatusCode int
	Message    string
}

// DBDriver type for db driver enum
type DBDriver int

const (
	// DBDriverSQLite3 shows that db driver is sqlite
	DBDriverSQLite3 DBDriver = iota
	// DBDriverPostgres shows that db driver is postgres
	DBDriverPostgres
	// DBDriverGeneral general sql (used for mock now)
	DBDriverGeneral
)

// CliFlags represents structure holding all command line arguments/flags.
type CliFlags struct {
	ProcessEvents     bool
	DailyDigest       bool
	WeeklyDigest      bool
	ShowVersion       bool
	ShowAuthors       bool
	ShowConfiguration bool
	Verbose           bool
}
