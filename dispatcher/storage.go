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

// This source file contains an implementation of interface between Go code and
// (almost any) SQL database like PostgreSQL, SQLite, or MariaDB.
//
// It is possible to configure connection to selected database by using
// StorageConfiguration structure.

import (
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	_ "github.com/lib/pq"           // PostgreSQL database driver
	_ "github.com/mattn/go-sqlite3" // SQLite database driver

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Storage represents an interface to almost any database or storage system
type Storage interface {
	Close() error
	ReadPendingEvents() ([]types.Event, error)
	MarkEventProcessed(eventID uuid.UUID) error
	ReadTargetEndpoints(orgID types.OrgID, eventType types.EventTypeName) ([]types.Endpoint, error)
	ReadDigestEndpoints(orgID types.OrgID) ([]types.Endpoint, error)
	ReadSubscriptionState(orgID types.OrgID, eventType types.EventTypeName) (types.SubscriptionState, error)
	ReadPendingAggregationKeys(start, end time.Time) ([]types.AggregationKey, error)
	ReadAggregationRecords(key types.AggregationKey, start, end time.Time) ([]types.AggregationRecord, error)
	ReadOrgDigestMinute(orgID types.OrgID) (int, bool, error)
	WriteOrgDigestMinute(orgID types.OrgID, minute int) error
	WriteHistoryRecord(record types.HistoryRecord) error
}

// DBStorage is an implementation of Storage interface that use selected SQL like database
// like SQLite, PostgreSQL, MariaDB, RDS etc. That implementation is based on the standard
// sql package. It is possible to configure connection via Configuration structure.
type DBStorage struct {
	connection   *sql.DB
	dbDriverType types.DBDriver
}

// error messages
const (
	unableToCloseDBRowsHandle = "Unable to close DB rows handle"
)

// SQL statements
const (
	readPendingEventsQuery = `
		SELECT id, org_id, bundle, application, event_type, created_at, payload
		  FROM events
		 WHERE processed = false
		 ORDER BY created_at
`

	markEventProcessedStatement = `
		UPDATE events
		   SET processed = true
		 WHERE id = $1
`

	readTargetEndpointsQuery = `
		SELECT e.id, e.org_id, e.name, e.channel_type, e.sub_type,
		       e.recipient_settings, e.url, e.disable_ssl_verification,
		       e.secret_id, e.secret_auth_type
		  FROM endpoints e
		  JOIN event_type_endpoints ete ON ete.endpoint_id = e.id
		 WHERE e.org_id = $1
		   AND ete.event_type = $2
		   AND e.enabled = true
		 ORDER BY e.created_at
`

	readDigestEndpointsQuery = `
		SELECT id, org_id, name, channel_type, sub_type,
		       recipient_settings, url, disable_ssl_verification,
		       secret_id, secret_auth_type
		  FROM endpoints
		 WHERE org_id = $1
		   AND digest = true
		   AND enabled = true
		 ORDER BY created_at
`

	readSubscriptionStateQuery = `
		SELECT username, subscribed
		  FROM subscriptions
		 WHERE org_id = $1
		   AND event_type = $2
`

	readSubscribedByDefaultQuery = `
		SELECT subscribed_by_default
		  FROM event_types
		 WHERE name = $1
`

	readPendingAggregationKeysQuery = `
		SELECT DISTINCT org_id, bundle, application
		  FROM aggregation_records
		 WHERE created_at >= $1
		   AND created_at < $2
		 ORDER BY org_id, bundle, application
`

	readAggregationRecordsQuery = `
		SELECT org_id, bundle, application, group_key, group_name,
		       item_id, item_name, created_at
		  FROM aggregation_records
		 WHERE org_id = $1
		   AND bundle = $2
		   AND application = $3
		   AND created_at >= $4
		   AND created_at < $5
		 ORDER BY created_at
`

	readOrgDigestMinuteQuery = `
		SELECT digest_minute
		  FROM org_preferences
		 WHERE org_id = $1
`

	writeOrgDigestMinuteStatement = `
		INSERT INTO org_preferences (org_id, digest_minute)
		VALUES ($1, $2)
		ON CONFLICT (org_id) DO UPDATE SET digest_minute = $2
`

	writeHistoryRecordStatement = `
		INSERT INTO history (org_id, event_id, endpoint_id, created_at, successful, status_code, message)
		VALUES ($1, $2, $3, $4, $5, $6, $7)
`
)

// NewStorage function creates and initializes a new instance of Storage interface
func NewStorage(configuration conf.StorageConfiguration) (*DBStorage, error) {
	driverType, driverName, dataSource, err := initAndGetDriver(configuration)
	if err != nil {
		return nil, err
	}

	log.Info().Msgf(
		"Making connection to data storage, driver=%s",
		driverName,
	)

	connection, err := sql.Open(driverName, dataSource)
	if err != nil {
		log.Error().Err(err).Msg("Can not connect to data storage")
		return nil, err
	}

	return NewFromConnection(connection, driverType), nil
}

// NewFromConnection function creates and initializes a new instance of Storage interface from prepared connection
func NewFromConnection(connection *sql.DB, dbDriverType types.DBDriver) *DBStorage {
	return &DBStorage{
		connection:   connection,
		dbDriverType: dbDriverType,
	}
}

// initAndGetDriver initializes driver, checks if it's supported and returns
// driver type, driver name, dataSource and error
func initAndGetDriver(configuration conf.StorageConfiguration) (driverType types.DBDriver, driverName, dataSource string, err error) {
	driverName = configuration.Driver

	switch driverName {
	case "sqlite3":
		driverType = types.DBDriverSQLite3
		dataSource = configuration.PGDBName
	case "postgres":
		driverType = types.DBDriverPostgres
		dataSource = fmt.Sprintf(
			"postgresql://%v:%v@%v:%v/%v?%v",
			configuration.PGUsername,
			configuration.PGPassword,
			configuration.PGHost,
			configuration.PGPort,
			configuration.PGDBName,
			configuration.PGParams,
		)
	default:
		err = fmt.Errorf("driver %v is not supported", driverName)
		return
	}

	return
}

// Close method closes the connection to database. Needs to be called at the end of application lifecycle.
func (storage DBStorage) Close() error {
	log.Info().Msg("Closing connection to data storage")
	if storage.connection != nil {
		err := storage.connection.Close()
		if err != nil {
			log.Error().Err(err).Msg("Can not close connection to data storage")
			return err
		}
	}
	return nil
}

// Connection returns the storage connection, useful to run separate queries in tests
func (storage DBStorage) Connection() *sql.DB {
	return storage.connection
}

// ReadPendingEvents method reads all events not yet routed to their endpoints
func (storage DBStorage) ReadPendingEvents() ([]types.Event, error) {
	events := make([]types.Event, 0)

	rows, err := storage.connection.Query(readPendingEventsQuery)
	if err != nil {
		return events, err
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			log.Error().Err(err).Msg(unableToCloseDBRowsHandle)
		}
	}()

	for rows.Next() {
		var (
			event      types.Event
			rawID      string
			rawPayload []byte
		)
		err := rows.Scan(
			&rawID,
			&event.OrgID,
			&event.Bundle,
			&event.Application,
			&event.EventType,
			&event.Timestamp,
			&rawPayload,
		)
		if err != nil {
			return events, err
		}
		event.ID, err = uuid.Parse(rawID)
		if err != nil {
			return events, err
		}
		if len(rawPayload) > 0 {
			err = json.Unmarshal(rawPayload, &event.Payload)
			if err != nil {
				return events, err
			}
		}
		events = append(events, event)
	}

	return events, rows.Err()
}

// MarkEventProcessed method marks one event as routed so the next run skips it
func (storage DBStorage) MarkEventProcessed(eventID uuid.UUID) error {
	_, err := storage.connection.Exec(markEventProcessedStatement, eventID.String())
	return err
}

// ReadTargetEndpoints method reads all enabled endpoints linked to the given
// event type in the given organization
func (storage DBStorage) ReadTargetEndpoints(orgID types.OrgID, eventType types.EventTypeName) ([]types.Endpoint, error) {
	return storage.readEndpoints(readTargetEndpointsQuery, orgID, eventType)
}

// ReadDigestEndpoints method reads all enabled endpoints marked as digest
// targets in the given organization
func (storage DBStorage) ReadDigestEndpoints(orgID types.OrgID) ([]types.Endpoint, error) {
	return storage.readEndpoints(readDigestEndpointsQuery, orgID)
}

func (storage DBStorage) readEndpoints(query string, args ...interface{}) ([]types.Endpoint, error) {
	endpoints := make([]types.Endpoint, 0)

	rows, err := storage.connection.Query(query, args...)
	if err != nil {
		return endpoints, err
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			log.Error().Err(err).Msg(unableToCloseDBRowsHandle)
		}
	}()

	for rows.Next() {
		var (
			endpoint     types.Endpoint
			rawID        string
			rawChannel   string
			rawRecipient []byte
		)
		err := rows.Scan(
			&rawID,
			&endpoint.OrgID,
			&endpoint.Name,
			&rawChannel,
			&endpoint.SubType,
			&rawRecipient,
			&endpoint.Properties.URL,
			&endpoint.Properties.DisableSSLVerification,
			&endpoint.Properties.SecretID,
			&endpoint.Properties.SecretAuthType,
		)
		if err != nil {
			return endpoints, err
		}
		endpoint.ID, err = uuid.Parse(rawID)
		if err != nil {
			return endpoints, err
		}
		endpoint.ChannelType, err = types.ChannelTypeFromString(rawChannel)
		if err != nil {
			return endpoints, err
		}
		if len(rawRecipient) > 0 {
			err = json.Unmarshal(rawRecipient, &endpoint.RecipientSettings)
			if err != nil {
				return endpoints, err
			}
		}
		endpoints = append(endpoints, endpoint)
	}

	return endpoints, rows.Err()
}

// ReadSubscriptionState method reads the opt-in/opt-out state of one event
// type for one organization. Usernames with an explicit subscription row end
// up in Subscribers or Unsubscribers according to the stored flag.
func (storage DBStorage) ReadSubscriptionState(orgID types.OrgID, eventType types.EventTypeName) (types.SubscriptionState, error) {
	state := types.SubscriptionState{
		Subscribers:   make([]string, 0),
		Unsubscribers: make([]string, 0),
	}

	err := storage.connection.QueryRow(readSubscribedByDefaultQuery, eventType).Scan(&state.SubscribedByDefault)
	if err != nil {
		return state, err
	}

	rows, err := storage.connection.Query(readSubscriptionStateQuery, orgID, eventType)
	if err != nil {
		return state, err
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			log.Error().Err(err).Msg(unableToCloseDBRowsHandle)
		}
	}()

	for rows.Next() {
		var (
			username   string
			subscribed bool
		)
		err := rows.Scan(&username, &subscribed)
		if err != nil {
			return state, err
		}
		if subscribed {
			state.Subscribers = append(state.Subscribers, username)
		} else {
			state.Unsubscribers = append(state.Unsubscribers, username)
		}
	}

	return state, rows.Err()
}

// ReadPendingAggregationKeys method reads all distinct aggregation keys with
// at least one record created inside the given window
func (storage DBStorage) ReadPendingAggregationKeys(start, end time.Time) ([]types.AggregationKey, error) {
	keys := make([]types.AggregationKey, 0)

	rows, err := storage.connection.Query(readPendingAggregationKeysQuery, start, end)
	if err != nil {
		return keys, err
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			log.Error().Err(err).Msg(unableToCloseDBRowsHandle)
		}
	}()

	for rows.Next() {
		var key types.AggregationKey
		err := rows.Scan(&key.OrgID, &key.Bundle, &key.Application)
		if err != nil {
			return keys, err
		}
		keys = append(keys, key)
	}

	return keys, rows.Err()
}

// ReadAggregationRecords method reads all records of one aggregation key
// created inside the given window, ordered by creation time
func (storage DBStorage) ReadAggregationRecords(key types.AggregationKey, start, end time.Time) ([]types.AggregationRecord, error) {
	records := make([]types.AggregationRecord, 0)

	rows, err := storage.connection.Query(
		readAggregationRecordsQuery,
		key.OrgID, key.Bundle, key.Application, start, end,
	)
	if err != nil {
		return records, err
	}

	defer func() {
		err := rows.Close()
		if err != nil {
			log.Error().Err(err).Msg(unableToCloseDBRowsHandle)
		}
	}()

	for rows.Next() {
		var record types.AggregationRecord
		err := rows.Scan(
			&record.OrgID,
			&record.Bundle,
			&record.Application,
			&record.GroupKey,
			&record.GroupName,
			&record.ItemID,
			&record.ItemName,
			&record.CreatedAt,
		)
		if err != nil {
			return records, err
		}
		records = append(records, record)
	}

	return records, rows.Err()
}

// ReadOrgDigestMinute method reads the preferred digest minute of one
// organization. The second return value is false when the organization has
// no stored preference.
func (storage DBStorage) ReadOrgDigestMinute(orgID types.OrgID) (int, bool, error) {
	var minute int
	err := storage.connection.QueryRow(readOrgDigestMinuteQuery, orgID).Scan(&minute)
	if err == sql.ErrNoRows {
		return 0, false, nil
	}
	if err != nil {
		return 0, false, err
	}
	return minute, true, nil
}

// WriteOrgDigestMinute method stores the preferred digest minute of one
// organization, overwriting any previous preference
func (storage DBStorage) WriteOrgDigestMinute(orgID types.OrgID, minute int) error {
	_, err := storage.connection.Exec(writeOrgDigestMinuteStatement, orgID, minute)
	return err
}

// WriteHistoryRecord method stores one delivery-history row
func (storage DBStorage) WriteHistoryRecord(record types.HistoryRecord) error {
	_, err := storage.connection.Exec(
		writeHistoryRecordStatement,
		record.OrgID,
		record.EventID.String(),
		record.EndpointID.String(),
		record.CreatedAt,
		record.Successful,
		record.StatusCode,
		record.Message,
	)
	if err != nil {
		log.Error().Err(err).Msg("Unable to write history record")
	}
	return err
}
