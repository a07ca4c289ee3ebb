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

// Package dispatcher routes notification events to their configured channel
// endpoints. It owns the event fan-out, the per-endpoint error counters, the
// delivery history, and the storage layer shared with the digest machinery.
package dispatcher

import (
	"context"
	"flag"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/authorization"
	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/directory"
	"github.com/RedHatInsights/notifications-dispatcher/producer"
	"github.com/RedHatInsights/notifications-dispatcher/producer/disabled"
	"github.com/RedHatInsights/notifications-dispatcher/producer/kafka"
	"github.com/RedHatInsights/notifications-dispatcher/recipients"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Exit codes
const (
	// ExitStatusOK means that the tool finished with success
	ExitStatusOK = iota
	// ExitStatusConfiguration is an error code related to program configuration
	ExitStatusConfiguration
	// ExitStatusError is a general error code
	ExitStatusError
	// ExitStatusStorageError is returned in case of any storage-related error
	ExitStatusStorageError
	// ExitStatusKafkaBrokerError is for kafka broker connection establishment errors
	ExitStatusKafkaBrokerError
	// ExitStatusKafkaProducerError is for kafka payload production failures
	ExitStatusKafkaProducerError
	// ExitStatusMetricsError is raised when prometheus metrics cannot be pushed
	ExitStatusMetricsError
	// ExitStatusDispatchError is raised when events could not be routed to all their endpoints
	ExitStatusDispatchError
	// ExitStatusDigestError is raised when a digest run did not complete for all aggregation keys
	ExitStatusDigestError
)

// Messages
const (
	versionMessage           = "Notifications dispatcher version 1.0"
	authorsMessage           = "Red Hat Inc."
	separator                = "------------------------------------------------------------"
	operationFailedMessage   = "Operation failed"
	metricsPushFailedMessage = "Couldn't push prometheus metrics"
)

// Configuration-related constants
const (
	configFileEnvVariableName = "NOTIFICATIONS_DISPATCHER_CONFIG_FILE"
	defaultConfigFileName     = "config"
)

// connectorChannels lists the channel types a connector is registered for
var connectorChannels = []types.ChannelType{
	types.WebhookChannel,
	types.EmailChannel,
	types.DrawerChannel,
	types.SlackChannel,
	types.TeamsChannel,
	types.GoogleChatChannel,
	types.PagerDutyChannel,
}

// showVersion function displays version information.
func showVersion() {
	fmt.Println(versionMessage)
}

// showAuthors function displays information about authors.
func showAuthors() {
	fmt.Println(authorsMessage)
}

// showConfiguration function displays actual configuration.
func showConfiguration(config conf.ConfigStruct) {
	brokerConfig := conf.GetKafkaBrokerConfiguration(config)
	log.Info().
		Bool("Enabled", brokerConfig.Enabled).
		Str("Addresses", brokerConfig.Addresses).
		Str("SecurityProtocol", brokerConfig.SecurityProtocol).
		Str("SaslMechanism", brokerConfig.SaslMechanism).
		Str("TopicPrefix", brokerConfig.TopicPrefix).
		Str("Timeout", brokerConfig.Timeout.String()).
		Msg("Broker configuration")

	storageConfig := conf.GetStorageConfiguration(config)
	log.Info().
		Str("Driver", storageConfig.Driver).
		Str("DB Name", storageConfig.PGDBName).
		Str("Username", storageConfig.PGUsername). // password is omitted on purpose
		Str("Host", storageConfig.PGHost).
		Int("Port", storageConfig.PGPort).
		Bool("LogSQLQueries", storageConfig.LogSQLQueries).
		Str("Parameters", storageConfig.PGParams).
		Msg("Storage configuration")

	directoryConfig := conf.GetDirectoryConfiguration(config)
	log.Info().
		Str("URL", directoryConfig.URL).
		Str("Timeout", directoryConfig.Timeout.String()).
		Int("MaxRetries", directoryConfig.MaxRetries).
		Int("PageSize", directoryConfig.PageSize).
		Msg("Directory configuration")

	authorizationConfig := conf.GetAuthorizationConfiguration(config)
	log.Info().
		Bool("Enabled", authorizationConfig.Enabled).
		Str("URL", authorizationConfig.URL).
		Str("Timeout", authorizationConfig.Timeout.String()).
		Int("MaxRetries", authorizationConfig.MaxRetries).
		Msg("Authorization configuration")

	notificationsConfig := conf.GetNotificationsConfiguration(config)
	log.Info().
		Str("DigestBundle", notificationsConfig.DigestBundle).
		Str("DigestApplication", notificationsConfig.DigestApplication).
		Str("DigestEventType", notificationsConfig.DigestEventType).
		Str("DefaultDigestTime", notificationsConfig.DefaultDigestTime).
		Int("Concurrency", notificationsConfig.Concurrency).
		Int("MaxServerErrors", notificationsConfig.MaxServerErrors).
		Msg("Notifications configuration")

	loggingConfig := conf.GetLoggingConfiguration(config)
	log.Info().
		Str("Level", loggingConfig.LogLevel).
		Bool("Pretty colored debug logging", loggingConfig.Debug).
		Msg("Logging configuration")

	metricsConfig := conf.GetMetricsConfiguration(config)
	log.Info().
		Str("Job", metricsConfig.Job).
		Str("Namespace", metricsConfig.Namespace).
		Str("Subsystem", metricsConfig.Subsystem).
		Str("Push gateway", metricsConfig.GatewayURL).
		Int("Retries", metricsConfig.Retries).
		Str("Retry after", metricsConfig.RetryAfter.String()).
		Msg("Metrics configuration")
}

// checkArgs function handles command line options passed to the process
func checkArgs(args *types.CliFlags) {
	switch {
	case args.ShowVersion:
		showVersion()
		os.Exit(ExitStatusOK)
	case args.ShowAuthors:
		showAuthors()
		os.Exit(ExitStatusOK)
	case args.ShowConfiguration:
		// config not loaded yet, just skip the rest of function for
		// now
		return
	default:
	}

	// check if operation mode is specified on command line
	if !args.ProcessEvents && !args.DailyDigest && !args.WeeklyDigest {
		log.Error().Msg("Operation mode needs to be specified on command line")
		os.Exit(ExitStatusConfiguration)
	}
}

// ConvertLogLevel function converts log level specified in configuration file
// into log level used by zerolog
func ConvertLogLevel(level string) zerolog.Level {
	level = strings.ToLower(strings.TrimSpace(level))
	switch level {
	case "debug":
		return zerolog.DebugLevel
	case "info":
		return zerolog.InfoLevel
	case "warn", "warning":
		return zerolog.WarnLevel
	case "error":
		return zerolog.ErrorLevel
	case "fatal":
		return zerolog.FatalLevel
	}

	return zerolog.DebugLevel
}

// registerMetrics registers metrics using the provided namespace, if any
func registerMetrics(metricsConfig conf.MetricsConfiguration) {
	if metricsConfig.Namespace != "" {
		log.Info().Str("namespace", metricsConfig.Namespace).Msg("Setting metrics namespace")
		AddMetricsWithNamespaceAndSubsystem(
			metricsConfig.Namespace,
			metricsConfig.Subsystem)
	}
}

// setupPayloadProducer constructs the Kafka producer that forwards delivery
// payloads to the channel connectors. A disabled producer is returned when
// the broker is turned off in configuration.
func setupPayloadProducer(config conf.ConfigStruct) producer.Producer {
	if !conf.GetKafkaBrokerConfiguration(config).Enabled {
		log.Info().Msg("Kafka broker disabled, deliveries will be dropped")
		return &disabled.Producer{}
	}
	kafkaProducer, err := kafka.New(config)
	if err != nil {
		ProducerSetupErrors.Inc()
		log.Error().Err(err).Msg("Couldn't initialize Kafka producer with the provided configuration")
		os.Exit(ExitStatusKafkaBrokerError)
	}
	return kafkaProducer
}

// setupConnectors registers one Kafka connector per supported channel type
func setupConnectors(config conf.ConfigStruct, payloadProducer producer.Producer) map[types.ChannelType]Connector {
	topicPrefix := conf.GetKafkaBrokerConfiguration(config).TopicPrefix
	connectors := make(map[types.ChannelType]Connector, len(connectorChannels))
	for _, channel := range connectorChannels {
		connectors[channel] = NewKafkaConnector(channel, topicPrefix, payloadProducer)
	}
	return connectors
}

// setupResolver constructs the recipient resolver over the directory and
// authorization clients
func setupResolver(config conf.ConfigStruct) *recipients.Resolver {
	directoryClient := directory.NewClient(conf.GetDirectoryConfiguration(config))

	var authorizationClient authorization.Client
	authorizationConfig := conf.GetAuthorizationConfiguration(config)
	if authorizationConfig.Enabled {
		authorizationClient = authorization.NewClient(authorizationConfig)
	}

	return recipients.NewResolver(directoryClient, authorizationClient)
}

// setupRouter wires the router over all its collaborators
func setupRouter(config conf.ConfigStruct, storage Storage, payloadProducer producer.Producer) *Router {
	notificationsConfig := conf.GetNotificationsConfiguration(config)
	return NewRouter(
		setupConnectors(config, payloadProducer),
		setupResolver(config),
		storage,
		NewCounterStore(),
		notificationsConfig.Concurrency,
		notificationsConfig.MaxServerErrors,
	)
}

// ProcessEvents routes all pending events to their target endpoints. Every
// event is attempted and marked processed even when some of its endpoints
// fail, so a broken endpoint can not wedge the queue. The returned error
// reports how many events had at least one failed delivery.
func ProcessEvents(ctx context.Context, storage Storage, router *Router) error {
	events, err := storage.ReadPendingEvents()
	if err != nil {
		log.Err(err).Msg(operationFailedMessage)
		return err
	}
	log.Info().Int("events", len(events)).Msg("Read pending events")

	failed := 0
	for _, event := range events {
		endpoints, err := storage.ReadTargetEndpoints(event.OrgID, event.EventType)
		if err != nil {
			log.Error().
				Err(err).
				Str("event", event.ID.String()).
				Msg("Unable to read target endpoints")
			failed++
			continue
		}

		if err := router.Dispatch(ctx, event, endpoints, nil); err != nil {
			// per-endpoint failures were already logged and counted,
			// the event itself is still considered handled
			failed++
		}

		if err := storage.MarkEventProcessed(event.ID); err != nil {
			log.Error().
				Err(err).
				Str("event", event.ID.String()).
				Msg("Unable to mark event as processed")
		}
	}

	if failed > 0 {
		return fmt.Errorf("%d of %d events had failed deliveries", failed, len(events))
	}
	return nil
}

func closeStorage(storage Storage) error {
	err := storage.Close()
	if err != nil {
		log.Err(err).Msg(operationFailedMessage)
		return &StorageError{Err: err}
	}
	return nil
}

func closeProducer(payloadProducer producer.Producer) error {
	err := payloadProducer.Close()
	if err != nil {
		log.Err(err).Msg(operationFailedMessage)
		return &KafkaBrokerError{Err: err}
	}
	return nil
}

// PushMetricsWithRetries pushes the collected metrics to the configured
// gateway, retrying on failure according to configuration
func PushMetricsWithRetries(metricsConf conf.MetricsConfiguration) error {
	err := PushCollectedMetrics(metricsConf)
	if err != nil {
		log.Err(err).Msg(metricsPushFailedMessage)
		if metricsConf.RetryAfter == 0 || metricsConf.Retries == 0 {
			return &MetricsError{Err: err}
		}
		for i := metricsConf.Retries; i > 0; i-- {
			time.Sleep(metricsConf.RetryAfter)
			log.Info().Msgf("Push metrics. Retrying (%d/%d attempts left)", i, metricsConf.Retries)
			err = PushCollectedMetrics(metricsConf)
			if err == nil {
				log.Info().Msg("Metrics pushed successfully")
				return nil
			}
			log.Err(err).Msg(metricsPushFailedMessage)
		}
		return &MetricsError{Err: err}
	}
	log.Info().Msg("Metrics pushed successfully")
	return nil
}

// StartDispatcher runs the dispatcher in the mode selected by command line
// flags and returns the exit code for main
func StartDispatcher(config conf.ConfigStruct, storage Storage, cliFlags types.CliFlags, digestRun func(ctx context.Context, router *Router, fireTime time.Time, daily bool) error) int {
	log.Info().Msg("Dispatcher started")
	log.Info().Msg(separator)

	if cliFlags.Verbose {
		showConfiguration(config)
	}

	registerMetrics(conf.GetMetricsConfiguration(config))

	payloadProducer := setupPayloadProducer(config)
	router := setupRouter(config, storage, payloadProducer)

	ctx := context.Background()
	exitCode := ExitStatusOK

	switch {
	case cliFlags.ProcessEvents:
		log.Info().Msg("Routing pending events to endpoints")
		if err := ProcessEvents(ctx, storage, router); err != nil {
			exitCode = ExitStatusDispatchError
		}
	case cliFlags.DailyDigest, cliFlags.WeeklyDigest:
		log.Info().Msg("Starting digest run")
		if err := digestRun(ctx, router, time.Now().UTC(), cliFlags.DailyDigest); err != nil {
			log.Err(err).Msg(operationFailedMessage)
			exitCode = ExitStatusDigestError
		}
	}

	log.Info().Msg(separator)
	if err := closeStorage(storage); err != nil && exitCode == ExitStatusOK {
		exitCode = ExitStatusStorageError
	}
	if err := closeProducer(payloadProducer); err != nil && exitCode == ExitStatusOK {
		exitCode = ExitStatusKafkaBrokerError
	}

	log.Info().Msg("Dispatcher finished. Pushing metrics to the configured prometheus gateway.")
	if err := PushMetricsWithRetries(conf.GetMetricsConfiguration(config)); err != nil && exitCode == ExitStatusOK {
		exitCode = ExitStatusMetricsError
	}
	log.Info().Msg(separator)
	return exitCode
}

// Run function is entry point to the dispatcher
func Run(digestRun func(ctx context.Context, storage Storage, router *Router, config conf.ConfigStruct, fireTime time.Time, daily bool) error) {
	var cliFlags types.CliFlags

	// define and parse all command line options
	flag.BoolVar(&cliFlags.ProcessEvents, "process-events", false, "route pending events to their endpoints")
	flag.BoolVar(&cliFlags.DailyDigest, "daily-digest", false, "perform a daily digest run")
	flag.BoolVar(&cliFlags.WeeklyDigest, "weekly-digest", false, "perform a weekly digest run")
	flag.BoolVar(&cliFlags.ShowVersion, "show-version", false, "show version and exit")
	flag.BoolVar(&cliFlags.ShowAuthors, "show-authors", false, "show authors and exit")
	flag.BoolVar(&cliFlags.ShowConfiguration, "show-configuration", false, "show configuration and exit")
	flag.BoolVar(&cliFlags.Verbose, "verbose", false, "verbose logs")
	flag.Parse()
	checkArgs(&cliFlags)

	// config has exactly the same structure as *.toml file
	config, err := conf.LoadConfiguration(configFileEnvVariableName, defaultConfigFileName)
	if err != nil {
		log.Err(err).Msg("Load configuration")
		os.Exit(ExitStatusConfiguration)
	}

	// configuration is loaded, so it would be possible to display it if
	// asked by user
	if cliFlags.ShowConfiguration {
		showConfiguration(config)
		os.Exit(ExitStatusOK)
	}

	if config.Logging.Debug {
		log.Logger = log.Output(zerolog.ConsoleWriter{Out: os.Stderr})
	}

	logLevel := ConvertLogLevel(config.Logging.LogLevel)
	zerolog.SetGlobalLevel(logLevel)
	log.Info().
		Str("configured", config.Logging.LogLevel).
		Int("internal", int(logLevel)).
		Msg("Log level")

	// prepare the storage
	storageConfiguration := conf.GetStorageConfiguration(config)
	storage, err := NewStorage(storageConfiguration)
	if err != nil {
		StorageSetupErrors.Inc()
		log.Err(err).Msg(operationFailedMessage)
		os.Exit(ExitStatusStorageError)
	}

	wrapped := func(ctx context.Context, router *Router, fireTime time.Time, daily bool) error {
		return digestRun(ctx, storage, router, config, fireTime, daily)
	}
	os.Exit(StartDispatcher(config, storage, cliFlags, wrapped))
}
