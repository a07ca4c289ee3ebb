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

package conf

// This source file contains definition of data type named ConfigStruct that
// represents configuration of the notifications dispatcher. This source file
// also contains function named LoadConfiguration that can be used to load
// configuration from provided configuration file and/or from environment
// variables. Additionally several specific functions named
// GetStorageConfiguration, GetLoggingConfiguration,
// GetKafkaBrokerConfiguration, GetDirectoryConfiguration,
// GetAuthorizationConfiguration, GetNotificationsConfiguration and
// GetMetricsConfiguration are to be used to return specific configuration
// options.

// Default name of configuration file is config.toml
// It can be changed via environment variable NOTIFICATIONS_DISPATCHER_CONFIG_FILE

// An example of configuration file that can be used in devel environment:
//
// [storage]
// db_driver = "postgres"
// pg_username = "user"
// pg_password = "password"
// pg_host = "localhost"
// pg_port = 5432
// pg_db_name = "notifications"
// pg_params = "sslmode=disable"
// log_sql_queries = true
//
// [logging]
// debug = true
// log_level = ""

import (
	"bytes"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
	clowder "github.com/redhatinsights/app-common-go/pkg/api/v1"

	"github.com/rs/zerolog/log"
	"github.com/spf13/viper"
)

// ConfigStruct is a structure holding the whole notifications dispatcher
// configuration
type ConfigStruct struct {
	Logging       LoggingConfiguration       `mapstructure:"logging" toml:"logging"`
	Storage       StorageConfiguration       `mapstructure:"storage" toml:"storage"`
	Kafka         KafkaConfiguration         `mapstructure:"kafka_broker" toml:"kafka_broker"`
	Directory     DirectoryConfiguration     `mapstructure:"directory" toml:"directory"`
	Authorization AuthorizationConfiguration `mapstructure:"authorization" toml:"authorization"`
	Notifications NotificationsConfiguration `mapstructure:"notifications" toml:"notifications"`
	Metrics       MetricsConfiguration       `mapstructure:"metrics" toml:"metrics"`
}

// LoggingConfiguration represents configuration for logging in general
type LoggingConfiguration struct {
	// Debug enables pretty colored logging
	Debug bool `mapstructure:"debug" toml:"debug"`

	// LogLevel sets logging level to show. Possible values are:
	// "debug"
	// "info"
	// "warn", "warning"
	// "error"
	// "fatal"
	//
	// logging level won't be changed if value is not one of listed above
	LogLevel string `mapstructure:"log_level" toml:"log_level"`
}

// StorageConfiguration represents configuration of postgresQSL data storage
type StorageConfiguration struct {
	Driver        string `mapstructure:"db_driver"       toml:"db_driver"`
	PGUsername    string `mapstructure:"pg_username"     toml:"pg_username"`
	PGPassword    string `mapstructure:"pg_password"     toml:"pg_password"`
	PGHost        string `mapstructure:"pg_host"         toml:"pg_host"`
	PGPort        int    `mapstructure:"pg_port"         toml:"pg_port"`
	PGDBName      string `mapstructure:"pg_db_name"      toml:"pg_db_name"`
	PGParams      string `mapstructure:"pg_params"       toml:"pg_params"`
	LogSQLQueries bool   `mapstructure:"log_sql_queries" toml:"log_sql_queries"`
}

// KafkaConfiguration represents configuration of Kafka brokers and topics
// used to forward delivery payloads to the channel connectors
type KafkaConfiguration struct {
	Enabled          bool          `mapstructure:"enabled"           toml:"enabled"`
	Addresses        string        `mapstructure:"addresses"         toml:"addresses"`
	SecurityProtocol string        `mapstructure:"security_protocol" toml:"security_protocol"`
	CertPath         string        `mapstructure:"cert_path"         toml:"cert_path"`
	SaslMechanism    string        `mapstructure:"sasl_mechanism"    toml:"sasl_mechanism"`
	SaslUsername     string        `mapstructure:"sasl_username"     toml:"sasl_username"`
	SaslPassword     string        `mapstructure:"sasl_password"     toml:"sasl_password"`
	TopicPrefix      string        `mapstructure:"topic_prefix"      toml:"topic_prefix"`
	Timeout          time.Duration `mapstructure:"timeout"           toml:"timeout"`
}

// DirectoryConfiguration represents configuration of the user directory
// service consumed by the recipient resolver
type DirectoryConfiguration struct {
	URL            string        `mapstructure:"url"              toml:"url"`
	Timeout        time.Duration `mapstructure:"timeout"          toml:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"      toml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" toml:"retry_base_delay"`
	PageSize       int           `mapstructure:"page_size"        toml:"page_size"`
}

// AuthorizationConfiguration represents configuration of the lookup-subjects
// authorization service
type AuthorizationConfiguration struct {
	Enabled        bool          `mapstructure:"enabled"          toml:"enabled"`
	URL            string        `mapstructure:"url"              toml:"url"`
	Timeout        time.Duration `mapstructure:"timeout"          toml:"timeout"`
	MaxRetries     int           `mapstructure:"max_retries"      toml:"max_retries"`
	RetryBaseDelay time.Duration `mapstructure:"retry_base_delay" toml:"retry_base_delay"`
}

// NotificationsConfiguration represents the configuration specific to event
// dispatch and digest runs
type NotificationsConfiguration struct {
	DigestBundle      string `mapstructure:"digest_bundle"       toml:"digest_bundle"`
	DigestApplication string `mapstructure:"digest_application"  toml:"digest_application"`
	DigestEventType   string `mapstructure:"digest_event_type"   toml:"digest_event_type"`
	DefaultDigestTime string `mapstructure:"default_digest_time" toml:"default_digest_time"`
	Concurrency       int    `mapstructure:"concurrency"         toml:"concurrency"`
	MaxServerErrors   int    `mapstructure:"max_server_errors"   toml:"max_server_errors"`
}

// MetricsConfiguration holds metrics related configuration
type MetricsConfiguration struct {
	Job              string        `mapstructure:"job_name" toml:"job_name"`
	Namespace        string        `mapstructure:"namespace" toml:"namespace"`
	Subsystem        string        `mapstructure:"subsystem" toml:"subsystem"`
	GatewayURL       string        `mapstructure:"gateway_url" toml:"gateway_url"`
	GatewayAuthToken string        `mapstructure:"gateway_auth_token" toml:"gateway_auth_token"`
	Retries          int           `mapstructure:"retries" toml:"retries"`
	RetryAfter       time.Duration `mapstructure:"retry_after" toml:"retry_after"`
}

// LoadConfiguration loads configuration from defaultConfigFile, file set in
// configFileEnvVariableName or from env
func LoadConfiguration(configFileEnvVariableName, defaultConfigFile string) (ConfigStruct, error) {
	var config ConfigStruct

	// env. variable holding name of configuration file
	configFile, specified := os.LookupEnv(configFileEnvVariableName)
	if specified {
		// we need to separate the directory name and filename without
		// extension
		directory, basename := filepath.Split(configFile)
		file := strings.TrimSuffix(basename, filepath.Ext(basename))
		// parse the configuration
		viper.SetConfigName(file)
		viper.AddConfigPath(directory)
	} else {
		log.Info().Str("filename", defaultConfigFile).Msg("Parsing configuration file")
		// parse the configuration
		viper.SetConfigName(defaultConfigFile)
		viper.AddConfigPath(".")
	}

	// try to read the whole configuration
	err := viper.ReadInConfig()
	if _, isNotFoundError := err.(viper.ConfigFileNotFoundError); !specified && isNotFoundError {
		// If config file is not present (which might be correct in
		// some environment) we need to read configuration from
		// environment variables. The problem is that Viper is not smart
		// enough to understand the structure of config by itself, so
		// we need to read fake config file
		fakeTomlConfigWriter := new(bytes.Buffer)

		err := toml.NewEncoder(fakeTomlConfigWriter).Encode(config)
		if err != nil {
			return config, err
		}

		fakeTomlConfig := fakeTomlConfigWriter.String()

		viper.SetConfigType("toml")

		err = viper.ReadConfig(strings.NewReader(fakeTomlConfig))
		if err != nil {
			return config, err
		}
	} else if err != nil {
		// error is processed on caller side
		return config, fmt.Errorf("fatal error config file: %s", err)
	}

	// override config from env if there's variable in env

	const envPrefix = "NOTIFICATIONS_DISPATCHER_"

	viper.AutomaticEnv()
	viper.SetEnvPrefix(envPrefix)
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_", ".", "__"))

	err = viper.Unmarshal(&config)
	if err != nil {
		return config, err
	}

	if clowder.IsClowderEnabled() {
		// can not use Zerolog at this moment!
		fmt.Println("Clowder is enabled")
		updateConfigFromClowder(&config)
	} else {
		// can not use Zerolog at this moment!
		fmt.Println("Clowder is disabled")
	}

	// everything's should be ok
	return config, nil
}

// updateConfigFromClowder updates the current config with the values defined
// in clowder
func updateConfigFromClowder(config *ConfigStruct) {
	if clowder.LoadedConfig == nil {
		return
	}
	if clowder.LoadedConfig.Database != nil {
		config.Storage.PGDBName = clowder.LoadedConfig.Database.Name
		config.Storage.PGHost = clowder.LoadedConfig.Database.Hostname
		config.Storage.PGPort = clowder.LoadedConfig.Database.Port
		config.Storage.PGUsername = clowder.LoadedConfig.Database.Username
		config.Storage.PGPassword = clowder.LoadedConfig.Database.Password
	}
	if clowder.LoadedConfig.Kafka != nil && len(clowder.LoadedConfig.Kafka.Brokers) > 0 {
		addresses := make([]string, 0, len(clowder.LoadedConfig.Kafka.Brokers))
		for _, broker := range clowder.LoadedConfig.Kafka.Brokers {
			if broker.Port != nil {
				addresses = append(addresses, fmt.Sprintf("%s:%d", broker.Hostname, *broker.Port))
			} else {
				addresses = append(addresses, broker.Hostname)
			}
		}
		config.Kafka.Addresses = strings.Join(addresses, ",")
	}
}

// GetStorageConfiguration returns storage configuration
func GetStorageConfiguration(config ConfigStruct) StorageConfiguration {
	return config.Storage
}

// GetLoggingConfiguration returns logging configuration
func GetLoggingConfiguration(config ConfigStruct) LoggingConfiguration {
	return config.Logging
}

// GetKafkaBrokerConfiguration returns kafka broker configuration
func GetKafkaBrokerConfiguration(config ConfigStruct) KafkaConfiguration {
	return config.Kafka
}

// GetDirectoryConfiguration returns user directory service configuration
func GetDirectoryConfiguration(config ConfigStruct) DirectoryConfiguration {
	return config.Directory
}

// GetAuthorizationConfiguration returns authorization service configuration
func GetAuthorizationConfiguration(config ConfigStruct) AuthorizationConfiguration {
	return config.Authorization
}

// GetNotificationsConfiguration returns configuration related with dispatch
// and digest behaviour
func GetNotificationsConfiguration(config ConfigStruct) NotificationsConfiguration {
	return config.Notifications
}

// GetMetricsConfiguration returns metrics configuration
func GetMetricsConfiguration(config ConfigStruct) MetricsConfiguration {
	return config.Metrics
}
