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
	"fmt"
	"strings"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// EndpointFailure represents a failure to deliver to one endpoint during a
// dispatch fan-out
type EndpointFailure struct {
	EndpointID types.EndpointID
	Err        error
}

// DispatchError aggregates all per-endpoint failures of one dispatch call.
// It is raised only after every endpoint was attempted, so a caller can tell
// "3 of 10 endpoints failed" instead of seeing only the first failure.
type DispatchError struct {
	Attempted int
	Failures  []EndpointFailure
}

func (e *DispatchError) Error() string {
	endpoints := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		endpoints = append(endpoints, failure.EndpointID.String())
	}
	return fmt.Sprintf("dispatch failed for %d of %d endpoints: %s",
		len(e.Failures), e.Attempted, strings.Join(endpoints, ", "))
}

// StorageError is related to any storage error
type StorageError struct {
	Err error
}

func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error: %s", e.Err.Error())
}

func (e *StorageError) Unwrap() error {
	return e.Err
}

// KafkaBrokerError represent an error related to Kafka initialization
type KafkaBrokerError struct {
	Err error
}

func (e *KafkaBrokerError) Error() string {
	return fmt.Sprintf("kafka broker error: %s", e.Err.Error())
}

func (e *KafkaBrokerError) Unwrap() error {
	return e.Err
}

// MetricsError is related to pushing collected metrics
type MetricsError struct {
	Err error
}

func (e *MetricsError) Error() string {
	return fmt.Sprintf("metrics push error: %s", e.Err.Error())
}

func (e *MetricsError) Unwrap() error {
	return e.Err
}
