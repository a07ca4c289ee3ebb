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
	"fmt"
	"strings"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// TenantMismatchError is raised when a record for a different organization
// is accumulated into a digest accumulator. It signals a programming error
// in the caller and must never be caught and retried.
type TenantMismatchError struct {
	AccumulatorOrgID types.OrgID
	RecordOrgID      types.OrgID
}

func (e *TenantMismatchError) Error() string {
	return fmt.Sprintf("accumulator for organization %s received a record for organization %s",
		e.AccumulatorOrgID, e.RecordOrgID)
}

// InvalidDigestMinuteError is a validation error raised when an organization
// tries to store an unsupported digest-time minute preference
type InvalidDigestMinuteError struct {
	Minute int
}

func (e *InvalidDigestMinuteError) Error() string {
	return fmt.Sprintf("invalid digest time minute %02d, accepted values are: 00, 15, 30, 45", e.Minute)
}

// KeyFailure represents a failure to process one aggregation key during a
// digest run
type KeyFailure struct {
	Key types.AggregationKey
	Err error
}

// RunError aggregates all per-key failures of one digest run. Every pending
// key is attempted before this error is raised.
type RunError struct {
	Attempted int
	Failures  []KeyFailure
}

func (e *RunError) Error() string {
	keys := make([]string, 0, len(e.Failures))
	for _, failure := range e.Failures {
		keys = append(keys, fmt.Sprintf("%s/%s/%s", failure.Key.OrgID, failure.Key.Bundle, failure.Key.Application))
	}
	return fmt.Sprintf("digest run failed for %d of %d aggregation keys: %s",
		len(e.Failures), e.Attempted, strings.Join(keys, ", "))
}
