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

package recipients

import (
	"fmt"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// ResolutionError represents a failed recipient resolution. It is distinct
// from a legitimate empty result: a caller receiving this error must not
// treat the event as having zero recipients.
type ResolutionError struct {
	OrgID types.OrgID
	Err   error
}

func (e *ResolutionError) Error() string {
	return fmt.Sprintf("recipient resolution failed for organization %s: %s", e.OrgID, e.Err)
}

// Unwrap returns the underlying adapter failure
func (e *ResolutionError) Unwrap() error {
	return e.Err
}
