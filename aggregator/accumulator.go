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

// Package aggregator contains the aggregation engine and the digest
// scheduler. The engine folds a stream of per-event aggregation records
// sharing one tenant/time-window key into a single grouped digest payload;
// the scheduler computes aggregation windows, enumerates pending keys and
// emits one digest dispatch per key.
package aggregator

import (
	"time"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Item is one affected item inside a digest group, e.g. a host hit by a
// policy
type Item struct {
	ID   string `json:"id"`
	Name string `json:"name,omitempty"`
}

// GroupPayload is the rendered form of one digest group
type GroupPayload struct {
	Key             string `json:"key"`
	Name            string `json:"name,omitempty"`
	Items           []Item `json:"items"`
	UniqueItemCount int    `json:"unique_item_count"`
}

// DigestPayload is the rendered digest for one aggregation key and window
type DigestPayload struct {
	OrgID           types.OrgID    `json:"org_id"`
	StartTime       time.Time      `json:"start_time"`
	EndTime         time.Time      `json:"end_time"`
	Groups          []GroupPayload `json:"groups"`
	UniqueItemCount int            `json:"unique_item_count"`
}

// group holds the growing state of one digest group. The item list keeps
// insertion order; the unique set is maintained separately so counts stay
// correct when the same item repeats.
type group struct {
	name        string
	items       []Item
	uniqueItems map[string]struct{}
}

// Accumulator incrementally builds one digest payload. It is bound to
// exactly one organization for its whole lifetime: feeding it a record from
// a different organization is a usage error, tenants are never merged.
//
// An accumulator is not safe for concurrent use; each scheduler worker owns
// its own instance.
type Accumulator struct {
	orgID       types.OrgID
	groupOrder  []string
	groups      map[string]*group
	windowItems map[string]struct{}
}

// NewAccumulator creates an empty accumulator bound to the given
// organization
func NewAccumulator(orgID types.OrgID) *Accumulator {
	return &Accumulator{
		orgID:       orgID,
		groups:      map[string]*group{},
		windowItems: map[string]struct{}{},
	}
}

// OrgID returns the organization the accumulator was created for
func (a *Accumulator) OrgID() types.OrgID {
	return a.orgID
}

// Accumulate folds one aggregation record into the digest. Both the
// per-group and the window-wide unique counts are updated on every call, so
// Render can be called at any time without a final reconciliation pass.
func (a *Accumulator) Accumulate(record types.AggregationRecord) error {
	if record.OrgID != a.orgID {
		// fail fast and leave the accumulated state untouched
		return &TenantMismatchError{
			AccumulatorOrgID: a.orgID,
			RecordOrgID:      record.OrgID,
		}
	}

	entry, found := a.groups[record.GroupKey]
	if !found {
		entry = &group{
			name:        record.GroupName,
			uniqueItems: map[string]struct{}{},
		}
		a.groups[record.GroupKey] = entry
		a.groupOrder = append(a.groupOrder, record.GroupKey)
	}

	entry.items = append(entry.items, Item{ID: record.ItemID, Name: record.ItemName})
	entry.uniqueItems[record.ItemID] = struct{}{}
	a.windowItems[record.ItemID] = struct{}{}
	return nil
}

// GroupCount returns the number of distinct group keys seen so far
func (a *Accumulator) GroupCount() int {
	return len(a.groups)
}

// Render produces the digest payload for the given aggregation window. The
// groups are emitted in first-seen order and every group's item list keeps
// the order records were accumulated in, which makes rendered digests
// readable and deterministic.
func (a *Accumulator) Render(start, end time.Time) DigestPayload {
	groups := make([]GroupPayload, 0, len(a.groupOrder))
	for _, key := range a.groupOrder {
		entry := a.groups[key]
		groups = append(groups, GroupPayload{
			Key:             key,
			Name:            entry.name,
			Items:           entry.items,
			UniqueItemCount: len(entry.uniqueItems),
		})
	}

	return DigestPayload{
		OrgID:           a.orgID,
		StartTime:       start,
		EndTime:         end,
		Groups:          groups,
		UniqueItemCount: len(a.windowItems),
	}
}
