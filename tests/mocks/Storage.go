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

package mocks

import (
	time "time"

	uuid "github.com/google/uuid"
	mock "github.com/stretchr/testify/mock"

	types "github.com/RedHatInsights/notifications-dispatcher/types"
)

// Storage is a mock type for the Storage type
type Storage struct {
	mock.Mock
}

// Close provides a mock function with given fields:
func (_m *Storage) Close() error {
	ret := _m.Called()

	var r0 error
	if rf, ok := ret.Get(0).(func() error); ok {
		r0 = rf()
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ReadPendingEvents provides a mock function with given fields:
func (_m *Storage) ReadPendingEvents() ([]types.Event, error) {
	ret := _m.Called()

	var r0 []types.Event
	if rf, ok := ret.Get(0).(func() []types.Event); ok {
		r0 = rf()
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]types.Event)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func() error); ok {
		r1 = rf()
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// MarkEventProcessed provides a mock function with given fields: eventID
func (_m *Storage) MarkEventProcessed(eventID uuid.UUID) error {
	ret := _m.Called(eventID)

	var r0 error
	if rf, ok := ret.Get(0).(func(uuid.UUID) error); ok {
		r0 = rf(eventID)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// ReadTargetEndpoints provides a mock function with given fields: orgID, eventType
func (_m *Storage) ReadTargetEndpoints(orgID types.OrgID, eventType types.EventTypeName) ([]types.Endpoint, error) {
	ret := _m.Called(orgID, eventType)

	var r0 []types.Endpoint
	if rf, ok := ret.Get(0).(func(types.OrgID, types.EventTypeName) []types.Endpoint); ok {
		r0 = rf(orgID, eventType)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]types.Endpoint)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(types.OrgID, types.EventTypeName) error); ok {
		r1 = rf(orgID, eventType)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadDigestEndpoints provides a mock function with given fields: orgID
func (_m *Storage) ReadDigestEndpoints(orgID types.OrgID) ([]types.Endpoint, error) {
	ret := _m.Called(orgID)

	var r0 []types.Endpoint
	if rf, ok := ret.Get(0).(func(types.OrgID) []types.Endpoint); ok {
		r0 = rf(orgID)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]types.Endpoint)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(types.OrgID) error); ok {
		r1 = rf(orgID)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadSubscriptionState provides a mock function with given fields: orgID, eventType
func (_m *Storage) ReadSubscriptionState(orgID types.OrgID, eventType types.EventTypeName) (types.SubscriptionState, error) {
	ret := _m.Called(orgID, eventType)

	var r0 types.SubscriptionState
	if rf, ok := ret.Get(0).(func(types.OrgID, types.EventTypeName) types.SubscriptionState); ok {
		r0 = rf(orgID, eventType)
	} else {
		r0 = ret.Get(0).(types.SubscriptionState)
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(types.OrgID, types.EventTypeName) error); ok {
		r1 = rf(orgID, eventType)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadPendingAggregationKeys provides a mock function with given fields: start, end
func (_m *Storage) ReadPendingAggregationKeys(start time.Time, end time.Time) ([]types.AggregationKey, error) {
	ret := _m.Called(start, end)

	var r0 []types.AggregationKey
	if rf, ok := ret.Get(0).(func(time.Time, time.Time) []types.AggregationKey); ok {
		r0 = rf(start, end)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]types.AggregationKey)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(time.Time, time.Time) error); ok {
		r1 = rf(start, end)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadAggregationRecords provides a mock function with given fields: key, start, end
func (_m *Storage) ReadAggregationRecords(key types.AggregationKey, start time.Time, end time.Time) ([]types.AggregationRecord, error) {
	ret := _m.Called(key, start, end)

	var r0 []types.AggregationRecord
	if rf, ok := ret.Get(0).(func(types.AggregationKey, time.Time, time.Time) []types.AggregationRecord); ok {
		r0 = rf(key, start, end)
	} else {
		if ret.Get(0) != nil {
			r0 = ret.Get(0).([]types.AggregationRecord)
		}
	}

	var r1 error
	if rf, ok := ret.Get(1).(func(types.AggregationKey, time.Time, time.Time) error); ok {
		r1 = rf(key, start, end)
	} else {
		r1 = ret.Error(1)
	}

	return r0, r1
}

// ReadOrgDigestMinute provides a mock function with given fields: orgID
func (_m *Storage) ReadOrgDigestMinute(orgID types.OrgID) (int, bool, error) {
	ret := _m.Called(orgID)

	var r0 int
	if rf, ok := ret.Get(0).(func(types.OrgID) int); ok {
		r0 = rf(orgID)
	} else {
		r0 = ret.Get(0).(int)
	}

	var r1 bool
	if rf, ok := ret.Get(1).(func(types.OrgID) bool); ok {
		r1 = rf(orgID)
	} else {
		r1 = ret.Get(1).(bool)
	}

	var r2 error
	if rf, ok := ret.Get(2).(func(types.OrgID) error); ok {
		r2 = rf(orgID)
	} else {
		r2 = ret.Error(2)
	}

	return r0, r1, r2
}

// WriteOrgDigestMinute provides a mock function with given fields: orgID, minute
func (_m *Storage) WriteOrgDigestMinute(orgID types.OrgID, minute int) error {
	ret := _m.Called(orgID, minute)

	var r0 error
	if rf, ok := ret.Get(0).(func(types.OrgID, int) error); ok {
		r0 = rf(orgID, minute)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}

// WriteHistoryRecord provides a mock function with given fields: record
func (_m *Storage) WriteHistoryRecord(record types.HistoryRecord) error {
	ret := _m.Called(record)

	var r0 error
	if rf, ok := ret.Get(0).(func(types.HistoryRecord) error); ok {
		r0 = rf(record)
	} else {
		r0 = ret.Error(0)
	}

	return r0
}
