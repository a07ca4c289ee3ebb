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

package dispatcher_test

import (
	"sync"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"

	"github.com/RedHatInsights/notifications-dispatcher/dispatcher"
)

// TestCounterStoreIncrementAndReset checks the basic counter lifecycle
func TestCounterStoreIncrementAndReset(t *testing.T) {
	store := dispatcher.NewCounterStore()
	endpointID := uuid.New()

	assert.Equal(t, 0, store.ServerErrors(endpointID))
	assert.Equal(t, 1, store.IncrementServerErrors(endpointID))
	assert.Equal(t, 2, store.IncrementServerErrors(endpointID))
	assert.Equal(t, 2, store.ServerErrors(endpointID))

	store.ResetServerErrors(endpointID)
	assert.Equal(t, 0, store.ServerErrors(endpointID))
}

// TestCounterStoreEndpointsIndependent checks that counters of different
// endpoints do not interfere
func TestCounterStoreEndpointsIndependent(t *testing.T) {
	store := dispatcher.NewCounterStore()
	first := uuid.New()
	second := uuid.New()

	store.IncrementServerErrors(first)
	store.IncrementServerErrors(first)
	store.IncrementServerErrors(second)

	assert.Equal(t, 2, store.ServerErrors(first))
	assert.Equal(t, 1, store.ServerErrors(second))
}

// TestCounterStoreDisableCandidates checks flagging and listing of disable candidates
func TestCounterStoreDisableCandidates(t *testing.T) {
	store := dispatcher.NewCounterStore()
	flagged := uuid.New()
	clean := uuid.New()

	assert.False(t, store.IsDisableCandidate(flagged))

	store.MarkDisableCandidate(flagged)

	assert.True(t, store.IsDisableCandidate(flagged))
	assert.False(t, store.IsDisableCandidate(clean))

	candidates := store.DisableCandidates()
	assert.Len(t, candidates, 1)
	assert.Equal(t, flagged, candidates[0])
}

// TestCounterStoreConcurrentAccess checks that parallel increments are not lost
func TestCounterStoreConcurrentAccess(t *testing.T) {
	store := dispatcher.NewCounterStore()
	endpointID := uuid.New()

	var wg sync.WaitGroup
	for i := 0; i < 50; i++ {
		wg.Add(1)
		go func() {
			defer wg.Done()
			store.IncrementServerErrors(endpointID)
		}()
	}
	wg.Wait()

	assert.Equal(t, 50, store.ServerErrors(endpointID))
}
