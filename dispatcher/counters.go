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
	"sync"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// CounterStore tracks per-endpoint server-error counts and disable
// candidates. It is the only mutable state shared between concurrent
// dispatches, so all updates go through one mutex; callers get a handle to
// an explicit store instead of module-level globals, which lets tests inject
// an isolated store per test case.
type CounterStore struct {
	mu                sync.Mutex
	serverErrors      map[types.EndpointID]int
	disableCandidates map[types.EndpointID]bool
}

// NewCounterStore creates an empty counter store
func NewCounterStore() *CounterStore {
	return &CounterStore{
		serverErrors:      map[types.EndpointID]int{},
		disableCandidates: map[types.EndpointID]bool{},
	}
}

// IncrementServerErrors atomically increments the server-error counter of
// the given endpoint and returns the new value
func (s *CounterStore) IncrementServerErrors(endpointID types.EndpointID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.serverErrors[endpointID]++
	return s.serverErrors[endpointID]
}

// ResetServerErrors resets the server-error counter of the given endpoint,
// called after every successful delivery
func (s *CounterStore) ResetServerErrors(endpointID types.EndpointID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.serverErrors, endpointID)
}

// ServerErrors returns the current server-error counter of the given
// endpoint
func (s *CounterStore) ServerErrors(endpointID types.EndpointID) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.serverErrors[endpointID]
}

// MarkDisableCandidate flags the given endpoint as likely misconfigured
func (s *CounterStore) MarkDisableCandidate(endpointID types.EndpointID) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.disableCandidates[endpointID] = true
}

// IsDisableCandidate reports whether the given endpoint has been flagged as
// a disable candidate
func (s *CounterStore) IsDisableCandidate(endpointID types.EndpointID) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.disableCandidates[endpointID]
}

// DisableCandidates returns all endpoints currently flagged as disable
// candidates
func (s *CounterStore) DisableCandidates() []types.EndpointID {
	s.mu.Lock()
	defer s.mu.Unlock()
	candidates := make([]types.EndpointID, 0, len(s.disableCandidates))
	for endpointID := range s.disableCandidates {
		candidates = append(candidates, endpointID)
	}
	return candidates
}
