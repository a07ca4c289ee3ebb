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

// Package recipients contains the recipient resolution engine: it combines
// recipient-settings entries, a subscription state and an optional
// authorization criterion into one deduplicated set of notifiable users.
package recipients

import (
	"context"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/authorization"
	"github.com/RedHatInsights/notifications-dispatcher/directory"
	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// Log messages
const (
	settingsEntryAttribute  = "settings entry"
	organizationIDAttribute = "org id"
	resolutionFailedMessage = "Recipient resolution failed for settings entry"
)

// Resolver implements authorization-aware recipient set computation on top
// of the user directory and authorization adapters
type Resolver struct {
	Directory     directory.Client
	Authorization authorization.Client
}

// NewResolver constructs a resolver using the provided adapter clients
func NewResolver(directoryClient directory.Client, authorizationClient authorization.Client) *Resolver {
	return &Resolver{
		Directory:     directoryClient,
		Authorization: authorizationClient,
	}
}

// Resolve computes the set of users to notify for the given organization.
// Every settings entry is resolved independently and the per-entry results
// are unioned, deduplicated by user identity. A failed directory or
// authorization lookup is propagated to the caller; it is never downgraded
// to an empty result because that would silently lose notifications.
func (r *Resolver) Resolve(
	ctx context.Context,
	orgID types.OrgID,
	settings []types.RecipientSettings,
	subscription types.SubscriptionState,
	criterion *types.AuthorizationCriterion,
) ([]types.User, error) {
	// subjects authorized by the criterion, fetched lazily at most once
	// per resolution call
	var authorizedSubjects map[string]struct{}
	authorizedFetched := false

	resolved := map[types.UserID]types.User{}
	externalEmails := map[string]types.User{}

	for i, entry := range settings {
		users, err := r.resolveEntry(ctx, orgID, entry, subscription)
		if err != nil {
			log.Error().
				Err(err).
				Int(settingsEntryAttribute, i).
				Str(organizationIDAttribute, string(orgID)).
				Msg(resolutionFailedMessage)
			return nil, &ResolutionError{OrgID: orgID, Err: err}
		}

		// authorization narrowing applies only to users with a directory
		// identity; recipients supplied as bare email addresses live
		// outside the directory and cannot be subjects of the
		// authorization service
		if criterion != nil {
			if !authorizedFetched {
				subjects, err := r.Authorization.LookupSubjects(ctx, *criterion)
				if err != nil {
					return nil, &ResolutionError{OrgID: orgID, Err: err}
				}
				authorizedSubjects = lowercaseSet(subjects)
				authorizedFetched = true
			}
			users = filterAuthorized(users, authorizedSubjects)
		}

		for _, user := range users {
			resolved[user.ID] = user
		}

		// users supplied only as bare email addresses bypass directory
		// lookup, preference filtering and authorization narrowing
		for _, email := range entry.Emails {
			if email == "" {
				continue
			}
			externalEmails[strings.ToLower(email)] = types.User{
				Email:  email,
				Active: true,
			}
		}
	}

	result := make([]types.User, 0, len(resolved)+len(externalEmails))
	for _, user := range resolved {
		result = append(result, user)
	}
	for _, user := range externalEmails {
		result = append(result, user)
	}
	return result, nil
}

// resolveEntry implements the per-settings-entry part of the algorithm: the
// no-subscriber short-circuit, base population fetching, explicit-user
// narrowing and preference filtering.
func (r *Resolver) resolveEntry(
	ctx context.Context,
	orgID types.OrgID,
	entry types.RecipientSettings,
	subscription types.SubscriptionState,
) ([]types.User, error) {
	// opt-in model with nobody subscribed: no remote call can produce a
	// non-empty result, so skip the directory round trip entirely
	if !subscription.SubscribedByDefault && !entry.IgnoreUserPreferences && len(subscription.Subscribers) == 0 {
		return nil, nil
	}

	var users []types.User
	var err error
	if entry.GroupID != nil {
		users, err = r.Directory.GetGroupUsers(ctx, orgID, *entry.GroupID, entry.OnlyAdmins)
	} else {
		users, err = r.Directory.GetOrgUsers(ctx, orgID, entry.OnlyAdmins)
	}
	if err != nil {
		return nil, err
	}

	if len(entry.Users) > 0 {
		users = filterByUsernames(users, lowercaseSet(entry.Users))
	}

	switch {
	case entry.IgnoreUserPreferences:
		// keep the population unfiltered by subscription state
	case subscription.SubscribedByDefault:
		// opt-out model: drop users that unsubscribed
		users = rejectByUsernames(users, lowercaseSet(subscription.Unsubscribers))
	default:
		// opt-in model: keep only users that subscribed
		users = filterByUsernames(users, lowercaseSet(subscription.Subscribers))
	}

	return users, nil
}

// filterByUsernames keeps users whose username is present in the given
// lowercased set
func filterByUsernames(users []types.User, usernames map[string]struct{}) []types.User {
	filtered := make([]types.User, 0, len(users))
	for _, user := range users {
		if _, found := usernames[strings.ToLower(user.Username)]; found {
			filtered = append(filtered, user)
		}
	}
	return filtered
}

// rejectByUsernames drops users whose username is present in the given
// lowercased set
func rejectByUsernames(users []types.User, usernames map[string]struct{}) []types.User {
	filtered := make([]types.User, 0, len(users))
	for _, user := range users {
		if _, found := usernames[strings.ToLower(user.Username)]; !found {
			filtered = append(filtered, user)
		}
	}
	return filtered
}

// filterAuthorized keeps users whose identity or username the authorization
// service confirmed as an authorized subject
func filterAuthorized(users []types.User, subjects map[string]struct{}) []types.User {
	filtered := make([]types.User, 0, len(users))
	for _, user := range users {
		_, byID := subjects[strings.ToLower(string(user.ID))]
		_, byUsername := subjects[strings.ToLower(user.Username)]
		if byID || byUsername {
			filtered = append(filtered, user)
		}
	}
	return filtered
}

func lowercaseSet(values []string) map[string]struct{} {
	set := make(map[string]struct{}, len(values))
	for _, value := range values {
		set[strings.ToLower(value)] = struct{}{}
	}
	return set
}
