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

// Package directory contains a client for the user directory service that
// the recipient resolver consumes. The service is paginated; the client
// walks all pages and hands a fully materialized user list to the caller.
package directory

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/types"
	"github.com/RedHatInsights/notifications-dispatcher/utils"
)

const defaultPageSize = 250

// Client interface defines the user directory operations consumed by the
// recipient resolver
type Client interface {
	GetOrgUsers(ctx context.Context, orgID types.OrgID, adminsOnly bool) ([]types.User, error)
	GetGroupUsers(ctx context.Context, orgID types.OrgID, groupID types.GroupID, adminsOnly bool) ([]types.User, error)
}

// HTTPClient is an implementation of the Client interface backed by the user
// directory REST API
type HTTPClient struct {
	configuration conf.DirectoryConfiguration
	httpClient    *http.Client
}

// usersPage is one page of the directory response
type usersPage struct {
	Users []types.User `json:"users"`
}

// NewClient creates a client that can communicate with the user directory
// service
func NewClient(configuration conf.DirectoryConfiguration) *HTTPClient {
	configuration.URL = utils.SetHTTPPrefix(configuration.URL)
	if configuration.PageSize <= 0 {
		configuration.PageSize = defaultPageSize
	}
	log.Info().Str("url", configuration.URL).Msg("Directory client created")
	return &HTTPClient{
		configuration: configuration,
		httpClient:    &http.Client{},
	}
}

// GetOrgUsers returns all users of the given organization. When adminsOnly
// is set, the directory restricts the result to org administrators so the
// caller does not receive data it would discard.
func (c *HTTPClient) GetOrgUsers(ctx context.Context, orgID types.OrgID, adminsOnly bool) ([]types.User, error) {
	endpoint := fmt.Sprintf("%s/orgs/%s/users", c.configuration.URL, url.PathEscape(string(orgID)))
	return c.fetchAllPages(ctx, endpoint, adminsOnly)
}

// GetGroupUsers returns all members of the given directory group within the
// organization, optionally restricted to administrators
func (c *HTTPClient) GetGroupUsers(ctx context.Context, orgID types.OrgID, groupID types.GroupID, adminsOnly bool) ([]types.User, error) {
	endpoint := fmt.Sprintf("%s/orgs/%s/groups/%s/users",
		c.configuration.URL, url.PathEscape(string(orgID)), groupID.String())
	return c.fetchAllPages(ctx, endpoint, adminsOnly)
}

// fetchAllPages walks the paginated endpoint until a short page is returned
func (c *HTTPClient) fetchAllPages(ctx context.Context, endpoint string, adminsOnly bool) ([]types.User, error) {
	var users []types.User
	offset := 0

	for {
		page, err := c.fetchPage(ctx, endpoint, adminsOnly, offset)
		if err != nil {
			return nil, err
		}
		users = append(users, page...)
		if len(page) < c.configuration.PageSize {
			return users, nil
		}
		offset += len(page)
	}
}

func (c *HTTPClient) fetchPage(ctx context.Context, endpoint string, adminsOnly bool, offset int) ([]types.User, error) {
	var page usersPage

	operation := func(ctx context.Context) error {
		requestURL := fmt.Sprintf("%s?admins_only=%t&limit=%d&offset=%d",
			endpoint, adminsOnly, c.configuration.PageSize, offset)
		request, err := http.NewRequestWithContext(ctx, http.MethodGet, requestURL, http.NoBody)
		if err != nil {
			return err
		}

		status, body, err := utils.SendRequest(c.httpClient, request)
		if err != nil {
			// network-class failure, eligible for retry
			return &utils.TransientError{Err: err}
		}

		if status >= http.StatusInternalServerError {
			return &utils.TransientError{
				Err: fmt.Errorf("directory service returned status %d", status),
			}
		}
		if status != http.StatusOK {
			// well-formed error response, retrying will not help
			return fmt.Errorf("directory service returned status %d", status)
		}

		return json.Unmarshal(body, &page)
	}

	err := utils.Retry(ctx, utils.RetrySpec{
		MaxAttempts:    c.configuration.MaxRetries,
		BaseDelay:      c.configuration.RetryBaseDelay,
		AttemptTimeout: c.configuration.Timeout,
	}, utils.IsTransient, operation)
	if err != nil {
		log.Error().Err(err).Str("endpoint", endpoint).Msg("Unable to fetch users from directory service")
		return nil, err
	}
	return page.Users, nil
}
