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

// Package authorization contains a client for the lookup-subjects
// authorization service. Given an authorization criterion (asset type, asset
// id, relation) the service returns the identifiers of all subjects holding
// that relation on the asset.
package authorization

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"

	"github.com/rs/zerolog/log"

	"github.com/RedHatInsights/notifications-dispatcher/conf"
	"github.com/RedHatInsights/notifications-dispatcher/types"
	"github.com/RedHatInsights/notifications-dispatcher/utils"
)

// Client interface defines the lookup operation consumed by the recipient
// resolver
type Client interface {
	LookupSubjects(ctx context.Context, criterion types.AuthorizationCriterion) ([]string, error)
}

// HTTPClient is an implementation of the Client interface backed by the
// authorization REST API
type HTTPClient struct {
	configuration conf.AuthorizationConfiguration
	httpClient    *http.Client
}

type lookupResponse struct {
	Subjects []string `json:"subjects"`
}

// NewClient creates a client that can communicate with the authorization
// service
func NewClient(configuration conf.AuthorizationConfiguration) *HTTPClient {
	configuration.URL = utils.SetHTTPPrefix(configuration.URL)
	log.Info().Str("url", configuration.URL).Msg("Authorization client created")
	return &HTTPClient{
		configuration: configuration,
		httpClient:    &http.Client{},
	}
}

// LookupSubjects returns identifiers of all subjects that hold the
// criterion's relation on the criterion's asset
func (c *HTTPClient) LookupSubjects(ctx context.Context, criterion types.AuthorizationCriterion) ([]string, error) {
	var result lookupResponse

	operation := func(ctx context.Context) error {
		requestBody, err := json.Marshal(criterion)
		if err != nil {
			return err
		}

		requestURL := c.configuration.URL + "/lookup-subjects"
		request, err := http.NewRequestWithContext(ctx, http.MethodPost, requestURL, bytes.NewReader(requestBody))
		if err != nil {
			return err
		}
		request.Header.Set("Content-Type", "application/json")

		status, body, err := utils.SendRequest(c.httpClient, request)
		if err != nil {
			return &utils.TransientError{Err: err}
		}

		if status >= http.StatusInternalServerError {
			return &utils.TransientError{
				Err: fmt.Errorf("authorization service returned status %d", status),
			}
		}
		if status != http.StatusOK {
			return fmt.Errorf("authorization service returned status %d", status)
		}

		return json.Unmarshal(body, &result)
	}

	err := utils.Retry(ctx, utils.RetrySpec{
		MaxAttempts:    c.configuration.MaxRetries,
		BaseDelay:      c.configuration.RetryBaseDelay,
		AttemptTimeout: c.configuration.Timeout,
	}, utils.IsTransient, operation)
	if err != nil {
		log.Error().Err(err).
			Str("asset type", criterion.AssetType).
			Str("asset id", criterion.AssetID).
			Str("relation", criterion.Relation).
			Msg("Unable to look up authorized subjects")
		return nil, err
	}
	return result.Subjects, nil
}
