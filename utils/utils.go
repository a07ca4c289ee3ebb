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

package utils

import (
	"io"
	"net/http"
	"strings"

	"github.com/rs/zerolog/log"
)

// SetHTTPPrefix adds HTTP prefix if it is not already present in the given string
func SetHTTPPrefix(url string) string {
	if !strings.HasPrefix(url, "http") {
		// if no protocol is specified in given URL, assume it is not
		// needed to use https
		url = "http://" + url
	}
	return url
}

// SendRequest performs the given request with the given client, reads the
// whole response body and closes it. Transport and body-read failures are
// returned unclassified so the caller decides whether they are retryable.
func SendRequest(client *http.Client, request *http.Request) (statusCode int, body []byte, err error) {
	response, err := client.Do(request)
	if err != nil {
		log.Error().Err(err).Str("url", request.URL.String()).Msg("Unable to perform HTTP request")
		return 0, nil, err
	}
	defer func() {
		if closeErr := response.Body.Close(); closeErr != nil {
			log.Error().Err(closeErr).Msg("Unable to close response body")
		}
	}()

	body, err = io.ReadAll(response.Body)
	if err != nil {
		log.Error().Err(err).Str("url", request.URL.String()).Msg("Unable to read response body")
		return response.StatusCode, nil, err
	}
	return response.StatusCode, body, nil
}
