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

package disabled

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/RedHatInsights/notifications-dispatcher/types"
)

// TestProduceMessage checks that no message is published
func TestProduceMessage(t *testing.T) {
	producer := Producer{}

	partition, offset, err := producer.ProduceMessage("any topic", types.ProducerMessage("any message"))
	assert.NoError(t, err)
	assert.Equal(t, int32(0), partition)
	assert.Equal(t, int64(-1), offset)
}

// TestClose checks that closing the disabled producer never fails
func TestClose(t *testing.T) {
	producer := Producer{}
	assert.NoError(t, producer.Close())
}
