// Copyright 2025 The alphamind Authors
// This file is part of the alphamind library.
//
// The alphamind library is free software: you can redistribute it and/or modify
// it under the terms of the GNU Lesser General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
//
// The alphamind library is distributed in the hope that it will be useful,
// but WITHOUT ANY WARRANTY; without even the implied warranty of
// MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE. See the
// GNU Lesser General Public License for more details.
//
// You should have received a copy of the GNU Lesser General Public License
// along with the alphamind library. If not, see <http://www.gnu.org/licenses/>.

package reportsync

import (
	"testing"

	"github.com/Shopify/sarama"
	"github.com/stretchr/testify/assert"

	"github.com/alexlange1/alphamind/fund/types"
)

func TestGetDefaultKafkaConfig(t *testing.T) {
	config := GetDefaultKafkaConfig()
	assert.Equal(t, int32(DefaultPartitions), config.Partitions)
	assert.Equal(t, int16(DefaultReplicas), config.Replicas)
	assert.Equal(t, sarama.WaitForLocal, config.SaramaConfig.Producer.RequiredAcks)
	assert.Equal(t, sarama.CompressionSnappy, config.SaramaConfig.Producer.Compression)
	assert.True(t, config.SaramaConfig.Producer.Return.Successes)
}

func TestTopicFor(t *testing.T) {
	config := GetDefaultKafkaConfig()
	assert.Equal(t, "alphamind-reports-emissions", config.TopicFor(types.EmissionsKind))
	assert.Equal(t, "alphamind-reports-prices", config.TopicFor(types.PricesKind))
	assert.Equal(t, "alphamind-reports-nav", config.TopicFor(types.NavKind))

	config.TopicPrefix = "staging"
	assert.Equal(t, "staging-reports-prices", config.TopicFor(types.PricesKind))
}
