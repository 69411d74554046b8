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
	"github.com/Shopify/sarama"

	"github.com/alexlange1/alphamind/fund/types"
)

const (
	DefaultReplicas    = 1
	DefaultPartitions  = 1
	DefaultTopicPrefix = "alphamind"
	DefaultGroupID     = "alphamind-validator"
)

// KafkaConfig carries the report bus settings shared by miners (producers)
// and validators (consumer group members).
type KafkaConfig struct {
	SaramaConfig *sarama.Config // kafka client configurations.
	Brokers      []string       // Brokers is a list of broker URLs.
	TopicPrefix  string
	GroupID      string
	Partitions   int32 // Partitions is the number of partitions of a topic.
	Replicas     int16 // Replicas is a replication factor of kafka settings.
}

func GetDefaultKafkaConfig() *KafkaConfig {
	config := sarama.NewConfig()
	config.Version = sarama.MaxVersion
	config.Producer.RequiredAcks = sarama.WaitForLocal
	config.Producer.Compression = sarama.CompressionSnappy
	config.Producer.Return.Successes = true
	return &KafkaConfig{
		SaramaConfig: config,
		TopicPrefix:  DefaultTopicPrefix,
		GroupID:      DefaultGroupID,
		Partitions:   DefaultPartitions,
		Replicas:     DefaultReplicas,
	}
}

// TopicFor maps a report kind to its bus topic.
func (c *KafkaConfig) TopicFor(kind types.ReportKind) string {
	return c.TopicPrefix + "-reports-" + string(kind)
}
