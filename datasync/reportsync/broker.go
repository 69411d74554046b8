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

// Package reportsync is the report submission bus: miners produce signed
// wire payloads onto per-kind Kafka topics, validators consume them into
// the report pool.
package reportsync

import (
	"context"
	"fmt"
	"time"

	"github.com/Shopify/sarama"
	"github.com/hashicorp/go-uuid"
	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/fund/types"
	"github.com/alexlange1/alphamind/log"
)

var logger = log.NewModuleLogger(log.DataSyncReportSync)

// Broker wraps the sarama clients behind the submission and ingestion
// surfaces.
type Broker struct {
	config   *KafkaConfig
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin
	consumer *Consumer
}

// NewBroker connects the producer and admin clients. The consumer group is
// only dialed by SubscribeReports, so miners never join the group.
func NewBroker(config *KafkaConfig) (*Broker, error) {
	if config == nil {
		config = GetDefaultKafkaConfig()
	}
	producer, err := sarama.NewSyncProducer(config.Brokers, config.SaramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating sarama producer")
	}
	admin, err := sarama.NewClusterAdmin(config.Brokers, config.SaramaConfig)
	if err != nil {
		producer.Close()
		return nil, errors.Wrap(err, "creating sarama cluster admin")
	}
	return &Broker{config: config, producer: producer, admin: admin}, nil
}

// CreateTopic provisions a bus topic; existing topics are fine.
func (b *Broker) CreateTopic(topic string) error {
	err := b.admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     b.config.Partitions,
		ReplicationFactor: b.config.Replicas,
	}, false)
	if terr, ok := err.(*sarama.TopicError); ok && terr.Err == sarama.ErrTopicAlreadyExists {
		return nil
	}
	return err
}

// Submit ships one signed report payload, keyed by kind so per-kind
// ordering survives partitioning.
func (b *Broker) Submit(ctx context.Context, kind types.ReportKind, payload []byte) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	topic := b.config.TopicFor(kind)
	if err := b.CreateTopic(topic); err != nil {
		logger.Warn("Cannot ensure topic", "topic", topic, "err", err)
	}
	_, _, err := b.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(kind),
		Value: sarama.ByteEncoder(payload),
	})
	return err
}

// SubscribeReports joins the consumer group for every report kind and
// pushes payloads into enqueue until ctx is canceled.
func (b *Broker) SubscribeReports(ctx context.Context, enqueue func(types.ReportKind, []byte) error) error {
	groupConfig := sarama.NewConfig()
	groupConfig.Version = sarama.MaxVersion
	groupConfig.Consumer.Group.Session.Timeout = 6 * time.Second
	groupConfig.Consumer.Group.Heartbeat.Interval = 2 * time.Second

	id, _ := uuid.GenerateUUID()
	groupConfig.ClientID = fmt.Sprintf("%s-%s", b.config.GroupID, id)

	group, err := sarama.NewConsumerGroup(b.config.Brokers, b.config.GroupID, groupConfig)
	if err != nil {
		return errors.Wrap(err, "creating consumer group")
	}
	b.consumer = NewConsumer(ctx, group)

	for _, kind := range []types.ReportKind{types.EmissionsKind, types.PricesKind, types.NavKind} {
		topic := b.config.TopicFor(kind)
		if err := b.CreateTopic(topic); err != nil {
			logger.Warn("Cannot ensure topic", "topic", topic, "err", err)
		}
		boundKind := kind
		if err := b.consumer.Subscribe(topic, func(msg *sarama.ConsumerMessage) error {
			return enqueue(boundKind, msg.Value)
		}); err != nil {
			return err
		}
	}
	return nil
}

func (b *Broker) Close() {
	if b.consumer != nil {
		b.consumer.close()
	}
	if err := b.producer.Close(); err != nil {
		logger.Error("Cannot close sarama producer", "err", err)
	}
	if err := b.admin.Close(); err != nil {
		logger.Error("Cannot close sarama admin", "err", err)
	}
}
