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

package exporter

import (
	"encoding/json"
	"strconv"

	"github.com/Shopify/sarama"
	"github.com/pkg/errors"

	"github.com/alexlange1/alphamind/common"
	"github.com/alexlange1/alphamind/fund/types"
)

// KafkaRepositoryConfig parameterizes the Kafka sink.
type KafkaRepositoryConfig struct {
	Brokers     []string
	TopicPrefix string
	Replicas    int16
	Partitions  int32
}

// kafkaRepository publishes export records as JSON onto per-concern topics.
type kafkaRepository struct {
	config   *KafkaRepositoryConfig
	producer sarama.SyncProducer
	admin    sarama.ClusterAdmin
}

func NewKafkaRepository(config *KafkaRepositoryConfig) (Repository, error) {
	if config == nil {
		return nil, errors.New("nil kafka repository config")
	}
	saramaConfig := sarama.NewConfig()
	saramaConfig.Version = sarama.MaxVersion
	saramaConfig.Producer.RequiredAcks = sarama.WaitForLocal
	saramaConfig.Producer.Compression = sarama.CompressionSnappy
	saramaConfig.Producer.Return.Successes = true

	producer, err := sarama.NewSyncProducer(config.Brokers, saramaConfig)
	if err != nil {
		return nil, errors.Wrap(err, "creating exporter producer")
	}
	admin, err := sarama.NewClusterAdmin(config.Brokers, saramaConfig)
	if err != nil {
		producer.Close()
		return nil, errors.Wrap(err, "creating exporter admin")
	}
	r := &kafkaRepository{config: config, producer: producer, admin: admin}
	for _, topic := range []string{r.topic("epochs"), r.topic("scores"), r.topic("consensus")} {
		r.ensureTopic(topic)
	}
	return r, nil
}

func (r *kafkaRepository) topic(suffix string) string {
	return r.config.TopicPrefix + "-" + suffix
}

func (r *kafkaRepository) ensureTopic(topic string) {
	err := r.admin.CreateTopic(topic, &sarama.TopicDetail{
		NumPartitions:     r.config.Partitions,
		ReplicationFactor: r.config.Replicas,
	}, false)
	if terr, ok := err.(*sarama.TopicError); ok && terr.Err == sarama.ErrTopicAlreadyExists {
		return
	}
	if err != nil {
		logger.Warn("Cannot ensure exporter topic", "topic", topic, "err", err)
	}
}

func (r *kafkaRepository) publish(topic, key string, msg interface{}) error {
	data, err := json.Marshal(msg)
	if err != nil {
		return err
	}
	_, _, err = r.producer.SendMessage(&sarama.ProducerMessage{
		Topic: topic,
		Key:   sarama.StringEncoder(key),
		Value: sarama.ByteEncoder(data),
	})
	return err
}

type epochExportRecord struct {
	EpochID  uint64          `json:"epoch_id"`
	Digest   string          `json:"digest_hex"`
	Artifact json.RawMessage `json:"artifact"`
}

func (r *kafkaRepository) WriteEpochArtifact(epoch common.EpochID, artifact []byte, digestHex string) error {
	return r.publish(r.topic("epochs"), digestHex, &epochExportRecord{
		EpochID:  uint64(epoch),
		Digest:   digestHex,
		Artifact: artifact,
	})
}

type scoresExportRecord struct {
	EpochID uint64             `json:"epoch_id"`
	Scores  map[string]float64 `json:"scores"`
}

func (r *kafkaRepository) WriteEpochScores(epoch common.EpochID, scores map[string]float64) error {
	return r.publish(r.topic("scores"), strconv.FormatUint(uint64(epoch), 10), &scoresExportRecord{
		EpochID: uint64(epoch),
		Scores:  scores,
	})
}

func (r *kafkaRepository) WriteConsensusSnapshot(snap *types.ConsensusSnapshot) error {
	return r.publish(r.topic("consensus"), string(snap.Kind), snap)
}

func (r *kafkaRepository) Close() error {
	if err := r.producer.Close(); err != nil {
		return err
	}
	return r.admin.Close()
}
