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
	"context"
	"sync"

	"github.com/Shopify/sarama"
)

// Consumer multiplexes one sarama consumer group over per-topic handlers.
type Consumer struct {
	cancel   chan bool
	mu       sync.Mutex
	handler  map[string]func(*sarama.ConsumerMessage) error
	consumer sarama.ConsumerGroup
	ctx      context.Context
	isActive bool
}

func NewConsumer(ctx context.Context, consumer sarama.ConsumerGroup) *Consumer {
	return &Consumer{
		cancel:   make(chan bool),
		handler:  map[string]func(*sarama.ConsumerMessage) error{},
		ctx:      ctx,
		consumer: consumer,
	}
}

// Subscribe registers a handler and (re)starts the group session over the
// union of subscribed topics.
func (r *Consumer) Subscribe(topic string, handler func(*sarama.ConsumerMessage) error) error {
	r.mu.Lock()
	if r.handler[topic] != nil {
		r.mu.Unlock()
		return nil
	}
	r.handler[topic] = handler
	wasActive := r.isActive
	topics := make([]string, 0, len(r.handler))
	for t := range r.handler {
		topics = append(topics, t)
	}
	r.mu.Unlock()

	if wasActive {
		r.cancel <- true
	}
	go func() {
		res := make(chan error, 1)
		for {
			go func() { res <- r.consumer.Consume(r.ctx, topics, r) }()
			select {
			case err := <-res:
				if err != nil {
					logger.Error("Consumer session ended with error", "err", err)
				}
			case <-r.cancel:
				return
			case <-r.ctx.Done():
				return
			}
		}
	}()
	return nil
}

func (r *Consumer) Setup(sess sarama.ConsumerGroupSession) error {
	logger.Info("Consumer group session started", "member", sess.MemberID())
	r.mu.Lock()
	r.isActive = true
	r.mu.Unlock()
	return nil
}

func (r *Consumer) Cleanup(sess sarama.ConsumerGroupSession) error {
	logger.Info("Consumer group session cleaned up", "member", sess.MemberID())
	r.mu.Lock()
	r.isActive = false
	r.mu.Unlock()
	return nil
}

func (r *Consumer) ConsumeClaim(session sarama.ConsumerGroupSession, claim sarama.ConsumerGroupClaim) error {
	for message := range claim.Messages() {
		r.mu.Lock()
		handler := r.handler[message.Topic]
		r.mu.Unlock()
		if handler == nil {
			continue
		}
		if err := handler(message); err != nil {
			logger.Error("Report handler failed; message skipped", "topic", message.Topic, "offset", message.Offset, "err", err)
		}
		session.MarkMessage(message, "")
	}
	return nil
}

func (r *Consumer) close() {
	r.mu.Lock()
	active := r.isActive
	r.mu.Unlock()
	if active {
		select {
		case r.cancel <- true:
		default:
		}
	}
	r.consumer.Close()
}
