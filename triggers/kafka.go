// Copyright 2024 Tomas Machalek <tomas.machalek@gmail.com>
// Copyright 2024 Institute of the Czech National Corpus,
//                Faculty of Arts, Charles University
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package triggers

import (
	"context"
	"errors"
	"time"

	"github.com/rs/zerolog/log"
	"github.com/segmentio/kafka-go"
)

// messageReader is the part of kafka.Reader used by the listener
type messageReader interface {
	FetchMessage(ctx context.Context) (kafka.Message, error)
	CommitMessages(ctx context.Context, msgs ...kafka.Message) error
	Close() error
}

// KafkaListener consumes record change events from a Kafka topic.
// A message offset is committed only once the message is processed
// or found undecodable. Processing failures are retried (with growing
// pauses) until they succeed or the listener is stopped.
type KafkaListener struct {
	conf          *KafkaConf
	reader        messageReader
	dispatcher    *Dispatcher
	retryDelay    time.Duration
	maxRetryDelay time.Duration
}

// pause waits for the specified time and returns false
// in case ctx is cancelled in the meantime
func pause(ctx context.Context, dur time.Duration) bool {
	timer := time.NewTimer(dur)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return false
	case <-timer.C:
		return true
	}
}

func (kl *KafkaListener) nextDelay(curr time.Duration) time.Duration {
	if curr*2 > kl.maxRetryDelay {
		return kl.maxRetryDelay
	}
	return curr * 2
}

// process submits the event until the dispatcher accepts it.
// It returns false if the listener should stop.
func (kl *KafkaListener) process(ctx context.Context, msg kafka.Message, ev Event) bool {
	delay := kl.retryDelay
	for attempt := 1; ; attempt++ {
		err := kl.dispatcher.Submit(ctx, ev)
		if err == nil || errors.Is(err, ErrInvalidEvent) {
			return true
		}
		if ctx.Err() != nil || errors.Is(err, ErrDispatcherClosed) {
			return false
		}
		log.Warn().
			Err(err).
			Int("partition", msg.Partition).
			Int64("offset", msg.Offset).
			Int("attempt", attempt).
			Dur("retryIn", delay).
			Msg("failed to process Kafka message, will retry")
		if !pause(ctx, delay) {
			return false
		}
		delay = kl.nextDelay(delay)
	}
}

func (kl *KafkaListener) Listen(ctx context.Context) error {
	log.Info().
		Strs("brokers", kl.conf.Brokers).
		Str("topic", kl.conf.Topic).
		Msg("starting Kafka listener")
	fetchDelay := kl.retryDelay
	for {
		msg, err := kl.reader.FetchMessage(ctx)
		if err != nil {
			if ctx.Err() != nil {
				log.Info().Msg("about to close Kafka listener")
				return nil
			}
			log.Error().Err(err).Dur("retryIn", fetchDelay).Msg("failed to fetch Kafka message")
			if !pause(ctx, fetchDelay) {
				log.Info().Msg("about to close Kafka listener")
				return nil
			}
			fetchDelay = kl.nextDelay(fetchDelay)
			continue
		}
		fetchDelay = kl.retryDelay
		ev, err := DecodeEvent(msg.Value, SourceKafka)
		if err != nil {
			kl.dispatcher.observe(ev, "invalid")
			log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to decode record change message, skipping")

		} else if !kl.process(ctx, msg, ev) {
			log.Info().Msg("about to close Kafka listener")
			return nil
		}
		if err := kl.reader.CommitMessages(ctx, msg); err != nil && ctx.Err() == nil {
			log.Error().
				Err(err).
				Int("partition", msg.Partition).
				Int64("offset", msg.Offset).
				Msg("failed to commit Kafka message")
		}
	}
}

func (kl *KafkaListener) Close() error {
	return kl.reader.Close()
}

func NewKafkaListener(conf *KafkaConf, dispatcher *Dispatcher) *KafkaListener {
	retryDelay, maxRetryDelay := conf.RetryDelays()
	return &KafkaListener{
		conf: conf,
		reader: kafka.NewReader(kafka.ReaderConfig{
			Brokers:     conf.Brokers,
			Topic:       conf.Topic,
			GroupID:     conf.GroupID,
			MinBytes:    conf.MinBytes,
			MaxBytes:    conf.MaxBytes,
			StartOffset: kafka.LastOffset,
		}),
		dispatcher:    dispatcher,
		retryDelay:    retryDelay,
		maxRetryDelay: maxRetryDelay,
	}
}
