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
	"fmt"
	"time"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

// RedisListener receives record change events from a Redis
// pub/sub channel and/or from a Redis list used as a queue.
type RedisListener struct {
	conf       *RedisConf
	redis      *redis.Client
	dispatcher *Dispatcher
}

func (rd *RedisListener) String() string {
	return fmt.Sprintf(
		"RedisListener address %s:%d, db %d, channel: %s, queue: %s",
		rd.conf.Host, rd.conf.Port, rd.conf.DB, rd.conf.Channel, rd.conf.QueueKey,
	)
}

// ChannelSubscribe subscribes to a Redis channel with a specified name.
func (rd *RedisListener) ChannelSubscribe(ctx context.Context, name string) *redis.PubSub {
	return rd.redis.Subscribe(ctx, name)
}

// NextNQueueItems fetches up to n items from the beginning of the queue
// (RPUSH is expected to be used by producers).
func (rd *RedisListener) NextNQueueItems(ctx context.Context, n int64) ([]string, error) {
	ppl := rd.redis.Pipeline()
	lrangeCmd := ppl.LRange(ctx, rd.conf.QueueKey, 0, n-1)
	ppl.LTrim(ctx, rd.conf.QueueKey, n, -1)
	if _, err := ppl.Exec(ctx); err != nil {
		return []string{}, fmt.Errorf("failed to get items from queue: %w", err)
	}
	items, err := lrangeCmd.Result()
	if err != nil {
		return []string{}, fmt.Errorf("failed to get items from queue: %w", err)
	}
	return items, nil
}

// AddError stores a raw event which failed to be processed
// to the error queue.
func (rd *RedisListener) AddError(ctx context.Context, item string) error {
	cmd := rd.redis.RPush(ctx, rd.conf.ErrorQueueKey, item)
	if cmd.Err() != nil {
		return fmt.Errorf("failed to insert error item: %w", cmd.Err())
	}
	return nil
}

func (rd *RedisListener) process(ctx context.Context, payload string) error {
	ev, err := DecodeEvent([]byte(payload), SourceRedis)
	if err != nil {
		rd.dispatcher.observe(ev, "invalid")
		return err
	}
	return rd.dispatcher.Submit(ctx, ev)
}

func (rd *RedisListener) listenChannel(ctx context.Context) error {
	sub := rd.ChannelSubscribe(ctx, rd.conf.Channel)
	defer sub.Close()
	log.Info().Str("channel", rd.conf.Channel).Msg("subscribed to Redis channel")
	msgs := sub.Channel()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("about to close Redis channel listener")
			return nil
		case msg, ok := <-msgs:
			if !ok {
				return fmt.Errorf("redis channel %s closed unexpectedly", rd.conf.Channel)
			}
			if err := rd.process(ctx, msg.Payload); err != nil && ctx.Err() == nil {
				log.Error().
					Err(err).
					Str("payload", msg.Payload).
					Msg("failed to handle record change message")
			}
		}
	}
}

func (rd *RedisListener) performQueueCheck(ctx context.Context) error {
	items, err := rd.NextNQueueItems(ctx, int64(rd.conf.QueueCheckChunk))
	log.Debug().
		AnErr("error", err).
		Int("itemsToProcess", len(items)).
		Msg("doing regular queue check")
	if err != nil {
		return err
	}
	for _, item := range items {
		if err := rd.process(ctx, item); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			if err := rd.AddError(ctx, item); err != nil {
				log.Error().Err(err).Msg("failed to insert error item")
			}
		}
	}
	return nil
}

func (rd *RedisListener) pollQueue(ctx context.Context) error {
	ticker := time.NewTicker(rd.conf.CheckInterval())
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("about to close Redis queue listener")
			return nil
		case <-ticker.C:
			if err := rd.performQueueCheck(ctx); err != nil && ctx.Err() == nil {
				log.Error().Err(err).Msg("failed to process Redis queue")
			}
		}
	}
}

// Listen blocks until ctx is cancelled or the channel
// subscription fails.
func (rd *RedisListener) Listen(ctx context.Context) error {
	g, gCtx := errgroup.WithContext(ctx)
	if rd.conf.Channel != "" {
		g.Go(func() error { return rd.listenChannel(gCtx) })
	}
	if rd.conf.QueueKey != "" {
		g.Go(func() error { return rd.pollQueue(gCtx) })
	}
	return g.Wait()
}

func (rd *RedisListener) Close() error {
	return rd.redis.Close()
}

func NewRedisListener(conf *RedisConf, dispatcher *Dispatcher) *RedisListener {
	return &RedisListener{
		conf: conf,
		redis: redis.NewClient(&redis.Options{
			Addr:     fmt.Sprintf("%s:%d", conf.Host, conf.Port),
			Password: conf.Password,
			DB:       conf.DB,
		}),
		dispatcher: dispatcher,
	}
}
