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
	"fmt"
	"recsearch/util"
	"time"

	"github.com/czcorpus/cnc-gokit/datetime"
	"github.com/rs/zerolog/log"
)

const (
	dfltQueueSize           = 100
	dfltStatsReportInterval = "5m"
	dfltRedisPort           = 6379
	dfltQueueCheckInterval  = "10s"
	dfltQueueCheckChunk     = 50
	dfltKafkaMinBytes       = 1e3
	dfltKafkaMaxBytes       = 10e6
	dfltKafkaRetryDelay     = "1s"
	dfltKafkaMaxRetryDelay  = "1m"
)

// RedisConf configures Redis based change notifications.
// Events can be received via a pub/sub channel, a list used
// as a queue (RPUSH by producers) or both.
type RedisConf struct {
	Host     string `json:"host" yaml:"host"`
	Port     int    `json:"port" yaml:"port"`
	DB       int    `json:"db" yaml:"db"`
	Password string `json:"password" yaml:"password"`
	Channel  string `json:"channel" yaml:"channel"`
	QueueKey string `json:"queueKey" yaml:"queueKey"`

	// ErrorQueueKey is a list where events failed to be processed
	// are stored. Defaults to QueueKey + "_errors".
	ErrorQueueKey      string `json:"errorQueueKey" yaml:"errorQueueKey"`
	QueueCheckInterval string `json:"queueCheckInterval" yaml:"queueCheckInterval"`
	QueueCheckChunk    int    `json:"queueCheckChunk" yaml:"queueCheckChunk"`
}

func (conf *RedisConf) CheckInterval() time.Duration {
	dur, err := datetime.ParseDuration(conf.QueueCheckInterval)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks this in a more graceful way
	}
	return dur
}

func (conf *RedisConf) ValidateAndDefaults() error {
	if conf.Host == "" {
		return fmt.Errorf("missing Redis host")
	}
	if conf.Port == 0 {
		conf.Port = dfltRedisPort
		log.Warn().
			Int("value", conf.Port).
			Msg("triggers value `redis.port` not set, using default")
	}
	if conf.Channel == "" && conf.QueueKey == "" {
		return fmt.Errorf("at least one of redis.channel, redis.queueKey must be set")
	}
	if conf.QueueKey != "" {
		if conf.ErrorQueueKey == "" {
			conf.ErrorQueueKey = conf.QueueKey + "_errors"
		}
		if conf.QueueCheckInterval == "" {
			conf.QueueCheckInterval = dfltQueueCheckInterval
			log.Warn().
				Str("value", conf.QueueCheckInterval).
				Msg("triggers value `redis.queueCheckInterval` not set, using default")
		}
		dur, err := datetime.ParseDuration(conf.QueueCheckInterval)
		if err != nil {
			return fmt.Errorf("failed to validate redis.queueCheckInterval: %w", err)
		}
		tuned, err := util.PrimeSecondsInterval(dur)
		if err != nil {
			return fmt.Errorf("failed to tune ops timing: %w", err)
		}
		if tuned != dur {
			log.Warn().
				Dur("oldValue", dur).
				Dur("newValue", tuned).
				Msg("tuned value of redis.queueCheckInterval so it cannot be easily overlapped by other timers")
			conf.QueueCheckInterval = tuned.String()
		}
		if conf.QueueCheckChunk <= 0 {
			conf.QueueCheckChunk = dfltQueueCheckChunk
		}
	}
	return nil
}

type KafkaConf struct {
	Brokers  []string `json:"brokers" yaml:"brokers"`
	Topic    string   `json:"topic" yaml:"topic"`
	GroupID  string   `json:"groupId" yaml:"groupId"`
	MinBytes int      `json:"minBytes" yaml:"minBytes"`
	MaxBytes int      `json:"maxBytes" yaml:"maxBytes"`

	// RetryDelay is the initial pause before a failed message is
	// processed again (or a failed fetch is repeated). The pause doubles
	// with each attempt up to MaxRetryDelay.
	RetryDelay    string `json:"retryDelay" yaml:"retryDelay"`
	MaxRetryDelay string `json:"maxRetryDelay" yaml:"maxRetryDelay"`
}

func (conf *KafkaConf) RetryDelays() (time.Duration, time.Duration) {
	initial, err := datetime.ParseDuration(conf.RetryDelay)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks this in a more graceful way
	}
	maxDelay, err := datetime.ParseDuration(conf.MaxRetryDelay)
	if err != nil {
		panic(err)
	}
	return initial, maxDelay
}

func (conf *KafkaConf) ValidateAndDefaults() error {
	if len(conf.Brokers) == 0 {
		return fmt.Errorf("missing kafka.brokers")
	}
	if conf.Topic == "" {
		return fmt.Errorf("missing kafka.topic")
	}
	if conf.GroupID == "" {
		return fmt.Errorf("missing kafka.groupId")
	}
	if conf.MinBytes == 0 {
		conf.MinBytes = dfltKafkaMinBytes
	}
	if conf.MaxBytes == 0 {
		conf.MaxBytes = dfltKafkaMaxBytes
	}
	if conf.RetryDelay == "" {
		conf.RetryDelay = dfltKafkaRetryDelay
	}
	if conf.MaxRetryDelay == "" {
		conf.MaxRetryDelay = dfltKafkaMaxRetryDelay
	}
	initial, err := datetime.ParseDuration(conf.RetryDelay)
	if err != nil {
		return fmt.Errorf("failed to validate kafka.retryDelay: %w", err)
	}
	maxDelay, err := datetime.ParseDuration(conf.MaxRetryDelay)
	if err != nil {
		return fmt.Errorf("failed to validate kafka.maxRetryDelay: %w", err)
	}
	if initial <= 0 || maxDelay < initial {
		return fmt.Errorf("kafka.retryDelay must be positive and not greater than kafka.maxRetryDelay")
	}
	return nil
}

type Conf struct {
	Redis *RedisConf `json:"redis" yaml:"redis"`
	Kafka *KafkaConf `json:"kafka" yaml:"kafka"`

	// QueueSize limits number of events waiting for the indexer
	QueueSize           int    `json:"queueSize" yaml:"queueSize"`
	StatsReportInterval string `json:"statsReportInterval" yaml:"statsReportInterval"`
}

func (conf *Conf) ReportInterval() time.Duration {
	dur, err := datetime.ParseDuration(conf.StatsReportInterval)
	if err != nil {
		panic(err) // ValidateAndDefaults() checks this in a more graceful way
	}
	return dur
}

func (conf *Conf) ValidateAndDefaults() error {
	if conf == nil {
		return fmt.Errorf("missing `triggers` section")
	}
	if conf.QueueSize <= 0 {
		conf.QueueSize = dfltQueueSize
		log.Warn().
			Int("value", conf.QueueSize).
			Msg("triggers value `queueSize` not set, using default")
	}
	if conf.StatsReportInterval == "" {
		conf.StatsReportInterval = dfltStatsReportInterval
	}
	reportIval, err := datetime.ParseDuration(conf.StatsReportInterval)
	if err != nil {
		return fmt.Errorf("failed to validate statsReportInterval: %w", err)
	}
	if reportIval <= 0 {
		return fmt.Errorf("statsReportInterval must be a positive duration")
	}
	if conf.Redis != nil {
		if err := conf.Redis.ValidateAndDefaults(); err != nil {
			return fmt.Errorf("invalid `triggers.redis` section: %w", err)
		}
	}
	if conf.Kafka != nil {
		if err := conf.Kafka.ValidateAndDefaults(); err != nil {
			return fmt.Errorf("invalid `triggers.kafka` section: %w", err)
		}
	}
	return nil
}
