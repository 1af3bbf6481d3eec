// Copyright 2024 Martin Zimandl <martin.zimandl@gmail.com>
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

package indexer

import (
	"context"
	"time"

	"github.com/rs/zerolog/log"
)

// Service performs periodic optimization of the index in case
// incremental updates do not optimize it by themselves.
type Service struct {
	indexer  *Indexer
	interval time.Duration
	lastGen  uint64
}

func (service *Service) Indexer() *Indexer {
	return service.indexer
}

func (service *Service) optimizeIfChanged(ctx context.Context) {
	gen := service.indexer.Session().Generation()
	if gen == service.lastGen {
		return
	}
	t0 := time.Now()
	if err := service.indexer.Optimize(ctx); err != nil {
		log.Error().Err(err).Msg("failed to optimize index")
		return
	}
	service.lastGen = gen
	log.Info().
		Dur("duration", time.Since(t0)).
		Uint64("generation", gen).
		Msg("optimized index")
}

func (service *Service) Start(ctx context.Context) {
	if service.interval == 0 {
		log.Info().Msg("background index optimization disabled")
		return
	}
	log.Info().
		Dur("interval", service.interval).
		Msg("starting indexer.Service task")
	ticker := time.NewTicker(service.interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close indexer.Service")
				return
			case <-ticker.C:
				service.optimizeIfChanged(ctx)
			}
		}
	}()
}

func (service *Service) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping indexer.Service task")
	return nil
}

func NewService(conf *Conf, indexer *Indexer) *Service {
	var interval time.Duration
	if !conf.OptimizesOnUpsert() {
		interval = conf.OptimizeIntervalDur()
	}
	return &Service{
		indexer:  indexer,
		interval: interval,
		lastGen:  indexer.Session().Generation(),
	}
}
