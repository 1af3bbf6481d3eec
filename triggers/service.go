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
	"io"

	"github.com/rs/zerolog/log"
	"golang.org/x/sync/errgroup"
)

type listener interface {
	io.Closer
	Listen(ctx context.Context) error
}

// Service runs the event dispatcher along with all the configured
// listeners. A failure of any of them stops the whole service.
type Service struct {
	dispatcher *Dispatcher
	listeners  []listener
	cancel     context.CancelFunc
	group      *errgroup.Group
}

func (service *Service) Dispatcher() *Dispatcher {
	return service.dispatcher
}

func (service *Service) Start(ctx context.Context) {
	ctx, service.cancel = context.WithCancel(ctx)
	service.group, ctx = errgroup.WithContext(ctx)
	service.group.Go(func() error {
		return service.dispatcher.Run(ctx)
	})
	for _, lst := range service.listeners {
		lst := lst
		service.group.Go(func() error {
			return lst.Listen(ctx)
		})
	}
	log.Info().
		Int("numListeners", len(service.listeners)).
		Msg("started triggers.Service")
}

func (service *Service) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping triggers.Service")
	if service.cancel == nil {
		return nil
	}
	service.cancel()
	err := service.group.Wait()
	for _, lst := range service.listeners {
		if err2 := lst.Close(); err2 != nil {
			log.Error().Err(err2).Msg("failed to close record change listener")
		}
	}
	if err != nil {
		return fmt.Errorf("triggers.Service finished with error: %w", err)
	}
	return nil
}

func NewService(conf *Conf, dispatcher *Dispatcher) *Service {
	service := &Service{dispatcher: dispatcher}
	if conf.Redis != nil {
		rd := NewRedisListener(conf.Redis, dispatcher)
		log.Info().Str("listener", rd.String()).Msg("configured Redis record change listener")
		service.listeners = append(service.listeners, rd)
	}
	if conf.Kafka != nil {
		service.listeners = append(service.listeners, NewKafkaListener(conf.Kafka, dispatcher))
	}
	return service
}
