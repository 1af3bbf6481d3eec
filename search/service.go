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

package search

import (
	"context"
	"fmt"
	"recsearch/indexer"
	"recsearch/metrics"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/singleflight"
)

type cachedResult struct {
	generation uint64
	hits       []indexer.Hit
}

// Service answers fulltext queries. Results are cached until
// the next index commit.
type Service struct {
	session *indexer.Session
	opts    Options
	cache   *lru.Cache[string, cachedResult]
	group   singleflight.Group
	metrics *metrics.Metrics
}

func (service *Service) Options() Options {
	return service.opts
}

// Search returns documents matching all the term parts and
// all the field filters, ordered by descending score.
func (service *Service) Search(ctx context.Context, term string, filters FieldFilters) ([]indexer.Hit, error) {
	t0 := time.Now()
	q, err := BuildQuery(term, filters, service.opts)
	if err != nil {
		service.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	if q == nil {
		service.metrics.SearchQueriesTotal.WithLabelValues("empty").Inc()
		return []indexer.Hit{}, nil
	}

	cacheKey := term + "\x00" + filters.String()
	gen := service.session.Generation()
	if service.cache != nil {
		if item, ok := service.cache.Get(cacheKey); ok && item.generation == gen {
			service.metrics.CacheHitsTotal.Inc()
			service.metrics.SearchLatency.WithLabelValues("hit").Observe(time.Since(t0).Seconds())
			service.observeResult(item.hits)
			return item.hits, nil
		}
		service.metrics.CacheMissesTotal.Inc()
	}

	// concurrent identical queries within the same generation share one search
	// so it must not depend on cancellation of the caller who started it
	sharedCtx := context.WithoutCancel(ctx)
	v, err, _ := service.group.Do(fmt.Sprintf("%d:%s", gen, cacheKey), func() (any, error) {
		return service.session.Find(sharedCtx, q, service.opts.ResultLimit)
	})
	if err != nil {
		service.metrics.SearchQueriesTotal.WithLabelValues("error").Inc()
		return nil, err
	}
	hits := v.([]indexer.Hit)
	if service.cache != nil {
		service.cache.Add(cacheKey, cachedResult{generation: gen, hits: hits})
	}
	service.metrics.SearchLatency.WithLabelValues("miss").Observe(time.Since(t0).Seconds())
	service.observeResult(hits)
	log.Debug().
		Str("term", term).
		Str("filters", filters.String()).
		Int("numHits", len(hits)).
		Msg("performed fulltext search")
	return hits, nil
}

func (service *Service) observeResult(hits []indexer.Hit) {
	if len(hits) == 0 {
		service.metrics.SearchQueriesTotal.WithLabelValues("zero_result").Inc()

	} else {
		service.metrics.SearchQueriesTotal.WithLabelValues("hit").Inc()
	}
}

// NewService creates a search service. With cacheSize <= 0,
// results are not cached.
func NewService(session *indexer.Session, opts Options, cacheSize int, mtr *metrics.Metrics) (*Service, error) {
	service := &Service{
		session: session,
		opts:    opts,
		metrics: mtr,
	}
	if cacheSize > 0 {
		cache, err := lru.New[string, cachedResult](cacheSize)
		if err != nil {
			return nil, err
		}
		service.cache = cache
	}
	return service, nil
}
