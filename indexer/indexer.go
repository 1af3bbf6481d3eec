// Copyright 2024 Martin Zimandl <martin.zimandl@gmail.com>
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

package indexer

import (
	"context"
	"errors"
	"fmt"
	"recsearch/metrics"
	"recsearch/record"
	"recsearch/reporting"
	"sync"
	"time"

	"github.com/bits-and-blooms/bloom"
	"github.com/rs/zerolog/log"
)

const (
	duplicatesFalsePositiveRate = 0.001
)

// Indexer keeps the fulltext index in sync with records.
// All the write operations are serialized.
type Indexer struct {
	conf      *Conf
	models    []*IndexConfig
	modelsMap map[string]*IndexConfig
	session   *Session
	builder   *Builder
	source    RecordSource
	reporting reporting.IReporting
	metrics   *metrics.Metrics
	mu        sync.Mutex
}

func (idx *Indexer) Session() *Session {
	return idx.session
}

// IndexConfig returns configuration for a record type
func (idx *Indexer) IndexConfig(recordType string) (*IndexConfig, bool) {
	ic, ok := idx.modelsMap[recordType]
	return ic, ok
}

func (idx *Indexer) commit() error {
	if err := idx.session.Commit(); err != nil {
		idx.metrics.IndexCommitsTotal.WithLabelValues("error").Inc()
		return err
	}
	idx.metrics.IndexCommitsTotal.WithLabelValues("ok").Inc()
	if count, err := idx.session.Count(); err == nil {
		idx.metrics.IndexDocCount.Set(float64(count))
	}
	return nil
}

// addRecord builds and stages one document per configured language
// (or a single document if no languages are configured). Returns
// number of staged documents.
func (idx *Indexer) addRecord(ic *IndexConfig, rec record.Record) (int, error) {
	langs := ic.Languages
	if len(langs) == 0 {
		langs = []string{""}
	}
	for _, lang := range langs {
		doc, err := idx.builder.Build(rec, ic.Attributes, lang)
		if err != nil {
			return 0, err
		}
		if err := idx.session.Add(doc); err != nil {
			return 0, err
		}
		log.Debug().Str("key", doc.Key().String()).Msg("staged document")
	}
	idx.metrics.DocsIndexedTotal.WithLabelValues(ic.RecordType).Add(float64(len(langs)))
	return len(langs), nil
}

func (idx *Indexer) reindexType(ctx context.Context, ic *IndexConfig) (reporting.IndexingStats, error) {
	var stats reporting.IndexingStats
	for _, lang := range ic.Languages {
		n, err := idx.session.DeleteByLang(ctx, ic.RecordType, lang)
		if err != nil {
			return stats, err
		}
		stats.NumDeleted += n
	}
	seen := bloom.NewWithEstimates(idx.conf.ExpectedRecordsPerType, duplicatesFalsePositiveRate)
	err := idx.source.Stream(ctx, ic.RecordType, func(rec record.Record) error {
		stats.NumFetched++
		if !ic.MatchesConditions(rec) {
			stats.NumSkipped++
			return nil
		}
		if seen.TestAndAddString(rec.PK()) {
			// possibly seen before, make sure the key stays unique
			n, err := idx.session.DeleteByKey(ctx, DocKey{Class: ic.RecordType, PK: rec.PK()})
			if err != nil {
				return err
			}
			if n > 0 {
				stats.NumDuplicates++
				log.Warn().
					Str("recordType", ic.RecordType).
					Str("pk", rec.PK()).
					Msg("record source provided a duplicate record, keeping the last one")
			}
		}
		n, err := idx.addRecord(ic, rec)
		if err != nil {
			return err
		}
		stats.NumIndexed += n
		return nil
	})
	if err != nil {
		stats.NumErrors++
		return stats, fmt.Errorf("failed to reindex %s: %w", ic.RecordType, err)
	}
	return stats, nil
}

// ReindexAll removes all the documents from the index and indexes
// all the records of all the configured types. The operation stops
// on the first error. Records indexed before the error are kept
// in the index.
func (idx *Indexer) ReindexAll(ctx context.Context) (stats reporting.IndexingStats, err error) {
	if len(idx.models) == 0 {
		return stats, fmt.Errorf("cannot reindex: %w: no record types configured", ErrConfiguration)
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	t0 := time.Now()
	defer func() {
		stats.Duration = time.Since(t0)
		idx.metrics.RebuildDuration.Observe(stats.Duration.Seconds())
		idx.reporting.WriteIndexingStatus(stats)
	}()

	numDeleted, err := idx.session.DeleteAll(ctx)
	if err != nil {
		stats.NumErrors++
		return stats, err
	}
	stats.NumDeleted = numDeleted
	idx.metrics.DocsDeletedTotal.WithLabelValues("*").Add(float64(numDeleted))
	if err := idx.commit(); err != nil {
		stats.NumErrors++
		return stats, err
	}
	log.Info().Int("numDeleted", numDeleted).Msg("removed all documents from index")

	for _, ic := range idx.models {
		typeStats, err := idx.reindexType(ctx, ic)
		stats.UpdateBy(typeStats)
		if cErr := idx.commit(); cErr != nil {
			stats.NumErrors++
			return stats, errors.Join(err, cErr)
		}
		if err != nil {
			return stats, err
		}
		log.Info().
			Str("recordType", ic.RecordType).
			Any("stats", typeStats).
			Msg("reindexed record type")
	}
	if err := idx.session.Optimize(ctx); err != nil {
		stats.NumErrors++
		return stats, err
	}
	return stats, nil
}

func (idx *Indexer) afterIncrementalUpdate(ctx context.Context) error {
	if err := idx.commit(); err != nil {
		return err
	}
	if idx.conf.OptimizesOnUpsert() {
		return idx.session.Optimize(ctx)
	}
	return nil
}

// ReindexOne replaces all the documents representing the record
// with new ones. In case the record does not match configured
// conditions, it is only removed from the index.
// The returned bool tells whether the record has been indexed.
func (idx *Indexer) ReindexOne(ctx context.Context, rec record.Record) (bool, error) {
	ic, ok := idx.modelsMap[rec.Type()]
	if !ok {
		log.Debug().Str("recordType", rec.Type()).Msg("record type not configured for indexing, ignoring")
		return false, nil
	}
	idx.mu.Lock()
	defer idx.mu.Unlock()

	numDeleted, err := idx.session.DeleteByKey(ctx, DocKey{Class: rec.Type(), PK: rec.PK()})
	if err != nil {
		return false, err
	}
	idx.metrics.DocsDeletedTotal.WithLabelValues(ic.RecordType).Add(float64(numDeleted))
	var indexed bool
	var addErr error
	if ic.MatchesConditions(rec) {
		_, addErr = idx.addRecord(ic, rec)
		indexed = addErr == nil

	} else {
		log.Debug().
			Str("recordType", rec.Type()).
			Str("pk", rec.PK()).
			Msg("record does not match indexing conditions, skipping")
	}
	if err := idx.afterIncrementalUpdate(ctx); err != nil {
		return false, errors.Join(addErr, err)
	}
	return indexed, addErr
}

// Delete removes all the documents representing a record
func (idx *Indexer) Delete(ctx context.Context, recordType, pk string) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	numDeleted, err := idx.session.DeleteByKey(ctx, DocKey{Class: recordType, PK: pk})
	if err != nil {
		return err
	}
	idx.metrics.DocsDeletedTotal.WithLabelValues(recordType).Add(float64(numDeleted))
	log.Debug().
		Str("recordType", recordType).
		Str("pk", pk).
		Int("numDocs", numDeleted).
		Msg("deleting record documents")
	return idx.afterIncrementalUpdate(ctx)
}

// Optimize compacts the index
func (idx *Indexer) Optimize(ctx context.Context) error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.session.Optimize(ctx)
}

// RecreateIndex drops all the index data and creates an empty index
// with the current mapping. It is needed e.g. after changing field
// types or case sensitivity.
func (idx *Indexer) RecreateIndex() error {
	idx.mu.Lock()
	defer idx.mu.Unlock()
	return idx.session.Recreate()
}

// Documents returns all the index documents (i.e. including language
// variants) of a record
func (idx *Indexer) Documents(ctx context.Context, recordType, pk string) ([]Hit, error) {
	if recordType == "" || pk == "" {
		return nil, fmt.Errorf("%w: both record type and pk must be specified", ErrRecordContract)
	}
	return idx.session.Find(ctx, idx.session.keyQuery(DocKey{Class: recordType, PK: pk}), 0)
}

func (idx *Indexer) Count() (uint64, error) {
	return idx.session.Count()
}

// OnRecordCreated should be called by a record persistence layer
// once a new record is stored.
func (idx *Indexer) OnRecordCreated(ctx context.Context, rec record.Record) error {
	_, err := idx.ReindexOne(ctx, rec)
	return err
}

// OnRecordUpdated should be called by a record persistence layer
// once a record is changed.
func (idx *Indexer) OnRecordUpdated(ctx context.Context, rec record.Record) error {
	_, err := idx.ReindexOne(ctx, rec)
	return err
}

// OnRecordDeleted should be called by a record persistence layer
// once a record is removed.
func (idx *Indexer) OnRecordDeleted(ctx context.Context, recordType, pk string) error {
	return idx.Delete(ctx, recordType, pk)
}

func NewIndexer(
	conf *Conf,
	models []*IndexConfig,
	session *Session,
	source RecordSource,
	rep reporting.IReporting,
	mtr *metrics.Metrics,
) *Indexer {
	modelsMap := make(map[string]*IndexConfig, len(models))
	for _, ic := range models {
		modelsMap[ic.RecordType] = ic
	}
	return &Indexer{
		conf:      conf,
		models:    models,
		modelsMap: modelsMap,
		session:   session,
		builder:   NewBuilder(NewResolver(conf.DocumentExtensions)),
		source:    source,
		reporting: rep,
		metrics:   mtr,
	}
}
