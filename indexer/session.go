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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"sync"
	"sync/atomic"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/index/scorch/mergeplan"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/google/uuid"
	"github.com/rs/zerolog/log"
)

const (
	idsPageSize = 500
)

// Hit is a single search result
type Hit struct {
	ID     string         `json:"id"`
	Score  float64        `json:"score"`
	Fields map[string]any `json:"fields"`
}

// Field returns a stored field value in its string form
func (hit Hit) Field(name string) string {
	v, ok := hit.Fields[name]
	if !ok || v == nil {
		return ""
	}
	if s, ok := v.(string); ok {
		return s
	}
	return fmt.Sprint(v)
}

type forceMerger interface {
	ForceMerge(ctx context.Context, mo *mergeplan.MergePlanOptions) error
}

// Session owns an open Bleve index. Writes (add, delete) are staged
// in a batch and become visible only after Commit.
// Session must not be used by more than one writer at a time.
// Search methods can be called concurrently.
type Session struct {
	conf     *Conf
	mapping  *mapping.IndexMappingImpl
	bleveIdx bleve.Index
	idxLock  sync.RWMutex

	batch  *bleve.Batch
	staged map[DocKey][]string

	generation atomic.Uint64
}

// Generation is increased by each successful commit
func (s *Session) Generation() uint64 {
	return s.generation.Load()
}

func (s *Session) index() bleve.Index {
	s.idxLock.RLock()
	defer s.idxLock.RUnlock()
	return s.bleveIdx
}

// Add stages a document for insertion
func (s *Session) Add(doc *Document) error {
	id := uuid.New().String()
	if err := s.batch.Index(id, doc.AsIndexable()); err != nil {
		return storeError("add document", err)
	}
	key := doc.Key()
	s.staged[key] = append(s.staged[key], id)
	return nil
}

// keyQuery matches documents by exact values of their key fields
func (s *Session) keyQuery(key DocKey) query.Query {
	terms := make([]query.Query, 0, 3)
	add := func(field, value string) {
		if value != "" {
			q := bleve.NewTermQuery(value)
			q.SetField(field)
			terms = append(terms, q)
		}
	}
	add(FieldClass, key.Class)
	add(FieldPK, key.PK)
	add(FieldLang, key.Lang)
	return bleve.NewConjunctionQuery(terms...)
}

// findIDs returns IDs of all committed documents matching the query
// sorted by their IDs
func (s *Session) findIDs(ctx context.Context, q query.Query) ([]string, error) {
	ans := make([]string, 0, 10)
	for from := 0; ; from += idsPageSize {
		req := bleve.NewSearchRequestOptions(q, idsPageSize, from, false)
		req.SortBy([]string{"_id"})
		res, err := s.index().SearchInContext(ctx, req)
		if err != nil {
			return nil, storeError("search documents", err)
		}
		for _, hit := range res.Hits {
			ans = append(ans, hit.ID)
		}
		if len(res.Hits) < idsPageSize {
			break
		}
	}
	return ans, nil
}

// deleteMatching stages deletion of both committed and staged
// documents covered by the key. Empty key items match any value.
func (s *Session) deleteMatching(ctx context.Context, key DocKey) (int, error) {
	var numDeleted int
	for k, ids := range s.staged {
		if k.matches(key) {
			for _, id := range ids {
				s.batch.Delete(id)
			}
			numDeleted += len(ids)
			delete(s.staged, k)
		}
	}
	ids, err := s.findIDs(ctx, s.keyQuery(key))
	if err != nil {
		return numDeleted, err
	}
	for _, id := range ids {
		s.batch.Delete(id)
	}
	return numDeleted + len(ids), nil
}

// DeleteByKey stages deletion of documents representing a record.
// With empty key.Lang, documents of all the languages are deleted.
func (s *Session) DeleteByKey(ctx context.Context, key DocKey) (int, error) {
	if key.Class == "" || key.PK == "" {
		return 0, fmt.Errorf("incomplete document key %s", key)
	}
	return s.deleteMatching(ctx, key)
}

// DeleteByLang stages deletion of all documents of a record type
// in a specified language.
func (s *Session) DeleteByLang(ctx context.Context, class, lang string) (int, error) {
	if class == "" || lang == "" {
		return 0, fmt.Errorf("both record type and language must be specified")
	}
	return s.deleteMatching(ctx, DocKey{Class: class, Lang: lang})
}

// DeleteAll stages deletion of all documents in the index. Pending
// (uncommitted) additions are dropped.
func (s *Session) DeleteAll(ctx context.Context) (int, error) {
	s.batch.Reset()
	s.staged = make(map[DocKey][]string)
	ids, err := s.findIDs(ctx, bleve.NewMatchAllQuery())
	if err != nil {
		return 0, err
	}
	for _, id := range ids {
		s.batch.Delete(id)
	}
	return len(ids), nil
}

// NumPending returns number of staged operations
func (s *Session) NumPending() int {
	return s.batch.Size()
}

// Commit writes all the staged operations to the index
func (s *Session) Commit() error {
	if s.batch.Size() == 0 {
		return nil
	}
	err := s.index().Batch(s.batch)
	s.batch.Reset()
	s.staged = make(map[DocKey][]string)
	if err != nil {
		return storeError("commit", err)
	}
	s.generation.Add(1)
	return nil
}

// Optimize merges index segments into a single one
func (s *Session) Optimize(ctx context.Context) error {
	adv, err := s.index().Advanced()
	if err != nil {
		return storeError("optimize", err)
	}
	merger, ok := adv.(forceMerger)
	if !ok {
		log.Debug().Msg("index does not support merging, skipping optimization")
		return nil
	}
	opts := mergeplan.DefaultMergePlanOptions
	opts.MaxSegmentsPerTier = 1
	opts.MaxSegmentSize = 1 << 30
	opts.TierGrowth = 1.0
	opts.FloorSegmentSize = 1 << 30
	if err := merger.ForceMerge(ctx, &opts); err != nil {
		return storeError("optimize", err)
	}
	return nil
}

// Find searches the index. A positive limit specifies
// max. number of hits, otherwise all the matching documents
// are returned.
func (s *Session) Find(ctx context.Context, q query.Query, limit int) ([]Hit, error) {
	idx := s.index()
	size := limit
	if size <= 0 {
		count, err := idx.DocCount()
		if err != nil {
			return nil, storeError("search", err)
		}
		size = int(count)
	}
	req := bleve.NewSearchRequestOptions(q, size, 0, false)
	req.Fields = []string{"*"}
	res, err := idx.SearchInContext(ctx, req)
	if err != nil {
		return nil, storeError("search", err)
	}
	ans := make([]Hit, len(res.Hits))
	for i, hit := range res.Hits {
		ans[i] = Hit{ID: hit.ID, Score: hit.Score, Fields: hit.Fields}
	}
	return ans, nil
}

func (s *Session) Count() (uint64, error) {
	count, err := s.index().DocCount()
	if err != nil {
		return 0, storeError("count documents", err)
	}
	return count, nil
}

// Recreate closes the index, removes all its data and creates
// a new empty index using the current mapping.
func (s *Session) Recreate() error {
	s.idxLock.Lock()
	defer s.idxLock.Unlock()
	if err := s.bleveIdx.Close(); err != nil {
		log.Error().Err(err).Msg("failed to close index before recreating")
	}
	if err := os.RemoveAll(s.conf.IndexDirPath); err != nil {
		return fmt.Errorf("failed to remove index data: %w", err)
	}
	bleveIdx, err := bleve.New(s.conf.IndexDirPath, s.mapping)
	if err != nil {
		return storeError("create index", err)
	}
	s.bleveIdx = bleveIdx
	s.batch = bleveIdx.NewBatch()
	s.staged = make(map[DocKey][]string)
	s.generation.Add(1)
	log.Info().Str("indexDirPath", s.conf.IndexDirPath).Msg("recreated fulltext index")
	return nil
}

func (s *Session) Close() error {
	return s.index().Close()
}

func (s *Session) checkMapping() {
	stored, err := json.Marshal(s.bleveIdx.Mapping())
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize stored index mapping")
		return
	}
	wanted, err := json.Marshal(s.mapping)
	if err != nil {
		log.Error().Err(err).Msg("failed to serialize index mapping")
		return
	}
	if !bytes.Equal(stored, wanted) {
		log.Warn().
			Str("indexDirPath", s.conf.IndexDirPath).
			Msg("stored index mapping differs from configuration, full reindex with index recreation is recommended")
	}
}

// OpenSession opens an existing index or creates a new one
// in case there is no index at the configured location.
func OpenSession(conf *Conf, models []*IndexConfig) (*Session, error) {
	idxMapping, err := CreateMapping(conf.CaseSensitive, models)
	if err != nil {
		return nil, err
	}
	var created bool
	bleveIdx, err := bleve.Open(conf.IndexDirPath)
	if errors.Is(err, bleve.ErrorIndexMetaMissing) || errors.Is(err, bleve.ErrorIndexPathDoesNotExist) {
		bleveIdx, err = bleve.New(conf.IndexDirPath, idxMapping)
		if err != nil {
			return nil, storeError("create new index", err)
		}
		created = true

	} else if err != nil {
		return nil, storeError("open index", err)
	}
	ans := &Session{
		conf:     conf,
		mapping:  idxMapping,
		bleveIdx: bleveIdx,
		batch:    bleveIdx.NewBatch(),
		staged:   make(map[DocKey][]string),
	}
	if !created {
		ans.checkMapping()
	}
	log.Info().
		Str("indexDirPath", conf.IndexDirPath).
		Bool("created", created).
		Msg("opened fulltext index")
	return ans, nil
}
