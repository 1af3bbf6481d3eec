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

package recsrc

import (
	"context"
	"fmt"
	"recsearch/record"
	"sync"
)

// MemorySource is an in-memory record source. Records of each type
// are provided in the order of their first insertion.
type MemorySource struct {
	mu      sync.RWMutex
	records map[string][]record.Record
}

// Put adds a record or replaces an existing one with the same type and PK
func (src *MemorySource) Put(rec record.Record) {
	src.mu.Lock()
	defer src.mu.Unlock()
	items := src.records[rec.Type()]
	for i, item := range items {
		if item.PK() == rec.PK() {
			items[i] = rec
			return
		}
	}
	src.records[rec.Type()] = append(items, rec)
}

func (src *MemorySource) Remove(recordType, pk string) bool {
	src.mu.Lock()
	defer src.mu.Unlock()
	items := src.records[recordType]
	for i, item := range items {
		if item.PK() == pk {
			src.records[recordType] = append(items[:i], items[i+1:]...)
			return true
		}
	}
	return false
}

// Stream implements indexer.RecordSource
func (src *MemorySource) Stream(ctx context.Context, recordType string, fn func(rec record.Record) error) error {
	src.mu.RLock()
	items := make([]record.Record, len(src.records[recordType]))
	copy(items, src.records[recordType])
	src.mu.RUnlock()
	for _, item := range items {
		if err := ctx.Err(); err != nil {
			return err
		}
		if err := fn(item); err != nil {
			return err
		}
	}
	return nil
}

// Load implements indexer.RecordSource
func (src *MemorySource) Load(ctx context.Context, recordType, pk string) (record.Record, error) {
	src.mu.RLock()
	defer src.mu.RUnlock()
	for _, item := range src.records[recordType] {
		if item.PK() == pk {
			return item, nil
		}
	}
	return nil, fmt.Errorf("failed to load record %s:%s: %w", recordType, pk, record.ErrNotFound)
}

func NewMemorySource(records ...record.Record) *MemorySource {
	ans := &MemorySource{records: make(map[string][]record.Record)}
	for _, rec := range records {
		ans.Put(rec)
	}
	return ans
}
