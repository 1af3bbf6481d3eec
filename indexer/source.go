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
	"recsearch/record"
)

// RecordSource provides records to be indexed
type RecordSource interface {

	// Stream calls fn for each record of the type. Iteration stops
	// on the first error returned by fn. Each call starts from
	// the beginning.
	Stream(ctx context.Context, recordType string, fn func(rec record.Record) error) error

	// Load fetches a single record. In case the record does not
	// exist, record.ErrNotFound is returned.
	Load(ctx context.Context, recordType, pk string) (record.Record, error)
}
