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

package reporting

import (
	"context"
	"time"
)

// IndexingStats describes a single full rebuild
// of the index
type IndexingStats struct {
	NumFetched    int           `json:"numFetched"`
	NumIndexed    int           `json:"numIndexed"`
	NumSkipped    int           `json:"numSkipped"`
	NumDuplicates int           `json:"numDuplicates"`
	NumDeleted    int           `json:"numDeleted"`
	NumErrors     int           `json:"numErrors"`
	Duration      time.Duration `json:"duration"`
}

func (st *IndexingStats) UpdateBy(other IndexingStats) {
	st.NumFetched += other.NumFetched
	st.NumIndexed += other.NumIndexed
	st.NumSkipped += other.NumSkipped
	st.NumDuplicates += other.NumDuplicates
	st.NumDeleted += other.NumDeleted
	st.NumErrors += other.NumErrors
}

// TriggerStats aggregates incremental index updates
// caused by record change events
type TriggerStats struct {
	NumUpserted int `json:"numUpserted"`
	NumDeleted  int `json:"numDeleted"`
	NumSkipped  int `json:"numSkipped"`
	NumErrors   int `json:"numErrors"`
}

func (st *TriggerStats) ShowsActivity() bool {
	return st.NumUpserted+st.NumDeleted+st.NumSkipped+st.NumErrors > 0
}

type IReporting interface {
	Start(ctx context.Context)
	Stop(ctx context.Context) error
	WriteIndexingStatus(item IndexingStats)
	WriteTriggerStatus(item TriggerStats)
}
