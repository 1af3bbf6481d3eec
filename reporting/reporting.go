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

	"github.com/czcorpus/hltscl"
	"github.com/rs/zerolog/log"
)

/*
Expected tables:

create table recsearch_indexing_stats (
  "time" timestamp with time zone NOT NULL,
  num_fetched int,
  num_indexed int,
  num_skipped int,
  num_duplicates int,
  num_deleted int,
  num_errors int,
  duration_ms int
);

select create_hypertable('recsearch_indexing_stats', 'time');

create table recsearch_trigger_stats (
  "time" timestamp with time zone NOT NULL,
  num_upserted int,
  num_deleted int,
  num_skipped int,
  num_errors int
);

select create_hypertable('recsearch_trigger_stats', 'time');

*/

type StatusWriter struct {
	indexingWriter *hltscl.TableWriter
	triggerWriter  *hltscl.TableWriter
	indexingDataCh chan<- hltscl.Entry
	triggerDataCh  chan<- hltscl.Entry
	errCh          <-chan hltscl.WriteError
	triggerErrCh   <-chan hltscl.WriteError
	location       *time.Location
}

func (job *StatusWriter) Start(ctx context.Context) {
	go func() {
		for {
			select {
			case <-ctx.Done():
				log.Info().Msg("about to close StatusWriter")
				return
			case err := <-job.errCh:
				log.Error().
					Err(err.Err).
					Str("entry", err.Entry.String()).
					Msg("error writing indexing stats to TimescaleDB")
			case err := <-job.triggerErrCh:
				log.Error().
					Err(err.Err).
					Str("entry", err.Entry.String()).
					Msg("error writing trigger stats to TimescaleDB")
			}
		}
	}()
}

func (job *StatusWriter) Stop(ctx context.Context) error {
	log.Warn().Msg("stopping StatusWriter")
	return nil
}

func (ds *StatusWriter) WriteIndexingStatus(item IndexingStats) {
	if ds.indexingWriter != nil {
		ds.indexingDataCh <- *ds.indexingWriter.NewEntry(time.Now().In(ds.location)).
			Int("num_fetched", item.NumFetched).
			Int("num_indexed", item.NumIndexed).
			Int("num_skipped", item.NumSkipped).
			Int("num_duplicates", item.NumDuplicates).
			Int("num_deleted", item.NumDeleted).
			Int("num_errors", item.NumErrors).
			Int("duration_ms", int(item.Duration.Milliseconds()))
	}
}

func (ds *StatusWriter) WriteTriggerStatus(item TriggerStats) {
	if ds.triggerWriter != nil {
		ds.triggerDataCh <- *ds.triggerWriter.NewEntry(time.Now().In(ds.location)).
			Int("num_upserted", item.NumUpserted).
			Int("num_deleted", item.NumDeleted).
			Int("num_skipped", item.NumSkipped).
			Int("num_errors", item.NumErrors)
	}
}

func NewStatusWriter(conf hltscl.PgConf, tz *time.Location) (*StatusWriter, error) {
	conn, err := hltscl.CreatePool(conf)
	if err != nil {
		return nil, err
	}
	indexingWriter := hltscl.NewTableWriter(conn, "recsearch_indexing_stats", "time", tz)
	indexingDataCh, errCh := indexingWriter.Activate()
	triggerWriter := hltscl.NewTableWriter(conn, "recsearch_trigger_stats", "time", tz)
	triggerDataCh, triggerErrCh := triggerWriter.Activate()
	return &StatusWriter{
		indexingWriter: indexingWriter,
		triggerWriter:  triggerWriter,
		indexingDataCh: indexingDataCh,
		triggerDataCh:  triggerDataCh,
		errCh:          errCh,
		triggerErrCh:   triggerErrCh,
		location:       tz,
	}, nil
}
