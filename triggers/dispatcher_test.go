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
	"path/filepath"
	"recsearch/indexer"
	"recsearch/metrics"
	"recsearch/record"
	"recsearch/recsrc"
	"recsearch/reporting"
	"testing"
	"time"

	"github.com/blevesearch/bleve/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func note(pk, text string) record.Record {
	return record.WithURL(
		record.NewMapRecord("Note", pk, map[string]any{"text": text}),
		"/notes/"+pk,
	)
}

func prepareDispatcher(t *testing.T, recs ...record.Record) (*Dispatcher, *indexer.Indexer, *recsrc.MemorySource) {
	iconf := &indexer.Conf{IndexDirPath: filepath.Join(t.TempDir(), "index")}
	require.NoError(t, iconf.ValidateAndDefaults())
	model := &indexer.IndexConfig{
		RecordType: "Note",
		Attributes: []indexer.AttributeSpec{{FieldName: "text"}},
	}
	require.NoError(t, model.ValidateAndDefaults())
	models := []*indexer.IndexConfig{model}
	session, err := indexer.OpenSession(iconf, models)
	require.NoError(t, err)
	t.Cleanup(func() { session.Close() })
	src := recsrc.NewMemorySource(recs...)
	mtr := metrics.New(nil)
	idx := indexer.NewIndexer(iconf, models, session, src, &reporting.DummyWriter{}, mtr)
	conf := &Conf{}
	require.NoError(t, conf.ValidateAndDefaults())
	return NewDispatcher(conf, idx, src, &reporting.DummyWriter{}, mtr), idx, src
}

func numMatching(t *testing.T, idx *indexer.Indexer, term string) int {
	hits, err := idx.Session().Find(context.Background(), bleve.NewTermQuery(term), 0)
	require.NoError(t, err)
	return len(hits)
}

func TestDispatcherCreateUpdateDelete(t *testing.T) {
	d, idx, src := prepareDispatcher(t)
	ctx := context.Background()

	src.Put(note("1", "original text"))
	require.NoError(t, d.handle(ctx, Event{Action: ActionCreated, RecordType: "Note", PK: "1"}))
	assert.Equal(t, 1, numMatching(t, idx, "original"))

	src.Put(note("1", "changed text"))
	require.NoError(t, d.handle(ctx, Event{Action: ActionUpdated, RecordType: "Note", PK: "1"}))
	assert.Equal(t, 0, numMatching(t, idx, "original"))
	assert.Equal(t, 1, numMatching(t, idx, "changed"))

	require.NoError(t, d.handle(ctx, Event{Action: ActionDeleted, RecordType: "Note", PK: "1"}))
	assert.Equal(t, 0, numMatching(t, idx, "changed"))

	st := d.Stats()
	assert.Equal(t, 2, st.NumUpserted)
	assert.Equal(t, 1, st.NumDeleted)
}

func TestDispatcherRepeatedCreateIsIdempotent(t *testing.T) {
	d, idx, _ := prepareDispatcher(t, note("1", "twice"))
	ev := Event{Action: ActionCreated, RecordType: "Note", PK: "1"}
	require.NoError(t, d.handle(context.Background(), ev))
	require.NoError(t, d.handle(context.Background(), ev))
	assert.Equal(t, 1, numMatching(t, idx, "twice"))
}

func TestDispatcherVanishedRecordIsRemoved(t *testing.T) {
	d, idx, src := prepareDispatcher(t, note("1", "ghost"))
	ctx := context.Background()
	require.NoError(t, d.handle(ctx, Event{Action: ActionCreated, RecordType: "Note", PK: "1"}))
	assert.Equal(t, 1, numMatching(t, idx, "ghost"))

	src.Remove("Note", "1")
	require.NoError(t, d.handle(ctx, Event{Action: ActionUpdated, RecordType: "Note", PK: "1"}))
	assert.Equal(t, 0, numMatching(t, idx, "ghost"))
}

func TestDispatcherUnconfiguredTypeIsSkipped(t *testing.T) {
	d, _, _ := prepareDispatcher(t)
	require.NoError(t, d.handle(
		context.Background(), Event{Action: ActionCreated, RecordType: "User", PK: "1"}))
	assert.Equal(t, 1, d.Stats().NumSkipped)
}

func TestDispatcherInvalidEvent(t *testing.T) {
	d, _, _ := prepareDispatcher(t)
	err := d.handle(context.Background(), Event{Action: "renamed", RecordType: "Note", PK: "1"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	err = d.handle(context.Background(), Event{Action: ActionDeleted, RecordType: "Note"})
	assert.ErrorIs(t, err, ErrInvalidEvent)
	assert.Equal(t, 2, d.Stats().NumErrors)
}

func TestDispatcherSubmitThroughQueue(t *testing.T) {
	d, idx, _ := prepareDispatcher(t, note("1", "queued"), note("2", "queued"))
	ctx, cancel := context.WithCancel(context.Background())
	go d.Run(ctx)

	results := make(chan error, 2)
	for _, pk := range []string{"1", "2"} {
		pk := pk
		go func() {
			results <- d.Submit(ctx, Event{Action: ActionCreated, RecordType: "Note", PK: pk})
		}()
	}
	for i := 0; i < 2; i++ {
		assert.NoError(t, <-results)
	}
	assert.Equal(t, 2, numMatching(t, idx, "queued"))

	cancel()
	select {
	case <-d.done:
	case <-time.After(5 * time.Second):
		t.Fatal("dispatcher did not stop")
	}
	err := d.Submit(context.Background(), Event{Action: ActionDeleted, RecordType: "Note", PK: "1"})
	assert.ErrorIs(t, err, ErrDispatcherClosed)
}

func TestDecodeEvent(t *testing.T) {
	ev, err := DecodeEvent([]byte(`{"action":"updated","recordType":"Note","pk":"7"}`), SourceRedis)
	require.NoError(t, err)
	assert.Equal(t, Event{Action: ActionUpdated, RecordType: "Note", PK: "7", Source: SourceRedis}, ev)

	_, err = DecodeEvent([]byte(`{"action":`), SourceKafka)
	assert.ErrorIs(t, err, ErrInvalidEvent)
}

func TestConfValidation(t *testing.T) {
	conf := &Conf{Redis: &RedisConf{Host: "localhost", QueueKey: "recsearch_changes"}}
	require.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, 6379, conf.Redis.Port)
	assert.Equal(t, "recsearch_changes_errors", conf.Redis.ErrorQueueKey)
	assert.Equal(t, 11*time.Second, conf.Redis.CheckInterval())

	conf = &Conf{Redis: &RedisConf{Host: "localhost"}}
	assert.Error(t, conf.ValidateAndDefaults())

	conf = &Conf{Kafka: &KafkaConf{Brokers: []string{"localhost:9092"}, Topic: "changes"}}
	assert.Error(t, conf.ValidateAndDefaults())

	conf = &Conf{Kafka: &KafkaConf{Brokers: []string{"localhost:9092"}, Topic: "changes", GroupID: "recsearch"}}
	require.NoError(t, conf.ValidateAndDefaults())
	initial, maxDelay := conf.Kafka.RetryDelays()
	assert.Equal(t, time.Second, initial)
	assert.Equal(t, time.Minute, maxDelay)
}

func TestConfRejectsNonPositiveReportInterval(t *testing.T) {
	for _, ival := range []string{"0s", "-5s"} {
		conf := &Conf{StatsReportInterval: ival}
		assert.Error(t, conf.ValidateAndDefaults(), ival)
	}
	conf := &Conf{StatsReportInterval: "30s"}
	require.NoError(t, conf.ValidateAndDefaults())
	assert.Equal(t, 30*time.Second, conf.ReportInterval())
}
